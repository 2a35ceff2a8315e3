// Package schedule lints the optional metadata.schedule cron hint a
// definition may carry for the engine. Loom never schedules anything; it
// only refuses to persist a hint the engine could not parse.
package schedule

import (
	"github.com/robfig/cron/v3"

	"github.com/loomworks/loom/pkg/schema"
)

// Checker parses cron schedule hints in the standard 5-field format.
type Checker struct {
	parser cron.Parser
}

// NewChecker creates a Checker.
func NewChecker() *Checker {
	return &Checker{
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// CheckSchedule parses the spec and returns a structured error when it is
// not valid cron syntax.
func (c *Checker) CheckSchedule(spec string) error {
	if _, err := c.parser.Parse(spec); err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "invalid cron expression %q: %v", spec, err).
			WithCause(err)
	}
	return nil
}
