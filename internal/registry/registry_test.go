package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/pkg/schema"
)

// --- Coverage of the closed kind set ---

func TestRegistry_EveryKindHasSpec(t *testing.T) {
	for _, kind := range schema.Kinds() {
		ks, ok := Lookup(kind)
		require.True(t, ok, "kind %s has no registry entry", kind)
		assert.Equal(t, kind, ks.Kind)
		assert.NotEmpty(t, ks.Label)
	}
	assert.Len(t, Specs(), len(schema.Kinds()))
}

func TestRegistry_UnknownKind(t *testing.T) {
	_, ok := Lookup("teleport")
	assert.False(t, ok)
	assert.Nil(t, RequiredFields("teleport"))
}

// --- Defaults ---

func TestRegistry_DefaultsMatchKind(t *testing.T) {
	for _, ks := range Specs() {
		p := ks.Defaults()
		require.NotNil(t, p, "kind %s", ks.Kind)
		assert.Equal(t, ks.Kind, p.Kind())
	}
}

func TestRegistry_DefaultsAreFreshPerCall(t *testing.T) {
	ks, ok := Lookup(schema.KindAgentTask)
	require.True(t, ok)

	a := ks.Defaults().(*schema.AgentTaskPayload)
	b := ks.Defaults().(*schema.AgentTaskPayload)
	a.TaskInput["poisoned"] = true

	assert.NotContains(t, b.TaskInput, "poisoned")
}

func TestRegistry_ParallelDefaultsWaitForAll(t *testing.T) {
	ks, ok := Lookup(schema.KindParallel)
	require.True(t, ok)

	p := ks.Defaults().(*schema.ParallelPayload)
	require.NotNil(t, p.WaitForAll)
	assert.True(t, *p.WaitForAll)
}

// --- Required fields ---

func TestRegistry_RequiredFields(t *testing.T) {
	required := func(kind schema.StepKind) []string {
		var names []string
		for _, f := range RequiredFields(kind) {
			names = append(names, f.Name)
		}
		return names
	}

	assert.ElementsMatch(t, []string{"environment", "action"}, required(schema.KindEnvironmentAction))
	assert.ElementsMatch(t, []string{"agent"}, required(schema.KindAgentTask))
	assert.ElementsMatch(t, []string{"condition"}, required(schema.KindConditional))
	assert.Empty(t, required(schema.KindParallel))
	assert.ElementsMatch(t, []string{"mcp_server", "tool"}, required(schema.KindMcpAgent))
	assert.ElementsMatch(t, []string{"browser_action"}, required(schema.KindBrowserAction))
}
