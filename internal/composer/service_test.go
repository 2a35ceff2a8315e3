package composer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/loom/internal/codec"
	"github.com/loomworks/loom/internal/engine"
	"github.com/loomworks/loom/internal/graph"
	"github.com/loomworks/loom/internal/store"
	"github.com/loomworks/loom/internal/validation"
	"github.com/loomworks/loom/pkg/schema"
)

// flakyStore wraps a Store and fails SaveWorkflow while tripped.
type flakyStore struct {
	store.Store
	failSaves bool
}

func (f *flakyStore) SaveWorkflow(ctx context.Context, def *schema.WorkflowDefinition) error {
	if f.failSaves {
		return errors.New("disk on fire")
	}
	return f.Store.SaveWorkflow(ctx, def)
}

// stubRunner records execution requests.
type stubRunner struct {
	lastWorkflowID string
}

func (r *stubRunner) Execute(_ context.Context, workflowID string, _ map[string]any) (*engine.ExecutionStatus, error) {
	r.lastWorkflowID = workflowID
	return &engine.ExecutionStatus{ExecutionID: "exec-1", Status: "accepted"}, nil
}

func newTestService(t *testing.T, st store.Store) *Service {
	t.Helper()
	wv, err := validation.NewWorkflowValidator()
	require.NoError(t, err)
	return NewService(Deps{
		Store:  st,
		Codec:  codec.New(wv),
		Runner: &stubRunner{},
		IDs:    graph.NewSequenceGenerator(),
	})
}

// configureEnvStep fills the required payload fields of an environment step.
func configureEnvStep(t *testing.T, s *Session, id string) {
	t.Helper()
	require.NoError(t, s.UpdateConfig(id, map[string]any{
		"environment": "prod",
		"action":      map[string]any{"operation": "noop"},
	}))
}

// --- Session lifecycle ---

func TestService_CreateAndCloseSession(t *testing.T) {
	svc := newTestService(t, store.NewMemoryStore())

	session := svc.CreateSession("demo", "a demo workflow")
	require.NotNil(t, session)
	assert.NotEmpty(t, session.ID)
	assert.NotEmpty(t, session.WorkflowID())
	assert.Same(t, session, svc.Session(session.ID))

	svc.CloseSession(session.ID)
	assert.Nil(t, svc.Session(session.ID))
}

func TestSession_StepLifecycleStates(t *testing.T) {
	svc := newTestService(t, store.NewMemoryStore())
	session := svc.CreateSession("demo", "")

	node, err := session.AddStep(schema.KindEnvironmentAction, graph.Position{X: 1, Y: 2})
	require.NoError(t, err)
	assert.Equal(t, StateDraft, session.StepState(node.ID))
	assert.Equal(t, "Environment Action", node.Step.Name)

	configureEnvStep(t, session, node.ID)
	assert.Equal(t, StateConfigured, session.StepState(node.ID))

	result := svc.Validate(session)
	require.True(t, result.Valid())
	assert.Equal(t, StateValidated, session.StepState(node.ID))

	_, _, err = svc.Save(context.Background(), session)
	require.NoError(t, err)
	assert.Equal(t, StatePersisted, session.StepState(node.ID))
}

func TestSession_AddStepUnknownKind(t *testing.T) {
	svc := newTestService(t, store.NewMemoryStore())
	session := svc.CreateSession("demo", "")

	_, err := session.AddStep("teleport", graph.Position{})
	require.Error(t, err)
	assert.Equal(t, 0, session.Graph().Len())
}

func TestSession_StageThenApplyConfig(t *testing.T) {
	svc := newTestService(t, store.NewMemoryStore())
	session := svc.CreateSession("demo", "")

	node, err := session.AddStep(schema.KindAgentTask, graph.Position{})
	require.NoError(t, err)

	// Staged keystrokes do not touch the step.
	require.NoError(t, session.StageConfig(node.ID, map[string]any{"agent": "res"}))
	require.NoError(t, session.StageConfig(node.ID, map[string]any{"agent": "researcher"}))
	assert.Empty(t, session.Graph().Node(node.ID).Step.Payload.(*schema.AgentTaskPayload).Agent)
	assert.Equal(t, "researcher", session.Draft(node.ID)["agent"])

	require.NoError(t, session.ApplyConfig(node.ID))
	assert.Equal(t, "researcher", session.Graph().Node(node.ID).Step.Payload.(*schema.AgentTaskPayload).Agent)
	assert.Equal(t, StateConfigured, session.StepState(node.ID))
	assert.Nil(t, session.Draft(node.ID), "draft consumed on apply")
}

func TestSession_StageConfigMissingStep(t *testing.T) {
	svc := newTestService(t, store.NewMemoryStore())
	session := svc.CreateSession("demo", "")

	err := session.StageConfig("ghost", map[string]any{"agent": "x"})
	var lerr *schema.LoomError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, schema.ErrCodeNotFound, lerr.Code)
}

// --- Save ---

func TestService_SaveRoundTripsThroughStore(t *testing.T) {
	st := store.NewMemoryStore()
	svc := newTestService(t, st)
	session := svc.CreateSession("demo", "")

	first, err := session.AddStep(schema.KindEnvironmentAction, graph.Position{})
	require.NoError(t, err)
	configureEnvStep(t, session, first.ID)
	second, err := session.AddStep(schema.KindEnvironmentAction, graph.Position{})
	require.NoError(t, err)
	configureEnvStep(t, session, second.ID)
	_, err = session.Connect(first.ID, second.ID, "")
	require.NoError(t, err)

	def, result, err := svc.Save(context.Background(), session)
	require.NoError(t, err)
	assert.True(t, result.Valid())
	assert.Equal(t, []string{first.ID}, def.Steps[second.ID].DependsOn)

	stored, err := st.GetWorkflow(context.Background(), session.WorkflowID())
	require.NoError(t, err)
	assert.Len(t, stored.Steps, 2)
}

func TestService_SaveInvalidGraphRejected(t *testing.T) {
	st := store.NewMemoryStore()
	svc := newTestService(t, st)
	session := svc.CreateSession("demo", "")

	node, err := session.AddStep(schema.KindEnvironmentAction, graph.Position{})
	require.NoError(t, err) // required fields left empty

	_, result, err := svc.Save(context.Background(), session)
	require.Error(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Valid())

	_, err = st.GetWorkflow(context.Background(), session.WorkflowID())
	assert.Error(t, err, "nothing persisted on validation failure")
	assert.Equal(t, StateDraft, session.StepState(node.ID))
}

func TestService_FailedSaveLeavesSessionIntact(t *testing.T) {
	flaky := &flakyStore{Store: store.NewMemoryStore(), failSaves: true}
	svc := newTestService(t, flaky)
	session := svc.CreateSession("demo", "")

	node, err := session.AddStep(schema.KindEnvironmentAction, graph.Position{})
	require.NoError(t, err)
	configureEnvStep(t, session, node.ID)

	_, _, err = svc.Save(context.Background(), session)
	require.Error(t, err)

	var lerr *schema.LoomError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, schema.ErrCodeStore, lerr.Code)
	assert.Contains(t, lerr.Message, "retry")

	// The graph is untouched; a retry after the store recovers succeeds.
	flaky.failSaves = false
	_, _, err = svc.Save(context.Background(), session)
	require.NoError(t, err)
	assert.Equal(t, StatePersisted, session.StepState(node.ID))
}

func TestSession_AtMostOneSaveInFlight(t *testing.T) {
	svc := newTestService(t, store.NewMemoryStore())
	session := svc.CreateSession("demo", "")

	require.True(t, session.beginSave())
	_, _, err := svc.Save(context.Background(), session)
	require.Error(t, err)

	var lerr *schema.LoomError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, schema.ErrCodeConflict, lerr.Code)

	session.endSave(false)
	node, err := session.AddStep(schema.KindEnvironmentAction, graph.Position{})
	require.NoError(t, err)
	configureEnvStep(t, session, node.ID)
	_, _, err = svc.Save(context.Background(), session)
	assert.NoError(t, err)
}

// --- Open / import ---

func TestService_OpenSessionRestoresGraph(t *testing.T) {
	st := store.NewMemoryStore()
	svc := newTestService(t, st)

	seed := svc.CreateSession("seed", "")
	first, err := seed.AddStep(schema.KindEnvironmentAction, graph.Position{})
	require.NoError(t, err)
	configureEnvStep(t, seed, first.ID)
	second, err := seed.AddStep(schema.KindConditional, graph.Position{})
	require.NoError(t, err)
	require.NoError(t, seed.UpdateConfig(second.ID, map[string]any{"condition": "true"}))
	_, err = seed.Connect(second.ID, first.ID, graph.BranchTrue)
	require.NoError(t, err)
	_, _, err = svc.Save(context.Background(), seed)
	require.NoError(t, err)
	svc.CloseSession(seed.ID)

	session, result, err := svc.OpenSession(context.Background(), seed.WorkflowID())
	require.NoError(t, err)
	assert.True(t, result.Valid())
	assert.Equal(t, 2, session.Graph().Len())

	edge := session.Graph().Edge(graph.EdgeID(second.ID, first.ID, graph.BranchTrue))
	require.NotNil(t, edge, "branch edge restored from if_true")
	assert.Equal(t, StatePersisted, session.StepState(first.ID))
}

func TestService_OpenSessionMissingWorkflow(t *testing.T) {
	svc := newTestService(t, store.NewMemoryStore())
	_, _, err := svc.OpenSession(context.Background(), "ghost")
	require.Error(t, err)
}

func TestService_ImportDefinition(t *testing.T) {
	svc := newTestService(t, store.NewMemoryStore())

	def := &schema.WorkflowDefinition{
		Name: "imported",
		Steps: map[string]*schema.StepDefinition{
			"s1": {Name: "s1", Type: schema.KindBrowserAction,
				Payload: &schema.BrowserActionPayload{BrowserAction: "navigate", URL: "https://example.com"}},
		},
	}

	session, result, err := svc.ImportDefinition(context.Background(), def)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.NotEmpty(t, session.WorkflowID(), "imports get an id assigned")
	assert.True(t, result.Valid())
	assert.Equal(t, 1, session.Graph().Len())
}

// --- Execute ---

func TestService_ExecuteRequiresSavedWorkflow(t *testing.T) {
	svc := newTestService(t, store.NewMemoryStore())

	_, err := svc.Execute(context.Background(), "never-saved", nil)
	require.Error(t, err)

	session := svc.CreateSession("demo", "")
	node, err := session.AddStep(schema.KindEnvironmentAction, graph.Position{})
	require.NoError(t, err)
	configureEnvStep(t, session, node.ID)
	_, _, err = svc.Save(context.Background(), session)
	require.NoError(t, err)

	status, err := svc.Execute(context.Background(), session.WorkflowID(), map[string]any{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, "exec-1", status.ExecutionID)
}

func TestService_ExecuteWithoutRunner(t *testing.T) {
	wv, err := validation.NewWorkflowValidator()
	require.NoError(t, err)
	svc := NewService(Deps{Store: store.NewMemoryStore(), Codec: codec.New(wv)})

	_, err = svc.Execute(context.Background(), "wf-1", nil)
	var lerr *schema.LoomError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, schema.ErrCodeEngine, lerr.Code)
}
