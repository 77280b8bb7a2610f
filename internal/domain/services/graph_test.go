package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/domain/errs"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateNode_Defaults(t *testing.T) {
	f := newFixture(t, defaultEngine())
	wf := f.workflow(t, "wf")

	n := f.node(t, wf, "fetch")
	assert.Equal(t, models.DefaultNodeMaxRetries, n.MaxRetries)
	assert.Equal(t, models.DefaultNodeTimeoutSeconds, n.TimeoutSeconds)
	assert.NotNil(t, n.InputParams)
}

func TestCreateNode_ScriptChecks(t *testing.T) {
	f := newFixture(t, defaultEngine())
	ctx := context.Background()
	wf := f.workflow(t, "wf")

	custom := &models.Script{Name: "mine", Source: "return {};", IsCustom: true, WorkspaceID: &f.workspace}
	require.NoError(t, f.store.Scripts.Create(ctx, custom))
	otherWS := uuid.New()
	foreign := &models.Script{Name: "theirs", Source: "return {};", IsCustom: true, WorkspaceID: &otherWS}
	require.NoError(t, f.store.Scripts.Create(ctx, foreign))
	missing := uuid.New()

	tests := []struct {
		name    string
		input   CreateNodeInput
		wantErr error
	}{
		{"global", CreateNodeInput{Name: "a", ScriptID: &f.script.ID}, nil},
		{"custom", CreateNodeInput{Name: "b", CustomScriptID: &custom.ID}, nil},
		{"both", CreateNodeInput{Name: "c", ScriptID: &f.script.ID, CustomScriptID: &custom.ID}, errs.ErrInvalidReference},
		{"neither", CreateNodeInput{Name: "d"}, errs.ErrInvalidReference},
		{"missing script", CreateNodeInput{Name: "e", ScriptID: &missing}, errs.ErrInvalidReference},
		{"custom used as global", CreateNodeInput{Name: "f", ScriptID: &custom.ID}, errs.ErrInvalidReference},
		{"foreign custom", CreateNodeInput{Name: "g", CustomScriptID: &foreign.ID}, errs.ErrInvalidReference},
		{"duplicate name", CreateNodeInput{Name: "a", ScriptID: &f.script.ID}, errs.ErrDuplicateName},
		{"no name", CreateNodeInput{Name: " ", ScriptID: &f.script.ID}, errs.ErrInvalidParameter},
		{"negative retries", CreateNodeInput{Name: "h", ScriptID: &f.script.ID, MaxRetries: intPtr(-1)}, errs.ErrInvalidParameter},
		{"zero timeout", CreateNodeInput{Name: "i", ScriptID: &f.script.ID, TimeoutSeconds: intPtr(0)}, errs.ErrInvalidParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.input.WorkflowID = wf.ID
			_, err := f.graph.CreateNode(ctx, tt.input)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func intPtr(v int) *int { return &v }

func TestUpdateNode(t *testing.T) {
	f := newFixture(t, defaultEngine())
	ctx := context.Background()
	wf := f.workflow(t, "wf")
	a := f.node(t, wf, "a")
	f.node(t, wf, "b")

	taken := "b"
	_, err := f.graph.UpdateNode(ctx, a.ID, UpdateNodeInput{Name: &taken})
	assert.ErrorIs(t, err, errs.ErrDuplicateName)

	custom := &models.Script{Name: "mine", Source: "return {};", IsCustom: true, WorkspaceID: &f.workspace}
	require.NoError(t, f.store.Scripts.Create(ctx, custom))

	_, err = f.graph.UpdateNode(ctx, a.ID, UpdateNodeInput{CustomScriptID: &custom.ID})
	assert.ErrorIs(t, err, errs.ErrInvalidReference, "setting a second binding without clearing")

	updated, err := f.graph.UpdateNode(ctx, a.ID, UpdateNodeInput{ClearScript: true, CustomScriptID: &custom.ID, MaxRetries: intPtr(0)})
	require.NoError(t, err)
	assert.Nil(t, updated.ScriptID)
	assert.Equal(t, &custom.ID, updated.CustomScriptID)
	assert.Equal(t, 0, updated.MaxRetries)

	stored, err := f.graph.GetNode(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.CustomScriptID, stored.CustomScriptID)
}

func TestEdges_RejectCycleAndLeaveGraphUnchanged(t *testing.T) {
	f := newFixture(t, defaultEngine())
	ctx := context.Background()
	wf := f.workflow(t, "wf")
	a, b, c := f.node(t, wf, "a"), f.node(t, wf, "b"), f.node(t, wf, "c")

	ab, err := f.graph.CreateEdge(ctx, wf.ID, a.ID, b.ID)
	require.NoError(t, err)
	_, err = f.graph.CreateEdge(ctx, wf.ID, b.ID, c.ID)
	require.NoError(t, err)

	before, err := f.graph.ListEdges(ctx, wf.ID)
	require.NoError(t, err)

	_, err = f.graph.CreateEdge(ctx, wf.ID, c.ID, a.ID)
	assert.ErrorIs(t, err, errs.ErrInvalidGraph)
	_, err = f.graph.CreateEdge(ctx, wf.ID, a.ID, a.ID)
	assert.ErrorIs(t, err, errs.ErrInvalidGraph)
	_, err = f.graph.UpdateEdge(ctx, ab.ID, c.ID, b.ID)
	assert.ErrorIs(t, err, errs.ErrInvalidGraph)

	after, err := f.graph.ListEdges(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	order, err := f.graph.Order(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a.ID, b.ID, c.ID}, order)
}

func TestEdges_CrossWorkflow(t *testing.T) {
	f := newFixture(t, defaultEngine())
	ctx := context.Background()
	one := f.workflow(t, "one")
	two := f.workflow(t, "two")
	a := f.node(t, one, "a")
	b := f.node(t, two, "b")

	_, err := f.graph.CreateEdge(ctx, one.ID, a.ID, b.ID)
	assert.ErrorIs(t, err, errs.ErrInvalidGraph)
}

func TestDeleteNode_RemovesEdges(t *testing.T) {
	f := newFixture(t, defaultEngine())
	ctx := context.Background()
	wf := f.workflow(t, "wf")
	a, b := f.node(t, wf, "a"), f.node(t, wf, "b")
	_, err := f.graph.CreateEdge(ctx, wf.ID, a.ID, b.ID)
	require.NoError(t, err)

	require.NoError(t, f.graph.DeleteNode(ctx, a.ID))

	edges, err := f.graph.ListEdges(ctx, wf.ID)
	require.NoError(t, err)
	assert.Empty(t, edges)
	_, err = f.graph.GetNode(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNodeNotFound)
}
