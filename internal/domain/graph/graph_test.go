package graph

import (
	"testing"

	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/domain/errs"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNode(workflowID uuid.UUID, name string) models.Node {
	script := uuid.New()
	return models.Node{
		ID:             uuid.New(),
		WorkflowID:     workflowID,
		Name:           name,
		ScriptID:       &script,
		MaxRetries:     models.DefaultNodeMaxRetries,
		TimeoutSeconds: models.DefaultNodeTimeoutSeconds,
	}
}

func edge(workflowID uuid.UUID, from, to models.Node) models.Edge {
	return models.Edge{ID: uuid.New(), WorkflowID: workflowID, FromNodeID: from.ID, ToNodeID: to.ID}
}

// diamond builds a -> b, a -> c, b -> d, c -> d.
func diamond(t *testing.T) (*Snapshot, map[string]models.Node) {
	t.Helper()
	wf := uuid.New()
	nodes := map[string]models.Node{}
	for _, name := range []string{"a", "b", "c", "d"} {
		nodes[name] = newNode(wf, name)
	}
	edges := []models.Edge{
		edge(wf, nodes["a"], nodes["b"]),
		edge(wf, nodes["a"], nodes["c"]),
		edge(wf, nodes["b"], nodes["d"]),
		edge(wf, nodes["c"], nodes["d"]),
	}
	list := []models.Node{nodes["d"], nodes["c"], nodes["b"], nodes["a"]}
	return NewSnapshot(wf, list, edges), nodes
}

func TestTopologicalOrder_RespectsEveryEdge(t *testing.T) {
	s, _ := diamond(t)

	order, err := s.TopologicalOrder()
	require.NoError(t, err)
	require.Len(t, order, 4)

	pos := map[uuid.UUID]int{}
	for i, id := range order {
		pos[id] = i
	}
	for _, e := range s.Edges() {
		assert.Less(t, pos[e.FromNodeID], pos[e.ToNodeID])
	}
}

func TestTopologicalOrder_Deterministic(t *testing.T) {
	s, nodes := diamond(t)

	order, err := s.TopologicalOrder()
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{nodes["a"].ID, nodes["b"].ID, nodes["c"].ID, nodes["d"].ID}, order)

	levels, err := s.Levels()
	require.NoError(t, err)
	assert.Equal(t, [][]uuid.UUID{
		{nodes["a"].ID},
		{nodes["b"].ID, nodes["c"].ID},
		{nodes["d"].ID},
	}, levels)
}

func TestTopologicalOrder_DetectsCycle(t *testing.T) {
	wf := uuid.New()
	a, b := newNode(wf, "a"), newNode(wf, "b")
	s := NewSnapshot(wf, []models.Node{a, b}, []models.Edge{edge(wf, a, b), edge(wf, b, a)})

	_, err := s.TopologicalOrder()
	assert.ErrorIs(t, err, errs.ErrInvalidGraph)
}

func TestValidateEdge(t *testing.T) {
	s, nodes := diamond(t)
	foreign := newNode(uuid.New(), "x")

	tests := []struct {
		name    string
		from    uuid.UUID
		to      uuid.UUID
		wantErr error
	}{
		{"independent branches", nodes["b"].ID, nodes["c"].ID, nil},
		{"self loop", nodes["a"].ID, nodes["a"].ID, errs.ErrInvalidGraph},
		{"back edge closes cycle", nodes["d"].ID, nodes["a"].ID, errs.ErrInvalidGraph},
		{"short cycle", nodes["b"].ID, nodes["a"].ID, errs.ErrInvalidGraph},
		{"foreign source", foreign.ID, nodes["a"].ID, errs.ErrInvalidGraph},
		{"foreign target", nodes["a"].ID, foreign.ID, errs.ErrInvalidGraph},
		{"duplicate", nodes["a"].ID, nodes["b"].ID, errs.ErrInvalidGraph},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := s.Edges()
			err := ValidateEdge(s, tt.from, tt.to)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, before, s.Edges())
		})
	}
}

func TestValidateEdgeUpdate(t *testing.T) {
	wf := uuid.New()
	a, b, c := newNode(wf, "a"), newNode(wf, "b"), newNode(wf, "c")
	ab := edge(wf, a, b)
	bc := edge(wf, b, c)
	s := NewSnapshot(wf, []models.Node{a, b, c}, []models.Edge{ab, bc})

	// Reversing a -> b is fine once the old edge is gone.
	assert.NoError(t, ValidateEdgeUpdate(s, ab.ID, b.ID, a.ID))
	assert.NoError(t, ValidateEdgeUpdate(s, bc.ID, c.ID, a.ID))
	// a -> b stays, so b -> a closes a cycle.
	assert.ErrorIs(t, ValidateEdgeUpdate(s, bc.ID, b.ID, a.ID), errs.ErrInvalidGraph)
	assert.ErrorIs(t, ValidateEdgeUpdate(s, uuid.New(), a.ID, c.ID), errs.ErrInvalidGraph)
}

func TestValidateNode_ScriptXOR(t *testing.T) {
	wf := uuid.New()
	s := NewSnapshot(wf, nil, nil)
	script := uuid.New()

	both := newNode(wf, "both")
	both.CustomScriptID = &script
	assert.ErrorIs(t, ValidateNode(s, &both), errs.ErrInvalidReference)

	neither := newNode(wf, "neither")
	neither.ScriptID = nil
	assert.ErrorIs(t, ValidateNode(s, &neither), errs.ErrInvalidReference)

	custom := newNode(wf, "custom")
	custom.ScriptID = nil
	custom.CustomScriptID = &script
	assert.NoError(t, ValidateNode(s, &custom))
}

func TestValidateNode_DuplicateName(t *testing.T) {
	wf := uuid.New()
	existing := newNode(wf, "fetch")
	s := NewSnapshot(wf, []models.Node{existing}, nil)

	clash := newNode(wf, "fetch")
	assert.ErrorIs(t, ValidateNode(s, &clash), errs.ErrDuplicateName)

	// Updating the node itself keeps its name.
	assert.NoError(t, ValidateNode(s, &existing))
}

func TestValidateNode_Parameters(t *testing.T) {
	wf := uuid.New()
	upstream := newNode(wf, "upstream")
	s := NewSnapshot(wf, []models.Node{upstream}, nil)

	tests := []struct {
		name    string
		spec    models.ParameterSpec
		wantErr error
	}{
		{"literal string", models.ParameterSpec{Type: models.ParamTypeString, Value: "hi"}, nil},
		{"literal integer", models.ParameterSpec{Type: models.ParamTypeInteger, Value: float64(3)}, nil},
		{"fractional integer", models.ParameterSpec{Type: models.ParamTypeInteger, Value: 3.5}, errs.ErrInvalidParameter},
		{"wrong type", models.ParameterSpec{Type: models.ParamTypeBoolean, Value: "yes"}, errs.ErrInvalidParameter},
		{"unknown type", models.ParameterSpec{Type: "date", Value: "x"}, errs.ErrInvalidParameter},
		{"node reference", models.ParameterSpec{Type: models.ParamTypeString, Value: "${node:" + upstream.ID.String() + ".result}"}, nil},
		{"unknown node", models.ParameterSpec{Type: models.ParamTypeString, Value: "${node:" + uuid.NewString() + ".result}"}, errs.ErrInvalidReference},
		{"malformed reference", models.ParameterSpec{Type: models.ParamTypeString, Value: "${node:abc}"}, errs.ErrInvalidReference},
		{"marked reference without syntax", models.ParameterSpec{Type: models.ParamTypeString, Value: "plain", IsReference: true}, errs.ErrInvalidReference},
		{"reference default", models.ParameterSpec{Type: models.ParamTypeString, Default: "${trigger:user.name}"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newNode(wf, "consumer")
			n.InputParams = models.ParameterMap{"p": tt.spec}
			err := ValidateNode(s, &n)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestValidateGraph_NodeReferenceMustBeUpstream(t *testing.T) {
	wf := uuid.New()
	a, b := newNode(wf, "a"), newNode(wf, "b")
	b.InputParams = models.ParameterMap{
		"in": {Type: models.ParamTypeJSON, Value: "${node:" + a.ID.String() + ".result}"},
	}

	unordered := NewSnapshot(wf, []models.Node{a, b}, nil)
	assert.ErrorIs(t, ValidateGraph(unordered), errs.ErrInvalidReference)

	ordered := NewSnapshot(wf, []models.Node{a, b}, []models.Edge{edge(wf, a, b)})
	assert.NoError(t, ValidateGraph(ordered))

	t.Run("default value reference", func(t *testing.T) {
		c := newNode(wf, "c")
		c.InputParams = models.ParameterMap{
			"in": {Type: models.ParamTypeJSON, Default: "${node:" + a.ID.String() + ".result}"},
		}

		detached := NewSnapshot(wf, []models.Node{a, c}, nil)
		assert.ErrorIs(t, ValidateGraph(detached), errs.ErrInvalidReference)

		wired := NewSnapshot(wf, []models.Node{a, c}, []models.Edge{edge(wf, a, c)})
		assert.NoError(t, ValidateGraph(wired))
	})
}
