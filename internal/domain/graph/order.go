package graph

import (
	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/domain/errs"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
)

// TopologicalOrder returns every node so that each edge's source precedes its
// target. Ties are broken by node name, then id.
func (s *Snapshot) TopologicalOrder() ([]uuid.UUID, error) {
	levels, err := s.Levels()
	if err != nil {
		return nil, err
	}
	order := make([]uuid.UUID, 0, len(s.nodes))
	for _, level := range levels {
		order = append(order, level...)
	}
	return order, nil
}

// Levels groups nodes by dependency depth. Nodes in the same level have no
// path between them and may run concurrently.
func (s *Snapshot) Levels() ([][]uuid.UUID, error) {
	inDegree := make(map[uuid.UUID]int, len(s.nodes))
	for id := range s.nodes {
		inDegree[id] = len(s.in[id])
	}

	var current []*models.Node
	for id, n := range s.nodes {
		if inDegree[id] == 0 {
			current = append(current, n)
		}
	}

	var levels [][]uuid.UUID
	visited := 0
	for len(current) > 0 {
		sortNodes(current)
		levels = append(levels, ids(current))
		visited += len(current)

		var next []*models.Node
		for _, n := range current {
			for _, target := range s.out[n.ID] {
				inDegree[target]--
				if inDegree[target] == 0 {
					next = append(next, s.nodes[target])
				}
			}
		}
		current = next
	}

	if visited != len(s.nodes) {
		return nil, errs.New("graph.Levels", errs.ErrInvalidGraph, "cycle detected in workflow %s", s.WorkflowID)
	}
	return levels, nil
}
