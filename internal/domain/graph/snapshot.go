// Package graph validates and orders the node graph of a workflow. Every
// function works on an in-memory Snapshot and performs no I/O.
package graph

import (
	"sort"

	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
)

// Snapshot is an arena of nodes plus adjacency lists indexed by node id.
type Snapshot struct {
	WorkflowID uuid.UUID

	nodes map[uuid.UUID]*models.Node
	edges map[uuid.UUID]models.Edge
	out   map[uuid.UUID][]uuid.UUID
	in    map[uuid.UUID][]uuid.UUID
}

// NewSnapshot builds a snapshot of one workflow. Edges whose endpoints are not
// in nodes are kept in the edge set but do not enter the adjacency lists.
func NewSnapshot(workflowID uuid.UUID, nodes []models.Node, edges []models.Edge) *Snapshot {
	s := &Snapshot{
		WorkflowID: workflowID,
		nodes:      make(map[uuid.UUID]*models.Node, len(nodes)),
		edges:      make(map[uuid.UUID]models.Edge, len(edges)),
		out:        make(map[uuid.UUID][]uuid.UUID, len(nodes)),
		in:         make(map[uuid.UUID][]uuid.UUID, len(nodes)),
	}
	for i := range nodes {
		n := nodes[i]
		s.nodes[n.ID] = &n
	}
	for _, e := range edges {
		s.addEdge(e)
	}
	return s
}

func (s *Snapshot) addEdge(e models.Edge) {
	s.edges[e.ID] = e
	if s.nodes[e.FromNodeID] == nil || s.nodes[e.ToNodeID] == nil {
		return
	}
	s.out[e.FromNodeID] = append(s.out[e.FromNodeID], e.ToNodeID)
	s.in[e.ToNodeID] = append(s.in[e.ToNodeID], e.FromNodeID)
}

// Without returns a copy of the snapshot with the given edge removed.
func (s *Snapshot) Without(edgeID uuid.UUID) *Snapshot {
	nodes := make([]models.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		nodes = append(nodes, *n)
	}
	edges := make([]models.Edge, 0, len(s.edges))
	for id, e := range s.edges {
		if id != edgeID {
			edges = append(edges, e)
		}
	}
	return NewSnapshot(s.WorkflowID, nodes, edges)
}

func (s *Snapshot) Len() int {
	return len(s.nodes)
}

func (s *Snapshot) Node(id uuid.UUID) (*models.Node, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

// Nodes returns the nodes ordered by name then id.
func (s *Snapshot) Nodes() []*models.Node {
	out := make([]*models.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n)
	}
	sortNodes(out)
	return out
}

func (s *Snapshot) Edges() []models.Edge {
	out := make([]models.Edge, 0, len(s.edges))
	for _, e := range s.edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

func (s *Snapshot) Predecessors(id uuid.UUID) []uuid.UUID {
	return append([]uuid.UUID(nil), s.in[id]...)
}

func (s *Snapshot) Successors(id uuid.UUID) []uuid.UUID {
	return append([]uuid.UUID(nil), s.out[id]...)
}

// Roots returns the nodes without incoming edges, in tie-break order.
func (s *Snapshot) Roots() []uuid.UUID {
	var roots []*models.Node
	for id, n := range s.nodes {
		if len(s.in[id]) == 0 {
			roots = append(roots, n)
		}
	}
	sortNodes(roots)
	return ids(roots)
}

// Reaches reports whether a path from -> ... -> to exists. A node reaches itself.
func (s *Snapshot) Reaches(from, to uuid.UUID) bool {
	if from == to {
		return true
	}
	seen := map[uuid.UUID]bool{from: true}
	stack := []uuid.UUID{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range s.out[cur] {
			if next == to {
				return true
			}
			if !seen[next] {
				seen[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}

func (s *Snapshot) hasEdge(from, to uuid.UUID) bool {
	for _, next := range s.out[from] {
		if next == to {
			return true
		}
	}
	return false
}

func sortNodes(nodes []*models.Node) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Name != nodes[j].Name {
			return nodes[i].Name < nodes[j].Name
		}
		return nodes[i].ID.String() < nodes[j].ID.String()
	})
}

func ids(nodes []*models.Node) []uuid.UUID {
	out := make([]uuid.UUID, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}
