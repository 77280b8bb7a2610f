package graph

import (
	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/domain/errs"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/linkflow-ai/scriptflow/internal/domain/params"
)

// ValidateEdge checks that from -> to can be added to the snapshot.
func ValidateEdge(s *Snapshot, from, to uuid.UUID) error {
	const op = "graph.ValidateEdge"

	if from == to {
		return errs.New(op, errs.ErrInvalidGraph, "self-loop on node %s", from)
	}
	if _, ok := s.nodes[from]; !ok {
		return errs.New(op, errs.ErrInvalidGraph, "node %s does not belong to workflow %s", from, s.WorkflowID)
	}
	if _, ok := s.nodes[to]; !ok {
		return errs.New(op, errs.ErrInvalidGraph, "node %s does not belong to workflow %s", to, s.WorkflowID)
	}
	if s.hasEdge(from, to) {
		return errs.New(op, errs.ErrInvalidGraph, "edge %s -> %s already exists", from, to)
	}
	if s.Reaches(to, from) {
		return errs.New(op, errs.ErrInvalidGraph, "edge %s -> %s would create a cycle", from, to)
	}
	return nil
}

// ValidateEdgeUpdate checks re-pointing edgeID to from -> to.
func ValidateEdgeUpdate(s *Snapshot, edgeID, from, to uuid.UUID) error {
	if _, ok := s.edges[edgeID]; !ok {
		return errs.New("graph.ValidateEdgeUpdate", errs.ErrInvalidGraph, "edge %s does not belong to workflow %s", edgeID, s.WorkflowID)
	}
	return ValidateEdge(s.Without(edgeID), from, to)
}

// ValidateNode checks a node about to be created or updated. When node.ID is
// already in the snapshot the stored node is being replaced.
func ValidateNode(s *Snapshot, node *models.Node) error {
	const op = "graph.ValidateNode"

	if node.WorkflowID != s.WorkflowID {
		return errs.New(op, errs.ErrInvalidGraph, "node %q does not belong to workflow %s", node.Name, s.WorkflowID)
	}
	if (node.ScriptID == nil) == (node.CustomScriptID == nil) {
		return errs.New(op, errs.ErrInvalidReference, "node %q must reference exactly one of script_id or custom_script_id", node.Name)
	}
	for id, other := range s.nodes {
		if id != node.ID && other.Name == node.Name {
			return errs.New(op, errs.ErrDuplicateName, "node %q already exists in workflow", node.Name)
		}
	}
	if node.MaxRetries < 0 {
		return errs.New(op, errs.ErrInvalidParameter, "node %q max_retries must be >= 0", node.Name)
	}
	if node.TimeoutSeconds <= 0 {
		return errs.New(op, errs.ErrInvalidParameter, "node %q timeout_seconds must be > 0", node.Name)
	}

	for _, name := range node.InputParams.Names() {
		if err := validateInput(s, node, name, node.InputParams[name]); err != nil {
			return err
		}
	}
	for _, name := range node.OutputParams.Names() {
		if !node.OutputParams[name].Type.Valid() {
			return errs.New(op, errs.ErrInvalidParameter, "node %q output %q has unknown type %q", node.Name, name, node.OutputParams[name].Type)
		}
	}
	return nil
}

func validateInput(s *Snapshot, node *models.Node, name string, spec models.ParameterSpec) error {
	const op = "graph.ValidateNode"

	if !spec.Type.Valid() {
		return errs.New(op, errs.ErrInvalidParameter, "node %q input %q has unknown type %q", node.Name, name, spec.Type)
	}

	for _, v := range []interface{}{spec.Value, spec.Default} {
		str, isString := v.(string)
		if isString && (spec.IsReference || params.IsReference(str)) {
			ref, err := params.Parse(str)
			if err != nil {
				return err
			}
			if ref.Kind == params.KindNode {
				if ref.NodeID == node.ID {
					return errs.New(op, errs.ErrInvalidReference, "node %q input %q references its own output", node.Name, name)
				}
				if _, ok := s.nodes[ref.NodeID]; !ok {
					return errs.New(op, errs.ErrInvalidReference, "node %q input %q references unknown node %s", node.Name, name, ref.NodeID)
				}
			}
			continue
		}
		if spec.IsReference && v != nil {
			return errs.New(op, errs.ErrInvalidReference, "node %q input %q is marked as a reference but is not a reference string", node.Name, name)
		}
		if !spec.Accepts(v) {
			return errs.New(op, errs.ErrInvalidParameter, "node %q input %q is not a valid %s", node.Name, name, spec.Type)
		}
	}
	return nil
}

// ValidateGraph re-checks a whole workflow before activation: every node,
// acyclicity, and that node references point at upstream nodes.
func ValidateGraph(s *Snapshot) error {
	for _, n := range s.Nodes() {
		if err := ValidateNode(s, n); err != nil {
			return err
		}
	}
	if _, err := s.TopologicalOrder(); err != nil {
		return err
	}
	for _, n := range s.Nodes() {
		for _, name := range n.InputParams.Names() {
			spec := n.InputParams[name]
			for _, v := range []interface{}{spec.Value, spec.Default} {
				str, ok := v.(string)
				if !ok || !(spec.IsReference || params.IsReference(str)) {
					continue
				}
				ref, err := params.Parse(str)
				if err != nil {
					return err
				}
				if ref.Kind == params.KindNode && !s.Reaches(ref.NodeID, n.ID) {
					return errs.New("graph.ValidateGraph", errs.ErrInvalidReference,
						"node %q input %q references node %s which is not upstream", n.Name, name, ref.NodeID)
				}
			}
		}
	}
	return nil
}
