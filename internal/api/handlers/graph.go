package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/api/dto"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/linkflow-ai/scriptflow/internal/domain/services"
)

// GraphHandler edits the nodes and edges of a workflow. Every mutation is
// validated against the whole graph by the service before it is stored.
type GraphHandler struct {
	workflowLoader
	graphSvc *services.GraphService
}

func NewGraphHandler(workflowSvc *services.WorkflowService, graphSvc *services.GraphService) *GraphHandler {
	return &GraphHandler{
		workflowLoader: workflowLoader{workflowSvc: workflowSvc},
		graphSvc:       graphSvc,
	}
}

func (h *GraphHandler) ListNodes(w http.ResponseWriter, r *http.Request) {
	workflow, ok := h.load(w, r)
	if !ok {
		return
	}

	nodes, err := h.graphSvc.ListNodes(r.Context(), workflow.ID)
	if err != nil {
		dto.HandleServiceError(w, err)
		return
	}

	response := make([]dto.NodeResponse, 0, len(nodes))
	for i := range nodes {
		response = append(response, dto.NewNodeResponse(&nodes[i]))
	}
	dto.OK(w, response)
}

func (h *GraphHandler) CreateNode(w http.ResponseWriter, r *http.Request) {
	workflow, ok := h.load(w, r)
	if !ok {
		return
	}

	var req dto.CreateNodeRequest
	if !decode(w, r, &req) {
		return
	}

	node, err := h.graphSvc.CreateNode(r.Context(), services.CreateNodeInput{
		WorkflowID:     workflow.ID,
		Name:           req.Name,
		ScriptID:       parseOptionalUUID(req.ScriptID),
		CustomScriptID: parseOptionalUUID(req.CustomScriptID),
		InputParams:    req.InputParams,
		OutputParams:   req.OutputParams,
		MaxRetries:     req.MaxRetries,
		TimeoutSeconds: req.TimeoutSeconds,
		MetaData:       req.MetaData,
	})
	if err != nil {
		dto.HandleServiceError(w, err)
		return
	}

	dto.Created(w, dto.NewNodeResponse(node))
}

func (h *GraphHandler) GetNode(w http.ResponseWriter, r *http.Request) {
	node, ok := h.loadNode(w, r)
	if !ok {
		return
	}
	dto.OK(w, dto.NewNodeResponse(node))
}

func (h *GraphHandler) UpdateNode(w http.ResponseWriter, r *http.Request) {
	node, ok := h.loadNode(w, r)
	if !ok {
		return
	}

	var req dto.UpdateNodeRequest
	if !decode(w, r, &req) {
		return
	}

	updated, err := h.graphSvc.UpdateNode(r.Context(), node.ID, services.UpdateNodeInput{
		Name:           req.Name,
		ScriptID:       parseOptionalUUID(req.ScriptID),
		CustomScriptID: parseOptionalUUID(req.CustomScriptID),
		ClearScript:    req.ClearScript,
		InputParams:    req.InputParams,
		OutputParams:   req.OutputParams,
		MaxRetries:     req.MaxRetries,
		TimeoutSeconds: req.TimeoutSeconds,
		MetaData:       req.MetaData,
	})
	if err != nil {
		dto.HandleServiceError(w, err)
		return
	}

	dto.OK(w, dto.NewNodeResponse(updated))
}

// DeleteNode removes a node; edges touching it go with it.
func (h *GraphHandler) DeleteNode(w http.ResponseWriter, r *http.Request) {
	node, ok := h.loadNode(w, r)
	if !ok {
		return
	}
	if err := h.graphSvc.DeleteNode(r.Context(), node.ID); err != nil {
		dto.HandleServiceError(w, err)
		return
	}
	dto.NoContent(w)
}

func (h *GraphHandler) ListEdges(w http.ResponseWriter, r *http.Request) {
	workflow, ok := h.load(w, r)
	if !ok {
		return
	}

	edges, err := h.graphSvc.ListEdges(r.Context(), workflow.ID)
	if err != nil {
		dto.HandleServiceError(w, err)
		return
	}

	response := make([]dto.EdgeResponse, 0, len(edges))
	for i := range edges {
		response = append(response, dto.NewEdgeResponse(&edges[i]))
	}
	dto.OK(w, response)
}

func (h *GraphHandler) CreateEdge(w http.ResponseWriter, r *http.Request) {
	workflow, ok := h.load(w, r)
	if !ok {
		return
	}

	var req dto.EdgeRequest
	if !decode(w, r, &req) {
		return
	}

	edge, err := h.graphSvc.CreateEdge(r.Context(), workflow.ID, uuid.MustParse(req.FromNodeID), uuid.MustParse(req.ToNodeID))
	if err != nil {
		dto.HandleServiceError(w, err)
		return
	}

	dto.Created(w, dto.NewEdgeResponse(edge))
}

func (h *GraphHandler) GetEdge(w http.ResponseWriter, r *http.Request) {
	edge, ok := h.loadEdge(w, r)
	if !ok {
		return
	}
	dto.OK(w, dto.NewEdgeResponse(edge))
}

func (h *GraphHandler) UpdateEdge(w http.ResponseWriter, r *http.Request) {
	edge, ok := h.loadEdge(w, r)
	if !ok {
		return
	}

	var req dto.EdgeRequest
	if !decode(w, r, &req) {
		return
	}

	updated, err := h.graphSvc.UpdateEdge(r.Context(), edge.ID, uuid.MustParse(req.FromNodeID), uuid.MustParse(req.ToNodeID))
	if err != nil {
		dto.HandleServiceError(w, err)
		return
	}

	dto.OK(w, dto.NewEdgeResponse(updated))
}

func (h *GraphHandler) DeleteEdge(w http.ResponseWriter, r *http.Request) {
	edge, ok := h.loadEdge(w, r)
	if !ok {
		return
	}
	if err := h.graphSvc.DeleteEdge(r.Context(), edge.ID); err != nil {
		dto.HandleServiceError(w, err)
		return
	}
	dto.NoContent(w)
}

// Order returns the node ids of the workflow in a valid execution order.
func (h *GraphHandler) Order(w http.ResponseWriter, r *http.Request) {
	workflow, ok := h.load(w, r)
	if !ok {
		return
	}

	order, err := h.graphSvc.Order(r.Context(), workflow.ID)
	if err != nil {
		dto.HandleServiceError(w, err)
		return
	}

	ids := make([]string, len(order))
	for i, id := range order {
		ids[i] = id.String()
	}
	dto.OK(w, dto.OrderResponse{NodeIDs: ids})
}

func (h *GraphHandler) loadNode(w http.ResponseWriter, r *http.Request) (*models.Node, bool) {
	workflow, ok := h.load(w, r)
	if !ok {
		return nil, false
	}
	id, ok := uuidParam(w, r, "nodeID", "node")
	if !ok {
		return nil, false
	}
	node, err := h.graphSvc.GetNode(r.Context(), id)
	if err != nil {
		dto.HandleServiceError(w, err)
		return nil, false
	}
	if node.WorkflowID != workflow.ID {
		dto.NotFound(w, "Node")
		return nil, false
	}
	return node, true
}

func (h *GraphHandler) loadEdge(w http.ResponseWriter, r *http.Request) (*models.Edge, bool) {
	workflow, ok := h.load(w, r)
	if !ok {
		return nil, false
	}
	id, ok := uuidParam(w, r, "edgeID", "edge")
	if !ok {
		return nil, false
	}
	edge, err := h.graphSvc.GetEdge(r.Context(), id)
	if err != nil {
		dto.HandleServiceError(w, err)
		return nil, false
	}
	if edge.WorkflowID != workflow.ID {
		dto.NotFound(w, "Edge")
		return nil, false
	}
	return edge, true
}
