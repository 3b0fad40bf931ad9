package handlers

import (
	"net/http"
	"tow-dispatch-service/internal/api/dto"
	"tow-dispatch-service/internal/ports"
)

type MapHandler struct {
	Engine ports.DispatchEngine
	Map    ports.MapReader
	Admin  ports.MapAdmin
}

// Nodes lists graph nodes, optionally for one area (?area_id=).
func (h *MapHandler) Nodes(w http.ResponseWriter, r *http.Request) {
	area, err := optionalArea(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	nodes := h.Map.ListNodes(area)
	res := dto.ListNodesResponse{Nodes: make([]dto.NodeResponse, 0, len(nodes))}
	for _, n := range nodes {
		res.Nodes = append(res.Nodes, dto.NodeResponse{ID: n.ID, AreaID: n.AreaID})
	}
	writeJSON(w, r, http.StatusOK, res)
}

// Edges lists graph edges, optionally for one area (?area_id=).
func (h *MapHandler) Edges(w http.ResponseWriter, r *http.Request) {
	area, err := optionalArea(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	edges := h.Map.ListEdges(area)
	res := dto.ListEdgesResponse{Edges: make([]dto.EdgeResponse, 0, len(edges))}
	for _, e := range edges {
		res.Edges = append(res.Edges, dto.EdgeResponse{NodeA: e.NodeA, NodeB: e.NodeB, Weight: e.Weight})
	}
	writeJSON(w, r, http.StatusOK, res)
}

// UpdateEdge replaces the weight of an existing edge.
func (h *MapHandler) UpdateEdge(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateEdgeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Weight == nil {
		writeError(w, r, http.StatusBadRequest, "weight is required")
		return
	}

	if err := h.Engine.UpdateEdge(r.Context(), req.NodeA, req.NodeB, *req.Weight); err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, dto.EdgeResponse{NodeA: req.NodeA, NodeB: req.NodeB, Weight: *req.Weight})
}

// Reload re-reads one area's nodes and edges from storage, e.g. after provisioning.
func (h *MapHandler) Reload(w http.ResponseWriter, r *http.Request) {
	var req dto.ReloadAreaRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.AreaID <= 0 {
		writeError(w, r, http.StatusBadRequest, "area_id must be a positive integer")
		return
	}

	if err := h.Admin.ReloadArea(r.Context(), req.AreaID); err != nil {
		writeEngineError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, dto.ReloadAreaResponse{
		AreaID: req.AreaID,
		Nodes:  len(h.Map.ListNodes(&req.AreaID)),
		Edges:  len(h.Map.ListEdges(&req.AreaID)),
	})
}
