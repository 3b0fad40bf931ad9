package handlers

import (
	"net/http"
	"strconv"
	"tow-dispatch-service/internal/api/dto"
	"tow-dispatch-service/internal/domain"
	"tow-dispatch-service/internal/ports"
)

type TowTruckHandler struct {
	Engine ports.DispatchEngine
	Fleet  ports.VehicleReader
	Map    ports.MapReader
}

func (h *TowTruckHandler) toResponse(v domain.Vehicle) dto.TowTruckResponse {
	res := dto.TowTruckResponse{ID: v.ID, NodeID: v.NodeID, Status: string(v.Status)}
	if area, err := h.Map.AreaOf(v.NodeID); err == nil {
		res.AreaID = &area
	}
	return res
}

// List returns tow trucks filtered by ?status= and ?area_id=, paginated.
func (h *TowTruckHandler) List(w http.ResponseWriter, r *http.Request) {
	page, size, err := pageParams(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	area, err := optionalArea(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	f := ports.VehicleFilter{AreaID: area, Page: page, PageSize: size}
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, err := domain.ParseVehicleStatus(raw)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		f.Status = &st
	}

	vs := h.Fleet.List(f)
	res := dto.ListTowTrucksResponse{TowTrucks: make([]dto.TowTruckResponse, 0, len(vs))}
	for _, v := range vs {
		res.TowTrucks = append(res.TowTrucks, h.toResponse(v))
	}
	writeJSON(w, r, http.StatusOK, res)
}

func (h *TowTruckHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "id must be an integer")
		return
	}

	v, err := h.Fleet.Get(r.Context(), id)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, h.toResponse(v))
}

func (h *TowTruckHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateLocationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.Engine.UpdateVehicleLocation(r.Context(), req.TowTruckID, req.NodeID); err != nil {
		writeEngineError(w, r, err)
		return
	}

	h.writeTruck(w, r, req.TowTruckID)
}

func (h *TowTruckHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req dto.SetStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	st, err := domain.ParseVehicleStatus(req.Status)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	if err := h.Engine.SetVehicleStatus(r.Context(), req.TowTruckID, st); err != nil {
		writeEngineError(w, r, err)
		return
	}

	h.writeTruck(w, r, req.TowTruckID)
}

func (h *TowTruckHandler) writeTruck(w http.ResponseWriter, r *http.Request, id int) {
	v, err := h.Fleet.Get(r.Context(), id)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, h.toResponse(v))
}

func requiredOrderID(r *http.Request) (int, error) {
	id, ok, err := queryInt(r, "order_id")
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errOrderIDRequired
	}
	return id, nil
}

// NearestAvailable resolves the closest available tow truck for ?order_id=.
// No reachable truck is a 404, the order stays pending.
func (h *TowTruckHandler) NearestAvailable(w http.ResponseWriter, r *http.Request) {
	orderID, err := requiredOrderID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	c, err := h.Engine.ResolveNearestVehicle(r.Context(), orderID)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	if c == nil {
		writeErrorCode(w, r, http.StatusNotFound, CodeNoTowTruckAvailable, "no tow truck available")
		return
	}

	writeJSON(w, r, http.StatusOK, dto.CandidateResponse{
		TowTruckID: c.Vehicle.ID,
		NodeID:     c.Vehicle.NodeID,
		Distance:   c.Distance,
	})
}

// Candidates ranks reachable available trucks for ?order_id=, nearest first (?limit=).
func (h *TowTruckHandler) Candidates(w http.ResponseWriter, r *http.Request) {
	orderID, err := requiredOrderID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	limit, _, err := queryInt(r, "limit")
	if err != nil || limit < 0 {
		writeError(w, r, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}

	cands, err := h.Engine.RankCandidates(r.Context(), orderID, limit)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	res := dto.ListCandidatesResponse{OrderID: orderID, Candidates: make([]dto.CandidateResponse, 0, len(cands))}
	for _, c := range cands {
		res.Candidates = append(res.Candidates, dto.CandidateResponse{
			TowTruckID: c.Vehicle.ID,
			NodeID:     c.Vehicle.NodeID,
			Distance:   c.Distance,
		})
	}
	writeJSON(w, r, http.StatusOK, res)
}
