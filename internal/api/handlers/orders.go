package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"tow-dispatch-service/internal/api/dto"
	"tow-dispatch-service/internal/domain"
	"tow-dispatch-service/internal/ports"
)

var errOrderIDRequired = errors.New("order_id is required")

type OrderHandler struct {
	Engine ports.DispatchEngine
	Orders ports.OrderRepository
}

func toOrderResponse(o domain.Order) dto.OrderResponse {
	return dto.OrderResponse{
		ID:            o.ID,
		ClientID:      o.ClientID,
		NodeID:        o.NodeID,
		Status:        string(o.Status),
		TowTruckID:    o.VehicleID,
		CarValue:      o.CarValue,
		OrderTime:     o.OrderTime,
		CompletedTime: o.CompletedAt,
	}
}

// List returns orders with ?page=, ?page_size=, ?sort_by=order_time|car_value|status,
// ?order=asc|desc, ?status= and ?area_id=.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
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

	q := ports.OrderQuery{
		Page:     page,
		PageSize: size,
		SortBy:   r.URL.Query().Get("sort_by"),
		AreaID:   area,
	}

	switch strings.ToLower(r.URL.Query().Get("order")) {
	case "", "asc":
	case "desc":
		q.SortDesc = true
	default:
		writeError(w, r, http.StatusBadRequest, "order must be asc or desc")
		return
	}

	if raw := r.URL.Query().Get("status"); raw != "" {
		st, err := domain.ParseOrderStatus(raw)
		if err != nil {
			writeEngineError(w, r, err)
			return
		}
		q.Status = &st
	}

	orders, err := h.Orders.ListOrders(r.Context(), q)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}

	res := dto.ListOrdersResponse{Orders: make([]dto.OrderResponse, 0, len(orders)), Page: page, PageSize: size}
	for _, o := range orders {
		res.Orders = append(res.Orders, toOrderResponse(o))
	}
	writeJSON(w, r, http.StatusOK, res)
}

func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "id must be an integer")
		return
	}
	h.writeOrder(w, r, http.StatusOK, id)
}

func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.ClientID <= 0 {
		writeError(w, r, http.StatusBadRequest, "client_id is required")
		return
	}

	o, err := h.Engine.CreateOrder(r.Context(), req.ClientID, req.NodeID, req.CarValue)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toOrderResponse(o))
}

// Dispatch confirms an assignment. A lost race answers 409 so the caller can re-resolve.
func (h *OrderHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req dto.DispatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.Engine.Dispatch(r.Context(), req.OrderID, req.TowTruckID); err != nil {
		writeEngineError(w, r, err)
		return
	}
	h.writeOrder(w, r, http.StatusOK, req.OrderID)
}

func (h *OrderHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req dto.CompleteOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.Engine.CompleteOrder(r.Context(), req.OrderID); err != nil {
		writeEngineError(w, r, err)
		return
	}
	h.writeOrder(w, r, http.StatusOK, req.OrderID)
}

func (h *OrderHandler) writeOrder(w http.ResponseWriter, r *http.Request, status, id int) {
	o, err := h.Orders.LoadOrder(r.Context(), id)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, r, status, toOrderResponse(o))
}
