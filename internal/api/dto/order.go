package dto

import "time"

type OrderResponse struct {
	ID            int        `json:"id"`
	ClientID      int        `json:"client_id"`
	NodeID        int        `json:"node_id"`
	Status        string     `json:"status"`
	TowTruckID    *int       `json:"tow_truck_id"`
	CarValue      float64    `json:"car_value"`
	OrderTime     time.Time  `json:"order_time"`
	CompletedTime *time.Time `json:"completed_time"`
}

type ListOrdersResponse struct {
	Orders   []OrderResponse `json:"orders"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

type CreateOrderRequest struct {
	ClientID int     `json:"client_id"`
	NodeID   int     `json:"node_id"`
	CarValue float64 `json:"car_value"`
}

type DispatchRequest struct {
	OrderID    int `json:"order_id"`
	TowTruckID int `json:"tow_truck_id"`
}

type CompleteOrderRequest struct {
	OrderID int `json:"order_id"`
}
