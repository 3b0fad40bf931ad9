package dto

type TowTruckResponse struct {
	ID     int    `json:"id"`
	NodeID int    `json:"node_id"`
	AreaID *int   `json:"area_id"`
	Status string `json:"status"`
}

type ListTowTrucksResponse struct {
	TowTrucks []TowTruckResponse `json:"tow_trucks"`
}

type UpdateLocationRequest struct {
	TowTruckID int `json:"tow_truck_id"`
	NodeID     int `json:"node_id"`
}

type SetStatusRequest struct {
	TowTruckID int    `json:"tow_truck_id"`
	Status     string `json:"status"`
}

type CandidateResponse struct {
	TowTruckID int   `json:"tow_truck_id"`
	NodeID     int   `json:"node_id"`
	Distance   int64 `json:"distance"`
}

type ListCandidatesResponse struct {
	OrderID    int                 `json:"order_id"`
	Candidates []CandidateResponse `json:"candidates"`
}
