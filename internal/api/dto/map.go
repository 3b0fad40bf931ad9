package dto

type NodeResponse struct {
	ID     int `json:"id"`
	AreaID int `json:"area_id"`
}

type ListNodesResponse struct {
	Nodes []NodeResponse `json:"nodes"`
}

type EdgeResponse struct {
	NodeA  int `json:"node_a"`
	NodeB  int `json:"node_b"`
	Weight int `json:"weight"`
}

type ListEdgesResponse struct {
	Edges []EdgeResponse `json:"edges"`
}

// Weight is a pointer so a missing field is rejected instead of read as zero.
type UpdateEdgeRequest struct {
	NodeA  int  `json:"node_a"`
	NodeB  int  `json:"node_b"`
	Weight *int `json:"weight"`
}

type ReloadAreaRequest struct {
	AreaID int `json:"area_id"`
}

type ReloadAreaResponse struct {
	AreaID int `json:"area_id"`
	Nodes  int `json:"nodes"`
	Edges  int `json:"edges"`
}
