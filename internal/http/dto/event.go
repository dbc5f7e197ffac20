package dto

type IngestEventRequest struct {
	EntityType string `json:"entity_type" binding:"required,oneof=deal contact objection interaction"`
	EntityID   string `json:"entity_id" binding:"required,max=64"`
	ChangeType string `json:"change_type" binding:"required,oneof=created updated deleted closed"`
	Stage      string `json:"stage,omitempty" binding:"omitempty,max=32"`
}

type IngestEventResponse struct {
	Enqueued bool `json:"enqueued"`
}
