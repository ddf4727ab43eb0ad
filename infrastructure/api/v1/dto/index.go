package dto

// IndexRequest is the body of POST /index.
type IndexRequest struct {
	ProfileID      string   `json:"profile_id"`
	AIProfile      string   `json:"ai_profile"`
	Region         string   `json:"region"`
	Certifications []string `json:"certifications"`
	PrimaryCrops   []string `json:"primary_crops"`
	ProducerID     string   `json:"producer_id,omitempty"`
}

// MessageResponse acknowledges a write.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ClearResponse is the body returned by DELETE /search/index.
type ClearResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Deleted int    `json:"deleted"`
}

// HealthResponse is the body returned by the health endpoints.
type HealthResponse struct {
	Status         string `json:"status"`
	EmbeddingsMode string `json:"embeddings_mode"`
}
