package domain

import "time"

// IdempotencyLog records one applied posting event.
type IdempotencyLog struct {
	Key          string    `json:"key"` // Format: "kind:source_ref"
	ResponseJSON []byte    `json:"response_json"`
	CreatedAt    time.Time `json:"created_at"`
}
