package domain

import "time"

// Company is a tenant business. The platform operator is modeled as a company too.
type Company struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
