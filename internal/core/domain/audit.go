package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionPosting   AuditAction = "POSTING"
	AuditActionReversal  AuditAction = "REVERSAL"
	AuditActionRebalance AuditAction = "REBALANCE"
	AuditActionMigrate   AuditAction = "MIGRATE"
	AuditActionBackfill  AuditAction = "BACKFILL_LINKS"
	AuditActionRegister  AuditAction = "REGISTER_COMPANY"
)

// AuditLog records a single audited action in the system.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	Actor        string      `json:"actor"` // Token subject or signing key id
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address"`
	CreatedAt    time.Time   `json:"created_at"`
}
