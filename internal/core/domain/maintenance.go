package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RebalanceScope selects the wallets a rebalance examines. A nil CompanyID
// means every non-retired wallet.
type RebalanceScope struct {
	CompanyID *int64
}

// WalletDrift describes a cached balance that disagreed with its log.
type WalletDrift struct {
	WalletID  uuid.UUID       `json:"wallet_id"`
	CompanyID int64           `json:"company_id"`
	Cached    decimal.Decimal `json:"cached"`
	Projected decimal.Decimal `json:"projected"`
}

// Amount returns the absolute difference between cache and projection.
func (d WalletDrift) Amount() decimal.Decimal {
	return d.Projected.Sub(d.Cached).Abs()
}

// RebalanceResult reports how many wallets were examined and corrected.
type RebalanceResult struct {
	Updated int           `json:"updated"`
	Total   int           `json:"total"`
	Drifts  []WalletDrift `json:"drifts,omitempty"`
}

// MigrationSelector picks the wallets considered for an ownership fix.
// At least one of SourceCompanyID or WalletIDs must be set.
type MigrationSelector struct {
	SourceCompanyID *int64       `json:"source_company_id,omitempty"`
	WalletTypes     []WalletType `json:"wallet_types,omitempty"`
	WalletIDs       []uuid.UUID  `json:"wallet_ids,omitempty"`
}

// MigrationResult counts merged wallets and wallets moved in place.
type MigrationResult struct {
	Migrated int `json:"migrated"`
	Created  int `json:"created"`
}

// BackfillResult counts the legacy groups linked and the rows touched.
type BackfillResult struct {
	Groups int `json:"groups"`
	Linked int `json:"linked"`
}
