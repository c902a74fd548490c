package domain

import (
	"bytes"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WalletType is the purpose of an account.
type WalletType string

const (
	WalletTypeGeneral       WalletType = "general"
	WalletTypeProfit        WalletType = "profit"
	WalletTypeProvider      WalletType = "provider"
	WalletTypeProcessorFees WalletType = "processor_fees"
	WalletTypeTax           WalletType = "tax"
)

// WalletTypes lists every wallet type in display order.
var WalletTypes = []WalletType{
	WalletTypeGeneral,
	WalletTypeProfit,
	WalletTypeProvider,
	WalletTypeProcessorFees,
	WalletTypeTax,
}

// Valid reports whether t is one of the enumerated wallet types.
func (t WalletType) Valid() bool {
	switch t {
	case WalletTypeGeneral, WalletTypeProfit, WalletTypeProvider, WalletTypeProcessorFees, WalletTypeTax:
		return true
	}
	return false
}

// Wallet is one typed account owned by one company. Balance is a cache of
// the sum of the wallet's transaction amounts.
type Wallet struct {
	ID          uuid.UUID       `json:"id"`
	CompanyID   int64           `json:"company_id"`
	WalletType  WalletType      `json:"wallet_type"`
	Balance     decimal.Decimal `json:"balance"`
	CreatedAt   time.Time       `json:"created_at"`
	LastUpdated time.Time       `json:"last_updated"`
	RetiredAt   *time.Time      `json:"retired_at,omitempty"` // Set when merged into another wallet
}

// IsRetired returns true if the wallet was merged away by a migration.
func (w *Wallet) IsRetired() bool {
	return w.RetiredAt != nil
}

// SortWalletIDs orders ids ascending by their byte representation, which is
// also the order PostgreSQL uses for the uuid type. All multi-wallet lock
// acquisition goes through this order.
func SortWalletIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
}
