package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// HistoryEntry is a transaction enriched for display. Counterparty fields are
// a best-effort lookup over the posting group and are never persisted.
// ReversedByID points from an original leg to the leg that compensated it.
type HistoryEntry struct {
	WalletTransaction
	WalletType       WalletType `json:"wallet_type"`
	CounterpartyID   *int64     `json:"counterparty_company_id,omitempty"`
	CounterpartyName string     `json:"counterparty_company_name,omitempty"`
	ReversedByID     *uuid.UUID `json:"reversed_by_transaction_id,omitempty"`
}

// UsageTotals sums one wallet's movements over a period by transaction type.
type UsageTotals struct {
	WalletType    WalletType      `json:"wallet_type"`
	Credits       decimal.Decimal `json:"credits"`
	Debits        decimal.Decimal `json:"debits"`
	Refunds       decimal.Decimal `json:"refunds"`
	Cancellations decimal.Decimal `json:"cancellations"`
	Count         int64           `json:"count"`
}
