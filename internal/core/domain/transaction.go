package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType classifies a posting leg.
type TransactionType string

const (
	TransactionTypeCredit       TransactionType = "credit"
	TransactionTypeDebit        TransactionType = "debit"
	TransactionTypeRefund       TransactionType = "refund"
	TransactionTypeCancellation TransactionType = "cancellation"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeCredit, TransactionTypeDebit, TransactionTypeRefund, TransactionTypeCancellation:
		return true
	}
	return false
}

// IsCompensating returns true for types written by reversals.
func (t TransactionType) IsCompensating() bool {
	return t == TransactionTypeRefund || t == TransactionTypeCancellation
}

// WalletTransaction is an append-only ledger entry. Amount is signed:
// credits are positive, debits negative. Only the ownership pointers
// (WalletID, CompanyID) move during a migration.
type WalletTransaction struct {
	ID                    uuid.UUID       `json:"id"`
	WalletID              uuid.UUID       `json:"wallet_id"`
	CompanyID             int64           `json:"company_id"`
	Amount                decimal.Decimal `json:"amount"`
	Type                  TransactionType `json:"type"`
	Description           string          `json:"description"`
	RelatedTransactionID  *uuid.UUID      `json:"related_transaction_id,omitempty"`
	OriginalTransactionID *uuid.UUID      `json:"original_transaction_id,omitempty"`
	EsimOrderID           *string         `json:"esim_order_id,omitempty"`
	EsimPlanID            *string         `json:"esim_plan_id,omitempty"`
	IdempotencyKey        *string         `json:"idempotency_key,omitempty"` // Nil on rows written before keys existed
	CreatedAt             time.Time       `json:"created_at"`
}

// IsReversal returns true if the transaction compensates another one.
func (t *WalletTransaction) IsReversal() bool {
	return t.OriginalTransactionID != nil
}

// LinkRing points every leg at the next one, and the last back at the first,
// so any member of a group reaches all siblings by following
// RelatedTransactionID. Groups of one leg are left unlinked.
func LinkRing(legs []*WalletTransaction) {
	if len(legs) < 2 {
		return
	}
	for i, leg := range legs {
		next := legs[(i+1)%len(legs)].ID
		leg.RelatedTransactionID = &next
	}
}
