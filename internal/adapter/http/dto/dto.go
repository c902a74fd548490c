package dto

import (
	"time"

	"wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PostingLegRequest is one leg of a generic posting event.
type PostingLegRequest struct {
	CompanyID   int64           `json:"company_id" binding:"required,gt=0"`
	WalletType  string          `json:"wallet_type" binding:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Type        string          `json:"type" binding:"required"`
	Description string          `json:"description" binding:"max=500" sanitize:"trim"`
	EsimOrderID *string         `json:"esim_order_id,omitempty" binding:"omitempty,safe_id"`
	EsimPlanID  *string         `json:"esim_plan_id,omitempty" binding:"omitempty,safe_id"`
}

// PostingEventRequest is the request body for a generic posting event.
type PostingEventRequest struct {
	Kind      string              `json:"kind" binding:"required,safe_id,max=50"`
	SourceRef string              `json:"source_ref" binding:"required,safe_id,max=100"`
	Legs      []PostingLegRequest `json:"legs" binding:"required,min=1,dive"`
}

// ToDomain converts the request into a posting event.
func (r *PostingEventRequest) ToDomain() domain.PostingEvent {
	legs := make([]domain.PostingLeg, 0, len(r.Legs))
	for _, l := range r.Legs {
		legs = append(legs, domain.PostingLeg{
			CompanyID:   l.CompanyID,
			WalletType:  domain.WalletType(l.WalletType),
			Amount:      l.Amount,
			Type:        domain.TransactionType(l.Type),
			Description: l.Description,
			EsimOrderID: l.EsimOrderID,
			EsimPlanID:  l.EsimPlanID,
		})
	}
	return domain.PostingEvent{Kind: r.Kind, SourceRef: r.SourceRef, Legs: legs}
}

// SaleRequest is the request body for a completed eSIM sale.
type SaleRequest struct {
	OrderID        string          `json:"order_id" binding:"required,safe_id,max=100"`
	PlanID         string          `json:"plan_id" binding:"omitempty,safe_id,max=100"`
	BuyerCompanyID int64           `json:"buyer_company_id" binding:"required,gt=0"`
	Total          decimal.Decimal `json:"total"`
	ProviderCost   decimal.Decimal `json:"provider_cost"`
	ProcessorFee   decimal.Decimal `json:"processor_fee"`
	Tax            decimal.Decimal `json:"tax"`
}

// ReversalRequest is the request body for a sale refund or cancellation.
type ReversalRequest struct {
	OrderID string `json:"order_id" binding:"required,safe_id,max=100"`
	Reason  string `json:"reason" binding:"max=500" sanitize:"trim"`
}

// PaymentSettledRequest is the request body for a processor settlement.
type PaymentSettledRequest struct {
	PaymentID   string          `json:"payment_id" binding:"required,safe_id,max=100"`
	CompanyID   int64           `json:"company_id" binding:"required,gt=0"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" binding:"max=500" sanitize:"trim"`
}

// CouponRequest is the request body for a coupon grant.
type CouponRequest struct {
	CouponID  string          `json:"coupon_id" binding:"required,safe_id,max=100"`
	CompanyID int64           `json:"company_id" binding:"required,gt=0"`
	Amount    decimal.Decimal `json:"amount"`
}

// CompanyRegistrationRequest announces a tenant company to the ledger.
type CompanyRegistrationRequest struct {
	CompanyID int64  `json:"company_id" binding:"required,gt=0"`
	Name      string `json:"name" binding:"required,max=200" sanitize:"trim"`
}

// HistoryQuery holds the query parameters of the transaction history views.
// From and To are RFC 3339 timestamps.
type HistoryQuery struct {
	Type     string `form:"type"`
	From     string `form:"from"`
	To       string `form:"to"`
	Limit    int    `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset   int    `form:"offset" binding:"omitempty,min=0"`
	Currency string `form:"currency" binding:"omitempty,len=3,alpha"`
}

// UsageQuery holds the query parameters of the usage view.
type UsageQuery struct {
	Period string `form:"period" binding:"omitempty,oneof=day week month all"`
}

// RebalanceRequest is the request body for an admin rebalance. A missing
// company id rebalances every wallet.
type RebalanceRequest struct {
	CompanyID *int64 `json:"company_id,omitempty" binding:"omitempty,gt=0"`
}

// MigrateRequest is the request body for an ownership migration.
type MigrateRequest struct {
	SourceCompanyID  *int64   `json:"source_company_id,omitempty" binding:"omitempty,gt=0"`
	WalletTypes      []string `json:"wallet_types,omitempty"`
	WalletIDs        []string `json:"wallet_ids,omitempty" binding:"omitempty,dive,uuid"`
	CorrectCompanyID int64    `json:"correct_company_id" binding:"required,gt=0"`
}

// TransactionResponse is one ledger entry.
type TransactionResponse struct {
	ID                    string          `json:"id"`
	WalletID              string          `json:"wallet_id"`
	CompanyID             int64           `json:"company_id"`
	Amount                decimal.Decimal `json:"amount"`
	Type                  string          `json:"type"`
	Description           string          `json:"description"`
	RelatedTransactionID  *string         `json:"related_transaction_id,omitempty"`
	OriginalTransactionID *string         `json:"original_transaction_id,omitempty"`
	EsimOrderID           *string         `json:"esim_order_id,omitempty"`
	EsimPlanID            *string         `json:"esim_plan_id,omitempty"`
	CreatedAt             string          `json:"created_at"`
}

// PostingResponse is the response body of every event endpoint.
type PostingResponse struct {
	Key          string                `json:"key"`
	Duplicate    bool                  `json:"duplicate"`
	PostedAt     string                `json:"posted_at"`
	Transactions []TransactionResponse `json:"transactions"`
}

// HistoryEntryResponse is a transaction with its counterparty.
type HistoryEntryResponse struct {
	TransactionResponse
	WalletType       string  `json:"wallet_type"`
	CounterpartyID   *int64  `json:"counterparty_company_id,omitempty"`
	CounterpartyName string  `json:"counterparty_company_name,omitempty"`
	ReversedByID     *string `json:"reversed_by_transaction_id,omitempty"`
}

// CompanyResponse is the response body of a company registration.
type CompanyResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Created   bool      `json:"created"`
}

// BalancesResponse is the response for the per-type balance view.
type BalancesResponse struct {
	CompanyID int64                      `json:"company_id"`
	Balances  map[string]decimal.Decimal `json:"balances"`
}

// UsageResponse wraps per-wallet usage totals.
type UsageResponse struct {
	CompanyID int64                `json:"company_id"`
	Period    string               `json:"period"`
	Items     []domain.UsageTotals `json:"items"`
}

// RebalanceResponse is the response body of an admin rebalance.
type RebalanceResponse struct {
	Success bool `json:"success"`
	Updated int  `json:"updated"`
	Total   int  `json:"total"`
}

// MigrateResponse is the response body of an ownership migration.
type MigrateResponse struct {
	Success  bool   `json:"success"`
	Migrated int    `json:"migrated"`
	Created  int    `json:"created"`
	Message  string `json:"message"`
}

// BackfillResponse is the response body of a link backfill.
type BackfillResponse struct {
	Success bool `json:"success"`
	Groups  int  `json:"groups"`
	Linked  int  `json:"linked"`
}

// NewTransactionResponse converts a ledger entry for the wire.
func NewTransactionResponse(t *domain.WalletTransaction) TransactionResponse {
	return TransactionResponse{
		ID:                    t.ID.String(),
		WalletID:              t.WalletID.String(),
		CompanyID:             t.CompanyID,
		Amount:                t.Amount,
		Type:                  string(t.Type),
		Description:           t.Description,
		RelatedTransactionID:  uuidString(t.RelatedTransactionID),
		OriginalTransactionID: uuidString(t.OriginalTransactionID),
		EsimOrderID:           t.EsimOrderID,
		EsimPlanID:            t.EsimPlanID,
		CreatedAt:             t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// NewPostingResponse converts a posting result for the wire.
func NewPostingResponse(r *domain.PostingResult) PostingResponse {
	txns := make([]TransactionResponse, 0, len(r.Transactions))
	for i := range r.Transactions {
		txns = append(txns, NewTransactionResponse(&r.Transactions[i]))
	}
	return PostingResponse{
		Key:          r.Key,
		Duplicate:    r.Duplicate,
		PostedAt:     r.PostedAt.UTC().Format(time.RFC3339),
		Transactions: txns,
	}
}

// NewHistoryResponse converts history entries for the wire.
func NewHistoryResponse(entries []domain.HistoryEntry) []HistoryEntryResponse {
	items := make([]HistoryEntryResponse, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		items = append(items, HistoryEntryResponse{
			TransactionResponse: NewTransactionResponse(&e.WalletTransaction),
			WalletType:          string(e.WalletType),
			CounterpartyID:      e.CounterpartyID,
			CounterpartyName:    e.CounterpartyName,
			ReversedByID:        uuidString(e.ReversedByID),
		})
	}
	return items
}

func uuidString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}
