package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Event kinds emitted by collaborators.
const (
	EventKindSale         = "sale"
	EventKindRefund       = "refund"
	EventKindCancellation = "cancellation"
	EventKindSettlement   = "payment_settled"
	EventKindCoupon       = "coupon"
	EventKindManual       = "manual"
)

// PostingLeg is one wallet movement requested by an event.
type PostingLeg struct {
	CompanyID   int64           `json:"company_id"`
	WalletType  WalletType      `json:"wallet_type"`
	Amount      decimal.Decimal `json:"amount"`
	Type        TransactionType `json:"type"`
	Description string          `json:"description"`
	EsimOrderID *string         `json:"esim_order_id,omitempty"`
	EsimPlanID  *string         `json:"esim_plan_id,omitempty"`
}

// PostingEvent is a business event translated into a group of legs.
type PostingEvent struct {
	Kind      string       `json:"kind"`
	SourceRef string       `json:"source_ref"` // Id of the triggering business object
	Legs      []PostingLeg `json:"legs"`
}

// Key returns the idempotency key of the event.
func (e *PostingEvent) Key() string {
	return BuildPostingKey(e.Kind, e.SourceRef)
}

// Sum returns the signed total of all legs.
func (e *PostingEvent) Sum() decimal.Decimal {
	total := decimal.Zero
	for _, leg := range e.Legs {
		total = total.Add(leg.Amount)
	}
	return total
}

// IsConserved reports whether the event keeps money inside the ledger.
// Single-leg events are boundary flows and always conserve.
func (e *PostingEvent) IsConserved() bool {
	if len(e.Legs) < 2 {
		return true
	}
	return e.Sum().IsZero()
}

// PostingResult is the outcome of applying one event. It is what the
// idempotency log stores and what duplicates echo back.
type PostingResult struct {
	Key          string              `json:"key"`
	Kind         string              `json:"kind"`
	SourceRef    string              `json:"source_ref"`
	Transactions []WalletTransaction `json:"transactions"`
	Duplicate    bool                `json:"duplicate"`
	PostedAt     time.Time           `json:"posted_at"`
}

// BuildReversalMarker is the idempotency key shared by every reversal of
// originalKey. "#" never appears in posting keys built from collaborator input.
func BuildReversalMarker(originalKey string) string {
	return "reversed#" + originalKey
}

// BuildPostingKey constructs the idempotency key "kind:sourceRef".
func BuildPostingKey(kind, sourceRef string) string {
	return strings.ToLower(kind) + ":" + sourceRef
}
