package service

import (
	"fmt"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"

	"github.com/shopspring/decimal"
)

// SaleCompleted is emitted when an eSIM sale has been provisioned and paid.
// Total is split into provider cost, processor fee, tax and the platform
// margin, which takes whatever remains.
type SaleCompleted struct {
	OrderID        string
	PlanID         string
	BuyerCompanyID int64
	Total          decimal.Decimal
	ProviderCost   decimal.Decimal
	ProcessorFee   decimal.Decimal
	Tax            decimal.Decimal
}

// PaymentSettled is emitted when the card processor settles funds into a
// company's general wallet. It is a boundary flow with a single leg.
type PaymentSettled struct {
	PaymentID   string
	CompanyID   int64
	Amount      decimal.Decimal
	Description string
}

// CouponGranted moves promotional credit from the platform to a company.
type CouponGranted struct {
	CouponID  string
	CompanyID int64
	Amount    decimal.Decimal
}

// EventBuilder translates collaborator events into posting events. The
// platform company owns the provider, profit, fee and tax wallets.
type EventBuilder struct {
	platformCompanyID int64
}

// NewEventBuilder creates an EventBuilder for the configured platform company.
func NewEventBuilder(platformCompanyID int64) *EventBuilder {
	return &EventBuilder{platformCompanyID: platformCompanyID}
}

// PlatformCompanyID returns the configured platform company.
func (b *EventBuilder) PlatformCompanyID() int64 {
	return b.platformCompanyID
}

// Sale builds the split posting of a completed sale. Zero components are
// omitted; a negative margin is posted as a loss on the profit wallet.
func (b *EventBuilder) Sale(in SaleCompleted) (domain.PostingEvent, error) {
	if in.OrderID == "" {
		return domain.PostingEvent{}, apperror.Validation("order id is required")
	}
	if !in.Total.IsPositive() {
		return domain.PostingEvent{}, apperror.Validation("sale total must be positive")
	}
	for name, v := range map[string]decimal.Decimal{"provider cost": in.ProviderCost, "processor fee": in.ProcessorFee, "tax": in.Tax} {
		if v.IsNegative() {
			return domain.PostingEvent{}, apperror.Validation(name + " must not be negative")
		}
	}

	orderID := in.OrderID
	var planID *string
	if in.PlanID != "" {
		p := in.PlanID
		planID = &p
	}
	margin := in.Total.Sub(in.ProviderCost).Sub(in.ProcessorFee).Sub(in.Tax)

	leg := func(companyID int64, wt domain.WalletType, amount decimal.Decimal, description string) domain.PostingLeg {
		txType := domain.TransactionTypeCredit
		if amount.IsNegative() {
			txType = domain.TransactionTypeDebit
		}
		return domain.PostingLeg{
			CompanyID:   companyID,
			WalletType:  wt,
			Amount:      amount,
			Type:        txType,
			Description: description,
			EsimOrderID: &orderID,
			EsimPlanID:  planID,
		}
	}

	legs := []domain.PostingLeg{
		leg(in.BuyerCompanyID, domain.WalletTypeGeneral, in.Total.Neg(), fmt.Sprintf("eSIM purchase %s", in.OrderID)),
	}
	parts := []struct {
		walletType  domain.WalletType
		amount      decimal.Decimal
		description string
	}{
		{domain.WalletTypeProvider, in.ProviderCost, "provider cost"},
		{domain.WalletTypeProfit, margin, "sale margin"},
		{domain.WalletTypeProcessorFees, in.ProcessorFee, "processor fee"},
		{domain.WalletTypeTax, in.Tax, "tax"},
	}
	for _, p := range parts {
		if p.amount.IsZero() {
			continue
		}
		legs = append(legs, leg(b.platformCompanyID, p.walletType, p.amount,
			fmt.Sprintf("%s for order %s", p.description, in.OrderID)))
	}

	return domain.PostingEvent{Kind: domain.EventKindSale, SourceRef: in.OrderID, Legs: legs}, nil
}

// Settlement builds the single credit of a settled payment.
func (b *EventBuilder) Settlement(in PaymentSettled) (domain.PostingEvent, error) {
	if in.PaymentID == "" {
		return domain.PostingEvent{}, apperror.Validation("payment id is required")
	}
	if !in.Amount.IsPositive() {
		return domain.PostingEvent{}, apperror.Validation("settled amount must be positive")
	}
	description := in.Description
	if description == "" {
		description = "payment settled " + in.PaymentID
	}
	return domain.PostingEvent{
		Kind:      domain.EventKindSettlement,
		SourceRef: in.PaymentID,
		Legs: []domain.PostingLeg{{
			CompanyID:   in.CompanyID,
			WalletType:  domain.WalletTypeGeneral,
			Amount:      in.Amount,
			Type:        domain.TransactionTypeCredit,
			Description: description,
		}},
	}, nil
}

// Coupon builds the transfer of promotional credit from the platform's
// general wallet to the company's.
func (b *EventBuilder) Coupon(in CouponGranted) (domain.PostingEvent, error) {
	if in.CouponID == "" {
		return domain.PostingEvent{}, apperror.Validation("coupon id is required")
	}
	if !in.Amount.IsPositive() {
		return domain.PostingEvent{}, apperror.Validation("coupon amount must be positive")
	}
	if in.CompanyID == b.platformCompanyID {
		return domain.PostingEvent{}, apperror.Validation("coupon cannot be granted to the platform company")
	}
	description := "coupon " + in.CouponID
	return domain.PostingEvent{
		Kind:      domain.EventKindCoupon,
		SourceRef: in.CouponID,
		Legs: []domain.PostingLeg{
			{CompanyID: b.platformCompanyID, WalletType: domain.WalletTypeGeneral, Amount: in.Amount.Neg(), Type: domain.TransactionTypeDebit, Description: description},
			{CompanyID: in.CompanyID, WalletType: domain.WalletTypeGeneral, Amount: in.Amount, Type: domain.TransactionTypeCredit, Description: description},
		},
	}, nil
}

// Refund targets the sale recorded for orderID.
func (b *EventBuilder) Refund(orderID, reason string) ports.ReverseRequest {
	return ports.ReverseRequest{
		OriginalKey: domain.BuildPostingKey(domain.EventKindSale, orderID),
		Kind:        domain.EventKindRefund,
		Reason:      reason,
	}
}

// Cancellation targets the sale recorded for orderID.
func (b *EventBuilder) Cancellation(orderID, reason string) ports.ReverseRequest {
	return ports.ReverseRequest{
		OriginalKey: domain.BuildPostingKey(domain.EventKindSale, orderID),
		Kind:        domain.EventKindCancellation,
		Reason:      reason,
	}
}
