package service

import (
	"testing"

	"wallet-ledger/internal/core/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBuilder_Sale_FullSplit(t *testing.T) {
	b := NewEventBuilder(1)

	event, err := b.Sale(SaleCompleted{
		OrderID:        "ORD-9",
		PlanID:         "PLAN-1",
		BuyerCompanyID: 42,
		Total:          dec("100"),
		ProviderCost:   dec("60"),
		ProcessorFee:   dec("3.20"),
		Tax:            dec("8"),
	})
	require.NoError(t, err)

	assert.Equal(t, "sale:ORD-9", event.Key())
	assert.True(t, event.IsConserved())
	require.Len(t, event.Legs, 5)

	want := map[domain.WalletType]string{
		domain.WalletTypeGeneral:       "-100",
		domain.WalletTypeProvider:      "60",
		domain.WalletTypeProfit:        "28.8",
		domain.WalletTypeProcessorFees: "3.2",
		domain.WalletTypeTax:           "8",
	}
	for _, leg := range event.Legs {
		assert.True(t, leg.Amount.Equal(dec(want[leg.WalletType])), "%s: %s", leg.WalletType, leg.Amount)
		require.NotNil(t, leg.EsimOrderID)
		assert.Equal(t, "ORD-9", *leg.EsimOrderID)
		if leg.WalletType == domain.WalletTypeGeneral {
			assert.Equal(t, int64(42), leg.CompanyID)
			assert.Equal(t, domain.TransactionTypeDebit, leg.Type)
		} else {
			assert.Equal(t, int64(1), leg.CompanyID)
			assert.Equal(t, domain.TransactionTypeCredit, leg.Type)
		}
	}
}

func TestEventBuilder_Sale_LossAndOmittedLegs(t *testing.T) {
	b := NewEventBuilder(1)

	event, err := b.Sale(SaleCompleted{OrderID: "ORD-L", BuyerCompanyID: 42, Total: dec("10"), ProviderCost: dec("12")})
	require.NoError(t, err)
	require.Len(t, event.Legs, 3)
	assert.True(t, event.IsConserved())

	profit := event.Legs[2]
	assert.Equal(t, domain.WalletTypeProfit, profit.WalletType)
	assert.True(t, profit.Amount.Equal(dec("-2")))
	assert.Equal(t, domain.TransactionTypeDebit, profit.Type)
}

func TestEventBuilder_Sale_Invalid(t *testing.T) {
	b := NewEventBuilder(1)

	_, err := b.Sale(SaleCompleted{OrderID: "", Total: dec("1")})
	assertAppError(t, err, "LED_005")

	_, err = b.Sale(SaleCompleted{OrderID: "ORD", Total: decimal.Zero})
	assertAppError(t, err, "LED_005")

	_, err = b.Sale(SaleCompleted{OrderID: "ORD", Total: dec("5"), Tax: dec("-1")})
	assertAppError(t, err, "LED_005")
}

func TestEventBuilder_Settlement(t *testing.T) {
	b := NewEventBuilder(1)

	event, err := b.Settlement(PaymentSettled{PaymentID: "PAY-1", CompanyID: 42, Amount: dec("15")})
	require.NoError(t, err)
	assert.Equal(t, "payment_settled:PAY-1", event.Key())
	require.Len(t, event.Legs, 1)
	assert.Equal(t, "payment settled PAY-1", event.Legs[0].Description)

	_, err = b.Settlement(PaymentSettled{PaymentID: "PAY-1", CompanyID: 42, Amount: dec("-1")})
	assertAppError(t, err, "LED_005")
}

func TestEventBuilder_Coupon(t *testing.T) {
	b := NewEventBuilder(1)

	event, err := b.Coupon(CouponGranted{CouponID: "WELCOME", CompanyID: 42, Amount: dec("5")})
	require.NoError(t, err)
	require.Len(t, event.Legs, 2)
	assert.True(t, event.IsConserved())
	assert.Equal(t, int64(1), event.Legs[0].CompanyID)
	assert.True(t, event.Legs[0].Amount.IsNegative())

	_, err = b.Coupon(CouponGranted{CouponID: "SELF", CompanyID: 1, Amount: dec("5")})
	assertAppError(t, err, "LED_005")
}

func TestEventBuilder_Reversals(t *testing.T) {
	b := NewEventBuilder(1)

	refund := b.Refund("ORD-1", "changed mind")
	assert.Equal(t, "sale:ORD-1", refund.OriginalKey)
	assert.Equal(t, domain.EventKindRefund, refund.Kind)

	cancel := b.Cancellation("ORD-1", "")
	assert.Equal(t, domain.EventKindCancellation, cancel.Kind)
}
