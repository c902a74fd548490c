package service

import (
	"sort"
	"strings"

	"wallet-ledger/pkg/apperror"

	"github.com/shopspring/decimal"
)

// CurrencyConverter converts base-currency amounts for display. Ledger
// amounts are always stored in the base currency.
type CurrencyConverter struct {
	base  string
	rates map[string]decimal.Decimal
}

// NewCurrencyConverter creates a converter. rates maps an upper-case code to
// units per one base unit; the base currency is added with rate 1.
func NewCurrencyConverter(base string, rates map[string]decimal.Decimal) *CurrencyConverter {
	base = strings.ToUpper(base)
	copied := make(map[string]decimal.Decimal, len(rates)+1)
	for code, rate := range rates {
		copied[strings.ToUpper(code)] = rate
	}
	copied[base] = decimal.NewFromInt(1)
	return &CurrencyConverter{base: base, rates: copied}
}

// Base returns the ledger's base currency.
func (c *CurrencyConverter) Base() string {
	return c.base
}

// Convert returns amount in currency, rounded to two places. An empty
// currency means the base currency.
func (c *CurrencyConverter) Convert(amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	rate, err := c.Rate(currency)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Mul(rate).Round(2), nil
}

// Rate returns the display rate of currency.
func (c *CurrencyConverter) Rate(currency string) (decimal.Decimal, error) {
	if currency == "" {
		currency = c.base
	}
	rate, ok := c.rates[strings.ToUpper(currency)]
	if !ok {
		return decimal.Zero, apperror.Validation("unsupported currency " + currency)
	}
	return rate, nil
}

// Supported lists the convertible currency codes.
func (c *CurrencyConverter) Supported() []string {
	codes := make([]string, 0, len(c.rates))
	for code := range c.rates {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
