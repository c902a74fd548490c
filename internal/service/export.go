package service

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
)

var historyCSVHeader = []string{
	"id", "created_at", "wallet_id", "wallet_type", "type",
	"amount", "currency", "base_amount", "base_currency",
	"description", "related_transaction_id", "original_transaction_id", "reversed_by_transaction_id",
	"counterparty", "esim_order_id", "esim_plan_id", "idempotency_key",
}

// WriteHistoryCSV renders history entries with amounts converted to currency.
// Conversion is display-only: base_amount carries the stored value unrounded,
// and amount is rounded to cents only when it was converted.
func WriteHistoryCSV(w io.Writer, entries []domain.HistoryEntry, converter *CurrencyConverter, currency string) error {
	if currency == "" {
		currency = converter.Base()
	}
	currency = strings.ToUpper(currency)
	if _, err := converter.Rate(currency); err != nil {
		return err
	}
	converted := currency != converter.Base()

	cw := csv.NewWriter(w)
	if err := cw.Write(historyCSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, e := range entries {
		amount := e.Amount.String()
		if converted {
			display, err := converter.Convert(e.Amount, currency)
			if err != nil {
				return err
			}
			amount = display.StringFixed(2)
		}
		record := []string{
			e.ID.String(),
			e.CreatedAt.UTC().Format(time.RFC3339Nano),
			e.WalletID.String(),
			string(e.WalletType),
			string(e.Type),
			amount,
			currency,
			e.Amount.String(),
			converter.Base(),
			e.Description,
			optionalID(e.RelatedTransactionID),
			optionalID(e.OriginalTransactionID),
			optionalID(e.ReversedByID),
			counterpartyLabel(e),
			optionalString(e.EsimOrderID),
			optionalString(e.EsimPlanID),
			optionalString(e.IdempotencyKey),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func counterpartyLabel(e domain.HistoryEntry) string {
	switch {
	case e.CounterpartyName != "":
		return e.CounterpartyName
	case e.CounterpartyID != nil:
		return strconv.FormatInt(*e.CounterpartyID, 10)
	}
	return ""
}

func optionalID(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func optionalString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
