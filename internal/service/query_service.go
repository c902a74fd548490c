package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// maxRingWalk bounds the sibling walk of a corrupted or very large group.
const maxRingWalk = 64

// QueryServiceImpl implements ports.QueryService.
type QueryServiceImpl struct {
	companyRepo ports.CompanyRepository
	walletRepo  ports.WalletRepository
	txRepo      ports.TransactionRepository
	converter   *CurrencyConverter
	log         zerolog.Logger
}

// NewQueryService creates a new QueryServiceImpl.
func NewQueryService(
	companyRepo ports.CompanyRepository,
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	converter *CurrencyConverter,
	log zerolog.Logger,
) *QueryServiceImpl {
	return &QueryServiceImpl{
		companyRepo: companyRepo,
		walletRepo:  walletRepo,
		txRepo:      txRepo,
		converter:   converter,
		log:         log,
	}
}

// BalancesByType returns the cached balance of each wallet type of a
// company. Types without a wallet report zero.
func (s *QueryServiceImpl) BalancesByType(ctx context.Context, companyID int64) (map[domain.WalletType]decimal.Decimal, error) {
	if _, err := s.requireCompany(ctx, companyID); err != nil {
		return nil, err
	}

	wallets, err := s.walletRepo.ListByCompany(ctx, companyID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list wallets: %w", err))
	}

	balances := make(map[domain.WalletType]decimal.Decimal, len(domain.WalletTypes))
	for _, wt := range domain.WalletTypes {
		balances[wt] = decimal.Zero
	}
	for _, w := range wallets {
		if w.IsRetired() {
			continue
		}
		balances[w.WalletType] = balances[w.WalletType].Add(w.Balance)
	}
	return balances, nil
}

// TransactionHistory lists one wallet's transactions, newest first, with the
// counterparty company resolved from the posting group.
func (s *QueryServiceImpl) TransactionHistory(ctx context.Context, companyID int64, walletType domain.WalletType, filter ports.TransactionFilter) ([]domain.HistoryEntry, error) {
	if !walletType.Valid() {
		return nil, apperror.ErrInvalidWalletType(string(walletType))
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, apperror.Validation("from must not be after to")
	}
	if _, err := s.requireCompany(ctx, companyID); err != nil {
		return nil, err
	}

	wallet, err := s.walletRepo.GetByCompanyAndType(ctx, companyID, walletType)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return []domain.HistoryEntry{}, nil
	}

	txns, err := s.txRepo.ListByWallet(ctx, wallet.ID, filter)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list transactions: %w", err))
	}

	names := make(map[int64]string)
	entries := make([]domain.HistoryEntry, 0, len(txns))
	for _, t := range txns {
		entry := domain.HistoryEntry{WalletTransaction: t, WalletType: walletType}
		counterparty, err := s.counterparty(ctx, &t, companyID)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("resolve counterparty: %w", err))
		}
		if counterparty != nil {
			entry.CounterpartyID = counterparty
			name, ok := names[*counterparty]
			if !ok {
				company, err := s.companyRepo.GetByID(ctx, *counterparty)
				if err != nil {
					return nil, apperror.InternalError(fmt.Errorf("get counterparty company: %w", err))
				}
				if company != nil {
					name = company.Name
				}
				names[*counterparty] = name
			}
			entry.CounterpartyName = name
		}
		if !t.IsReversal() {
			reversal, err := s.txRepo.GetReversal(ctx, t.ID)
			if err != nil {
				return nil, apperror.InternalError(fmt.Errorf("resolve reversal: %w", err))
			}
			if reversal != nil {
				id := reversal.ID
				entry.ReversedByID = &id
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// counterparty walks the sibling ring to the first leg owned by another
// company. It returns nil for unlinked rows and internal transfers.
func (s *QueryServiceImpl) counterparty(ctx context.Context, t *domain.WalletTransaction, companyID int64) (*int64, error) {
	seen := map[uuid.UUID]bool{t.ID: true}
	next := t.RelatedTransactionID
	for steps := 0; next != nil && !seen[*next] && steps < maxRingWalk; steps++ {
		seen[*next] = true
		sibling, err := s.txRepo.GetByID(ctx, *next)
		if err != nil {
			return nil, err
		}
		if sibling == nil {
			return nil, nil
		}
		if sibling.CompanyID != companyID {
			id := sibling.CompanyID
			return &id, nil
		}
		next = sibling.RelatedTransactionID
	}
	return nil, nil
}

// CompanyUsage totals each wallet type's movements between from and to.
func (s *QueryServiceImpl) CompanyUsage(ctx context.Context, companyID int64, from, to *time.Time) ([]domain.UsageTotals, error) {
	if from != nil && to != nil && from.After(*to) {
		return nil, apperror.Validation("from must not be after to")
	}
	if _, err := s.requireCompany(ctx, companyID); err != nil {
		return nil, err
	}

	totals, err := s.txRepo.Usage(ctx, companyID, from, to)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("company usage: %w", err))
	}
	if totals == nil {
		totals = []domain.UsageTotals{}
	}
	return totals, nil
}

// ExportCSV writes entries as CSV in currency. See WriteHistoryCSV.
func (s *QueryServiceImpl) ExportCSV(w io.Writer, entries []domain.HistoryEntry, currency string) error {
	return WriteHistoryCSV(w, entries, s.converter, currency)
}

func (s *QueryServiceImpl) requireCompany(ctx context.Context, companyID int64) (*domain.Company, error) {
	company, err := s.companyRepo.GetByID(ctx, companyID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get company: %w", err))
	}
	if company == nil {
		return nil, apperror.ErrNotFound(fmt.Sprintf("company %d", companyID))
	}
	return company, nil
}

// UsagePeriodStart maps a named reporting period to its start relative to
// now. "all" and "" mean no lower bound.
func UsagePeriodStart(period string, now time.Time) (*time.Time, error) {
	var start time.Time
	switch period {
	case "day":
		start = now.AddDate(0, 0, -1)
	case "week":
		start = now.AddDate(0, 0, -7)
	case "month":
		start = now.AddDate(0, -1, 0)
	case "all", "":
		return nil, nil
	default:
		return nil, apperror.Validation("invalid period: must be day, week, month, or all")
	}
	return &start, nil
}
