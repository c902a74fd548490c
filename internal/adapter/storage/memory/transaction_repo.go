package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	store *Store
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(store *Store) *TransactionRepo {
	return &TransactionRepo{store: store}
}

// Create stages an append. The wallet's cached balance is not touched.
func (r *TransactionRepo) Create(_ context.Context, tx pgx.Tx, txn *domain.WalletTransaction) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}

	r.store.mu.RLock()
	_, walletExists := r.store.wallets[txn.WalletID]
	_, idTaken := r.store.txns[txn.ID]
	r.store.mu.RUnlock()
	if !walletExists {
		return fmt.Errorf("insert wallet transaction: %w: %s", errWalletNotFound, txn.WalletID)
	}
	if idTaken {
		return fmt.Errorf("insert wallet transaction: duplicate id %s", txn.ID)
	}

	row := cloneTransaction(txn)
	t.stage(func(s *Store) {
		s.txns[row.ID] = row
		s.byWallet[row.WalletID] = append(s.byWallet[row.WalletID], row.ID)
	})
	return nil
}

// GetByID fetches a transaction by id.
func (r *TransactionRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.WalletTransaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	t, ok := r.store.txns[id]
	if !ok {
		return nil, nil
	}
	return cloneTransaction(t), nil
}

// GetReversal returns the earliest compensating row pointing at originalID, or nil.
func (r *TransactionRepo) GetReversal(_ context.Context, originalID uuid.UUID) (*domain.WalletTransaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var found *domain.WalletTransaction
	for _, t := range r.store.txns {
		if t.OriginalTransactionID == nil || *t.OriginalTransactionID != originalID {
			continue
		}
		if found == nil || t.CreatedAt.Before(found.CreatedAt) ||
			(t.CreatedAt.Equal(found.CreatedAt) && compareIDs(t.ID, found.ID) < 0) {
			found = t
		}
	}
	if found == nil {
		return nil, nil
	}
	return cloneTransaction(found), nil
}

// ListByWallet returns a wallet's transactions newest first, ties broken by id descending.
func (r *TransactionRepo) ListByWallet(_ context.Context, walletID uuid.UUID, filter ports.TransactionFilter) ([]domain.WalletTransaction, error) {
	r.store.mu.RLock()
	var txns []domain.WalletTransaction
	for _, id := range r.store.byWallet[walletID] {
		t := r.store.txns[id]
		if filter.Type != nil && t.Type != *filter.Type {
			continue
		}
		if filter.From != nil && t.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && t.CreatedAt.After(*filter.To) {
			continue
		}
		txns = append(txns, *cloneTransaction(t))
	}
	r.store.mu.RUnlock()

	sortNewestFirst(txns)

	if filter.Offset > 0 {
		if filter.Offset >= len(txns) {
			return nil, nil
		}
		txns = txns[filter.Offset:]
	}
	if filter.Limit > 0 && len(txns) > filter.Limit {
		txns = txns[:filter.Limit]
	}
	return txns, nil
}

// SumByWallet returns the signed total of a wallet's committed transactions.
func (r *TransactionRepo) SumByWallet(_ context.Context, tx pgx.Tx, walletID uuid.UUID) (decimal.Decimal, error) {
	if _, err := asTx(tx); err != nil {
		return decimal.Zero, err
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	sum := decimal.Zero
	for _, id := range r.store.byWallet[walletID] {
		sum = sum.Add(r.store.txns[id].Amount)
	}
	return sum, nil
}

// MoveToWallet stages re-pointing every transaction of one wallet to another.
func (r *TransactionRepo) MoveToWallet(_ context.Context, tx pgx.Tx, fromWalletID, toWalletID uuid.UUID, companyID int64) (int64, error) {
	t, err := asTx(tx)
	if err != nil {
		return 0, err
	}

	r.store.mu.RLock()
	_, targetExists := r.store.wallets[toWalletID]
	moved := int64(len(r.store.byWallet[fromWalletID]))
	r.store.mu.RUnlock()
	if !targetExists {
		return 0, fmt.Errorf("move wallet transactions: %w: %s", errWalletNotFound, toWalletID)
	}

	t.stage(func(s *Store) {
		ids := s.byWallet[fromWalletID]
		for _, id := range ids {
			row := s.txns[id]
			row.WalletID = toWalletID
			row.CompanyID = companyID
		}
		if fromWalletID != toWalletID {
			s.byWallet[toWalletID] = append(s.byWallet[toWalletID], ids...)
			delete(s.byWallet, fromWalletID)
		}
	})
	return moved, nil
}

// ListUnlinked returns rows that carry an eSIM order id but no related link.
func (r *TransactionRepo) ListUnlinked(_ context.Context) ([]domain.WalletTransaction, error) {
	r.store.mu.RLock()
	var txns []domain.WalletTransaction
	for _, t := range r.store.txns {
		if t.RelatedTransactionID == nil && t.EsimOrderID != nil {
			txns = append(txns, *cloneTransaction(t))
		}
	}
	r.store.mu.RUnlock()

	sort.Slice(txns, func(i, j int) bool {
		a, b := txns[i], txns[j]
		if *a.EsimOrderID != *b.EsimOrderID {
			return *a.EsimOrderID < *b.EsimOrderID
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return compareIDs(a.ID, b.ID) < 0
	})
	return txns, nil
}

// SetRelated stages a link for a row that has none.
func (r *TransactionRepo) SetRelated(_ context.Context, tx pgx.Tx, id, relatedID uuid.UUID) (bool, error) {
	t, err := asTx(tx)
	if err != nil {
		return false, err
	}

	r.store.mu.RLock()
	row, ok := r.store.txns[id]
	unlinked := ok && row.RelatedTransactionID == nil
	r.store.mu.RUnlock()
	if !unlinked {
		return false, nil
	}

	t.stage(func(s *Store) {
		if row := s.txns[id]; row.RelatedTransactionID == nil {
			link := relatedID
			row.RelatedTransactionID = &link
		}
	})
	return true, nil
}

// Usage aggregates a company's movements per wallet type over an optional period.
func (r *TransactionRepo) Usage(_ context.Context, companyID int64, from, to *time.Time) ([]domain.UsageTotals, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	byType := make(map[domain.WalletType]*domain.UsageTotals)
	for _, t := range r.store.txns {
		if t.CompanyID != companyID {
			continue
		}
		if (from != nil && t.CreatedAt.Before(*from)) || (to != nil && t.CreatedAt.After(*to)) {
			continue
		}
		wt := r.store.wallets[t.WalletID].WalletType
		u, ok := byType[wt]
		if !ok {
			u = &domain.UsageTotals{WalletType: wt, Credits: decimal.Zero, Debits: decimal.Zero,
				Refunds: decimal.Zero, Cancellations: decimal.Zero}
			byType[wt] = u
		}
		switch t.Type {
		case domain.TransactionTypeCredit:
			u.Credits = u.Credits.Add(t.Amount)
		case domain.TransactionTypeDebit:
			u.Debits = u.Debits.Add(t.Amount)
		case domain.TransactionTypeRefund:
			u.Refunds = u.Refunds.Add(t.Amount)
		case domain.TransactionTypeCancellation:
			u.Cancellations = u.Cancellations.Add(t.Amount)
		}
		u.Count++
	}

	totals := make([]domain.UsageTotals, 0, len(byType))
	for _, u := range byType {
		totals = append(totals, *u)
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].WalletType < totals[j].WalletType })
	return totals, nil
}

func sortNewestFirst(txns []domain.WalletTransaction) {
	sort.Slice(txns, func(i, j int) bool {
		if !txns[i].CreatedAt.Equal(txns[j].CreatedAt) {
			return txns[i].CreatedAt.After(txns[j].CreatedAt)
		}
		return compareIDs(txns[i].ID, txns[j].ID) > 0
	})
}

func cloneTransaction(t *domain.WalletTransaction) *domain.WalletTransaction {
	c := *t
	if t.RelatedTransactionID != nil {
		v := *t.RelatedTransactionID
		c.RelatedTransactionID = &v
	}
	if t.OriginalTransactionID != nil {
		v := *t.OriginalTransactionID
		c.OriginalTransactionID = &v
	}
	if t.EsimOrderID != nil {
		v := *t.EsimOrderID
		c.EsimOrderID = &v
	}
	if t.EsimPlanID != nil {
		v := *t.EsimPlanID
		c.EsimPlanID = &v
	}
	if t.IdempotencyKey != nil {
		v := *t.IdempotencyKey
		c.IdempotencyKey = &v
	}
	return &c
}
