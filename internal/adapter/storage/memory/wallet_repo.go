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

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	store *Store
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(store *Store) *WalletRepo {
	return &WalletRepo{store: store}
}

// GetOrCreate returns the active wallet for the pair, creating it with a zero balance.
func (r *WalletRepo) GetOrCreate(_ context.Context, companyID int64, walletType domain.WalletType) (*domain.Wallet, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.companies[companyID]; !ok {
		return nil, fmt.Errorf("insert wallet: company %d does not exist", companyID)
	}
	key := walletKey{companyID, walletType}
	if id, ok := s.active[key]; ok {
		return cloneWallet(s.wallets[id]), nil
	}

	now := s.now()
	w := &domain.Wallet{
		ID:          uuid.New(),
		CompanyID:   companyID,
		WalletType:  walletType,
		Balance:     decimal.Zero,
		CreatedAt:   now,
		LastUpdated: now,
	}
	s.wallets[w.ID] = w
	s.active[key] = w.ID
	return cloneWallet(w), nil
}

// GetByID fetches a wallet by id.
func (r *WalletRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Wallet, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	w, ok := r.store.wallets[id]
	if !ok {
		return nil, nil
	}
	return cloneWallet(w), nil
}

// GetByCompanyAndType fetches the active wallet of a type for a company.
func (r *WalletRepo) GetByCompanyAndType(_ context.Context, companyID int64, walletType domain.WalletType) (*domain.Wallet, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	id, ok := r.store.active[walletKey{companyID, walletType}]
	if !ok {
		return nil, nil
	}
	return cloneWallet(r.store.wallets[id]), nil
}

// ListByCompany returns the active wallets of a company ordered by type.
func (r *WalletRepo) ListByCompany(_ context.Context, companyID int64) ([]domain.Wallet, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var wallets []domain.Wallet
	for _, w := range r.store.wallets {
		if w.CompanyID == companyID && !w.IsRetired() {
			wallets = append(wallets, *cloneWallet(w))
		}
	}
	sort.Slice(wallets, func(i, j int) bool { return wallets[i].WalletType < wallets[j].WalletType })
	return wallets, nil
}

// ListIDs returns active wallet ids in ascending order, optionally for one company.
func (r *WalletRepo) ListIDs(_ context.Context, companyID *int64) ([]uuid.UUID, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var ids []uuid.UUID
	for id, w := range r.store.wallets {
		if w.IsRetired() || (companyID != nil && w.CompanyID != *companyID) {
			continue
		}
		ids = append(ids, id)
	}
	domain.SortWalletIDs(ids)
	return ids, nil
}

// ListMisassigned returns active wallets matching sel that are not owned by correctCompanyID.
func (r *WalletRepo) ListMisassigned(_ context.Context, sel domain.MigrationSelector, correctCompanyID int64) ([]domain.Wallet, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	types := make(map[domain.WalletType]bool, len(sel.WalletTypes))
	for _, t := range sel.WalletTypes {
		types[t] = true
	}
	ids := make(map[uuid.UUID]bool, len(sel.WalletIDs))
	for _, id := range sel.WalletIDs {
		ids[id] = true
	}

	var wallets []domain.Wallet
	for _, w := range r.store.wallets {
		switch {
		case w.IsRetired(), w.CompanyID == correctCompanyID:
			continue
		case sel.SourceCompanyID != nil && w.CompanyID != *sel.SourceCompanyID:
			continue
		case len(types) > 0 && !types[w.WalletType]:
			continue
		case len(ids) > 0 && !ids[w.ID]:
			continue
		}
		wallets = append(wallets, *cloneWallet(w))
	}
	sort.Slice(wallets, func(i, j int) bool { return compareIDs(wallets[i].ID, wallets[j].ID) < 0 })
	return wallets, nil
}

// GetByIDForUpdate locks the wallet for the rest of tx and returns its committed state.
func (r *WalletRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	if err := t.lock(ctx, id); err != nil {
		return nil, fmt.Errorf("lock wallet %s: %w", id, err)
	}
	return r.GetByID(ctx, id)
}

// AdjustBalance stages an increment of the cached balance.
func (r *WalletRepo) AdjustBalance(_ context.Context, tx pgx.Tx, id uuid.UUID, delta decimal.Decimal) error {
	return r.stageUpdate(tx, id, func(w *domain.Wallet, now func() time.Time) {
		w.Balance = w.Balance.Add(delta)
		w.LastUpdated = now()
	})
}

// SetBalance stages an overwrite of the cached balance.
func (r *WalletRepo) SetBalance(_ context.Context, tx pgx.Tx, id uuid.UUID, balance decimal.Decimal) error {
	return r.stageUpdate(tx, id, func(w *domain.Wallet, now func() time.Time) {
		w.Balance = balance
		w.LastUpdated = now()
	})
}

// Reassign stages a change of owning company. The target pair is checked now
// and again at commit, since GetOrCreate does not take wallet locks.
func (r *WalletRepo) Reassign(_ context.Context, tx pgx.Tx, id uuid.UUID, companyID int64) error {
	pairTaken := func(s *Store) error {
		w, ok := s.wallets[id]
		if !ok {
			return nil
		}
		if existing, taken := s.active[walletKey{companyID, w.WalletType}]; taken && existing != id {
			return fmt.Errorf("reassign wallet %s to company %d: %w", id, companyID, ports.ErrWalletPairTaken)
		}
		return nil
	}

	r.store.mu.RLock()
	_, companyExists := r.store.companies[companyID]
	conflict := pairTaken(r.store)
	r.store.mu.RUnlock()
	if !companyExists {
		return fmt.Errorf("reassign wallet: company %d does not exist", companyID)
	}
	if conflict != nil {
		return conflict
	}

	t, err := asTx(tx)
	if err != nil {
		return err
	}
	t.check(pairTaken)

	return r.stageUpdate(tx, id, func(w *domain.Wallet, now func() time.Time) {
		s := r.store
		delete(s.active, walletKey{w.CompanyID, w.WalletType})
		w.CompanyID = companyID
		w.LastUpdated = now()
		if !w.IsRetired() {
			s.active[walletKey{companyID, w.WalletType}] = w.ID
		}
	})
}

// Retire stages zeroing and retiring a merged wallet.
func (r *WalletRepo) Retire(_ context.Context, tx pgx.Tx, id uuid.UUID) error {
	r.store.mu.RLock()
	w, ok := r.store.wallets[id]
	retired := ok && w.IsRetired()
	r.store.mu.RUnlock()
	if retired {
		return fmt.Errorf("wallet not found or already retired: %s", id)
	}

	return r.stageUpdate(tx, id, func(w *domain.Wallet, now func() time.Time) {
		ts := now()
		if r.store.active[walletKey{w.CompanyID, w.WalletType}] == w.ID {
			delete(r.store.active, walletKey{w.CompanyID, w.WalletType})
		}
		w.Balance = decimal.Zero
		w.RetiredAt = &ts
		w.LastUpdated = ts
	})
}

func (r *WalletRepo) stageUpdate(tx pgx.Tx, id uuid.UUID, apply func(w *domain.Wallet, now func() time.Time)) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	r.store.mu.RLock()
	_, ok := r.store.wallets[id]
	r.store.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", errWalletNotFound, id)
	}

	t.stage(func(s *Store) {
		apply(s.wallets[id], s.now)
	})
	return nil
}
