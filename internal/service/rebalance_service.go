package service

import (
	"context"
	"fmt"
	"sync"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// RebalanceServiceImpl implements ports.RebalanceService.
type RebalanceServiceImpl struct {
	companyRepo ports.CompanyRepository
	walletRepo  ports.WalletRepository
	txRepo      ports.TransactionRepository
	transactor  ports.DBTransactor
	threshold   decimal.Decimal
	workers     int
	log         zerolog.Logger
}

// NewRebalanceService creates a new RebalanceServiceImpl. Drifts larger than
// threshold are logged as consistency errors.
func NewRebalanceService(
	companyRepo ports.CompanyRepository,
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	transactor ports.DBTransactor,
	threshold decimal.Decimal,
	workers int,
	log zerolog.Logger,
) *RebalanceServiceImpl {
	if workers < 1 {
		workers = 1
	}
	return &RebalanceServiceImpl{
		companyRepo: companyRepo,
		walletRepo:  walletRepo,
		txRepo:      txRepo,
		transactor:  transactor,
		threshold:   threshold,
		workers:     workers,
		log:         log,
	}
}

// Rebalance recomputes every in-scope wallet's cached balance from its
// transaction log. Each wallet is corrected in its own transaction.
func (s *RebalanceServiceImpl) Rebalance(ctx context.Context, scope domain.RebalanceScope) (*domain.RebalanceResult, error) {
	if scope.CompanyID != nil {
		company, err := s.companyRepo.GetByID(ctx, *scope.CompanyID)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("get company: %w", err))
		}
		if company == nil {
			return nil, apperror.ErrNotFound(fmt.Sprintf("company %d", *scope.CompanyID))
		}
	}

	ids, err := s.walletRepo.ListIDs(ctx, scope.CompanyID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list wallets: %w", err))
	}

	result := &domain.RebalanceResult{Total: len(ids)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, id := range ids {
		g.Go(func() error {
			drift, err := s.rebalanceWallet(gctx, id)
			if err != nil {
				return err
			}
			if drift == nil {
				return nil
			}
			mu.Lock()
			result.Updated++
			result.Drifts = append(result.Drifts, *drift)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperror.InternalError(err)
	}

	s.log.Info().
		Int("updated", result.Updated).
		Int("total", result.Total).
		Msg("rebalance complete")

	return result, nil
}

// rebalanceWallet returns the corrected drift, or nil when the cache was right.
func (s *RebalanceServiceImpl) rebalanceWallet(ctx context.Context, id uuid.UUID) (*domain.WalletDrift, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetByIDForUpdate(ctx, dbTx, id)
	if err != nil {
		return nil, fmt.Errorf("lock wallet %s: %w", id, err)
	}
	// Merged away between listing and locking.
	if wallet == nil || wallet.IsRetired() {
		return nil, nil
	}

	projected, err := s.txRepo.SumByWallet(ctx, dbTx, id)
	if err != nil {
		return nil, fmt.Errorf("sum wallet %s: %w", id, err)
	}
	if projected.Equal(wallet.Balance) {
		return nil, nil
	}

	if err := s.walletRepo.SetBalance(ctx, dbTx, id, projected); err != nil {
		return nil, fmt.Errorf("set balance %s: %w", id, err)
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit wallet %s: %w", id, err)
	}

	drift := &domain.WalletDrift{
		WalletID:  id,
		CompanyID: wallet.CompanyID,
		Cached:    wallet.Balance,
		Projected: projected,
	}
	if drift.Amount().GreaterThan(s.threshold) {
		s.log.Error().
			Err(apperror.ErrConsistencyDrift(id.String(), drift.Amount().String())).
			Str("wallet_id", id.String()).
			Int64("company_id", wallet.CompanyID).
			Str("cached", wallet.Balance.String()).
			Str("projected", projected.String()).
			Msg("wallet balance drifted from transaction log")
	} else {
		s.log.Debug().
			Str("wallet_id", id.String()).
			Str("drift", drift.Amount().String()).
			Msg("wallet balance corrected")
	}
	return drift, nil
}
