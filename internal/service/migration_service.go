package service

import (
	"context"
	"errors"
	"fmt"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MigrationServiceImpl implements ports.MigrationService.
type MigrationServiceImpl struct {
	companyRepo ports.CompanyRepository
	walletRepo  ports.WalletRepository
	txRepo      ports.TransactionRepository
	transactor  ports.DBTransactor
	rebalancer  ports.RebalanceService
	log         zerolog.Logger
}

// NewMigrationService creates a new MigrationServiceImpl.
func NewMigrationService(
	companyRepo ports.CompanyRepository,
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	transactor ports.DBTransactor,
	rebalancer ports.RebalanceService,
	log zerolog.Logger,
) *MigrationServiceImpl {
	return &MigrationServiceImpl{
		companyRepo: companyRepo,
		walletRepo:  walletRepo,
		txRepo:      txRepo,
		transactor:  transactor,
		rebalancer:  rebalancer,
		log:         log,
	}
}

type migrationOutcome int

const (
	outcomeSkipped migrationOutcome = iota
	outcomeMerged
	outcomeReassigned
)

// Migrate moves the selected wallets to correctCompanyID. A wallet whose
// (company, type) pair already exists under the correct company is merged
// into it and retired; otherwise it is reassigned in place. The correct
// company is rebalanced afterwards. Running it twice changes nothing.
func (s *MigrationServiceImpl) Migrate(ctx context.Context, sel domain.MigrationSelector, correctCompanyID int64) (*domain.MigrationResult, error) {
	if sel.SourceCompanyID == nil && len(sel.WalletIDs) == 0 {
		return nil, apperror.Validation("a source company or wallet ids are required")
	}
	for _, wt := range sel.WalletTypes {
		if !wt.Valid() {
			return nil, apperror.ErrInvalidWalletType(string(wt))
		}
	}

	company, err := s.companyRepo.GetByID(ctx, correctCompanyID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get company: %w", err))
	}
	if company == nil {
		return nil, apperror.ErrNotFound(fmt.Sprintf("company %d", correctCompanyID))
	}

	wallets, err := s.walletRepo.ListMisassigned(ctx, sel, correctCompanyID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list misassigned wallets: %w", err))
	}

	result := &domain.MigrationResult{}
	for _, w := range wallets {
		outcome, err := s.migrateWallet(ctx, w, correctCompanyID)
		if err != nil {
			return nil, err
		}
		switch outcome {
		case outcomeMerged:
			result.Migrated++
		case outcomeReassigned:
			result.Created++
		}
	}

	if _, err := s.rebalancer.Rebalance(ctx, domain.RebalanceScope{CompanyID: &correctCompanyID}); err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("company_id", correctCompanyID).
		Int("migrated", result.Migrated).
		Int("created", result.Created).
		Msg("wallet ownership migrated")

	return result, nil
}

func (s *MigrationServiceImpl) migrateWallet(ctx context.Context, src domain.Wallet, correctCompanyID int64) (migrationOutcome, error) {
	target, err := s.walletRepo.GetByCompanyAndType(ctx, correctCompanyID, src.WalletType)
	if err != nil {
		return outcomeSkipped, apperror.InternalError(fmt.Errorf("get target wallet: %w", err))
	}

	ids := []uuid.UUID{src.ID}
	if target != nil {
		ids = append(ids, target.ID)
	}
	domain.SortWalletIDs(ids)

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return outcomeSkipped, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	locked := make(map[uuid.UUID]*domain.Wallet, len(ids))
	for _, id := range ids {
		w, err := s.walletRepo.GetByIDForUpdate(ctx, dbTx, id)
		if err != nil {
			return outcomeSkipped, lockError(id, err)
		}
		locked[id] = w
	}

	current := locked[src.ID]
	// Another run already handled this wallet.
	if current == nil || current.IsRetired() || current.CompanyID == correctCompanyID {
		return outcomeSkipped, nil
	}

	outcome := outcomeReassigned
	if target != nil {
		t := locked[target.ID]
		if t == nil || t.IsRetired() || t.CompanyID != correctCompanyID {
			return outcomeSkipped, apperror.Validation(fmt.Sprintf("target wallet %s changed during migration, retry", target.ID))
		}

		moved, err := s.txRepo.SumByWallet(ctx, dbTx, src.ID)
		if err != nil {
			return outcomeSkipped, apperror.InternalError(fmt.Errorf("sum source wallet: %w", err))
		}
		if _, err := s.txRepo.MoveToWallet(ctx, dbTx, src.ID, target.ID, correctCompanyID); err != nil {
			return outcomeSkipped, apperror.InternalError(fmt.Errorf("move transactions: %w", err))
		}
		if err := s.walletRepo.AdjustBalance(ctx, dbTx, target.ID, moved); err != nil {
			return outcomeSkipped, apperror.InternalError(fmt.Errorf("adjust target balance: %w", err))
		}
		if err := s.walletRepo.Retire(ctx, dbTx, src.ID); err != nil {
			return outcomeSkipped, apperror.InternalError(fmt.Errorf("retire source wallet: %w", err))
		}
		outcome = outcomeMerged
	} else {
		if err := s.walletRepo.Reassign(ctx, dbTx, src.ID, correctCompanyID); err != nil {
			return outcomeSkipped, pairError(src, correctCompanyID, fmt.Errorf("reassign wallet: %w", err))
		}
		if _, err := s.txRepo.MoveToWallet(ctx, dbTx, src.ID, src.ID, correctCompanyID); err != nil {
			return outcomeSkipped, apperror.InternalError(fmt.Errorf("reassign transactions: %w", err))
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return outcomeSkipped, pairError(src, correctCompanyID, fmt.Errorf("commit tx: %w", err))
	}

	s.log.Debug().
		Str("wallet_id", src.ID.String()).
		Int64("from_company_id", src.CompanyID).
		Int64("to_company_id", correctCompanyID).
		Bool("merged", outcome == outcomeMerged).
		Msg("wallet migrated")

	return outcome, nil
}

// pairError reports a target pair created after the lookup as retryable.
func pairError(src domain.Wallet, correctCompanyID int64, err error) error {
	if errors.Is(err, ports.ErrWalletPairTaken) {
		return apperror.Validation(fmt.Sprintf("company %d gained a %s wallet during migration, retry", correctCompanyID, src.WalletType))
	}
	return apperror.InternalError(err)
}
