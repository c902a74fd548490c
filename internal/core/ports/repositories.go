package ports

import (
	"context"
	"errors"
	"time"

	"wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// CompanyRepository defines persistence operations for companies.
type CompanyRepository interface {
	Create(ctx context.Context, company *domain.Company) error
	GetByID(ctx context.Context, id int64) (*domain.Company, error)
}

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type WalletRepository interface {
	// GetOrCreate returns the non-retired wallet for the pair, creating it with a zero balance.
	GetOrCreate(ctx context.Context, companyID int64, walletType domain.WalletType) (*domain.Wallet, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	GetByCompanyAndType(ctx context.Context, companyID int64, walletType domain.WalletType) (*domain.Wallet, error)
	ListByCompany(ctx context.Context, companyID int64) ([]domain.Wallet, error)
	// ListIDs returns non-retired wallet ids, optionally restricted to one company.
	ListIDs(ctx context.Context, companyID *int64) ([]uuid.UUID, error)
	// ListMisassigned returns non-retired wallets matching sel whose owner is not correctCompanyID.
	ListMisassigned(ctx context.Context, sel domain.MigrationSelector, correctCompanyID int64) ([]domain.Wallet, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error)
	AdjustBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, delta decimal.Decimal) error
	SetBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, balance decimal.Decimal) error
	Reassign(ctx context.Context, tx pgx.Tx, id uuid.UUID, companyID int64) error
	// Retire zeroes the balance and marks the wallet as merged away.
	Retire(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
}

// TransactionRepository defines persistence operations for wallet transactions.
// Rows are append-only; only ownership pointers and a missing related link may change.
type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, transaction *domain.WalletTransaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WalletTransaction, error)
	ListByWallet(ctx context.Context, walletID uuid.UUID, filter TransactionFilter) ([]domain.WalletTransaction, error)
	// GetReversal returns the compensating row whose original is originalID, or nil.
	GetReversal(ctx context.Context, originalID uuid.UUID) (*domain.WalletTransaction, error)
	SumByWallet(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) (decimal.Decimal, error)
	// MoveToWallet re-points every transaction of fromWalletID to toWalletID and companyID.
	MoveToWallet(ctx context.Context, tx pgx.Tx, fromWalletID, toWalletID uuid.UUID, companyID int64) (int64, error)
	// ListUnlinked returns rows with an eSIM order id but no related link.
	ListUnlinked(ctx context.Context) ([]domain.WalletTransaction, error)
	// SetRelated links id to relatedID if it has no link yet. Returns false if already linked.
	SetRelated(ctx context.Context, tx pgx.Tx, id, relatedID uuid.UUID) (bool, error)
	Usage(ctx context.Context, companyID int64, from, to *time.Time) ([]domain.UsageTotals, error)
}

// TransactionFilter holds filter + pagination for listing wallet transactions.
type TransactionFilter struct {
	Type   *domain.TransactionType
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

// ErrIdempotencyKeyExists is returned by IdempotencyRepository.Create when
// another writer already recorded the key.
var ErrIdempotencyKeyExists = errors.New("idempotency key already exists")

// ErrWalletPairTaken is returned when a wallet would become the second active
// wallet of a (company, wallet type) pair.
var ErrWalletPairTaken = errors.New("company already has an active wallet of this type")

// IdempotencyRepository defines persistence for idempotency logs (DB backup).
type IdempotencyRepository interface {
	Create(ctx context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error
	Get(ctx context.Context, key string) (*domain.IdempotencyLog, error)
}

// AuditRepository persists audit logs.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
