package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

const walletColumns = `id, company_id, wallet_type, balance, created_at, last_updated, retired_at`

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// GetOrCreate returns the active wallet for (companyID, walletType), inserting
// a zero-balance wallet first if none exists.
func (r *WalletRepo) GetOrCreate(ctx context.Context, companyID int64, walletType domain.WalletType) (*domain.Wallet, error) {
	query := `INSERT INTO wallets (id, company_id, wallet_type, balance, created_at, last_updated)
		VALUES ($1, $2, $3, 0, NOW(), NOW())
		ON CONFLICT (company_id, wallet_type) WHERE retired_at IS NULL DO NOTHING`

	if _, err := r.pool.Exec(ctx, query, uuid.New(), companyID, walletType); err != nil {
		return nil, fmt.Errorf("insert wallet: %w", err)
	}

	w, err := r.GetByCompanyAndType(ctx, companyID, walletType)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, fmt.Errorf("wallet %d/%s missing after insert", companyID, walletType)
	}
	return w, nil
}

// GetByID fetches a wallet by its UUID (without locking).
func (r *WalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1`

	w, err := scanWallet(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get wallet by id: %w", err)
	}
	return w, nil
}

// GetByCompanyAndType fetches the active wallet of a type for a company (non-locking read).
func (r *WalletRepo) GetByCompanyAndType(ctx context.Context, companyID int64, walletType domain.WalletType) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets
		WHERE company_id = $1 AND wallet_type = $2 AND retired_at IS NULL`

	w, err := scanWallet(r.pool.QueryRow(ctx, query, companyID, walletType))
	if err != nil {
		return nil, fmt.Errorf("get wallet by company and type: %w", err)
	}
	return w, nil
}

// ListByCompany returns the active wallets of a company ordered by type.
func (r *WalletRepo) ListByCompany(ctx context.Context, companyID int64) ([]domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets
		WHERE company_id = $1 AND retired_at IS NULL ORDER BY wallet_type`

	return r.queryWallets(ctx, query, companyID)
}

// ListIDs returns active wallet ids in ascending order, optionally for one company.
func (r *WalletRepo) ListIDs(ctx context.Context, companyID *int64) ([]uuid.UUID, error) {
	query := `SELECT id FROM wallets WHERE retired_at IS NULL ORDER BY id`
	var args []any
	if companyID != nil {
		query = `SELECT id FROM wallets WHERE retired_at IS NULL AND company_id = $1 ORDER BY id`
		args = append(args, *companyID)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list wallet ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan wallet id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet ids: %w", err)
	}
	return ids, nil
}

// ListMisassigned returns active wallets matching sel that are not owned by correctCompanyID.
func (r *WalletRepo) ListMisassigned(ctx context.Context, sel domain.MigrationSelector, correctCompanyID int64) ([]domain.Wallet, error) {
	conditions := []string{"retired_at IS NULL", "company_id <> $1"}
	args := []any{correctCompanyID}
	argIdx := 2

	if sel.SourceCompanyID != nil {
		conditions = append(conditions, fmt.Sprintf("company_id = $%d", argIdx))
		args = append(args, *sel.SourceCompanyID)
		argIdx++
	}
	if len(sel.WalletTypes) > 0 {
		types := make([]string, len(sel.WalletTypes))
		for i, t := range sel.WalletTypes {
			types[i] = string(t)
		}
		conditions = append(conditions, fmt.Sprintf("wallet_type = ANY($%d)", argIdx))
		args = append(args, types)
		argIdx++
	}
	if len(sel.WalletIDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("id = ANY($%d)", argIdx))
		args = append(args, sel.WalletIDs)
	}

	query := `SELECT ` + walletColumns + ` FROM wallets WHERE ` +
		strings.Join(conditions, " AND ") + ` ORDER BY id`

	return r.queryWallets(ctx, query, args...)
}

// GetByIDForUpdate fetches a wallet by ID with pessimistic locking.
// This MUST be called within a transaction.
func (r *WalletRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1 FOR UPDATE`

	w, err := scanWallet(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get wallet for update by id: %w", err)
	}
	return w, nil
}

// AdjustBalance increments a wallet's cached balance by delta within a transaction.
func (r *WalletRepo) AdjustBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, delta decimal.Decimal) error {
	query := `UPDATE wallets SET balance = balance + $1, last_updated = NOW() WHERE id = $2`

	tag, err := tx.Exec(ctx, query, delta, id)
	if err != nil {
		return fmt.Errorf("adjust wallet balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", id)
	}
	return nil
}

// SetBalance overwrites a wallet's cached balance within a transaction.
func (r *WalletRepo) SetBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, balance decimal.Decimal) error {
	query := `UPDATE wallets SET balance = $1, last_updated = NOW() WHERE id = $2`

	tag, err := tx.Exec(ctx, query, balance, id)
	if err != nil {
		return fmt.Errorf("set wallet balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", id)
	}
	return nil
}

// Reassign moves a wallet to another owning company within a transaction.
func (r *WalletRepo) Reassign(ctx context.Context, tx pgx.Tx, id uuid.UUID, companyID int64) error {
	query := `UPDATE wallets SET company_id = $1, last_updated = NOW() WHERE id = $2`

	tag, err := tx.Exec(ctx, query, companyID, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("reassign wallet %s: %w", id, ports.ErrWalletPairTaken)
		}
		return fmt.Errorf("reassign wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found: %s", id)
	}
	return nil
}

// Retire zeroes a merged wallet and marks it retired within a transaction.
func (r *WalletRepo) Retire(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	query := `UPDATE wallets SET balance = 0, retired_at = NOW(), last_updated = NOW()
		WHERE id = $1 AND retired_at IS NULL`

	tag, err := tx.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("retire wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("wallet not found or already retired: %s", id)
	}
	return nil
}

func (r *WalletRepo) queryWallets(ctx context.Context, query string, args ...any) ([]domain.Wallet, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer rows.Close()

	var wallets []domain.Wallet
	for rows.Next() {
		w := domain.Wallet{}
		if err := rows.Scan(&w.ID, &w.CompanyID, &w.WalletType, &w.Balance,
			&w.CreatedAt, &w.LastUpdated, &w.RetiredAt); err != nil {
			return nil, fmt.Errorf("scan wallet row: %w", err)
		}
		wallets = append(wallets, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet rows: %w", err)
	}
	return wallets, nil
}

// scanWallet scans a single wallet row, mapping no rows to nil.
func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	err := row.Scan(&w.ID, &w.CompanyID, &w.WalletType, &w.Balance,
		&w.CreatedAt, &w.LastUpdated, &w.RetiredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return w, nil
}
