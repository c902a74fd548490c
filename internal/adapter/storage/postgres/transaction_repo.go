package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const transactionColumns = `id, wallet_id, company_id, amount, type, description,
	related_transaction_id, original_transaction_id, esim_order_id, esim_plan_id, idempotency_key, created_at`

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// Create appends a transaction within a database transaction. It never touches
// the wallet's cached balance.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.WalletTransaction) error {
	query := `INSERT INTO wallet_transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := tx.Exec(ctx, query,
		t.ID, t.WalletID, t.CompanyID, t.Amount, t.Type, t.Description,
		t.RelatedTransactionID, t.OriginalTransactionID,
		t.EsimOrderID, t.EsimPlanID, t.IdempotencyKey, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert wallet transaction: %w", err)
	}
	return nil
}

// GetByID fetches a transaction by UUID.
func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.WalletTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM wallet_transactions WHERE id = $1`

	t := &domain.WalletTransaction{}
	err := scanTransaction(r.pool.QueryRow(ctx, query, id), t)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get wallet transaction by id: %w", err)
	}
	return t, nil
}

// ListByWallet returns a wallet's transactions newest first, ties broken by id descending.
func (r *TransactionRepo) ListByWallet(ctx context.Context, walletID uuid.UUID, filter ports.TransactionFilter) ([]domain.WalletTransaction, error) {
	conditions := []string{"wallet_id = $1"}
	args := []any{walletID}
	argIdx := 2

	if filter.Type != nil {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argIdx))
		args = append(args, *filter.Type)
		argIdx++
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, *filter.From)
		argIdx++
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argIdx))
		args = append(args, *filter.To)
		argIdx++
	}

	query := `SELECT ` + transactionColumns + ` FROM wallet_transactions WHERE ` +
		strings.Join(conditions, " AND ") + ` ORDER BY created_at DESC, id DESC`
	switch {
	case filter.Limit > 0:
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
		args = append(args, filter.Limit, filter.Offset)
	case filter.Offset > 0:
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, filter.Offset)
	}

	return r.queryTransactions(ctx, query, args...)
}

// GetReversal returns the compensating row pointing at originalID, or nil.
func (r *TransactionRepo) GetReversal(ctx context.Context, originalID uuid.UUID) (*domain.WalletTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM wallet_transactions
		WHERE original_transaction_id = $1 ORDER BY created_at, id LIMIT 1`

	t := &domain.WalletTransaction{}
	err := scanTransaction(r.pool.QueryRow(ctx, query, originalID), t)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get reversal of transaction: %w", err)
	}
	return t, nil
}

// SumByWallet returns the signed total of a wallet's transactions within a transaction.
func (r *TransactionRepo) SumByWallet(ctx context.Context, tx pgx.Tx, walletID uuid.UUID) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM wallet_transactions WHERE wallet_id = $1`

	var sum decimal.Decimal
	if err := tx.QueryRow(ctx, query, walletID).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("sum wallet transactions: %w", err)
	}
	return sum, nil
}

// MoveToWallet re-points every transaction of one wallet to another wallet and owner.
func (r *TransactionRepo) MoveToWallet(ctx context.Context, tx pgx.Tx, fromWalletID, toWalletID uuid.UUID, companyID int64) (int64, error) {
	query := `UPDATE wallet_transactions SET wallet_id = $1, company_id = $2 WHERE wallet_id = $3`

	tag, err := tx.Exec(ctx, query, toWalletID, companyID, fromWalletID)
	if err != nil {
		return 0, fmt.Errorf("move wallet transactions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListUnlinked returns legacy rows that carry an eSIM order id but no related link.
func (r *TransactionRepo) ListUnlinked(ctx context.Context) ([]domain.WalletTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM wallet_transactions
		WHERE related_transaction_id IS NULL AND esim_order_id IS NOT NULL
		ORDER BY esim_order_id, created_at, id`

	return r.queryTransactions(ctx, query)
}

// SetRelated sets the related link of a row that has none.
func (r *TransactionRepo) SetRelated(ctx context.Context, tx pgx.Tx, id, relatedID uuid.UUID) (bool, error) {
	query := `UPDATE wallet_transactions SET related_transaction_id = $1
		WHERE id = $2 AND related_transaction_id IS NULL`

	tag, err := tx.Exec(ctx, query, relatedID, id)
	if err != nil {
		return false, fmt.Errorf("set related transaction: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Usage aggregates a company's movements per wallet type over an optional period.
func (r *TransactionRepo) Usage(ctx context.Context, companyID int64, from, to *time.Time) ([]domain.UsageTotals, error) {
	conditions := []string{"t.company_id = $1"}
	args := []any{companyID}
	argIdx := 2

	if from != nil {
		conditions = append(conditions, fmt.Sprintf("t.created_at >= $%d", argIdx))
		args = append(args, *from)
		argIdx++
	}
	if to != nil {
		conditions = append(conditions, fmt.Sprintf("t.created_at <= $%d", argIdx))
		args = append(args, *to)
	}

	query := `SELECT
		w.wallet_type,
		COALESCE(SUM(t.amount) FILTER (WHERE t.type = 'credit'), 0) AS credits,
		COALESCE(SUM(t.amount) FILTER (WHERE t.type = 'debit'), 0) AS debits,
		COALESCE(SUM(t.amount) FILTER (WHERE t.type = 'refund'), 0) AS refunds,
		COALESCE(SUM(t.amount) FILTER (WHERE t.type = 'cancellation'), 0) AS cancellations,
		COUNT(*) AS count
		FROM wallet_transactions t JOIN wallets w ON w.id = t.wallet_id
		WHERE ` + strings.Join(conditions, " AND ") + `
		GROUP BY w.wallet_type ORDER BY w.wallet_type`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("company usage: %w", err)
	}
	defer rows.Close()

	var totals []domain.UsageTotals
	for rows.Next() {
		u := domain.UsageTotals{}
		if err := rows.Scan(&u.WalletType, &u.Credits, &u.Debits, &u.Refunds, &u.Cancellations, &u.Count); err != nil {
			return nil, fmt.Errorf("scan usage row: %w", err)
		}
		totals = append(totals, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage rows: %w", err)
	}
	return totals, nil
}

func (r *TransactionRepo) queryTransactions(ctx context.Context, query string, args ...any) ([]domain.WalletTransaction, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list wallet transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.WalletTransaction
	for rows.Next() {
		t := domain.WalletTransaction{}
		if err := scanTransaction(rows, &t); err != nil {
			return nil, fmt.Errorf("scan wallet transaction row: %w", err)
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet transaction rows: %w", err)
	}
	return txns, nil
}

// scanTransaction is a helper to scan a single row into a WalletTransaction.
func scanTransaction(row pgx.Row, t *domain.WalletTransaction) error {
	return row.Scan(
		&t.ID, &t.WalletID, &t.CompanyID, &t.Amount, &t.Type, &t.Description,
		&t.RelatedTransactionID, &t.OriginalTransactionID,
		&t.EsimOrderID, &t.EsimPlanID, &t.IdempotencyKey, &t.CreatedAt,
	)
}
