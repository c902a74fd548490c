package postgres

import (
	"context"
	"testing"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func newTestTransaction(walletID uuid.UUID) *domain.WalletTransaction {
	related := uuid.New()
	return &domain.WalletTransaction{
		ID:                   uuid.New(),
		WalletID:             walletID,
		CompanyID:            42,
		Amount:               decimal.RequireFromString("-50.00"),
		Type:                 domain.TransactionTypeDebit,
		Description:          "eSIM purchase",
		RelatedTransactionID: &related,
		EsimOrderID:          strPtr("ORD-001"),
		EsimPlanID:           strPtr("PLAN-EU-5GB"),
		IdempotencyKey:       strPtr("sale:ORD-001"),
		CreatedAt:            time.Now().UTC().Truncate(time.Microsecond),
	}
}

func transactionColumnNames() []string {
	return []string{"id", "wallet_id", "company_id", "amount", "type", "description",
		"related_transaction_id", "original_transaction_id", "esim_order_id", "esim_plan_id",
		"idempotency_key", "created_at"}
}

func addTransactionRow(rows *pgxmock.Rows, t *domain.WalletTransaction) *pgxmock.Rows {
	return rows.AddRow(
		t.ID, t.WalletID, t.CompanyID, t.Amount, t.Type, t.Description,
		t.RelatedTransactionID, t.OriginalTransactionID,
		t.EsimOrderID, t.EsimPlanID, t.IdempotencyKey, t.CreatedAt,
	)
}

func TestTransactionRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction(uuid.New())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO wallet_transactions").
		WithArgs(txn.ID, txn.WalletID, txn.CompanyID, txn.Amount, txn.Type, txn.Description,
			txn.RelatedTransactionID, txn.OriginalTransactionID,
			txn.EsimOrderID, txn.EsimPlanID, txn.IdempotencyKey, txn.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), tx, txn)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction(uuid.New())

	mock.ExpectQuery("SELECT .+ FROM wallet_transactions WHERE id").
		WithArgs(txn.ID).
		WillReturnRows(addTransactionRow(pgxmock.NewRows(transactionColumnNames()), txn))

	result, err := repo.GetByID(context.Background(), txn.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, txn.ID, result.ID)
	assert.True(t, txn.Amount.Equal(result.Amount))
	assert.Equal(t, *txn.RelatedTransactionID, *result.RelatedTransactionID)
	assert.Nil(t, result.OriginalTransactionID)
	assert.Equal(t, "ORD-001", *result.EsimOrderID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	id := uuid.New()

	mock.ExpectQuery("SELECT .+ FROM wallet_transactions WHERE id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(transactionColumnNames()))

	result, err := repo.GetByID(context.Background(), id)
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_ListByWallet_FiltersAndOrder(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	walletID := uuid.New()
	newer := newTestTransaction(walletID)
	older := newTestTransaction(walletID)
	older.CreatedAt = newer.CreatedAt.Add(-time.Hour)
	debit := domain.TransactionTypeDebit
	from := newer.CreatedAt.Add(-24 * time.Hour)

	rows := pgxmock.NewRows(transactionColumnNames())
	addTransactionRow(rows, newer)
	addTransactionRow(rows, older)

	mock.ExpectQuery(`SELECT .+ FROM wallet_transactions WHERE wallet_id = \$1 AND type = \$2 AND created_at >= \$3 ORDER BY created_at DESC, id DESC LIMIT \$4 OFFSET \$5`).
		WithArgs(walletID, debit, from, 20, 0).
		WillReturnRows(rows)

	result, err := repo.ListByWallet(context.Background(), walletID, ports.TransactionFilter{
		Type:  &debit,
		From:  &from,
		Limit: 20,
	})
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, newer.ID, result[0].ID)
	assert.Equal(t, older.ID, result[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_ListByWallet_OffsetWithoutLimit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	walletID := uuid.New()

	mock.ExpectQuery(`SELECT .+ FROM wallet_transactions WHERE wallet_id = \$1 ORDER BY created_at DESC, id DESC OFFSET \$2$`).
		WithArgs(walletID, 10).
		WillReturnRows(pgxmock.NewRows(transactionColumnNames()))

	result, err := repo.ListByWallet(context.Background(), walletID, ports.TransactionFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetReversal(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	originalID := uuid.New()
	reversal := newTestTransaction(uuid.New())
	reversal.Type = domain.TransactionTypeRefund
	reversal.Amount = decimal.RequireFromString("50.00")
	reversal.OriginalTransactionID = &originalID

	mock.ExpectQuery("SELECT .+ FROM wallet_transactions\\s+WHERE original_transaction_id").
		WithArgs(originalID).
		WillReturnRows(addTransactionRow(pgxmock.NewRows(transactionColumnNames()), reversal))

	result, err := repo.GetReversal(context.Background(), originalID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, reversal.ID, result.ID)
	assert.Equal(t, originalID, *result.OriginalTransactionID)

	mock.ExpectQuery("SELECT .+ FROM wallet_transactions\\s+WHERE original_transaction_id").
		WithArgs(originalID).
		WillReturnRows(pgxmock.NewRows(transactionColumnNames()))

	result, err = repo.GetReversal(context.Background(), originalID)
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_SumByWallet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	walletID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(amount\), 0\) FROM wallet_transactions`).
		WithArgs(walletID).
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(decimal.RequireFromString("80.25")))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	sum, err := repo.SumByWallet(context.Background(), tx, walletID)
	require.NoError(t, err)
	assert.Equal(t, "80.25", sum.StringFixed(2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_MoveToWallet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	from, to := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE wallet_transactions SET wallet_id").
		WithArgs(to, int64(42), from).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	moved, err := repo.MoveToWallet(context.Background(), tx, from, to, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(3), moved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_SetRelated_AlreadyLinked(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	id, related := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE wallet_transactions SET related_transaction_id .+ related_transaction_id IS NULL").
		WithArgs(related, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	linked, err := repo.SetRelated(context.Background(), tx, id, related)
	require.NoError(t, err)
	assert.False(t, linked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_ListUnlinked(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	legacy := newTestTransaction(uuid.New())
	legacy.RelatedTransactionID = nil
	legacy.IdempotencyKey = nil

	mock.ExpectQuery("SELECT .+ FROM wallet_transactions WHERE related_transaction_id IS NULL AND esim_order_id IS NOT NULL").
		WillReturnRows(addTransactionRow(pgxmock.NewRows(transactionColumnNames()), legacy))

	result, err := repo.ListUnlinked(context.Background())
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Nil(t, result[0].RelatedTransactionID)
	assert.Nil(t, result[0].IdempotencyKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_Usage(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT .+ FROM wallet_transactions t JOIN wallets w .+ GROUP BY w.wallet_type").
		WithArgs(int64(42), from).
		WillReturnRows(pgxmock.NewRows([]string{"wallet_type", "credits", "debits", "refunds", "cancellations", "count"}).
			AddRow(domain.WalletTypeGeneral, decimal.NewFromInt(100), decimal.NewFromInt(-50), decimal.NewFromInt(50), decimal.Zero, int64(3)))

	totals, err := repo.Usage(context.Background(), 42, &from, nil)
	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.Equal(t, domain.WalletTypeGeneral, totals[0].WalletType)
	assert.True(t, totals[0].Debits.Equal(decimal.NewFromInt(-50)))
	assert.Equal(t, int64(3), totals[0].Count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
