package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store      *Store
	companies  *CompanyRepo
	wallets    *WalletRepo
	txns       *TransactionRepo
	idemp      *IdempotencyRepo
	transactor *Transactor
}

func newFixture(t *testing.T, companyIDs ...int64) *fixture {
	t.Helper()
	s := NewStore()
	f := &fixture{
		store:      s,
		companies:  NewCompanyRepo(s),
		wallets:    NewWalletRepo(s),
		txns:       NewTransactionRepo(s),
		idemp:      NewIdempotencyRepo(s),
		transactor: NewTransactor(s),
	}
	for _, id := range companyIDs {
		require.NoError(t, f.companies.Create(context.Background(), &domain.Company{ID: id, Name: "company"}))
	}
	return f
}

func (f *fixture) appendCommitted(t *testing.T, w *domain.Wallet, amount string) *domain.WalletTransaction {
	t.Helper()
	ctx := context.Background()
	tx, err := f.transactor.Begin(ctx)
	require.NoError(t, err)
	txn := &domain.WalletTransaction{
		ID:        uuid.New(),
		WalletID:  w.ID,
		CompanyID: w.CompanyID,
		Amount:    decimal.RequireFromString(amount),
		Type:      domain.TransactionTypeCredit,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, f.txns.Create(ctx, tx, txn))
	require.NoError(t, tx.Commit(ctx))
	return txn
}

func TestWalletRepo_GetOrCreate_IsLazyAndUnique(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	w1, err := f.wallets.GetOrCreate(ctx, 1, domain.WalletTypeGeneral)
	require.NoError(t, err)
	assert.True(t, w1.Balance.IsZero())

	w2, err := f.wallets.GetOrCreate(ctx, 1, domain.WalletTypeGeneral)
	require.NoError(t, err)
	assert.Equal(t, w1.ID, w2.ID)

	_, err = f.wallets.GetOrCreate(ctx, 99, domain.WalletTypeGeneral)
	assert.Error(t, err)
}

func TestTx_StagedWritesInvisibleUntilCommit(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	w, err := f.wallets.GetOrCreate(ctx, 1, domain.WalletTypeProfit)
	require.NoError(t, err)

	tx, err := f.transactor.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, f.wallets.AdjustBalance(ctx, tx, w.ID, decimal.NewFromInt(20)))

	before, _ := f.wallets.GetByID(ctx, w.ID)
	assert.True(t, before.Balance.IsZero())

	require.NoError(t, tx.Commit(ctx))
	after, _ := f.wallets.GetByID(ctx, w.ID)
	assert.True(t, after.Balance.Equal(decimal.NewFromInt(20)))

	assert.ErrorIs(t, tx.Rollback(ctx), pgx.ErrTxClosed)
}

func TestTx_RollbackDiscards(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	w, _ := f.wallets.GetOrCreate(ctx, 1, domain.WalletTypeGeneral)

	tx, _ := f.transactor.Begin(ctx)
	require.NoError(t, f.txns.Create(ctx, tx, &domain.WalletTransaction{
		ID: uuid.New(), WalletID: w.ID, CompanyID: 1, Amount: decimal.NewFromInt(5), Type: domain.TransactionTypeCredit,
	}))
	require.NoError(t, tx.Rollback(ctx))

	txns, err := f.txns.ListByWallet(ctx, w.ID, ports.TransactionFilter{})
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestWalletLock_SerializesHolders(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	w, _ := f.wallets.GetOrCreate(ctx, 1, domain.WalletTypeGeneral)

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx, err := f.transactor.Begin(ctx)
			require.NoError(t, err)
			defer tx.Rollback(ctx) //nolint:errcheck

			locked, err := f.wallets.GetByIDForUpdate(ctx, tx, w.ID)
			require.NoError(t, err)
			// Read-modify-write under the lock must not lose updates.
			require.NoError(t, f.wallets.SetBalance(ctx, tx, w.ID, locked.Balance.Add(decimal.NewFromInt(1))))
			require.NoError(t, tx.Commit(ctx))
		}()
	}
	wg.Wait()

	final, _ := f.wallets.GetByID(ctx, w.ID)
	assert.True(t, final.Balance.Equal(decimal.NewFromInt(workers)), "got %s", final.Balance)
}

func TestWalletLock_HonoursContext(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	w, _ := f.wallets.GetOrCreate(ctx, 1, domain.WalletTypeGeneral)

	holder, _ := f.transactor.Begin(ctx)
	_, err := f.wallets.GetByIDForUpdate(ctx, holder, w.ID)
	require.NoError(t, err)
	defer holder.Rollback(ctx) //nolint:errcheck

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	waiter, _ := f.transactor.Begin(ctx)
	_, err = f.wallets.GetByIDForUpdate(waitCtx, waiter, w.ID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTransactionRepo_ListByWallet_Ordering(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	w, _ := f.wallets.GetOrCreate(ctx, 1, domain.WalletTypeGeneral)

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	low := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	high := uuid.MustParse("ffffffff-0000-0000-0000-000000000000")
	older := uuid.New()

	tx, _ := f.transactor.Begin(ctx)
	for _, row := range []domain.WalletTransaction{
		{ID: low, CreatedAt: ts},
		{ID: older, CreatedAt: ts.Add(-time.Minute)},
		{ID: high, CreatedAt: ts},
	} {
		row.WalletID, row.CompanyID, row.Amount, row.Type = w.ID, 1, decimal.NewFromInt(1), domain.TransactionTypeCredit
		require.NoError(t, f.txns.Create(ctx, tx, &row))
	}
	require.NoError(t, tx.Commit(ctx))

	txns, err := f.txns.ListByWallet(ctx, w.ID, ports.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, txns, 3)
	assert.Equal(t, []uuid.UUID{high, low, older}, []uuid.UUID{txns[0].ID, txns[1].ID, txns[2].ID})

	page, err := f.txns.ListByWallet(ctx, w.ID, ports.TransactionFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, low, page[0].ID)
}

func TestTransactionRepo_SumAndMove(t *testing.T) {
	f := newFixture(t, 1, 42)
	ctx := context.Background()
	src, _ := f.wallets.GetOrCreate(ctx, 1, domain.WalletTypeGeneral)
	dst, _ := f.wallets.GetOrCreate(ctx, 42, domain.WalletTypeGeneral)
	f.appendCommitted(t, src, "10.50")
	f.appendCommitted(t, src, "-0.50")

	tx, _ := f.transactor.Begin(ctx)
	sum, err := f.txns.SumByWallet(ctx, tx, src.ID)
	require.NoError(t, err)
	assert.True(t, sum.Equal(decimal.NewFromInt(10)))

	moved, err := f.txns.MoveToWallet(ctx, tx, src.ID, dst.ID, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(2), moved)
	require.NoError(t, f.wallets.Retire(ctx, tx, src.ID))
	require.NoError(t, tx.Commit(ctx))

	rows, _ := f.txns.ListByWallet(ctx, dst.ID, ports.TransactionFilter{})
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, int64(42), r.CompanyID)
	}
	retired, _ := f.wallets.GetByID(ctx, src.ID)
	assert.True(t, retired.IsRetired())
	assert.True(t, retired.Balance.IsZero())

	active, _ := f.wallets.GetByCompanyAndType(ctx, 1, domain.WalletTypeGeneral)
	assert.Nil(t, active)
}

func TestWalletRepo_Reassign_RejectsOccupiedPair(t *testing.T) {
	f := newFixture(t, 1, 42)
	ctx := context.Background()
	src, _ := f.wallets.GetOrCreate(ctx, 1, domain.WalletTypeTax)
	_, _ = f.wallets.GetOrCreate(ctx, 42, domain.WalletTypeTax)

	tx, _ := f.transactor.Begin(ctx)
	defer tx.Rollback(ctx) //nolint:errcheck
	assert.ErrorIs(t, f.wallets.Reassign(ctx, tx, src.ID, 42), ports.ErrWalletPairTaken)
}

func TestWalletRepo_Reassign_PairTakenBeforeCommit(t *testing.T) {
	f := newFixture(t, 1, 42)
	ctx := context.Background()
	src, _ := f.wallets.GetOrCreate(ctx, 1, domain.WalletTypeTax)

	tx, _ := f.transactor.Begin(ctx)
	require.NoError(t, f.wallets.Reassign(ctx, tx, src.ID, 42))

	created, err := f.wallets.GetOrCreate(ctx, 42, domain.WalletTypeTax)
	require.NoError(t, err)

	err = tx.Commit(ctx)
	assert.ErrorIs(t, err, ports.ErrWalletPairTaken)

	active, err := f.wallets.GetByCompanyAndType(ctx, 42, domain.WalletTypeTax)
	require.NoError(t, err)
	assert.Equal(t, created.ID, active.ID)
	still, err := f.wallets.GetByID(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), still.CompanyID)
}

func TestWalletRepo_ListMisassigned(t *testing.T) {
	f := newFixture(t, 1, 2, 42)
	ctx := context.Background()
	general, _ := f.wallets.GetOrCreate(ctx, 1, domain.WalletTypeGeneral)
	_, _ = f.wallets.GetOrCreate(ctx, 1, domain.WalletTypeProfit)
	_, _ = f.wallets.GetOrCreate(ctx, 2, domain.WalletTypeGeneral)
	_, _ = f.wallets.GetOrCreate(ctx, 42, domain.WalletTypeGeneral)

	source := int64(1)
	wallets, err := f.wallets.ListMisassigned(ctx, domain.MigrationSelector{
		SourceCompanyID: &source,
		WalletTypes:     []domain.WalletType{domain.WalletTypeGeneral},
	}, 42)
	require.NoError(t, err)
	require.Len(t, wallets, 1)
	assert.Equal(t, general.ID, wallets[0].ID)

	none, err := f.wallets.ListMisassigned(ctx, domain.MigrationSelector{SourceCompanyID: &source}, 1)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestIdempotencyRepo_DuplicateKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	entry := &domain.IdempotencyLog{Key: "sale:ORD-1", ResponseJSON: []byte(`{}`)}

	first, _ := f.transactor.Begin(ctx)
	second, _ := f.transactor.Begin(ctx)
	require.NoError(t, f.idemp.Create(ctx, first, entry))
	require.NoError(t, f.idemp.Create(ctx, second, entry))

	require.NoError(t, first.Commit(ctx))
	err := second.Commit(ctx)
	assert.True(t, errors.Is(err, ports.ErrIdempotencyKeyExists))

	third, _ := f.transactor.Begin(ctx)
	defer third.Rollback(ctx) //nolint:errcheck
	assert.ErrorIs(t, f.idemp.Create(ctx, third, entry), ports.ErrIdempotencyKeyExists)

	got, err := f.idemp.Get(ctx, "sale:ORD-1")
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestTransactionRepo_SetRelatedOnce(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	w, _ := f.wallets.GetOrCreate(ctx, 1, domain.WalletTypeGeneral)
	row := f.appendCommitted(t, w, "1")
	other := uuid.New()

	tx, _ := f.transactor.Begin(ctx)
	linked, err := f.txns.SetRelated(ctx, tx, row.ID, other)
	require.NoError(t, err)
	assert.True(t, linked)
	require.NoError(t, tx.Commit(ctx))

	tx2, _ := f.transactor.Begin(ctx)
	defer tx2.Rollback(ctx) //nolint:errcheck
	linked, err = f.txns.SetRelated(ctx, tx2, row.ID, uuid.New())
	require.NoError(t, err)
	assert.False(t, linked)

	got, _ := f.txns.GetByID(ctx, row.ID)
	assert.Equal(t, other, *got.RelatedTransactionID)
}

func TestTransactionRepo_GetReversal(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	w, _ := f.wallets.GetOrCreate(ctx, 1, domain.WalletTypeGeneral)
	original := f.appendCommitted(t, w, "10")

	got, err := f.txns.GetReversal(ctx, original.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	base := time.Now().UTC()
	tx, _ := f.transactor.Begin(ctx)
	for i, at := range []time.Time{base.Add(time.Second), base} {
		require.NoError(t, f.txns.Create(ctx, tx, &domain.WalletTransaction{
			ID:                    uuid.New(),
			WalletID:              w.ID,
			CompanyID:             1,
			Amount:                decimal.NewFromInt(-10),
			Type:                  domain.TransactionTypeRefund,
			Description:           fmt.Sprintf("refund %d", i),
			OriginalTransactionID: &original.ID,
			CreatedAt:             at,
		}))
	}
	require.NoError(t, tx.Commit(ctx))

	got, err = f.txns.GetReversal(ctx, original.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "refund 1", got.Description)
}

func TestTransactionRepo_Usage(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	w, _ := f.wallets.GetOrCreate(ctx, 1, domain.WalletTypeGeneral)
	f.appendCommitted(t, w, "30")
	f.appendCommitted(t, w, "20")

	totals, err := f.txns.Usage(ctx, 1, nil, nil)
	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.True(t, totals[0].Credits.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, int64(2), totals[0].Count)
}
