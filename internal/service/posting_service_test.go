package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type postingTestDeps struct {
	svc         *PostingServiceImpl
	companyRepo *mocks.MockCompanyRepository
	walletRepo  *mocks.MockWalletRepository
	txRepo      *mocks.MockTransactionRepository
	idempRepo   *mocks.MockIdempotencyRepository
	idempCache  *mocks.MockIdempotencyCache
	publisher   *mocks.MockEventPublisher
	transactor  *mocks.MockDBTransactor
	ctrl        *gomock.Controller
}

func setupPostingService(t *testing.T) *postingTestDeps {
	ctrl := gomock.NewController(t)
	d := &postingTestDeps{
		companyRepo: mocks.NewMockCompanyRepository(ctrl),
		walletRepo:  mocks.NewMockWalletRepository(ctrl),
		txRepo:      mocks.NewMockTransactionRepository(ctrl),
		idempRepo:   mocks.NewMockIdempotencyRepository(ctrl),
		idempCache:  mocks.NewMockIdempotencyCache(ctrl),
		publisher:   mocks.NewMockEventPublisher(ctrl),
		transactor:  mocks.NewMockDBTransactor(ctrl),
		ctrl:        ctrl,
	}
	d.svc = NewPostingService(
		d.companyRepo, d.walletRepo, d.txRepo, d.idempRepo,
		d.idempCache, d.publisher, d.transactor, newTestLogger(),
	)
	return d
}

// decimalEq matches a decimal.Decimal by value rather than representation.
type decimalEq struct{ want decimal.Decimal }

func (m decimalEq) Matches(x any) bool {
	d, ok := x.(decimal.Decimal)
	return ok && d.Equal(m.want)
}

func (m decimalEq) String() string { return "is decimal " + m.want.String() }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func saleEvent() domain.PostingEvent {
	return domain.PostingEvent{
		Kind:      domain.EventKindSale,
		SourceRef: "ORD-1",
		Legs: []domain.PostingLeg{
			{CompanyID: 42, WalletType: domain.WalletTypeGeneral, Amount: dec("-50"), Type: domain.TransactionTypeDebit},
			{CompanyID: 1, WalletType: domain.WalletTypeProvider, Amount: dec("30"), Type: domain.TransactionTypeCredit},
			{CompanyID: 1, WalletType: domain.WalletTypeProfit, Amount: dec("20"), Type: domain.TransactionTypeCredit},
		},
	}
}

// ==================== Post Tests ====================

func TestPostingService_Post_Success(t *testing.T) {
	d := setupPostingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	key := "sale:ORD-1"

	buyer := &domain.Wallet{ID: uuid.New(), CompanyID: 42, WalletType: domain.WalletTypeGeneral}
	provider := &domain.Wallet{ID: uuid.New(), CompanyID: 1, WalletType: domain.WalletTypeProvider}
	profit := &domain.Wallet{ID: uuid.New(), CompanyID: 1, WalletType: domain.WalletTypeProfit}
	byID := map[uuid.UUID]*domain.Wallet{buyer.ID: buyer, provider.ID: provider, profit.ID: profit}

	d.idempCache.EXPECT().Get(ctx, key).Return(nil, nil)
	d.idempRepo.EXPECT().Get(ctx, key).Return(nil, nil).Times(2)
	d.companyRepo.EXPECT().GetByID(ctx, int64(42)).Return(&domain.Company{ID: 42}, nil)
	d.companyRepo.EXPECT().GetByID(ctx, int64(1)).Return(&domain.Company{ID: 1}, nil)
	d.walletRepo.EXPECT().GetOrCreate(ctx, int64(42), domain.WalletTypeGeneral).Return(buyer, nil)
	d.walletRepo.EXPECT().GetOrCreate(ctx, int64(1), domain.WalletTypeProvider).Return(provider, nil)
	d.walletRepo.EXPECT().GetOrCreate(ctx, int64(1), domain.WalletTypeProfit).Return(profit, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)

	var lockOrder []uuid.UUID
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ any, id uuid.UUID) (*domain.Wallet, error) {
			lockOrder = append(lockOrder, id)
			return byID[id], nil
		},
	).Times(3)
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil).Times(3)
	d.walletRepo.EXPECT().AdjustBalance(ctx, tx, buyer.ID, decimalEq{dec("-50")}).Return(nil)
	d.walletRepo.EXPECT().AdjustBalance(ctx, tx, provider.ID, decimalEq{dec("30")}).Return(nil)
	d.walletRepo.EXPECT().AdjustBalance(ctx, tx, profit.ID, decimalEq{dec("20")}).Return(nil)
	d.idempRepo.EXPECT().Create(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ any, log *domain.IdempotencyLog) error {
			assert.Equal(t, key, log.Key)
			assert.True(t, json.Valid(log.ResponseJSON))
			return nil
		},
	)
	d.idempCache.EXPECT().Set(ctx, key, gomock.Any(), idempotencyTTL).Return(nil)
	d.publisher.EXPECT().PublishPosted(ctx, gomock.Any()).Return(nil)

	result, err := d.svc.Post(ctx, saleEvent())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Duplicate)
	assert.Equal(t, key, result.Key)
	require.Len(t, result.Transactions, 3)

	for i := 1; i < len(lockOrder); i++ {
		assert.Negative(t, bytes.Compare(lockOrder[i-1][:], lockOrder[i][:]), "wallets must be locked in ascending id order")
	}

	sum := decimal.Zero
	for i, txn := range result.Transactions {
		sum = sum.Add(txn.Amount)
		require.NotNil(t, txn.RelatedTransactionID)
		assert.Equal(t, result.Transactions[(i+1)%3].ID, *txn.RelatedTransactionID)
		require.NotNil(t, txn.IdempotencyKey)
		assert.Equal(t, key, *txn.IdempotencyKey)
	}
	assert.True(t, sum.IsZero())
}

func TestPostingService_Post_DuplicateFromCache(t *testing.T) {
	d := setupPostingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	prior := domain.PostingResult{Key: "sale:ORD-1", Kind: domain.EventKindSale, SourceRef: "ORD-1"}
	cached, _ := json.Marshal(prior)

	d.idempCache.EXPECT().Get(ctx, "sale:ORD-1").Return(cached, nil)

	result, err := d.svc.Post(ctx, saleEvent())
	require.NoError(t, err)
	assert.True(t, result.Duplicate)
	assert.Equal(t, "sale:ORD-1", result.Key)
}

func TestPostingService_Post_DuplicateFromDB_CacheDown(t *testing.T) {
	d := setupPostingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	stored, _ := json.Marshal(domain.PostingResult{Key: "sale:ORD-1"})

	d.idempCache.EXPECT().Get(ctx, "sale:ORD-1").Return(nil, errors.New("redis down"))
	d.idempRepo.EXPECT().Get(ctx, "sale:ORD-1").Return(&domain.IdempotencyLog{Key: "sale:ORD-1", ResponseJSON: stored}, nil)

	result, err := d.svc.Post(ctx, saleEvent())
	require.NoError(t, err)
	assert.True(t, result.Duplicate)
}

func TestPostingService_Post_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(e *domain.PostingEvent)
		code   string
	}{
		{"not conserved", func(e *domain.PostingEvent) { e.Legs[2].Amount = dec("19.99") }, "LED_002"},
		{"invalid wallet type", func(e *domain.PostingEvent) { e.Legs[0].WalletType = "savings" }, "LED_001"},
		{"invalid transaction type", func(e *domain.PostingEvent) { e.Legs[0].Type = "transfer" }, "LED_005"},
		{"zero amount", func(e *domain.PostingEvent) {
			e.Legs = []domain.PostingLeg{{CompanyID: 1, WalletType: domain.WalletTypeGeneral, Amount: decimal.Zero, Type: domain.TransactionTypeCredit}}
		}, "LED_005"},
		{"no legs", func(e *domain.PostingEvent) { e.Legs = nil }, "LED_005"},
		{"missing source ref", func(e *domain.PostingEvent) { e.SourceRef = "" }, "LED_005"},
		{"more than four decimal places", func(e *domain.PostingEvent) {
			e.Legs = []domain.PostingLeg{
				{CompanyID: 42, WalletType: domain.WalletTypeGeneral, Amount: dec("0.33333"), Type: domain.TransactionTypeCredit},
				{CompanyID: 42, WalletType: domain.WalletTypeProfit, Amount: dec("0.33333"), Type: domain.TransactionTypeCredit},
				{CompanyID: 1, WalletType: domain.WalletTypeGeneral, Amount: dec("-0.66666"), Type: domain.TransactionTypeDebit},
			}
		}, "LED_005"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := setupPostingService(t)
			defer d.ctrl.Finish()

			event := saleEvent()
			tt.mutate(&event)

			result, err := d.svc.Post(context.Background(), event)
			assert.Nil(t, result)
			assertAppError(t, err, tt.code)
		})
	}
}

func TestValidateEvent_AcceptsStoredScale(t *testing.T) {
	event := domain.PostingEvent{
		Kind:      domain.EventKindManual,
		SourceRef: "ADJ-1",
		Legs: []domain.PostingLeg{
			{CompanyID: 42, WalletType: domain.WalletTypeGeneral, Amount: dec("0.12340"), Type: domain.TransactionTypeCredit},
			{CompanyID: 1, WalletType: domain.WalletTypeGeneral, Amount: dec("-0.1234"), Type: domain.TransactionTypeDebit},
		},
	}
	assert.NoError(t, validateEvent(event))
}

func TestPostingService_Post_UnknownCompany(t *testing.T) {
	d := setupPostingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	d.idempCache.EXPECT().Get(ctx, "sale:ORD-1").Return(nil, nil)
	d.idempRepo.EXPECT().Get(ctx, "sale:ORD-1").Return(nil, nil)
	d.companyRepo.EXPECT().GetByID(ctx, int64(42)).Return(nil, nil)

	_, err := d.svc.Post(ctx, saleEvent())
	assertAppError(t, err, "LED_003")
}

func TestPostingService_Post_ConcurrentWriterWins(t *testing.T) {
	d := setupPostingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	key := "payment_settled:PAY-9"
	wallet := &domain.Wallet{ID: uuid.New(), CompanyID: 42, WalletType: domain.WalletTypeGeneral}
	winner, _ := json.Marshal(domain.PostingResult{Key: key, Kind: domain.EventKindSettlement})

	d.idempCache.EXPECT().Get(ctx, key).Return(nil, nil)
	d.idempRepo.EXPECT().Get(ctx, key).Return(nil, nil).Times(2)
	d.companyRepo.EXPECT().GetByID(ctx, int64(42)).Return(&domain.Company{ID: 42}, nil)
	d.walletRepo.EXPECT().GetOrCreate(ctx, int64(42), domain.WalletTypeGeneral).Return(wallet, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, wallet.ID).Return(wallet, nil)
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.walletRepo.EXPECT().AdjustBalance(ctx, tx, wallet.ID, decimalEq{dec("12.5")}).Return(nil)
	d.idempRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(fmt.Errorf("insert: %w", ports.ErrIdempotencyKeyExists))
	d.idempRepo.EXPECT().Get(ctx, key).Return(&domain.IdempotencyLog{Key: key, ResponseJSON: winner}, nil)

	result, err := d.svc.Post(ctx, domain.PostingEvent{
		Kind:      domain.EventKindSettlement,
		SourceRef: "PAY-9",
		Legs: []domain.PostingLeg{
			{CompanyID: 42, WalletType: domain.WalletTypeGeneral, Amount: dec("12.5"), Type: domain.TransactionTypeCredit},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Duplicate)
}

func TestPostingService_Post_PublishFailureIsNotFatal(t *testing.T) {
	d := setupPostingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	key := "payment_settled:PAY-1"
	wallet := &domain.Wallet{ID: uuid.New(), CompanyID: 42, WalletType: domain.WalletTypeGeneral}

	d.idempCache.EXPECT().Get(ctx, key).Return(nil, nil)
	d.idempRepo.EXPECT().Get(ctx, key).Return(nil, nil).Times(2)
	d.companyRepo.EXPECT().GetByID(ctx, int64(42)).Return(&domain.Company{ID: 42}, nil)
	d.walletRepo.EXPECT().GetOrCreate(ctx, int64(42), domain.WalletTypeGeneral).Return(wallet, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, wallet.ID).Return(wallet, nil)
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.walletRepo.EXPECT().AdjustBalance(ctx, tx, wallet.ID, gomock.Any()).Return(nil)
	d.idempRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.idempCache.EXPECT().Set(ctx, key, gomock.Any(), idempotencyTTL).Return(errors.New("redis down"))
	d.publisher.EXPECT().PublishPosted(ctx, gomock.Any()).Return(errors.New("broker down"))

	result, err := d.svc.Post(ctx, domain.PostingEvent{
		Kind:      domain.EventKindSettlement,
		SourceRef: "PAY-1",
		Legs: []domain.PostingLeg{
			{CompanyID: 42, WalletType: domain.WalletTypeGeneral, Amount: dec("5"), Type: domain.TransactionTypeCredit},
		},
	})
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	require.Len(t, result.Transactions, 1)
	assert.Nil(t, result.Transactions[0].RelatedTransactionID, "single legs are not ringed")
}

// ==================== Reverse Tests ====================

func newReverseService(t *testing.T) *postingTestDeps {
	d := setupPostingService(t)
	d.svc = NewPostingService(d.companyRepo, d.walletRepo, d.txRepo, d.idempRepo, nil, nil, d.transactor, newTestLogger())
	return d
}

func TestPostingService_Reverse_InvalidKind(t *testing.T) {
	d := newReverseService(t)
	defer d.ctrl.Finish()

	_, err := d.svc.Reverse(context.Background(), ports.ReverseRequest{OriginalKey: "sale:ORD-1", Kind: "credit"})
	assertAppError(t, err, "LED_005")
}

func TestPostingService_Reverse_OriginalNotFound(t *testing.T) {
	d := newReverseService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	d.idempRepo.EXPECT().Get(ctx, "refund:sale:ORD-404").Return(nil, nil)
	d.idempRepo.EXPECT().Get(ctx, "cancellation:sale:ORD-404").Return(nil, nil)
	d.idempRepo.EXPECT().Get(ctx, "sale:ORD-404").Return(nil, nil)

	_, err := d.svc.Reverse(ctx, ports.ReverseRequest{OriginalKey: "sale:ORD-404", Kind: domain.EventKindRefund})
	assertAppError(t, err, "LED_003")
}

func TestPostingService_Reverse_AlreadyCancelled(t *testing.T) {
	d := newReverseService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	d.idempRepo.EXPECT().Get(ctx, "refund:sale:ORD-1").Return(nil, nil)
	d.idempRepo.EXPECT().Get(ctx, "cancellation:sale:ORD-1").Return(&domain.IdempotencyLog{Key: "cancellation:sale:ORD-1"}, nil)

	_, err := d.svc.Reverse(ctx, ports.ReverseRequest{OriginalKey: "sale:ORD-1", Kind: domain.EventKindRefund})
	assertAppError(t, err, "LED_005")
}

func TestPostingService_Reverse_OfReversal(t *testing.T) {
	d := newReverseService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	origID := uuid.New()
	stored, _ := json.Marshal(domain.PostingResult{
		Key:          "refund:sale:ORD-1",
		Transactions: []domain.WalletTransaction{{ID: uuid.New(), OriginalTransactionID: &origID, Amount: dec("50")}},
	})

	d.idempRepo.EXPECT().Get(ctx, "refund:refund:sale:ORD-1").Return(nil, nil)
	d.idempRepo.EXPECT().Get(ctx, "cancellation:refund:sale:ORD-1").Return(nil, nil)
	d.idempRepo.EXPECT().Get(ctx, "refund:sale:ORD-1").Return(&domain.IdempotencyLog{ResponseJSON: stored}, nil)

	_, err := d.svc.Reverse(ctx, ports.ReverseRequest{OriginalKey: "refund:sale:ORD-1", Kind: domain.EventKindRefund})
	assertAppError(t, err, "LED_005")
}

func TestPostingService_Reverse_FollowsMigratedOwnership(t *testing.T) {
	d := newReverseService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	legID := uuid.New()
	oldWallet := uuid.New()
	newWallet := &domain.Wallet{ID: uuid.New(), CompanyID: 42, WalletType: domain.WalletTypeGeneral}
	orderID := "ORD-7"

	stored, _ := json.Marshal(domain.PostingResult{
		Key:          "payment_settled:PAY-7",
		Transactions: []domain.WalletTransaction{{ID: legID, WalletID: oldWallet, CompanyID: 1, Amount: dec("25"), Type: domain.TransactionTypeCredit}},
	})

	d.idempRepo.EXPECT().Get(ctx, "cancellation:payment_settled:PAY-7").Return(nil, nil).Times(2)
	d.idempRepo.EXPECT().Get(ctx, "refund:payment_settled:PAY-7").Return(nil, nil).Times(2)
	d.idempRepo.EXPECT().Get(ctx, "payment_settled:PAY-7").Return(&domain.IdempotencyLog{ResponseJSON: stored}, nil)
	d.txRepo.EXPECT().GetByID(ctx, legID).Return(&domain.WalletTransaction{
		ID: legID, WalletID: newWallet.ID, CompanyID: 42, Amount: dec("25"), Type: domain.TransactionTypeCredit, EsimOrderID: &orderID,
	}, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, newWallet.ID).Return(newWallet, nil)
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ any, txn *domain.WalletTransaction) error {
			assert.Equal(t, newWallet.ID, txn.WalletID)
			assert.Equal(t, int64(42), txn.CompanyID)
			assert.True(t, txn.Amount.Equal(dec("-25")))
			assert.Equal(t, domain.TransactionTypeCancellation, txn.Type)
			require.NotNil(t, txn.OriginalTransactionID)
			assert.Equal(t, legID, *txn.OriginalTransactionID)
			assert.Equal(t, &orderID, txn.EsimOrderID)
			return nil
		},
	)
	d.walletRepo.EXPECT().AdjustBalance(ctx, tx, newWallet.ID, decimalEq{dec("-25")}).Return(nil)
	gomock.InOrder(
		d.idempRepo.EXPECT().Create(ctx, tx, logKey("cancellation:payment_settled:PAY-7")).Return(nil),
		d.idempRepo.EXPECT().Create(ctx, tx, logKey("reversed#payment_settled:PAY-7")).Return(nil),
	)

	result, err := d.svc.Reverse(ctx, ports.ReverseRequest{OriginalKey: "payment_settled:PAY-7", Kind: domain.EventKindCancellation, Reason: "chargeback"})
	require.NoError(t, err)
	assert.Equal(t, "cancellation:payment_settled:PAY-7", result.Key)
	assert.Equal(t, "chargeback", result.Transactions[0].Description)
}

func TestPostingService_Reverse_LosesRaceToOppositeReversal(t *testing.T) {
	d := newReverseService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	legID := uuid.New()
	wallet := &domain.Wallet{ID: uuid.New(), CompanyID: 42, WalletType: domain.WalletTypeGeneral}

	stored, _ := json.Marshal(domain.PostingResult{
		Key:          "sale:ORD-9",
		Transactions: []domain.WalletTransaction{{ID: legID, WalletID: wallet.ID, CompanyID: 42, Amount: dec("-50"), Type: domain.TransactionTypeDebit}},
	})

	// The own key is looked up by findPrior, after the locks, and after the failed insert.
	d.idempRepo.EXPECT().Get(ctx, "refund:sale:ORD-9").Return(nil, nil).Times(3)
	d.idempRepo.EXPECT().Get(ctx, "cancellation:sale:ORD-9").Return(nil, nil).Times(2)
	d.idempRepo.EXPECT().Get(ctx, "sale:ORD-9").Return(&domain.IdempotencyLog{ResponseJSON: stored}, nil)
	d.txRepo.EXPECT().GetByID(ctx, legID).Return(&domain.WalletTransaction{
		ID: legID, WalletID: wallet.ID, CompanyID: 42, Amount: dec("-50"), Type: domain.TransactionTypeDebit,
	}, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, wallet.ID).Return(wallet, nil)
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.walletRepo.EXPECT().AdjustBalance(ctx, tx, wallet.ID, decimalEq{dec("50")}).Return(nil)
	d.idempRepo.EXPECT().Create(ctx, tx, logKey("refund:sale:ORD-9")).Return(nil)
	d.idempRepo.EXPECT().Create(ctx, tx, logKey("reversed#sale:ORD-9")).Return(ports.ErrIdempotencyKeyExists)

	_, err := d.svc.Reverse(ctx, ports.ReverseRequest{OriginalKey: "sale:ORD-9", Kind: domain.EventKindRefund})
	assertAppError(t, err, "LED_005")
}

func TestPostingService_Post_RetiredWalletAborts(t *testing.T) {
	d := newReverseService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	key := "payment_settled:PAY-2"
	wallet := &domain.Wallet{ID: uuid.New(), CompanyID: 42, WalletType: domain.WalletTypeGeneral}
	retired := *wallet
	now := wallet.CreatedAt
	retired.RetiredAt = &now

	d.idempRepo.EXPECT().Get(ctx, key).Return(nil, nil)
	d.companyRepo.EXPECT().GetByID(ctx, int64(42)).Return(&domain.Company{ID: 42}, nil)
	d.walletRepo.EXPECT().GetOrCreate(ctx, int64(42), domain.WalletTypeGeneral).Return(wallet, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetByIDForUpdate(ctx, tx, wallet.ID).Return(&retired, nil)

	_, err := d.svc.Post(ctx, domain.PostingEvent{
		Kind:      domain.EventKindSettlement,
		SourceRef: "PAY-2",
		Legs:      []domain.PostingLeg{{CompanyID: 42, WalletType: domain.WalletTypeGeneral, Amount: dec("1"), Type: domain.TransactionTypeCredit}},
	})
	assertAppError(t, err, "LED_005")
}

// logKey matches an idempotency log by key.
type logKey string

func (k logKey) Matches(x any) bool {
	l, ok := x.(*domain.IdempotencyLog)
	return ok && l.Key == string(k)
}

func (k logKey) String() string { return "idempotency log with key " + string(k) }
