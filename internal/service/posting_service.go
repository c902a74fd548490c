package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const idempotencyTTL = 24 * time.Hour

// amountScale is the number of decimal places the ledger stores.
const amountScale = 4

// PostingServiceImpl implements ports.PostingService.
type PostingServiceImpl struct {
	companyRepo ports.CompanyRepository
	walletRepo  ports.WalletRepository
	txRepo      ports.TransactionRepository
	idempRepo   ports.IdempotencyRepository
	idempCache  ports.IdempotencyCache // optional
	publisher   ports.EventPublisher   // optional
	transactor  ports.DBTransactor
	log         zerolog.Logger
	now         func() time.Time
}

// NewPostingService creates a new PostingServiceImpl. idempCache and publisher may be nil.
func NewPostingService(
	companyRepo ports.CompanyRepository,
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	idempRepo ports.IdempotencyRepository,
	idempCache ports.IdempotencyCache,
	publisher ports.EventPublisher,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *PostingServiceImpl {
	return &PostingServiceImpl{
		companyRepo: companyRepo,
		walletRepo:  walletRepo,
		txRepo:      txRepo,
		idempRepo:   idempRepo,
		idempCache:  idempCache,
		publisher:   publisher,
		transactor:  transactor,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Post applies an event as one linked posting group. A previously applied
// event returns its recorded result with Duplicate set and writes nothing.
func (s *PostingServiceImpl) Post(ctx context.Context, event domain.PostingEvent) (*domain.PostingResult, error) {
	if err := validateEvent(event); err != nil {
		return nil, err
	}

	key := event.Key()
	prior, err := s.findPrior(ctx, key)
	if err != nil {
		return nil, err
	}
	if prior != nil {
		return prior, nil
	}

	txns := make([]*domain.WalletTransaction, 0, len(event.Legs))
	knownCompanies := make(map[int64]bool)
	for _, leg := range event.Legs {
		if !knownCompanies[leg.CompanyID] {
			company, err := s.companyRepo.GetByID(ctx, leg.CompanyID)
			if err != nil {
				return nil, apperror.InternalError(fmt.Errorf("get company: %w", err))
			}
			if company == nil {
				return nil, apperror.ErrNotFound(fmt.Sprintf("company %d", leg.CompanyID))
			}
			knownCompanies[leg.CompanyID] = true
		}

		wallet, err := s.walletRepo.GetOrCreate(ctx, leg.CompanyID, leg.WalletType)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("get or create wallet: %w", err))
		}

		txns = append(txns, &domain.WalletTransaction{
			WalletID:    wallet.ID,
			CompanyID:   wallet.CompanyID,
			Amount:      leg.Amount,
			Type:        leg.Type,
			Description: leg.Description,
			EsimOrderID: leg.EsimOrderID,
			EsimPlanID:  leg.EsimPlanID,
		})
	}

	return s.apply(ctx, key, event.Kind, event.SourceRef, txns, nil)
}

// reversalGuard makes the refund and cancellation of one event exclusive.
// The marker row is written with the group, so the log's unique key rejects
// whichever of two racing reversals commits second.
type reversalGuard struct {
	originalKey string
	marker      string
	conflictKey string
	conflict    domain.TransactionType
}

func newReversalGuard(txType domain.TransactionType, originalKey string) *reversalGuard {
	other := domain.TransactionTypeRefund
	if txType == domain.TransactionTypeRefund {
		other = domain.TransactionTypeCancellation
	}
	return &reversalGuard{
		originalKey: originalKey,
		marker:      domain.BuildReversalMarker(originalKey),
		conflictKey: domain.BuildPostingKey(string(other), originalKey),
		conflict:    other,
	}
}

func (g *reversalGuard) err() error {
	return apperror.Validation(fmt.Sprintf("event %s was already reversed by %s", g.originalKey, g.conflict))
}

// Reverse writes the compensating group of a previously applied event. Every
// leg is negated and points at the leg it compensates.
func (s *PostingServiceImpl) Reverse(ctx context.Context, req ports.ReverseRequest) (*domain.PostingResult, error) {
	txType := domain.TransactionType(req.Kind)
	if !txType.IsCompensating() {
		return nil, apperror.Validation(fmt.Sprintf("reversal kind must be refund or cancellation, got %q", req.Kind))
	}
	if req.OriginalKey == "" {
		return nil, apperror.Validation("original event key is required")
	}

	key := domain.BuildPostingKey(req.Kind, req.OriginalKey)
	prior, err := s.findPrior(ctx, key)
	if err != nil {
		return nil, err
	}
	if prior != nil {
		return prior, nil
	}

	// A refund and a cancellation of the same event would compensate it twice.
	guard := newReversalGuard(txType, req.OriginalKey)
	if err := s.checkGuard(ctx, guard); err != nil {
		return nil, err
	}

	originalLog, err := s.idempRepo.Get(ctx, req.OriginalKey)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get original event: %w", err))
	}
	if originalLog == nil {
		return nil, apperror.ErrNotFound("posting " + req.OriginalKey)
	}
	var original domain.PostingResult
	if err := json.Unmarshal(originalLog.ResponseJSON, &original); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal original event: %w", err))
	}

	txns := make([]*domain.WalletTransaction, 0, len(original.Transactions))
	for _, recorded := range original.Transactions {
		if recorded.IsReversal() {
			return nil, apperror.Validation("a reversal cannot be reversed")
		}
		// Ownership may have moved since the original was posted.
		current, err := s.txRepo.GetByID(ctx, recorded.ID)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("get original transaction: %w", err))
		}
		if current == nil {
			return nil, apperror.ErrNotFound("transaction " + recorded.ID.String())
		}

		description := req.Reason
		if description == "" {
			description = fmt.Sprintf("%s of %s", req.Kind, req.OriginalKey)
		}
		originalID := current.ID
		txns = append(txns, &domain.WalletTransaction{
			WalletID:              current.WalletID,
			CompanyID:             current.CompanyID,
			Amount:                current.Amount.Neg(),
			Type:                  txType,
			Description:           description,
			OriginalTransactionID: &originalID,
			EsimOrderID:           current.EsimOrderID,
			EsimPlanID:            current.EsimPlanID,
		})
	}

	return s.apply(ctx, key, req.Kind, req.OriginalKey, txns, guard)
}

func (s *PostingServiceImpl) checkGuard(ctx context.Context, guard *reversalGuard) error {
	existing, err := s.idempRepo.Get(ctx, guard.conflictKey)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("check opposite reversal: %w", err))
	}
	if existing != nil {
		return guard.err()
	}
	return nil
}

// apply writes txns as one group: wallets locked in ascending id order,
// legs appended with ring links, balances incremented, key recorded.
// A non-nil guard also records the reversal marker of the original event.
func (s *PostingServiceImpl) apply(ctx context.Context, key, kind, sourceRef string, txns []*domain.WalletTransaction, guard *reversalGuard) (*domain.PostingResult, error) {
	deltas := make(map[uuid.UUID]decimal.Decimal)
	for _, t := range txns {
		deltas[t.WalletID] = deltas[t.WalletID].Add(t.Amount)
	}
	walletIDs := make([]uuid.UUID, 0, len(deltas))
	for id := range deltas {
		walletIDs = append(walletIDs, id)
	}
	domain.SortWalletIDs(walletIDs)

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	for _, id := range walletIDs {
		wallet, err := s.walletRepo.GetByIDForUpdate(ctx, dbTx, id)
		if err != nil {
			return nil, lockError(id, err)
		}
		if wallet == nil {
			return nil, apperror.ErrNotFound("wallet " + id.String())
		}
		if wallet.IsRetired() {
			return nil, apperror.Validation(fmt.Sprintf("wallet %s was merged by a migration, retry the event", id))
		}
	}

	// Another writer may have applied the event while we waited for locks.
	existing, err := s.idempRepo.Get(ctx, key)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("db idempotency recheck: %w", err))
	}
	if existing != nil {
		return decodeDuplicate(existing.ResponseJSON)
	}
	if guard != nil {
		if err := s.checkGuard(ctx, guard); err != nil {
			return nil, err
		}
	}

	now := s.now()
	for _, t := range txns {
		t.ID = uuid.New()
		t.CreatedAt = now
		k := key
		t.IdempotencyKey = &k
	}
	domain.LinkRing(txns)

	for _, t := range txns {
		if err := s.txRepo.Create(ctx, dbTx, t); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("create transaction: %w", err))
		}
	}
	for _, id := range walletIDs {
		if err := s.walletRepo.AdjustBalance(ctx, dbTx, id, deltas[id]); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("adjust balance: %w", err))
		}
	}

	result := &domain.PostingResult{
		Key:          key,
		Kind:         kind,
		SourceRef:    sourceRef,
		Transactions: make([]domain.WalletTransaction, 0, len(txns)),
		PostedAt:     now,
	}
	for _, t := range txns {
		result.Transactions = append(result.Transactions, *t)
	}
	respJSON, err := json.Marshal(result)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("marshal result: %w", err))
	}

	err = s.idempRepo.Create(ctx, dbTx, &domain.IdempotencyLog{Key: key, ResponseJSON: respJSON, CreatedAt: now})
	if err == nil && guard != nil {
		err = s.idempRepo.Create(ctx, dbTx, &domain.IdempotencyLog{Key: guard.marker, ResponseJSON: respJSON, CreatedAt: now})
	}
	if err == nil {
		err = dbTx.Commit(ctx)
	}
	if errors.Is(err, ports.ErrIdempotencyKeyExists) {
		_ = dbTx.Rollback(ctx)
		return s.resolveConflict(ctx, key, guard)
	}
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("record posting: %w", err))
	}

	if s.idempCache != nil {
		if err := s.idempCache.Set(ctx, key, respJSON, idempotencyTTL); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("failed to cache idempotency in redis")
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishPosted(ctx, result); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("failed to publish posting event")
		}
	}

	s.log.Info().
		Str("key", key).
		Str("kind", kind).
		Int("legs", len(txns)).
		Msg("posting applied")

	return result, nil
}

// findPrior checks Redis first and the idempotency log second.
func (s *PostingServiceImpl) findPrior(ctx context.Context, key string) (*domain.PostingResult, error) {
	if s.idempCache != nil {
		cached, err := s.idempCache.Get(ctx, key)
		if err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("redis idempotency check failed, falling through to DB")
		}
		if cached != nil {
			return decodeDuplicate(cached)
		}
	}

	idempLog, err := s.idempRepo.Get(ctx, key)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("db idempotency check: %w", err))
	}
	if idempLog == nil {
		return nil, nil
	}
	return decodeDuplicate(idempLog.ResponseJSON)
}

// resolveConflict decides whether a taken key was the same event applied
// concurrently or the opposite reversal of the same original.
func (s *PostingServiceImpl) resolveConflict(ctx context.Context, key string, guard *reversalGuard) (*domain.PostingResult, error) {
	if guard == nil {
		return s.loadDuplicate(ctx, key)
	}
	own, err := s.idempRepo.Get(ctx, key)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load concurrent posting: %w", err))
	}
	if own != nil {
		return decodeDuplicate(own.ResponseJSON)
	}
	return nil, guard.err()
}

func (s *PostingServiceImpl) loadDuplicate(ctx context.Context, key string) (*domain.PostingResult, error) {
	idempLog, err := s.idempRepo.Get(ctx, key)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("load concurrent posting: %w", err))
	}
	if idempLog == nil {
		return nil, apperror.InternalError(fmt.Errorf("idempotency key %s reported taken but not found", key))
	}
	return decodeDuplicate(idempLog.ResponseJSON)
}

func decodeDuplicate(data []byte) (*domain.PostingResult, error) {
	var result domain.PostingResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal cached result: %w", err))
	}
	result.Duplicate = true
	return &result, nil
}

func lockError(id uuid.UUID, err error) error {
	wrapped := fmt.Errorf("lock wallet %s: %w", id, err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperror.ErrLockTimeout(wrapped)
	}
	return apperror.InternalError(wrapped)
}

func validateEvent(event domain.PostingEvent) error {
	if event.Kind == "" || event.SourceRef == "" {
		return apperror.Validation("event kind and source reference are required")
	}
	if len(event.Legs) == 0 {
		return apperror.Validation("event has no legs")
	}
	for i, leg := range event.Legs {
		if !leg.WalletType.Valid() {
			return apperror.ErrInvalidWalletType(string(leg.WalletType))
		}
		if !leg.Type.Valid() {
			return apperror.Validation(fmt.Sprintf("leg %d: invalid transaction type %q", i, leg.Type))
		}
		if leg.Amount.IsZero() {
			return apperror.Validation(fmt.Sprintf("leg %d: amount must be non-zero", i))
		}
		if !leg.Amount.Equal(leg.Amount.Truncate(amountScale)) {
			return apperror.Validation(fmt.Sprintf("leg %d: amount %s has more than %d decimal places", i, leg.Amount, amountScale))
		}
		if leg.CompanyID <= 0 {
			return apperror.Validation(fmt.Sprintf("leg %d: company id is required", i))
		}
	}
	if !event.IsConserved() {
		return apperror.ErrConservationViolation(event.Sum().String())
	}
	return nil
}
