package memory

import (
	"context"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

// IdempotencyRepo implements ports.IdempotencyRepository.
type IdempotencyRepo struct {
	store *Store
}

// NewIdempotencyRepo creates a new IdempotencyRepo.
func NewIdempotencyRepo(store *Store) *IdempotencyRepo {
	return &IdempotencyRepo{store: store}
}

// Create stages an idempotency log. The key is checked again at commit.
func (r *IdempotencyRepo) Create(_ context.Context, tx pgx.Tx, log *domain.IdempotencyLog) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}

	r.store.mu.RLock()
	_, exists := r.store.idemp[log.Key]
	r.store.mu.RUnlock()
	if exists {
		return ports.ErrIdempotencyKeyExists
	}

	entry := *log
	entry.ResponseJSON = append([]byte(nil), log.ResponseJSON...)
	t.idempKeys = append(t.idempKeys, entry.Key)
	t.stage(func(s *Store) {
		s.idemp[entry.Key] = entry
	})
	return nil
}

// Get fetches an idempotency log by key.
func (r *IdempotencyRepo) Get(_ context.Context, key string) (*domain.IdempotencyLog, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	log, ok := r.store.idemp[key]
	if !ok {
		return nil, nil
	}
	return &log, nil
}
