// Package memory is a process-local ledger store used for development and
// tests. It honours the same transaction contract as the PostgreSQL adapter:
// wallet locks taken through GetByIDForUpdate are held until Commit or
// Rollback, and writes staged inside a Tx become visible only at Commit.
package memory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type walletKey struct {
	companyID  int64
	walletType domain.WalletType
}

// Store holds all ledger state in maps guarded by one RWMutex.
type Store struct {
	mu        sync.RWMutex
	companies map[int64]domain.Company
	wallets   map[uuid.UUID]*domain.Wallet
	active    map[walletKey]uuid.UUID
	txns      map[uuid.UUID]*domain.WalletTransaction
	byWallet  map[uuid.UUID][]uuid.UUID
	idemp     map[string]domain.IdempotencyLog
	audits    []domain.AuditLog
	locks     map[uuid.UUID]chan struct{}
	now       func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		companies: make(map[int64]domain.Company),
		wallets:   make(map[uuid.UUID]*domain.Wallet),
		active:    make(map[walletKey]uuid.UUID),
		txns:      make(map[uuid.UUID]*domain.WalletTransaction),
		byWallet:  make(map[uuid.UUID][]uuid.UUID),
		idemp:     make(map[string]domain.IdempotencyLog),
		locks:     make(map[uuid.UUID]chan struct{}),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// lockFor returns the lock channel of a wallet, creating it on first use.
func (s *Store) lockFor(id uuid.UUID) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.locks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[id] = ch
	}
	return ch
}

// Transactor implements ports.DBTransactor for the memory store.
type Transactor struct {
	store *Store
}

// NewTransactor creates a Transactor over store.
func NewTransactor(store *Store) *Transactor {
	return &Transactor{store: store}
}

// Begin starts a new staged transaction.
func (t *Transactor) Begin(_ context.Context) (pgx.Tx, error) {
	return &Tx{store: t.store, held: make(map[uuid.UUID]chan struct{})}, nil
}

// Tx stages writes and holds wallet locks until it finishes. Only Commit and
// Rollback are implemented; the embedded pgx.Tx is nil and the repositories
// never call anything else on it.
type Tx struct {
	pgx.Tx
	store     *Store
	held      map[uuid.UUID]chan struct{}
	ops       []func(s *Store)
	checks    []func(s *Store) error
	idempKeys []string
	done      bool
}

func asTx(tx pgx.Tx) (*Tx, error) {
	t, ok := tx.(*Tx)
	if !ok {
		return nil, fmt.Errorf("memory store: foreign transaction %T", tx)
	}
	if t.done {
		return nil, pgx.ErrTxClosed
	}
	return t, nil
}

// lock acquires the wallet lock for the rest of the transaction.
func (t *Tx) lock(ctx context.Context, id uuid.UUID) error {
	if _, ok := t.held[id]; ok {
		return nil
	}
	ch := t.store.lockFor(id)
	select {
	case ch <- struct{}{}:
		t.held[id] = ch
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Tx) stage(op func(s *Store)) {
	t.ops = append(t.ops, op)
}

// check registers a condition verified under the store lock at commit.
func (t *Tx) check(fn func(s *Store) error) {
	t.checks = append(t.checks, fn)
}

// Commit applies staged writes atomically and releases the wallet locks.
func (t *Tx) Commit(_ context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	defer t.release()

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	for _, key := range t.idempKeys {
		if _, exists := t.store.idemp[key]; exists {
			return ports.ErrIdempotencyKeyExists
		}
	}
	for _, check := range t.checks {
		if err := check(t.store); err != nil {
			return err
		}
	}
	for _, op := range t.ops {
		op(t.store)
	}
	return nil
}

// Rollback discards staged writes and releases the wallet locks.
func (t *Tx) Rollback(_ context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.release()
	return nil
}

func (t *Tx) release() {
	for id, ch := range t.held {
		<-ch
		delete(t.held, id)
	}
	t.ops = nil
	t.checks = nil
}

// errWalletNotFound mirrors the PostgreSQL adapter's zero-rows-affected error.
var errWalletNotFound = errors.New("wallet not found")

func cloneWallet(w *domain.Wallet) *domain.Wallet {
	c := *w
	if w.RetiredAt != nil {
		r := *w.RetiredAt
		c.RetiredAt = &r
	}
	return &c
}

func compareIDs(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}
