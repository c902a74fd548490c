package service

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/pkg/apperror"

	"github.com/shopspring/decimal"
)

type legacyGroupKey struct {
	orderID      string
	idempKey     string
	compensating bool
}

// BackfillLinks rings together legacy rows of the same order and posting key
// that were written without sibling links. Only groups of two or more rows
// that sum to zero qualify; anything else is left for manual review.
func (s *MigrationServiceImpl) BackfillLinks(ctx context.Context) (*domain.BackfillResult, error) {
	rows, err := s.txRepo.ListUnlinked(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list unlinked transactions: %w", err))
	}

	groups := make(map[legacyGroupKey][]*domain.WalletTransaction)
	var order []legacyGroupKey
	for i := range rows {
		row := &rows[i]
		if row.EsimOrderID == nil {
			continue
		}
		key := legacyGroupKey{orderID: *row.EsimOrderID, compensating: row.Type.IsCompensating()}
		if row.IdempotencyKey != nil {
			key.idempKey = *row.IdempotencyKey
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], row)
	}

	result := &domain.BackfillResult{}
	for _, key := range order {
		members := groups[key]
		if len(members) < 2 {
			continue
		}
		sum := decimal.Zero
		for _, m := range members {
			sum = sum.Add(m.Amount)
		}
		if !sum.IsZero() {
			s.log.Debug().Str("esim_order_id", key.orderID).Str("sum", sum.String()).Msg("legacy group does not conserve, left unlinked")
			continue
		}

		linked, err := s.linkGroup(ctx, members)
		if err != nil {
			return nil, err
		}
		if linked > 0 {
			result.Groups++
			result.Linked += linked
		}
	}

	s.log.Info().
		Int("groups", result.Groups).
		Int("linked", result.Linked).
		Msg("legacy links backfilled")

	return result, nil
}

func (s *MigrationServiceImpl) linkGroup(ctx context.Context, members []*domain.WalletTransaction) (int, error) {
	sort.Slice(members, func(i, j int) bool {
		if !members[i].CreatedAt.Equal(members[j].CreatedAt) {
			return members[i].CreatedAt.Before(members[j].CreatedAt)
		}
		return bytes.Compare(members[i].ID[:], members[j].ID[:]) < 0
	})

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	linked := 0
	for i, m := range members {
		next := members[(i+1)%len(members)].ID
		ok, err := s.txRepo.SetRelated(ctx, dbTx, m.ID, next)
		if err != nil {
			return 0, apperror.InternalError(fmt.Errorf("link transaction %s: %w", m.ID, err))
		}
		if ok {
			linked++
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return 0, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return linked, nil
}
