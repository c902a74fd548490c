package service

import (
	"context"
	"sync"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/rs/zerolog"
)

// RebalanceScheduler runs a full rebalance on a fixed interval.
type RebalanceScheduler struct {
	svc      ports.RebalanceService
	interval time.Duration
	timeout  time.Duration
	log      zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRebalanceScheduler creates a scheduler. A non-positive interval disables it.
func NewRebalanceScheduler(svc ports.RebalanceService, interval time.Duration, log zerolog.Logger) *RebalanceScheduler {
	return &RebalanceScheduler{
		svc:      svc,
		interval: interval,
		timeout:  interval,
		log:      log,
	}
}

// Start runs one rebalance immediately, then one per interval until Stop.
func (rs *RebalanceScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.interval <= 0 {
		rs.log.Info().Msg("rebalance scheduler disabled")
		return
	}
	if rs.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	rs.cancel = cancel
	rs.wg.Add(1)
	go rs.run(ctx)

	rs.log.Info().Dur("interval", rs.interval).Msg("rebalance scheduler started")
}

// Stop halts the scheduler and waits for an in-flight run to finish.
func (rs *RebalanceScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.cancel == nil {
		return
	}
	rs.cancel()
	rs.wg.Wait()
	rs.cancel = nil
	rs.log.Info().Msg("rebalance scheduler stopped")
}

func (rs *RebalanceScheduler) run(ctx context.Context) {
	defer rs.wg.Done()

	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	rs.runOnce(ctx)
	for {
		select {
		case <-ticker.C:
			rs.runOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (rs *RebalanceScheduler) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, rs.timeout)
	defer cancel()

	result, err := rs.svc.Rebalance(runCtx, domain.RebalanceScope{})
	if err != nil {
		rs.log.Error().Err(err).Msg("scheduled rebalance failed")
		return
	}
	if result.Updated > 0 {
		rs.log.Warn().
			Int("updated", result.Updated).
			Int("total", result.Total).
			Msg("scheduled rebalance corrected wallets")
	}
}
