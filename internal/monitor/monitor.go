// Package monitor implements the periodic sweep that materializes the effect
// of market movement on all active research calls and their positions.
package monitor

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/marketcalls/research-call-engine/internal/lifecycle"
	"github.com/marketcalls/research-call-engine/internal/models"
	"github.com/marketcalls/research-call-engine/internal/pricefeed"
)

// CallSource enumerates the calls the sweep must evaluate.
type CallSource interface {
	ListActiveCalls(ctx context.Context) ([]*models.ResearchCall, error)
}

// Engine is the subset of the lifecycle engine the sweep drives.
type Engine interface {
	RecordHit(ctx context.Context, callID int64, tier lifecycle.HitTier, price decimal.Decimal) (*models.ResearchCall, error)
	Expire(ctx context.Context, callID int64) (*models.ResearchCall, error)
}

// Ledger is the subset of the position ledger the sweep drives.
type Ledger interface {
	ExitAllForCall(ctx context.Context, callID int64, exitPrice decimal.Decimal, exitDate time.Time, reason string) (int, error)
	RefreshValuationsForCall(ctx context.Context, callID int64, price decimal.Decimal) error
}

// SweepResult summarizes one monitoring pass.
type SweepResult struct {
	Checked         int
	TargetsHit      int
	StopLossesHit   int
	Expired         int
	FeedErrors      int
	PositionsExited int
}

// Monitor periodically sweeps all active calls: expiry first, then price
// evaluation, closing calls and exiting their positions on a hit. The engine
// is stateless between sweeps; everything durable lives in the store.
type Monitor struct {
	source   CallSource
	engine   Engine
	ledger   Ledger
	feed     pricefeed.Feed
	interval time.Duration
	workers  int
	locks    *keyedMutex
	now      func() time.Time
}

// New creates a monitor. workers bounds how many calls are processed in
// parallel within one sweep.
func New(source CallSource, engine Engine, ledger Ledger, feed pricefeed.Feed, interval time.Duration, workers int) *Monitor {
	if workers < 1 {
		workers = 1
	}
	return &Monitor{
		source:   source,
		engine:   engine,
		ledger:   ledger,
		feed:     feed,
		interval: interval,
		workers:  workers,
		locks:    newKeyedMutex(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the monitor's clock. Used by tests.
func (m *Monitor) SetClock(now func() time.Time) {
	m.now = now
}

// Run sweeps immediately and then on every tick until the context is
// cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		result, err := m.Sweep(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("Sweep failed: %v", err)
		} else {
			log.Printf("Sweep complete: checked=%d targets_hit=%d stop_losses_hit=%d expired=%d feed_errors=%d positions_exited=%d",
				result.Checked, result.TargetsHit, result.StopLossesHit, result.Expired, result.FeedErrors, result.PositionsExited)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep evaluates every active call once. Calls are processed by a bounded
// worker pool; failures are isolated per call, so one bad fetch or store
// error never aborts the pass. Cancellation is honored between calls, never
// mid-transition.
func (m *Monitor) Sweep(ctx context.Context) (*SweepResult, error) {
	started := m.now()
	calls, err := m.source.ListActiveCalls(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu     sync.Mutex
		result SweepResult
	)

	g := &errgroup.Group{}
	g.SetLimit(m.workers)
	for _, call := range calls {
		if ctx.Err() != nil {
			break
		}
		call := call
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			outcome := m.processCall(ctx, call)
			mu.Lock()
			result.Checked++
			result.TargetsHit += outcome.TargetsHit
			result.StopLossesHit += outcome.StopLossesHit
			result.Expired += outcome.Expired
			result.FeedErrors += outcome.FeedErrors
			result.PositionsExited += outcome.PositionsExited
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	mtxSweeps.Inc()
	mtxSweepDuration.Observe(m.now().Sub(started).Seconds())
	return &result, nil
}

// processCall runs the per-call pipeline under the call's lock: expiry check,
// price fetch, level evaluation, and on a hit the transition plus position
// exits. Every failure is contained to this call.
func (m *Monitor) processCall(ctx context.Context, call *models.ResearchCall) SweepResult {
	unlock := m.locks.Lock(call.ID)
	defer unlock()

	var out SweepResult
	mtxCallsChecked.Inc()
	now := m.now()

	// Expiry takes priority over price evaluation.
	if call.ExpiresAt != nil && !call.ExpiresAt.After(now) {
		if _, err := m.engine.Expire(ctx, call.ID); err != nil {
			log.Printf("Failed to expire call %d (%s): %v", call.ID, call.Symbol, err)
			return out
		}
		out.Expired++
		mtxExpirations.Inc()
		return out
	}

	price, err := m.feed.FetchPrice(ctx, call.Symbol)
	if err != nil {
		// Transient: the call stays active and the next sweep retries.
		log.Printf("Price fetch failed for call %d (%s): %v", call.ID, call.Symbol, err)
		out.FeedErrors++
		mtxFeedErrors.Inc()
		return out
	}

	tier, hit := lifecycle.Evaluate(call, price)
	if !hit {
		if err := m.ledger.RefreshValuationsForCall(ctx, call.ID, price); err != nil {
			log.Printf("Failed to refresh valuations for call %d: %v", call.ID, err)
		}
		return out
	}

	if _, err := m.engine.RecordHit(ctx, call.ID, tier, price); err != nil {
		if errors.Is(err, lifecycle.ErrAlreadyClosed) {
			// Another actor closed the call first; nothing to do.
			return out
		}
		log.Printf("Failed to record %s hit on call %d (%s): %v", tier, call.ID, call.Symbol, err)
		return out
	}

	if tier.IsTarget() {
		out.TargetsHit++
	} else {
		out.StopLossesHit++
	}
	mtxHits.WithLabelValues(string(tier)).Inc()

	exited, err := m.ledger.ExitAllForCall(ctx, call.ID, price, now, string(tier.CloseReason()))
	if err != nil {
		log.Printf("Failed to exit positions for call %d: %v", call.ID, err)
		return out
	}
	out.PositionsExited += exited
	if exited > 0 {
		mtxPositionsExited.Add(float64(exited))
	}
	return out
}
