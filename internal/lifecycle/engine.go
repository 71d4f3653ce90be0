package lifecycle

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketcalls/research-call-engine/internal/models"
)

// Store is the persistence contract the engine requires. Write methods must
// be atomic: the call update and its event rows commit together or not at
// all, so no state change is ever observed without a corresponding event.
type Store interface {
	GetCall(ctx context.Context, id int64) (*models.ResearchCall, error)
	CreateCallWithEvent(ctx context.Context, call *models.ResearchCall, event *models.ResearchCallEvent) error
	UpdateCallWithEvents(ctx context.Context, call *models.ResearchCall, events ...*models.ResearchCallEvent) error
}

// EventPublisher fans lifecycle events out to the notification collaborator.
// Delivery is best-effort; publish failures never roll back a transition.
type EventPublisher interface {
	PublishEvent(ctx context.Context, call *models.ResearchCall, event *models.ResearchCallEvent) error
}

// Engine owns the legal state graph of a research call and performs every
// transition atomically with its event-log write.
type Engine struct {
	store     Store
	publisher EventPublisher
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithPublisher attaches an event publisher for notification fan-out.
func WithPublisher(p EventPublisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// NewEngine creates a lifecycle engine backed by the given store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Create validates the price ladder, computes the expected metrics, and
// persists the call in DRAFT together with its CREATED event.
func (e *Engine) Create(ctx context.Context, call *models.ResearchCall) (*models.ResearchCall, error) {
	if err := call.ValidatePriceLevels(); err != nil {
		return nil, err
	}
	ApplyExpectedMetrics(call)
	call.Status = models.StatusDraft

	event := &models.ResearchCallEvent{
		EventType:   models.EventCreated,
		TriggeredBy: call.CreatedBy,
		Notes:       fmt.Sprintf("Call created for %s", call.Symbol),
	}
	if err := e.store.CreateCallWithEvent(ctx, call, event); err != nil {
		return nil, err
	}
	e.notify(ctx, call, event)
	return call, nil
}

// UpdatePriceLevels replaces the price ladder of a DRAFT call, re-validates
// it, and recomputes the derived metrics. Legal only before submission.
func (e *Engine) UpdatePriceLevels(ctx context.Context, callID int64, entry, target1 decimal.Decimal, target2, target3 decimal.NullDecimal, stopLoss decimal.Decimal, actorID int64) (*models.ResearchCall, error) {
	call, err := e.store.GetCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	if call.Status != models.StatusDraft {
		return nil, &IllegalTransitionError{CallID: call.ID, From: call.Status, Op: "update price levels of"}
	}

	call.EntryPrice = entry
	call.Target1 = target1
	call.Target2 = target2
	call.Target3 = target3
	call.StopLoss = stopLoss
	if err := call.ValidatePriceLevels(); err != nil {
		return nil, err
	}
	ApplyExpectedMetrics(call)

	event := &models.ResearchCallEvent{
		CallID:      call.ID,
		EventType:   models.EventUpdated,
		TriggeredBy: actorID,
		Notes:       "Price levels updated",
	}
	if err := e.store.UpdateCallWithEvents(ctx, call, event); err != nil {
		return nil, err
	}
	e.notify(ctx, call, event)
	return call, nil
}

// SubmitForApproval moves a DRAFT call into the approval queue.
func (e *Engine) SubmitForApproval(ctx context.Context, callID, actorID int64) (*models.ResearchCall, error) {
	return e.transition(ctx, callID, "submit", models.StatusDraft, models.StatusPendingApproval,
		&models.ResearchCallEvent{
			EventType:   models.EventSubmittedForApproval,
			TriggeredBy: actorID,
			Notes:       "Call submitted for approval",
		}, nil)
}

// Approve marks a PENDING_APPROVAL call as APPROVED. The approver identity is
// assumed already authorized by the caller.
func (e *Engine) Approve(ctx context.Context, callID, approverID int64) (*models.ResearchCall, error) {
	return e.transition(ctx, callID, "approve", models.StatusPendingApproval, models.StatusApproved,
		&models.ResearchCallEvent{
			EventType:   models.EventApproved,
			TriggeredBy: approverID,
			Notes:       "Call approved",
		},
		func(call *models.ResearchCall) {
			call.ApprovedBy = approverID
		})
}

// Reject returns a PENDING_APPROVAL call to its issuer.
func (e *Engine) Reject(ctx context.Context, callID, reviewerID int64, reason string) (*models.ResearchCall, error) {
	return e.transition(ctx, callID, "reject", models.StatusPendingApproval, models.StatusRejected,
		&models.ResearchCallEvent{
			EventType:   models.EventRejected,
			TriggeredBy: reviewerID,
			Notes:       reason,
		}, nil)
}

// Publish activates an APPROVED call and stamps its publication time. From
// that point the monitoring sweep evaluates it.
func (e *Engine) Publish(ctx context.Context, callID, publisherID int64) (*models.ResearchCall, error) {
	publishedAt := e.now()
	return e.transition(ctx, callID, "publish", models.StatusApproved, models.StatusActive,
		&models.ResearchCallEvent{
			EventType:   models.EventPublished,
			TriggeredBy: publisherID,
			Notes:       "Call published",
		},
		func(call *models.ResearchCall) {
			call.PublishedAt = &publishedAt
		})
}

// RecordHit closes an ACTIVE call because the sampled price struck the given
// tier. It sets the realized return and success flag, then writes the typed
// hit event and the CLOSED event in one atomic unit with the status change.
// A second terminal transition fails with ErrAlreadyClosed.
func (e *Engine) RecordHit(ctx context.Context, callID int64, tier HitTier, price decimal.Decimal) (*models.ResearchCall, error) {
	call, err := e.store.GetCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	if call.IsTerminal() {
		return nil, ErrAlreadyClosed
	}
	if call.Status != models.StatusActive {
		return nil, &IllegalTransitionError{CallID: call.ID, From: call.Status, Op: "record hit on"}
	}

	returnPct, successful := ActualReturn(call.Direction, call.EntryPrice, price)
	// A stop-loss hit is never a success, whatever the sign of the return.
	successful = successful && tier.IsTarget()

	call.ExitPrice = decimal.NullDecimal{Decimal: price, Valid: true}
	call.ActualReturnPct = decimal.NullDecimal{Decimal: returnPct, Valid: true}
	call.IsSuccessful = &successful

	hitEvent := &models.ResearchCallEvent{
		CallID:       call.ID,
		EventType:    tier.EventType(),
		PriceAtEvent: decimal.NullDecimal{Decimal: price, Valid: true},
		Notes:        fmt.Sprintf("%s struck at %s", tier, price),
	}
	return e.close(ctx, call, tier.CloseReason(), hitEvent)
}

// Expire closes an ACTIVE call whose expiry timestamp has passed. It is
// idempotent: expiring an already-closed call is a no-op, because expiry
// sweeps are frequent and retries must not raise.
func (e *Engine) Expire(ctx context.Context, callID int64) (*models.ResearchCall, error) {
	call, err := e.store.GetCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	if call.IsTerminal() {
		return call, nil
	}
	if call.Status != models.StatusActive {
		return nil, &IllegalTransitionError{CallID: call.ID, From: call.Status, Op: "expire"}
	}
	if call.ExpiresAt == nil || call.ExpiresAt.After(e.now()) {
		return nil, &IllegalTransitionError{CallID: call.ID, From: call.Status, Op: "expire unexpired"}
	}

	expiredEvent := &models.ResearchCallEvent{
		CallID:    call.ID,
		EventType: models.EventExpired,
		Notes:     "Call expired",
	}
	return e.close(ctx, call, models.CloseExpired, expiredEvent)
}

// ExitManually closes an ACTIVE call at the issuer's discretion, realizing
// the return at the given price.
func (e *Engine) ExitManually(ctx context.Context, callID int64, price decimal.Decimal, actorID int64) (*models.ResearchCall, error) {
	call, err := e.store.GetCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	if call.IsTerminal() {
		return nil, ErrAlreadyClosed
	}
	if call.Status != models.StatusActive {
		return nil, &IllegalTransitionError{CallID: call.ID, From: call.Status, Op: "exit"}
	}

	returnPct, successful := ActualReturn(call.Direction, call.EntryPrice, price)
	call.ExitPrice = decimal.NullDecimal{Decimal: price, Valid: true}
	call.ActualReturnPct = decimal.NullDecimal{Decimal: returnPct, Valid: true}
	call.IsSuccessful = &successful

	exitEvent := &models.ResearchCallEvent{
		CallID:       call.ID,
		EventType:    models.EventManuallyExited,
		PriceAtEvent: decimal.NullDecimal{Decimal: price, Valid: true},
		TriggeredBy:  actorID,
		Notes:        fmt.Sprintf("Manually exited at %s", price),
	}
	return e.close(ctx, call, models.CloseManuallyExited, exitEvent)
}

// close terminates the call with the given reason and writes the CLOSED event
// alongside any preceding events in a single atomic store write. A call
// closes exactly once.
func (e *Engine) close(ctx context.Context, call *models.ResearchCall, reason models.CloseReason, preceding ...*models.ResearchCallEvent) (*models.ResearchCall, error) {
	if call.IsTerminal() {
		return nil, ErrAlreadyClosed
	}

	closedAt := e.now()
	call.Status = models.StatusClosed
	call.ExitReason = reason
	call.ClosedAt = &closedAt

	events := append(preceding, &models.ResearchCallEvent{
		CallID:    call.ID,
		EventType: models.EventClosed,
		Notes:     fmt.Sprintf("Call closed: %s", reason),
	})
	if err := e.store.UpdateCallWithEvents(ctx, call, events...); err != nil {
		return nil, err
	}
	e.notify(ctx, call, events...)
	return call, nil
}

// transition performs a simple non-terminal state change guarded by the
// required source status, atomically with its event.
func (e *Engine) transition(ctx context.Context, callID int64, op string, from, to models.CallStatus, event *models.ResearchCallEvent, mutate func(*models.ResearchCall)) (*models.ResearchCall, error) {
	call, err := e.store.GetCall(ctx, callID)
	if err != nil {
		return nil, err
	}
	if call.IsTerminal() {
		return nil, ErrAlreadyClosed
	}
	if call.Status != from {
		return nil, &IllegalTransitionError{CallID: call.ID, From: call.Status, Op: op}
	}

	call.Status = to
	if mutate != nil {
		mutate(call)
	}
	event.CallID = call.ID
	if err := e.store.UpdateCallWithEvents(ctx, call, event); err != nil {
		return nil, err
	}
	e.notify(ctx, call, event)
	return call, nil
}

func (e *Engine) notify(ctx context.Context, call *models.ResearchCall, events ...*models.ResearchCallEvent) {
	if e.publisher == nil {
		return
	}
	for _, event := range events {
		if err := e.publisher.PublishEvent(ctx, call, event); err != nil {
			log.Printf("Failed to publish %s event for call %d: %v", event.EventType, call.ID, err)
		}
	}
}
