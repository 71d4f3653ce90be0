// Package portfolio tracks per-user holdings against research calls and
// computes invested amounts, valuations, and realized P&L.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketcalls/research-call-engine/internal/models"
)

// ErrDuplicatePosition is returned when a user already holds an active
// position on the call. A user may hold at most one active position per call.
var ErrDuplicatePosition = errors.New("an active position for this call already exists")

// ErrInvalidState is returned when an operation requires an active position
// but the position has already been exited.
var ErrInvalidState = errors.New("position is not active")

// PositionStore is the persistence contract for portfolio positions.
type PositionStore interface {
	GetPosition(ctx context.Context, id int64) (*models.PortfolioPosition, error)
	HasActivePosition(ctx context.Context, userID, callID int64) (bool, error)
	CreatePosition(ctx context.Context, p *models.PortfolioPosition) error
	UpdatePosition(ctx context.Context, p *models.PortfolioPosition) error
	ActivePositionsForCall(ctx context.Context, callID int64) ([]*models.PortfolioPosition, error)
	PositionsForUser(ctx context.Context, userID int64) ([]*models.PortfolioPosition, error)
}

// CallDirectory resolves a call by id. Positions hold a call identifier, not
// a live object, so the ledger looks the call up when it needs the direction.
type CallDirectory interface {
	GetCall(ctx context.Context, id int64) (*models.ResearchCall, error)
}

// Ledger manages portfolio positions.
type Ledger struct {
	positions PositionStore
	calls     CallDirectory
}

// NewLedger creates a position ledger.
func NewLedger(positions PositionStore, calls CallDirectory) *Ledger {
	return &Ledger{positions: positions, calls: calls}
}

// Open creates an active position for the user against the call. The invested
// amount is derived as entry price times quantity. Fails with
// ErrDuplicatePosition if the user already holds an active position on the call.
func (l *Ledger) Open(ctx context.Context, userID, callID int64, entryPrice, quantity decimal.Decimal, entryDate time.Time) (*models.PortfolioPosition, error) {
	if !entryPrice.IsPositive() || !quantity.IsPositive() {
		return nil, fmt.Errorf("entry price and quantity must be positive")
	}
	if _, err := l.calls.GetCall(ctx, callID); err != nil {
		return nil, fmt.Errorf("failed to resolve call %d: %w", callID, err)
	}

	exists, err := l.positions.HasActivePosition(ctx, userID, callID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicatePosition
	}

	position := &models.PortfolioPosition{
		UserID:         userID,
		CallID:         callID,
		EntryPrice:     entryPrice,
		Quantity:       quantity,
		EntryDate:      entryDate,
		InvestedAmount: entryPrice.Mul(quantity),
		Status:         models.PositionActive,
	}
	if err := l.positions.CreatePosition(ctx, position); err != nil {
		return nil, err
	}
	return position, nil
}

// RefreshValuation marks the position to market: current value is the current
// price times quantity, unrealized P&L is current value minus invested. When
// the price is unavailable the previous valuation is preserved rather than
// zeroed, and no error is raised.
func (l *Ledger) RefreshValuation(ctx context.Context, position *models.PortfolioPosition, currentPrice decimal.NullDecimal) error {
	if !currentPrice.Valid || position.Status != models.PositionActive {
		return nil
	}

	value := currentPrice.Decimal.Mul(position.Quantity)
	position.CurrentPrice = currentPrice
	position.CurrentValue = decimal.NullDecimal{Decimal: value, Valid: true}
	position.UnrealizedPnl = decimal.NullDecimal{Decimal: value.Sub(position.InvestedAmount), Valid: true}
	return l.positions.UpdatePosition(ctx, position)
}

// RefreshValuationsForCall refreshes every active position referencing the
// call with the freshly sampled price.
func (l *Ledger) RefreshValuationsForCall(ctx context.Context, callID int64, price decimal.Decimal) error {
	positions, err := l.positions.ActivePositionsForCall(ctx, callID)
	if err != nil {
		return err
	}
	current := decimal.NullDecimal{Decimal: price, Valid: true}
	for _, position := range positions {
		if err := l.RefreshValuation(ctx, position, current); err != nil {
			log.Printf("Failed to refresh valuation for position %d: %v", position.ID, err)
		}
	}
	return nil
}

// Exit closes an active position, realizing P&L = (exit - entry) x quantity,
// sign-flipped when the underlying call is a SELL. Fails with ErrInvalidState
// if the position has already been exited.
func (l *Ledger) Exit(ctx context.Context, position *models.PortfolioPosition, exitPrice decimal.Decimal, exitDate time.Time, reason string) error {
	if !exitPrice.IsPositive() {
		return fmt.Errorf("exit price must be positive")
	}
	if position.Status != models.PositionActive {
		return ErrInvalidState
	}

	call, err := l.calls.GetCall(ctx, position.CallID)
	if err != nil {
		return fmt.Errorf("failed to resolve call %d: %w", position.CallID, err)
	}

	realized := exitPrice.Sub(position.EntryPrice).Mul(position.Quantity)
	if call.Direction == models.DirectionSell {
		realized = realized.Neg()
	}

	position.ExitPrice = decimal.NullDecimal{Decimal: exitPrice, Valid: true}
	position.ExitDate = &exitDate
	position.ExitReason = reason
	position.RealizedPnl = decimal.NullDecimal{Decimal: realized, Valid: true}
	position.Status = models.PositionExited
	return l.positions.UpdatePosition(ctx, position)
}

// ExitByID loads and exits a single position. Used by the CRUD layer for
// manual position exits.
func (l *Ledger) ExitByID(ctx context.Context, positionID int64, exitPrice decimal.Decimal, exitDate time.Time, reason string) (*models.PortfolioPosition, error) {
	position, err := l.positions.GetPosition(ctx, positionID)
	if err != nil {
		return nil, err
	}
	if err := l.Exit(ctx, position, exitPrice, exitDate, reason); err != nil {
		return nil, err
	}
	return position, nil
}

// ExitAllForCall exits every active position referencing the call. Invoked
// when the underlying call closes. A failure on one position is logged and
// does not prevent exiting the others; the count of successful exits is
// returned.
func (l *Ledger) ExitAllForCall(ctx context.Context, callID int64, exitPrice decimal.Decimal, exitDate time.Time, reason string) (int, error) {
	positions, err := l.positions.ActivePositionsForCall(ctx, callID)
	if err != nil {
		return 0, err
	}

	exited := 0
	for _, position := range positions {
		if err := l.Exit(ctx, position, exitPrice, exitDate, reason); err != nil {
			log.Printf("Failed to exit position %d for call %d: %v", position.ID, callID, err)
			continue
		}
		exited++
	}
	return exited, nil
}

// Summarize aggregates the user's portfolio: invested and current value
// across active positions, realized P&L and win rate across exited ones.
// Unrealized P&L only counts positions that carry a valuation, so a position
// the sweep has not priced yet contributes nothing instead of showing its
// invested amount as a loss. The win rate is zero when no exits exist.
func (l *Ledger) Summarize(ctx context.Context, userID int64) (*models.PortfolioSummary, error) {
	positions, err := l.positions.PositionsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary := &models.PortfolioSummary{}
	for _, position := range positions {
		switch position.Status {
		case models.PositionActive:
			summary.ActivePositions++
			summary.TotalInvested = summary.TotalInvested.Add(position.InvestedAmount)
			if position.CurrentValue.Valid {
				summary.TotalCurrentValue = summary.TotalCurrentValue.Add(position.CurrentValue.Decimal)
				summary.UnrealizedPnl = summary.UnrealizedPnl.Add(position.CurrentValue.Decimal.Sub(position.InvestedAmount))
			}
		case models.PositionExited:
			summary.ClosedPositions++
			if position.RealizedPnl.Valid {
				summary.RealizedPnl = summary.RealizedPnl.Add(position.RealizedPnl.Decimal)
				if position.RealizedPnl.Decimal.IsPositive() {
					summary.WinningTrades++
				} else if position.RealizedPnl.Decimal.IsNegative() {
					summary.LosingTrades++
				}
			}
		}
	}

	if summary.ClosedPositions > 0 {
		wins := decimal.NewFromInt(int64(summary.WinningTrades))
		total := decimal.NewFromInt(int64(summary.ClosedPositions))
		summary.WinRate = wins.Div(total).Mul(decimal.NewFromInt(100)).Round(2)
	}
	return summary, nil
}
