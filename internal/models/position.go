package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus is the lifecycle status of a portfolio position.
type PositionStatus string

const (
	PositionActive PositionStatus = "ACTIVE"
	PositionExited PositionStatus = "EXITED"
)

// PortfolioPosition is one user's holding against a research call. The call
// is referenced by id only; many positions may reference one call.
type PortfolioPosition struct {
	ID     int64 `json:"id"`
	UserID int64 `json:"user_id"`
	CallID int64 `json:"call_id"`

	EntryPrice     decimal.Decimal `json:"entry_price"`
	Quantity       decimal.Decimal `json:"quantity"`
	EntryDate      time.Time       `json:"entry_date"`
	InvestedAmount decimal.Decimal `json:"invested_amount"`

	// Mark-to-market fields, refreshed by the monitoring sweep. Stale values
	// are preserved when no fresh price is available.
	CurrentPrice  decimal.NullDecimal `json:"current_price,omitempty"`
	CurrentValue  decimal.NullDecimal `json:"current_value,omitempty"`
	UnrealizedPnl decimal.NullDecimal `json:"unrealized_pnl,omitempty"`

	ExitPrice   decimal.NullDecimal `json:"exit_price,omitempty"`
	ExitDate    *time.Time          `json:"exit_date,omitempty"`
	ExitReason  string              `json:"exit_reason,omitempty"`
	RealizedPnl decimal.NullDecimal `json:"realized_pnl,omitempty"`

	Status    PositionStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// PortfolioSummary aggregates a user's positions.
type PortfolioSummary struct {
	TotalInvested     decimal.Decimal `json:"total_invested"`
	TotalCurrentValue decimal.Decimal `json:"total_current_value"`
	UnrealizedPnl     decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnl       decimal.Decimal `json:"realized_pnl"`
	ActivePositions   int             `json:"active_positions"`
	ClosedPositions   int             `json:"closed_positions"`
	WinningTrades     int             `json:"winning_trades"`
	LosingTrades      int             `json:"losing_trades"`
	WinRate           decimal.Decimal `json:"win_rate"`
}
