// Package models provides the domain types for research calls and portfolio positions.
package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side of a research call.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
)

// CallStatus is the lifecycle status of a research call.
type CallStatus string

const (
	StatusDraft           CallStatus = "DRAFT"
	StatusPendingApproval CallStatus = "PENDING_APPROVAL"
	StatusApproved        CallStatus = "APPROVED"
	StatusRejected        CallStatus = "REJECTED"
	StatusActive          CallStatus = "ACTIVE"
	StatusClosed          CallStatus = "CLOSED"
)

// CloseReason records why a call reached CLOSED. The hit statuses from the
// monitoring sweep are transient; the terminal status is always CLOSED with
// one of these reasons.
type CloseReason string

const (
	CloseTarget1Hit     CloseReason = "TARGET_1_HIT"
	CloseTarget2Hit     CloseReason = "TARGET_2_HIT"
	CloseTarget3Hit     CloseReason = "TARGET_3_HIT"
	CloseStopLossHit    CloseReason = "STOP_LOSS_HIT"
	CloseManuallyExited CloseReason = "MANUALLY_EXITED"
	CloseExpired        CloseReason = "EXPIRED"
)

// CallType categorizes the holding horizon of a call.
type CallType string

const (
	CallTypeIntraday   CallType = "INTRADAY"
	CallTypeSwing      CallType = "SWING"
	CallTypeShortTerm  CallType = "SHORT_TERM"
	CallTypeMediumTerm CallType = "MEDIUM_TERM"
	CallTypeLongTerm   CallType = "LONG_TERM"
	CallTypePositional CallType = "POSITIONAL"
)

// ResearchCall is a broker-issued directional price prediction with an entry,
// up to three targets, and a stop-loss.
type ResearchCall struct {
	ID         int64 `json:"id"`
	BrokerID   int64 `json:"broker_id"`
	CreatedBy  int64 `json:"created_by"`
	ApprovedBy int64 `json:"approved_by,omitempty"`

	Symbol         string    `json:"symbol"`
	Exchange       string    `json:"exchange"`
	InstrumentType string    `json:"instrument_type,omitempty"`
	CallType       CallType  `json:"call_type"`
	Direction      Direction `json:"direction"`
	Rationale      string    `json:"rationale,omitempty"`
	TimeframeDays  int       `json:"timeframe_days,omitempty"`

	EntryPrice decimal.Decimal     `json:"entry_price"`
	Target1    decimal.Decimal     `json:"target_1"`
	Target2    decimal.NullDecimal `json:"target_2,omitempty"`
	Target3    decimal.NullDecimal `json:"target_3,omitempty"`
	StopLoss   decimal.Decimal     `json:"stop_loss"`

	// Derived on create/update of price levels, never on read.
	RiskRewardRatio   decimal.NullDecimal `json:"risk_reward_ratio,omitempty"`
	ExpectedReturnPct decimal.NullDecimal `json:"expected_return_pct,omitempty"`

	Status      CallStatus `json:"status"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`

	// Set once, at close.
	ExitPrice       decimal.NullDecimal `json:"exit_price,omitempty"`
	ExitReason      CloseReason         `json:"exit_reason,omitempty"`
	ActualReturnPct decimal.NullDecimal `json:"actual_return_pct,omitempty"`
	IsSuccessful    *bool               `json:"is_successful,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrInvalidPriceLevels wraps every price-ladder validation failure.
var ErrInvalidPriceLevels = errors.New("invalid price levels")

// ErrMissingPriceLevels is returned when entry, target 1, or stop-loss is absent.
var ErrMissingPriceLevels = errors.New("entry price, target 1, and stop loss are required")

// ValidatePriceLevels enforces the direction-dependent ordering of the price
// ladder. For BUY: stop_loss < entry < target_1 < target_2 < target_3. For
// SELL the ordering is mirrored. Optional targets only constrain when set.
func (c *ResearchCall) ValidatePriceLevels() error {
	if c.EntryPrice.IsZero() || c.Target1.IsZero() || c.StopLoss.IsZero() {
		return ErrMissingPriceLevels
	}

	switch c.Direction {
	case DirectionBuy:
		if c.Target1.Cmp(c.EntryPrice) <= 0 {
			return fmt.Errorf("%w: target 1 must be greater than entry price for BUY calls", ErrInvalidPriceLevels)
		}
		if c.StopLoss.Cmp(c.EntryPrice) >= 0 {
			return fmt.Errorf("%w: stop loss must be less than entry price for BUY calls", ErrInvalidPriceLevels)
		}
		if c.Target2.Valid && c.Target2.Decimal.Cmp(c.Target1) <= 0 {
			return fmt.Errorf("%w: target 2 must be greater than target 1 for BUY calls", ErrInvalidPriceLevels)
		}
		if c.Target3.Valid {
			if !c.Target2.Valid {
				return fmt.Errorf("%w: target 3 requires target 2", ErrInvalidPriceLevels)
			}
			if c.Target3.Decimal.Cmp(c.Target2.Decimal) <= 0 {
				return fmt.Errorf("%w: target 3 must be greater than target 2 for BUY calls", ErrInvalidPriceLevels)
			}
		}
	case DirectionSell:
		if c.Target1.Cmp(c.EntryPrice) >= 0 {
			return fmt.Errorf("%w: target 1 must be less than entry price for SELL calls", ErrInvalidPriceLevels)
		}
		if c.StopLoss.Cmp(c.EntryPrice) <= 0 {
			return fmt.Errorf("%w: stop loss must be greater than entry price for SELL calls", ErrInvalidPriceLevels)
		}
		if c.Target2.Valid && c.Target2.Decimal.Cmp(c.Target1) >= 0 {
			return fmt.Errorf("%w: target 2 must be less than target 1 for SELL calls", ErrInvalidPriceLevels)
		}
		if c.Target3.Valid {
			if !c.Target2.Valid {
				return fmt.Errorf("%w: target 3 requires target 2", ErrInvalidPriceLevels)
			}
			if c.Target3.Decimal.Cmp(c.Target2.Decimal) >= 0 {
				return fmt.Errorf("%w: target 3 must be less than target 2 for SELL calls", ErrInvalidPriceLevels)
			}
		}
	default:
		return fmt.Errorf("%w: unknown call direction: %q", ErrInvalidPriceLevels, c.Direction)
	}

	return nil
}

// IsTerminal reports whether the call has reached its terminal status.
func (c *ResearchCall) IsTerminal() bool {
	return c.Status == StatusClosed
}

func (c *ResearchCall) String() string {
	return fmt.Sprintf("%s %s @ %s (%s)", c.Direction, c.Symbol, c.EntryPrice, c.CallType)
}
