// Package lifecycle implements the research-call lifecycle engine: the pure
// price-level evaluator, the return-metrics calculator, and the state machine
// that drives calls from draft to closure.
package lifecycle

import (
	"github.com/shopspring/decimal"

	"github.com/marketcalls/research-call-engine/internal/models"
)

// HitTier identifies which price level a sampled price crossed.
type HitTier string

const (
	HitTarget1  HitTier = "TARGET_1"
	HitTarget2  HitTier = "TARGET_2"
	HitTarget3  HitTier = "TARGET_3"
	HitStopLoss HitTier = "STOP_LOSS"
)

// IsTarget reports whether the tier is a target (as opposed to the stop-loss).
func (t HitTier) IsTarget() bool {
	return t == HitTarget1 || t == HitTarget2 || t == HitTarget3
}

// EventType maps the tier to its lifecycle event type.
func (t HitTier) EventType() models.EventType {
	switch t {
	case HitTarget1:
		return models.EventTarget1Hit
	case HitTarget2:
		return models.EventTarget2Hit
	case HitTarget3:
		return models.EventTarget3Hit
	default:
		return models.EventStopLossHit
	}
}

// CloseReason maps the tier to the call's close reason.
func (t HitTier) CloseReason() models.CloseReason {
	switch t {
	case HitTarget1:
		return models.CloseTarget1Hit
	case HitTarget2:
		return models.CloseTarget2Hit
	case HitTarget3:
		return models.CloseTarget3Hit
	default:
		return models.CloseStopLossHit
	}
}

// Evaluate decides whether the sampled price has struck a target tier or the
// stop-loss of the given call. Targets are checked before the stop-loss, and
// the furthest configured target wins, so a single price is reported as at
// most one hit. Boundary prices count (>= / <=, not strict). Returns
// (tier, true) on a hit and (_, false) when no level was crossed.
//
// Pure function: no side effects, safe for unsynchronized concurrent use.
func Evaluate(call *models.ResearchCall, price decimal.Decimal) (HitTier, bool) {
	if call.Direction == models.DirectionBuy {
		if call.Target3.Valid && price.Cmp(call.Target3.Decimal) >= 0 {
			return HitTarget3, true
		}
		if call.Target2.Valid && price.Cmp(call.Target2.Decimal) >= 0 {
			return HitTarget2, true
		}
		if price.Cmp(call.Target1) >= 0 {
			return HitTarget1, true
		}
		if price.Cmp(call.StopLoss) <= 0 {
			return HitStopLoss, true
		}
		return "", false
	}

	// SELL: targets are below entry, stop-loss above.
	if call.Target3.Valid && price.Cmp(call.Target3.Decimal) <= 0 {
		return HitTarget3, true
	}
	if call.Target2.Valid && price.Cmp(call.Target2.Decimal) <= 0 {
		return HitTarget2, true
	}
	if price.Cmp(call.Target1) <= 0 {
		return HitTarget1, true
	}
	if price.Cmp(call.StopLoss) >= 0 {
		return HitStopLoss, true
	}
	return "", false
}
