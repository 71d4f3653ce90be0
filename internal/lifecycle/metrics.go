package lifecycle

import (
	"github.com/shopspring/decimal"

	"github.com/marketcalls/research-call-engine/internal/models"
)

var hundred = decimal.NewFromInt(100)

// ExpectedMetrics computes the risk/reward ratio and expected return
// percentage from a call's price levels. The ratio is left unset (not zero)
// when the potential loss is not positive, so "undefined" stays
// distinguishable from "zero risk". Both values are rounded to two places.
func ExpectedMetrics(direction models.Direction, entry, target1, stopLoss decimal.Decimal) (riskReward decimal.NullDecimal, expectedReturnPct decimal.Decimal) {
	var gain, loss decimal.Decimal
	if direction == models.DirectionBuy {
		gain = target1.Sub(entry)
		loss = entry.Sub(stopLoss)
	} else {
		gain = entry.Sub(target1)
		loss = stopLoss.Sub(entry)
	}

	if loss.IsPositive() {
		riskReward = decimal.NullDecimal{
			Decimal: gain.Div(loss).Round(2),
			Valid:   true,
		}
	}

	expectedReturnPct = gain.Div(entry).Mul(hundred).Round(2)
	return riskReward, expectedReturnPct
}

// ActualReturn computes the realized return percentage of a closed call and
// whether the exit was profitable. For SELL calls a falling price is a gain.
func ActualReturn(direction models.Direction, entry, exitPrice decimal.Decimal) (returnPct decimal.Decimal, successful bool) {
	diff := exitPrice.Sub(entry)
	if direction == models.DirectionSell {
		diff = diff.Neg()
	}
	returnPct = diff.Div(entry).Mul(hundred).Round(2)
	return returnPct, returnPct.IsPositive()
}

// ApplyExpectedMetrics recomputes and stores the derived expected metrics on
// the call. Invoked on create and on every update of the price levels; the
// derived fields are never recomputed on read.
func ApplyExpectedMetrics(call *models.ResearchCall) {
	rr, exp := ExpectedMetrics(call.Direction, call.EntryPrice, call.Target1, call.StopLoss)
	call.RiskRewardRatio = rr
	call.ExpectedReturnPct = decimal.NullDecimal{Decimal: exp, Valid: true}
}
