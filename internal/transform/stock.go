package transform

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/wonny/ledgerflow/internal/contracts"
)

const (
	volatilityWindow = 20
	rsiPeriod        = 14
)

var one = decimal.NewFromInt(1)

// stockState is the per-entity rolling state of the stock indicators.
// All of it resets at an entity boundary: no leakage across entities.
type stockState struct {
	prevClose  *decimal.Decimal
	maRings    map[int]*ring
	returnRing *ring // trailing daily returns for volatility

	// Wilder RSI state
	changeCount int
	gainSum     decimal.Decimal
	lossSum     decimal.Decimal
	avgGain     decimal.Decimal
	avgLoss     decimal.Decimal
}

func newStockState(maWindows []int) *stockState {
	st := &stockState{
		maRings:    make(map[int]*ring, len(maWindows)),
		returnRing: newRing(volatilityWindow),
	}
	for _, w := range maWindows {
		st.maRings[w] = newRing(w)
	}
	return st
}

// transformStock computes daily returns, moving averages, trailing
// volatility and Wilder RSI per entity, ordered by (entity, time).
// Insufficient history yields NULL, never a fabricated value.
func (t *Transformer) transformStock(batch *contracts.Batch, spec Spec) (*contracts.Batch, error) {
	if spec.EntityKey == "" || spec.TimeKey == "" {
		return nil, fmt.Errorf("stock spec requires entity and time keys")
	}

	priceCol := spec.PriceColumn
	if priceCol == "" {
		priceCol = "close_price"
	}
	maWindows := spec.MAWindows
	if len(maWindows) == 0 {
		maWindows = []int{20, 50, 200}
	}
	scale := spec.scale()

	batch.SortBy(spec.EntityKey, spec.TimeKey)

	var entity string
	var state *stockState

	for _, rec := range batch.Records {
		ent, _ := contracts.AsString(rec[spec.EntityKey])
		if state == nil || ent != entity {
			entity = ent
			state = newStockState(maWindows)
		}

		close, ok := contracts.AsDecimal(rec[priceCol])
		if !ok {
			// Null price carries no indicator values and does not
			// advance the windows
			rec["daily_return"] = nil
			for _, w := range maWindows {
				rec[maColumn(w)] = nil
			}
			rec["volatility_20d"] = nil
			rec["rsi_14d"] = nil
			continue
		}

		rec["daily_return"] = state.pushReturn(close, scale)
		for _, w := range maWindows {
			r := state.maRings[w]
			r.push(close)
			if r.full() {
				rec[maColumn(w)] = round(r.mean(), scale)
			} else {
				rec[maColumn(w)] = nil
			}
		}
		rec["volatility_20d"] = state.volatility(scale)
		rec["rsi_14d"] = state.pushRSI(close, scale)

		prev := close
		state.prevClose = &prev
	}

	return batch, nil
}

func maColumn(window int) string {
	return fmt.Sprintf("moving_avg_%dd", window)
}

// pushReturn computes close/prev - 1 and feeds the volatility window.
// The window holds the rounded value so volatility is the stddev of the
// published daily_return column, not of a higher-precision shadow.
// Undefined at the first observation of an entity.
func (s *stockState) pushReturn(close decimal.Decimal, scale int32) any {
	if s.prevClose == nil || s.prevClose.IsZero() {
		return nil
	}
	ret := round(close.Div(*s.prevClose).Sub(one), scale)
	s.returnRing.push(ret)
	return ret
}

// volatility is the sample standard deviation of the trailing 20 daily
// returns. Requires 20 returns, i.e. 21 prices.
func (s *stockState) volatility(scale int32) any {
	if !s.returnRing.full() {
		return nil
	}

	mean := s.returnRing.mean()
	variance := decimal.Zero
	for _, r := range s.returnRing.values() {
		d := r.Sub(mean)
		variance = variance.Add(d.Mul(d))
	}
	variance = variance.Div(decimal.NewFromInt(int64(volatilityWindow - 1)))

	stddev := math.Sqrt(variance.InexactFloat64())
	return round(decimal.NewFromFloat(stddev), scale)
}

// pushRSI advances Wilder's RSI with the current price change. The first
// window uses a simple 14-average; later values use Wilder smoothing
// avg = (prev*13 + current)/14. Undefined until 14 changes accumulated.
func (s *stockState) pushRSI(close decimal.Decimal, scale int32) any {
	if s.prevClose == nil {
		return nil
	}

	change := close.Sub(*s.prevClose)
	gain, loss := decimal.Zero, decimal.Zero
	if change.Sign() > 0 {
		gain = change
	} else {
		loss = change.Neg()
	}

	period := decimal.NewFromInt(rsiPeriod)
	s.changeCount++
	switch {
	case s.changeCount < rsiPeriod:
		s.gainSum = s.gainSum.Add(gain)
		s.lossSum = s.lossSum.Add(loss)
		return nil
	case s.changeCount == rsiPeriod:
		s.avgGain = s.gainSum.Add(gain).Div(period)
		s.avgLoss = s.lossSum.Add(loss).Div(period)
	default:
		smooth := decimal.NewFromInt(rsiPeriod - 1)
		s.avgGain = s.avgGain.Mul(smooth).Add(gain).Div(period)
		s.avgLoss = s.avgLoss.Mul(smooth).Add(loss).Div(period)
	}

	if s.avgLoss.IsZero() {
		return round(decimal.NewFromInt(100), scale)
	}

	rs := s.avgGain.Div(s.avgLoss)
	hundred := decimal.NewFromInt(100)
	rsi := hundred.Sub(hundred.Div(one.Add(rs)))
	return round(rsi, scale)
}
