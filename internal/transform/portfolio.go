package transform

import (
	"github.com/shopspring/decimal"

	"github.com/wonny/ledgerflow/internal/contracts"
)

// transformPortfolio computes market value, unrealized P&L and position
// weights per (portfolio, symbol, date) row. Weights need the portfolio's
// total market value for the date, so this runs in two passes.
func (t *Transformer) transformPortfolio(batch *contracts.Batch, spec Spec) (*contracts.Batch, error) {
	scale := spec.scale()

	portfolioKey := spec.PortfolioKey
	if portfolioKey == "" {
		portfolioKey = "portfolio_id"
	}
	dateKey := spec.DateKey
	if dateKey == "" {
		dateKey = "position_date"
	}
	groupCols := []string{portfolioKey, dateKey}

	// First pass: per-position values and per-(portfolio, date) totals
	totals := make(map[string]decimal.Decimal)
	for _, rec := range batch.Records {
		qty, qok := contracts.AsDecimal(rec["quantity"])
		price, pok := contracts.AsDecimal(rec["current_price"])
		cost, cok := contracts.AsDecimal(rec["avg_cost"])

		if !qok || !pok {
			rec["market_value"] = nil
		} else {
			mv := qty.Mul(price)
			rec["market_value"] = round(mv, scale)
			key := contracts.RecordKey(rec, groupCols)
			totals[key] = totals[key].Add(mv)
		}

		if !qok || !pok || !cok {
			rec["unrealized_pnl"] = nil
			rec["pnl_percentage"] = nil
			continue
		}

		pnl := price.Sub(cost).Mul(qty)
		rec["unrealized_pnl"] = round(pnl, scale)
		// pnl over cost basis; zero basis leaves it undefined
		rec["pnl_percentage"] = safeDiv(pnl.Mul(decimal.NewFromInt(100)), cost.Mul(qty), scale)
	}

	// Second pass: weight within the portfolio's date total. A zero
	// total leaves the weight undefined.
	for _, rec := range batch.Records {
		mv, ok := contracts.AsDecimal(rec["market_value"])
		if !ok {
			rec["weight"] = nil
			continue
		}
		total := totals[contracts.RecordKey(rec, groupCols)]
		if total.IsZero() {
			rec["weight"] = nil
			continue
		}
		rec["weight"] = round(mv.Div(total), scale)
	}

	return batch, nil
}
