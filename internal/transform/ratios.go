package transform

import "github.com/wonny/ledgerflow/internal/contracts"

// transformRatios computes financial ratios per (entity, fiscal_period,
// fiscal_year) row. A zero or null denominator leaves the ratio NULL.
func (t *Transformer) transformRatios(batch *contracts.Batch, spec Spec) (*contracts.Batch, error) {
	scale := spec.scale()

	for _, rec := range batch.Records {
		rec["debt_to_equity"] = safeDiv(rec["total_liabilities"], rec["shareholders_equity"], scale)
		rec["current_ratio"] = safeDiv(rec["current_assets"], rec["current_liabilities"], scale)
		rec["quick_ratio"] = quickRatio(rec, scale)
		rec["roa"] = safeDiv(rec["net_income"], rec["total_assets"], scale)
		rec["roe"] = safeDiv(rec["net_income"], rec["shareholders_equity"], scale)
		rec["profit_margin"] = safeDiv(rec["net_income"], rec["revenue"], scale)
		rec["asset_turnover"] = safeDiv(rec["revenue"], rec["total_assets"], scale)
	}

	return batch, nil
}

// quickRatio is (current_assets - inventory) / current_liabilities
func quickRatio(rec contracts.Record, scale int32) any {
	ca, ok := contracts.AsDecimal(rec["current_assets"])
	if !ok {
		return nil
	}
	inv, ok := contracts.AsDecimal(rec["inventory"])
	if !ok {
		return nil
	}
	return safeDiv(ca.Sub(inv), rec["current_liabilities"], scale)
}
