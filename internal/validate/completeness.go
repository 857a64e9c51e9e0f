package validate

import (
	"fmt"
	"math"

	"github.com/wonny/ledgerflow/internal/contracts"
)

// evalCompleteness counts nulls per required column against the null
// threshold and verifies row-count expectations.
func (v *Validator) evalCompleteness(batch *contracts.Batch, rs contracts.RuleSet, rule contracts.Rule) ruleEval {
	total := batch.Len()
	failed := make(map[int]struct{})
	var detail string
	forceExceeded := false

	// Row count checks are batch-level: they can fail the rule without
	// pointing at specific rows.
	if rule.Params.MinRows > 0 && total < rule.Params.MinRows {
		detail = fmt.Sprintf("row count %d below minimum %d", total, rule.Params.MinRows)
		forceExceeded = true
	}

	if rule.Params.ExpectedCount > 0 {
		expected := float64(rule.Params.ExpectedCount)
		deviation := math.Abs(float64(total)-expected) / expected
		if deviation > rule.Params.Tolerance {
			detail = fmt.Sprintf("row count %d deviates %.1f%% from expected %d (tolerance %.1f%%)",
				total, deviation*100, rule.Params.ExpectedCount, rule.Params.Tolerance*100)
			forceExceeded = true
		}
	}

	// Null threshold per column. An absent column counts as null on
	// every row; whether that is batch-fatal is the schema rules' call.
	for _, col := range rule.Columns {
		if total == 0 {
			break
		}

		colPresent := hasColumn(batch, col)
		nullRows := make([]int, 0)
		for i, rec := range batch.Records {
			if !colPresent || contracts.IsNull(rec[col]) {
				nullRows = append(nullRows, i)
			}
		}

		nullRate := float64(len(nullRows)) / float64(total) * 100
		if nullRate <= rule.Params.NullThresholdPct {
			// Within tolerance: these nulls are not offenders
			continue
		}

		for _, i := range nullRows {
			failed[i] = struct{}{}
		}
		if detail == "" {
			detail = fmt.Sprintf("column %s null rate %.2f%% exceeds threshold %.2f%%",
				col, nullRate, rule.Params.NullThresholdPct)
		}
	}

	outcome := newOutcome(rule, total, len(failed))
	outcome.Detail = detail
	outcome.SampleKeys = sampleKeys(batch, rs, failed, sampleLimit)

	return ruleEval{outcome: outcome, failedRows: failed, forceExceeded: forceExceeded}
}
