package validate

import (
	"fmt"

	"github.com/wonny/ledgerflow/internal/contracts"
)

// evalSchema verifies that declared columns exist and honor their
// not-null constraints. A missing column fails the entire batch, not
// individual records.
func (v *Validator) evalSchema(batch *contracts.Batch, rs contracts.RuleSet, rule contracts.Rule) ruleEval {
	total := batch.Len()
	failed := make(map[int]struct{})
	var missing []string
	var detail string

	for _, col := range rule.Columns {
		if !hasColumn(batch, col) {
			missing = append(missing, col)
			continue
		}

		if rule.Params.NotNull {
			for i, rec := range batch.Records {
				if contracts.IsNull(rec[col]) {
					failed[i] = struct{}{}
				}
			}
		}
	}

	switch {
	case len(missing) > 0:
		detail = fmt.Sprintf("missing required columns: %v", missing)
	case len(failed) > 0:
		detail = fmt.Sprintf("%d records violate not-null constraint", len(failed))
	}

	failedCount := len(failed)
	if len(missing) > 0 {
		// Absent column voids the whole batch
		failedCount = total
	}

	outcome := newOutcome(rule, total, failedCount)
	outcome.Detail = detail
	outcome.SampleKeys = sampleKeys(batch, rs, failed, sampleLimit)

	return ruleEval{
		outcome:        outcome,
		failedRows:     failed,
		missingColumns: missing,
		forceExceeded:  len(missing) > 0,
	}
}
