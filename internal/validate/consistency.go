package validate

import (
	"fmt"
	"time"

	"github.com/wonny/ledgerflow/internal/contracts"
)

// evalConsistency checks type coercibility, uniqueness and cross-field
// comparisons.
func (v *Validator) evalConsistency(batch *contracts.Batch, rs contracts.RuleSet, rule contracts.Rule) (ruleEval, error) {
	total := batch.Len()
	failed := make(map[int]struct{})
	var detail string

	switch {
	case rule.Params.Unique:
		// Duplicates beyond the first occurrence are failures
		seen := make(map[string]struct{}, total)
		dups := 0
		for i, rec := range batch.Records {
			key := contracts.RecordKey(rec, rule.Columns)
			if _, ok := seen[key]; ok {
				failed[i] = struct{}{}
				dups++
				continue
			}
			seen[key] = struct{}{}
		}
		if dups > 0 {
			detail = fmt.Sprintf("%d duplicate (%v) pairs", dups, rule.Columns)
		}

	case rule.Params.CrossOp != "":
		if len(rule.Columns) != 2 {
			return ruleEval{}, fmt.Errorf("cross-field rule needs exactly 2 columns, got %d", len(rule.Columns))
		}
		for i, rec := range batch.Records {
			a, b := rec[rule.Columns[0]], rec[rule.Columns[1]]
			if contracts.IsNull(a) || contracts.IsNull(b) {
				continue
			}
			if !crossHolds(rule.Params.CrossOp, contracts.CompareValues(a, b)) {
				failed[i] = struct{}{}
			}
		}
		if len(failed) > 0 {
			detail = fmt.Sprintf("%d records violate %s %s %s",
				len(failed), rule.Columns[0], rule.Params.CrossOp, rule.Columns[1])
		}

	case rule.Params.DType != "":
		for _, col := range rule.Columns {
			for i, rec := range batch.Records {
				val := rec[col]
				if contracts.IsNull(val) {
					continue
				}
				if !coercible(val, rule.Params.DType, rule.Params.DateFormat) {
					failed[i] = struct{}{}
				}
			}
		}
		if len(failed) > 0 {
			detail = fmt.Sprintf("%d records not coercible to %s", len(failed), rule.Params.DType)
		}

	case rule.Params.DateFormat != "":
		for _, col := range rule.Columns {
			for i, rec := range batch.Records {
				val := rec[col]
				if contracts.IsNull(val) {
					continue
				}
				if !coercible(val, "timestamp", rule.Params.DateFormat) {
					failed[i] = struct{}{}
				}
			}
		}
		if len(failed) > 0 {
			detail = fmt.Sprintf("%d records fail date format %q", len(failed), rule.Params.DateFormat)
		}

	default:
		return ruleEval{}, fmt.Errorf("consistency rule has no check configured")
	}

	outcome := newOutcome(rule, total, len(failed))
	outcome.Detail = detail
	outcome.SampleKeys = sampleKeys(batch, rs, failed, sampleLimit)

	return ruleEval{outcome: outcome, failedRows: failed}, nil
}

// crossHolds applies a comparison operator to a CompareValues result
func crossHolds(op contracts.CrossOp, cmp int) bool {
	switch op {
	case contracts.CrossLT:
		return cmp < 0
	case contracts.CrossLE:
		return cmp <= 0
	case contracts.CrossGT:
		return cmp > 0
	case contracts.CrossGE:
		return cmp >= 0
	case contracts.CrossEQ:
		return cmp == 0
	case contracts.CrossNE:
		return cmp != 0
	default:
		return false
	}
}

// coercible reports whether a non-null value parses as the declared type
// without loss
func coercible(val any, dtype, dateFormat string) bool {
	switch dtype {
	case "decimal":
		_, ok := contracts.AsDecimal(val)
		return ok
	case "int":
		_, ok := contracts.AsInt(val)
		return ok
	case "string":
		_, ok := contracts.AsString(val)
		return ok
	case "timestamp":
		if _, ok := contracts.AsTime(val); ok {
			return true
		}
		s, ok := contracts.AsString(val)
		if !ok {
			return false
		}
		layout := dateFormat
		if layout == "" {
			layout = time.RFC3339
		}
		_, err := time.Parse(layout, s)
		return err == nil
	default:
		return false
	}
}
