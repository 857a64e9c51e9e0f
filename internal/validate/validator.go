package validate

import (
	"context"
	"fmt"
	"strings"

	"github.com/wonny/ledgerflow/internal/contracts"
	"github.com/wonny/ledgerflow/pkg/logger"
)

// Validator evaluates a RuleSet against a batch
// ⭐ SSOT: 데이터 품질 검증은 여기서만
type Validator struct {
	logger *logger.Logger
	strict bool
}

// New creates a new Validator
func New(log *logger.Logger, strict bool) *Validator {
	return &Validator{
		logger: log,
		strict: strict,
	}
}

// Evaluation is the outcome of validating one batch. It keeps the
// offending row set internally so the caller can filter for non-strict
// continuation without re-running the rules.
type Evaluation struct {
	Result  *contracts.ValidationResult
	blocked map[int]struct{}
}

// ruleEval is the internal result of evaluating a single rule
type ruleEval struct {
	outcome contracts.RuleOutcome
	// failedRows holds offending row indexes for row-filterable rules.
	// Batch-level checks (row counts, absent columns) leave it nil.
	failedRows map[int]struct{}
	// missingColumns marks a schema-level absence, fatal to the batch
	missingColumns []string
	// forceExceeded marks batch-level violations that carry no per-row
	// failure count (row-count checks, absent columns)
	forceExceeded bool
}

// sampleLimit caps how many offending row keys an outcome reports
const sampleLimit = 5

// Validate evaluates every rule of the RuleSet against the batch.
//
// A required column absent from the batch fails the whole batch with a
// SchemaViolation regardless of strict mode. In strict mode any blocking
// rule past its threshold returns a ValidationFailure instead of a result
// the caller could ignore.
func (v *Validator) Validate(ctx context.Context, batch *contracts.Batch, rs contracts.RuleSet) (*Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &contracts.ValidationResult{
		Dataset:      rs.Dataset,
		TotalRecords: batch.Len(),
	}
	blocked := make(map[int]struct{})
	var missing []string

	for _, rule := range rs.Rules {
		eval, err := v.evalRule(batch, rs, rule)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", rule.ID, err)
		}

		if len(eval.missingColumns) > 0 {
			missing = append(missing, eval.missingColumns...)
		}

		eval.outcome.Exceeded = rule.Blocking() &&
			(eval.outcome.FailedRecords > rule.Threshold || eval.forceExceeded)
		result.Outcomes = append(result.Outcomes, eval.outcome)

		// Offending rows of a blocking rule over threshold are excluded
		// from downstream transformation in non-strict mode.
		if eval.outcome.Exceeded {
			for i := range eval.failedRows {
				blocked[i] = struct{}{}
			}
		}
	}

	result.FailedRecords = len(blocked)
	result.PassedRecords = result.TotalRecords - result.FailedRecords
	result.Passed = len(result.BlockingFailures()) == 0 && len(missing) == 0

	v.logResult(result)

	if len(missing) > 0 {
		return &Evaluation{Result: result, blocked: blocked},
			&contracts.SchemaViolation{Dataset: rs.Dataset, Columns: dedupe(missing)}
	}

	if v.strict && !result.Passed {
		return &Evaluation{Result: result, blocked: blocked},
			&contracts.ValidationFailure{Result: result}
	}

	return &Evaluation{Result: result, blocked: blocked}, nil
}

// evalRule dispatches to the per-kind check
func (v *Validator) evalRule(batch *contracts.Batch, rs contracts.RuleSet, rule contracts.Rule) (ruleEval, error) {
	switch rule.Kind {
	case contracts.RuleCompleteness:
		return v.evalCompleteness(batch, rs, rule), nil
	case contracts.RuleAccuracy:
		return v.evalAccuracy(batch, rs, rule)
	case contracts.RuleConsistency:
		return v.evalConsistency(batch, rs, rule)
	case contracts.RuleSchema:
		return v.evalSchema(batch, rs, rule), nil
	default:
		return ruleEval{}, fmt.Errorf("unknown rule kind %q", rule.Kind)
	}
}

// FilterPassing returns a batch holding only rows that violated no
// blocking rule. Order is preserved.
func (e *Evaluation) FilterPassing(batch *contracts.Batch) *contracts.Batch {
	if len(e.blocked) == 0 {
		return batch
	}

	out := &contracts.Batch{Records: make([]contracts.Record, 0, batch.Len()-len(e.blocked))}
	for i, rec := range batch.Records {
		if _, bad := e.blocked[i]; !bad {
			out.Records = append(out.Records, rec)
		}
	}
	return out
}

// newOutcome seeds an outcome with rule identity and the pass/fail split
func newOutcome(rule contracts.Rule, total, failed int) contracts.RuleOutcome {
	return contracts.RuleOutcome{
		RuleID:        rule.ID,
		Kind:          rule.Kind,
		Column:        strings.Join(rule.Columns, ","),
		Severity:      rule.Severity,
		PassedRecords: total - failed,
		FailedRecords: failed,
	}
}

// sampleKeys collects up to limit offending row keys in row order
func sampleKeys(batch *contracts.Batch, rs contracts.RuleSet, rows map[int]struct{}, limit int) []string {
	keyCols := []string{rs.EntityKey, rs.TimeKey}
	if rs.EntityKey == "" {
		return nil
	}

	var keys []string
	for i, rec := range batch.Records {
		if len(keys) >= limit {
			break
		}
		if _, bad := rows[i]; bad {
			keys = append(keys, contracts.RecordKey(rec, keyCols))
		}
	}
	return keys
}

func (v *Validator) logResult(result *contracts.ValidationResult) {
	log := v.logger.WithFields(map[string]interface{}{
		"dataset": result.Dataset,
		"total":   result.TotalRecords,
		"passed":  result.PassedRecords,
		"failed":  result.FailedRecords,
		"rules":   len(result.Outcomes),
	})
	if result.Passed {
		log.Info("Validation passed")
	} else {
		log.Warn("Validation failed")
	}
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, s := range in {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// hasColumn reports whether any record carries the column
func hasColumn(batch *contracts.Batch, col string) bool {
	for _, rec := range batch.Records {
		if _, ok := rec[col]; ok {
			return true
		}
	}
	return false
}
