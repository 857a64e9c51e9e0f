package validate

import (
	"fmt"
	"regexp"

	"github.com/wonny/ledgerflow/internal/contracts"
)

// evalAccuracy checks numeric ranges, categorical whitelists and regex
// patterns. Bounds are inclusive; NULLs are completeness territory and
// never counted here.
func (v *Validator) evalAccuracy(batch *contracts.Batch, rs contracts.RuleSet, rule contracts.Rule) (ruleEval, error) {
	total := batch.Len()
	failed := make(map[int]struct{})
	var detail string

	var pattern *regexp.Regexp
	if rule.Params.Pattern != "" {
		var err error
		pattern, err = regexp.Compile(rule.Params.Pattern)
		if err != nil {
			return ruleEval{}, fmt.Errorf("invalid pattern %q: %w", rule.Params.Pattern, err)
		}
	}

	var allowed map[string]struct{}
	if len(rule.Params.Allowed) > 0 {
		allowed = make(map[string]struct{}, len(rule.Params.Allowed))
		for _, a := range rule.Params.Allowed {
			allowed[a] = struct{}{}
		}
	}

	for _, col := range rule.Columns {
		for i, rec := range batch.Records {
			val := rec[col]
			if contracts.IsNull(val) {
				continue
			}

			if rule.Params.Min != nil || rule.Params.Max != nil {
				d, ok := contracts.AsDecimal(val)
				if !ok {
					failed[i] = struct{}{}
					continue
				}
				if rule.Params.Min != nil && d.Cmp(*rule.Params.Min) < 0 {
					failed[i] = struct{}{}
					continue
				}
				if rule.Params.Max != nil && d.Cmp(*rule.Params.Max) > 0 {
					failed[i] = struct{}{}
					continue
				}
			}

			if allowed != nil {
				s, _ := contracts.AsString(val)
				if _, ok := allowed[s]; !ok {
					failed[i] = struct{}{}
					continue
				}
			}

			if pattern != nil {
				s, ok := contracts.AsString(val)
				if !ok || !pattern.MatchString(s) {
					failed[i] = struct{}{}
				}
			}
		}
	}

	if len(failed) > 0 {
		detail = fmt.Sprintf("%d records out of bounds", len(failed))
	}

	outcome := newOutcome(rule, total, len(failed))
	outcome.Detail = detail
	outcome.SampleKeys = sampleKeys(batch, rs, failed, sampleLimit)

	return ruleEval{outcome: outcome, failedRows: failed}, nil
}
