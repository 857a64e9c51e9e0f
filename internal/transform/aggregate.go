package transform

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/wonny/ledgerflow/internal/contracts"
)

// aggState accumulates one group's aggregates
type aggState struct {
	keyRec contracts.Record
	count  int64
	sum    decimal.Decimal
	min    *decimal.Decimal
	max    *decimal.Decimal
}

// transformAggregate groups rows by the declared key set and applies the
// declared aggregate functions, producing one row per distinct key
// combination. Output order is sorted by group key for determinism.
func (t *Transformer) transformAggregate(batch *contracts.Batch, spec Spec) (*contracts.Batch, error) {
	if len(spec.GroupBy) == 0 || len(spec.Aggregations) == 0 {
		return nil, fmt.Errorf("aggregate spec requires group keys and aggregations")
	}
	scale := spec.scale()

	// state per (group key, aggregation index)
	groups := make(map[string]map[int]*aggState)
	order := make([]string, 0)

	for _, rec := range batch.Records {
		key := contracts.RecordKey(rec, spec.GroupBy)
		states, ok := groups[key]
		if !ok {
			states = make(map[int]*aggState, len(spec.Aggregations))
			groups[key] = states
			order = append(order, key)
		}

		for ai, agg := range spec.Aggregations {
			st, ok := states[ai]
			if !ok {
				keyRec := make(contracts.Record, len(spec.GroupBy))
				for _, k := range spec.GroupBy {
					keyRec[k] = rec[k]
				}
				st = &aggState{keyRec: keyRec}
				states[ai] = st
			}

			val := rec[agg.Column]
			if agg.Op == AggCount {
				if !contracts.IsNull(val) {
					st.count++
				}
				continue
			}

			d, ok := contracts.AsDecimal(val)
			if !ok {
				continue // NULLs are skipped, matching SQL aggregates
			}
			st.count++
			st.sum = st.sum.Add(d)
			if st.min == nil || d.Cmp(*st.min) < 0 {
				v := d
				st.min = &v
			}
			if st.max == nil || d.Cmp(*st.max) > 0 {
				v := d
				st.max = &v
			}
		}
	}

	sort.Strings(order)

	out := &contracts.Batch{Records: make([]contracts.Record, 0, len(order))}
	for _, key := range order {
		states := groups[key]
		row := make(contracts.Record)
		for ai, agg := range spec.Aggregations {
			st := states[ai]
			for k, v := range st.keyRec {
				row[k] = v
			}
			row[agg.outputColumn()] = st.value(agg.Op, scale)
		}
		out.Records = append(out.Records, row)
	}

	return out, nil
}

// outputColumn resolves the aggregate's output column name
func (a Aggregation) outputColumn() string {
	if a.As != "" {
		return a.As
	}
	return fmt.Sprintf("%s_%s", a.Column, a.Op)
}

// value finalizes the aggregate for one group
func (st *aggState) value(op AggOp, scale int32) any {
	switch op {
	case AggCount:
		return st.count
	case AggSum:
		if st.count == 0 {
			return nil
		}
		return round(st.sum, scale)
	case AggMean:
		if st.count == 0 {
			return nil
		}
		return round(st.sum.Div(decimal.NewFromInt(st.count)), scale)
	case AggMin:
		if st.min == nil {
			return nil
		}
		return *st.min
	case AggMax:
		if st.max == nil {
			return nil
		}
		return *st.max
	default:
		return nil
	}
}
