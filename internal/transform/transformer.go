package transform

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/ledgerflow/internal/contracts"
	"github.com/wonny/ledgerflow/pkg/logger"
)

// Kind selects which transformer runs
type Kind string

const (
	KindStock     Kind = "stock"
	KindRatios    Kind = "ratios"
	KindPortfolio Kind = "portfolio"
	KindEnrich    Kind = "enrich"
	KindAggregate Kind = "aggregate"
)

// DefaultScale is the destination decimal scale when a spec leaves it unset
const DefaultScale int32 = 6

// Spec is the tagged configuration selecting and parameterizing a
// transformer kind.
type Spec struct {
	Kind Kind

	// Time-series keys. Input is expected pre-sorted ascending by
	// (EntityKey, TimeKey); unsorted input is sorted on a working copy.
	EntityKey string
	TimeKey   string

	// Scale is the destination column scale; derived values are rounded
	// half-up to it. Zero means DefaultScale.
	Scale int32

	// stock
	PriceColumn string // defaults to close_price
	MAWindows   []int  // defaults to 20, 50, 200

	// portfolio
	PortfolioKey string // defaults to portfolio_id
	DateKey      string // defaults to position_date

	// enrich
	LookupKey    string
	Lookup       map[string]contracts.Record
	SourceSystem string

	// aggregate
	GroupBy      []string
	Aggregations []Aggregation
}

// Aggregation declares one aggregate output column
type Aggregation struct {
	Column string
	Op     AggOp
	As     string // output column, defaults to Column_Op
}

// AggOp is a supported aggregate function
type AggOp string

const (
	AggSum   AggOp = "sum"
	AggMean  AggOp = "mean"
	AggMin   AggOp = "min"
	AggMax   AggOp = "max"
	AggCount AggOp = "count"
)

// Transformer computes derived analytics over validated batches.
// Pure over its inputs: no state survives between calls.
// ⭐ SSOT: 파생 지표 계산은 여기서만
type Transformer struct {
	logger *logger.Logger

	// Clock stamps load_timestamp during enrichment; injectable so runs
	// stay deterministic under test.
	Clock func() time.Time
}

// New creates a new Transformer
func New(log *logger.Logger) *Transformer {
	return &Transformer{
		logger: log,
		Clock:  time.Now,
	}
}

// Transform computes the derived columns the spec selects. The output
// batch is a new working copy ordered ascending by (entity, time) where
// the spec declares those keys.
func (t *Transformer) Transform(ctx context.Context, batch *contracts.Batch, spec Spec) (*contracts.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	work := batch.Clone()

	var out *contracts.Batch
	var err error
	switch spec.Kind {
	case KindStock:
		out, err = t.transformStock(work, spec)
	case KindRatios:
		out, err = t.transformRatios(work, spec)
	case KindPortfolio:
		out, err = t.transformPortfolio(work, spec)
	case KindEnrich:
		out, err = t.transformEnrich(work, spec)
	case KindAggregate:
		out, err = t.transformAggregate(work, spec)
	default:
		return nil, fmt.Errorf("unknown transformer kind %q", spec.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("transform %s: %w", spec.Kind, err)
	}

	t.logger.WithFields(map[string]interface{}{
		"kind":   string(spec.Kind),
		"input":  batch.Len(),
		"output": out.Len(),
	}).Debug("Transform completed")

	return out, nil
}

// scale resolves the destination scale
func (s Spec) scale() int32 {
	if s.Scale == 0 {
		return DefaultScale
	}
	return s.Scale
}

// round rounds to the destination scale, half up
func round(d decimal.Decimal, scale int32) decimal.Decimal {
	return d.Round(scale)
}

// safeDiv divides in the decimal domain. A zero or null denominator
// yields undefined (nil), never an error and never an infinity.
func safeDiv(num, den any, scale int32) any {
	n, ok := contracts.AsDecimal(num)
	if !ok {
		return nil
	}
	d, ok := contracts.AsDecimal(den)
	if !ok || d.IsZero() {
		return nil
	}
	return round(n.Div(d), scale)
}
