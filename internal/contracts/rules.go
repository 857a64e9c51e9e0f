package contracts

import "github.com/shopspring/decimal"

// RuleKind classifies what a validation rule checks
type RuleKind string

const (
	RuleCompleteness RuleKind = "completeness"
	RuleAccuracy     RuleKind = "accuracy"
	RuleConsistency  RuleKind = "consistency"
	RuleSchema       RuleKind = "schema"
)

// Severity decides whether a failed rule can block the run
type Severity string

const (
	SeverityBlocking Severity = "blocking"
	SeverityAdvisory Severity = "advisory"
)

// CrossOp is a comparison operator for cross-field consistency rules
type CrossOp string

const (
	CrossLT CrossOp = "lt"
	CrossLE CrossOp = "le"
	CrossGT CrossOp = "gt"
	CrossGE CrossOp = "ge"
	CrossEQ CrossOp = "eq"
	CrossNE CrossOp = "ne"
)

// RuleParams carries the per-kind parameters of a rule descriptor.
// Only the fields relevant to the rule's check are consulted.
type RuleParams struct {
	// completeness
	NullThresholdPct float64 // max allowed null percentage per column (0-100)
	MinRows          int     // minimum expected row count
	ExpectedCount    int     // expected row count (0 = not configured)
	Tolerance        float64 // acceptable deviation from ExpectedCount (0.1 = 10%)

	// accuracy
	Min     *decimal.Decimal // inclusive lower bound
	Max     *decimal.Decimal // inclusive upper bound
	Allowed []string         // categorical whitelist
	Pattern string           // regex a string column must match

	// consistency
	DType      string  // declared type: decimal, int, string, timestamp
	DateFormat string  // Go reference layout for timestamp parsing
	Unique     bool    // (columns...) pairs must be unique
	CrossOp    CrossOp // comparison between Columns[0] and Columns[1]

	// schema
	NotNull bool // column must not contain NULLs
}

// Rule is one declarative data-quality rule
type Rule struct {
	ID       string
	Kind     RuleKind
	Columns  []string
	Severity Severity
	// Threshold is the failure count a blocking rule tolerates before it
	// fails the batch. Zero tolerance unless a rule specifies otherwise.
	Threshold int
	Params    RuleParams
}

// Blocking reports whether the rule can gate the run
func (r Rule) Blocking() bool {
	return r.Severity == SeverityBlocking
}

// RuleSet is the declarative validation contract for one logical dataset
type RuleSet struct {
	Dataset   string
	EntityKey string // entity column of the time series (e.g. symbol)
	TimeKey   string // time column of the time series (e.g. trade_date)
	Rules     []Rule
}
