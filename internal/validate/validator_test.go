package validate

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/ledgerflow/internal/contracts"
	"github.com/wonny/ledgerflow/pkg/logger"
)

// priceBatch builds n daily price rows for one symbol
func priceBatch(n int) *contracts.Batch {
	records := make([]contracts.Record, n)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range records {
		records[i] = contracts.Record{
			"symbol":      "AAPL",
			"trade_date":  base.AddDate(0, 0, i),
			"close_price": decimal.NewFromInt(int64(100 + i)),
		}
	}
	return contracts.NewBatch(records)
}

func pricesRuleSet(rules ...contracts.Rule) contracts.RuleSet {
	return contracts.RuleSet{
		Dataset:   "daily_prices",
		EntityKey: "symbol",
		TimeKey:   "trade_date",
		Rules:     rules,
	}
}

func TestValidate_NullThreshold(t *testing.T) {
	// 1 null close_price out of 100 with zero tolerance
	batch := priceBatch(100)
	batch.Records[42]["close_price"] = nil

	rule := contracts.Rule{
		ID:       "close_not_null",
		Kind:     contracts.RuleCompleteness,
		Columns:  []string{"close_price"},
		Severity: contracts.SeverityBlocking,
		Params:   contracts.RuleParams{NullThresholdPct: 0},
	}

	t.Run("non-strict returns failed result", func(t *testing.T) {
		v := New(logger.Nop(), false)
		eval, err := v.Validate(context.Background(), batch, pricesRuleSet(rule))
		require.NoError(t, err)

		result := eval.Result
		assert.False(t, result.Passed)
		assert.Equal(t, 100, result.TotalRecords)
		assert.Equal(t, 99, result.PassedRecords)
		assert.Equal(t, 1, result.FailedRecords)

		require.Len(t, result.Outcomes, 1)
		outcome := result.Outcomes[0]
		assert.True(t, outcome.Exceeded)
		assert.Equal(t, 1, outcome.FailedRecords)
		assert.Equal(t, 99, outcome.PassedRecords)

		filtered := eval.FilterPassing(batch)
		assert.Equal(t, 99, filtered.Len())
		for _, rec := range filtered.Records {
			assert.False(t, contracts.IsNull(rec["close_price"]))
		}
	})

	t.Run("strict raises ValidationFailure", func(t *testing.T) {
		v := New(logger.Nop(), true)
		eval, err := v.Validate(context.Background(), batch, pricesRuleSet(rule))
		require.Error(t, err)

		var vf *contracts.ValidationFailure
		require.ErrorAs(t, err, &vf)
		assert.False(t, vf.Result.Passed)
		require.NotNil(t, eval, "evaluation still returned for run logging")
	})

	t.Run("nulls within threshold pass", func(t *testing.T) {
		lenient := rule
		lenient.Params.NullThresholdPct = 5 // 1% null is within 5%
		v := New(logger.Nop(), true)
		eval, err := v.Validate(context.Background(), batch, pricesRuleSet(lenient))
		require.NoError(t, err)
		assert.True(t, eval.Result.Passed)
		assert.Equal(t, 0, eval.Result.FailedRecords)
	})
}

func TestValidate_CountInvariant(t *testing.T) {
	// passed + failed must equal total for every outcome
	batch := priceBatch(50)
	batch.Records[3]["close_price"] = nil
	batch.Records[7]["close_price"] = decimal.RequireFromString("-1")

	lo := decimal.Zero
	rules := pricesRuleSet(
		contracts.Rule{
			ID: "not_null", Kind: contracts.RuleCompleteness,
			Columns:  []string{"close_price"},
			Severity: contracts.SeverityBlocking,
		},
		contracts.Rule{
			ID: "positive", Kind: contracts.RuleAccuracy,
			Columns:  []string{"close_price"},
			Severity: contracts.SeverityBlocking,
			Params:   contracts.RuleParams{Min: &lo},
		},
	)

	v := New(logger.Nop(), false)
	eval, err := v.Validate(context.Background(), batch, rules)
	require.NoError(t, err)

	for _, outcome := range eval.Result.Outcomes {
		assert.Equal(t, batch.Len(), outcome.PassedRecords+outcome.FailedRecords,
			"rule %s count invariant", outcome.RuleID)
	}
	// Two distinct offending rows across the rules
	assert.Equal(t, 2, eval.Result.FailedRecords)
	assert.Equal(t, 48, eval.Result.PassedRecords)
}

func TestValidate_SchemaAbsenceIsBatchFatal(t *testing.T) {
	batch := contracts.NewBatch([]contracts.Record{
		{"symbol": "AAPL", "trade_date": time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	})

	rule := contracts.Rule{
		ID:       "required_columns",
		Kind:     contracts.RuleSchema,
		Columns:  []string{"symbol", "close_price", "volume"},
		Severity: contracts.SeverityBlocking,
	}

	for _, strict := range []bool{true, false} {
		t.Run(fmt.Sprintf("strict=%v", strict), func(t *testing.T) {
			v := New(logger.Nop(), strict)
			_, err := v.Validate(context.Background(), batch, pricesRuleSet(rule))
			require.Error(t, err)

			var sv *contracts.SchemaViolation
			require.ErrorAs(t, err, &sv)
			assert.ElementsMatch(t, []string{"close_price", "volume"}, sv.Columns)
		})
	}
}

func TestValidate_AccuracyRange(t *testing.T) {
	batch := priceBatch(10)
	batch.Records[2]["close_price"] = decimal.RequireFromString("-5")
	batch.Records[5]["close_price"] = decimal.RequireFromString("100000")
	batch.Records[8]["close_price"] = nil // NULL is completeness' concern, not accuracy's

	lo := decimal.Zero
	hi := decimal.NewFromInt(10000)
	rule := contracts.Rule{
		ID: "price_range", Kind: contracts.RuleAccuracy,
		Columns:  []string{"close_price"},
		Severity: contracts.SeverityBlocking,
		Params:   contracts.RuleParams{Min: &lo, Max: &hi},
	}

	v := New(logger.Nop(), false)
	eval, err := v.Validate(context.Background(), batch, pricesRuleSet(rule))
	require.NoError(t, err)

	outcome := eval.Result.Outcomes[0]
	assert.Equal(t, 2, outcome.FailedRecords)
	assert.True(t, outcome.Exceeded)
	assert.Len(t, outcome.SampleKeys, 2)
}

func TestValidate_AccuracyCategoricalAndPattern(t *testing.T) {
	batch := contracts.NewBatch([]contracts.Record{
		{"symbol": "AAPL", "currency": "USD"},
		{"symbol": "aapl!", "currency": "KRW"},
		{"symbol": "MSFT", "currency": "XYZ"},
	})

	rules := pricesRuleSet(
		contracts.Rule{
			ID: "currency_whitelist", Kind: contracts.RuleAccuracy,
			Columns:  []string{"currency"},
			Severity: contracts.SeverityBlocking,
			Params:   contracts.RuleParams{Allowed: []string{"USD", "KRW"}},
		},
		contracts.Rule{
			ID: "symbol_format", Kind: contracts.RuleAccuracy,
			Columns:  []string{"symbol"},
			Severity: contracts.SeverityBlocking,
			Params:   contracts.RuleParams{Pattern: `^[A-Z]{1,5}$`},
		},
	)

	v := New(logger.Nop(), false)
	eval, err := v.Validate(context.Background(), batch, rules)
	require.NoError(t, err)

	assert.Equal(t, 1, eval.Result.Outcomes[0].FailedRecords, "one currency off whitelist")
	assert.Equal(t, 1, eval.Result.Outcomes[1].FailedRecords, "one malformed symbol")
	assert.Equal(t, 2, eval.Result.FailedRecords, "distinct rows blocked")
}

func TestValidate_AccuracyBadPattern(t *testing.T) {
	rule := contracts.Rule{
		ID: "bad", Kind: contracts.RuleAccuracy,
		Columns:  []string{"symbol"},
		Severity: contracts.SeverityBlocking,
		Params:   contracts.RuleParams{Pattern: `([`},
	}

	v := New(logger.Nop(), false)
	_, err := v.Validate(context.Background(), priceBatch(1), pricesRuleSet(rule))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
}

func TestValidate_Uniqueness(t *testing.T) {
	batch := priceBatch(5)
	// Duplicate the (symbol, trade_date) of row 1 onto rows 3 and 4
	batch.Records[3]["trade_date"] = batch.Records[1]["trade_date"]
	batch.Records[4]["trade_date"] = batch.Records[1]["trade_date"]

	rule := contracts.Rule{
		ID: "pk_unique", Kind: contracts.RuleConsistency,
		Columns:  []string{"symbol", "trade_date"},
		Severity: contracts.SeverityBlocking,
		Params:   contracts.RuleParams{Unique: true},
	}

	v := New(logger.Nop(), false)
	eval, err := v.Validate(context.Background(), batch, pricesRuleSet(rule))
	require.NoError(t, err)

	// First occurrence survives, the two later duplicates fail
	assert.Equal(t, 2, eval.Result.Outcomes[0].FailedRecords)
	assert.Equal(t, 3, eval.FilterPassing(batch).Len())
}

func TestValidate_CrossField(t *testing.T) {
	mk := func(low, high string) contracts.Record {
		return contracts.Record{
			"symbol":     "AAPL",
			"trade_date": time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			"low_price":  decimal.RequireFromString(low),
			"high_price": decimal.RequireFromString(high),
		}
	}
	batch := contracts.NewBatch([]contracts.Record{
		mk("95", "105"),
		mk("110", "105"), // low above high
		mk("105", "105"), // equal is fine for le
	})

	rule := contracts.Rule{
		ID: "low_le_high", Kind: contracts.RuleConsistency,
		Columns:  []string{"low_price", "high_price"},
		Severity: contracts.SeverityBlocking,
		Params:   contracts.RuleParams{CrossOp: contracts.CrossLE},
	}

	v := New(logger.Nop(), false)
	eval, err := v.Validate(context.Background(), batch, pricesRuleSet(rule))
	require.NoError(t, err)
	assert.Equal(t, 1, eval.Result.Outcomes[0].FailedRecords)
}

func TestValidate_ExpectedCountTolerance(t *testing.T) {
	rule := contracts.Rule{
		ID: "row_count", Kind: contracts.RuleCompleteness,
		Severity: contracts.SeverityBlocking,
		Params:   contracts.RuleParams{ExpectedCount: 100, Tolerance: 0.1},
	}

	t.Run("within tolerance", func(t *testing.T) {
		v := New(logger.Nop(), true)
		eval, err := v.Validate(context.Background(), priceBatch(95), pricesRuleSet(rule))
		require.NoError(t, err)
		assert.True(t, eval.Result.Passed)
	})

	t.Run("outside tolerance", func(t *testing.T) {
		v := New(logger.Nop(), false)
		eval, err := v.Validate(context.Background(), priceBatch(80), pricesRuleSet(rule))
		require.NoError(t, err)
		assert.False(t, eval.Result.Passed)
		assert.True(t, eval.Result.Outcomes[0].Exceeded)
		// Batch-level failure blocks no individual rows
		assert.Equal(t, 80, eval.FilterPassing(priceBatch(80)).Len())
	})
}

func TestValidate_MinRowsOnEmptyBatch(t *testing.T) {
	rule := contracts.Rule{
		ID: "min_rows", Kind: contracts.RuleCompleteness,
		Severity: contracts.SeverityBlocking,
		Params:   contracts.RuleParams{MinRows: 1},
	}

	v := New(logger.Nop(), true)
	_, err := v.Validate(context.Background(), contracts.NewBatch(nil), pricesRuleSet(rule))
	require.Error(t, err)

	var vf *contracts.ValidationFailure
	assert.ErrorAs(t, err, &vf)
}

func TestValidate_AdvisoryNeverBlocks(t *testing.T) {
	batch := priceBatch(10)
	batch.Records[0]["close_price"] = nil

	rule := contracts.Rule{
		ID: "advisory_nulls", Kind: contracts.RuleCompleteness,
		Columns:  []string{"close_price"},
		Severity: contracts.SeverityAdvisory,
	}

	v := New(logger.Nop(), true)
	eval, err := v.Validate(context.Background(), batch, pricesRuleSet(rule))
	require.NoError(t, err)

	assert.True(t, eval.Result.Passed)
	outcome := eval.Result.Outcomes[0]
	assert.Equal(t, 1, outcome.FailedRecords, "advisory failures are still counted")
	assert.False(t, outcome.Exceeded)
	assert.Equal(t, 10, eval.FilterPassing(batch).Len(), "advisory rules filter nothing")
}

func TestValidate_TypeCoercion(t *testing.T) {
	batch := contracts.NewBatch([]contracts.Record{
		{"symbol": "A", "volume": int64(100)},
		{"symbol": "B", "volume": "200"},
		{"symbol": "C", "volume": "2.5"}, // not a lossless int
		{"symbol": "D", "volume": "n/a"},
	})

	rule := contracts.Rule{
		ID: "volume_int", Kind: contracts.RuleConsistency,
		Columns:  []string{"volume"},
		Severity: contracts.SeverityBlocking,
		Params:   contracts.RuleParams{DType: "int"},
	}

	v := New(logger.Nop(), false)
	eval, err := v.Validate(context.Background(), batch, pricesRuleSet(rule))
	require.NoError(t, err)
	assert.Equal(t, 2, eval.Result.Outcomes[0].FailedRecords)
}

func TestValidate_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v := New(logger.Nop(), true)
	_, err := v.Validate(ctx, priceBatch(1), pricesRuleSet())
	assert.True(t, errors.Is(err, context.Canceled))
}
