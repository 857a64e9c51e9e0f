package transform

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/ledgerflow/internal/contracts"
	"github.com/wonny/ledgerflow/pkg/logger"
)

func position(portfolio, symbol string, qty, price, cost string) contracts.Record {
	return contracts.Record{
		"portfolio_id":  portfolio,
		"symbol":        symbol,
		"position_date": time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		"quantity":      dec(qty),
		"current_price": dec(price),
		"avg_cost":      dec(cost),
	}
}

func TestTransformPortfolio(t *testing.T) {
	batch := contracts.NewBatch([]contracts.Record{
		position("P1", "AAPL", "10", "10", "8"),   // mv 100, pnl 20
		position("P1", "MSFT", "2", "150", "160"), // mv 300, pnl -20
	})

	tr := New(logger.Nop())
	out, err := tr.Transform(context.Background(), batch, Spec{Kind: KindPortfolio})
	require.NoError(t, err)

	aapl, msft := out.Records[0], out.Records[1]

	assert.Equal(t, "100", decColumn(t, aapl, "market_value").String())
	assert.Equal(t, "20", decColumn(t, aapl, "unrealized_pnl").String())
	// pnl over cost basis: 20 / 80 = 25%
	assert.Equal(t, "25", decColumn(t, aapl, "pnl_percentage").String())
	assert.Equal(t, "0.25", decColumn(t, aapl, "weight").String())

	assert.Equal(t, "300", decColumn(t, msft, "market_value").String())
	assert.Equal(t, "-20", decColumn(t, msft, "unrealized_pnl").String())
	assert.Equal(t, "-6.25", decColumn(t, msft, "pnl_percentage").String())
	assert.Equal(t, "0.75", decColumn(t, msft, "weight").String())

	// Weights within one (portfolio, date) sum to 1
	sum := decColumn(t, aapl, "weight").Add(decColumn(t, msft, "weight"))
	assert.Equal(t, "1", sum.String())
}

func TestTransformPortfolio_SeparatePortfolios(t *testing.T) {
	batch := contracts.NewBatch([]contracts.Record{
		position("P1", "AAPL", "1", "100", "100"),
		position("P2", "AAPL", "3", "100", "100"),
	})

	tr := New(logger.Nop())
	out, err := tr.Transform(context.Background(), batch, Spec{Kind: KindPortfolio})
	require.NoError(t, err)

	// Each position is its whole portfolio: weight 1, not 0.25/0.75
	assert.Equal(t, "1", decColumn(t, out.Records[0], "weight").String())
	assert.Equal(t, "1", decColumn(t, out.Records[1], "weight").String())
}

func TestTransformPortfolio_ZeroTotal(t *testing.T) {
	batch := contracts.NewBatch([]contracts.Record{
		position("P1", "AAPL", "0", "100", "90"),
	})

	tr := New(logger.Nop())
	out, err := tr.Transform(context.Background(), batch, Spec{Kind: KindPortfolio})
	require.NoError(t, err)

	rec := out.Records[0]
	assert.True(t, decColumn(t, rec, "market_value").IsZero())
	assert.Nil(t, rec["weight"], "zero portfolio total leaves weight undefined")
	assert.Nil(t, rec["pnl_percentage"], "zero cost basis leaves pnl percentage undefined")
}

func TestTransformPortfolio_MissingInputs(t *testing.T) {
	rec := position("P1", "AAPL", "10", "10", "8")
	rec["current_price"] = nil

	tr := New(logger.Nop())
	out, err := tr.Transform(context.Background(), contracts.NewBatch([]contracts.Record{rec}), Spec{Kind: KindPortfolio})
	require.NoError(t, err)

	got := out.Records[0]
	assert.Nil(t, got["market_value"])
	assert.Nil(t, got["unrealized_pnl"])
	assert.Nil(t, got["weight"])
}
