package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() StrategyConfig {
	return StrategyConfig{
		Symbol:         "ETHUSDT",
		Mode:           ModeLong,
		LowerPrice:     3000,
		UpperPrice:     3400,
		GridCount:      5,
		InitialCapital: 10000,
		FeeRate:        0.0005,
	}.WithDefaults()
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" Neutral ")
	require.NoError(t, err)
	assert.Equal(t, ModeNeutral, m)

	_, err = ParseMode("sideways")
	var pe *InvalidParameterError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "mode", pe.Field)
}

func TestWithDefaults(t *testing.T) {
	c := StrategyConfig{Mode: "SHORT"}.WithDefaults()
	assert.Equal(t, ModeShort, c.Mode)
	assert.Equal(t, LadderArithmetic, c.LadderType)
	assert.Equal(t, ExecutionOrders, c.ExecutionMode)
	assert.Equal(t, 1.0, c.Leverage)
	assert.Equal(t, 8.0, c.FundingIntervalHours)
	assert.Equal(t, SlippageNone, c.Slippage.Model)
	assert.Equal(t, int64(8*3600*1000), c.FundingIntervalMs())
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	cases := map[string]func(*StrategyConfig){
		"lower_price":            func(c *StrategyConfig) { c.LowerPrice = 3400 },
		"grid_count":             func(c *StrategyConfig) { c.GridCount = 1 },
		"initial_capital":        func(c *StrategyConfig) { c.InitialCapital = 0 },
		"fee_rate":               func(c *StrategyConfig) { c.FeeRate = 0.02 },
		"leverage":               func(c *StrategyConfig) { c.Leverage = 101 },
		"ladder_type":            func(c *StrategyConfig) { c.LadderType = "log" },
		"execution_mode":         func(c *StrategyConfig) { c.ExecutionMode = "tick" },
		"slippage.model":         func(c *StrategyConfig) { c.Slippage.Model = "random" },
		"fill.min_fill_quantity": func(c *StrategyConfig) { c.Fill.MinFillQuantity = -1 },
	}
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			c := validConfig()
			mutate(&c)
			var pe *InvalidParameterError
			require.True(t, errors.As(c.Validate(), &pe))
			assert.Equal(t, field, pe.Field)
		})
	}
}

func TestErrorsUnwrap(t *testing.T) {
	inner := errors.New("boom")
	assert.ErrorIs(t, &DataError{Reason: "fetch", Err: inner}, inner)
	assert.ErrorIs(t, &InvalidConfigError{Reason: "x", Err: inner}, inner)
	assert.ErrorIs(t, &ExecutionError{Timestamp: 1, Err: inner}, inner)
	assert.Equal(t, "invalid config: range", (&InvalidConfigError{Reason: "range"}).Error())
}

func TestBarIsBullish(t *testing.T) {
	assert.True(t, Bar{Open: 1, Close: 1}.IsBullish())
	assert.False(t, Bar{Open: 2, Close: 1}.IsBullish())
}
