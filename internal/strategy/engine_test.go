package strategy

import (
	"errors"
	"math"
	"testing"
	"time"

	"grid-backtest-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const hourMs = int64(3600 * 1000)

func baseConfig(mode models.Mode) models.StrategyConfig {
	return models.StrategyConfig{
		Symbol:               "ETHUSDT",
		Mode:                 mode,
		LowerPrice:           3000,
		UpperPrice:           3400,
		GridCount:            5,
		InitialCapital:       10000,
		FeeRate:              0.0005,
		Leverage:             1,
		FundingIntervalHours: 8,
	}
}

// barsFromCloses 每根K线的开盘价等于上一根收盘价，high/low 取两者极值
func barsFromCloses(closes ...float64) []models.Bar {
	bars := make([]models.Bar, len(closes))
	prev := closes[0]
	for i, c := range closes {
		bars[i] = models.Bar{
			Timestamp: int64(i) * hourMs,
			Open:      prev,
			High:      math.Max(prev, c),
			Low:       math.Min(prev, c),
			Close:     c,
			Volume:    100,
		}
		prev = c
	}
	return bars
}

func newEngine(t *testing.T, cfg models.StrategyConfig) *Engine {
	t.Helper()
	e, err := NewEngine(cfg, WithLogger(zap.NewNop()))
	require.NoError(t, err)
	return e
}

func closingTrades(trades []models.TradeRecord) []models.TradeRecord {
	var out []models.TradeRecord
	for _, tr := range trades {
		if tr.Action == models.ActionClose {
			out = append(out, tr)
		}
	}
	return out
}

func TestNewEngineRejectsInvalidConfig(t *testing.T) {
	cfg := baseConfig(models.ModeLong)
	cfg.GridCount = 1
	_, err := NewEngine(cfg)
	var paramErr *models.InvalidParameterError
	require.True(t, errors.As(err, &paramErr))
	assert.Equal(t, "grid_count", paramErr.Field)

	cfg = baseConfig(models.ModeLong)
	cfg.Mode = "sideways"
	_, err = NewEngine(cfg)
	assert.True(t, errors.As(err, &paramErr))
}

func TestLongModeScenario(t *testing.T) {
	e := newEngine(t, baseConfig(models.ModeLong))
	res, err := e.Run(barsFromCloses(3200, 3100, 3000, 3100, 3200))
	require.NoError(t, err)

	assert.GreaterOrEqual(t, res.TotalTrades, 4)
	assert.Len(t, res.EquityCurve, 5)
	assert.Len(t, res.Timestamps, 5)

	var buyPrices []float64
	for _, tr := range res.Trades {
		if tr.Side == models.Buy && tr.Action == models.ActionOpen {
			buyPrices = append(buyPrices, tr.Price)
		}
	}
	assert.Contains(t, buyPrices, 3100.0)
	assert.Contains(t, buyPrices, 3000.0)

	closes := closingTrades(res.Trades)
	require.Len(t, closes, 2)
	assert.Equal(t, 3100.0, closes[0].Price)
	assert.Equal(t, 3200.0, closes[1].Price)
	for _, tr := range closes {
		assert.Equal(t, models.Sell, tr.Side)
		assert.Greater(t, tr.RealizedPnL, 0.0)
	}
	assert.Equal(t, 2, res.WinningTrades)
	assert.InDelta(t, 2.0/float64(res.TotalTrades), res.WinRate, 1e-12)
	assert.Equal(t, StateCompleted, e.State())
}

func TestShortModeScenario(t *testing.T) {
	e := newEngine(t, baseConfig(models.ModeShort))
	res, err := e.Run(barsFromCloses(3200, 3300, 3200))
	require.NoError(t, err)
	require.Len(t, res.Trades, 2)

	open := res.Trades[0]
	assert.Equal(t, models.Sell, open.Side)
	assert.Equal(t, models.ActionOpen, open.Action)
	assert.Equal(t, 3300.0, open.Price)
	assert.Equal(t, 3, open.GridIndex)
	assert.Less(t, open.NetPosition, 0.0)

	closed := res.Trades[1]
	assert.Equal(t, models.Buy, closed.Side)
	assert.Equal(t, 3200.0, closed.Price)
	qty := 1000.0 / 3300
	assert.InDelta(t, 100*qty, closed.RealizedPnL, 1e-9)
	assert.InDelta(t, 0, closed.NetPosition, 1e-12)

	fees := open.Fee + closed.Fee
	assert.InDelta(t, 10000+100*qty-fees, res.FinalCapital, 1e-9)
	assert.InDelta(t, fees, res.TotalFees, 1e-12)
}

func TestNeutralModeScenario(t *testing.T) {
	e := newEngine(t, baseConfig(models.ModeNeutral))
	assert.Empty(t, e.Orders().PendingOrders())

	res, err := e.Run(barsFromCloses(3200, 3100, 3200))
	require.NoError(t, err)
	require.Len(t, res.Trades, 2)
	assert.Equal(t, models.Buy, res.Trades[0].Side)
	assert.Equal(t, 1, res.Trades[0].GridIndex)
	assert.Equal(t, models.Sell, res.Trades[1].Side)
	assert.Equal(t, 2, res.Trades[1].GridIndex)
	assert.Greater(t, res.Trades[1].RealizedPnL, 0.0)
	assert.Empty(t, res.OpenPositions)
}

func TestFeeEqualsQuantityPriceRate(t *testing.T) {
	cfg := baseConfig(models.ModeNeutral)
	cfg.FeeRate = 0.001
	e := newEngine(t, cfg)
	res, err := e.Run(barsFromCloses(3200, 3000, 3400, 3100, 3300))
	require.NoError(t, err)
	require.NotEmpty(t, res.Trades)

	total := 0.0
	for _, tr := range res.Trades {
		assert.InDelta(t, tr.Quantity*tr.Price*cfg.FeeRate, tr.Fee, 1e-12)
		total += tr.Fee
	}
	assert.InDelta(t, total, res.TotalFees, 1e-9)
}

func TestNetPositionMatchesPositions(t *testing.T) {
	e := newEngine(t, baseConfig(models.ModeNeutral))
	for _, bar := range barsFromCloses(3200, 3000, 3350, 3150, 3050, 3400) {
		require.NoError(t, e.ProcessBar(bar))

		sum := 0.0
		for _, p := range e.Positions().Positions() {
			sum += p.Quantity
		}
		assert.InDelta(t, sum, e.Positions().NetPosition(), 1e-12)
		assert.GreaterOrEqual(t, e.UsedMargin(), 0.0)
	}
}

func TestEngineRejectsOutOfOrderBars(t *testing.T) {
	e := newEngine(t, baseConfig(models.ModeLong))
	bars := barsFromCloses(3200, 3100)
	require.NoError(t, e.ProcessBar(bars[0]))
	require.NoError(t, e.ProcessBar(bars[1]))

	err := e.ProcessBar(bars[1])
	var execErr *models.ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, bars[1].Timestamp, execErr.Timestamp)
}

func TestEngineCompletedRejectsBars(t *testing.T) {
	e := newEngine(t, baseConfig(models.ModeLong))
	_, err := e.Run(barsFromCloses(3200, 3100))
	require.NoError(t, err)

	err = e.ProcessBar(models.Bar{Timestamp: 10 * hourMs, Open: 1, High: 1, Low: 1, Close: 1})
	var execErr *models.ExecutionError
	assert.True(t, errors.As(err, &execErr))
}

func TestMarginShortfallSkipsFill(t *testing.T) {
	e := newEngine(t, baseConfig(models.ModeLong))
	bars := barsFromCloses(3200, 3100)
	require.NoError(t, e.ProcessBar(bars[0]))

	e.capital = 10
	require.NoError(t, e.ProcessBar(bars[1]))

	res := e.Finish()
	assert.Empty(t, res.Trades)
	assert.InDelta(t, 10.0, res.FinalCapital, 1e-12, "fees are refunded")
	assert.Equal(t, 0.0, res.TotalFees)
	assert.Equal(t, 0.0, e.UsedMargin())

	// 被拒绝的订单撤销，且不挂反向单
	for _, o := range e.Orders().PendingOrders() {
		assert.NotEqual(t, 1, o.GridIndex)
		assert.NotEqual(t, 2, o.GridIndex)
	}
}

func TestFundingChargedOnLongPosition(t *testing.T) {
	cfg := baseConfig(models.ModeLong)
	cfg.FeeRate = 0
	cfg.FundingRate = 0.001
	cfg.FundingIntervalHours = 1
	e := newEngine(t, cfg)

	// 第二根K线开多，之后每小时结算一次
	res, err := e.Run(barsFromCloses(3200, 3150, 3150, 3150))
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)

	qty := 1000.0 / 3200
	assert.InDelta(t, 2*qty*3150*0.001, res.TotalFunding, 1e-9)
	assert.InDelta(t, 10000-res.TotalFunding, res.FinalCapital, 1e-9)
}

func TestFundingReceivedOnShortPosition(t *testing.T) {
	cfg := baseConfig(models.ModeShort)
	cfg.FeeRate = 0
	cfg.FundingRate = 0.001
	cfg.FundingIntervalHours = 1
	e := newEngine(t, cfg)

	res, err := e.Run(barsFromCloses(3200, 3300, 3250))
	require.NoError(t, err)
	qty := 1000.0 / 3300
	assert.InDelta(t, -qty*3250*0.001, res.TotalFunding, 1e-9)
	assert.Greater(t, res.FinalCapital, 10000.0)
}

func TestDrawdownBounds(t *testing.T) {
	cfg := baseConfig(models.ModeLong)
	cfg.Leverage = 3
	e := newEngine(t, cfg)
	res, err := e.Run(barsFromCloses(3400, 3300, 3100, 3000, 2800, 3100, 3350))
	require.NoError(t, err)

	assert.GreaterOrEqual(t, res.MaxDrawdownPct, 0.0)
	assert.LessOrEqual(t, res.MaxDrawdownPct, 1.0)
	assert.Greater(t, res.MaxDrawdown, 0.0)
	assert.Len(t, res.EquityCurve, 7)
}

func TestLiquidationStopsRun(t *testing.T) {
	cfg := models.StrategyConfig{
		Symbol:         "BTCUSDT",
		Mode:           models.ModeLong,
		LowerPrice:     100,
		UpperPrice:     200,
		GridCount:      2,
		InitialCapital: 1000,
		Leverage:       100,
	}
	e := newEngine(t, cfg)
	bars := []models.Bar{
		{Timestamp: 0, Open: 200, High: 200, Low: 200, Close: 200},
		{Timestamp: hourMs, Open: 200, High: 200, Low: 50, Close: 50},
		{Timestamp: 2 * hourMs, Open: 50, High: 60, Low: 40, Close: 55},
	}
	res, err := e.Run(bars)
	require.NoError(t, err)

	assert.True(t, res.Liquidated)
	assert.Len(t, res.EquityCurve, 2)
	assert.Less(t, res.FinalEquity, 0.0)
	assert.Equal(t, 1.0, res.MaxDrawdownPct)
}

func TestLegacyOppositeAccumulation(t *testing.T) {
	e := newEngine(t, baseConfig(models.ModeShort))
	bars := barsFromCloses(3200, 3200)
	bars[1].High = 3250
	require.NoError(t, e.ProcessBar(bars[0]))

	e.positions.OpenPosition(2, 1, 3200, 0)
	e.orders.PlaceOrder(2, models.Sell, 1.5, 0)
	require.NoError(t, e.ProcessBar(bars[1]))

	p, ok := e.Positions().Position(2)
	require.True(t, ok)
	assert.InDelta(t, 2.5, p.Quantity, 1e-12)
}

func TestNetOppositePositions(t *testing.T) {
	cfg := baseConfig(models.ModeShort)
	cfg.NetOppositePositions = true
	e := newEngine(t, cfg)
	bars := barsFromCloses(3200, 3200)
	bars[1].High = 3250
	require.NoError(t, e.ProcessBar(bars[0]))

	e.positions.OpenPosition(2, 1, 3200, 0)
	e.orders.PlaceOrder(2, models.Sell, 1.5, 0)
	require.NoError(t, e.ProcessBar(bars[1]))

	p, ok := e.Positions().Position(2)
	require.True(t, ok)
	assert.InDelta(t, -0.5, p.Quantity, 1e-12)

	res := e.Finish()
	require.Len(t, res.Trades, 2)
	assert.Equal(t, models.ActionClose, res.Trades[0].Action)
	assert.Equal(t, 0.0, res.Trades[0].RealizedPnL)
	assert.Equal(t, models.ActionOpen, res.Trades[1].Action)
	assert.InDelta(t, 0.5, res.Trades[1].Quantity, 1e-12)
}

func TestGridCrossingLong(t *testing.T) {
	cfg := baseConfig(models.ModeLong)
	cfg.ExecutionMode = models.ExecutionGridCrossing
	cfg.FeeRate = 0
	e := newEngine(t, cfg)
	assert.Empty(t, e.Orders().PendingOrders())

	bars := []models.Bar{
		{Timestamp: 0, Open: 3000, High: 3000, Low: 3000, Close: 3000},
		{Timestamp: hourMs, Open: 3000, High: 3250, Low: 3000, Close: 3200},
	}
	res, err := e.Run(bars)
	require.NoError(t, err)
	require.Len(t, res.Trades, 4)

	expected := 100*(1000.0/3000) + 100*(1000.0/3100)
	assert.InDelta(t, expected, res.RealizedPnL, 1e-9)
	assert.InDelta(t, 0, res.NetPosition, 1e-12)
	assert.InDelta(t, 10000+expected, res.FinalCapital, 1e-9)
	assert.Equal(t, 0.0, e.UsedMargin())
}

func TestGridCrossingShortIgnoresUpMoves(t *testing.T) {
	cfg := baseConfig(models.ModeShort)
	cfg.ExecutionMode = models.ExecutionGridCrossing
	e := newEngine(t, cfg)

	bars := []models.Bar{
		{Timestamp: 0, Open: 3400, High: 3400, Low: 3400, Close: 3000},
		{Timestamp: hourMs, Open: 3000, High: 3400, Low: 3000, Close: 3400},
		{Timestamp: 2 * hourMs, Open: 3400, High: 3400, Low: 3150, Close: 3150},
	}
	res, err := e.Run(bars)
	require.NoError(t, err)

	// 只有第三根K线的两个下穿区间 [3300,3400] 和 [3200,3300]
	require.Len(t, res.Trades, 4)
	for _, tr := range closingTrades(res.Trades) {
		assert.Equal(t, models.Buy, tr.Side)
		assert.Greater(t, tr.RealizedPnL, 0.0)
	}
	assert.Len(t, res.EquityCurve, 3)
}

func TestGridCrossingNeutralBothDirections(t *testing.T) {
	cfg := baseConfig(models.ModeNeutral)
	cfg.ExecutionMode = models.ExecutionGridCrossing
	e := newEngine(t, cfg)

	bars := []models.Bar{
		{Timestamp: 0, Open: 3200, High: 3200, Low: 3200, Close: 3200},
		{Timestamp: hourMs, Open: 3200, High: 3300, Low: 3100, Close: 3250},
	}
	res, err := e.Run(bars)
	require.NoError(t, err)
	require.Len(t, res.Trades, 4)

	closes := closingTrades(res.Trades)
	require.Len(t, closes, 2)
	// 阳线先走低点：先下穿再上穿
	assert.Equal(t, models.Buy, closes[0].Side)
	assert.Equal(t, models.Sell, closes[1].Side)
}

func TestCloseLargerThanPositionOpensRemainder(t *testing.T) {
	e := newEngine(t, baseConfig(models.ModeLong))
	res, err := e.Run(barsFromCloses(3200, 3300, 3350))
	require.NoError(t, err)
	require.Len(t, res.Trades, 4)

	// 第二根K线：3200 买入 0.3125，3300 的初始卖单只平掉其中 1000/3300
	buyQty := 1000.0 / 3200
	sellQty := 1000.0 / 3300
	assert.InDelta(t, buyQty, res.Trades[0].Quantity, 1e-12)
	assert.InDelta(t, sellQty, res.Trades[1].Quantity, 1e-12)
	assert.InDelta(t, buyQty-sellQty, res.Trades[1].NetPosition, 1e-12)

	// 第三根K线：反向卖单 0.3125 先平掉剩余多仓，剩下的部分在 3300 开空
	leftover := buyQty - sellQty
	closed := res.Trades[2]
	assert.Equal(t, models.ActionClose, closed.Action)
	assert.Equal(t, models.Sell, closed.Side)
	assert.Equal(t, 3, closed.GridIndex)
	assert.InDelta(t, leftover, closed.Quantity, 1e-12)
	assert.InDelta(t, leftover*3300*0.0005, closed.Fee, 1e-12)
	assert.InDelta(t, leftover*100, closed.RealizedPnL, 1e-9)

	opened := res.Trades[3]
	assert.Equal(t, models.ActionOpen, opened.Action)
	assert.Equal(t, models.Sell, opened.Side)
	assert.Equal(t, 3, opened.GridIndex)
	assert.InDelta(t, buyQty-leftover, opened.Quantity, 1e-12)
	assert.InDelta(t, -(buyQty - leftover), opened.NetPosition, 1e-12)
	assert.InDelta(t, buyQty, closed.Quantity+opened.Quantity, 1e-12)

	_, ok := e.Positions().Position(2)
	assert.False(t, ok)
	p, ok := e.Positions().Position(3)
	require.True(t, ok)
	assert.InDelta(t, -(buyQty - leftover), p.Quantity, 1e-12)
	assert.InDelta(t, (buyQty-leftover)*3300, e.UsedMargin(), 1e-6)

	fees := 0.0
	for _, tr := range res.Trades {
		assert.InDelta(t, tr.Quantity*tr.Price*0.0005, tr.Fee, 1e-12)
		fees += tr.Fee
	}
	assert.InDelta(t, fees, res.TotalFees, 1e-9)

	// 反向买单按实际成交的 0.3125 挂在 3200
	var counter []models.GridOrder
	for _, o := range e.Orders().PendingOrders() {
		if o.GridIndex == 2 && o.Side == models.Buy {
			counter = append(counter, o)
		}
	}
	require.Len(t, counter, 2)
	assert.InDelta(t, sellQty, counter[0].Quantity, 1e-12)
	assert.InDelta(t, buyQty, counter[1].Quantity, 1e-12)
}

func TestNetOppositeRemainderRejectedOnMargin(t *testing.T) {
	cfg := baseConfig(models.ModeShort)
	cfg.NetOppositePositions = true
	e := newEngine(t, cfg)
	bars := barsFromCloses(3200, 3200)
	bars[1].High = 3250
	require.NoError(t, e.ProcessBar(bars[0]))

	// 平掉 1 之后剩余 0.5 需要 1600 保证金，资金不足
	e.positions.OpenPosition(2, 1, 3200, 0)
	order := e.orders.PlaceOrder(2, models.Sell, 1.5, 0)
	e.capital = 1000
	require.NoError(t, e.ProcessBar(bars[1]))

	res := e.Finish()
	require.Len(t, res.Trades, 1)
	assert.Equal(t, models.ActionClose, res.Trades[0].Action)
	assert.InDelta(t, 1.0, res.Trades[0].Quantity, 1e-12)
	assert.InDelta(t, 1000-3200*0.0005, res.FinalCapital, 1e-9)
	assert.Equal(t, 0.0, e.UsedMargin())
	_, ok := e.Positions().Position(2)
	assert.False(t, ok)

	// 订单只记 1 的成交，剩余部分撤销；反向单按 1 挂出
	assert.InDelta(t, 1.0, order.FilledQuantity, 1e-12)
	assert.Equal(t, models.OrderCanceled, order.Status)
	var counters []models.GridOrder
	for _, o := range e.Orders().PendingOrders() {
		assert.NotEqual(t, order.ID, o.ID)
		if o.GridIndex == 1 && o.Side == models.Buy {
			counters = append(counters, o)
		}
	}
	require.Len(t, counters, 1)
	assert.InDelta(t, 1.0, counters[0].Quantity, 1e-12)
}

func TestFillSimulationThroughEngine(t *testing.T) {
	tests := []struct {
		name    string
		cfg     func(*models.StrategyConfig)
		bars    []models.Bar
		options []Option
		check   func(t *testing.T, e *Engine, res *models.StrategyResult)
	}{
		{
			name: "fixed slippage moves execution price against the order",
			cfg: func(c *models.StrategyConfig) {
				c.Slippage = models.SlippageConfig{Model: models.SlippageFixed, Rate: 0.001}
			},
			bars: barsFromCloses(3200, 3100, 3200),
			check: func(t *testing.T, e *Engine, res *models.StrategyResult) {
				require.Len(t, res.Trades, 3)
				qty1 := 1000.0 / 3100
				qty2 := 1000.0 / 3200

				buy1, buy2, sell := res.Trades[0], res.Trades[1], res.Trades[2]
				assert.Equal(t, 1, buy1.GridIndex)
				assert.InDelta(t, 3100*1.001, buy1.Price, 1e-9)
				assert.InDelta(t, 3100*0.001*qty1, buy1.Slippage, 1e-9)
				assert.Equal(t, 2, buy2.GridIndex)
				assert.InDelta(t, 3200*1.001, buy2.Price, 1e-9)

				assert.Equal(t, models.ActionClose, sell.Action)
				assert.InDelta(t, 3200*0.999, sell.Price, 1e-9)
				assert.InDelta(t, 3200*0.001*qty1, sell.Slippage, 1e-9)
				assert.InDelta(t, (3200*0.999-3100*1.001)*qty1, sell.RealizedPnL, 1e-9)

				p, ok := e.Positions().Position(2)
				require.True(t, ok)
				assert.InDelta(t, qty2, p.Quantity, 1e-12)
				assert.InDelta(t, 3200*1.001, p.EntryPrice, 1e-9)
			},
		},
		{
			name: "partial fills leave the remainder queued",
			cfg: func(c *models.StrategyConfig) {
				c.Fill = models.FillConfig{PartialFills: true, MaxVolumeParticipation: 0.001}
			},
			bars: barsFromCloses(3200, 3100),
			check: func(t *testing.T, e *Engine, res *models.StrategyResult) {
				// 成交量 100 * 0.001 = 每笔订单最多 0.1
				require.Len(t, res.Trades, 2)
				for _, tr := range res.Trades {
					assert.InDelta(t, 0.1, tr.Quantity, 1e-12)
				}

				var partial, counters []models.GridOrder
				for _, o := range e.Orders().PendingOrders() {
					switch {
					case o.Side == models.Buy && o.FilledQuantity > 0:
						partial = append(partial, o)
					case o.Side == models.Sell && (o.GridIndex == 2 || o.GridIndex == 3) && o.Quantity < 0.2:
						counters = append(counters, o)
					}
				}
				require.Len(t, partial, 2)
				assert.Equal(t, 1, partial[0].GridIndex)
				assert.Equal(t, models.OrderPending, partial[0].Status)
				assert.InDelta(t, 1000.0/3100-0.1, partial[0].Remaining(), 1e-12)
				assert.InDelta(t, 1000.0/3200-0.1, partial[1].Remaining(), 1e-12)

				require.Len(t, counters, 2)
				for _, o := range counters {
					assert.InDelta(t, 0.1, o.Quantity, 1e-12)
				}
				assert.InDelta(t, 0.2, e.Positions().NetPosition(), 1e-12)
			},
		},
		{
			name: "orders fill in estimated intrabar time order",
			cfg: func(c *models.StrategyConfig) {
				c.Fill = models.FillConfig{EstimateFillTime: true}
			},
			// 阴线 O->H->L->C：先上穿 3300 的卖单，再下穿 3200 的买单
			bars: []models.Bar{
				{Timestamp: 0, Open: 3200, High: 3200, Low: 3200, Close: 3200, Volume: 100},
				{Timestamp: hourMs, Open: 3250, High: 3320, Low: 3180, Close: 3190, Volume: 100},
			},
			options: []Option{WithBarDuration(time.Hour)},
			check: func(t *testing.T, e *Engine, res *models.StrategyResult) {
				require.Len(t, res.Trades, 2)
				first, second := res.Trades[0], res.Trades[1]

				assert.Equal(t, models.Sell, first.Side)
				assert.Equal(t, 3, first.GridIndex)
				assert.InDelta(t, float64(hourMs)*50/220, float64(first.Timestamp-hourMs), 1)

				assert.Equal(t, models.Buy, second.Side)
				assert.Equal(t, 2, second.GridIndex)
				assert.InDelta(t, float64(hourMs)*190/220, float64(second.Timestamp-hourMs), 1)
				assert.Less(t, first.Timestamp, second.Timestamp)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := baseConfig(models.ModeLong)
			tc.cfg(&cfg)
			e, err := NewEngine(cfg, append([]Option{WithLogger(zap.NewNop())}, tc.options...)...)
			require.NoError(t, err)

			res, err := e.Run(tc.bars)
			require.NoError(t, err)
			tc.check(t, e, res)
		})
	}
}
