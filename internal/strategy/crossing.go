package strategy

import (
	"grid-backtest-go/internal/models"
)

// processGridCrossings 网格穿越模式：不维护挂单，按上一根收盘价到本根 high/low 之间
// 完整穿越的网格区间，直接合成一开一平两笔成交。
// long 只做上穿，short 只做下穿，neutral 两个方向都做。
func (e *Engine) processGridCrossings(bar models.Bar) {
	prev := e.lastPrice

	up := e.cfg.Mode == models.ModeLong || e.cfg.Mode == models.ModeNeutral
	down := e.cfg.Mode == models.ModeShort || e.cfg.Mode == models.ModeNeutral

	// 与K线内路径一致：阳线先走低点再走高点
	if bar.IsBullish() {
		if down {
			e.tradeDownCrossings(prev, bar)
		}
		if up {
			e.tradeUpCrossings(prev, bar)
		}
		return
	}
	if up {
		e.tradeUpCrossings(prev, bar)
	}
	if down {
		e.tradeDownCrossings(prev, bar)
	}
}

// tradeUpCrossings 区间 [l_i, l_i+1] 满足 l_i >= prev 且 l_i+1 <= high 时，在 l_i 买入、l_i+1 卖出
func (e *Engine) tradeUpCrossings(prev float64, bar models.Bar) {
	for i := 0; i+1 < len(e.levels); i++ {
		if e.levels[i] < prev || e.levels[i+1] > bar.High {
			continue
		}
		e.roundTrip(i, i+1, models.Buy, i, bar)
	}
}

// tradeDownCrossings 区间 [l_i, l_i+1] 满足 l_i+1 <= prev 且 l_i >= low 时，在 l_i+1 卖出、l_i 买回
func (e *Engine) tradeDownCrossings(prev float64, bar models.Bar) {
	for i := len(e.levels) - 2; i >= 0; i-- {
		if e.levels[i+1] > prev || e.levels[i] < bar.Low {
			continue
		}
		e.roundTrip(i+1, i, models.Sell, i, bar)
	}
}

// roundTrip 在 openLevel 开仓并立即在 closeLevel 平仓，两腿都收手续费
func (e *Engine) roundTrip(openLevel, closeLevel int, openSide models.Side, sizeLevel int, bar models.Bar) {
	qty := e.orders.LevelQuantity(sizeLevel)
	if qty <= 0 {
		return
	}
	ts := bar.Timestamp

	openPrice, openSlip := e.slippage.ExecutionPrice(openSide, e.levels[openLevel], qty, bar)
	if !e.openAt(openLevel, 0, openSide, qty, openPrice, openSlip, ts) {
		return
	}
	closeSide := openSide.Opposite()
	closePrice, closeSlip := e.slippage.ExecutionPrice(closeSide, e.levels[closeLevel], qty, bar)
	e.closeAt(openLevel, closeLevel, 0, closeSide, qty, closePrice, closeSlip, ts)
}
