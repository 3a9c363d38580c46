package strategy

import (
	"grid-backtest-go/internal/models"
)

// PnLCalculator 盈亏计算，无状态
type PnLCalculator struct{}

// Realized 平仓 quantity 的已实现盈亏。
// 多头 (平仓价 - 开仓价) * 数量；空头 (开仓价 - 平仓价) * 数量。
func (PnLCalculator) Realized(pos models.Position, closePrice, quantity float64) float64 {
	if quantity < 0 {
		quantity = -quantity
	}
	if pos.IsLong() {
		return (closePrice - pos.EntryPrice) * quantity
	}
	return (pos.EntryPrice - closePrice) * quantity
}

// Unrealized 按当前价计算所有仓位的未实现盈亏
func (PnLCalculator) Unrealized(positions []models.Position, price float64) float64 {
	total := 0.0
	for _, p := range positions {
		// 数量带符号，多空统一为 (现价 - 开仓价) * 数量
		total += (price - p.EntryPrice) * p.Quantity
	}
	return total
}

// Equity 权益 = 现金 + 未实现盈亏
func (PnLCalculator) Equity(capital, unrealized float64) float64 {
	return capital + unrealized
}
