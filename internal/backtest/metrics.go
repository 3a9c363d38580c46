package backtest

import (
	"math"

	"grid-backtest-go/internal/models"
)

// TradingDaysPerYear 夏普比率年化使用的周期数
const TradingDaysPerYear = 252

// AnnualizedReturn 线性年化：total_return * 365 / days，days <= 0 时返回 0
func AnnualizedReturn(totalReturn, days float64) float64 {
	if days <= 0 {
		return 0
	}
	return totalReturn * 365 / days
}

// SharpeRatio 基于逐K线收益率 r_i = (e_i - e_i-1) / e_i-1 计算，
// 使用样本标准差（n-1），乘以 sqrt(252) 年化。
// 收益率少于 2 个、标准差为 0 或权益中出现 0 时返回 0。
func SharpeRatio(equity []float64) float64 {
	if len(equity) < 3 {
		return 0
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] == 0 || equity[i] == 0 {
			return 0
		}
		returns = append(returns, (equity[i]-equity[i-1])/equity[i-1])
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	std := math.Sqrt(variance)
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return mean / std * math.Sqrt(TradingDaysPerYear)
}

// TradeStats 平仓成交的盈亏统计
type TradeStats struct {
	GrossProfit  float64
	GrossLoss    float64 // 负数
	ProfitFactor float64 // 没有亏损交易时为 0
	AvgWin       float64
	AvgLoss      float64 // 负数
}

// CalculateTradeStats 统计已实现盈亏
func CalculateTradeStats(trades []models.TradeRecord) TradeStats {
	var s TradeStats
	wins, losses := 0, 0
	for _, t := range trades {
		switch {
		case t.RealizedPnL > 0:
			s.GrossProfit += t.RealizedPnL
			wins++
		case t.RealizedPnL < 0:
			s.GrossLoss += t.RealizedPnL
			losses++
		}
	}
	if wins > 0 {
		s.AvgWin = s.GrossProfit / float64(wins)
	}
	if losses > 0 {
		s.AvgLoss = s.GrossLoss / float64(losses)
		s.ProfitFactor = s.GrossProfit / math.Abs(s.GrossLoss)
	}
	return s
}
