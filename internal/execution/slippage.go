// Package execution 模拟订单在历史K线上的成交细节：滑点、部分成交、K线内成交时间。
package execution

import (
	"grid-backtest-go/internal/models"
)

// SlippageSimulator 根据滑点模型计算含滑点的成交价
type SlippageSimulator struct {
	cfg models.SlippageConfig
}

// NewSlippageSimulator 创建滑点模拟器；模型为 none 时返回 nil，调用方按无滑点处理
func NewSlippageSimulator(cfg models.SlippageConfig) *SlippageSimulator {
	if cfg.Model == "" || cfg.Model == models.SlippageNone {
		return nil
	}
	return &SlippageSimulator{cfg: cfg}
}

// Rate 返回本次成交的滑点率
func (s *SlippageSimulator) Rate(quantity float64, bar models.Bar) float64 {
	if s == nil {
		return 0
	}
	rate := s.cfg.Rate
	switch s.cfg.Model {
	case models.SlippageFixed:
	case models.SlippageVolume:
		// 订单占K线成交量的比例越大，冲击越大；无成交量时按上限处理
		if bar.Volume > 0 {
			rate += s.cfg.VolumeImpact * quantity / bar.Volume
		} else if s.cfg.MaxRate > 0 {
			rate = s.cfg.MaxRate
		}
	case models.SlippageNone:
		return 0
	}
	if s.cfg.MaxRate > 0 && rate > s.cfg.MaxRate {
		rate = s.cfg.MaxRate
	}
	return rate
}

// ExecutionPrice 计算含滑点的成交价：买单向上滑，卖单向下滑。
// 返回成交价以及滑点成本（始终为非负）。
func (s *SlippageSimulator) ExecutionPrice(side models.Side, price, quantity float64, bar models.Bar) (float64, float64) {
	if s == nil {
		return price, 0
	}
	rate := s.Rate(quantity, bar)
	var executionPrice float64
	if side == models.Buy {
		executionPrice = price * (1 + rate)
	} else {
		executionPrice = price * (1 - rate)
	}
	cost := (executionPrice - price) * quantity
	if cost < 0 {
		cost = -cost
	}
	return executionPrice, cost
}
