package strategy

import (
	"grid-backtest-go/internal/models"
)

// MarginCalculator 记录已占用的保证金。保证金 = 数量 * 价格 / 杠杆。
type MarginCalculator struct {
	leverage float64
	used     float64
}

// NewMarginCalculator 创建保证金计算器
func NewMarginCalculator(leverage float64) *MarginCalculator {
	if leverage <= 0 {
		leverage = 1
	}
	return &MarginCalculator{leverage: leverage}
}

// RequiredMargin 开仓所需保证金
func (m *MarginCalculator) RequiredMargin(quantity, price float64) float64 {
	if quantity < 0 {
		quantity = -quantity
	}
	return quantity * price / m.leverage
}

// Allocate 从可用资金中占用保证金，不足时返回 *models.InsufficientFundsError
func (m *MarginCalculator) Allocate(amount, capital float64) error {
	available := m.Available(capital)
	if amount > available {
		return &models.InsufficientFundsError{Required: amount, Available: available}
	}
	m.used += amount
	return nil
}

// Release 释放保证金，不会低于 0
func (m *MarginCalculator) Release(amount float64) {
	m.used -= amount
	if m.used < 0 {
		m.used = 0
	}
}

// Used 已占用保证金
func (m *MarginCalculator) Used() float64 {
	return m.used
}

// Available 可用资金 = 现金 - 已占用保证金
func (m *MarginCalculator) Available(capital float64) float64 {
	return capital - m.used
}
