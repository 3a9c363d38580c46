package strategy

import "math"

// FundingFeeCalculator 按固定间隔结算永续合约资金费。
// 资金费率为正时多头支付、空头收取。
type FundingFeeCalculator struct {
	rate       float64
	intervalMs int64

	lastSettlement int64
	started        bool
	total          float64 // 正数表示净支付
	settlements    int
}

// NewFundingFeeCalculator 创建资金费计算器
func NewFundingFeeCalculator(rate float64, intervalMs int64) *FundingFeeCalculator {
	return &FundingFeeCalculator{rate: rate, intervalMs: intervalMs}
}

// Settle 在时间 now 检查是否到达结算点，返回对现金的影响（带符号）。
// 首次调用只记录起始时间。净持仓为 0 时不结算，结算点也不推进。
func (f *FundingFeeCalculator) Settle(now int64, netPosition, markPrice float64) float64 {
	if !f.started {
		f.started = true
		f.lastSettlement = now
		return 0
	}
	if f.intervalMs <= 0 || now-f.lastSettlement < f.intervalMs || netPosition == 0 {
		return 0
	}
	f.lastSettlement = now
	if f.rate == 0 {
		return 0
	}

	fee := math.Abs(netPosition) * markPrice * f.rate
	var delta float64
	if netPosition > 0 {
		delta = -fee
	} else {
		delta = fee
	}
	f.total -= delta
	f.settlements++
	return delta
}

// Total 累计净支付的资金费，收取为负
func (f *FundingFeeCalculator) Total() float64 {
	return f.total
}

// Settlements 实际收取资金费的次数
func (f *FundingFeeCalculator) Settlements() int {
	return f.settlements
}
