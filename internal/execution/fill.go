package execution

import (
	"math"
	"time"

	"grid-backtest-go/internal/models"
)

// OrderFillSimulator 决定一笔被触发的订单在当前K线内能成交多少、何时成交
type OrderFillSimulator struct {
	cfg         models.FillConfig
	barDuration time.Duration
}

// NewOrderFillSimulator 创建成交模拟器；既不开启部分成交也不估算时间时返回 nil
func NewOrderFillSimulator(cfg models.FillConfig, barDuration time.Duration) *OrderFillSimulator {
	if !cfg.PartialFills && !cfg.EstimateFillTime {
		return nil
	}
	return &OrderFillSimulator{cfg: cfg, barDuration: barDuration}
}

// FillQuantity 返回本根K线内可成交的数量。
// 开启部分成交时，单笔订单最多吃掉 K线成交量 * MaxVolumeParticipation；
// 小于 MinFillQuantity 的成交视为未成交，返回 0。
func (f *OrderFillSimulator) FillQuantity(order *models.GridOrder, bar models.Bar) float64 {
	remaining := order.Remaining()
	if f == nil || !f.cfg.PartialFills || f.cfg.MaxVolumeParticipation <= 0 {
		return remaining
	}
	qty := math.Min(remaining, bar.Volume*f.cfg.MaxVolumeParticipation)
	if qty <= 0 || (f.cfg.MinFillQuantity > 0 && qty < f.cfg.MinFillQuantity && qty < remaining) {
		return 0
	}
	return qty
}

// FillTime 估算限价单在K线内首次触价的时间（毫秒）。
// 阳线按 O->L->H->C、阴线按 O->H->L->C 的路径移动，时间按路径长度线性分配。
// 开盘价已越过挂单价时视为在开盘时刻成交。
func (f *OrderFillSimulator) FillTime(order *models.GridOrder, bar models.Bar) int64 {
	if f == nil || !f.cfg.EstimateFillTime || f.barDuration <= 0 {
		return bar.Timestamp
	}
	offset := PathFraction(bar, order.Side, order.Price)
	return bar.Timestamp + int64(offset*float64(f.barDuration.Milliseconds()))
}

// PathFraction 返回价格沿K线内路径首次触及 price 时走过的路程比例 [0, 1]。
// 买单在价格 <= price 时成交，卖单在价格 >= price 时成交；路径上未触及返回 1。
func PathFraction(bar models.Bar, side models.Side, price float64) float64 {
	touched := func(p float64) bool {
		if side == models.Buy {
			return p <= price
		}
		return p >= price
	}
	if touched(bar.Open) {
		return 0
	}

	var path []float64
	if bar.IsBullish() {
		path = []float64{bar.Open, bar.Low, bar.High, bar.Close}
	} else {
		path = []float64{bar.Open, bar.High, bar.Low, bar.Close}
	}

	total := 0.0
	for i := 1; i < len(path); i++ {
		total += math.Abs(path[i] - path[i-1])
	}
	if total == 0 {
		return 0
	}

	travelled := 0.0
	for i := 1; i < len(path); i++ {
		from, to := path[i-1], path[i]
		if touched(to) {
			travelled += math.Abs(price - from)
			return travelled / total
		}
		travelled += math.Abs(to - from)
	}
	return 1
}
