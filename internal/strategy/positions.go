package strategy

import (
	"math"
	"sort"

	"github.com/pkg/errors"

	"grid-backtest-go/internal/models"
)

// PositionManager 按网格档位记录持仓，每个档位最多一个仓位
type PositionManager struct {
	mode      models.Mode
	levels    int
	positions map[int]*models.Position
}

// NewPositionManager 创建仓位管理器
func NewPositionManager(mode models.Mode, levels int) *PositionManager {
	return &PositionManager{
		mode:      mode,
		levels:    levels,
		positions: make(map[int]*models.Position),
	}
}

// FindMatchingPosition 查找某个档位的成交可以平掉的仓位，返回仓位所在档位。
//
//	long:    卖单成交 -> 下一档的多头
//	short:   买单成交 -> 上一档的空头
//	neutral: 卖单成交 -> 下一档的多头；买单成交 -> 上一档的空头
func (pm *PositionManager) FindMatchingPosition(level int, side models.Side) (int, bool) {
	var target int
	var wantLong bool
	switch {
	case side == models.Sell && (pm.mode == models.ModeLong || pm.mode == models.ModeNeutral):
		target, wantLong = level-1, true
	case side == models.Buy && (pm.mode == models.ModeShort || pm.mode == models.ModeNeutral):
		target, wantLong = level+1, false
	default:
		return 0, false
	}
	p, ok := pm.positions[target]
	if !ok || p.IsLong() != wantLong {
		return 0, false
	}
	return target, true
}

// OpenPosition 在档位上开仓，quantity 带符号。
// 同向时数量相加、开仓价按成交量加权；反向时沿用历史行为：保持原方向，数量绝对值相加。
func (pm *PositionManager) OpenPosition(level int, quantity, price float64, ts int64) models.Position {
	p, ok := pm.positions[level]
	if !ok {
		p = &models.Position{GridIndex: level, Quantity: quantity, EntryPrice: price, OpenedAt: ts}
		pm.positions[level] = p
		return *p
	}

	existing, added := math.Abs(p.Quantity), math.Abs(quantity)
	total := existing + added
	if total > 0 {
		p.EntryPrice = (p.EntryPrice*existing + price*added) / total
	}
	if sameSign(p.Quantity, quantity) {
		p.Quantity += quantity
	} else {
		p.Quantity = math.Copysign(total, p.Quantity)
	}
	return *p
}

// ClosePosition 平掉档位上最多 quantity 的仓位。
// 返回平仓前的仓位快照和实际平仓数量，仓位平完后删除。
func (pm *PositionManager) ClosePosition(level int, quantity float64) (models.Position, float64, error) {
	p, ok := pm.positions[level]
	if !ok {
		return models.Position{}, 0, errors.Errorf("no position at grid %d", level)
	}
	before := *p
	closed := math.Min(math.Abs(quantity), math.Abs(p.Quantity))
	p.Quantity -= math.Copysign(closed, p.Quantity)
	if math.Abs(p.Quantity) <= quantityEpsilon*math.Max(1, math.Abs(before.Quantity)) {
		delete(pm.positions, level)
	}
	return before, closed, nil
}

// Position 返回档位上的仓位
func (pm *PositionManager) Position(level int) (models.Position, bool) {
	p, ok := pm.positions[level]
	if !ok {
		return models.Position{}, false
	}
	return *p, true
}

// HasOpposite 档位上是否存在与 side 开仓方向相反的仓位
func (pm *PositionManager) HasOpposite(level int, side models.Side) bool {
	p, ok := pm.positions[level]
	if !ok {
		return false
	}
	return p.IsLong() != (side == models.Buy)
}

// NetPosition 所有仓位的带符号数量之和
func (pm *PositionManager) NetPosition() float64 {
	net := 0.0
	for _, p := range pm.positions {
		net += p.Quantity
	}
	return net
}

// Positions 按档位排序的仓位副本
func (pm *PositionManager) Positions() []models.Position {
	out := make([]models.Position, 0, len(pm.positions))
	for _, p := range pm.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GridIndex < out[j].GridIndex })
	return out
}

// Len 当前持仓档位数
func (pm *PositionManager) Len() int {
	return len(pm.positions)
}

func sameSign(a, b float64) bool {
	return (a >= 0) == (b >= 0)
}
