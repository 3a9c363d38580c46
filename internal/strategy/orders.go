package strategy

import (
	"math"
	"sort"

	"grid-backtest-go/internal/grid"
	"grid-backtest-go/internal/models"
)

// quantityEpsilon 数量比较时使用的极小值，避免浮点误差
const quantityEpsilon = 1e-12

// OrderManager 管理网格挂单：初始挂单、成交检测、成交后的反向挂单。
// 每个网格档位维护一个 FIFO 队列。
type OrderManager struct {
	mode     models.Mode
	levels   []float64
	capital  float64
	leverage float64
	qtyStep  float64
	queues   [][]*models.GridOrder
	nextID   int64
}

// NewOrderManager 创建订单管理器
func NewOrderManager(mode models.Mode, levels []float64, capital, leverage, qtyStep float64) *OrderManager {
	return &OrderManager{
		mode:     mode,
		levels:   levels,
		capital:  capital,
		leverage: leverage,
		qtyStep:  qtyStep,
		queues:   make([][]*models.GridOrder, len(levels)),
		nextID:   1,
	}
}

// LevelQuantity 每个档位的下单数量 = (资金 / (网格数*2)) / 档位价格 * 杠杆
func (m *OrderManager) LevelQuantity(level int) float64 {
	if level < 0 || level >= len(m.levels) {
		return 0
	}
	perLevel := m.capital / float64(len(m.levels)*2)
	qty := perLevel / m.levels[level] * m.leverage
	return grid.FloorToStep(qty, m.qtyStep)
}

// PlaceInitialOrders 按策略方向在各档位挂初始订单，每次运行只调用一次
func (m *OrderManager) PlaceInitialOrders(currentPrice float64, ts int64) []*models.GridOrder {
	placed := make([]*models.GridOrder, 0, len(m.levels))
	for i, price := range m.levels {
		side, ok := initialSide(m.mode, price, currentPrice)
		if !ok {
			continue
		}
		qty := m.LevelQuantity(i)
		if qty <= 0 {
			continue
		}
		placed = append(placed, m.PlaceOrder(i, side, qty, ts))
	}
	return placed
}

// initialSide 决定某个档位的初始挂单方向，第二个返回值为 false 表示不挂单
func initialSide(mode models.Mode, levelPrice, currentPrice float64) (models.Side, bool) {
	switch mode {
	case models.ModeLong:
		// 当前价及以下挂买单开多，以上挂卖单
		if levelPrice <= currentPrice || samePrice(levelPrice, currentPrice) {
			return models.Buy, true
		}
		return models.Sell, true
	case models.ModeShort:
		// 只在当前价以上挂卖单开空，买单在成交后作为反向单补充
		if levelPrice > currentPrice && !samePrice(levelPrice, currentPrice) {
			return models.Sell, true
		}
		return "", false
	case models.ModeNeutral:
		// 当前价所在档位不挂单
		if samePrice(levelPrice, currentPrice) {
			return "", false
		}
		if levelPrice < currentPrice {
			return models.Buy, true
		}
		return models.Sell, true
	}
	return "", false
}

func samePrice(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(math.Abs(a), math.Abs(b))
}

// PlaceOrder 在指定档位排队一笔新订单
func (m *OrderManager) PlaceOrder(level int, side models.Side, quantity float64, ts int64) *models.GridOrder {
	order := &models.GridOrder{
		ID:        m.nextID,
		GridIndex: level,
		Price:     m.levels[level],
		Side:      side,
		Quantity:  quantity,
		Status:    models.OrderPending,
		CreatedAt: ts,
	}
	m.nextID++
	m.queues[level] = append(m.queues[level], order)
	return order
}

// CheckFills 返回本根K线触发的所有挂单：买单 low <= 价格，卖单 high >= 价格。
// 结果按档位从低到高、同档位按 FIFO 排列；订单状态不在这里修改。
func (m *OrderManager) CheckFills(bar models.Bar) []*models.GridOrder {
	var triggered []*models.GridOrder
	for _, queue := range m.queues {
		for _, order := range queue {
			if order.Status != models.OrderPending {
				continue
			}
			if (order.Side == models.Buy && bar.Low <= order.Price) ||
				(order.Side == models.Sell && bar.High >= order.Price) {
				triggered = append(triggered, order)
			}
		}
	}
	return triggered
}

// ApplyFill 记录一笔（部分）成交，完全成交的订单移出队列
func (m *OrderManager) ApplyFill(order *models.GridOrder, quantity float64) {
	order.FilledQuantity += quantity
	if order.Remaining() <= quantityEpsilon*math.Max(1, order.Quantity) {
		order.FilledQuantity = order.Quantity
		order.Status = models.OrderFilled
		m.remove(order)
	}
}

// PlaceCounterOrder 成交后在相邻档位挂一笔反向订单，目标档位越界时返回 nil
func (m *OrderManager) PlaceCounterOrder(filled *models.GridOrder, quantity float64, ts int64) *models.GridOrder {
	level, side := counterTarget(m.mode, filled.GridIndex, filled.Side)
	if level < 0 || level >= len(m.levels) || quantity <= 0 {
		return nil
	}
	return m.PlaceOrder(level, side, quantity, ts)
}

// counterTarget 相邻网格规则：
// long/neutral 买单成交 -> 上一档卖出；卖单成交 -> 下一档买入
// short       卖单成交 -> 下一档买入；买单成交 -> 上一档卖出
func counterTarget(mode models.Mode, level int, side models.Side) (int, models.Side) {
	switch mode {
	case models.ModeLong, models.ModeNeutral:
		if side == models.Buy {
			return level + 1, models.Sell
		}
		return level - 1, models.Buy
	case models.ModeShort:
		if side == models.Sell {
			return level - 1, models.Buy
		}
		return level + 1, models.Sell
	}
	return -1, ""
}

// CancelOrder 撤销一笔挂单
func (m *OrderManager) CancelOrder(id int64) bool {
	for _, queue := range m.queues {
		for _, order := range queue {
			if order.ID == id && order.Status == models.OrderPending {
				order.Status = models.OrderCanceled
				m.remove(order)
				return true
			}
		}
	}
	return false
}

// CancelAll 撤销全部挂单，返回撤销数量
func (m *OrderManager) CancelAll() int {
	n := 0
	for i, queue := range m.queues {
		for _, order := range queue {
			order.Status = models.OrderCanceled
			n++
		}
		m.queues[i] = nil
	}
	return n
}

// PendingOrders 返回所有挂单的副本，按档位、FIFO 排序
func (m *OrderManager) PendingOrders() []models.GridOrder {
	var out []models.GridOrder
	for _, queue := range m.queues {
		for _, order := range queue {
			out = append(out, *order)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].GridIndex < out[j].GridIndex })
	return out
}

// Queue 返回某个档位的挂单队列副本
func (m *OrderManager) Queue(level int) []models.GridOrder {
	if level < 0 || level >= len(m.queues) {
		return nil
	}
	out := make([]models.GridOrder, 0, len(m.queues[level]))
	for _, order := range m.queues[level] {
		out = append(out, *order)
	}
	return out
}

func (m *OrderManager) remove(order *models.GridOrder) {
	queue := m.queues[order.GridIndex]
	for i, o := range queue {
		if o == order {
			m.queues[order.GridIndex] = append(queue[:i:i], queue[i+1:]...)
			return
		}
	}
}
