package models

// Side 定义了交易方向的类型
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite 返回相反方向
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderStatus 网格订单的生命周期状态
type OrderStatus string

const (
	OrderPending  OrderStatus = "PENDING"
	OrderFilled   OrderStatus = "FILLED"
	OrderCanceled OrderStatus = "CANCELED"
)

// GridOrder 挂在某个网格上的一笔限价单。
// 同一网格上的订单按 FIFO 排队，允许同时存在多笔。
type GridOrder struct {
	ID             int64       `json:"id"`
	GridIndex      int         `json:"grid_index"`
	Price          float64     `json:"price"`
	Side           Side        `json:"side"`
	Quantity       float64     `json:"quantity"`
	FilledQuantity float64     `json:"filled_quantity"`
	Status         OrderStatus `json:"status"`
	CreatedAt      int64       `json:"created_at"`
}

// Remaining 未成交数量
func (o *GridOrder) Remaining() float64 {
	r := o.Quantity - o.FilledQuantity
	if r < 0 {
		return 0
	}
	return r
}

// Position 某个网格上的持仓，数量为正表示多头，为负表示空头
type Position struct {
	GridIndex  int     `json:"grid_index"`
	Quantity   float64 `json:"quantity"`
	EntryPrice float64 `json:"entry_price"` // 同向加仓时按成交量加权
	OpenedAt   int64   `json:"opened_at"`
}

// IsLong 是否为多头仓位
func (p Position) IsLong() bool {
	return p.Quantity > 0
}

// TradeAction 成交是开仓还是平仓
type TradeAction string

const (
	ActionOpen  TradeAction = "open"
	ActionClose TradeAction = "close"
)

// TradeRecord 每笔成交的不可变记录，只追加
type TradeRecord struct {
	Timestamp   int64       `json:"timestamp"`
	OrderID     int64       `json:"order_id"`
	Price       float64     `json:"price"`
	Quantity    float64     `json:"quantity"`
	Side        Side        `json:"side"`
	Action      TradeAction `json:"action"`
	GridIndex   int         `json:"grid_index"`
	Fee         float64     `json:"fee"`
	Slippage    float64     `json:"slippage"`     // 滑点成本（计价货币）
	RealizedPnL float64     `json:"realized_pnl"` // 开仓成交为 0
	NetPosition float64     `json:"net_position"` // 成交后的净持仓
}
