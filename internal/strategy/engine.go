// Package strategy 实现网格策略的逐K线模拟：挂单、撮合、仓位、保证金、盈亏与资金费。
package strategy

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"grid-backtest-go/internal/execution"
	"grid-backtest-go/internal/grid"
	"grid-backtest-go/internal/models"
)

// State 引擎状态
type State int

const (
	StateUninitialized State = iota
	StateRunning
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Option 引擎可选项
type Option func(*Engine)

// WithLogger 设置日志，默认不输出
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithBarDuration 设置K线周期，用于估算K线内成交时间
func WithBarDuration(d time.Duration) Option {
	return func(e *Engine) {
		e.barDuration = d
	}
}

// Engine 网格策略引擎。状态机：uninitialized -> running -> completed。
// 一个 Engine 只服务于一次运行，不是并发安全的。
type Engine struct {
	cfg         models.StrategyConfig
	state       State
	logger      *zap.Logger
	barDuration time.Duration

	levels    []float64
	orders    *OrderManager
	positions *PositionManager
	margin    *MarginCalculator
	pnl       PnLCalculator
	funding   *FundingFeeCalculator
	slippage  *execution.SlippageSimulator
	filler    *execution.OrderFillSimulator

	capital       float64
	peakEquity    float64
	maxDrawdown   float64
	maxDrawdownPc float64
	totalFees     float64
	realized      float64
	lastPrice     float64
	lastTimestamp int64
	liquidated    bool

	trades     []models.TradeRecord
	equity     []float64
	timestamps []int64
}

// NewEngine 校验参数并生成网格，参数不合法时返回 *models.InvalidParameterError
func NewEngine(cfg models.StrategyConfig, opts ...Option) (*Engine, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	levels, err := grid.Levels(cfg.LowerPrice, cfg.UpperPrice, cfg.GridCount, cfg.LadderType, cfg.MinTick)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:       cfg,
		state:     StateUninitialized,
		logger:    zap.NewNop(),
		levels:    levels,
		orders:    NewOrderManager(cfg.Mode, levels, cfg.InitialCapital, cfg.Leverage, cfg.QuantityStep),
		positions: NewPositionManager(cfg.Mode, len(levels)),
		margin:    NewMarginCalculator(cfg.Leverage),
		funding:   NewFundingFeeCalculator(cfg.FundingRate, cfg.FundingIntervalMs()),
		slippage:  execution.NewSlippageSimulator(cfg.Slippage),
		capital:   cfg.InitialCapital,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.filler = execution.NewOrderFillSimulator(cfg.Fill, e.barDuration)
	e.logger = e.logger.With(zap.String("symbol", cfg.Symbol), zap.String("mode", string(cfg.Mode)))
	return e, nil
}

// Run 依次处理所有K线并返回结果。爆仓后停止消费后续K线。
func (e *Engine) Run(bars []models.Bar) (*models.StrategyResult, error) {
	for _, bar := range bars {
		if err := e.ProcessBar(bar); err != nil {
			return nil, err
		}
		if e.liquidated {
			break
		}
	}
	return e.Finish(), nil
}

// ProcessBar 处理一根K线。第一根K线只用于初始化网格和挂单。
// 处理过程中的任何意外错误（包括 panic）都包装为 *models.ExecutionError。
func (e *Engine) ProcessBar(bar models.Bar) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &models.ExecutionError{Timestamp: bar.Timestamp, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	switch e.state {
	case StateCompleted:
		return &models.ExecutionError{Timestamp: bar.Timestamp, Err: errors.New("engine already completed")}
	case StateUninitialized:
		e.start(bar)
		return nil
	}
	if e.liquidated {
		return nil
	}
	if bar.Timestamp <= e.lastTimestamp {
		return &models.ExecutionError{
			Timestamp: bar.Timestamp,
			Err:       errors.Errorf("bar timestamp %d not after previous %d", bar.Timestamp, e.lastTimestamp),
		}
	}

	// (a) 资金费
	if delta := e.funding.Settle(bar.Timestamp, e.positions.NetPosition(), bar.Close); delta != 0 {
		e.capital += delta
		e.logger.Debug("资金费结算", zap.Int64("ts", bar.Timestamp), zap.Float64("delta", delta))
	}

	// (b)(c) 撮合与反向挂单
	switch e.cfg.ExecutionMode {
	case models.ExecutionGridCrossing:
		e.processGridCrossings(bar)
	default:
		e.processOrderFills(bar)
	}

	// (d)(e) 权益与回撤
	e.lastPrice = bar.Close
	e.lastTimestamp = bar.Timestamp
	equity := e.recordEquity(bar.Timestamp)
	e.checkLiquidation(bar.Timestamp, equity)
	return nil
}

func (e *Engine) start(bar models.Bar) {
	e.state = StateRunning
	e.lastPrice = bar.Close
	e.lastTimestamp = bar.Timestamp
	e.funding.Settle(bar.Timestamp, 0, bar.Close)

	if e.cfg.ExecutionMode == models.ExecutionOrders {
		placed := e.orders.PlaceInitialOrders(bar.Close, bar.Timestamp)
		e.logger.Info("初始化网格",
			zap.Int("levels", len(e.levels)),
			zap.Int("orders", len(placed)),
			zap.Float64("price", bar.Close))
	}

	e.peakEquity = e.capital
	e.recordEquity(bar.Timestamp)
}

type pendingFill struct {
	order *models.GridOrder
	qty   float64
	at    int64
}

// processOrderFills 处理挂单模式下本根K线的所有成交，然后为每笔成交挂反向单
func (e *Engine) processOrderFills(bar models.Bar) {
	triggered := e.orders.CheckFills(bar)
	if len(triggered) == 0 {
		return
	}

	fills := make([]pendingFill, 0, len(triggered))
	for _, order := range triggered {
		qty := e.filler.FillQuantity(order, bar)
		if qty <= 0 {
			continue
		}
		fills = append(fills, pendingFill{order: order, qty: qty, at: e.filler.FillTime(order, bar)})
	}
	// 触发顺序已按档位和 FIFO 排列，这里只按估算成交时间做稳定排序
	sort.SliceStable(fills, func(i, j int) bool { return fills[i].at < fills[j].at })

	accepted := fills[:0]
	for _, f := range fills {
		if filled := e.executeFill(f.order, f.qty, f.at, bar); filled > 0 {
			f.qty = filled
			accepted = append(accepted, f)
		}
	}
	for _, f := range accepted {
		e.orders.PlaceCounterOrder(f.order, f.qty, f.at)
	}
}

// executeFill 结算一笔挂单成交，返回实际成交数量。
// 先平掉匹配的仓位（或 NetOppositePositions 下同档位的反向仓位），平不完的部分在订单档位开仓。
// 开仓保证金不足时退还该部分手续费并撤销订单剩余部分；完全没有成交时返回 0。
func (e *Engine) executeFill(order *models.GridOrder, qty float64, at int64, bar models.Bar) float64 {
	price, slip := e.slippage.ExecutionPrice(order.Side, order.Price, qty, bar)

	filled := 0.0
	if level, ok := e.positions.FindMatchingPosition(order.GridIndex, order.Side); ok {
		filled = e.closeAt(level, order.GridIndex, order.ID, order.Side, qty, price, slip, at)
	} else if e.cfg.NetOppositePositions && e.positions.HasOpposite(order.GridIndex, order.Side) {
		filled = e.closeAt(order.GridIndex, order.GridIndex, order.ID, order.Side, qty, price, slip, at)
	}

	if rest := qty - filled; rest > quantityEpsilon {
		if !e.openAt(order.GridIndex, order.ID, order.Side, rest, price, slip*rest/qty, at) {
			if filled > 0 {
				e.orders.ApplyFill(order, filled)
			}
			e.orders.CancelOrder(order.ID)
			return filled
		}
		filled = qty
	}
	e.orders.ApplyFill(order, filled)
	return filled
}

// openAt 扣手续费、占用保证金并开仓；保证金不足时退还手续费并返回 false
func (e *Engine) openAt(level int, orderID int64, side models.Side, qty, price, slip float64, ts int64) bool {
	fee := qty * price * e.cfg.FeeRate
	e.capital -= fee

	required := e.margin.RequiredMargin(qty, price)
	if err := e.margin.Allocate(required, e.capital); err != nil {
		e.capital += fee
		e.logger.Debug("保证金不足，跳过成交",
			zap.Int("grid", level),
			zap.String("side", string(side)),
			zap.Float64("price", price),
			zap.Error(err))
		return false
	}

	signed := qty
	if side == models.Sell {
		signed = -qty
	}
	e.positions.OpenPosition(level, signed, price, ts)
	e.totalFees += fee
	e.appendTrade(models.TradeRecord{
		Timestamp: ts,
		OrderID:   orderID,
		Price:     price,
		Quantity:  qty,
		Side:      side,
		Action:    models.ActionOpen,
		GridIndex: level,
		Fee:       fee,
		Slippage:  slip,
	})
	return true
}

// closeAt 平掉 posLevel 上的仓位（最多 qty），成交记录在 gridIndex 上，返回实际平仓数量。
// 手续费和滑点只按实际平仓数量计算；slip 是 qty 全部成交时的滑点成本。
func (e *Engine) closeAt(posLevel, gridIndex int, orderID int64, side models.Side, qty, price, slip float64, ts int64) float64 {
	pos, closed, err := e.positions.ClosePosition(posLevel, qty)
	if err != nil {
		// 调用方已确认仓位存在，走到这里说明状态被破坏
		panic(err)
	}
	fee := closed * price * e.cfg.FeeRate
	e.capital -= fee
	e.totalFees += fee

	realized := e.pnl.Realized(pos, price, closed)
	e.capital += realized
	e.realized += realized
	e.margin.Release(e.margin.RequiredMargin(closed, pos.EntryPrice))

	e.appendTrade(models.TradeRecord{
		Timestamp:   ts,
		OrderID:     orderID,
		Price:       price,
		Quantity:    closed,
		Side:        side,
		Action:      models.ActionClose,
		GridIndex:   gridIndex,
		Fee:         fee,
		Slippage:    slip * closed / qty,
		RealizedPnL: realized,
	})
	return closed
}

func (e *Engine) appendTrade(t models.TradeRecord) {
	t.NetPosition = e.positions.NetPosition()
	e.trades = append(e.trades, t)
	e.logger.Debug("成交",
		zap.Int64("ts", t.Timestamp),
		zap.String("side", string(t.Side)),
		zap.String("action", string(t.Action)),
		zap.Int("grid", t.GridIndex),
		zap.Float64("price", t.Price),
		zap.Float64("qty", t.Quantity),
		zap.Float64("pnl", t.RealizedPnL))
}

// recordEquity 追加权益点并更新回撤
func (e *Engine) recordEquity(ts int64) float64 {
	equity := e.Equity()
	e.equity = append(e.equity, equity)
	e.timestamps = append(e.timestamps, ts)

	if equity > e.peakEquity {
		e.peakEquity = equity
	}
	drawdown := e.peakEquity - equity
	if drawdown > e.maxDrawdown {
		e.maxDrawdown = drawdown
	}
	if e.peakEquity > 0 {
		pct := math.Min(math.Max(drawdown/e.peakEquity, 0), 1)
		if pct > e.maxDrawdownPc {
			e.maxDrawdownPc = pct
		}
	}
	return equity
}

// checkLiquidation 现金为负或权益归零视为爆仓，之后不再处理K线
func (e *Engine) checkLiquidation(ts int64, equity float64) {
	if e.capital >= 0 && equity > 0 {
		return
	}
	e.liquidated = true
	e.logger.Warn("账户爆仓，停止回测",
		zap.Int64("ts", ts),
		zap.Float64("capital", e.capital),
		zap.Float64("equity", equity),
		zap.Float64("net_position", e.positions.NetPosition()))
}

// Finish 结束运行并汇总结果，之后不能再处理K线
func (e *Engine) Finish() *models.StrategyResult {
	e.state = StateCompleted

	unrealized := e.pnl.Unrealized(e.positions.Positions(), e.lastPrice)
	finalEquity := e.pnl.Equity(e.capital, unrealized)
	res := &models.StrategyResult{
		Symbol:         e.cfg.Symbol,
		InitialCapital: e.cfg.InitialCapital,
		FinalCapital:   e.capital,
		FinalEquity:    finalEquity,
		TotalReturn:    (finalEquity - e.cfg.InitialCapital) / e.cfg.InitialCapital,
		TotalTrades:    len(e.trades),
		MaxDrawdown:    e.maxDrawdown,
		MaxDrawdownPct: e.maxDrawdownPc,
		TotalFees:      e.totalFees,
		TotalFunding:   e.funding.Total(),
		RealizedPnL:    e.realized,
		UnrealizedPnL:  unrealized,
		NetPosition:    e.positions.NetPosition(),
		OpenPositions:  e.positions.Positions(),
		Liquidated:     e.liquidated,
		EquityCurve:    append([]float64(nil), e.equity...),
		Timestamps:     append([]int64(nil), e.timestamps...),
		Trades:         append([]models.TradeRecord(nil), e.trades...),
	}
	for _, t := range e.trades {
		if t.Action == models.ActionClose {
			res.ClosingTrades++
		}
		switch {
		case t.RealizedPnL > 0:
			res.WinningTrades++
		case t.RealizedPnL < 0:
			res.LosingTrades++
		}
	}
	if res.TotalTrades > 0 {
		res.WinRate = float64(res.WinningTrades) / float64(res.TotalTrades)
	}
	return res
}

// Equity 当前权益 = 现金 + 按最新价计算的未实现盈亏
func (e *Engine) Equity() float64 {
	return e.pnl.Equity(e.capital, e.pnl.Unrealized(e.positions.Positions(), e.lastPrice))
}

func (e *Engine) State() State                  { return e.state }
func (e *Engine) Capital() float64              { return e.capital }
func (e *Engine) UsedMargin() float64           { return e.margin.Used() }
func (e *Engine) Liquidated() bool              { return e.liquidated }
func (e *Engine) Config() models.StrategyConfig { return e.cfg }
func (e *Engine) Orders() *OrderManager         { return e.orders }
func (e *Engine) Positions() *PositionManager   { return e.positions }

// Levels 网格价格副本
func (e *Engine) Levels() []float64 {
	return append([]float64(nil), e.levels...)
}
