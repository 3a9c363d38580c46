package models

import "time"

// StrategyResult 一次策略运行结束后的汇总
type StrategyResult struct {
	Symbol         string  `json:"symbol"`
	InitialCapital float64 `json:"initial_capital"`
	FinalCapital   float64 `json:"final_capital"` // 现金（已实现盈亏、手续费、资金费之后）
	FinalEquity    float64 `json:"final_equity"`  // 现金 + 未实现盈亏
	TotalReturn    float64 `json:"total_return"`

	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	ClosingTrades int     `json:"closing_trades"`
	WinRate       float64 `json:"win_rate"`

	MaxDrawdown    float64 `json:"max_drawdown"`     // 绝对值
	MaxDrawdownPct float64 `json:"max_drawdown_pct"` // 相对峰值，[0, 1]

	TotalFees     float64    `json:"total_fees"`
	TotalFunding  float64    `json:"total_funding"` // 正数表示净支付
	RealizedPnL   float64    `json:"realized_pnl"`
	UnrealizedPnL float64    `json:"unrealized_pnl"`
	NetPosition   float64    `json:"net_position"`
	OpenPositions []Position `json:"open_positions"`
	Liquidated    bool       `json:"liquidated"`

	EquityCurve []float64     `json:"equity_curve"`
	Timestamps  []int64       `json:"timestamps"` // 与 EquityCurve 一一对应
	Trades      []TradeRecord `json:"trades"`
}

// BacktestResult 回测结果，在策略结果的基础上加入绩效指标
type BacktestResult struct {
	RunID     string         `json:"run_id"`
	Config    StrategyConfig `json:"config"`
	Interval  string         `json:"interval"`
	StartTime time.Time      `json:"start_time"`
	EndTime   time.Time      `json:"end_time"`
	Bars      int            `json:"bars"`

	*StrategyResult

	AnnualizedReturn float64 `json:"annualized_return"`
	SharpeRatio      float64 `json:"sharpe_ratio"`
	FeeRatio         float64 `json:"fee_ratio"`
	ProfitFactor     float64 `json:"profit_factor"`
	AvgWin           float64 `json:"avg_win"`
	AvgLoss          float64 `json:"avg_loss"`
	DaysElapsed      float64 `json:"days_elapsed"`
}

// GridSearchEntry 参数组合之一的回测结果
type GridSearchEntry struct {
	Index  int                `json:"index"`
	Key    string             `json:"key"`
	Params map[string]float64 `json:"params"`
	Score  float64            `json:"score"`
	Result *BacktestResult    `json:"result,omitempty"`
	Err    string             `json:"error,omitempty"`
}

// GridSearchResult 参数寻优结果
type GridSearchResult struct {
	Metric     string             `json:"metric"`
	BestParams map[string]float64 `json:"best_params"`
	BestScore  float64            `json:"best_score"`
	BestResult *BacktestResult    `json:"best_result"`
	Results    []GridSearchEntry  `json:"results"`
	Skipped    int                `json:"skipped"`
}
