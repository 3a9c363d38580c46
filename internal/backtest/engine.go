// Package backtest 在一段历史区间上驱动网格策略引擎，并计算绩效指标。
package backtest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"grid-backtest-go/internal/marketdata"
	"grid-backtest-go/internal/models"
	"grid-backtest-go/internal/strategy"
)

// MaxRange 单次回测允许的最长时间范围
const MaxRange = 3 * 365 * 24 * time.Hour

// ctxCheckEvery 每处理这么多根K线检查一次 context
const ctxCheckEvery = 1024

// Config 一次回测的完整输入
type Config struct {
	Strategy models.StrategyConfig
	Interval string
	Start    time.Time
	End      time.Time
}

// Engine 回测引擎，可被多个 goroutine 共享：每次运行都创建独立的策略引擎
type Engine struct {
	provider marketdata.BarProvider
	logger   *zap.Logger
}

// NewEngine 创建回测引擎，logger 为 nil 时不输出日志
func NewEngine(provider marketdata.BarProvider, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{provider: provider, logger: logger}
}

// ValidateConfig 校验价格区间、网格数量、资金和时间范围
func ValidateConfig(cfg Config) error {
	s := cfg.Strategy
	if !(s.LowerPrice > 0) || !(s.LowerPrice < s.UpperPrice) {
		return &models.InvalidConfigError{Reason: "lower_price must be positive and below upper_price"}
	}
	if s.GridCount < 2 {
		return &models.InvalidConfigError{Reason: "grid_count must be at least 2"}
	}
	if !(s.InitialCapital > 0) {
		return &models.InvalidConfigError{Reason: "initial_capital must be positive"}
	}
	if !cfg.Start.Before(cfg.End) {
		return &models.InvalidConfigError{Reason: "start must be before end"}
	}
	if cfg.End.Sub(cfg.Start) > MaxRange {
		return &models.InvalidConfigError{Reason: "date range exceeds 3 years"}
	}
	return nil
}

// Run 拉取K线并执行回测
func (e *Engine) Run(ctx context.Context, cfg Config) (*models.BacktestResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if e.provider == nil {
		return nil, &models.DataError{Reason: "no market data provider configured"}
	}
	bars, err := e.provider.Bars(ctx, cfg.Strategy.Symbol, cfg.Interval, cfg.Start, cfg.End)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &models.DataError{Reason: "fetch bars", Err: err}
	}
	return e.RunBars(ctx, cfg, bars)
}

// RunBars 在已获取的K线上执行回测，K线需已按时间升序排列
func (e *Engine) RunBars(ctx context.Context, cfg Config, bars []models.Bar) (*models.BacktestResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, &models.DataError{Reason: "no bars in range"}
	}

	barDuration, _ := marketdata.ParseInterval(cfg.Interval)
	runID := uuid.NewString()
	log := e.logger.With(zap.String("run_id", runID))

	engine, err := strategy.NewEngine(cfg.Strategy,
		strategy.WithLogger(log),
		strategy.WithBarDuration(barDuration))
	if err != nil {
		return nil, &models.InvalidConfigError{Reason: "strategy parameters", Err: err}
	}

	processed := 0
	for i, bar := range bars {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if err := engine.ProcessBar(bar); err != nil {
			return nil, err
		}
		processed++
		if engine.Liquidated() {
			break
		}
	}
	res := engine.Finish()

	days := cfg.End.Sub(cfg.Start).Hours() / 24
	stats := CalculateTradeStats(res.Trades)
	result := &models.BacktestResult{
		RunID:            runID,
		Config:           engine.Config(),
		Interval:         cfg.Interval,
		StartTime:        cfg.Start,
		EndTime:          cfg.End,
		Bars:             processed,
		StrategyResult:   res,
		AnnualizedReturn: AnnualizedReturn(res.TotalReturn, days),
		SharpeRatio:      SharpeRatio(res.EquityCurve),
		FeeRatio:         res.TotalFees / res.InitialCapital,
		ProfitFactor:     stats.ProfitFactor,
		AvgWin:           stats.AvgWin,
		AvgLoss:          stats.AvgLoss,
		DaysElapsed:      days,
	}

	log.Info("回测完成",
		zap.String("symbol", cfg.Strategy.Symbol),
		zap.Int("bars", processed),
		zap.Int("trades", res.TotalTrades),
		zap.Float64("total_return", res.TotalReturn),
		zap.Float64("sharpe", result.SharpeRatio),
		zap.Bool("liquidated", res.Liquidated))
	return result, nil
}
