// Package optimizer 对网格参数做穷举搜索，找出使指定指标最大的组合。
package optimizer

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jxskiss/base62"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"grid-backtest-go/internal/backtest"
	"grid-backtest-go/internal/marketdata"
	"grid-backtest-go/internal/models"
)

// 可搜索的参数
const (
	ParamGridCount  = "grid_count"
	ParamLowerPrice = "lower_price"
	ParamUpperPrice = "upper_price"
)

// 可优化的指标
const (
	MetricTotalReturn  = "total_return"
	MetricAnnualReturn = "annual_return"
	MetricSharpeRatio  = "sharpe_ratio"
	MetricWinRate      = "win_rate"
)

var metrics = map[string]func(*models.BacktestResult) float64{
	MetricTotalReturn:  func(r *models.BacktestResult) float64 { return r.TotalReturn },
	MetricAnnualReturn: func(r *models.BacktestResult) float64 { return r.AnnualizedReturn },
	MetricSharpeRatio:  func(r *models.BacktestResult) float64 { return r.SharpeRatio },
	MetricWinRate:      func(r *models.BacktestResult) float64 { return r.WinRate },
}

var allowedParams = map[string]bool{
	ParamGridCount:  true,
	ParamLowerPrice: true,
	ParamUpperPrice: true,
}

// Optimizer 网格搜索优化器。每个参数组合使用独立的策略引擎，并行执行。
type Optimizer struct {
	provider marketdata.BarProvider
	workers  int
	logger   *zap.Logger
}

// NewOptimizer 创建优化器，workers <= 0 时使用 CPU 核数
func NewOptimizer(provider marketdata.BarProvider, workers int, logger *zap.Logger) *Optimizer {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Optimizer{provider: provider, workers: workers, logger: logger}
}

// Combination 一组参数取值
type Combination map[string]float64

// Key 参数组合的稳定编码，用于日志和结果去重
func (c Combination) Key() string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + strconv.FormatFloat(c[k], 'g', -1, 64)
	}
	return base62.EncodeToString([]byte(strings.Join(parts, "&")))
}

// Combinations 按参数名排序后做笛卡尔积，最后一个参数变化最快
func Combinations(ranges map[string][]float64) []Combination {
	keys := make([]string, 0, len(ranges))
	for k := range ranges {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	combos := []Combination{{}}
	for _, k := range keys {
		next := make([]Combination, 0, len(combos)*len(ranges[k]))
		for _, c := range combos {
			for _, v := range ranges[k] {
				n := make(Combination, len(c)+1)
				for ck, cv := range c {
					n[ck] = cv
				}
				n[k] = v
				next = append(next, n)
			}
		}
		combos = next
	}
	return combos
}

// ValidateRanges 参数名必须在允许范围内，且每个参数至少一个候选值；grid_count 的候选值必须是整数
func ValidateRanges(ranges map[string][]float64) error {
	if len(ranges) == 0 {
		return &models.InvalidConfigError{Reason: "parameter ranges are empty"}
	}
	for k, values := range ranges {
		if !allowedParams[k] {
			return &models.InvalidConfigError{Reason: fmt.Sprintf("unknown parameter %q", k)}
		}
		if len(values) == 0 {
			return &models.InvalidConfigError{Reason: fmt.Sprintf("parameter %q has no candidate values", k)}
		}
		if k != ParamGridCount {
			continue
		}
		for _, v := range values {
			if math.IsInf(v, 0) || v != math.Trunc(v) {
				return &models.InvalidConfigError{Reason: fmt.Sprintf("grid_count candidate %v is not a whole number", v)}
			}
		}
	}
	return nil
}

// Apply 把参数组合写入基础配置的副本
func (c Combination) Apply(base backtest.Config) backtest.Config {
	cfg := base
	for k, v := range c {
		switch k {
		case ParamGridCount:
			cfg.Strategy.GridCount = int(v)
		case ParamLowerPrice:
			cfg.Strategy.LowerPrice = v
		case ParamUpperPrice:
			cfg.Strategy.UpperPrice = v
		}
	}
	return cfg
}

// Optimize 对 ranges 的笛卡尔积逐一回测，返回使 metric 最大的组合。
// K线只拉取一次；单个组合失败会被记录并跳过，全部失败时返回 *models.InvalidConfigError。
func (o *Optimizer) Optimize(ctx context.Context, base backtest.Config, ranges map[string][]float64, metric string) (*models.GridSearchResult, error) {
	score, ok := metrics[metric]
	if !ok {
		return nil, &models.InvalidConfigError{Reason: fmt.Sprintf("unknown metric %q", metric)}
	}
	if err := ValidateRanges(ranges); err != nil {
		return nil, err
	}
	if !base.Start.Before(base.End) || base.End.Sub(base.Start) > backtest.MaxRange {
		return nil, &models.InvalidConfigError{Reason: "invalid date range"}
	}
	if o.provider == nil {
		return nil, &models.DataError{Reason: "no market data provider configured"}
	}

	bars, err := o.provider.Bars(ctx, base.Strategy.Symbol, base.Interval, base.Start, base.End)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &models.DataError{Reason: "fetch bars", Err: err}
	}
	if len(bars) == 0 {
		return nil, &models.DataError{Reason: "no bars in range"}
	}

	combos := Combinations(ranges)
	o.logger.Info("开始参数寻优",
		zap.String("metric", metric),
		zap.Int("combinations", len(combos)),
		zap.Int("workers", o.workers),
		zap.Int("bars", len(bars)))
	started := time.Now()

	engine := backtest.NewEngine(nil, o.logger)
	entries := make([]models.GridSearchEntry, len(combos))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i, combo := range combos {
		i, combo := i, combo
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			entry := models.GridSearchEntry{Index: i, Key: combo.Key(), Params: combo}
			res, err := engine.RunBars(gctx, combo.Apply(base), bars)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				entry.Err = err.Error()
				o.logger.Warn("参数组合回测失败，跳过", zap.Any("params", map[string]float64(combo)), zap.Error(err))
			} else {
				entry.Result = res
				entry.Score = score(res)
			}
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &models.GridSearchResult{Metric: metric, Results: entries}
	best := -1
	for i, e := range entries {
		if e.Result == nil {
			result.Skipped++
			continue
		}
		if math.IsNaN(e.Score) {
			continue
		}
		if best < 0 || e.Score > entries[best].Score {
			best = i
		}
	}
	if best < 0 {
		return nil, &models.InvalidConfigError{Reason: fmt.Sprintf("all %d parameter combinations failed", len(combos))}
	}
	result.BestParams = entries[best].Params
	result.BestScore = entries[best].Score
	result.BestResult = entries[best].Result

	o.logger.Info("参数寻优完成",
		zap.Any("best_params", result.BestParams),
		zap.Float64("best_score", result.BestScore),
		zap.Int("skipped", result.Skipped),
		zap.Duration("elapsed", time.Since(started)))
	return result, nil
}
