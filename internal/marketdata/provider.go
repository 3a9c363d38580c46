// Package marketdata 提供回测所需的K线数据：本地CSV、币安下载、badger 缓存以及数据校验。
package marketdata

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"grid-backtest-go/internal/models"
)

// BarProvider 按交易对、周期和时间范围 [start, end) 返回按时间升序排列、已校验的K线
type BarProvider interface {
	Bars(ctx context.Context, symbol, interval string, start, end time.Time) ([]models.Bar, error)
}

// BarProviderFunc 让普通函数满足 BarProvider
type BarProviderFunc func(ctx context.Context, symbol, interval string, start, end time.Time) ([]models.Bar, error)

func (f BarProviderFunc) Bars(ctx context.Context, symbol, interval string, start, end time.Time) ([]models.Bar, error) {
	return f(ctx, symbol, interval, start, end)
}

var intervals = map[string]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"6h":  6 * time.Hour,
	"8h":  8 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
	"3d":  72 * time.Hour,
	"1w":  7 * 24 * time.Hour,
}

// ParseInterval 将币安K线周期（如 "1m", "4h", "1d"）转换为时长
func ParseInterval(interval string) (time.Duration, error) {
	d, ok := intervals[strings.TrimSpace(interval)]
	if !ok {
		return 0, errors.Errorf("unsupported interval %q", interval)
	}
	return d, nil
}

// Validate 丢弃价格非正、NaN 或 OHLC 自相矛盾的K线，按时间排序并去除重复时间戳（保留先出现的）。
// 返回有效K线和被丢弃的数量。
func Validate(bars []models.Bar) ([]models.Bar, int) {
	valid := make([]models.Bar, 0, len(bars))
	for _, b := range bars {
		if isValidBar(b) {
			valid = append(valid, b)
		}
	}
	sort.SliceStable(valid, func(i, j int) bool { return valid[i].Timestamp < valid[j].Timestamp })

	out := valid[:0]
	for _, b := range valid {
		if len(out) > 0 && b.Timestamp == out[len(out)-1].Timestamp {
			continue
		}
		out = append(out, b)
	}
	return out, len(bars) - len(out)
}

func isValidBar(b models.Bar) bool {
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return false
		}
	}
	if b.Volume < 0 || math.IsNaN(b.Volume) {
		return false
	}
	if b.High < math.Max(b.Open, b.Close) || b.Low > math.Min(b.Open, b.Close) {
		return false
	}
	return true
}

// filterRange 保留 [start, end) 内的K线，零值时间表示不限制
func filterRange(bars []models.Bar, start, end time.Time) []models.Bar {
	if start.IsZero() && end.IsZero() {
		return bars
	}
	out := make([]models.Bar, 0, len(bars))
	for _, b := range bars {
		if !start.IsZero() && b.Timestamp < start.UnixMilli() {
			continue
		}
		if !end.IsZero() && b.Timestamp >= end.UnixMilli() {
			continue
		}
		out = append(out, b)
	}
	return out
}
