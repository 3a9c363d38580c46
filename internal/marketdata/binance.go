package marketdata

import (
	"context"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"grid-backtest-go/internal/models"
)

// klineLimit 币安单次请求最多返回 1000 条
const klineLimit = 1000

type klineFetcher func(ctx context.Context, symbol, interval string, start, end int64) ([]*binance.Kline, error)

// BinanceProvider 通过币安公共接口分页下载K线
type BinanceProvider struct {
	fetch   klineFetcher
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewBinanceProvider 创建下载器；client 为 nil 时使用无需 API Key 的公共客户端。
// requestsPerSecond <= 0 时默认每秒 5 次请求。
func NewBinanceProvider(client *binance.Client, requestsPerSecond int, logger *zap.Logger) *BinanceProvider {
	if client == nil {
		client = binance.NewClient("", "")
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BinanceProvider{
		fetch: func(ctx context.Context, symbol, interval string, start, end int64) ([]*binance.Kline, error) {
			return client.NewKlinesService().
				Symbol(symbol).
				Interval(interval).
				StartTime(start).
				EndTime(end).
				Limit(klineLimit).
				Do(ctx)
		},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		logger:  logger,
	}
}

// Bars 下载 [start, end) 内的K线
func (p *BinanceProvider) Bars(ctx context.Context, symbol, interval string, start, end time.Time) ([]models.Bar, error) {
	if _, err := ParseInterval(interval); err != nil {
		return nil, err
	}
	if !start.Before(end) {
		return nil, errors.Errorf("invalid range %s - %s", start, end)
	}

	p.logger.Info("开始下载K线数据",
		zap.String("symbol", symbol),
		zap.String("interval", interval),
		zap.Time("start", start),
		zap.Time("end", end))

	endMs := end.UnixMilli()
	var bars []models.Bar
	for t := start.UnixMilli(); t < endMs; {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		klines, err := p.fetch(ctx, symbol, interval, t, endMs-1)
		if err != nil {
			return nil, errors.Wrapf(err, "下载K线数据失败 %s %s", symbol, interval)
		}
		if len(klines) == 0 {
			break
		}
		for _, k := range klines {
			if k.OpenTime >= endMs {
				continue
			}
			bar, err := klineToBar(k)
			if err != nil {
				p.logger.Warn("无法解析K线数据，跳过此条记录", zap.Int64("open_time", k.OpenTime), zap.Error(err))
				continue
			}
			bars = append(bars, bar)
		}
		// 更新下一次请求的开始时间
		next := klines[len(klines)-1].CloseTime + 1
		if next <= t {
			break
		}
		t = next
		p.logger.Debug("已下载数据", zap.Time("until", time.UnixMilli(t)))
	}

	bars, dropped := Validate(bars)
	p.logger.Info("K线下载完成", zap.Int("bars", len(bars)), zap.Int("dropped", dropped))
	return bars, nil
}

func klineToBar(k *binance.Kline) (models.Bar, error) {
	values := make([]float64, 5)
	for i, s := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return models.Bar{}, err
		}
		values[i] = v
	}
	return models.Bar{
		Timestamp: k.OpenTime,
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
	}, nil
}
