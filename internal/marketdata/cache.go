package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/dgraph-io/badger/v3"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"grid-backtest-go/internal/models"
)

// CachedProvider 用 BadgerDB 缓存上游数据源的结果，相同请求只下载一次
type CachedProvider struct {
	db     *badger.DB
	next   BarProvider
	logger *zap.Logger
}

// OpenCache 打开缓存目录；path 为空时使用内存模式
func OpenCache(path string, next BarProvider, logger *zap.Logger) (*CachedProvider, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	// 关闭 badger 自己的日志，错误仍会通过返回值传出
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "打开K线缓存 %s 失败", path)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedProvider{db: db, next: next, logger: logger}, nil
}

func cacheKey(symbol, interval string, start, end time.Time) []byte {
	return []byte(fmt.Sprintf("bars/%s/%s/%d/%d", symbol, interval, start.UnixMilli(), end.UnixMilli()))
}

// Bars 优先读缓存，未命中时请求上游并写入缓存。空结果不缓存。
func (c *CachedProvider) Bars(ctx context.Context, symbol, interval string, start, end time.Time) ([]models.Bar, error) {
	key := cacheKey(symbol, interval, start, end)

	bars, err := c.load(key)
	if err != nil {
		return nil, err
	}
	if bars != nil {
		c.logger.Info("从缓存加载数据", zap.ByteString("key", key), zap.Int("bars", len(bars)))
		return bars, nil
	}

	bars, err = c.next.Bars(ctx, symbol, interval, start, end)
	if err != nil {
		return nil, err
	}
	if len(bars) > 0 {
		if err := c.store(key, bars); err != nil {
			// 缓存写入失败不影响本次回测
			c.logger.Warn("写入K线缓存失败", zap.ByteString("key", key), zap.Error(err))
		}
	}
	return bars, nil
}

// load 未命中时返回 (nil, nil)
func (c *CachedProvider) load(key []byte) ([]models.Bar, error) {
	var bars []models.Bar
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				return errors.New("cached value is empty")
			}
			return sonic.Unmarshal(val, &bars)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "读取K线缓存失败")
	}
	return bars, nil
}

func (c *CachedProvider) store(key []byte, bars []models.Bar) error {
	data, err := sonic.Marshal(bars)
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// Close 关闭缓存数据库
func (c *CachedProvider) Close() error {
	return c.db.Close()
}
