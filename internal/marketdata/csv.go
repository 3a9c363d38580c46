package marketdata

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"grid-backtest-go/internal/models"
)

// csvHeader 与币安K线导出格式保持一致
var csvHeader = []string{"open_time", "open", "high", "low", "close", "volume", "close_time", "quote_asset_volume", "number_of_trades", "taker_buy_base_asset_volume", "taker_buy_quote_asset_volume"}

// CSVProvider 从本地CSV文件读取K线，symbol 和 interval 参数被忽略
type CSVProvider struct {
	path   string
	logger *zap.Logger
}

// NewCSVProvider 创建CSV数据源
func NewCSVProvider(path string, logger *zap.Logger) *CSVProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVProvider{path: path, logger: logger}
}

// Bars 读取文件并返回 [start, end) 内的有效K线，零值时间表示不限制
func (p *CSVProvider) Bars(ctx context.Context, symbol, interval string, start, end time.Time) ([]models.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := os.Open(p.path)
	if err != nil {
		return nil, errors.Wrapf(err, "无法打开历史数据文件 %s", p.path)
	}
	defer file.Close()

	bars, skipped, err := ReadBars(file)
	if err != nil {
		return nil, errors.Wrapf(err, "读取 %s 失败", p.path)
	}
	bars, dropped := Validate(filterRange(bars, start, end))
	if skipped+dropped > 0 {
		p.logger.Warn("跳过无效K线",
			zap.String("file", p.path),
			zap.Int("unparsable", skipped),
			zap.Int("invalid", dropped))
	}
	return bars, nil
}

// ReadBars 解析币安格式的K线CSV：open_time, open, high, low, close, volume, ...
// 表头可选；无法解析的行被跳过并计数。
func ReadBars(r io.Reader) ([]models.Bar, int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	var bars []models.Bar
	skipped := 0
	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, err
		}
		bar, ok := parseRecord(record)
		if !ok {
			// 第一行解析失败视为表头
			if !first {
				skipped++
			}
			first = false
			continue
		}
		first = false
		bars = append(bars, bar)
	}
	return bars, skipped, nil
}

func parseRecord(record []string) (models.Bar, bool) {
	if len(record) < 5 {
		return models.Bar{}, false
	}
	ts, errT := strconv.ParseInt(record[0], 10, 64)
	open, errO := strconv.ParseFloat(record[1], 64)
	high, errH := strconv.ParseFloat(record[2], 64)
	low, errL := strconv.ParseFloat(record[3], 64)
	closePrice, errC := strconv.ParseFloat(record[4], 64)
	if errT != nil || errO != nil || errH != nil || errL != nil || errC != nil {
		return models.Bar{}, false
	}
	var volume float64
	if len(record) > 5 {
		volume, _ = strconv.ParseFloat(record[5], 64)
	}
	return models.Bar{Timestamp: ts, Open: open, High: high, Low: low, Close: closePrice, Volume: volume}, true
}

// WriteCSV 以币安导出格式保存K线，用于缓存下载结果。
// interval 用于推算 close_time，其余币安独有字段留空。
func WriteCSV(path string, bars []models.Bar, interval time.Duration) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "无法创建目录 %s", dir)
	}
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "无法创建文件 %s", path)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(csvHeader); err != nil {
		return errors.Wrap(err, "写入CSV表头失败")
	}
	for _, b := range bars {
		record := []string{
			strconv.FormatInt(b.Timestamp, 10),
			strconv.FormatFloat(b.Open, 'f', -1, 64),
			strconv.FormatFloat(b.High, 'f', -1, 64),
			strconv.FormatFloat(b.Low, 'f', -1, 64),
			strconv.FormatFloat(b.Close, 'f', -1, 64),
			strconv.FormatFloat(b.Volume, 'f', -1, 64),
			strconv.FormatInt(b.Timestamp+interval.Milliseconds()-1, 10),
			"", "", "", "",
		}
		if err := writer.Write(record); err != nil {
			return errors.Wrap(err, "写入CSV记录失败")
		}
	}
	writer.Flush()
	return writer.Error()
}
