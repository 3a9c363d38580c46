package models

import (
	"fmt"
	"math"
	"strings"
)

// Mode 策略方向
type Mode string

const (
	ModeLong    Mode = "long"
	ModeShort   Mode = "short"
	ModeNeutral Mode = "neutral"
)

// ParseMode 将字符串解析为策略方向，大小写不敏感
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case ModeLong, ModeShort, ModeNeutral:
		return m, nil
	default:
		return "", &InvalidParameterError{Field: "mode", Reason: fmt.Sprintf("未知的策略方向 %q", s)}
	}
}

// LadderType 网格价格分布方式
type LadderType string

const (
	LadderArithmetic LadderType = "arithmetic" // 等差
	LadderGeometric  LadderType = "geometric"  // 等比
)

// ExecutionMode 决定引擎如何从K线推导成交
type ExecutionMode string

const (
	// ExecutionOrders 维护挂单队列，按 high/low 触发成交
	ExecutionOrders ExecutionMode = "orders"
	// ExecutionGridCrossing 不维护挂单，直接按价格穿越的网格区间合成成交
	ExecutionGridCrossing ExecutionMode = "grid_crossing"
)

// SlippageModel 滑点模型
type SlippageModel string

const (
	SlippageNone   SlippageModel = "none"
	SlippageFixed  SlippageModel = "fixed"
	SlippageVolume SlippageModel = "volume"
)

// SlippageConfig 滑点模拟参数
type SlippageConfig struct {
	Model        SlippageModel `json:"model" mapstructure:"model" yaml:"model"`
	Rate         float64       `json:"rate" mapstructure:"rate" yaml:"rate"`                            // 基础滑点率
	VolumeImpact float64       `json:"volume_impact" mapstructure:"volume_impact" yaml:"volume_impact"` // 成交量冲击系数
	MaxRate      float64       `json:"max_rate" mapstructure:"max_rate" yaml:"max_rate"`                // 滑点上限，0 表示不限制
}

// FillConfig 成交模拟参数
type FillConfig struct {
	PartialFills           bool    `json:"partial_fills" mapstructure:"partial_fills" yaml:"partial_fills"`
	MaxVolumeParticipation float64 `json:"max_volume_participation" mapstructure:"max_volume_participation" yaml:"max_volume_participation"` // 单根K线内单笔订单最多可成交的成交量占比
	MinFillQuantity        float64 `json:"min_fill_quantity" mapstructure:"min_fill_quantity" yaml:"min_fill_quantity"`
	EstimateFillTime       bool    `json:"estimate_fill_time" mapstructure:"estimate_fill_time" yaml:"estimate_fill_time"` // 估算K线内的成交时间
}

// StrategyConfig 定义了一次策略运行的全部参数，运行开始后不可变
type StrategyConfig struct {
	Symbol               string        `json:"symbol" mapstructure:"symbol" yaml:"symbol"`
	Mode                 Mode          `json:"mode" mapstructure:"mode" yaml:"mode"`
	LadderType           LadderType    `json:"ladder_type" mapstructure:"ladder_type" yaml:"ladder_type"`
	LowerPrice           float64       `json:"lower_price" mapstructure:"lower_price" yaml:"lower_price"`
	UpperPrice           float64       `json:"upper_price" mapstructure:"upper_price" yaml:"upper_price"`
	GridCount            int           `json:"grid_count" mapstructure:"grid_count" yaml:"grid_count"`
	InitialCapital       float64       `json:"initial_capital" mapstructure:"initial_capital" yaml:"initial_capital"`
	FeeRate              float64       `json:"fee_rate" mapstructure:"fee_rate" yaml:"fee_rate"`
	Leverage             float64       `json:"leverage" mapstructure:"leverage" yaml:"leverage"`
	FundingRate          float64       `json:"funding_rate" mapstructure:"funding_rate" yaml:"funding_rate"`
	FundingIntervalHours float64       `json:"funding_interval_hours" mapstructure:"funding_interval_hours" yaml:"funding_interval_hours"`
	MinTick              float64       `json:"min_tick" mapstructure:"min_tick" yaml:"min_tick"`                   // 最小价格步长，0 表示不检查
	QuantityStep         float64       `json:"quantity_step" mapstructure:"quantity_step" yaml:"quantity_step"`    // 数量步长，0 表示不取整
	ExecutionMode        ExecutionMode `json:"execution_mode" mapstructure:"execution_mode" yaml:"execution_mode"` // 默认 orders

	// NetOppositePositions 为 true 时，同一网格上的反向开仓会先平掉已有仓位。
	// 默认 false：保持历史行为（数量直接累加），以便与既有回测结果对齐。
	NetOppositePositions bool `json:"net_opposite_positions" mapstructure:"net_opposite_positions" yaml:"net_opposite_positions"`

	Slippage SlippageConfig `json:"slippage" mapstructure:"slippage" yaml:"slippage"`
	Fill     FillConfig     `json:"fill" mapstructure:"fill" yaml:"fill"`
}

// FundingIntervalMs 返回资金费结算间隔（毫秒）
func (c StrategyConfig) FundingIntervalMs() int64 {
	return int64(c.FundingIntervalHours * 3600 * 1000)
}

// WithDefaults 为可选字段填充默认值，返回副本
func (c StrategyConfig) WithDefaults() StrategyConfig {
	if c.LadderType == "" {
		c.LadderType = LadderArithmetic
	}
	if c.ExecutionMode == "" {
		c.ExecutionMode = ExecutionOrders
	}
	if c.Leverage == 0 {
		c.Leverage = 1
	}
	if c.FundingIntervalHours == 0 {
		c.FundingIntervalHours = 8
	}
	if c.Slippage.Model == "" {
		c.Slippage.Model = SlippageNone
	}
	c.Mode = Mode(strings.ToLower(string(c.Mode)))
	return c
}

// Validate 校验策略参数，任何不合法的参数都返回 InvalidParameterError
func (c StrategyConfig) Validate() error {
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	switch c.LadderType {
	case LadderArithmetic, LadderGeometric:
	default:
		return &InvalidParameterError{Field: "ladder_type", Reason: fmt.Sprintf("未知的网格类型 %q", c.LadderType)}
	}
	switch c.ExecutionMode {
	case ExecutionOrders, ExecutionGridCrossing:
	default:
		return &InvalidParameterError{Field: "execution_mode", Reason: fmt.Sprintf("未知的执行模式 %q", c.ExecutionMode)}
	}
	if !(c.LowerPrice > 0) || !(c.UpperPrice > 0) {
		return &InvalidParameterError{Field: "lower_price", Reason: "价格上下限必须大于0"}
	}
	if c.LowerPrice >= c.UpperPrice {
		return &InvalidParameterError{Field: "lower_price", Reason: fmt.Sprintf("下限 %.8f 必须小于上限 %.8f", c.LowerPrice, c.UpperPrice)}
	}
	if c.GridCount < 2 {
		return &InvalidParameterError{Field: "grid_count", Reason: fmt.Sprintf("网格数量至少为2，当前 %d", c.GridCount)}
	}
	if !(c.InitialCapital > 0) {
		return &InvalidParameterError{Field: "initial_capital", Reason: "初始资金必须大于0"}
	}
	if c.FeeRate < 0 || c.FeeRate > 0.01 || math.IsNaN(c.FeeRate) {
		return &InvalidParameterError{Field: "fee_rate", Reason: fmt.Sprintf("手续费率 %.6f 超出 [0, 0.01]", c.FeeRate)}
	}
	if !(c.Leverage > 0) || c.Leverage > 100 {
		return &InvalidParameterError{Field: "leverage", Reason: fmt.Sprintf("杠杆 %.2f 超出 (0, 100]", c.Leverage)}
	}
	if math.IsNaN(c.FundingRate) || math.IsInf(c.FundingRate, 0) {
		return &InvalidParameterError{Field: "funding_rate", Reason: "资金费率不是有效数字"}
	}
	if !(c.FundingIntervalHours > 0) {
		return &InvalidParameterError{Field: "funding_interval_hours", Reason: "资金费结算间隔必须大于0"}
	}
	if c.MinTick < 0 || c.QuantityStep < 0 {
		return &InvalidParameterError{Field: "min_tick", Reason: "价格/数量步长不能为负"}
	}
	switch c.Slippage.Model {
	case SlippageNone, SlippageFixed, SlippageVolume:
	default:
		return &InvalidParameterError{Field: "slippage.model", Reason: fmt.Sprintf("未知的滑点模型 %q", c.Slippage.Model)}
	}
	if c.Slippage.Rate < 0 || c.Slippage.VolumeImpact < 0 || c.Slippage.MaxRate < 0 {
		return &InvalidParameterError{Field: "slippage", Reason: "滑点参数不能为负"}
	}
	if c.Fill.MaxVolumeParticipation < 0 || c.Fill.MaxVolumeParticipation > 1 {
		return &InvalidParameterError{Field: "fill.max_volume_participation", Reason: "成交量占比必须在 [0, 1]"}
	}
	if c.Fill.MinFillQuantity < 0 {
		return &InvalidParameterError{Field: "fill.min_fill_quantity", Reason: "最小成交数量不能为负"}
	}
	return nil
}

// Bar 一根已校验的K线，时间戳为毫秒
type Bar struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// IsBullish 收盘价不低于开盘价
func (b Bar) IsBullish() bool {
	return b.Close >= b.Open
}

// LogConfig 定义了日志相关的配置
type LogConfig struct {
	Level      string `json:"level" mapstructure:"level"`                                                // 日志级别, e.g., "debug", "info", "warn", "error"
	Output     string `json:"output" mapstructure:"output" validate:"omitempty,oneof=console file both"` // 输出模式: "console", "file", "both"
	File       string `json:"file" mapstructure:"file" validate:"required_if=Output file"`               // 日志文件路径
	MaxSize    int    `json:"max_size" mapstructure:"max_size" validate:"min=0"`                         // 单个日志文件的最大大小 (MB)
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups" validate:"min=0"`                   // 保留的旧日志文件最大数量
	MaxAge     int    `json:"max_age" mapstructure:"max_age" validate:"min=0"`                           // 旧日志文件的最大保留天数
	Compress   bool   `json:"compress" mapstructure:"compress"`                                          // 是否压缩旧日志文件
}

// DataConfig 行情数据来源配置
type DataConfig struct {
	Source    string `json:"source" mapstructure:"source" validate:"oneof=csv binance"` // "csv" 或 "binance"
	CSVPath   string `json:"csv_path" mapstructure:"csv_path"`                          // csv 模式下的文件路径
	CachePath string `json:"cache_path" mapstructure:"cache_path"`                      // badger 缓存目录，空表示不缓存
	RateLimit int    `json:"rate_limit" mapstructure:"rate_limit" validate:"min=0"`     // 下载时每秒最多请求数
}

// OptimizerConfig 参数寻优配置，也可以单独写在 sweep 文件里
type OptimizerConfig struct {
	Workers         int                  `json:"workers" mapstructure:"workers" yaml:"workers" validate:"min=0"`
	Metric          string               `json:"metric" mapstructure:"metric" yaml:"metric" validate:"omitempty,oneof=total_return annual_return sharpe_ratio win_rate"`
	ParameterRanges map[string][]float64 `json:"parameter_ranges" mapstructure:"parameter_ranges" yaml:"parameter_ranges"`
}

// AppConfig 应用的全部配置
type AppConfig struct {
	Strategy  StrategyConfig  `json:"strategy" mapstructure:"strategy"`
	Interval  string          `json:"interval" mapstructure:"interval" validate:"oneof=1m 3m 5m 15m 30m 1h 2h 4h 6h 8h 12h 1d 3d 1w"` // K线周期
	StartDate string          `json:"start_date" mapstructure:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string          `json:"end_date" mapstructure:"end_date" validate:"omitempty,datetime=2006-01-02"`
	Data      DataConfig      `json:"data" mapstructure:"data"`
	Optimizer OptimizerConfig `json:"optimizer" mapstructure:"optimizer"`
	LogConfig LogConfig       `json:"log" mapstructure:"log"`
}
