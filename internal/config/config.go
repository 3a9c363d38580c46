// Package config 加载应用配置：JSON/YAML 文件 + GRIDBT_ 前缀的环境变量。
package config

import (
	"bytes"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"grid-backtest-go/internal/models"
)

// EnvPrefix 环境变量前缀，例如 GRIDBT_STRATEGY_GRID_COUNT=20
const EnvPrefix = "GRIDBT"

// DateLayout 回测起止日期格式
const DateLayout = "2006-01-02"

var validate = validator.New()

var defaults = map[string]interface{}{
	"strategy.symbol":                 "",
	"strategy.mode":                   string(models.ModeLong),
	"strategy.ladder_type":            string(models.LadderArithmetic),
	"strategy.lower_price":            0.0,
	"strategy.upper_price":            0.0,
	"strategy.grid_count":             0,
	"strategy.initial_capital":        0.0,
	"strategy.fee_rate":               0.0,
	"strategy.leverage":               1.0,
	"strategy.funding_rate":           0.0,
	"strategy.funding_interval_hours": 8.0,
	"strategy.execution_mode":         string(models.ExecutionOrders),
	"strategy.slippage.model":         string(models.SlippageNone),
	"interval":                        "1h",
	"start_date":                      "",
	"end_date":                        "",
	"data.source":                     "csv",
	"data.csv_path":                   "",
	"data.cache_path":                 "",
	"data.rate_limit":                 5,
	"optimizer.workers":               0,
	"optimizer.metric":                "total_return",
	"log.level":                       "info",
	"log.output":                      "console",
	"log.file":                        "logs/gridbt.log",
	"log.max_size":                    100,
	"log.max_backups":                 3,
	"log.max_age":                     28,
}

// LoadConfig 从指定路径加载配置文件（按扩展名识别 JSON 或 YAML），并用环境变量覆盖。
// path 为空时只使用默认值和环境变量。
func LoadConfig(path string) (*models.AppConfig, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "无法读取配置文件 %s", path)
		}
	}

	cfg := &models.AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "无法解析配置")
	}
	cfg.Strategy = cfg.Strategy.WithDefaults()
	if err := validate.Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "配置校验失败")
	}
	return cfg, nil
}

// Window 解析回测起止日期（UTC），结束日期当天包含在内
func Window(cfg *models.AppConfig) (time.Time, time.Time, error) {
	if cfg.StartDate == "" || cfg.EndDate == "" {
		return time.Time{}, time.Time{}, errors.New("start_date 和 end_date 不能为空")
	}
	start, err := time.Parse(DateLayout, cfg.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, errors.Wrap(err, "日期格式错误，请使用 YYYY-MM-DD 格式")
	}
	end, err := time.Parse(DateLayout, cfg.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, errors.Wrap(err, "日期格式错误，请使用 YYYY-MM-DD 格式")
	}
	return start, end.AddDate(0, 0, 1), nil
}

// LoadSweep 读取 YAML 格式的参数寻优文件，未知字段视为错误
func LoadSweep(path string) (*models.OptimizerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "无法读取寻优文件 %s", path)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	sweep := &models.OptimizerConfig{}
	if err := dec.Decode(sweep); err != nil {
		return nil, errors.Wrapf(err, "无法解析寻优文件 %s", path)
	}
	if len(sweep.ParameterRanges) == 0 {
		return nil, errors.Errorf("寻优文件 %s 没有 parameter_ranges", path)
	}
	if err := validate.Struct(sweep); err != nil {
		return nil, errors.Wrap(err, "寻优文件校验失败")
	}
	return sweep, nil
}

// MergeSweep 用 sweep 文件中的非零值覆盖配置里的寻优设置
func MergeSweep(base models.OptimizerConfig, sweep *models.OptimizerConfig) models.OptimizerConfig {
	if sweep == nil {
		return base
	}
	if sweep.Workers > 0 {
		base.Workers = sweep.Workers
	}
	if sweep.Metric != "" {
		base.Metric = sweep.Metric
	}
	if len(sweep.ParameterRanges) > 0 {
		base.ParameterRanges = sweep.ParameterRanges
	}
	return base
}
