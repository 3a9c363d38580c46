package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/bytedance/sonic"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"grid-backtest-go/internal/backtest"
	"grid-backtest-go/internal/config"
	"grid-backtest-go/internal/logger"
	"grid-backtest-go/internal/marketdata"
	"grid-backtest-go/internal/models"
	"grid-backtest-go/internal/optimizer"
	"grid-backtest-go/internal/reporter"
)

// extractSymbolFromPath 从数据文件路径中提取交易对名称
// 例如: "data/BNBUSDT-2025-03-15-2025-06-15.csv" -> "BNBUSDT"
func extractSymbolFromPath(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), ".csv")
	return strings.ToUpper(strings.Split(name, "-")[0])
}

type options struct {
	configPath string
	mode       string
	dataPath   string
	sweepPath  string
	jsonPath   string
	download   bool
	top        int
}

func main() {
	opts := options{}
	flag.StringVar(&opts.configPath, "config", "config.yaml", "path to the config file (json or yaml)")
	flag.StringVar(&opts.mode, "mode", "backtest", "running mode: backtest or optimize")
	flag.StringVar(&opts.dataPath, "data", "", "path to a kline CSV file, overrides data.csv_path")
	flag.StringVar(&opts.sweepPath, "sweep", "", "path to a YAML parameter sweep file (optimize mode)")
	flag.StringVar(&opts.jsonPath, "json", "", "write the full result as JSON to this file")
	flag.BoolVar(&opts.download, "download", false, "download klines from Binance into data/ and exit")
	flag.IntVar(&opts.top, "top", 20, "rows shown in the optimize report, 0 for all")
	flag.Parse()

	// 先用默认配置初始化日志，加载配置时就能输出
	logger.InitLogger(models.LogConfig{Level: "info", Output: "console"})

	if err := godotenv.Load(); err != nil {
		logger.S().Info("未找到 .env 文件，将从系统环境变量中读取。")
	}

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		logger.S().Fatalf("无法加载配置文件: %v", err)
	}
	logger.InitLogger(cfg.LogConfig)
	defer logger.S().Sync()

	if opts.dataPath != "" {
		cfg.Data.Source = "csv"
		cfg.Data.CSVPath = opts.dataPath
	}
	if cfg.Strategy.Symbol == "" && cfg.Data.CSVPath != "" {
		cfg.Strategy.Symbol = extractSymbolFromPath(cfg.Data.CSVPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts); err != nil {
		logger.S().Fatal(err)
	}
}

func run(ctx context.Context, cfg *models.AppConfig, opts options) error {
	start, end, err := config.Window(cfg)
	if err != nil {
		return err
	}
	base := backtest.Config{Strategy: cfg.Strategy, Interval: cfg.Interval, Start: start, End: end}

	provider, source, closeFn, err := buildProvider(cfg, opts.download)
	if err != nil {
		return err
	}
	defer closeFn()

	switch opts.mode {
	case "backtest":
		if opts.download {
			return download(ctx, provider, cfg, base)
		}
		return runBacktest(ctx, provider, source, base, opts)
	case "optimize":
		return runOptimize(ctx, provider, cfg, base, opts)
	default:
		return errors.Errorf("未知的运行模式: %s。请选择 'backtest' 或 'optimize'。", opts.mode)
	}
}

// buildProvider 按配置选择数据源；币安数据源在配置了 cache_path 时套一层 badger 缓存
func buildProvider(cfg *models.AppConfig, forceBinance bool) (marketdata.BarProvider, string, func(), error) {
	log := logger.L()
	noop := func() {}

	if cfg.Data.Source == "csv" && !forceBinance {
		if cfg.Data.CSVPath == "" {
			return nil, "", noop, errors.New("csv 数据源需要 data.csv_path 或 -data 参数")
		}
		return marketdata.NewCSVProvider(cfg.Data.CSVPath, log), cfg.Data.CSVPath, noop, nil
	}

	// K线接口是公开的，没有 API key 也可以下载
	client := binance.NewClient(os.Getenv("BINANCE_API_KEY"), os.Getenv("BINANCE_SECRET_KEY"))
	var provider marketdata.BarProvider = marketdata.NewBinanceProvider(client, cfg.Data.RateLimit, log)
	if cfg.Data.CachePath == "" {
		return provider, "binance", noop, nil
	}

	cached, err := marketdata.OpenCache(cfg.Data.CachePath, provider, log)
	if err != nil {
		return nil, "", noop, err
	}
	closeFn := func() {
		if err := cached.Close(); err != nil {
			log.Warn("关闭K线缓存失败", zap.Error(err))
		}
	}
	return cached, "binance (cache " + cfg.Data.CachePath + ")", closeFn, nil
}

func download(ctx context.Context, provider marketdata.BarProvider, cfg *models.AppConfig, base backtest.Config) error {
	if base.Strategy.Symbol == "" {
		return errors.New("下载数据需要 strategy.symbol")
	}
	interval, err := marketdata.ParseInterval(base.Interval)
	if err != nil {
		return err
	}
	logger.S().Infof("开始下载 %s 从 %s 到 %s 的K线数据...", base.Strategy.Symbol, cfg.StartDate, cfg.EndDate)
	bars, err := provider.Bars(ctx, base.Strategy.Symbol, base.Interval, base.Start, base.End)
	if err != nil {
		return errors.Wrap(err, "下载数据失败")
	}
	if err := os.MkdirAll("data", 0755); err != nil {
		return errors.Wrap(err, "创建 data 目录失败")
	}
	fileName := fmt.Sprintf("data/%s-%s-%s.csv", base.Strategy.Symbol, cfg.StartDate, cfg.EndDate)
	if err := marketdata.WriteCSV(fileName, bars, interval); err != nil {
		return err
	}
	logger.S().Infof("已保存 %d 根K线到 %s", len(bars), fileName)
	return nil
}

func runBacktest(ctx context.Context, provider marketdata.BarProvider, source string, base backtest.Config, opts options) error {
	logger.S().Info("--- 启动回测模式 ---")
	began := time.Now()
	res, err := backtest.NewEngine(provider, logger.L()).Run(ctx, base)
	if err != nil {
		return err
	}
	reporter.GenerateReport(logger.S(), res, source, time.Since(began))
	return writeJSON(opts.jsonPath, res)
}

func runOptimize(ctx context.Context, provider marketdata.BarProvider, cfg *models.AppConfig, base backtest.Config, opts options) error {
	logger.S().Info("--- 启动参数寻优模式 ---")
	settings := cfg.Optimizer
	if opts.sweepPath != "" {
		sweep, err := config.LoadSweep(opts.sweepPath)
		if err != nil {
			return err
		}
		settings = config.MergeSweep(settings, sweep)
	}
	if len(settings.ParameterRanges) == 0 {
		return errors.New("参数寻优需要 optimizer.parameter_ranges 或 -sweep 文件")
	}

	began := time.Now()
	res, err := optimizer.NewOptimizer(provider, settings.Workers, logger.L()).
		Optimize(ctx, base, settings.ParameterRanges, settings.Metric)
	if err != nil {
		return err
	}
	logger.S().Infof("寻优耗时 %s\n%s", time.Since(began).Round(time.Millisecond), reporter.RenderGridSearch(res, opts.top))
	return writeJSON(opts.jsonPath, res)
}

func writeJSON(path string, v interface{}) error {
	if path == "" {
		return nil
	}
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "序列化结果失败")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "写入 %s 失败", path)
	}
	logger.S().Infof("结果已写入 %s", path)
	return nil
}
