// Package reporter 把回测和参数寻优结果渲染成文本表格。
package reporter

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"go.uber.org/zap"

	"grid-backtest-go/internal/models"
)

const timeLayout = "2006-01-02 15:04"

func money(v float64) string {
	return humanize.CommafWithDigits(v, 2) + " USDT"
}

func pct(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

// RenderBacktest 生成回测结果报告
func RenderBacktest(res *models.BacktestResult, source string) string {
	tw := table.NewWriter()
	tw.SetTitle("回测结果报告")
	tw.SetStyle(table.StyleLight)
	tw.Style().Title.Align = text.AlignCenter

	if source != "" {
		tw.AppendRow(table.Row{"数据来源", source})
	}
	tw.AppendRow(table.Row{"运行ID", res.RunID})
	tw.AppendRow(table.Row{"交易对", res.Symbol})
	tw.AppendRow(table.Row{"策略", fmt.Sprintf("%s / %s / %d 格 / %.0fx", res.Config.Mode, res.Config.LadderType, res.Config.GridCount, res.Config.Leverage)})
	tw.AppendRow(table.Row{"价格区间", fmt.Sprintf("%s - %s", humanize.Commaf(res.Config.LowerPrice), humanize.Commaf(res.Config.UpperPrice))})
	tw.AppendRow(table.Row{"回测周期", fmt.Sprintf("%s 到 %s (%s, %d 根K线)", res.StartTime.Format(timeLayout), res.EndTime.Format(timeLayout), res.Interval, res.Bars)})
	tw.AppendSeparator()
	tw.AppendRow(table.Row{"初始资金", money(res.InitialCapital)})
	tw.AppendRow(table.Row{"期末现金", money(res.FinalCapital)})
	tw.AppendRow(table.Row{"期末权益", money(res.FinalEquity)})
	tw.AppendRow(table.Row{"收益率", pct(res.TotalReturn)})
	tw.AppendRow(table.Row{"年化收益率", pct(res.AnnualizedReturn)})
	tw.AppendRow(table.Row{"最大回撤", fmt.Sprintf("%s (%s)", pct(res.MaxDrawdownPct), money(res.MaxDrawdown))})
	tw.AppendRow(table.Row{"夏普比率", fmt.Sprintf("%.2f", res.SharpeRatio)})
	tw.AppendSeparator()
	tw.AppendRow(table.Row{"总交易次数", humanize.Comma(int64(res.TotalTrades))})
	tw.AppendRow(table.Row{"盈利 / 亏损", fmt.Sprintf("%d / %d", res.WinningTrades, res.LosingTrades)})
	tw.AppendRow(table.Row{"胜率", pct(res.WinRate)})
	tw.AppendRow(table.Row{"盈亏因子", fmt.Sprintf("%.2f", res.ProfitFactor)})
	tw.AppendRow(table.Row{"已实现盈亏", money(res.RealizedPnL)})
	tw.AppendRow(table.Row{"未实现盈亏", money(res.UnrealizedPnL)})
	tw.AppendRow(table.Row{"手续费", fmt.Sprintf("%s (%s)", money(res.TotalFees), pct(res.FeeRatio))})
	tw.AppendRow(table.Row{"资金费", money(res.TotalFunding)})
	tw.AppendRow(table.Row{"期末净持仓", fmt.Sprintf("%.6f (%d 个网格)", res.NetPosition, len(res.OpenPositions))})
	if res.Liquidated {
		tw.AppendSeparator()
		tw.AppendRow(table.Row{"状态", "已爆仓，回测提前终止"})
	}
	return tw.Render()
}

// RenderGridSearch 生成参数寻优结果表，按得分从高到低排列，最多 top 行（<= 0 表示全部）
func RenderGridSearch(res *models.GridSearchResult, top int) string {
	names := paramNames(res.Results)

	tw := table.NewWriter()
	tw.SetTitle(fmt.Sprintf("参数寻优结果 (metric=%s, 跳过 %d)", res.Metric, res.Skipped))
	tw.SetStyle(table.StyleLight)

	header := table.Row{"#"}
	for _, n := range names {
		header = append(header, n)
	}
	header = append(header, res.Metric, "收益率", "最大回撤", "交易次数", "备注")
	tw.AppendHeader(header)

	entries := append([]models.GridSearchEntry(nil), res.Results...)
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if (a.Result == nil) != (b.Result == nil) {
			return a.Result != nil
		}
		return a.Score > b.Score
	})
	if top > 0 && len(entries) > top {
		entries = entries[:top]
	}

	for _, e := range entries {
		row := table.Row{e.Index}
		for _, n := range names {
			row = append(row, humanize.Ftoa(e.Params[n]))
		}
		if e.Result == nil {
			row = append(row, "-", "-", "-", "-", e.Err)
		} else {
			note := ""
			if e.Result.Liquidated {
				note = "爆仓"
			}
			row = append(row, fmt.Sprintf("%.4f", e.Score), pct(e.Result.TotalReturn), pct(e.Result.MaxDrawdownPct), e.Result.TotalTrades, note)
		}
		tw.AppendRow(row)
	}

	best := make([]string, 0, len(res.BestParams))
	for _, n := range names {
		if v, ok := res.BestParams[n]; ok {
			best = append(best, fmt.Sprintf("%s=%s", n, humanize.Ftoa(v)))
		}
	}
	tw.AppendFooter(table.Row{"最优", strings.Join(best, " "), fmt.Sprintf("%.4f", res.BestScore)})
	return tw.Render()
}

func paramNames(entries []models.GridSearchEntry) []string {
	set := make(map[string]bool)
	for _, e := range entries {
		for k := range e.Params {
			set[k] = true
		}
	}
	names := make([]string, 0, len(set))
	for k := range set {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// GenerateReport 把回测报告输出到日志
func GenerateReport(log *zap.SugaredLogger, res *models.BacktestResult, source string, elapsed time.Duration) {
	log.Infof("回测耗时 %s\n%s", elapsed.Round(time.Millisecond), RenderBacktest(res, source))
}
