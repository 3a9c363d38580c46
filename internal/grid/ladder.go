// Package grid 计算网格价格档位以及价格/数量的步长取整。
package grid

import (
	"fmt"
	"math"

	"grid-backtest-go/internal/models"

	"github.com/shopspring/decimal"
)

// Levels 生成 count 个从 lower 到 upper 的价格档位（含两端）。
// 等差: lower + i*(upper-lower)/(count-1)
// 等比: lower * (upper/lower)^(i/(count-1))
// minTick > 0 时档位按 tick 取整，且最小间距不能小于 tick。
func Levels(lower, upper float64, count int, ladder models.LadderType, minTick float64) ([]float64, error) {
	if count < 2 {
		return nil, &models.InvalidParameterError{Field: "grid_count", Reason: fmt.Sprintf("网格数量至少为2，当前 %d", count)}
	}
	if !(lower > 0) || !(upper > lower) {
		return nil, &models.InvalidParameterError{Field: "lower_price", Reason: fmt.Sprintf("无效的价格区间 [%.8f, %.8f]", lower, upper)}
	}

	levels := make([]float64, count)
	steps := float64(count - 1)
	switch ladder {
	case models.LadderArithmetic:
		spacing := (upper - lower) / steps
		for i := range levels {
			levels[i] = lower + float64(i)*spacing
		}
	case models.LadderGeometric:
		ratio := upper / lower
		for i := range levels {
			levels[i] = lower * math.Pow(ratio, float64(i)/steps)
		}
	default:
		return nil, &models.InvalidParameterError{Field: "ladder_type", Reason: fmt.Sprintf("未知的网格类型 %q", ladder)}
	}
	// 消除浮点误差，保证两端精确
	levels[0] = lower
	levels[count-1] = upper

	if minTick <= 0 {
		return levels, nil
	}

	// 最小间距出现在最低的两个档位（等比网格间距随价格递增）
	if levels[1]-levels[0] < minTick {
		return nil, &models.InvalidParameterError{
			Field:  "grid_count",
			Reason: fmt.Sprintf("网格间距 %.8f 小于最小价格步长 %.8f", levels[1]-levels[0], minTick),
		}
	}

	for i, p := range levels {
		levels[i] = RoundToStep(p, minTick)
	}
	for i := 1; i < count; i++ {
		if levels[i] <= levels[i-1] {
			return nil, &models.InvalidParameterError{
				Field:  "min_tick",
				Reason: fmt.Sprintf("按步长 %.8f 取整后第 %d 档与第 %d 档价格重合", minTick, i-1, i),
			}
		}
	}
	return levels, nil
}

// Spacing 返回相邻档位的间距
func Spacing(levels []float64) []float64 {
	if len(levels) < 2 {
		return nil
	}
	out := make([]float64, len(levels)-1)
	for i := 1; i < len(levels); i++ {
		out[i-1] = levels[i] - levels[i-1]
	}
	return out
}

// IndexOf 返回价格所在区间的下沿档位索引；低于下限返回 -1，不低于上限返回 len-1
func IndexOf(levels []float64, price float64) int {
	if len(levels) == 0 || price < levels[0] {
		return -1
	}
	for i := len(levels) - 1; i >= 0; i-- {
		if price >= levels[i] {
			return i
		}
	}
	return -1
}

// RoundToStep 将价格四舍五入到最接近的步长整数倍，step <= 0 时原样返回
func RoundToStep(value, step float64) float64 {
	if step <= 0 {
		return value
	}
	d := decimal.NewFromFloat(value)
	s := decimal.NewFromFloat(step)
	f, _ := d.Div(s).Round(0).Mul(s).Float64()
	return f
}

// FloorToStep 将数量向下取整到步长的整数倍，避免下单数量超过可用额度
func FloorToStep(value, step float64) float64 {
	if step <= 0 {
		return value
	}
	d := decimal.NewFromFloat(value)
	s := decimal.NewFromFloat(step)
	f, _ := d.Div(s).Floor().Mul(s).Float64()
	return f
}
