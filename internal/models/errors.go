package models

import "fmt"

// InvalidParameterError 策略参数不合法，在构造阶段即失败
type InvalidParameterError struct {
	Field  string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s: %s", e.Field, e.Reason)
}

// InsufficientFundsError 可用资金不足以覆盖所需保证金。
// 引擎遇到它时不会中止运行，而是退还手续费并跳过该笔成交。
type InsufficientFundsError struct {
	Required  float64
	Available float64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: required margin %.8f, available %.8f", e.Required, e.Available)
}

// ExecutionError 包装逐K线处理过程中出现的意外错误
type ExecutionError struct {
	Timestamp int64
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed at bar %d: %v", e.Timestamp, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// InvalidConfigError 回测配置不合法（时间范围、价格区间等）
type InvalidConfigError struct {
	Reason string
	Err    error
}

func (e *InvalidConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid config: %s: %v", e.Reason, e.Err)
	}
	return "invalid config: " + e.Reason
}

func (e *InvalidConfigError) Unwrap() error { return e.Err }

// DataError 行情数据为空或全部无效
type DataError struct {
	Reason string
	Err    error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error: %s: %v", e.Reason, e.Err)
	}
	return "data error: " + e.Reason
}

func (e *DataError) Unwrap() error { return e.Err }
