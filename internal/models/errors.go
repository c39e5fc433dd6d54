package models

import (
	"errors"
	"fmt"
)

var (
	// ErrLowBalance 启动时余额低于运行所需的最低值
	ErrLowBalance = errors.New("balance below operational minimum")
	// ErrAlreadyRunning 控制循环已在运行
	ErrAlreadyRunning = errors.New("grid loop already running")
	// ErrInvalidConfig 策略参数不合法
	ErrInvalidConfig = errors.New("invalid config")
)

// ConnectivityError 表示交易所不可达或请求在网络层失败
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s: exchange unreachable: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// RejectionError 表示单个订单被交易所拒绝
type RejectionError struct {
	Side     Side
	Price    float64
	Quantity float64
	Err      error
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s %.8g @ %.8g rejected: %v", e.Side, e.Quantity, e.Price, e.Err)
}

func (e *RejectionError) Unwrap() error { return e.Err }

// APIError 定义了交易所返回的业务错误
type APIError struct {
	Code int64  `json:"code"`
	Msg  string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API Error: code=%d, msg=%s", e.Code, e.Msg)
}
