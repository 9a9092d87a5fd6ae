// Package xerrors 提供 leaseflake 统一的错误处理工具。
//
// 约定：
//   - 组件在 errors.go 中用 New 定义哨兵错误，调用方用 Is 判断
//   - 跨层传递时用 Wrap/Wrapf 追加上下文，保留错误链
//   - 协调者做出的业务判定（槽位耗尽、租约失效）用 WithCode 标记错误码，
//     这类错误重试也不会改变结果，IsPermanent 据此区分
package xerrors

import (
	"errors"
	"fmt"
)

// 通用哨兵错误，供各组件包装使用
var (
	// ErrInvalidInput 参数或配置非法，重试无意义
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnavailable 协调者或后端暂时不可用
	ErrUnavailable = errors.New("unavailable")
	// ErrTimeout 请求在截止时间内没有完成，通常与 ErrUnavailable 一起出现
	ErrTimeout = errors.New("timeout")
)

// Wrap 用上下文信息包装错误，err 为 nil 时返回 nil
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf 格式化版本的 Wrap
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// CodedError 携带机器可读错误码，HTTP 应答的 code 字段与日志的 error_code 取自这里
type CodedError struct {
	Code  string
	Cause error
}

// WithCode 给错误打上错误码
func WithCode(err error, code string) error {
	if err == nil {
		return nil
	}
	return &CodedError{Code: code, Cause: err}
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return "[" + e.Code + "]"
	}
	return fmt.Sprintf("[%s] %v", e.Code, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

// GetCode 错误链上最外层的错误码，没有则为空串
func GetCode(err error) string {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ""
}

// HasCode 错误链上是否有指定错误码
func HasCode(err error, code string) bool {
	for err != nil {
		var coded *CodedError
		if !errors.As(err, &coded) {
			return false
		}
		if coded.Code == code {
			return true
		}
		err = coded.Cause
	}
	return false
}

// IsPermanent 带错误码的业务判定与非法参数不应重试，其余（传输错误、超时、熔断）可以
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	return GetCode(err) != "" || errors.Is(err, ErrInvalidInput)
}

// Must err 不为 nil 时 panic，仅用于初始化阶段
func Must[T any](v T, err error) T {
	if err != nil {
		panic(fmt.Sprintf("must: %v", err))
	}
	return v
}

// Collector 逐个收集错误，Err 返回全部非 nil 错误的合并结果，
// 适合关闭多个资源或校验多个字段时使用
type Collector struct {
	errs []error
}

func (c *Collector) Collect(err error) {
	if err != nil {
		c.errs = append(c.errs, err)
	}
}

// Len 已收集的错误数
func (c *Collector) Len() int { return len(c.errs) }

func (c *Collector) Err() error {
	switch len(c.errs) {
	case 0:
		return nil
	case 1:
		return c.errs[0]
	default:
		return errors.Join(c.errs...)
	}
}

// 标准库函数再导出
var (
	New    = errors.New
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)
