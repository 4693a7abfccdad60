package types

// Result 批量操作中单个键的结果
//
// Err 非空表示该键失败；批量操作从不整体失败，每个键独立报告。
type Result[T any] struct {
	Value T
	Err   error
}

// OK 检查是否成功
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Ok 构造成功结果
func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// Fail 构造失败结果
func Fail[T any](err error) Result[T] {
	return Result[T]{Err: err}
}

// Unwrap 返回值和错误，单键 API 使用
func (r Result[T]) Unwrap() (T, error) {
	return r.Value, r.Err
}
