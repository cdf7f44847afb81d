package session

import (
	"errors"
	"fmt"
)

// ErrConcurrencyConflict 乐观并发检查失败，调用方应整体重试本次推进
var ErrConcurrencyConflict = errors.New("document was modified concurrently, retry advance")

// InvalidStateError 在终态或被占用的文档上执行了非法操作
// 操作被拒绝，文档状态不变
type InvalidStateError struct {
	DocumentID uint
	Status     string
	Op         string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s document %d in status %q", e.Op, e.DocumentID, e.Status)
}

// IsInvalidState 判断错误是否为非法状态操作
func IsInvalidState(err error) bool {
	var stateErr *InvalidStateError
	return errors.As(err, &stateErr)
}
