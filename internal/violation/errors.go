package violation

import (
	"errors"
	"fmt"
)

// ErrNotFound 记录或车辆不存在
var ErrNotFound = errors.New("record not found")

// ValidationError 入参校验失败，消息可直接展示给用户。
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func newValidationError(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsValidation 判断是否为校验错误
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
