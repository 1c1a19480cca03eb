package models

// PayloadError 上报消息格式错误
type PayloadError struct {
	Message string
}

func (e *PayloadError) Error() string {
	return e.Message
}

// ErrInvalidPayload 通用格式错误
var ErrInvalidPayload = &PayloadError{Message: "invalid payload format"}
