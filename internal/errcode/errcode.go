package errcode

import (
	"errors"
	"net/http"
)

// 错误码约定：
// - 0：无错误
// - 4xxx：调用方可修正的错误（校验、鉴权、资源缺失、重复）
// - 5xxx：系统错误（存储、外部投递）
const (
	OK              = 0
	Validation      = 4000
	Unauthorized    = 4001
	Forbidden       = 4003
	ResourceMissing = 4004
	Duplicate       = 4009
	RateLimited     = 4029
	SystemError     = 5000
	TransientIO     = 5003
)

// Error carries a code alongside a client-safe message and the underlying cause.
type Error struct {
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New 返回不带底层原因的错误。
func New(code int, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Wrap 为底层错误附加错误码与对外消息。
func Wrap(code int, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

func NewValidation(msg string) *Error { return New(Validation, msg) }
func NewNotFound(msg string) *Error   { return New(ResourceMissing, msg) }
func NewDuplicate(msg string) *Error  { return New(Duplicate, msg) }

// Persistence wraps a database failure.
func Persistence(op string, err error) *Error { return Wrap(SystemError, op, err) }

// Transient wraps a delivery failure that survived all retries.
func Transient(op string, err error) *Error { return Wrap(TransientIO, op, err) }

// CodeOf 返回错误链上第一个 *Error 的错误码，未知错误视为系统错误。
func CodeOf(err error) int {
	if err == nil {
		return OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return SystemError
}

// MessageOf 返回可以直接展示给调用方的消息；系统类错误会被脱敏。
func MessageOf(err error) string {
	switch code := CodeOf(err); code {
	case OK:
		return ""
	case SystemError:
		return "internal error"
	case TransientIO:
		return "email delivery failed"
	default:
		var e *Error
		if errors.As(err, &e) {
			return e.Message
		}
		return "internal error"
	}
}

// HTTPStatus maps a code to the single HTTP status convention used by the API.
func HTTPStatus(code int) int {
	switch code {
	case OK:
		return http.StatusOK
	case Validation:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case ResourceMissing:
		return http.StatusNotFound
	case Duplicate:
		return http.StatusConflict
	case RateLimited:
		return http.StatusTooManyRequests
	case TransientIO:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
