package chatbot

import "errors"

// Kind classifies a chatbot failure where it happens.
type Kind int

const (
	// KindUnavailable covers transport failures and non-2xx statuses.
	KindUnavailable Kind = iota
	// KindTimeout means the request deadline fired.
	KindTimeout
	// KindMalformed means the reply could not be resolved.
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindMalformed:
		return "malformed"
	default:
		return "unavailable"
	}
}

// User-facing messages.
const (
	TimeoutMessage     = "AI服务响应较慢，请稍等片刻或重试"
	UnavailablePrefix  = "AI服务暂时不可用: "
	InvalidFormatCause = "无效的响应格式"
)

var errInvalidFormat = errors.New(InvalidFormatCause)

// Error is returned by every failed chatbot call.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Kind == KindTimeout {
		return TimeoutMessage
	}
	cause := InvalidFormatCause
	if e.Kind == KindUnavailable && e.Err != nil {
		cause = e.Err.Error()
	}
	return UnavailablePrefix + cause
}

func (e *Error) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a chatbot timeout.
func IsTimeout(err error) bool {
	var chatErr *Error
	return errors.As(err, &chatErr) && chatErr.Kind == KindTimeout
}
