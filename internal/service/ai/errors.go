package ai

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotConfigured is returned when no completion credentials were supplied.
var ErrNotConfigured = errors.New("ai backend is not configured")

// UpstreamError is a non-2xx answer from the completion provider.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Message    string
	// Err is the provider SDK error this was mapped from, if any.
	Err error
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s upstream returned status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s upstream returned status %d: %s", e.Provider, e.StatusCode, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Category groups upstream failures by what the user can do about them.
type Category string

const (
	CategoryRateLimited Category = "rate_limited"
	CategoryAuth        Category = "auth"
	CategoryServer      Category = "server"
	CategoryGeneric     Category = "generic"
)

// Classify maps an error from a completion stream to its category. Anything that is
// not an UpstreamError is a transport failure and falls into CategoryGeneric.
func Classify(err error) Category {
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		return CategoryGeneric
	}
	switch {
	case upstream.StatusCode == http.StatusTooManyRequests:
		return CategoryRateLimited
	case upstream.StatusCode == http.StatusUnauthorized || upstream.StatusCode == http.StatusForbidden:
		return CategoryAuth
	case upstream.StatusCode >= http.StatusInternalServerError:
		return CategoryServer
	default:
		return CategoryGeneric
	}
}

var categoryMessages = map[Category]string{
	CategoryRateLimited: "요청이 많아 잠시 응답할 수 없습니다. 잠시 후 다시 시도해 주세요.",
	CategoryAuth:        "AI 서비스 인증에 실패했습니다. 관리자에게 문의해 주세요.",
	CategoryServer:      "AI 서비스에 일시적인 문제가 발생했습니다. 잠시 후 다시 시도해 주세요.",
	CategoryGeneric:     "AI 서비스 연결에 실패했습니다. 다시 시도해 주세요.",
}

// UserMessage returns the human readable notice sent to the client for err.
func UserMessage(err error) string {
	return categoryMessages[Classify(err)]
}
