package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sajang-ai/backend/internal/logging"
	"github.com/sajang-ai/backend/pkg/utils"
)

type contextKey struct{}

// WithUser stores user on ctx.
func WithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// UserFromContext returns the authenticated user, if any.
func UserFromContext(ctx context.Context) (User, bool) {
	user, ok := ctx.Value(contextKey{}).(User)
	return user, ok && user.ID != ""
}

// BearerToken extracts the token from the Authorization header, falling back to the
// access_token query parameter used by WebSocket clients.
func BearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}

// Middleware attaches the verified user to the request context.
type Middleware struct {
	verifier Verifier
	logger   logrus.FieldLogger
}

// NewMiddleware builds the middleware. A nil verifier rejects every Required route.
func NewMiddleware(verifier Verifier, logger logrus.FieldLogger) *Middleware {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Middleware{verifier: verifier, logger: logger}
}

// Authenticate resolves the request's token. It is used by handlers that upgrade the
// connection and cannot sit behind Required.
func (m *Middleware) Authenticate(r *http.Request) (User, error) {
	if m == nil || m.verifier == nil {
		return User{}, ErrNotConfigured
	}
	token := BearerToken(r)
	if token == "" {
		return User{}, ErrMissingToken
	}
	return m.verifier.Verify(r.Context(), token)
}

// Required rejects requests without a valid token.
func (m *Middleware) Required(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := m.Authenticate(r)
		if err != nil {
			status, message := StatusFor(err)
			if status >= http.StatusInternalServerError {
				m.logger.WithError(err).Warn("token verification failed")
			}
			utils.RespondError(w, status, message)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// Optional attaches the user when a valid token is present and otherwise continues anonymously.
func (m *Middleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if BearerToken(r) == "" || m == nil || m.verifier == nil {
			next.ServeHTTP(w, r)
			return
		}
		user, err := m.Authenticate(r)
		if err != nil {
			m.logger.WithError(err).Debug("ignoring unverifiable token")
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// StatusFor maps a verification error to an HTTP status and client message.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrMissingToken):
		return http.StatusUnauthorized, "로그인이 필요합니다."
	case errors.Is(err, ErrExpiredToken):
		return http.StatusUnauthorized, "로그인이 만료되었습니다. 다시 로그인해 주세요."
	case errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized, "유효하지 않은 인증 정보입니다."
	case errors.Is(err, ErrNotConfigured):
		return http.StatusServiceUnavailable, "인증 서비스가 설정되지 않았습니다."
	default:
		return http.StatusServiceUnavailable, "인증 서비스에 연결할 수 없습니다."
	}
}
