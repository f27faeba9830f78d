package handler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sajang-ai/backend/internal/auth"
	"github.com/sajang-ai/backend/internal/config"
	"github.com/sajang-ai/backend/internal/handler/stream"
	"github.com/sajang-ai/backend/internal/logging"
	personaModel "github.com/sajang-ai/backend/internal/model/persona"
	chatService "github.com/sajang-ai/backend/internal/service/chat"
	conversationService "github.com/sajang-ai/backend/internal/service/conversation"
	"github.com/sajang-ai/backend/internal/service/ratelimit"
	"github.com/sajang-ai/backend/internal/store"
)

func newTestRouter() http.Handler {
	return newTestRouterWith(config.ServerConfig{AllowedOrigins: []string{"*"}})
}

func newTestRouterWith(server config.ServerConfig) http.Handler {
	repo := store.NewMemory()
	sessions := chatService.NewService(chatService.Config{TTL: time.Hour})
	return NewRouter(Deps{
		Config:        &config.Config{Server: server},
		Personas:      personaModel.NewMemoryStore(personaModel.Seed()),
		Relay:         stream.NewRelay(nil, sessions, nil, stream.Config{}, nil),
		Limiter:       ratelimit.New(20, time.Minute),
		Auth:          auth.NewMiddleware(nil, nil),
		Conversations: conversationService.NewService(repo, nil, conversationService.Config{}, nil),
		Store:         repo,
		Logger:        logging.Discard(),
	})
}

func TestRouterRoutes(t *testing.T) {
	r := newTestRouter()

	cases := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/health", http.StatusOK},
		{http.MethodGet, "/api/personas", http.StatusOK},
		{http.MethodGet, "/api/config", http.StatusInternalServerError},
		{http.MethodGet, "/api/conversations", http.StatusServiceUnavailable},
		{http.MethodGet, "/chat", http.StatusOK},
		{http.MethodGet, "/", http.StatusOK},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, tc.want, rec.Code, "%s %s", tc.method, tc.path)
	}
}

func postChatFrom(r http.Handler, remoteAddr, forwardedFor string) int {
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = remoteAddr
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec.Code
}

func TestRouterIgnoresForwardedForByDefault(t *testing.T) {
	r := newTestRouterWith(config.ServerConfig{AllowedOrigins: []string{"*"}})

	rejected := 0
	for i := 0; i < 30; i++ {
		if postChatFrom(r, "192.0.2.10:5000", fmt.Sprintf("10.0.0.%d", i)) == http.StatusTooManyRequests {
			rejected++
		}
	}
	assert.Equal(t, 10, rejected)
}

func TestRouterHonoursForwardedForBehindTrustedProxy(t *testing.T) {
	r := newTestRouterWith(config.ServerConfig{AllowedOrigins: []string{"*"}, TrustProxy: true})

	for i := 0; i < 20; i++ {
		assert.Equal(t, http.StatusBadRequest, postChatFrom(r, "192.0.2.10:5000", "10.0.0.1"))
	}
	assert.Equal(t, http.StatusTooManyRequests, postChatFrom(r, "192.0.2.10:5000", "10.0.0.1"))
	assert.Equal(t, http.StatusBadRequest, postChatFrom(r, "192.0.2.10:5000", "10.0.0.2"))
}
