package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sajang-ai/backend/internal/auth"
	"github.com/sajang-ai/backend/internal/model/chat"
	"github.com/sajang-ai/backend/internal/model/persona"
	conversationService "github.com/sajang-ai/backend/internal/service/conversation"
	"github.com/sajang-ai/backend/internal/store"
)

// tokenIsUserID treats the bearer token as the user id.
type tokenIsUserID struct{}

func (tokenIsUserID) Verify(_ context.Context, token string) (auth.User, error) {
	return auth.User{ID: token}, nil
}

func newRouter(t *testing.T) chi.Router {
	t.Helper()
	svc := conversationService.NewService(store.NewMemory(), nil, conversationService.Config{}, nil)
	h := New(svc, persona.NewMemoryStore(persona.Seed()), auth.NewMiddleware(tokenIsUserID{}, nil), nil)

	r := chi.NewRouter()
	r.Route("/api", h.RegisterRoutes)
	return r
}

func do(r http.Handler, method, path, user string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+user)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func createConversation(t *testing.T, r http.Handler, user string) string {
	t.Helper()
	rec := do(r, http.MethodPost, "/api/conversations", user, map[string]string{"personaId": "jia", "title": "부가세 신고"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotEmpty(t, out["id"])
	return out["id"]
}

func TestConversationsRequireAuth(t *testing.T) {
	r := newRouter(t)

	rec := do(r, http.MethodGet, "/api/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateAndListConversations(t *testing.T) {
	r := newRouter(t)
	id := createConversation(t, r, "user-1")
	createConversation(t, r, "user-2")

	rec := do(r, http.MethodGet, "/api/conversations", "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var items []chat.ConversationListItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0].ID)
	assert.Equal(t, "부가세 신고", items[0].Title)
	assert.Equal(t, "jia", items[0].PersonaID)
}

func TestCreateConversationRejectsUnknownPersona(t *testing.T) {
	r := newRouter(t)

	rec := do(r, http.MethodPost, "/api/conversations", "user-1", map[string]string{"personaId": "nobody"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMessagesRoundTrip(t *testing.T) {
	r := newRouter(t)
	id := createConversation(t, r, "user-1")
	path := "/api/conversations/" + id + "/messages"

	rec := do(r, http.MethodGet, path, "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(r, http.MethodPost, path, "user-1", map[string]string{"role": "user", "content": "신고 기한이 언제죠?"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(r, http.MethodGet, path, "user-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var messages []chat.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &messages))
	require.Len(t, messages, 1)
	assert.Equal(t, "신고 기한이 언제죠?", messages[0].Content)
}

func TestMessagesOwnershipAndMissing(t *testing.T) {
	r := newRouter(t)
	id := createConversation(t, r, "user-1")

	rec := do(r, http.MethodGet, "/api/conversations/"+id+"/messages", "intruder", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(r, http.MethodPost, "/api/conversations/"+id+"/messages", "intruder",
		map[string]string{"role": "user", "content": "hi"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(r, http.MethodGet, "/api/conversations/does-not-exist/messages", "user-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAppendMessageValidation(t *testing.T) {
	r := newRouter(t)
	id := createConversation(t, r, "user-1")
	path := "/api/conversations/" + id + "/messages"

	rec := do(r, http.MethodPost, path, "user-1", map[string]string{"role": "system", "content": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(r, http.MethodPost, path, "user-1", map[string]string{"role": "user", "content": strings.Repeat("a", maxContentRunes+1)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
