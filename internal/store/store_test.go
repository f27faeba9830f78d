package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sajang-ai/backend/internal/config"
	"github.com/sajang-ai/backend/internal/logging"
	"github.com/sajang-ai/backend/internal/model/chat"
)

func repositories(t *testing.T) map[string]Repository {
	t.Helper()

	sqlite, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "sajang.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Repository{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestRepositoryConversationLifecycle(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			conv, err := repo.CreateConversation(ctx, chat.Conversation{
				UserID: "user-1", PersonaID: "dojun", Title: "전단지 문구", CreatedAt: base,
			})
			require.NoError(t, err)
			require.NotEmpty(t, conv.ID)

			_, err = repo.AppendMessage(ctx, chat.Message{
				ConversationID: conv.ID, Role: chat.RoleUser, Content: "전단지 문구 좀", CreatedAt: base.Add(time.Second),
			})
			require.NoError(t, err)
			_, err = repo.AppendMessage(ctx, chat.Message{
				ConversationID: conv.ID, Role: chat.RoleAssistant, Content: "좋아요", ModelUsed: "claude-sonnet-4-5",
				CreatedAt: base.Add(2 * time.Second),
			})
			require.NoError(t, err)

			msgs, err := repo.ListMessages(ctx, conv.ID)
			require.NoError(t, err)
			require.Len(t, msgs, 2)
			assert.Equal(t, chat.RoleUser, msgs[0].Role)
			assert.Equal(t, "claude-sonnet-4-5", msgs[1].ModelUsed)

			got, err := repo.GetConversation(ctx, conv.ID)
			require.NoError(t, err)
			assert.Equal(t, "user-1", got.UserID)
			assert.True(t, got.UpdatedAt.Equal(base.Add(2*time.Second)))
			assert.Nil(t, got.Summary)
		})
	}
}

func TestRepositoryMissingConversation(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			missing := "00000000-0000-0000-0000-000000000000"

			_, err := repo.GetConversation(ctx, missing)
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = repo.AppendMessage(ctx, chat.Message{ConversationID: missing, Role: chat.RoleUser, Content: "x"})
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = repo.IncrementTurnCount(ctx, missing, base)
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, repo.SaveSummary(ctx, missing, "s", base), ErrNotFound)
		})
	}
}

func TestRepositoryRejectsInvalidInput(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			_, err := repo.CreateConversation(context.Background(), chat.Conversation{PersonaID: "dojun"})
			assert.ErrorIs(t, err, ErrInvalidInput)

			_, err = repo.AppendMessage(context.Background(), chat.Message{ConversationID: "c", Role: "system"})
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestRepositoryIncrementTurnCount(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			conv, err := repo.CreateConversation(ctx, chat.Conversation{UserID: "u", PersonaID: "jia", Title: "t", CreatedAt: base})
			require.NoError(t, err)

			for want := 1; want <= 4; want++ {
				got, err := repo.IncrementTurnCount(ctx, conv.ID, base.Add(time.Duration(want)*time.Minute))
				require.NoError(t, err)
				assert.Equal(t, want, got)
			}
			require.NoError(t, repo.SaveSummary(ctx, conv.ID, "부가세 신고 준비 중", base.Add(5*time.Minute)))

			got, err := repo.GetConversation(ctx, conv.ID)
			require.NoError(t, err)
			assert.Equal(t, 4, got.TurnCount)
			require.NotNil(t, got.Summary)
			assert.Equal(t, "부가세 신고 준비 중", *got.Summary)
		})
	}
}

func TestRepositoryConcurrentIncrementsAreNotLost(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			conv, err := repo.CreateConversation(ctx, chat.Conversation{UserID: "u", PersonaID: "dojun", Title: "t", CreatedAt: base})
			require.NoError(t, err)

			const writers = 8
			var wg sync.WaitGroup
			seen := make(chan int, writers)
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					n, err := repo.IncrementTurnCount(ctx, conv.ID, base.Add(time.Minute))
					assert.NoError(t, err)
					seen <- n
				}()
			}
			wg.Wait()
			close(seen)

			distinct := map[int]bool{}
			for n := range seen {
				distinct[n] = true
			}
			assert.Len(t, distinct, writers)

			got, err := repo.GetConversation(ctx, conv.ID)
			require.NoError(t, err)
			assert.Equal(t, writers, got.TurnCount)
		})
	}
}

func TestRepositoryLatestSummaries(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			mk := func(userID, personaID string, at time.Time, summary string) {
				conv, err := repo.CreateConversation(ctx, chat.Conversation{UserID: userID, PersonaID: personaID, Title: "t", CreatedAt: at})
				require.NoError(t, err)
				if summary != "" {
					require.NoError(t, repo.SaveSummary(ctx, conv.ID, summary, at))
				}
			}

			mk("u1", "dojun", base, "오래된 마케팅 요약")
			mk("u1", "dojun", base.Add(time.Hour), "최신 마케팅 요약")
			mk("u1", "jia", base.Add(30*time.Minute), "세무 요약")
			mk("u1", "eric", base.Add(2*time.Hour), "")
			mk("u2", "hana", base.Add(3*time.Hour), "다른 사용자 요약")

			same, err := repo.LatestSummary(ctx, "u1", "dojun")
			require.NoError(t, err)
			assert.Equal(t, "최신 마케팅 요약", same)

			other, err := repo.LatestOtherPersonaSummary(ctx, "u1", "jia")
			require.NoError(t, err)
			assert.Equal(t, "최신 마케팅 요약", other)

			other, err = repo.LatestOtherPersonaSummary(ctx, "u1", "dojun")
			require.NoError(t, err)
			assert.Equal(t, "세무 요약", other)

			none, err := repo.LatestSummary(ctx, "u3", "dojun")
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestRepositoryListConversationsNewestFirst(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			older, err := repo.CreateConversation(ctx, chat.Conversation{UserID: "u", PersonaID: "dojun", Title: "older", CreatedAt: base})
			require.NoError(t, err)
			_, err = repo.CreateConversation(ctx, chat.Conversation{UserID: "u", PersonaID: "jia", Title: "newer", CreatedAt: base.Add(time.Minute)})
			require.NoError(t, err)
			_, err = repo.CreateConversation(ctx, chat.Conversation{UserID: "someone-else", PersonaID: "jia", Title: "x", CreatedAt: base})
			require.NoError(t, err)

			list, err := repo.ListConversations(ctx, "u", 10)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "newer", list[0].Title)

			// New activity moves the older thread to the top.
			_, err = repo.AppendMessage(ctx, chat.Message{ConversationID: older.ID, Role: chat.RoleUser, Content: "hi", CreatedAt: base.Add(time.Hour)})
			require.NoError(t, err)

			list, err = repo.ListConversations(ctx, "u", 1)
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, "older", list[0].Title)
		})
	}
}

func TestOpenSelectsMemoryDriver(t *testing.T) {
	repo, err := Open(context.Background(), config.DatabaseConfig{Driver: config.DriverMemory}, logging.Discard())
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, repo)
	assert.NoError(t, repo.Ping(context.Background()))

	_, err = Open(context.Background(), config.DatabaseConfig{Driver: "mongo"}, nil)
	assert.Error(t, err)
}
