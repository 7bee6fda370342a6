package core_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/mnemosyne/pkg/agent/tool"
	"github.com/secmon-lab/mnemosyne/pkg/agent/tool/core"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
	"github.com/secmon-lab/mnemosyne/pkg/repository/memory"
	"github.com/secmon-lab/mnemosyne/pkg/service/brave"
	"github.com/secmon-lab/mnemosyne/pkg/service/scheduler"
)

// newToolCtx binds a conversation key to the context the way the dispatcher
// does before running a tool.
func newToolCtx(key model.ConversationKey) context.Context {
	return tool.WithConversation(context.Background(), key)
}

// ----- mock SemanticIndex -----

type mockIndex struct {
	insertFn func(ctx context.Context, record *model.MemoryRecord) (model.MemoryID, error)
	queryFn  func(ctx context.Context, scope types.MemoryScope, ownerID string, queryText string, topK int) ([]*model.ScoredRecord, error)
}

func (m *mockIndex) Insert(ctx context.Context, record *model.MemoryRecord) (model.MemoryID, error) {
	if m.insertFn != nil {
		return m.insertFn(ctx, record)
	}
	return record.ID, nil
}

func (m *mockIndex) Query(ctx context.Context, scope types.MemoryScope, ownerID string, queryText string, topK int) ([]*model.ScoredRecord, error) {
	if m.queryFn != nil {
		return m.queryFn(ctx, scope, ownerID, queryText, topK)
	}
	return nil, nil
}

// ----- mock ChatService -----

type mockChat struct {
	postImageFn func(ctx context.Context, key model.ConversationKey, name string, data []byte) error
}

func (m *mockChat) SendMessage(ctx context.Context, key model.ConversationKey, text string, suggestions []string) error {
	return nil
}

func (m *mockChat) SendNotification(ctx context.Context, key model.ConversationKey, text string) error {
	return nil
}

func (m *mockChat) PostImage(ctx context.Context, key model.ConversationKey, name string, data []byte) error {
	if m.postImageFn != nil {
		return m.postImageFn(ctx, key, name, data)
	}
	return nil
}

func (m *mockChat) BotUserID(ctx context.Context) (string, error) {
	return "B000", nil
}

// ----- mock ImageGenerator -----

type mockImageGen struct {
	generateFn func(ctx context.Context, prompt string) ([]byte, string, error)
}

func (m *mockImageGen) GenerateImage(ctx context.Context, prompt string) ([]byte, string, error) {
	if m.generateFn != nil {
		return m.generateFn(ctx, prompt)
	}
	return []byte{0x89, 0x50, 0x4e, 0x47}, "image/png", nil
}

// findTool returns the tool with the given name from the list
func findTool(tools []gollem.Tool, name string) gollem.Tool {
	for _, t := range tools {
		if t.Spec().Name == name {
			return t
		}
	}
	return nil
}

func newScheduler(t *testing.T) *scheduler.Service {
	t.Helper()
	repo := memory.New()
	return scheduler.New(repo.Timer(), func(ctx context.Context, key model.ConversationKey, payload string) error {
		return nil
	})
}

func newSearchClient(t *testing.T, handler http.HandlerFunc) *brave.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := brave.New("test-key", brave.WithEndpoint(srv.URL))
	gt.NoError(t, err).Required()
	return client
}

// ----- tests -----

func TestNew(t *testing.T) {
	sched := newScheduler(t)
	index := &mockIndex{}
	chat := &mockChat{}

	t.Run("without optional backends", func(t *testing.T) {
		tools := core.New(sched, index, chat, nil, nil)
		gt.Array(t, tools).Length(3)
		gt.Value(t, findTool(tools, "core__reminder")).NotNil()
		gt.Value(t, findTool(tools, "core__remember")).NotNil()
		gt.Value(t, findTool(tools, "core__recall")).NotNil()
	})

	t.Run("with search and image backends", func(t *testing.T) {
		search := newSearchClient(t, func(w http.ResponseWriter, r *http.Request) {})
		tools := core.New(sched, index, chat, search, &mockImageGen{})
		gt.Array(t, tools).Length(5)
		gt.Value(t, findTool(tools, "core__web_search")).NotNil()
		gt.Value(t, findTool(tools, "core__generate_image")).NotNil()
	})
}

func TestReminderTool(t *testing.T) {
	key := model.NewUserConversationKey(types.UserID("U123"))

	t.Run("schedules and returns self-contained confirmation", func(t *testing.T) {
		repo := memory.New()
		sched := scheduler.New(repo.Timer(), func(ctx context.Context, key model.ConversationKey, payload string) error {
			return nil
		})
		tools := core.New(sched, &mockIndex{}, &mockChat{}, nil, nil)

		out, err := findTool(tools, "core__reminder").Run(newToolCtx(key), map[string]any{
			"delay_minutes": float64(2),
			"message":       "check the oven",
		})
		gt.NoError(t, err).Required()

		gt.Value(t, out[model.OutputSelfContainedKey]).Equal(true)
		msg := out[model.OutputMessageKey].(string)
		gt.Value(t, strings.Contains(msg, "2 minutes")).Equal(true)
		gt.Value(t, strings.Contains(msg, "check the oven")).Equal(true)
		gt.String(t, out["task_id"].(string)).NotEqual("")

		pending, err := repo.Timer().ListPending(context.Background())
		gt.NoError(t, err).Required()
		gt.Array(t, pending).Length(1)
		gt.Value(t, pending[0].Payload).Equal("check the oven")
		gt.Value(t, pending[0].ConversationKey).Equal(key)
	})

	t.Run("rejects call without conversation", func(t *testing.T) {
		tools := core.New(newScheduler(t), &mockIndex{}, &mockChat{}, nil, nil)
		_, err := findTool(tools, "core__reminder").Run(context.Background(), map[string]any{
			"delay_minutes": float64(1),
			"message":       "hi",
		})
		gt.Error(t, err)
	})

	t.Run("rejects non-positive delay", func(t *testing.T) {
		tools := core.New(newScheduler(t), &mockIndex{}, &mockChat{}, nil, nil)
		_, err := findTool(tools, "core__reminder").Run(newToolCtx(key), map[string]any{
			"delay_minutes": float64(0),
			"message":       "hi",
		})
		gt.Error(t, err)
	})

	t.Run("rejects empty message", func(t *testing.T) {
		tools := core.New(newScheduler(t), &mockIndex{}, &mockChat{}, nil, nil)
		_, err := findTool(tools, "core__reminder").Run(newToolCtx(key), map[string]any{
			"delay_minutes": float64(1),
		})
		gt.Error(t, err)
	})
}

func TestRememberTool(t *testing.T) {
	t.Run("stores note under the conversation scope", func(t *testing.T) {
		var stored *model.MemoryRecord
		index := &mockIndex{
			insertFn: func(ctx context.Context, record *model.MemoryRecord) (model.MemoryID, error) {
				stored = record
				return record.ID, nil
			},
		}
		tools := core.New(newScheduler(t), index, &mockChat{}, nil, nil)
		key := model.NewUserConversationKey(types.UserID("U123"))

		out, err := findTool(tools, "core__remember").Run(newToolCtx(key), map[string]any{
			"note": "the user's cat is named Mochi",
		})
		gt.NoError(t, err).Required()

		gt.Value(t, stored).NotNil()
		gt.Value(t, stored.Scope).Equal(types.ScopeUser)
		gt.Value(t, stored.OwnerID).Equal("U123")
		gt.Value(t, stored.Payload["note"]).Equal("the user's cat is named Mochi")
		gt.Value(t, out[model.OutputSelfContainedKey]).Equal(true)
	})

	t.Run("propagates index error", func(t *testing.T) {
		index := &mockIndex{
			insertFn: func(ctx context.Context, record *model.MemoryRecord) (model.MemoryID, error) {
				return "", errors.New("index down")
			},
		}
		tools := core.New(newScheduler(t), index, &mockChat{}, nil, nil)
		key := model.NewUserConversationKey(types.UserID("U123"))

		_, err := findTool(tools, "core__remember").Run(newToolCtx(key), map[string]any{"note": "x"})
		gt.Error(t, err)
	})
}

func TestRecallTool(t *testing.T) {
	record := func(score float64, note string) *model.ScoredRecord {
		return &model.ScoredRecord{
			Record: &model.MemoryRecord{
				Payload:   map[string]string{"note": note},
				CreatedAt: time.Now(),
			},
			Score: score,
		}
	}

	t.Run("queries the conversation scope", func(t *testing.T) {
		var gotScope types.MemoryScope
		var gotOwner string
		index := &mockIndex{
			queryFn: func(ctx context.Context, scope types.MemoryScope, ownerID string, queryText string, topK int) ([]*model.ScoredRecord, error) {
				gotScope = scope
				gotOwner = ownerID
				return []*model.ScoredRecord{record(0.9, "likes coffee")}, nil
			},
		}
		tools := core.New(newScheduler(t), index, &mockChat{}, nil, nil)
		key := model.NewUserConversationKey(types.UserID("U123"))

		out, err := findTool(tools, "core__recall").Run(newToolCtx(key), map[string]any{"query": "drinks"})
		gt.NoError(t, err).Required()

		gt.Value(t, gotScope).Equal(types.ScopeUser)
		gt.Value(t, gotOwner).Equal("U123")
		gt.Value(t, out["count"]).Equal(1)
	})

	t.Run("merges the author's personal memories in a channel", func(t *testing.T) {
		index := &mockIndex{
			queryFn: func(ctx context.Context, scope types.MemoryScope, ownerID string, queryText string, topK int) ([]*model.ScoredRecord, error) {
				if scope == types.ScopeServer {
					return []*model.ScoredRecord{record(0.5, "team standup is at 10")}, nil
				}
				return []*model.ScoredRecord{record(0.8, "prefers tea")}, nil
			},
		}
		tools := core.New(newScheduler(t), index, &mockChat{}, nil, nil)
		key := model.NewServerConversationKey(types.ServerID("S1"), types.ChannelID("C1"))
		ctx := tool.WithAuthor(newToolCtx(key), types.UserID("U123"))

		out, err := findTool(tools, "core__recall").Run(ctx, map[string]any{"query": "drinks"})
		gt.NoError(t, err).Required()

		items := out["memories"].([]map[string]any)
		gt.Array(t, items).Length(2)
		gt.Value(t, strings.Contains(items[0]["memory"].(string), "prefers tea")).Equal(true)
	})

	t.Run("propagates index error", func(t *testing.T) {
		index := &mockIndex{
			queryFn: func(ctx context.Context, scope types.MemoryScope, ownerID string, queryText string, topK int) ([]*model.ScoredRecord, error) {
				return nil, errors.New("index down")
			},
		}
		tools := core.New(newScheduler(t), index, &mockChat{}, nil, nil)
		key := model.NewUserConversationKey(types.UserID("U123"))

		_, err := findTool(tools, "core__recall").Run(newToolCtx(key), map[string]any{"query": "drinks"})
		gt.Error(t, err)
	})
}

func TestWebSearchTool(t *testing.T) {
	t.Run("returns search hits", func(t *testing.T) {
		search := newSearchClient(t, func(w http.ResponseWriter, r *http.Request) {
			gt.Value(t, r.Header.Get("X-Subscription-Token")).Equal("test-key")
			gt.Value(t, r.URL.Query().Get("q")).Equal("golang generics")
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"web":{"results":[
				{"title":"Go","url":"https://go.dev","description":"The Go programming language"},
				{"title":"Generics","url":"https://go.dev/doc/tutorial/generics","description":"Tutorial"}
			]}}`))
		})
		tools := core.New(newScheduler(t), &mockIndex{}, &mockChat{}, search, nil)

		out, err := findTool(tools, "core__web_search").Run(context.Background(), map[string]any{
			"query": "golang generics",
		})
		gt.NoError(t, err).Required()

		items := out["results"].([]map[string]any)
		gt.Array(t, items).Length(2)
		gt.Value(t, items[0]["title"]).Equal("Go")
		gt.Value(t, items[0]["url"]).Equal("https://go.dev")
		gt.Value(t, items[0]["snippet"]).Equal("The Go programming language")
	})

	t.Run("caps results at count", func(t *testing.T) {
		search := newSearchClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"web":{"results":[
				{"title":"a","url":"u1","description":"d1"},
				{"title":"b","url":"u2","description":"d2"},
				{"title":"c","url":"u3","description":"d3"}
			]}}`))
		})
		tools := core.New(newScheduler(t), &mockIndex{}, &mockChat{}, search, nil)

		out, err := findTool(tools, "core__web_search").Run(context.Background(), map[string]any{
			"query": "x",
			"count": float64(2),
		})
		gt.NoError(t, err).Required()
		gt.Value(t, out["count"]).Equal(2)
	})

	t.Run("propagates upstream failure", func(t *testing.T) {
		search := newSearchClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
		tools := core.New(newScheduler(t), &mockIndex{}, &mockChat{}, search, nil)

		_, err := findTool(tools, "core__web_search").Run(context.Background(), map[string]any{"query": "x"})
		gt.Error(t, err)
	})
}

func TestGenerateImageTool(t *testing.T) {
	key := model.NewServerConversationKey(types.ServerID("S1"), types.ChannelID("C1"))

	t.Run("posts the generated image to the conversation", func(t *testing.T) {
		var postedName string
		var postedData []byte
		var postedKey model.ConversationKey
		chat := &mockChat{
			postImageFn: func(ctx context.Context, key model.ConversationKey, name string, data []byte) error {
				postedKey = key
				postedName = name
				postedData = data
				return nil
			},
		}
		images := &mockImageGen{
			generateFn: func(ctx context.Context, prompt string) ([]byte, string, error) {
				return []byte("fake-png"), "image/png", nil
			},
		}
		tools := core.New(newScheduler(t), &mockIndex{}, chat, nil, images)

		out, err := findTool(tools, "core__generate_image").Run(newToolCtx(key), map[string]any{
			"prompt": "a cat in a spacesuit",
		})
		gt.NoError(t, err).Required()

		gt.Value(t, postedKey).Equal(key)
		gt.Value(t, postedName).Equal("generated.png")
		gt.Value(t, string(postedData)).Equal("fake-png")
		gt.Value(t, out["mime_type"]).Equal("image/png")
		gt.Value(t, out[model.OutputSelfContainedKey]).Equal(true)
	})

	t.Run("fails when generation fails", func(t *testing.T) {
		images := &mockImageGen{
			generateFn: func(ctx context.Context, prompt string) ([]byte, string, error) {
				return nil, "", errors.New("model refused")
			},
		}
		tools := core.New(newScheduler(t), &mockIndex{}, &mockChat{}, nil, images)

		_, err := findTool(tools, "core__generate_image").Run(newToolCtx(key), map[string]any{"prompt": "x"})
		gt.Error(t, err)
	})

	t.Run("rejects call without conversation", func(t *testing.T) {
		tools := core.New(newScheduler(t), &mockIndex{}, &mockChat{}, nil, &mockImageGen{})
		_, err := findTool(tools, "core__generate_image").Run(context.Background(), map[string]any{"prompt": "x"})
		gt.Error(t, err)
	})
}
