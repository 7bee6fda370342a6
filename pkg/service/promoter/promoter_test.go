package promoter_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
	"github.com/secmon-lab/mnemosyne/pkg/repository/memory"
	"github.com/secmon-lab/mnemosyne/pkg/service/promoter"
	"github.com/secmon-lab/mnemosyne/pkg/service/semindex"
)

// mockLLMSession is a mock gollem Session for testing
type mockLLMSession struct {
	generateContentFn func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error)
}

func (s *mockLLMSession) GenerateContent(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
	if s.generateContentFn != nil {
		return s.generateContentFn(ctx, input...)
	}
	return &gollem.Response{
		Texts: []string{`{"topic":"weekend trip","summary":"The user is planning a weekend trip to Kyoto and asked about train schedules.","entities":["Kyoto"],"keywords":["trip","train","weekend"]}`},
	}, nil
}

func (s *mockLLMSession) GenerateStream(ctx context.Context, input ...gollem.Input) (<-chan *gollem.Response, error) {
	return nil, nil
}

func (s *mockLLMSession) Generate(ctx context.Context, input []gollem.Input, opts ...gollem.GenerateOption) (*gollem.Response, error) {
	return s.GenerateContent(ctx, input...)
}

func (s *mockLLMSession) Stream(ctx context.Context, input []gollem.Input, opts ...gollem.GenerateOption) (<-chan *gollem.Response, error) {
	return s.GenerateStream(ctx, input...)
}

func (s *mockLLMSession) History() (*gollem.History, error) {
	return nil, nil
}

func (s *mockLLMSession) AppendHistory(*gollem.History) error {
	return nil
}

func (s *mockLLMSession) CountToken(ctx context.Context, input ...gollem.Input) (int, error) {
	return 0, nil
}

// mockLLMClient is a mock gollem LLMClient for testing
type mockLLMClient struct {
	newSessionFn func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error)
	embeddingErr error
}

func (c *mockLLMClient) NewSession(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
	if c.newSessionFn != nil {
		return c.newSessionFn(ctx, options...)
	}
	return &mockLLMSession{}, nil
}

func (c *mockLLMClient) GenerateEmbedding(ctx context.Context, dimension int, input []string) ([][]float64, error) {
	if c.embeddingErr != nil {
		return nil, c.embeddingErr
	}
	out := make([][]float64, len(input))
	for i := range input {
		v := make([]float64, dimension)
		v[0] = 1
		out[i] = v
	}
	return out, nil
}

func testBatch(now time.Time) []model.WindowEntry {
	return []model.WindowEntry{
		model.NewUserEntry("I'm planning a weekend trip to Kyoto, can you check train schedules?", now.Add(-15*time.Minute)),
		model.NewAssistantEntry("The fastest connection leaves every half hour from Tokyo station.", now.Add(-14*time.Minute)),
	}
}

func newService(t *testing.T, llm *mockLLMClient) (*promoter.Service, *memory.Memory) {
	t.Helper()
	repo := memory.New()
	index, err := semindex.New(llm, repo.Memory())
	gt.NoError(t, err).Required()
	svc, err := promoter.New(llm, index)
	gt.NoError(t, err).Required()
	return svc, repo
}

func TestPromoteSummarizesAndIndexes(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t, &mockLLMClient{})
	key := model.NewUserConversationKey(types.UserID("U1"))

	gt.NoError(t, svc.PromoteSync(ctx, key, testBatch(time.Now()))).Required()

	records, err := repo.Memory().List(ctx, types.ScopeUser, "U1")
	gt.NoError(t, err).Required()
	gt.Array(t, records).Length(1).Required()

	rec := records[0]
	gt.Value(t, rec.Payload["topic"]).Equal("weekend trip")
	gt.Value(t, rec.Payload["entities"]).Equal("Kyoto")
	gt.Value(t, rec.Payload["keywords"]).Equal("trip, train, weekend")
	gt.Value(t, rec.Scope).Equal(types.ScopeUser)
	gt.Value(t, rec.OwnerID).Equal("U1")
	gt.Number(t, len(rec.Embedding)).Equal(model.EmbeddingDimension)
}

func TestPromoteSameBatchYieldsOneRecord(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t, &mockLLMClient{})
	key := model.NewUserConversationKey(types.UserID("U1"))
	batch := testBatch(time.Now())

	gt.NoError(t, svc.PromoteSync(ctx, key, batch)).Required()
	gt.NoError(t, svc.PromoteSync(ctx, key, batch)).Required()

	records, err := repo.Memory().List(ctx, types.ScopeUser, "U1")
	gt.NoError(t, err).Required()
	gt.Array(t, records).Length(1)
}

func TestPromoteReorderedBatchYieldsSameID(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t, &mockLLMClient{})
	key := model.NewUserConversationKey(types.UserID("U1"))
	batch := testBatch(time.Now())

	gt.NoError(t, svc.PromoteSync(ctx, key, batch)).Required()
	first, err := repo.Memory().List(ctx, types.ScopeUser, "U1")
	gt.NoError(t, err).Required()
	gt.Array(t, first).Length(1).Required()

	_, err = repo.Memory().DeleteByOwner(ctx, types.ScopeUser, "U1")
	gt.NoError(t, err).Required()

	reversed := []model.WindowEntry{batch[1], batch[0]}
	gt.NoError(t, svc.PromoteSync(ctx, key, reversed)).Required()
	second, err := repo.Memory().List(ctx, types.ScopeUser, "U1")
	gt.NoError(t, err).Required()
	gt.Array(t, second).Length(1).Required()

	gt.Value(t, second[0].ID).Equal(first[0].ID)
}

func TestPromoteDiscardsShortTranscript(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t, &mockLLMClient{})
	key := model.NewUserConversationKey(types.UserID("U1"))

	short := []model.WindowEntry{
		model.NewUserEntry("hi", time.Now().Add(-15*time.Minute)),
	}
	gt.NoError(t, svc.PromoteSync(ctx, key, short)).Required()

	records, err := repo.Memory().List(ctx, types.ScopeUser, "U1")
	gt.NoError(t, err).Required()
	gt.Array(t, records).Length(0)
}

func TestPromoteEmptyBatchIsNoOp(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, &mockLLMClient{})
	key := model.NewUserConversationKey(types.UserID("U1"))

	gt.NoError(t, svc.Promote(ctx, key, nil))
}

func TestPromoteRejectsInvalidKey(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, &mockLLMClient{})

	err := svc.Promote(ctx, model.ConversationKey{}, testBatch(time.Now()))
	gt.Error(t, err)
}

func TestPromoteSummarizationFailure(t *testing.T) {
	ctx := context.Background()
	llm := &mockLLMClient{
		newSessionFn: func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
			return &mockLLMSession{
				generateContentFn: func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
					return nil, errors.New("model overloaded")
				},
			}, nil
		},
	}
	svc, repo := newService(t, llm)
	key := model.NewUserConversationKey(types.UserID("U1"))

	err := svc.PromoteSync(ctx, key, testBatch(time.Now()))
	gt.Error(t, err)

	records, listErr := repo.Memory().List(ctx, types.ScopeUser, "U1")
	gt.NoError(t, listErr).Required()
	gt.Array(t, records).Length(0)
}

func TestPromoteMalformedSummaryJSON(t *testing.T) {
	ctx := context.Background()
	llm := &mockLLMClient{
		newSessionFn: func(ctx context.Context, options ...gollem.SessionOption) (gollem.Session, error) {
			return &mockLLMSession{
				generateContentFn: func(ctx context.Context, input ...gollem.Input) (*gollem.Response, error) {
					return &gollem.Response{Texts: []string{"not json at all"}}, nil
				},
			}, nil
		},
	}
	svc, _ := newService(t, llm)
	key := model.NewUserConversationKey(types.UserID("U1"))

	err := svc.PromoteSync(ctx, key, testBatch(time.Now()))
	gt.Error(t, err)
}

func TestNewRequiresDependencies(t *testing.T) {
	repo := memory.New()
	index, err := semindex.New(&mockLLMClient{}, repo.Memory())
	gt.NoError(t, err).Required()

	_, err = promoter.New(nil, index)
	gt.Error(t, err)

	_, err = promoter.New(&mockLLMClient{}, nil)
	gt.Error(t, err)
}
