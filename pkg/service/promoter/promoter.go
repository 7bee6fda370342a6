package promoter

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/utils/async"
	"github.com/secmon-lab/mnemosyne/pkg/utils/logging"
)

//go:embed prompt/summarize.md
var summarizeSystemPrompt string

// DefaultMinTranscriptLength is the minimum transcript length (in runes)
// worth promoting. Shorter batches are discarded by policy.
const DefaultMinTranscriptLength = 40

const defaultTimeout = 60 * time.Second

// Service moves evicted window entries into long-term memory. Promote
// queues synchronously and summarizes asynchronously; a failed or
// interrupted promotion can be retried with the same batch because the
// memory ID is derived from the batch's conversation key and time range.
type Service struct {
	llmClient gollem.LLMClient
	index     interfaces.SemanticIndex
	minLength int
	timeout   time.Duration
}

// Option is a functional option for Service configuration
type Option func(*Service)

// WithMinTranscriptLength overrides the discard-by-policy threshold
func WithMinTranscriptLength(n int) Option {
	return func(s *Service) {
		s.minLength = n
	}
}

// WithTimeout bounds one summarization+indexing pass
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.timeout = d
	}
}

// New creates a memory promoter
func New(llmClient gollem.LLMClient, index interfaces.SemanticIndex, opts ...Option) (*Service, error) {
	if llmClient == nil {
		return nil, goerr.New("LLM client is required")
	}
	if index == nil {
		return nil, goerr.New("semantic index is required")
	}

	s := &Service{
		llmClient: llmClient,
		index:     index,
		minLength: DefaultMinTranscriptLength,
		timeout:   defaultTimeout,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Promote queues evicted entries for asynchronous summarization and
// indexing. It never blocks on the LLM: the heavy work runs detached, and
// its failures are logged rather than returned.
func (s *Service) Promote(ctx context.Context, key model.ConversationKey, evicted []model.WindowEntry) error {
	if len(evicted) == 0 {
		return nil
	}
	if err := key.Validate(); err != nil {
		return goerr.Wrap(err, "cannot promote entries for invalid conversation key")
	}

	async.Dispatch(ctx, func(ctx context.Context) error {
		return s.promote(ctx, key, evicted)
	})

	return nil
}

// promote is one full promotion pass: summarize, embed, persist, index
func (s *Service) promote(ctx context.Context, key model.ConversationKey, evicted []model.WindowEntry) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	logger := logging.From(ctx)

	transcript := renderTranscript(evicted)
	if utf8.RuneCountInString(transcript) < s.minLength {
		logger.Debug("discarding evicted batch below promotion threshold",
			"conversation", key.String(), "entries", len(evicted), "length", utf8.RuneCountInString(transcript))
		return nil
	}

	oldest, newest := batchRange(evicted)

	summary, err := s.summarize(ctx, transcript)
	if err != nil {
		return goerr.Wrap(err, "failed to summarize evicted window batch",
			goerr.V("conversation", key.String()), goerr.V("entries", len(evicted)))
	}

	record := &model.MemoryRecord{
		ID:              model.NewMemoryID(key, oldest, newest),
		ConversationKey: key,
		Scope:           key.Scope(),
		OwnerID:         key.ScopeOwnerID(),
		Payload: map[string]string{
			"topic":    summary.Topic,
			"summary":  summary.Summary,
			"entities": strings.Join(summary.Entities, ", "),
			"keywords": strings.Join(summary.Keywords, ", "),
		},
		CreatedAt: time.Now().UTC(),
	}

	if _, err := s.index.Insert(ctx, record); err != nil {
		return goerr.Wrap(err, "failed to index promoted memory",
			goerr.V("conversation", key.String()), goerr.V("memoryID", record.ID))
	}

	logger.Info("promoted evicted window batch to long-term memory",
		"conversation", key.String(),
		"memory_id", record.ID,
		"entries", len(evicted),
		"topic", summary.Topic,
	)

	return nil
}

// batchSummary is the JSON structure for the summarization output
type batchSummary struct {
	Topic    string   `json:"topic"`
	Summary  string   `json:"summary"`
	Entities []string `json:"entities"`
	Keywords []string `json:"keywords"`
}

func (s *Service) summarize(ctx context.Context, transcript string) (*batchSummary, error) {
	schema := &gollem.Parameter{
		Title:       "WindowBatchSummary",
		Description: "Structured summary of an evicted conversation batch",
		Type:        gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"topic": {
				Type:        gollem.TypeString,
				Description: "Short noun phrase naming what the exchange was about",
				Required:    true,
			},
			"summary": {
				Type:        gollem.TypeString,
				Description: "2-4 sentences capturing the durable substance of the exchange",
				Required:    true,
			},
			"entities": {
				Type:        gollem.TypeArray,
				Description: "Proper nouns and identifiers mentioned in the exchange",
				Items:       &gollem.Parameter{Type: gollem.TypeString},
				Required:    true,
			},
			"keywords": {
				Type:        gollem.TypeArray,
				Description: "Search terms a later conversation would use to find this memory",
				Items:       &gollem.Parameter{Type: gollem.TypeString},
				Required:    true,
			},
		},
	}

	session, err := s.llmClient.NewSession(ctx,
		gollem.WithSessionContentType(gollem.ContentTypeJSON),
		gollem.WithSessionResponseSchema(schema),
		gollem.WithSessionSystemPrompt(summarizeSystemPrompt),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create summarization session")
	}

	resp, err := session.GenerateContent(ctx, gollem.Text(transcript))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate batch summary")
	}
	if len(resp.Texts) == 0 {
		return nil, goerr.New("summarization returned empty result")
	}

	var summary batchSummary
	if err := json.Unmarshal([]byte(resp.Texts[0]), &summary); err != nil {
		return nil, goerr.Wrap(err, "failed to parse batch summary JSON", goerr.V("response", resp.Texts[0]))
	}

	return &summary, nil
}

// renderTranscript flattens window entries into role-prefixed lines
func renderTranscript(entries []model.WindowEntry) string {
	var sb strings.Builder
	for _, e := range entries {
		if e.ToolName != "" {
			fmt.Fprintf(&sb, "[%s via %s] %s\n", e.Role, e.ToolName, e.Content)
			continue
		}
		fmt.Fprintf(&sb, "[%s] %s\n", e.Role, e.Content)
	}
	return sb.String()
}

// batchRange returns the time range the batch covers. Entries arrive in
// insertion order, but scan anyway so a reordered batch still yields the
// same deduplication ID.
func batchRange(entries []model.WindowEntry) (time.Time, time.Time) {
	oldest, newest := entries[0].CreatedAt, entries[0].CreatedAt
	for _, e := range entries[1:] {
		if e.CreatedAt.Before(oldest) {
			oldest = e.CreatedAt
		}
		if e.CreatedAt.After(newest) {
			newest = e.CreatedAt
		}
	}
	return oldest, newest
}
