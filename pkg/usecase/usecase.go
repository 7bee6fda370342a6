package usecase

import (
	"context"

	"github.com/secmon-lab/mnemosyne/pkg/agent/tool"
	"github.com/secmon-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/service/decision"
	"github.com/secmon-lab/mnemosyne/pkg/service/window"
)

// DefaultRecallTopK is the number of memories retrieved per scope during the
// Recall step.
const DefaultRecallTopK = 5

// DecisionService is the model-backed decision surface the orchestrator
// drives: routing, reply composition after a tool run, and follow-up
// suggestions. Implemented by service/decision.
type DecisionService interface {
	Route(ctx context.Context, in *decision.RouteInput) (*model.RouteDecision, error)
	Respond(ctx context.Context, in *decision.RespondInput) (string, error)
	Suggest(ctx context.Context, in *decision.SuggestInput) ([]string, error)
}

// FileFetcher downloads an inbound attachment blob from the chat platform.
// Implemented by service/slack.
type FileFetcher interface {
	DownloadFile(ctx context.Context, url string) ([]byte, error)
}

// UseCases ties the turn pipeline together: window store, semantic index,
// decision service, tool registry, and the outbound chat interface.
type UseCases struct {
	repo        interfaces.Repository
	chat        interfaces.ChatService
	window      *window.Store
	index       interfaces.SemanticIndex
	decision    DecisionService
	registry    *tool.Registry
	attachments interfaces.AttachmentStore
	files       FileFetcher
	recallTopK  int
	gate        *turnGate
}

type Option func(*UseCases)

// WithFileFetcher enables attachment download for inbound messages.
func WithFileFetcher(files FileFetcher) Option {
	return func(uc *UseCases) {
		uc.files = files
	}
}

// WithRecallTopK overrides the per-scope recall result count.
func WithRecallTopK(k int) Option {
	return func(uc *UseCases) {
		if k > 0 {
			uc.recallTopK = k
		}
	}
}

func New(
	repo interfaces.Repository,
	chat interfaces.ChatService,
	win *window.Store,
	index interfaces.SemanticIndex,
	dec DecisionService,
	registry *tool.Registry,
	attachments interfaces.AttachmentStore,
	opts ...Option,
) *UseCases {
	uc := &UseCases{
		repo:        repo,
		chat:        chat,
		window:      win,
		index:       index,
		decision:    dec,
		registry:    registry,
		attachments: attachments,
		recallTopK:  DefaultRecallTopK,
		gate:        newTurnGate(),
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}
