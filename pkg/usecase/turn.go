package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemosyne/pkg/agent/tool"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
	"github.com/secmon-lab/mnemosyne/pkg/service/decision"
	"github.com/secmon-lab/mnemosyne/pkg/utils/errutil"
	"github.com/secmon-lab/mnemosyne/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

// turnState enumerates the orchestrator's states. Each transition is a
// method returning the next state; HandleTurn loops until the turn reaches
// Done or Error.
type turnState int

const (
	stateStart turnState = iota
	stateFetchContext
	stateRecall
	stateRoute
	stateDirectResponse
	stateDispatch
	stateFinalize
	stateDone
	stateError
)

func (s turnState) String() string {
	switch s {
	case stateStart:
		return "start"
	case stateFetchContext:
		return "fetch_context"
	case stateRecall:
		return "recall"
	case stateRoute:
		return "route"
	case stateDirectResponse:
		return "direct_response"
	case stateDispatch:
		return "dispatch"
	case stateFinalize:
		return "finalize"
	case stateDone:
		return "done"
	case stateError:
		return "error"
	default:
		return fmt.Sprintf("turnState(%d)", int(s))
	}
}

const (
	clarificationMessage = "Sorry, I couldn't quite work out what you'd like me to do. Could you say that another way?"
	apologyMessage       = "Sorry, something went wrong on my side and I couldn't finish handling that. Please try again in a moment."
)

// turnRun is the working context of one pass through the state machine
type turnRun struct {
	turn     *model.Turn
	userText string // turn text plus attachment descriptions
	window   []model.WindowEntry
	recalled []*model.ScoredRecord
	decision *model.RouteDecision
	result   *model.ToolResult
	response string
	fromTool string // set when the response came out of a tool dispatch
	failure  error
	created  bool // turn record persisted
}

// HandleTurn drives one inbound message through the state machine. Turns of
// the same conversation run strictly one at a time in gate acquisition
// order; different conversations run in parallel.
func (uc *UseCases) HandleTurn(ctx context.Context, turn *model.Turn) error {
	if turn == nil {
		return goerr.New("turn is nil")
	}
	if err := turn.ConversationKey.Validate(); err != nil {
		return goerr.Wrap(err, "turn has invalid conversation key", goerr.V("turn_id", turn.ID))
	}

	release := uc.gate.lock(turn.ConversationKey)
	defer release()

	logger := logging.From(ctx)
	run := &turnRun{turn: turn, userText: turn.Text}

	state := stateStart
	for {
		logger.Debug("turn state", "turn_id", turn.ID.String(), "state", state.String())

		switch state {
		case stateStart:
			state = uc.turnStart(ctx, run)
		case stateFetchContext:
			state = uc.turnFetchContext(ctx, run)
		case stateRecall:
			state = uc.turnRecall(ctx, run)
		case stateRoute:
			state = uc.turnRoute(ctx, run)
		case stateDirectResponse:
			state = uc.turnDirectResponse(ctx, run)
		case stateDispatch:
			state = uc.turnDispatch(ctx, run)
		case stateFinalize:
			state = uc.turnFinalize(ctx, run)
		case stateDone:
			logger.Info("turn completed",
				"turn_id", turn.ID.String(),
				"conversation", turn.ConversationKey.String(),
				"tool", run.fromTool,
			)
			return nil
		case stateError:
			return uc.turnError(ctx, run)
		default:
			return goerr.New("orchestrator reached unknown state", goerr.V("state", int(state)))
		}
	}
}

// turnStart persists the turn record. Losing the record means losing the
// audit trail of the turn, so failure here is fatal.
func (uc *UseCases) turnStart(ctx context.Context, run *turnRun) turnState {
	if err := uc.repo.Turn().Create(ctx, run.turn); err != nil {
		run.failure = goerr.Wrap(err, "failed to persist turn record", goerr.V("turn_id", run.turn.ID))
		return stateError
	}
	run.created = true
	return stateFetchContext
}

// turnFetchContext stores inbound attachments and loads the short-term
// window. Attachment descriptions fold into the routing input so the
// decision sees that files arrived; oversized blobs are dropped with a
// contained per-attachment error.
func (uc *UseCases) turnFetchContext(ctx context.Context, run *turnRun) turnState {
	var notes []string
	for i := range run.turn.Attachments {
		att := &run.turn.Attachments[i]

		if len(att.Data) > model.MaxAttachmentSize {
			errutil.Handle(ctx, goerr.Wrap(model.ErrAttachmentTooLarge, "dropping attachment",
				goerr.V("name", att.Name), goerr.V("size", len(att.Data))), "attachment rejected")
			att.Data = nil
			continue
		}

		if uc.attachments != nil && len(att.Data) > 0 {
			ref, err := uc.attachments.Put(ctx, att.Name, att.MimeType, att.Data)
			if err != nil {
				errutil.Handle(ctx, err, "failed to store attachment")
			} else {
				att.StorageRef = ref
				att.Data = nil
			}
		}
		notes = append(notes, fmt.Sprintf("[attached file: %s (%s)]", att.Name, att.MimeType))
	}
	if len(notes) > 0 {
		run.userText = strings.TrimSpace(run.userText + "\n" + strings.Join(notes, "\n"))
	}

	run.window = uc.window.Read(ctx, run.turn.ConversationKey)
	return stateRecall
}

// turnRecall queries long-term memory for the turn. Channel conversations
// query the server scope and the author's personal scope in parallel. Any
// recall failure degrades to an empty result set so the turn proceeds
// without memory.
func (uc *UseCases) turnRecall(ctx context.Context, run *turnRun) turnState {
	key := run.turn.ConversationKey

	var scoped, personal []*model.ScoredRecord
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		recs, err := uc.index.Query(egCtx, key.Scope(), key.ScopeOwnerID(), run.userText, uc.recallTopK)
		if err != nil {
			return err
		}
		scoped = recs
		return nil
	})
	if key.Scope() == types.ScopeServer && run.turn.AuthorID != "" {
		eg.Go(func() error {
			recs, err := uc.index.Query(egCtx, types.ScopeUser, run.turn.AuthorID.String(), run.userText, uc.recallTopK)
			if err != nil {
				return err
			}
			personal = recs
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		logging.From(ctx).Warn("memory recall degraded to empty",
			"turn_id", run.turn.ID.String(), "error", err.Error())
		run.recalled = nil
		return stateRoute
	}

	run.recalled = mergeScored(scoped, personal, uc.recallTopK)
	return stateRoute
}

// turnRoute asks the decision service how to handle the turn. An ambiguous
// decision is recovered locally with a clarification request; exhausted
// upstream retries end the turn.
func (uc *UseCases) turnRoute(ctx context.Context, run *turnRun) turnState {
	dec, err := uc.decision.Route(ctx, &decision.RouteInput{
		UserText: run.userText,
		Window:   run.window,
		Recalled: run.recalled,
		Tools:    uc.registry.Specs(),
	})
	switch {
	case err == nil:
	case errors.Is(err, model.ErrDecisionAmbiguous):
		logging.From(ctx).Warn("ambiguous routing decision, asking for clarification",
			"turn_id", run.turn.ID.String())
		run.response = clarificationMessage
		return stateFinalize
	default:
		run.failure = goerr.Wrap(err, "routing decision failed", goerr.V("turn_id", run.turn.ID))
		return stateError
	}

	run.decision = dec
	if dec.ToolCall != nil {
		return stateDispatch
	}
	return stateDirectResponse
}

func (uc *UseCases) turnDirectResponse(ctx context.Context, run *turnRun) turnState {
	run.response = run.decision.Response
	return stateFinalize
}

// turnDispatch runs the decided tool call. A rejected call (unknown tool,
// invalid arguments) becomes a clarification request; an execution failure
// stays contained in the result and is explained during finalization. A
// successful self-contained result short-circuits the reply composition.
func (uc *UseCases) turnDispatch(ctx context.Context, run *turnRun) turnState {
	call := run.decision.ToolCall

	toolCtx := tool.WithConversation(ctx, run.turn.ConversationKey)
	if run.turn.AuthorID != "" {
		toolCtx = tool.WithAuthor(toolCtx, run.turn.AuthorID)
	}
	toolCtx = tool.WithUpdate(toolCtx, func(ctx context.Context, msg string) {
		logging.From(ctx).Debug("tool progress", "tool", call.Name, "message", msg)
	})

	result, err := uc.registry.Dispatch(toolCtx, call)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrUnknownTool), errors.Is(err, model.ErrInvalidArguments):
		logging.From(ctx).Warn("tool call rejected, asking for clarification",
			"turn_id", run.turn.ID.String(), "tool", call.Name, "error", err.Error())
		run.response = clarificationMessage
		return stateFinalize
	default:
		run.failure = goerr.Wrap(err, "tool dispatch failed", goerr.V("tool", call.Name))
		return stateError
	}

	run.result = result
	run.fromTool = call.Name

	if result.Success && result.SelfContained {
		run.response = result.Message()
		if run.response == "" {
			run.response = "Done."
		}
	}
	return stateFinalize
}

// turnFinalize produces the outgoing message, sends it with optional
// follow-up suggestions, appends the exchange to the window (user entry
// first, then the response entry), and marks the turn completed.
func (uc *UseCases) turnFinalize(ctx context.Context, run *turnRun) turnState {
	if run.response == "" && run.result != nil {
		response, err := uc.decision.Respond(ctx, &decision.RespondInput{
			UserText: run.userText,
			Window:   run.window,
			Result:   run.result,
		})
		if err != nil {
			run.failure = goerr.Wrap(err, "failed to compose reply from tool result",
				goerr.V("tool", run.result.Name))
			return stateError
		}
		run.response = response
	}
	if run.response == "" {
		run.failure = goerr.New("turn finished without a response", goerr.V("turn_id", run.turn.ID))
		return stateError
	}

	suggestions := uc.suggestFollowUps(ctx, run)

	if err := uc.chat.SendMessage(ctx, run.turn.ConversationKey, run.response, suggestions); err != nil {
		run.failure = goerr.Wrap(err, "failed to send response", goerr.V("turn_id", run.turn.ID))
		return stateError
	}

	uc.window.Append(ctx, run.turn.ConversationKey, model.NewUserEntry(run.userText, run.turn.CreatedAt))
	if run.fromTool != "" {
		uc.window.Append(ctx, run.turn.ConversationKey, model.NewToolEntry(run.fromTool, run.response, time.Now()))
	} else {
		uc.window.Append(ctx, run.turn.ConversationKey, model.NewAssistantEntry(run.response, time.Now()))
	}

	if err := uc.repo.Turn().UpdateStatus(ctx, run.turn.ID, types.TurnStatusCompleted); err != nil {
		errutil.Handle(ctx, err, "failed to mark turn completed")
	}

	return stateDone
}

// turnError finishes a failed turn: the user gets an apology instead of
// silence, the window keeps the user's own message so context is not lost,
// and no assistant entry is appended.
func (uc *UseCases) turnError(ctx context.Context, run *turnRun) error {
	errutil.Handle(ctx, run.failure, "turn failed")

	if err := uc.chat.SendMessage(ctx, run.turn.ConversationKey, apologyMessage, nil); err != nil {
		errutil.Handle(ctx, err, "failed to send failure message")
	}

	uc.window.Append(ctx, run.turn.ConversationKey, model.NewUserEntry(run.userText, run.turn.CreatedAt))

	if run.created {
		if err := uc.repo.Turn().UpdateStatus(ctx, run.turn.ID, types.TurnStatusFailed); err != nil {
			errutil.Handle(ctx, err, "failed to mark turn failed")
		}
	}

	return run.failure
}

// suggestFollowUps asks for follow-up suggestions when the response is long
// enough to warrant them. Failures degrade to no suggestions; the exchange
// itself never blocks on this call.
func (uc *UseCases) suggestFollowUps(ctx context.Context, run *turnRun) []string {
	if utf8.RuneCountInString(run.response) < model.MinResponseLengthForSuggestions {
		return nil
	}

	suggestions, err := uc.decision.Suggest(ctx, &decision.SuggestInput{
		UserText: run.userText,
		Response: run.response,
		Window:   run.window,
	})
	if err != nil {
		logging.From(ctx).Warn("follow-up suggestions skipped",
			"turn_id", run.turn.ID.String(), "error", err.Error())
		return nil
	}
	return suggestions
}

// mergeScored combines two recall result sets by descending score, keeping
// at most limit records.
func mergeScored(a, b []*model.ScoredRecord, limit int) []*model.ScoredRecord {
	merged := make([]*model.ScoredRecord, 0, len(a)+len(b))
	merged = append(merged, a...)
	merged = append(merged, b...)
	sort.Slice(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}
