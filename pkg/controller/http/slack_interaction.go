package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
	slacksvc "github.com/secmon-lab/mnemosyne/pkg/service/slack"
	"github.com/secmon-lab/mnemosyne/pkg/usecase"
	"github.com/secmon-lab/mnemosyne/pkg/utils/errutil"
	"github.com/secmon-lab/mnemosyne/pkg/utils/logging"
	"github.com/slack-go/slack"
)

// SlackInteractionHandler handles Slack interactive component payloads. The
// only interactive elements the assistant posts are follow-up suggestion
// buttons, whose value carries the suggestion text verbatim.
type SlackInteractionHandler struct {
	uc *usecase.UseCases
}

// NewSlackInteractionHandler creates a new Slack interaction handler
func NewSlackInteractionHandler(uc *usecase.UseCases) *SlackInteractionHandler {
	return &SlackInteractionHandler{
		uc: uc,
	}
}

// ServeHTTP handles Slack interaction webhook requests. A clicked suggestion
// becomes a new inbound turn, as if the user had typed the suggestion.
func (h *SlackInteractionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Slack sends interaction payloads as application/x-www-form-urlencoded
	// with a "payload" field containing JSON
	payload := r.FormValue("payload")
	if payload == "" {
		errutil.HandleHTTP(ctx, w, goerr.New("missing payload field in interaction request"), http.StatusBadRequest)
		return
	}

	var callback slack.InteractionCallback
	if err := json.Unmarshal([]byte(payload), &callback); err != nil {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to parse interaction payload"), http.StatusBadRequest)
		return
	}

	if callback.Type != slack.InteractionTypeBlockActions {
		w.WriteHeader(http.StatusOK)
		return
	}

	for _, action := range callback.ActionCallback.BlockActions {
		if !slacksvc.IsSuggestionAction(action.ActionID) {
			continue
		}

		key := conversationKeyFromCallback(&callback)
		userID := types.UserID(callback.User.ID)
		if err := h.uc.HandleSuggestionSelection(ctx, key, userID, action.Value); err != nil {
			logging.From(ctx).Error("failed to handle suggestion selection",
				"error", err,
				"action_id", action.ActionID,
				"conversation", key.String(),
				"user_id", userID,
			)
		}
	}

	w.WriteHeader(http.StatusOK)
}

// conversationKeyFromCallback maps the interaction source back to a
// conversation key. Slack direct message channel IDs start with "D";
// everything else is a server channel.
func conversationKeyFromCallback(callback *slack.InteractionCallback) model.ConversationKey {
	if strings.HasPrefix(callback.Channel.ID, "D") {
		return model.NewUserConversationKey(types.UserID(callback.User.ID))
	}
	return model.NewServerConversationKey(
		types.ServerID(callback.Team.ID),
		types.ChannelID(callback.Channel.ID),
	)
}
