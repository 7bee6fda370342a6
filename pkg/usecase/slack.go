package usecase

import (
	"context"
	"regexp"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
	"github.com/secmon-lab/mnemosyne/pkg/utils/async"
	"github.com/secmon-lab/mnemosyne/pkg/utils/errutil"
	"github.com/secmon-lab/mnemosyne/pkg/utils/logging"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
)

// mentionPattern matches Slack mention tags like <@U0123ABCDE>
var mentionPattern = regexp.MustCompile(`<@[A-Z0-9]+>`)

// dispatchTurnAsync runs a turn detached from the webhook request. Swapped
// for a synchronous variant in tests.
var dispatchTurnAsync = async.Dispatch

// HandleSlackEvent converts an Events API callback into a Turn and hands it
// to the orchestrator. The HTTP controller has already ACKed the platform;
// the turn runs detached so slow processing never trips Slack's retry
// timeout.
func (uc *UseCases) HandleSlackEvent(ctx context.Context, event *slackevents.EventsAPIEvent) error {
	if event == nil || event.Type != slackevents.CallbackEvent {
		return nil
	}

	botID, err := uc.chat.BotUserID(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to resolve bot user ID")
	}

	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		if ev.User == "" || ev.User == botID || ev.BotID != "" {
			return nil
		}
		key := model.NewServerConversationKey(types.ServerID(event.TeamID), types.ChannelID(ev.Channel))
		text := stripMentions(ev.Text)
		if text == "" {
			return nil
		}
		uc.dispatchTurn(ctx, model.NewTurn(key, types.UserID(ev.User), text, nil))

	case *slackevents.MessageEvent:
		// Channel traffic reaches the assistant through mentions; only
		// direct messages are handled here.
		if ev.ChannelType != "im" {
			return nil
		}
		if ev.User == "" || ev.User == botID || ev.BotID != "" {
			return nil
		}
		if ev.SubType != "" && ev.SubType != "file_share" {
			return nil
		}
		key := model.NewUserConversationKey(types.UserID(ev.User))
		text := stripMentions(ev.Text)
		// slackevents.MessageEvent has no top-level Files field; the
		// library's unmarshaller normalizes the message body, files
		// included, into Message.
		var files []slack.File
		if ev.Message != nil {
			files = ev.Message.Files
		}
		attachments := uc.ingestFiles(ctx, files)
		if text == "" && len(attachments) == 0 {
			return nil
		}
		uc.dispatchTurn(ctx, model.NewTurn(key, types.UserID(ev.User), text, attachments))

	default:
		logging.From(ctx).Debug("ignoring unsupported slack event",
			"type", event.Type, "innerType", event.InnerEvent.Type)
	}

	return nil
}

// HandleSuggestionSelection feeds a clicked follow-up suggestion back into
// the pipeline as if the user had typed it.
func (uc *UseCases) HandleSuggestionSelection(ctx context.Context, key model.ConversationKey, userID types.UserID, text string) error {
	if strings.TrimSpace(text) == "" {
		return goerr.New("suggestion text is empty")
	}
	if err := key.Validate(); err != nil {
		return goerr.Wrap(err, "invalid conversation key for suggestion")
	}

	uc.dispatchTurn(ctx, model.NewTurn(key, userID, strings.TrimSpace(text), nil))
	return nil
}

func (uc *UseCases) dispatchTurn(ctx context.Context, turn *model.Turn) {
	dispatchTurnAsync(ctx, func(ctx context.Context) error {
		return uc.HandleTurn(ctx, turn)
	})
}

// ingestFiles downloads shared files into attachments. An oversized file is
// rejected with a per-file error; a failed download skips the file, not the
// message.
func (uc *UseCases) ingestFiles(ctx context.Context, files []slack.File) []model.Attachment {
	if len(files) == 0 || uc.files == nil {
		return nil
	}

	attachments := make([]model.Attachment, 0, len(files))
	for _, f := range files {
		if f.Size > model.MaxAttachmentSize {
			errutil.Handle(ctx, goerr.Wrap(model.ErrAttachmentTooLarge, "skipping shared file",
				goerr.V("name", f.Name), goerr.V("size", f.Size)), "attachment rejected")
			continue
		}
		data, err := uc.files.DownloadFile(ctx, f.URLPrivate)
		if err != nil {
			errutil.Handle(ctx, err, "failed to download shared file")
			continue
		}
		attachments = append(attachments, model.Attachment{
			Name:     f.Name,
			Kind:     types.MediaKindFromMime(f.Mimetype),
			MimeType: f.Mimetype,
			Data:     data,
		})
	}
	return attachments
}

// stripMentions removes mention tags so the decision sees plain text
func stripMentions(s string) string {
	return strings.TrimSpace(mentionPattern.ReplaceAllString(s, ""))
}
