package slack

import (
	"bytes"
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
	"github.com/slack-go/slack"
)

// Service posts assistant output to Slack. Conversation keys resolve to the
// channel ID directly for server scope, or through an opened DM conversation
// for user scope. DM channel IDs are stable, so they are cached for the
// lifetime of the instance, as is the bot's own user ID.
type Service struct {
	api *slack.Client

	mu    sync.RWMutex
	dms   map[types.UserID]string
	botID string
}

// New creates a new Slack service with the provided bot token
func New(token string) (*Service, error) {
	if token == "" {
		return nil, goerr.New("Slack bot token is required")
	}

	return &Service{
		api: slack.New(token),
		dms: make(map[types.UserID]string),
	}, nil
}

// SendMessage posts a response into the conversation. Suggestions, when
// present, are rendered as Block Kit buttons under the text.
func (s *Service) SendMessage(ctx context.Context, key model.ConversationKey, text string, suggestions []string) error {
	channelID, err := s.resolveChannel(ctx, key)
	if err != nil {
		return err
	}

	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if len(suggestions) > 0 {
		opts = append(opts, slack.MsgOptionBlocks(buildMessageBlocks(text, suggestions)...))
	}

	if _, _, err := s.api.PostMessageContext(ctx, channelID, opts...); err != nil {
		return goerr.Wrap(err, "failed to post message", goerr.V("conversation", key.String()))
	}
	return nil
}

// SendNotification posts a timer-triggered notification as plain text.
func (s *Service) SendNotification(ctx context.Context, key model.ConversationKey, text string) error {
	channelID, err := s.resolveChannel(ctx, key)
	if err != nil {
		return err
	}

	if _, _, err := s.api.PostMessageContext(ctx, channelID, slack.MsgOptionText(text, false)); err != nil {
		return goerr.Wrap(err, "failed to post notification", goerr.V("conversation", key.String()))
	}
	return nil
}

// PostImage uploads an image file into the conversation.
func (s *Service) PostImage(ctx context.Context, key model.ConversationKey, name string, data []byte) error {
	channelID, err := s.resolveChannel(ctx, key)
	if err != nil {
		return err
	}

	_, err = s.api.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
		Channel:  channelID,
		Filename: name,
		FileSize: len(data),
		Reader:   bytes.NewReader(data),
	})
	if err != nil {
		return goerr.Wrap(err, "failed to upload image",
			goerr.V("conversation", key.String()),
			goerr.V("filename", name))
	}
	return nil
}

// DownloadFile fetches a shared file by its private URL. The underlying
// client sends the bot token, which private file URLs require.
func (s *Service) DownloadFile(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, goerr.New("file URL is empty")
	}

	var buf bytes.Buffer
	if err := s.api.GetFileContext(ctx, url, &buf); err != nil {
		return nil, goerr.Wrap(err, "failed to download file", goerr.V("url", url))
	}
	return buf.Bytes(), nil
}

// BotUserID returns the bot's own user ID, cached after the first call.
func (s *Service) BotUserID(ctx context.Context) (string, error) {
	s.mu.RLock()
	botID := s.botID
	s.mu.RUnlock()
	if botID != "" {
		return botID, nil
	}

	resp, err := s.api.AuthTestContext(ctx)
	if err != nil {
		return "", goerr.Wrap(err, "failed to call auth.test")
	}

	s.mu.Lock()
	s.botID = resp.UserID
	s.mu.Unlock()

	return resp.UserID, nil
}

// resolveChannel maps a conversation key to the Slack channel to post into.
func (s *Service) resolveChannel(ctx context.Context, key model.ConversationKey) (string, error) {
	if err := key.Validate(); err != nil {
		return "", goerr.Wrap(err, "invalid conversation key")
	}

	if key.Scope() == types.ScopeServer {
		return key.ChannelID().String(), nil
	}
	return s.dmChannel(ctx, key.UserID())
}

// dmChannel opens the DM conversation with a user, or returns the cached one.
func (s *Service) dmChannel(ctx context.Context, userID types.UserID) (string, error) {
	s.mu.RLock()
	if id, ok := s.dms[userID]; ok {
		s.mu.RUnlock()
		return id, nil
	}
	s.mu.RUnlock()

	channel, _, _, err := s.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{
		Users:    []string{userID.String()},
		ReturnIM: true,
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to open DM conversation", goerr.V("user_id", userID))
	}

	s.mu.Lock()
	s.dms[userID] = channel.ID
	s.mu.Unlock()

	return channel.ID, nil
}
