package cli

import (
	"context"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemosyne/pkg/cli/config"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
	"github.com/secmon-lab/mnemosyne/pkg/service/window"
	"github.com/secmon-lab/mnemosyne/pkg/usecase"
	"github.com/secmon-lab/mnemosyne/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdClear() *cli.Command {
	var serverID string
	var channelID string
	var userID string
	var repoCfg config.Repository

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "server",
			Usage:       "Server (workspace) ID of the conversation to clear",
			Destination: &serverID,
		},
		&cli.StringFlag{
			Name:        "channel",
			Usage:       "Channel ID of the conversation to clear (requires --server)",
			Destination: &channelID,
		},
		&cli.StringFlag{
			Name:        "user",
			Usage:       "User ID of the direct-message conversation to clear",
			Destination: &userID,
		},
	}
	flags = append(flags, repoCfg.Flags()...)

	return &cli.Command{
		Name:  "clear",
		Usage: "Delete all long-term memory of one conversation",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			var key model.ConversationKey
			switch {
			case userID != "":
				if serverID != "" || channelID != "" {
					return goerr.New("--user cannot be combined with --server/--channel")
				}
				key = model.NewUserConversationKey(types.UserID(userID))
			case serverID != "" && channelID != "":
				key = model.NewServerConversationKey(types.ServerID(serverID), types.ChannelID(channelID))
			default:
				return goerr.New("either --user or both --server and --channel are required")
			}

			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer func() {
				if err := repo.Close(); err != nil {
					logging.Default().Error("failed to close repository", "error", err.Error())
				}
			}()

			// Only the repository and window are touched by a clear; the
			// remaining collaborators stay unset.
			uc := usecase.New(repo, nil, window.New(), nil, nil, nil, nil)

			deleted, err := uc.ClearMemory(ctx, key)
			if err != nil {
				return goerr.Wrap(err, "failed to clear conversation memory")
			}

			color.New(color.FgGreen).Printf("✓ cleared %s: %d memory record(s) deleted\n", key.String(), deleted)
			return nil
		},
	}
}
