package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"

	"github.com/secmon-lab/mnemosyne/pkg/agent/tool"
	"github.com/secmon-lab/mnemosyne/pkg/agent/tool/core"
	"github.com/secmon-lab/mnemosyne/pkg/cli/config"
	httpctrl "github.com/secmon-lab/mnemosyne/pkg/controller/http"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/service/decision"
	"github.com/secmon-lab/mnemosyne/pkg/service/promoter"
	"github.com/secmon-lab/mnemosyne/pkg/service/scheduler"
	"github.com/secmon-lab/mnemosyne/pkg/service/semindex"
	"github.com/secmon-lab/mnemosyne/pkg/service/window"
	"github.com/secmon-lab/mnemosyne/pkg/usecase"
	"github.com/secmon-lab/mnemosyne/pkg/utils/errutil"
	"github.com/secmon-lab/mnemosyne/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdServe() *cli.Command {
	var addr string
	var configPath string
	var windowHorizon time.Duration
	var repoCfg config.Repository
	var geminiCfg config.Gemini
	var slackCfg config.Slack
	var storageCfg config.Storage
	var braveCfg config.Brave
	var imagegenCfg config.ImageGen

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("MNEMOSYNE_ADDR"),
			Destination: &addr,
		},
		&cli.StringFlag{
			Name:        "config",
			Usage:       "Path to application configuration file (TOML)",
			Sources:     cli.EnvVars("MNEMOSYNE_CONFIG"),
			Destination: &configPath,
		},
		&cli.DurationFlag{
			Name:        "window-horizon",
			Usage:       "Rolling time horizon of the short-term context window",
			Value:       10 * time.Minute,
			Sources:     cli.EnvVars("MNEMOSYNE_WINDOW_HORIZON"),
			Destination: &windowHorizon,
		},
	}

	// Add shared config flags
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, geminiCfg.Flags()...)
	flags = append(flags, slackCfg.Flags()...)
	flags = append(flags, storageCfg.Flags()...)
	flags = append(flags, braveCfg.Flags()...)
	flags = append(flags, imagegenCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()

			// Load application configuration (persona, tool overrides)
			appCfg := &config.AppConfig{}
			if configPath != "" {
				cfg, err := config.LoadAppConfiguration(configPath)
				if err != nil {
					return goerr.Wrap(err, "failed to load application configuration")
				}
				appCfg = cfg
				logger.Info("Application configuration loaded", "path", configPath)
			}

			// Initialize repository based on backend type
			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer func() {
				if err := repo.Close(); err != nil {
					logger.Error("failed to close repository", "error", err.Error())
				}
			}()

			// The LLM drives routing, summarization, and embeddings; the
			// assistant cannot operate without it.
			llmClient, err := geminiCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize Gemini client")
			}
			if llmClient == nil {
				return goerr.New("gemini-project is required for serve")
			}

			index, err := semindex.New(llmClient, repo.Memory())
			if err != nil {
				return goerr.Wrap(err, "failed to initialize semantic index")
			}

			prom, err := promoter.New(llmClient, index)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize memory promoter")
			}

			win := window.New(
				window.WithHorizon(windowHorizon),
				window.WithEvictHandler(func(ctx context.Context, key model.ConversationKey, evicted []model.WindowEntry) {
					if err := prom.Promote(ctx, key, evicted); err != nil {
						errutil.Handle(ctx, err, "failed to promote evicted entries")
					}
				}),
			)

			chatSvc, err := slackCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to initialize Slack service")
			}
			logger.Info("Slack chat service enabled", "slack", slackCfg)

			attachments, err := storageCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize attachment storage")
			}

			// Deferred task scheduler delivering reminders through chat
			sched := scheduler.New(repo.Timer(), chatSvc.SendNotification)
			if err := sched.Start(ctx); err != nil {
				return goerr.Wrap(err, "failed to start scheduler")
			}

			searchClient, err := braveCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to initialize Brave search client")
			}
			if searchClient != nil {
				logger.Info("Web search tool enabled")
			} else {
				logger.Info("Brave API key not configured, web search tool disabled")
			}

			imageGen, err := imagegenCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to initialize image generation client")
			}
			if imageGen != nil {
				logger.Info("Image generation tool enabled")
			} else {
				logger.Info("Image generation API key not configured, image tool disabled")
			}

			// Build the tool catalog, honoring operator overrides
			registry := tool.NewRegistry()
			var tools []gollem.Tool
			for _, tl := range core.New(sched, index, chatSvc, searchClient, imageGen) {
				if appCfg.Tools.IsDisabled(tl.Spec().Name) {
					logger.Info("Tool disabled by configuration", "tool", tl.Spec().Name)
					continue
				}
				tools = append(tools, tl)
			}
			if err := registry.Register(tools...); err != nil {
				return goerr.Wrap(err, "failed to register tools")
			}

			dec := decision.New(llmClient, decision.WithPersona(appCfg.Persona.Prompt()))

			uc := usecase.New(repo, chatSvc, win, index, dec, registry, attachments,
				usecase.WithFileFetcher(chatSvc),
			)

			webhook := httpctrl.NewSlackWebhookHandler(uc)
			interaction := httpctrl.NewSlackInteractionHandler(uc)
			server := &http.Server{
				Addr:              addr,
				Handler:           httpctrl.New(webhook, interaction, slackCfg.SigningSecret()),
				ReadHeaderTimeout: 30 * time.Second,
			}

			// Setup signal handling for graceful shutdown
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			// Start server in goroutine
			errCh := make(chan error, 1)
			go func() {
				logger.Info("Starting HTTP server", "addr", addr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			// Wait for shutdown signal or server error
			select {
			case err := <-errCh:
				sched.Stop()
				return err
			case sig := <-sigCh:
				logger.Info("Received shutdown signal", "signal", sig)

				// Stop the scheduler first so no notification races shutdown
				sched.Stop()

				// Create shutdown context with timeout
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				// Attempt graceful shutdown
				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}

				logger.Info("Server shutdown completed")
				return nil
			}
		},
	}
}
