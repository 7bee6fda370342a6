package config

import (
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemosyne/pkg/service/brave"
	"github.com/urfave/cli/v3"
)

// Brave holds CLI flags for the Brave web search client
type Brave struct {
	apiKey string
}

// Flags returns CLI flags for Brave search configuration
func (b *Brave) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "brave-api-key",
			Usage:       "Brave Search API key (web search tool disabled when empty)",
			Category:    "Tools",
			Sources:     cli.EnvVars("MNEMOSYNE_BRAVE_API_KEY"),
			Destination: &b.apiKey,
		},
	}
}

func (b Brave) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("api-key.len", len(b.apiKey)),
	)
}

// Configure creates the Brave search client. Returns nil if no API key is
// configured; the web search tool is withheld from the registry in that case.
func (b *Brave) Configure() (*brave.Client, error) {
	if b.apiKey == "" {
		return nil, nil
	}

	client, err := brave.New(b.apiKey)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create Brave search client")
	}

	return client, nil
}
