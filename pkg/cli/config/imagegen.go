package config

import (
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/secmon-lab/mnemosyne/pkg/service/imagegen"
	"github.com/urfave/cli/v3"
)

// ImageGen holds CLI flags for the image generation client
type ImageGen struct {
	apiKey string
	model  string
}

// Flags returns CLI flags for image generation configuration
func (g *ImageGen) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "imagegen-api-key",
			Usage:       "Gemini API key for image generation (tool disabled when empty)",
			Category:    "Tools",
			Sources:     cli.EnvVars("MNEMOSYNE_IMAGEGEN_API_KEY"),
			Destination: &g.apiKey,
		},
		&cli.StringFlag{
			Name:        "imagegen-model",
			Usage:       "Image generation model name",
			Category:    "Tools",
			Sources:     cli.EnvVars("MNEMOSYNE_IMAGEGEN_MODEL"),
			Destination: &g.model,
		},
	}
}

func (g ImageGen) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("api-key.len", len(g.apiKey)),
		slog.String("model", g.model),
	)
}

// Configure creates the image generation client. Returns nil if no API key
// is configured; the image tool is withheld from the registry in that case.
func (g *ImageGen) Configure() (interfaces.ImageGenerator, error) {
	if g.apiKey == "" {
		return nil, nil
	}

	var opts []imagegen.Option
	if g.model != "" {
		opts = append(opts, imagegen.WithModel(g.model))
	}

	gen, err := imagegen.NewGemini(g.apiKey, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create image generation client")
	}

	return gen, nil
}
