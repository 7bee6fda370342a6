package cli

import (
	"context"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemosyne/pkg/cli/config"
	"github.com/urfave/cli/v3"
)

func cmdValidate() *cli.Command {
	var configPath string

	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate the application configuration file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Usage:       "Path to application configuration file (TOML)",
				Required:    true,
				Sources:     cli.EnvVars("MNEMOSYNE_CONFIG"),
				Destination: &configPath,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := config.LoadAppConfiguration(configPath)
			if err != nil {
				color.New(color.FgRed).Printf("✗ %s\n", configPath)
				return goerr.Wrap(err, "configuration validation failed")
			}

			color.New(color.FgGreen).Printf("✓ %s\n", configPath)

			name := cfg.Persona.Name
			if name == "" {
				name = "Mnemosyne (default)"
			}
			color.New(color.FgCyan).Printf("  persona: %s\n", name)
			if len(cfg.Tools.Disabled) > 0 {
				color.New(color.FgYellow).Printf("  disabled tools: %v\n", cfg.Tools.Disabled)
			}

			return nil
		},
	}
}
