package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/mnemosyne/pkg/cli/config"
)

func TestLoadAppConfiguration(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{
			name: "valid configuration with persona and tools",
			content: `
[persona]
name = "Athena"
style = "dry, precise"
extra = """
Prefer metric units.
Answer in the language the user writes in.
"""

[tools]
disabled = ["core__generate_image", "core__web_search"]
`,
			wantErr: nil,
		},
		{
			name:    "empty configuration uses defaults",
			content: "# all defaults\n",
			wantErr: nil,
		},
		{
			name: "persona only",
			content: `
[persona]
name = "Mnemosyne"
`,
			wantErr: nil,
		},
		{
			name:    "config file not found",
			content: "", // Won't create the file
			wantErr: config.ErrConfigNotFound,
		},
		{
			name:    "malformed TOML",
			content: "[persona\nname = ",
			wantErr: config.ErrInvalidConfig,
		},
		{
			name: "invalid tool name (uppercase)",
			content: `
[tools]
disabled = ["Core__Recall"]
`,
			wantErr: config.ErrInvalidToolName,
		},
		{
			name: "invalid tool name (empty)",
			content: `
[tools]
disabled = [""]
`,
			wantErr: config.ErrInvalidToolName,
		},
		{
			name: "duplicate tool name",
			content: `
[tools]
disabled = ["core__recall", "core__recall"]
`,
			wantErr: config.ErrDuplicateTool,
		},
		{
			name: "persona exceeding maximum length",
			content: "[persona]\nextra = \"" +
				strings.Repeat("x", config.MaxPersonaLength+1) + "\"\n",
			wantErr: config.ErrPersonaTooLong,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "mnemosyne.toml")
			if tt.content != "" {
				gt.NoError(t, os.WriteFile(path, []byte(tt.content), 0600))
			}

			cfg, err := config.LoadAppConfiguration(path)
			if tt.wantErr == nil {
				gt.NoError(t, err)
				gt.Value(t, cfg).NotNil()
				return
			}

			gt.Error(t, err)
			gt.Bool(t, errors.Is(err, tt.wantErr)).True()
		})
	}
}

func TestLoadAppConfigurationValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mnemosyne.toml")
	content := `
[persona]
name = "Athena"
style = "dry, precise"

[tools]
disabled = ["core__generate_image"]
`
	gt.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := config.LoadAppConfiguration(path)
	gt.NoError(t, err)
	gt.Value(t, cfg.Persona.Name).Equal("Athena")
	gt.Value(t, cfg.Persona.Style).Equal("dry, precise")
	gt.Number(t, len(cfg.Tools.Disabled)).Equal(1)
	gt.Bool(t, cfg.Tools.IsDisabled("core__generate_image")).True()
	gt.Bool(t, cfg.Tools.IsDisabled("core__recall")).False()
}

func TestPersonaPrompt(t *testing.T) {
	t.Run("defaults to Mnemosyne", func(t *testing.T) {
		p := config.Persona{}
		prompt := p.Prompt()
		gt.Bool(t, strings.Contains(prompt, "You are Mnemosyne")).True()
	})

	t.Run("includes name and style", func(t *testing.T) {
		p := config.Persona{Name: "Athena", Style: "dry, precise"}
		prompt := p.Prompt()
		gt.Bool(t, strings.Contains(prompt, "You are Athena")).True()
		gt.Bool(t, strings.Contains(prompt, "dry, precise")).True()
	})

	t.Run("appends trimmed extra instructions", func(t *testing.T) {
		p := config.Persona{Extra: "\nPrefer metric units.\n"}
		prompt := p.Prompt()
		gt.Bool(t, strings.HasSuffix(prompt, "Prefer metric units.")).True()
	})
}
