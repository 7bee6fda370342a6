package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
)

// MaxPersonaLength bounds the composed persona text. The persona is embedded
// into every routing and response prompt, so an oversized persona silently
// inflates every LLM call.
const MaxPersonaLength = 4096

// toolNamePattern matches registered tool names such as "core__reminder".
var toolNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Persona describes the assistant's presented identity. All fields are
// optional; Prompt composes them into the instruction text handed to the
// decision service.
type Persona struct {
	Name  string `toml:"name"`
	Style string `toml:"style"`
	Extra string `toml:"extra"`
}

// Prompt returns the persona instruction text for LLM prompts.
func (p *Persona) Prompt() string {
	name := p.Name
	if name == "" {
		name = "Mnemosyne"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a conversational assistant.", name)
	if p.Style != "" {
		fmt.Fprintf(&b, " Tone and style: %s.", p.Style)
	}
	if p.Extra != "" {
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(p.Extra))
	}

	return b.String()
}

// Tools holds operator overrides for the tool catalog.
type Tools struct {
	// Disabled lists tool names to withhold from the registry at startup.
	Disabled []string `toml:"disabled"`
}

// IsDisabled reports whether the named tool is disabled by configuration.
func (t *Tools) IsDisabled(name string) bool {
	for _, d := range t.Disabled {
		if d == name {
			return true
		}
	}
	return false
}

// AppConfig is the application configuration loaded from a TOML file. It
// carries settings that do not fit CLI flags: the persona text and tool
// catalog overrides.
type AppConfig struct {
	Persona Persona `toml:"persona"`
	Tools   Tools   `toml:"tools"`
}

// Validate checks the configuration for consistency
func (c *AppConfig) Validate() error {
	if len(c.Persona.Prompt()) > MaxPersonaLength {
		return goerr.Wrap(ErrPersonaTooLong, "persona",
			goerr.V("length", len(c.Persona.Prompt())),
			goerr.V("max", MaxPersonaLength))
	}

	seen := make(map[string]bool)
	for i, name := range c.Tools.Disabled {
		if !toolNamePattern.MatchString(name) {
			return goerr.Wrap(ErrInvalidToolName, "tools.disabled",
				goerr.V(ToolNameKey, name),
				goerr.V(ToolIndexKey, i))
		}
		if seen[name] {
			return goerr.Wrap(ErrDuplicateTool, "tools.disabled",
				goerr.V(ToolNameKey, name),
				goerr.V(ToolIndexKey, i))
		}
		seen[name] = true
	}

	return nil
}

// LoadAppConfiguration loads and validates an application configuration from
// a TOML file.
func LoadAppConfiguration(path string) (*AppConfig, error) {
	// #nosec G304 - path is expected to be provided by CLI argument
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, goerr.Wrap(ErrConfigNotFound, "reading configuration file",
				goerr.V(ConfigPathKey, path))
		}
		return nil, goerr.Wrap(err, "failed to read configuration file",
			goerr.V(ConfigPathKey, path))
	}

	var cfg AppConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, goerr.Wrap(ErrInvalidConfig, "parsing TOML",
			goerr.V(ConfigPathKey, path),
			goerr.V("parse_error", err.Error()))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
