package config

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors for configuration validation
var (
	ErrConfigNotFound  = goerr.New("configuration file not found")
	ErrInvalidConfig   = goerr.New("invalid configuration")
	ErrInvalidToolName = goerr.New("invalid tool name format")
	ErrDuplicateTool   = goerr.New("duplicate tool name")
	ErrPersonaTooLong  = goerr.New("persona text exceeds maximum length")
)

// Context keys for error values
const (
	ConfigPathKey = "config_path"
	ToolNameKey   = "tool_name"
	ToolIndexKey  = "tool_index"
)
