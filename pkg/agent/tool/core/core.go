package core

import (
	"fmt"

	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/secmon-lab/mnemosyne/pkg/service/brave"
	"github.com/secmon-lab/mnemosyne/pkg/service/scheduler"
)

// New builds the core tool catalog advertised to the routing decision.
// Reminder and memory tools are always present; web search and image
// generation join the catalog only when their backends are configured, so a
// missing API key silently shrinks the catalog instead of breaking dispatch.
func New(sched *scheduler.Service, index interfaces.SemanticIndex, chat interfaces.ChatService, search *brave.Client, images interfaces.ImageGenerator) []gollem.Tool {
	tools := []gollem.Tool{
		&reminderTool{scheduler: sched},
		&rememberTool{index: index},
		&recallTool{index: index},
	}

	if search != nil {
		tools = append(tools, &webSearchTool{search: search})
	}
	if images != nil {
		tools = append(tools, &generateImageTool{images: images, chat: chat})
	}

	return tools
}

// extractInt64 extracts an int64 value from args map, accepting int, int64, or float64
func extractInt64(args map[string]any, key string) (int64, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("%s is required", key)
	}
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("%s must be an integer, got %T", key, v)
	}
}

// extractFloat64 extracts a numeric value from args map, accepting int, int64, or float64
func extractFloat64(args map[string]any, key string) (float64, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("%s is required", key)
	}
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	default:
		return 0, fmt.Errorf("%s must be a number, got %T", key, v)
	}
}
