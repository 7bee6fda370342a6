package core

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/mnemosyne/pkg/agent/tool"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/service/scheduler"
)

// reminderTool schedules a one-shot notification back into the conversation
type reminderTool struct {
	scheduler *scheduler.Service
}

func (t *reminderTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        "core__reminder",
		Description: "Set a reminder that notifies the user after the given delay. Use when the user asks to be reminded of something later.",
		Parameters: map[string]*gollem.Parameter{
			"delay_minutes": {
				Type:        gollem.TypeNumber,
				Description: "How many minutes from now the reminder fires. Fractions are allowed.",
				Required:    true,
			},
			"message": {
				Type:        gollem.TypeString,
				Description: "The reminder text delivered to the user",
				Required:    true,
			},
		},
	}
}

func (t *reminderTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	key, ok := tool.ConversationFrom(ctx)
	if !ok {
		return nil, fmt.Errorf("no conversation bound to this call")
	}

	minutes, err := extractFloat64(args, "delay_minutes")
	if err != nil {
		return nil, err
	}
	if minutes <= 0 {
		return nil, fmt.Errorf("delay_minutes must be positive")
	}
	message, _ := args["message"].(string)
	if message == "" {
		return nil, fmt.Errorf("message is required")
	}

	tool.Update(ctx, "Setting reminder...")

	delay := time.Duration(minutes * float64(time.Minute))
	task, err := t.scheduler.Schedule(ctx, key, delay, message)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to schedule reminder")
	}

	return map[string]any{
		"task_id":                    string(task.ID),
		"fire_at":                    task.FireAt.Format(time.RFC3339),
		model.OutputMessageKey:       fmt.Sprintf("OK, I'll remind you in %s: %s", formatDelay(delay), message),
		model.OutputSelfContainedKey: true,
	}, nil
}

// formatDelay renders a delay for the confirmation message, using plain
// minutes when the delay is a whole number of them.
func formatDelay(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		minutes := int(d / time.Minute)
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	return d.String()
}
