package model_test

import (
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
)

func TestRouteDecisionValidate(t *testing.T) {
	tests := []struct {
		name     string
		decision *model.RouteDecision
		wantErr  bool
	}{
		{
			name:     "response only",
			decision: &model.RouteDecision{Response: "Here you go."},
		},
		{
			name: "tool call only",
			decision: &model.RouteDecision{
				ToolCall: &model.ToolCall{Name: "core__recall", Arguments: map[string]any{}},
			},
		},
		{
			name: "both branches",
			decision: &model.RouteDecision{
				ToolCall: &model.ToolCall{Name: "core__recall"},
				Response: "I also answered.",
			},
			wantErr: true,
		},
		{
			name:     "neither branch",
			decision: &model.RouteDecision{},
			wantErr:  true,
		},
		{
			name: "tool call without name counts as empty",
			decision: &model.RouteDecision{
				ToolCall: &model.ToolCall{},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.decision.Validate()
			if !tt.wantErr {
				gt.NoError(t, err)
				return
			}
			gt.Error(t, err)
			gt.Bool(t, errors.Is(err, model.ErrDecisionAmbiguous)).True()
		})
	}
}
