package model

import "github.com/m-mizutani/goerr/v2"

// RouteDecision is the structured output of the routing decision service:
// exactly one of ToolCall or Response must be set. Anything else is a
// contract violation handled as a validation error by the orchestrator.
type RouteDecision struct {
	ToolCall *ToolCall
	Response string
}

// Validate enforces the exactly-one contract
func (d *RouteDecision) Validate() error {
	hasTool := d.ToolCall != nil && d.ToolCall.Name != ""
	hasResponse := d.Response != ""

	switch {
	case hasTool && hasResponse:
		return goerr.Wrap(ErrDecisionAmbiguous, "decision contains both tool call and response",
			goerr.V("tool", d.ToolCall.Name))
	case !hasTool && !hasResponse:
		return goerr.Wrap(ErrDecisionAmbiguous, "decision contains neither tool call nor response")
	}
	return nil
}

// SuggestionCount is the number of follow-up suggestions attached to a
// completed response.
const SuggestionCount = 3

// MinResponseLengthForSuggestions is the minimum response length (in runes)
// that warrants generating follow-up suggestions. Short confirmations do not
// get suggestion buttons.
const MinResponseLengthForSuggestions = 30
