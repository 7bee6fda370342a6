package model

// Conventional tool output keys. Tools put user-facing text under
// OutputMessageKey; setting OutputSelfContainedKey to true marks the result
// as already user-visible.
const (
	OutputMessageKey       = "message"
	OutputSelfContainedKey = "self_contained"
)

// ToolCall is a routing decision to invoke one registered tool. Arguments
// must validate against the tool's declared schema before execution.
type ToolCall struct {
	Name      string
	Arguments map[string]any
}

// ToolResult is the outcome of dispatching one ToolCall. A failed execution
// is contained here rather than propagated, so one tool failure never
// terminates the turn.
type ToolResult struct {
	Name    string
	Output  map[string]any
	Success bool
	Error   string

	// SelfContained marks a success whose user-visible action is already
	// complete (e.g. a posted image), letting the orchestrator skip the
	// follow-up response generation.
	SelfContained bool
}

// Message returns the user-facing text carried in the output, if the tool
// provided one under the conventional message key.
func (r *ToolResult) Message() string {
	if r.Output == nil {
		return ""
	}
	if msg, ok := r.Output[OutputMessageKey].(string); ok {
		return msg
	}
	return ""
}
