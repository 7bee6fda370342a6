package decision

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/utils/logging"
)

//go:embed prompt/route_system.md
var routeSystemPromptTmpl string

var routeSystemPrompt = template.Must(template.New("route_system").Parse(routeSystemPromptTmpl))

//go:embed prompt/respond_system.md
var respondSystemPromptTmpl string

var respondSystemPrompt = template.Must(template.New("respond_system").Parse(respondSystemPromptTmpl))

//go:embed prompt/suggest.md
var suggestSystemPrompt string

const (
	defaultTimeout = 60 * time.Second

	// Upstream calls are retried on transient failure and on malformed
	// model output. Backoff grows linearly per attempt.
	maxRetries   = 2
	retryBackoff = 500 * time.Millisecond
)

// Service asks the model how to handle a turn: answer directly or invoke one
// tool. It also composes the reply after a tool run and generates follow-up
// suggestions for completed turns. All calls use JSON-constrained sessions so
// the output is machine-readable.
type Service struct {
	llmClient gollem.LLMClient
	persona   string
	timeout   time.Duration
}

// Option configures the decision service
type Option func(*Service)

// WithPersona sets the persona text prepended to the routing system prompt.
func WithPersona(persona string) Option {
	return func(s *Service) {
		s.persona = persona
	}
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// New creates a decision service backed by the given LLM client.
func New(llmClient gollem.LLMClient, opts ...Option) *Service {
	s := &Service{
		llmClient: llmClient,
		timeout:   defaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RouteInput carries everything the routing prompt needs: the user's message,
// the short-term window, recalled memories, and the tool catalog.
type RouteInput struct {
	UserText string
	Window   []model.WindowEntry
	Recalled []*model.ScoredRecord
	Tools    []gollem.ToolSpec
}

// routeResponse is the wire shape of the routing model output. Both branches
// are optional on purpose: an output filling both or neither is reported as
// model.ErrDecisionAmbiguous, not silently repaired.
type routeResponse struct {
	ToolName  string `json:"tool_name"`
	Arguments string `json:"arguments"`
	Response  string `json:"response"`
}

var routeResponseSchema = &gollem.Parameter{
	Type: gollem.TypeObject,
	Properties: map[string]*gollem.Parameter{
		"tool_name": {
			Type:        gollem.TypeString,
			Description: "Name of the single tool to invoke. Empty string when answering directly.",
			Required:    true,
		},
		"arguments": {
			Type:        gollem.TypeString,
			Description: "JSON object with the tool arguments, encoded as a string. Empty string when answering directly.",
			Required:    true,
		},
		"response": {
			Type:        gollem.TypeString,
			Description: "Direct answer to the user. Empty string when invoking a tool.",
			Required:    true,
		},
	},
}

// Route decides whether the turn is answered directly or dispatched to a
// tool. Returns model.ErrDecisionAmbiguous when the model fills both or
// neither branch, and model.ErrUpstreamUnavailable when the model stays
// unreachable or keeps producing unparsable output after retries.
func (s *Service) Route(ctx context.Context, in *RouteInput) (*model.RouteDecision, error) {
	if in == nil || strings.TrimSpace(in.UserText) == "" {
		return nil, goerr.New("empty routing input")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	systemPrompt, err := s.buildRoutePrompt(in)
	if err != nil {
		return nil, err
	}

	var decision *model.RouteDecision
	err = s.generate(ctx, systemPrompt, routeResponseSchema, in.UserText, func(text string) error {
		var raw routeResponse
		if err := json.Unmarshal([]byte(text), &raw); err != nil {
			return goerr.Wrap(err, "malformed routing response")
		}

		d := &model.RouteDecision{Response: strings.TrimSpace(raw.Response)}
		if name := strings.TrimSpace(raw.ToolName); name != "" {
			args, err := parseArguments(raw.Arguments)
			if err != nil {
				return err
			}
			d.ToolCall = &model.ToolCall{Name: name, Arguments: args}
		}

		decision = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := decision.Validate(); err != nil {
		return nil, err
	}

	return decision, nil
}

// RespondInput carries a tool outcome to be turned into the user-facing reply.
type RespondInput struct {
	UserText string
	Window   []model.WindowEntry
	Result   *model.ToolResult
}

var respondResponseSchema = &gollem.Parameter{
	Type: gollem.TypeObject,
	Properties: map[string]*gollem.Parameter{
		"response": {
			Type:        gollem.TypeString,
			Description: "The reply shown to the user.",
			Required:    true,
		},
	},
}

// Respond composes the final reply from a tool result. A failed result still
// yields a reply: the model turns the failure into a plain-words explanation.
func (s *Service) Respond(ctx context.Context, in *RespondInput) (string, error) {
	if in == nil || in.Result == nil {
		return "", goerr.New("empty respond input")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	systemPrompt, err := s.buildRespondPrompt(in)
	if err != nil {
		return "", err
	}

	var response string
	err = s.generate(ctx, systemPrompt, respondResponseSchema, in.UserText, func(text string) error {
		var raw struct {
			Response string `json:"response"`
		}
		if err := json.Unmarshal([]byte(text), &raw); err != nil {
			return goerr.Wrap(err, "malformed respond output")
		}
		if strings.TrimSpace(raw.Response) == "" {
			return goerr.New("empty respond output")
		}
		response = strings.TrimSpace(raw.Response)
		return nil
	})
	if err != nil {
		return "", err
	}

	return response, nil
}

// SuggestInput carries the completed exchange the suggestions are based on.
type SuggestInput struct {
	UserText string
	Response string
	Window   []model.WindowEntry
}

var suggestResponseSchema = &gollem.Parameter{
	Type: gollem.TypeObject,
	Properties: map[string]*gollem.Parameter{
		"suggestions": {
			Type:        gollem.TypeArray,
			Description: "Exactly three short follow-up messages the user is likely to send next.",
			Required:    true,
			Items: &gollem.Parameter{
				Type: gollem.TypeString,
			},
		},
	},
}

// Suggest produces exactly model.SuggestionCount follow-up messages for a
// completed exchange. Longer lists are truncated, shorter ones retried; after
// retry exhaustion the caller degrades to no suggestions.
func (s *Service) Suggest(ctx context.Context, in *SuggestInput) ([]string, error) {
	if in == nil || strings.TrimSpace(in.Response) == "" {
		return nil, goerr.New("empty suggestion input")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var suggestions []string
	err := s.generate(ctx, suggestSystemPrompt, suggestResponseSchema, renderConversation(in), func(text string) error {
		var raw struct {
			Suggestions []string `json:"suggestions"`
		}
		if err := json.Unmarshal([]byte(text), &raw); err != nil {
			return goerr.Wrap(err, "malformed suggestion response")
		}

		cleaned := make([]string, 0, len(raw.Suggestions))
		for _, sg := range raw.Suggestions {
			if sg = strings.TrimSpace(sg); sg != "" {
				cleaned = append(cleaned, sg)
			}
		}
		if len(cleaned) < model.SuggestionCount {
			return goerr.New("too few suggestions", goerr.V("count", len(cleaned)))
		}

		suggestions = cleaned[:model.SuggestionCount]
		return nil
	})
	if err != nil {
		return nil, err
	}

	return suggestions, nil
}

// generate runs one JSON-constrained model call with retries. The parse
// callback validates the output; its failure counts as a failed attempt so
// malformed output is retried like an unreachable backend.
func (s *Service) generate(ctx context.Context, systemPrompt string, schema *gollem.Parameter, input string, parse func(text string) error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return goerr.Wrap(model.ErrUpstreamUnavailable, "cancelled while retrying model call",
					goerr.V("cause", ctx.Err().Error()))
			case <-time.After(retryBackoff * time.Duration(attempt)):
			}
		}

		if err := s.generateOnce(ctx, systemPrompt, schema, input, parse); err != nil {
			lastErr = err
			logging.From(ctx).Warn("model call failed",
				"attempt", attempt+1,
				"error", err.Error())
			continue
		}
		return nil
	}

	return goerr.Wrap(model.ErrUpstreamUnavailable, "model call failed after retries",
		goerr.V("attempts", maxRetries+1),
		goerr.V("cause", lastErr.Error()))
}

func (s *Service) generateOnce(ctx context.Context, systemPrompt string, schema *gollem.Parameter, input string, parse func(text string) error) error {
	session, err := s.llmClient.NewSession(ctx,
		gollem.WithSessionContentType(gollem.ContentTypeJSON),
		gollem.WithSessionResponseSchema(schema),
		gollem.WithSessionSystemPrompt(systemPrompt),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to create model session")
	}

	resp, err := session.GenerateContent(ctx, gollem.Text(input))
	if err != nil {
		return goerr.Wrap(err, "failed to generate content")
	}
	if len(resp.Texts) == 0 {
		return goerr.New("empty response from model")
	}

	return parse(resp.Texts[0])
}

// parseArguments decodes the arguments string the model produced. Empty means
// a tool without arguments; anything else must be a JSON object.
func parseArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "{}" || raw == "null" {
		return map[string]any{}, nil
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, goerr.Wrap(err, "tool arguments are not a JSON object", goerr.V("raw", raw))
	}
	return args, nil
}

// promptTool represents a tool for template rendering
type promptTool struct {
	Name        string
	Description string
	Parameters  string
}

// promptMemory represents a recalled memory for template rendering
type promptMemory struct {
	Score   string
	Content string
}

// promptEntry represents a window entry for template rendering
type promptEntry struct {
	Role    string
	Tool    string
	Content string
}

// routePromptData holds all data for the routing system prompt template
type routePromptData struct {
	Persona  string
	Tools    []promptTool
	Memories []promptMemory
	Entries  []promptEntry
}

func (s *Service) buildRoutePrompt(in *RouteInput) (string, error) {
	data := routePromptData{Persona: s.persona}

	for _, spec := range in.Tools {
		data.Tools = append(data.Tools, promptTool{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  renderParameters(spec.Parameters),
		})
	}

	for _, rec := range in.Recalled {
		if rec == nil || rec.Record == nil {
			continue
		}
		data.Memories = append(data.Memories, promptMemory{
			Score:   fmt.Sprintf("%.2f", rec.Score),
			Content: strings.ReplaceAll(rec.Record.PayloadText(), "\n", "; "),
		})
	}

	for _, e := range in.Window {
		data.Entries = append(data.Entries, promptEntry{
			Role:    string(e.Role),
			Tool:    e.ToolName,
			Content: e.Content,
		})
	}

	var buf bytes.Buffer
	if err := routeSystemPrompt.Execute(&buf, data); err != nil {
		return "", goerr.Wrap(err, "failed to render routing prompt")
	}
	return buf.String(), nil
}

// respondPromptData holds all data for the respond system prompt template
type respondPromptData struct {
	Persona string
	Tool    string
	Success bool
	Output  string
	Error   string
	Entries []promptEntry
}

func (s *Service) buildRespondPrompt(in *RespondInput) (string, error) {
	data := respondPromptData{
		Persona: s.persona,
		Tool:    in.Result.Name,
		Success: in.Result.Success,
		Error:   in.Result.Error,
	}

	if in.Result.Success {
		encoded, err := json.Marshal(in.Result.Output)
		if err != nil {
			return "", goerr.Wrap(err, "failed to encode tool output for prompt")
		}
		data.Output = string(encoded)
	}

	for _, e := range in.Window {
		data.Entries = append(data.Entries, promptEntry{
			Role:    string(e.Role),
			Tool:    e.ToolName,
			Content: e.Content,
		})
	}

	var buf bytes.Buffer
	if err := respondSystemPrompt.Execute(&buf, data); err != nil {
		return "", goerr.Wrap(err, "failed to render respond prompt")
	}
	return buf.String(), nil
}

// renderParameters flattens a tool parameter schema into compact JSON for the
// prompt. Nested detail beyond array item types is omitted.
func renderParameters(params map[string]*gollem.Parameter) string {
	if len(params) == 0 {
		return "{}"
	}

	fields := make(map[string]any, len(params))
	for name, p := range params {
		f := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			f["description"] = p.Description
		}
		if p.Required {
			f["required"] = true
		}
		if p.Type == gollem.TypeArray && p.Items != nil {
			f["items"] = string(p.Items.Type)
		}
		fields[name] = f
	}

	encoded, err := json.Marshal(fields)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}

// renderConversation lays out the exchange for the suggestion call, newest
// last, in the same bracketed transcript form the other prompts use.
func renderConversation(in *SuggestInput) string {
	var sb strings.Builder
	for _, e := range in.Window {
		if e.ToolName != "" {
			fmt.Fprintf(&sb, "[%s via %s] %s\n", e.Role, e.ToolName, e.Content)
		} else {
			fmt.Fprintf(&sb, "[%s] %s\n", e.Role, e.Content)
		}
	}
	if in.UserText != "" {
		fmt.Fprintf(&sb, "[user] %s\n", in.UserText)
	}
	fmt.Fprintf(&sb, "[assistant] %s\n", in.Response)
	return sb.String()
}
