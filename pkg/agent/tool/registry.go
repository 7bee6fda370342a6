package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/utils/errutil"
	"github.com/secmon-lab/mnemosyne/pkg/utils/logging"
	"github.com/xeipuuv/gojsonschema"
)

// DefaultExecutionTimeout bounds a single tool invocation.
const DefaultExecutionTimeout = 60 * time.Second

// Registry holds the tool catalog and dispatches validated calls. The
// catalog is assembled at startup and read-only afterwards, so dispatch
// needs no locking.
type Registry struct {
	names   []string
	tools   map[string]gollem.Tool
	timeout time.Duration
}

// RegistryOption is a functional option for Registry configuration
type RegistryOption func(*Registry)

// WithExecutionTimeout overrides the per-invocation timeout.
func WithExecutionTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRegistry creates an empty tool registry
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		tools:   make(map[string]gollem.Tool),
		timeout: DefaultExecutionTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds tools to the catalog. Tool names must be unique.
func (r *Registry) Register(tools ...gollem.Tool) error {
	for _, t := range tools {
		spec := t.Spec()
		if spec.Name == "" {
			return goerr.New("tool name must not be empty")
		}
		if _, ok := r.tools[spec.Name]; ok {
			return goerr.New("tool name already registered", goerr.V("name", spec.Name))
		}
		r.names = append(r.names, spec.Name)
		r.tools[spec.Name] = t
	}
	return nil
}

// Specs returns the declared specs of all registered tools in registration
// order, for advertising the catalog to the routing decision.
func (r *Registry) Specs() []gollem.ToolSpec {
	specs := make([]gollem.ToolSpec, 0, len(r.names))
	for _, name := range r.names {
		specs = append(specs, r.tools[name].Spec())
	}
	return specs
}

// Dispatch validates and executes one tool call. A call naming an unknown
// tool or carrying arguments that fail schema validation is rejected with
// model.ErrUnknownTool or model.ErrInvalidArguments without executing
// anything. Failures inside the tool itself, panics included, are contained
// in a failed ToolResult instead of an error.
func (r *Registry) Dispatch(ctx context.Context, call *model.ToolCall) (*model.ToolResult, error) {
	if call == nil || call.Name == "" {
		return nil, goerr.Wrap(model.ErrUnknownTool, "empty tool call")
	}

	t, ok := r.tools[call.Name]
	if !ok {
		return nil, goerr.Wrap(model.ErrUnknownTool, "tool is not registered", goerr.V("tool", call.Name))
	}
	spec := t.Spec()

	args := coerceArguments(spec, call.Arguments)
	if err := validateArguments(spec, args); err != nil {
		return nil, err
	}

	logging.From(ctx).Info("Dispatching tool", "tool", call.Name)
	return r.execute(ctx, t, call.Name, args), nil
}

// execute runs the tool with a bounded timeout, converting errors and panics
// into a failed ToolResult.
func (r *Registry) execute(ctx context.Context, t gollem.Tool, name string, args map[string]any) (result *model.ToolResult) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			_ = errutil.Handle(ctx,
				goerr.New("tool execution panicked", goerr.V("tool", name), goerr.V("panic", rec)),
				"tool execution panicked")
			result = &model.ToolResult{
				Name:    name,
				Success: false,
				Error:   fmt.Sprintf("tool panicked: %v", rec),
			}
		}
	}()

	out, err := t.Run(ctx, args)
	if err != nil {
		return &model.ToolResult{
			Name:    name,
			Success: false,
			Error:   err.Error(),
		}
	}

	selfContained, _ := out[model.OutputSelfContainedKey].(bool)
	return &model.ToolResult{
		Name:          name,
		Output:        out,
		Success:       true,
		SelfContained: selfContained,
	}
}

// coerceArguments loosens string-typed inputs before validation: JSON text
// becomes structured data, numeric and boolean strings become their typed
// values. Unparseable strings pass through and fail validation instead.
func coerceArguments(spec gollem.ToolSpec, args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v

		p, ok := spec.Parameters[k]
		if !ok {
			continue
		}
		s, isString := v.(string)
		if !isString {
			continue
		}

		switch p.Type {
		case gollem.TypeObject, gollem.TypeArray:
			var parsed any
			if err := json.Unmarshal([]byte(s), &parsed); err == nil {
				out[k] = parsed
			}
		case gollem.TypeNumber, gollem.TypeInteger:
			if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
				out[k] = n
			}
		case gollem.TypeBoolean:
			if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
				out[k] = b
			}
		}
	}
	return out
}

// validateArguments checks coerced arguments against the tool's declared
// schema.
func validateArguments(spec gollem.ToolSpec, args map[string]any) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(buildSchema(spec)),
		gojsonschema.NewGoLoader(args),
	)
	if err != nil {
		return goerr.Wrap(model.ErrInvalidArguments, "argument validation failed",
			goerr.V("tool", spec.Name), goerr.V("cause", err.Error()))
	}
	if !result.Valid() {
		violations := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			violations = append(violations, e.String())
		}
		return goerr.Wrap(model.ErrInvalidArguments, "tool arguments do not match schema",
			goerr.V("tool", spec.Name), goerr.V("violations", violations))
	}
	return nil
}

// buildSchema converts a tool's declared parameters into a JSON schema
// document.
func buildSchema(spec gollem.ToolSpec) map[string]any {
	schema := map[string]any{"type": "object"}

	props := make(map[string]any, len(spec.Parameters))
	var required []string
	for name, p := range spec.Parameters {
		props[name] = parameterSchema(p)
		if p.Required {
			required = append(required, name)
		}
	}
	if len(props) > 0 {
		schema["properties"] = props
	}
	if len(required) > 0 {
		sort.Strings(required)
		schema["required"] = required
	}
	return schema
}

func parameterSchema(p *gollem.Parameter) map[string]any {
	s := map[string]any{"type": string(p.Type)}
	if p.Description != "" {
		s["description"] = p.Description
	}

	if p.Type == gollem.TypeArray && p.Items != nil {
		s["items"] = parameterSchema(p.Items)
	}
	if p.Type == gollem.TypeObject && len(p.Properties) > 0 {
		nested := make(map[string]any, len(p.Properties))
		var required []string
		for name, np := range p.Properties {
			nested[name] = parameterSchema(np)
			if np.Required {
				required = append(required, name)
			}
		}
		s["properties"] = nested
		if len(required) > 0 {
			sort.Strings(required)
			s["required"] = required
		}
	}
	return s
}
