package tool_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/mnemosyne/pkg/agent/tool"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
)

// fakeTool is a scriptable gollem.Tool with an invocation counter.
type fakeTool struct {
	spec  gollem.ToolSpec
	runFn func(ctx context.Context, args map[string]any) (map[string]any, error)
	calls int32
}

func (t *fakeTool) Spec() gollem.ToolSpec {
	return t.spec
}

func (t *fakeTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	atomic.AddInt32(&t.calls, 1)
	if t.runFn != nil {
		return t.runFn(ctx, args)
	}
	return map[string]any{model.OutputMessageKey: "ok"}, nil
}

func (t *fakeTool) callCount() int32 {
	return atomic.LoadInt32(&t.calls)
}

func echoSpec(name string) gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        name,
		Description: "test tool",
		Parameters: map[string]*gollem.Parameter{
			"message": {
				Type:        gollem.TypeString,
				Description: "text to echo",
				Required:    true,
			},
		},
	}
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	r := tool.NewRegistry()
	gt.NoError(t, r.Register(&fakeTool{spec: echoSpec("core__echo")}))

	err := r.Register(&fakeTool{spec: echoSpec("core__echo")})
	gt.Error(t, err)
}

func TestRegisterRejectsEmptyName(t *testing.T) {
	r := tool.NewRegistry()
	err := r.Register(&fakeTool{spec: gollem.ToolSpec{Name: ""}})
	gt.Error(t, err)
}

func TestSpecsPreservesRegistrationOrder(t *testing.T) {
	r := tool.NewRegistry()
	gt.NoError(t, r.Register(
		&fakeTool{spec: echoSpec("core__zeta")},
		&fakeTool{spec: echoSpec("core__alpha")},
		&fakeTool{spec: echoSpec("core__mid")},
	))

	specs := r.Specs()
	gt.Array(t, specs).Length(3)
	gt.Value(t, specs[0].Name).Equal("core__zeta")
	gt.Value(t, specs[1].Name).Equal("core__alpha")
	gt.Value(t, specs[2].Name).Equal("core__mid")
}

func TestDispatchUnknownTool(t *testing.T) {
	registered := &fakeTool{spec: echoSpec("core__echo")}
	r := tool.NewRegistry()
	gt.NoError(t, r.Register(registered))

	_, err := r.Dispatch(context.Background(), &model.ToolCall{
		Name:      "core__missing",
		Arguments: map[string]any{"message": "hello"},
	})
	gt.Error(t, err)
	gt.Bool(t, errors.Is(err, model.ErrUnknownTool)).True()
	gt.Number(t, registered.callCount()).Equal(0)

	_, err = r.Dispatch(context.Background(), nil)
	gt.Error(t, err)
	gt.Bool(t, errors.Is(err, model.ErrUnknownTool)).True()
}

func TestDispatchInvalidArgumentsDoesNotExecute(t *testing.T) {
	ft := &fakeTool{spec: echoSpec("core__echo")}
	r := tool.NewRegistry()
	gt.NoError(t, r.Register(ft))

	cases := []struct {
		name string
		args map[string]any
	}{
		{name: "missing required", args: map[string]any{}},
		{name: "wrong type", args: map[string]any{"message": 42}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.Dispatch(context.Background(), &model.ToolCall{Name: "core__echo", Arguments: tc.args})
			gt.Error(t, err)
			gt.Bool(t, errors.Is(err, model.ErrInvalidArguments)).True()
		})
	}
	gt.Number(t, ft.callCount()).Equal(0)
}

func TestDispatchSuccess(t *testing.T) {
	ft := &fakeTool{
		spec: echoSpec("core__echo"),
		runFn: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{model.OutputMessageKey: "echo: " + args["message"].(string)}, nil
		},
	}
	r := tool.NewRegistry()
	gt.NoError(t, r.Register(ft))

	result, err := r.Dispatch(context.Background(), &model.ToolCall{
		Name:      "core__echo",
		Arguments: map[string]any{"message": "hello"},
	})
	gt.NoError(t, err)
	gt.Value(t, result.Name).Equal("core__echo")
	gt.Bool(t, result.Success).True()
	gt.Bool(t, result.SelfContained).False()
	gt.Value(t, result.Message()).Equal("echo: hello")
	gt.Number(t, ft.callCount()).Equal(1)
}

func TestDispatchSelfContainedOutput(t *testing.T) {
	ft := &fakeTool{
		spec: echoSpec("core__post"),
		runFn: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{
				model.OutputMessageKey:       "posted",
				model.OutputSelfContainedKey: true,
			}, nil
		},
	}
	r := tool.NewRegistry()
	gt.NoError(t, r.Register(ft))

	result, err := r.Dispatch(context.Background(), &model.ToolCall{
		Name:      "core__post",
		Arguments: map[string]any{"message": "hi"},
	})
	gt.NoError(t, err)
	gt.Bool(t, result.Success).True()
	gt.Bool(t, result.SelfContained).True()
}

func TestDispatchCoercesStringArguments(t *testing.T) {
	var got map[string]any
	ft := &fakeTool{
		spec: gollem.ToolSpec{
			Name:        "core__typed",
			Description: "typed parameters",
			Parameters: map[string]*gollem.Parameter{
				"count":   {Type: gollem.TypeInteger, Required: true},
				"ratio":   {Type: gollem.TypeNumber},
				"enabled": {Type: gollem.TypeBoolean},
				"filter":  {Type: gollem.TypeObject},
				"tags":    {Type: gollem.TypeArray, Items: &gollem.Parameter{Type: gollem.TypeString}},
			},
		},
		runFn: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			got = args
			return map[string]any{}, nil
		},
	}
	r := tool.NewRegistry()
	gt.NoError(t, r.Register(ft))

	result, err := r.Dispatch(context.Background(), &model.ToolCall{
		Name: "core__typed",
		Arguments: map[string]any{
			"count":   "5",
			"ratio":   " 0.25 ",
			"enabled": "true",
			"filter":  `{"kind":"memo"}`,
			"tags":    `["a","b"]`,
		},
	})
	gt.NoError(t, err)
	gt.Bool(t, result.Success).True()

	gt.Value(t, got["count"]).Equal(any(float64(5)))
	gt.Value(t, got["ratio"]).Equal(any(0.25))
	gt.Value(t, got["enabled"]).Equal(any(true))

	filter, ok := got["filter"].(map[string]any)
	gt.Bool(t, ok).True()
	gt.Value(t, filter["kind"]).Equal(any("memo"))

	tags, ok := got["tags"].([]any)
	gt.Bool(t, ok).True()
	gt.Array(t, tags).Length(2)
}

func TestDispatchUnparseableStringFailsValidation(t *testing.T) {
	ft := &fakeTool{
		spec: gollem.ToolSpec{
			Name:        "core__typed",
			Description: "typed parameters",
			Parameters: map[string]*gollem.Parameter{
				"count": {Type: gollem.TypeInteger, Required: true},
			},
		},
	}
	r := tool.NewRegistry()
	gt.NoError(t, r.Register(ft))

	_, err := r.Dispatch(context.Background(), &model.ToolCall{
		Name:      "core__typed",
		Arguments: map[string]any{"count": "five"},
	})
	gt.Error(t, err)
	gt.Bool(t, errors.Is(err, model.ErrInvalidArguments)).True()
	gt.Number(t, ft.callCount()).Equal(0)
}

func TestDispatchAllowsUndeclaredArguments(t *testing.T) {
	var got map[string]any
	ft := &fakeTool{
		spec: echoSpec("core__echo"),
		runFn: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			got = args
			return map[string]any{}, nil
		},
	}
	r := tool.NewRegistry()
	gt.NoError(t, r.Register(ft))

	_, err := r.Dispatch(context.Background(), &model.ToolCall{
		Name:      "core__echo",
		Arguments: map[string]any{"message": "hello", "hint": "extra"},
	})
	gt.NoError(t, err)
	gt.Value(t, got["hint"]).Equal(any("extra"))
}

func TestDispatchContainsToolError(t *testing.T) {
	ft := &fakeTool{
		spec: echoSpec("core__echo"),
		runFn: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return nil, errors.New("backend exploded")
		},
	}
	r := tool.NewRegistry()
	gt.NoError(t, r.Register(ft))

	result, err := r.Dispatch(context.Background(), &model.ToolCall{
		Name:      "core__echo",
		Arguments: map[string]any{"message": "hello"},
	})
	gt.NoError(t, err)
	gt.Bool(t, result.Success).False()
	gt.Value(t, result.Error).Equal("backend exploded")
}

func TestDispatchContainsPanic(t *testing.T) {
	ft := &fakeTool{
		spec: echoSpec("core__echo"),
		runFn: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			panic("nil map write")
		},
	}
	r := tool.NewRegistry()
	gt.NoError(t, r.Register(ft))

	result, err := r.Dispatch(context.Background(), &model.ToolCall{
		Name:      "core__echo",
		Arguments: map[string]any{"message": "hello"},
	})
	gt.NoError(t, err)
	gt.Bool(t, result.Success).False()
	gt.Bool(t, strings.Contains(result.Error, "nil map write")).True()
}

func TestDispatchExecutionTimeout(t *testing.T) {
	ft := &fakeTool{
		spec: echoSpec("core__slow"),
		runFn: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(2 * time.Second):
				return map[string]any{}, nil
			}
		},
	}
	r := tool.NewRegistry(tool.WithExecutionTimeout(20 * time.Millisecond))
	gt.NoError(t, r.Register(ft))

	result, err := r.Dispatch(context.Background(), &model.ToolCall{
		Name:      "core__slow",
		Arguments: map[string]any{"message": "hello"},
	})
	gt.NoError(t, err)
	gt.Bool(t, result.Success).False()
	gt.Bool(t, strings.Contains(result.Error, "deadline")).True()
}
