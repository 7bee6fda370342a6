package core

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/mnemosyne/pkg/agent/tool"
	"github.com/secmon-lab/mnemosyne/pkg/service/brave"
)

// webSearchTool looks up current information on the web
type webSearchTool struct {
	search *brave.Client
}

func (t *webSearchTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        "core__web_search",
		Description: "Search the web for current information, news, or topics outside the assistant's knowledge. Results are a list of title, URL, and snippet.",
		Parameters: map[string]*gollem.Parameter{
			"query": {
				Type:        gollem.TypeString,
				Description: "The search query",
				Required:    true,
			},
			"count": {
				Type:        gollem.TypeInteger,
				Description: "Maximum number of results to return (default: 5)",
				Required:    false,
			},
		},
	}
}

func (t *webSearchTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	count := 5
	if v, err := extractInt64(args, "count"); err == nil && v > 0 {
		count = int(v)
	}

	tool.Update(ctx, fmt.Sprintf("Searching the web: %s", query))

	results, err := t.search.Search(ctx, query, count)
	if err != nil {
		return nil, goerr.Wrap(err, "web search failed", goerr.V("query", query))
	}

	items := make([]map[string]any, len(results))
	for i, r := range results {
		items[i] = map[string]any{
			"title":   r.Title,
			"url":     r.URL,
			"snippet": r.Snippet,
		}
	}
	return map[string]any{"results": items, "count": len(items)}, nil
}
