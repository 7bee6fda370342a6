package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/mnemosyne/pkg/agent/tool"
	"github.com/secmon-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/secmon-lab/mnemosyne/pkg/domain/model"
	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
)

// rememberTool stores a fact the user explicitly asked to keep
type rememberTool struct {
	index interfaces.SemanticIndex
}

func (t *rememberTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        "core__remember",
		Description: "Store a piece of information in long-term memory. Use when the user explicitly asks to remember something for later.",
		Parameters: map[string]*gollem.Parameter{
			"note": {
				Type:        gollem.TypeString,
				Description: "The information to remember, rephrased as a standalone fact",
				Required:    true,
			},
		},
	}
}

func (t *rememberTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	key, ok := tool.ConversationFrom(ctx)
	if !ok {
		return nil, fmt.Errorf("no conversation bound to this call")
	}
	note, _ := args["note"].(string)
	if note == "" {
		return nil, fmt.Errorf("note is required")
	}

	tool.Update(ctx, "Storing memory...")

	now := time.Now()
	record := &model.MemoryRecord{
		ID:              model.NewMemoryID(key, now, now),
		ConversationKey: key,
		Scope:           key.Scope(),
		OwnerID:         key.ScopeOwnerID(),
		Payload:         map[string]string{"note": note},
		CreatedAt:       now,
	}

	id, err := t.index.Insert(ctx, record)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to store memory")
	}

	return map[string]any{
		"memory_id":                  string(id),
		model.OutputMessageKey:       "Got it, I'll remember that.",
		model.OutputSelfContainedKey: true,
	}, nil
}

// recallTool searches long-term memory by semantic similarity
type recallTool struct {
	index interfaces.SemanticIndex
}

func (t *recallTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        "core__recall",
		Description: "Search long-term memory for information from earlier conversations using semantic similarity",
		Parameters: map[string]*gollem.Parameter{
			"query": {
				Type:        gollem.TypeString,
				Description: "What to look for",
				Required:    true,
			},
			"limit": {
				Type:        gollem.TypeInteger,
				Description: "Maximum number of results to return (default: 5)",
				Required:    false,
			},
		},
	}
}

func (t *recallTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	key, ok := tool.ConversationFrom(ctx)
	if !ok {
		return nil, fmt.Errorf("no conversation bound to this call")
	}
	query, _ := args["query"].(string)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	limit := 5
	if v, err := extractInt64(args, "limit"); err == nil && v > 0 {
		limit = int(v)
	}

	tool.Update(ctx, fmt.Sprintf("Recalling: %s", query))

	records, err := t.index.Query(ctx, key.Scope(), key.ScopeOwnerID(), query, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to recall memories")
	}

	// In a server conversation the author's personal memories are searched
	// too, so "what do you remember about me" works in a channel.
	if key.Scope() == types.ScopeServer {
		if author, ok := tool.AuthorFrom(ctx); ok {
			personal, err := t.index.Query(ctx, types.ScopeUser, author.String(), query, limit)
			if err == nil {
				records = mergeByScore(records, personal, limit)
			}
		}
	}

	items := make([]map[string]any, len(records))
	for i, r := range records {
		items[i] = map[string]any{
			"memory":     r.Record.PayloadText(),
			"score":      r.Score,
			"created_at": r.Record.CreatedAt.String(),
		}
	}
	return map[string]any{"memories": items, "count": len(items)}, nil
}

// mergeByScore combines two result sets by descending score, keeping at most
// limit records.
func mergeByScore(a, b []*model.ScoredRecord, limit int) []*model.ScoredRecord {
	merged := make([]*model.ScoredRecord, 0, len(a)+len(b))
	merged = append(merged, a...)
	merged = append(merged, b...)
	sort.Slice(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}
