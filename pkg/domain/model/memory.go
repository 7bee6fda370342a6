package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/secmon-lab/mnemosyne/pkg/domain/types"
)

// EmbeddingDimension is the dimension of embedding vectors
const EmbeddingDimension = 768

// MemoryID identifies a long-term MemoryRecord. It doubles as the promotion
// deduplication key: records produced from the same evicted window batch get
// the same ID, so a retried promotion overwrites nothing and adds nothing.
type MemoryID string

// NewMemoryID derives the deduplication ID for a promoted batch from the
// conversation key and the time range the batch covers.
func NewMemoryID(key ConversationKey, oldest, newest time.Time) MemoryID {
	h := sha256.Sum256(fmt.Appendf(nil, "%s/%d/%d", key.String(), oldest.UnixNano(), newest.UnixNano()))
	return MemoryID(hex.EncodeToString(h[:]))
}

// String returns the string representation of MemoryID
func (m MemoryID) String() string {
	return string(m)
}

// MemoryRecord is one unit of promoted long-term memory: a structured summary
// of evicted window content plus its embedding for similarity search.
// Records are immutable after creation and deleted only by the explicit
// clear operation.
//
// OwnerID is the scope owner: the server ID for server-scoped records, the
// user ID for user-scoped ones. It can differ from the conversation key's
// owner when a user-scoped memory is captured inside a channel conversation.
type MemoryRecord struct {
	ID              MemoryID
	ConversationKey ConversationKey
	Scope           types.MemoryScope
	OwnerID         string
	Payload         map[string]string // topic / summary / entities / keywords
	Embedding       []float32         // Vector embedding for similarity search (768 dimensions)
	CreatedAt       time.Time
}

// PayloadText flattens the structured payload into one line per field, used
// as embedding input and as recall context. Keys are emitted in sorted order
// so the output is deterministic.
func (m *MemoryRecord) PayloadText() string {
	keys := make([]string, 0, len(m.Payload))
	for k := range m.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, m.Payload[k]))
	}
	return strings.Join(parts, "\n")
}

// ScoredRecord pairs a recalled MemoryRecord with its similarity score
type ScoredRecord struct {
	Record *MemoryRecord
	Score  float64
}
