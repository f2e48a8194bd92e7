// Package passages resolves doc ids to passage text for token budgeting.
package passages

import (
	"context"
	"maps"
)

// Store looks up passage texts by doc id. Ids with no text are omitted from
// the result; the budget counts them as zero tokens.
type Store interface {
	Texts(ctx context.Context, ids []string) (map[string]string, error)
}

// MapStore is an in-memory, read-only Store.
type MapStore struct {
	texts map[string]string
}

// NewMapStore creates a MapStore holding a copy of texts.
func NewMapStore(texts map[string]string) *MapStore {
	return &MapStore{texts: maps.Clone(texts)}
}

// Texts implements Store.
func (s *MapStore) Texts(ctx context.Context, ids []string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		if text, ok := s.texts[id]; ok {
			out[id] = text
		}
	}
	return out, nil
}
