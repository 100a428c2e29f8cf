package evidence

import (
	"context"
	"fmt"

	"github.com/colorfulnotion/fraudproof/assignment"
	"github.com/colorfulnotion/fraudproof/log"
	"github.com/colorfulnotion/fraudproof/trie"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Source loads an assignment snapshot by id. *assignment.Loader is one.
type Source interface {
	Load(ctx context.Context, id string) (*assignment.Snapshot, error)
}

// TrieCache holds the tries built during one task, keyed by assignment id.
// Failed loads are not cached.
type TrieCache struct {
	source Source
	tries  *lru.Cache[string, *trie.AssignmentTrie]
}

func NewTrieCache(source Source, size int) (*TrieCache, error) {
	cache, err := lru.New[string, *trie.AssignmentTrie](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}
	return &TrieCache{source: source, tries: cache}, nil
}

func (c *TrieCache) Get(ctx context.Context, assignmentID string) (*trie.AssignmentTrie, error) {
	if t, ok := c.tries.Get(assignmentID); ok {
		return t, nil
	}
	snap, err := c.source.Load(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	t, err := trie.Build(snap)
	if err != nil {
		return nil, err
	}
	log.Debug(log.AssignMonitoring, "assignment trie built", "assignment", assignmentID, "entries", t.Len(), "root", t.Root().Hex())
	c.tries.Add(assignmentID, t)
	return t, nil
}

func (c *TrieCache) Len() int {
	return c.tries.Len()
}
