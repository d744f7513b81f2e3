package cache

import (
	"context"
	"sync"
	"time"

	"ogsm-service/models"
)

// TreeCache holds the most recently assembled forest. Any write to the
// component relation must call Invalidate, which also bumps the generation.
//
// Readers take Generation before loading the relation and hand it back to
// Set; a Set whose generation is stale is dropped so a forest read before a
// committed write can never be stored after that write's invalidation.
type TreeCache interface {
	Get(ctx context.Context) ([]models.TreeNode, bool, error)
	Generation(ctx context.Context) (uint64, error)
	Set(ctx context.Context, gen uint64, nodes []models.TreeNode) error
	Invalidate(ctx context.Context) error
}

// NopTreeCache never holds anything.
type NopTreeCache struct{}

func (NopTreeCache) Get(context.Context) ([]models.TreeNode, bool, error) { return nil, false, nil }
func (NopTreeCache) Generation(context.Context) (uint64, error)          { return 0, nil }
func (NopTreeCache) Set(context.Context, uint64, []models.TreeNode) error { return nil }
func (NopTreeCache) Invalidate(context.Context) error                     { return nil }

// MemoryTreeCache keeps the forest in process memory for up to ttl.
type MemoryTreeCache struct {
	mu       sync.RWMutex
	nodes    []models.TreeNode
	storedAt time.Time
	valid    bool
	gen      uint64
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryTreeCache returns an empty cache. A ttl of zero never expires.
func NewMemoryTreeCache(ttl time.Duration) *MemoryTreeCache {
	return &MemoryTreeCache{ttl: ttl, now: time.Now}
}

// Get returns a copy of the cached forest so callers cannot modify it.
func (c *MemoryTreeCache) Get(context.Context) ([]models.TreeNode, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.valid {
		return nil, false, nil
	}
	if c.ttl > 0 && c.now().Sub(c.storedAt) > c.ttl {
		return nil, false, nil
	}
	return copyNodes(c.nodes), true, nil
}

func (c *MemoryTreeCache) Generation(context.Context) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen, nil
}

// Set stores nodes only if no invalidation happened since gen was read.
func (c *MemoryTreeCache) Set(_ context.Context, gen uint64, nodes []models.TreeNode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return nil
	}
	c.nodes = copyNodes(nodes)
	c.storedAt = c.now()
	c.valid = true
	return nil
}

func (c *MemoryTreeCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes = nil
	c.valid = false
	c.gen++
	return nil
}

func copyNodes(in []models.TreeNode) []models.TreeNode {
	out := make([]models.TreeNode, len(in))
	copy(out, in)
	return out
}
