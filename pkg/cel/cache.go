package cel

import (
	"container/list"
	"sync"
)

// Cache is a thread-safe LRU cache of parsed ASTs, keyed by exact
// expression source. Adapted from the teacher's expr-lang-backed
// ConditionCache: github.com/expr-lang/expr compiles to a *vm.Program
// for its own grammar and cannot represent this package's Decimal-aware
// CEL subset, so the cache here stores *Node trees instead of
// *vm.Program values, but keeps the same LRU eviction shape.
type Cache struct {
	capacity int
	entries  map[string]*list.Element
	order    *list.List
	mu       sync.RWMutex
}

type cacheEntry struct {
	key string
	ast *Node
}

// NewCache creates an AST cache with the given capacity (100 if <= 0).
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 100
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get retrieves a parsed AST from the cache.
func (c *Cache) Get(expr string) (*Node, bool) {
	c.mu.Lock() // MoveToFront mutates the recency list
	defer c.mu.Unlock()
	if el, ok := c.entries[expr]; ok {
		c.order.MoveToFront(el)
		return el.Value.(*cacheEntry).ast, true
	}
	return nil, false
}

// Put stores a parsed AST in the cache, evicting the least recently
// used entry if capacity is exceeded.
func (c *Cache) Put(expr string, ast *Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[expr]; ok {
		c.order.MoveToFront(el)
		el.Value.(*cacheEntry).ast = ast
		return
	}
	el := c.order.PushFront(&cacheEntry{key: expr, ast: ast})
	c.entries[expr] = el
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
		}
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len()
}

// ParseCached parses expr, consulting and populating the cache.
func (c *Cache) ParseCached(expr string) (*Node, error) {
	if ast, ok := c.Get(expr); ok {
		return ast, nil
	}
	ast, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	c.Put(expr, ast)
	return ast, nil
}
