package metadata

import (
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// DefaultCacheCapacity is the number of rule books kept per kind.
const DefaultCacheCapacity = 16

// cacheKey is the value-equality key of a rule book.
type cacheKey struct {
	kind   Kind
	input  string
	output string
	filter string
	stride string
	peer   uuid.UUID // output Metadata of a FullConvolution build
}

func keyOf(req Request) cacheKey {
	k := cacheKey{
		kind:   req.Kind,
		input:  req.InputSize.Key(),
		output: req.OutputSize.Key(),
		filter: req.FilterSize.Key(),
		stride: req.FilterStride.Key(),
	}
	if req.Output != nil {
		k.peer = req.Output.id
	}
	return k
}

// ruleBookCache keeps the most recently used rule books of each kind.
// onRelease runs for every rule book that leaves the cache, evicted or
// removed.
type ruleBookCache struct {
	capacity  int
	lists     map[Kind]*simplelru.LRU[cacheKey, *RuleBook]
	onRelease simplelru.EvictCallback[cacheKey, *RuleBook]
}

func newRuleBookCache(capacity int, onRelease simplelru.EvictCallback[cacheKey, *RuleBook]) *ruleBookCache {
	if capacity < 1 {
		capacity = DefaultCacheCapacity
	}
	return &ruleBookCache{
		capacity:  capacity,
		lists:     make(map[Kind]*simplelru.LRU[cacheKey, *RuleBook]),
		onRelease: onRelease,
	}
}

func (c *ruleBookCache) list(kind Kind) *simplelru.LRU[cacheKey, *RuleBook] {
	l, ok := c.lists[kind]
	if !ok {
		// capacity is positive, the only error NewLRU reports.
		l, _ = simplelru.NewLRU(c.capacity, c.onRelease)
		c.lists[kind] = l
	}
	return l
}

func (c *ruleBookCache) get(k cacheKey) (*RuleBook, bool) {
	return c.list(k.kind).Get(k)
}

// put stores rb, evicting the least recently used rule book of the same
// kind when the kind is full.
func (c *ruleBookCache) put(k cacheKey, rb *RuleBook) {
	c.list(k.kind).Add(k, rb)
}

func (c *ruleBookCache) remove(k cacheKey) {
	c.list(k.kind).Remove(k)
}

// removeIf drops every rule book whose key matches.
func (c *ruleBookCache) removeIf(match func(cacheKey) bool) {
	for _, l := range c.lists {
		for _, k := range l.Keys() {
			if match(k) {
				l.Remove(k)
			}
		}
	}
}

func (c *ruleBookCache) len() int {
	n := 0
	for _, l := range c.lists {
		n += l.Len()
	}
	return n
}
