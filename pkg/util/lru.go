package util

import (
	"container/list"
	"errors"
	"sync"
	"time"
)

// ErrNoLimit 表示既没有设置条目上限也没有设置权重上限。
var ErrNoLimit = errors.New("lru: capacity or max weight must be set")

// LRUConfig 配置 LRU 缓存的淘汰行为。
type LRUConfig[K comparable, V any] struct {
	// Capacity 是最大条目数，0 表示不限制。
	Capacity int
	// MaxWeight 是所有条目的权重上限，0 表示不限制。
	MaxWeight int
	// TTL 是条目的存活时间，0 表示永不过期。
	TTL time.Duration
	// OnEvict 在条目因容量、权重或过期被移除时调用，调用时不持有锁。
	OnEvict func(key K, value V)
	// Now 用于测试时替换时钟。
	Now func() time.Time
}

type lruEntry[K comparable, V any] struct {
	key       K
	value     V
	weight    int
	expiresAt time.Time
}

// LRU 是一个并发安全、支持 TTL 与权重的泛型 LRU 缓存。
type LRU[K comparable, V any] struct {
	cfg    LRUConfig[K, V]
	mu     sync.Mutex
	ll     *list.List
	items  map[K]*list.Element
	weight int
}

// NewLRU 根据配置创建缓存。
func NewLRU[K comparable, V any](cfg LRUConfig[K, V]) (*LRU[K, V], error) {
	if cfg.Capacity <= 0 && cfg.MaxWeight <= 0 {
		return nil, ErrNoLimit
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &LRU[K, V]{cfg: cfg, ll: list.New(), items: make(map[K]*list.Element)}, nil
}

// Get 返回未过期的值并将其标记为最近使用。过期条目在此时被移除。
func (c *LRU[K, V]) Get(key K) (V, bool) {
	var zero V
	c.mu.Lock()
	el, ok := c.items[key]
	if !ok {
		c.mu.Unlock()
		return zero, false
	}
	e := el.Value.(*lruEntry[K, V])
	if c.expired(e) {
		c.remove(el)
		c.mu.Unlock()
		c.notify([]*lruEntry[K, V]{e})
		return zero, false
	}
	c.ll.MoveToFront(el)
	c.mu.Unlock()
	return e.value, true
}

// Put 插入或更新条目，weight 小于 1 时按 1 计算。
// 单个条目的权重超过 MaxWeight 时会立即被淘汰。
func (c *LRU[K, V]) Put(key K, value V, weight int) {
	if weight < 1 {
		weight = 1
	}
	c.mu.Lock()
	var expiresAt time.Time
	if c.cfg.TTL > 0 {
		expiresAt = c.cfg.Now().Add(c.cfg.TTL)
	}
	if el, ok := c.items[key]; ok {
		e := el.Value.(*lruEntry[K, V])
		c.weight += weight - e.weight
		e.value, e.weight, e.expiresAt = value, weight, expiresAt
		c.ll.MoveToFront(el)
	} else {
		c.items[key] = c.ll.PushFront(&lruEntry[K, V]{key: key, value: value, weight: weight, expiresAt: expiresAt})
		c.weight += weight
	}

	var evicted []*lruEntry[K, V]
	for c.overLimit() {
		back := c.ll.Back()
		if back == nil {
			break
		}
		evicted = append(evicted, back.Value.(*lruEntry[K, V]))
		c.remove(back)
	}
	c.mu.Unlock()
	c.notify(evicted)
}

// Delete 移除条目，不触发 OnEvict。
func (c *LRU[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if ok {
		c.remove(el)
	}
	return ok
}

// Purge 清空缓存。
func (c *LRU[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.items = make(map[K]*list.Element)
	c.weight = 0
}

// Len 返回当前条目数 (包括尚未被访问到的过期条目)。
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Weight 返回当前的总权重。
func (c *LRU[K, V]) Weight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.weight
}

func (c *LRU[K, V]) expired(e *lruEntry[K, V]) bool {
	return !e.expiresAt.IsZero() && !c.cfg.Now().Before(e.expiresAt)
}

func (c *LRU[K, V]) overLimit() bool {
	return (c.cfg.Capacity > 0 && c.ll.Len() > c.cfg.Capacity) ||
		(c.cfg.MaxWeight > 0 && c.weight > c.cfg.MaxWeight)
}

// remove 假设调用方已持有锁。
func (c *LRU[K, V]) remove(el *list.Element) {
	e := c.ll.Remove(el).(*lruEntry[K, V])
	delete(c.items, e.key)
	c.weight -= e.weight
}

func (c *LRU[K, V]) notify(entries []*lruEntry[K, V]) {
	if c.cfg.OnEvict == nil {
		return
	}
	for _, e := range entries {
		c.cfg.OnEvict(e.key, e.value)
	}
}
