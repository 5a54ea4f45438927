// ABOUTME: Thread-safe TTL registry holding per-client console state.
// ABOUTME: Entries expire after an idle TTL; the oldest entry is evicted when full.

package registry

import (
	"container/list"
	"sync"
	"time"
)

// EvictReason says why an entry left the registry
type EvictReason string

const (
	ReasonExpired  EvictReason = "expired"
	ReasonCapacity EvictReason = "capacity"
	ReasonDeleted  EvictReason = "deleted"
)

// EvictFunc is called after an entry is removed, outside the registry lock
type EvictFunc[V any] func(key string, value V, reason EvictReason)

type entry[V any] struct {
	value    V
	lastSeen time.Time
	element  *list.Element
}

// Registry maps client IDs to values. Get refreshes an entry's idle timer.
// A doubly-linked list keeps entries in least-recently-used order so the
// capacity eviction is O(1).
type Registry[V any] struct {
	mu      sync.Mutex
	entries map[string]*entry[V]
	order   *list.List // keys, least recently used at front
	ttl     time.Duration
	maxSize int
	onEvict EvictFunc[V]
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

type evicted[V any] struct {
	key    string
	value  V
	reason EvictReason
}

// New creates a registry. A background goroutine sweeps expired entries
// every sweepInterval (a minute when zero). onEvict may be nil.
func New[V any](ttl time.Duration, maxSize int, sweepInterval time.Duration, onEvict EvictFunc[V]) *Registry[V] {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	r := &Registry[V]{
		entries: make(map[string]*entry[V]),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		onEvict: onEvict,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go r.sweep(sweepInterval)
	return r
}

// Get returns the live value for key and refreshes its idle timer
func (r *Registry[V]) Get(key string) (V, bool) {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		r.mu.Unlock()
		var zero V
		return zero, false
	}

	now := r.now()
	if r.expiredLocked(e, now) {
		gone := r.removeLocked(key, e, ReasonExpired)
		r.mu.Unlock()
		r.notify(gone)
		var zero V
		return zero, false
	}

	e.lastSeen = now
	r.order.MoveToBack(e.element)
	v := e.value
	r.mu.Unlock()
	return v, true
}

// GetOrCreate returns the value for key, creating it with create when absent
// or expired. created reports whether create ran.
func (r *Registry[V]) GetOrCreate(key string, create func() V) (value V, created bool) {
	if v, ok := r.Get(key); ok {
		return v, false
	}

	r.mu.Lock()
	// Another request may have created it between Get and Lock.
	if e, ok := r.entries[key]; ok && !r.expiredLocked(e, r.now()) {
		e.lastSeen = r.now()
		r.order.MoveToBack(e.element)
		v := e.value
		r.mu.Unlock()
		return v, false
	}
	v := create()
	gone := r.putLocked(key, v)
	r.mu.Unlock()

	r.notify(gone...)
	return v, true
}

// Put stores value under key, replacing any previous value. If the registry
// is full the least recently used entry is evicted.
func (r *Registry[V]) Put(key string, value V) {
	r.mu.Lock()
	gone := r.putLocked(key, value)
	r.mu.Unlock()
	r.notify(gone...)
}

func (r *Registry[V]) putLocked(key string, value V) []evicted[V] {
	now := r.now()

	if e, exists := r.entries[key]; exists {
		e.value = value
		e.lastSeen = now
		r.order.MoveToBack(e.element)
		return nil
	}

	var gone []evicted[V]
	for r.maxSize > 0 && len(r.entries) >= r.maxSize {
		front := r.order.Front()
		if front == nil {
			break
		}
		k, _ := front.Value.(string)
		gone = append(gone, r.removeLocked(k, r.entries[k], ReasonCapacity))
	}

	r.entries[key] = &entry[V]{
		value:    value,
		lastSeen: now,
		element:  r.order.PushBack(key),
	}
	return gone
}

// Delete removes key if present
func (r *Registry[V]) Delete(key string) {
	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		r.mu.Unlock()
		return
	}
	gone := r.removeLocked(key, e, ReasonDeleted)
	r.mu.Unlock()
	r.notify(gone)
}

// Len returns the number of stored entries, including expired ones not yet swept
func (r *Registry[V]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry[V]) expiredLocked(e *entry[V], now time.Time) bool {
	return r.ttl > 0 && now.Sub(e.lastSeen) >= r.ttl
}

// removeLocked must be called with mu held
func (r *Registry[V]) removeLocked(key string, e *entry[V], reason EvictReason) evicted[V] {
	r.order.Remove(e.element)
	delete(r.entries, key)
	return evicted[V]{key: key, value: e.value, reason: reason}
}

func (r *Registry[V]) notify(gone ...evicted[V]) {
	if r.onEvict == nil {
		return
	}
	for _, g := range gone {
		r.onEvict(g.key, g.value, g.reason)
	}
}

func (r *Registry[V]) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.runSweep()
		case <-r.done:
			return
		}
	}
}

// runSweep removes every expired entry
func (r *Registry[V]) runSweep() {
	r.mu.Lock()
	now := r.now()
	var gone []evicted[V]
	for key, e := range r.entries {
		if r.expiredLocked(e, now) {
			gone = append(gone, r.removeLocked(key, e, ReasonExpired))
		}
	}
	r.mu.Unlock()
	r.notify(gone...)
}

// Close stops the sweeper. It is safe to call multiple times. Entries are
// left in place.
func (r *Registry[V]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.closed {
		close(r.done)
		r.closed = true
	}
}
