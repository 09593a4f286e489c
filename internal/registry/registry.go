// Package registry implements the bounded name -> resource mapping from
// spec.md §4.8, grounded on the teacher's collections/lru.Cache: a
// container/list-backed LRU ordering, generalized with per-entry last-
// activity timestamps and an eviction predicate so an entry whose resource
// is still "in use" (e.g. a circuit breaker not in its closed state) is
// never evicted even if it's the least-recently-touched.
package registry

import (
	"container/list"
	"sync"
	"time"
)

// InUseChecker reports whether a registered value must survive eviction
// regardless of idle age (spec.md §4.8, "an entry holding an in-use
// circuit-breaker state is never evicted").
type InUseChecker interface {
	InUse() bool
}

// GCStats summarizes one eviction scan, published as the lru_hash_gc event
// payload (spec.md §4.8).
type GCStats struct {
	Size     int
	Examined int
	Cleared  int
	Elapsed  time.Duration
}

type entry[V any] struct {
	name         string
	value        V
	lastActivity time.Time
}

// Registry is a thread-safe, optionally bounded name -> V mapping with
// idle-age eviction. Cap == 0 means unbounded.
type Registry[V any] struct {
	mu       sync.Mutex
	cap      int
	minAge   time.Duration
	items    map[string]*list.Element
	order    *list.List
	dirty    bool // set by AfterFork; cleared on first successful re-register
	onGC     func(GCStats)
}

// Config configures a Registry. Cap == 0 means unbounded; MinLRUAge
// defaults to 5 minutes per spec.md §4.8.
type Config struct {
	Cap      int
	MinLRUAge time.Duration
	OnGC      func(GCStats)
}

// New constructs a Registry.
func New[V any](cfg Config) *Registry[V] {
	minAge := cfg.MinLRUAge
	if minAge == 0 {
		minAge = 5 * time.Minute
	}
	return &Registry[V]{
		cap:    cfg.Cap,
		minAge: minAge,
		items:  make(map[string]*list.Element),
		order:  list.New(),
		onGC:   cfg.OnGC,
	}
}

// Lookup returns the value registered under name, marking it as recently
// used, or (zero, false) if absent.
func (r *Registry[V]) Lookup(name string) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if elem, ok := r.items[name]; ok {
		e := elem.Value.(*entry[V])
		e.lastActivity = time.Now()
		r.order.MoveToFront(elem)
		return e.value, true
	}
	var zero V
	return zero, false
}

// RetrieveOrRegister returns the existing value for name, or registers and
// returns makeValue() if absent. A call whose name is already present never
// runs makeValue (spec.md §8, "register(name, opts); lookup(name) returns
// the same resource object; re-registering with identical opts is a
// no-op"). makeValue runs without the lock held, so concurrent first calls
// for the same name may each run it; only the first value inserted is kept
// and returned to all of them, and the others are discarded.
func (r *Registry[V]) RetrieveOrRegister(name string, makeValue func() V) (value V, existed bool) {
	r.mu.Lock()
	if elem, ok := r.items[name]; ok {
		e := elem.Value.(*entry[V])
		e.lastActivity = time.Now()
		r.order.MoveToFront(elem)
		r.mu.Unlock()
		return e.value, true
	}
	r.mu.Unlock()

	v := makeValue()

	r.mu.Lock()
	defer r.mu.Unlock()
	// Re-check: another goroutine may have registered name while makeValue
	// ran unlocked.
	if elem, ok := r.items[name]; ok {
		e := elem.Value.(*entry[V])
		e.lastActivity = time.Now()
		r.order.MoveToFront(elem)
		return e.value, true
	}

	r.insertLocked(name, v)
	return v, false
}

// Register inserts name -> value unconditionally, replacing any existing
// entry.
func (r *Registry[V]) Register(name string, value V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if elem, ok := r.items[name]; ok {
		elem.Value.(*entry[V]).value = value
		elem.Value.(*entry[V]).lastActivity = time.Now()
		r.order.MoveToFront(elem)
		return
	}
	r.insertLocked(name, value)
}

func (r *Registry[V]) insertLocked(name string, value V) {
	if r.cap > 0 && r.order.Len() >= r.cap {
		r.evictIdleLocked()
	}
	e := &entry[V]{name: name, value: value, lastActivity: time.Now()}
	elem := r.order.PushFront(e)
	r.items[name] = elem
	r.dirty = false
}

// evictIdleLocked scans from the least-recently-used end, evicting entries
// whose last activity is older than minAge, skipping any whose value
// reports InUse() == true. Must be called with mu held.
func (r *Registry[V]) evictIdleLocked() {
	start := time.Now()
	examined := 0
	cleared := 0

	elem := r.order.Back()
	for elem != nil {
		prev := elem.Prev()
		e := elem.Value.(*entry[V])
		examined++

		if time.Since(e.lastActivity) >= r.minAge {
			if checker, ok := any(e.value).(InUseChecker); !ok || !checker.InUse() {
				r.order.Remove(elem)
				delete(r.items, e.name)
				cleared++
			}
		}
		elem = prev
	}

	if r.onGC != nil {
		r.onGC(GCStats{
			Size:     r.order.Len(),
			Examined: examined,
			Cleared:  cleared,
			Elapsed:  time.Since(start),
		})
	}
}

// Destroy removes name. Calling Destroy twice for the same name is a no-op
// the second time (spec.md §8, "destroy(name) twice behaves identically to
// once").
func (r *Registry[V]) Destroy(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if elem, ok := r.items[name]; ok {
		r.order.Remove(elem)
		delete(r.items, name)
	}
}

// Len returns the number of registered entries.
func (r *Registry[V]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order.Len()
}

// Names returns every registered name, most-recently-used first.
func (r *Registry[V]) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, r.order.Len())
	for elem := r.order.Front(); elem != nil; elem = elem.Next() {
		names = append(names, elem.Value.(*entry[V]).name)
	}
	return names
}

// AfterFork marks the registry dirty and clears it: a forked child must
// re-register any resource it uses (spec.md §4.8, "On fork: child process
// must re-register resources it uses; registry in child starts empty or
// marked dirty").
func (r *Registry[V]) AfterFork() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = make(map[string]*list.Element)
	r.order = list.New()
	r.dirty = true
}

// Dirty reports whether AfterFork has run without a subsequent Register.
func (r *Registry[V]) Dirty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dirty
}
