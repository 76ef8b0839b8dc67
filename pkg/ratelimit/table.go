package ratelimit

import (
	"sync"
	"time"
)

// entry is a single key's limiter state. All reads and writes of val happen
// under mu. A dead entry has been pruned from the table and must be reloaded.
type entry[V any] struct {
	mu      sync.Mutex
	val     V
	present bool
	dead    bool
	touched time.Time
}

// table is a concurrent map with per-key locking. Operations on one key are
// serialised; operations on different keys never contend on the same lock.
type table[K comparable, V any] struct {
	m sync.Map // map[K]*entry[V]
}

func (t *table[K, V]) load(key K) *entry[V] {
	if e, ok := t.m.Load(key); ok {
		return e.(*entry[V])
	}
	e, _ := t.m.LoadOrStore(key, &entry[V]{})
	return e.(*entry[V])
}

// update runs fn with exclusive access to the state stored under key.
// fn receives a pointer to the value and whether it was present; it returns
// whether the value should remain present afterwards.
func (t *table[K, V]) update(key K, now time.Time, fn func(v *V, present bool) bool) {
	for {
		e := t.load(key)
		e.mu.Lock()
		if e.dead {
			e.mu.Unlock()
			continue
		}

		e.present = fn(&e.val, e.present)
		if !e.present {
			var zero V
			e.val = zero
		}
		e.touched = now
		e.mu.Unlock()
		return
	}
}

func (t *table[K, V]) remove(key K) {
	e, ok := t.m.Load(key)
	if !ok {
		return
	}
	ent := e.(*entry[V])
	ent.mu.Lock()
	var zero V
	ent.val = zero
	ent.present = false
	ent.mu.Unlock()
}

func (t *table[K, V]) get(key K) (V, bool) {
	var zero V
	e, ok := t.m.Load(key)
	if !ok {
		return zero, false
	}
	ent := e.(*entry[V])
	ent.mu.Lock()
	defer ent.mu.Unlock()
	if ent.dead || !ent.present {
		return zero, false
	}
	return ent.val, true
}

// prune drops entries that have not been touched since cutoff.
func (t *table[K, V]) prune(cutoff time.Time) int {
	removed := 0
	t.m.Range(func(k, v any) bool {
		e := v.(*entry[V])
		e.mu.Lock()
		if !e.touched.After(cutoff) {
			e.dead = true
			t.m.CompareAndDelete(k, e)
			removed++
		}
		e.mu.Unlock()
		return true
	})
	return removed
}
