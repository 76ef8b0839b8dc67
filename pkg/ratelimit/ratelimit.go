// Package ratelimit provides in-memory, per-key rate limiters.
//
// Three strategies are available:
//
//   - ConstantRefillBucket: a token bucket refilled by one token per elapsed interval.
//   - FixedRefillBucket: a bucket that is refilled to max in one jump once the
//     window has elapsed.
//   - Throttler: an exponential backoff keyed on failures.
//
// State is held in process memory only and is scoped to the limiter's lifetime.
// Every check is an atomic read-modify-write on the key's entry.
package ratelimit

import "time"

// Option configures a limiter.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source. Mostly useful in tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type bucket struct {
	count      int
	refilledAt time.Time
}

// ConstantRefillBucket allows max cost units per key and gives back one unit
// per elapsed refill interval.
type ConstantRefillBucket[K comparable] struct {
	max      int
	interval time.Duration
	now      func() time.Time
	storage  table[K, bucket]
}

func NewConstantRefillBucket[K comparable](max int, refillInterval time.Duration, opts ...Option) *ConstantRefillBucket[K] {
	if max <= 0 || refillInterval <= 0 {
		panic("ratelimit: max and refill interval must be positive")
	}
	o := buildOptions(opts)
	return &ConstantRefillBucket[K]{
		max:      max,
		interval: refillInterval,
		now:      o.now,
	}
}

// Check consumes cost units for key and reports whether the call is allowed.
// A rejected call leaves the stored state untouched.
func (b *ConstantRefillBucket[K]) Check(key K, cost int) bool {
	now := b.now()
	allowed := false

	b.storage.update(key, now, func(v *bucket, present bool) bool {
		if !present {
			if cost > b.max {
				return false
			}
			*v = bucket{count: b.max - cost, refilledAt: now}
			allowed = true
			return true
		}

		refill := int(now.Sub(v.refilledAt) / b.interval)
		if refill > 0 {
			v.count = min(v.count+refill, b.max)
			v.refilledAt = now
		}
		if v.count < cost {
			return true
		}
		v.count -= cost
		allowed = true
		return true
	})

	return allowed
}

// Remaining reports the stored count for key without applying a refill.
func (b *ConstantRefillBucket[K]) Remaining(key K) (int, bool) {
	v, ok := b.storage.get(key)
	return v.count, ok
}

// Prune drops keys that have not been checked for maxIdle.
func (b *ConstantRefillBucket[K]) Prune(maxIdle time.Duration) int {
	return b.storage.prune(b.now().Add(-maxIdle))
}

// FixedRefillBucket allows max cost units per key per window. The window
// starts on first use and the count jumps back to max once it has elapsed.
type FixedRefillBucket[K comparable] struct {
	max      int
	interval time.Duration
	now      func() time.Time
	storage  table[K, bucket]
}

func NewFixedRefillBucket[K comparable](max int, refillInterval time.Duration, opts ...Option) *FixedRefillBucket[K] {
	if max <= 0 || refillInterval <= 0 {
		panic("ratelimit: max and refill interval must be positive")
	}
	o := buildOptions(opts)
	return &FixedRefillBucket[K]{
		max:      max,
		interval: refillInterval,
		now:      o.now,
	}
}

// Check consumes cost units for key and reports whether the call is allowed.
func (b *FixedRefillBucket[K]) Check(key K, cost int) bool {
	now := b.now()
	allowed := false

	b.storage.update(key, now, func(v *bucket, present bool) bool {
		if !present {
			if cost > b.max {
				return false
			}
			*v = bucket{count: b.max - cost, refilledAt: now}
			allowed = true
			return true
		}

		if now.Sub(v.refilledAt) >= b.interval {
			v.count = b.max
			v.refilledAt = now
		}
		if v.count < cost {
			return true
		}
		v.count -= cost
		allowed = true
		return true
	})

	return allowed
}

// Reset forgets everything recorded for key.
func (b *FixedRefillBucket[K]) Reset(key K) {
	b.storage.remove(key)
}

// Remaining reports the stored count for key without applying a refill.
func (b *FixedRefillBucket[K]) Remaining(key K) (int, bool) {
	v, ok := b.storage.get(key)
	return v.count, ok
}

func (b *FixedRefillBucket[K]) Prune(maxIdle time.Duration) int {
	return b.storage.prune(b.now().Add(-maxIdle))
}

type throttle struct {
	timeout   int
	updatedAt time.Time
}

// Throttler enforces an increasing wait between failed attempts. The wait
// after a failure is timeouts[n-1] where n is the number of consecutive
// failures, clamped to the last entry.
type Throttler[K comparable] struct {
	timeouts []time.Duration
	now      func() time.Time
	storage  table[K, throttle]
}

func NewThrottler[K comparable](timeouts []time.Duration, opts ...Option) *Throttler[K] {
	if len(timeouts) == 0 {
		panic("ratelimit: throttler needs at least one timeout")
	}
	o := buildOptions(opts)
	return &Throttler[K]{
		timeouts: append([]time.Duration(nil), timeouts...),
		now:      o.now,
	}
}

// Check reports whether key may attempt again. It does not change state.
func (t *Throttler[K]) Check(key K) bool {
	v, ok := t.storage.get(key)
	if !ok {
		return true
	}
	return t.now().Sub(v.updatedAt) >= t.timeouts[v.timeout]
}

// Increment records a failure for key.
func (t *Throttler[K]) Increment(key K) {
	now := t.now()
	t.storage.update(key, now, func(v *throttle, present bool) bool {
		if !present {
			*v = throttle{timeout: 0, updatedAt: now}
			return true
		}
		v.timeout = min(v.timeout+1, len(t.timeouts)-1)
		v.updatedAt = now
		return true
	})
}

// Reset clears the failures recorded for key.
func (t *Throttler[K]) Reset(key K) {
	t.storage.remove(key)
}

// RetryAfter reports how long key must still wait, zero when Check would pass.
func (t *Throttler[K]) RetryAfter(key K) time.Duration {
	v, ok := t.storage.get(key)
	if !ok {
		return 0
	}
	wait := t.timeouts[v.timeout] - t.now().Sub(v.updatedAt)
	if wait < 0 {
		return 0
	}
	return wait
}

func (t *Throttler[K]) Prune(maxIdle time.Duration) int {
	return t.storage.prune(t.now().Add(-maxIdle))
}
