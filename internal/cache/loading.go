package cache

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loading is an LRU cache that fills misses through a loader. Concurrent
// misses on one key share a single load. Invalidation discards results of
// loads that were in flight when it happened, and callers arriving after it
// start a fresh load instead of joining the stale one.
type Loading[T any] struct {
	lru     *LRUCache[T]
	group   singleflight.Group
	gen     atomic.Uint64
	observe func(hit bool)
}

type LoadingOption[T any] func(*Loading[T])

// WithObserver registers a callback invoked on every Get with whether it was
// served from memory.
func WithObserver[T any](fn func(hit bool)) LoadingOption[T] {
	return func(l *Loading[T]) { l.observe = fn }
}

func NewLoading[T any](maxSize int, ttl time.Duration, opts ...LoadingOption[T]) *Loading[T] {
	l := &Loading[T]{lru: NewLRUCache[T](maxSize, ttl)}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Get returns the cached value for key or runs load. The load is detached
// from ctx cancellation so that a departing caller does not fail the
// others waiting on it; Get itself still returns when ctx is done.
func (l *Loading[T]) Get(ctx context.Context, key string, load func(context.Context) (T, error)) (T, error) {
	if v, ok := l.lru.Get(key); ok {
		l.record(true)
		return v, nil
	}
	l.record(false)

	gen := l.gen.Load()
	ch := l.group.DoChan(strconv.FormatUint(gen, 10)+":"+key, func() (interface{}, error) {
		v, err := load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		if l.gen.Load() == gen {
			l.lru.Set(key, v)
		}
		return v, nil
	})

	var zero T
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Peek returns a cached value without loading.
func (l *Loading[T]) Peek(key string) (T, bool) {
	return l.lru.Get(key)
}

func (l *Loading[T]) Invalidate(key string) {
	l.gen.Add(1)
	l.lru.Delete(key)
}

// InvalidateAll drops every entry and returns how many were removed.
func (l *Loading[T]) InvalidateAll() int {
	l.gen.Add(1)
	return l.lru.Purge()
}

func (l *Loading[T]) CleanExpired() int {
	return l.lru.CleanExpired()
}

func (l *Loading[T]) Size() int {
	return l.lru.Size()
}

func (l *Loading[T]) record(hit bool) {
	if l.observe != nil {
		l.observe(hit)
	}
}
