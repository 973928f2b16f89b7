package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/stitts-dev/nba-projections/pkg/metrics"
)

// Memo is a read-through cache in front of an expensive computation.
// Concurrent misses for one key share a single computation, and that
// computation runs detached from the caller's cancellation so the result
// still lands in the store when the caller gives up.
type Memo[T any] struct {
	name    string
	store   Store
	ttl     time.Duration
	group   singleflight.Group
	logger  *logrus.Entry
	metrics *metrics.Manager
}

func NewMemo[T any](name string, store Store, ttl time.Duration, logger *logrus.Logger, m *metrics.Manager) *Memo[T] {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Memo[T]{
		name:    name,
		store:   store,
		ttl:     ttl,
		logger:  logger.WithFields(logrus.Fields{"component": "memo", "cache": name}),
		metrics: m,
	}
}

// Get returns the cached value for key, computing and storing it on miss.
// hit reports whether the value came from the store.
func (m *Memo[T]) Get(ctx context.Context, key string, compute func(context.Context) (T, error)) (value T, hit bool, err error) {
	var cached T
	if err := GetJSON(ctx, m.store, key, &cached); err == nil {
		m.metrics.RecordCacheLookup(m.name, true)
		return cached, true, nil
	} else if !errors.Is(err, ErrNotFound) {
		m.logger.WithError(err).WithField("key", key).Warn("Cache read failed, recomputing")
	}
	m.metrics.RecordCacheLookup(m.name, false)

	detached := context.WithoutCancel(ctx)
	ch := m.group.DoChan(key, func() (interface{}, error) {
		v, err := compute(detached)
		if err != nil {
			return v, err
		}
		if err := m.storeValue(detached, key, v); err != nil {
			m.logger.WithError(err).WithField("key", key).Warn("Cache write failed")
		}
		return v, nil
	})

	select {
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero T
			return zero, false, res.Err
		}
		return res.Val.(T), false, nil
	}
}

// Peek returns the stored value for key without computing on miss.
func (m *Memo[T]) Peek(ctx context.Context, key string) (T, bool, error) {
	var cached T
	err := GetJSON(ctx, m.store, key, &cached)
	switch {
	case err == nil:
		return cached, true, nil
	case errors.Is(err, ErrNotFound):
		return cached, false, nil
	}
	return cached, false, err
}

func (m *Memo[T]) storeValue(ctx context.Context, key string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, key, data, m.ttl)
}

// Invalidate drops keys from the backing store.
func (m *Memo[T]) Invalidate(ctx context.Context, keys ...string) error {
	return m.store.Delete(ctx, keys...)
}
