package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrMiss    = errors.New("key not found in cache")
	ErrExpired = errors.New("key expired in cache")
)

type Cache[V any] interface {
	Get(ctx context.Context, key string) (V, error)
	Set(ctx context.Context, key string, value V, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

type cacheItem[V any] struct {
	value    V
	expireAt time.Time
}

type InMemoryCache[V any] struct {
	mu     sync.RWMutex
	items  map[string]*cacheItem[V]
	tracer trace.Tracer
	now    func() time.Time
}

func NewInMemoryCache[V any]() *InMemoryCache[V] {
	return &InMemoryCache[V]{
		items:  make(map[string]*cacheItem[V]),
		tracer: otel.Tracer("cache"),
		now:    time.Now,
	}
}

func (c *InMemoryCache[V]) Get(ctx context.Context, key string) (V, error) {
	_, span := c.tracer.Start(ctx, "cache.get",
		trace.WithAttributes(
			attribute.String("cache.key", key),
			attribute.String("operation", "cache.read"),
		))
	defer span.End()

	var zero V

	c.mu.RLock()
	item, exists := c.items[key]
	c.mu.RUnlock()

	if !exists {
		span.SetAttributes(
			attribute.Bool("cache.hit", false),
			attribute.String("cache.result", "miss"),
		)
		return zero, ErrMiss
	}

	if c.now().After(item.expireAt) {
		c.mu.Lock()
		if current, ok := c.items[key]; ok && current == item {
			delete(c.items, key)
		}
		c.mu.Unlock()
		span.SetAttributes(
			attribute.Bool("cache.hit", false),
			attribute.String("cache.result", "expired"),
		)
		return zero, ErrExpired
	}

	span.SetAttributes(
		attribute.Bool("cache.hit", true),
		attribute.String("cache.result", "hit"),
	)
	return item.value, nil
}

func (c *InMemoryCache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	_, span := c.tracer.Start(ctx, "cache.set",
		trace.WithAttributes(
			attribute.String("cache.key", key),
			attribute.String("operation", "cache.write"),
			attribute.String("ttl", ttl.String()),
		))
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = &cacheItem[V]{
		value:    value,
		expireAt: c.now().Add(ttl),
	}

	span.SetAttributes(attribute.Bool("success", true))
	return nil
}

func (c *InMemoryCache[V]) Delete(ctx context.Context, key string) error {
	_, span := c.tracer.Start(ctx, "cache.delete",
		trace.WithAttributes(
			attribute.String("cache.key", key),
			attribute.String("operation", "cache.write"),
		))
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	_, exists := c.items[key]
	delete(c.items, key)

	span.SetAttributes(
		attribute.Bool("key.existed", exists),
		attribute.Bool("success", true),
	)
	return nil
}

func (c *InMemoryCache[V]) Clear(ctx context.Context) error {
	_, span := c.tracer.Start(ctx, "cache.clear",
		trace.WithAttributes(
			attribute.String("operation", "cache.write"),
		))
	defer span.End()

	c.mu.Lock()
	defer c.mu.Unlock()

	itemCount := len(c.items)
	c.items = make(map[string]*cacheItem[V])

	span.SetAttributes(
		attribute.Int("items.cleared", itemCount),
		attribute.Bool("success", true),
	)
	return nil
}
