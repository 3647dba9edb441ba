package clientcache

import (
	"fmt"
	"sync"

	"alpacastream/internal/users"
	"alpacastream/pkg/alpaca"

	"go.uber.org/zap"
)

// Builder constructs a client from a user's current credentials.
type Builder func(u *users.User) (*alpaca.Client, error)

// Cache maps a user id to that user's Alpaca client. At most one client per
// user is live; concurrent misses for the same user build exactly once.
// Entries never expire and are only dropped by Invalidate or InvalidateAll.
type Cache struct {
	mu     sync.RWMutex
	store  Store[string, *alpaca.Client]
	build  Builder
	logger *zap.Logger
}

type Option func(*Cache)

// WithStore replaces the default in-process map.
func WithStore(s Store[string, *alpaca.Client]) Option {
	return func(c *Cache) { c.store = s }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

func New(build Builder, opts ...Option) *Cache {
	c := &Cache{
		store:  NewMapStore[string, *alpaca.Client](),
		build:  build,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewBuilder returns a Builder that creates clients with the shared options.
func NewBuilder(opts alpaca.Options, logger *zap.Logger) Builder {
	return func(u *users.User) (*alpaca.Client, error) {
		return alpaca.NewClient(u.Credentials(), opts, logger.With(zap.String("user_id", u.ID)))
	}
}

// GetOrCreate returns the cached client for u, building it on a miss.
// Build failures are returned and nothing is cached.
func (c *Cache) GetOrCreate(u *users.User) (*alpaca.Client, error) {
	// Fast path: shared lock only
	c.mu.RLock()
	client, ok := c.store.Get(u.ID)
	c.mu.RUnlock()
	if ok {
		return client, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// another caller may have built it while we waited
	if client, ok = c.store.Get(u.ID); ok {
		return client, nil
	}

	client, err := c.build(u)
	if err != nil {
		return nil, fmt.Errorf("build alpaca client for user %s: %w", u.ID, err)
	}
	c.store.Set(u.ID, client)
	c.logger.Debug("alpaca client cached", zap.String("user_id", u.ID))
	return client, nil
}

// Invalidate drops the user's entry. Handles already returned keep working.
func (c *Cache) Invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Delete(userID)
	c.logger.Debug("alpaca client invalidated", zap.String("user_id", userID))
}

func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Clear()
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.Len()
}
