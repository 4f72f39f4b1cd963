package cache

import (
	"context"
	"sync"
	"time"

	"posdemo/backend/internal/domain"
)

// CartCache holds open cart sessions between requests. Entries expire after
// the ttl passed to Set.
type CartCache interface {
	Get(ctx context.Context, id string) (*domain.CartSession, bool, error)
	Set(ctx context.Context, session *domain.CartSession, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

type memoryEntry struct {
	session   domain.CartSession
	expiresAt time.Time
}

type MemoryCartCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCartCache() *MemoryCartCache {
	return &MemoryCartCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCartCache) Get(_ context.Context, id string) (*domain.CartSession, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[id]
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		delete(c.entries, id)
		return nil, false, nil
	}
	session := cloneSession(entry.session)
	return &session, true, nil
}

func (c *MemoryCartCache) Set(_ context.Context, session *domain.CartSession, ttl time.Duration) error {
	if session == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := memoryEntry{session: cloneSession(*session)}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.entries[session.ID] = entry
	c.sweepLocked()
	return nil
}

func (c *MemoryCartCache) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	return nil
}

func (c *MemoryCartCache) sweepLocked() {
	now := c.now()
	for id, entry := range c.entries {
		if !entry.expiresAt.IsZero() && !now.Before(entry.expiresAt) {
			delete(c.entries, id)
		}
	}
}

func cloneSession(session domain.CartSession) domain.CartSession {
	session.Items = append([]domain.CartItem(nil), session.Items...)
	return session
}
