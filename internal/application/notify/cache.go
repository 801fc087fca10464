package notify

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-notify-core/internal/domain"
	"github.com/go-notify-core/internal/infrastructure/kvstore"
)

// Cache is the dedup gate plus the rolling offline cache for one user,
// persisted through the local key-value store.
//
// The seen-id set is bounded (most recent seenLimit ids, newest first) so it
// cannot grow without limit across the install's lifetime. The rolling cache
// keeps the newest `limit` notifications and serves as the fallback data
// source when the remote fetch fails.
type Cache struct {
	mu        sync.Mutex
	kv        *kvstore.Store
	userID    string
	limit     int
	seenLimit int

	entries []domain.UserNotification // newest first
	seen    []string                  // newest first
	seenSet map[string]struct{}
}

// NewCache loads any persisted state for userID from kv. Corrupt persisted
// state is discarded rather than failing construction: the cache is an
// optimization layer, never a hard dependency.
func NewCache(kv *kvstore.Store, userID string, limit, seenLimit int) *Cache {
	c := &Cache{
		kv:        kv,
		userID:    userID,
		limit:     limit,
		seenLimit: seenLimit,
		seenSet:   make(map[string]struct{}),
	}
	if _, err := kv.Get(c.cacheKey(), &c.entries); err != nil {
		slog.Warn("discarding corrupt notification cache", "user_id", userID, "err", err)
		c.entries = nil
		_ = kv.Remove(c.cacheKey())
	}
	if _, err := kv.Get(c.seenKey(), &c.seen); err != nil {
		slog.Warn("discarding corrupt seen-id set", "user_id", userID, "err", err)
		c.seen = nil
		_ = kv.Remove(c.seenKey())
	}
	for _, id := range c.seen {
		c.seenSet[id] = struct{}{}
	}
	return c
}

func (c *Cache) cacheKey() string { return "notifications_cache#" + c.userID }
func (c *Cache) seenKey() string  { return "notifications_seen#" + c.userID }

// ShouldProcess reports whether notificationID has not been handled before,
// and marks it handled. The check-and-mark is atomic: two racing deliveries
// of the same id yield exactly one true.
func (c *Cache) ShouldProcess(notificationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seenSet[notificationID]; ok {
		return false
	}
	c.seenSet[notificationID] = struct{}{}
	c.seen = append([]string{notificationID}, c.seen...)
	if len(c.seen) > c.seenLimit {
		for _, evicted := range c.seen[c.seenLimit:] {
			delete(c.seenSet, evicted)
		}
		c.seen = c.seen[:c.seenLimit]
	}
	if err := c.kv.Set(c.seenKey(), c.seen); err != nil {
		// Persistence failure narrows dedup to this process only.
		return true
	}
	return true
}

// Persist prepends the notification to the rolling cache. An existing entry
// with the same notification id is replaced and moved to the front; the list
// is truncated to the cache limit.
func (c *Cache) Persist(un domain.UserNotification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	filtered := make([]domain.UserNotification, 0, len(c.entries)+1)
	filtered = append(filtered, un)
	for _, e := range c.entries {
		if e.NotificationID != un.NotificationID {
			filtered = append(filtered, e)
		}
	}
	if len(filtered) > c.limit {
		filtered = filtered[:c.limit]
	}
	c.entries = filtered
	if err := c.kv.Set(c.cacheKey(), c.entries); err != nil {
		return fmt.Errorf("persist notification cache: %w", err)
	}
	return nil
}

// Update replaces the cached entry with the same notification id in place,
// keeping its position. Unknown ids are prepended. Use this for state
// transitions (read, clicked) that must not reorder the list.
func (c *Cache) Update(un domain.UserNotification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	found := false
	for i := range c.entries {
		if c.entries[i].NotificationID == un.NotificationID {
			c.entries[i] = un
			found = true
			break
		}
	}
	if !found {
		c.entries = append([]domain.UserNotification{un}, c.entries...)
		if len(c.entries) > c.limit {
			c.entries = c.entries[:c.limit]
		}
	}
	if err := c.kv.Set(c.cacheKey(), c.entries); err != nil {
		return fmt.Errorf("persist notification cache: %w", err)
	}
	return nil
}

// ReplaceAll overwrites the cached list wholesale, truncated to the cache
// limit. Used after an authoritative remote fetch.
func (c *Cache) ReplaceAll(entries []domain.UserNotification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make([]domain.UserNotification, len(entries))
	copy(c.entries, entries)
	if len(c.entries) > c.limit {
		c.entries = c.entries[:c.limit]
	}
	if err := c.kv.Set(c.cacheKey(), c.entries); err != nil {
		return fmt.Errorf("persist notification cache: %w", err)
	}
	return nil
}

// LoadAll returns the cached notifications, most recent first.
func (c *Cache) LoadAll() []domain.UserNotification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.UserNotification, len(c.entries))
	copy(out, c.entries)
	return out
}

// Page returns the cached slice for the given window, most recent first.
func (c *Cache) Page(limit, offset int) []domain.UserNotification {
	c.mu.Lock()
	defer c.mu.Unlock()
	if offset >= len(c.entries) {
		return []domain.UserNotification{}
	}
	end := offset + limit
	if end > len(c.entries) {
		end = len(c.entries)
	}
	out := make([]domain.UserNotification, end-offset)
	copy(out, c.entries[offset:end])
	return out
}

// Clear empties the rolling cache. The seen-id set survives: clearing the
// inbox must not make old notifications deliverable again.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
	return c.kv.Remove(c.cacheKey())
}
