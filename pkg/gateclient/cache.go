package gateclient

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// SessionCache remembers which modules the signed-in user has unlocked, for
// the lifetime of one session. It is optimistic on writes and fail-closed on
// reads: a failed load leaves the cache empty, so the worst outcome of a
// broken read path is an extra server check, never phantom access.
type SessionCache struct {
	mu      sync.RWMutex
	modules map[string]struct{}
	loaded  bool
}

// NewSessionCache creates an empty session cache.
func NewSessionCache() *SessionCache {
	return &SessionCache{modules: make(map[string]struct{})}
}

// Load populates the cache from the user's server-side activations. On error
// the cache stays empty and the error is returned for logging; callers keep
// going with per-module checks.
func (c *SessionCache) Load(ctx context.Context, client *Client, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return nil
	}
	activations, err := client.ListActivations(ctx, userID)
	if err != nil {
		c.mu.Lock()
		c.modules = make(map[string]struct{})
		c.loaded = false
		c.mu.Unlock()
		return err
	}

	modules := make(map[string]struct{}, len(activations))
	for _, a := range activations {
		if a.Active {
			modules[a.ModuleID] = struct{}{}
		}
	}
	c.mu.Lock()
	c.modules = modules
	c.loaded = true
	c.mu.Unlock()
	return nil
}

// Add records a module as unlocked. Called right after a successful
// activation so the UI flips without waiting for a reload.
func (c *SessionCache) Add(moduleID string) {
	c.mu.Lock()
	c.modules[moduleID] = struct{}{}
	c.mu.Unlock()
}

// Remove drops a module from the cache.
func (c *SessionCache) Remove(moduleID string) {
	c.mu.Lock()
	delete(c.modules, moduleID)
	c.mu.Unlock()
}

// Contains reports whether the module is cached as unlocked.
func (c *SessionCache) Contains(moduleID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.modules[moduleID]
	return ok
}

// Loaded reports whether the last Load succeeded. A false value means a
// Contains miss proves nothing and the server should be asked.
func (c *SessionCache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Reset clears the cache, typically on sign-out.
func (c *SessionCache) Reset() {
	c.mu.Lock()
	c.modules = make(map[string]struct{})
	c.loaded = false
	c.mu.Unlock()
}
