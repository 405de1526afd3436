package main

import (
	"sync"
	"time"
)

// cachedSession is a cache entry with its insertion time
type cachedSession struct {
	result   *PipelineResult
	storedAt time.Time
}

// SessionCache provides thread-safe caching of recent pipeline results
type SessionCache struct {
	mu       sync.RWMutex
	sessions map[string]cachedSession
	ttl      time.Duration
	now      func() time.Time
}

// NewSessionCache creates a new session cache with the specified TTL
func NewSessionCache(ttl time.Duration) *SessionCache {
	return &SessionCache{
		sessions: make(map[string]cachedSession),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get retrieves a session if present and not expired
func (c *SessionCache) Get(sessionID string) (*PipelineResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.sessions[sessionID]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.storedAt) > c.ttl {
		return nil, false
	}
	return entry.result, true
}

// Set stores a session result
func (c *SessionCache) Set(result *PipelineResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sessions[result.SessionID] = cachedSession{result: result, storedAt: c.now()}
}

// Prune removes expired entries and returns how many were removed
func (c *SessionCache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id, entry := range c.sessions {
		if c.now().Sub(entry.storedAt) > c.ttl {
			delete(c.sessions, id)
			removed++
		}
	}
	return removed
}

// Clear removes all sessions from the cache
func (c *SessionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sessions = make(map[string]cachedSession)
}

// Size returns the number of cached sessions, expired or not
func (c *SessionCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.sessions)
}
