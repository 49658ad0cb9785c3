// Package cache holds per-session lookup state the bot accumulates while
// online: uin/uid identity mappings and server-issued cookies. Everything
// here is ephemeral; the keystore owns anything worth persisting.
package cache

import "sync"

// Cache is a concurrent session cache owned by the bot root context.
type Cache struct {
	mu      sync.RWMutex
	uinUid  map[uint64]string
	uidUin  map[string]uint64
	cookies map[string][]byte
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{
		uinUid:  make(map[uint64]string),
		uidUin:  make(map[string]uint64),
		cookies: make(map[string][]byte),
	}
}

// PutUser records both directions of a uin/uid identity pair.
func (c *Cache) PutUser(uin uint64, uid string) {
	if uin == 0 || uid == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uinUid[uin] = uid
	c.uidUin[uid] = uin
}

// UidByUin resolves a numeric account id to its opaque uid.
func (c *Cache) UidByUin(uin uint64) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	uid, ok := c.uinUid[uin]
	return uid, ok
}

// UinByUid resolves an opaque uid back to the numeric account id.
func (c *Cache) UinByUid(uid string) (uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	uin, ok := c.uidUin[uid]
	return uin, ok
}

// SetCookie stores a server-issued cookie under its domain key.
func (c *Cache) SetCookie(domain string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cookies[domain] = value
}

// Cookie returns the cookie stored for a domain.
func (c *Cache) Cookie(domain string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.cookies[domain]
	return v, ok
}

// Clear drops all cached state. Called on logout and on keystore clear.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uinUid = make(map[uint64]string)
	c.uidUin = make(map[string]uint64)
	c.cookies = make(map[string][]byte)
}
