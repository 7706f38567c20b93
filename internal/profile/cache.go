package profile

import (
	"sync"
	"time"
)

// Cache holds sender profiles in memory along with per-sender verification
// state. Lookups tolerate differing country-code prefixes by also comparing
// the last ten digits.
type Cache struct {
	mu            sync.Mutex
	users         map[string]*Context
	lastCheck     map[string]time.Time
	validatedDay  map[string]string
	pendingSecret map[string]bool

	recheck time.Duration
	now     func() time.Time
}

func NewCache(recheck time.Duration) *Cache {
	if recheck <= 0 {
		recheck = 15 * time.Minute
	}
	return &Cache{
		users:         make(map[string]*Context),
		lastCheck:     make(map[string]time.Time),
		validatedDay:  make(map[string]string),
		pendingSecret: make(map[string]bool),
		recheck:       recheck,
		now:           time.Now,
	}
}

// key finds the stored key matching a phone, tolerating prefix differences.
func (c *Cache) key(phone string) string {
	clean := NormalizePhone(phone)
	if _, ok := c.users[clean]; ok {
		return clean
	}
	suffix := lastDigits(clean, 10)
	for k := range c.users {
		if lastDigits(k, 10) == suffix {
			return k
		}
	}
	return clean
}

// Get returns the cached profile for a sender, or nil.
func (c *Cache) Get(phone string) *Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.users[c.key(phone)]
}

// Put stores a profile and resets its freshness clock.
func (c *Cache) Put(user *Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := NormalizePhone(user.Phone)
	c.users[k] = user
	c.lastCheck[k] = c.now()
}

// Remove drops a sender entirely, verification state included.
func (c *Cache) Remove(phone string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := c.key(phone)
	delete(c.users, k)
	delete(c.lastCheck, k)
	delete(c.validatedDay, k)
	delete(c.pendingSecret, k)
}

// NeedsRecheck reports whether the directory should be consulted again for
// this sender.
func (c *Cache) NeedsRecheck(phone string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	last, ok := c.lastCheck[c.key(phone)]
	if !ok {
		return true
	}
	return c.now().Sub(last) > c.recheck
}

// MarkChecked resets the freshness clock without touching the profile.
func (c *Cache) MarkChecked(phone string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastCheck[c.key(phone)] = c.now()
}

// day boundaries follow local time.
func (c *Cache) today() string {
	return c.now().Format("2006-01-02")
}

// ValidatedToday reports whether the sender passed employee verification
// today.
func (c *Cache) ValidatedToday(phone string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validatedDay[c.key(phone)] == c.today()
}

// MarkValidated records a successful employee verification for today.
func (c *Cache) MarkValidated(phone string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.validatedDay[c.key(phone)] = c.today()
}

// SetPending arms secret collection: the sender's next message is treated
// as their verification secret.
func (c *Cache) SetPending(phone string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingSecret[c.key(phone)] = true
}

// IsPending reports whether the sender owes a verification secret.
func (c *Cache) IsPending(phone string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingSecret[c.key(phone)]
}

// ClearPending disarms secret collection.
func (c *Cache) ClearPending(phone string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pendingSecret, c.key(phone))
}
