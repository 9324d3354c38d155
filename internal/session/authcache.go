package session

import (
	"container/list"
	"sync"
	"time"

	"github.com/voltgrid/csms/internal/domain"
)

const authCacheCapacity = 1000

type authEntry struct {
	tag       string
	status    domain.AuthorizationStatus
	expiresAt time.Time
}

// AuthCache is the per-session authorization cache: tag to verdict
// with a TTL and an LRU cap. It survives disconnects so a charger that
// reconnects can keep authorizing recently seen tags without a store
// round trip.
type AuthCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	order *list.List
	items map[string]*list.Element
}

func NewAuthCache(ttl time.Duration) *AuthCache {
	return &AuthCache{
		ttl:   ttl,
		order: list.New(),
		items: make(map[string]*list.Element),
	}
}

func (c *AuthCache) Get(tag string) (domain.AuthorizationStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[tag]
	if !ok {
		return "", false
	}
	entry := elem.Value.(*authEntry)
	if time.Now().After(entry.expiresAt) {
		c.order.Remove(elem)
		delete(c.items, tag)
		return "", false
	}
	c.order.MoveToFront(elem)
	return entry.status, true
}

func (c *AuthCache) Put(tag string, status domain.AuthorizationStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[tag]; ok {
		entry := elem.Value.(*authEntry)
		entry.status = status
		entry.expiresAt = time.Now().Add(c.ttl)
		c.order.MoveToFront(elem)
		return
	}

	c.items[tag] = c.order.PushFront(&authEntry{
		tag:       tag,
		status:    status,
		expiresAt: time.Now().Add(c.ttl),
	})

	for c.order.Len() > authCacheCapacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*authEntry).tag)
	}
}

func (c *AuthCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
