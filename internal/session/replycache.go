package session

import (
	"sync"
	"time"
)

type replyKey struct {
	chargePointID string
	messageID     string
}

type replyEntry struct {
	data      []byte
	expiresAt time.Time
}

// ReplyCache retains the CALLRESULT sent for each inbound messageId so
// transport-level redeliveries (MQTT QoS 1, WebSocket retries crossing
// a reconnect) are answered byte-identically without re-running the
// handler.
type ReplyCache struct {
	mu      sync.Mutex
	entries map[replyKey]replyEntry
	ttl     time.Duration
	stopCh  chan struct{}
	stopped sync.Once
}

func NewReplyCache(ttl time.Duration) *ReplyCache {
	c := &ReplyCache{
		entries: make(map[replyKey]replyEntry),
		ttl:     ttl,
		stopCh:  make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Get returns the cached reply for (chargePointID, messageID) if it is
// still within the dedup window.
func (c *ReplyCache) Get(chargePointID, messageID string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[replyKey{chargePointID, messageID}]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.data, true
}

// Put stores the reply sent for (chargePointID, messageID).
func (c *ReplyCache) Put(chargePointID, messageID string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[replyKey{chargePointID, messageID}] = replyEntry{
		data:      data,
		expiresAt: time.Now().Add(c.ttl),
	}
}

func (c *ReplyCache) Stop() {
	c.stopped.Do(func() { close(c.stopCh) })
}

func (c *ReplyCache) sweepLoop() {
	interval := c.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stopCh:
			return
		}
	}
}

func (c *ReplyCache) sweep() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}
