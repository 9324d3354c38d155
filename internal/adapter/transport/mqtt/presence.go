package mqtt

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// presenceTracker synthesizes connection state for MQTT chargers: a
// charger is connected from its first publication until it has been
// silent past the offline timeout.
type presenceTracker struct {
	timeout  time.Duration
	onExpire func(chargePointID, reason string)
	log      *zap.Logger

	mu       sync.Mutex
	lastSeen map[string]time.Time

	stopCh  chan struct{}
	stopped sync.Once
}

func newPresenceTracker(timeout time.Duration, onExpire func(string, string), log *zap.Logger) *presenceTracker {
	return &presenceTracker{
		timeout:  timeout,
		onExpire: onExpire,
		log:      log,
		lastSeen: make(map[string]time.Time),
		stopCh:   make(chan struct{}),
	}
}

func (p *presenceTracker) start() {
	go p.sweepLoop()
}

func (p *presenceTracker) stop() {
	p.stopped.Do(func() { close(p.stopCh) })
}

// touch records traffic and reports whether this charger was silent
// before, i.e. whether a connection should be synthesized.
func (p *presenceTracker) touch(chargePointID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, known := p.lastSeen[chargePointID]
	p.lastSeen[chargePointID] = time.Now()
	return !known
}

func (p *presenceTracker) forget(chargePointID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.lastSeen, chargePointID)
}

func (p *presenceTracker) sweepLoop() {
	interval := p.timeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.sweep()
		case <-p.stopCh:
			return
		}
	}
}

func (p *presenceTracker) sweep() {
	now := time.Now()

	p.mu.Lock()
	var expired []string
	for id, seen := range p.lastSeen {
		if now.Sub(seen) > p.timeout {
			expired = append(expired, id)
			delete(p.lastSeen, id)
		}
	}
	p.mu.Unlock()

	for _, id := range expired {
		p.log.Info("MQTT charger silent past offline timeout",
			zap.String("charge_point_id", id),
			zap.Duration("timeout", p.timeout),
		)
		p.onExpire(id, "offline timeout")
	}
}
