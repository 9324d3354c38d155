// Package sweeper finalizes charging sessions abandoned by chargers
// that never sent their StopTransaction: sessions active past the
// stale timeout are marked interrupted.
package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/observability/telemetry"
	"github.com/voltgrid/csms/internal/ports"
)

type Sweeper struct {
	sessions ports.SessionRepository
	events   ports.EventRepository
	// staleAfter is how long a session may stay active before it is
	// presumed dead.
	staleAfter time.Duration
	interval   time.Duration
	log        *zap.Logger

	stopCh chan struct{}
}

func New(sessions ports.SessionRepository, events ports.EventRepository, staleAfter, interval time.Duration, log *zap.Logger) *Sweeper {
	return &Sweeper{
		sessions:   sessions,
		events:     events,
		staleAfter: staleAfter,
		interval:   interval,
		log:        log,
		stopCh:     make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.Sweep(ctx)
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *Sweeper) Stop() {
	close(s.stopCh)
}

// Sweep runs one pass. Exported so an admin endpoint can force it.
func (s *Sweeper) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.staleAfter)

	interrupted, err := s.sessions.MarkStaleInterrupted(ctx, cutoff)
	if err != nil {
		s.log.Error("Stale session sweep failed", zap.Error(err))
		return
	}
	if interrupted == 0 {
		return
	}

	s.log.Warn("Interrupted stale charging sessions",
		zap.Int64("count", interrupted),
		zap.Time("cutoff", cutoff),
	)
	for i := int64(0); i < interrupted; i++ {
		telemetry.ActiveChargingSessions.Dec()
	}

	event := &domain.DeviceEvent{
		Kind:      domain.EventTxInterrupted,
		Payload:   cutoff.UTC().Format(time.RFC3339),
		Timestamp: time.Now().UTC(),
	}
	if err := s.events.Append(ctx, event); err != nil {
		s.log.Warn("Failed to record interruption event", zap.Error(err))
	}
}
