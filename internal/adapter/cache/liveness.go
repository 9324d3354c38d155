package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/ports"
)

// Liveness is the typed key schema over the raw cache: last-seen
// timestamps and current status per charge point, authorize verdicts
// with a short TTL, and the advisory pending-call markers. All entries
// are advisory; the store stays authoritative.
type Liveness struct {
	cache ports.Cache
	log   *zap.Logger
}

func NewLiveness(cache ports.Cache, log *zap.Logger) *Liveness {
	return &Liveness{
		cache: cache,
		log:   log,
	}
}

func lastSeenKey(id string) string  { return fmt.Sprintf("cp:%s:last_seen", id) }
func statusKey(id string) string    { return fmt.Sprintf("cp:%s:status", id) }
func idTagKey(tag string) string    { return fmt.Sprintf("idtag:%s", tag) }
func pendingKey(id, msg string) string {
	return fmt.Sprintf("cp:%s:pending_calls:%s", id, msg)
}

func (l *Liveness) TouchLastSeen(ctx context.Context, chargePointID string, seen time.Time) {
	if err := l.cache.Set(ctx, lastSeenKey(chargePointID), seen.UTC().Format(time.RFC3339Nano), 0); err != nil {
		l.log.Warn("Failed to cache last_seen", zap.String("charge_point_id", chargePointID), zap.Error(err))
	}
}

func (l *Liveness) LastSeen(ctx context.Context, chargePointID string) (time.Time, bool) {
	raw, err := l.cache.Get(ctx, lastSeenKey(chargePointID))
	if err != nil {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (l *Liveness) SetStatus(ctx context.Context, chargePointID string, status domain.ChargePointStatus) {
	if err := l.cache.Set(ctx, statusKey(chargePointID), string(status), 0); err != nil {
		l.log.Warn("Failed to cache status", zap.String("charge_point_id", chargePointID), zap.Error(err))
	}
}

func (l *Liveness) Status(ctx context.Context, chargePointID string) (domain.ChargePointStatus, bool) {
	raw, err := l.cache.Get(ctx, statusKey(chargePointID))
	if err != nil || raw == "" {
		return "", false
	}
	return domain.ChargePointStatus(raw), true
}

func (l *Liveness) CacheAuthorization(ctx context.Context, tag string, status domain.AuthorizationStatus, ttl time.Duration) {
	if err := l.cache.Set(ctx, idTagKey(tag), string(status), ttl); err != nil {
		l.log.Warn("Failed to cache authorization", zap.String("id_tag", tag), zap.Error(err))
	}
}

func (l *Liveness) Authorization(ctx context.Context, tag string) (domain.AuthorizationStatus, bool) {
	raw, err := l.cache.Get(ctx, idTagKey(tag))
	if err != nil || raw == "" {
		return "", false
	}
	return domain.AuthorizationStatus(raw), true
}

// MarkPendingCall records an in-flight server call; the entry expires
// with the call deadline so a crashed waiter cannot leak.
func (l *Liveness) MarkPendingCall(ctx context.Context, chargePointID, messageID string, deadline time.Duration) {
	if err := l.cache.Set(ctx, pendingKey(chargePointID, messageID), "1", deadline); err != nil {
		l.log.Warn("Failed to mark pending call", zap.String("charge_point_id", chargePointID), zap.Error(err))
	}
}

func (l *Liveness) ClearPendingCall(ctx context.Context, chargePointID, messageID string) {
	if err := l.cache.Delete(ctx, pendingKey(chargePointID, messageID)); err != nil {
		l.log.Warn("Failed to clear pending call", zap.String("charge_point_id", chargePointID), zap.Error(err))
	}
}

// Rebuild warms last_seen and status from the newest audit event per
// charge point after a cold start.
func (l *Liveness) Rebuild(ctx context.Context, events ports.EventRepository) error {
	latest, err := events.LatestPerChargePoint(ctx)
	if err != nil {
		return fmt.Errorf("rebuild liveness cache: %w", err)
	}

	for _, event := range latest {
		l.TouchLastSeen(ctx, event.ChargePointID, event.Timestamp)
		if event.Kind == domain.EventStatus && event.Payload != "" {
			var status struct {
				Status string `json:"status"`
			}
			if err := json.Unmarshal([]byte(event.Payload), &status); err == nil && status.Status != "" {
				l.SetStatus(ctx, event.ChargePointID, domain.ChargePointStatus(status.Status))
			}
		}
	}

	l.log.Info("Rebuilt liveness cache from device events", zap.Int("charge_points", len(latest)))
	return nil
}
