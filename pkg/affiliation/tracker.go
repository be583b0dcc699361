package affiliation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/tinyland-inc/mucclaw/pkg/logger"
)

// Tracker holds the current roster snapshot of one room.
type Tracker struct {
	resolver *Resolver
	room     string

	mu        sync.RWMutex
	set       Set
	refreshed time.Time
}

func NewTracker(resolver *Resolver, room string) *Tracker {
	return &Tracker{resolver: resolver, room: room}
}

// Snapshot returns the roster as of the last successful refresh.
func (t *Tracker) Snapshot() Set {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.set
}

// Replace installs s as the current snapshot.
func (t *Tracker) Replace(s Set) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.set = s
	t.refreshed = time.Now()
}

// RefreshedAt is the time of the last successful refresh, zero before the first.
func (t *Tracker) RefreshedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.refreshed
}

// Refresh resolves the roster again. On failure the previous snapshot stays.
func (t *Tracker) Refresh(ctx context.Context) error {
	set, err := t.resolver.Resolve(ctx, t.room)
	if err != nil {
		return err
	}
	t.Replace(set)
	logger.InfoCF("affiliation", "Roster refreshed", map[string]any{
		"room":    t.room,
		"entries": set.Len(),
	})
	return nil
}

// RunSchedule refreshes on every tick of the cron expression expr until ctx
// ends. Failed refreshes are logged and the schedule continues.
func (t *Tracker) RunSchedule(ctx context.Context, expr string) error {
	if !gronx.New().IsValid(expr) {
		return fmt.Errorf("invalid refresh schedule %q", expr)
	}
	for {
		next, err := gronx.NextTickAfter(expr, time.Now(), false)
		if err != nil {
			return fmt.Errorf("next refresh tick: %w", err)
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		if err := t.Refresh(ctx); err != nil {
			logger.WarnCF("affiliation", "Roster refresh failed, keeping previous snapshot", map[string]any{
				"room":  t.room,
				"error": err.Error(),
			})
		}
	}
}
