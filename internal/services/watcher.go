// Where: cli/internal/services/watcher.go
// What: Caller-controlled polling of the signed-in user.
// Why: The account store has no push notifications; the caller owns the loop and its lifetime.
package services

import (
	"context"
	"time"

	"github.com/poruru/restaurant-baas/cli/internal/store"
)

// DefaultWatchInterval matches the demo application's 30 second re-check.
const DefaultWatchInterval = 30 * time.Second

// UserSource reports the signed-in user; AuthService implements it.
type UserSource interface {
	CurrentUser(ctx context.Context) (*store.Account, error)
}

// Watcher polls a UserSource. The first poll always emits; later polls emit
// only when the user changes unless EmitAll is set.
type Watcher struct {
	Source   UserSource
	Interval time.Duration
	EmitAll  bool
	// OnError, when set, receives lookup errors; the callback then sees a nil user.
	OnError func(error)
}

// Run polls immediately and then every Interval until ctx is done. It
// returns nil when stopped by ctx.
func (w *Watcher) Run(ctx context.Context, callback func(*store.Account)) error {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	var (
		last    *store.Account
		emitted bool
	)
	poll := func() {
		user, err := w.Source.CurrentUser(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if w.OnError != nil {
				w.OnError(err)
			}
			user = nil
		}
		if emitted && !w.EmitAll && sameUser(last, user) {
			return
		}
		last, emitted = user, true
		callback(user)
	}

	poll()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			poll()
		}
	}
}

func sameUser(a, b *store.Account) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID && a.Email == b.Email && a.Name == b.Name && a.Status == b.Status
}
