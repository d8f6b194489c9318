package app

import (
	"context"
	"time"

	"kodbank/cmd/internal/auth/session"
)

// SessionReaper periodically deletes expired session rows. It is storage
// hygiene only: token expiry is enforced at resolve time regardless of
// whether the reaper ever runs.
type SessionReaper struct {
	log      Logger
	sessions *session.Manager
	interval time.Duration
}

// NewSessionReaper constructs a reaper; interval <= 0 disables it.
func NewSessionReaper(log Logger, sessions *session.Manager, interval time.Duration) *SessionReaper {
	return &SessionReaper{log: log, sessions: sessions, interval: interval}
}

// Run blocks until ctx is done.
func (r *SessionReaper) Run(ctx context.Context) {
	if r == nil || r.sessions == nil || r.interval <= 0 {
		if r != nil && r.log != nil {
			r.log.Info("session.reaper.disabled")
		}
		return
	}

	r.log.Info("session.reaper.start", "interval", r.interval.String())

	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("session.reaper.stop")
			return
		case <-t.C:
			n, err := r.sessions.PurgeExpired(ctx, time.Now().UTC())
			if err != nil {
				r.log.Error("session.reaper.purge.fail", "err", err)
				continue
			}
			if n > 0 {
				r.log.Info("session.reaper.purged", "count", n)
			}
		}
	}
}
