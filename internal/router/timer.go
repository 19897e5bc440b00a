package router

import (
	"time"

	. "github.com/modelrelay/modelrelay/internal/logging"
)

// The router keeps a single logical timer armed at the nearest pending
// deadline across every cooldown expiry and the return holdoff. Every
// state change that can move a deadline calls rescheduleLocked.

// rescheduleLocked re-arms the timer for the nearest future deadline, or
// stops it when nothing is pending. Caller holds the router mutex.
func (r *Router) rescheduleLocked(now time.Time) {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	if r.closed {
		return
	}
	deadline, ok := r.store.NearestDeadline(now)
	if !ok {
		return
	}
	d := deadline.Sub(now)
	if d < 0 {
		d = 0
	}
	r.timer = time.AfterFunc(d, r.onTimer)
	L_debug("router: timer armed", "at", deadline.Format("15:04:05"), "in", d.Round(time.Second))
}

// onTimer fires when a cooldown or the holdoff expires. Expired
// cooldowns are pruned, a return-to-preferred probe is considered, and
// the timer is re-armed for whatever deadline is next.
func (r *Router) onTimer() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	now := time.Now()
	r.store.PruneExpired(now)

	// A cooldown expiry can also unblock failover for an exhausted
	// session; we do not force a switch here, only probing. The next
	// failed turn re-runs selection with the pruned cooldown map.
	if r.phase == PhaseExhausted {
		r.phase = PhaseActive
		L_info("router: cooldown expired, leaving exhausted state")
	}

	r.maybeProbeLocked(now)
	r.rescheduleLocked(now)
}
