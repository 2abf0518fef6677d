package server

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientIdleTimeout drops limiter state for clients that stopped submitting.
const clientIdleTimeout = 10 * time.Minute

// submitLimiter enforces a per-client submission budget. A nil limiter
// allows everything.
type submitLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	now       func() time.Time
	clients   map[string]*clientLimiter
	lastPrune time.Time
}

type clientLimiter struct {
	limiter *rate.Limiter
	seen    time.Time
}

func newSubmitLimiter(perMinute int, now func() time.Time) *submitLimiter {
	if perMinute <= 0 {
		return nil
	}
	return &submitLimiter{
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   perMinute,
		now:     now,
		clients: make(map[string]*clientLimiter),
	}
}

// reserve consumes one token for client. When the budget is spent it
// returns the wait until the next token and false.
func (l *submitLimiter) reserve(client string) (time.Duration, bool) {
	if l == nil {
		return 0, true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)
	entry, ok := l.clients[client]
	if !ok {
		entry = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[client] = entry
	}
	entry.seen = now

	reservation := entry.limiter.ReserveN(now, 1)
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return delay, false
	}
	return 0, true
}

func (l *submitLimiter) prune(now time.Time) {
	if now.Sub(l.lastPrune) < clientIdleTimeout {
		return
	}
	l.lastPrune = now
	for client, entry := range l.clients {
		if now.Sub(entry.seen) >= clientIdleTimeout {
			delete(l.clients, client)
		}
	}
}
