package http

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterIdle is how long an unused session limiter is kept.
const limiterIdle = 30 * time.Minute

type sessionLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// sessionLimiters keeps one token bucket per session.
type sessionLimiters struct {
	mu          sync.Mutex
	limit       rate.Limit
	burst       int
	limiters    map[string]*sessionLimiter
	lastCleanup time.Time
	now         func() time.Time
}

func newSessionLimiters(perSecond float64, burst int) *sessionLimiters {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &sessionLimiters{
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*sessionLimiter),
		now:      time.Now,
	}
}

// Allow reports whether a turn for id may proceed now.
func (s *sessionLimiters) Allow(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastCleanup) > limiterIdle {
		for k, l := range s.limiters {
			if now.Sub(l.lastSeen) > limiterIdle {
				delete(s.limiters, k)
			}
		}
		s.lastCleanup = now
	}

	l, ok := s.limiters[id]
	if !ok {
		l = &sessionLimiter{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[id] = l
	}
	l.lastSeen = now
	return l.limiter.AllowN(now, 1)
}

// Forget drops the limiter for an ended session.
func (s *sessionLimiters) Forget(id string) {
	s.mu.Lock()
	delete(s.limiters, id)
	s.mu.Unlock()
}

// Len returns the number of tracked sessions.
func (s *sessionLimiters) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}
