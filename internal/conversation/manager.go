package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned when a session expires while a caller
	// waits for or holds its lease.
	ErrSessionExpired = errors.New("session expired")
)

const (
	// DefaultTTL is how long a session may stay idle.
	DefaultTTL = 30 * time.Minute
	// DefaultSweepInterval is how often Run sweeps idle sessions.
	DefaultSweepInterval = time.Minute
)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
	HistorySize   int
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
	// Registerer receives the active session gauge. Nil disables it.
	Registerer prometheus.Registerer
}

type entry struct {
	// lock is a one-slot semaphore so Acquire can honor ctx.
	lock    chan struct{}
	session Session
	expired bool
}

// Manager owns every live session.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*entry
	cfg      ManagerConfig
	active   prometheus.Gauge
	logger   *zap.Logger
}

// NewManager creates a session manager.
func NewManager(cfg ManagerConfig, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	m := &Manager{
		sessions: make(map[string]*entry),
		cfg:      cfg,
		logger:   logger,
	}
	if cfg.Registerer != nil {
		m.active = promauto.With(cfg.Registerer).NewGauge(prometheus.GaugeOpts{
			Name: "dialogd_sessions_active",
			Help: "Number of live sessions",
		})
	}
	return m
}

func (m *Manager) updateGauge() {
	if m.active != nil {
		m.active.Set(float64(len(m.sessions)))
	}
}

// Create starts a new session and returns a snapshot of it.
func (m *Manager) Create() Session {
	now := m.cfg.Now()
	s := Session{
		ID:           uuid.NewString(),
		CreatedAt:    now,
		LastActivity: now,
		TrustLevel:   InitialTrust,
		History:      NewHistory(m.cfg.HistorySize),
	}

	m.mu.Lock()
	m.sessions[s.ID] = &entry{lock: make(chan struct{}, 1), session: s}
	m.updateGauge()
	m.mu.Unlock()

	m.logger.Debug("session created", zap.String("session.id", s.ID))
	return s.Clone()
}

// Get returns a snapshot of a session without taking its lease.
func (m *Manager) Get(id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return e.session.Clone(), nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Expire removes a session. A turn holding its lease finishes, but its
// commit is discarded.
func (m *Manager) Expire(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	e.expired = true
	delete(m.sessions, id)
	m.updateGauge()
	m.logger.Debug("session expired", zap.String("session.id", id))
	return nil
}

// Acquire waits for exclusive access to a session. It fails with ctx's
// error if ctx ends first.
func (m *Manager) Acquire(ctx context.Context, id string) (*Lease, error) {
	m.mu.Lock()
	e, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	select {
	case e.lock <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	m.mu.Lock()
	expired := e.expired
	m.mu.Unlock()
	if expired {
		<-e.lock
		return nil, fmt.Errorf("%w: %s", ErrSessionExpired, id)
	}
	return &Lease{m: m, e: e}, nil
}

// Sweep expires every unlocked session idle for longer than the TTL at
// now. It returns the number removed.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int
	for id, e := range m.sessions {
		select {
		case e.lock <- struct{}{}:
		default:
			// Busy sessions are by definition not idle.
			continue
		}
		if now.Sub(e.session.LastActivity) > m.cfg.TTL {
			e.expired = true
			delete(m.sessions, id)
			n++
		}
		<-e.lock
	}
	if n > 0 {
		m.updateGauge()
		m.logger.Info("swept idle sessions", zap.Int("expired", n), zap.Int("remaining", len(m.sessions)))
	}
	return n
}

// Run sweeps on the configured interval until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(m.cfg.Now())
		}
	}
}

// Lease is exclusive access to one session. Release must be called
// exactly once; Commit at most once before it.
type Lease struct {
	m        *Manager
	e        *entry
	once     sync.Once
	released bool
}

// Session returns a snapshot of the leased session.
func (l *Lease) Session() Session {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	return l.e.session.Clone()
}

// Commit replaces the session state and stamps its activity time.
func (l *Lease) Commit(s Session) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	if l.released {
		return errors.New("commit on released lease")
	}
	if l.e.expired {
		return fmt.Errorf("%w: %s", ErrSessionExpired, l.e.session.ID)
	}
	s.ID = l.e.session.ID
	s.CreatedAt = l.e.session.CreatedAt
	s.LastActivity = l.m.cfg.Now()
	l.e.session = s.Clone()
	return nil
}

// Release gives up the lease.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.m.mu.Lock()
		l.released = true
		l.m.mu.Unlock()
		<-l.e.lock
	})
}
