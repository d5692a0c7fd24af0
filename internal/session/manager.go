package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"circlemap/internal/area"
	"circlemap/internal/geocode"
	"circlemap/internal/types"
)

// Defaults applied when Config fields are zero.
const (
	DefaultIdleTTL     = 2 * time.Hour
	DefaultMaxSessions = 10000
)

// ErrNotFound is wrapped by errors for unknown or expired sessions.
var ErrNotFound = errors.New("session: not found")

// historyNotSaved prefixes the warning attached to a view when a commit fails.
const historyNotSaved = "history was not saved"

// Resolver is the subset of geocode.Resolver used by the manager.
type Resolver interface {
	Resolve(ctx context.Context, query string) (geocode.Resolution, error)
	AddressOrFallback(ctx context.Context, p types.Point) string
}

// History is the subset of history.Service used by the manager.
type History interface {
	Commit(ctx context.Context, state types.AreaState) error
	RestoreLatest(ctx context.Context, nickname string) (types.Snapshot, error)
	RestoreByAddress(ctx context.Context, address string) (types.Snapshot, error)
}

// Recorder observes the live session count.
type Recorder interface {
	SetActiveSessions(n int)
}

type noopRecorder struct{}

func (noopRecorder) SetActiveSessions(int) {}

// Config tunes a Manager.
type Config struct {
	CoordEpsilon  float64
	RestorePolicy RestorePolicy
	IdleTTL       time.Duration
	MaxSessions   int
	Rates         area.Rates
}

// View is the externally visible result of a transition: the state, the
// metrics derived from it and any non-blocking warnings.
type View struct {
	ID        string          `json:"id"`
	State     types.AreaState `json:"state"`
	Metrics   area.Summary    `json:"metrics"`
	UpdatedAt time.Time       `json:"updated_at"`
	Warnings  []string        `json:"-"`
}

type entry struct {
	mu        sync.Mutex
	state     types.AreaState
	lastSeen  time.Time
	updatedAt time.Time
}

// Manager owns in-memory sessions.
type Manager struct {
	resolver Resolver
	history  History
	cfg      Config
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string

	mu       sync.Mutex
	sessions map[string]*entry
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithRecorder sets the session count recorder.
func WithRecorder(r Recorder) ManagerOption {
	return func(m *Manager) {
		if r != nil {
			m.recorder = r
		}
	}
}

// WithLogger sets the manager logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides the time source used for idle expiry.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(fn func() string) ManagerOption {
	return func(m *Manager) { m.newID = fn }
}

// NewManager creates a Manager.
func NewManager(resolver Resolver, history History, cfg Config, opts ...ManagerOption) *Manager {
	if cfg.CoordEpsilon <= 0 {
		cfg.CoordEpsilon = DefaultCoordEpsilon
	}
	if cfg.RestorePolicy == "" {
		cfg.RestorePolicy = RestoreOverwrite
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.Rates == (area.Rates{}) {
		cfg.Rates = area.DefaultRates()
	}
	m := &Manager{
		resolver: resolver,
		history:  history,
		cfg:      cfg,
		recorder: noopRecorder{},
		logger:   slog.Default(),
		now:      time.Now,
		newID:    uuid.NewString,
		sessions: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create starts a session with the default state and the given nickname.
func (m *Manager) Create(nickname string) (View, error) {
	state, err := SetNickname(types.NewAreaState(), nickname)
	if err != nil {
		return View{}, err
	}

	now := m.now()
	m.mu.Lock()
	if len(m.sessions) >= m.cfg.MaxSessions {
		m.sweepLocked(now)
	}
	if len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return View{}, types.NewAppErrorWithDetails(types.ErrCodeLimitSessions,
			"too many active sessions", nil, map[string]any{"max_sessions": m.cfg.MaxSessions})
	}
	id := m.newID()
	e := &entry{state: state, lastSeen: now, updatedAt: now}
	m.sessions[id] = e
	count := len(m.sessions)
	m.mu.Unlock()

	m.recorder.SetActiveSessions(count)
	return m.view(id, e, nil), nil
}

// Get returns the current view of a session.
func (m *Manager) Get(id string) (View, error) {
	e, err := m.lookup(id)
	if err != nil {
		return View{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return m.view(id, e, nil), nil
}

// Delete removes a session.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	_, ok := m.sessions[id]
	delete(m.sessions, id)
	count := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return notFound(id)
	}
	m.recorder.SetActiveSessions(count)
	return nil
}

// Len returns the number of live sessions, expired ones included until they
// are swept.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Search resolves query and moves the center to the result. On any resolver
// failure the state is left unchanged and the error is returned.
func (m *Manager) Search(ctx context.Context, id, query string) (View, error) {
	return m.update(ctx, id, func(ctx context.Context, s types.AreaState) (types.AreaState, []string, error) {
		res, err := m.resolver.Resolve(ctx, query)
		if err != nil {
			return s, nil, err
		}
		next, warnings := m.commit(ctx, ApplyResolution(s, query, res))
		return next, warnings, nil
	})
}

// SetCenter applies a manually entered center and refreshes the address.
// Manual edits are not committed to history.
func (m *Manager) SetCenter(ctx context.Context, id string, p types.Point) (View, error) {
	if err := types.ValidatePoint(p); err != nil {
		return View{}, err
	}
	return m.update(ctx, id, func(ctx context.Context, s types.AreaState) (types.AreaState, []string, error) {
		next := SetCenter(s, p, m.cfg.CoordEpsilon)
		if next.Center == s.Center {
			return s, nil, nil
		}
		next.Address = m.resolver.AddressOrFallback(ctx, next.Center)
		return next, nil, nil
	})
}

// Click applies a map click. A move beyond the coordinate epsilon refreshes
// the address and commits the new center.
func (m *Manager) Click(ctx context.Context, id string, p types.Point) (View, error) {
	if err := types.ValidatePoint(p); err != nil {
		return View{}, err
	}
	return m.update(ctx, id, func(ctx context.Context, s types.AreaState) (types.AreaState, []string, error) {
		next, changed := Click(s, p, m.cfg.CoordEpsilon)
		if !changed {
			return s, nil, nil
		}
		next.Address = m.resolver.AddressOrFallback(ctx, next.Center)
		next, warnings := m.commit(ctx, next)
		return next, warnings, nil
	})
}

// SetRadii replaces the three rings. Empty colors keep the current ones.
func (m *Manager) SetRadii(ctx context.Context, id string, km [types.RadiusCount]float64, colors [types.RadiusCount]string) (View, error) {
	return m.update(ctx, id, func(_ context.Context, s types.AreaState) (types.AreaState, []string, error) {
		next, err := SetRadii(s, km, colors)
		return next, nil, err
	})
}

// SetNickname changes the nickname used for later commits and restores.
func (m *Manager) SetNickname(ctx context.Context, id, nickname string) (View, error) {
	return m.update(ctx, id, func(_ context.Context, s types.AreaState) (types.AreaState, []string, error) {
		next, err := SetNickname(s, nickname)
		return next, nil, err
	})
}

// Restore loads the latest history record for nickname. An empty nickname
// uses the session's current one. The restored nickname becomes the session's.
func (m *Manager) Restore(ctx context.Context, id, nickname string) (View, error) {
	return m.update(ctx, id, func(ctx context.Context, s types.AreaState) (types.AreaState, []string, error) {
		name := s.Nickname
		if strings.TrimSpace(nickname) != "" {
			n, err := types.NormalizeNickname(nickname)
			if err != nil {
				return s, nil, err
			}
			name = n
		}
		snap, err := m.history.RestoreLatest(ctx, name)
		if err != nil {
			return s, nil, err
		}
		next := ApplySnapshot(s, snap, m.cfg.RestorePolicy)
		next.Nickname = name
		return next, nil, nil
	})
}

// RestoreAddress loads the most recent history record with address.
func (m *Manager) RestoreAddress(ctx context.Context, id, address string) (View, error) {
	return m.update(ctx, id, func(ctx context.Context, s types.AreaState) (types.AreaState, []string, error) {
		snap, err := m.history.RestoreByAddress(ctx, strings.TrimSpace(address))
		if err != nil {
			return s, nil, err
		}
		return ApplySnapshot(s, snap, m.cfg.RestorePolicy), nil, nil
	})
}

// commit appends the state to history when a nickname is set. A failure
// becomes a warning; the state change stands either way.
func (m *Manager) commit(ctx context.Context, s types.AreaState) (types.AreaState, []string) {
	if s.Nickname == "" {
		return s, nil
	}
	if err := m.history.Commit(ctx, s); err != nil {
		msg := historyNotSaved
		var appErr *types.AppError
		if errors.As(err, &appErr) {
			msg = fmt.Sprintf("%s: %s", historyNotSaved, appErr.Message)
		}
		return s, []string{msg}
	}
	s.RadiiDirty = false
	return s, nil
}

type transition func(ctx context.Context, s types.AreaState) (types.AreaState, []string, error)

// update runs fn under the session lock. The new state is stored only when
// fn succeeds.
func (m *Manager) update(ctx context.Context, id string, fn transition) (View, error) {
	e, err := m.lookup(id)
	if err != nil {
		return View{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	next, warnings, err := fn(ctx, e.state)
	if err != nil {
		types.LoggerFromContext(ctx, m.logger).Debug("session transition rejected",
			"session_id", id,
			"code", types.CodeOf(err),
		)
		return View{}, err
	}
	if next != e.state {
		e.state = next
		e.updatedAt = m.now()
	}
	return m.view(id, e, warnings), nil
}

// lookup returns a live entry and refreshes its idle timer. Expired entries
// are removed on access.
func (m *Manager) lookup(id string) (*entry, error) {
	now := m.now()
	m.mu.Lock()
	e, ok := m.sessions[id]
	if ok && now.Sub(e.lastSeen) > m.cfg.IdleTTL {
		delete(m.sessions, id)
		count := len(m.sessions)
		m.mu.Unlock()
		m.recorder.SetActiveSessions(count)
		return nil, notFound(id)
	}
	if ok {
		e.lastSeen = now
	}
	m.mu.Unlock()
	if !ok {
		return nil, notFound(id)
	}
	return e, nil
}

// Sweep removes every session idle for longer than the TTL at now and
// returns how many were removed.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	removed := m.sweepLocked(now)
	count := len(m.sessions)
	m.mu.Unlock()
	m.recorder.SetActiveSessions(count)
	return removed
}

func (m *Manager) sweepLocked(now time.Time) int {
	removed := 0
	for id, e := range m.sessions {
		if now.Sub(e.lastSeen) > m.cfg.IdleTTL {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

func (m *Manager) view(id string, e *entry, warnings []string) View {
	return View{
		ID:        id,
		State:     e.state,
		Metrics:   area.Summarize(e.state.Radii, m.cfg.Rates),
		UpdatedAt: e.updatedAt,
		Warnings:  warnings,
	}
}

func notFound(id string) error {
	return types.NewAppErrorWithDetails(types.ErrCodeNotFoundSession, "session not found",
		ErrNotFound, map[string]any{"session_id": id})
}
