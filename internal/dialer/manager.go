package dialer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/acme/outbound-batch-dialer/internal/domain"
	"github.com/acme/outbound-batch-dialer/internal/gateway"
	"github.com/acme/outbound-batch-dialer/internal/repository"
	apperrors "github.com/acme/outbound-batch-dialer/pkg/errors"
	"github.com/acme/outbound-batch-dialer/pkg/logger"
)

var (
	ErrSessionNotFound = apperrors.Newf(apperrors.ErrNotFound, "dial session not found")
	ErrGroupBusy       = apperrors.Newf(apperrors.ErrQuotaExceeded, "group is already being dialed")
	ErrTooManySessions = apperrors.Newf(apperrors.ErrQuotaExceeded, "dial session limit reached")
	ErrNoDefaultKey    = apperrors.Newf(apperrors.ErrValidation, "no default api key designated")
)

// GroupLocker keeps one group on at most one session.
type GroupLocker interface {
	Acquire(ctx context.Context, groupID, owner uuid.UUID) (bool, error)
	Refresh(ctx context.Context, groupID, owner uuid.UUID) (bool, error)
	Release(ctx context.Context, groupID, owner uuid.UUID) error
}

// ManagerConfig tunes the sessions a Manager creates.
// LockRefreshInterval of zero disables group lock renewal.
type ManagerConfig struct {
	InterCallDelay      time.Duration
	MaxSessions         int
	LockRefreshInterval time.Duration
}

// ManagerDeps groups the collaborators of a Manager.
type ManagerDeps struct {
	Groups   repository.GroupRepository
	Agents   repository.AgentRepository
	Keys     repository.APIKeyStore
	Gateways gateway.Factory
	Locker   GroupLocker
	Recorder Recorder
	Logger   *logger.Logger
}

// CreateInput captures session creation parameters. AgentID may be nil and
// selected later.
type CreateInput struct {
	ClientID uuid.UUID
	GroupID  uuid.UUID
	AgentID  uuid.UUID
}

type session struct {
	dialer *Dialer
	info   SessionInfo
}

// Manager owns the live dial sessions of this process. Dial loops run on the
// manager's context, not on the request that started them.
type Manager struct {
	cfg    ManagerConfig
	deps   ManagerDeps
	logger *logger.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.RWMutex
	sessions map[uuid.UUID]*session
}

// NewManager constructs a session manager.
func NewManager(cfg ManagerConfig, deps ManagerDeps) *Manager {
	if cfg.InterCallDelay < 0 {
		cfg.InterCallDelay = DefaultInterCallDelay
	}
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:      cfg,
		deps:     deps,
		logger:   log,
		baseCtx:  ctx,
		cancel:   cancel,
		sessions: make(map[uuid.UUID]*session),
	}
	if cfg.LockRefreshInterval > 0 {
		m.wg.Add(1)
		go m.keepAlive(cfg.LockRefreshInterval)
	}
	return m
}

// Create loads the group and agent, claims the group and registers an idle
// session over its contacts.
func (m *Manager) Create(ctx context.Context, input CreateInput) (domain.SessionSnapshot, error) {
	if input.ClientID == uuid.Nil || input.GroupID == uuid.Nil {
		return domain.SessionSnapshot{}, apperrors.Newf(apperrors.ErrValidation, "client_id and group_id are required")
	}
	if m.full() {
		return domain.SessionSnapshot{}, ErrTooManySessions
	}

	group, err := m.deps.Groups.GetGroup(ctx, input.ClientID, input.GroupID)
	if err != nil {
		return domain.SessionSnapshot{}, fmt.Errorf("session manager: load group: %w", err)
	}

	var agent *domain.Agent
	if input.AgentID != uuid.Nil {
		agent, err = m.deps.Agents.Get(ctx, input.ClientID, input.AgentID)
		if err != nil {
			return domain.SessionSnapshot{}, fmt.Errorf("session manager: load agent: %w", err)
		}
	}

	key, err := m.deps.Keys.DefaultKey(ctx, input.ClientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.SessionSnapshot{}, fmt.Errorf("%w for client %s", ErrNoDefaultKey, input.ClientID)
		}
		return domain.SessionSnapshot{}, fmt.Errorf("session manager: resolve api key: %w", err)
	}

	info := SessionInfo{ID: uuid.New(), ClientID: input.ClientID, GroupID: group.ID}
	ok, err := m.deps.Locker.Acquire(ctx, info.GroupID, info.ID)
	if err != nil {
		return domain.SessionSnapshot{}, fmt.Errorf("session manager: lock group: %w", err)
	}
	if !ok {
		return domain.SessionSnapshot{}, ErrGroupBusy
	}

	gw := m.deps.Gateways.Bind(gateway.Binding{ClientID: info.ClientID, GroupID: info.GroupID, APIKey: key})
	opts := []Option{
		WithInterCallDelay(m.cfg.InterCallDelay),
		WithLogger(m.logger),
	}
	if m.deps.Recorder != nil {
		opts = append(opts, WithRecorder(m.deps.Recorder))
	}
	d := New(info, group.Contacts, agent, gw, opts...)

	m.mu.Lock()
	if m.cfg.MaxSessions > 0 && len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		m.release(ctx, info)
		return domain.SessionSnapshot{}, ErrTooManySessions
	}
	m.sessions[info.ID] = &session{dialer: d, info: info}
	m.mu.Unlock()

	m.logger.Info("session manager: session created",
		zap.String("session_id", info.ID.String()),
		zap.String("group_id", info.GroupID.String()),
		zap.Int("contacts", len(group.Contacts)),
	)
	return d.Snapshot(), nil
}

// Get returns a snapshot of one session.
func (m *Manager) Get(id uuid.UUID) (domain.SessionSnapshot, error) {
	s, err := m.lookup(id)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	return s.dialer.Snapshot(), nil
}

// List returns snapshots of every live session ordered by group.
func (m *Manager) List() []domain.SessionSnapshot {
	m.mu.RLock()
	out := make([]domain.SessionSnapshot, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.dialer.Snapshot())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].GroupID != out[j].GroupID {
			return out[i].GroupID.String() < out[j].GroupID.String()
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// SelectAgent sets the agent of an idle session.
func (m *Manager) SelectAgent(ctx context.Context, id, agentID uuid.UUID) (domain.SessionSnapshot, error) {
	s, err := m.lookup(id)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	agent, err := m.deps.Agents.Get(ctx, s.info.ClientID, agentID)
	if err != nil {
		return domain.SessionSnapshot{}, fmt.Errorf("session manager: load agent: %w", err)
	}
	if err := s.dialer.SelectAgent(*agent); err != nil {
		return domain.SessionSnapshot{}, err
	}
	return s.dialer.Snapshot(), nil
}

// Start begins dialing.
func (m *Manager) Start(_ context.Context, id uuid.UUID) (domain.SessionSnapshot, error) {
	return m.control(id, func(d *Dialer) error { return d.Start(m.baseCtx) })
}

// Pause pauses after the in-flight call.
func (m *Manager) Pause(_ context.Context, id uuid.UUID) (domain.SessionSnapshot, error) {
	return m.control(id, (*Dialer).Pause)
}

// Resume continues a paused session.
func (m *Manager) Resume(_ context.Context, id uuid.UUID) (domain.SessionSnapshot, error) {
	return m.control(id, func(d *Dialer) error { return d.Resume(m.baseCtx) })
}

// Skip skips the next contact.
func (m *Manager) Skip(_ context.Context, id uuid.UUID) (domain.SessionSnapshot, error) {
	return m.control(id, (*Dialer).Skip)
}

// Reset returns the session to idle without releasing its group.
func (m *Manager) Reset(_ context.Context, id uuid.UUID) (domain.SessionSnapshot, error) {
	return m.control(id, func(d *Dialer) error {
		d.Reset()
		return nil
	})
}

// Close resets and discards a session and releases its group.
func (m *Manager) Close(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	s.dialer.Reset()
	m.release(ctx, s.info)
	m.logger.Info("session manager: session closed", zap.String("session_id", id.String()))
	return nil
}

// Shutdown pauses every session, waits for in-flight calls and releases all
// group locks.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()
	m.wg.Wait()

	m.mu.Lock()
	sessions := make([]*session, 0, len(m.sessions))
	for id, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.dialer.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", s.info.ID, err))
		}
		m.release(ctx, s.info)
	}
	return errors.Join(errs...)
}

func (m *Manager) control(id uuid.UUID, fn func(*Dialer) error) (domain.SessionSnapshot, error) {
	s, err := m.lookup(id)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	if err := fn(s.dialer); err != nil {
		return s.dialer.Snapshot(), err
	}
	return s.dialer.Snapshot(), nil
}

func (m *Manager) lookup(id uuid.UUID) (*session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (m *Manager) full() bool {
	if m.cfg.MaxSessions <= 0 {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions) >= m.cfg.MaxSessions
}

// keepAlive renews the group locks of live sessions, paused ones included,
// until the manager shuts down.
func (m *Manager) keepAlive(interval time.Duration) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.baseCtx.Done():
			return
		case <-ticker.C:
			m.refreshLocks(m.baseCtx)
		}
	}
}

func (m *Manager) refreshLocks(ctx context.Context) {
	m.mu.RLock()
	infos := make([]SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		infos = append(infos, s.info)
	}
	m.mu.RUnlock()

	for _, info := range infos {
		ok, err := m.deps.Locker.Refresh(ctx, info.GroupID, info.ID)
		switch {
		case err != nil:
			m.logger.Warn("session manager: refresh group lock",
				zap.String("session_id", info.ID.String()),
				zap.String("group_id", info.GroupID.String()),
				zap.Error(err),
			)
		case !ok:
			m.logger.Error("session manager: group lock lost",
				zap.String("session_id", info.ID.String()),
				zap.String("group_id", info.GroupID.String()),
			)
		}
	}
}

func (m *Manager) release(ctx context.Context, info SessionInfo) {
	if err := m.deps.Locker.Release(context.WithoutCancel(ctx), info.GroupID, info.ID); err != nil {
		m.logger.Warn("session manager: release group lock",
			zap.String("session_id", info.ID.String()),
			zap.String("group_id", info.GroupID.String()),
			zap.Error(err),
		)
	}
}
