package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"cloud.google.com/go/spanner/apiv1/spannerpb"

	"github.com/spanner-go/spanner-go-sdk/internal/background"
	"github.com/spanner-go/spanner-go-sdk/internal/meta"
	"github.com/spanner-go/spanner-go-sdk/internal/pool"
	"github.com/spanner-go/spanner-go-sdk/internal/xerrors"
	"github.com/spanner-go/spanner-go-sdk/log"
)

var (
	logNames = []string{"spanner", "session"}

	errMultiplexedDisabled = errors.New("multiplexed sessions are disabled")
	errManagerClosed       = errors.New("session manager closed")
)

type Stats struct {
	Pool                pool.Stats
	Multiplexed         bool
	MultiplexedDisabled bool
}

// Manager hands out sessions for transactions: the multiplexed session when the
// transaction kind permits it and regular pooled sessions otherwise.
type Manager struct {
	config Config
	client Client
	meta   *meta.Meta

	pool   *pool.Pool[*Session, Session]
	worker *background.Worker

	// mu guards every transition of the multiplexed slot
	mu                  sync.Mutex
	multiplexed         *Session
	multiplexedDisabled atomic.Bool
	stopRefresh         func()
}

func NewManager(ctx context.Context, client Client, m *meta.Meta, opts ...Option) *Manager {
	config := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&config)
		}
	}

	manager := &Manager{
		config: config,
		client: client,
		meta:   m,
		worker: background.NewWorker(ctx, "session-manager", background.WithClock(config.clock)),
	}
	manager.pool = pool.New[*Session, Session](
		pool.WithCreateFunc[*Session, Session](manager.createSessions),
		pool.WithLimit[*Session, Session](config.maxSize),
		pool.WithMinSize[*Session, Session](config.minSize),
		pool.WithBatches[*Session, Session](config.batches),
		pool.WithPingInterval[*Session, Session](config.pingInterval),
		pool.WithCreateItemTimeout[*Session, Session](config.createTimeout),
		pool.WithClock[*Session, Session](config.clock),
		pool.WithTrace[*Session, Session](&pool.Trace{
			OnCreate: func(n int) func(created int, err error) {
				return func(created int, err error) {
					if err != nil {
						log.Warn(ctx, config.logger, logNames, "batch create sessions failed",
							log.Int("requested", n), log.Error(err),
						)

						return
					}
					log.Debug(ctx, config.logger, logNames, "sessions created",
						log.Int("requested", n), log.Int("created", created),
					)
				}
			},
			OnPing: func(err error) {
				if err != nil {
					log.Debug(ctx, config.logger, logNames, "session keep-alive failed", log.Error(err))
				}
			},
		}),
	)
	manager.worker.Every("pool-maintain", config.maintainInterval, func(ctx context.Context) {
		if err := manager.pool.Maintain(ctx); err != nil && !pool.IsClosed(err) {
			log.Warn(ctx, config.logger, logNames, "session pool maintenance failed", log.Error(err))
		}
	})

	return manager
}

func (m *Manager) Config() *Config {
	return &m.config
}

// Warmup fills the pool of regular sessions up to its minimal size.
func (m *Manager) Warmup(ctx context.Context) error {
	if err := m.pool.Warmup(ctx); err != nil {
		return xerrors.WithStackTrace(err)
	}

	return nil
}

func (m *Manager) createSessions(ctx context.Context, n int) ([]*Session, error) {
	ctx = m.meta.Context(ctx, m.meta.NextRequestID())
	resp, err := m.client.BatchCreateSessions(ctx, &spannerpb.BatchCreateSessionsRequest{
		Database: m.meta.Database(),
		SessionTemplate: &spannerpb.Session{
			Labels:      m.config.labels,
			CreatorRole: m.config.databaseRole,
		},
		SessionCount: int32(n), //nolint:gosec
	})
	if err != nil {
		return nil, xerrors.WithStackTrace(xerrors.Transport(err))
	}

	sessions := make([]*Session, 0, len(resp.GetSession()))
	for _, pb := range resp.GetSession() {
		sessions = append(sessions, newSession(pb, m.client, m.meta, m.config.clock))
	}

	return sessions, nil
}

func (m *Manager) createMultiplexed(ctx context.Context) (*Session, error) {
	ctx = m.meta.Context(ctx, m.meta.NextRequestID())
	pb, err := m.client.CreateSession(ctx, &spannerpb.CreateSessionRequest{
		Database: m.meta.Database(),
		Session: &spannerpb.Session{
			Labels:      m.config.labels,
			CreatorRole: m.config.databaseRole,
			Multiplexed: true,
		},
	})
	if err != nil {
		return nil, xerrors.WithStackTrace(xerrors.Transport(err))
	}

	s := newSession(pb, m.client, m.meta, m.config.clock)
	s.multiplexed = true

	return s, nil
}

// Get returns a session for a transaction of the given kind.
func (m *Manager) Get(ctx context.Context, kind Kind) (*Session, error) {
	select {
	case <-m.worker.Done():
		return nil, xerrors.WithStackTrace(errManagerClosed)
	default:
	}

	if m.config.MultiplexedFor(kind) && !m.multiplexedDisabled.Load() {
		s, err := m.getMultiplexed(ctx)
		switch {
		case err == nil:
			return s, nil
		case !errors.Is(err, errMultiplexedDisabled):
			return nil, xerrors.WithStackTrace(err)
		}
	}

	s, err := m.pool.Get(ctx)
	if err != nil {
		return nil, xerrors.WithStackTrace(err)
	}
	s.setStatus(StatusInUse)

	return s, nil
}

func (m *Manager) getMultiplexed(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.multiplexedDisabled.Load() {
		return nil, errMultiplexedDisabled
	}
	if m.multiplexed != nil {
		return m.multiplexed, nil
	}

	s, err := m.createMultiplexed(ctx)
	if err != nil {
		if xerrors.IsUnimplemented(err) {
			m.multiplexedDisabled.Store(true)
			log.Info(ctx, m.config.logger, logNames, "multiplexed sessions are not supported, falling back to the pool",
				log.Error(err),
			)

			return nil, errMultiplexedDisabled
		}

		return nil, xerrors.WithStackTrace(err)
	}
	m.multiplexed = s
	log.Debug(ctx, m.config.logger, logNames, "multiplexed session created", log.String("name", s.Name()))

	if m.stopRefresh == nil {
		m.stopRefresh = m.worker.Every("multiplexed-refresh", m.config.pollInterval, m.refreshMultiplexed)
	}

	return s, nil
}

// refreshMultiplexed replaces the multiplexed session once it is older than the refresh interval.
func (m *Manager) refreshMultiplexed(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.multiplexed
	if m.multiplexedDisabled.Load() || current == nil {
		return
	}
	if m.config.clock.Since(current.CreateTime()) < m.config.refreshInterval {
		return
	}

	fresh, err := m.createMultiplexed(ctx)
	if err != nil {
		if xerrors.IsUnimplemented(err) {
			m.multiplexedDisabled.Store(true)
			m.multiplexed = nil
			m.stopRefresh()
		}
		log.Warn(ctx, m.config.logger, logNames, "multiplexed session refresh failed", log.Error(err))

		return
	}
	m.multiplexed = fresh
	if err := current.Close(ctx); err != nil {
		log.Debug(ctx, m.config.logger, logNames, "close replaced multiplexed session failed",
			log.String("name", current.Name()), log.Error(err),
		)
	}

	log.Debug(ctx, m.config.logger, logNames, "multiplexed session refreshed",
		log.String("old", current.Name()),
		log.String("new", fresh.Name()),
	)
}

// Put returns a regular session to the pool. The multiplexed session stays with the manager.
func (m *Manager) Put(ctx context.Context, s *Session) {
	if s == nil || s.Multiplexed() {
		return
	}
	if s.Status() == StatusInUse {
		s.setStatus(StatusIdle)
	}
	if err := m.pool.Put(ctx, s); err != nil && !pool.IsClosed(err) {
		log.Debug(ctx, m.config.logger, logNames, "session dropped", log.String("name", s.Name()), log.Error(err))
	}
}

// Exists reports whether the server still knows the session name.
func (m *Manager) Exists(ctx context.Context, name string) (bool, error) {
	ctx = m.meta.Context(ctx, m.meta.NextRequestID())
	_, err := m.client.GetSession(ctx, &spannerpb.GetSessionRequest{Name: name})
	if err != nil {
		err = xerrors.Transport(err)
		if xerrors.IsNotFound(err) {
			return false, nil
		}

		return false, xerrors.WithStackTrace(err)
	}

	return true, nil
}

func (m *Manager) MultiplexedDisabled() bool {
	return m.multiplexedDisabled.Load()
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	hasMultiplexed := m.multiplexed != nil
	m.mu.Unlock()

	return Stats{
		Pool:                m.pool.Stats(),
		Multiplexed:         hasMultiplexed,
		MultiplexedDisabled: m.multiplexedDisabled.Load(),
	}
}

// Close stops the maintenance tasks and deletes the idle regular sessions.
func (m *Manager) Close(ctx context.Context) error {
	if err := m.worker.Close(ctx, errManagerClosed); err != nil {
		return xerrors.WithStackTrace(err)
	}

	m.mu.Lock()
	m.multiplexed = nil
	m.mu.Unlock()

	if err := m.pool.Close(ctx); err != nil {
		return xerrors.WithStackTrace(err)
	}

	return nil
}
