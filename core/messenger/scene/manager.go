package scene

import (
	"context"
	"sync"

	"github.com/m3rciful/mbot/core/logger"
	"github.com/m3rciful/mbot/core/messenger"
	"github.com/m3rciful/mbot/core/session"
	"log/slog"
)

// defaultSentinelID keys sessions for events whose sender cannot be
// resolved, so even those share one consistent session.
const defaultSentinelID = "anonymous"

// Manager owns the scene registry and the session store for one bot. It
// supplies the middleware that loads the session, resumes an active
// scene and persists the result. One manager per process; scenes are
// registered before serving begins.
type Manager struct {
	mu       sync.RWMutex
	scenes   map[string]*Scene
	store    session.Store
	locks    *session.KeyedLock
	sentinel string
}

// Option adjusts manager construction.
type Option func(*Manager)

// WithSentinelID overrides the session id used for events without a
// resolvable sender.
func WithSentinelID(id string) Option {
	return func(m *Manager) {
		if id != "" {
			m.sentinel = id
		}
	}
}

// NewManager builds a manager around the given store. A nil store falls
// back to the in-memory one.
func NewManager(store session.Store, opts ...Option) *Manager {
	if store == nil {
		store = session.NewMemoryStore()
	}
	m := &Manager{
		scenes:   make(map[string]*Scene),
		store:    store,
		locks:    session.NewKeyedLock(),
		sentinel: defaultSentinelID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Register adds the scene under its name. Last write wins: an already
// registered name is replaced with a warning.
func (m *Manager) Register(s *Scene) {
	if s == nil || s.Name() == "" {
		logger.Warn(context.Background(), "scene", "register.scene.skip",
			slog.String("reason", "invalid"),
		)
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.scenes[s.Name()]; exists {
		logger.Warn(context.Background(), "scene", "register.scene.duplicate",
			slog.String("scene", s.Name()),
		)
	}
	m.scenes[s.Name()] = s
}

// Get returns the registered scene by name.
func (m *Manager) Get(name string) (*Scene, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.scenes[name]
	return s, ok
}

// Store exposes the session store backing this manager.
func (m *Manager) Store() session.Store {
	return m.store
}

// Middleware returns the chain stage driving scenes. Per event it loads
// the sender's session, then either resumes the recorded scene (the
// event is claimed: the rest of the chain and the dispatcher are
// skipped) or passes control on, and finally persists the session
// regardless of what the handlers did to it. Store failures are logged
// and absorbed: a broken backend degrades to per-event state, it does
// not abort the pass.
//
// Passes for the same sender are serialized for the whole load, handle,
// persist span, so overlapping deliveries cannot lose each other's
// session writes.
func (m *Manager) Middleware() messenger.MiddlewareFunc {
	return func(next messenger.HandlerFunc) messenger.HandlerFunc {
		return func(c messenger.Context) error {
			id := c.Sender()
			if id == "" {
				id = m.sentinel
			}

			return m.locks.WithLock(c.Context(), id, func(ctx context.Context) error {
				sess, err := m.store.Get(ctx, id)
				if err != nil {
					logger.Error(ctx, "session", "session.load.fail",
						slog.String("user_id", id),
						slog.String("err", err.Error()),
					)
					sess = session.New()
				}
				c.SetSession(sess)

				var runErr error
				name, _ := sess.GetString(sceneKey)
				if sc, ok := m.resolve(name); ok && !Stopped(c) {
					runErr = sc.Handle(c)
				} else {
					if name != "" && !ok {
						logger.Warn(ctx, "scene", "scene.resume.unknown",
							slog.String("scene", name),
						)
					}
					runErr = next(c)
				}

				if err := m.store.Set(ctx, id, sess); err != nil {
					logger.Error(ctx, "session", "session.save.fail",
						slog.String("user_id", id),
						slog.String("err", err.Error()),
					)
				}
				return runErr
			})
		}
	}
}

func (m *Manager) resolve(name string) (*Scene, bool) {
	if name == "" {
		return nil, false
	}
	return m.Get(name)
}

// Enter returns a handler that starts the named scene, suitable for
// registration as a command, action or generic handler. An unregistered
// name is a no-op.
func (m *Manager) Enter(name string) messenger.HandlerFunc {
	return func(c messenger.Context) error {
		sc, ok := m.Get(name)
		if !ok {
			logger.Debug(c.Context(), "scene", "scene.enter.unknown",
				slog.String("scene", name),
			)
			return nil
		}
		return sc.Enter(c)
	}
}
