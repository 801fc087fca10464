package notify

import (
	"context"
	"sync"

	"github.com/go-notify-core/internal/domain"
)

// Manager hands out one Service per user id and keeps it alive across
// requests, so realtime subscriptions and dedup state survive between
// HTTP calls and WebSocket attachments.
type Manager struct {
	mu      sync.Mutex
	deps    ServiceDeps
	handles map[string]*Service
}

func NewManager(deps ServiceDeps) *Manager {
	return &Manager{deps: deps, handles: make(map[string]*Service)}
}

// ForUser returns the handle for userID, initializing it on first use.
// Empty ids resolve to the guest handle.
func (m *Manager) ForUser(ctx context.Context, userID string) *Service {
	if userID == "" {
		userID = domain.GuestUserID
	}
	m.mu.Lock()
	svc, ok := m.handles[userID]
	if !ok {
		svc = NewService(m.deps)
		m.handles[userID] = svc
	}
	m.mu.Unlock()

	if !svc.Initialized() {
		svc.Initialize(ctx, userID)
	}
	return svc
}

// StopAll tears down every open handle. Called on shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, svc := range m.handles {
		svc.Stop()
	}
	m.handles = make(map[string]*Service)
}
