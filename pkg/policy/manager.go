package policy

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Manager owns the current policy pack. Reloads swap the pack atomically;
// a failed reload keeps the last good pack in place. Subscribers receive
// each successfully loaded pack.
type Manager struct {
	source Source
	logger *slog.Logger

	mu          sync.RWMutex
	current     *Pack
	reloads     uint64
	lastErr     error
	lastReload  time.Time
	subscribers []chan *Pack
}

// NewManager creates a manager for the given source. Call Reload before
// Current; the manager starts with no pack.
func NewManager(source Source, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		source: source,
		logger: logger.With("component", "policy-manager"),
	}
}

// Current returns the active pack, or nil with ErrNoPack before the first
// successful Reload. The returned pack is shared and must be treated as
// read-only; evaluations capture the pointer once and see one consistent
// pack throughout.
func (m *Manager) Current() (*Pack, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == nil {
		return nil, ErrNoPack
	}
	return m.current, nil
}

// Reload loads from the source and swaps the current pack on success.
func (m *Manager) Reload(ctx context.Context) error {
	pack, err := m.source.Load(ctx)
	if err != nil {
		m.mu.Lock()
		m.lastErr = err
		m.mu.Unlock()

		m.logger.Error("policy reload failed, keeping current pack",
			"source", m.source.Describe(),
			"error", err,
		)
		return err
	}

	m.mu.Lock()
	m.current = pack
	m.reloads++
	m.lastErr = nil
	m.lastReload = time.Now()
	subs := make([]chan *Pack, len(m.subscribers))
	copy(subs, m.subscribers)
	m.mu.Unlock()

	m.logger.Info("policy pack active",
		"source", m.source.Describe(),
		"version", pack.Version.Ref(),
	)

	for _, sub := range subs {
		select {
		case sub <- pack:
		default:
			// Slow subscribers miss intermediate packs, never block reloads.
		}
	}
	return nil
}

// Subscribe returns a channel receiving each successfully loaded pack.
// The channel holds one pending pack; slow consumers see only the latest.
func (m *Manager) Subscribe() <-chan *Pack {
	ch := make(chan *Pack, 1)

	m.mu.Lock()
	m.subscribers = append(m.subscribers, ch)
	current := m.current
	m.mu.Unlock()

	if current != nil {
		ch <- current
	}
	return ch
}

// Watch blocks, reloading whenever the source reports a change. Sources
// that cannot watch return immediately with no error.
func (m *Manager) Watch(ctx context.Context) error {
	watchable, ok := m.source.(Watchable)
	if !ok {
		m.logger.Debug("policy source does not support watching",
			"source", m.source.Describe(),
		)
		return nil
	}

	return watchable.Watch(ctx, func() {
		// Errors are already logged and the last good pack keeps serving.
		_ = m.Reload(context.WithoutCancel(ctx))
	})
}

// Stats reports reload counters for health and diagnostics.
func (m *Manager) Stats() (reloads uint64, lastReload time.Time, lastErr error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reloads, m.lastReload, m.lastErr
}
