package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Module is one part of the bot that can be started and stopped.
type Module interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context)
}

// Manager starts modules in order and stops them in reverse.
type Manager struct {
	modules []Module
	started []Module
	log     *slog.Logger
	mu      sync.Mutex
}

func NewManager(log *slog.Logger, mods ...Module) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{modules: mods, log: log.With("component", "modules")}
}

// Add registers additional modules before Start is invoked.
func (m *Manager) Add(mods ...Module) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started != nil {
		return fmt.Errorf("modules: cannot add modules after start")
	}
	for _, mod := range mods {
		if mod != nil {
			m.modules = append(m.modules, mod)
		}
	}
	return nil
}

// Start starts every module. If one fails, the ones already started are
// stopped again.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started != nil {
		return fmt.Errorf("modules: already started")
	}

	started := make([]Module, 0, len(m.modules))
	for _, mod := range m.modules {
		m.log.Info("starting module", "module", mod.Name())
		if err := mod.Start(ctx); err != nil {
			for i := len(started) - 1; i >= 0; i-- {
				m.log.Info("rolling back module", "module", started[i].Name())
				started[i].Stop(ctx)
			}
			return fmt.Errorf("module %s failed: %w", mod.Name(), err)
		}
		started = append(started, mod)
	}
	m.started = started
	return nil
}

// Stop shuts down all started modules in reverse order.
func (m *Manager) Stop(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.started) - 1; i >= 0; i-- {
		mod := m.started[i]
		m.log.Info("stopping module", "module", mod.Name())
		mod.Stop(ctx)
	}
	m.started = nil
}

// Names lists the registered modules in start order.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.modules))
	for i, mod := range m.modules {
		names[i] = mod.Name()
	}
	return names
}
