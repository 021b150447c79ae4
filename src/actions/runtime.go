package actions

import (
	"log/slog"

	"github.com/oooz/oooz-bot/src/actions/core"
)

type (
	// Manager re-exports the core.Manager for consumers outside the actions package.
	Manager = core.Manager
	// Module re-exports the core.Module interface.
	Module = core.Module
	// Runtime re-exports the shared engines and services.
	Runtime = core.Runtime
)

// NewManager is a helper that forwards to core.NewManager.
func NewManager(log *slog.Logger, mods ...Module) *Manager {
	return core.NewManager(log, mods...)
}
