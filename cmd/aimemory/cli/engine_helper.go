package cli

import (
	"context"

	"github.com/aimemory/engine/internal/engine"
)

// openEngine opens the engine's collaborators (store, resolver, gitexec,
// shadow/restore managers) without starting the transcript indexer or
// any shadow-commit watch — the right mode for one-shot CLI commands
// that only read or edit store state. Callers must call closeEngine
// rather than eng.Shutdown, since Shutdown assumes Start was called.
func openEngine(ctx context.Context) (*engine.Engine, error) {
	return engine.Open(ctx)
}

func closeEngine(eng *engine.Engine) {
	if eng == nil {
		return
	}
	_ = eng.Store.Close()
}
