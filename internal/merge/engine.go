// Package merge implements the reconciliation merge engine: the row-level
// insert/update/resolve/delete operations invoked by the sync driver, the
// sub-entity mergers behind them, and the primary-consolidation rules that
// keep each person's primary slots single-valued.
package merge

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lherron/contactsync/internal/remote"
	"github.com/lherron/contactsync/internal/store"
)

// Engine merges a remote snapshot into the local store. All methods operate
// one person/group row at a time, each inside its own transaction, so a
// failed row never leaves partial state behind.
type Engine struct {
	store  *store.Store
	remote *remote.Source
	logger *zap.Logger
}

// NewEngine creates a merge engine over the local store and a remote source.
func NewEngine(s *store.Store, src *remote.Source, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: s, remote: src, logger: logger}
}

func newLookupUUID() string {
	return uuid.NewString()
}
