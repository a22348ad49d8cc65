package pg

import (
	"database/sql"
	"fmt"

	"github.com/nextlevelbuilder/goaide/internal/store"
)

// NewPGStores creates all stores backed by Postgres (shared mode).
// The returned handle is shared by every store and owned by the caller.
func NewPGStores(dsn string) (*store.Stores, *sql.DB, error) {
	db, err := OpenDB(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}

	return &store.Stores{
		Identity:    NewPGIdentityStore(db),
		Checkpoints: NewPGCheckpointStore(db),
		Reminders:   NewPGReminderStore(db),
		Flows:       NewPGFlowStore(db),
		MCP:         NewPGMCPServerStore(db),
	}, db, nil
}
