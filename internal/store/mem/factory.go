package mem

import "github.com/nextlevelbuilder/goaide/internal/store"

// NewMemStores creates a full in-memory set of stores.
func NewMemStores() *store.Stores {
	return &store.Stores{
		Identity:    NewMemIdentityStore(),
		Checkpoints: NewMemCheckpointStore(),
		Reminders:   NewMemReminderStore(),
		Flows:       NewMemFlowStore(),
		MCP:         NewMemMCPServerStore(),
	}
}
