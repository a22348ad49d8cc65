package store

// Stores is the top-level container for all global storage backends.
// With a Postgres DSN configured every field is pg-backed; without one
// the in-memory implementations serve single-node deployments and tests.
type Stores struct {
	Identity    IdentityStore
	Checkpoints CheckpointStore
	Reminders   ReminderStore
	Flows       FlowStore
	MCP         MCPServerStore
}
