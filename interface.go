package onchain

import (
	"context"
)

// Manager defines the user facing operations of the on-chain core.
// This interface allows for easy mocking in tests and provides a stable API contract.
type Manager interface {
	// Wallet Session
	Connect(ctx context.Context) error
	Session() *Session

	// Network
	ChainSessionManager() *ChainSessionManager

	// Actions
	SaveNote(ctx context.Context, note Note, onChain bool) (*ActionResult, error)
	SaveOnChainNote(ctx context.Context, note Note) (*ActionResult, error)
	MintNote(ctx context.Context, note Note) (*ActionResult, error)
	SaveTodos(ctx context.Context, todos []Todo) (*ActionResult, error)
	SaveInvestments(ctx context.Context, investments []Investment) (*ActionResult, error)

	// Reads
	ReadNotes(ctx context.Context) (string, error)

	// Persistence
	ActionStore() ActionStore
	LocalStore() LocalStore
	Recover(ctx context.Context, opts RecoveryOptions) (*RecoveryResult, error)
}

// Compile-time check that Orchestrator implements Manager
var _ Manager = (*Orchestrator)(nil)
