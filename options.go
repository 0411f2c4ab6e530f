package onchain

import (
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/basenote/onchain/inflight"
)

// OrchestratorOption is a function that configures an Orchestrator
type OrchestratorOption func(*Orchestrator)

// WithConfig sets the configuration (fees, fee recipient, contract addresses,
// target network, receipt timing)
func WithConfig(cfg Config) OrchestratorOption {
	return func(o *Orchestrator) {
		o.cfg = cfg
	}
}

// WithSession shares an existing wallet session with the orchestrator
func WithSession(session *Session) OrchestratorOption {
	return func(o *Orchestrator) {
		o.session = session
	}
}

// WithExchangeRateSource replaces the coingecko price oracle
func WithExchangeRateSource(source ExchangeRateSource) OrchestratorOption {
	return func(o *Orchestrator) {
		o.rates = source
	}
}

// WithGuard sets the in-flight guard. Use a shared guard (e.g. Redis backed)
// when several processes act for the same user.
func WithGuard(guard inflight.Guard) OrchestratorOption {
	return func(o *Orchestrator) {
		o.guard = guard
	}
}

// WithActionStore sets where action records are persisted
func WithActionStore(store ActionStore) OrchestratorOption {
	return func(o *Orchestrator) {
		o.actions = store
	}
}

// WithLocalStore sets the store holding the user's notes, todos and investments
func WithLocalStore(store LocalStore) OrchestratorOption {
	return func(o *Orchestrator) {
		o.local = store
	}
}

// WithReceiptPollInterval overrides the configured receipt poll interval
func WithReceiptPollInterval(interval time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.pollInterval = interval
	}
}

// WithReceiptTimeout overrides the configured receipt timeout
func WithReceiptTimeout(timeout time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.receiptTimeout = timeout
	}
}

// WithProgress registers a callback receiving step updates of every action
func WithProgress(fn ProgressFunc) OrchestratorOption {
	return func(o *Orchestrator) {
		o.progress = fn
	}
}

// WithNetwork overrides the target network derived from the configuration
func WithNetwork(network NetworkDescriptor) OrchestratorOption {
	return func(o *Orchestrator) {
		o.network = &network
	}
}

// WithErrorABIs adds ABIs whose custom errors are decoded from reverts
func WithErrorABIs(abis ...abi.ABI) OrchestratorOption {
	return func(o *Orchestrator) {
		o.errorABIs = append(o.errorABIs, abis...)
	}
}

// WithClock sets the time source, mostly for tests
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		o.now = now
	}
}
