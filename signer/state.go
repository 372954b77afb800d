// Package signer implements the per-reward-cycle signer engine: the
// command/event loop, block-acceptance state machine, threshold-signing
// coordinator interaction, NACK-based stale-view back-off, and their
// glue to the persistent block-info store.
package signer

import "github.com/coresig/signer/chain"

// State is the engine's top-level state machine.
type State int

const (
	StateIdle State = iota
	StateOperationInProgress
	StateTenureExceeded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOperationInProgress:
		return "operation_in_progress"
	case StateTenureExceeded:
		return "tenure_exceeded"
	default:
		return "unknown"
	}
}

// CommandKind discriminates the two operations the engine can queue as
// coordinator.
type CommandKind int

const (
	CommandDkg CommandKind = iota
	CommandSign
)

// Command is a pending coordinator operation executed only while this
// signer is the selected coordinator.
type Command struct {
	Kind       CommandKind
	Block      *chain.Block // CommandSign only
	Taproot    bool         // CommandSign only
	MerkleRoot []byte       // CommandSign only
}
