// Package chains declares the collaborator interfaces the pool client
// depends on: a structured logger and a per-network contract caller capable
// of single reads and batched multicalls.
package chains

import (
	"context"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Call describes one read-only contract call: target address, interface
// shape, method and arguments.
type Call struct {
	To     common.Address
	ABI    *abi.ABI
	Method string
	Args   []any
}

// ContractCaller reads contract state on exactly one network. Implementations
// decode results according to the call's ABI; a failed read (transport error,
// revert, decode error) is reported as a plain error with no retry.
type ContractCaller interface {
	// ChainID reports the network this caller is bound to.
	ChainID() uint64

	// Call performs a single read and returns the decoded outputs.
	Call(ctx context.Context, call Call) ([]any, error)

	// BatchCall performs many independent reads in one round trip. Results
	// are positional. The batch fails as a whole: if any element errors, no
	// partial results are returned.
	BatchCall(ctx context.Context, calls []Call) ([][]any, error)
}
