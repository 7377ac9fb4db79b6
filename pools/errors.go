package pools

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInvalidAddress is returned when an input fails local address format
	// validation. No network call is made.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrNetworkMismatch is returned when a handle's caller is bound to a
	// different chain than the handle itself.
	ErrNetworkMismatch = errors.New("network mismatch")

	// ErrResolutionFailure is returned when an underlying chain read failed:
	// transport error, contract revert, or decode error.
	ErrResolutionFailure = errors.New("resolution failure")

	// ErrConstructionFailure is returned when a single deployment could not
	// be built, e.g. no caller exists for its chain.
	ErrConstructionFailure = errors.New("construction failure")
)

// InvalidAddressError reports a malformed address input.
type InvalidAddressError struct {
	Input string
}

func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("invalid address %q", e.Input)
}

func (e *InvalidAddressError) Is(target error) bool {
	return target == ErrInvalidAddress
}

// NetworkMismatchError reports a caller bound to the wrong chain for a handle.
type NetworkMismatchError struct {
	HandleChainID uint64
	CallerChainID uint64
	Pool          common.Address
}

func (e *NetworkMismatchError) Error() string {
	return fmt.Sprintf("pool %s is on chain %d but caller is bound to chain %d",
		e.Pool.Hex(), e.HandleChainID, e.CallerChainID)
}

func (e *NetworkMismatchError) Is(target error) bool {
	return target == ErrNetworkMismatch
}

// ResolutionError reports a failed chain read.
type ResolutionError struct {
	ChainID  uint64
	Contract common.Address
	Method   string
	Err      error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("chain %d: %s on %s failed: %v", e.ChainID, e.Method, e.Contract.Hex(), e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

func (e *ResolutionError) Is(target error) bool {
	return target == ErrResolutionFailure
}

// ConstructionError reports one deployment that could not be built.
type ConstructionError struct {
	ChainID uint64
	Pool    common.Address
	Err     error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("chain %d: failed to build pool %s: %v", e.ChainID, e.Pool.Hex(), e.Err)
}

func (e *ConstructionError) Unwrap() error {
	return e.Err
}

func (e *ConstructionError) Is(target error) bool {
	return target == ErrConstructionFailure
}
