// Package pools implements the contract-graph resolution layer: pool handles
// with lazily resolved, cached child contracts, a builder that constructs a
// set of handles from a descriptor list, and an assembler that discovers
// child contracts across many networks with batched reads.
package pools

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/singleflight"

	"github.com/poolstate/poolstate-client-go/abis"
	"github.com/poolstate/poolstate-client-go/chains"
	"github.com/poolstate/poolstate-client-go/contracts"
)

const (
	childToken  = "token"
	childTicket = "ticket"
)

// ContractHandle is a typed, immutable handle to one deployed contract.
type ContractHandle struct {
	ChainID uint64
	Address common.Address
	ABI     *abi.ABI
}

// TokenMetadata is the name/symbol/decimals triple of an ERC-20 contract.
type TokenMetadata struct {
	Name     string
	Symbol   string
	Decimals uint8
}

// UserBalances holds a user's balance in the underlying token and the ticket.
type UserBalances struct {
	Token  *big.Int
	Ticket *big.Int
}

// DepositAllowance is the raw deposit allowance plus a convenience flag.
type DepositAllowance struct {
	Allowance  *big.Int
	IsApproved bool
}

// PoolHandle owns one prize pool deployment: the primary contract plus
// lazily resolved handles to its token and ticket contracts. Child handles
// are resolved at most once and cached for the handle's lifetime; a failed
// resolution is not cached and a later call may succeed. Safe for concurrent
// use.
type PoolHandle struct {
	chainID    uint64
	address    common.Address
	primaryABI *abi.ABI
	caller     chains.ContractCaller
	logger     chains.Logger
	metrics    *Metrics

	flight singleflight.Group

	mu     sync.RWMutex
	token  *ContractHandle
	ticket *ContractHandle
}

// NewPoolHandle builds a handle for a primary prize pool descriptor.
func NewPoolHandle(
	primary contracts.Contract,
	caller chains.ContractCaller,
	logger chains.Logger,
	metrics *Metrics,
) (*PoolHandle, error) {
	if primary.Type != contracts.TypePrizePool {
		return nil, fmt.Errorf("descriptor %s has type %q, want %q", primary.Address.Hex(), primary.Type, contracts.TypePrizePool)
	}
	if caller == nil {
		return nil, &ConstructionError{
			ChainID: primary.ChainID,
			Pool:    primary.Address,
			Err:     errors.New("no contract caller provided"),
		}
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	primaryABI, err := abis.ByShape(primary.Shape)
	if err != nil {
		return nil, &ConstructionError{ChainID: primary.ChainID, Pool: primary.Address, Err: err}
	}

	return &PoolHandle{
		chainID:    primary.ChainID,
		address:    primary.Address,
		primaryABI: primaryABI,
		caller:     caller,
		logger:     logger,
		metrics:    metrics,
	}, nil
}

// ChainID reports the chain this deployment lives on.
func (h *PoolHandle) ChainID() uint64 {
	return h.chainID
}

// Address returns the primary prize pool contract address.
func (h *PoolHandle) Address() common.Address {
	return h.address
}

// Token returns the handle to the underlying deposit token, resolving it via
// a single chain read on first use. Concurrent callers racing before the
// first resolution completes share one in-flight read and receive the same
// resolved handle.
func (h *PoolHandle) Token(ctx context.Context) (*ContractHandle, error) {
	if err := h.checkNetwork(); err != nil {
		return nil, err
	}
	return h.resolveChild(ctx, childToken)
}

// Ticket returns the handle to the ticket contract, resolved and cached the
// same way as Token.
func (h *PoolHandle) Ticket(ctx context.Context) (*ContractHandle, error) {
	if err := h.checkNetwork(); err != nil {
		return nil, err
	}
	return h.resolveChild(ctx, childTicket)
}

// UserTokenBalance reads the user's balance of the underlying deposit token.
func (h *PoolHandle) UserTokenBalance(ctx context.Context, account string) (*big.Int, error) {
	addr, token, err := h.accessChild(ctx, account, childToken)
	if err != nil {
		return nil, err
	}
	return h.readBigInt(ctx, token, "balanceOf", addr)
}

// UserTicketBalance reads the user's current ticket balance.
func (h *PoolHandle) UserTicketBalance(ctx context.Context, account string) (*big.Int, error) {
	addr, ticket, err := h.accessChild(ctx, account, childTicket)
	if err != nil {
		return nil, err
	}
	return h.readBigInt(ctx, ticket, "balanceOf", addr)
}

// UserBalances reads the user's token and ticket balances in one batched
// round trip.
func (h *PoolHandle) UserBalances(ctx context.Context, account string) (*UserBalances, error) {
	addr, token, err := h.accessChild(ctx, account, childToken)
	if err != nil {
		return nil, err
	}
	ticket, err := h.resolveChild(ctx, childTicket)
	if err != nil {
		return nil, err
	}

	out, err := h.batchRead(ctx, []chains.Call{
		{To: token.Address, ABI: token.ABI, Method: "balanceOf", Args: []any{addr}},
		{To: ticket.Address, ABI: ticket.ABI, Method: "balanceOf", Args: []any{addr}},
	})
	if err != nil {
		return nil, err
	}

	tokenBal, err := decodeBigInt(out[0])
	if err != nil {
		return nil, h.decodeError(token.Address, "balanceOf", err)
	}
	ticketBal, err := decodeBigInt(out[1])
	if err != nil {
		return nil, h.decodeError(ticket.Address, "balanceOf", err)
	}
	return &UserBalances{Token: tokenBal, Ticket: ticketBal}, nil
}

// UserTicketBalanceAt reads the user's time-weighted ticket balance at the
// given unix timestamp.
func (h *PoolHandle) UserTicketBalanceAt(ctx context.Context, account string, timestamp uint64) (*big.Int, error) {
	addr, ticket, err := h.accessChild(ctx, account, childTicket)
	if err != nil {
		return nil, err
	}
	return h.readBigInt(ctx, ticket, "getBalanceAt", addr, timestamp)
}

// TotalSupplyAt reads the ticket's total supply at the given unix timestamp.
func (h *PoolHandle) TotalSupplyAt(ctx context.Context, timestamp uint64) (*big.Int, error) {
	ticket, err := h.Ticket(ctx)
	if err != nil {
		return nil, err
	}
	return h.readBigInt(ctx, ticket, "getTotalSupplyAt", timestamp)
}

// TicketTotalSupply reads the ticket's current total supply.
func (h *PoolHandle) TicketTotalSupply(ctx context.Context) (*big.Int, error) {
	ticket, err := h.Ticket(ctx)
	if err != nil {
		return nil, err
	}
	return h.readBigInt(ctx, ticket, "totalSupply")
}

// UserDelegate reads the address the user's ticket balance is delegated to.
func (h *PoolHandle) UserDelegate(ctx context.Context, account string) (common.Address, error) {
	addr, ticket, err := h.accessChild(ctx, account, childTicket)
	if err != nil {
		return common.Address{}, err
	}
	out, err := h.readChild(ctx, ticket, "delegateOf", addr)
	if err != nil {
		return common.Address{}, err
	}
	delegate, err := decodeAddress(out)
	if err != nil {
		return common.Address{}, h.decodeError(ticket.Address, "delegateOf", err)
	}
	return delegate, nil
}

// UserDepositAllowance reads how much of the underlying token the user has
// approved the prize pool to spend.
func (h *PoolHandle) UserDepositAllowance(ctx context.Context, account string) (*DepositAllowance, error) {
	addr, token, err := h.accessChild(ctx, account, childToken)
	if err != nil {
		return nil, err
	}
	allowance, err := h.readBigInt(ctx, token, "allowance", addr, h.address)
	if err != nil {
		return nil, err
	}
	return &DepositAllowance{
		Allowance:  allowance,
		IsApproved: allowance.Sign() > 0,
	}, nil
}

// TokenMetadata reads the underlying token's name, symbol and decimals in one
// batched round trip.
func (h *PoolHandle) TokenMetadata(ctx context.Context) (*TokenMetadata, error) {
	if err := h.checkNetwork(); err != nil {
		return nil, err
	}
	token, err := h.resolveChild(ctx, childToken)
	if err != nil {
		return nil, err
	}
	return h.metadataOf(ctx, token)
}

// TicketMetadata reads the ticket's name, symbol and decimals in one batched
// round trip.
func (h *PoolHandle) TicketMetadata(ctx context.Context) (*TokenMetadata, error) {
	if err := h.checkNetwork(); err != nil {
		return nil, err
	}
	ticket, err := h.resolveChild(ctx, childTicket)
	if err != nil {
		return nil, err
	}
	return h.metadataOf(ctx, ticket)
}

// --- resolution ---

// resolveChild implements resolve-once, cache-forever semantics with an
// at-most-one-in-flight guard. The singleflight group collapses concurrent
// first resolutions into one read; a failed resolution leaves the cache
// empty so a later call retries.
func (h *PoolHandle) resolveChild(ctx context.Context, kind string) (*ContractHandle, error) {
	if child := h.cachedChild(kind); child != nil {
		h.metrics.ChildResolutions.WithLabelValues(kind, "cached").Inc()
		return child, nil
	}

	v, err, shared := h.flight.Do(kind, func() (any, error) {
		// A racing caller may have completed the resolution while this one
		// waited for the flight slot.
		if child := h.cachedChild(kind); child != nil {
			return child, nil
		}

		method, shape := "getToken", abis.ERC20
		if kind == childTicket {
			method, shape = "getTicket", abis.Ticket
		}

		out, err := h.caller.Call(ctx, chains.Call{To: h.address, ABI: h.primaryABI, Method: method})
		if err != nil {
			return nil, &ResolutionError{ChainID: h.chainID, Contract: h.address, Method: method, Err: err}
		}
		addr, err := decodeAddress(out)
		if err != nil {
			return nil, &ResolutionError{ChainID: h.chainID, Contract: h.address, Method: method, Err: err}
		}

		child := &ContractHandle{ChainID: h.chainID, Address: addr, ABI: abis.MustByShape(shape)}
		h.storeChild(kind, child)
		h.logger.Debug("Resolved child contract", "chain_id", h.chainID, "pool", h.address.Hex(), "kind", kind, "child", addr.Hex())
		return child, nil
	})
	if err != nil {
		h.metrics.ChildResolutions.WithLabelValues(kind, "error").Inc()
		return nil, err
	}
	if !shared {
		h.metrics.ChildResolutions.WithLabelValues(kind, "fetched").Inc()
	}
	return v.(*ContractHandle), nil
}

func (h *PoolHandle) cachedChild(kind string) *ContractHandle {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if kind == childTicket {
		return h.ticket
	}
	return h.token
}

func (h *PoolHandle) storeChild(kind string, child *ContractHandle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if kind == childTicket {
		h.ticket = child
		return
	}
	h.token = child
}

// seedChild pre-populates a child cache from a declared-children descriptor,
// avoiding the network round trip entirely. Builder-only.
func (h *PoolHandle) seedChild(kind string, address common.Address, shape abis.Shape) error {
	childABI, err := abis.ByShape(shape)
	if err != nil {
		return err
	}
	h.storeChild(kind, &ContractHandle{ChainID: h.chainID, Address: address, ABI: childABI})
	return nil
}

// --- validation and read helpers ---

// accessChild performs the shared accessor preamble: local address
// validation, network check, child resolution.
func (h *PoolHandle) accessChild(ctx context.Context, account string, kind string) (common.Address, *ContractHandle, error) {
	addr, err := h.parseAccount(account)
	if err != nil {
		return common.Address{}, nil, err
	}
	if err := h.checkNetwork(); err != nil {
		return common.Address{}, nil, err
	}
	child, err := h.resolveChild(ctx, kind)
	if err != nil {
		return common.Address{}, nil, err
	}
	return addr, child, nil
}

func (h *PoolHandle) parseAccount(input string) (common.Address, error) {
	if !common.IsHexAddress(input) {
		h.metrics.AccessorErrors.WithLabelValues("invalid_address").Inc()
		return common.Address{}, &InvalidAddressError{Input: input}
	}
	return common.HexToAddress(input), nil
}

func (h *PoolHandle) checkNetwork() error {
	if callerChainID := h.caller.ChainID(); callerChainID != h.chainID {
		h.metrics.AccessorErrors.WithLabelValues("network_mismatch").Inc()
		return &NetworkMismatchError{
			HandleChainID: h.chainID,
			CallerChainID: callerChainID,
			Pool:          h.address,
		}
	}
	return nil
}

func (h *PoolHandle) readChild(ctx context.Context, child *ContractHandle, method string, args ...any) ([]any, error) {
	out, err := h.caller.Call(ctx, chains.Call{To: child.Address, ABI: child.ABI, Method: method, Args: args})
	if err != nil {
		h.metrics.AccessorErrors.WithLabelValues("resolution_failure").Inc()
		return nil, &ResolutionError{ChainID: h.chainID, Contract: child.Address, Method: method, Err: err}
	}
	return out, nil
}

func (h *PoolHandle) readBigInt(ctx context.Context, child *ContractHandle, method string, args ...any) (*big.Int, error) {
	out, err := h.readChild(ctx, child, method, args...)
	if err != nil {
		return nil, err
	}
	v, err := decodeBigInt(out)
	if err != nil {
		return nil, h.decodeError(child.Address, method, err)
	}
	return v, nil
}

func (h *PoolHandle) batchRead(ctx context.Context, calls []chains.Call) ([][]any, error) {
	out, err := h.caller.BatchCall(ctx, calls)
	if err != nil {
		h.metrics.AccessorErrors.WithLabelValues("resolution_failure").Inc()
		return nil, &ResolutionError{ChainID: h.chainID, Contract: calls[0].To, Method: calls[0].Method, Err: err}
	}
	if len(out) != len(calls) {
		h.metrics.AccessorErrors.WithLabelValues("resolution_failure").Inc()
		return nil, &ResolutionError{
			ChainID:  h.chainID,
			Contract: calls[0].To,
			Method:   calls[0].Method,
			Err:      fmt.Errorf("batch returned %d results for %d calls", len(out), len(calls)),
		}
	}
	return out, nil
}

func (h *PoolHandle) metadataOf(ctx context.Context, child *ContractHandle) (*TokenMetadata, error) {
	out, err := h.batchRead(ctx, []chains.Call{
		{To: child.Address, ABI: child.ABI, Method: "name"},
		{To: child.Address, ABI: child.ABI, Method: "symbol"},
		{To: child.Address, ABI: child.ABI, Method: "decimals"},
	})
	if err != nil {
		return nil, err
	}

	name, err := decodeString(out[0])
	if err != nil {
		return nil, h.decodeError(child.Address, "name", err)
	}
	symbol, err := decodeString(out[1])
	if err != nil {
		return nil, h.decodeError(child.Address, "symbol", err)
	}
	decimals, err := decodeUint8(out[2])
	if err != nil {
		return nil, h.decodeError(child.Address, "decimals", err)
	}
	return &TokenMetadata{Name: name, Symbol: symbol, Decimals: decimals}, nil
}

func (h *PoolHandle) decodeError(contract common.Address, method string, err error) error {
	h.metrics.AccessorErrors.WithLabelValues("resolution_failure").Inc()
	return &ResolutionError{ChainID: h.chainID, Contract: contract, Method: method, Err: err}
}

// --- result decoding ---

func decodeAddress(out []any) (common.Address, error) {
	if len(out) != 1 {
		return common.Address{}, fmt.Errorf("expected 1 output, got %d", len(out))
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("expected address output, got %T", out[0])
	}
	return addr, nil
}

func decodeBigInt(out []any) (*big.Int, error) {
	if len(out) != 1 {
		return nil, fmt.Errorf("expected 1 output, got %d", len(out))
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("expected uint256 output, got %T", out[0])
	}
	return v, nil
}

func decodeString(out []any) (string, error) {
	if len(out) != 1 {
		return "", fmt.Errorf("expected 1 output, got %d", len(out))
	}
	v, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("expected string output, got %T", out[0])
	}
	return v, nil
}

func decodeUint8(out []any) (uint8, error) {
	if len(out) != 1 {
		return 0, fmt.Errorf("expected 1 output, got %d", len(out))
	}
	v, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("expected uint8 output, got %T", out[0])
	}
	return v, nil
}
