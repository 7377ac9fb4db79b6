// Package ethrpc provides the default chains.ContractCaller backed by a
// go-ethereum JSON-RPC connection. Single reads go through eth_call; batched
// reads are encoded as one JSON-RPC batch so N independent calls cost one
// round trip.
package ethrpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/poolstate/poolstate-client-go/chains"
)

// Config holds the configuration for a per-network caller.
type Config struct {
	URL     string
	ChainID uint64
	Logger  chains.Logger
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if c.URL == "" {
		return errors.New("config: URL is required")
	}
	if c.ChainID == 0 {
		return errors.New("config: ChainID is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// Client implements chains.ContractCaller for a single network.
type Client struct {
	chainID uint64
	rpc     *rpc.Client
	eth     *ethclient.Client
	logger  chains.Logger
}

// Dial connects to the node and verifies that the remote chain id matches the
// configured one. A caller bound to the wrong network is refused up front
// rather than surfacing as confusing read results later.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	rpcClient, err := rpc.DialContext(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", cfg.URL, err)
	}

	eth := ethclient.NewClient(rpcClient)
	remote, err := eth.ChainID(ctx)
	if err != nil {
		rpcClient.Close()
		return nil, fmt.Errorf("failed to query chain id from %s: %w", cfg.URL, err)
	}
	if remote.Uint64() != cfg.ChainID {
		rpcClient.Close()
		return nil, fmt.Errorf("remote chain id %d does not match configured chain id %d", remote.Uint64(), cfg.ChainID)
	}

	cfg.Logger.Info("Contract caller connected", "chain_id", cfg.ChainID, "url", cfg.URL)
	return &Client{
		chainID: cfg.ChainID,
		rpc:     rpcClient,
		eth:     eth,
		logger:  cfg.Logger,
	}, nil
}

// ChainID reports the network this caller is bound to.
func (c *Client) ChainID() uint64 {
	return c.chainID
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// Call performs a single eth_call and decodes the outputs.
func (c *Client) Call(ctx context.Context, call chains.Call) ([]any, error) {
	data, err := call.ABI.Pack(call.Method, call.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s on %s: %w", call.Method, call.To.Hex(), err)
	}

	raw, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &call.To, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s failed: %w", call.Method, call.To.Hex(), err)
	}

	out, err := call.ABI.Unpack(call.Method, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s result from %s: %w", call.Method, call.To.Hex(), err)
	}
	return out, nil
}

// BatchCall encodes every call as an eth_call element of one JSON-RPC batch.
// The batch fails as a whole: a transport error, a failed element, or a
// decode error discards all results.
func (c *Client) BatchCall(ctx context.Context, calls []chains.Call) ([][]any, error) {
	if len(calls) == 0 {
		return nil, nil
	}

	elems := make([]rpc.BatchElem, len(calls))
	raws := make([]hexutil.Bytes, len(calls))
	for i, call := range calls {
		data, err := call.ABI.Pack(call.Method, call.Args...)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s on %s: %w", call.Method, call.To.Hex(), err)
		}
		elems[i] = rpc.BatchElem{
			Method: "eth_call",
			Args: []any{
				map[string]any{
					"to":    call.To,
					"input": hexutil.Bytes(data),
				},
				"latest",
			},
			Result: &raws[i],
		}
	}

	if err := c.rpc.BatchCallContext(ctx, elems); err != nil {
		return nil, fmt.Errorf("batch of %d calls failed: %w", len(calls), err)
	}

	out := make([][]any, len(calls))
	for i := range elems {
		if elems[i].Error != nil {
			return nil, fmt.Errorf("batch element %d (%s on %s) failed: %w",
				i, calls[i].Method, calls[i].To.Hex(), elems[i].Error)
		}
		decoded, err := calls[i].ABI.Unpack(calls[i].Method, raws[i])
		if err != nil {
			return nil, fmt.Errorf("failed to decode batch element %d (%s on %s): %w",
				i, calls[i].Method, calls[i].To.Hex(), err)
		}
		out[i] = decoded
	}

	c.logger.Debug("Batch call settled", "chain_id", c.chainID, "calls", len(calls))
	return out, nil
}
