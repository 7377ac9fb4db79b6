package pools

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poolstate/poolstate-client-go/chains"
	"github.com/poolstate/poolstate-client-go/contracts"
)

var (
	poolAddr   = common.HexToAddress("0x1000000000000000000000000000000000000001")
	tokenAddr  = common.HexToAddress("0x00000000000000000000000000000000000AAa00")
	ticketAddr = common.HexToAddress("0x00000000000000000000000000000000000bbB00")
	userAddr   = "0xf00000000000000000000000000000000000000f"
)

func newTestHandle(t *testing.T, caller chains.ContractCaller) *PoolHandle {
	t.Helper()
	h, err := NewPoolHandle(contracts.NewPrizePoolContract(1, poolAddr), caller, testLogger(), nil)
	require.NoError(t, err)
	return h
}

func TestNewPoolHandle(t *testing.T) {
	caller := &fakeCaller{chainID: 1}

	t.Run("Rejects Non Primary Descriptor", func(t *testing.T) {
		_, err := NewPoolHandle(contracts.NewTokenContract(1, tokenAddr), caller, testLogger(), nil)
		assert.Error(t, err)
	})

	t.Run("Rejects Nil Caller", func(t *testing.T) {
		_, err := NewPoolHandle(contracts.NewPrizePoolContract(1, poolAddr), nil, testLogger(), nil)
		assert.ErrorIs(t, err, ErrConstructionFailure)
	})

	t.Run("Valid", func(t *testing.T) {
		h, err := NewPoolHandle(contracts.NewPrizePoolContract(1, poolAddr), caller, testLogger(), nil)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), h.ChainID())
		assert.Equal(t, poolAddr, h.Address())
	})
}

func TestLazyResolutionIsIdempotent(t *testing.T) {
	caller := &fakeCaller{
		chainID: 1,
		onCall: respondByMethod(map[string][]any{
			"getToken":  {tokenAddr},
			"balanceOf": {big.NewInt(100)},
		}),
	}
	h := newTestHandle(t, caller)

	bal, err := h.UserTokenBalance(context.Background(), userAddr)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(100), bal)

	_, err = h.UserTokenBalance(context.Background(), userAddr)
	require.NoError(t, err)

	assert.Equal(t, 1, caller.methodCalls("getToken"), "child resolution must happen at most once")
	assert.Equal(t, 2, caller.methodCalls("balanceOf"))
}

func TestConcurrentResolutionIssuesOneRead(t *testing.T) {
	caller := &fakeCaller{chainID: 1}
	caller.onCall = func(call chains.Call) ([]any, error) {
		// Slow read keeps every racing caller inside the same flight window.
		time.Sleep(20 * time.Millisecond)
		return []any{tokenAddr}, nil
	}
	h := newTestHandle(t, caller)

	const callers = 16
	handles := make([]*ContractHandle, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			handles[i], errs[i] = h.Token(context.Background())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, caller.methodCalls("getToken"), "racing callers must share one in-flight read")
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, handles[0], handles[i], "all callers must receive the identical resolved handle")
	}
	assert.Equal(t, tokenAddr, handles[0].Address)
}

func TestInvalidAddressNeverReachesNetwork(t *testing.T) {
	caller := &fakeCaller{chainID: 1, onCall: respondByMethod(nil)}
	h := newTestHandle(t, caller)

	_, err := h.UserTokenBalance(context.Background(), "not-an-address")
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = h.UserTicketBalanceAt(context.Background(), "0x123", 1700000000)
	assert.ErrorIs(t, err, ErrInvalidAddress)

	assert.Equal(t, 0, caller.totalCalls(), "local validation failures must not issue reads")
}

func TestNetworkMismatchDetectedBeforeRead(t *testing.T) {
	// Caller bound to chain 137, handle declared on chain 1.
	caller := &fakeCaller{chainID: 137, onCall: respondByMethod(nil)}
	h := newTestHandle(t, caller)

	_, err := h.UserTokenBalance(context.Background(), userAddr)
	assert.ErrorIs(t, err, ErrNetworkMismatch)

	_, err = h.Token(context.Background())
	assert.ErrorIs(t, err, ErrNetworkMismatch)

	assert.Equal(t, 0, caller.totalCalls())
}

func TestFailedResolutionIsNotCached(t *testing.T) {
	attempts := 0
	caller := &fakeCaller{chainID: 1}
	caller.onCall = func(call chains.Call) ([]any, error) {
		if call.Method == "getToken" {
			attempts++
			if attempts == 1 {
				return nil, errors.New("connection reset")
			}
			return []any{tokenAddr}, nil
		}
		return []any{big.NewInt(7)}, nil
	}
	h := newTestHandle(t, caller)

	_, err := h.Token(context.Background())
	require.ErrorIs(t, err, ErrResolutionFailure)

	token, err := h.Token(context.Background())
	require.NoError(t, err, "a failed resolution must not poison the cache")
	assert.Equal(t, tokenAddr, token.Address)
	assert.Equal(t, 2, attempts)
}

func TestHistoricalReadFailureLeavesCachePopulated(t *testing.T) {
	caller := &fakeCaller{chainID: 1}
	caller.onCall = func(call chains.Call) ([]any, error) {
		switch call.Method {
		case "getTicket":
			return []any{ticketAddr}, nil
		case "getBalanceAt":
			return nil, errors.New("execution reverted")
		}
		return nil, errors.New("unexpected call")
	}
	h := newTestHandle(t, caller)

	_, err := h.UserTicketBalanceAt(context.Background(), userAddr, 1700000000)
	require.ErrorIs(t, err, ErrResolutionFailure)

	// The ticket handle itself resolved fine; only the balance read failed.
	require.NotNil(t, h.cachedChild(childTicket))

	_, err = h.UserTicketBalanceAt(context.Background(), userAddr, 1700000000)
	require.ErrorIs(t, err, ErrResolutionFailure)
	assert.Equal(t, 1, caller.methodCalls("getTicket"), "accessor failures must not trigger re-resolution")
	assert.Equal(t, 2, caller.methodCalls("getBalanceAt"))
}

func TestUserDepositAllowance(t *testing.T) {
	t.Run("Approved", func(t *testing.T) {
		var seenArgs []any
		caller := &fakeCaller{chainID: 1}
		caller.onCall = func(call chains.Call) ([]any, error) {
			switch call.Method {
			case "getToken":
				return []any{tokenAddr}, nil
			case "allowance":
				seenArgs = call.Args
				return []any{big.NewInt(5000)}, nil
			}
			return nil, errors.New("unexpected call")
		}
		h := newTestHandle(t, caller)

		allowance, err := h.UserDepositAllowance(context.Background(), userAddr)
		require.NoError(t, err)
		assert.True(t, allowance.IsApproved)
		assert.Equal(t, big.NewInt(5000), allowance.Allowance)

		require.Len(t, seenArgs, 2)
		assert.Equal(t, common.HexToAddress(userAddr), seenArgs[0])
		assert.Equal(t, poolAddr, seenArgs[1], "spender must be the prize pool itself")
	})

	t.Run("Not Approved", func(t *testing.T) {
		caller := &fakeCaller{
			chainID: 1,
			onCall: respondByMethod(map[string][]any{
				"getToken":  {tokenAddr},
				"allowance": {big.NewInt(0)},
			}),
		}
		h := newTestHandle(t, caller)

		allowance, err := h.UserDepositAllowance(context.Background(), userAddr)
		require.NoError(t, err)
		assert.False(t, allowance.IsApproved)
	})
}

func TestUserBalancesUsesOneBatch(t *testing.T) {
	caller := &fakeCaller{
		chainID: 1,
		onCall: respondByMethod(map[string][]any{
			"getToken":  {tokenAddr},
			"getTicket": {ticketAddr},
		}),
	}
	caller.onBatch = func(calls []chains.Call) ([][]any, error) {
		require.Len(t, calls, 2)
		assert.Equal(t, tokenAddr, calls[0].To)
		assert.Equal(t, ticketAddr, calls[1].To)
		return [][]any{{big.NewInt(10)}, {big.NewInt(20)}}, nil
	}
	h := newTestHandle(t, caller)

	balances, err := h.UserBalances(context.Background(), userAddr)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(10), balances.Token)
	assert.Equal(t, big.NewInt(20), balances.Ticket)
	assert.Equal(t, 1, caller.batches)
}

func TestMetadataBatch(t *testing.T) {
	caller := &fakeCaller{
		chainID: 1,
		onCall: respondByMethod(map[string][]any{
			"getToken": {tokenAddr},
			"name":     {"Dai Stablecoin"},
			"symbol":   {"DAI"},
			"decimals": {uint8(18)},
		}),
	}
	h := newTestHandle(t, caller)

	meta, err := h.TokenMetadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Dai Stablecoin", meta.Name)
	assert.Equal(t, "DAI", meta.Symbol)
	assert.Equal(t, uint8(18), meta.Decimals)
	assert.Equal(t, 1, caller.batches, "metadata must be fetched in one round trip")
}

func TestDelegateAndSupplies(t *testing.T) {
	delegate := common.HexToAddress("0xd00000000000000000000000000000000000000d")
	caller := &fakeCaller{
		chainID: 1,
		onCall: respondByMethod(map[string][]any{
			"getTicket":        {ticketAddr},
			"delegateOf":       {delegate},
			"totalSupply":      {big.NewInt(1_000_000)},
			"getTotalSupplyAt": {big.NewInt(900_000)},
		}),
	}
	h := newTestHandle(t, caller)
	ctx := context.Background()

	got, err := h.UserDelegate(ctx, userAddr)
	require.NoError(t, err)
	assert.Equal(t, delegate, got)

	supply, err := h.TicketTotalSupply(ctx)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1_000_000), supply)

	at, err := h.TotalSupplyAt(ctx, 1700000000)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(900_000), at)

	assert.Equal(t, 1, caller.methodCalls("getTicket"), "all ticket accessors share one resolution")
}

func TestDecodeErrorSurfacesAsResolutionFailure(t *testing.T) {
	caller := &fakeCaller{
		chainID: 1,
		onCall: respondByMethod(map[string][]any{
			"getToken": {"0xAAA"}, // wrong type: string instead of address
		}),
	}
	h := newTestHandle(t, caller)

	_, err := h.Token(context.Background())
	assert.ErrorIs(t, err, ErrResolutionFailure)
}
