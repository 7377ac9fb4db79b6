package pools

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poolstate/poolstate-client-go/chains"
	"github.com/poolstate/poolstate-client-go/contracts"
)

func TestBuildPoolsPreSeedsDeclaredChildren(t *testing.T) {
	caller := &fakeCaller{
		chainID: 1,
		onCall: respondByMethod(map[string][]any{
			"balanceOf": {big.NewInt(42)},
		}),
	}

	list := contracts.NewContractList([]contracts.Contract{
		contracts.NewPrizePoolContract(1, poolAddr,
			contracts.ChildRef{ChainID: 1, Address: tokenAddr},
			contracts.ChildRef{ChainID: 1, Address: ticketAddr},
		),
		contracts.NewTokenContract(1, tokenAddr),
		contracts.NewTicketContract(1, ticketAddr),
	})

	handles := BuildPools(map[uint64]chains.ContractCaller{1: caller}, list, testLogger(), nil)
	require.Len(t, handles, 1)

	// Both children are pre-seeded; accessors must not resolve over the wire.
	bal, err := handles[0].UserTicketBalance(context.Background(), userAddr)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(42), bal)

	assert.Equal(t, 0, caller.methodCalls("getToken"))
	assert.Equal(t, 0, caller.methodCalls("getTicket"))
}

func TestBuildPoolsSkipsDeploymentWithoutCaller(t *testing.T) {
	caller := &fakeCaller{chainID: 1, onCall: respondByMethod(nil)}
	otherPool := common.HexToAddress("0x2000000000000000000000000000000000000002")

	list := contracts.NewContractList([]contracts.Contract{
		contracts.NewPrizePoolContract(1, poolAddr),
		contracts.NewPrizePoolContract(137, otherPool), // no caller for 137
	})

	handles := BuildPools(map[uint64]chains.ContractCaller{1: caller}, list, testLogger(), nil)
	require.Len(t, handles, 1, "the deployment without a caller is skipped, not fatal")
	assert.Equal(t, poolAddr, handles[0].Address())
}

func TestBuildPoolsStableOrder(t *testing.T) {
	caller := &fakeCaller{chainID: 1, onCall: respondByMethod(nil)}
	addrs := []common.Address{
		common.HexToAddress("0x0000000000000000000000000000000000000C01"),
		common.HexToAddress("0x0000000000000000000000000000000000000a02"),
		common.HexToAddress("0x0000000000000000000000000000000000000B03"),
	}

	descriptors := []contracts.Contract{
		contracts.NewPrizePoolContract(1, addrs[0]),
		contracts.NewPrizePoolContract(1, addrs[1]),
		contracts.NewPrizePoolContract(1, addrs[0]), // duplicate primary
		contracts.NewPrizePoolContract(1, addrs[2]),
	}

	handles := BuildPools(map[uint64]chains.ContractCaller{1: caller}, contracts.NewContractList(descriptors), testLogger(), nil)
	require.Len(t, handles, 3, "duplicate primary descriptors collapse to one handle")
	for i, want := range addrs {
		assert.Equal(t, want, handles[i].Address(), "handle order must follow first-encountered input order")
	}
}

func TestBuildPoolsLeavesUnknownChildrenForLazyResolution(t *testing.T) {
	caller := &fakeCaller{
		chainID: 1,
		onCall: respondByMethod(map[string][]any{
			"getToken":  {tokenAddr},
			"balanceOf": {big.NewInt(1)},
		}),
	}

	// Declared child reference with no matching descriptor in the list.
	list := contracts.NewContractList([]contracts.Contract{
		contracts.NewPrizePoolContract(1, poolAddr,
			contracts.ChildRef{ChainID: 1, Address: tokenAddr},
		),
	})

	handles := BuildPools(map[uint64]chains.ContractCaller{1: caller}, list, testLogger(), nil)
	require.Len(t, handles, 1)

	_, err := handles[0].UserTokenBalance(context.Background(), userAddr)
	require.NoError(t, err)
	assert.Equal(t, 1, caller.methodCalls("getToken"), "unresolvable declared child falls back to lazy resolution")
}

func TestBuildPoolsSkipsCrossChainDeclaredChild(t *testing.T) {
	caller := &fakeCaller{chainID: 1, onCall: respondByMethod(nil)}

	list := contracts.NewContractList([]contracts.Contract{
		contracts.NewPrizePoolContract(1, poolAddr,
			contracts.ChildRef{ChainID: 137, Address: tokenAddr},
		),
		contracts.NewTokenContract(137, tokenAddr),
	})

	handles := BuildPools(map[uint64]chains.ContractCaller{1: caller}, list, testLogger(), nil)
	assert.Empty(t, handles, "a declared child on a foreign chain invalidates the deployment")
}
