package pools

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/poolstate/poolstate-client-go/abis"
	"github.com/poolstate/poolstate-client-go/chains"
	"github.com/poolstate/poolstate-client-go/contracts"
)

// LinkedPool is the cross-network view: the caller map, the augmented
// descriptor list and the constructed pool handles. Collection membership is
// fixed at construction; individual handles still lazily populate their own
// caches.
type LinkedPool struct {
	callers   map[uint64]chains.ContractCaller
	contracts *contracts.ContractList
	pools     []*PoolHandle
}

// Config holds the inputs for linked pool assembly.
type Config struct {
	// Callers maps chain id to the contract caller bound to that chain.
	Callers map[uint64]chains.ContractCaller

	// Contracts is the flat descriptor list. Never mutated; assembly derives
	// an augmented copy.
	Contracts *contracts.ContractList

	Logger chains.Logger

	// PrometheusReg receives the assembly and resolution metrics. Nil leaves
	// the collectors unregistered.
	PrometheusReg prometheus.Registerer
}

// validate checks if the configuration is valid.
func (c *Config) validate() error {
	if len(c.Callers) == 0 {
		return errors.New("config: Callers is required")
	}
	if c.Contracts == nil {
		return errors.New("config: Contracts is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	for chainID, caller := range c.Callers {
		if caller == nil {
			return fmt.Errorf("config: caller for chain %d is nil", chainID)
		}
		if caller.ChainID() != chainID {
			return fmt.Errorf("config: caller for chain %d reports chain id %d", chainID, caller.ChainID())
		}
	}
	return nil
}

// childPair is one discovered {token, ticket} pair for a primary pool.
type childPair struct {
	pool   contracts.Contract
	token  common.Address
	ticket common.Address
}

// discovery is the settled outcome of one per-network batch: either a pair
// per pool, or a failure that excludes the whole network.
type discovery struct {
	chainID uint64
	pairs   []childPair
	err     error
}

// AssembleLinkedPool discovers the child contracts of every prize pool
// descriptor and builds the cross-network pool set.
//
// For each network one batched read resolves all child addresses in a single
// round trip (two calls per pool). Batches run concurrently and are joined
// with all-settle semantics: a failed network is logged and its deployments
// excluded, never aborting or delaying the others. Discovered children are
// recorded as declared children on their primary descriptor; a descriptor is
// synthesized for any discovered child absent from the input list, deduped by
// (chainID, address).
func AssembleLinkedPool(ctx context.Context, cfg Config) (*LinkedPool, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	metrics := NewMetrics(cfg.PrometheusReg)

	primariesByChain := cfg.Contracts.PrimaryPoolsByChain()

	results := make([]discovery, 0, len(primariesByChain))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for chainID, primaries := range primariesByChain {
		caller, ok := cfg.Callers[chainID]
		if !ok {
			cfg.Logger.Warn("No caller for chain, excluding its deployments", "chain_id", chainID, "pools", len(primaries))
			mu.Lock()
			results = append(results, discovery{chainID: chainID, err: &ConstructionError{
				ChainID: chainID,
				Err:     errors.New("no caller for chain"),
			}})
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(chainID uint64, caller chains.ContractCaller, primaries []contracts.Contract) {
			defer wg.Done()
			res := discoverChildren(ctx, chainID, caller, primaries, cfg.Logger, metrics)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}(chainID, caller, primaries)
	}
	wg.Wait()

	augmented := augmentContracts(cfg.Contracts, results, cfg.Logger, metrics)
	pools := BuildPools(cfg.Callers, augmented, cfg.Logger, metrics)

	cfg.Logger.Info("Linked pool assembled",
		"networks", len(primariesByChain),
		"pools", len(pools),
		"contracts", augmented.Len(),
	)

	return &LinkedPool{
		callers:   cfg.Callers,
		contracts: augmented,
		pools:     pools,
	}, nil
}

// discoverChildren issues one batched read for every pool on a chain. The
// batch is all-or-nothing: any element failure settles the whole chain as
// failed.
func discoverChildren(
	ctx context.Context,
	chainID uint64,
	caller chains.ContractCaller,
	primaries []contracts.Contract,
	logger chains.Logger,
	metrics *Metrics,
) discovery {
	start := time.Now()

	calls := make([]chains.Call, 0, len(primaries)*2)
	for _, primary := range primaries {
		primaryABI, err := abis.ByShape(primary.Shape)
		if err != nil {
			return discovery{chainID: chainID, err: &ConstructionError{ChainID: chainID, Pool: primary.Address, Err: err}}
		}
		calls = append(calls,
			chains.Call{To: primary.Address, ABI: primaryABI, Method: "getToken"},
			chains.Call{To: primary.Address, ABI: primaryABI, Method: "getTicket"},
		)
	}

	out, err := caller.BatchCall(ctx, calls)
	if err != nil {
		return discovery{chainID: chainID, err: &ResolutionError{ChainID: chainID, Method: "batch discovery", Err: err}}
	}
	if len(out) != len(calls) {
		return discovery{chainID: chainID, err: &ResolutionError{
			ChainID: chainID,
			Method:  "batch discovery",
			Err:     fmt.Errorf("batch returned %d results for %d calls", len(out), len(calls)),
		}}
	}

	pairs := make([]childPair, 0, len(primaries))
	for i, primary := range primaries {
		token, err := decodeAddress(out[i*2])
		if err != nil {
			return discovery{chainID: chainID, err: &ResolutionError{ChainID: chainID, Contract: primary.Address, Method: "getToken", Err: err}}
		}
		ticket, err := decodeAddress(out[i*2+1])
		if err != nil {
			return discovery{chainID: chainID, err: &ResolutionError{ChainID: chainID, Contract: primary.Address, Method: "getTicket", Err: err}}
		}
		pairs = append(pairs, childPair{pool: primary, token: token, ticket: ticket})
	}

	metrics.BatchDiscoveryDur.WithLabelValues(strconv.FormatUint(chainID, 10)).Observe(time.Since(start).Seconds())
	logger.Debug("Discovered children", "chain_id", chainID, "pools", len(pairs), "duration_ms", time.Since(start).Milliseconds())
	return discovery{chainID: chainID, pairs: pairs}
}

// augmentContracts turns the settled discoveries into the augmented
// descriptor list: primaries of failed chains are excluded, primaries of
// successful chains carry their discovered children, and missing child
// descriptors are synthesized exactly once per (chainID, address).
func augmentContracts(
	list *contracts.ContractList,
	results []discovery,
	logger chains.Logger,
	metrics *Metrics,
) *contracts.ContractList {
	linked := make(map[contracts.Key]contracts.Contract)
	failed := make(map[uint64]struct{})
	known := mapset.NewSet[contracts.Key]()
	for _, c := range list.All() {
		known.Add(c.Key())
	}

	var synthesized []contracts.Contract
	for _, res := range results {
		if res.err != nil {
			logger.Warn("Network discovery failed, excluding its deployments", "chain_id", res.chainID, "error", res.err)
			metrics.NetworksFailed.WithLabelValues(strconv.FormatUint(res.chainID, 10)).Inc()
			failed[res.chainID] = struct{}{}
			continue
		}

		for _, pair := range res.pairs {
			linked[pair.pool.Key()] = pair.pool.WithChildren(
				contracts.ChildRef{ChainID: res.chainID, Address: pair.token},
				contracts.ChildRef{ChainID: res.chainID, Address: pair.ticket},
			)

			tokenKey := contracts.Key{ChainID: res.chainID, Address: pair.token}
			if known.Add(tokenKey) {
				synthesized = append(synthesized, contracts.NewTokenContract(res.chainID, pair.token))
			}
			ticketKey := contracts.Key{ChainID: res.chainID, Address: pair.ticket}
			if known.Add(ticketKey) {
				synthesized = append(synthesized, contracts.NewTicketContract(res.chainID, pair.ticket))
			}
		}
	}

	augmented := make([]contracts.Contract, 0, list.Len()+len(synthesized))
	for _, c := range list.All() {
		if c.Type == contracts.TypePrizePool {
			if _, excluded := failed[c.ChainID]; excluded {
				continue
			}
			if withChildren, ok := linked[c.Key()]; ok {
				augmented = append(augmented, withChildren)
				continue
			}
		}
		augmented = append(augmented, c)
	}
	augmented = append(augmented, synthesized...)

	return contracts.NewContractList(augmented)
}

// Pools returns the constructed handles, in assembly order.
func (lp *LinkedPool) Pools() []*PoolHandle {
	out := make([]*PoolHandle, len(lp.pools))
	copy(out, lp.pools)
	return out
}

// PoolsByChain returns the handles for one chain, in assembly order.
func (lp *LinkedPool) PoolsByChain(chainID uint64) []*PoolHandle {
	var out []*PoolHandle
	for _, h := range lp.pools {
		if h.ChainID() == chainID {
			out = append(out, h)
		}
	}
	return out
}

// Contracts returns the augmented descriptor list.
func (lp *LinkedPool) Contracts() *contracts.ContractList {
	return lp.contracts
}

// Caller returns the contract caller bound to the given chain.
func (lp *LinkedPool) Caller(chainID uint64) (chains.ContractCaller, bool) {
	caller, ok := lp.callers[chainID]
	return caller, ok
}
