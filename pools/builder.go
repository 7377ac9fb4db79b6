package pools

import (
	"errors"
	"fmt"

	"github.com/poolstate/poolstate-client-go/chains"
	"github.com/poolstate/poolstate-client-go/contracts"
)

// BuildPools constructs one PoolHandle per prize pool descriptor in the list.
//
// Declared children of type Token/Ticket that are present in the list pre-seed
// the handle's cache, so no network read is needed to resolve them later.
// A deployment whose chain has no caller is logged and skipped; sibling
// deployments are unaffected. Handle order follows the input order of the
// first-encountered primary descriptor.
func BuildPools(
	callers map[uint64]chains.ContractCaller,
	list *contracts.ContractList,
	logger chains.Logger,
	metrics *Metrics,
) []*PoolHandle {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	var handles []*PoolHandle
	seen := make(map[contracts.Key]struct{})

	for _, primary := range list.ByType(contracts.TypePrizePool) {
		if _, dup := seen[primary.Key()]; dup {
			continue
		}
		seen[primary.Key()] = struct{}{}

		caller, ok := callers[primary.ChainID]
		if !ok {
			cerr := &ConstructionError{
				ChainID: primary.ChainID,
				Pool:    primary.Address,
				Err:     errors.New("no caller for chain"),
			}
			logger.Warn("Skipping deployment", "chain_id", primary.ChainID, "pool", primary.Address.Hex(), "error", cerr)
			metrics.PoolsSkipped.Inc()
			continue
		}

		handle, err := NewPoolHandle(primary, caller, logger, metrics)
		if err != nil {
			logger.Warn("Skipping deployment", "chain_id", primary.ChainID, "pool", primary.Address.Hex(), "error", err)
			metrics.PoolsSkipped.Inc()
			continue
		}

		if err := seedDeclaredChildren(handle, primary, list); err != nil {
			logger.Warn("Skipping deployment", "chain_id", primary.ChainID, "pool", primary.Address.Hex(), "error", err)
			metrics.PoolsSkipped.Inc()
			continue
		}

		handles = append(handles, handle)
		metrics.PoolsBuilt.Inc()
	}

	return handles
}

// seedDeclaredChildren pre-populates a handle's caches from declared child
// references whose descriptors exist in the list. Unknown references are left
// for lazy resolution; a declared child on a foreign chain is a construction
// error for this deployment.
func seedDeclaredChildren(handle *PoolHandle, primary contracts.Contract, list *contracts.ContractList) error {
	for _, ref := range primary.Children {
		child, ok := list.Get(ref.ChainID, ref.Address)
		if !ok {
			continue
		}
		if child.ChainID != primary.ChainID {
			return &ConstructionError{
				ChainID: primary.ChainID,
				Pool:    primary.Address,
				Err:     fmt.Errorf("declared child %s is on chain %d", child.Address.Hex(), child.ChainID),
			}
		}

		var err error
		switch child.Type {
		case contracts.TypeToken:
			err = handle.seedChild(childToken, child.Address, child.Shape)
		case contracts.TypeTicket:
			err = handle.seedChild(childTicket, child.Address, child.Shape)
		}
		if err != nil {
			return &ConstructionError{ChainID: primary.ChainID, Pool: primary.Address, Err: err}
		}
	}
	return nil
}
