package contracts

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// ContractList provides indexed, read-only access to a set of descriptors.
// Duplicate (chainID, address) entries in the input are dropped, keeping the
// first occurrence; original input order is preserved otherwise.
type ContractList struct {
	all   []Contract
	byKey map[Key]Contract
}

// NewContractList indexes a flat slice of descriptors.
func NewContractList(contracts []Contract) *ContractList {
	byKey := make(map[Key]Contract, len(contracts))
	all := make([]Contract, 0, len(contracts))

	for _, c := range contracts {
		if _, exists := byKey[c.Key()]; exists {
			continue
		}
		byKey[c.Key()] = c
		all = append(all, c)
	}

	return &ContractList{all: all, byKey: byKey}
}

// All returns a defensive copy of every descriptor, in input order.
func (l *ContractList) All() []Contract {
	out := make([]Contract, len(l.all))
	copy(out, l.all)
	return out
}

// Len returns the number of distinct descriptors.
func (l *ContractList) Len() int {
	return len(l.all)
}

// Get retrieves a descriptor by its (chainID, address) identity.
func (l *ContractList) Get(chainID uint64, address common.Address) (Contract, bool) {
	c, ok := l.byKey[Key{ChainID: chainID, Address: address}]
	return c, ok
}

// Contains reports whether a descriptor with the given identity exists.
func (l *ContractList) Contains(chainID uint64, address common.Address) bool {
	_, ok := l.byKey[Key{ChainID: chainID, Address: address}]
	return ok
}

// ByType returns every descriptor with the given type tag, in input order.
func (l *ContractList) ByType(t Type) []Contract {
	var out []Contract
	for _, c := range l.all {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}

// ByChain returns every descriptor on the given chain, in input order.
func (l *ContractList) ByChain(chainID uint64) []Contract {
	var out []Contract
	for _, c := range l.all {
		if c.ChainID == chainID {
			out = append(out, c)
		}
	}
	return out
}

// PrimaryPoolsByChain partitions the prize pool descriptors by chain id,
// preserving input order within each chain.
func (l *ContractList) PrimaryPoolsByChain() map[uint64][]Contract {
	out := make(map[uint64][]Contract)
	for _, c := range l.all {
		if c.Type == TypePrizePool {
			out[c.ChainID] = append(out[c.ChainID], c)
		}
	}
	return out
}

// ChainIDs returns the sorted set of chain ids referenced by any descriptor.
func (l *ContractList) ChainIDs() []uint64 {
	seen := make(map[uint64]struct{})
	var out []uint64
	for _, c := range l.all {
		if _, ok := seen[c.ChainID]; ok {
			continue
		}
		seen[c.ChainID] = struct{}{}
		out = append(out, c.ChainID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
