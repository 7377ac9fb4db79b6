// Package contracts defines the descriptor records the client consumes: which
// contracts exist, on which chain, with which interface shape. A descriptor
// list is immutable input; the assembly step derives augmented lists rather
// than mutating descriptors in place.
package contracts

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/poolstate/poolstate-client-go/abis"
)

// Type tags a descriptor's role in a deployment. The enumeration is closed.
type Type string

const (
	TypePrizePool Type = "PrizePool"
	TypeToken     Type = "Token"
	TypeTicket    Type = "Ticket"
)

// Key uniquely identifies a contract: an address is unique within a chain.
type Key struct {
	ChainID uint64
	Address common.Address
}

// ChildRef is a back-reference from a parent descriptor to a child contract.
type ChildRef struct {
	ChainID uint64         `json:"chainId"`
	Address common.Address `json:"address"`
}

// Contract is a descriptor for a single deployed contract. It is a plain
// value and is never mutated after construction; derive updated copies with
// WithChildren.
type Contract struct {
	ChainID  uint64         `json:"chainId"`
	Address  common.Address `json:"address"`
	Shape    abis.Shape     `json:"shape"`
	Type     Type           `json:"type"`
	Children []ChildRef     `json:"children,omitempty"`
}

// NewPrizePoolContract builds a primary prize pool descriptor.
func NewPrizePoolContract(chainID uint64, address common.Address, children ...ChildRef) Contract {
	return Contract{
		ChainID:  chainID,
		Address:  address,
		Shape:    abis.PrizePool,
		Type:     TypePrizePool,
		Children: copyChildren(children),
	}
}

// NewTokenContract builds a descriptor for an underlying deposit token.
func NewTokenContract(chainID uint64, address common.Address) Contract {
	return Contract{
		ChainID: chainID,
		Address: address,
		Shape:   abis.ERC20,
		Type:    TypeToken,
	}
}

// NewTicketContract builds a descriptor for a share/ticket token.
func NewTicketContract(chainID uint64, address common.Address) Contract {
	return Contract{
		ChainID: chainID,
		Address: address,
		Shape:   abis.Ticket,
		Type:    TypeTicket,
	}
}

// Key returns the descriptor's (chainID, address) identity.
func (c Contract) Key() Key {
	return Key{ChainID: c.ChainID, Address: c.Address}
}

// WithChildren returns a copy of the descriptor with the given child
// references recorded. The receiver is left untouched.
func (c Contract) WithChildren(children ...ChildRef) Contract {
	out := c
	out.Children = copyChildren(children)
	return out
}

func copyChildren(children []ChildRef) []ChildRef {
	if len(children) == 0 {
		return nil
	}
	out := make([]ChildRef, len(children))
	copy(out, children)
	return out
}
