// Copyright 2015 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// SubscriptionType selects the predicate kind of a Subscription.
type SubscriptionType uint8

const (
	SubscriptionNone SubscriptionType = iota
	SubscriptionAny
	SubscriptionAddresses
	SubscriptionMinFee
)

// MaxSubscriptionAddresses bounds the address list a peer may subscribe with.
const MaxSubscriptionAddresses = 256

// Subscription is a total, side-effect-free predicate over blocks and
// transactions, declaring which announcements a party wants to receive.
type Subscription struct {
	Type          SubscriptionType
	Addresses     []common.Address
	MinFeePerByte uint64
}

var (
	// SubscribeNone matches nothing.
	SubscribeNone = Subscription{Type: SubscriptionNone}
	// SubscribeAny matches every block and transaction.
	SubscribeAny = Subscription{Type: SubscriptionAny}
)

// SubscribeAddresses matches transactions touching any of the given addresses
// and all blocks.
func SubscribeAddresses(addresses []common.Address) Subscription {
	cpy := make([]common.Address, len(addresses))
	copy(cpy, addresses)
	return Subscription{Type: SubscriptionAddresses, Addresses: cpy}
}

// SubscribeMinFee matches transactions paying at least the given fee per byte
// and all blocks.
func SubscribeMinFee(feePerByte uint64) Subscription {
	return Subscription{Type: SubscriptionMinFee, MinFeePerByte: feePerByte}
}

// MatchesBlock reports whether a block announcement passes the predicate.
func (s Subscription) MatchesBlock(*Block) bool {
	switch s.Type {
	case SubscriptionNone:
		return false
	default:
		return true
	}
}

// MatchesTransaction reports whether a transaction passes the predicate.
func (s Subscription) MatchesTransaction(tx *Transaction) bool {
	switch s.Type {
	case SubscriptionAny:
		return true
	case SubscriptionAddresses:
		for _, addr := range s.Addresses {
			if tx.Touches(addr) {
				return true
			}
		}
		return false
	case SubscriptionMinFee:
		return tx.PaysFeePerByte(s.MinFeePerByte)
	default:
		return false
	}
}

func (s Subscription) String() string {
	switch s.Type {
	case SubscriptionNone:
		return "none"
	case SubscriptionAny:
		return "any"
	case SubscriptionAddresses:
		return fmt.Sprintf("addresses(%d)", len(s.Addresses))
	case SubscriptionMinFee:
		return fmt.Sprintf("minFee(%d)", s.MinFeePerByte)
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s.Type))
	}
}
