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

// InvType designates the kind of object an inventory vector refers to.
type InvType uint32

const (
	InvBlock InvType = iota + 1
	InvTransaction
)

func (t InvType) String() string {
	switch t {
	case InvBlock:
		return "block"
	case InvTransaction:
		return "tx"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(t))
	}
}

// InvVector is the typed object identifier exchanged in inv, get-data and
// not-found messages. It is a plain comparable value and is used directly as
// the key of every set, queue and map tracking per-peer object state.
type InvVector struct {
	Type InvType
	Hash common.Hash
}

// NewBlockVector returns the inventory vector identifying a block.
func NewBlockVector(hash common.Hash) InvVector {
	return InvVector{Type: InvBlock, Hash: hash}
}

// NewTransactionVector returns the inventory vector identifying a transaction.
func NewTransactionVector(hash common.Hash) InvVector {
	return InvVector{Type: InvTransaction, Hash: hash}
}

func (v InvVector) String() string {
	return fmt.Sprintf("%s:%x", v.Type, v.Hash[:8])
}

// FreeTransactionVector pairs a transaction vector with the serialized size of
// its transaction. Queues holding free transactions key their entries by the
// embedded vector, so removals by plain InvVector reach these entries too.
type FreeTransactionVector struct {
	Vector InvVector
	Size   common.StorageSize
}

func (v FreeTransactionVector) String() string {
	return fmt.Sprintf("%v (%v)", v.Vector, v.Size)
}
