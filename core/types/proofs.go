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
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"
)

var (
	errEmptyProof       = errors.New("proof contains no blocks")
	errProofDisconnect  = errors.New("proof blocks are not interlink connected")
	errProofNodeCount   = errors.New("wrong number of proof nodes")
	errProofIndexRange  = errors.New("proof index out of range")
	errProofNoLeaves    = errors.New("proof contains no leaves")
)

// hashPair hashes the concatenation of two node hashes into their parent.
func hashPair(left, right common.Hash) (h common.Hash) {
	hw := sha3.NewLegacyKeccak256()
	hw.Write(left[:])
	hw.Write(right[:])
	hw.Sum(h[:0])
	return h
}

// MerkleRoot computes the root over the given leaf hashes. Levels with an odd
// node count promote their last node unchanged.
func MerkleRoot(leaves []common.Hash) common.Hash {
	if len(leaves) == 0 {
		return common.Hash{}
	}
	level := make([]common.Hash, len(leaves))
	copy(level, leaves)
	for len(level) > 1 {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i+1 < len(level); i += 2 {
			next = append(next, hashPair(level[i], level[i+1]))
		}
		if len(level)%2 == 1 {
			next = append(next, level[len(level)-1])
		}
		level = next
	}
	return level[0]
}

// BlockProof is an interlink-based chain of headers demonstrating that its
// tail block is an ancestor of its head block. Headers are ordered from the
// proven (oldest) block at index zero up to the head.
type BlockProof struct {
	Headers []*Header
}

// Len returns the number of headers in the proof.
func (p *BlockProof) Len() int { return len(p.Headers) }

// Tail returns the proven block's header, the oldest in the proof.
func (p *BlockProof) Tail() *Header {
	if len(p.Headers) == 0 {
		return nil
	}
	return p.Headers[0]
}

// Head returns the newest header in the proof.
func (p *BlockProof) Head() *Header {
	if len(p.Headers) == 0 {
		return nil
	}
	return p.Headers[len(p.Headers)-1]
}

// Verify checks the structural integrity of the proof: every header must be
// an interlink successor of its predecessor. It does not validate the
// individual headers, callers do that with Header.Verify.
func (p *BlockProof) Verify() error {
	if len(p.Headers) == 0 {
		return errEmptyProof
	}
	for i := 1; i < len(p.Headers); i++ {
		if !p.Headers[i].IsInterlinkSuccessorOf(p.Headers[i-1]) {
			return errors.Wrapf(errProofDisconnect, "at height %d", p.Headers[i].Number)
		}
	}
	return nil
}

// VerifyBlocks runs the intrinsic header checks over every block in the
// proof.
func (p *BlockProof) VerifyBlocks(now time.Time) error {
	for _, header := range p.Headers {
		if err := header.Verify(now); err != nil {
			return errors.Wrapf(err, "block %x", header.Hash().Bytes()[:8])
		}
	}
	return nil
}

// TransactionsProof is a compact Merkle multi-proof that the carried
// transactions are part of a block body. Indices give the leaf position of
// each transaction, Nodes supply the sibling subtree hashes needed to rebuild
// the body root, in bottom-up, left-to-right consumption order.
type TransactionsProof struct {
	Transactions Transactions
	Indices      []uint32
	LeafCount    uint32
	Nodes        []common.Hash
}

// Root rebuilds the body root committed to by the proof. It fails if the
// proof shape is inconsistent with the declared leaf count.
func (p *TransactionsProof) Root() (common.Hash, error) {
	if len(p.Transactions) == 0 || len(p.Transactions) != len(p.Indices) {
		return common.Hash{}, errProofNoLeaves
	}
	level := make(map[uint32]common.Hash, len(p.Transactions))
	for i, tx := range p.Transactions {
		idx := p.Indices[i]
		if idx >= p.LeafCount {
			return common.Hash{}, errProofIndexRange
		}
		level[idx] = tx.Hash()
	}
	count := p.LeafCount
	nodes := p.Nodes
	for count > 1 {
		positions := make([]uint32, 0, len(level))
		for pos := range level {
			positions = append(positions, pos)
		}
		sort.Slice(positions, func(i, j int) bool { return positions[i] < positions[j] })

		next := make(map[uint32]common.Hash, (len(level)+1)/2)
		for i := 0; i < len(positions); i++ {
			pos := positions[i]
			if _, done := next[pos/2]; done {
				continue
			}
			sibling := pos ^ 1
			if sibling >= count {
				// Odd node at the level's edge, promoted unchanged.
				next[pos/2] = level[pos]
				continue
			}
			var left, right common.Hash
			own, other := level[pos], common.Hash{}
			if sib, ok := level[sibling]; ok {
				other = sib
			} else {
				if len(nodes) == 0 {
					return common.Hash{}, errProofNodeCount
				}
				other, nodes = nodes[0], nodes[1:]
			}
			if pos < sibling {
				left, right = own, other
			} else {
				left, right = other, own
			}
			next[pos/2] = hashPair(left, right)
		}
		level = next
		count = (count + 1) / 2
	}
	if len(nodes) != 0 {
		return common.Hash{}, errProofNodeCount
	}
	return level[0], nil
}

// NewTransactionsProof builds a multi-proof for the transactions at the given
// positions of the full body. Exported for block servers and tests; light
// clients only ever verify.
func NewTransactionsProof(body Transactions, indices []uint32) *TransactionsProof {
	proof := &TransactionsProof{
		Indices:   append([]uint32(nil), indices...),
		LeafCount: uint32(len(body)),
	}
	included := make(map[uint32]bool, len(indices))
	for _, idx := range indices {
		included[idx] = true
		proof.Transactions = append(proof.Transactions, body[idx])
	}
	level := make([]common.Hash, len(body))
	known := make([]bool, len(body))
	for i, tx := range body {
		level[i] = tx.Hash()
		known[i] = included[uint32(i)]
	}
	for len(level) > 1 {
		nextLen := (len(level) + 1) / 2
		next := make([]common.Hash, 0, nextLen)
		nextKnown := make([]bool, 0, nextLen)
		for i := 0; i+1 < len(level); i += 2 {
			if known[i] && !known[i+1] {
				proof.Nodes = append(proof.Nodes, level[i+1])
			} else if !known[i] && known[i+1] {
				proof.Nodes = append(proof.Nodes, level[i])
			}
			next = append(next, hashPair(level[i], level[i+1]))
			nextKnown = append(nextKnown, known[i] || known[i+1])
		}
		if len(level)%2 == 1 {
			next = append(next, level[len(level)-1])
			nextKnown = append(nextKnown, known[len(level)-1])
		}
		level, known = next, nextKnown
	}
	return proof
}

// TransactionReceipt is a compact attestation of a transaction's inclusion,
// small enough for nano clients to fetch in bulk.
type TransactionReceipt struct {
	TransactionHash common.Hash
	Sender          common.Address
	Recipient       common.Address
	BlockHash       common.Hash
	BlockHeight     uint64
}

// Touches reports whether the address took part in the receipt's transaction.
func (r *TransactionReceipt) Touches(addr common.Address) bool {
	return r.Sender == addr || r.Recipient == addr
}

// TransactionReceipts is a TransactionReceipt slice type.
type TransactionReceipts []*TransactionReceipt
