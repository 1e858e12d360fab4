// Copyright 2014 The go-ethereum Authors
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
	"io"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"
)

const (
	// AllowedFutureDrift is the maximum tolerated distance of a header
	// timestamp ahead of local wall-clock time.
	AllowedFutureDrift = 10 * time.Minute
)

var (
	errFutureBlock      = errors.New("block timestamp too far in the future")
	errInvalidPow       = errors.New("block hash does not satisfy its target")
	errZeroDifficulty   = errors.New("block difficulty is zero")
	maxProofOfWorkValue = new(big.Int).Exp(big.NewInt(2), big.NewInt(256), nil)
)

// Header represents a block header in the chain. Besides the usual parent
// linkage it carries an interlink, a list of hashes of strictly older
// superblocks that lets header chains be proven in logarithmic space.
type Header struct {
	ParentHash common.Hash
	Interlink  []common.Hash
	BodyRoot   common.Hash
	Number     uint64
	Difficulty *big.Int
	Time       uint64
	Nonce      uint64

	hash atomic.Value
}

// rlpHash encodes x with rlp and returns the keccak256 hash of the encoding.
func rlpHash(x interface{}) (h common.Hash) {
	hw := sha3.NewLegacyKeccak256()
	rlp.Encode(hw, x)
	hw.Sum(h[:0])
	return h
}

type headerData struct {
	ParentHash common.Hash
	Interlink  []common.Hash
	BodyRoot   common.Hash
	Number     uint64
	Difficulty *big.Int
	Time       uint64
	Nonce      uint64
}

// EncodeRLP implements rlp.Encoder.
func (h *Header) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, &headerData{h.ParentHash, h.Interlink, h.BodyRoot, h.Number, h.Difficulty, h.Time, h.Nonce})
}

// DecodeRLP implements rlp.Decoder.
func (h *Header) DecodeRLP(s *rlp.Stream) error {
	var dec headerData
	if err := s.Decode(&dec); err != nil {
		return err
	}
	h.ParentHash, h.Interlink, h.BodyRoot = dec.ParentHash, dec.Interlink, dec.BodyRoot
	h.Number, h.Difficulty, h.Time, h.Nonce = dec.Number, dec.Difficulty, dec.Time, dec.Nonce
	return nil
}

// Hash returns the keccak256 hash of the header's RLP encoding. The hash is
// computed on the first call and cached thereafter.
func (h *Header) Hash() common.Hash {
	if hash := h.hash.Load(); hash != nil {
		return hash.(common.Hash)
	}
	v := rlpHash(&headerData{h.ParentHash, h.Interlink, h.BodyRoot, h.Number, h.Difficulty, h.Time, h.Nonce})
	h.hash.Store(v)
	return v
}

// Verify checks the header's intrinsic validity: its proof of work must
// satisfy the declared difficulty and its timestamp may not lie further than
// AllowedFutureDrift ahead of now.
func (h *Header) Verify(now time.Time) error {
	if h.Time > uint64(now.Add(AllowedFutureDrift).Unix()) {
		return errFutureBlock
	}
	if h.Difficulty == nil || h.Difficulty.Sign() <= 0 {
		return errZeroDifficulty
	}
	target := new(big.Int).Div(maxProofOfWorkValue, h.Difficulty)
	if new(big.Int).SetBytes(h.Hash().Bytes()).Cmp(target) > 0 {
		return errInvalidPow
	}
	return nil
}

// IsInterlinkSuccessorOf reports whether pred is referenced by this header,
// either as its direct parent or through any of its interlink entries.
func (h *Header) IsInterlinkSuccessorOf(pred *Header) bool {
	hash := pred.Hash()
	if h.ParentHash == hash {
		return true
	}
	for _, link := range h.Interlink {
		if link == hash {
			return true
		}
	}
	return false
}

// CopyHeader creates a deep copy of a block header to prevent side effects
// from modifying a header variable.
func CopyHeader(h *Header) *Header {
	cpy := *h
	cpy.hash = atomic.Value{}
	if cpy.Difficulty = new(big.Int); h.Difficulty != nil {
		cpy.Difficulty.Set(h.Difficulty)
	}
	if len(h.Interlink) > 0 {
		cpy.Interlink = make([]common.Hash, len(h.Interlink))
		copy(cpy.Interlink, h.Interlink)
	}
	return &cpy
}

// Block represents an entire block in the chain: a header plus the list of
// transactions forming its body.
type Block struct {
	header       *Header
	transactions Transactions

	size atomic.Value

	// ReceivedAt is used by package pico to track block propagation time.
	ReceivedAt time.Time
}

// NewBlockWithHeader creates a block with the given header data. The header
// is copied, changes to the argument do not affect the block.
func NewBlockWithHeader(header *Header) *Block {
	return &Block{header: CopyHeader(header)}
}

// WithBody returns a copy of the block carrying the given transactions.
func (b *Block) WithBody(transactions []*Transaction) *Block {
	block := &Block{
		header:       b.header,
		transactions: make(Transactions, len(transactions)),
	}
	copy(block.transactions, transactions)
	return block
}

func (b *Block) Header() *Header            { return b.header }
func (b *Block) Transactions() Transactions { return b.transactions }
func (b *Block) Hash() common.Hash          { return b.header.Hash() }
func (b *Block) NumberU64() uint64          { return b.header.Number }
func (b *Block) ParentHash() common.Hash    { return b.header.ParentHash }
func (b *Block) BodyRoot() common.Hash      { return b.header.BodyRoot }
func (b *Block) Difficulty() *big.Int       { return new(big.Int).Set(b.header.Difficulty) }
func (b *Block) Time() uint64               { return b.header.Time }

// Vector returns the inventory vector identifying this block.
func (b *Block) Vector() InvVector {
	return NewBlockVector(b.Hash())
}

// Transaction returns the body transaction with the given hash, or nil.
func (b *Block) Transaction(hash common.Hash) *Transaction {
	for _, tx := range b.transactions {
		if tx.Hash() == hash {
			return tx
		}
	}
	return nil
}

type blockData struct {
	Header *Header
	Txs    []*Transaction
}

// EncodeRLP implements rlp.Encoder.
func (b *Block) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, &blockData{b.header, b.transactions})
}

// DecodeRLP implements rlp.Decoder.
func (b *Block) DecodeRLP(s *rlp.Stream) error {
	var dec blockData
	if err := s.Decode(&dec); err != nil {
		return err
	}
	b.header, b.transactions = dec.Header, dec.Txs
	return nil
}

// Size returns the approximate serialized size of the block, cached after the
// first call.
func (b *Block) Size() common.StorageSize {
	if size := b.size.Load(); size != nil {
		return size.(common.StorageSize)
	}
	c := writeCounter(0)
	rlp.Encode(&c, &blockData{b.header, b.transactions})
	b.size.Store(common.StorageSize(c))
	return common.StorageSize(c)
}

// Verify checks the block's header validity and that the body matches the
// header's body root. Blocks without a body pass on the header check alone.
func (b *Block) Verify(now time.Time) error {
	if err := b.header.Verify(now); err != nil {
		return err
	}
	if len(b.transactions) == 0 {
		return nil
	}
	hashes := make([]common.Hash, len(b.transactions))
	for i, tx := range b.transactions {
		hashes[i] = tx.Hash()
	}
	if root := MerkleRoot(hashes); root != b.header.BodyRoot {
		return errors.Errorf("body root mismatch: have %x, want %x", root, b.header.BodyRoot)
	}
	return nil
}
