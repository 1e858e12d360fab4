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

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
)

// Transaction is a value transfer between two accounts, paying a flat fee to
// the block producer that includes it.
type Transaction struct {
	data txdata

	hash atomic.Value
	size atomic.Value
}

type txdata struct {
	Sender    common.Address
	Recipient common.Address
	Value     *big.Int
	Fee       *big.Int
	Nonce     uint64
	Payload   []byte
}

// NewTransaction creates a transaction with the given parameters.
func NewTransaction(sender, recipient common.Address, value, fee *big.Int, nonce uint64, payload []byte) *Transaction {
	d := txdata{
		Sender:    sender,
		Recipient: recipient,
		Value:     new(big.Int),
		Fee:       new(big.Int),
		Nonce:     nonce,
		Payload:   payload,
	}
	if value != nil {
		d.Value.Set(value)
	}
	if fee != nil {
		d.Fee.Set(fee)
	}
	return &Transaction{data: d}
}

func (tx *Transaction) Sender() common.Address    { return tx.data.Sender }
func (tx *Transaction) Recipient() common.Address { return tx.data.Recipient }
func (tx *Transaction) Value() *big.Int           { return new(big.Int).Set(tx.data.Value) }
func (tx *Transaction) Fee() *big.Int             { return new(big.Int).Set(tx.data.Fee) }
func (tx *Transaction) Nonce() uint64             { return tx.data.Nonce }
func (tx *Transaction) Payload() []byte           { return common.CopyBytes(tx.data.Payload) }

// EncodeRLP implements rlp.Encoder.
func (tx *Transaction) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, &tx.data)
}

// DecodeRLP implements rlp.Decoder.
func (tx *Transaction) DecodeRLP(s *rlp.Stream) error {
	_, size, _ := s.Kind()
	err := s.Decode(&tx.data)
	if err == nil {
		tx.size.Store(common.StorageSize(rlp.ListSize(size)))
	}
	return err
}

// Hash hashes the RLP encoding of the transaction, cached after the first
// call.
func (tx *Transaction) Hash() common.Hash {
	if hash := tx.hash.Load(); hash != nil {
		return hash.(common.Hash)
	}
	v := rlpHash(&tx.data)
	tx.hash.Store(v)
	return v
}

// Vector returns the inventory vector identifying this transaction.
func (tx *Transaction) Vector() InvVector {
	return NewTransactionVector(tx.Hash())
}

// Size returns the true RLP encoded storage size of the transaction, either
// by encoding and returning it, or returning a previously cached value.
func (tx *Transaction) Size() common.StorageSize {
	if size := tx.size.Load(); size != nil {
		return size.(common.StorageSize)
	}
	c := writeCounter(0)
	rlp.Encode(&c, &tx.data)
	tx.size.Store(common.StorageSize(c))
	return common.StorageSize(c)
}

// FeePerByte returns the fee paid per serialized byte, rounded down.
func (tx *Transaction) FeePerByte() uint64 {
	size := uint64(tx.Size())
	if size == 0 {
		return 0
	}
	return new(big.Int).Div(tx.data.Fee, new(big.Int).SetUint64(size)).Uint64()
}

// PaysFeePerByte reports whether the transaction pays at least min fee units
// per serialized byte. The comparison is exact, no integer truncation.
func (tx *Transaction) PaysFeePerByte(min uint64) bool {
	need := new(big.Int).Mul(new(big.Int).SetUint64(min), new(big.Int).SetUint64(uint64(tx.Size())))
	return tx.data.Fee.Cmp(need) >= 0
}

// Touches reports whether the address is the sender or recipient of the
// transaction.
func (tx *Transaction) Touches(addr common.Address) bool {
	return tx.data.Sender == addr || tx.data.Recipient == addr
}

type writeCounter common.StorageSize

func (c *writeCounter) Write(b []byte) (int, error) {
	*c += writeCounter(len(b))
	return len(b), nil
}

// Transactions is a Transaction slice type for basic sorting and hashing.
type Transactions []*Transaction

// Hashes returns the hashes of every transaction in the slice.
func (txs Transactions) Hashes() []common.Hash {
	hashes := make([]common.Hash, len(txs))
	for i, tx := range txs {
		hashes[i] = tx.Hash()
	}
	return hashes
}
