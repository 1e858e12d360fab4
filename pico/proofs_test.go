// Copyright 2016 The go-ethereum Authors
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

package pico

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piconetwork/go-pico/core/types"
)

// proofChain builds an interlink-connected header chain plus a known block
// referencing its head.
func proofChain(length int) ([]*types.Header, *types.Header) {
	headers := make([]*types.Header, length)
	parent := common.Hash{}
	for i := 0; i < length; i++ {
		headers[i] = &types.Header{
			ParentHash: parent,
			Number:     uint64(i + 1),
			Difficulty: big.NewInt(1),
			Time:       uint64(1600000000 + i),
		}
		parent = headers[i].Hash()
	}
	known := &types.Header{
		ParentHash: parent,
		Number:     uint64(length + 1),
		Difficulty: big.NewInt(1),
	}
	return headers, known
}

type blockProofReply struct {
	header *types.Header
	err    error
}

func startBlockProofRequest(t *testing.T, a *testAgent, hash common.Hash, known *types.Header) chan blockProofReply {
	t.Helper()

	replies := make(chan blockProofReply, 1)
	go func() {
		header, err := a.RequestBlockProof(context.Background(), hash, known)
		replies <- blockProofReply{header, err}
	}()
	waitFor(t, func() bool { return len(a.channel.sentOfCode(GetBlockProofMsg)) > 0 }, "no proof request sent")
	return replies
}

func TestBlockProofAccepted(t *testing.T) {
	a := newTestAgent(t, pico2, Hooks{})
	headers, known := proofChain(3)

	replies := startBlockProofRequest(t, a, headers[0].Hash(), known)
	require.NoError(t, a.HandleMsg(&BlockProofPacket{Proof: &types.BlockProof{Headers: headers}}))

	reply := <-replies
	require.NoError(t, reply.err)
	assert.Equal(t, headers[0].Hash(), reply.header.Hash())
}

// A proof whose tail is not the requested block is rejected locally without
// closing the channel.
func TestBlockProofWrongTail(t *testing.T) {
	a := newTestAgent(t, pico2, Hooks{})
	headers, known := proofChain(3)

	replies := startBlockProofRequest(t, a, common.Hash{0xde, 0xad}, known)
	require.NoError(t, a.HandleMsg(&BlockProofPacket{Proof: &types.BlockProof{Headers: headers}}))

	reply := <-replies
	require.True(t, errors.Is(reply.err, ErrInvalidProof))
	assert.Contains(t, reply.err.Error(), "invalid tail block")
	closed, _ := a.channel.isClosed()
	assert.False(t, closed, "tail mismatch must not close the channel")
}

// A structurally broken proof chain is a protocol violation.
func TestBlockProofDisconnected(t *testing.T) {
	a := newTestAgent(t, pico2, Hooks{})
	headers, known := proofChain(4)

	replies := startBlockProofRequest(t, a, headers[0].Hash(), known)
	broken := []*types.Header{headers[0], headers[2], headers[3]}
	require.NoError(t, a.HandleMsg(&BlockProofPacket{Proof: &types.BlockProof{Headers: broken}}))

	reply := <-replies
	require.True(t, errors.Is(reply.err, ErrInvalidProof))
	closed, code := a.channel.isClosed()
	require.True(t, closed)
	assert.Equal(t, CloseInvalidBlockProof, code)
}

// A proof head our known block does not connect to is rejected locally.
func TestBlockProofUnconnectedHead(t *testing.T) {
	a := newTestAgent(t, pico2, Hooks{})
	headers, _ := proofChain(3)
	stranger := &types.Header{ParentHash: common.Hash{0x77}, Number: 99, Difficulty: big.NewInt(1)}

	replies := startBlockProofRequest(t, a, headers[0].Hash(), stranger)
	require.NoError(t, a.HandleMsg(&BlockProofPacket{Proof: &types.BlockProof{Headers: headers}}))

	reply := <-replies
	require.True(t, errors.Is(reply.err, ErrInvalidProof))
	closed, _ := a.channel.isClosed()
	assert.False(t, closed)
}

func TestBlockProofRejected(t *testing.T) {
	a := newTestAgent(t, pico2, Hooks{})
	headers, known := proofChain(2)

	replies := startBlockProofRequest(t, a, headers[0].Hash(), known)
	require.NoError(t, a.HandleMsg(&BlockProofPacket{}))

	assert.Equal(t, ErrRejected, (<-replies).err)
}

// Block proof timeouts only reject locally, the channel stays up.
func TestBlockProofTimeout(t *testing.T) {
	a := newTestAgent(t, pico2, Hooks{})
	headers, known := proofChain(2)

	replies := startBlockProofRequest(t, a, headers[0].Hash(), known)
	assert.Equal(t, ErrTimeout, (<-replies).err)
	closed, _ := a.channel.isClosed()
	assert.False(t, closed)
}

func TestBlockProofAtVersionGate(t *testing.T) {
	a := newTestAgent(t, pico1, Hooks{})
	_, known := proofChain(1)

	_, err := a.RequestBlockProofAt(context.Background(), 5, known)
	assert.Equal(t, ErrUnsupported, err)
	assert.Empty(t, a.channel.sentOfCode(GetBlockProofMsg))
}

// Requests of the same family queue behind each other, one outstanding at a
// time.
func TestBlockProofSerialized(t *testing.T) {
	a := newTestAgent(t, pico2, Hooks{})
	headers, known := proofChain(2)

	first := startBlockProofRequest(t, a, headers[0].Hash(), known)

	second := make(chan blockProofReply, 1)
	go func() {
		header, err := a.RequestBlockProof(context.Background(), headers[0].Hash(), known)
		second <- blockProofReply{header, err}
	}()
	time.Sleep(30 * time.Millisecond)
	require.Len(t, a.channel.sentOfCode(GetBlockProofMsg), 1, "second request sent while first pending")

	require.NoError(t, a.HandleMsg(&BlockProofPacket{Proof: &types.BlockProof{Headers: headers}}))
	require.NoError(t, (<-first).err)

	waitFor(t, func() bool { return len(a.channel.sentOfCode(GetBlockProofMsg)) == 2 }, "second request never sent")
	require.NoError(t, a.HandleMsg(&BlockProofPacket{Proof: &types.BlockProof{Headers: headers}}))
	require.NoError(t, (<-second).err)
}

func TestUnsolicitedBlockProof(t *testing.T) {
	a := newTestAgent(t, pico2, Hooks{})
	headers, _ := proofChain(2)

	require.NoError(t, a.HandleMsg(&BlockProofPacket{Proof: &types.BlockProof{Headers: headers}}))
	closed, _ := a.channel.isClosed()
	assert.False(t, closed)
}

type txsProofReply struct {
	txs types.Transactions
	err error
}

func startTransactionsProofRequest(t *testing.T, a *testAgent, addresses []common.Address, block *types.Block) chan txsProofReply {
	t.Helper()

	replies := make(chan txsProofReply, 1)
	go func() {
		txs, err := a.RequestTransactionsProof(context.Background(), addresses, block)
		replies <- txsProofReply{txs, err}
	}()
	waitFor(t, func() bool { return len(a.channel.sentOfCode(GetTransactionsProofMsg)) > 0 }, "no proof request sent")
	return replies
}

func TestTransactionsProofAccepted(t *testing.T) {
	a := newTestAgent(t, pico2, Hooks{})

	body := types.Transactions{makeTx(1, 10), makeTx(2, 10), makeTx(3, 10)}
	block := makeBlockWithBody(5, body)
	proof := types.NewTransactionsProof(body, []uint32{1})

	replies := startTransactionsProofRequest(t, a, []common.Address{body[1].Sender()}, block)
	require.NoError(t, a.HandleMsg(&TransactionsProofPacket{BlockHash: block.Hash(), Proof: proof}))

	reply := <-replies
	require.NoError(t, reply.err)
	require.Len(t, reply.txs, 1)
	assert.Equal(t, body[1].Hash(), reply.txs[0].Hash())
}

// A valid proof carrying a transaction the request never asked about is a
// protocol violation.
func TestTransactionsProofUnrelatedTx(t *testing.T) {
	a := newTestAgent(t, pico2, Hooks{})

	body := types.Transactions{makeTx(1, 10), makeTx(2, 10)}
	block := makeBlockWithBody(5, body)
	proof := types.NewTransactionsProof(body, []uint32{0})

	// Ask about an address neither transaction touches.
	replies := startTransactionsProofRequest(t, a, []common.Address{common.HexToAddress("0xcafe")}, block)
	require.NoError(t, a.HandleMsg(&TransactionsProofPacket{BlockHash: block.Hash(), Proof: proof}))

	reply := <-replies
	require.True(t, errors.Is(reply.err, ErrInvalidProof))
	closed, code := a.channel.isClosed()
	require.True(t, closed)
	assert.Equal(t, CloseInvalidTransactionProof, code)
}

func TestTransactionsProofWrongRoot(t *testing.T) {
	a := newTestAgent(t, pico2, Hooks{})

	body := types.Transactions{makeTx(1, 10), makeTx(2, 10)}
	block := makeBlockWithBody(5, body)

	foreign := types.Transactions{makeTx(9, 10), makeTx(8, 10)}
	proof := types.NewTransactionsProof(foreign, []uint32{0})

	replies := startTransactionsProofRequest(t, a, []common.Address{foreign[0].Sender()}, block)
	require.NoError(t, a.HandleMsg(&TransactionsProofPacket{BlockHash: block.Hash(), Proof: proof}))

	reply := <-replies
	require.True(t, errors.Is(reply.err, ErrInvalidProof))
	closed, code := a.channel.isClosed()
	require.True(t, closed)
	assert.Equal(t, CloseInvalidTransactionProof, code)
}

func TestTransactionsProofWrongBlock(t *testing.T) {
	a := newTestAgent(t, pico2, Hooks{})

	body := types.Transactions{makeTx(1, 10)}
	block := makeBlockWithBody(5, body)
	proof := types.NewTransactionsProof(body, []uint32{0})

	replies := startTransactionsProofRequest(t, a, []common.Address{body[0].Sender()}, block)
	require.NoError(t, a.HandleMsg(&TransactionsProofPacket{BlockHash: common.Hash{0x01}, Proof: proof}))

	reply := <-replies
	require.True(t, errors.Is(reply.err, ErrRejected))
	closed, _ := a.channel.isClosed()
	assert.False(t, closed)
}

// Transactions proof timeouts are punished with a channel close.
func TestTransactionsProofTimeout(t *testing.T) {
	a := newTestAgent(t, pico2, Hooks{})

	body := types.Transactions{makeTx(1, 10)}
	block := makeBlockWithBody(5, body)

	replies := startTransactionsProofRequest(t, a, []common.Address{body[0].Sender()}, block)
	assert.Equal(t, ErrTimeout, (<-replies).err)

	closed, code := a.channel.isClosed()
	require.True(t, closed)
	assert.Equal(t, CloseGetTransactionsProofTimeout, code)
}

func TestTransactionsProofByHashesVersionGate(t *testing.T) {
	a := newTestAgent(t, pico1, Hooks{})
	block := makeBlockWithBody(5, types.Transactions{makeTx(1, 10)})

	_, err := a.RequestTransactionsProofByHashes(context.Background(), []common.Hash{{0x01}}, block)
	assert.Equal(t, ErrUnsupported, err)
}

func TestTransactionReceiptsByAddress(t *testing.T) {
	a := newTestAgent(t, pico2, Hooks{})
	addr := common.HexToAddress("0xaa")

	replies := make(chan error, 1)
	var got types.TransactionReceipts
	go func() {
		receipts, err := a.RequestTransactionReceipts(context.Background(), addr)
		got = receipts
		replies <- err
	}()
	waitFor(t, func() bool { return len(a.channel.sentOfCode(GetTransactionReceiptsMsg)) > 0 }, "no receipts request sent")

	receipts := types.TransactionReceipts{
		{TransactionHash: common.Hash{0x01}, Sender: addr, BlockHash: common.Hash{0x02}, BlockHeight: 7},
	}
	require.NoError(t, a.HandleMsg(&TransactionReceiptsPacket{Receipts: receipts}))
	require.NoError(t, <-replies)
	assert.Len(t, got, 1)
}

// Receipts unrelated to the requested address are a protocol violation.
func TestTransactionReceiptsUnrelated(t *testing.T) {
	a := newTestAgent(t, pico2, Hooks{})
	addr := common.HexToAddress("0xaa")

	replies := make(chan error, 1)
	go func() {
		_, err := a.RequestTransactionReceipts(context.Background(), addr)
		replies <- err
	}()
	waitFor(t, func() bool { return len(a.channel.sentOfCode(GetTransactionReceiptsMsg)) > 0 }, "no receipts request sent")

	receipts := types.TransactionReceipts{
		{TransactionHash: common.Hash{0x01}, Sender: common.HexToAddress("0xbb"), BlockHeight: 7},
	}
	require.NoError(t, a.HandleMsg(&TransactionReceiptsPacket{Receipts: receipts}))

	err := <-replies
	require.True(t, errors.Is(err, ErrInvalidProof))
	closed, code := a.channel.isClosed()
	require.True(t, closed)
	assert.Equal(t, CloseInvalidTransactionProof, code)
}

func TestTransactionReceiptsByHashes(t *testing.T) {
	a := newTestAgent(t, pico2, Hooks{})
	wanted := common.Hash{0x42}

	replies := make(chan error, 1)
	go func() {
		_, err := a.RequestTransactionReceiptsByHashes(context.Background(), []common.Hash{wanted})
		replies <- err
	}()
	waitFor(t, func() bool { return len(a.channel.sentOfCode(GetTransactionReceiptsMsg)) > 0 }, "no receipts request sent")

	require.NoError(t, a.HandleMsg(&TransactionReceiptsPacket{Receipts: types.TransactionReceipts{
		{TransactionHash: wanted, BlockHeight: 3},
	}}))
	require.NoError(t, <-replies)
}

// Receipt timeouts are punished with a channel close.
func TestTransactionReceiptsTimeout(t *testing.T) {
	a := newTestAgent(t, pico2, Hooks{})

	_, err := a.RequestTransactionReceipts(context.Background(), common.HexToAddress("0xaa"))
	assert.Equal(t, ErrTimeout, err)

	closed, code := a.channel.isClosed()
	require.True(t, closed)
	assert.Equal(t, CloseGetTransactionReceiptsTimeout, code)
}

func TestTransactionReceiptsVersionGate(t *testing.T) {
	a := newTestAgent(t, pico1, Hooks{})

	_, err := a.RequestTransactionReceiptsByHashes(context.Background(), []common.Hash{{0x01}})
	assert.Equal(t, ErrUnsupported, err)
}

func TestTransactionReceiptsRejected(t *testing.T) {
	a := newTestAgent(t, pico2, Hooks{})

	replies := make(chan error, 1)
	go func() {
		_, err := a.RequestTransactionReceipts(context.Background(), common.HexToAddress("0xaa"))
		replies <- err
	}()
	waitFor(t, func() bool { return len(a.channel.sentOfCode(GetTransactionReceiptsMsg)) > 0 }, "no receipts request sent")

	require.NoError(t, a.HandleMsg(&TransactionReceiptsPacket{}))
	assert.Equal(t, ErrRejected, <-replies)
}
