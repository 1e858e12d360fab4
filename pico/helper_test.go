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

package pico

import (
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/stretchr/testify/require"

	"github.com/piconetwork/go-pico/core/types"
)

// testChannel records every outbound packet and close request.
type testChannel struct {
	mu        sync.Mutex
	sent      []Message
	closed    bool
	closeCode CloseCode
}

func (c *testChannel) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sent = append(c.sent, msg)
	return nil
}

func (c *testChannel) Close(code CloseCode, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		c.closeCode = code
	}
	return nil
}

func (c *testChannel) isClosed() (bool, CloseCode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed, c.closeCode
}

// sentOfCode returns all recorded packets with the given message code.
func (c *testChannel) sentOfCode(code uint64) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	var match []Message
	for _, msg := range c.sent {
		if msg.Code() == code {
			match = append(match, msg)
		}
	}
	return match
}

// testBackend is a scripted chain store and mempool.
type testBackend struct {
	mu     sync.Mutex
	blocks map[common.Hash]*types.Block
	txs    map[common.Hash]*types.Transaction
	head   *types.Header
}

func newTestBackend() *testBackend {
	return &testBackend{
		blocks: make(map[common.Hash]*types.Block),
		txs:    make(map[common.Hash]*types.Transaction),
	}
}

func (b *testBackend) addBlock(block *types.Block) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.blocks[block.Hash()] = block
}

func (b *testBackend) addTx(tx *types.Transaction) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.txs[tx.Hash()] = tx
}

func (b *testBackend) GetBlock(hash common.Hash, includeForks, includeBody bool) *types.Block {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.blocks[hash]
}

func (b *testBackend) GetRawBlock(hash common.Hash, includeForks bool) rlp.RawValue {
	b.mu.Lock()
	block := b.blocks[hash]
	b.mu.Unlock()

	if block == nil {
		return nil
	}
	raw, _ := rlp.EncodeToBytes(block)
	return raw
}

func (b *testBackend) GetTransaction(hash common.Hash) *types.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.txs[hash]
}

func (b *testBackend) GetHead() *types.Header {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.head
}

// testInvManager records coordinator traffic, optionally forwarding every
// offer straight back to the asking agent like a single-peer coordinator.
type testInvManager struct {
	mu          sync.Mutex
	forward     bool
	asked       []types.InvVector
	received    []types.InvVector
	notReceived []types.InvVector
}

func (m *testInvManager) AskToRequestVector(agent *Agent, vector types.InvVector) {
	m.mu.Lock()
	m.asked = append(m.asked, vector)
	forward := m.forward
	m.mu.Unlock()

	if forward {
		agent.RequestVector(vector)
	}
}

func (m *testInvManager) NoteVectorReceived(vector types.InvVector) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.received = append(m.received, vector)
}

func (m *testInvManager) NoteVectorNotReceived(agent *Agent, vector types.InvVector) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.notReceived = append(m.notReceived, vector)
}

func (m *testInvManager) askedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.asked)
}

func (m *testInvManager) notReceivedVectors() []types.InvVector {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]types.InvVector(nil), m.notReceived...)
}

// testAgent bundles an agent with its scripted collaborators.
type testAgent struct {
	*Agent
	channel *testChannel
	backend *testBackend
	inv     *testInvManager
}

func newTestAgent(t *testing.T, version uint, hooks Hooks) *testAgent {
	t.Helper()

	channel := new(testChannel)
	backend := newTestBackend()
	inv := &testInvManager{forward: true}
	peer := NewPeer("peer1", version, common.Hash{}, channel)

	agent := New(peer, backend, inv, hooks)
	// Spec timings are multi-second, keep the tests snappy.
	agent.requestThrottle = 100 * time.Millisecond
	agent.requestTimeout = 150 * time.Millisecond
	agent.knowsObjectDelay = 50 * time.Millisecond
	agent.gracePeriod = 100 * time.Millisecond
	agent.blockProofTimeout = 150 * time.Millisecond
	agent.transactionsProofTimeout = 150 * time.Millisecond
	agent.receiptsTimeout = 150 * time.Millisecond

	t.Cleanup(agent.Shutdown)
	return &testAgent{Agent: agent, channel: channel, backend: backend, inv: inv}
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond, msg)
}

func makeHeader(number uint64, parent common.Hash) *types.Header {
	return &types.Header{
		ParentHash: parent,
		Number:     number,
		Difficulty: big.NewInt(1),
		Time:       uint64(1600000000 + number),
	}
}

func makeBlock(number uint64) *types.Block {
	return types.NewBlockWithHeader(makeHeader(number, common.Hash{}))
}

func makeBlockWithBody(number uint64, txs types.Transactions) *types.Block {
	header := makeHeader(number, common.Hash{})
	header.BodyRoot = types.MerkleRoot(txs.Hashes())
	return types.NewBlockWithHeader(header).WithBody(txs)
}

func makeTx(seed byte, fee int64) *types.Transaction {
	return types.NewTransaction(
		common.BytesToAddress([]byte{seed}),
		common.BytesToAddress([]byte{seed + 100}),
		big.NewInt(42), big.NewInt(fee), uint64(seed), nil)
}

// makeVectors fabricates n distinct block vectors.
func makeVectors(n int) []types.InvVector {
	vectors := make([]types.InvVector, n)
	for i := 0; i < n; i++ {
		vectors[i] = types.NewBlockVector(common.BytesToHash([]byte{byte(i + 1), byte(i >> 8), 0x7f}))
	}
	return vectors
}
