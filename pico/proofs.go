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
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/piconetwork/go-pico/core/types"
)

const (
	// BlockProofRequestTimeout bounds how long a block proof request may
	// stay unanswered.
	BlockProofRequestTimeout = 10 * time.Second

	// TransactionsProofRequestTimeout bounds transactions proof requests.
	TransactionsProofRequestTimeout = 10 * time.Second

	// TransactionReceiptsRequestTimeout bounds receipt requests.
	TransactionReceiptsRequestTimeout = 15 * time.Second
)

// Synchronizer and timer keys of the proof request families.
const (
	syncKeyBlockProof          = "getBlockProof"
	syncKeyTransactionsProof   = "getTransactionsProof"
	syncKeyTransactionReceipts = "getTransactionReceipts"

	timerBlockProof          = "expect:blockProof"
	timerTransactionsProof   = "expect:transactionsProof"
	timerTransactionReceipts = "expect:transactionReceipts"
)

type blockProofResult struct {
	header *types.Header
	err    error
}

// blockProofRequest is the single-slot pending state of a block proof
// request.
type blockProofRequest struct {
	hash       common.Hash
	height     uint64
	byHeight   bool
	knownBlock *types.Header
	resp       chan blockProofResult
}

type transactionsProofResult struct {
	txs types.Transactions
	err error
}

// transactionsProofRequest is the single-slot pending state of a
// transactions proof request.
type transactionsProofRequest struct {
	block     *types.Block
	addresses []common.Address
	hashes    map[common.Hash]struct{}
	resp      chan transactionsProofResult
}

type transactionReceiptsResult struct {
	receipts types.TransactionReceipts
	err      error
}

// transactionReceiptsRequest is the single-slot pending state of a receipts
// request.
type transactionReceiptsRequest struct {
	address  common.Address
	byHashes bool
	hashes   map[common.Hash]struct{}
	resp     chan transactionReceiptsResult
}

// RequestBlockProof asks the peer to prove that the block with the given
// hash is an ancestor of one of our known blocks, returning the proven
// block's header.
func (a *Agent) RequestBlockProof(ctx context.Context, blockHashToProve common.Hash, knownBlock *types.Header) (*types.Header, error) {
	return a.requestBlockProof(ctx, &blockProofRequest{
		hash:       blockHashToProve,
		knownBlock: knownBlock,
		resp:       make(chan blockProofResult, 1),
	})
}

// RequestBlockProofAt asks the peer to prove its chain block at the given
// height against one of our known blocks. Requires a version 2 peer.
func (a *Agent) RequestBlockProofAt(ctx context.Context, blockHeightToProve uint64, knownBlock *types.Header) (*types.Header, error) {
	if a.peer.Version() < pico2 {
		return nil, ErrUnsupported
	}
	return a.requestBlockProof(ctx, &blockProofRequest{
		height:     blockHeightToProve,
		byHeight:   true,
		knownBlock: knownBlock,
		resp:       make(chan blockProofResult, 1),
	})
}

func (a *Agent) requestBlockProof(ctx context.Context, req *blockProofRequest) (*types.Header, error) {
	var res blockProofResult
	// The synchronizer serializes the request bodies per family, so the
	// single pending slot is free on entry without further locking.
	err := a.syncer.PushWait(syncKeyBlockProof, func() {
		a.lock.Lock()
		if a.blockProofRequest != nil {
			a.lock.Unlock()
			res.err = errors.New("block proof slot still occupied")
			return
		}
		a.blockProofRequest = req
		a.lock.Unlock()

		if req.byHeight {
			a.peer.SendGetBlockProofAt(req.height, req.knownBlock.Hash())
		} else {
			a.peer.SendGetBlockProof(req.hash, req.knownBlock.Hash())
		}
		a.timers.Set(timerBlockProof, a.blockProofTimeout, func() {
			if pending := a.takeBlockProofRequest(); pending != nil {
				proofTimeoutMeter.Mark(1)
				pending.resp <- blockProofResult{err: ErrTimeout}
			}
		})
		select {
		case res = <-req.resp:
		case <-ctx.Done():
			a.timers.Clear(timerBlockProof)
			a.takeBlockProofRequest()
			res.err = ctx.Err()
		}
	})
	if err != nil {
		return nil, ErrClosed
	}
	return res.header, res.err
}

func (a *Agent) takeBlockProofRequest() *blockProofRequest {
	a.lock.Lock()
	defer a.lock.Unlock()

	req := a.blockProofRequest
	a.blockProofRequest = nil
	return req
}

// handleBlockProof validates a block proof response: the tail must be the
// requested block, our known block must connect to the proof head and the
// chain itself must be sound. Structural failures close the channel.
func (a *Agent) handleBlockProof(msg *BlockProofPacket) {
	req := a.takeBlockProofRequest()
	if req == nil {
		proofStrayMeter.Mark(1)
		a.logger.Debug("Discarded unsolicited block proof")
		return
	}
	a.timers.Clear(timerBlockProof)

	proof := msg.Proof
	if proof == nil || proof.Len() == 0 {
		req.resp <- blockProofResult{err: ErrRejected}
		return
	}
	tail, head := proof.Tail(), proof.Head()
	if req.byHeight {
		if tail.Number != req.height {
			req.resp <- blockProofResult{err: errors.Wrap(ErrInvalidProof, "invalid tail block")}
			return
		}
	} else if tail.Hash() != req.hash {
		req.resp <- blockProofResult{err: errors.Wrap(ErrInvalidProof, "invalid tail block")}
		return
	}
	if !req.knownBlock.IsInterlinkSuccessorOf(head) {
		req.resp <- blockProofResult{err: errors.Wrap(ErrInvalidProof, "proof head does not connect to known block")}
		return
	}
	if err := proof.Verify(); err != nil {
		proofInvalidMeter.Mark(1)
		a.peer.Close(CloseInvalidBlockProof, err.Error())
		req.resp <- blockProofResult{err: errors.Wrap(ErrInvalidProof, err.Error())}
		return
	}
	if err := proof.VerifyBlocks(time.Now()); err != nil {
		proofInvalidMeter.Mark(1)
		a.peer.Close(CloseInvalidBlockProof, err.Error())
		req.resp <- blockProofResult{err: errors.Wrap(ErrInvalidProof, err.Error())}
		return
	}
	req.resp <- blockProofResult{header: tail}
}

// RequestTransactionsProof asks the peer for a body inclusion proof of the
// block's transactions touching any of the given addresses.
func (a *Agent) RequestTransactionsProof(ctx context.Context, addresses []common.Address, block *types.Block) (types.Transactions, error) {
	return a.requestTransactionsProof(ctx, &transactionsProofRequest{
		block:     block,
		addresses: addresses,
		resp:      make(chan transactionsProofResult, 1),
	}, addresses, nil)
}

// RequestTransactionsProofByHashes asks the peer for a body inclusion proof
// of the block's transactions with the given hashes. Requires a version 2
// peer.
func (a *Agent) RequestTransactionsProofByHashes(ctx context.Context, hashes []common.Hash, block *types.Block) (types.Transactions, error) {
	if a.peer.Version() < pico2 {
		return nil, ErrUnsupported
	}
	hashSet := make(map[common.Hash]struct{}, len(hashes))
	for _, hash := range hashes {
		hashSet[hash] = struct{}{}
	}
	return a.requestTransactionsProof(ctx, &transactionsProofRequest{
		block:  block,
		hashes: hashSet,
		resp:   make(chan transactionsProofResult, 1),
	}, nil, hashes)
}

func (a *Agent) requestTransactionsProof(ctx context.Context, req *transactionsProofRequest, addresses []common.Address, hashes []common.Hash) (types.Transactions, error) {
	var res transactionsProofResult
	err := a.syncer.PushWait(syncKeyTransactionsProof, func() {
		a.lock.Lock()
		if a.transactionsProofRequest != nil {
			a.lock.Unlock()
			res.err = errors.New("transactions proof slot still occupied")
			return
		}
		a.transactionsProofRequest = req
		a.lock.Unlock()

		a.peer.SendGetTransactionsProof(req.block.Hash(), addresses, hashes)
		a.timers.Set(timerTransactionsProof, a.transactionsProofTimeout, func() {
			if pending := a.takeTransactionsProofRequest(); pending != nil {
				proofTimeoutMeter.Mark(1)
				a.peer.Close(CloseGetTransactionsProofTimeout, "transactions proof timeout")
				pending.resp <- transactionsProofResult{err: ErrTimeout}
			}
		})
		select {
		case res = <-req.resp:
		case <-ctx.Done():
			a.timers.Clear(timerTransactionsProof)
			a.takeTransactionsProofRequest()
			res.err = ctx.Err()
		}
	})
	if err != nil {
		return nil, ErrClosed
	}
	return res.txs, res.err
}

func (a *Agent) takeTransactionsProofRequest() *transactionsProofRequest {
	a.lock.Lock()
	defer a.lock.Unlock()

	req := a.transactionsProofRequest
	a.transactionsProofRequest = nil
	return req
}

// handleTransactionsProof validates a transactions proof response: it must
// reference the requested block, commit to the block's body root and carry
// only transactions the request asked about.
func (a *Agent) handleTransactionsProof(msg *TransactionsProofPacket) {
	req := a.takeTransactionsProofRequest()
	if req == nil {
		proofStrayMeter.Mark(1)
		a.logger.Debug("Discarded unsolicited transactions proof")
		return
	}
	a.timers.Clear(timerTransactionsProof)

	proof := msg.Proof
	if proof == nil || len(proof.Transactions) == 0 {
		req.resp <- transactionsProofResult{err: ErrRejected}
		return
	}
	if msg.BlockHash != req.block.Hash() {
		req.resp <- transactionsProofResult{err: errors.Wrap(ErrRejected, "proof for wrong block")}
		return
	}
	root, err := proof.Root()
	if err != nil || root != req.block.BodyRoot() {
		proofInvalidMeter.Mark(1)
		a.peer.Close(CloseInvalidTransactionProof, "body root mismatch")
		req.resp <- transactionsProofResult{err: errors.Wrap(ErrInvalidProof, "body root mismatch")}
		return
	}
	for _, tx := range proof.Transactions {
		if !req.wants(tx) {
			proofInvalidMeter.Mark(1)
			a.peer.Close(CloseInvalidTransactionProof, "proof contains unrelated transaction")
			req.resp <- transactionsProofResult{err: errors.Wrap(ErrInvalidProof, "unrelated transaction")}
			return
		}
	}
	req.resp <- transactionsProofResult{txs: proof.Transactions}
}

// wants reports whether the request asked about the given transaction.
func (req *transactionsProofRequest) wants(tx *types.Transaction) bool {
	if req.hashes != nil {
		_, ok := req.hashes[tx.Hash()]
		return ok
	}
	for _, addr := range req.addresses {
		if tx.Touches(addr) {
			return true
		}
	}
	return false
}

// RequestTransactionReceipts asks the peer for the inclusion receipts of all
// transactions touching the given address.
func (a *Agent) RequestTransactionReceipts(ctx context.Context, address common.Address) (types.TransactionReceipts, error) {
	return a.requestTransactionReceipts(ctx, &transactionReceiptsRequest{
		address: address,
		resp:    make(chan transactionReceiptsResult, 1),
	}, address, nil)
}

// RequestTransactionReceiptsByHashes asks the peer for the inclusion
// receipts of the transactions with the given hashes. Requires a version 2
// peer.
func (a *Agent) RequestTransactionReceiptsByHashes(ctx context.Context, hashes []common.Hash) (types.TransactionReceipts, error) {
	if a.peer.Version() < pico2 {
		return nil, ErrUnsupported
	}
	hashSet := make(map[common.Hash]struct{}, len(hashes))
	for _, hash := range hashes {
		hashSet[hash] = struct{}{}
	}
	return a.requestTransactionReceipts(ctx, &transactionReceiptsRequest{
		byHashes: true,
		hashes:   hashSet,
		resp:     make(chan transactionReceiptsResult, 1),
	}, common.Address{}, hashes)
}

func (a *Agent) requestTransactionReceipts(ctx context.Context, req *transactionReceiptsRequest, address common.Address, hashes []common.Hash) (types.TransactionReceipts, error) {
	var res transactionReceiptsResult
	err := a.syncer.PushWait(syncKeyTransactionReceipts, func() {
		a.lock.Lock()
		if a.transactionReceiptsRequest != nil {
			a.lock.Unlock()
			res.err = errors.New("transaction receipts slot still occupied")
			return
		}
		a.transactionReceiptsRequest = req
		a.lock.Unlock()

		a.peer.SendGetTransactionReceipts(address, hashes)
		a.timers.Set(timerTransactionReceipts, a.receiptsTimeout, func() {
			if pending := a.takeTransactionReceiptsRequest(); pending != nil {
				proofTimeoutMeter.Mark(1)
				a.peer.Close(CloseGetTransactionReceiptsTimeout, "transaction receipts timeout")
				pending.resp <- transactionReceiptsResult{err: ErrTimeout}
			}
		})
		select {
		case res = <-req.resp:
		case <-ctx.Done():
			a.timers.Clear(timerTransactionReceipts)
			a.takeTransactionReceiptsRequest()
			res.err = ctx.Err()
		}
	})
	if err != nil {
		return nil, ErrClosed
	}
	return res.receipts, res.err
}

func (a *Agent) takeTransactionReceiptsRequest() *transactionReceiptsRequest {
	a.lock.Lock()
	defer a.lock.Unlock()

	req := a.transactionReceiptsRequest
	a.transactionReceiptsRequest = nil
	return req
}

// handleTransactionReceipts validates a receipts response: every receipt
// must belong to the requested address or hash set.
func (a *Agent) handleTransactionReceipts(msg *TransactionReceiptsPacket) {
	req := a.takeTransactionReceiptsRequest()
	if req == nil {
		proofStrayMeter.Mark(1)
		a.logger.Debug("Discarded unsolicited transaction receipts")
		return
	}
	a.timers.Clear(timerTransactionReceipts)

	if len(msg.Receipts) == 0 {
		req.resp <- transactionReceiptsResult{err: ErrRejected}
		return
	}
	for _, receipt := range msg.Receipts {
		valid := false
		if req.byHashes {
			_, valid = req.hashes[receipt.TransactionHash]
		} else {
			valid = receipt.Touches(req.address)
		}
		if !valid {
			proofInvalidMeter.Mark(1)
			a.peer.Close(CloseInvalidTransactionProof, "receipt does not match request")
			req.resp <- transactionReceiptsResult{err: errors.Wrap(ErrInvalidProof, "unrelated receipt")}
			return
		}
	}
	req.resp <- transactionReceiptsResult{receipts: msg.Receipts}
}

// rejectProofRequests settles every outstanding proof request with err, used
// during shutdown.
func (a *Agent) rejectProofRequests(err error) {
	if req := a.takeBlockProofRequest(); req != nil {
		req.resp <- blockProofResult{err: err}
	}
	if req := a.takeTransactionsProofRequest(); req != nil {
		req.resp <- transactionsProofResult{err: err}
	}
	if req := a.takeTransactionReceiptsRequest(); req != nil {
		req.resp <- transactionReceiptsResult{err: err}
	}
}
