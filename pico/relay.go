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
	"github.com/ethereum/go-ethereum/common"

	"github.com/piconetwork/go-pico/core/types"
)

// RelayBlock announces a freshly adopted block to the peer. The announcement
// is suppressed before the initial sync is done, when the peer's
// subscription does not match or when the peer already knows the block.
// Returns whether an announcement went out.
func (a *Agent) RelayBlock(block *types.Block) bool {
	if !a.Synced() {
		return false
	}
	a.lock.Lock()
	matches := a.remoteSubscription.MatchesBlock(block)
	a.lock.Unlock()
	if !matches {
		return false
	}
	vector := block.Vector()
	if a.knownObjects.Contains(vector) {
		return false
	}
	// Piggyback waiting transaction announcements onto the block's inv.
	vectors := []types.InvVector{vector}
	for _, v := range a.waitingInvVectors.DequeueMulti(RequestVectorsMax - 1) {
		vectors = append(vectors, v.(types.InvVector))
	}
	a.peer.SendInv(vectors)
	blockRelayMeter.Mark(1)

	a.markKnownAfterDelay(vector)
	return true
}

// RelayTransaction announces a transaction to the peer through the paid or
// free relay queue, picked by the transaction's fee per byte. Returns whether
// the announcement was queued.
func (a *Agent) RelayTransaction(tx *types.Transaction) bool {
	a.lock.Lock()
	matches := a.remoteSubscription.MatchesTransaction(tx)
	a.lock.Unlock()
	if !matches {
		return false
	}
	vector := tx.Vector()
	if a.knownObjects.Contains(vector) {
		return false
	}
	if a.waitingInvVectors.Contains(vector) || a.waitingFreeInvVectors.Contains(vector) {
		return false
	}
	if tx.PaysFeePerByte(TransactionRelayFeeMin) {
		if !a.waitingInvVectors.Enqueue(vector) {
			txRelayDropMeter.Mark(1)
			return false
		}
		txRelayPaidMeter.Mark(1)
	} else {
		if !a.waitingFreeInvVectors.Enqueue(types.FreeTransactionVector{Vector: vector, Size: tx.Size()}) {
			txRelayDropMeter.Mark(1)
			return false
		}
		txRelayFreeMeter.Mark(1)
	}
	a.markKnownAfterDelay(vector)
	return true
}

// RemoveTransaction withdraws a queued transaction announcement, typically
// because the transaction got mined or evicted.
func (a *Agent) RemoveTransaction(tx *types.Transaction) {
	vector := tx.Vector()
	a.waitingInvVectors.Remove(vector)
	a.waitingFreeInvVectors.Remove(vector)
}

// markKnownAfterDelay assumes the peer knows an announced object a little
// after the inv went out, suppressing duplicate announcements from then on.
func (a *Agent) markKnownAfterDelay(vector types.InvVector) {
	a.timers.Set("knows:"+vector.String(), a.knowsObjectDelay, func() {
		a.knownObjects.Add(vector)
	})
}

// relayWaitingVectors flushes the paid relay queue into a single inv.
func (a *Agent) relayWaitingVectors() {
	queued := a.waitingInvVectors.DequeueMulti(RequestVectorsMax)
	if len(queued) == 0 {
		return
	}
	vectors := make([]types.InvVector, 0, len(queued))
	for _, v := range queued {
		vectors = append(vectors, v.(types.InvVector))
	}
	a.peer.SendInv(vectors)
}

// relayFreeVectors flushes the free relay queue into a single inv, bounded
// by count, token budget and cumulative transaction size.
func (a *Agent) relayFreeVectors() {
	vectors := make([]types.InvVector, 0)
	size := common.StorageSize(0)
	for len(vectors) < RequestVectorsMax && a.waitingFreeInvVectors.IsAvailable() && size < FreeTransactionSizePerInterval {
		v := a.waitingFreeInvVectors.Dequeue()
		if v == nil {
			break
		}
		free := v.(types.FreeTransactionVector)
		vectors = append(vectors, free.Vector)
		size += free.Size
	}
	if len(vectors) > 0 {
		a.peer.SendInv(vectors)
	}
}
