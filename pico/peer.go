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
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/piconetwork/go-pico/core/types"
)

// PeerInfo represents a short summary of the pico sub-protocol metadata known
// about a connected peer.
type PeerInfo struct {
	Version    uint   `json:"version"` // pico protocol version negotiated
	HeadHash   string `json:"head"`    // Hash of the peer's best owned block
	HeadHeight uint64 `json:"height"`  // Height of the peer's best owned block
}

// Peer is the handle of a remote peer: its negotiated version, its channel
// and the head we last saw from it.
type Peer struct {
	id      string
	version uint
	channel Channel

	lock     sync.RWMutex
	headHash common.Hash // Advertised during handshaking, before any header arrives
	head     *types.Header

	logger log.Logger
}

// NewPeer wraps a freshly handshaked connection into a peer handle.
func NewPeer(id string, version uint, headHash common.Hash, channel Channel) *Peer {
	return &Peer{
		id:       id,
		version:  version,
		channel:  channel,
		headHash: headHash,
		logger:   log.New("peer", id),
	}
}

func (p *Peer) ID() string      { return p.id }
func (p *Peer) Version() uint   { return p.version }
func (p *Peer) Log() log.Logger { return p.logger }

// Head retrieves the last header the peer reported, or nil if none arrived
// yet.
func (p *Peer) Head() *types.Header {
	p.lock.RLock()
	defer p.lock.RUnlock()

	return p.head
}

// HeadHash retrieves the hash of the peer's best block: the last reported
// header's hash, or the handshake hash before any header arrived.
func (p *Peer) HeadHash() common.Hash {
	p.lock.RLock()
	defer p.lock.RUnlock()

	if p.head != nil {
		return p.head.Hash()
	}
	return p.headHash
}

// SetHead updates the head header of the peer.
func (p *Peer) SetHead(header *types.Header) {
	p.lock.Lock()
	defer p.lock.Unlock()

	p.head = header
}

// Info gathers and returns a collection of metadata known about the peer.
func (p *Peer) Info() *PeerInfo {
	info := &PeerInfo{
		Version:  p.version,
		HeadHash: p.HeadHash().Hex(),
	}
	if head := p.Head(); head != nil {
		info.HeadHeight = head.Number
	}
	return info
}

// SendInv announces the availability of the given objects.
func (p *Peer) SendInv(vectors []types.InvVector) error {
	propInvOutPacketsMeter.Mark(1)
	propInvOutVectorsMeter.Mark(int64(len(vectors)))
	return p.channel.Send(&InvPacket{Vectors: vectors})
}

// SendGetData requests the full objects behind the given vectors.
func (p *Peer) SendGetData(vectors []types.InvVector) error {
	reqDataOutMeter.Mark(int64(len(vectors)))
	return p.channel.Send(&GetDataPacket{Vectors: vectors})
}

// SendGetHeader requests the headers behind the given block vectors.
func (p *Peer) SendGetHeader(vectors []types.InvVector) error {
	reqHeaderOutMeter.Mark(int64(len(vectors)))
	return p.channel.Send(&GetHeaderPacket{Vectors: vectors})
}

// SendNotFound declares the listed objects unavailable.
func (p *Peer) SendNotFound(vectors []types.InvVector) error {
	return p.channel.Send(&NotFoundPacket{Vectors: vectors})
}

// SendRawBlock delivers a block in its stored encoding.
func (p *Peer) SendRawBlock(block rlp.RawValue) error {
	servedBlockMeter.Mark(1)
	return p.channel.Send(&RawBlockPacket{Block: block})
}

// SendHeader delivers a block header.
func (p *Peer) SendHeader(header *types.Header) error {
	servedHeaderMeter.Mark(1)
	return p.channel.Send(&HeaderPacket{Header: header})
}

// SendTransaction delivers a single transaction.
func (p *Peer) SendTransaction(tx *types.Transaction) error {
	servedTxMeter.Mark(1)
	return p.channel.Send(&TxPacket{Tx: tx})
}

// SendSubscribe declares our announcement subscription to the peer.
func (p *Peer) SendSubscribe(sub types.Subscription) error {
	return p.channel.Send(&SubscribePacket{Subscription: sub})
}

// SendGetHead asks the peer for its current head header.
func (p *Peer) SendGetHead() error {
	return p.channel.Send(&GetHeadPacket{})
}

// SendHead delivers our current head header.
func (p *Peer) SendHead(header *types.Header) error {
	return p.channel.Send(&HeadPacket{Header: header})
}

// SendGetBlockProof requests an interlink proof for the block with the given
// hash against one of our known blocks.
func (p *Peer) SendGetBlockProof(blockHashToProve, knownBlockHash common.Hash) error {
	proofRequestOutMeter.Mark(1)
	return p.channel.Send(&GetBlockProofPacket{
		BlockHashToProve: blockHashToProve,
		KnownBlockHash:   knownBlockHash,
	})
}

// SendGetBlockProofAt requests an interlink proof for the block at the given
// height against one of our known blocks.
func (p *Peer) SendGetBlockProofAt(blockHeightToProve uint64, knownBlockHash common.Hash) error {
	proofRequestOutMeter.Mark(1)
	return p.channel.Send(&GetBlockProofPacket{
		BlockHeightToProve: blockHeightToProve,
		ByHeight:           true,
		KnownBlockHash:     knownBlockHash,
	})
}

// SendGetTransactionsProof requests a body inclusion proof for transactions
// matched by address or hash.
func (p *Peer) SendGetTransactionsProof(blockHash common.Hash, addresses []common.Address, hashes []common.Hash) error {
	proofRequestOutMeter.Mark(1)
	return p.channel.Send(&GetTransactionsProofPacket{
		BlockHash: blockHash,
		Addresses: addresses,
		Hashes:    hashes,
	})
}

// SendGetTransactionReceipts requests inclusion receipts by address or by
// transaction hashes.
func (p *Peer) SendGetTransactionReceipts(address common.Address, hashes []common.Hash) error {
	proofRequestOutMeter.Mark(1)
	return p.channel.Send(&GetTransactionReceiptsPacket{
		Address: address,
		Hashes:  hashes,
	})
}

// Close tears down the peer channel with the given code and reason.
func (p *Peer) Close(code CloseCode, reason string) error {
	p.logger.Debug("Closing peer channel", "code", code, "reason", reason)
	return p.channel.Close(code, reason)
}
