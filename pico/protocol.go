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

// Package pico implements the per-peer consensus agent of the pico protocol:
// inventory exchange, object retrieval, relaying and verified proof requests
// over a single peer channel.
package pico

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/piconetwork/go-pico/core/types"
)

// Constants to match up protocol versions and messages
const (
	pico1 = 1
	pico2 = 2
)

// ProtocolName is the official short name of the protocol used during capability negotiation.
var ProtocolName = "pico"

// ProtocolVersions are the supported versions of the pico protocol (first is primary).
var ProtocolVersions = []uint{pico2, pico1}

const ProtocolMaxMsgSize = 10 * 1024 * 1024 // Maximum cap on the size of a protocol message

// pico protocol message codes
const (
	InvMsg                    = 0x00
	GetDataMsg                = 0x01
	GetHeaderMsg              = 0x02
	NotFoundMsg               = 0x03
	BlockMsg                  = 0x04
	HeaderMsg                 = 0x05
	TxMsg                     = 0x06
	MempoolMsg                = 0x07
	SubscribeMsg              = 0x08
	GetHeadMsg                = 0x09
	HeadMsg                   = 0x0a
	GetBlockProofMsg          = 0x0b
	BlockProofMsg             = 0x0c
	GetTransactionsProofMsg   = 0x0d
	TransactionsProofMsg      = 0x0e
	GetTransactionReceiptsMsg = 0x0f
	TransactionReceiptsMsg    = 0x10
)

// CloseCode is attached to a channel close so the peer selection logic above
// the agent can tell benign shutdowns from protocol violations.
type CloseCode int

const (
	CloseShutdown CloseCode = iota
	CloseSubscriptionMismatch
	CloseInvalidBlockProof
	CloseInvalidTransactionProof
	CloseGetTransactionsProofTimeout
	CloseGetTransactionReceiptsTimeout
)

func (c CloseCode) String() string {
	switch c {
	case CloseShutdown:
		return "shutdown"
	case CloseSubscriptionMismatch:
		return "transaction not matching subscription"
	case CloseInvalidBlockProof:
		return "invalid block proof"
	case CloseInvalidTransactionProof:
		return "invalid transaction proof"
	case CloseGetTransactionsProofTimeout:
		return "get transactions proof timeout"
	case CloseGetTransactionReceiptsTimeout:
		return "get transaction receipts timeout"
	default:
		return "unknown"
	}
}

// Request outcomes surfaced to callers of the agent's request methods.
var (
	ErrTimeout      = errors.New("request timed out")
	ErrNotFound     = errors.New("object not found by peer")
	ErrRejected     = errors.New("request rejected by peer")
	ErrInvalidProof = errors.New("invalid proof")
	ErrUnsupported  = errors.New("not supported by peer version")
	ErrClosed       = errors.New("agent is closed")
)

// Message is a decoded protocol packet. The connection layer decodes frames
// and feeds them to Agent.HandleMsg.
type Message interface {
	Code() uint64
}

// InvPacket announces the availability of objects by vector.
type InvPacket struct {
	Vectors []types.InvVector
}

// GetDataPacket requests full objects by vector.
type GetDataPacket struct {
	Vectors []types.InvVector
}

// GetHeaderPacket requests block headers by vector.
type GetHeaderPacket struct {
	Vectors []types.InvVector
}

// NotFoundPacket declares the sender does not have the listed objects.
type NotFoundPacket struct {
	Vectors []types.InvVector
}

// BlockPacket delivers a full block.
type BlockPacket struct {
	Block *types.Block
}

// RawBlockPacket delivers an already encoded block, used when serving
// get-data straight from storage.
type RawBlockPacket struct {
	Block rlp.RawValue
}

// HeaderPacket delivers a block header.
type HeaderPacket struct {
	Header *types.Header
}

// TxPacket delivers a transaction.
type TxPacket struct {
	Tx *types.Transaction
}

// MempoolPacket asks the receiver to announce its subscribed mempool content.
type MempoolPacket struct{}

// SubscribePacket declares the sender's announcement subscription.
type SubscribePacket struct {
	Subscription types.Subscription
}

// GetHeadPacket asks for the receiver's current head header.
type GetHeadPacket struct{}

// HeadPacket delivers the sender's current head header.
type HeadPacket struct {
	Header *types.Header
}

// GetBlockProofPacket requests an interlink chain connecting a block to a
// known block. The proven block is addressed by hash, or by height when
// ByHeight is set.
type GetBlockProofPacket struct {
	BlockHashToProve   common.Hash
	BlockHeightToProve uint64
	ByHeight           bool
	KnownBlockHash     common.Hash
}

// BlockProofPacket answers a block proof request. A nil proof means the
// request was declined.
type BlockProofPacket struct {
	Proof *types.BlockProof
}

// GetTransactionsProofPacket requests a Merkle inclusion proof for the block
// body transactions matching the given addresses or hashes.
type GetTransactionsProofPacket struct {
	BlockHash common.Hash
	Addresses []common.Address
	Hashes    []common.Hash
}

// TransactionsProofPacket answers a transactions proof request. A nil proof
// means the request was declined.
type TransactionsProofPacket struct {
	BlockHash common.Hash
	Proof     *types.TransactionsProof
}

// GetTransactionReceiptsPacket requests inclusion receipts by address or by
// transaction hashes.
type GetTransactionReceiptsPacket struct {
	Address common.Address
	Hashes  []common.Hash
}

// TransactionReceiptsPacket answers a receipts request. Nil receipts mean the
// request was declined.
type TransactionReceiptsPacket struct {
	Receipts types.TransactionReceipts
}

func (*InvPacket) Code() uint64                    { return InvMsg }
func (*GetDataPacket) Code() uint64                { return GetDataMsg }
func (*GetHeaderPacket) Code() uint64              { return GetHeaderMsg }
func (*NotFoundPacket) Code() uint64               { return NotFoundMsg }
func (*BlockPacket) Code() uint64                  { return BlockMsg }
func (*RawBlockPacket) Code() uint64               { return BlockMsg }
func (*HeaderPacket) Code() uint64                 { return HeaderMsg }
func (*TxPacket) Code() uint64                     { return TxMsg }
func (*MempoolPacket) Code() uint64                { return MempoolMsg }
func (*SubscribePacket) Code() uint64              { return SubscribeMsg }
func (*GetHeadPacket) Code() uint64                { return GetHeadMsg }
func (*HeadPacket) Code() uint64                   { return HeadMsg }
func (*GetBlockProofPacket) Code() uint64          { return GetBlockProofMsg }
func (*BlockProofPacket) Code() uint64             { return BlockProofMsg }
func (*GetTransactionsProofPacket) Code() uint64   { return GetTransactionsProofMsg }
func (*TransactionsProofPacket) Code() uint64      { return TransactionsProofMsg }
func (*GetTransactionReceiptsPacket) Code() uint64 { return GetTransactionReceiptsMsg }
func (*TransactionReceiptsPacket) Code() uint64    { return TransactionReceiptsMsg }

// Channel abstracts the framed, encoded transport below the agent. Sends may
// not block indefinitely; ordering within the channel is preserved.
type Channel interface {
	// Send encodes and transmits a packet to the remote peer.
	Send(msg Message) error

	// Close tears the connection down, attaching a code and reason the
	// remote side can log.
	Close(code CloseCode, reason string) error
}

// Backend gives the agent access to the local chain store and mempool.
type Backend interface {
	// GetBlock retrieves a block by hash, optionally looking at forked
	// branches and optionally including the body.
	GetBlock(hash common.Hash, includeForks, includeBody bool) *types.Block

	// GetRawBlock retrieves the encoded form of a block by hash.
	GetRawBlock(hash common.Hash, includeForks bool) rlp.RawValue

	// GetTransaction retrieves a mempool transaction by hash.
	GetTransaction(hash common.Hash) *types.Transaction

	// GetHead returns the current head header of the local chain.
	GetHead() *types.Header
}

// InvRequestManager arbitrates, across all connected agents, which one should
// fetch each advertised object.
type InvRequestManager interface {
	// AskToRequestVector offers the vector for retrieval through the given
	// agent; the manager later calls RequestVector on the agent it picks.
	AskToRequestVector(agent *Agent, vector types.InvVector)

	// NoteVectorReceived records that some agent delivered the object.
	NoteVectorReceived(vector types.InvVector)

	// NoteVectorNotReceived records that the given agent failed to deliver
	// the object, so the manager can try another one.
	NoteVectorNotReceived(agent *Agent, vector types.InvVector)
}

// Hooks let the client flavors (full, light, nano) specialize the agent
// without subclassing. Nil hooks fall back to the documented defaults.
type Hooks struct {
	// ShouldRequestData filters which advertised vectors this agent cares
	// about. Default: all.
	ShouldRequestData func(vector types.InvVector) bool

	// WillRequestHeaders routes block retrievals through get-header instead
	// of get-data. Default: false.
	WillRequestHeaders func() bool

	// ProcessBlock consumes a delivered block. Blocking is fine, the agent
	// tracks the vector in its processing set meanwhile.
	ProcessBlock func(hash common.Hash, block *types.Block) error

	// ProcessHeader consumes a delivered header.
	ProcessHeader func(hash common.Hash, header *types.Header) error

	// ProcessTransaction consumes a delivered transaction matching the local
	// subscription.
	ProcessTransaction func(hash common.Hash, tx *types.Transaction) error

	// SubscribedMempoolTransactions supplies the transactions announced in
	// reply to a mempool message. Default: none.
	SubscribedMempoolTransactions func() []*types.Transaction

	// Announcement callbacks.
	OnNewBlockAnnounced         func(hash common.Hash)
	OnKnownBlockAnnounced       func(hash common.Hash)
	OnNewTransactionAnnounced   func(hash common.Hash)
	OnKnownTransactionAnnounced func(hash common.Hash)
	OnNoUnknownObjects          func()
	OnAllObjectsReceived        func()
	OnAllObjectsProcessed       func()
}
