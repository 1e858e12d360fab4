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
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deckarep/golang-set"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	lru "github.com/hashicorp/golang-lru"

	"github.com/piconetwork/go-pico/core/types"
	"github.com/piconetwork/go-pico/pico/utils"
)

const (
	// RequestThreshold is the number of collected vectors that triggers an
	// immediate get-data instead of waiting out the collection window.
	RequestThreshold = 50

	// RequestThrottle is the collection window armed after an announcement
	// below the threshold.
	RequestThrottle = 500 * time.Millisecond

	// RequestTimeout bounds how long a get-data batch may stay unanswered.
	RequestTimeout = 10 * time.Second

	// RequestVectorsMax is the maximum number of vectors carried by a single
	// inv, get-data or get-header message.
	RequestVectorsMax = 1000

	// RequestBlocksWaitingMax and RequestTransactionsWaitingMax bound the
	// fetch backlogs fed by announcements.
	RequestBlocksWaitingMax       = 5000
	RequestTransactionsWaitingMax = 5000

	// TransactionsAtOnce and TransactionsPerSecond rate-limit paid
	// transaction announcements; the free variants cover transactions below
	// the relay fee floor.
	TransactionsAtOnce        = 100
	TransactionsPerSecond     = 10
	FreeTransactionsAtOnce    = 10
	FreeTransactionsPerSecond = 1

	// TransactionRelayInterval and FreeTransactionRelayInterval pace the
	// relay queue flushes.
	TransactionRelayInterval     = 5 * time.Second
	FreeTransactionRelayInterval = 6 * time.Second

	// FreeTransactionSizePerInterval caps the cumulative serialized size of
	// free transactions announced per flush interval.
	FreeTransactionSizePerInterval = 15000

	// TransactionRelayFeeMin is the fee per byte below which a transaction
	// is relayed through the free queue.
	TransactionRelayFeeMin = 1

	// SubscriptionChangeGracePeriod tolerates non-matching transactions for
	// a while after a subscription change has been sent.
	SubscriptionChangeGracePeriod = 3 * time.Second

	// HeadRequestInterval paces the periodic head polling.
	HeadRequestInterval = 100 * time.Second

	// KnowsObjectAfterInvDelay is how long after announcing an object the
	// peer is assumed to know it.
	KnowsObjectAfterInvDelay = 3 * time.Second

	// KnownObjectsCountMax bounds the per-peer known object set.
	KnownObjectsCountMax = 40000

	// mempoolBatchThrottle is the pause between inv batches answering a
	// mempool message, keeping the channel responsive.
	mempoolBatchThrottle = 100 * time.Millisecond

	// verifiedTxCacheSize bounds the cache of recently processed
	// transactions used to hydrate incoming block bodies.
	verifiedTxCacheSize = 4096
)

// Timer and synchronizer keys.
const (
	timerGetData     = "getData"
	timerThrottle    = "requestThrottle"
	timerRequestHead = "requestHead"
	timerRelayPaid   = "relayPaid"
	timerRelayFree   = "relayFree"

	syncKeyInv = "onInv"
)

// objectResult carries the outcome of a direct object request to its waiter.
type objectResult struct {
	obj interface{}
	err error
}

// objectWaiter is one caller blocked on a direct object request.
type objectWaiter struct {
	resp chan objectResult
}

// Agent mediates a single peer link: it exchanges inventory announcements,
// requests and delivers blocks and transactions, relays new objects honoring
// the peer's subscription and services verified proof requests. One agent is
// bound to one peer for the lifetime of the connection.
type Agent struct {
	peer        *Peer
	backend     Backend
	invRequests InvRequestManager
	hooks       Hooks

	lock   sync.Mutex // Guards the request table, subscriptions and proof slots
	synced uint32
	closed int32

	knownObjects    *utils.LimitHashSet // Objects the peer has seen, announced or asked for
	blocksToRequest *utils.UniqueQueue
	txsToRequest    *utils.ThrottledQueue

	objectsInFlight   mapset.Set // Vectors of the current get-data batch
	objectsThatFlew   mapset.Set // Vectors whose batch timed out
	objectsProcessing mapset.Set // Vectors whose payload is being consumed upstream

	pendingRequests map[types.InvVector][]*objectWaiter

	waitingInvVectors     *utils.ThrottledQueue
	waitingFreeInvVectors *utils.ThrottledQueue

	localSubscription      types.Subscription
	targetSubscription     types.Subscription
	remoteSubscription     types.Subscription
	lastSubscriptionChange time.Time

	blockProofRequest          *blockProofRequest
	transactionsProofRequest   *transactionsProofRequest
	transactionReceiptsRequest *transactionReceiptsRequest

	timers *utils.Timers
	syncer *utils.Synchronizer

	verifiedTxs *lru.Cache

	headFeed  event.Feed
	closeFeed event.Feed
	scope     event.SubscriptionScope

	closeOnce sync.Once
	logger    log.Logger

	// Tunable intervals, fixed to the protocol constants outside of tests.
	requestThrottle          time.Duration
	requestTimeout           time.Duration
	knowsObjectDelay         time.Duration
	relayInterval            time.Duration
	freeRelayInterval        time.Duration
	headRequestInterval      time.Duration
	gracePeriod              time.Duration
	blockProofTimeout        time.Duration
	transactionsProofTimeout time.Duration
	receiptsTimeout          time.Duration
	mempoolThrottle          time.Duration
}

// New creates a consensus agent bound to the given peer. Call Start to begin
// head polling and relay flushing.
func New(peer *Peer, backend Backend, invRequests InvRequestManager, hooks Hooks) *Agent {
	verifiedTxs, _ := lru.New(verifiedTxCacheSize)

	freeKey := func(v interface{}) interface{} {
		if free, ok := v.(types.FreeTransactionVector); ok {
			return free.Vector
		}
		return v
	}
	return &Agent{
		peer:        peer,
		backend:     backend,
		invRequests: invRequests,
		hooks:       hooks,

		knownObjects:    utils.NewLimitHashSet(KnownObjectsCountMax),
		blocksToRequest: utils.NewUniqueQueue(nil),
		txsToRequest: utils.NewThrottledQueue(nil, TransactionsAtOnce, TransactionsPerSecond,
			time.Second, RequestTransactionsWaitingMax),

		objectsInFlight:   mapset.NewSet(),
		objectsThatFlew:   mapset.NewSet(),
		objectsProcessing: mapset.NewSet(),

		pendingRequests: make(map[types.InvVector][]*objectWaiter),

		waitingInvVectors: utils.NewThrottledQueue(nil, TransactionsAtOnce, TransactionsPerSecond,
			time.Second, RequestTransactionsWaitingMax),
		waitingFreeInvVectors: utils.NewThrottledQueue(freeKey, FreeTransactionsAtOnce,
			FreeTransactionsPerSecond, time.Second, RequestTransactionsWaitingMax),

		remoteSubscription: types.SubscribeNone,

		timers:      utils.NewTimers(),
		syncer:      utils.NewSynchronizer(),
		verifiedTxs: verifiedTxs,
		logger:      peer.Log(),

		requestThrottle:          RequestThrottle,
		requestTimeout:           RequestTimeout,
		knowsObjectDelay:         KnowsObjectAfterInvDelay,
		relayInterval:            TransactionRelayInterval,
		freeRelayInterval:        FreeTransactionRelayInterval,
		headRequestInterval:      HeadRequestInterval,
		gracePeriod:              SubscriptionChangeGracePeriod,
		blockProofTimeout:        BlockProofRequestTimeout,
		transactionsProofTimeout: TransactionsProofRequestTimeout,
		receiptsTimeout:          TransactionReceiptsRequestTimeout,
		mempoolThrottle:          mempoolBatchThrottle,
	}
}

// Start begins head polling and arms the periodic relay flush timers.
func (a *Agent) Start() {
	a.peer.SendGetHead()
	a.timers.SetInterval(timerRelayPaid, a.relayInterval, a.relayWaitingVectors)
	a.timers.SetInterval(timerRelayFree, a.freeRelayInterval, a.relayFreeVectors)
}

// Peer returns the peer handle this agent is bound to.
func (a *Agent) Peer() *Peer { return a.peer }

// Synced reports whether the initial sync with this peer has completed.
func (a *Agent) Synced() bool { return atomic.LoadUint32(&a.synced) == 1 }

// MarkSynced flags the initial sync as complete, enabling block relay.
func (a *Agent) MarkSynced() { atomic.StoreUint32(&a.synced, 1) }

// Knows reports whether the peer has demonstrated knowledge of the object.
func (a *Agent) Knows(vector types.InvVector) bool {
	return a.knownObjects.Contains(vector)
}

// SubscribeHead sends head header updates of the remote peer to the given
// channel until the agent shuts down.
func (a *Agent) SubscribeHead(ch chan<- *types.Header) event.Subscription {
	return a.scope.Track(a.headFeed.Subscribe(ch))
}

// SubscribeClose notifies the given channel once when the agent shuts down.
func (a *Agent) SubscribeClose(ch chan<- struct{}) event.Subscription {
	return a.scope.Track(a.closeFeed.Subscribe(ch))
}

// Subscribe declares to the peer which announcements we want to receive.
func (a *Agent) Subscribe(sub types.Subscription) {
	a.lock.Lock()
	a.targetSubscription = sub
	a.localSubscription = sub
	a.lastSubscriptionChange = time.Now()
	a.lock.Unlock()

	a.peer.SendSubscribe(sub)
}

// HandleMsg dispatches a decoded inbound message to the matching handler.
// The connection layer calls this for every frame arriving on the channel.
func (a *Agent) HandleMsg(msg Message) error {
	if atomic.LoadInt32(&a.closed) == 1 {
		return ErrClosed
	}
	switch msg := msg.(type) {
	case *InvPacket:
		// Serialized so concurrent inv messages keep their arrival order
		// even when their bodies block on chain lookups.
		return a.syncer.Push(syncKeyInv, func() { a.handleInv(msg) })
	case *BlockPacket:
		a.handleBlock(msg.Block)
	case *HeaderPacket:
		a.handleHeader(msg.Header)
	case *TxPacket:
		a.handleTx(msg.Tx)
	case *NotFoundPacket:
		a.handleNotFound(msg.Vectors)
	case *SubscribePacket:
		a.handleSubscribe(msg.Subscription)
	case *GetDataPacket:
		a.handleGetData(msg.Vectors)
	case *GetHeaderPacket:
		a.handleGetHeader(msg.Vectors)
	case *MempoolPacket:
		go a.handleMempool()
	case *GetHeadPacket:
		a.handleGetHead()
	case *HeadPacket:
		a.handleHead(msg.Header)
	case *BlockProofPacket:
		a.handleBlockProof(msg)
	case *TransactionsProofPacket:
		a.handleTransactionsProof(msg)
	case *TransactionReceiptsPacket:
		a.handleTransactionReceipts(msg)
	default:
		return fmt.Errorf("unhandled message code %d", msg.Code())
	}
	return nil
}

// handleInv processes an inventory announcement: it marks every advertised
// vector as known, figures out which objects are new to us and offers those
// to the inv request manager for retrieval.
func (a *Agent) handleInv(msg *InvPacket) {
	propInvInPacketsMeter.Mark(1)
	propInvInVectorsMeter.Mark(int64(len(msg.Vectors)))

	for _, vector := range msg.Vectors {
		a.knownObjects.Add(vector)
		a.waitingInvVectors.Remove(vector)
		a.waitingFreeInvVectors.Remove(vector)
	}
	unknown := make([]types.InvVector, 0, len(msg.Vectors))
	for _, vector := range msg.Vectors {
		if a.objectsInFlight.Contains(vector) || a.objectsProcessing.Contains(vector) {
			continue
		}
		if !a.shouldRequestData(vector) {
			continue
		}
		switch vector.Type {
		case types.InvBlock:
			if block := a.backend.GetBlock(vector.Hash, true, false); block == nil {
				unknown = append(unknown, vector)
				if a.hooks.OnNewBlockAnnounced != nil {
					a.hooks.OnNewBlockAnnounced(vector.Hash)
				}
			} else if a.hooks.OnKnownBlockAnnounced != nil {
				a.hooks.OnKnownBlockAnnounced(vector.Hash)
			}
		case types.InvTransaction:
			if tx := a.backend.GetTransaction(vector.Hash); tx == nil {
				unknown = append(unknown, vector)
				if a.hooks.OnNewTransactionAnnounced != nil {
					a.hooks.OnNewTransactionAnnounced(vector.Hash)
				}
			} else if a.hooks.OnKnownTransactionAnnounced != nil {
				a.hooks.OnKnownTransactionAnnounced(vector.Hash)
			}
		}
	}
	if len(unknown) == 0 {
		if a.hooks.OnNoUnknownObjects != nil {
			a.hooks.OnNoUnknownObjects()
		}
		return
	}
	a.logger.Debug("Received announcement", "vectors", len(msg.Vectors), "unknown", len(unknown))
	for _, vector := range unknown {
		a.invRequests.AskToRequestVector(a, vector)
	}
}

func (a *Agent) shouldRequestData(vector types.InvVector) bool {
	if a.hooks.ShouldRequestData != nil {
		return a.hooks.ShouldRequestData(vector)
	}
	return true
}

// RequestVector queues the given vectors for retrieval from this peer. The
// inv request manager calls this on the one agent it picked per object.
func (a *Agent) RequestVector(vectors ...types.InvVector) {
	for _, vector := range vectors {
		switch vector.Type {
		case types.InvBlock:
			if a.blocksToRequest.Len() < RequestBlocksWaitingMax {
				a.blocksToRequest.Enqueue(vector)
			}
		case types.InvTransaction:
			a.txsToRequest.Enqueue(vector)
		}
	}
	a.timers.Clear(timerThrottle)

	if a.blocksToRequest.Len()+a.txsToRequest.Available() >= RequestThreshold {
		a.requestData()
	} else {
		a.timers.Set(timerThrottle, a.requestThrottle, a.requestData)
	}
}

// requestData issues the next get-data batch unless one is already in
// flight.
func (a *Agent) requestData() {
	a.lock.Lock()
	if a.objectsInFlight.Cardinality() > 0 {
		a.lock.Unlock()
		return
	}
	blocks := a.blocksToRequest.DequeueMulti(RequestVectorsMax)
	txs := a.txsToRequest.DequeueMulti(RequestVectorsMax - len(blocks))
	if len(blocks)+len(txs) == 0 {
		a.lock.Unlock()
		return
	}
	blockVectors := make([]types.InvVector, 0, len(blocks))
	txVectors := make([]types.InvVector, 0, len(txs))
	for _, v := range blocks {
		blockVectors = append(blockVectors, v.(types.InvVector))
		a.objectsInFlight.Add(v)
	}
	for _, v := range txs {
		txVectors = append(txVectors, v.(types.InvVector))
		a.objectsInFlight.Add(v)
	}
	a.lock.Unlock()

	a.doRequestData(blockVectors, txVectors)
	a.timers.Set(timerGetData, a.requestTimeout, a.onRequestTimeout)
}

// doRequestData transmits the batch, splitting block retrievals off to
// get-header when the client flavor asked for headers only.
func (a *Agent) doRequestData(blocks, txs []types.InvVector) {
	if a.hooks.WillRequestHeaders != nil && a.hooks.WillRequestHeaders() {
		if len(blocks) > 0 {
			a.peer.SendGetHeader(blocks)
		}
		if len(txs) > 0 {
			a.peer.SendGetData(txs)
		}
		return
	}
	a.peer.SendGetData(append(append([]types.InvVector{}, blocks...), txs...))
}

func (a *Agent) onRequestTimeout() {
	reqTimeoutMeter.Mark(1)
	a.logger.Debug("Request batch timed out", "inflight", a.objectsInFlight.Cardinality())
	a.noMoreData()
}

// onObjectReceived advances the batch accounting after any requested object
// arrived, rearming or finishing the batch timeout.
func (a *Agent) onObjectReceived(vector types.InvVector) {
	if !a.objectsInFlight.Contains(vector) {
		return
	}
	a.objectsInFlight.Remove(vector)
	if a.objectsInFlight.Cardinality() > 0 {
		a.timers.Reset(timerGetData, a.requestTimeout)
	} else {
		a.noMoreData()
	}
}

// noMoreData finishes the current batch: vectors never delivered are handed
// back to the inv request manager and remembered as flown, then the next
// batch starts if work is queued.
func (a *Agent) noMoreData() {
	a.timers.Clear(timerGetData)

	for _, v := range a.objectsInFlight.ToSlice() {
		vector := v.(types.InvVector)
		a.invRequests.NoteVectorNotReceived(a, vector)
		a.objectsThatFlew.Add(vector)
	}
	a.objectsInFlight.Clear()

	if a.blocksToRequest.Len() > 0 || a.txsToRequest.Available() > 0 {
		a.requestData()
	} else if a.hooks.OnAllObjectsReceived != nil {
		a.hooks.OnAllObjectsReceived()
	}
}

func (a *Agent) onObjectProcessed(vector types.InvVector) {
	a.objectsProcessing.Remove(vector)
	if a.objectsProcessing.Cardinality() == 0 && a.hooks.OnAllObjectsProcessed != nil {
		a.hooks.OnAllObjectsProcessed()
	}
}

// RequestBlock fetches a single block directly from the peer, bypassing the
// announcement pipeline. Concurrent requests for the same hash share one
// get-data message.
func (a *Agent) RequestBlock(ctx context.Context, hash common.Hash) (*types.Block, error) {
	res, err := a.requestObject(ctx, types.NewBlockVector(hash))
	if err != nil {
		return nil, err
	}
	return res.(*types.Block), nil
}

// RequestTransaction fetches a single transaction directly from the peer.
func (a *Agent) RequestTransaction(ctx context.Context, hash common.Hash) (*types.Transaction, error) {
	res, err := a.requestObject(ctx, types.NewTransactionVector(hash))
	if err != nil {
		return nil, err
	}
	return res.(*types.Transaction), nil
}

func (a *Agent) requestObject(ctx context.Context, vector types.InvVector) (interface{}, error) {
	if atomic.LoadInt32(&a.closed) == 1 {
		return nil, ErrClosed
	}
	waiter := &objectWaiter{resp: make(chan objectResult, 1)}

	a.lock.Lock()
	waiters, pending := a.pendingRequests[vector]
	a.pendingRequests[vector] = append(waiters, waiter)
	if !pending {
		// Transactions are tracked in the in-flight batch so deliveries
		// clear the unsolicited filter; blocks fetched this way are not.
		if vector.Type == types.InvTransaction && !a.objectsInFlight.Contains(vector) {
			a.objectsInFlight.Add(vector)
		}
	}
	a.lock.Unlock()

	if !pending {
		a.peer.SendGetData([]types.InvVector{vector})
		// Keep the batch timeout armed so an unanswered in-flight transaction
		// is swept into the flown set instead of blocking later batches.
		if vector.Type == types.InvTransaction && !a.timers.Has(timerGetData) {
			a.timers.Set(timerGetData, a.requestTimeout, a.onRequestTimeout)
		}
		a.timers.Set(requestTimerName(vector), a.requestTimeout, func() {
			for _, w := range a.takePending(vector) {
				w.resp <- objectResult{err: ErrTimeout}
			}
		})
	}
	select {
	case res := <-waiter.resp:
		return res.obj, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func requestTimerName(vector types.InvVector) string {
	return "request:" + vector.String()
}

// takePending removes and returns the waiters of a vector, or nil.
func (a *Agent) takePending(vector types.InvVector) []*objectWaiter {
	a.lock.Lock()
	defer a.lock.Unlock()

	waiters, ok := a.pendingRequests[vector]
	if !ok {
		return nil
	}
	delete(a.pendingRequests, vector)
	return waiters
}

// handleBlock processes a delivered block: it resolves direct requests,
// filters unsolicited deliveries, hydrates the body with already verified
// transactions, tracks the peer's head and hands the block upstream.
func (a *Agent) handleBlock(block *types.Block) {
	if block == nil {
		return
	}
	blockInMeter.Mark(1)
	block.ReceivedAt = time.Now()

	hash := block.Hash()
	vector := block.Vector()

	if waiters := a.takePending(vector); waiters != nil {
		a.timers.Clear(requestTimerName(vector))
		for _, w := range waiters {
			w.resp <- objectResult{obj: block}
		}
		return
	}
	if !a.objectsInFlight.Contains(vector) && !a.objectsThatFlew.Contains(vector) {
		unsolicitedDropMeter.Mark(1)
		a.logger.Debug("Discarded unsolicited block", "hash", hash)
		return
	}
	a.hydrateTransactions(block)

	head := a.peer.Head()
	if (head == nil && a.peer.HeadHash() == hash) || (head != nil && block.NumberU64() > head.Number) {
		a.peer.SetHead(block.Header())
		a.headFeed.Send(block.Header())
		a.timers.Set(timerRequestHead, a.headRequestInterval, func() { a.peer.SendGetHead() })
	}
	a.onObjectReceived(vector)
	a.objectsProcessing.Add(vector)
	if a.hooks.ProcessBlock != nil {
		if err := a.hooks.ProcessBlock(hash, block); err != nil {
			a.logger.Debug("Block processing failed", "hash", hash, "err", err)
		}
	}
	a.onObjectProcessed(vector)
	a.invRequests.NoteVectorReceived(vector)
}

// hydrateTransactions swaps body transactions for instances that already went
// through mempool verification, matched by hash.
func (a *Agent) hydrateTransactions(block *types.Block) {
	for i, tx := range block.Transactions() {
		hash := tx.Hash()
		if known := a.backend.GetTransaction(hash); known != nil {
			block.Transactions()[i] = known
			continue
		}
		if cached, ok := a.verifiedTxs.Get(hash); ok {
			block.Transactions()[i] = cached.(*types.Transaction)
		}
	}
}

// handleHeader processes a delivered header the way handleBlock does, minus
// direct requests and body concerns.
func (a *Agent) handleHeader(header *types.Header) {
	if header == nil {
		return
	}
	headerInMeter.Mark(1)

	hash := header.Hash()
	vector := types.NewBlockVector(hash)

	if !a.objectsInFlight.Contains(vector) && !a.objectsThatFlew.Contains(vector) {
		unsolicitedDropMeter.Mark(1)
		a.logger.Debug("Discarded unsolicited header", "hash", hash)
		return
	}
	head := a.peer.Head()
	if (head == nil && a.peer.HeadHash() == hash) || (head != nil && header.Number > head.Number) {
		a.peer.SetHead(header)
		a.headFeed.Send(header)
		a.timers.Set(timerRequestHead, a.headRequestInterval, func() { a.peer.SendGetHead() })
	}
	a.onObjectReceived(vector)
	a.objectsProcessing.Add(vector)
	if a.hooks.ProcessHeader != nil {
		if err := a.hooks.ProcessHeader(hash, header); err != nil {
			a.logger.Debug("Header processing failed", "hash", hash, "err", err)
		}
	}
	a.onObjectProcessed(vector)
	a.invRequests.NoteVectorReceived(vector)
}

// handleTx processes a delivered transaction, enforcing the local
// subscription once the peer's grace period after a subscription change has
// passed.
func (a *Agent) handleTx(tx *types.Transaction) {
	if tx == nil {
		return
	}
	txInMeter.Mark(1)

	hash := tx.Hash()
	vector := tx.Vector()

	if !a.objectsInFlight.Contains(vector) && !a.objectsThatFlew.Contains(vector) {
		unsolicitedDropMeter.Mark(1)
		a.logger.Debug("Discarded unsolicited transaction", "hash", hash)
		return
	}
	a.invRequests.NoteVectorReceived(vector)
	a.onObjectReceived(vector)
	a.objectsProcessing.Add(vector)

	a.lock.Lock()
	matches := a.localSubscription.MatchesTransaction(tx)
	graceExpired := time.Since(a.lastSubscriptionChange) > a.gracePeriod
	a.lock.Unlock()

	if matches {
		if a.hooks.ProcessTransaction != nil {
			if err := a.hooks.ProcessTransaction(hash, tx); err != nil {
				a.logger.Debug("Transaction processing failed", "hash", hash, "err", err)
			} else {
				a.verifiedTxs.Add(hash, tx)
			}
		} else {
			a.verifiedTxs.Add(hash, tx)
		}
	}
	direct := false
	if waiters := a.takePending(vector); waiters != nil {
		direct = true
		a.timers.Clear(requestTimerName(vector))
		for _, w := range waiters {
			w.resp <- objectResult{obj: tx}
		}
	}
	// Explicitly requested transactions are exempt from the subscription
	// filter, the request itself declared interest.
	if !matches && !direct && graceExpired {
		a.peer.Close(CloseSubscriptionMismatch, "transaction does not match subscription")
	}
	a.onObjectProcessed(vector)
}

// handleNotFound settles direct requests and batch accounting for objects
// the peer declared unavailable.
func (a *Agent) handleNotFound(vectors []types.InvVector) {
	notFoundMeter.Mark(int64(len(vectors)))

	for _, vector := range vectors {
		if waiters := a.takePending(vector); waiters != nil {
			a.timers.Clear(requestTimerName(vector))
			for _, w := range waiters {
				w.resp <- objectResult{err: ErrNotFound}
			}
		}
		if a.objectsInFlight.Contains(vector) {
			a.invRequests.NoteVectorNotReceived(a, vector)
			a.onObjectReceived(vector)
		}
	}
}

func (a *Agent) handleSubscribe(sub types.Subscription) {
	a.lock.Lock()
	a.remoteSubscription = sub
	a.lock.Unlock()

	a.logger.Debug("Peer changed subscription", "subscription", sub)
}

// handleGetData serves requested objects from the local store, answering
// misses with a single not-found.
func (a *Agent) handleGetData(vectors []types.InvVector) {
	unknown := make([]types.InvVector, 0)
	for _, vector := range vectors {
		// Asking for an object proves the peer knows it.
		a.knownObjects.Add(vector)

		switch vector.Type {
		case types.InvBlock:
			if raw := a.backend.GetRawBlock(vector.Hash, true); raw != nil {
				a.peer.SendRawBlock(raw)
			} else {
				unknown = append(unknown, vector)
			}
		case types.InvTransaction:
			if tx := a.backend.GetTransaction(vector.Hash); tx != nil {
				a.peer.SendTransaction(tx)
			} else {
				unknown = append(unknown, vector)
			}
		}
	}
	if len(unknown) > 0 {
		servedMissMeter.Mark(int64(len(unknown)))
		a.peer.SendNotFound(unknown)
	}
}

// handleGetHeader serves requested headers, answering misses with a single
// not-found.
func (a *Agent) handleGetHeader(vectors []types.InvVector) {
	unknown := make([]types.InvVector, 0)
	for _, vector := range vectors {
		a.knownObjects.Add(vector)

		if vector.Type != types.InvBlock {
			unknown = append(unknown, vector)
			continue
		}
		if block := a.backend.GetBlock(vector.Hash, true, false); block != nil {
			a.peer.SendHeader(block.Header())
		} else {
			unknown = append(unknown, vector)
		}
	}
	if len(unknown) > 0 {
		servedMissMeter.Mark(int64(len(unknown)))
		a.peer.SendNotFound(unknown)
	}
}

func (a *Agent) handleGetHead() {
	if head := a.backend.GetHead(); head != nil {
		a.peer.SendHead(head)
	}
}

// handleHead records the peer's reported head and schedules the next poll.
func (a *Agent) handleHead(header *types.Header) {
	if header == nil {
		return
	}
	a.peer.SetHead(header)
	a.headFeed.Send(header)
	a.timers.Set(timerRequestHead, a.headRequestInterval, func() { a.peer.SendGetHead() })
}

// handleMempool announces our subscribed mempool content in inv batches,
// yielding between batches to keep the channel responsive.
func (a *Agent) handleMempool() {
	var txs []*types.Transaction
	if a.hooks.SubscribedMempoolTransactions != nil {
		txs = a.hooks.SubscribedMempoolTransactions()
	}
	vectors := make([]types.InvVector, 0, RequestVectorsMax)
	for _, tx := range txs {
		if atomic.LoadInt32(&a.closed) == 1 {
			return
		}
		vectors = append(vectors, tx.Vector())
		if len(vectors) == RequestVectorsMax {
			a.peer.SendInv(vectors)
			vectors = make([]types.InvVector, 0, RequestVectorsMax)
			time.Sleep(a.mempoolThrottle)
		}
	}
	if len(vectors) > 0 {
		a.peer.SendInv(vectors)
	}
}

// HandleClose reacts to the remote side or the transport tearing the channel
// down.
func (a *Agent) HandleClose() {
	a.Shutdown()
}

// Shutdown releases every resource held by the agent: queued synchronizer
// tasks are canceled, timers stopped, queues drained and all pending waiters
// rejected. Safe to call multiple times.
func (a *Agent) Shutdown() {
	a.closeOnce.Do(func() {
		atomic.StoreInt32(&a.closed, 1)

		a.syncer.Close()
		a.timers.ClearAll()
		a.txsToRequest.Stop()
		a.waitingInvVectors.Stop()
		a.waitingFreeInvVectors.Stop()

		a.lock.Lock()
		pending := a.pendingRequests
		a.pendingRequests = make(map[types.InvVector][]*objectWaiter)
		a.lock.Unlock()
		for _, waiters := range pending {
			for _, w := range waiters {
				w.resp <- objectResult{err: ErrClosed}
			}
		}
		a.rejectProofRequests(ErrClosed)

		// Fire close before detaching, downstream components see the event.
		a.closeFeed.Send(struct{}{})
		a.scope.Close()
	})
}
