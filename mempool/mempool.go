// Package mempool implements the pending-transaction pool described in
// spec §4.4: admission, per-wallet pending-balance/nonce tracking, and
// the gossip/cleanup background loops.
package mempool

import (
	"sync"
	"time"

	"github.com/sabledatanetworks/pandanite-node/logger"
	"github.com/sabledatanetworks/pandanite-node/types"
)

var log = logger.MemPool()

// MaxQueueSize bounds admission (spec §4.4 step 6): the queue is
// rejected as full once it holds this many entries, one below
// types.MaxTransactionsPerBlock. Nothing is evicted to make room.
const MaxQueueSize = 24999

// TxBranchFactor bounds how many fresh peers a single gossip tick fans a
// transaction out to.
const TxBranchFactor = 10

// MinFee is the smallest fee AddTransaction will admit.
const MinFee = types.Amount(1)

const (
	gossipInterval  = 100 * time.Millisecond
	cleanupInterval = 60 * time.Second
	gossipRetries   = 3
	peerPenaltyTTL  = 24 * time.Hour
)

// ChainView is the narrow slice of BlockChain the mempool depends on,
// breaking the BlockChain↔MemPool cycle (spec §9). Satisfied by
// *blockchain.BlockChain.
type ChainView interface {
	VerifyTransaction(tx *types.Transaction) types.Status
	WalletBalance(wallet types.WalletAddress) (types.Amount, error)
	WalletNonce(wallet types.WalletAddress) (uint64, error)
}

// GossipPeer is a remote peer the gossip loop can push transactions to.
type GossipPeer interface {
	Address() string
	BlockHeight() (uint64, error)
	SendTransaction(tx *types.Transaction) error
}

// PeerSampler selects fresh peers for gossip fan-out. Satisfied by
// hostmanager.HostManager's SampleFreshHosts.
type PeerSampler interface {
	SampleFreshHosts(n int) []GossipPeer
}

// MemPool holds the pending-transaction queue and drives admission,
// gossip, and cleanup. All mutable state is guarded by mtx; gossip
// network I/O happens outside the lock.
type MemPool struct {
	mtx sync.Mutex

	chain ChainView
	peers PeerSampler

	queue           *queue
	pendingOutgoing map[types.WalletAddress]types.Amount
	nextNonce       map[types.WalletAddress]uint64
	toSend          []*types.Transaction

	penaltyBox map[string]time.Time

	shutdown chan struct{}
	wg       sync.WaitGroup

	now func() time.Time
}

// New constructs a MemPool driven by chain for validation and peers for
// gossip fan-out.
func New(chain ChainView, peers PeerSampler) *MemPool {
	return &MemPool{
		chain:           chain,
		peers:           peers,
		queue:           newQueue(),
		pendingOutgoing: make(map[types.WalletAddress]types.Amount),
		nextNonce:       make(map[types.WalletAddress]uint64),
		penaltyBox:      make(map[string]time.Time),
		shutdown:        make(chan struct{}),
		now:             time.Now,
	}
}

// Start launches the gossip and cleanup background loops.
func (m *MemPool) Start() {
	m.wg.Add(2)
	go m.gossipLoop()
	go m.cleanupLoop()
}

// Stop signals both background loops to exit and waits for them.
func (m *MemPool) Stop() {
	close(m.shutdown)
	m.wg.Wait()
}

// AddTransaction runs the seven-step admission check from spec §4.4 as
// one atomic block under the mempool lock.
func (m *MemPool) AddTransaction(tx *types.Transaction) types.Status {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if tx.IsExpired(m.now()) {
		return types.StatusExpiredTransaction
	}

	hash := tx.Hash()
	if m.queue.contains(hash) {
		return types.StatusAlreadyInQueue
	}

	if tx.Fee < MinFee {
		return types.StatusTransactionFeeTooLow
	}

	if status := m.chain.VerifyTransaction(tx); status != types.StatusSuccess {
		return status
	}

	var reserved types.Amount
	var expectedNonce uint64
	if !tx.IsFee {
		total, ok := tx.Amount.Add(tx.Fee)
		if !ok {
			return types.StatusBalanceTooLow
		}
		balance, err := m.chain.WalletBalance(tx.From)
		if err != nil {
			log.Criticalf("failed to read balance during admission: %+v", err)
			panic(err)
		}
		pending := m.pendingOutgoing[tx.From]
		reserved, ok = pending.Add(total)
		if !ok || balance < reserved {
			return types.StatusBalanceTooLow
		}

		expectedNonce, ok = m.nextNonce[tx.From]
		if !ok {
			n, err := m.chain.WalletNonce(tx.From)
			if err != nil {
				log.Criticalf("failed to read nonce during admission: %+v", err)
				panic(err)
			}
			expectedNonce = n
		}
		if tx.Nonce != expectedNonce {
			return types.StatusInvalidNonce
		}
	}

	if m.queue.len() >= MaxQueueSize {
		return types.StatusQueueFull
	}

	if !tx.IsFee {
		m.pendingOutgoing[tx.From] = reserved
		m.nextNonce[tx.From] = expectedNonce + 1
	}
	m.queue.insert(tx)
	m.toSend = append(m.toSend, tx)
	return types.StatusSuccess
}

// FinishBlock removes every confirmed transaction in block from the
// queue and unwinds its pendingOutgoing reservation. Nonces are not
// reset here: the Ledger via ChainView.WalletNonce is authoritative on
// next admission (spec §4.4).
func (m *MemPool) FinishBlock(block *types.Block) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	for _, tx := range block.Transactions {
		hash := tx.Hash()
		if !m.queue.contains(hash) {
			continue
		}
		m.queue.remove(hash)
		if tx.IsFee {
			continue
		}
		total, ok := tx.Amount.Add(tx.Fee)
		if !ok {
			continue
		}
		m.releasePendingLocked(tx.From, total)
	}
}

func (m *MemPool) releasePendingLocked(wallet types.WalletAddress, amount types.Amount) {
	remaining, ok := m.pendingOutgoing[wallet].Sub(amount)
	if !ok || remaining == 0 {
		delete(m.pendingOutgoing, wallet)
		return
	}
	m.pendingOutgoing[wallet] = remaining
}

// Len returns the number of currently queued transactions.
func (m *MemPool) Len() int {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.queue.len()
}

// Ordered returns a snapshot of the queue in fee-desc/hash-asc order,
// the view a miner assembling a candidate block consults.
func (m *MemPool) Ordered() []*types.Transaction {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.queue.ordered()
}

func (m *MemPool) gossipLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(gossipInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.shutdown:
			return
		case <-ticker.C:
			m.gossipTick()
		}
	}
}

func (m *MemPool) gossipTick() {
	batch := m.drainToSend()
	m.revalidateQueue()
	if len(batch) == 0 {
		return
	}
	if m.peers == nil {
		return
	}

	candidates := m.peers.SampleFreshHosts(TxBranchFactor * 4)
	peers := m.selectTiedPeers(candidates)
	if len(peers) == 0 {
		m.requeue(batch)
		return
	}

	var failed []*types.Transaction
	for _, tx := range batch {
		delivered := false
		for _, peer := range peers {
			if m.isPenalized(peer.Address()) {
				continue
			}
			if m.deliverWithRetries(peer, tx) {
				delivered = true
			} else {
				m.penalize(peer.Address())
			}
		}
		if !delivered {
			failed = append(failed, tx)
		}
	}
	if len(failed) > 0 {
		m.requeue(failed)
	}
}

func (m *MemPool) deliverWithRetries(peer GossipPeer, tx *types.Transaction) bool {
	for attempt := 0; attempt < gossipRetries; attempt++ {
		if err := peer.SendTransaction(tx); err == nil {
			return true
		}
	}
	return false
}

func (m *MemPool) selectTiedPeers(candidates []GossipPeer) []GossipPeer {
	var best uint64
	heights := make(map[string]uint64, len(candidates))
	for _, p := range candidates {
		height, err := p.BlockHeight()
		if err != nil {
			continue
		}
		heights[p.Address()] = height
		if height > best {
			best = height
		}
	}
	var tied []GossipPeer
	for _, p := range candidates {
		if h, ok := heights[p.Address()]; ok && h == best {
			tied = append(tied, p)
		}
		if len(tied) >= TxBranchFactor {
			break
		}
	}
	return tied
}

func (m *MemPool) drainToSend() []*types.Transaction {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	batch := m.toSend
	m.toSend = nil
	return batch
}

func (m *MemPool) requeue(txs []*types.Transaction) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.toSend = append(m.toSend, txs...)
}

func (m *MemPool) revalidateQueue() {
	m.mtx.Lock()
	snapshot := m.queue.ordered()
	m.mtx.Unlock()

	var stale []types.Hash
	for _, tx := range snapshot {
		if tx.IsExpired(m.now()) {
			stale = append(stale, tx.Hash())
			continue
		}
		if status := m.chain.VerifyTransaction(tx); status != types.StatusSuccess && status.IsValidationFailure() {
			stale = append(stale, tx.Hash())
		}
	}
	if len(stale) == 0 {
		return
	}

	m.mtx.Lock()
	defer m.mtx.Unlock()
	for _, hash := range stale {
		m.queue.remove(hash)
	}
}

func (m *MemPool) cleanupLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.shutdown:
			return
		case <-ticker.C:
			m.cleanupTick()
		}
	}
}

func (m *MemPool) cleanupTick() {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	now := m.now()
	for _, tx := range m.queue.ordered() {
		if !tx.IsExpired(now) {
			continue
		}
		hash := tx.Hash()
		m.queue.remove(hash)
		if tx.IsFee {
			continue
		}
		total, ok := tx.Amount.Add(tx.Fee)
		if !ok {
			continue
		}
		m.releasePendingLocked(tx.From, total)
	}

	for addr, bannedAt := range m.penaltyBox {
		if now.Sub(bannedAt) > peerPenaltyTTL {
			delete(m.penaltyBox, addr)
		}
	}
}

func (m *MemPool) isPenalized(addr string) bool {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	bannedAt, ok := m.penaltyBox[addr]
	if !ok {
		return false
	}
	return m.now().Sub(bannedAt) <= peerPenaltyTTL
}

func (m *MemPool) penalize(addr string) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.penaltyBox[addr] = m.now()
}
