// Package blockchain owns the authoritative chain state described in
// spec §4.3: tip hash, height, cumulative work, and current difficulty,
// all mutations serialized behind a single lock, driving forward-sync
// and reorganization against a selected peer.
package blockchain

import (
	"math/big"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sabledatanetworks/pandanite-node/executor"
	"github.com/sabledatanetworks/pandanite-node/ledger"
	"github.com/sabledatanetworks/pandanite-node/logger"
	"github.com/sabledatanetworks/pandanite-node/merkle"
	"github.com/sabledatanetworks/pandanite-node/panics"
	"github.com/sabledatanetworks/pandanite-node/store"
	"github.com/sabledatanetworks/pandanite-node/types"
)

var log = logger.BlockChain()

// Wire constants from spec §6.
const (
	BlocksPerFetch    = 200
	MaxSyncRetries    = 25
	ForkChainPopCount = 100
	ChainSyncInterval = 10 * time.Second
)

// Peer is the narrow view of a selected remote peer BlockChain needs to
// drive forward-sync and reorg: a header-backed work comparison plus
// block retrieval. It is satisfied by hostmanager's HeaderChain-backed
// peer handle; HeaderChain's own wire protocol is an external
// collaborator not designed here (spec §4.6).
type Peer interface {
	Address() string
	ChainLength() uint64
	TotalWork() *big.Int
	HeaderHash(height uint64) (types.Hash, error)
	FetchBlocks(fromID uint64, count int) ([]*types.Block, error)
}

// PeerSource selects the best currently-tracked peer, or reports none
// available. Implemented by hostmanager.HostManager.
type PeerSource interface {
	BestPeer() (Peer, bool)
}

// NetworkClock estimates the network's median time, used by the
// timestamp rule. Implemented by hostmanager.HostManager.
type NetworkClock interface {
	NetworkTimestamp() time.Time
}

// MempoolNotifiee is the narrow callback BlockChain drives into MemPool
// on every successfully applied block, breaking the cyclic BlockChain↔
// MemPool reference described in spec §9.
type MempoolNotifiee interface {
	FinishBlock(block *types.Block)
}

// InvalidTxTable reports whether a (blockID, wallet) pair is a known
// historical BalanceTooLow rejection, so AddBlock can suppress a
// duplicate log line during replay (spec §6, §9). It never changes
// validation outcomes.
type InvalidTxTable interface {
	IsKnownInvalid(blockID uint64, wallet types.WalletAddress) bool
}

// GenesisLoader loads the fully-formed genesis block from its external
// JSON source (spec §6). Genesis-file loading is out of scope to design
// here; this interface is the narrow seam BlockChain needs to re-ingest
// genesis after ResetChain.
type GenesisLoader interface {
	LoadGenesis() (*types.Block, error)
}

// Config bundles BlockChain's constructor dependencies.
type Config struct {
	Ledger     *ledger.Ledger
	BlockStore store.BlockStore
	TxStore    store.TxStore
	Peers      PeerSource
	Clock      NetworkClock
	Genesis    GenesisLoader
	InvalidTxs InvalidTxTable
}

// BlockChain drives chain ingestion and synchronization. All mutations
// and getters are serialized behind mtx; holding time is bounded by
// block-validation latency.
type BlockChain struct {
	mtx sync.Mutex

	ledger     *ledger.Ledger
	blockStore store.BlockStore
	txStore    store.TxStore
	peers      PeerSource
	clock      NetworkClock
	genesis    GenesisLoader
	invalidTxs InvalidTxTable
	mempool    MempoolNotifiee

	isSyncing         bool
	retryCount        int
	tipHash           types.Hash
	height            uint64
	cumulativeWork    *big.Int
	currentDifficulty uint8
	targetHeight      uint64

	spawn func(func())
}

// New constructs a BlockChain from cfg. The chain starts uninitialised
// (height 0); call LoadFromStores, which resumes from persisted state or
// ingests genesis if the stores are empty.
func New(cfg Config) *BlockChain {
	return &BlockChain{
		ledger:         cfg.Ledger,
		blockStore:     cfg.BlockStore,
		txStore:        cfg.TxStore,
		peers:          cfg.Peers,
		clock:          cfg.Clock,
		genesis:        cfg.Genesis,
		invalidTxs:     cfg.InvalidTxs,
		cumulativeWork: big.NewInt(0),
		spawn:          func(f func()) { go f() },
	}
}

// RegisterMempool wires the mempool notification sink after both
// BlockChain and MemPool have been constructed, breaking the
// construction-order cycle (spec §9).
func (bc *BlockChain) RegisterMempool(m MempoolNotifiee) {
	bc.mtx.Lock()
	defer bc.mtx.Unlock()
	bc.mempool = m
}

// LoadFromStores resumes chain state from the persisted block/tx stores,
// or ingests genesis if they are empty.
func (bc *BlockChain) LoadFromStores() error {
	bc.mtx.Lock()
	defer bc.mtx.Unlock()

	count, err := bc.blockStore.BlockCount()
	if err != nil {
		return errors.Wrap(err, "load block count")
	}
	if count == 0 {
		return bc.resetChainLocked()
	}

	work, err := bc.blockStore.TotalWork()
	if err != nil {
		return errors.Wrap(err, "load total work")
	}
	tip, found, err := bc.blockStore.GetBlock(count)
	if err != nil {
		return errors.Wrap(err, "load tip block")
	}
	if !found {
		return errors.Errorf("block store missing recorded tip %d", count)
	}

	bc.height = count
	bc.cumulativeWork = work
	bc.tipHash = tip.HeaderHash()
	bc.currentDifficulty = tip.Difficulty
	return nil
}

// Height returns the current chain height.
func (bc *BlockChain) Height() uint64 {
	bc.mtx.Lock()
	defer bc.mtx.Unlock()
	return bc.height
}

// TipHash returns the current chain tip's header hash.
func (bc *BlockChain) TipHash() types.Hash {
	bc.mtx.Lock()
	defer bc.mtx.Unlock()
	return bc.tipHash
}

// CumulativeWork returns a copy of the current cumulative-work
// accumulator.
func (bc *BlockChain) CumulativeWork() *big.Int {
	bc.mtx.Lock()
	defer bc.mtx.Unlock()
	return new(big.Int).Set(bc.cumulativeWork)
}

// CurrentDifficulty returns the difficulty the next block must satisfy.
func (bc *BlockChain) CurrentDifficulty() uint8 {
	bc.mtx.Lock()
	defer bc.mtx.Unlock()
	return bc.currentDifficulty
}

// IsSyncing reports whether a sync run is currently in progress.
func (bc *BlockChain) IsSyncing() bool {
	bc.mtx.Lock()
	defer bc.mtx.Unlock()
	return bc.isSyncing
}

// HashAtHeight returns the stored block's header hash at height, used by
// StartChainSync's fork-point search.
func (bc *BlockChain) HashAtHeight(height uint64) (types.Hash, error) {
	bc.mtx.Lock()
	defer bc.mtx.Unlock()
	block, found, err := bc.blockStore.GetBlock(height)
	if err != nil {
		return types.Hash{}, errors.Wrap(err, "read block at height")
	}
	if !found {
		return types.Hash{}, errors.Errorf("no block at height %d", height)
	}
	return block.HeaderHash(), nil
}

// powHasher is the pluggable proof-of-work hash function; the real
// algorithm (Pufferfish in the original node) is an external
// collaborator. Tests and the default wiring both supply one.
var powHasher = func(b *types.Block) types.Hash {
	return b.HeaderHash()
}

// SetPoWHasher overrides the proof-of-work hash function used by
// verifyProofOfWork. Exposed for tests and for wiring in the real
// algorithm at startup.
func SetPoWHasher(f func(b *types.Block) types.Hash) {
	powHasher = f
}

func verifyProofOfWork(b *types.Block) bool {
	return types.VerifyProofOfWork(powHasher(b), b.Difficulty)
}

// AddBlock validates and applies a single block, mutating the Ledger,
// BlockStore, and TxStore atomically from the caller's point of view: on
// any validation or executor failure the ledger is rolled back and left
// byte-identical to its pre-call state.
func (bc *BlockChain) AddBlock(block *types.Block) types.Status {
	bc.mtx.Lock()
	defer bc.mtx.Unlock()
	return bc.addBlockLocked(block)
}

func (bc *BlockChain) addBlockLocked(block *types.Block) types.Status {
	if len(block.Transactions) > types.MaxTransactionsPerBlock {
		return types.StatusInvalidTransactionCount
	}
	if block.ID != bc.height+1 {
		return types.StatusInvalidBlockID
	}

	expectedDifficulty := bc.currentDifficulty
	if exception, ok := DifficultyException(block.ID); ok {
		expectedDifficulty = exception
	}
	if block.Difficulty != expectedDifficulty {
		return types.StatusInvalidDifficulty
	}

	if !verifyProofOfWork(block) {
		return types.StatusInvalidProofOfWork
	}

	if block.LastBlockHash != bc.tipHash {
		return types.StatusInvalidLastBlockHash
	}

	networkNow := time.Now()
	if bc.clock != nil {
		networkNow = bc.clock.NetworkTimestamp()
	}
	recent, err := bc.recentTimestampsLocked()
	if err != nil {
		log.Criticalf("failed to read recent timestamps: %+v", err)
		panic(err)
	}
	if status := VerifyTimestamp(block.ID, block.Timestamp, networkNow, bc.height, recent); status != types.StatusSuccess {
		return status
	}

	if merkle.ComputeRoot(block.TransactionHashes()) != block.MerkleRoot {
		return types.StatusInvalidMerkleRoot
	}

	delta := executor.NewDelta()
	reward := BlockReward(block.ID)
	status := executor.ApplyBlock(block, bc.ledger, bc.txStore, delta, reward)
	if status != types.StatusSuccess {
		if err := executor.Rollback(delta, bc.ledger); err != nil {
			log.Criticalf("rollback failed after rejected block %d: %+v", block.ID, err)
			panic(err)
		}
		bc.logRejection(block, status)
		return status
	}

	if err := bc.persistAcceptedBlockLocked(block); err != nil {
		log.Criticalf("persistence failed after applied block %d: %+v", block.ID, err)
		panic(err)
	}

	bc.tipHash = block.HeaderHash()
	bc.height = block.ID
	bc.cumulativeWork.Add(bc.cumulativeWork, workFor(block.Difficulty))
	bc.currentDifficulty = bc.nextDifficultyLocked(block)

	if err := bc.blockStore.SetBlockCount(bc.height); err != nil {
		log.Criticalf("failed to persist block count: %+v", err)
		panic(err)
	}
	if err := bc.blockStore.SetTotalWork(bc.cumulativeWork); err != nil {
		log.Criticalf("failed to persist total work: %+v", err)
		panic(err)
	}

	if bc.mempool != nil {
		bc.mempool.FinishBlock(block)
	}

	log.Infof("accepted block %d (%s)", block.ID, bc.tipHash)
	return types.StatusSuccess
}

func (bc *BlockChain) logRejection(block *types.Block, status types.Status) {
	if status == types.StatusBalanceTooLow && bc.invalidTxs != nil {
		for _, tx := range block.Transactions {
			if !tx.IsFee && bc.invalidTxs.IsKnownInvalid(block.ID, tx.From) {
				return
			}
		}
	}
	log.Warnf("rejected block %d: %s", block.ID, status)
}

func (bc *BlockChain) persistAcceptedBlockLocked(block *types.Block) error {
	if err := bc.blockStore.PutBlock(block); err != nil {
		return errors.Wrap(err, "put block")
	}
	for _, tx := range block.Transactions {
		hash := tx.Hash()
		if err := bc.txStore.PutBlockID(hash, block.ID); err != nil {
			return errors.Wrap(err, "index transaction")
		}
		if !tx.IsFee {
			if err := bc.blockStore.IndexWalletTransaction(tx.From, hash); err != nil {
				return errors.Wrap(err, "index wallet transaction (from)")
			}
		}
		if err := bc.blockStore.IndexWalletTransaction(tx.To, hash); err != nil {
			return errors.Wrap(err, "index wallet transaction (to)")
		}
	}
	return nil
}

func workFor(difficulty uint8) *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), uint(difficulty))
}

func (bc *BlockChain) nextDifficultyLocked(tip *types.Block) uint8 {
	if !ShouldRetarget(bc.height) {
		return bc.currentDifficulty
	}
	lookbackBlock, found, err := bc.blockStore.GetBlock(bc.height - DifficultyLookback)
	if err != nil || !found {
		return bc.currentDifficulty
	}
	elapsed := tip.Timestamp.Unix() - lookbackBlock.Timestamp.Unix()
	return Retarget(elapsed, bc.currentDifficulty)
}

func (bc *BlockChain) recentTimestampsLocked() ([]time.Time, error) {
	if bc.height == 0 {
		return nil, nil
	}
	n := uint64(medianWindow)
	if bc.height < n {
		n = bc.height
	}
	timestamps := make([]time.Time, 0, n)
	for i := uint64(0); i < n; i++ {
		block, found, err := bc.blockStore.GetBlock(bc.height - i)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		timestamps = append(timestamps, block.Timestamp)
	}
	return timestamps, nil
}

// PopBlock rolls back the current tip, reducing height by one. If
// height drops to zero, the chain is reset and genesis is re-ingested.
func (bc *BlockChain) PopBlock() error {
	bc.mtx.Lock()
	defer bc.mtx.Unlock()
	return bc.popBlockLocked()
}

func (bc *BlockChain) popBlockLocked() error {
	if bc.height == 0 {
		return errors.New("cannot pop: chain is uninitialised")
	}

	tip, found, err := bc.blockStore.GetBlock(bc.height)
	if err != nil {
		return errors.Wrap(err, "read tip block")
	}
	if !found {
		return errors.Errorf("missing stored block at height %d", bc.height)
	}
	miner, _ := tip.FeeTransaction()
	var minerWallet types.WalletAddress
	if miner != nil {
		minerWallet = miner.To
	}

	if err := executor.RollbackBlock(tip, bc.ledger, bc.txStore, minerWallet); err != nil {
		log.Criticalf("rollback block failed: %+v", err)
		panic(err)
	}
	for _, tx := range tip.Transactions {
		hash := tx.Hash()
		if !tx.IsFee {
			if err := bc.blockStore.UnindexWalletTransaction(tx.From, hash); err != nil {
				log.Criticalf("failed to unindex wallet transaction: %+v", err)
				panic(err)
			}
		}
		if err := bc.blockStore.UnindexWalletTransaction(tx.To, hash); err != nil {
			log.Criticalf("failed to unindex wallet transaction: %+v", err)
			panic(err)
		}
	}
	if err := bc.blockStore.DeleteBlock(bc.height); err != nil {
		log.Criticalf("failed to delete popped block: %+v", err)
		panic(err)
	}

	bc.cumulativeWork.Sub(bc.cumulativeWork, workFor(tip.Difficulty))
	if bc.cumulativeWork.Sign() < 0 {
		bc.cumulativeWork.SetInt64(0)
	}
	bc.height--

	if bc.height == 0 {
		return bc.resetChainLocked()
	}

	newTip, found, err := bc.blockStore.GetBlock(bc.height)
	if err != nil {
		return errors.Wrap(err, "read new tip block")
	}
	if !found {
		return errors.Errorf("missing stored block at new tip height %d", bc.height)
	}
	bc.tipHash = newTip.HeaderHash()
	bc.currentDifficulty = newTip.Difficulty

	if err := bc.blockStore.SetBlockCount(bc.height); err != nil {
		return errors.Wrap(err, "persist block count after pop")
	}
	if err := bc.blockStore.SetTotalWork(bc.cumulativeWork); err != nil {
		return errors.Wrap(err, "persist total work after pop")
	}
	return nil
}

// resetChainLocked clears every store and re-ingests genesis from the
// configured GenesisLoader.
func (bc *BlockChain) resetChainLocked() error {
	if err := bc.ledger.Clear(); err != nil {
		return errors.Wrap(err, "clear ledger")
	}
	if err := bc.blockStore.Clear(); err != nil {
		return errors.Wrap(err, "clear block store")
	}
	if err := bc.txStore.Clear(); err != nil {
		return errors.Wrap(err, "clear tx store")
	}

	bc.height = 0
	bc.tipHash = types.ZeroHash
	bc.cumulativeWork = big.NewInt(0)
	bc.currentDifficulty = MinDifficulty

	if bc.genesis == nil {
		return nil
	}
	genesisBlock, err := bc.genesis.LoadGenesis()
	if err != nil {
		return errors.Wrap(err, "load genesis")
	}
	status := bc.addBlockLocked(genesisBlock)
	if status != types.StatusSuccess {
		return errors.Errorf("failed to re-ingest genesis: %s", status)
	}
	return nil
}

// StartChainSync runs one periodic sync evaluation (spec §4.3): if
// already syncing or the best peer has no more work than the local
// chain, it is a no-op. Otherwise it walks the peer's headers to find
// the fork point, pops back past it plus a safety margin, and replays
// forward in BlocksPerFetch batches.
func (bc *BlockChain) StartChainSync() {
	bc.mtx.Lock()
	if bc.isSyncing {
		bc.mtx.Unlock()
		return
	}
	localWork := new(big.Int).Set(bc.cumulativeWork)
	localHeight := bc.height
	bc.mtx.Unlock()

	if bc.peers == nil {
		return
	}
	peer, ok := bc.peers.BestPeer()
	if !ok {
		return
	}
	if peer.TotalWork().Cmp(localWork) <= 0 {
		return
	}

	bc.mtx.Lock()
	bc.isSyncing = true
	bc.targetHeight = peer.ChainLength()
	bc.mtx.Unlock()

	err := bc.runSync(peer, localHeight)

	bc.mtx.Lock()
	bc.isSyncing = false
	if err != nil {
		bc.retryCount++
		log.Warnf("chain sync against %s failed: %+v (retry %d/%d)", peer.Address(), err, bc.retryCount, MaxSyncRetries)
		if bc.retryCount > MaxSyncRetries {
			bc.mtx.Unlock()
			panics.Exit(log, "chain sync retries exceeded")
			return
		}
	} else {
		bc.retryCount = 0
	}
	bc.mtx.Unlock()
}

func (bc *BlockChain) runSync(peer Peer, localHeight uint64) error {
	divergence, err := bc.findDivergence(peer, localHeight)
	if err != nil {
		return errors.Wrap(err, "find divergence")
	}

	if divergence > 0 {
		popTo := divergence - 1
		if popTo == 0 {
			popTo = 1
		}
		if err := bc.popToHeight(popTo); err != nil {
			return errors.Wrap(err, "pop to fork point")
		}
		if err := bc.popAdditional(ForkChainPopCount); err != nil {
			return errors.Wrap(err, "pop safety margin")
		}
	}

	for {
		height := bc.Height()
		if height >= peer.ChainLength() {
			break
		}
		blocks, err := peer.FetchBlocks(height+1, BlocksPerFetch)
		if err != nil {
			return errors.Wrap(err, "fetch blocks")
		}
		if len(blocks) == 0 {
			break
		}
		for _, block := range blocks {
			status := bc.AddBlock(block)
			if status != types.StatusSuccess {
				return errors.Errorf("add block %d during sync: %s", block.ID, status)
			}
		}
	}
	return nil
}

func (bc *BlockChain) findDivergence(peer Peer, localHeight uint64) (uint64, error) {
	for i := uint64(1); i <= localHeight; i++ {
		peerHash, err := peer.HeaderHash(i)
		if err != nil {
			return 0, errors.Wrapf(err, "peer header at height %d", i)
		}
		localHash, err := bc.HashAtHeight(i)
		if err != nil {
			return 0, errors.Wrapf(err, "local header at height %d", i)
		}
		if peerHash != localHash {
			return i, nil
		}
	}
	return 0, nil
}

func (bc *BlockChain) popToHeight(target uint64) error {
	for {
		height := bc.Height()
		if height <= target || height == 0 {
			return nil
		}
		if err := bc.PopBlock(); err != nil {
			return err
		}
	}
}

func (bc *BlockChain) popAdditional(count int) error {
	for i := 0; i < count; i++ {
		if bc.Height() == 0 {
			return nil
		}
		if err := bc.PopBlock(); err != nil {
			return err
		}
	}
	return nil
}

// VerifyTransaction is the pre-mempool / RPC dry-run validation path
// (spec §4.3.4): it rejects while syncing, rejects fee transactions and
// nonce mismatches outright, and otherwise dry-runs ApplyTransaction
// against a throwaway delta before immediately rolling it back.
func (bc *BlockChain) VerifyTransaction(tx *types.Transaction) types.Status {
	bc.mtx.Lock()
	defer bc.mtx.Unlock()

	if bc.isSyncing {
		return types.StatusIsSyncing
	}
	if tx.IsFee {
		return types.StatusExtraMiningFee
	}
	if err := tx.VerifySignature(); err != nil {
		return types.StatusInvalidSignature
	}

	expectedNonce, err := bc.ledger.GetNonce(tx.From)
	if err != nil {
		log.Criticalf("failed to read nonce: %+v", err)
		panic(err)
	}
	if tx.Nonce != expectedNonce {
		return types.StatusInvalidNonce
	}

	hash := tx.Hash()
	_, confirmed, err := bc.txStore.GetBlockID(hash)
	if err != nil {
		log.Criticalf("failed to read tx index: %+v", err)
		panic(err)
	}
	if confirmed {
		return types.StatusExpiredTransaction
	}

	delta := executor.NewDelta()
	status := executor.ApplyTransaction(tx, tx.To, bc.ledger, delta, BlockReward(bc.height+1), bc.height+1)
	if err := executor.Rollback(delta, bc.ledger); err != nil {
		log.Criticalf("dry-run rollback failed: %+v", err)
		panic(err)
	}
	if status == types.StatusSuccess && bc.height+1 != executor.GenesisBlockID {
		if err := bc.ledger.DecrementNonce(tx.From); err != nil {
			log.Criticalf("dry-run nonce revert failed: %+v", err)
			panic(err)
		}
	}
	return status
}

// BlockAt returns the stored block at height, for serving this node's
// inbound header/block-fetch endpoints.
func (bc *BlockChain) BlockAt(height uint64) (*types.Block, bool, error) {
	bc.mtx.Lock()
	defer bc.mtx.Unlock()
	return bc.blockStore.GetBlock(height)
}

// WalletBalance returns a wallet's current confirmed balance, part of
// the narrow view MemPool needs (spec §9).
func (bc *BlockChain) WalletBalance(wallet types.WalletAddress) (types.Amount, error) {
	return bc.ledger.GetBalance(wallet)
}

// WalletNonce returns a wallet's next expected nonce, part of the narrow
// view MemPool needs (spec §9).
func (bc *BlockChain) WalletNonce(wallet types.WalletAddress) (uint64, error) {
	return bc.ledger.GetNonce(wallet)
}
