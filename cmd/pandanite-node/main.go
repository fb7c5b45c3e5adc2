// Command pandanite-node runs a single peer-to-peer proof-of-work node:
// chain manager, mempool, and host manager wired together behind an
// inbound HTTP peer surface.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sabledatanetworks/pandanite-node/blockchain"
	"github.com/sabledatanetworks/pandanite-node/config"
	"github.com/sabledatanetworks/pandanite-node/hostmanager"
	"github.com/sabledatanetworks/pandanite-node/invalidtx"
	"github.com/sabledatanetworks/pandanite-node/ledger"
	"github.com/sabledatanetworks/pandanite-node/logger"
	"github.com/sabledatanetworks/pandanite-node/mempool"
	"github.com/sabledatanetworks/pandanite-node/panics"
	"github.com/sabledatanetworks/pandanite-node/store"
)

var log = logger.Node()

// node is a wrapper for every long-lived service this process runs, in
// the style of daglabs-btcd's top-level kaspad struct.
type node struct {
	cfg *config.Config

	ledgerStore *store.LevelLedgerStore
	blockStore  *store.LevelBlockStore
	txStore     *store.LevelTxStore

	ledger *ledger.Ledger
	chain  *blockchain.BlockChain
	pool   *mempool.MemPool
	host   *hostmanager.HostManager
	server *http.Server

	started, shutdown int32
}

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse configuration: %+v\n", err)
		os.Exit(1)
	}

	logFile, errLogFile := cfg.LogFileNames()
	logger.InitLogRotators(logFile, errLogFile)
	logger.SetLogLevels(cfg.LogLevel)

	spawn := panics.GoroutineWrapperFunc(log)

	n, err := newNode(cfg)
	if err != nil {
		log.Criticalf("failed to initialize node: %+v", err)
		os.Exit(1)
	}

	n.start(spawn)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt

	n.stop()
}

func newNode(cfg *config.Config) (*node, error) {
	ledgerStore, err := store.NewLevelLedgerStore(filepath.Join(cfg.DataDir, "ledger"))
	if err != nil {
		return nil, err
	}
	blockStore, err := store.NewLevelBlockStore(filepath.Join(cfg.DataDir, "blocks"))
	if err != nil {
		return nil, err
	}
	txStore, err := store.NewLevelTxStore(filepath.Join(cfg.DataDir, "txs"))
	if err != nil {
		return nil, err
	}

	ldgr := ledger.New(ledgerStore)

	var invalidTxs *invalidtx.Table
	if cfg.InvalidTxFile != "" {
		invalidTxs, err = invalidtx.Load(cfg.InvalidTxFile)
		if err != nil {
			return nil, err
		}
	} else {
		invalidTxs = invalidtx.Empty()
	}

	blacklist, err := hostmanager.LoadHostFile(cfg.BlacklistFile)
	if err != nil {
		return nil, err
	}
	whitelist, err := hostmanager.LoadHostFile(cfg.WhitelistFile)
	if err != nil {
		return nil, err
	}

	host := hostmanager.New(cfg.Network, cfg.MinHostVersion, blacklist, whitelist)
	host.SetHostSources(cfg.Seeds)

	genesisLoader := blockchain.NewFileGenesisLoader(cfg.GenesisFile)
	if _, err := genesisLoader.LoadGenesis(); err != nil {
		return nil, err
	}
	host.SetCheckpointsAndBans(genesisLoader.Checkpoints, genesisLoader.BannedHashes)

	chain := blockchain.New(blockchain.Config{
		Ledger:     ldgr,
		BlockStore: blockStore,
		TxStore:    txStore,
		Peers:      host,
		Clock:      host,
		Genesis:    genesisLoader,
		InvalidTxs: invalidTxs,
	})

	pool := mempool.New(chain, host)
	chain.RegisterMempool(pool)

	server := hostmanager.NewServer(host, chain, pool, cfg.Network)

	return &node{
		cfg:         cfg,
		ledgerStore: ledgerStore,
		blockStore:  blockStore,
		txStore:     txStore,
		ledger:      ldgr,
		chain:       chain,
		pool:        pool,
		host:        host,
		server:      &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: server},
	}, nil
}

// start launches every background service. Already-started calls are a
// no-op, mirroring daglabs-btcd's kaspad.start guard.
func (n *node) start(spawn func(func())) {
	if atomic.AddInt32(&n.started, 1) != 1 {
		return
	}

	if err := n.chain.LoadFromStores(); err != nil {
		log.Criticalf("failed to load chain state: %+v", err)
		panic(err)
	}

	n.pool.Start()
	if !n.cfg.Firewall {
		n.host.Start()
		spawn(n.host.RefreshHostList)
	}
	spawn(n.runChainSyncLoop)

	spawn(func() {
		log.Infof("inbound peer surface listening on %s", n.server.Addr)
		if err := n.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Criticalf("inbound server failed: %+v", err)
		}
	})
}

func (n *node) runChainSyncLoop() {
	ticker := time.NewTicker(blockchain.ChainSyncInterval)
	defer ticker.Stop()
	for range ticker.C {
		n.chain.StartChainSync()
	}
}

// stop gracefully shuts every service down. Already-stopped calls are a
// no-op.
func (n *node) stop() {
	if atomic.AddInt32(&n.shutdown, 1) != 1 {
		log.Infof("node is already shutting down")
		return
	}

	log.Warnf("node shutting down")

	n.pool.Stop()
	if !n.cfg.Firewall {
		n.host.Stop()
	}
	if err := n.server.Close(); err != nil {
		log.Errorf("error closing inbound server: %+v", err)
	}
	n.ledgerStore.Close()
	n.blockStore.Close()
	n.txStore.Close()
}
