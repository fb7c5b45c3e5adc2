package hostmanager

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sabledatanetworks/pandanite-node/blockchain"
	"github.com/sabledatanetworks/pandanite-node/mempool"
	"github.com/sabledatanetworks/pandanite-node/types"
	"github.com/sabledatanetworks/pandanite-node/version"
)

// ChainReader is the narrow view Server needs from BlockChain to answer
// "/headers" and "/blocks" requests.
type ChainReader interface {
	Height() uint64
	HashAtHeight(height uint64) (types.Hash, error)
}

// BlockReader additionally exposes full block bodies, used by "/blocks".
type BlockReader interface {
	ChainReader
	BlockAt(height uint64) (*types.Block, bool, error)
}

// Server is this node's inbound HTTP peer surface (spec §6's peer
// announcement contract, served rather than just consumed). It is built
// on gorilla/mux, matching the router the rest of the example pack's
// HTTP-facing services use.
type Server struct {
	router  *mux.Router
	host    *HostManager
	chain   BlockReader
	pool    *mempool.MemPool
	network string
}

// NewServer wires handlers for every endpoint this node's peers call:
// "/name" (identity probe), "/peers" (announcement), "/headers" and
// "/blocks" (sync), and "/transactions" (gossip).
func NewServer(host *HostManager, chain BlockReader, pool *mempool.MemPool, network string) *Server {
	s := &Server{router: mux.NewRouter(), host: host, chain: chain, pool: pool, network: network}
	s.router.HandleFunc("/name", s.handleName).Methods(http.MethodGet)
	s.router.HandleFunc("/peers", s.handlePeerAnnounce).Methods(http.MethodPost)
	s.router.HandleFunc("/headers", s.handleHeaders).Methods(http.MethodGet)
	s.router.HandleFunc("/blocks", s.handleBlocks).Methods(http.MethodGet)
	s.router.HandleFunc("/transactions", s.handleTransaction).Methods(http.MethodPost)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleName(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, version.Info{
		Version: version.Semver,
		Network: s.network,
		Height:  s.chain.Height(),
	})
}

type peerAnnouncement struct {
	Address string `json:"address"`
	Version string `json:"version"`
}

func (s *Server) handlePeerAnnounce(w http.ResponseWriter, r *http.Request) {
	var a peerAnnouncement
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	s.host.AddPeer(a.Address, time.Now(), a.Version, s.network)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleHeaders(w http.ResponseWriter, r *http.Request) {
	from, count := parseFromCount(r, BlockHeadersPerFetch)
	height := s.chain.Height()

	headers := make([]wireHeader, 0, count)
	for id := from; id <= height && len(headers) < count; id++ {
		block, found, err := s.chain.BlockAt(id)
		if err != nil || !found {
			break
		}
		headers = append(headers, wireHeader{
			ID:            block.ID,
			Timestamp:     block.Timestamp.Unix(),
			Difficulty:    block.Difficulty,
			LastBlockHash: block.LastBlockHash.String(),
			MerkleRoot:    block.MerkleRoot.String(),
			Nonce:         block.Nonce,
		})
	}
	writeJSON(w, headers)
}

func (s *Server) handleBlocks(w http.ResponseWriter, r *http.Request) {
	from, count := parseFromCount(r, blockchain.BlocksPerFetch)
	height := s.chain.Height()

	blocks := make([]wireBlock, 0, count)
	for id := from; id <= height && len(blocks) < count; id++ {
		block, found, err := s.chain.BlockAt(id)
		if err != nil || !found {
			break
		}
		blocks = append(blocks, blockToWire(block))
	}
	writeJSON(w, blocks)
}

func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	var wt wireTransaction
	if err := json.NewDecoder(r.Body).Decode(&wt); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	tx, err := wireToTransaction(wt)
	if err != nil {
		http.Error(w, "bad transaction", http.StatusBadRequest)
		return
	}
	status := s.pool.AddTransaction(tx)
	if status != types.StatusSuccess {
		http.Error(w, status.String(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func blockToWire(b *types.Block) wireBlock {
	txs := make([]wireTransaction, 0, len(b.Transactions))
	for _, tx := range b.Transactions {
		wt := wireTransaction{
			From:      tx.From.String(),
			To:        tx.To.String(),
			Amount:    uint64(tx.Amount),
			Fee:       uint64(tx.Fee),
			Timestamp: tx.Timestamp.Unix(),
			Nonce:     tx.Nonce,
			IsFee:     tx.IsFee,
		}
		txs = append(txs, wt)
	}
	return wireBlock{
		wireHeader: wireHeader{
			ID:            b.ID,
			Timestamp:     b.Timestamp.Unix(),
			Difficulty:    b.Difficulty,
			LastBlockHash: b.LastBlockHash.String(),
			MerkleRoot:    b.MerkleRoot.String(),
			Nonce:         b.Nonce,
		},
		Transactions: txs,
	}
}

func parseFromCount(r *http.Request, maxCount int) (uint64, int) {
	from, _ := strconv.ParseUint(r.URL.Query().Get("from"), 10, 64)
	if from == 0 {
		from = 1
	}
	count, err := strconv.Atoi(r.URL.Query().Get("count"))
	if err != nil || count <= 0 || count > maxCount {
		count = maxCount
	}
	return from, count
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
