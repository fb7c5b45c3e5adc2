// Package hostmanager implements the peer set and best-peer selection
// described in spec §4.5: known-host bookkeeping, freshness-weighted
// peer sampling, and the header-chain attachments driving chain sync.
package hostmanager

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sabledatanetworks/pandanite-node/blockchain"
	"github.com/sabledatanetworks/pandanite-node/logger"
	"github.com/sabledatanetworks/pandanite-node/mempool"
	"github.com/sabledatanetworks/pandanite-node/types"
)

var _ blockchain.PeerSource = (*HostManager)(nil)
var _ blockchain.NetworkClock = (*HostManager)(nil)

var log = logger.HostManager()

// Wire constants (spec §4.5, §6).
const (
	RandomGoodHostCount = 9
	AddPeerBranchFactor = 10
	PeerPingInterval    = 5 * time.Minute
	HeaderStatsInterval = 30 * time.Second
)

// nameResponse is the "/name" probe collaborator's reply: a version
// field is the entire success criterion (spec §9 open question,
// resolved this way for this node).
type nameResponse struct {
	Version string `json:"version"`
	Network string `json:"network"`
	Height  uint64 `json:"height"`
}

// HostManager tracks known peers and the subset actively syncing
// headers. All mutable state is guarded by mtx; network I/O happens
// outside the lock.
type HostManager struct {
	mtx sync.Mutex

	network        string
	minHostVersion string
	blacklist      HostSet
	whitelist      HostSet
	checkpoints    map[uint64]types.Hash
	bannedHashes   map[types.Hash]bool

	hosts        []string
	records      map[string]*PeerRecord
	currentPeers []*HTTPHeaderChain

	hostSources []string

	client *http.Client

	shutdown chan struct{}
	wg       sync.WaitGroup
	now      func() time.Time
}

// New constructs an empty HostManager for the given network name and
// minimum accepted peer version.
func New(network, minHostVersion string, blacklist, whitelist HostSet) *HostManager {
	return &HostManager{
		network:        network,
		minHostVersion: minHostVersion,
		blacklist:      blacklist,
		whitelist:      whitelist,
		records:        make(map[string]*PeerRecord),
		client:         &http.Client{Timeout: peerHTTPTimeout},
		shutdown:       make(chan struct{}),
		now:            time.Now,
	}
}

// SetHostSources configures the URLs RefreshHostList polls for peer
// lists.
func (h *HostManager) SetHostSources(sources []string) {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	h.hostSources = sources
}

// SetCheckpointsAndBans configures the consensus checkpoint/banned-hash
// tables consulted by attached HeaderChains, normally sourced from the
// genesis bundle (spec §9).
func (h *HostManager) SetCheckpointsAndBans(checkpoints map[uint64]types.Hash, banned map[types.Hash]bool) {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	h.checkpoints = checkpoints
	h.bannedHashes = banned
}

// Start launches the peer-ping and header-stats background tasks.
func (h *HostManager) Start() {
	h.wg.Add(2)
	go h.pingLoop()
	go h.statsLoop()
}

// Stop signals both background loops to exit and waits for them.
func (h *HostManager) Stop() {
	close(h.shutdown)
	h.wg.Wait()
}

// compareVersions compares two dotted numeric version strings
// component-wise, returning -1, 0, or 1. Non-numeric or short
// components are treated as 0.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		var av, bv int
		if i < len(as) {
			av, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bv, _ = strconv.Atoi(bs[i])
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}

func versionLess(a, b string) bool {
	if b == "" {
		return false
	}
	return compareVersions(a, b) < 0
}

// AddPeer admits addr as a known host (spec §4.5). It rejects network
// mismatches, stale versions, and blacklisted hosts; an already-known
// host just has its freshness refreshed.
func (h *HostManager) AddPeer(addr string, peerTs time.Time, peerVersion, peerNetwork string) bool {
	addr = normalizeHost(addr)

	if peerNetwork != h.network {
		return false
	}
	if versionLess(peerVersion, h.minHostVersion) {
		return false
	}

	h.mtx.Lock()
	if h.blacklist.Contains(addr) {
		h.mtx.Unlock()
		return false
	}
	if rec, known := h.records[addr]; known {
		now := h.now()
		rec.LastPing = now
		rec.ClockDelta = now.Sub(peerTs)
		h.mtx.Unlock()
		return true
	}
	h.mtx.Unlock()

	if isHTTPScheme(addr) {
		if !h.probeReachable(addr) {
			return false
		}
	}
	if len(h.whitelist) > 0 && !h.whitelist.Contains(addr) {
		return false
	}

	h.mtx.Lock()
	rec := &PeerRecord{
		Address:    addr,
		Version:    peerVersion,
		Network:    peerNetwork,
		LastPing:   h.now(),
		ClockDelta: h.now().Sub(peerTs),
	}
	h.records[addr] = rec
	h.hosts = append(h.hosts, addr)
	if len(h.currentPeers) < RandomGoodHostCount && isHTTPScheme(addr) {
		h.currentPeers = append(h.currentPeers, NewHTTPHeaderChain(addr, h.checkpoints, h.bannedHashes))
	}
	announce := h.sampleAddressesLocked(AddPeerBranchFactor, addr)
	h.mtx.Unlock()

	for _, peer := range announce {
		go h.announcePeer(peer, addr, peerVersion)
	}
	return true
}

func (h *HostManager) probeReachable(addr string) bool {
	info, ok := h.fetchName(addr)
	return ok && info.Version != ""
}

func (h *HostManager) announcePeer(target, newAddr, newVersion string) {
	ctx, cancel := context.WithTimeout(context.Background(), peerHTTPTimeout)
	defer cancel()
	payload, _ := json.Marshal(map[string]string{"address": newAddr, "version": newVersion})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target+"/peers", bytes.NewReader(payload))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		log.Debugf("announce to %s failed: %v", target, err)
		return
	}
	resp.Body.Close()
}

// NetworkTimestamp estimates the network's clock (spec §4.5): the local
// time plus the median clock delta of every fresh peer, or local time
// unmodified if no peer is fresh.
func (h *HostManager) NetworkTimestamp() time.Time {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	now := h.now()
	var deltas []time.Duration
	for _, rec := range h.records {
		if rec.IsFresh(now) {
			deltas = append(deltas, rec.ClockDelta)
		}
	}
	if len(deltas) == 0 {
		return now
	}
	return now.Add(medianDuration(deltas))
}

func medianDuration(ds []time.Duration) time.Duration {
	sorted := make([]time.Duration, len(ds))
	copy(sorted, ds)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// BestPeer returns the currently-attached peer reporting the highest
// chain length, ties broken by iteration order (spec §4.5). It
// implements blockchain.PeerSource.
func (h *HostManager) BestPeer() (blockchain.Peer, bool) {
	h.mtx.Lock()
	peers := append([]*HTTPHeaderChain(nil), h.currentPeers...)
	h.mtx.Unlock()

	var best *HTTPHeaderChain
	var bestLen uint64
	for _, p := range peers {
		l := p.ChainLength()
		if best == nil || l > bestLen {
			best = p
			bestLen = l
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}

// SampleFreshHosts ranks fresh peers by reported block height
// descending and returns the top n as GossipPeer handles (spec §4.5),
// excluding non-HTTP schemes.
func (h *HostManager) SampleFreshHosts(n int) []mempool.GossipPeer {
	h.mtx.Lock()
	now := h.now()
	var freshAddrs []string
	for addr, rec := range h.records {
		if rec.IsFresh(now) && isHTTPScheme(addr) {
			freshAddrs = append(freshAddrs, addr)
		}
	}
	client := h.client
	h.mtx.Unlock()

	type scored struct {
		addr   string
		height uint64
	}
	scoredPeers := make([]scored, 0, len(freshAddrs))
	for _, addr := range freshAddrs {
		peer := &httpGossipPeer{addr: addr, client: client}
		height, err := peer.BlockHeight()
		if err != nil {
			continue
		}
		scoredPeers = append(scoredPeers, scored{addr: addr, height: height})
	}
	sort.Slice(scoredPeers, func(i, j int) bool { return scoredPeers[i].height > scoredPeers[j].height })

	if n > len(scoredPeers) {
		n = len(scoredPeers)
	}
	out := make([]mempool.GossipPeer, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &httpGossipPeer{addr: scoredPeers[i].addr, client: client})
	}
	return out
}

func (h *HostManager) sampleAddressesLocked(n int, exclude string) []string {
	var candidates []string
	for _, addr := range h.hosts {
		if addr == exclude {
			continue
		}
		candidates = append(candidates, addr)
	}
	if n > len(candidates) {
		n = len(candidates)
	}
	return candidates[:n]
}

// RefreshHostList polls each configured host source for a peer list,
// unions the results, and probes each unknown, non-blacklisted host for
// admission (spec §4.5).
func (h *HostManager) RefreshHostList() {
	h.mtx.Lock()
	sources := append([]string(nil), h.hostSources...)
	h.mtx.Unlock()

	discovered := make(map[string]bool)
	for _, src := range sources {
		for _, addr := range h.fetchPeerList(src) {
			discovered[normalizeHost(addr)] = true
		}
	}

	var wg sync.WaitGroup
	for addr := range discovered {
		h.mtx.Lock()
		_, known := h.records[addr]
		blacklisted := h.blacklist.Contains(addr)
		h.mtx.Unlock()
		if known || blacklisted {
			continue
		}
		addr := addr
		wg.Add(1)
		go func() {
			defer wg.Done()
			info, ok := h.fetchName(addr)
			if !ok {
				return
			}
			h.AddPeer(addr, h.now(), info.Version, info.Network)
		}()
	}
	wg.Wait()
}

func (h *HostManager) fetchPeerList(src string) []string {
	ctx, cancel := context.WithTimeout(context.Background(), peerHTTPTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil
	}
	var addrs []string
	if err := json.Unmarshal(body, &addrs); err != nil {
		return nil
	}
	return addrs
}

func (h *HostManager) fetchName(addr string) (nameResponse, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), peerHTTPTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr+"/name", nil)
	if err != nil {
		return nameResponse{}, false
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nameResponse{}, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nameResponse{}, false
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nameResponse{}, false
	}
	var parsed nameResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nameResponse{}, false
	}
	return parsed, true
}

// SyncHeadersWithPeers replaces currentPeers with a fresh random sample
// of up to RandomGoodHostCount from the fresh-peer set (spec §4.5),
// each beginning its own header download.
func (h *HostManager) SyncHeadersWithPeers() {
	h.mtx.Lock()
	now := h.now()
	var fresh []string
	for addr, rec := range h.records {
		if rec.IsFresh(now) && isHTTPScheme(addr) {
			fresh = append(fresh, addr)
		}
	}
	rand.Shuffle(len(fresh), func(i, j int) { fresh[i], fresh[j] = fresh[j], fresh[i] })
	if len(fresh) > RandomGoodHostCount {
		fresh = fresh[:RandomGoodHostCount]
	}
	checkpoints := h.checkpoints
	banned := h.bannedHashes
	peers := make([]*HTTPHeaderChain, 0, len(fresh))
	for _, addr := range fresh {
		peers = append(peers, NewHTTPHeaderChain(addr, checkpoints, banned))
	}
	h.currentPeers = peers
	h.mtx.Unlock()

	for _, p := range peers {
		p := p
		go func() {
			if err := p.DownloadHeaders(); err != nil {
				log.Warnf("initial header download from %s failed: %v", p.Host(), err)
			}
		}()
	}
}

func (h *HostManager) pingLoop() {
	defer h.wg.Done()
	ticker := time.NewTicker(PeerPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.shutdown:
			return
		case <-ticker.C:
			h.pingAll()
		}
	}
}

func (h *HostManager) pingAll() {
	h.mtx.Lock()
	addrs := append([]string(nil), h.hosts...)
	h.mtx.Unlock()

	for _, addr := range addrs {
		addr := addr
		go func() {
			if _, ok := h.fetchName(addr); !ok {
				return
			}
			h.mtx.Lock()
			if rec, known := h.records[addr]; known {
				rec.LastPing = h.now()
			}
			h.mtx.Unlock()
		}()
	}
}

func (h *HostManager) statsLoop() {
	defer h.wg.Done()
	ticker := time.NewTicker(HeaderStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.shutdown:
			return
		case <-ticker.C:
			h.logStats()
		}
	}
}

func (h *HostManager) logStats() {
	h.mtx.Lock()
	peers := append([]*HTTPHeaderChain(nil), h.currentPeers...)
	h.mtx.Unlock()

	for _, p := range peers {
		log.Infof("peer %s downloaded=%d length=%d", p.Host(), p.CurrentDownloaded(), p.ChainLength())
	}
}
