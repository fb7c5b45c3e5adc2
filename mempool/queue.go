package mempool

import (
	"sort"

	"github.com/sabledatanetworks/pandanite-node/types"
)

// entry pairs a queued transaction with its cached hash, the sort key
// for FinishBlock/cleanup membership tests.
type entry struct {
	tx   *types.Transaction
	hash types.Hash
}

// queue is the mempool's ordered transaction set: fee descending, ties
// broken by hash ascending (spec §4.4). It is a plain sorted slice, not a
// heap, since AddTransaction needs full in-order iteration for gossip and
// the pool is bounded at MaxQueueSize (24999) entries.
type queue struct {
	items  []entry
	byHash map[types.Hash]int
}

func newQueue() *queue {
	return &queue{byHash: make(map[types.Hash]int)}
}

func less(a, b entry) bool {
	if a.tx.Fee != b.tx.Fee {
		return a.tx.Fee > b.tx.Fee
	}
	return a.hash.Less(b.hash)
}

// contains reports whether hash is already queued.
func (q *queue) contains(hash types.Hash) bool {
	_, ok := q.byHash[hash]
	return ok
}

// len returns the number of queued transactions.
func (q *queue) len() int {
	return len(q.items)
}

// insert adds tx in sorted position. Callers must ensure it is not
// already present.
func (q *queue) insert(tx *types.Transaction) types.Hash {
	hash := tx.Hash()
	e := entry{tx: tx, hash: hash}
	i := sort.Search(len(q.items), func(i int) bool { return !less(q.items[i], e) })
	q.items = append(q.items, entry{})
	copy(q.items[i+1:], q.items[i:])
	q.items[i] = e
	q.reindexFrom(i)
	return hash
}

// remove deletes the entry with the given hash, if present.
func (q *queue) remove(hash types.Hash) {
	i, ok := q.byHash[hash]
	if !ok {
		return
	}
	q.items = append(q.items[:i], q.items[i+1:]...)
	delete(q.byHash, hash)
	q.reindexFrom(i)
}

func (q *queue) reindexFrom(start int) {
	for i := start; i < len(q.items); i++ {
		q.byHash[q.items[i].hash] = i
	}
}

// ordered returns the queue's transactions in fee-desc/hash-asc order.
// The returned slice is a snapshot; callers must not mutate the
// underlying transactions concurrently with further queue mutation.
func (q *queue) ordered() []*types.Transaction {
	out := make([]*types.Transaction, len(q.items))
	for i, e := range q.items {
		out[i] = e.tx
	}
	return out
}

// hashes returns every queued transaction's hash, snapshot semantics as
// ordered.
func (q *queue) hashes() []types.Hash {
	out := make([]types.Hash, len(q.items))
	for i, e := range q.items {
		out[i] = e.hash
	}
	return out
}
