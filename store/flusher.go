package store

import (
	"errors"
	"sync"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
)

var (
	flushedNodesMeter = metrics.NewRegisteredMeter("store/flusher/nodes", nil)
	flushFailCounter  = metrics.NewRegisteredCounter("store/flusher/failures", nil)
)

// ErrFlusherClosed is returned for writes after Close.
var ErrFlusherClosed = errors.New("flusher closed")

// Flusher decouples trie commits from durable writes. A commit stages nodes
// through PutNode and Dispatch enqueues them as one batch; a background
// goroutine writes batches to the database in commit order. Staged and
// in-flight nodes stay readable through GetNode until the database
// acknowledges them, so a crash of the collaborator loses no data that the
// engine still holds. Write failures are kept, surfaced through Sync and
// logged; they are never silently dropped.
type Flusher struct {
	db Database

	mu      sync.Mutex
	unacked *linkedhashmap.Map // common.Hash -> []byte, commit order
	staged  []Node
	lastErr error
	closed  bool

	queue    chan []Node
	wg       sync.WaitGroup
	idle     *sync.Cond
	inflight int
}

// NewFlusher starts a flusher in front of db. queueDepth bounds the number of
// batches waiting for the writer; Dispatch blocks when the writer falls that
// far behind.
func NewFlusher(db Database, queueDepth int) *Flusher {
	if queueDepth < 1 {
		queueDepth = 1
	}
	f := &Flusher{
		db:      db,
		unacked: linkedhashmap.New(),
		queue:   make(chan []Node, queueDepth),
	}
	f.idle = sync.NewCond(&f.mu)
	f.wg.Add(1)
	go f.run()
	return f
}

// PutNode stages one committed node. It implements trie.NodeWriter; the node
// becomes part of the batch sealed by the next Dispatch.
func (f *Flusher) PutNode(hash common.Hash, enc []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrFlusherClosed
	}
	cpy := common.CopyBytes(enc)
	f.unacked.Put(hash, cpy)
	f.staged = append(f.staged, Node{Hash: hash, Enc: cpy})
	return nil
}

// Dispatch seals the staged nodes into one batch and hands it to the writer.
// It returns once the batch is queued; durability is acknowledged later.
func (f *Flusher) Dispatch() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrFlusherClosed
	}
	batch := f.staged
	f.staged = nil
	if len(batch) == 0 {
		f.mu.Unlock()
		return nil
	}
	f.inflight++
	f.mu.Unlock()
	f.queue <- batch
	return nil
}

// GetNode serves reads. Staged and unacknowledged nodes take precedence over
// the database, so a node is reachable from the moment it is staged.
func (f *Flusher) GetNode(hash common.Hash) ([]byte, error) {
	f.mu.Lock()
	if enc, ok := f.unacked.Get(hash); ok {
		cpy := common.CopyBytes(enc.([]byte))
		f.mu.Unlock()
		return cpy, nil
	}
	f.mu.Unlock()
	return f.db.GetNode(hash)
}

// Sync blocks until every dispatched batch has been attempted and returns
// the most recent write failure, if any. Failed batches stay retained in
// memory.
func (f *Flusher) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for f.inflight > 0 {
		f.idle.Wait()
	}
	return f.lastErr
}

// Close dispatches anything still staged, waits for the writer to drain and
// shuts it down. The flusher rejects writes afterwards.
func (f *Flusher) Close() error {
	f.Dispatch()
	err := f.Sync()
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return err
	}
	f.closed = true
	f.mu.Unlock()
	close(f.queue)
	f.wg.Wait()
	return err
}

func (f *Flusher) run() {
	defer f.wg.Done()
	for batch := range f.queue {
		err := f.db.PutNodes(batch)
		if err != nil {
			log.Error("Trie node flush failed", "nodes", len(batch), "err", err)
		}
		f.mu.Lock()
		if err != nil {
			// Keep the nodes retained: they are still served from memory
			// and the operator decides how to recover.
			f.lastErr = err
			flushFailCounter.Inc(1)
		} else {
			for _, n := range batch {
				f.unacked.Remove(n.Hash)
			}
			flushedNodesMeter.Mark(int64(len(batch)))
		}
		f.inflight--
		f.idle.Broadcast()
		f.mu.Unlock()
	}
}

// Unacked reports how many nodes await acknowledgment, staged ones included.
func (f *Flusher) Unacked() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unacked.Size()
}
