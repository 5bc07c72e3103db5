package blockcache

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Mode is a bitfield describing how a reference acquired by [Cache.Get]
// will be used.
type Mode uint8

const (
	// ModeNew returns the block without reading it: the contents are
	// zeroed and marked up to date, forgetting any existing contents.
	ModeNew Mode = 1 << iota

	// ModeRead acquires a reference that will not be modified.
	ModeRead

	// ModeWrite acquires a reference with intent to write. The block
	// contents are only modified within DirtyBegin/DirtyEnd.
	ModeWrite
)

// ModeRead and ModeWrite are mutually exclusive.
const modeRWExcl = ModeRead | ModeWrite

// Options configures a [Cache].
type Options struct {
	// Transport moves blocks to and from persistent storage.
	// Required. The cache starts it and owns its shutdown.
	Transport Transport

	// Log receives debug events at the cache's trace points. Defaults
	// to a no-op logger.
	Log *zerolog.Logger
}

// Stats is a snapshot of the cache's pipeline counters, exposed for
// introspection tooling.
type Stats struct {
	NrDirty      int64
	NrWriteback  int64
	NrSubmitted  int64
	DirtySeq     uint64
	WritebackSeq uint64
	SyncSeq      uint64
}

// Cache is the client-side block cache. Create one with [New]; it is
// ready for concurrent use until [Cache.Destroy].
type Cache struct {
	tr         Transport
	log        zerolog.Logger
	queueDepth int

	nrDirty     atomic.Int64
	nrWriteback atomic.Int64
	nrSubmitted atomic.Int64

	// syncWaiters counts sync waiter shares in its upper bits; the low
	// bit latches IO errors for all current waiters.
	syncWaiters atomic.Int64

	dirtySeq     atomic.Uint64
	writebackSeq atomic.Uint64
	syncSeq      atomic.Uint64

	idx          blockIndex
	submitIntake blockIntake
	wbIntake     setIntake

	// pendingSubmit counts blocks sitting in the submit intake or the
	// worker's private FIFO, so kickers can tell whether the worker
	// has work without peeking at its private state.
	pendingSubmit atomic.Int64

	submitWake chan struct{}
	wbWake     chan struct{}
	quit       chan struct{}
	wg         sync.WaitGroup

	// waitq parks sync callers and dirty-limit admission waits.
	waitq waitQueue

	down atomic.Bool
}

// New sets up a cache over the given transport and starts its submit
// and writeback workers.
func New(opts Options) (*Cache, error) {
	if opts.Transport == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidMode)
	}

	c := &Cache{
		tr:         opts.Transport,
		log:        zerolog.Nop(),
		submitWake: make(chan struct{}, 1),
		wbWake:     make(chan struct{}, 1),
		quit:       make(chan struct{}),
	}
	if opts.Log != nil {
		c.log = *opts.Log
	}

	if err := c.tr.Start(c); err != nil {
		return nil, fmt.Errorf("starting transport: %w", err)
	}

	c.queueDepth = c.tr.QueueDepth()
	if c.queueDepth <= 0 {
		c.tr.Shutdown()
		c.tr.Destroy()

		return nil, fmt.Errorf("%w: transport queue depth %d", ErrInvalidMode, c.queueDepth)
	}

	c.wg.Add(2)
	go c.submitWorker()
	go c.writebackWorker()

	return c, nil
}

// Destroy tears the cache down: it shuts the transport so no more
// completions arrive, stops the workers, and drains the index. Safe
// only after all external submitters have ceased; idempotent.
func (c *Cache) Destroy() {
	if !c.down.CompareAndSwap(false, true) {
		return
	}

	c.tr.Shutdown()

	close(c.quit)
	c.wg.Wait()

	c.tr.Destroy()

	c.idx.drain(func(bl *Block) {
		bl.put() // index presence
		if refs := bl.refs.Load(); refs != 0 {
			c.log.Warn().Uint64("bnr", bl.bnr).Int64("refs", refs).
				Msg("block leaked references at destroy")
		}
	})
}

// Get acquires a reference to the cached block bnr. The behaviour of
// the reference is described by mode. Successfully acquired references
// must later be released with [Cache.Put].
func (c *Cache) Get(bnr uint64, mode Mode) (*Block, error) {
	if mode&modeRWExcl == modeRWExcl {
		return nil, fmt.Errorf("%w: read and write both set", ErrInvalidMode)
	}

	if c.down.Load() {
		return nil, ErrShutdown
	}

	bl := c.idx.lookupOrInsert(bnr)

	if mode&ModeNew != 0 {
		// Serialize against an in-flight read so the page swap on
		// completion cannot race the zeroing; the new contents
		// always win.
		bl.waitq.waitFor(func() bool { return !bl.testBit(blReading) })

		clear(bl.page)
		bl.ioErr = nil
		bl.bits.And(^blError)
		bl.bits.Or(blUptodate)
	}

	if !bl.testBit(blUptodate) {
		if !bl.testAndSetBit(blReading) {
			bl.ref() // intake presence until the submit worker hands off
			c.pushSubmit(bl)
			c.kickSubmit()
		}

		bl.waitq.waitFor(func() bool { return !bl.testBit(blReading) })
	}

	if bl.testBit(blError) {
		err := bl.ioErr
		// Drop the entry so later lookups allocate fresh and retry.
		c.idx.remove(bl)
		bl.put()

		return nil, fmt.Errorf("%w: block %d: %v", ErrIO, bnr, err)
	}

	return bl, nil
}

// Put releases a reference returned by [Cache.Get]. Put of a nil block
// is a no-op.
func (c *Cache) Put(bl *Block) {
	bl.put()
}

// Stats returns a snapshot of the pipeline counters.
func (c *Cache) Stats() Stats {
	return Stats{
		NrDirty:      c.nrDirty.Load(),
		NrWriteback:  c.nrWriteback.Load(),
		NrSubmitted:  c.nrSubmitted.Load(),
		DirtySeq:     c.dirtySeq.Load(),
		WritebackSeq: c.writebackSeq.Load(),
		SyncSeq:      c.syncSeq.Load(),
	}
}

// kick wakes a worker if it may be sleeping. The buffered channel
// coalesces kicks; a full buffer means a wake is already pending.
func kick(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// pushSubmit queues bl for the submit pipeline. The caller has taken
// the intake presence reference.
func (c *Cache) pushSubmit(bl *Block) {
	c.pendingSubmit.Add(1)
	c.submitIntake.push(bl)
}

func (c *Cache) kickSubmit() {
	if c.pendingSubmit.Load() > 0 && c.nrSubmitted.Load() < int64(c.queueDepth) {
		kick(c.submitWake)
	}
}

func (c *Cache) kickWriteback() {
	if c.shouldWriteback() {
		kick(c.wbWake)
	}
}
