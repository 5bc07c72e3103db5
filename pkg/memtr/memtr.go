// Package memtr provides an in-memory block transport.
//
// It backs the block cache with a plain map of block contents and
// delivers completions asynchronously from its own goroutine, like a
// real transport would. Test hooks allow injecting per-block IO errors,
// holding completions back to observe intermediate cache states, and
// recording submission order.
package memtr

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/versity/ngnfs-go/pkg/blockcache"
)

// DefaultQueueDepth is used when Options.QueueDepth is zero.
const DefaultQueueDepth = 64

// Options configures a [Transport].
type Options struct {
	// QueueDepth is the advertised submission budget. Defaults to
	// [DefaultQueueDepth].
	QueueDepth int

	// Log receives debug events. Defaults to a no-op logger.
	Log *zerolog.Logger
}

// Submission records one submitted op, in order, when recording is
// enabled.
type Submission struct {
	Op  blockcache.Op
	Bnr uint64
}

type completion struct {
	bnr  uint64
	page blockcache.Page
	err  error
}

// Transport is an in-memory [blockcache.Transport]. Blocks that were
// never written read back as zeroes, like a fresh device.
type Transport struct {
	depth int
	log   zerolog.Logger

	mu       sync.Mutex
	store    map[uint64]blockcache.Page
	readErr  map[uint64]error
	writeErr map[uint64]error
	holding  bool
	held     []completion
	record   bool
	submits  []Submission
	closed   bool

	h  blockcache.CompletionHandler
	ch chan completion
	wg sync.WaitGroup
}

// New returns a stopped transport; the cache starts it.
func New(opts Options) *Transport {
	depth := opts.QueueDepth
	if depth <= 0 {
		depth = DefaultQueueDepth
	}

	tr := &Transport{
		depth:    depth,
		log:      zerolog.Nop(),
		store:    make(map[uint64]blockcache.Page),
		readErr:  make(map[uint64]error),
		writeErr: make(map[uint64]error),
		ch:       make(chan completion, depth),
	}
	if opts.Log != nil {
		tr.log = *opts.Log
	}

	return tr
}

// Start begins completion delivery to h.
func (tr *Transport) Start(h blockcache.CompletionHandler) error {
	tr.h = h

	tr.wg.Add(1)
	go tr.deliver()

	return nil
}

func (tr *Transport) deliver() {
	defer tr.wg.Done()

	for comp := range tr.ch {
		tr.h.EndIO(comp.bnr, comp.page, comp.err)
	}
}

// QueueDepth returns the advertised submission budget.
func (tr *Transport) QueueDepth() int {
	return tr.depth
}

// Submit queues one op. Reads complete with a freshly allocated page so
// the cache exercises its page swap; writes are applied to the store
// immediately and complete with a nil page.
func (tr *Transport) Submit(op blockcache.Op, bnr uint64, page blockcache.Page) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.closed {
		return blockcache.ErrShutdown
	}

	if tr.record {
		tr.submits = append(tr.submits, Submission{Op: op, Bnr: bnr})
	}

	var comp completion

	switch op {
	case blockcache.OpGetRead, blockcache.OpGetWrite:
		comp = tr.readCompletion(bnr)
	case blockcache.OpWrite:
		comp = tr.writeCompletion(bnr, page)
	default:
		return fmt.Errorf("%w: unknown op %d", blockcache.ErrInvalidMode, op)
	}

	if tr.holding {
		tr.held = append(tr.held, comp)
		return nil
	}

	tr.ch <- comp

	return nil
}

func (tr *Transport) readCompletion(bnr uint64) completion {
	if err, ok := tr.readErr[bnr]; ok {
		return completion{bnr: bnr, err: err}
	}

	fresh := blockcache.NewPage()
	if stored, ok := tr.store[bnr]; ok {
		copy(fresh, stored)
	}

	return completion{bnr: bnr, page: fresh}
}

func (tr *Transport) writeCompletion(bnr uint64, page blockcache.Page) completion {
	if err, ok := tr.writeErr[bnr]; ok {
		return completion{bnr: bnr, err: err}
	}

	stored := blockcache.NewPage()
	copy(stored, page)
	tr.store[bnr] = stored

	return completion{bnr: bnr}
}

// Shutdown stops accepting submits, releases any held completions, and
// drains delivery.
func (tr *Transport) Shutdown() {
	tr.mu.Lock()

	if tr.closed {
		tr.mu.Unlock()
		return
	}

	tr.closed = true

	for _, comp := range tr.held {
		tr.ch <- comp
	}
	tr.held = nil

	tr.mu.Unlock()

	close(tr.ch)
	tr.wg.Wait()
}

// Destroy releases the store.
func (tr *Transport) Destroy() {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	tr.store = nil
}

// SetReadError makes reads of bnr complete with err until cleared with
// a nil err.
func (tr *Transport) SetReadError(bnr uint64, err error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if err == nil {
		delete(tr.readErr, bnr)
	} else {
		tr.readErr[bnr] = err
	}
}

// SetWriteError makes writes of bnr complete with err until cleared
// with a nil err.
func (tr *Transport) SetWriteError(bnr uint64, err error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if err == nil {
		delete(tr.writeErr, bnr)
	} else {
		tr.writeErr[bnr] = err
	}
}

// Hold makes subsequent completions queue up instead of delivering,
// until released.
func (tr *Transport) Hold() {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	tr.holding = true
}

// ReleaseN delivers up to n held completions in submission order and
// returns how many were released.
func (tr *Transport) ReleaseN(n int) int {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	released := 0
	for released < n && len(tr.held) > 0 {
		tr.ch <- tr.held[0]
		tr.held = tr.held[1:]
		released++
	}

	return released
}

// Release delivers all held completions and resumes direct delivery.
func (tr *Transport) Release() {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	for _, comp := range tr.held {
		tr.ch <- comp
	}

	tr.held = nil
	tr.holding = false
}

// Record starts recording submissions; Submissions returns them.
func (tr *Transport) Record() {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	tr.record = true
	tr.submits = nil
}

// Submissions returns a copy of the recorded submissions.
func (tr *Transport) Submissions() []Submission {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	out := make([]Submission, len(tr.submits))
	copy(out, tr.submits)

	return out
}

// ReadStored returns a copy of the store's contents for bnr, or nil if
// the block was never written.
func (tr *Transport) ReadStored(bnr uint64) []byte {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	stored, ok := tr.store[bnr]
	if !ok {
		return nil
	}

	out := make([]byte, len(stored))
	copy(out, stored)

	return out
}

// WriteStored seeds the store's contents for bnr.
func (tr *Transport) WriteStored(bnr uint64, data []byte) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	stored := blockcache.NewPage()
	copy(stored, data)
	tr.store[bnr] = stored
}
