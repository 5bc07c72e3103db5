package blockcache

import (
	"fmt"
	"sync/atomic"
)

// Block state bits.
const (
	// blReading is set between queueing a block for read IO and the
	// read completing.
	blReading uint32 = 1 << iota

	// blUptodate is set as reads complete and indicates the current
	// contents are in sync with the persistent block. References can
	// be used once this is set.
	blUptodate

	// blError means IO failed. The entry is dropped from the index
	// once a holder observes the error, so later lookups retry.
	blError

	// blDirty means the block is a member of a dirty set.
	blDirty
)

// Block is the cache entry for one block in the shared address space.
//
// The set pointer doubles as the membership serialization point:
// installing it with a compare-and-swap is the lock, clearing it is the
// unlock. A block's set pointer is non-nil exactly when the block is on
// that set's member list.
type Block struct {
	bnr  uint64
	bits atomic.Uint32
	refs atomic.Int64

	// ioErr is written by the completion handler before blError is
	// set; readers load it only after observing blError.
	ioErr error

	// page holds the block contents. Swapped by the completion
	// handler while blReading excludes readers; zeroed by a Get with
	// ModeNew; mutated by commit callbacks under an exclusive write
	// reference and dirtying lease.
	page Page

	set atomic.Pointer[blockSet]

	// submitNext links the block into the submit intake. Owned by the
	// intake while the block is queued.
	submitNext *Block

	waitq waitQueue
}

func newBlock(bnr uint64) *Block {
	bl := &Block{
		bnr:  bnr,
		page: NewPage(),
	}
	bl.refs.Store(1) // index presence

	return bl
}

// Bnr returns the block number.
func (bl *Block) Bnr() uint64 {
	return bl.bnr
}

// Buf returns the block contents. The slice aliases the cache's page;
// it is valid until the reference is put and must only be written
// during a commit.
func (bl *Block) Buf() []byte {
	return bl.page
}

// Page returns the block's current data page.
func (bl *Block) Page() Page {
	return bl.page
}

func (bl *Block) ref() {
	bl.refs.Add(1)
}

func (bl *Block) put() {
	if bl == nil {
		return
	}

	if bl.refs.Add(-1) < 0 {
		panic(fmt.Sprintf("blockcache: unbalanced put on block %d", bl.bnr))
	}
}

func (bl *Block) testBit(bit uint32) bool {
	return bl.bits.Load()&bit != 0
}

// testAndSetBit sets bit and reports whether it was already set.
func (bl *Block) testAndSetBit(bit uint32) bool {
	return bl.bits.Or(bit)&bit != 0
}

// clearBitWake clears bit and wakes the block's waiters if it was set.
func (bl *Block) clearBitWake(bit uint32) {
	if bl.bits.And(^bit)&bit != 0 {
		bl.waitq.wake()
	}
}
