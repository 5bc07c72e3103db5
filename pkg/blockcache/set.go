package blockcache

import "sync/atomic"

// Set state bits.
const (
	// setDirtying is held exclusively by the caller that is dirtying
	// the set's blocks and possibly merging it with other sets. Other
	// dirtying or writeback attempts wait.
	setDirtying uint32 = 1 << iota

	// setDirty means the set contains modified blocks: they are
	// counted in nrDirty and the set has been assigned its dirtySeq
	// by addition to the writeback intake.
	setDirty

	// setWriteback means the set's blocks are under IO. Dirtying
	// attempts wait.
	setWriteback

	// setQuarantined means a write in the set failed. The set never
	// dissolves: its blocks stay dirty and setWriteback stays held.
	setQuarantined
)

// blockSet groups dirty blocks whose modifications depend on each other
// and must be written atomically. Sets have a maximum size and are
// merged when one operation modifies blocks in different sets.
//
// The members slice and size are only mutated by the goroutine holding
// the corresponding setDirtying or setWriteback lease, or by the
// completion handler during final dissolution, which both bits exclude.
type blockSet struct {
	bits            atomic.Uint32
	submittedBlocks atomic.Int64

	// dirtySeq is assigned once, on the first transition to setDirty,
	// and governs writeback order.
	dirtySeq uint64

	size   int
	blocks []*Block

	// wbNext links the set into the writeback intake.
	wbNext *blockSet

	waitq waitQueue
}

func (set *blockSet) testBit(bit uint32) bool {
	return set.bits.Load()&bit != 0
}

// testAndSetBit sets bit and reports whether it was already set.
func (set *blockSet) testAndSetBit(bit uint32) bool {
	return set.bits.Or(bit)&bit != 0
}

// clearBitWake clears bit and wakes the set's waiters if it was set.
// Reports whether the bit was set.
func (set *blockSet) clearBitWake(bit uint32) bool {
	if set.bits.And(^bit)&bit != 0 {
		set.waitq.wake()
		return true
	}

	return false
}
