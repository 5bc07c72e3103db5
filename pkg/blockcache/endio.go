package blockcache

import "fmt"

// EndIO is the completion callback for transports. It is called exactly
// once per submitted op, from the transport's IO goroutines, with the
// transport's error if the op failed. For reads the transport may hand
// in a freshly allocated page which is swapped into place.
//
// A completion for a block that was never submitted is a contract
// violation and panics.
func (c *Cache) EndIO(bnr uint64, page Page, err error) {
	bl := c.idx.lookup(bnr)
	if bl == nil {
		panic(fmt.Sprintf("blockcache: completion for unknown block %d", bnr))
	}

	// Each completion frees room in the transport queue.
	c.nrSubmitted.Add(-1)
	c.kickSubmit()

	if err != nil {
		bl.ioErr = err
		bl.bits.Or(blError)
		c.syncSetError()
	}

	if bl.testBit(blReading) {
		c.endReadIO(bl, page)
	} else {
		c.endWriteIO(bl)
	}

	bl.put()
}

// endReadIO finishes read IO. If the transport provided a page it is a
// new page holding the incoming read; we swap it into place. Uptodate
// (or the error) must be visible before reading clears so every waiter
// wakes to the final state.
func (c *Cache) endReadIO(bl *Block, page Page) {
	if page != nil {
		if len(page) != BlockSize {
			panic(fmt.Sprintf("blockcache: completion page size %d for block %d", len(page), bl.bnr))
		}

		// Buf() changes across this swap, callers beware.
		bl.page = page
	}

	if !bl.testBit(blError) {
		bl.bits.Or(blUptodate)
	}

	bl.clearBitWake(blReading)
}

// endWriteIO finishes write IO on a block in a set. Once the last block
// of the set completes the set dissolves: every member's set pointer is
// cleared, allowing re-dirtying, and the dirty accounting is released.
func (c *Cache) endWriteIO(bl *Block) {
	set := bl.set.Load()
	if set == nil {
		panic(fmt.Sprintf("blockcache: write completion for block %d outside a set", bl.bnr))
	}

	// Each finished block gives room for more writeback in the queue
	// depth.
	c.nrWriteback.Add(-1)
	c.kickWriteback()

	if bl.testBit(blError) {
		// Write errors leave the set quarantined: it keeps
		// setWriteback and its blocks stay dirty, which also keeps
		// dirtying attempts on them parked. Sync waiters have been
		// latched; there is no retry policy yet.
		set.bits.Or(setQuarantined)

		c.log.Error().Uint64("bnr", bl.bnr).Uint64("dirty_seq", set.dirtySeq).
			Err(bl.ioErr).Msg("write failed, set quarantined")
	}

	if set.submittedBlocks.Add(-1) > 0 {
		return
	}

	if set.testBit(setQuarantined) {
		// Wake sync waiters so they observe the latched error; the
		// set itself stays put.
		c.waitq.wake()

		return
	}

	// The block's set pointer is the serialization point for
	// dirtying: once it is nil another dirtier can claim the block.
	// Dirty accounting is released per member so the counter stays
	// exact even if a backed-off dirtier left a clean member behind.
	dirtied := int64(0)

	for _, member := range set.blocks {
		if member.bits.And(^blDirty)&blDirty != 0 {
			dirtied++
		}

		member.set.Store(nil)
	}

	c.nrDirty.Add(-dirtied)
	set.size = 0
	set.blocks = nil

	set.clearBitWake(setDirty)
	set.clearBitWake(setWriteback)

	// Finishing the whole set can wake sync or dirty-limit waiters.
	c.waitq.wake()
}
