package blockcache

import "fmt"

// The dirty grouper. Callers hold write references to the blocks they
// want to modify together in one transaction; DirtyBegin merges those
// blocks into a single dirty set so the group can be modified and
// written back atomically, and DirtyEnd releases the dirtying lease.

// getOtherSet returns bl's set if it differs from the caller's. If bl
// has no set, it is either attached to the caller's set (returning nil)
// or given a freshly allocated set of its own, which is returned.
//
// Attaching to existing is only done while the caller holds existing's
// dirtying lease.
func getOtherSet(bl *Block, existing *blockSet) *blockSet {
	for {
		set := bl.set.Load()
		if set != nil {
			if set == existing {
				return nil
			}

			return set
		}

		if existing != nil {
			if bl.set.CompareAndSwap(nil, existing) {
				existing.blocks = append(existing.blocks, bl)
				existing.size++

				return nil
			}

			continue
		}

		set = &blockSet{
			size:   1,
			blocks: []*Block{bl},
		}

		if bl.set.CompareAndSwap(nil, set) {
			return set
		}
		// Lost the race; the discarded set was never published.
	}
}

// clearSetDirtying backs off from dirtying a set. Input blocks that
// were attached while building up the merge but are not actually dirty
// are removed again; they sit at the tail in attach order.
func (c *Cache) clearSetDirtying(set *blockSet) {
	for len(set.blocks) > 0 {
		bl := set.blocks[len(set.blocks)-1]
		if bl.testBit(blDirty) {
			break
		}

		set.blocks = set.blocks[:len(set.blocks)-1]
		set.size--

		// Clearing the set pointer is the unlock.
		bl.set.Store(nil)
	}

	set.clearBitWake(setDirtying)
	c.kickWriteback()
}

// DirtyBegin merges the caller's write-referenced blocks into exactly
// one dirty set and takes that set's dirtying lease. On return every
// input block is dirty, counted, and a member of the same set; the set
// has a writeback position and the caller holds the exclusive right to
// modify its blocks until [Cache.DirtyEnd].
//
// The input blocks may currently belong to zero, one, or several
// distinct dirty sets. Merges that would exceed [SetLimit] force the
// larger set through writeback first. The calling goroutine blocks
// while [DirtyLimit] blocks are already dirty.
func (c *Cache) DirtyBegin(blocks []*Block) error {
	// Some txn patterns can harmlessly execute an empty group.
	if len(blocks) == 0 {
		return nil
	}

	// One transaction's blocks must fit in one set.
	if len(blocks) > SetLimit {
		return fmt.Errorf("%w: %d blocks exceeds the set limit %d",
			ErrInvalidMode, len(blocks), SetLimit)
	}

	if c.down.Load() {
		return ErrShutdown
	}

	c.waitq.waitFor(func() bool { return c.nrDirty.Load() < DirtyLimit })

restart:
	var large *blockSet

	for _, bl := range blocks {
		// A full set cannot take on more fresh blocks; write it out
		// before attaching. A full set always contains previously
		// dirtied blocks here, so it has a writeback position.
		if large != nil && large.size >= SetLimit && bl.set.Load() == nil {
			seq := large.dirtySeq
			c.clearSetDirtying(large)

			if err := c.syncUpToSeq(seq); err != nil {
				return err
			}

			goto restart
		}

		// Initially "small" is the set from the next block.
		small := getOtherSet(bl, large)
		if small == nil {
			// Block is already in our large set.
			continue
		}

		// Wait until the set is not being dirtied by someone else.
		if small.testAndSetBit(setDirtying) {
			if large != nil {
				c.clearSetDirtying(large)
			}

			small.waitq.waitFor(func() bool { return !small.testBit(setDirtying) })

			goto restart
		}

		// Wait until the set is not being written. The dirtying bit
		// is already visible to the writeback worker; sequentially
		// consistent bit ops order the two tests on both sides.
		if small.testBit(setWriteback) {
			c.clearSetDirtying(small)
			if large != nil {
				c.clearSetDirtying(large)
			}

			small.waitq.waitFor(func() bool { return !small.testBit(setWriteback) })

			goto restart
		}

		// The block can have moved to another set between reading
		// its set pointer and winning the lease, if the set it was
		// on got merged away. Start over with fresh pointers.
		if bl.set.Load() != small {
			c.clearSetDirtying(small)
			if large != nil {
				c.clearSetDirtying(large)
			}

			goto restart
		}

		if large == nil {
			// Found the first block's set, carry on.
			large = small
			continue
		}

		// Both sets are held. Correct the small/large relationship:
		// small's blocks merge into large, and large is written out
		// first if the merge would exceed the set size limit.
		if small.size > large.size {
			small, large = large, small
		}

		if large.size+small.size > SetLimit {
			seq := large.dirtySeq

			c.clearSetDirtying(small)
			c.clearSetDirtying(large)

			if err := c.syncUpToSeq(seq); err != nil {
				return err
			}

			goto restart
		}

		// Finally merge the smaller set into the larger.
		for _, member := range small.blocks {
			member.set.Store(large)
		}

		large.blocks = append(large.blocks, small.blocks...)
		large.size += small.size
		small.blocks = nil
		small.size = 0

		small.clearBitWake(setDirty)
		small.clearBitWake(setDirtying)
		// The emptied small set is unreachable once its waiters
		// leave.
	}

	// Dirtying and modifying will succeed from this point.

	// Make sure any newly added blocks are dirty. Merging can leave
	// fresh attachments ahead of spliced members, so every member is
	// checked rather than scanning back from the tail.
	for _, bl := range large.blocks {
		if !bl.testAndSetBit(blDirty) {
			c.nrDirty.Add(1)
		}
	}

	// Initially mark the set dirty and establish its writeback
	// position.
	if !large.testAndSetBit(setDirty) {
		large.dirtySeq = c.dirtySeq.Add(1)
		c.wbIntake.push(large)
		c.kickWriteback()

		c.log.Debug().Uint64("dirty_seq", large.dirtySeq).
			Int("size", large.size).Msg("set dirtied")
	}

	// The caller now owns the dirtying lease; DirtyEnd releases it.
	return nil
}

// DirtyEnd releases the dirtying lease taken by a matched
// [Cache.DirtyBegin] on the same blocks. The writer is done modifying
// them; the set becomes eligible for writeback.
//
// An unbalanced DirtyEnd is a contract violation and panics.
func (c *Cache) DirtyEnd(blocks []*Block) {
	if len(blocks) == 0 {
		return
	}

	// DirtyBegin put all the blocks in one set; any of them finds it.
	set := blocks[0].set.Load()
	if set == nil {
		panic("blockcache: dirty end without matching dirty begin")
	}

	if !set.clearBitWake(setDirtying) {
		panic("blockcache: dirty end on a set that is not dirtying")
	}

	c.kickWriteback()
}
