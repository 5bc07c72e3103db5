package blockcache

// Test-only access to internals, compiled into the test binary via the
// external test package.

// SetID returns an opaque identity for the dirty set bl currently
// belongs to, or nil. Two blocks are in the same set iff their SetIDs
// are equal and non-nil.
func (c *Cache) SetID(bl *Block) any {
	set := bl.set.Load()
	if set == nil {
		return nil
	}

	return set
}

// SetSize returns the size of bl's dirty set, or 0 if it has none.
func (c *Cache) SetSize(bl *Block) int {
	set := bl.set.Load()
	if set == nil {
		return 0
	}

	return set.size
}

// SetDirtySeq returns the dirty seq of bl's set, or 0.
func (c *Cache) SetDirtySeq(bl *Block) uint64 {
	set := bl.set.Load()
	if set == nil {
		return 0
	}

	return set.dirtySeq
}

// BlockDirty reports whether bl carries the dirty bit.
func (c *Cache) BlockDirty(bl *Block) bool {
	return bl.testBit(blDirty)
}

// SyncWaiterCount returns the number of callers currently inside a
// sync wait.
func (c *Cache) SyncWaiterCount() int64 {
	return c.syncWaiters.Load() / syncWaitersInc
}

// IndexLookup reports whether bnr currently has a live index entry.
func (c *Cache) IndexLookup(bnr uint64) bool {
	bl := c.idx.lookup(bnr)
	if bl == nil {
		return false
	}

	bl.put()

	return true
}
