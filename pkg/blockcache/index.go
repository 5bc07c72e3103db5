package blockcache

import "sync"

// blockIndex maps bnr to its live cache entry. Lookups never block
// inserts; racing inserts are resolved by LoadOrStore with the loser
// discarding its allocation. The index does not govern entry lifetime
// beyond holding one presence reference per entry.
type blockIndex struct {
	m sync.Map // uint64 -> *Block
}

// lookup returns the entry for bnr with a reference taken, or nil.
func (idx *blockIndex) lookup(bnr uint64) *Block {
	v, ok := idx.m.Load(bnr)
	if !ok {
		return nil
	}

	bl := v.(*Block)
	bl.ref()

	return bl
}

// lookupOrInsert returns the entry for bnr, allocating and inserting a
// fresh one if absent. The returned entry carries a reference for the
// caller in addition to the index presence reference.
func (idx *blockIndex) lookupOrInsert(bnr uint64) *Block {
	if bl := idx.lookup(bnr); bl != nil {
		return bl
	}

	bl := newBlock(bnr)

	v, loaded := idx.m.LoadOrStore(bnr, bl)
	if loaded {
		// Lost the insert race; discard our allocation and use
		// the winner.
		bl = v.(*Block)
	}

	bl.ref()

	return bl
}

// remove drops bl from the index if it is still the entry for bnr, and
// releases the index presence reference. Safe to call from multiple
// holders; only the remover that won drops the reference.
func (idx *blockIndex) remove(bl *Block) {
	if idx.m.CompareAndDelete(bl.bnr, bl) {
		bl.put()
	}
}

// drain removes every remaining entry, invoking fn on each. Called only
// during destruction, with no external holders queueing new work.
func (idx *blockIndex) drain(fn func(*Block)) {
	idx.m.Range(func(k, v any) bool {
		bl := v.(*Block)
		idx.m.Delete(k)
		fn(bl)

		return true
	})
}
