package blockcache_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/versity/ngnfs-go/pkg/blockcache"
)

// getHandle fetches an entry for inspection without disturbing its
// state; blocks used here are always uptodate already.
func getHandle(t *testing.T, cache *blockcache.Cache, bnr uint64) *blockcache.Block {
	t.Helper()

	bl, err := cache.Get(bnr, blockcache.ModeRead)
	if err != nil {
		t.Fatalf("Get(%d): %v", bnr, err)
	}

	t.Cleanup(func() { cache.Put(bl) })

	return bl
}

// Two separately dirtied blocks merge into exactly one set when a
// later transaction touches both. The surviving set keeps its original
// writeback position.
func Test_DirtyBegin_Merges_Sets_Under_Limit(t *testing.T) {
	t.Parallel()

	cache, _ := newCache(t)

	fillTxn(t, cache, 0x01, 10)
	fillTxn(t, cache, 0x02, 11)

	bl10 := getHandle(t, cache, 10)
	bl11 := getHandle(t, cache, 11)

	if cache.SetID(bl10) == cache.SetID(bl11) {
		t.Fatal("independently dirtied blocks must start in distinct sets")
	}

	seq10 := cache.SetDirtySeq(bl10)

	fillTxn(t, cache, 0x03, 10, 11)

	id10, id11 := cache.SetID(bl10), cache.SetID(bl11)
	if id10 == nil || id10 != id11 {
		t.Fatalf("blocks 10 and 11 must share one set; got %v and %v", id10, id11)
	}

	if got := cache.SetSize(bl10); got != 2 {
		t.Fatalf("merged set size = %d, want 2", got)
	}

	// The first block's set survived the merge with its seq intact.
	if got := cache.SetDirtySeq(bl10); got != seq10 {
		t.Fatalf("merged set dirty_seq = %d, want %d", got, seq10)
	}

	if got := cache.Stats().NrDirty; got != 2 {
		t.Fatalf("nr_dirty = %d, want 2", got)
	}

	if err := cache.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if got := cache.Stats().NrDirty; got != 0 {
		t.Fatalf("nr_dirty = %d after sync, want 0", got)
	}

	if cache.SetID(bl10) != nil || cache.SetID(bl11) != nil {
		t.Fatal("set membership must be released after writeback")
	}
}

// A merge that would exceed the set limit forces the larger set
// through writeback first and then succeeds.
func Test_DirtyBegin_Overflowing_Merge_Writes_Larger_Set_First(t *testing.T) {
	t.Parallel()

	cache, _ := newCache(t)

	// One set of 63 blocks and one of 2.
	big := make([]uint64, 63)
	for i := range big {
		big[i] = uint64(i)
	}

	fillTxn(t, cache, 0x10, big...)
	fillTxn(t, cache, 0x20, 100, 101)

	if got := cache.Stats().NrDirty; got != 65 {
		t.Fatalf("nr_dirty = %d, want 65", got)
	}

	// 63 + 2 would exceed the limit of 64, so the grouper flushes the
	// large set and retries.
	fillTxn(t, cache, 0x30, 50, 101)

	bl50 := getHandle(t, cache, 50)
	bl101 := getHandle(t, cache, 101)

	id50, id101 := cache.SetID(bl50), cache.SetID(bl101)
	if id50 == nil || id50 != id101 {
		t.Fatal("blocks 50 and 101 must share one set after the retry")
	}

	if got := cache.SetSize(bl50); got > blockcache.SetLimit {
		t.Fatalf("set size %d exceeds the limit", got)
	}

	// The large set completed writeback before the merge went through.
	if got := cache.Stats().WritebackSeq; got == 0 {
		t.Fatal("the forced writeback must have advanced writeback_seq")
	}

	bl0 := getHandle(t, cache, 0)
	if cache.BlockDirty(bl0) {
		t.Fatal("the flushed set's untouched blocks must be clean")
	}

	if err := cache.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if got := cache.Stats().NrDirty; got != 0 {
		t.Fatalf("nr_dirty = %d after final sync, want 0", got)
	}
}

func Test_DirtyBegin_Rejects_Groups_Beyond_Set_Limit(t *testing.T) {
	t.Parallel()

	cache, _ := newCache(t)

	blocks := make([]*blockcache.Block, blockcache.SetLimit+1)
	for i := range blocks {
		bl, err := cache.Get(uint64(i), blockcache.ModeNew|blockcache.ModeWrite)
		require.NoError(t, err)

		blocks[i] = bl
	}

	defer func() {
		for _, bl := range blocks {
			cache.Put(bl)
		}
	}()

	err := cache.DirtyBegin(blocks)
	require.ErrorIs(t, err, blockcache.ErrInvalidMode)
}

// Dirtying stalls once the dirty limit is reached and resumes when
// writeback completes blocks.
func Test_DirtyBegin_Blocks_At_Dirty_Limit(t *testing.T) {
	t.Parallel()

	cache, tr := newCache(t)

	// Hold completions so nothing can clean until released.
	tr.Hold()

	bnr := uint64(0)
	for dirtied := 0; dirtied < blockcache.DirtyLimit; dirtied += blockcache.SetLimit {
		group := make([]uint64, blockcache.SetLimit)
		for i := range group {
			group[i] = bnr
			bnr++
		}

		fillTxn(t, cache, 0x77, group...)
	}

	require.Equal(t, int64(blockcache.DirtyLimit), cache.Stats().NrDirty)

	admitted := make(chan error, 1)

	go func() {
		bl, err := cache.Get(1_000_000, blockcache.ModeNew|blockcache.ModeWrite)
		if err != nil {
			admitted <- err
			return
		}

		defer cache.Put(bl)

		err = cache.DirtyBegin([]*blockcache.Block{bl})
		if err == nil {
			cache.DirtyEnd([]*blockcache.Block{bl})
		}

		admitted <- err
	}()

	select {
	case err := <-admitted:
		t.Fatalf("dirtying proceeded at the dirty limit: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	tr.Release()

	select {
	case err := <-admitted:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("dirtying did not resume after writeback")
	}

	require.NoError(t, cache.Sync())
}
