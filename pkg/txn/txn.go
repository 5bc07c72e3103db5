// Package txn assembles multi-block transactions over the block cache.
//
// Callers describe a transaction as a set of blocks with access modes.
// As access to each block is acquired its prepare function runs, which
// can inspect the contents and perhaps add more blocks. Once every
// block is prepared, all commit functions run under a single dirtying
// lease, so the cache writes the whole group as one atomic unit.
//
// This frees callers from the access acquisition rules: they assemble
// the blocks as they see fit and Execute acquires them without
// deadlocking. Prepare's job is to ensure that commit can proceed or to
// return an error; commits make the changes and cannot fail, which
// avoids unwinding mid-modification.
package txn

import (
	"fmt"

	"github.com/versity/ngnfs-go/pkg/blockcache"
)

// PrepareFunc validates that a block's pending modification can
// proceed. It may extend the transaction with [Txn.AddBlock]. A non-nil
// error aborts the transaction.
type PrepareFunc func(t *Txn, bl *blockcache.Block, arg any) error

// CommitFunc applies a block's modification. Commits run under the
// group's dirtying lease, must be quick, and cannot fail.
type CommitFunc func(t *Txn, bl *blockcache.Block, arg any)

type txnBlock struct {
	bl      *blockcache.Block
	bnr     uint64
	mode    blockcache.Mode
	prepare PrepareFunc
	commit  CommitFunc
	arg     any
}

// Txn is one multi-block transaction. The zero value is not usable;
// create transactions with [New].
type Txn struct {
	cache  *blockcache.Cache
	blocks []*txnBlock
	writes []*txnBlock
}

// New returns an empty transaction over cache.
func New(cache *blockcache.Cache) *Txn {
	return &Txn{cache: cache}
}

// AddBlock appends a block to the transaction. It is legitimate to add
// a block with neither prepare nor commit just to hold access across
// the transaction.
func (t *Txn) AddBlock(bnr uint64, mode blockcache.Mode, prepare PrepareFunc, commit CommitFunc, arg any) {
	t.blocks = append(t.blocks, &txnBlock{
		bnr:     bnr,
		mode:    mode,
		prepare: prepare,
		commit:  commit,
		arg:     arg,
	})
}

// Execute acquires every block in order, runs prepares, and then
// commits the writes under one dirty group. The caller is responsible
// for tearing the transaction down with [Txn.Destroy] whether or not
// Execute succeeds.
func (t *Txn) Execute() error {
	// Prepares may append; iterate by index so extensions are seen.
	for i := 0; i < len(t.blocks); i++ {
		tb := t.blocks[i]

		bl, err := t.cache.Get(tb.bnr, tb.mode)
		if err != nil {
			return fmt.Errorf("acquiring block %d: %w", tb.bnr, err)
		}

		tb.bl = bl

		if tb.prepare != nil {
			if err := tb.prepare(t, tb.bl, tb.arg); err != nil {
				return err
			}
		}

		if tb.mode&blockcache.ModeWrite != 0 {
			t.writes = append(t.writes, tb)
		}
	}

	if len(t.writes) == 0 {
		return nil
	}

	writeBlocks := make([]*blockcache.Block, len(t.writes))
	for i, tb := range t.writes {
		writeBlocks[i] = tb.bl
	}

	if err := t.cache.DirtyBegin(writeBlocks); err != nil {
		return err
	}

	for _, tb := range t.writes {
		if tb.commit != nil {
			tb.commit(t, tb.bl, tb.arg)
		}
	}

	t.cache.DirtyEnd(writeBlocks)

	return nil
}

// Destroy releases every reference the transaction acquired. It can be
// called in any state, including repeatedly; it is a nop on a fresh or
// previously destroyed transaction.
func (t *Txn) Destroy() {
	for _, tb := range t.blocks {
		if tb.bl != nil {
			t.cache.Put(tb.bl)
			tb.bl = nil
		}
	}

	t.blocks = nil
	t.writes = nil
}
