// Package blockcache provides the client-side cache for the shared block
// address space.
//
// Cached blocks are indexed by block number and read from or written to an
// underlying [Transport] - typically the network message transport or a
// local device file. Callers dirty blocks in dependent groups; the cache
// tracks that grouping in sets of blocks which must be written atomically.
// Sets are merged when one operation modifies blocks in different sets.
//
// Writeback is performed in terms of whole sets, in the order that they
// were initially dirtied. Background pressure or an explicit [Cache.Sync]
// triggers writeback.
//
// # Basic Usage
//
//	cache, err := blockcache.New(blockcache.Options{Transport: tr})
//	if err != nil {
//	    // handle setup failure
//	}
//	defer cache.Destroy()
//
//	bl, err := cache.Get(bnr, blockcache.ModeRead)
//	if err != nil {
//	    // ErrIO if the read failed
//	}
//	data := bl.Buf()
//	cache.Put(bl)
//
// Writes go through multi-block transactions (see the txn package), which
// acquire write references and bracket their modifications with
// [Cache.DirtyBegin] and [Cache.DirtyEnd] so that the group is written as
// one atomic unit.
//
// # Concurrency
//
// All exported methods are safe for concurrent use. The cache does not
// serialize data access within a block; callers that modify the same block
// concurrently must provide their own serialization.
//
// # Error Handling
//
// Errors are classified with [errors.Is] against the package sentinels:
// [ErrInvalidMode], [ErrIO], [ErrShutdown]. Contract violations the cache
// can detect (unbalanced DirtyEnd, completions for unknown blocks) panic.
// Writes to a block's buffer outside a dirtying lease are not detected.
package blockcache
