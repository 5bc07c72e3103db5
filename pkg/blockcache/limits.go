package blockcache

// Compile-time tunables governing admission, writeback onset, and merge
// policy.
const (
	// BlockSize is the fixed size in bytes of every cached block.
	BlockSize = 4096

	// DirtyLimit is the admission bound: callers stop dirtying
	// additional blocks once this many blocks are dirty. Sets have to
	// complete writeback and mark their blocks clean before more blocks
	// can be dirtied.
	DirtyLimit = 1024

	// WritebackThresh is the number of dirty blocks not yet under
	// writeback at which background writeback starts without an
	// explicit sync.
	WritebackThresh = 256

	// SetLimit is the maximum number of blocks in a dirty set. This is
	// effectively also the limit of the number of blocks that can be
	// modified in one transaction. Merges that would exceed it write
	// out the larger set first.
	SetLimit = 64
)
