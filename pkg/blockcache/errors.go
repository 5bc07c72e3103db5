package blockcache

import "errors"

// Sentinel errors returned by cache operations.
//
// Callers should use [errors.Is] to classify errors; all of them may be
// wrapped with additional context.
var (
	// ErrInvalidMode indicates an invalid argument: malformed mode bits
	// passed to [Cache.Get] (for example [ModeRead] combined with
	// [ModeWrite]), a [Cache.DirtyBegin] group larger than [SetLimit],
	// or a nil transport or non-positive queue depth given to [New].
	//
	// This is a programming error.
	ErrInvalidMode = errors.New("blockcache: invalid mode")

	// ErrIO indicates the transport reported a completion error. A read
	// that fails with ErrIO leaves no cached state behind; retrying the
	// Get issues a fresh read.
	ErrIO = errors.New("blockcache: io failure")

	// ErrShutdown indicates an operation was attempted after
	// [Cache.Destroy] began. Transports also return it from Submit once
	// they stop accepting work.
	ErrShutdown = errors.New("blockcache: shut down")

	// ErrNoMemory indicates an allocation failure. The cache itself
	// never returns it at runtime; it is reserved for transports whose
	// setup can exhaust a resource budget.
	ErrNoMemory = errors.New("blockcache: out of memory")
)
