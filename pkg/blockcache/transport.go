package blockcache

import "fmt"

// Op identifies the kind of block IO handed to a transport.
type Op uint8

const (
	// OpGetRead reads the current block contents.
	OpGetRead Op = iota
	// OpGetWrite reads the block with intent to write. Reserved; the
	// cache does not issue it yet.
	OpGetWrite
	// OpWrite writes the block contents out.
	OpWrite
)

// String returns the op name for logs.
func (op Op) String() string {
	switch op {
	case OpGetRead:
		return "get_read"
	case OpGetWrite:
		return "get_write"
	case OpWrite:
		return "write"
	default:
		return fmt.Sprintf("op(%d)", uint8(op))
	}
}

// Page is the data buffer for one block. Its length is always
// [BlockSize].
type Page []byte

// NewPage allocates a zeroed page.
func NewPage() Page {
	return make(Page, BlockSize)
}

// CompletionHandler receives IO completions from a transport. It is
// implemented by [Cache]; transports call EndIO exactly once per
// submitted op, from their own IO goroutines.
type CompletionHandler interface {
	EndIO(bnr uint64, page Page, err error)
}

// Transport moves block contents between the cache and wherever blocks
// persist. Implementations own their IO goroutines and deliver
// completions through the [CompletionHandler] passed to Start.
//
// Submit must return immediately; completion is asynchronous and there
// is exactly one completion per accepted submit. After Shutdown the
// transport stops accepting submits (returning [ErrShutdown]) and drains
// completions for ops already in flight.
type Transport interface {
	// Start begins completion delivery. Called once by [New] before
	// any Submit.
	Start(h CompletionHandler) error

	// QueueDepth returns the maximum number of in-flight submissions
	// the transport supports. Must be positive and constant after
	// Start.
	QueueDepth() int

	// Submit queues one block op. For reads the transport may hand
	// back a different page on completion; for writes it must not
	// retain the page after completion.
	Submit(op Op, bnr uint64, page Page) error

	// Shutdown stops accepting submits and drains in-flight ops.
	Shutdown()

	// Destroy releases transport resources. Called after Shutdown.
	Destroy()
}
