package blockcache

// Sequence numbers record the order of sets being dirtied and starting
// writeback. A sync triggers writeback on behalf of the caller if their
// seqs have not started writeback yet, then waits for them to start and
// for there to be no more blocks in flight.
//
// The sync error state is latched: while there are sync waiters, IO
// errors are recorded for all of them, and only once the last waiter
// leaves is the error cleared. Broadcasting errors to every waiter is
// coarse but simple.

// syncWaiters uses the low bit as the error latch and counts waiter
// shares above it.
const (
	syncWaitersErr int64 = 1
	syncWaitersInc int64 = 2
)

func (c *Cache) syncWaitersAdd() {
	c.syncWaiters.Add(syncWaitersInc)
}

// syncSetError latches the error for the current waiters, if any.
func (c *Cache) syncSetError() {
	for {
		old := c.syncWaiters.Load()
		if old < syncWaitersInc {
			return
		}

		if c.syncWaiters.CompareAndSwap(old, old|syncWaitersErr) {
			// Errors can arrive while waiters are parked on
			// conditions that will never otherwise come true.
			c.waitq.wake()

			return
		}
	}
}

func (c *Cache) syncHasError() bool {
	return c.syncWaiters.Load()&syncWaitersErr != 0
}

// syncWaitersDone drops the caller's waiter share, returning ErrIO if
// an error was latched while they waited and clearing the latch if they
// were the last waiter out.
func (c *Cache) syncWaitersDone() error {
	for {
		old := c.syncWaiters.Load()

		newv := old - syncWaitersInc
		if newv == syncWaitersErr {
			newv = 0
		}

		if c.syncWaiters.CompareAndSwap(old, newv) {
			if old&syncWaitersErr != 0 {
				return ErrIO
			}

			return nil
		}
	}
}

// syncUpToSeq flushes everything dirtied up to seq: it raises the sync
// target, kicks writeback if that advanced it, and waits until sets up
// to seq have started writeback and no blocks remain in flight, or an
// IO error is latched.
func (c *Cache) syncUpToSeq(seq uint64) error {
	c.syncWaitersAdd()

	raised := false

	for {
		cur := c.syncSeq.Load()
		if seq <= cur {
			break
		}

		if c.syncSeq.CompareAndSwap(cur, seq) {
			raised = true
			break
		}
	}

	if raised {
		c.kickWriteback()
	}

	c.log.Debug().Uint64("seq", seq).Msg("sync begin")

	c.waitq.waitFor(func() bool {
		return c.syncHasError() ||
			(c.writebackSeq.Load() >= seq && c.nrWriteback.Load() == 0)
	})

	return c.syncWaitersDone()
}

// Sync attempts to write all blocks that were dirty at the time of the
// call. It returns [ErrIO] if any IO error was reported while it waited;
// an error reported before the call, such as an earlier failed write
// whose set stays quarantined, is not returned.
func (c *Cache) Sync() error {
	if c.down.Load() {
		return ErrShutdown
	}

	return c.syncUpToSeq(c.dirtySeq.Load())
}
