package blockcache

// shouldWriteback reports whether dirty sets should be promoted: either
// a sync is waiting on seqs that have not started writeback, or enough
// dirty blocks accumulated - and in both cases there is less than a
// queue depth's worth of blocks already in flight.
func (c *Cache) shouldWriteback() bool {
	dirty := c.nrDirty.Load()
	writeback := c.nrWriteback.Load()

	return (c.syncSeq.Load() > c.writebackSeq.Load() ||
		dirty-writeback >= WritebackThresh) &&
		writeback < int64(c.queueDepth)
}

// The writeback worker promotes dirty sets, in the order they were
// first dirtied, and feeds their blocks to the submit pipeline.
func (c *Cache) writebackWorker() {
	defer c.wg.Done()

	var fifo []*blockSet

	for {
		select {
		case <-c.wbWake:
		case <-c.quit:
			return
		}

		fifo = append(fifo, c.wbIntake.drain()...)

		for len(fifo) > 0 && c.shouldWriteback() {
			set := fifo[0]

			if set.testAndSetBit(setWriteback) {
				panic("blockcache: set already under writeback")
			}

			// Back off if the set is being dirtied; the dirtier
			// always wins the handshake and will kick us again
			// when it is done. Sequentially consistent bit ops
			// give the full fence ordering the handshake needs.
			if set.testBit(setDirtying) {
				set.clearBitWake(setWriteback)
				set.waitq.waitFor(func() bool { return !set.testBit(setDirtying) })

				break
			}

			fifo = fifo[1:]

			if set.size > 0 {
				c.nrWriteback.Add(int64(set.size))
				set.submittedBlocks.Add(int64(set.size))

				for _, bl := range set.blocks {
					bl.ref() // intake presence
					c.pushSubmit(bl)
				}

				c.kickSubmit()

				c.log.Debug().Uint64("dirty_seq", set.dirtySeq).
					Int("size", set.size).Msg("set promoted to writeback")
			} else {
				// The set was merged away while queued; nothing
				// to submit and no completion will clear
				// writeback.
				set.clearBitWake(setWriteback)
			}

			c.writebackSeq.Add(1)

			// Advancing writebackSeq can by itself satisfy a sync
			// waiter when nothing is in flight.
			c.waitq.wake()
		}
	}
}
