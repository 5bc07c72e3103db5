package blockcache

import (
	"errors"
	"fmt"
)

// The submit worker keeps the transport's queue depth full. It is only
// concerned with the IO submission pipeline; the writeback worker and
// dirty grouper manage the higher order atomic grouping.
func (c *Cache) submitWorker() {
	defer c.wg.Done()

	var fifo []*Block

	for {
		select {
		case <-c.submitWake:
		case <-c.quit:
			return
		}

		fifo = append(fifo, c.submitIntake.drain()...)

		for len(fifo) > 0 && c.nrSubmitted.Load() < int64(c.queueDepth) {
			bl := fifo[0]
			fifo = fifo[1:]
			c.pendingSubmit.Add(-1)

			op := OpWrite
			if bl.testBit(blReading) {
				op = OpGetRead
			}

			c.nrSubmitted.Add(1)

			err := c.tr.Submit(op, bl.bnr, bl.page)
			if err != nil {
				if errors.Is(err, ErrShutdown) {
					// Teardown race: the transport stopped
					// before the worker drained. No
					// completion will arrive.
					c.nrSubmitted.Add(-1)
					bl.put()

					continue
				}

				panic(fmt.Sprintf("blockcache: submit %s bnr %d: %v", op, bl.bnr, err))
			}

			c.log.Trace().Stringer("op", op).Uint64("bnr", bl.bnr).Msg("submitted")

			bl.put() // intake presence ref; end io takes its own
		}

		// Producers that pushed while we were draining have already
		// kicked; anything still in the private FIFO waits for a
		// completion to free queue space.
	}
}
