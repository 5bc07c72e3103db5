// Package devfile provides a block transport backed by one flat device
// file: block bnr lives at byte offset bnr * BlockSize. IO is issued by
// a small pool of workers from a submission queue sized to the
// advertised queue depth.
//
// Reads past the end of the file complete as zeroes, so a freshly
// truncated device behaves like unwritten media.
package devfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/versity/ngnfs-go/pkg/blockcache"
	"github.com/versity/ngnfs-go/pkg/fs"
)

// Defaults for [Options].
const (
	DefaultQueueDepth = 128
	DefaultWorkers    = 4
)

// Options configures a [Device].
type Options struct {
	// QueueDepth is the advertised submission budget. Defaults to
	// [DefaultQueueDepth].
	QueueDepth int

	// Workers is the number of IO goroutines. Defaults to
	// [DefaultWorkers].
	Workers int

	// SyncWrites issues a data sync after every write so a write
	// completion implies the bytes reached the device.
	SyncWrites bool

	// Log receives debug events. Defaults to a no-op logger.
	Log *zerolog.Logger
}

type request struct {
	op   blockcache.Op
	bnr  uint64
	page blockcache.Page
}

// Device is a [blockcache.Transport] over a single device file.
type Device struct {
	f     fs.File
	depth int
	nwork int
	dsync bool
	log   zerolog.Logger

	h    blockcache.CompletionHandler
	reqs chan request
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// Open opens (creating if necessary) the device file at path through
// fsys.
func Open(fsys fs.FS, path string, opts Options) (*Device, error) {
	depth := opts.QueueDepth
	if depth <= 0 {
		depth = DefaultQueueDepth
	}

	nwork := opts.Workers
	if nwork <= 0 {
		nwork = DefaultWorkers
	}

	f, err := fsys.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening device %s: %w", path, err)
	}

	d := &Device{
		f:     f,
		depth: depth,
		nwork: nwork,
		dsync: opts.SyncWrites,
		log:   zerolog.Nop(),
		reqs:  make(chan request, depth),
	}
	if opts.Log != nil {
		d.log = *opts.Log
	}

	return d, nil
}

// Truncate sizes the device to hold blocks blocks.
func (d *Device) Truncate(blocks uint64) error {
	return d.f.Truncate(int64(blocks) * blockcache.BlockSize)
}

// Start spawns the IO workers delivering completions to h.
func (d *Device) Start(h blockcache.CompletionHandler) error {
	d.h = h

	d.wg.Add(d.nwork)
	for i := 0; i < d.nwork; i++ {
		go d.worker()
	}

	return nil
}

// QueueDepth returns the advertised submission budget.
func (d *Device) QueueDepth() int {
	return d.depth
}

// Submit queues one op for the workers.
func (d *Device) Submit(op blockcache.Op, bnr uint64, page blockcache.Page) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return blockcache.ErrShutdown
	}

	d.reqs <- request{op: op, bnr: bnr, page: page}

	return nil
}

func (d *Device) worker() {
	defer d.wg.Done()

	for req := range d.reqs {
		off := int64(req.bnr) * blockcache.BlockSize

		switch req.op {
		case blockcache.OpGetRead, blockcache.OpGetWrite:
			page := blockcache.NewPage()

			_, err := d.f.ReadAt(page, off)
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				// Unwritten media reads as zeroes.
				err = nil
			}

			if err != nil {
				d.log.Debug().Uint64("bnr", req.bnr).Err(err).Msg("read failed")
				d.h.EndIO(req.bnr, nil, fmt.Errorf("%w: %v", blockcache.ErrIO, err))

				continue
			}

			d.h.EndIO(req.bnr, page, nil)

		case blockcache.OpWrite:
			_, err := d.f.WriteAt(req.page, off)
			if err == nil && d.dsync {
				err = datasync(d.f)
			}

			if err != nil {
				d.log.Debug().Uint64("bnr", req.bnr).Err(err).Msg("write failed")
				d.h.EndIO(req.bnr, nil, fmt.Errorf("%w: %v", blockcache.ErrIO, err))

				continue
			}

			d.h.EndIO(req.bnr, nil, nil)
		}
	}
}

// datasync flushes file data without forcing a metadata update when the
// handle is a real file.
func datasync(f fs.File) error {
	if osf, ok := f.(*os.File); ok {
		return unix.Fdatasync(int(osf.Fd()))
	}

	return f.Sync()
}

// Shutdown stops accepting submits and waits for in-flight IO.
func (d *Device) Shutdown() {
	d.mu.Lock()

	if d.closed {
		d.mu.Unlock()
		return
	}

	d.closed = true
	d.mu.Unlock()

	close(d.reqs)
	d.wg.Wait()
}

// Destroy closes the device file.
func (d *Device) Destroy() {
	if err := d.f.Close(); err != nil {
		d.log.Warn().Err(err).Msg("closing device file")
	}
}
