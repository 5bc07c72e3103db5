package memtr_test

import (
	"bytes"
	"sync"
	"syscall"
	"testing"

	"github.com/versity/ngnfs-go/pkg/blockcache"
	"github.com/versity/ngnfs-go/pkg/memtr"
)

// collector gathers completions for direct transport tests.
type collector struct {
	mu    sync.Mutex
	done  chan struct{}
	bnrs  []uint64
	pages map[uint64]blockcache.Page
	errs  map[uint64]error
}

func newCollector() *collector {
	return &collector{
		done:  make(chan struct{}, 64),
		pages: make(map[uint64]blockcache.Page),
		errs:  make(map[uint64]error),
	}
}

func (c *collector) EndIO(bnr uint64, page blockcache.Page, err error) {
	c.mu.Lock()
	c.bnrs = append(c.bnrs, bnr)
	c.pages[bnr] = page
	c.errs[bnr] = err
	c.mu.Unlock()

	c.done <- struct{}{}
}

func newStarted(t *testing.T) (*memtr.Transport, *collector) {
	t.Helper()

	tr := memtr.New(memtr.Options{QueueDepth: 8})
	col := newCollector()

	if err := tr.Start(col); err != nil {
		t.Fatalf("Start: %v", err)
	}

	t.Cleanup(tr.Shutdown)

	return tr, col
}

func Test_Read_Of_Unwritten_Block_Delivers_Zeroes(t *testing.T) {
	t.Parallel()

	tr, col := newStarted(t)

	if err := tr.Submit(blockcache.OpGetRead, 3, nil); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	<-col.done

	col.mu.Lock()
	defer col.mu.Unlock()

	if col.errs[3] != nil {
		t.Fatalf("read completed with error: %v", col.errs[3])
	}

	if !bytes.Equal(col.pages[3], make([]byte, blockcache.BlockSize)) {
		t.Fatal("unwritten block must read as zeroes")
	}
}

func Test_Write_Then_Read_Round_Trips(t *testing.T) {
	t.Parallel()

	tr, col := newStarted(t)

	page := blockcache.NewPage()
	for i := range page {
		page[i] = 0x7c
	}

	if err := tr.Submit(blockcache.OpWrite, 9, page); err != nil {
		t.Fatalf("Submit write: %v", err)
	}

	<-col.done

	if err := tr.Submit(blockcache.OpGetRead, 9, nil); err != nil {
		t.Fatalf("Submit read: %v", err)
	}

	<-col.done

	col.mu.Lock()
	defer col.mu.Unlock()

	if !bytes.Equal(col.pages[9], page) {
		t.Fatal("read did not observe the written bytes")
	}

	// The transport hands back its own page, never the submitted one.
	if &col.pages[9][0] == &page[0] {
		t.Fatal("read completion must carry a fresh page")
	}
}

func Test_Injected_Errors_Reach_Completions(t *testing.T) {
	t.Parallel()

	tr, col := newStarted(t)

	tr.SetReadError(4, syscall.EIO)

	if err := tr.Submit(blockcache.OpGetRead, 4, nil); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	<-col.done

	col.mu.Lock()
	defer col.mu.Unlock()

	if col.errs[4] != syscall.EIO {
		t.Fatalf("completion error = %v, want EIO", col.errs[4])
	}
}

func Test_Held_Completions_Deliver_On_Release_In_Order(t *testing.T) {
	t.Parallel()

	tr, col := newStarted(t)

	tr.Hold()

	for bnr := uint64(1); bnr <= 3; bnr++ {
		if err := tr.Submit(blockcache.OpWrite, bnr, blockcache.NewPage()); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	select {
	case <-col.done:
		t.Fatal("held completion was delivered")
	default:
	}

	tr.Release()

	for i := 0; i < 3; i++ {
		<-col.done
	}

	col.mu.Lock()
	defer col.mu.Unlock()

	for i, want := range []uint64{1, 2, 3} {
		if col.bnrs[i] != want {
			t.Fatalf("completion %d is bnr %d, want %d", i, col.bnrs[i], want)
		}
	}
}

func Test_Submit_After_Shutdown_Returns_ErrShutdown(t *testing.T) {
	t.Parallel()

	tr := memtr.New(memtr.Options{})
	col := newCollector()

	if err := tr.Start(col); err != nil {
		t.Fatalf("Start: %v", err)
	}

	tr.Shutdown()

	err := tr.Submit(blockcache.OpGetRead, 1, nil)
	if err == nil {
		t.Fatal("Submit after Shutdown must fail")
	}
}
