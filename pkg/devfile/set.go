package devfile

import "github.com/versity/ngnfs-go/pkg/blockcache"

// Set multiplexes a pool of devices behind one transport. A route
// function picks the device serving each block number; the manifest
// layer supplies it.
type Set struct {
	devs  []*Device
	route func(bnr uint64) int
}

// NewSet groups devs behind route.
func NewSet(devs []*Device, route func(bnr uint64) int) *Set {
	return &Set{devs: devs, route: route}
}

// Start starts every device in the set.
func (s *Set) Start(h blockcache.CompletionHandler) error {
	for _, d := range s.devs {
		if err := d.Start(h); err != nil {
			return err
		}
	}

	return nil
}

// QueueDepth returns the pooled submission budget of all devices.
func (s *Set) QueueDepth() int {
	depth := 0
	for _, d := range s.devs {
		depth += d.QueueDepth()
	}

	return depth
}

// Submit routes the op to the device serving bnr.
func (s *Set) Submit(op blockcache.Op, bnr uint64, page blockcache.Page) error {
	return s.devs[s.route(bnr)].Submit(op, bnr, page)
}

// Shutdown stops every device.
func (s *Set) Shutdown() {
	for _, d := range s.devs {
		d.Shutdown()
	}
}

// Destroy releases every device.
func (s *Set) Destroy() {
	for _, d := range s.devs {
		d.Destroy()
	}
}
