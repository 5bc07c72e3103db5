package cli

import (
	"context"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/versity/ngnfs-go/pkg/blockcache"
)

// benchCmd measures transactional write throughput: concurrent writers
// filling disjoint block ranges, then one sync.
func benchCmd() *command {
	flags := flag.NewFlagSet("bench", flag.ContinueOnError)
	blocks := flags.Uint64P("blocks", "b", 512, "Blocks to write")
	workers := flags.IntP("workers", "w", 4, "Concurrent writers")
	start := flags.Uint64P("start", "s", 1, "First block to write")

	return &command{
		flags: flags,
		name:  "bench",
		args:  "[-b <blocks>] [-w <workers>]",
		short: "Measure transactional write throughput",
		execSess: func(ctx context.Context, o *IO, sess *Session, _ []string) error {
			if *workers < 1 {
				*workers = 1
			}

			began := time.Now()

			g, _ := errgroup.WithContext(ctx)

			per := *blocks / uint64(*workers)
			for i := 0; i < *workers; i++ {
				first := *start + uint64(i)*per

				count := per
				if i == *workers-1 {
					count = *blocks - uint64(i)*per
				}

				g.Go(func() error {
					return sess.FillBlocks(first, count, byte(first))
				})
			}

			if err := g.Wait(); err != nil {
				return err
			}

			if err := sess.Sync(); err != nil {
				return err
			}

			elapsed := time.Since(began)
			mb := float64(*blocks) * blockcache.BlockSize / (1 << 20)

			o.Printf("wrote %d blocks in %v (%.1f MiB/s)\n",
				*blocks, elapsed.Round(time.Millisecond), mb/elapsed.Seconds())

			return nil
		},
	}
}
