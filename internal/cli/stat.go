package cli

import (
	"context"

	flag "github.com/spf13/pflag"
)

// syncCmd flushes the mounted filesystem. For one-shot invocations it
// mostly proves the filesystem mounts and flushes cleanly; in the
// shell it flushes the session's dirty blocks.
func syncCmd() *command {
	return &command{
		flags: flag.NewFlagSet("sync", flag.ContinueOnError),
		name:  "sync",
		short: "Flush all dirty blocks",
		execSess: func(_ context.Context, _ *IO, sess *Session, _ []string) error {
			return sess.Sync()
		},
	}
}

func statCmd() *command {
	return &command{
		flags: flag.NewFlagSet("stat", flag.ContinueOnError),
		name:  "stat",
		short: "Show superblock and cache counters",
		execSess: func(_ context.Context, o *IO, sess *Session, _ []string) error {
			return statFS(o, sess)
		},
	}
}

func statFS(o *IO, sess *Session) error {
	sb, err := sess.ReadSuper()
	if err != nil {
		return err
	}

	stats := sess.Stats()

	o.Printf("fsid: %s\n", sb.fsid)
	o.Printf("total_blocks: %d\n", sb.totalBlocks)
	o.Printf("devices: %d\n", len(sess.Manifest().Devices))
	o.Printf("nr_dirty: %d\n", stats.NrDirty)
	o.Printf("nr_writeback: %d\n", stats.NrWriteback)
	o.Printf("nr_submitted: %d\n", stats.NrSubmitted)
	o.Printf("dirty_seq: %d\n", stats.DirtySeq)
	o.Printf("writeback_seq: %d\n", stats.WritebackSeq)
	o.Printf("sync_seq: %d\n", stats.SyncSeq)

	return nil
}
