package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"
)

// Shell command names, for completion and dispatch.
var shellCommands = []string{"read", "fill", "sync", "stat", "help", "quit"}

// shellCmd is the interactive shell. The dispatcher mounts one session
// for the whole conversation, so dirty state carries across commands
// and a final explicit sync is meaningful.
func shellCmd() *command {
	return &command{
		flags: flag.NewFlagSet("shell", flag.ContinueOnError),
		name:  "shell",
		short: "Interactive debugfs session",
		execSess: func(ctx context.Context, o *IO, sess *Session, _ []string) error {
			return runShell(ctx, o, sess)
		},
	}
}

func runShell(ctx context.Context, o *IO, sess *Session) error {
	line := liner.NewLiner()
	defer func() { _ = line.Close() }()

	line.SetCtrlCAborts(true)
	line.SetCompleter(func(prefix string) []string {
		var out []string
		for _, name := range shellCommands {
			if strings.HasPrefix(name, prefix) {
				out = append(out, name)
			}
		}

		return out
	})

	historyPath := filepath.Join(os.TempDir(), ".ngnfs_debugfs_history")
	if f, err := os.Open(historyPath); err == nil {
		_, _ = line.ReadHistory(f)
		_ = f.Close()
	}

	defer func() {
		if f, err := os.Create(historyPath); err == nil {
			_, _ = line.WriteHistory(f)
			_ = f.Close()
		}
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		input, err := line.Prompt("ngnfs> ")
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return err
		}

		fields := strings.Fields(input)
		if len(fields) == 0 {
			continue
		}

		line.AppendHistory(input)

		if fields[0] == "quit" || fields[0] == "exit" {
			return nil
		}

		if err := dispatchShell(o, sess, fields[0], fields[1:]); err != nil {
			o.ErrPrintln("error:", err)
		}
	}
}

func dispatchShell(o *IO, sess *Session, name string, args []string) error {
	switch name {
	case "read":
		bnr, err := parseBnr(args)
		if err != nil {
			return err
		}

		return readBlock(o, sess, bnr, 64)

	case "fill":
		bnr, count, val, err := parseFillArgs(args)
		if err != nil {
			return err
		}

		return sess.FillBlocks(bnr, count, val)

	case "sync":
		return sess.Sync()

	case "stat":
		return statFS(o, sess)

	case "help":
		o.Println("commands: read <bnr> | fill <bnr> <count> <byte> | sync | stat | quit")
		return nil

	default:
		return fmt.Errorf("unknown command: %s", name)
	}
}
