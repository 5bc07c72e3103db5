package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	flag "github.com/spf13/pflag"
)

var errFillArgs = errors.New("usage: fill <bnr> <count> <byte>")

func fillCmd() *command {
	return &command{
		flags: flag.NewFlagSet("fill", flag.ContinueOnError),
		name:  "fill",
		args:  "<bnr> <count> <byte>",
		short: "Fill blocks with a byte value and sync",
		long: "Overwrite count blocks starting at bnr with the given byte\n" +
			"value, grouped into atomic transactions, then sync.",
		execSess: func(_ context.Context, o *IO, sess *Session, args []string) error {
			bnr, count, val, err := parseFillArgs(args)
			if err != nil {
				return err
			}

			if err := sess.FillBlocks(bnr, count, val); err != nil {
				return err
			}

			if err := sess.Sync(); err != nil {
				return err
			}

			o.Printf("filled %d blocks at %d with 0x%02x\n", count, bnr, val)

			return nil
		},
	}
}

func parseFillArgs(args []string) (bnr, count uint64, val byte, err error) {
	if len(args) != 3 {
		return 0, 0, 0, errFillArgs
	}

	bnr, err = parseBnr(args)
	if err != nil {
		return 0, 0, 0, err
	}

	count, err = strconv.ParseUint(args[1], 0, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("parsing count %q: %w", args[1], err)
	}

	v, err := strconv.ParseUint(args[2], 0, 8)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("parsing byte value %q: %w", args[2], err)
	}

	return bnr, count, byte(v), nil
}
