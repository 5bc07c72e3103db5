package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	flag "github.com/spf13/pflag"
)

var errBnrRequired = errors.New("block number required")

func parseBnr(args []string) (uint64, error) {
	if len(args) == 0 {
		return 0, errBnrRequired
	}

	bnr, err := strconv.ParseUint(args[0], 0, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing block number %q: %w", args[0], err)
	}

	return bnr, nil
}

func readCmd() *command {
	flags := flag.NewFlagSet("read", flag.ContinueOnError)
	length := flags.IntP("length", "l", 64, "Bytes to dump")

	return &command{
		flags: flags,
		name:  "read",
		args:  "<bnr> [-l <bytes>]",
		short: "Read a block and hex dump its head",
		execSess: func(_ context.Context, o *IO, sess *Session, args []string) error {
			bnr, err := parseBnr(args)
			if err != nil {
				return err
			}

			return readBlock(o, sess, bnr, *length)
		},
	}
}

func readBlock(o *IO, sess *Session, bnr uint64, length int) error {
	buf, err := sess.ReadBlock(bnr)
	if err != nil {
		return err
	}

	if length > len(buf) {
		length = len(buf)
	}

	for off := 0; off < length; off += 16 {
		end := off + 16
		if end > length {
			end = length
		}

		o.Printf("%08x  % x\n", off, buf[off:end])
	}

	return nil
}
