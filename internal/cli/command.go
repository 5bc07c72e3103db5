// Package cli implements the command-line interface for ngnfs-debugfs.
package cli

import (
	"context"
	"errors"
	"io"
	"strings"

	flag "github.com/spf13/pflag"
)

// command is one debugfs command. Most commands operate on a mounted
// filesystem; those set execSess and the dispatcher mounts the session
// around them, so command bodies never deal with manifest loading or
// teardown. Commands that manage filesystems from the outside (mkfs)
// set exec instead.
type command struct {
	// flags holds command-specific flags; always non-nil.
	flags *flag.FlagSet

	// name is the word users type to invoke the command.
	name string

	// args is the argument synopsis shown after the name in help,
	// e.g. "<bnr> [-l <bytes>]". Empty for commands without
	// arguments.
	args string

	// short is the one-line description for the command listing;
	// long, if set, replaces it in per-command help.
	short string
	long  string

	// exec runs without a mounted filesystem.
	exec func(ctx context.Context, o *IO, args []string) error

	// execSess runs over the session the dispatcher mounted from the
	// manifest. Exactly one of exec and execSess is set.
	execSess func(ctx context.Context, o *IO, sess *Session, args []string) error
}

// synopsis is the full usage line body: name plus argument summary.
func (c *command) synopsis() string {
	if c.args == "" {
		return c.name
	}

	return c.name + " " + c.args
}

// dispatch parses the command's flags and runs it, mounting a session
// first when the command wants one. Returns the process exit code.
func (c *command) dispatch(ctx context.Context, cfg *config, o *IO, args []string) int {
	c.flags.SetOutput(io.Discard)

	if err := c.flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			c.printHelp(o)
			return 0
		}

		o.ErrPrintln("error:", err)
		c.printHelp(o)

		return 1
	}

	rest := c.flags.Args()

	var err error

	switch {
	case c.execSess != nil:
		var sess *Session

		sess, err = OpenSession(cfg.fsys, cfg.manifestPath, cfg.log)
		if err == nil {
			err = c.execSess(ctx, o, sess, rest)
			sess.Close()
		}

	default:
		err = c.exec(ctx, o, rest)
	}

	if err != nil {
		o.ErrPrintln("error:", err)
		return 1
	}

	return o.Finish()
}

// printHelp writes the per-command help.
func (c *command) printHelp(o *IO) {
	o.Printf("Usage: ngnfs-debugfs %s\n\n", c.synopsis())

	if c.long != "" {
		o.Printf("%s\n", c.long)
	} else {
		o.Printf("%s\n", c.short)
	}

	if c.flags.HasFlags() {
		var buf strings.Builder

		c.flags.SetOutput(&buf)
		c.flags.PrintDefaults()

		o.Printf("\nFlags:\n%s", buf.String())
	}
}
