package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/versity/ngnfs-go/pkg/fs"
)

// config carries the resolved global options into commands.
type config struct {
	fsys         fs.FS
	manifestPath string
	log          zerolog.Logger
}

// Run is the main entry point. Returns exit code.
// sigCh can be nil if signal handling is not needed (e.g., in tests).
func Run(_ io.Reader, out io.Writer, errOut io.Writer, args []string, sigCh <-chan os.Signal) int {
	globalFlags := flag.NewFlagSet("ngnfs-debugfs", flag.ContinueOnError)
	globalFlags.SetInterspersed(false)
	globalFlags.Usage = func() {}
	globalFlags.SetOutput(&strings.Builder{})
	flagHelp := globalFlags.BoolP("help", "h", false, "Show help")
	flagManifest := globalFlags.StringP("manifest", "m", "ngnfs.manifest", "Manifest `file` describing the filesystem")
	flagVerbose := globalFlags.BoolP("verbose", "v", false, "Log debug events to stderr")

	if err := globalFlags.Parse(args[1:]); err != nil {
		fprintln(errOut, "error:", err)
		printGlobalOptions(errOut)

		return 1
	}

	log := zerolog.Nop()
	if *flagVerbose {
		log = zerolog.New(zerolog.ConsoleWriter{Out: errOut}).With().Timestamp().Logger()
	}

	cfg := &config{
		fsys:         fs.NewReal(),
		manifestPath: *flagManifest,
		log:          log,
	}

	commands := allCommands(cfg)

	commandAndArgs := globalFlags.Args()

	// Show help: explicit --help or bare invocation with no args.
	if *flagHelp || len(commandAndArgs) == 0 {
		printUsage(out, commands)

		return 0
	}

	var cmd *command

	for _, candidate := range commands {
		if candidate.name == commandAndArgs[0] {
			cmd = candidate
			break
		}
	}

	if cmd == nil {
		fprintln(errOut, "error: unknown command:", commandAndArgs[0])
		printUsage(errOut, commands)

		return 1
	}

	cmdIO := NewIO(out, errOut)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case <-sigCh:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	return cmd.dispatch(ctx, cfg, cmdIO, commandAndArgs[1:])
}

func allCommands(cfg *config) []*command {
	return []*command{
		mkfsCmd(cfg),
		readCmd(),
		fillCmd(),
		syncCmd(),
		statCmd(),
		benchCmd(),
		shellCmd(),
	}
}

func printUsage(w io.Writer, commands []*command) {
	fprintln(w, "Usage: ngnfs-debugfs [global flags] <command> [args]")
	fprintln(w)
	fprintln(w, "Commands:")

	for _, cmd := range commands {
		_, _ = fmt.Fprintf(w, "  %-28s %s\n", cmd.synopsis(), cmd.short)
	}

	fprintln(w)
	printGlobalOptions(w)
}

func printGlobalOptions(w io.Writer) {
	fprintln(w, "Global flags:")
	fprintln(w, "  -m, --manifest file   Manifest file (default \"ngnfs.manifest\")")
	fprintln(w, "  -v, --verbose         Log debug events to stderr")
	fprintln(w, "  -h, --help            Show help")
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}
