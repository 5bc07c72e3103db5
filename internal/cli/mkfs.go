package cli

import (
	"context"
	"errors"

	flag "github.com/spf13/pflag"
)

var errDevicesRequired = errors.New("at least one --device is required")

// mkfsCmd creates a new filesystem; the only command that runs without
// a mounted session, since it builds what the others mount.
func mkfsCmd(cfg *config) *command {
	flags := flag.NewFlagSet("mkfs", flag.ContinueOnError)
	devices := flags.StringArrayP("device", "d", nil, "Device `file` (repeatable)")
	blocks := flags.Uint64P("blocks", "b", 1024, "Total blocks in the address space")

	return &command{
		flags: flags,
		name:  "mkfs",
		args:  "-d <dev>... [-b <blocks>]",
		short: "Create a new filesystem",
		long: "Create the device files and manifest for a new filesystem\n" +
			"and write its superblock.",
		exec: func(_ context.Context, o *IO, _ []string) error {
			if len(*devices) == 0 {
				return errDevicesRequired
			}

			man, err := Mkfs(cfg.fsys, cfg.manifestPath, *devices, *blocks, cfg.log)
			if err != nil {
				return err
			}

			o.Printf("fsid: %s\n", man.FSID)
			o.Printf("blocks: %d\n", man.TotalBlocks)
			o.Printf("devices: %d\n", len(man.Devices))

			return nil
		},
	}
}
