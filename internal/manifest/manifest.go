// Package manifest describes a filesystem instance: its identity and
// the ordered set of device files that serve its block address space.
//
// The manifest file is HuJSON (JSON with comments and trailing commas)
// so operators can annotate it; it is rewritten atomically so a crashed
// update never leaves a torn file behind.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	natomic "github.com/natefinch/atomic"
	"github.com/tailscale/hujson"

	"github.com/versity/ngnfs-go/pkg/fs"
)

// Manifest errors, classified with [errors.Is].
var (
	// ErrNoDevices indicates a manifest with an empty device list.
	ErrNoDevices = errors.New("manifest: no devices")

	// ErrInvalid indicates a manifest file that does not parse.
	ErrInvalid = errors.New("manifest: invalid")
)

// Manifest is one filesystem instance description.
type Manifest struct {
	// FSID uniquely identifies the filesystem across all devices.
	FSID uuid.UUID `json:"fsid"`

	// TotalBlocks is the size of the block address space.
	TotalBlocks uint64 `json:"total_blocks"`

	// Devices lists the device file paths in address order.
	Devices []string `json:"devices"`
}

// New returns a manifest for a fresh filesystem over the given devices.
func New(totalBlocks uint64, devices []string) (*Manifest, error) {
	if len(devices) == 0 {
		return nil, ErrNoDevices
	}

	return &Manifest{
		FSID:        uuid.New(),
		TotalBlocks: totalBlocks,
		Devices:     devices,
	}, nil
}

// Load reads and validates the manifest at path.
func Load(fsys fs.FS, path string) (*Manifest, error) {
	raw, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	std, err := hujson.Standardize(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	var m Manifest
	if err := json.Unmarshal(std, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if len(m.Devices) == 0 {
		return nil, ErrNoDevices
	}

	return &m, nil
}

// Save atomically replaces the manifest at path.
func (m *Manifest) Save(path string) error {
	if len(m.Devices) == 0 {
		return ErrNoDevices
	}

	data, err := json.MarshalIndent(m, "", "\t")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}

	data = append(data, '\n')

	if err := natomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}

	return nil
}

// MapBlock resolves bnr to the device path serving it. Blocks are
// striped across devices in address order.
func (m *Manifest) MapBlock(bnr uint64) string {
	return m.Devices[bnr%uint64(len(m.Devices))]
}
