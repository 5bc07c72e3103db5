package manifest_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/versity/ngnfs-go/internal/manifest"
	"github.com/versity/ngnfs-go/pkg/fs"
)

func Test_Save_Load_Round_Trips(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ngnfs.manifest")

	man, err := manifest.New(4096, []string{"/dev/a", "/dev/b"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := man.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := manifest.Load(fs.NewReal(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if diff := cmp.Diff(man, loaded); diff != "" {
		t.Fatalf("manifest round trip mismatch (-saved +loaded):\n%s", diff)
	}
}

func Test_Load_Accepts_Comments_And_Trailing_Commas(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ngnfs.manifest")

	raw := `{
	// the lab filesystem
	"fsid": "a2ef34c1-9c4e-4c5e-8f2e-54c6e0e7a10b",
	"total_blocks": 128,
	"devices": [
		"/dev/a",
		"/dev/b", // trailing comma below is fine
	],
}
`

	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	man, err := manifest.Load(fs.NewReal(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if man.TotalBlocks != 128 || len(man.Devices) != 2 {
		t.Fatalf("unexpected manifest: %+v", man)
	}
}

func Test_Load_Rejects_Empty_Device_List(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ngnfs.manifest")

	raw := `{"fsid": "a2ef34c1-9c4e-4c5e-8f2e-54c6e0e7a10b", "total_blocks": 1, "devices": []}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := manifest.Load(fs.NewReal(), path)
	if !errors.Is(err, manifest.ErrNoDevices) {
		t.Fatalf("Load of empty device list must return ErrNoDevices; got %v", err)
	}
}

func Test_Load_Rejects_Garbage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "ngnfs.manifest")

	if err := os.WriteFile(path, []byte("not a manifest"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := manifest.Load(fs.NewReal(), path)
	if !errors.Is(err, manifest.ErrInvalid) {
		t.Fatalf("Load of garbage must return ErrInvalid; got %v", err)
	}
}

func Test_MapBlock_Stripes_Across_Devices(t *testing.T) {
	t.Parallel()

	man, err := manifest.New(16, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	want := []string{"a", "b", "c", "a", "b", "c"}
	for bnr, dev := range want {
		if got := man.MapBlock(uint64(bnr)); got != dev {
			t.Fatalf("MapBlock(%d) = %s, want %s", bnr, got, dev)
		}
	}
}
