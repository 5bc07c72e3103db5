package cli_test

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/versity/ngnfs-go/internal/cli"
)

func run(t *testing.T, args ...string) (string, string, int) {
	t.Helper()

	var out, errOut bytes.Buffer

	code := cli.Run(strings.NewReader(""), &out, &errOut,
		append([]string{"ngnfs-debugfs"}, args...), nil)

	return out.String(), errOut.String(), code
}

func Test_Mkfs_Fill_Read_Stat_End_To_End(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	man := filepath.Join(dir, "ngnfs.manifest")
	dev0 := filepath.Join(dir, "dev0")
	dev1 := filepath.Join(dir, "dev1")

	out, errOut, code := run(t, "-m", man, "mkfs", "-d", dev0, "-d", dev1, "-b", "64")
	if code != 0 {
		t.Fatalf("mkfs exited %d: %s", code, errOut)
	}

	if !strings.Contains(out, "fsid:") || !strings.Contains(out, "devices: 2") {
		t.Fatalf("mkfs output missing fields: %q", out)
	}

	_, errOut, code = run(t, "-m", man, "fill", "3", "4", "0xab")
	if code != 0 {
		t.Fatalf("fill exited %d: %s", code, errOut)
	}

	out, errOut, code = run(t, "-m", man, "read", "3")
	if code != 0 {
		t.Fatalf("read exited %d: %s", code, errOut)
	}

	if !strings.Contains(out, "ab ab ab ab") {
		t.Fatalf("read output does not show the filled bytes: %q", out)
	}

	out, errOut, code = run(t, "-m", man, "stat")
	if code != 0 {
		t.Fatalf("stat exited %d: %s", code, errOut)
	}

	for _, field := range []string{"fsid:", "total_blocks: 64", "nr_dirty: 0"} {
		if !strings.Contains(out, field) {
			t.Fatalf("stat output missing %q: %q", field, out)
		}
	}
}

func Test_Read_Without_Manifest_Fails(t *testing.T) {
	t.Parallel()

	man := filepath.Join(t.TempDir(), "missing.manifest")

	_, errOut, code := run(t, "-m", man, "read", "0")
	if code == 0 {
		t.Fatal("read without a manifest must fail")
	}

	if !strings.Contains(errOut, "error:") {
		t.Fatalf("stderr missing error line: %q", errOut)
	}
}

func Test_Unknown_Command_Lists_Usage(t *testing.T) {
	t.Parallel()

	_, errOut, code := run(t, "bogus")
	if code != 1 {
		t.Fatalf("unknown command exited %d, want 1", code)
	}

	if !strings.Contains(errOut, "unknown command") || !strings.Contains(errOut, "Commands:") {
		t.Fatalf("stderr missing usage: %q", errOut)
	}
}

func Test_Bench_Writes_And_Reports(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	man := filepath.Join(dir, "ngnfs.manifest")
	dev0 := filepath.Join(dir, "dev0")

	_, errOut, code := run(t, "-m", man, "mkfs", "-d", dev0, "-b", "256")
	if code != 0 {
		t.Fatalf("mkfs exited %d: %s", code, errOut)
	}

	out, errOut, code := run(t, "-m", man, "bench", "-b", "128", "-w", "4")
	if code != 0 {
		t.Fatalf("bench exited %d: %s", code, errOut)
	}

	if !strings.Contains(out, "wrote 128 blocks") {
		t.Fatalf("bench output missing summary: %q", out)
	}
}
