package daemonfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteReadRemoveRoundTrip(t *testing.T) {
	t.Setenv("TAB_RUNTIME_DIR", t.TempDir())

	rec := Record{Pid: 1234, Port: 5678, AuthToken: "tok-abc"}
	f, err := New(nil, rec)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != rec {
		t.Fatalf("Read() = %+v, want %+v", got, rec)
	}

	if err := f.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := Read(); err == nil {
		t.Fatal("expected Read to fail after Remove")
	}

	// Remove is idempotent.
	if err := f.Remove(); err != nil {
		t.Fatalf("second Remove should be a no-op, got: %v", err)
	}
}

func TestPathPrefersRuntimeDirEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TAB_RUNTIME_DIR", dir)

	if got, want := Path(), filepath.Join(dir, "tabd.json"); got != want {
		t.Fatalf("Path() = %q, want %q", got, want)
	}
}

func TestExternalRemovalLogsWarningNotPanic(t *testing.T) {
	t.Setenv("TAB_RUNTIME_DIR", t.TempDir())

	rec := Record{Pid: 1, Port: 1, AuthToken: "x"}
	f, err := New(nil, rec)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer f.Remove()

	// Simulate something external deleting the file out from under us; the
	// watch loop should observe this without the daemon crashing. There's no
	// externally observable synchronization point short of the log call
	// itself, so this just exercises the path without asserting timing.
	if err := os.Remove(f.Path()); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
}
