// Package daemonfile manages the well-known daemon record (§6: "a single-
// file record ... containing { pid, port, auth_token }"). It is written
// atomically at startup, removed on clean shutdown, and watched so the
// daemon can react if something external removes it out from under it
// (SPEC_FULL.md SUPPLEMENTED FEATURES).
package daemonfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Record is the daemon file's contents.
type Record struct {
	Pid       int    `json:"pid"`
	Port      uint16 `json:"port"`
	AuthToken string `json:"auth_token"`
}

// File owns the on-disk record for the running daemon's lifetime.
type File struct {
	path    string
	log     *logrus.Logger
	watcher *fsnotify.Watcher
}

// Path resolves the daemon file location: $TAB_RUNTIME_DIR/tabd.json if set,
// otherwise a directory under the user's OS-standard runtime/config
// location (§6 "platform-standard config and runtime directories").
func Path() string {
	if dir := os.Getenv("TAB_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "tabd.json")
	}
	base, err := os.UserConfigDir()
	if err != nil || base == "" {
		base = os.TempDir()
	}
	return filepath.Join(base, "tabd", "tabd.json")
}

// New writes rec to Path() atomically (write-to-temp then rename) and
// starts watching the containing directory for external removal of the
// file, logging a warning if that happens (it does not itself trigger
// shutdown; the daemon root decides what to do with the warning).
func New(log *logrus.Logger, rec Record) (*File, error) {
	path := Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("daemonfile: mkdir: %w", err)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("daemonfile: marshal: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return nil, fmt.Errorf("daemonfile: write temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return nil, fmt.Errorf("daemonfile: rename: %w", err)
	}

	f := &File{path: path, log: log}

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		if watchErr := watcher.Add(filepath.Dir(path)); watchErr == nil {
			f.watcher = watcher
			go f.watchLoop()
		} else {
			watcher.Close()
		}
	} else if log != nil {
		log.WithError(err).Warn("daemonfile: watcher unavailable, external removal will go unnoticed")
	}

	return f, nil
}

func (f *File) watchLoop() {
	for event := range f.watcher.Events {
		if event.Name != f.path {
			continue
		}
		if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
			if f.log != nil {
				f.log.WithField("path", f.path).Warn("daemon file removed externally")
			}
		}
	}
}

// Path returns the path this File was written to.
func (f *File) Path() string {
	return f.path
}

// Remove deletes the daemon file and stops the watcher. Safe to call more
// than once; a missing file is not an error (mirrors the original's "drop"
// semantics on clean exit).
func (f *File) Remove() error {
	if f.watcher != nil {
		f.watcher.Close()
		f.watcher = nil
	}
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("daemonfile: remove: %w", err)
	}
	return nil
}

// Read loads the record at Path(), used by the client to discover a
// running daemon's port and auth token.
func Read() (Record, error) {
	data, err := os.ReadFile(Path())
	if err != nil {
		return Record{}, fmt.Errorf("daemonfile: read: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("daemonfile: unmarshal: %w", err)
	}
	return rec, nil
}
