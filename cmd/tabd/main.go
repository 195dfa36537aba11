// Command tabd is the tab daemon: it owns every running PTY-backed tab and
// serves client sessions over a loopback websocket (§1, §4.8, §6).
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/tabd/tabd/internal/daemon"
)

func main() {
	log := newLogger()

	cfg := daemon.Config{ScrollbackCapBytes: 256 * 1024}
	d := daemon.New(log, cfg)

	if err := d.Run(context.Background()); err != nil {
		log.WithError(err).Fatal("daemon exited with error")
	}
}

// newLogger builds the logrus logger writing to both stderr and a runtime
// logfile (SPEC_FULL.md SUPPLEMENTED FEATURES #4), with its level taken
// from TAB_LOG (§6 "Environment").
func newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	level := logrus.InfoLevel
	if raw := os.Getenv("TAB_LOG"); raw != "" {
		if parsed, err := logrus.ParseLevel(raw); err == nil {
			level = parsed
		}
	}
	log.SetLevel(level)

	if logFile, err := openLogFile(); err == nil {
		log.SetOutput(io.MultiWriter(os.Stderr, logFile))
	} else {
		log.WithError(err).Warn("could not open daemon log file, logging to stderr only")
	}

	return log
}

func openLogFile() (*os.File, error) {
	dir := os.Getenv("TAB_RUNTIME_DIR")
	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil || base == "" {
			base = os.TempDir()
		}
		dir = filepath.Join(base, "tabd")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("mkdir log dir: %w", err)
	}
	return os.OpenFile(filepath.Join(dir, "tabd.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
}
