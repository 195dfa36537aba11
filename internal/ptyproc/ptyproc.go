// Package ptyproc wraps a single OS pseudo-terminal process. It treats the
// PTY as the opaque resource described in §1: a read half, a write half, and
// a resize handle, with no re-specification of PTY semantics beyond that.
package ptyproc

import (
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/creack/pty"

	"github.com/tabd/tabd/internal/tab"
)

// Process is a running PTY-backed shell.
type Process struct {
	file *os.File
	cmd  *exec.Cmd

	mu     sync.Mutex
	closed bool

	doneOnce sync.Once
	doneCh   chan struct{}
}

// Start spawns shell (falling back to DefaultShell when empty) in dir with
// the given initial dimensions.
func Start(shell, dir string, dims tab.Dimensions) (*Process, error) {
	parts := strings.Fields(shell)
	if len(parts) == 0 {
		parts = strings.Fields(DefaultShell())
	}

	cmd := exec.Command(parts[0], parts[1:]...)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	if dir != "" {
		cmd.Dir = dir
	}

	f, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: dims.Cols, Rows: dims.Rows})
	if err != nil {
		return nil, err
	}

	return &Process{file: f, cmd: cmd}, nil
}

// DefaultShell returns $SHELL, falling back to "/usr/bin/env bash" (§6).
func DefaultShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/usr/bin/env bash"
}

// Read reads raw stdout bytes from the PTY.
func (p *Process) Read(buf []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, os.ErrClosed
	}
	f := p.file
	p.mu.Unlock()
	return f.Read(buf)
}

// Write writes raw stdin bytes to the PTY.
func (p *Process) Write(data []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, os.ErrClosed
	}
	f := p.file
	p.mu.Unlock()
	return f.Write(data)
}

// Resize changes the PTY window size.
func (p *Process) Resize(dims tab.Dimensions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return os.ErrClosed
	}
	return pty.Setsize(p.file, &pty.Winsize{Cols: dims.Cols, Rows: dims.Rows})
}

// Close terminates the PTY: kills the process if still running and closes
// the PTY file.
func (p *Process) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
	return p.file.Close()
}

// Done returns a channel that closes when the underlying process exits.
func (p *Process) Done() <-chan struct{} {
	p.doneOnce.Do(func() {
		p.doneCh = make(chan struct{})
		go func() {
			if p.cmd != nil {
				p.cmd.Wait()
			}
			close(p.doneCh)
		}()
	})
	return p.doneCh
}
