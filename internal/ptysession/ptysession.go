// Package ptysession implements the per-tab PTY session (§4.6 C6): three
// concurrent flows -- a stdout reader, a control/input consumer, and an exit
// watcher -- joined by select.
package ptysession

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/tabd/tabd/internal/bus"
	"github.com/tabd/tabd/internal/chunk"
	"github.com/tabd/tabd/internal/message"
	"github.com/tabd/tabd/internal/ptyproc"
	"github.com/tabd/tabd/internal/scrollback"
	"github.com/tabd/tabd/internal/tab"
)

// readBufferSize matches the teacher hub's 32KiB stdout read buffer.
const readBufferSize = 32 * 1024

// Session owns one PTY for the duration of one tab's Running state.
type Session struct {
	log   *logrus.Logger
	id    tab.Id
	proc  *ptyproc.Process
	back  *scrollback.Buffer
	send  *bus.Broadcast[message.TabSend]
	recvSub *bus.Subscriber[message.TabRecv]
	recvBus *bus.Broadcast[message.TabRecv]

	offset  uint64
	onExit  func(tab.Id)
	group   bus.Group
}

// New creates a session for the given tab. recvBus is the shared TabRecv
// broadcast that every session subscribes to and filters by id (plus the
// unconditional TerminateAll); send is the shared TabSend broadcast that
// Output/Stopped/Scrollback are published on. onExit is called once, after
// the exit watcher observes the process exiting, so the caller (daemon
// root) can finish the tab manager's lifecycle transition.
func New(log *logrus.Logger, id tab.Id, proc *ptyproc.Process, capBytes int, recvBus *bus.Broadcast[message.TabRecv], send *bus.Broadcast[message.TabSend], onExit func(tab.Id)) *Session {
	return &Session{
		log:     log,
		id:      id,
		proc:    proc,
		back:    scrollback.NewWithCap(capBytes),
		send:    send,
		recvBus: recvBus,
		onExit:  onExit,
	}
}

// Run starts the three flows and blocks until all have exited (on
// TerminateAll, PTY exit, or ctx cancellation).
func (s *Session) Run(ctx context.Context) {
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.recvSub = s.recvBus.Subscribe()
	defer s.recvBus.Unsubscribe(s.recvSub)

	s.group.Add(bus.Spawn(sessionCtx, s.log, "pty-stdout-reader", s.readLoop))
	s.group.Add(bus.Spawn(sessionCtx, s.log, "pty-control-consumer", s.controlLoop))
	s.group.Add(bus.Spawn(sessionCtx, s.log, "pty-exit-watcher", s.exitWatch(cancel)))

	s.group.Wait()
}

// readLoop is flow 1: reads raw PTY bytes, wraps them as an OutputChunk
// indexed by the running byte offset, pushes to scrollback, and publishes
// TabSend::Output (§4.6 item 1).
func (s *Session) readLoop(ctx context.Context) error {
	buf := make([]byte, readBufferSize)
	for {
		n, err := s.proc.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])

			c := chunk.OutputChunk{Index: s.offset, Data: data}
			s.offset += uint64(n)

			if pushErr := s.back.Push(c); pushErr != nil && s.log != nil {
				s.log.WithError(pushErr).WithField("tab_id", s.id).Warn("scrollback push rejected")
			}

			s.send.Publish(message.TabSend{Output: &message.TabOutput{Id: s.id, Stdout: &c}})
		}
		if err != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}

// controlLoop is flow 2: consumes TabRecv, writing Input to the PTY stdin
// in arrival order, resizing on Resize, replying to Scrollback requests,
// and tearing down on TerminateAll (§4.6 item 2). Retask messages are
// ignored here -- they are a client-facing broadcast instruction (§4.5) and
// carry no meaning for the PTY itself.
func (s *Session) controlLoop(ctx context.Context) error {
	for {
		select {
		case d, ok := <-s.recvSub.Recv():
			if !ok {
				return nil
			}
			msg := d.Value
			switch {
			case msg.TerminateAll:
				s.proc.Close()
				return nil
			case msg.Input != nil && msg.Input.Id == s.id:
				s.proc.Write(msg.Input.Stdin.Data)
			case msg.ResizeId != nil && *msg.ResizeId == s.id && msg.ResizeDims != nil:
				if err := s.proc.Resize(*msg.ResizeDims); err != nil && s.log != nil {
					s.log.WithError(err).WithField("tab_id", s.id).Warn("resize failed")
				}
			case msg.Scrollback != nil && *msg.Scrollback == s.id:
				back := s.back
				s.send.Publish(message.TabSend{Scrollback: &message.TabScrollback{Id: s.id, Scrollback: back}})
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// exitWatch is flow 3: when the PTY process reaps, publish TabSend::Stopped
// and run onExit so the manager can complete the lifecycle (§4.6 item 3).
func (s *Session) exitWatch(cancelSiblings context.CancelFunc) func(context.Context) error {
	return func(ctx context.Context) error {
		select {
		case <-s.proc.Done():
		case <-ctx.Done():
			return nil
		}

		id := s.id
		s.send.Publish(message.TabSend{Stopped: &id})
		if s.onExit != nil {
			s.onExit(id)
		}
		cancelSiblings()
		return nil
	}
}

// ScrollbackSnapshot returns the current coalesced scrollback chunk. Exposed
// for callers (e.g. tests, or a direct scrollback query path) that don't
// want to go through the TabRecv::Scrollback round trip.
func (s *Session) ScrollbackSnapshot() chunk.OutputChunk {
	return s.back.Snapshot()
}
