// Package clientsession implements the client-session bus glue (§4.7 C7):
// the translation between a decoded wire Request/Response stream and the
// shared TabRecv / TabManagerRecv / TabSend / TabManagerSend buses, scoped
// per connection by a tab id subscription set.
package clientsession

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tabd/tabd/internal/bus"
	"github.com/tabd/tabd/internal/message"
	"github.com/tabd/tabd/internal/subscription"
	"github.com/tabd/tabd/internal/tab"
)

// globalShutdownDrain matches the original create_tab / cli bus's 50ms pause
// taken after broadcasting TerminateAll and requesting listener and daemon
// shutdown, giving in-flight PTY exit notifications a chance to reach
// clients before the connection is torn down (§4.7, §5).
const globalShutdownDrain = 50 * time.Millisecond

// Session wires one connection's CliSend/CliRecv pair to the shared buses.
// It owns the subscription set that filters Output/Retask delivery to only
// the tabs this connection has subscribed to (§4.3, §8 "Subscription
// filter").
type Session struct {
	log  *logrus.Logger
	subs *subscription.Set[tab.Id]

	cliSend *bus.FIFO[message.CliSend]
	cliRecv *bus.FIFO[message.CliRecv]

	tabRecv    *bus.Broadcast[message.TabRecv]
	tabSend    *bus.Broadcast[message.TabSend]
	managerReq *bus.FIFO[message.TabManagerRecv]
	managerSend *bus.Broadcast[message.TabManagerSend]
	listenerShutdown *bus.FIFO[message.ListenerShutdown]
	daemonShutdown   *bus.Watch[message.DaemonShutdown]

	group bus.Group
}

// Deps bundles the shared buses a Session forwards between. They are owned
// by the listener/daemon root and shared across every connection.
type Deps struct {
	TabRecv          *bus.Broadcast[message.TabRecv]
	TabSend          *bus.Broadcast[message.TabSend]
	ManagerRecv      *bus.FIFO[message.TabManagerRecv]
	ManagerSend      *bus.Broadcast[message.TabManagerSend]
	ListenerShutdown *bus.FIFO[message.ListenerShutdown]
	DaemonShutdown   *bus.Watch[message.DaemonShutdown]
}

// New creates a session for one connection. cliSend carries decoded
// requests in from the wire layer; cliRecv carries responses back out to
// it.
func New(log *logrus.Logger, deps Deps, cliSend *bus.FIFO[message.CliSend], cliRecv *bus.FIFO[message.CliRecv]) *Session {
	return &Session{
		log:              log,
		subs:             subscription.NewSet[tab.Id](),
		cliSend:          cliSend,
		cliRecv:          cliRecv,
		tabRecv:          deps.TabRecv,
		tabSend:          deps.TabSend,
		managerReq:       deps.ManagerRecv,
		managerSend:      deps.ManagerSend,
		listenerShutdown: deps.ListenerShutdown,
		daemonShutdown:   deps.DaemonShutdown,
	}
}

// Run starts the three forwarding flows described by the original cli bus
// carrier (run_output, which applies this port's subscription-scoped
// delivery, run_input, and handle_terminated) and blocks until the
// connection's CliSend stream closes or ctx is cancelled.
func (s *Session) Run(ctx context.Context) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	tabSendSub := s.tabSend.Subscribe()
	defer s.tabSend.Unsubscribe(tabSendSub)
	managerSendSub := s.managerSend.Subscribe()
	defer s.managerSend.Unsubscribe(managerSendSub)

	s.group.Add(bus.Spawn(connCtx, s.log, "client-output", func(ctx context.Context) error {
		return s.runOutput(ctx, tabSendSub)
	}))
	s.group.Add(bus.Spawn(connCtx, s.log, "client-terminated", func(ctx context.Context) error {
		return s.runTerminated(ctx, managerSendSub)
	}))
	s.group.Add(bus.Spawn(connCtx, s.log, "client-input", func(ctx context.Context) error {
		err := s.runInput(ctx)
		cancel()
		return err
	}))

	s.group.Wait()
}

// runOutput forwards TabSend events into CliRecv, filtered by this
// connection's subscription set (§4.7 handle_tabsend).
func (s *Session) runOutput(ctx context.Context, sub *bus.Subscriber[message.TabSend]) error {
	for {
		select {
		case d, ok := <-sub.Recv():
			if !ok {
				return nil
			}
			s.handleTabSend(ctx, d.Value)
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Session) handleTabSend(ctx context.Context, msg message.TabSend) {
	switch {
	case msg.Started != nil:
		s.send(ctx, message.CliRecv{TabStarted: msg.Started})
	case msg.Stopped != nil:
		s.send(ctx, message.CliRecv{TabStopped: msg.Stopped})
	case msg.Scrollback != nil:
		snap := message.ScrollbackSnapshot{Id: msg.Scrollback.Id, Chunk: msg.Scrollback.Scrollback.Snapshot()}
		s.send(ctx, message.CliRecv{Scrollback: &snap})
	case msg.Output != nil:
		if !s.subs.Contains(msg.Output.Id) {
			return
		}
		delivery := message.OutputDelivery{Id: msg.Output.Id, Chunk: *msg.Output.Stdout}
		s.send(ctx, message.CliRecv{Output: &delivery})
	case msg.RetaskFrom != nil:
		if !s.subs.Contains(*msg.RetaskFrom) {
			return
		}
		if s.log != nil {
			s.log.WithField("from", *msg.RetaskFrom).WithField("to", *msg.RetaskTo).Info("retasking client")
		}
		s.send(ctx, message.CliRecv{RetaskFrom: msg.RetaskFrom, RetaskTo: msg.RetaskTo})
	}
}

// runTerminated forwards TabManagerSend::TabTerminated as CliRecv::TabStopped
// (§4.7 handle_terminated). Note TabSend::Stopped (above) and
// TabManagerSend::TabTerminated both ultimately surface as TabStopped to the
// client; the two sources are not mutually exclusive signals, mirroring the
// original bus's identical redundancy.
func (s *Session) runTerminated(ctx context.Context, sub *bus.Subscriber[message.TabManagerSend]) error {
	for {
		select {
		case d, ok := <-sub.Recv():
			if !ok {
				return nil
			}
			if d.Value.TabTerminated != nil {
				s.send(ctx, message.CliRecv{TabStopped: d.Value.TabTerminated})
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// runInput forwards CliSend requests to the tab manager / PTY sessions
// (§4.7 run_input), and maintains this connection's subscription set for
// Subscribe/Unsubscribe.
func (s *Session) runInput(ctx context.Context) error {
	for {
		req, ok := s.cliSend.Recv(ctx)
		if !ok {
			return nil
		}
		switch {
		case req.CreateTab != nil:
			if err := s.managerReq.Send(ctx, message.TabManagerRecv{CreateTab: req.CreateTab}); err != nil {
				return err
			}
		case req.CloseTab != nil:
			if err := s.managerReq.Send(ctx, message.TabManagerRecv{CloseTab: req.CloseTab}); err != nil {
				return err
			}
		case req.CloseNamedTab != nil:
			if err := s.managerReq.Send(ctx, message.TabManagerRecv{CloseNamedTab: req.CloseNamedTab}); err != nil {
				return err
			}
		case req.RequestScrollback != nil:
			s.tabRecv.Publish(message.TabRecv{Scrollback: req.RequestScrollback})
		case req.Input != nil:
			data := req.Input.Data
			s.tabRecv.Publish(message.TabRecv{Input: &message.TabInput{Id: req.Input.Id, Stdin: &data}})
		case req.ResizeTab != nil:
			id, dims := req.ResizeTab.Id, req.ResizeTab.Dims
			s.tabRecv.Publish(message.TabRecv{ResizeId: &id, ResizeDims: &dims})
		case req.RetaskFrom != nil:
			// Retask is a client-facing broadcast instruction (§4.5): it never
			// touches the PTY, so it is published directly onto TabSend rather
			// than routed through TabRecv/ptysession, which has no Retask case
			// and would otherwise swallow it silently.
			s.tabSend.Publish(message.TabSend{RetaskFrom: req.RetaskFrom, RetaskTo: req.RetaskTo})
		case req.Subscribe != nil:
			s.subs.Subscribe(*req.Subscribe)
		case req.Unsubscribe != nil:
			s.subs.Unsubscribe(*req.Unsubscribe)
		case req.GlobalShutdown:
			if s.log != nil {
				s.log.Info("global shutdown requested by client")
			}
			s.tabRecv.Publish(message.TabRecv{TerminateAll: true})
			if s.listenerShutdown != nil {
				s.listenerShutdown.Send(ctx, message.ListenerShutdown{})
			}
			if s.daemonShutdown != nil {
				s.daemonShutdown.Set(message.DaemonShutdown{Requested: true})
			}
			time.Sleep(globalShutdownDrain)
		}
	}
}

func (s *Session) send(ctx context.Context, msg message.CliRecv) {
	if err := s.cliRecv.Send(ctx, msg); err != nil && s.log != nil {
		s.log.WithError(err).Debug("cli recv closed, dropping message")
	}
}
