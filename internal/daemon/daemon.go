// Package daemon assembles the bus singletons and owns the process-wide
// shutdown sequence (§4.8-§5, and tab-daemon/src/lib.rs's daemon_main /
// main_async in the original).
package daemon

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tabd/tabd/internal/auth"
	"github.com/tabd/tabd/internal/bus"
	"github.com/tabd/tabd/internal/clientsession"
	"github.com/tabd/tabd/internal/daemonfile"
	"github.com/tabd/tabd/internal/listener"
	"github.com/tabd/tabd/internal/message"
	"github.com/tabd/tabd/internal/ptyproc"
	"github.com/tabd/tabd/internal/ptysession"
	"github.com/tabd/tabd/internal/scrollback"
	"github.com/tabd/tabd/internal/tab"
	"github.com/tabd/tabd/internal/tabmanager"
)

// Daemon wires every component together for one run: the tab manager, the
// per-tab PTY sessions it spawns, the shared buses connecting them to
// client sessions, the listener, and the daemon file.
type Daemon struct {
	log *logrus.Logger

	tabRecv     *bus.Broadcast[message.TabRecv]
	tabSend     *bus.Broadcast[message.TabSend]
	managerRecv *bus.FIFO[message.TabManagerRecv]
	managerSend *bus.Broadcast[message.TabManagerSend]
	listenerSD  *bus.FIFO[message.ListenerShutdown]
	daemonSD    *bus.Watch[message.DaemonShutdown]

	manager  *tabmanager.Manager
	listener *listener.Listener
	file     *daemonfile.File

	group bus.Group
}

// Config holds the daemon's tunables, filled in by cmd/tabd/main.go. None
// of them is read from the environment.
type Config struct {
	ScrollbackCapBytes int
}

// pty spawner implementation bridging tabmanager.PTYSpawner to ptysession.
type spawner struct {
	d          *Daemon
	capBytes   int
}

func (s *spawner) Spawn(ctx context.Context, meta tab.Metadata) (tabmanager.PTYHandle, error) {
	proc, err := ptyproc.Start(meta.Shell, meta.WorkingDir, meta.Dimensions)
	if err != nil {
		return nil, err
	}

	sess := ptysession.New(s.d.log, meta.Id, proc, s.capBytes, s.d.tabRecv, s.d.tabSend, func(id tab.Id) {
		s.d.manager.Terminated(id)
	})

	go sess.Run(ctx)

	return &handle{proc: proc}, nil
}

type handle struct {
	proc *ptyproc.Process
}

func (h *handle) RequestTerminate() {
	h.proc.Close()
}

// New assembles a Daemon but does not yet bind a listener port or start any
// loops; call Run to do that.
func New(log *logrus.Logger, cfg Config) *Daemon {
	d := &Daemon{
		log:         log,
		tabRecv:     bus.NewBroadcast[message.TabRecv](bus.DefaultBroadcastCapacity),
		tabSend:     bus.NewBroadcast[message.TabSend](bus.DefaultBroadcastCapacity),
		managerRecv: bus.NewFIFO[message.TabManagerRecv](bus.DefaultFIFOCapacity),
		managerSend: bus.NewBroadcast[message.TabManagerSend](bus.DefaultBroadcastCapacity),
		listenerSD:  bus.NewFIFO[message.ListenerShutdown](1),
		daemonSD:    bus.NewWatch(message.DaemonShutdown{}),
	}

	capBytes := cfg.ScrollbackCapBytes
	if capBytes <= 0 {
		capBytes = scrollback.DefaultCapBytes
	}

	state := bus.NewWatch(tabmanager.TabsState{Tabs: map[tab.Id]tab.Metadata{}})
	d.manager = tabmanager.New(log, &spawner{d: d, capBytes: capBytes}, d.managerRecv, d.managerSend, d.tabSend, state)

	return d
}

// Run binds the listener, writes the daemon file, and blocks until a
// DaemonShutdown is observed or ctx is cancelled, mirroring main_async's
// wait_for_shutdown followed by dropping the daemon file.
func (d *Daemon) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	token, err := auth.Generate()
	if err != nil {
		return err
	}

	deps := clientsession.Deps{
		TabRecv:          d.tabRecv,
		TabSend:          d.tabSend,
		ManagerRecv:      d.managerRecv,
		ManagerSend:      d.managerSend,
		ListenerShutdown: d.listenerSD,
		DaemonShutdown:   d.daemonSD,
	}

	ln, err := listener.New(d.log, token, deps, d.listenerSD)
	if err != nil {
		return err
	}
	d.listener = ln

	port := 0
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		port = tcpAddr.Port
	}
	rec := daemonfile.Record{
		Pid:       os.Getpid(),
		Port:      uint16(port),
		AuthToken: string(token),
	}
	file, err := daemonfile.New(d.log, rec)
	if err != nil {
		return err
	}
	d.file = file
	defer d.file.Remove()

	if d.log != nil {
		d.log.WithField("pid", rec.Pid).WithField("port", rec.Port).Info("daemon started")
	}

	d.group.Add(bus.Spawn(runCtx, d.log, "tab-manager", d.manager.Run))
	d.group.Add(bus.Spawn(runCtx, d.log, "listener", d.listener.Serve))
	d.group.Add(bus.Spawn(runCtx, d.log, "signal-watch", d.watchSignals))

	<-waitForShutdown(runCtx, d.daemonSD)

	if d.log != nil {
		d.log.Info("daemon shutdown")
	}
	cancel()

	// Runtime shutdown grace (§5): give the spawned loops a brief window to
	// unwind before returning, without blocking process exit indefinitely
	// on a stuck task.
	grouped := make(chan struct{})
	go func() {
		d.group.Wait()
		close(grouped)
	}()
	select {
	case <-grouped:
	case <-time.After(25 * time.Millisecond):
	}

	return nil
}

// watchSignals turns SIGINT/SIGTERM into the same GlobalShutdown path a
// client's explicit request takes (SPEC_FULL.md SUPPLEMENTED FEATURES #3).
func (d *Daemon) watchSignals(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-sigCh:
		if d.log != nil {
			d.log.Info("received shutdown signal")
		}
		d.tabRecv.Publish(message.TabRecv{TerminateAll: true})
		d.listenerSD.Send(ctx, message.ListenerShutdown{})
		d.daemonSD.Set(message.DaemonShutdown{Requested: true})
	case <-ctx.Done():
	}
	return nil
}

// shutdownPollInterval is the §5/§9 25ms poll floor backing waitForShutdown's
// direct notification, in case a Set is ever missed between the predicate
// check and the next wait.
const shutdownPollInterval = 25 * time.Millisecond

// waitForShutdown blocks until the watch observes a Requested shutdown.
func waitForShutdown(ctx context.Context, w *bus.Watch[message.DaemonShutdown]) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		bus.WaitFor(ctx, w, bus.TickerPoll(ctx, shutdownPollInterval), func(v message.DaemonShutdown) bool { return v.Requested })
	}()
	return done
}
