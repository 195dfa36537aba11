// Package tabmanager implements the tab registry and lifecycle state
// machine (§3 TabsState, §4.5 C5).
package tabmanager

import (
	"context"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/tabd/tabd/internal/bus"
	"github.com/tabd/tabd/internal/message"
	"github.com/tabd/tabd/internal/tab"
)

// TabsState is the immutable-per-version mapping of TabId -> Metadata for
// all live tabs. It is replaced wholesale (copy-on-write) on every create or
// terminate, so readers via the TabsState watch always see a consistent
// snapshot (§3, §5).
type TabsState struct {
	Tabs map[tab.Id]tab.Metadata
}

func (s TabsState) findByName(name string) (tab.Metadata, bool) {
	for _, meta := range s.Tabs {
		if meta.Name == name {
			return meta, true
		}
	}
	return tab.Metadata{}, false
}

func (s TabsState) with(meta tab.Metadata) TabsState {
	next := make(map[tab.Id]tab.Metadata, len(s.Tabs)+1)
	for id, m := range s.Tabs {
		next[id] = m
	}
	next[meta.Id] = meta
	return TabsState{Tabs: next}
}

func (s TabsState) without(id tab.Id) TabsState {
	next := make(map[tab.Id]tab.Metadata, len(s.Tabs))
	for existing, m := range s.Tabs {
		if existing != id {
			next[existing] = m
		}
	}
	return TabsState{Tabs: next}
}

// PTYSpawner starts the PTY session owning a newly created tab. The tab
// manager treats the returned handle opaquely (§1: "the PTY spawn itself is
// treated as an opaque resource"); it only needs to know how to ask it to
// terminate.
type PTYSpawner interface {
	Spawn(ctx context.Context, meta tab.Metadata) (PTYHandle, error)
}

// PTYHandle is the manager's view of a running PTY session: enough to
// request termination. The session itself drives TabSend::Stopped /
// TabManagerSend::TabTerminated through the bus when the process actually
// exits.
type PTYHandle interface {
	RequestTerminate()
}

// Manager owns TabsState and drives the per-tab lifecycle state machine
// described in §4.5:
//
//	∅ --CreateTab--> Running --(PTY exit | CloseTab | CloseNamedTab)--> Terminated --> ∅
type Manager struct {
	log      *logrus.Logger
	alloc    tab.Allocator
	spawner  PTYSpawner
	recv     *bus.FIFO[message.TabManagerRecv]
	send     *bus.Broadcast[message.TabManagerSend]
	tabSend  *bus.Broadcast[message.TabSend]
	state    *bus.Watch[TabsState]

	// mu guards handles and every TabsState read-modify-write sequence:
	// Terminated runs on a PTY session's exit-watcher goroutine and can race
	// with createTab/closeTab on the Run loop's goroutine.
	handlesMu sync.Mutex
	handles   map[tab.Id]PTYHandle
}

// New creates a tab manager. recv is the single-consumer FIFO the manager
// reads CreateTab/CloseTab/CloseNamedTab requests from; send is the
// broadcast channel it publishes TabTerminated events to; tabSend is the
// shared TabSend broadcast it publishes Started on; state is the TabsState
// watch it keeps current.
func New(log *logrus.Logger, spawner PTYSpawner, recv *bus.FIFO[message.TabManagerRecv], send *bus.Broadcast[message.TabManagerSend], tabSend *bus.Broadcast[message.TabSend], state *bus.Watch[TabsState]) *Manager {
	return &Manager{
		log:     log,
		spawner: spawner,
		recv:    recv,
		send:    send,
		tabSend: tabSend,
		state:   state,
		handles: make(map[tab.Id]PTYHandle),
	}
}

// Run drives the manager's single-consumer request loop until ctx is
// cancelled or recv is closed. Two simultaneous CreateTab requests with the
// same name are serialized by recv being single-consumer, so the second one
// observed here always resolves to the first's id (§4.5 tie-break rule).
func (m *Manager) Run(ctx context.Context) error {
	for {
		req, ok := m.recv.Recv(ctx)
		if !ok {
			return nil
		}
		switch {
		case req.CreateTab != nil:
			m.createTab(ctx, *req.CreateTab)
		case req.CloseTab != nil:
			m.closeTab(ctx, *req.CloseTab)
		case req.CloseNamedTab != nil:
			m.closeNamedTab(ctx, *req.CloseNamedTab)
		}
	}
}

// createTab implements CreateTab: normalize name; reuse a running tab with
// the same name if one exists (idempotent attach-or-create), otherwise
// allocate a fresh TabId, spawn the PTY, and publish Started via the
// caller-supplied TabSend broadcast (wired in by the daemon root, since
// Started/Stopped/Output/Retask travel on the shared TabSend channel, not
// TabManagerSend -- only TabTerminated is the manager's own event).
func (m *Manager) createTab(ctx context.Context, create tab.CreateMetadata) tab.Metadata {
	name := tab.NormalizeName(create.Name)
	state := m.state.Get()

	if existing, ok := state.findByName(name); ok {
		return existing
	}

	meta := tab.Metadata{
		Id:         m.alloc.Next(),
		Name:       name,
		Shell:      resolveShell(create.Shell),
		WorkingDir: resolveDirectory(create.WorkingDir),
		Dimensions: create.Dimensions,
	}

	handle, err := m.spawner.Spawn(ctx, meta)
	if err != nil {
		if m.log != nil {
			m.log.WithError(err).WithField("tab_name", name).Error("failed to spawn pty for tab")
		}
		return tab.Metadata{}
	}

	m.handlesMu.Lock()
	m.handles[meta.Id] = handle
	m.handlesMu.Unlock()
	m.state.Set(state.with(meta))
	metaCopy := meta
	m.tabSend.Publish(message.TabSend{Started: &metaCopy})
	return meta
}

// closeTab implements CloseTab(id): signal termination to the owning PTY
// session. The session confirms exit asynchronously, at which point the
// caller (daemon root) calls Terminated to finish the lifecycle.
func (m *Manager) closeTab(ctx context.Context, id tab.Id) {
	m.handlesMu.Lock()
	handle, ok := m.handles[id]
	m.handlesMu.Unlock()
	if ok {
		handle.RequestTerminate()
	}
}

// closeNamedTab implements CloseNamedTab(name): resolve name -> id under the
// current TabsState snapshot; no-op if none.
func (m *Manager) closeNamedTab(ctx context.Context, name string) {
	state := m.state.Get()
	meta, ok := state.findByName(tab.NormalizeName(name))
	if !ok {
		return
	}
	m.closeTab(ctx, meta.Id)
}

// Terminated finishes the Running -> Terminated -> ∅ transition for id:
// removes it from TabsState and publishes TabTerminated. Called by the
// daemon root when a PTY session's exit watcher fires.
func (m *Manager) Terminated(id tab.Id) {
	m.handlesMu.Lock()
	delete(m.handles, id)
	m.handlesMu.Unlock()
	state := m.state.Get()
	if _, ok := state.Tabs[id]; !ok {
		return
	}
	m.state.Set(state.without(id))
	idCopy := id
	m.send.Publish(message.TabManagerSend{TabTerminated: &idCopy})
}

func resolveShell(shell string) string {
	if shell != "" {
		return shell
	}
	if env := os.Getenv("SHELL"); env != "" {
		return env
	}
	return "/usr/bin/env bash"
}

// resolveDirectory falls back to the manager process's current directory
// when the requested working directory does not exist, mirroring the
// original create_tab service's compute_directory (see SPEC_FULL.md
// SUPPLEMENTED FEATURES #1).
func resolveDirectory(dir string) string {
	if dir != "" {
		if _, err := os.Stat(dir); err == nil {
			return dir
		}
	}
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return dir
}
