// Package message defines the internal bus message types that connect the
// tab manager, PTY sessions, and client sessions (§4.5-§4.7).
package message

import (
	"github.com/tabd/tabd/internal/chunk"
	"github.com/tabd/tabd/internal/scrollback"
	"github.com/tabd/tabd/internal/tab"
)

// TabInput wraps a client's InputChunk with the tab it targets. Concurrent
// clients may each produce one; the PTY session serializes them at the
// writer in arrival order (§3).
type TabInput struct {
	Id    tab.Id
	Stdin *chunk.InputChunk
}

// TabOutput wraps a single OutputChunk read from a tab's PTY. The chunk is
// shared (by pointer) across every fan-out subscriber to avoid per-
// subscriber copies (§4.6, §9).
type TabOutput struct {
	Id     tab.Id
	Stdout *chunk.OutputChunk
}

// TabScrollback carries a shared handle to a tab's scrollback buffer, sent
// in reply to a Scrollback request (§4.6).
type TabScrollback struct {
	Id         tab.Id
	Scrollback *scrollback.Buffer
}

// TabManagerRecv is consumed by the tab manager (C5).
type TabManagerRecv struct {
	CreateTab     *tab.CreateMetadata
	CloseTab      *tab.Id
	CloseNamedTab *string
}

// TabManagerSend is emitted by the tab manager (C5).
type TabManagerSend struct {
	TabTerminated *tab.Id
}

// TabRecv is consumed by a PTY session (C6).
type TabRecv struct {
	Input        *TabInput
	ResizeId     *tab.Id
	ResizeDims   *tab.Dimensions
	Scrollback   *tab.Id
	RetaskFrom   *tab.Id
	RetaskTo     *tab.Id
	TerminateAll bool
}

// TabSend is emitted by a PTY session, the tab manager, or a client session
// (Retask) and consumed by client sessions; Output and Retask are filtered
// through each client's subscription set (C7).
type TabSend struct {
	Started    *tab.Metadata
	Stopped    *tab.Id
	Scrollback *TabScrollback
	Output     *TabOutput
	RetaskFrom *tab.Id
	RetaskTo   *tab.Id
}

// CliSend is the internal representation of a decoded client Request,
// headed inbound from a client session toward the tab manager / PTY
// sessions (§4.7).
type CliSend struct {
	CreateTab          *tab.CreateMetadata
	CloseTab           *tab.Id
	CloseNamedTab      *string
	RequestScrollback  *tab.Id
	Input              *InputRequest
	ResizeTab          *ResizeRequest
	RetaskFrom         *tab.Id
	RetaskTo           *tab.Id
	Subscribe          *tab.Id
	Unsubscribe        *tab.Id
	GlobalShutdown     bool
}

// InputRequest is the Input variant's payload.
type InputRequest struct {
	Id   tab.Id
	Data chunk.InputChunk
}

// ResizeRequest is the ResizeTab variant's payload.
type ResizeRequest struct {
	Id   tab.Id
	Dims tab.Dimensions
}

// CliRecv is the internal representation of an outbound Response, headed
// from the bus toward a client session's wire encoder (§4.7).
type CliRecv struct {
	TabStarted *tab.Metadata
	TabStopped *tab.Id
	Scrollback *ScrollbackSnapshot
	Output     *OutputDelivery
	RetaskFrom *tab.Id
	RetaskTo   *tab.Id
}

// ScrollbackSnapshot is the coalesced scrollback chunk delivered to a
// client in response to RequestScrollback.
type ScrollbackSnapshot struct {
	Id    tab.Id
	Chunk chunk.OutputChunk
}

// OutputDelivery is a single Output chunk delivered to a subscribed client.
type OutputDelivery struct {
	Id    tab.Id
	Chunk chunk.OutputChunk
}

// CliShutdown signals that a client session's wire connection has closed.
type CliShutdown struct{}

// ListenerShutdown signals the listener to stop accepting new connections.
type ListenerShutdown struct{}

// DaemonShutdown is a watch value the daemon root awaits before it exits.
type DaemonShutdown struct {
	Requested bool
}
