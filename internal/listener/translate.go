package listener

import (
	"github.com/tabd/tabd/internal/message"
	"github.com/tabd/tabd/internal/wire"
)

// fromWireRequest converts a decoded wire frame into the internal CliSend
// representation consumed by a client session (§6, §4.7).
func fromWireRequest(r wire.Request) message.CliSend {
	switch {
	case r.CreateTab != nil:
		return message.CliSend{CreateTab: r.CreateTab}
	case r.CloseTab != nil:
		return message.CliSend{CloseTab: r.CloseTab}
	case r.CloseNamedTab != nil:
		return message.CliSend{CloseNamedTab: r.CloseNamedTab}
	case r.RequestScrollback != nil:
		return message.CliSend{RequestScrollback: r.RequestScrollback}
	case r.Input != nil:
		return message.CliSend{Input: &message.InputRequest{Id: r.Input.Id, Data: r.Input.Data}}
	case r.ResizeTab != nil:
		return message.CliSend{ResizeTab: &message.ResizeRequest{Id: r.ResizeTab.Id, Dims: r.ResizeTab.Dimensions}}
	case r.Retask != nil:
		from, to := r.Retask.From, r.Retask.To
		return message.CliSend{RetaskFrom: &from, RetaskTo: &to}
	case r.Subscribe != nil:
		return message.CliSend{Subscribe: r.Subscribe}
	case r.Unsubscribe != nil:
		return message.CliSend{Unsubscribe: r.Unsubscribe}
	case r.Type == wire.TypeGlobalShutdown:
		return message.CliSend{GlobalShutdown: true}
	default:
		return message.CliSend{}
	}
}

// toWireResponse converts an internal CliRecv value into the wire frame
// sent back to the client (§6, §4.7).
func toWireResponse(m message.CliRecv) wire.Response {
	switch {
	case m.TabStarted != nil:
		return wire.Response{TabStarted: m.TabStarted}
	case m.TabStopped != nil:
		return wire.Response{TabStopped: m.TabStopped}
	case m.Scrollback != nil:
		return wire.Response{Scrollback: &wire.ScrollbackFrame{Id: m.Scrollback.Id, Chunk: m.Scrollback.Chunk}}
	case m.Output != nil:
		return wire.Response{Output: &wire.OutputFrame{Id: m.Output.Id, Chunk: m.Output.Chunk}}
	case m.RetaskFrom != nil:
		return wire.Response{Retask: &wire.RetaskPayload{From: *m.RetaskFrom, To: *m.RetaskTo}}
	default:
		return wire.Response{}
	}
}
