// Package wire implements the tagged-union JSON protocol exchanged over the
// websocket connection (§6). Each Request/Response is encoded as a single
// JSON object with a "type" discriminator plus whichever fields that
// variant carries; field names and ordering are fixed so client and daemon
// agree independent of which side encodes.
package wire

import (
	"encoding/json"
	"fmt"

	"github.com/tabd/tabd/internal/chunk"
	"github.com/tabd/tabd/internal/tab"
)

// Request is the client -> daemon tagged union (§6). Exactly one field is
// set per instance; Type names the active variant for both encoding and
// decoding.
type Request struct {
	Type string `json:"type"`

	CreateTab         *tab.CreateMetadata `json:"create_tab,omitempty"`
	CloseTab          *tab.Id             `json:"close_tab,omitempty"`
	CloseNamedTab     *string             `json:"close_named_tab,omitempty"`
	RequestScrollback *tab.Id             `json:"request_scrollback,omitempty"`
	Input             *InputPayload       `json:"input,omitempty"`
	ResizeTab         *ResizePayload      `json:"resize_tab,omitempty"`
	Retask            *RetaskPayload      `json:"retask,omitempty"`
	Subscribe         *tab.Id             `json:"subscribe,omitempty"`
	Unsubscribe       *tab.Id             `json:"unsubscribe,omitempty"`
	Auth              *string             `json:"auth,omitempty"`
}

// InputPayload is the Input(TabId, InputChunk) variant's payload.
type InputPayload struct {
	Id   tab.Id            `json:"id"`
	Data chunk.InputChunk `json:"data"`
}

// ResizePayload is the ResizeTab(TabId, (u16,u16)) variant's payload.
type ResizePayload struct {
	Id         tab.Id         `json:"id"`
	Dimensions tab.Dimensions `json:"dimensions"`
}

// RetaskPayload is the Retask(TabId, TabId) variant's payload.
type RetaskPayload struct {
	From tab.Id `json:"from"`
	To   tab.Id `json:"to"`
}

// Response is the daemon -> client tagged union (§6).
type Response struct {
	Type string `json:"type"`

	TabStarted *tab.Metadata    `json:"tab_started,omitempty"`
	TabStopped *tab.Id          `json:"tab_stopped,omitempty"`
	Scrollback *ScrollbackFrame `json:"scrollback,omitempty"`
	Output     *OutputFrame     `json:"output,omitempty"`
	Retask     *RetaskPayload   `json:"retask,omitempty"`
}

// ScrollbackFrame carries the tab id alongside the coalesced OutputChunk the
// wire delivers in place of the shared scrollback handle (§6: "expands to an
// OutputChunk on the wire").
type ScrollbackFrame struct {
	Id    tab.Id            `json:"id"`
	Chunk chunk.OutputChunk `json:"chunk"`
}

// OutputFrame is the Output(TabId, OutputChunk) response payload.
type OutputFrame struct {
	Id    tab.Id            `json:"id"`
	Chunk chunk.OutputChunk `json:"chunk"`
}

// Request type discriminators.
const (
	TypeCreateTab         = "create_tab"
	TypeCloseTab          = "close_tab"
	TypeCloseNamedTab     = "close_named_tab"
	TypeRequestScrollback = "request_scrollback"
	TypeInput             = "input"
	TypeResizeTab         = "resize_tab"
	TypeRetask            = "retask"
	TypeGlobalShutdown    = "global_shutdown"
	TypeSubscribe         = "subscribe"
	TypeUnsubscribe       = "unsubscribe"
	TypeAuth              = "auth"
)

// Response type discriminators.
const (
	TypeTabStarted = "tab_started"
	TypeTabStopped = "tab_stopped"
	TypeScrollback = "scrollback"
	TypeOutput     = "output"
	TypeRetaskResp = "retask"
)

// EncodeRequest renders r as a wire frame, filling Type from whichever field
// is set.
func EncodeRequest(r Request) ([]byte, error) {
	r.Type = requestType(r)
	if r.Type == "" {
		return nil, fmt.Errorf("wire: request has no variant set")
	}
	return json.Marshal(r)
}

// DecodeRequest parses a wire frame into a Request.
func DecodeRequest(data []byte) (Request, error) {
	var r Request
	if err := json.Unmarshal(data, &r); err != nil {
		return Request{}, fmt.Errorf("wire: decode request: %w", err)
	}
	return r, nil
}

// EncodeResponse renders r as a wire frame, filling Type from whichever
// field is set.
func EncodeResponse(r Response) ([]byte, error) {
	r.Type = responseType(r)
	if r.Type == "" {
		return nil, fmt.Errorf("wire: response has no variant set")
	}
	return json.Marshal(r)
}

// DecodeResponse parses a wire frame into a Response.
func DecodeResponse(data []byte) (Response, error) {
	var r Response
	if err := json.Unmarshal(data, &r); err != nil {
		return Response{}, fmt.Errorf("wire: decode response: %w", err)
	}
	return r, nil
}

func requestType(r Request) string {
	switch {
	case r.CreateTab != nil:
		return TypeCreateTab
	case r.CloseTab != nil:
		return TypeCloseTab
	case r.CloseNamedTab != nil:
		return TypeCloseNamedTab
	case r.RequestScrollback != nil:
		return TypeRequestScrollback
	case r.Input != nil:
		return TypeInput
	case r.ResizeTab != nil:
		return TypeResizeTab
	case r.Retask != nil:
		return TypeRetask
	case r.Subscribe != nil:
		return TypeSubscribe
	case r.Unsubscribe != nil:
		return TypeUnsubscribe
	case r.Auth != nil:
		return TypeAuth
	case r.Type == TypeGlobalShutdown:
		return TypeGlobalShutdown
	default:
		return ""
	}
}

func responseType(r Response) string {
	switch {
	case r.TabStarted != nil:
		return TypeTabStarted
	case r.TabStopped != nil:
		return TypeTabStopped
	case r.Scrollback != nil:
		return TypeScrollback
	case r.Output != nil:
		return TypeOutput
	case r.Retask != nil:
		return TypeRetaskResp
	default:
		return ""
	}
}

// NewGlobalShutdownRequest builds the GlobalShutdown variant, which carries
// no payload fields of its own.
func NewGlobalShutdownRequest() Request {
	return Request{Type: TypeGlobalShutdown}
}
