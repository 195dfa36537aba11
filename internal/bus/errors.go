package bus

import "errors"

// ErrChannelClosed is returned by FIFO.Send when no receiver remains.
//
// §4.4/§7 also name ChannelTaken/ChannelUninitialized/ResourceTaken/
// ResourceUninitialized, covering a take-once handle registry where a
// channel or resource can be requested more than once or before it exists.
// This port has no such registry: every bus singleton is constructed once
// in daemon.New and handed to its owning component directly by constructor
// injection, so there is no "take" operation that could observe either
// condition. See DESIGN.md's Open Questions for the rationale.
var ErrChannelClosed = errors.New("bus: channel closed, no receiver remains")
