// Package chunk implements the byte-indexed output/input chunk model (§3, §4.1).
package chunk

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// OutputChunk is an indexed slice of a tab's stdout stream, generated by a
// single PTY session. index is the absolute byte offset of data[0] since the
// tab started.
type OutputChunk struct {
	Index uint64 `json:"index"`
	Data  []byte `json:"data"`
}

// Len returns the number of bytes in the chunk.
func (c OutputChunk) Len() int {
	return len(c.Data)
}

// Start is the inclusive byte offset at which the chunk begins.
func (c OutputChunk) Start() uint64 {
	return c.Index
}

// End is the exclusive byte offset at which the chunk ends.
func (c OutputChunk) End() uint64 {
	return saturatingAdd(c.Index, uint64(len(c.Data)))
}

// Contains reports whether the given absolute offset falls within the chunk.
func (c OutputChunk) Contains(i uint64) bool {
	return i >= c.Start() && i < c.End()
}

// IsBefore reports whether the chunk ends at or before the given offset.
func (c OutputChunk) IsBefore(i uint64) bool {
	return c.End() <= i
}

// TruncateBefore drops all data strictly before the given absolute offset,
// shifting Index forward. It is a no-op if k <= Start(), and empties the
// chunk if k >= End().
func (c OutputChunk) TruncateBefore(k uint64) OutputChunk {
	if k <= c.Start() {
		return c
	}
	if k >= c.End() {
		return OutputChunk{Index: c.End(), Data: nil}
	}
	offset := k - c.Start()
	return OutputChunk{Index: k, Data: c.Data[offset:]}
}

// Equal reports structural equality.
func (c OutputChunk) Equal(other OutputChunk) bool {
	if c.Index != other.Index || len(c.Data) != len(other.Data) {
		return false
	}
	for i := range c.Data {
		if c.Data[i] != other.Data[i] {
			return false
		}
	}
	return true
}

// String renders a diagnostic representation, escaping non-UTF-8 bytes. The
// wire encoding (internal/wire) preserves the raw bytes; this is for logs only.
func (c OutputChunk) String() string {
	var b strings.Builder
	b.WriteString("OutputChunk{index:")
	b.WriteString(strconv.FormatUint(c.Index, 10))
	b.WriteString(", data:\"")
	b.WriteString(escape(c.Data))
	b.WriteString("\"}")
	return b.String()
}

func escape(data []byte) string {
	if utf8.Valid(data) {
		return strings.Map(func(r rune) rune {
			if r == '"' || r == '\\' {
				return -1
			}
			return r
		}, string(data))
	}
	var b strings.Builder
	for _, r := range string(data) {
		if r == utf8.RuneError {
			b.WriteString(`\x`)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func saturatingAdd(a, b uint64) uint64 {
	sum := a + b
	if sum < a {
		return ^uint64(0)
	}
	return sum
}

// InputChunk is an unindexed slice of stdin. Multiple concurrent clients may
// produce input; the daemon serializes them in arrival order at the PTY
// writer (§3).
type InputChunk struct {
	Data []byte `json:"data"`
}

// Len returns the number of bytes in the chunk.
func (c InputChunk) Len() int {
	return len(c.Data)
}

// String renders a diagnostic representation (see OutputChunk.String).
func (c InputChunk) String() string {
	return "InputChunk{data:\"" + escape(c.Data) + "\"}"
}
