// Package scrollback implements the per-tab bounded ring of output chunks
// (§3 ScrollbackBuffer, §4.2).
package scrollback

import (
	"errors"
	"sync"

	"github.com/tabd/tabd/internal/chunk"
)

// DefaultCapBytes is the design default cap per tab (§3).
const DefaultCapBytes = 256 * 1024

// ErrNonContiguous is returned by Push when the incoming chunk's index is
// strictly greater than next_index (a gap). This is a programmer error, not
// a runtime failure expected in normal operation.
var ErrNonContiguous = errors.New("scrollback: non-contiguous chunk")

// Buffer is a bounded deque of OutputChunk plus aggregate counters. Chunks
// are kept in ascending, contiguous index order: next_index always equals
// the end of the last retained chunk.
type Buffer struct {
	mu         sync.Mutex
	chunks     []chunk.OutputChunk
	totalBytes int
	nextIndex  uint64
	capBytes   int
}

// New creates an empty buffer with the default byte cap.
func New() *Buffer {
	return NewWithCap(DefaultCapBytes)
}

// NewWithCap creates an empty buffer with an explicit byte cap.
func NewWithCap(capBytes int) *Buffer {
	return &Buffer{capBytes: capBytes}
}

// NextIndex returns the absolute offset at which the next pushed chunk is
// expected to start.
func (b *Buffer) NextIndex() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nextIndex
}

// TotalBytes returns the number of bytes currently retained.
func (b *Buffer) TotalBytes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalBytes
}

// Push appends a chunk produced by the tab's PTY reader. If c.Index does not
// match next_index, the buffer coalesces: if c.Index < next_index the
// already-seen prefix of c is dropped (the producer re-sent bytes we already
// have); if c.Index > next_index the push is rejected with ErrNonContiguous
// (a gap — the producer skipped bytes).
func (b *Buffer) Push(c chunk.OutputChunk) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c.Len() == 0 {
		return nil
	}

	if c.Index > b.nextIndex {
		return ErrNonContiguous
	}
	if c.Index < b.nextIndex {
		c = c.TruncateBefore(b.nextIndex)
		if c.Len() == 0 {
			return nil
		}
	}

	b.chunks = append(b.chunks, c)
	b.totalBytes += c.Len()
	b.nextIndex = c.End()

	b.trimToLocked(b.capBytes)
	return nil
}

// Snapshot returns a single coalesced chunk representing everything
// currently retained: Index is the start of the oldest retained chunk, Data
// is the concatenation of all retained chunks in order. This guarantees
// snapshot().End() == NextIndex(), which is what makes it safe to hand to a
// late-joining subscriber followed by subsequent Output messages with
// index >= snapshot().End().
//
// The oldest-retained-chunk convention is the one explicitly left open by
// the design notes; it is the choice under which End() == NextIndex()
// holds.
func (b *Buffer) Snapshot() chunk.OutputChunk {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Buffer) snapshotLocked() chunk.OutputChunk {
	if len(b.chunks) == 0 {
		return chunk.OutputChunk{Index: b.nextIndex, Data: nil}
	}

	data := make([]byte, 0, b.totalBytes)
	for _, c := range b.chunks {
		data = append(data, c.Data...)
	}
	return chunk.OutputChunk{Index: b.chunks[0].Index, Data: data}
}

// TrimTo enforces a byte cap by evicting whole chunks from the head, then
// truncating the new head chunk if a partial suffix would still fit.
func (b *Buffer) TrimTo(capBytes int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trimToLocked(capBytes)
}

func (b *Buffer) trimToLocked(capBytes int) {
	for b.totalBytes > capBytes && len(b.chunks) > 0 {
		head := b.chunks[0]
		overflow := b.totalBytes - capBytes

		if head.Len() <= overflow {
			// Evict the whole chunk.
			b.totalBytes -= head.Len()
			b.chunks = b.chunks[1:]
			continue
		}

		// Retaining a partial suffix of head fits; truncate it in place.
		truncated := head.TruncateBefore(head.Start() + uint64(overflow))
		b.totalBytes -= overflow
		b.chunks[0] = truncated
		return
	}
}
