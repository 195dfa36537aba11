package scrollback

import (
	"testing"

	"github.com/tabd/tabd/internal/chunk"
)

func TestSnapshotCoalescing(t *testing.T) {
	b := New()
	if err := b.Push(chunk.OutputChunk{Index: 0, Data: []byte{0, 1}}); err != nil {
		t.Fatalf("push 1: %v", err)
	}
	if err := b.Push(chunk.OutputChunk{Index: 2, Data: []byte{1, 2}}); err != nil {
		t.Fatalf("push 2: %v", err)
	}

	got := b.Snapshot()
	want := chunk.OutputChunk{Index: 0, Data: []byte{0, 1, 1, 2}}
	if !got.Equal(want) {
		t.Fatalf("Snapshot() = %v, want %v", got, want)
	}
	if got.End() != b.NextIndex() {
		t.Fatalf("Snapshot().End() = %d, want NextIndex() = %d", got.End(), b.NextIndex())
	}
}

func TestPushRejectsGap(t *testing.T) {
	b := New()
	if err := b.Push(chunk.OutputChunk{Index: 0, Data: []byte{0}}); err != nil {
		t.Fatalf("push: %v", err)
	}
	err := b.Push(chunk.OutputChunk{Index: 5, Data: []byte{1}})
	if err != ErrNonContiguous {
		t.Fatalf("push gap: got %v, want ErrNonContiguous", err)
	}
}

func TestPushCoalescesOverlap(t *testing.T) {
	b := New()
	if err := b.Push(chunk.OutputChunk{Index: 0, Data: []byte("hello")}); err != nil {
		t.Fatalf("push 1: %v", err)
	}
	// Re-send an overlapping chunk starting inside the already-seen range.
	if err := b.Push(chunk.OutputChunk{Index: 3, Data: []byte("lo world")}); err != nil {
		t.Fatalf("push overlap: %v", err)
	}
	got := b.Snapshot()
	want := chunk.OutputChunk{Index: 0, Data: []byte("hello world")}
	if !got.Equal(want) {
		t.Fatalf("Snapshot() = %v, want %v", got, want)
	}
}

func TestTrimEvictsWholeChunks(t *testing.T) {
	b := NewWithCap(10)
	for i := 0; i < 5; i++ {
		if err := b.Push(chunk.OutputChunk{Index: uint64(i * 4), Data: []byte("abcd")}); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	if b.TotalBytes() > 10 {
		t.Fatalf("TotalBytes() = %d, want <= 10", b.TotalBytes())
	}
	snap := b.Snapshot()
	if snap.End() != b.NextIndex() {
		t.Fatalf("snapshot end %d != next index %d", snap.End(), b.NextIndex())
	}
}

func TestTrimTruncatesHeadForPartialFit(t *testing.T) {
	b := NewWithCap(6)
	if err := b.Push(chunk.OutputChunk{Index: 0, Data: []byte("abcde")}); err != nil {
		t.Fatalf("push 1: %v", err)
	}
	if err := b.Push(chunk.OutputChunk{Index: 5, Data: []byte("fg")}); err != nil {
		t.Fatalf("push 2: %v", err)
	}
	// total is 7 bytes over a cap of 6: the 1-byte overflow is smaller than
	// the 5-byte head, so the head is truncated to "bcde" rather than
	// evicted, leaving 6 bytes. Exercise the same truncation boundary with a
	// single chunk, where the result is easy to pin:
	b2 := NewWithCap(6)
	if err := b2.Push(chunk.OutputChunk{Index: 0, Data: []byte("abcdefg")}); err != nil {
		t.Fatalf("push: %v", err)
	}
	if b2.TotalBytes() != 6 {
		t.Fatalf("TotalBytes() = %d, want 6", b2.TotalBytes())
	}
	snap := b2.Snapshot()
	want := chunk.OutputChunk{Index: 1, Data: []byte("bcdefg")}
	if !snap.Equal(want) {
		t.Fatalf("Snapshot() = %v, want %v", snap, want)
	}
}

func TestPushEmptyChunkIsNoOp(t *testing.T) {
	b := New()
	if err := b.Push(chunk.OutputChunk{Index: 0, Data: nil}); err != nil {
		t.Fatalf("push empty: %v", err)
	}
	if b.NextIndex() != 0 {
		t.Fatalf("NextIndex() = %d, want 0", b.NextIndex())
	}
}
