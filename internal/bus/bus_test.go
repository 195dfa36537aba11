package bus

import (
	"context"
	"testing"
	"time"
)

func TestFIFOOrderingPerProducer(t *testing.T) {
	f := NewFIFO[int](4)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if err := f.Send(ctx, i); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	for i := 0; i < 4; i++ {
		v, ok := f.Recv(ctx)
		if !ok || v != i {
			t.Fatalf("recv %d: got (%d, %v), want (%d, true)", i, v, ok, i)
		}
	}
}

func TestFIFOCloseRejectsSend(t *testing.T) {
	f := NewFIFO[int](1)
	f.Close()
	if err := f.Send(context.Background(), 1); err != ErrChannelClosed {
		t.Fatalf("Send after Close: got %v, want ErrChannelClosed", err)
	}
}

func TestFIFOCloseDrainsBuffered(t *testing.T) {
	f := NewFIFO[int](2)
	ctx := context.Background()
	if err := f.Send(ctx, 42); err != nil {
		t.Fatalf("send: %v", err)
	}
	f.Close()

	v, ok := f.Recv(ctx)
	if !ok || v != 42 {
		t.Fatalf("Recv after Close: got (%d, %v), want (42, true)", v, ok)
	}
	_, ok = f.Recv(ctx)
	if ok {
		t.Fatalf("Recv on drained closed FIFO should report ok=false")
	}
}

func TestBroadcastDeliversToAllSubscribers(t *testing.T) {
	b := NewBroadcast[string](4)
	s1 := b.Subscribe()
	s2 := b.Subscribe()

	b.Publish("hello")

	for _, s := range []*Subscriber[string]{s1, s2} {
		select {
		case d := <-s.Recv():
			if d.Value != "hello" {
				t.Fatalf("got %q, want hello", d.Value)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber did not receive message")
		}
	}
}

func TestBroadcastUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcast[int](1)
	s := b.Subscribe()
	b.Unsubscribe(s)

	select {
	case _, ok := <-s.Recv():
		if ok {
			t.Fatalf("expected closed channel after Unsubscribe")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel was not closed promptly")
	}
}

func TestBroadcastLossyPerSubscriber(t *testing.T) {
	b := NewBroadcast[int](1)
	slow := b.Subscribe()
	fast := b.Subscribe()

	b.Publish(1)

	// fast keeps up: it takes its copy of the first message before the
	// second publish.
	select {
	case d := <-fast.Recv():
		if d.Value != 1 {
			t.Fatalf("fast got %d, want 1", d.Value)
		}
	default:
		t.Fatalf("fast subscriber should have the first message queued")
	}

	b.Publish(2) // slow's queue (cap 1) overflows here.

	d := <-slow.Recv()
	if d.Value != 2 {
		t.Fatalf("slow should have dropped the oldest and kept the newest: got %d", d.Value)
	}
	if d.Lagged == 0 {
		t.Fatalf("expected Lagged > 0 after an overflow, got 0")
	}
}

func TestWatchNextObservesLatest(t *testing.T) {
	w := NewWatch(0)
	done := make(chan int, 1)
	go func() {
		v, err := w.Next(context.Background())
		if err != nil {
			return
		}
		done <- v
	}()

	time.Sleep(10 * time.Millisecond)
	w.Set(1)
	w.Set(2)

	select {
	case v := <-done:
		if v != 2 {
			t.Fatalf("Next() = %d, want latest value 2", v)
		}
	case <-time.After(time.Second):
		t.Fatalf("Next did not wake up")
	}
}

func TestWaitForRespectsPredicate(t *testing.T) {
	w := NewWatch(0)
	go func() {
		time.Sleep(10 * time.Millisecond)
		w.Set(5)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	v, err := WaitFor(ctx, w, nil, func(v int) bool { return v == 5 })
	if err != nil {
		t.Fatalf("WaitFor: %v", err)
	}
	if v != 5 {
		t.Fatalf("WaitFor returned %d, want 5", v)
	}
}

// TestWaitForFallbackPollCatchesMissedNotification pins the poll-floor
// fallback (25ms in the daemon, a 15ms ticker here; §5, §9 design notes)
// against a regression where only the direct-notify
// path is ever exercised: the value is mutated without going through Set,
// so no notify channel is ever closed, and only TickerPoll's tick can
// discover the change.
func TestWaitForFallbackPollCatchesMissedNotification(t *testing.T) {
	w := NewWatch(0)
	go func() {
		time.Sleep(10 * time.Millisecond)
		w.mu.Lock()
		w.value = 5
		w.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	v, err := WaitFor(ctx, w, TickerPoll(ctx, 15*time.Millisecond), func(v int) bool { return v == 5 })
	if err != nil {
		t.Fatalf("WaitFor: %v", err)
	}
	if v != 5 {
		t.Fatalf("WaitFor returned %d, want 5", v)
	}
}

func TestCarryFIFOForwards(t *testing.T) {
	src := NewFIFO[int](4)
	dst := NewFIFO[int](4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := CarryFIFO(ctx, nil, "test-carrier", src, dst)
	defer l.Cancel()

	if err := src.Send(ctx, 7); err != nil {
		t.Fatalf("send: %v", err)
	}

	v, ok := dst.Recv(ctx)
	if !ok || v != 7 {
		t.Fatalf("dst.Recv() = (%d, %v), want (7, true)", v, ok)
	}
}
