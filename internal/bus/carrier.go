package bus

import (
	"context"

	"github.com/sirupsen/logrus"
)

// CarryFIFO spawns a lifeline that forwards every value read from src into
// dst until src is drained and closed, dst rejects with ErrChannelClosed, or
// ctx is cancelled. This is the FIFO analogue of a "carrier" (§4.4, §9):
// dropping (cancelling) the returned lifeline tears down the forwarding
// pipeline without affecting either endpoint directly.
func CarryFIFO[T any](ctx context.Context, log *logrus.Logger, name string, src, dst *FIFO[T]) *Lifeline {
	return Spawn(ctx, log, name, func(ctx context.Context) error {
		for {
			v, ok := src.Recv(ctx)
			if !ok {
				return nil
			}
			if err := dst.Send(ctx, v); err != nil {
				return err
			}
		}
	})
}

// CarryBroadcast spawns a lifeline that republishes every message observed
// by a subscription on src onto dst, until the subscription is dropped or
// ctx is cancelled.
func CarryBroadcast[T any](ctx context.Context, log *logrus.Logger, name string, src, dst *Broadcast[T]) *Lifeline {
	sub := src.Subscribe()
	l := Spawn(ctx, log, name, func(ctx context.Context) error {
		for {
			select {
			case d, ok := <-sub.Recv():
				if !ok {
					return nil
				}
				dst.Publish(d.Value)
			case <-ctx.Done():
				return nil
			}
		}
	})
	go func() {
		<-l.Done()
		src.Unsubscribe(sub)
	}()
	return l
}
