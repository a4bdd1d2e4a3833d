package input

import (
	"context"
	"log/slog"
)

// RelayCapacity bounds the key relay channel.
const RelayCapacity = 10

// StartReader reads src on its own goroutine and relays movement keys on the
// returned channel. The channel is closed when a quit key is read, when src
// fails, or when ctx is done while a send is pending; its closure is the
// shutdown signal for the consumer.
func StartReader(ctx context.Context, src Source, logger *slog.Logger) <-chan Key {
	if logger == nil {
		logger = slog.Default()
	}
	out := make(chan Key, RelayCapacity)
	go func() {
		defer close(out)
		for {
			k, err := src.ReadKey()
			if err != nil {
				logger.Warn("input error", "error", err)
				return
			}
			if k == KeyQuit {
				logger.Debug("quit key read")
				return
			}
			if !k.Relayed() {
				continue
			}
			select {
			case out <- k:
				continue
			default:
			}
			select {
			case out <- k:
			case <-ctx.Done():
				logger.Warn("failed to push key event", "key", k, "error", ctx.Err())
				return
			}
		}
	}()
	return out
}
