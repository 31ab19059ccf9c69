package providers

import (
	"context"

	"github.com/Egham-7/adaptive-gateway/internal/models"
)

// deltaSource adapts an SDK stream to a pull iterator of text deltas
type deltaSource interface {
	Next() bool
	Delta() string
	Err() error
	Close() error
}

// startStream reads the first event synchronously so request errors (401, 429,
// 5xx) surface before any delta is emitted, then hands the rest of the stream
// to a producer goroutine writing into a bounded channel.
func startStream(ctx context.Context, provider models.ProviderID, src deltaSource, buffer int) (<-chan models.StreamDelta, error) {
	if buffer <= 0 {
		buffer = defaultStreamBuffer
	}

	if !src.Next() {
		err := src.Err()
		_ = src.Close()
		if err != nil {
			return nil, ClassifyError(provider, err)
		}
		empty := make(chan models.StreamDelta)
		close(empty)
		return empty, nil
	}

	out := make(chan models.StreamDelta, buffer)
	go func() {
		defer close(out)
		defer src.Close()

		send := func(d models.StreamDelta) bool {
			select {
			case out <- d:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			if text := src.Delta(); text != "" {
				if !send(models.StreamDelta{Text: text}) {
					return
				}
			}
			if !src.Next() {
				break
			}
		}

		// Cancellation ends the stream quietly; the consumer inspects its own ctx.
		if err := src.Err(); err != nil && ctx.Err() == nil {
			send(models.StreamDelta{Err: ClassifyError(provider, err)})
		}
	}()
	return out, nil
}
