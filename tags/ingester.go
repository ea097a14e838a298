package tags

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Event is one message from a live stream, carrying zero or more hashtags.
type Event struct {
	Tags []string
}

// Subscription is an open, closable stream of events.
type Subscription interface {
	Next(ctx context.Context) (Event, error)
	Close() error
}

// Subscriber opens subscriptions to a live event stream.
type Subscriber interface {
	Subscribe(ctx context.Context) (Subscription, error)
}

// Ingester feeds hashtags from a live stream into a Cache.
type Ingester struct {
	cache      *Cache
	subscriber Subscriber
	timeout    time.Duration
}

// IngesterOption configures an Ingester.
type IngesterOption func(*Ingester)

// WithIngestTimeout bounds how long a single Fill may consume the stream.
func WithIngestTimeout(d time.Duration) IngesterOption {
	return func(in *Ingester) {
		in.timeout = d
	}
}

// NewIngester creates an ingester writing into cache.
func NewIngester(cache *Cache, subscriber Subscriber, opts ...IngesterOption) *Ingester {
	in := &Ingester{
		cache:      cache,
		subscriber: subscriber,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Fill consumes the stream until quota hashtags have been added, then closes
// the subscription. The countdown stops only once it drops below zero, so a
// complete fill adds quota+1 tags. Stream failures end ingestion early and are
// not reported as errors. It returns the number of tags added.
func (in *Ingester) Fill(ctx context.Context, quota int) int {
	if in.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, in.timeout)
		defer cancel()
	}

	sub, err := in.subscriber.Subscribe(ctx)
	if err != nil {
		slog.Warn("failed to subscribe to tag stream", "error", err)
		return 0
	}
	defer func() {
		if err := sub.Close(); err != nil {
			slog.Debug("close tag stream", "error", err)
		}
	}()

	remaining := quota
	added := 0
	for {
		event, err := sub.Next(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				slog.Info("tag ingestion timed out", "added", added, "quota", quota)
			} else {
				slog.Warn("tag stream error", "added", added, "error", err)
			}
			return added
		}

		for _, tag := range event.Tags {
			if tag == "" {
				continue
			}
			in.cache.Add(tag)
			added++
			remaining--
			if remaining < 0 {
				slog.Debug("tag quota met", "added", added, "cache_size", in.cache.Len())
				return added
			}
		}
	}
}
