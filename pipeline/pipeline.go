package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	defaultImageSize      = 500
	defaultAttemptTimeout = 30 * time.Second
)

// ErrExhausted is returned when no candidate produced an image.
var ErrExhausted = errors.New("no usable image among candidates")

// ResolvedImage is a candidate paired with a concrete download URL.
type ResolvedImage struct {
	Name string
	URL  string
}

// ImageResult is the terminal artifact of a successful acquisition.
type ImageResult struct {
	Name string
	URL  string
	Data []byte
}

// Resolver turns a candidate name into a size-bounded download URL.
type Resolver interface {
	Resolve(ctx context.Context, name string, width, height int) (*ResolvedImage, error)
}

// Fetcher downloads the bytes behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Pipeline acquires one image by trying candidates in order.
type Pipeline struct {
	resolver       Resolver
	fetcher        Fetcher
	width          int
	height         int
	attemptTimeout time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithImageSize sets the bounding box requested from the resolver.
func WithImageSize(width, height int) Option {
	return func(p *Pipeline) {
		p.width = width
		p.height = height
	}
}

// WithAttemptTimeout bounds resolve+fetch for a single candidate.
func WithAttemptTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.attemptTimeout = d
	}
}

// New creates a pipeline over the given resolver and fetcher.
func New(resolver Resolver, fetcher Fetcher, opts ...Option) *Pipeline {
	p := &Pipeline{
		resolver:       resolver,
		fetcher:        fetcher,
		width:          defaultImageSize,
		height:         defaultImageSize,
		attemptTimeout: defaultAttemptTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Acquire returns the result of the first candidate that resolves and
// downloads successfully. Candidates are tried one at a time, in order.
func (p *Pipeline) Acquire(ctx context.Context, candidates []string) (*ImageResult, error) {
	var lastErr error
	for _, name := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := p.attempt(ctx, name)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		slog.Warn("candidate failed", "candidate", name, "error", err)
		lastErr = err
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w (%d tried): %w", ErrExhausted, len(candidates), lastErr)
	}
	return nil, fmt.Errorf("%w: no candidates", ErrExhausted)
}

func (p *Pipeline) attempt(ctx context.Context, name string) (*ImageResult, error) {
	if p.attemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.attemptTimeout)
		defer cancel()
	}

	img, err := p.resolver.Resolve(ctx, name, p.width, p.height)
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}

	data, err := p.fetcher.Fetch(ctx, img.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", img.URL, err)
	}

	return &ImageResult{
		Name: img.Name,
		URL:  img.URL,
		Data: data,
	}, nil
}
