package pipeline

import (
	"context"
	"fmt"
	"log/slog"
)

// CandidateSource yields an ordered batch of candidate names.
type CandidateSource interface {
	SelectCandidates(ctx context.Context) ([]string, error)
}

// History reports image names that were posted recently.
type History interface {
	RecentImageNames(ctx context.Context) ([]string, error)
}

// Source combines a candidate source with a pipeline.
type Source struct {
	candidates CandidateSource
	pipeline   *Pipeline
	history    History
}

// NewSource creates a Source. history may be nil.
func NewSource(candidates CandidateSource, p *Pipeline, history History) *Source {
	return &Source{
		candidates: candidates,
		pipeline:   p,
		history:    history,
	}
}

// RandomImage selects a fresh batch of candidates and acquires one image.
func (s *Source) RandomImage(ctx context.Context) (*ImageResult, error) {
	names, err := s.candidates.SelectCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("select candidates: %w", err)
	}
	slog.Debug("selected candidates", "count", len(names))

	if s.history != nil {
		names = s.skipRecent(ctx, names)
	}

	return s.pipeline.Acquire(ctx, names)
}

func (s *Source) skipRecent(ctx context.Context, names []string) []string {
	recent, err := s.history.RecentImageNames(ctx)
	if err != nil {
		slog.Warn("failed to load recent images", "error", err)
		return names
	}

	seen := make(map[string]bool, len(recent))
	for _, name := range recent {
		seen[name] = true
	}

	var filtered []string
	for _, name := range names {
		if !seen[name] {
			filtered = append(filtered, name)
		}
	}
	if len(filtered) != len(names) {
		slog.Info("skipped recently posted candidates", "before", len(names), "after", len(filtered))
	}
	return filtered
}
