package tags

import (
	"errors"
	"math/rand/v2"
	"sync"
	"unicode/utf8"
)

const (
	defaultBudget  = 100
	defaultMaxTags = 3
)

// ErrEmptyCache is returned when there is nothing to select from.
var ErrEmptyCache = errors.New("tag cache is empty")

// Rand is the source of randomness used for selection.
// *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// Selector draws a few tags from a Cache under a total length budget.
// Selected tags are removed from the cache.
type Selector struct {
	mu      sync.Mutex
	cache   *Cache
	rnd     Rand
	budget  int
	maxTags int
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithRand sets the randomness source.
func WithRand(r Rand) SelectorOption {
	return func(s *Selector) {
		s.rnd = r
	}
}

// WithBudget sets the total tag length budget.
func WithBudget(n int) SelectorOption {
	return func(s *Selector) {
		s.budget = n
	}
}

// NewSelector creates a selector over cache.
func NewSelector(cache *Cache, opts ...SelectorOption) *Selector {
	s := &Selector{
		cache:   cache,
		rnd:     globalRand{},
		budget:  defaultBudget,
		maxTags: defaultMaxTags,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select picks between 1 and 3 tags uniformly at random. A pick that would
// overrun the budget ends selection, unless it is the first pick, which is
// always kept.
func (s *Selector) Select() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cache.Len() == 0 {
		return nil, ErrEmptyCache
	}

	target := 1 + s.rnd.IntN(s.maxTags)
	remaining := s.budget
	picked := make([]string, 0, target)

	for i := 0; i < target; i++ {
		pool := s.cache.Snapshot()
		if len(pool) == 0 {
			break
		}

		tag := pool[s.rnd.IntN(len(pool))]
		remaining -= utf8.RuneCountInString(tag)
		if remaining < 0 && len(picked) > 0 {
			break
		}

		picked = append(picked, tag)
		s.cache.Remove(tag)
	}

	return picked, nil
}
