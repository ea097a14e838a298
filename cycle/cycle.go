package cycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"commons-tag-bot/tags"
)

const defaultQuota = 20

// Image is an acquired image ready to post.
type Image struct {
	Name string
	URL  string
	Data []byte
}

// PostRecord describes a completed post.
type PostRecord struct {
	ID        string
	PostedAt  time.Time
	ImageName string
	ImageURL  string
	Tags      []string
	MessageID *int64
}

// ImageSource produces one image per cycle.
type ImageSource interface {
	RandomImage(ctx context.Context) (*Image, error)
}

// TagFiller tops up the tag cache from the live stream.
type TagFiller interface {
	Fill(ctx context.Context, quota int) int
}

// TagSelector draws hashtags from the tag cache.
type TagSelector interface {
	Select() ([]string, error)
}

// Poster publishes an image with a caption.
type Poster interface {
	Post(ctx context.Context, image *Image, caption string) (int64, error)
}

// Storage persists post history.
type Storage interface {
	RecordPost(ctx context.Context, post *PostRecord) error
}

// Journal keeps an append-only log of posts.
type Journal interface {
	Append(post *PostRecord) error
}

// Runner executes one post cycle.
type Runner struct {
	images   ImageSource
	filler   TagFiller
	selector TagSelector
	poster   Poster
	storage  Storage
	journal  Journal
	quota    int
	now      func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithQuota sets how many stream tags to ingest per cycle.
func WithQuota(quota int) Option {
	return func(r *Runner) {
		r.quota = quota
	}
}

// WithStorage records each post in storage.
func WithStorage(s Storage) Option {
	return func(r *Runner) {
		r.storage = s
	}
}

// WithJournal appends each post to a journal.
func WithJournal(j Journal) Option {
	return func(r *Runner) {
		r.journal = j
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// NewRunner creates a new cycle runner.
func NewRunner(
	images ImageSource,
	filler TagFiller,
	selector TagSelector,
	poster Poster,
	opts ...Option,
) *Runner {
	r := &Runner{
		images:   images,
		filler:   filler,
		selector: selector,
		poster:   poster,
		quota:    defaultQuota,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run acquires an image, gathers hashtags and posts them together.
func (r *Runner) Run(ctx context.Context) error {
	cycleID := uuid.NewString()
	log := slog.With("cycle_id", cycleID)
	log.Info("starting cycle", "quota", r.quota)

	image, err := r.images.RandomImage(ctx)
	if err != nil {
		return fmt.Errorf("acquire image: %w", err)
	}
	log.Info("acquired image", "image", image.Name, "url", image.URL, "bytes", len(image.Data))

	added := r.filler.Fill(ctx, r.quota)
	log.Info("ingested tags", "added", added)

	selection, err := r.selector.Select()
	if err != nil {
		return fmt.Errorf("select tags: %w", err)
	}

	caption := tags.StatusMessage(selection)
	msgID, err := r.poster.Post(ctx, image, caption)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}

	record := &PostRecord{
		ID:        cycleID,
		PostedAt:  r.now(),
		ImageName: image.Name,
		ImageURL:  image.URL,
		Tags:      selection,
	}
	if msgID > 0 {
		record.MessageID = &msgID
	}

	if r.storage != nil {
		if err := r.storage.RecordPost(ctx, record); err != nil {
			log.Warn("failed to record post", "error", err)
		}
	}
	if r.journal != nil {
		if err := r.journal.Append(record); err != nil {
			log.Warn("failed to append journal", "error", err)
		}
	}

	log.Info("cycle complete", "image", image.Name, "tags", selection, "message_id", msgID)
	return nil
}
