package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"commons-tag-bot/commons"
	"commons-tag-bot/config"
	"commons-tag-bot/cycle"
	"commons-tag-bot/firehose"
	"commons-tag-bot/pipeline"
	"commons-tag-bot/poster"
	"commons-tag-bot/scheduler"
	"commons-tag-bot/storage"
	"commons-tag-bot/tags"
)

func main() {
	// Set up structured logging
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("starting Commons tag bot")

	// Load configuration
	configPath := config.GetConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}
	level.Set(parseLevel(cfg.LogLevel))
	slog.Info("config loaded", "path", configPath, "dry_run", cfg.DryRun)

	// Initialize database
	db, err := storage.NewDB(cfg.DBPath)
	if err != nil {
		slog.Error("failed to initialize database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database initialized", "path", cfg.DBPath)

	journal := storage.NewJournal(cfg.JournalPath)

	// Initialize Telegram bot
	var sender poster.Sender
	if !cfg.DryRun {
		tgBot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
		if err != nil {
			slog.Error("failed to initialize Telegram bot", "error", err)
			os.Exit(1)
		}
		slog.Info("telegram bot initialized", "username", tgBot.Self.UserName)
		sender = tgBot
	}

	// Initialize components
	commonsClient := commons.NewClient(
		commons.WithAPIURL(cfg.CommonsAPIURL),
		commons.WithThumbnailURL(cfg.ThumbnailAPIURL),
		commons.WithTimeout(time.Duration(cfg.FetchTimeoutSecs)*time.Second),
		commons.WithUserAgent(cfg.UserAgent),
		commons.WithMaxBytes(cfg.MaxImageBytes),
	)
	imagePipeline := pipeline.New(
		&resolverAdapter{commonsClient},
		&fetcherAdapter{commonsClient},
		pipeline.WithImageSize(cfg.ImageSize, cfg.ImageSize),
		pipeline.WithAttemptTimeout(time.Duration(cfg.AttemptTimeoutSecs)*time.Second),
	)
	imageSource := pipeline.NewSource(
		&candidateAdapter{client: commonsClient, limit: cfg.CandidateLimit},
		imagePipeline,
		&historyAdapter{db: db, window: time.Duration(cfg.RecencyWindowHours) * time.Hour},
	)

	stream := firehose.NewClient(
		firehose.WithURL(cfg.FirehoseURL),
		firehose.WithUserAgent(cfg.UserAgent),
		firehose.WithHandshakeTimeout(time.Duration(cfg.FetchTimeoutSecs)*time.Second),
	)
	tagCache, err := tags.NewCache(cfg.CacheLimit)
	if err != nil {
		slog.Error("failed to initialize tag cache", "limit", cfg.CacheLimit, "error", err)
		os.Exit(1)
	}
	ingester := tags.NewIngester(tagCache, &subscriberAdapter{stream},
		tags.WithIngestTimeout(time.Duration(cfg.IngestTimeoutSecs)*time.Second),
	)
	selector := tags.NewSelector(tagCache, tags.WithBudget(cfg.TagBudget))

	telegram := poster.NewTelegram(sender, cfg.ChatID,
		poster.WithDryRun(cfg.DryRun),
		poster.WithAttribution(cfg.Attribution),
	)

	runner := cycle.NewRunner(
		&imageSourceAdapter{imageSource},
		ingester,
		selector,
		&posterAdapter{telegram},
		cycle.WithQuota(cfg.SampleLimit),
		cycle.WithStorage(&storageAdapter{db}),
		cycle.WithJournal(&journalAdapter{journal}),
	)

	// Initialize scheduler
	interval := time.Duration(cfg.IntervalMinutes) * time.Minute
	sched, err := scheduler.NewScheduler(interval)
	if err != nil {
		slog.Error("failed to initialize scheduler", "interval", interval, "error", err)
		os.Exit(1)
	}

	// Set up context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	runCycle := func() {
		if err := runner.Run(ctx); err != nil {
			slog.Error("cycle failed", "error", err)
		}
	}

	if err := sched.Schedule(runCycle); err != nil {
		slog.Error("failed to schedule cycle", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// First cycle runs immediately, then the scheduler takes over.
		runCycle()
		sched.Start()
		slog.Info("cycle scheduled", "interval", interval, "next", sched.Next())
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	// The first goroutine returning nil does not cancel gctx, so this waits
	// for the shutdown signal.
	g.Wait()

	sched.Stop()
	slog.Info("bot stopped")
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Adapter types to bridge between our clients and the package interfaces

type resolverAdapter struct {
	client *commons.Client
}

func (r *resolverAdapter) Resolve(ctx context.Context, name string, width, height int) (*pipeline.ResolvedImage, error) {
	img, err := r.client.Thumbnail(ctx, name, width, height)
	if err != nil {
		return nil, err
	}
	return &pipeline.ResolvedImage{Name: img.Name, URL: img.URL}, nil
}

type fetcherAdapter struct {
	client *commons.Client
}

func (f *fetcherAdapter) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f.client.Download(ctx, url)
}

type candidateAdapter struct {
	client *commons.Client
	limit  int
}

func (c *candidateAdapter) SelectCandidates(ctx context.Context) ([]string, error) {
	return c.client.RandomFiles(ctx, c.limit)
}

type historyAdapter struct {
	db     *storage.DB
	window time.Duration
}

func (h *historyAdapter) RecentImageNames(ctx context.Context) ([]string, error) {
	return h.db.RecentImageNames(ctx, h.window)
}

type subscriberAdapter struct {
	client *firehose.Client
}

func (s *subscriberAdapter) Subscribe(ctx context.Context) (tags.Subscription, error) {
	sub, err := s.client.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	return &subscriptionAdapter{sub}, nil
}

type subscriptionAdapter struct {
	sub *firehose.Subscription
}

func (s *subscriptionAdapter) Next(ctx context.Context) (tags.Event, error) {
	event, err := s.sub.Next(ctx)
	if err != nil {
		return tags.Event{}, err
	}
	return tags.Event{Tags: event.Tags}, nil
}

func (s *subscriptionAdapter) Close() error {
	return s.sub.Close()
}

type imageSourceAdapter struct {
	source *pipeline.Source
}

func (i *imageSourceAdapter) RandomImage(ctx context.Context) (*cycle.Image, error) {
	img, err := i.source.RandomImage(ctx)
	if err != nil {
		return nil, err
	}
	return &cycle.Image{Name: img.Name, URL: img.URL, Data: img.Data}, nil
}

type posterAdapter struct {
	telegram *poster.Telegram
}

func (p *posterAdapter) Post(ctx context.Context, image *cycle.Image, caption string) (int64, error) {
	return p.telegram.Post(ctx, &poster.Photo{
		Name: image.Name,
		URL:  image.URL,
		Data: image.Data,
	}, caption)
}

type storageAdapter struct {
	db *storage.DB
}

func (s *storageAdapter) RecordPost(ctx context.Context, post *cycle.PostRecord) error {
	return s.db.RecordPost(ctx, &storage.Post{
		ID:        post.ID,
		PostedAt:  post.PostedAt,
		ImageName: post.ImageName,
		ImageURL:  post.ImageURL,
		Tags:      post.Tags,
		MessageID: post.MessageID,
	})
}

type journalAdapter struct {
	journal *storage.Journal
}

func (j *journalAdapter) Append(post *cycle.PostRecord) error {
	return j.journal.Append(storage.JournalRecord{
		Time: post.PostedAt,
		Tags: post.Tags,
		Image: storage.JournalImage{
			Name: post.ImageName,
			URL:  post.ImageURL,
		},
	})
}
