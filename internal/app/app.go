// Package app builds the long-lived services behind the site API from config,
// acting as the process's dependency container.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/personal-site-api/internal/api"
	"github.com/JakeFAU/personal-site-api/internal/clock/system"
	"github.com/JakeFAU/personal-site-api/internal/config"
	"github.com/JakeFAU/personal-site-api/internal/fetcher"
	collyfetcher "github.com/JakeFAU/personal-site-api/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/personal-site-api/internal/fetcher/headless"
	"github.com/JakeFAU/personal-site-api/internal/id/uuid"
	"github.com/JakeFAU/personal-site-api/internal/lastfm"
	"github.com/JakeFAU/personal-site-api/internal/letterboxd"
	"github.com/JakeFAU/personal-site-api/internal/logging"
	"github.com/JakeFAU/personal-site-api/internal/notes"
	"github.com/JakeFAU/personal-site-api/internal/paint"
	memorypublisher "github.com/JakeFAU/personal-site-api/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/personal-site-api/internal/publisher/pubsub"
	"github.com/JakeFAU/personal-site-api/internal/storage"
	"github.com/JakeFAU/personal-site-api/internal/storage/gcs"
	"github.com/JakeFAU/personal-site-api/internal/storage/local"
	"github.com/JakeFAU/personal-site-api/internal/storage/memory"
	"github.com/JakeFAU/personal-site-api/internal/storage/postgres"
	"github.com/JakeFAU/personal-site-api/internal/upstream"
)

// Closer releases a resource on shutdown.
type Closer interface {
	Close() error
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

type namedCloser struct {
	name   string
	closer Closer
}

// App holds the HTTP server and everything it owns.
type App struct {
	server  *api.Server
	logger  *zap.Logger
	closers []namedCloser
}

// New wires every service named in cfg. On error, anything already opened is closed.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	logger = logging.OrNop(logger)
	a := &App{logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	clk := system.New()
	ids := uuid.New()

	noteStore, err := a.newNoteStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	publisher, topic, err := a.newPublisher(ctx, cfg)
	if err != nil {
		return nil, err
	}
	blobs, err := a.newBlobStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	transport := upstream.NewTransport()
	httpClient := upstream.NewHTTPClient(transport, cfg.HTTPTimeout())
	a.addCloser("http transport", closerFunc(func() error {
		transport.CloseIdleConnections()
		return nil
	}))
	newUpstream := func(name string) *upstream.Client {
		return upstream.New(upstream.Config{
			Name:            name,
			UserAgent:       cfg.HTTP.UserAgent,
			MaxBodyBytes:    cfg.HTTP.MaxBodyBytes,
			BreakerFailures: cfg.HTTP.BreakerFailures,
			BreakerOpen:     time.Duration(cfg.HTTP.BreakerOpenSeconds) * time.Second,
		}, httpClient, logger.Named("upstream"))
	}

	headless, err := a.newHeadless(cfg)
	if err != nil {
		return nil, err
	}
	scraper := letterboxd.NewScraper(letterboxd.ScraperConfig{
		User:              cfg.Letterboxd.User,
		BaseURL:           cfg.Letterboxd.BaseURL,
		PosterConcurrency: cfg.Letterboxd.PosterConcurrency,
	},
		newUpstream("letterboxd"),
		newUpstream("letterboxd_posters"),
		collyfetcher.New(collyfetcher.Config{
			UserAgent: cfg.HTTP.UserAgent,
			Timeout:   cfg.HTTPTimeout(),
			Transport: transport,
		}),
		headless,
		logger.Named("letterboxd"),
	)

	if cfg.LastFM.APIKey == "" {
		logger.Warn("lastfm api key is empty; upstream requests will be rejected")
	}

	a.server = api.NewServer(api.Deps{
		Notes: notes.NewService(noteStore, clk, publisher, ids, notes.Config{
			MaxContentLength: cfg.Notes.MaxContentLength,
			EventsTopic:      topic,
		}, logger.Named("notes")),
		Paint: paint.NewService(paint.Config{
			ObjectName:     cfg.Paint.ObjectName,
			Width:          cfg.Paint.Width,
			Height:         cfg.Paint.Height,
			MaxUploadBytes: cfg.Paint.MaxUploadBytes,
		}, blobs, logger.Named("paint")),
		LastFM: lastfm.NewService(lastfm.Config{
			APIKey:      cfg.LastFM.APIKey,
			DefaultUser: cfg.LastFM.DefaultUser,
			BaseURL:     cfg.LastFM.BaseURL,
			CacheTTL:    cfg.LastFMCacheTTL(),
		}, newUpstream("lastfm"), clk, logger.Named("lastfm")),
		Letterboxd: letterboxd.NewService(scraper, cfg.Letterboxd.User, cfg.LetterboxdCacheTTL(), clk),
		IDs:        ids,
	}, cfg, logger)

	logger.Info("application services initialized",
		zap.String("storage", cfg.Storage.Backend),
		zap.Bool("postgres", cfg.DB.DSN != ""),
		zap.Bool("pubsub", cfg.PubSub.ProjectID != ""),
		zap.Bool("headless_fallback", cfg.Letterboxd.HeadlessFallback),
	)
	return a, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// Close releases resources in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.closer.Close(); err != nil {
			a.logger.Warn("close failed", zap.String("resource", c.name), zap.Error(err))
		}
	}
	a.closers = nil
}

func (a *App) addCloser(name string, c Closer) {
	a.closers = append(a.closers, namedCloser{name: name, closer: c})
}

func (a *App) newNoteStore(ctx context.Context, cfg config.Config) (notes.Store, error) {
	if cfg.DB.DSN == "" {
		a.logger.Warn("db.dsn is empty; sticky notes are kept in memory")
		return memory.NewNoteStore(), nil
	}
	store, err := postgres.NewNoteStore(ctx, postgres.NoteStoreConfig{
		DSN:             cfg.DB.DSN,
		Table:           cfg.Notes.Table,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: time.Duration(cfg.DB.MaxConnLifetimeMinutes) * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("init note store: %w", err)
	}
	a.addCloser("postgres", closerFunc(func() error {
		store.Close()
		return nil
	}))
	if cfg.DB.AutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// newPublisher picks Pub/Sub when a project is configured. The returned topic may be overridden by pubsub.topic_name.
func (a *App) newPublisher(ctx context.Context, cfg config.Config) (notes.Publisher, string, error) {
	topic := cfg.Notes.EventsTopic
	if cfg.PubSub.TopicName != "" {
		topic = cfg.PubSub.TopicName
	}
	if cfg.PubSub.ProjectID == "" {
		return memorypublisher.New(), topic, nil
	}
	pub, err := pubsubpublisher.NewFromEnvironment(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, "", fmt.Errorf("init publisher: %w", err)
	}
	a.addCloser("pubsub", pub)
	return pub, topic, nil
}

func (a *App) newBlobStore(ctx context.Context, cfg config.Config) (storage.BlobStore, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return memory.NewBlobStore(), nil
	case "gcs":
		store, closeFn, err := gcs.NewFromEnvironment(ctx, gcs.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init blob store: %w", err)
		}
		a.addCloser("gcs", closerFunc(closeFn))
		return store, nil
	case "local", "":
		store, err := local.New(local.Config{BaseDir: cfg.Storage.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("init blob store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func (a *App) newHeadless(cfg config.Config) (fetcher.Fetcher, error) {
	if !cfg.Letterboxd.HeadlessFallback {
		return headlessfetcher.NewNoop(), nil
	}
	f, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
		MaxParallel:       1,
		UserAgent:         cfg.HTTP.UserAgent,
		NavigationTimeout: time.Duration(cfg.Letterboxd.HeadlessTimeoutSeconds) * time.Second,
		WaitSelector:      "div.poster-grid",
	})
	if err != nil {
		return nil, fmt.Errorf("init headless fetcher: %w", err)
	}
	a.addCloser("headless", closerFunc(func() error {
		f.Close()
		return nil
	}))
	return f, nil
}
