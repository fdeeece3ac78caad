// Package app wires configuration into the running pipeline and admin API.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/autoposter/internal/breaker"
	"github.com/unclebandit/autoposter/internal/config"
	"github.com/unclebandit/autoposter/internal/controller"
	"github.com/unclebandit/autoposter/internal/creative"
	"github.com/unclebandit/autoposter/internal/db"
	"github.com/unclebandit/autoposter/internal/dedupe"
	"github.com/unclebandit/autoposter/internal/handler"
	"github.com/unclebandit/autoposter/internal/logging"
	"github.com/unclebandit/autoposter/internal/media"
	"github.com/unclebandit/autoposter/internal/metrics"
	"github.com/unclebandit/autoposter/internal/notify"
	"github.com/unclebandit/autoposter/internal/platform"
	"github.com/unclebandit/autoposter/internal/queue"
	"github.com/unclebandit/autoposter/internal/repository"
	"github.com/unclebandit/autoposter/internal/scheduler"
	"github.com/unclebandit/autoposter/internal/selector"
	"github.com/unclebandit/autoposter/internal/service"
)

// App holds every long-lived dependency of a process.
type App struct {
	Config     *config.Config
	Logger     logging.Logger
	DB         *sql.DB
	Metrics    *metrics.Metrics
	Breaker    *breaker.CircuitBreaker
	KillSwitch breaker.SettableKillSwitch
	Broker     queue.Broker
	Scheduler  *scheduler.Scheduler
	Selection  *service.SelectionWorker
	Publish    *service.PublishWorker
	Posts      *service.PostService

	closers []func() error
}

// Build validates cfg, connects to the store and optional services, and assembles the workers.
func Build(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	windows, err := scheduler.ParseWindows(cfg.Windows)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: logger}

	conn, err := db.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	a.DB = conn
	a.closers = append(a.closers, conn.Close)
	if err := db.Migrate(ctx, conn); err != nil {
		a.Close()
		return nil, err
	}

	a.Metrics = metrics.New(prometheus.NewRegistry())
	a.KillSwitch = a.buildKillSwitch(ctx)
	a.Breaker = breaker.New(breaker.Config{
		KillSwitch:    a.KillSwitch,
		Logger:        logger,
		OnStateChange: func(s breaker.State) { a.Metrics.SetCircuitOpen(s == breaker.StateOpen) },
	})

	if cfg.DryRun {
		a.Broker = queue.NewMemoryBroker()
	} else {
		a.Broker = queue.NewPostgresBroker(conn)
	}

	var notifier notify.Publisher = notify.NopPublisher{}
	if cfg.AMQPURL != "" {
		pub, err := notify.DialAMQP(cfg.AMQPURL, notify.DefaultQueue, logger)
		if err != nil {
			logger.WithError(err).Warn("Post events disabled, broker unreachable")
		} else {
			notifier = pub
			a.closers = append(a.closers, pub.Close)
		}
	}

	var client platform.Client
	if cfg.DryRun {
		client = platform.NewDryRunClient(logger)
	} else {
		client = platform.NewXClient(ctx, platform.XConfig{
			APIURL:      cfg.XAPIURL,
			UploadURL:   cfg.XUploadURL,
			AccessToken: cfg.XAccessToken,
		}, logger)
	}

	var generator creative.Generator
	if cfg.LLMAPIKey != "" {
		generator = creative.NewLLMClient(creative.LLMConfig{
			APIURL:     cfg.LLMAPIURL,
			APIKey:     cfg.LLMAPIKey,
			Model:      cfg.LLMModel,
			MaxRetries: 2,
		})
	} else {
		logger.Warn("LLM_API_KEY not set, captions will come from templates")
	}

	candidates := &repository.CandidateRepository{DB: conn}
	posts := repository.NewPostRepository(conn)

	a.Scheduler = scheduler.New(a.Broker, windows, loc, logger)
	a.Selection = &service.SelectionWorker{
		Breaker:           a.Breaker,
		Selector:          selector.New(candidates, selector.WithLogger(logger)),
		Creative:          creative.NewEngine(generator, logger),
		Guard:             dedupe.NewGuard(posts, logger),
		Media:             media.NewFFmpegPreparer(cfg.FFmpegPath, cfg.MediaOutputDir, logger),
		Posts:             posts,
		Variants:          &repository.VariantRepository{DB: conn},
		Broker:            a.Broker,
		Notifier:          notifier,
		Metrics:           a.Metrics,
		Logger:            logger,
		Campaign:          cfg.TrackingCampaign,
		FallbackMediaPath: cfg.FallbackMediaPath,
	}
	a.Publish = &service.PublishWorker{
		Platform: client,
		Posts:    posts,
		Breaker:  a.Breaker,
		Notifier: notifier,
		Metrics:  a.Metrics,
		Logger:   logger,
	}
	a.Posts = &service.PostService{
		Posts:      posts,
		Candidates: candidates,
		Events:     &repository.EventRepository{DB: conn},
	}
	return a, nil
}

// buildKillSwitch shares the switch through Redis when REDIS_URL is set and falls back to the env var.
func (a *App) buildKillSwitch(ctx context.Context) breaker.SettableKillSwitch {
	env := breaker.NewEnvKillSwitch(config.KillSwitchEnv)
	if a.Config.RedisURL == "" {
		if !a.Config.RunPipeline {
			a.Logger.Warn("REDIS_URL not set, PUT /config will not reach the pipeline process")
		}
		return env
	}
	opts, err := goredis.ParseURL(a.Config.RedisURL)
	if err != nil {
		a.Logger.WithError(err).Warn("Invalid REDIS_URL, kill switch is process local")
		return env
	}
	client := goredis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		a.Logger.WithError(err).Warn("Redis unreachable, kill switch falls back to env until it recovers")
	}
	a.closers = append(a.closers, client.Close)
	return breaker.NewRedisKillSwitch(client, breaker.DefaultRedisKillSwitchKey, env, a.Logger)
}

// Router is the admin, ingestion and metrics HTTP surface.
func (a *App) Router() http.Handler {
	admin := &handler.AdminHandler{
		Config:     a.Config,
		Breaker:    a.Breaker,
		KillSwitch: a.KillSwitch,
		Logger:     a.Logger,
	}
	return handler.NewRouter(&controller.PostController{PostService: a.Posts}, admin, a.Metrics.Handler(), a.Logger)
}

// Pools returns the selection and publish stages.
func (a *App) Pools() (*queue.Pool, *queue.Pool) {
	selection := queue.NewPool(a.Broker,
		queue.SelectionStage(a.Config.SelectionConcurrency, a.Config.PollInterval),
		a.Selection.Handle, a.Logger,
		queue.WithMetrics(a.Metrics),
	)
	publish := queue.NewPool(a.Broker,
		queue.PublishStage(a.Config.PollInterval),
		a.Publish.Handle, a.Logger,
		queue.WithMetrics(a.Metrics),
		queue.WithExhaustedHook(a.Publish.OnExhausted),
	)
	return selection, publish
}

// RunPipeline runs the scheduler and both pools until ctx is cancelled. With a shared broker
// it first waits for the pipeline lock, so only one process schedules and publishes at a time.
func (a *App) RunPipeline(ctx context.Context) error {
	if leader, ok := a.Broker.(queue.Leader); ok {
		a.Logger.Info("Waiting for pipeline lock")
		release, err := leader.Lead(ctx, a.Config.PollInterval)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("pipeline: %w", err)
		}
		defer func() {
			if err := release(); err != nil {
				a.Logger.WithError(err).Warn("Failed to release pipeline lock")
			}
		}()
		a.Logger.Info("Pipeline lock acquired")
	}

	selection, publish := a.Pools()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Scheduler.Run(gctx) })
	g.Go(func() error { return selection.Run(gctx) })
	g.Go(func() error { return publish.Run(gctx) })
	if err := g.Wait(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	return nil
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.WithError(err).Warn("Error during shutdown")
		}
	}
	a.closers = nil
}
