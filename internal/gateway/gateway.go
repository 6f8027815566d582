// Package gateway assembles the bot from configuration and runs it: the
// mention monitor, housekeeping jobs, config reloads and the status endpoint.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/FeelPulse/skyoracle/internal/agent"
	"github.com/FeelPulse/skyoracle/internal/analytics"
	"github.com/FeelPulse/skyoracle/internal/cache"
	"github.com/FeelPulse/skyoracle/internal/channel"
	"github.com/FeelPulse/skyoracle/internal/config"
	"github.com/FeelPulse/skyoracle/internal/dailylog"
	"github.com/FeelPulse/skyoracle/internal/logger"
	"github.com/FeelPulse/skyoracle/internal/metrics"
	"github.com/FeelPulse/skyoracle/internal/monitor"
	"github.com/FeelPulse/skyoracle/internal/pipeline"
	"github.com/FeelPulse/skyoracle/internal/ratelimit"
	"github.com/FeelPulse/skyoracle/internal/scheduler"
	"github.com/FeelPulse/skyoracle/internal/store"
	"github.com/FeelPulse/skyoracle/internal/usage"
	"github.com/FeelPulse/skyoracle/internal/watcher"
	"github.com/FeelPulse/skyoracle/pkg/types"
)

const (
	serverShutdownTimeout = 5 * time.Second
	analyticsDrainTimeout = 10 * time.Second
)

// Options controls how the gateway is assembled
type Options struct {
	ConfigPath       string // watched for hot reloads; empty uses the default path
	Version          string
	DryRun           bool // monitor composes replies but never posts
	DisableAnalytics bool
}

// Gateway owns every long-lived component of the bot
type Gateway struct {
	cfg        *config.Config
	configPath string
	version    string
	log        *logger.Logger
	metrics    *metrics.Collector
	usage      *usage.Tracker

	db        *store.SQLiteStore
	pgSink    *analytics.PostgresSink
	client    *channel.Client
	ai        *agent.Gateway
	cache     *cache.Cache[*types.AIResponse]
	limiter   *ratelimit.Limiter
	throttle  *ratelimit.Throttle
	emitter   *analytics.Emitter
	processor *monitor.Processor
	monitor   *monitor.Monitor
	scheduler *scheduler.Scheduler
	server    *http.Server
	startTime time.Time
}

// New builds the gateway. It opens local state and creates clients but does
// not touch the network.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Gateway, error) {
	if err := cfg.Validate().Err(); err != nil {
		return nil, err
	}

	log := logger.New(&logger.Config{Level: cfg.Log.Level, Component: "skyoracle"})
	logger.SetDefaultLogger(log)

	gw := &Gateway{
		cfg:        cfg,
		configPath: opts.ConfigPath,
		version:    opts.Version,
		log:        log,
		metrics:    metrics.NewCollector(),
		usage:      usage.NewTracker(),
		startTime:  time.Now(),
	}
	if gw.configPath == "" {
		gw.configPath = config.DefaultPath()
	}

	ok := false
	defer func() {
		if !ok {
			gw.Close(context.Background())
		}
	}()

	db, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	gw.db = db
	log.Info("💾 State database: %s", cfg.Store.Path)

	gw.client = channel.NewClient(channel.Options{
		Identifier:    cfg.Bluesky.Username,
		Password:      cfg.Bluesky.Password,
		PDSURL:        cfg.Bluesky.PDSURL,
		Timeout:       cfg.Bluesky.Timeout,
		MaxMediaBytes: cfg.Bluesky.MaxMediaBytes,
		Logger:        log.WithComponent("bluesky"),
	})

	provider, err := agent.NewProvider(ctx, cfg, gw.usage)
	if err != nil {
		return nil, fmt.Errorf("failed to create AI provider: %w", err)
	}
	if cfg.AI.CacheTTL > 0 {
		gw.cache = cache.New[*types.AIResponse](cfg.AI.CacheTTL, cfg.AI.CacheMaxEntries)
	}
	gw.throttle = ratelimit.NewThrottle(cfg.AI.MinInterval)
	gw.ai = agent.NewGateway(provider, agent.Options{
		ReplyCharCap:       cfg.AI.ReplyCharCap,
		Timeout:            cfg.AI.Timeout,
		Throttle:           gw.throttle,
		Cache:              gw.cache,
		Metrics:            gw.metrics,
		Logger:             log.WithComponent("agent"),
		ShortenLongReplies: cfg.AI.ShortenLongReplies,
	})
	log.Info("🤖 AI provider: %s/%s", provider.Name(), provider.Model())

	pipe, err := pipeline.New(pipeline.Options{
		MaxContextChars: cfg.Pipeline.MaxContextChars,
		ReplyCharCap:    cfg.AI.ReplyCharCap,
		DefaultLanguage: cfg.Pipeline.DefaultLanguage,
		TemplateDir:     cfg.Pipeline.TemplateDir,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load prompt templates: %w", err)
	}

	var recorder monitor.Recorder
	if !opts.DisableAnalytics {
		sink, err := gw.analyticsSink(ctx)
		if err != nil {
			return nil, err
		}
		gw.emitter = analytics.NewEmitter(sink, analytics.Options{
			QueueSize: cfg.Analytics.QueueSize,
			Logger:    log.WithComponent("analytics"),
			Metrics:   gw.metrics,
		})
		if gw.emitter.Enabled() {
			recorder = gw.emitter
			log.Info("📊 Analytics sink: %s", sink.Name())
		}
	}

	var social monitor.Social = gw.client
	if journal := dailylog.NewWriter(cfg.Journal.Dir); journal != nil {
		social = &journaledSocial{Social: gw.client, journal: journal, log: log.WithComponent("journal"), now: time.Now}
		log.Info("📓 Reply journal: %s", journal.Dir())
	}

	gw.processor = monitor.NewProcessor(social, gw.ai, pipe, recorder, monitor.RetryPolicy{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: cfg.Retry.InitialInterval,
		Multiplier:      cfg.Retry.Multiplier,
	}, log.WithComponent("processor"))

	gw.limiter = ratelimit.New(cfg.Monitor.RequesterLimit)
	if cfg.Monitor.RequesterLimit > 0 {
		log.Info("⏱️  Requester limit: %d mentions/minute", cfg.Monitor.RequesterLimit)
	}

	seen := monitor.NewSeenSet(cfg.Monitor.SeenWindow, db)
	gw.monitor = monitor.New(gw.client, gw.processor, seen, monitor.Options{
		PollInterval:    cfg.Monitor.PollInterval,
		MaxBackoff:      cfg.Monitor.MaxBackoff,
		ReplyDelay:      cfg.Monitor.ReplyDelay,
		ShutdownTimeout: cfg.Monitor.ShutdownTimeout,
		MarkSeenAfter:   cfg.Monitor.MarkSeen == "after",
		DryRun:          opts.DryRun,
		Cursor:          db,
		Limiter:         gw.limiter,
		Metrics:         gw.metrics,
		Logger:          log.WithComponent("monitor"),
	})

	gw.scheduler = scheduler.New(log.WithComponent("scheduler"))
	if err := gw.scheduler.Add("maintenance", cfg.Monitor.MaintenanceCron, gw.maintenance); err != nil {
		return nil, err
	}
	if err := gw.scheduler.Add("status", cfg.Monitor.StatusReportCron, gw.statusReport); err != nil {
		return nil, err
	}

	if cfg.Metrics.Addr != "" {
		gw.server = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           gw.routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	ok = true
	return gw, nil
}

// analyticsSink returns the configured sink, or nil when analytics is off
func (gw *Gateway) analyticsSink(ctx context.Context) (analytics.Sink, error) {
	switch strings.ToLower(gw.cfg.Analytics.Sink) {
	case "", "sqlite":
		return gw.db, nil
	case "postgres":
		sink, err := analytics.NewPostgresSink(ctx, gw.cfg.Analytics.DatabaseURL)
		if err != nil {
			return nil, err
		}
		gw.pgSink = sink
		return sink, nil
	default:
		return nil, nil
	}
}

// Start runs the bot until SIGINT or SIGTERM
func (gw *Gateway) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := gw.Run(ctx)
	fmt.Println("\n👋 Shutting down...")
	if cerr := gw.Close(context.Background()); cerr != nil && err == nil {
		err = cerr
	}
	gw.log.Info("👋 Shutdown complete")
	return err
}

// Run signs in and serves until ctx is cancelled or a component fails. An
// authentication failure is returned before anything starts.
func (gw *Gateway) Run(ctx context.Context) error {
	sess, err := gw.client.Authenticate(ctx)
	if err != nil {
		return fmt.Errorf("failed to sign in to Bluesky: %w", err)
	}
	gw.log.Info("🦋 Signed in as @%s (%s)", sess.Handle, sess.DID)

	gw.scheduler.Start()
	defer gw.scheduler.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return gw.monitor.Run(gctx)
	})
	g.Go(func() error {
		watcher.NewConfigWatcher(gw.configPath, watcher.DefaultPollInterval, gw.reload).Run(gctx)
		return nil
	})
	if gw.server != nil {
		g.Go(func() error {
			gw.log.Info("📈 Status endpoint listening on %s", gw.server.Addr)
			if err := gw.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status endpoint: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
			defer cancel()
			return gw.server.Shutdown(sctx)
		})
	}
	return g.Wait()
}

// Check evaluates one post without posting and returns the result
func (gw *Gateway) Check(ctx context.Context, ref string, mode types.Mode, language string) (*monitor.Result, error) {
	if _, err := gw.client.Authenticate(ctx); err != nil {
		return nil, fmt.Errorf("failed to sign in to Bluesky: %w", err)
	}
	return gw.processor.Process(ctx, ref, monitor.ProcessOptions{
		Mode:     mode,
		Language: language,
		DryRun:   true,
	})
}

// reload applies the settings that can change without a restart
func (gw *Gateway) reload(path string) {
	cfg, err := config.Load(path)
	if err != nil {
		gw.log.Warn("⚠️ Failed to reload config: %v", err)
		return
	}
	if err := cfg.Validate().Err(); err != nil {
		gw.log.Warn("⚠️ Ignoring invalid config: %v", err)
		return
	}

	gw.log.SetLevel(logger.ParseLevel(cfg.Log.Level))
	if gw.limiter.Limit() != cfg.Monitor.RequesterLimit {
		gw.limiter.SetLimit(cfg.Monitor.RequesterLimit)
		gw.log.Info("⏱️  Requester limit updated: %d mentions/minute", cfg.Monitor.RequesterLimit)
	}
	if gw.throttle.Interval() != cfg.AI.MinInterval {
		gw.throttle.SetInterval(cfg.AI.MinInterval)
		gw.log.Info("⏱️  AI call spacing updated: %s", cfg.AI.MinInterval)
	}
	gw.log.Info("🔄 Config reloaded (log level %s); other changes apply on restart", cfg.Log.Level)
}

// Close releases resources in dependency order. Pending analytics records
// are drained for a bounded time.
func (gw *Gateway) Close(ctx context.Context) error {
	var errs []error

	if gw.scheduler != nil {
		gw.scheduler.Stop()
	}
	if gw.emitter != nil {
		dctx, cancel := context.WithTimeout(ctx, analyticsDrainTimeout)
		if err := gw.emitter.Close(dctx); err != nil {
			errs = append(errs, fmt.Errorf("analytics drain: %w", err))
		}
		cancel()
		gw.emitter = nil
	}
	if gw.pgSink != nil {
		gw.pgSink.Close()
		gw.pgSink = nil
	}
	if gw.db != nil {
		if err := gw.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			gw.log.Info("💾 Database connection closed")
		}
		gw.db = nil
	}
	return errors.Join(errs...)
}
