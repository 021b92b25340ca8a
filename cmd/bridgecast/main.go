package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rewired-gh/bridgecast/internal/analytics"
	"github.com/rewired-gh/bridgecast/internal/cascade"
	"github.com/rewired-gh/bridgecast/internal/config"
	"github.com/rewired-gh/bridgecast/internal/feed"
	"github.com/rewired-gh/bridgecast/internal/logger"
	"github.com/rewired-gh/bridgecast/internal/models"
	"github.com/rewired-gh/bridgecast/internal/monitor"
	"github.com/rewired-gh/bridgecast/internal/prediction"
	"github.com/rewired-gh/bridgecast/internal/publish"
	"github.com/rewired-gh/bridgecast/internal/storage"
	"github.com/rewired-gh/bridgecast/internal/telegram"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

// refetchOverlap is how far before the newest stored opening a poll starts, so
// openings that were still in progress get their close time on a later poll.
const refetchOverlap = 2 * time.Hour

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Setup logging with level support
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	// Initialize storage
	store, err := storage.New(cfg.Storage.MaxEvents, cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	// Initialize feed client
	feedClient := feed.NewClient(feed.Config{
		BaseURL:        cfg.Feed.BaseURL,
		Timeout:        cfg.Feed.Timeout,
		PageSize:       cfg.Feed.PageSize,
		MaxPages:       cfg.Feed.MaxPages,
		MaxRetries:     cfg.Feed.MaxRetries,
		RetryDelayBase: cfg.Feed.RetryDelayBase,
	})

	// Initialize analytics pipeline
	detector := cascade.New(cfg.DetectorSettings())
	mon := monitor.New(
		store,
		cfg.MonitorSettings(),
		analytics.New(cfg.AggregatorSettings()),
		detector,
		prediction.New(cfg.EngineSettings(), detector),
	)

	// Initialize Telegram client
	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	// Initialize Redis publisher
	var publisher *publish.Publisher
	if cfg.Redis.Enabled {
		rdb, err := publish.Dial(ctx, cfg.Redis.URL)
		if err != nil {
			logger.Fatal("Failed to connect to Redis: %v", err)
		}
		defer rdb.Close()
		publisher = publish.New(rdb, cfg.Redis.Channel, cfg.Redis.KeyPrefix, cfg.Redis.TTL)
		logger.Info("Redis publisher connected (channel: %s)", cfg.Redis.Channel)
	} else {
		logger.Debug("Redis publishing disabled")
	}

	// HTTP health + metrics
	if cfg.Metrics.Enabled {
		go serveHTTP(ctx, cfg.Metrics.Addr, mon)
	}

	logger.Info("Starting monitoring service (interval: %v, max_events: %d, timezone: %s, alert_probability: %.2f)",
		cfg.Feed.PollInterval,
		cfg.Monitor.MaxEvents,
		cfg.Analytics.Timezone,
		cfg.Monitor.AlertProbability,
	)

	ticker := time.NewTicker(cfg.Feed.PollInterval)
	defer ticker.Stop()

	c := &cycle{
		cfg:       cfg,
		feed:      feedClient,
		store:     store,
		mon:       mon,
		telegram:  telegramClient,
		publisher: publisher,
	}

	consecutiveFailures := 0

	handleCycleResult := func(err error) {
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			consecutiveFailures++
			logger.Error("Monitoring cycle failed: %v", err)
			if consecutiveFailures == 1 && telegramClient != nil {
				if sendErr := telegramClient.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
		} else {
			if consecutiveFailures > 0 && telegramClient != nil {
				if sendErr := telegramClient.SendRecovery(consecutiveFailures); sendErr != nil {
					logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
				}
			}
			consecutiveFailures = 0
		}
	}

	// Run initial poll immediately
	logger.Debug("Running initial monitoring cycle")
	handleCycleResult(c.run(ctx, time.Now()))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Service stopped")
			return

		case tickTime := <-ticker.C:
			logger.Debug("Starting scheduled monitoring cycle")
			handleCycleResult(c.run(ctx, tickTime))
		}
	}
}

// cycle holds the collaborators of one monitoring cycle
type cycle struct {
	cfg       *config.Config
	feed      *feed.Client
	store     *storage.Storage
	mon       *monitor.Monitor
	telegram  *telegram.Client
	publisher *publish.Publisher
}

// run polls the feed, stores and rotates events, refreshes the analytics and
// fans the predictions out. cycleTime is the start of the predicted hour.
func (c *cycle) run(ctx context.Context, cycleTime time.Time) error {
	startTime := time.Now()
	defer func() { monitor.CycleDuration.Observe(time.Since(startTime).Seconds()) }()
	logger.Info("Starting monitoring cycle")

	// Fetch openings since just before the newest stored one
	since, err := c.since(cycleTime)
	if err != nil {
		return err
	}
	logger.Debug("Fetching openings since %s", since.Format(time.RFC3339))
	events, skipped, err := c.feed.FetchEvents(ctx, since)
	if err != nil {
		return fmt.Errorf("failed to fetch events: %w", err)
	}
	for _, rec := range skipped {
		logger.Warn("Skipped feed record: %v", rec)
	}
	monitor.FeedRecordsSkipped.Add(float64(len(skipped)))
	logger.Info("Fetched %d openings (%d skipped)", len(events), len(skipped))

	// Store and rotate
	written, err := c.store.AddEvents(events)
	if err != nil {
		return fmt.Errorf("failed to store events: %w", err)
	}
	removed, err := c.store.Rotate()
	if err != nil {
		logger.Warn("Failed to rotate events: %v", err)
	}
	logger.Debug("Stored %d openings, rotated out %d", written, removed)

	// Refresh analytics
	res := <-c.mon.Refresh(ctx, cycleTime)
	if res.Err != nil {
		return fmt.Errorf("failed to refresh analytics: %w", res.Err)
	}
	if latest := c.mon.Latest(); latest != nil && latest.Generation > res.Generation {
		logger.Debug("Refresh %d superseded by %d, using the newer result", res.Generation, latest.Generation)
		res = latest
	}
	logger.Info("Refreshed analytics (run %s): %d events, %d buckets, %d cascade relations, %d predictions",
		res.RunID, res.EventCount, len(res.Buckets), len(res.Relations), len(res.Predictions))

	// Publish predictions
	if c.publisher != nil {
		n, err := c.publisher.Publish(ctx, res.Predictions)
		monitor.PredictionsPublished.Add(float64(n))
		if err != nil {
			logger.Warn("Failed to publish some predictions: %v", err)
		}
		logger.Debug("Published %d predictions to Redis", n)
	}

	// Announce likely openings
	alerts := c.mon.Alerts(res.Predictions)
	alerts = c.mon.FilterRecentlySent(alerts, c.cfg.Monitor.NotificationCooldown, cycleTime)
	if len(alerts) > 0 {
		for _, a := range alerts {
			logger.Info("Likely opening: %s", a.Reasoning)
		}
		if c.telegram != nil {
			if err := c.telegram.SendOutlook(alerts, topEdges(res.Edges, c.cfg.Monitor.TopEdges)); err != nil {
				logger.Error("Failed to send Telegram notification: %v", err)
			} else {
				logger.Info("Sent Telegram outlook for %d bridges", len(alerts))
				monitor.NotificationsSent.Inc()
				c.mon.RecordNotified(alerts, cycleTime)
			}
		} else {
			logger.Debug("Alerts found but Telegram notifications disabled")
		}
	} else {
		logger.Info("No bridge above alert threshold this cycle (alert_probability=%.2f)", c.cfg.Monitor.AlertProbability)
	}

	logger.Info("Monitoring cycle completed in %v", time.Since(startTime))
	return nil
}

// since returns where the next feed poll starts
func (c *cycle) since(cycleTime time.Time) (time.Time, error) {
	latest, ok, err := c.store.LatestOpenTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read latest open time: %w", err)
	}
	if ok {
		return latest.Add(-refetchOverlap), nil
	}
	if c.cfg.Feed.Lookback > 0 {
		return cycleTime.Add(-c.cfg.Feed.Lookback), nil
	}
	return time.Time{}, nil
}

func topEdges(edges []models.CascadeEdge, n int) []models.CascadeEdge {
	if n <= 0 {
		return nil
	}
	if len(edges) > n {
		return edges[:n]
	}
	return edges
}

func serveHTTP(ctx context.Context, addr string, mon *monitor.Monitor) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if latest := mon.Latest(); latest != nil {
			w.WriteHeader(http.StatusOK)
			fmt.Fprintf(w, "ok generation=%d computed_at=%s", latest.Generation, latest.ComputedAt.Format(time.RFC3339))
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	httpLog := logger.WithComponent("http")
	httpLog.Infof("Metrics server listening on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		httpLog.Errorf("Metrics server failed: %v", err)
	}
}
