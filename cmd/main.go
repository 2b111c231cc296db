package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/analyzemyteam/defsync/internal/adapters/http/api"
	"github.com/analyzemyteam/defsync/internal/adapters/http/stream"
	"github.com/analyzemyteam/defsync/internal/adapters/http/swagger"
	"github.com/analyzemyteam/defsync/internal/adapters/mq/queue"
	"github.com/analyzemyteam/defsync/internal/adapters/remote"
	"github.com/analyzemyteam/defsync/internal/adapters/repository"
	"github.com/analyzemyteam/defsync/internal/adapters/store"
	service "github.com/analyzemyteam/defsync/internal/app"
	"github.com/analyzemyteam/defsync/internal/config"
	"github.com/analyzemyteam/defsync/internal/domain/dedupe"
	"github.com/analyzemyteam/defsync/internal/domain/marker"
	"github.com/analyzemyteam/defsync/internal/domain/model"
	"github.com/analyzemyteam/defsync/internal/domain/stats"
	"github.com/analyzemyteam/defsync/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	// Shared statistics tracker feeding the stats endpoint and WS pushes.
	tracker := stats.NewTracker()

	cache := repository.NewTreapCache(ctx,
		repository.WithMaxEvents(cfg.MaxCachedEvents),
		repository.WithInterpolationGap(ms(cfg.InterpolationGapMS)),
		repository.WithNearestGap(ms(cfg.NearestGapMS)),
		repository.WithTracker(tracker),
	)

	eventQueue := queue.NewInMemoryQueue(queue.WithCapacity(cfg.QueueSize))

	// The hub fans marker, status, and statistics updates out to WS clients.
	hub := stream.NewHub()

	// svc is assigned below; the marker sweeper and the backend callbacks
	// only fire after the service exists and playback begins.
	var svc *service.Service

	markers := marker.NewManager(ctx,
		marker.WithMaxMarkers(cfg.MaxMarkers),
		marker.WithSweepInterval(ms(cfg.MarkerSweepIntervalMS)),
		marker.WithRetention(ms(cfg.MarkerRetentionMS)),
		marker.WithListener(hub),
		marker.WithTracker(tracker),
		marker.WithPositionFunc(func() int64 {
			if svc == nil {
				return 0
			}
			return svc.Position()
		}),
	)

	opts := []service.Option{
		service.WithTracker(tracker),
		service.WithObserver(hub),
		service.WithDeduper(dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.DedupeSize))),
		service.WithSyncInterval(ms(cfg.SyncIntervalMS)),
		service.WithDrainBatch(cfg.DrainBatch),
		service.WithFetchWindow(ms(cfg.FetchWindowMS)),
		service.WithFetchDebounce(ms(cfg.FetchDebounceMS)),
		service.WithRetention(time.Duration(cfg.RetentionHours) * time.Hour),
		service.WithWarmLoadLimit(cfg.MaxCachedEvents),
	}

	var db *store.Store
	if cfg.DBPath != "" {
		db, err = store.Open(ctx, cfg.DBPath)
		if err != nil {
			log.Error(ctx, "failed to open event store", logger.String("path", cfg.DBPath), logger.Error(err))
			return
		}
		opts = append(opts, service.WithPersistence(db))
	}

	var backend *remote.Client
	if cfg.APIBaseURL != "" && cfg.WSURL != "" {
		backend = remote.NewClient(cfg.APIBaseURL, cfg.APIKey, cfg.WSURL,
			func(e *model.Event) {
				if svc != nil {
					svc.HandleRemoteEvent(e)
				}
			},
			remote.WithStatusFunc(func(st model.ConnectionStatus) {
				if svc != nil {
					svc.OnConnectionStatus(st)
				}
			}),
			remote.WithHeartbeatInterval(ms(cfg.HeartbeatIntervalMS)),
			remote.WithHeartbeatTimeout(ms(cfg.HeartbeatTimeoutMS)),
			remote.WithReconnectDelay(ms(cfg.ReconnectBackoffMS)),
			remote.WithMaxReconnects(cfg.MaxReconnectAttempts),
			remote.WithTracker(tracker),
		)
		opts = append(opts, service.WithBackend(backend))
	} else {
		log.Info(ctx, "no backend configured; running in standalone mode")
	}

	svc = service.New(cache, eventQueue, markers, opts...)
	if err := svc.Start(ctx); err != nil {
		log.Error(ctx, "failed to start engine", logger.Error(err))
		return
	}

	if backend != nil {
		backend.Connect(ctx)
	}

	// HTTP mux and routes.
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc).Register(ctx, mux)
	mux.HandleFunc("/ws", hub.HandleWS)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			os.Stderr.WriteString("HTTP server failed: " + err.Error() + "\n")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	// Stop producers before consumers so nothing writes to closed components.
	if backend != nil {
		_ = backend.Close()
	}
	svc.Stop()
	_ = hub.Close()
	_ = markers.Close()
	_ = cache.Close()
	_ = eventQueue.Close()
	if db != nil {
		_ = db.Close()
	}

	log.Info(ctx, "stopped")
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
