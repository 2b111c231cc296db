package main

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/analyzemyteam/defsync/internal/adapters/http/api"
	"github.com/analyzemyteam/defsync/internal/adapters/http/stream"
	"github.com/analyzemyteam/defsync/internal/adapters/http/swagger"
	"github.com/analyzemyteam/defsync/internal/adapters/mq/queue"
	"github.com/analyzemyteam/defsync/internal/adapters/repository"
	service "github.com/analyzemyteam/defsync/internal/app"
	"github.com/analyzemyteam/defsync/internal/config"
	"github.com/analyzemyteam/defsync/internal/domain/marker"
	"github.com/analyzemyteam/defsync/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	m.Run()
}

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When testing configuration loading", func() {
			t.Setenv("DEFSYNC_ADDR", ":8080")
			t.Setenv("DEFSYNC_QUEUE_SIZE", "500")

			convey.Convey("Then configuration should be loadable", func() {
				ctx := context.Background()
				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 500)
			})
		})

		convey.Convey("When testing duration conversion", func() {
			convey.So(ms(100), convey.ShouldEqual, 100*time.Millisecond)
			convey.So(ms(0), convey.ShouldEqual, time.Duration(0))
		})
	})
}

func TestMainApplicationIntegration(t *testing.T) {
	convey.Convey("Given main application integration", t, func() {
		t.Setenv("DEFSYNC_ADDR", ":8080")
		t.Setenv("DEFSYNC_DB_PATH", "")

		convey.Convey("Then all components should wire together", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			cfg, err := config.Load(ctx)
			convey.So(err, convey.ShouldBeNil)

			cache := repository.NewTreapCache(ctx,
				repository.WithMaxEvents(cfg.MaxCachedEvents),
				repository.WithInterpolationGap(ms(cfg.InterpolationGapMS)),
			)
			defer func() { _ = cache.Close() }()

			eventQueue := queue.NewInMemoryQueue(queue.WithCapacity(cfg.QueueSize))
			defer func() { _ = eventQueue.Close() }()

			hub := stream.NewHub()
			defer func() { _ = hub.Close() }()

			markers := marker.NewManager(ctx, marker.WithListener(hub))
			defer func() { _ = markers.Close() }()

			svc := service.New(cache, eventQueue, markers,
				service.WithObserver(hub),
				service.WithSyncInterval(ms(cfg.SyncIntervalMS)),
				service.WithDrainBatch(cfg.DrainBatch),
			)
			convey.So(svc, convey.ShouldNotBeNil)
			convey.So(svc.Start(ctx), convey.ShouldBeNil)
			defer svc.Stop()

			mux := http.NewServeMux()
			swagger.Register(ctx, mux)
			api.NewServer(svc).Register(ctx, mux)
			mux.HandleFunc("/ws", hub.HandleWS)
		})
	})
}

func TestMainApplicationErrorHandling(t *testing.T) {
	convey.Convey("Given main application error handling", t, func() {
		convey.Convey("When the configured address is empty", func() {
			t.Setenv("DEFSYNC_ADDR", "")

			convey.Convey("Then configuration loading should fail", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}
