package service

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	eventqueue "github.com/analyzemyteam/defsync/internal/adapters/mq/queue"
	"github.com/analyzemyteam/defsync/internal/adapters/repository"
	"github.com/analyzemyteam/defsync/internal/domain/marker"
	"github.com/analyzemyteam/defsync/internal/domain/model"
	"github.com/analyzemyteam/defsync/internal/domain/stats"
	"github.com/analyzemyteam/defsync/pkg/logger"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type fakeBackend struct {
	mu      sync.Mutex
	fetches int
	events  []*model.Event
}

func (b *fakeBackend) FetchRange(_ context.Context, _, _ int64) ([]*model.Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fetches++
	return b.events, nil
}

func (b *fakeBackend) fetchCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fetches
}

func (b *fakeBackend) Status() model.ConnectionStatus {
	return model.ConnectionStatus{State: model.StateConnected}
}

func (b *fakeBackend) Reconnect() {}

type fakePersistence struct {
	mu        sync.Mutex
	saved     []*model.Event
	stored    []*model.Event
	loadLimit int
}

func (p *fakePersistence) SaveEvent(_ context.Context, e *model.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved = append(p.saved, e.Clone())
	return nil
}

func (p *fakePersistence) LoadRecent(_ context.Context, limit int) ([]*model.Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loadLimit = limit
	if limit > len(p.stored) {
		limit = len(p.stored)
	}
	return p.stored[:limit], nil
}

func (p *fakePersistence) Cleanup(_ context.Context, _ time.Duration) (int64, error) {
	return 0, nil
}

func (p *fakePersistence) savedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.saved)
}

func formationEvent(id string, ts int64, conf float64) *model.Event {
	return &model.Event{
		ID:              id,
		Kind:            model.KindFormation,
		VideoTimestamp:  ts,
		IngestTimestamp: ts,
		Confidence:      conf,
		Formation: &model.FormationPayload{
			Type: model.FormationLarry,
			MEL:  model.NewMELScores(70, 70, 70),
		},
	}
}

func newEngine(t *testing.T, opts ...Option) (*Service, repository.Cache, *eventqueue.InMemoryQueue, *marker.Manager) {
	t.Helper()
	ctx := context.Background()

	cache := repository.NewTreapCache(ctx)
	queue := eventqueue.NewInMemoryQueue()
	markers := marker.NewManager(ctx)
	t.Cleanup(func() {
		cache.Close()
		queue.Close()
		markers.Close()
	})

	return New(cache, queue, markers, opts...), cache, queue, markers
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestServiceApplyPipeline(t *testing.T) {
	Convey("Given an engine with persistence", t, func() {
		ctx := context.Background()
		persist := &fakePersistence{}
		svc, cache, queue, markers := newEngine(t, WithPersistence(persist))

		Convey("A drained event lands in cache, markers, and store", func() {
			So(queue.Enqueue(ctx, formationEvent("f-1", 1000, 0.9)), ShouldBeTrue)
			svc.processTick(ctx)

			got, err := cache.Get(ctx, "f-1")
			So(err, ShouldBeNil)
			So(got.Kind, ShouldEqual, model.KindFormation)
			So(markers.Count(), ShouldEqual, 1)
			So(persist.savedCount(), ShouldEqual, 1)
		})

		Convey("A replayed event is applied once", func() {
			svc.applyEvent(ctx, formationEvent("f-1", 1000, 0.9))
			svc.applyEvent(ctx, formationEvent("f-1", 1000, 0.9))

			So(cache.Count(ctx), ShouldEqual, 1)
			So(persist.savedCount(), ShouldEqual, 1)
		})

		Convey("An invalid event is dropped before the cache", func() {
			svc.applyEvent(ctx, &model.Event{ID: "", Kind: model.KindFormation})
			So(cache.Count(ctx), ShouldEqual, 0)
		})

		Convey("One tick applies at most the drain batch", func() {
			for i := 0; i < 60; i++ {
				e := formationEvent(fmt.Sprintf("f-%d", i), int64(i)*100, 0.7)
				So(queue.Enqueue(ctx, e), ShouldBeTrue)
			}
			svc.processTick(ctx)

			So(cache.Count(ctx), ShouldEqual, 50)
			So(queue.Len(ctx), ShouldEqual, 10)
		})
	})
}

func TestServiceUrgencyAlert(t *testing.T) {
	Convey("Given an engine", t, func() {
		ctx := context.Background()
		svc, cache, _, markers := newEngine(t)

		Convey("A red zone Larry formation raises a critical alert", func() {
			e := formationEvent("f-1", 1000, 1.0)
			e.Formation.FieldZone = "opponent red zone"
			svc.applyEvent(ctx, e)

			So(cache.CountKind(ctx, model.KindCoachingAlert), ShouldEqual, 1)
			So(markers.Count(), ShouldEqual, 2)

			alerts, err := cache.Range(ctx, model.KindCoachingAlert, 0, 2000)
			So(err, ShouldBeNil)
			So(len(alerts), ShouldEqual, 1)
			So(alerts[0].Alert.Priority, ShouldEqual, model.CriticalAlertPriority)
			So(alerts[0].Alert.AlertType, ShouldEqual, "high_urgency_formation")
		})

		Convey("A mid-field formation below the threshold stays quiet", func() {
			svc.applyEvent(ctx, formationEvent("f-2", 1000, 0.9))
			So(cache.CountKind(ctx, model.KindCoachingAlert), ShouldEqual, 0)
		})
	})
}

func TestServiceUserOperations(t *testing.T) {
	Convey("Given an engine with persistence", t, func() {
		ctx := context.Background()
		persist := &fakePersistence{}
		svc, cache, _, _ := newEngine(t, WithPersistence(persist))

		Convey("MarkFormation stores a user event with a recommended call", func() {
			e, err := svc.MarkFormation(ctx, 5000, model.FormationLarry, "double tight")
			So(err, ShouldBeNil)
			So(e.UserCreated, ShouldBeTrue)
			So(e.Formation.RecommendedCall, ShouldEqual, model.CallStrongSide)

			got, err := cache.Get(ctx, e.ID)
			So(err, ShouldBeNil)
			So(got.Confidence, ShouldEqual, 1.0)
		})

		Convey("MarkFormation rejects unknown formation types", func() {
			_, err := svc.MarkFormation(ctx, 5000, model.FormationType("wishbone"), "")
			So(err, ShouldNotBeNil)
		})

		Convey("OverrideTriangleCall needs a formation near the position", func() {
			_, err := svc.OverrideTriangleCall(ctx, 5000, model.CallWeakSide, "film study")
			So(err, ShouldWrap, repository.ErrNoEvent)

			_, err = svc.MarkFormation(ctx, 5000, model.FormationRicky, "")
			So(err, ShouldBeNil)

			call, err := svc.OverrideTriangleCall(ctx, 5000, model.CallWeakSide, "film study")
			So(err, ShouldBeNil)
			So(call.Call.FormationID, ShouldNotBeEmpty)
			So(call.Call.OverrideReason, ShouldEqual, "film study")
		})

		Convey("AcknowledgeAlert flips and persists the alert", func() {
			alert := &model.Event{
				ID:              "a-1",
				Kind:            model.KindCoachingAlert,
				VideoTimestamp:  1000,
				IngestTimestamp: 1000,
				Confidence:      1.0,
				Alert: &model.AlertPayload{
					AlertType: "substitution",
					Message:   "rotate the nickel package",
					Priority:  3,
				},
			}
			svc.applyEvent(ctx, alert)
			saves := persist.savedCount()

			So(svc.AcknowledgeAlert(ctx, "a-1"), ShouldBeNil)

			got, err := cache.Get(ctx, "a-1")
			So(err, ShouldBeNil)
			So(got.Alert.Acknowledged, ShouldBeTrue)
			So(persist.savedCount(), ShouldEqual, saves+1)

			So(svc.AcknowledgeAlert(ctx, "missing"), ShouldWrap, repository.ErrNotFound)
		})
	})
}

func TestServiceFetchScheduling(t *testing.T) {
	Convey("Given an engine with a backend and a frozen clock", t, func() {
		ctx := context.Background()
		backend := &fakeBackend{events: []*model.Event{formationEvent("f-1", 1000, 0.9)}}

		now := time.Unix(1000, 0)
		var clockMu sync.Mutex
		clock := func() time.Time {
			clockMu.Lock()
			defer clockMu.Unlock()
			return now
		}
		advance := func(d time.Duration) {
			clockMu.Lock()
			now = now.Add(d)
			clockMu.Unlock()
		}

		svc, _, queue, _ := newEngine(t, WithBackend(backend), WithClock(clock))

		Convey("Position updates inside the debounce window fetch once", func() {
			svc.SetVideoPosition(ctx, 60000)
			svc.SetVideoPosition(ctx, 61000)
			svc.SetVideoPosition(ctx, 62000)

			So(waitFor(func() bool { return backend.fetchCount() == 1 }), ShouldBeTrue)
			So(waitFor(func() bool { return queue.Len(ctx) == 1 }), ShouldBeTrue)
			So(svc.Position(), ShouldEqual, 62000)

			Convey("And the debounce expiring allows the next fetch", func() {
				advance(31 * time.Second)
				svc.SetVideoPosition(ctx, 63000)
				So(waitFor(func() bool { return backend.fetchCount() == 2 }), ShouldBeTrue)
			})

			Convey("While a seek fetches immediately", func() {
				svc.OnSeek(ctx, 300000)
				So(waitFor(func() bool { return backend.fetchCount() == 2 }), ShouldBeTrue)
			})
		})
	})
}

func TestServiceSeekLookup(t *testing.T) {
	Convey("Given an engine sharing a tracker with its cache", t, func() {
		ctx := context.Background()
		tracker := stats.NewTracker()

		cache := repository.NewTreapCache(ctx, repository.WithTracker(tracker))
		queue := eventqueue.NewInMemoryQueue()
		markers := marker.NewManager(ctx)
		defer cache.Close()
		defer queue.Close()
		defer markers.Close()

		svc := New(cache, queue, markers, WithTracker(tracker))

		applied, err := cache.Upsert(ctx, formationEvent("f-1", 50_000, 0.9))
		So(err, ShouldBeNil)
		So(applied, ShouldBeTrue)

		Convey("A seek near a cached formation resolves it from the cache", func() {
			before := tracker.Snapshot().CacheHits
			svc.OnSeek(ctx, 50_200)

			So(tracker.Snapshot().CacheHits, ShouldEqual, before+1)
			So(svc.Position(), ShouldEqual, 50_200)
		})

		Convey("A seek into an empty stretch counts a miss", func() {
			before := tracker.Snapshot().CacheMisses
			svc.OnSeek(ctx, 900_000)

			So(tracker.Snapshot().CacheMisses, ShouldEqual, before+1)
		})
	})
}

func TestServiceTickInterval(t *testing.T) {
	Convey("Given an engine with the default 100ms base tick", t, func() {
		svc, _, _, _ := newEngine(t)

		Convey("The interval scales inversely with the playback rate", func() {
			So(svc.tickInterval(), ShouldEqual, 100*time.Millisecond)

			svc.OnRateChanged(2.0)
			So(svc.tickInterval(), ShouldEqual, 50*time.Millisecond)

			svc.OnRateChanged(0.05)
			So(svc.tickInterval(), ShouldEqual, time.Second)

			svc.OnRateChanged(100)
			So(svc.tickInterval(), ShouldEqual, 10*time.Millisecond)

			svc.OnRateChanged(-1)
			So(svc.tickInterval(), ShouldEqual, 100*time.Millisecond)
		})
	})
}

func TestServiceLifecycle(t *testing.T) {
	Convey("Given a started engine with a fast tick", t, func() {
		ctx := context.Background()
		svc, cache, queue, _ := newEngine(t, WithSyncInterval(10*time.Millisecond))

		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("Pushed events flow into the cache without manual ticks", func() {
			svc.HandleRemoteEvent(formationEvent("f-1", 1000, 0.9))
			So(waitFor(func() bool { return cache.Count(ctx) == 1 }), ShouldBeTrue)
			So(queue.Len(ctx), ShouldEqual, 0)
		})

		Convey("Pausing playback holds events in the queue until resume", func() {
			svc.Pause()
			time.Sleep(30 * time.Millisecond)
			svc.HandleRemoteEvent(formationEvent("f-2", 2000, 0.9))
			time.Sleep(50 * time.Millisecond)
			So(cache.Count(ctx), ShouldEqual, 0)
			So(queue.Len(ctx), ShouldEqual, 1)

			svc.Play()
			So(waitFor(func() bool { return cache.Count(ctx) == 1 }), ShouldBeTrue)
		})
	})
}

func TestServiceWarmStart(t *testing.T) {
	Convey("Given events persisted by an earlier session", t, func() {
		ctx := context.Background()
		persist := &fakePersistence{}
		for i := 0; i < 5; i++ {
			persist.stored = append(persist.stored,
				formationEvent(fmt.Sprintf("w-%d", i), int64(1000*(i+1)), 0.9))
		}

		Convey("Start replays them into the cache and markers", func() {
			svc, cache, _, markers := newEngine(t, WithPersistence(persist))
			So(svc.Start(ctx), ShouldBeNil)
			defer svc.Stop()

			So(persist.loadLimit, ShouldEqual, 10_000)
			So(cache.Count(ctx), ShouldEqual, 5)
			So(markers.Count(), ShouldEqual, 5)
		})

		Convey("A configured warm load limit caps the replay", func() {
			svc, cache, _, _ := newEngine(t,
				WithPersistence(persist),
				WithWarmLoadLimit(3),
			)
			So(svc.Start(ctx), ShouldBeNil)
			defer svc.Stop()

			So(persist.loadLimit, ShouldEqual, 3)
			So(cache.Count(ctx), ShouldEqual, 3)
		})
	})
}
