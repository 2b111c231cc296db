package stats

import (
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestTrackerCounters(t *testing.T) {
	Convey("Given a fresh tracker", t, func() {
		tr := NewTracker()

		Convey("When recording a mix of activity", func() {
			tr.EventProcessed()
			tr.EventProcessed()
			tr.EventDropped()
			tr.MarkerCreated()
			tr.CacheHit()
			tr.CacheHit()
			tr.CacheMiss()
			tr.SyncOperation()
			tr.NetworkRequest(40 * time.Millisecond)
			tr.NetworkRequest(60 * time.Millisecond)

			Convey("Then the snapshot reflects every counter", func() {
				s := tr.Snapshot()
				So(s.EventsProcessed, ShouldEqual, 2)
				So(s.EventsDropped, ShouldEqual, 1)
				So(s.MarkersCreated, ShouldEqual, 1)
				So(s.CacheHits, ShouldEqual, 2)
				So(s.CacheMisses, ShouldEqual, 1)
				So(s.SyncOperations, ShouldEqual, 1)
				So(s.NetworkRequests, ShouldEqual, 2)
				So(s.AvgFetchLatencyMs, ShouldAlmostEqual, 50.0)
				So(s.UptimeSeconds, ShouldBeGreaterThanOrEqualTo, 0)
			})
		})
	})
}

func TestTrackerLatencyWindow(t *testing.T) {
	Convey("Given more fetches than the rolling window holds", t, func() {
		tr := NewTracker()

		// First fill the window with 1ms samples, then push 100 samples
		// of 3ms so that only the new samples remain.
		for i := 0; i < latencyWindow; i++ {
			tr.NetworkRequest(1 * time.Millisecond)
		}
		for i := 0; i < latencyWindow; i++ {
			tr.NetworkRequest(3 * time.Millisecond)
		}

		Convey("When taking a snapshot", func() {
			s := tr.Snapshot()

			Convey("Then the average covers only the last window", func() {
				So(s.NetworkRequests, ShouldEqual, int64(2*latencyWindow))
				So(s.AvgFetchLatencyMs, ShouldAlmostEqual, 3.0)
			})
		})
	})
}

func TestTrackerReset(t *testing.T) {
	Convey("Given a tracker with history", t, func() {
		tr := NewTracker()
		tr.EventProcessed()
		tr.CacheHit()
		tr.NetworkRequest(25 * time.Millisecond)

		Convey("When resetting", func() {
			tr.Reset()

			Convey("Then every counter starts over", func() {
				s := tr.Snapshot()
				So(s.EventsProcessed, ShouldEqual, 0)
				So(s.CacheHits, ShouldEqual, 0)
				So(s.NetworkRequests, ShouldEqual, 0)
				So(s.AvgFetchLatencyMs, ShouldEqual, 0)
			})
		})
	})
}

func TestTrackerConcurrency(t *testing.T) {
	Convey("Given concurrent writers", t, func() {
		tr := NewTracker()

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 250; j++ {
					tr.EventProcessed()
					tr.CacheHit()
					tr.NetworkRequest(time.Millisecond)
				}
			}()
		}
		wg.Wait()

		Convey("When all writers finish", func() {
			s := tr.Snapshot()

			Convey("Then no increment is lost", func() {
				So(s.EventsProcessed, ShouldEqual, 2000)
				So(s.CacheHits, ShouldEqual, 2000)
				So(s.NetworkRequests, ShouldEqual, 2000)
			})
		})
	})
}
