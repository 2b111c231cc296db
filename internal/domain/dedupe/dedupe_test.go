package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	dedupe "github.com/analyzemyteam/defsync/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given a new in-memory deduper", t, func() {
		ctx := context.Background()

		Convey("When creating with default options", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("Then it should start empty", func() {
				So(d, ShouldNotBeNil)
				So(d.Size(), ShouldEqual, 0)
			})
		})

		Convey("When admitting deliveries", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("And the id is new", func() {
				apply := d.ShouldApply(ctx, "event-1", 100)

				Convey("Then it should be applied and tracked", func() {
					So(apply, ShouldBeTrue)
					So(d.Size(), ShouldEqual, 1)
				})
			})

			Convey("And the same delivery repeats", func() {
				d.ShouldApply(ctx, "event-1", 100)
				apply := d.ShouldApply(ctx, "event-1", 100)

				Convey("Then the replay should be rejected", func() {
					So(apply, ShouldBeFalse)
					So(d.Size(), ShouldEqual, 1)
				})
			})

			Convey("And an older ingest timestamp arrives", func() {
				d.ShouldApply(ctx, "event-1", 100)
				apply := d.ShouldApply(ctx, "event-1", 50)

				Convey("Then the stale delivery should be rejected", func() {
					So(apply, ShouldBeFalse)
				})
			})

			Convey("And a newer ingest timestamp arrives", func() {
				d.ShouldApply(ctx, "event-1", 100)
				apply := d.ShouldApply(ctx, "event-1", 200)

				Convey("Then the update should be applied", func() {
					So(apply, ShouldBeTrue)
					So(d.Size(), ShouldEqual, 1)
				})
			})
		})

		Convey("When forgetting an id", func() {
			d := dedupe.NewInMemoryDeduper()
			d.ShouldApply(ctx, "event-1", 100)
			d.Forget(ctx, "event-1")

			Convey("Then the same delivery should be applied again", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.ShouldApply(ctx, "event-1", 100), ShouldBeTrue)
			})
		})

		Convey("When the tracker is full", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
			for i := 0; i < 3; i++ {
				d.ShouldApply(ctx, fmt.Sprintf("event-%d", i), 100)
			}

			Convey("And one more id arrives", func() {
				d.ShouldApply(ctx, "event-3", 100)

				Convey("Then the oldest id is forgotten to make room", func() {
					So(d.Size(), ShouldEqual, 3)
					// event-0 was evicted, so its replay is admitted again
					So(d.ShouldApply(ctx, "event-0", 100), ShouldBeTrue)
				})
			})
		})
	})
}

func TestInMemoryDeduperConcurrency(t *testing.T) {
	Convey("Given concurrent deliveries of the same ids", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(1000))

		var mu sync.Mutex
		applied := make(map[string]int)

		var wg sync.WaitGroup
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					id := fmt.Sprintf("event-%d", i)
					if d.ShouldApply(ctx, id, 100) {
						mu.Lock()
						applied[id]++
						mu.Unlock()
					}
				}
			}()
		}
		wg.Wait()

		Convey("When all workers finish", func() {
			Convey("Then each delivery is applied exactly once", func() {
				So(len(applied), ShouldEqual, 100)
				for _, n := range applied {
					So(n, ShouldEqual, 1)
				}
				So(d.Size(), ShouldEqual, 100)
			})
		})
	})
}
