package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/analyzemyteam/defsync/internal/adapters/http/api"
	"github.com/analyzemyteam/defsync/internal/adapters/repository"
	"github.com/analyzemyteam/defsync/internal/domain/marker"
	"github.com/analyzemyteam/defsync/internal/domain/model"
	"github.com/analyzemyteam/defsync/internal/domain/stats"
)

// fakeEngine records calls and returns canned data.
type fakeEngine struct {
	event       *model.Event
	markers     []marker.Marker
	nearest     *marker.Marker
	nearestKind model.Kind

	acked      []string
	visibility map[model.Kind]bool
	position   int64
	seeked     bool
	rate       float64
	playing    *bool
	reconnects int
	resets     int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{visibility: map[model.Kind]bool{}}
}

func (f *fakeEngine) EventAt(_ context.Context, _ model.Kind, _ int64) (*model.Event, error) {
	if f.event == nil {
		return nil, repository.ErrNoEvent
	}
	return f.event, nil
}

func (f *fakeEngine) EventsInRange(_ context.Context, _ model.Kind, start, end int64) ([]*model.Event, error) {
	if start > end {
		return nil, repository.ErrInvalidRange
	}
	if f.event == nil {
		return nil, nil
	}
	return []*model.Event{f.event}, nil
}

func (f *fakeEngine) MarkersInRange(_ context.Context, _, _ int64) []marker.Marker {
	return f.markers
}

func (f *fakeEngine) NearestMarker(_ context.Context, _ int64, kind model.Kind) (marker.Marker, bool) {
	f.nearestKind = kind
	if f.nearest == nil {
		return marker.Marker{}, false
	}
	if kind != "" && f.nearest.Kind != kind {
		return marker.Marker{}, false
	}
	return *f.nearest, true
}

func (f *fakeEngine) SetKindVisible(kind model.Kind, visible bool) {
	f.visibility[kind] = visible
}

func (f *fakeEngine) MarkFormation(_ context.Context, ts int64, formation model.FormationType, _ string) (*model.Event, error) {
	return &model.Event{
		ID:             "created",
		Kind:           model.KindFormation,
		VideoTimestamp: ts,
		Confidence:     1.0,
		UserCreated:    true,
		Formation:      &model.FormationPayload{Type: formation},
	}, nil
}

func (f *fakeEngine) OverrideTriangleCall(_ context.Context, ts int64, call model.TriangleCall, _ string) (*model.Event, error) {
	if f.event == nil {
		return nil, repository.ErrNoEvent
	}
	return &model.Event{
		ID:             "override",
		Kind:           model.KindTriangleCall,
		VideoTimestamp: ts,
		Confidence:     1.0,
		UserCreated:    true,
		Call:           &model.TriangleCallPayload{Call: call, FormationID: f.event.ID},
	}, nil
}

func (f *fakeEngine) AcknowledgeAlert(_ context.Context, id string) error {
	if id == "missing" {
		return repository.ErrNotFound
	}
	f.acked = append(f.acked, id)
	return nil
}

func (f *fakeEngine) SetVideoPosition(_ context.Context, pos int64) { f.position = pos }
func (f *fakeEngine) OnSeek(_ context.Context, pos int64)           { f.position, f.seeked = pos, true }
func (f *fakeEngine) OnRateChanged(rate float64)                    { f.rate = rate }
func (f *fakeEngine) Play()                                         { v := true; f.playing = &v }
func (f *fakeEngine) Pause()                                        { v := false; f.playing = &v }
func (f *fakeEngine) Position() int64                               { return f.position }

func (f *fakeEngine) ConnectionStatus() model.ConnectionStatus {
	return model.ConnectionStatus{State: model.StateConnected}
}

func (f *fakeEngine) Reconnect()            { f.reconnects++ }
func (f *fakeEngine) Stats() stats.Snapshot { return stats.Snapshot{EventsProcessed: 7} }
func (f *fakeEngine) ResetStats()           { f.resets++ }

func newTestServer(engine api.Engine) *httptest.Server {
	mux := http.NewServeMux()
	api.NewServer(engine).Register(context.Background(), mux)
	return httptest.NewServer(mux)
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	So(err, ShouldBeNil)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	So(err, ShouldBeNil)
	return resp, body
}

func post(t *testing.T, url, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	So(err, ShouldBeNil)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	So(err, ShouldBeNil)
	return resp, out
}

func TestEventEndpoints(t *testing.T) {
	Convey("Given an API server over a fake engine", t, func() {
		engine := newFakeEngine()
		srv := newTestServer(engine)
		defer srv.Close()

		Convey("GET /api/v1/events/at returns the resolved event", func() {
			engine.event = &model.Event{
				ID:             "f-1",
				Kind:           model.KindFormation,
				VideoTimestamp: 1000,
				Confidence:     0.9,
				Formation:      &model.FormationPayload{Type: model.FormationLarry},
			}
			resp, body := get(t, srv.URL+"/api/v1/events/at?kind=formation&ts=1000")
			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			var e model.Event
			So(json.Unmarshal(body, &e), ShouldBeNil)
			So(e.ID, ShouldEqual, "f-1")
		})

		Convey("GET /api/v1/events/at misses with 404", func() {
			resp, _ := get(t, srv.URL+"/api/v1/events/at?kind=formation&ts=1000")
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
		})

		Convey("GET /api/v1/events/at rejects bad parameters", func() {
			resp, _ := get(t, srv.URL+"/api/v1/events/at?kind=bogus&ts=1000")
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)

			resp, _ = get(t, srv.URL+"/api/v1/events/at?kind=formation&ts=abc")
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("GET /api/v1/events returns an empty array rather than null", func() {
			resp, body := get(t, srv.URL+"/api/v1/events?kind=formation&from=0&to=1000")
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(strings.TrimSpace(string(body)), ShouldEqual, "[]")
		})

		Convey("POST /api/v1/formations creates a user event", func() {
			resp, body := post(t, srv.URL+"/api/v1/formations",
				`{"video_timestamp":5000,"formation_type":"larry","notes":"trips right"}`)
			So(resp.StatusCode, ShouldEqual, http.StatusCreated)

			var e model.Event
			So(json.Unmarshal(body, &e), ShouldBeNil)
			So(e.UserCreated, ShouldBeTrue)
			So(e.Formation.Type, ShouldEqual, model.FormationLarry)
		})

		Convey("POST /api/v1/formations rejects unknown types", func() {
			resp, _ := post(t, srv.URL+"/api/v1/formations",
				`{"video_timestamp":5000,"formation_type":"wishbone"}`)
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("POST /api/v1/calls/override requires a formation", func() {
			resp, _ := post(t, srv.URL+"/api/v1/calls/override",
				`{"video_timestamp":5000,"call":"weak_side"}`)
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)

			engine.event = &model.Event{ID: "f-1", Kind: model.KindFormation}
			resp, body := post(t, srv.URL+"/api/v1/calls/override",
				`{"video_timestamp":5000,"call":"weak_side","reason":"film"}`)
			So(resp.StatusCode, ShouldEqual, http.StatusCreated)

			var e model.Event
			So(json.Unmarshal(body, &e), ShouldBeNil)
			So(e.Call.FormationID, ShouldEqual, "f-1")
		})

		Convey("POST /api/v1/alerts/{id}/ack acknowledges", func() {
			resp, _ := post(t, srv.URL+"/api/v1/alerts/a-1/ack", ``)
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(engine.acked, ShouldResemble, []string{"a-1"})

			resp, _ = post(t, srv.URL+"/api/v1/alerts/missing/ack", ``)
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)

			resp, _ = post(t, srv.URL+"/api/v1/alerts/a-1", ``)
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestMarkerEndpoints(t *testing.T) {
	Convey("Given an API server over a fake engine", t, func() {
		engine := newFakeEngine()
		srv := newTestServer(engine)
		defer srv.Close()

		Convey("GET /api/v1/markers returns visible markers", func() {
			engine.markers = []marker.Marker{{ID: "m-1", Kind: model.KindFormation, VideoTimestamp: 1000}}
			resp, body := get(t, srv.URL+"/api/v1/markers?from=0&to=2000")
			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			var ms []marker.Marker
			So(json.Unmarshal(body, &ms), ShouldBeNil)
			So(len(ms), ShouldEqual, 1)
		})

		Convey("GET /api/v1/markers/nearest snaps or 404s", func() {
			resp, _ := get(t, srv.URL+"/api/v1/markers/nearest?ts=1000")
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)

			engine.nearest = &marker.Marker{ID: "m-1", Kind: model.KindFormation, VideoTimestamp: 990}
			resp, body := get(t, srv.URL+"/api/v1/markers/nearest?ts=1000")
			So(resp.StatusCode, ShouldEqual, http.StatusOK)

			var m marker.Marker
			So(json.Unmarshal(body, &m), ShouldBeNil)
			So(m.ID, ShouldEqual, "m-1")
		})

		Convey("GET /api/v1/markers/nearest filters by kind", func() {
			engine.nearest = &marker.Marker{ID: "m-1", Kind: model.KindFormation, VideoTimestamp: 990}

			resp, _ := get(t, srv.URL+"/api/v1/markers/nearest?ts=1000&kind=formation")
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(engine.nearestKind, ShouldEqual, model.KindFormation)

			resp, _ = get(t, srv.URL+"/api/v1/markers/nearest?ts=1000&kind=coaching_alert")
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)

			resp, _ = get(t, srv.URL+"/api/v1/markers/nearest?ts=1000&kind=bogus")
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("POST /api/v1/markers/visibility toggles a kind", func() {
			resp, _ := post(t, srv.URL+"/api/v1/markers/visibility",
				`{"kind":"mel_score","visible":false}`)
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(engine.visibility[model.KindMELScore], ShouldBeFalse)
		})
	})
}

func TestStatusStatsPlayback(t *testing.T) {
	Convey("Given an API server over a fake engine", t, func() {
		engine := newFakeEngine()
		srv := newTestServer(engine)
		defer srv.Close()

		Convey("GET /api/v1/status reports connection and position", func() {
			engine.position = 42000
			resp, body := get(t, srv.URL+"/api/v1/status")
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(string(body), ShouldContainSubstring, `"connected"`)
			So(string(body), ShouldContainSubstring, `42000`)
		})

		Convey("POST /api/v1/reconnect wakes the backend", func() {
			resp, _ := post(t, srv.URL+"/api/v1/reconnect", ``)
			So(resp.StatusCode, ShouldEqual, http.StatusAccepted)
			So(engine.reconnects, ShouldEqual, 1)
		})

		Convey("Stats round trip", func() {
			resp, body := get(t, srv.URL+"/api/v1/stats")
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(string(body), ShouldContainSubstring, `"events_processed":7`)

			resp, _ = post(t, srv.URL+"/api/v1/stats/reset", ``)
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(engine.resets, ShouldEqual, 1)
		})

		Convey("POST /api/v1/playback drives the engine", func() {
			resp, _ := post(t, srv.URL+"/api/v1/playback",
				`{"position_ms":9000,"seek":true,"rate":2.0,"playing":true}`)
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(engine.position, ShouldEqual, 9000)
			So(engine.seeked, ShouldBeTrue)
			So(engine.rate, ShouldEqual, 2.0)
			So(*engine.playing, ShouldBeTrue)

			resp, _ = post(t, srv.URL+"/api/v1/playback", `{"position_ms":-5}`)
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("GET /healthz answers ok", func() {
			resp, body := get(t, srv.URL+"/healthz")
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(string(body), ShouldContainSubstring, "ok")
		})
	})
}
