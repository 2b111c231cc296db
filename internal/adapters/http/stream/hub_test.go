package stream

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"

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

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if resp != nil {
		resp.Body.Close()
	}
	So(err, ShouldBeNil)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) notification {
	t.Helper()
	So(conn.SetReadDeadline(time.Now().Add(2*time.Second)), ShouldBeNil)
	_, data, err := conn.ReadMessage()
	So(err, ShouldBeNil)
	var n notification
	So(json.Unmarshal(data, &n), ShouldBeNil)
	return n
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

func TestHubBroadcast(t *testing.T) {
	Convey("Given a hub with a connected client", t, func() {
		hub := NewHub()
		defer hub.Close()

		mux := http.NewServeMux()
		mux.HandleFunc("/ws", hub.HandleWS)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		conn := dialHub(t, srv)
		So(waitFor(func() bool { return hub.ClientCount() == 1 }), ShouldBeTrue)

		Convey("Marker notifications reach the client", func() {
			hub.MarkerAdded(marker.Marker{ID: "m-1", Kind: model.KindFormation, VideoTimestamp: 1000})

			n := readFrame(t, conn)
			So(n.Event, ShouldEqual, "marker_added")

			payload, err := json.Marshal(n.Data)
			So(err, ShouldBeNil)
			var m marker.Marker
			So(json.Unmarshal(payload, &m), ShouldBeNil)
			So(m.ID, ShouldEqual, "m-1")
		})

		Convey("Removal notifications carry the marker id", func() {
			hub.MarkerRemoved("m-9")
			n := readFrame(t, conn)
			So(n.Event, ShouldEqual, "marker_removed")
		})

		Convey("Status and statistics notifications are typed", func() {
			hub.ConnectionStatusChanged(model.ConnectionStatus{State: model.StateDegraded})
			So(readFrame(t, conn).Event, ShouldEqual, "connection_status")

			hub.StatisticsUpdated(stats.Snapshot{EventsProcessed: 3})
			So(readFrame(t, conn).Event, ShouldEqual, "statistics")
		})

		Convey("A second client receives the same broadcast", func() {
			conn2 := dialHub(t, srv)
			So(waitFor(func() bool { return hub.ClientCount() == 2 }), ShouldBeTrue)

			hub.MarkerUpdated(marker.Marker{ID: "m-2"})
			So(readFrame(t, conn).Event, ShouldEqual, "marker_updated")
			So(readFrame(t, conn2).Event, ShouldEqual, "marker_updated")
		})

		Convey("A disconnected client is unregistered", func() {
			conn.Close()
			So(waitFor(func() bool { return hub.ClientCount() == 0 }), ShouldBeTrue)
		})
	})
}
