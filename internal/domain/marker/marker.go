// Package marker derives and manages timeline markers from cached
// events. The manager owns its background sweep loop and filters reads
// through per-kind visibility, so toggling a kind is retroactive.
package marker

import (
	"fmt"
	"sort"
	"strings"

	"github.com/analyzemyteam/defsync/internal/domain/model"
)

// Marker is a renderable annotation on the video timeline.
type Marker struct {
	ID             string     `json:"marker_id"`
	SourceEventID  string     `json:"source_event_id"`
	Kind           model.Kind `json:"kind"`
	VideoTimestamp int64      `json:"video_timestamp"`
	Label          string     `json:"label"`
	Color          string     `json:"color"` // hex, e.g. "#0078D7"
	HeightScale    float64    `json:"height_scale"` // 0.1 .. 1.0
	Priority       int        `json:"priority"`     // 0 .. 10
	Animated       bool       `json:"animated"`
	UserCreated    bool       `json:"user_created"`
}

// Base colors per marker kind.
const (
	colorFormation = "#0078D7" // blue
	colorCall      = "#FF4500" // red-orange
	colorAlert     = "#FFD700" // gold
	colorMELHigh   = "#00FF00" // green
	colorMELMid    = "#FFFF00" // yellow
	colorMELLow    = "#FFA500" // orange
)

// deriveMarker maps an event to its marker attributes. The marker id is
// assigned by the manager; everything else is a pure function of the
// event.
func deriveMarker(e *model.Event) (Marker, error) {
	m := Marker{
		SourceEventID:  e.ID,
		Kind:           e.Kind,
		VideoTimestamp: e.VideoTimestamp,
		UserCreated:    e.UserCreated,
	}

	switch e.Kind {
	case model.KindFormation:
		f := e.Formation
		m.Label = strings.ToUpper(string(f.Type))
		m.Color = colorFormation
		m.HeightScale = 0.8
		m.Animated = e.Confidence > 0.8
		m.Priority = int(e.Confidence * 10)

	case model.KindTriangleCall:
		m.Label = strings.ToUpper(string(e.Call.Call))
		m.Color = colorCall
		m.HeightScale = 1.0 // full height for calls
		m.Animated = true
		m.Priority = 8

	case model.KindCoachingAlert:
		a := e.Alert
		m.Label = fmt.Sprintf("A%d", a.Priority)
		m.Color = colorAlert
		m.HeightScale = 0.2 + float64(a.Priority)*0.15
		m.Animated = a.Critical()
		m.Priority = a.Priority

	case model.KindMELScore:
		s := e.MEL.Scores
		m.Label = fmt.Sprintf("M%d", int(s.Combined))
		switch {
		case s.Combined >= 80.0:
			m.Color = colorMELHigh
		case s.Combined >= 60.0:
			m.Color = colorMELMid
		default:
			m.Color = colorMELLow
		}
		m.HeightScale = s.Combined / 100.0
		m.Animated = s.Combined > 85.0
		m.Priority = int(s.Combined / 10)

	default:
		return Marker{}, fmt.Errorf("%w: %q", model.ErrUnknownKind, e.Kind)
	}

	m.HeightScale = clampFloat(m.HeightScale, 0.1, 1.0)
	m.Priority = clampInt(m.Priority, 0, 10)
	return m, nil
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// sortMarkers orders by (video timestamp, id) for deterministic output.
func sortMarkers(ms []Marker) {
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].VideoTimestamp != ms[j].VideoTimestamp {
			return ms[i].VideoTimestamp < ms[j].VideoTimestamp
		}
		return ms[i].ID < ms[j].ID
	})
}
