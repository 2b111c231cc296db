// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
)

// Kind discriminates the event payload.
type Kind string

// Event kinds.
const (
	KindFormation     Kind = "formation"
	KindTriangleCall  Kind = "triangle_call"
	KindCoachingAlert Kind = "coaching_alert"
	KindMELScore      Kind = "mel_score"
)

// Kinds lists every event kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindFormation, KindTriangleCall, KindCoachingAlert, KindMELScore}
}

// ParseKind validates a kind string.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindFormation, KindTriangleCall, KindCoachingAlert, KindMELScore:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// MELScores holds the M.E.L. pipeline scores for a formation.
type MELScores struct {
	Making     float64 `json:"making_score"`
	Efficiency float64 `json:"efficiency_score"`
	Logical    float64 `json:"logical_score"`
	Combined   float64 `json:"combined_score"`
}

// NewMELScores builds a score set with the combined score as the
// mean of the three components.
func NewMELScores(making, efficiency, logical float64) MELScores {
	return MELScores{
		Making:     making,
		Efficiency: efficiency,
		Logical:    logical,
		Combined:   (making + efficiency + logical) / 3.0,
	}
}

// FormationPayload carries a detected (or manually marked) formation.
type FormationPayload struct {
	Type            FormationType          `json:"formation_type"`
	RecommendedCall TriangleCall           `json:"recommended_call"`
	HashPosition    string                 `json:"hash_position"` // "L", "M" or "R"
	FieldZone       string                 `json:"field_zone"`
	MEL             MELScores              `json:"mel_results"`
	PlayerPositions map[string]interface{} `json:"player_positions,omitempty"`
	FieldContext    map[string]interface{} `json:"field_context,omitempty"`
}

// TriangleCallPayload carries a standalone call event, typically a
// coaching override of a recommended call.
type TriangleCallPayload struct {
	Call           TriangleCall `json:"call"`
	FormationID    string       `json:"formation_id"`
	OverrideReason string       `json:"override_reason,omitempty"`
}

// AlertPayload carries a coaching alert.
type AlertPayload struct {
	AlertType    string `json:"alert_type"`
	Message      string `json:"message"`
	TargetStaff  string `json:"target_staff,omitempty"`
	Priority     int    `json:"priority_level"` // 1 (info) .. 5 (critical)
	Acknowledged bool   `json:"acknowledged"`
}

// Critical reports whether the alert should pre-empt normal work.
func (a *AlertPayload) Critical() bool {
	return a != nil && a.Priority >= CriticalAlertPriority
}

// MELPayload carries a pipeline score update for a formation.
type MELPayload struct {
	FormationID string    `json:"formation_id"`
	StageStatus string    `json:"stage_status,omitempty"`
	Scores      MELScores `json:"scores"`
}

// CriticalAlertPriority is the priority at which an alert is treated
// as critical for queue backpressure and marker animation.
const CriticalAlertPriority = 4

// Event is the unit every layer exchanges. Exactly one payload pointer
// is set, matching Kind.
type Event struct {
	ID              string `json:"id"`
	Kind            Kind   `json:"kind"`
	VideoTimestamp  int64  `json:"video_timestamp"`  // ms on the video timeline
	IngestTimestamp int64  `json:"ingest_timestamp"` // ms wall clock, last-write-wins tiebreaker
	Confidence      float64 `json:"confidence"`
	UserCreated     bool    `json:"user_created,omitempty"`

	Formation *FormationPayload    `json:"formation,omitempty"`
	Call      *TriangleCallPayload `json:"triangle_call,omitempty"`
	Alert     *AlertPayload        `json:"coaching_alert,omitempty"`
	MEL       *MELPayload          `json:"mel_score,omitempty"`
}

// Validate checks boundary invariants and clamps confidence to [0, 1].
// A zero confidence is treated as unset and defaults to 1.
func (e *Event) Validate() error {
	if e == nil {
		return ErrNilEvent
	}
	if strings.TrimSpace(e.ID) == "" {
		return ErrEmptyEventID
	}
	if e.VideoTimestamp < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeTimestamp, e.VideoTimestamp)
	}
	if _, err := ParseKind(string(e.Kind)); err != nil {
		return err
	}
	if err := e.checkPayload(); err != nil {
		return err
	}
	switch {
	case e.Confidence == 0:
		e.Confidence = 1.0
	case e.Confidence < 0:
		e.Confidence = 0
	case e.Confidence > 1:
		e.Confidence = 1.0
	}
	if e.Alert != nil {
		e.Alert.Priority = clampInt(e.Alert.Priority, 1, 5)
	}
	return nil
}

func (e *Event) checkPayload() error {
	var want bool
	switch e.Kind {
	case KindFormation:
		want = e.Formation != nil
	case KindTriangleCall:
		want = e.Call != nil
	case KindCoachingAlert:
		want = e.Alert != nil
	case KindMELScore:
		want = e.MEL != nil
	}
	if !want {
		return fmt.Errorf("%w: kind %s", ErrPayloadMismatch, e.Kind)
	}
	return nil
}

// Priority maps an event to a queue priority. Alerts at or above the
// critical threshold outrank everything else.
func (e *Event) Priority() int {
	if e.Kind == KindCoachingAlert && e.Alert != nil {
		return e.Alert.Priority
	}
	return 1
}

// Clone returns a deep copy so cached events never alias caller memory.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	cp := *e
	if e.Formation != nil {
		f := *e.Formation
		f.PlayerPositions = cloneMap(e.Formation.PlayerPositions)
		f.FieldContext = cloneMap(e.Formation.FieldContext)
		cp.Formation = &f
	}
	if e.Call != nil {
		c := *e.Call
		cp.Call = &c
	}
	if e.Alert != nil {
		a := *e.Alert
		cp.Alert = &a
	}
	if e.MEL != nil {
		m := *e.MEL
		cp.MEL = &m
	}
	return &cp
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
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
