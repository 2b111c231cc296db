package model

import (
	"fmt"
	"strings"
)

// FormationType names the Triangle Defense formation classes.
type FormationType string

// Formation types, from the male/female naming of the methodology.
const (
	FormationLarry FormationType = "larry"
	FormationLinda FormationType = "linda"
	FormationRita  FormationType = "rita"
	FormationRicky FormationType = "ricky"
	FormationRandy FormationType = "randy"
	FormationPat   FormationType = "pat"
)

// ParseFormationType validates a formation type string.
func ParseFormationType(s string) (FormationType, error) {
	switch f := FormationType(strings.ToLower(strings.TrimSpace(s))); f {
	case FormationLarry, FormationLinda, FormationRita, FormationRicky, FormationRandy, FormationPat:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormation, s)
	}
}

// TriangleCall names the defensive calls a formation can map to.
type TriangleCall string

// Triangle Defense calls.
const (
	CallStrongSide TriangleCall = "strong_side"
	CallWeakSide   TriangleCall = "weak_side"
	CallMiddleHash TriangleCall = "middle_hash"
	CallLeftHash   TriangleCall = "left_hash"
	CallRightHash  TriangleCall = "right_hash"
	CallRedZone    TriangleCall = "red_zone"
	CallGoalLine   TriangleCall = "goal_line"
	CallNoCall     TriangleCall = "no_call"
)

// ParseTriangleCall validates a call string.
func ParseTriangleCall(s string) (TriangleCall, error) {
	switch c := TriangleCall(strings.ToLower(strings.TrimSpace(s))); c {
	case CallStrongSide, CallWeakSide, CallMiddleHash, CallLeftHash,
		CallRightHash, CallRedZone, CallGoalLine, CallNoCall:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCall, s)
	}
}

// Combined M.E.L. score above which a balanced ricky formation is
// played to the strong side.
const rickyStrongSideScore = 70.0

// RecommendCall maps a formation to its Triangle Defense call.
// Field zone wins over hash position, hash position over formation type.
func RecommendCall(f *FormationPayload) TriangleCall {
	if f == nil {
		return CallNoCall
	}

	if zoneContains(f.FieldZone, "red zone") {
		if f.Type == FormationLarry || f.Type == FormationLinda {
			// Tight formations near the goal line
			return CallGoalLine
		}
		return CallRedZone
	}

	switch f.HashPosition {
	case "L":
		return CallLeftHash
	case "R":
		return CallRightHash
	case "M":
		return CallMiddleHash
	}

	switch f.Type {
	case FormationLarry, FormationLinda:
		// Tight formations, defend the strong side
		return CallStrongSide
	case FormationRita, FormationRandy:
		// Loose formations, cover the weak side
		return CallWeakSide
	case FormationRicky:
		if f.MEL.Combined > rickyStrongSideScore {
			return CallStrongSide
		}
		return CallWeakSide
	default:
		return CallNoCall
	}
}

// DefensiveUrgency scores how urgently the defense must react to a
// formation, weighted by type, field zone and M.E.L. score, scaled by
// detection confidence and clamped to [0, 1].
func DefensiveUrgency(f *FormationPayload, confidence float64) float64 {
	if f == nil {
		return 0
	}

	var urgency float64
	switch f.Type {
	case FormationLarry, FormationLinda:
		urgency += 0.8
	case FormationRita:
		urgency += 0.6
	case FormationRicky, FormationRandy:
		urgency += 0.4
	default:
		urgency += 0.2
	}

	if zoneContains(f.FieldZone, "red zone") {
		urgency += 0.3
	} else if zoneContains(f.FieldZone, "goal line") {
		urgency += 0.5
	}

	if f.MEL.Combined > 85.0 {
		urgency += 0.2
	}

	urgency *= confidence

	if urgency < 0 {
		return 0
	}
	if urgency > 1 {
		return 1
	}
	return urgency
}

// zoneContains does a case-insensitive substring match so wire values
// like "Red Zone - Left" still classify.
func zoneContains(zone, want string) bool {
	return strings.Contains(strings.ToLower(zone), want)
}
