package testevents

import (
	"context"
	"fmt"
	"log"
)

// verifyResults checks the marker chart and engine stats against the
// submitted play script.
func verifyResults(ctx context.Context, config *Config, plays []Play, markers []Marker, engineStats *EngineStats, stats *Stats) error {
	log.Println("Verifying results...")

	if len(markers) == 0 {
		return fmt.Errorf("no markers to verify")
	}

	if err := verifyMarkerOrdering(markers); err != nil {
		return fmt.Errorf("marker ordering check failed: %w", err)
	}
	log.Println("Marker ordering verified")

	if err := verifyMarkerCoverage(plays, markers, stats); err != nil {
		log.Printf("Marker coverage warning: %v", err)
	} else {
		log.Println("Marker coverage verified")
	}

	if engineStats != nil {
		if err := verifyEngineStats(plays, engineStats); err != nil {
			log.Printf("Engine stats warning: %v", err)
		} else {
			log.Println("Engine stats verified")
		}
	}

	displayMarkerSummary(markers, config.Verbose)

	log.Println("Result verification completed")
	return nil
}

// verifyMarkerOrdering checks markers come back sorted by video position.
func verifyMarkerOrdering(markers []Marker) error {
	for i := 1; i < len(markers); i++ {
		if markers[i].VideoTimestamp < markers[i-1].VideoTimestamp {
			return fmt.Errorf("marker %d at %d precedes marker %d at %d",
				i, markers[i].VideoTimestamp, i-1, markers[i-1].VideoTimestamp)
		}
	}
	return nil
}

// verifyMarkerCoverage checks every successful play produced a marker.
func verifyMarkerCoverage(plays []Play, markers []Marker, stats *Stats) error {
	// Every marked formation is user created, so its marker survives
	// sweeps. Overrides and urgency alerts add markers on top.
	formationMarkers := 0
	for _, m := range markers {
		if m.Kind == "formation" {
			formationMarkers++
		}
	}

	if formationMarkers < stats.PlaysSuccessful {
		return fmt.Errorf("expected at least %d formation markers, found %d",
			stats.PlaysSuccessful, formationMarkers)
	}
	return nil
}

// verifyEngineStats checks the engine counted at least the submitted plays.
func verifyEngineStats(plays []Play, engineStats *EngineStats) error {
	if engineStats.EventsProcessed < int64(len(plays)) {
		return fmt.Errorf("engine processed %d events for %d plays",
			engineStats.EventsProcessed, len(plays))
	}
	if engineStats.MarkersCreated < int64(len(plays)) {
		return fmt.Errorf("engine created %d markers for %d plays",
			engineStats.MarkersCreated, len(plays))
	}
	return nil
}

// displayMarkerSummary shows a breakdown of the retrieved markers.
func displayMarkerSummary(markers []Marker, verbose bool) {
	byKind := make(map[string]int)
	userCreated := 0
	for _, m := range markers {
		byKind[m.Kind]++
		if m.UserCreated {
			userCreated++
		}
	}

	log.Printf("Marker chart: %d total, %d user created", len(markers), userCreated)
	for kind, count := range byKind {
		log.Printf("   %s: %d", kind, count)
	}

	if verbose && len(markers) > 0 {
		first := markers[0]
		last := markers[len(markers)-1]
		log.Printf(`Timeline span:
   First: %s at %d
   Last: %s at %d
`, first.Label, first.VideoTimestamp, last.Label, last.VideoTimestamp)
	}
}
