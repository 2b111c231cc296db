package testevents

import (
	"context"
	"crypto/rand"
	"math/big"

	"github.com/analyzemyteam/defsync/pkg/logger"
)

// Constants for random number generation.
const (
	randomFloatDivisor  = 1000000
	formationDieSides   = 10
	overrideDieSides    = 8
	jitterRangeMS       = 4000
	firstSnapOffsetMS   = 5000
	overrideCase        = 0
	notesCase           = 1
)

// Formation selection weights. Larry and Linda dominate real play
// charting, the rest of the family shows up less often.
var formationDie = []string{
	"larry", "larry", "larry",
	"linda", "linda",
	"rita", "rita",
	"ricky",
	"randy",
	"pat",
}

// Override calls a coordinator plausibly swaps in from the booth.
var overrideCalls = []string{
	"strong_side", "weak_side", "middle_hash", "red_zone",
}

// getRandomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

// rollDie returns a random int in [0, sides).
func rollDie(sides int64) int64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(sides))
	return n.Int64()
}

// generatePlays scripts the requested number of plays along the video
// timeline. Plays are spaced PlayGapMS apart with jitter so marker
// spacing looks like a real game chart.
func generatePlays(ctx context.Context, config *Config, stats *Stats) ([]Play, error) {
	logger.Get().Info(ctx, "scripting plays on the timeline",
		logger.Int("numPlays", config.NumPlays),
		logger.Int64("playGapMS", config.PlayGapMS))

	plays := make([]Play, config.NumPlays)
	position := int64(firstSnapOffsetMS)

	for i := 0; i < config.NumPlays; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		plays[i] = generateSinglePlay(position)
		position += config.PlayGapMS + rollDie(jitterRangeMS)
	}

	stats.PlaysGenerated = len(plays)
	logger.Get().Info(ctx, "scripted plays successfully", logger.Int("count", len(plays)))
	return plays, nil
}

// generateSinglePlay creates one play at the given video position.
func generateSinglePlay(position int64) Play {
	play := Play{
		VideoTimestamp: position,
		FormationType:  formationDie[rollDie(formationDieSides)],
	}

	// Roughly one play in eight gets a booth override, and another
	// one in eight gets charting notes.
	switch rollDie(overrideDieSides) {
	case overrideCase:
		play.OverrideCall = overrideCalls[rollDie(int64(len(overrideCalls)))]
		play.OverrideReason = "booth adjustment"
	case notesCase:
		play.Notes = "charted from sideline"
	}

	return play
}
