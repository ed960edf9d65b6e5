package client

import (
	"math"
	"time"
)

// ScoreAnswer computes the local score for one answered question.
// A correct answer starts at 100 and loses up to 30 points the longer
// it took relative to the per-question timer; a wrong (or timed-out)
// answer is worth nothing.
func ScoreAnswer(correct bool, elapsed, timer time.Duration) int64 {
	if !correct || timer <= 0 {
		return 0
	}
	penalty := (elapsed.Seconds() / timer.Seconds()) * 30
	score := int64(math.Floor(100 - penalty))
	if score < 0 {
		return 0
	}
	return score
}
