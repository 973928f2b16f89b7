package ml

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/stitts-dev/nba-projections/internal/models"
)

const (
	MinConfidence = 0.10
	MaxConfidence = 0.95

	// z for the 10th/90th percentile of a normal distribution
	intervalZ = 1.2816

	neutralAccuracy    = 0.75
	minAccuracySamples = 10
	accuracyWindow     = 50
)

// Context multipliers; each widens the interval and divides confidence.
const (
	InjuryReturnMultiplier = 1.30
	NewTeamMultiplier      = 1.20
	BackToBackMultiplier   = 1.10
	EliteDefenseMultiplier = 1.15
)

// Multiplier is the product of the multipliers of every risk that holds.
func (r RiskFactors) Multiplier() float64 {
	m := 1.0
	if r.InjuryReturn {
		m *= InjuryReturnMultiplier
	}
	if r.NewTeam {
		m *= NewTeamMultiplier
	}
	if r.BackToBack {
		m *= BackToBackMultiplier
	}
	if r.EliteDefense {
		m *= EliteDefenseMultiplier
	}
	return m
}

type accuracyKey struct {
	playerID  string
	statistic string
}

// AccuracyTracker remembers whether recent actual outcomes fell inside the
// predicted interval, per player and statistic. Safe for concurrent use.
type AccuracyTracker struct {
	mu      sync.RWMutex
	window  int
	history map[accuracyKey][]bool
}

func NewAccuracyTracker() *AccuracyTracker {
	return &AccuracyTracker{
		window:  accuracyWindow,
		history: make(map[accuracyKey][]bool),
	}
}

// Record stores one resolved prediction.
func (t *AccuracyTracker) Record(playerID, statistic string, low, high, actual float64) {
	hit := actual >= low && actual <= high
	key := accuracyKey{playerID, statistic}

	t.mu.Lock()
	defer t.mu.Unlock()
	h := append(t.history[key], hit)
	if len(h) > t.window {
		h = h[len(h)-t.window:]
	}
	t.history[key] = h
}

// HitRate returns the in-interval rate over the trailing window and the
// number of samples it is based on.
func (t *AccuracyTracker) HitRate(playerID, statistic string) (float64, int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h := t.history[accuracyKey{playerID, statistic}]
	if len(h) == 0 {
		return 0, 0
	}
	hits := 0
	for _, ok := range h {
		if ok {
			hits++
		}
	}
	return float64(hits) / float64(len(h)), len(h)
}

// Calibration is the outcome of combining base predictions.
type Calibration struct {
	Result              models.ConfidenceResult
	Multiplier          float64
	AccuracyFactor      float64
	HistoryInsufficient bool
}

// ConfidenceCalculator turns base predictions and weights into a combined
// estimate with an interval and a confidence in [0.10, 0.95].
type ConfidenceCalculator struct {
	tracker *AccuracyTracker
}

func NewConfidenceCalculator(tracker *AccuracyTracker) *ConfidenceCalculator {
	if tracker == nil {
		tracker = NewAccuracyTracker()
	}
	return &ConfidenceCalculator{tracker: tracker}
}

func (c *ConfidenceCalculator) Tracker() *AccuracyTracker {
	return c.tracker
}

// Calibrate combines base predictions with weights (same order).
//
// The point is the weighted sum. Each base interval is read as a normal
// 10-90 band, sigma = (high-low)/(2*1.2816); the combined variance adds the
// weighted within-model variances and the weighted spread of base points
// around the combined point. Bounds are point +- 1.2816*sigma, widened by
// the risk multiplier, low floored at zero.
//
// Confidence starts from model agreement, 1 - min(std/max(|mean|,1), 1),
// is scaled by the player's empirical interval hit rate (0.75 until ten
// outcomes exist) and divided by the risk multiplier.
func (c *ConfidenceCalculator) Calibrate(base []models.BasePrediction, weights []float64, playerID string, risks RiskFactors) Calibration {
	if len(base) == 0 || len(base) != len(weights) {
		return Calibration{Result: models.ConfidenceResult{Confidence: MinConfidence}, Multiplier: 1}
	}

	points := make([]float64, len(base))
	var point float64
	for i, b := range base {
		points[i] = b.Point
		point += weights[i] * b.Point
	}
	point = math.Max(0, point)

	var variance float64
	for i, b := range base {
		sigma := (b.High - b.Low) / (2 * intervalZ)
		d := b.Point - point
		variance += weights[i]*weights[i]*sigma*sigma + weights[i]*d*d
	}

	multiplier := risks.Multiplier()
	half := intervalZ * math.Sqrt(variance) * multiplier

	mean, std := stat.PopMeanStdDev(points, nil)
	disagreement := std / math.Max(math.Abs(mean), 1.0)
	raw := 1 - math.Min(disagreement, 1)

	accuracy := neutralAccuracy
	insufficient := true
	if rate, n := c.tracker.HitRate(playerID, base[0].Statistic); n >= minAccuracySamples {
		accuracy = rate
		insufficient = false
	}

	return Calibration{
		Result: models.ConfidenceResult{
			Value:      point,
			Low:        math.Max(0, point-half),
			High:       point + half,
			Confidence: clampConfidence(raw * accuracy / multiplier),
		},
		Multiplier:          multiplier,
		AccuracyFactor:      accuracy,
		HistoryInsufficient: insufficient,
	}
}

func clampConfidence(v float64) float64 {
	if math.IsNaN(v) {
		return MinConfidence
	}
	return math.Max(MinConfidence, math.Min(MaxConfidence, v))
}
