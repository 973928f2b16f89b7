package models

import (
	"encoding/json"
	"sort"
	"time"
)

// FeatureVector is the derived feature map for (player, as_of_date).
type FeatureVector struct {
	PlayerID string             `json:"player_id"`
	AsOf     time.Time          `json:"as_of"`
	Version  string             `json:"version"`
	Features map[string]float64 `json:"features"`
}

func (fv *FeatureVector) Get(name string) (float64, bool) {
	if fv == nil || fv.Features == nil {
		return 0, false
	}
	v, ok := fv.Features[name]
	return v, ok
}

// Names returns the feature names in sorted order.
func (fv *FeatureVector) Names() []string {
	names := make([]string, 0, len(fv.Features))
	for k := range fv.Features {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Bytes is the canonical serialisation; map keys are emitted sorted.
func (fv *FeatureVector) Bytes() ([]byte, error) {
	return json.Marshal(fv)
}

type ModelKind string

const (
	ModelKindQuantileGBM ModelKind = "quantile_gbm"
	ModelKindSequence    ModelKind = "sequence"
)

// BasePrediction is one base model's output for one statistic.
type BasePrediction struct {
	Model     string    `json:"model"`
	Kind      ModelKind `json:"kind"`
	Statistic string    `json:"statistic"`
	Point     float64   `json:"point"`
	Low       float64   `json:"low"`
	High      float64   `json:"high"`
}

type ConfidenceResult struct {
	Value      float64 `json:"value"`
	Low        float64 `json:"low"`
	High       float64 `json:"high"`
	Confidence float64 `json:"confidence"`
}

// Factor explains one signed contribution to a prediction.
type Factor struct {
	Name        string  `json:"name"`
	Impact      float64 `json:"impact"`
	Description string  `json:"description"`
}

type EnsembleResult struct {
	PlayerID        string             `json:"player_id"`
	GameDate        time.Time          `json:"game_date"`
	Statistic       string             `json:"statistic"`
	ModelVersion    string             `json:"model_version"`
	Prediction      ConfidenceResult   `json:"prediction"`
	Base            []BasePrediction   `json:"base_predictions"`
	Profile         string             `json:"weighting_profile"`
	Weights         map[string]float64 `json:"weights"`
	Factors         []Factor           `json:"factors"`
	SeasonAverage   float64            `json:"season_average"` // <stat>_avg_30g at prediction time
	Degraded        bool               `json:"degraded"`
	DegradedReasons []string           `json:"degraded_reasons,omitempty"`
	Stale           bool               `json:"stale"`
	ComputedAt      time.Time          `json:"computed_at"`
}

// PlayerPrediction groups every statistic predicted for a player on a date.
type PlayerPrediction struct {
	PlayerID    string                     `json:"player_id"`
	Name        string                     `json:"name,omitempty"`
	Team        string                     `json:"team,omitempty"`
	Position    string                     `json:"position,omitempty"`
	GameDate    time.Time                  `json:"game_date"`
	Predictions map[string]*EnsembleResult `json:"predictions"`
	Degraded    bool                       `json:"degraded"`
	Errors      map[string]string          `json:"errors,omitempty"`
}

// Breakout flags a projection well above the player's own baseline.
type Breakout struct {
	PlayerID      string  `json:"player_id"`
	Name          string  `json:"name,omitempty"`
	Statistic     string  `json:"statistic"`
	Predicted     float64 `json:"predicted"`
	SeasonAverage float64 `json:"season_average"`
	DeltaPct      float64 `json:"delta_pct"`
	Confidence    float64 `json:"confidence"`
}

// CircuitBreakerState is a read-only snapshot of one source's breaker.
type CircuitBreakerState struct {
	Source      string    `json:"source"`
	State       string    `json:"state"`
	Failures    uint32    `json:"failures"`
	LastFailure time.Time `json:"last_failure,omitempty"`
	NextRetryAt time.Time `json:"next_retry_at,omitempty"`
}
