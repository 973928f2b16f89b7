package ml

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/stitts-dev/nba-projections/internal/features"
	"github.com/stitts-dev/nba-projections/internal/models"
)

// MinTrainingSamples is the smallest training set a model is fitted on.
const MinTrainingSamples = 10

var ErrInsufficientData = errors.New("insufficient training data")

// Sample is one (features, outcome) pair: the vector as of a game date and
// the statistic the player actually recorded in that game.
type Sample struct {
	PlayerID string
	Date     time.Time
	Features map[string]float64
	Target   float64
}

// TrainingSet holds samples for one statistic, ordered by date.
type TrainingSet struct {
	Statistic string
	Samples   []Sample
}

func (s *TrainingSet) Len() int {
	return len(s.Samples)
}

// Span returns the first and last sample dates.
func (s *TrainingSet) Span() (time.Time, time.Time) {
	if len(s.Samples) == 0 {
		return time.Time{}, time.Time{}
	}
	return s.Samples[0].Date, s.Samples[len(s.Samples)-1].Date
}

// Between returns the samples dated in [from, to], sharing storage.
func (s *TrainingSet) Between(from, to time.Time) *TrainingSet {
	out := &TrainingSet{Statistic: s.Statistic}
	for _, smp := range s.Samples {
		if smp.Date.Before(from) || smp.Date.After(to) {
			continue
		}
		out.Samples = append(out.Samples, smp)
	}
	return out
}

func (s *TrainingSet) sortByDate() {
	sort.SliceStable(s.Samples, func(i, j int) bool {
		a, b := s.Samples[i], s.Samples[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.PlayerID < b.PlayerID
	})
}

// matrix lays the samples out row-wise over the given feature names.
// Absent features take the Missing sentinel.
func (s *TrainingSet) matrix(names []string) ([][]float64, []float64) {
	X := make([][]float64, len(s.Samples))
	y := make([]float64, len(s.Samples))
	for i, smp := range s.Samples {
		X[i] = vectorize(smp.Features, names)
		y[i] = smp.Target
	}
	return X, y
}

func vectorize(f map[string]float64, names []string) []float64 {
	row := make([]float64, len(names))
	for j, name := range names {
		v, ok := f[name]
		if !ok {
			v = features.Missing
		}
		row[j] = v
	}
	return row
}

// ContextFunc supplies the game context for a historical game line.
type ContextFunc func(line models.GameStatLine) features.GameContext

// BuildTrainingSet turns game logs into samples for stat: one sample per
// game dated in [from, to], with features computed only from that player's
// earlier games. Samples missing a required feature are dropped.
func BuildTrainingSet(ctx context.Context, eng *features.Engineer, games []models.GameStatLine, stat string, from, to time.Time, contextFor ContextFunc) (*TrainingSet, error) {
	if !models.IsTrackedStatistic(stat) {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownStatistic, stat)
	}

	byPlayer := make(map[string][]models.GameStatLine)
	for _, g := range games {
		byPlayer[g.PlayerID] = append(byPlayer[g.PlayerID], g)
	}
	players := make([]string, 0, len(byPlayer))
	for id := range byPlayer {
		players = append(players, id)
	}
	sort.Strings(players)

	var inputs []features.Input
	var targets []float64
	for _, id := range players {
		for _, g := range byPlayer[id] {
			if g.GameDate.Before(from) || g.GameDate.After(to) {
				continue
			}
			target, _ := g.Stat(stat)
			gc := features.GameContext{IsHome: g.IsHome, Position: g.Position, Team: g.Team}
			if contextFor != nil {
				gc = contextFor(g)
			}
			inputs = append(inputs, features.Input{PlayerID: id, AsOf: g.GameDate, History: byPlayer[id], Context: gc})
			targets = append(targets, target)
		}
	}

	vectors, err := eng.ComputeBatch(ctx, inputs)
	if err != nil {
		return nil, err
	}

	required := features.RequiredFor(stat)
	set := &TrainingSet{Statistic: stat}
	for i, fv := range vectors {
		if len(missingFeatures(fv.Features, required)) > 0 {
			continue
		}
		set.Samples = append(set.Samples, Sample{
			PlayerID: fv.PlayerID,
			Date:     fv.AsOf,
			Features: fv.Features,
			Target:   targets[i],
		})
	}
	set.sortByDate()
	return set, nil
}

// missingFeatures lists required names that are absent or hold the sentinel.
func missingFeatures(f map[string]float64, required []string) []string {
	var missing []string
	for _, name := range required {
		v, ok := f[name]
		if !ok || features.IsMissing(v) {
			missing = append(missing, name)
		}
	}
	return missing
}
