package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDataUnavailable   = errors.New("data unavailable")
	ErrFeatureIncomplete = errors.New("feature incomplete")
	ErrModelUnavailable  = errors.New("model unavailable")
	ErrUnknownStatistic  = errors.New("unknown statistic")
	ErrInvalidGameStat   = errors.New("invalid game stat line")
)

// SourceAttempt records what happened when one source was tried.
type SourceAttempt struct {
	Source  string `json:"source"`
	Skipped bool   `json:"skipped"` // breaker open, source not invoked
	Err     error  `json:"-"`
}

// DataUnavailableError means every source failed and no cached copy exists.
type DataUnavailableError struct {
	Resource string
	Attempts []SourceAttempt
}

func (e *DataUnavailableError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		switch {
		case a.Skipped:
			parts = append(parts, a.Source+": circuit open")
		case a.Err != nil:
			parts = append(parts, a.Source+": "+a.Err.Error())
		default:
			parts = append(parts, a.Source+": failed")
		}
	}
	return fmt.Sprintf("%s for %s (%s)", ErrDataUnavailable, e.Resource, strings.Join(parts, "; "))
}

func (e *DataUnavailableError) Unwrap() error {
	return ErrDataUnavailable
}

// FeatureIncompleteError lists the required features that were absent or
// held the insufficient-history sentinel.
type FeatureIncompleteError struct {
	PlayerID  string
	Statistic string
	Missing   []string
}

func (e *FeatureIncompleteError) Error() string {
	return fmt.Sprintf("%s: player %s statistic %s missing %d features: %s",
		ErrFeatureIncomplete, e.PlayerID, e.Statistic, len(e.Missing), strings.Join(e.Missing, ", "))
}

func (e *FeatureIncompleteError) Unwrap() error {
	return ErrFeatureIncomplete
}

// ValidationError is returned for a game stat line rejected at ingestion.
type ValidationError struct {
	PlayerID string
	GameID   string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s (player %s, game %s): %s",
		ErrInvalidGameStat, e.PlayerID, e.GameID, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidGameStat
}
