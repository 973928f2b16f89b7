package models

import (
	"time"

	"github.com/google/uuid"
)

// ModelRegistryEntry describes one trained model artifact.
type ModelRegistryEntry struct {
	ID              uuid.UUID          `json:"id"`
	Name            string             `json:"name"`
	Version         string             `json:"version"`
	Statistic       string             `json:"statistic"`
	Algorithm       string             `json:"algorithm"`
	Hyperparameters map[string]float64 `json:"hyperparameters"`
	Metrics         map[string]float64 `json:"metrics"`
	TrainStart      time.Time          `json:"train_start"`
	TrainEnd        time.Time          `json:"train_end"`
	FeatureSchema   []string           `json:"feature_schema"`
	IsProduction    bool               `json:"is_production"`
	CreatedAt       time.Time          `json:"created_at"`
}
