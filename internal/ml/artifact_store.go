package ml

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/stitts-dev/nba-projections/internal/features"
	"github.com/stitts-dev/nba-projections/internal/models"
	"github.com/stitts-dev/nba-projections/pkg/database"
)

const ensembleAlgorithm = "quantile_gbm+sequence_ridge"

var ErrEntryNotFound = errors.New("registry entry not found")

// ArtifactStore persists trained models and tracks which one is in
// production for each statistic.
type ArtifactStore interface {
	Save(ctx context.Context, m *StatModel, production bool) (*models.ModelRegistryEntry, error)
	SetProduction(ctx context.Context, id uuid.UUID) error
	LoadProduction(ctx context.Context) (*Registry, error)
	List(ctx context.Context, stat string) ([]models.ModelRegistryEntry, error)
}

// registryRow is the persisted form of a ModelRegistryEntry. The model
// itself is kept as a JSON artifact alongside.
type registryRow struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Name            string         `gorm:"not null;uniqueIndex:idx_name_version"`
	Version         string         `gorm:"not null;uniqueIndex:idx_name_version"`
	Statistic       string         `gorm:"index;not null"`
	Algorithm       string         `gorm:"not null"`
	Hyperparameters datatypes.JSON `gorm:"type:json"`
	Metrics         datatypes.JSON `gorm:"type:json"`
	TrainStart      time.Time
	TrainEnd        time.Time
	FeatureSchema   datatypes.JSON `gorm:"type:json"`
	IsProduction    bool           `gorm:"index;default:false"`
	Artifact        datatypes.JSON `gorm:"type:json"`
	CreatedAt       time.Time
}

func (registryRow) TableName() string {
	return "model_registry"
}

func (r *registryRow) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// GormArtifactStore keeps the registry and its artifacts in one table.
type GormArtifactStore struct {
	db     *database.DB
	logger *logrus.Entry
}

func NewGormArtifactStore(db *database.DB, logger *logrus.Logger) *GormArtifactStore {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &GormArtifactStore{
		db:     db,
		logger: logger.WithField("component", "model_registry"),
	}
}

func (s *GormArtifactStore) Migrate() error {
	return s.db.Migrate(&registryRow{})
}

func (s *GormArtifactStore) Save(ctx context.Context, m *StatModel, production bool) (*models.ModelRegistryEntry, error) {
	hyper, err := json.Marshal(m.Hyperparameters())
	if err != nil {
		return nil, fmt.Errorf("failed to encode hyperparameters: %w", err)
	}
	metrics, err := json.Marshal(m.Metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metrics: %w", err)
	}
	schema, err := json.Marshal(features.Schema())
	if err != nil {
		return nil, fmt.Errorf("failed to encode feature schema: %w", err)
	}
	artifact, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode model artifact: %w", err)
	}

	row := registryRow{
		Name:            m.Statistic + "_ensemble",
		Version:         m.Version,
		Statistic:       m.Statistic,
		Algorithm:       ensembleAlgorithm,
		Hyperparameters: datatypes.JSON(hyper),
		Metrics:         datatypes.JSON(metrics),
		TrainStart:      m.TrainStart,
		TrainEnd:        m.TrainEnd,
		FeatureSchema:   datatypes.JSON(schema),
		Artifact:        datatypes.JSON(artifact),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		if production {
			return activate(tx, row.ID, row.Statistic)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save model: %w", err)
	}
	row.IsProduction = production

	s.logger.WithFields(logrus.Fields{
		"id":         row.ID,
		"statistic":  row.Statistic,
		"version":    row.Version,
		"production": production,
	}).Info("Saved model to registry")

	entry := toEntry(row)
	return &entry, nil
}

// SetProduction marks id as the production model for its statistic and
// demotes every other entry for that statistic in the same transaction.
func (s *GormArtifactStore) SetProduction(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row registryRow
		if err := tx.Select("id", "statistic").Where("id = ?", id).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEntryNotFound
			}
			return err
		}
		return activate(tx, row.ID, row.Statistic)
	})
}

func activate(tx *gorm.DB, id uuid.UUID, stat string) error {
	if err := tx.Model(&registryRow{}).
		Where("statistic = ? AND id <> ?", stat, id).
		Update("is_production", false).Error; err != nil {
		return err
	}
	return tx.Model(&registryRow{}).Where("id = ?", id).Update("is_production", true).Error
}

// LoadProduction decodes every production artifact into a Registry.
func (s *GormArtifactStore) LoadProduction(ctx context.Context) (*Registry, error) {
	var rows []registryRow
	if err := s.db.WithContext(ctx).Where("is_production = ?", true).Order("statistic ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load production models: %w", err)
	}

	ms := make([]*StatModel, 0, len(rows))
	for _, row := range rows {
		var m StatModel
		if err := json.Unmarshal(row.Artifact, &m); err != nil {
			s.logger.WithError(err).WithField("id", row.ID).Error("Skipping unreadable model artifact")
			continue
		}
		ms = append(ms, &m)
	}
	return NewRegistry(ms...), nil
}

// List returns registry entries, newest first. An empty stat lists all.
func (s *GormArtifactStore) List(ctx context.Context, stat string) ([]models.ModelRegistryEntry, error) {
	var rows []registryRow
	q := s.db.WithContext(ctx).Omit("artifact")
	if stat != "" {
		q = q.Where("statistic = ?", stat)
	}
	if err := q.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	out := make([]models.ModelRegistryEntry, len(rows))
	for i, row := range rows {
		out[i] = toEntry(row)
	}
	return out, nil
}

func toEntry(row registryRow) models.ModelRegistryEntry {
	e := models.ModelRegistryEntry{
		ID:           row.ID,
		Name:         row.Name,
		Version:      row.Version,
		Statistic:    row.Statistic,
		Algorithm:    row.Algorithm,
		TrainStart:   row.TrainStart,
		TrainEnd:     row.TrainEnd,
		IsProduction: row.IsProduction,
		CreatedAt:    row.CreatedAt,
	}
	_ = json.Unmarshal(row.Hyperparameters, &e.Hyperparameters)
	_ = json.Unmarshal(row.Metrics, &e.Metrics)
	_ = json.Unmarshal(row.FeatureSchema, &e.FeatureSchema)
	return e
}
