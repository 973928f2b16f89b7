package ingestion

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/nba-projections/internal/models"
)

// Report summarises one ingestion batch.
type Report struct {
	Received int      `json:"received"`
	Accepted int      `json:"accepted"`
	Rejected int      `json:"rejected"`
	Warnings int      `json:"warnings"`
	Errors   []string `json:"errors,omitempty"`

	// Lines holds the accepted rows as written.
	Lines []models.GameStatLine `json:"-"`
}

// Ingestor validates raw lines and writes the accepted ones. Rejected rows
// never reach the store.
type Ingestor struct {
	validator *Validator
	store     *Store
	logger    *logrus.Entry
}

func NewIngestor(store *Store, logger *logrus.Logger) *Ingestor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Ingestor{
		validator: NewValidator(),
		store:     store,
		logger:    logger.WithField("component", "ingestor"),
	}
}

func (i *Ingestor) Ingest(ctx context.Context, lines []models.GameStatLine) (Report, error) {
	report := Report{Received: len(lines)}
	accepted := make([]models.GameStatLine, 0, len(lines))

	for _, line := range lines {
		warnings, err := i.validator.Validate(&line)
		if err != nil {
			var verr *models.ValidationError
			if !errors.As(err, &verr) {
				return report, err
			}
			report.Rejected++
			report.Errors = append(report.Errors, verr.Error())
			i.logger.WithFields(logrus.Fields{
				"player_id": verr.PlayerID,
				"game_id":   verr.GameID,
				"problems":  verr.Problems,
			}).Warn("Rejected game stat line")
			continue
		}
		if len(warnings) > 0 {
			report.Warnings += len(warnings)
			i.logger.WithFields(logrus.Fields{
				"player_id": line.PlayerID,
				"game_id":   line.GameID,
				"warnings":  warnings,
			}).Debug("Game stat line accepted with warnings")
		}
		accepted = append(accepted, line)
	}

	if err := i.store.Upsert(ctx, accepted); err != nil {
		return report, err
	}
	report.Accepted = len(accepted)
	report.Lines = accepted

	i.logger.WithFields(logrus.Fields{
		"received": report.Received,
		"accepted": report.Accepted,
		"rejected": report.Rejected,
	}).Info("Ingestion batch complete")
	return report, nil
}
