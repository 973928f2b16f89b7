package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/nba-projections/internal/models"
	"github.com/stitts-dev/nba-projections/pkg/logger"
)

func TestRedisPublisherPublishesSlate(t *testing.T) {
	client, rmock := redismock.NewClientMock()
	pub := NewRedisPublisher(client, "nba:predictions", logger.NewDiscardLogger())
	fixed := time.Date(2025, 1, 7, 12, 0, 0, 0, time.UTC)
	pub.now = func() time.Time { return fixed }

	slate := []*models.PlayerPrediction{{PlayerID: "p1", Name: "One", GameDate: jan(7)}}
	payload, err := json.Marshal(SlateMessage{GameDate: "2025-01-07", Players: 1, Predictions: slate, PublishedAt: fixed})
	require.NoError(t, err)

	rmock.ExpectPublish("nba:predictions", string(payload)).SetVal(2)
	require.NoError(t, pub.PublishSlate(context.Background(), jan(7), slate))
	assert.NoError(t, rmock.ExpectationsWereMet())
}

func TestRedisPublisherReturnsPublishError(t *testing.T) {
	client, rmock := redismock.NewClientMock()
	pub := NewRedisPublisher(client, "nba:predictions", logger.NewDiscardLogger())
	fixed := time.Date(2025, 1, 7, 12, 0, 0, 0, time.UTC)
	pub.now = func() time.Time { return fixed }

	payload, err := json.Marshal(SlateMessage{GameDate: "2025-01-07", Players: 0, PublishedAt: fixed})
	require.NoError(t, err)

	rmock.ExpectPublish("nba:predictions", string(payload)).SetErr(errors.New("connection refused"))
	err = pub.PublishSlate(context.Background(), jan(7), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}
