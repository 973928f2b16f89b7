package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/stitts-dev/nba-projections/internal/models"
	"github.com/stitts-dev/nba-projections/pkg/logger"
)

// SlateMessage is the payload published for a computed daily slate.
type SlateMessage struct {
	GameDate    string                     `json:"game_date"`
	Players     int                        `json:"players"`
	Predictions []*models.PlayerPrediction `json:"predictions"`
	PublishedAt time.Time                  `json:"published_at"`
}

// RedisPublisher PUBLISHes slates on a redis channel. A breaker stops
// publishing for a while after repeated failures so a down redis does not
// slow every daily request.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	breaker *gobreaker.CircuitBreaker
	logger  *logrus.Entry
	now     func() time.Time
}

func NewRedisPublisher(client *redis.Client, channel string, log *logrus.Logger) *RedisPublisher {
	entry := logger.WithComponent(log, "slate_publisher").WithField("channel", channel)
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "slate-publisher",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			entry.WithFields(logrus.Fields{
				"from_state": from.String(),
				"to_state":   to.String(),
			}).Warn("Slate publisher circuit breaker state changed")
		},
	})
	return &RedisPublisher{
		client:  client,
		channel: channel,
		breaker: cb,
		logger:  entry,
		now:     time.Now,
	}
}

func (p *RedisPublisher) PublishSlate(ctx context.Context, date time.Time, slate []*models.PlayerPrediction) error {
	payload, err := json.Marshal(SlateMessage{
		GameDate:    date.Format(dateLayout),
		Players:     len(slate),
		Predictions: slate,
		PublishedAt: p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode slate: %w", err)
	}

	receivers, err := p.breaker.Execute(func() (interface{}, error) {
		return p.client.Publish(ctx, p.channel, string(payload)).Result()
	})
	if err != nil {
		return fmt.Errorf("failed to publish slate: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"game_date": date.Format(dateLayout),
		"players":   len(slate),
		"receivers": receivers,
	}).Debug("Published daily slate")
	return nil
}
