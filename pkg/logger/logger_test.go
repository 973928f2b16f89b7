package logger

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogger(t *testing.T) {
	tests := []struct {
		name          string
		logLevel      string
		isDevelopment bool
		expectedLevel logrus.Level
		expectJSON    bool
	}{
		{
			name:          "production defaults to json",
			logLevel:      "info",
			isDevelopment: false,
			expectedLevel: logrus.InfoLevel,
			expectJSON:    true,
		},
		{
			name:          "development uses text",
			logLevel:      "debug",
			isDevelopment: true,
			expectedLevel: logrus.DebugLevel,
			expectJSON:    false,
		},
		{
			name:          "invalid level defaults to info",
			logLevel:      "loud",
			isDevelopment: false,
			expectedLevel: logrus.InfoLevel,
			expectJSON:    true,
		},
		{
			name:          "case insensitive level",
			logLevel:      "WARN",
			isDevelopment: false,
			expectedLevel: logrus.WarnLevel,
			expectJSON:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LOG_FORMAT", "")
			Logger = nil

			log := InitLogger(tt.logLevel, tt.isDevelopment)
			require.NotNil(t, log)
			assert.Equal(t, tt.expectedLevel, log.GetLevel())

			_, isJSON := log.Formatter.(*logrus.JSONFormatter)
			assert.Equal(t, tt.expectJSON, isJSON)
			assert.Same(t, log, GetLogger())
		})
	}
}

func TestWithPlayerContext(t *testing.T) {
	Logger = nil
	log := InitLogger("debug", false)
	var buf bytes.Buffer
	log.SetOutput(&buf)

	WithPlayerContext(WithComponent(log, "prediction_service"), "203999", time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), "points").Info("predicted")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "203999", entry["player_id"])
	assert.Equal(t, "2025-01-15", entry["game_date"])
	assert.Equal(t, "points", entry["statistic"])
	assert.Equal(t, "prediction_service", entry["component"])
	assert.Equal(t, "predicted", entry["msg"])

	noStat := WithPlayerContext(nil, "203999", time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), "")
	assert.NotContains(t, noStat.Data, "statistic")
}

func TestRequestAndSourceContext(t *testing.T) {
	log := NewDiscardLogger()

	req := WithCorrelationID(WithHTTPContext(log, "GET", "/api/v1/players/1", "curl/8.0"), "abc-123")
	assert.Equal(t, "http", req.Data["component"])
	assert.Equal(t, "GET", req.Data["http_method"])
	assert.Equal(t, "/api/v1/players/1", req.Data["http_path"])
	assert.Equal(t, "curl/8.0", req.Data["http_user_agent"])
	assert.Equal(t, "abc-123", req.Data["correlation_id"])
	assert.Same(t, log, req.Logger)

	src := WithSourceContext(WithComponent(log, "data_client"), "primary", "game_log")
	assert.Equal(t, "data_client", src.Data["component"])
	assert.Equal(t, "primary", src.Data["source"])
	assert.Equal(t, "game_log", src.Data["resource"])
}

func TestWithComponentNilLogger(t *testing.T) {
	Logger = nil
	entry := WithComponent(nil, "feature_engineer")
	assert.Equal(t, "feature_engineer", entry.Data["component"])
}
