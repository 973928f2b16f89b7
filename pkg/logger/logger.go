package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

var Logger *logrus.Logger

// InitLogger initializes the structured logger with proper configuration
func InitLogger(logLevel string, isDevelopment bool) *logrus.Logger {
	log := logrus.New()

	// Override with environment if not provided
	if logLevel == "" {
		logLevel = os.Getenv("LOG_LEVEL")
		if logLevel == "" {
			if isDevelopment {
				logLevel = "debug"
			} else {
				logLevel = "info"
			}
		}
	}

	if level, err := logrus.ParseLevel(strings.ToLower(logLevel)); err == nil {
		log.SetLevel(level)
	} else {
		log.SetLevel(logrus.InfoLevel)
		log.WithField("invalid_level", logLevel).Warn("Invalid LOG_LEVEL, using INFO")
	}

	if !isDevelopment || strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			ForceColors:     true,
		})
	}

	log.SetOutput(os.Stdout)

	Logger = log

	return log
}

// GetLogger returns the global logger instance
func GetLogger() *logrus.Logger {
	if Logger == nil {
		return InitLogger("info", false)
	}
	return Logger
}

// NewDiscardLogger returns a logger that drops everything. Used by tests and
// the CLI when --quiet is set.
func NewDiscardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// WithService creates a logger with service context
func WithService(serviceName string) *logrus.Entry {
	return GetLogger().WithField("service", serviceName)
}

// WithComponent scopes an existing logger to a component name
func WithComponent(log *logrus.Logger, component string) *logrus.Entry {
	if log == nil {
		log = GetLogger()
	}
	return log.WithField("component", component)
}

// WithCorrelationID tags entry with the request correlation id
func WithCorrelationID(entry *logrus.Entry, correlationID string) *logrus.Entry {
	return orDefault(entry).WithField("correlation_id", correlationID)
}

// WithPlayerContext adds the player, game date and, when set, statistic a
// prediction log line is about.
func WithPlayerContext(entry *logrus.Entry, playerID string, gameDate time.Time, statistic string) *logrus.Entry {
	fields := logrus.Fields{
		"player_id": playerID,
		"game_date": gameDate.Format("2006-01-02"),
	}
	if statistic != "" {
		fields["statistic"] = statistic
	}
	return orDefault(entry).WithFields(fields)
}

// WithSourceContext scopes entry to one data source call
func WithSourceContext(entry *logrus.Entry, source, resource string) *logrus.Entry {
	return orDefault(entry).WithFields(logrus.Fields{
		"source":   source,
		"resource": resource,
	})
}

// WithHTTPContext creates a logger with HTTP request context
func WithHTTPContext(log *logrus.Logger, method, path, userAgent string) *logrus.Entry {
	return WithComponent(log, "http").WithFields(logrus.Fields{
		"http_method":     method,
		"http_path":       path,
		"http_user_agent": userAgent,
	})
}

func orDefault(entry *logrus.Entry) *logrus.Entry {
	if entry == nil {
		return logrus.NewEntry(GetLogger())
	}
	return entry
}
