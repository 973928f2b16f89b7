package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/nba-projections/internal/models"
	"github.com/stitts-dev/nba-projections/internal/services"
)

// HealthChecker is satisfied by *database.DB.
type HealthChecker interface {
	HealthCheck() error
}

type BreakerReporter interface {
	BreakerStates() []models.CircuitBreakerState
}

type ModelVersioner interface {
	ModelVersion(stat string) string
}

type JobLister interface {
	Jobs() []services.JobInfo
}

// HealthStatus is the /health response body.
type HealthStatus struct {
	Status    string                       `json:"status"`
	Service   string                       `json:"service"`
	Timestamp time.Time                    `json:"timestamp"`
	Checks    map[string]string            `json:"checks"`
	Breakers  []models.CircuitBreakerState `json:"breakers,omitempty"`
	Models    map[string]string            `json:"models,omitempty"`
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	db         HealthChecker
	breakers   BreakerReporter
	models     ModelVersioner
	statistics []string
	jobs       JobLister
	logger     *logrus.Logger
	now        func() time.Time
}

// NewHealthHandler creates a new health handler. Any dependency may be nil.
func NewHealthHandler(db HealthChecker, breakers BreakerReporter, versions ModelVersioner, statistics []string, jobs JobLister, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{
		db:         db,
		breakers:   breakers,
		models:     versions,
		statistics: statistics,
		jobs:       jobs,
		logger:     logger,
		now:        time.Now,
	}
}

// GetHealth reports storage, data source and model status. A failed
// database is unhealthy; an open breaker or a statistic without a model
// is degraded and still answers 200.
func (h *HealthHandler) GetHealth(c *gin.Context) {
	response := HealthStatus{
		Status:    "ok",
		Service:   "nba-projections",
		Timestamp: h.now().UTC(),
		Checks:    make(map[string]string),
	}

	if h.db != nil {
		if err := h.db.HealthCheck(); err != nil {
			response.Status = "unhealthy"
			response.Checks["database"] = "failed: " + err.Error()
		} else {
			response.Checks["database"] = "ok"
		}
	}

	if h.breakers != nil {
		response.Breakers = h.breakers.BreakerStates()
		for _, b := range response.Breakers {
			if b.State == "open" {
				response.Checks["source:"+b.Source] = "circuit open"
				h.degrade(&response)
			} else {
				response.Checks["source:"+b.Source] = b.State
			}
		}
	}

	if h.models != nil {
		response.Models = make(map[string]string, len(h.statistics))
		for _, stat := range h.statistics {
			v := h.models.ModelVersion(stat)
			response.Models[stat] = v
			if v == "" {
				response.Checks["model:"+stat] = "not loaded"
				h.degrade(&response)
			}
		}
	}

	statusCode := http.StatusOK
	if response.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, response)
}

func (h *HealthHandler) degrade(r *HealthStatus) {
	if r.Status == "ok" {
		r.Status = "degraded"
	}
}

// GetJobs returns scheduled job status
func (h *HealthHandler) GetJobs(c *gin.Context) {
	if h.jobs == nil {
		c.JSON(http.StatusOK, gin.H{"jobs": []services.JobInfo{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": h.jobs.Jobs()})
}
