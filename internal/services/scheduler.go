package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/nba-projections/pkg/logger"
	"github.com/stitts-dev/nba-projections/pkg/metrics"
)

// JobInfo describes one scheduled job and its run history.
type JobInfo struct {
	ID         string        `json:"id"`
	Schedule   string        `json:"schedule"`
	LastRun    time.Time     `json:"last_run"`
	NextRun    time.Time     `json:"next_run"`
	Status     string        `json:"status"`
	RunCount   int           `json:"run_count"`
	ErrorCount int           `json:"error_count"`
	LastError  string        `json:"last_error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Job is the work a scheduled entry runs.
type Job func(ctx context.Context) error

// Schedules holds cron expressions; an empty expression disables the job.
type Schedules struct {
	Ingest     string
	Warm       string
	Retrain    string
	Population string
}

// Scheduler runs the periodic jobs: nightly ingestion, prediction cache
// warming, model retraining and valuation population refresh.
type Scheduler struct {
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *logrus.Entry
	metrics *metrics.Manager
	now     func() time.Time

	mu      sync.RWMutex
	jobs    map[string]JobInfo
	entries map[string]cron.EntryID
	running bool
}

func NewScheduler(log *logrus.Logger, m *metrics.Manager) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	entry := logger.WithComponent(log, "scheduler")
	return &Scheduler{
		cron:    cron.New(cron.WithLogger(cron.VerbosePrintfLogger(entry)), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		ctx:     ctx,
		cancel:  cancel,
		logger:  entry,
		metrics: m,
		now:     time.Now,
		jobs:    make(map[string]JobInfo),
		entries: make(map[string]cron.EntryID),
	}
}

// RegisterDefaults wires the standard jobs to their services. Nil services
// and empty schedules are skipped.
func (s *Scheduler) RegisterDefaults(sched Schedules, ingest *IngestionService, predictions *PredictionService, training *TrainingService, ranking *RankingService) error {
	if ingest != nil && sched.Ingest != "" {
		err := s.AddJob("ingest", sched.Ingest, func(ctx context.Context) error {
			_, err := ingest.IngestDate(ctx, s.now().AddDate(0, 0, -1))
			return err
		})
		if err != nil {
			return err
		}
	}
	if predictions != nil && sched.Warm != "" {
		err := s.AddJob("warm_predictions", sched.Warm, func(ctx context.Context) error {
			_, err := predictions.GetDaily(ctx, s.now(), DailyFilters{})
			return err
		})
		if err != nil {
			return err
		}
	}
	if training != nil && sched.Retrain != "" {
		err := s.AddJob("retrain", sched.Retrain, func(ctx context.Context) error {
			_, err := training.Retrain(ctx, s.now())
			return err
		})
		if err != nil {
			return err
		}
	}
	if ranking != nil && sched.Population != "" {
		if err := s.AddJob("population_refresh", sched.Population, ranking.RefreshPopulation); err != nil {
			return err
		}
	}
	return nil
}

// AddJob schedules job under id.
func (s *Scheduler) AddJob(id, schedule string, job Job) error {
	entryID, err := s.cron.AddFunc(schedule, func() { s.RunJob(id, job) })
	if err != nil {
		return fmt.Errorf("failed to add job %s: %w", id, err)
	}

	s.mu.Lock()
	s.entries[id] = entryID
	s.jobs[id] = JobInfo{
		ID:       id,
		Schedule: schedule,
		NextRun:  s.cron.Entry(entryID).Next,
		Status:   "scheduled",
	}
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"job_id":   id,
		"schedule": schedule,
	}).Info("Scheduled job added")
	return nil
}

// RunJob executes job now with panic recovery and records the outcome.
func (s *Scheduler) RunJob(id string, job Job) {
	s.mu.Lock()
	info := s.jobs[id]
	info.ID = id
	info.Status = "running"
	info.LastRun = s.now()
	info.RunCount++
	s.jobs[id] = info
	s.mu.Unlock()

	log := s.logger.WithFields(logrus.Fields{"job_id": id, "run_count": info.RunCount})
	log.Info("Starting scheduled job")
	start := time.Now()

	var runErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				runErr = fmt.Errorf("panic: %v", r)
			}
		}()
		runErr = job(s.ctx)
	}()

	duration := time.Since(start)
	status := "completed"
	if runErr != nil {
		status = "failed"
		log.WithError(runErr).WithField("duration", duration).Error("Scheduled job failed")
	} else {
		log.WithField("duration", duration).Info("Scheduled job completed")
	}
	s.metrics.RecordJobRun(id, status)
	s.finish(id, status, runErr, duration)
}

func (s *Scheduler) finish(id, status string, err error, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := s.jobs[id]
	info.Status = status
	info.Duration = duration
	if err != nil {
		info.ErrorCount++
		info.LastError = err.Error()
	}
	if entryID, ok := s.entries[id]; ok {
		info.NextRun = s.cron.Entry(entryID).Next
	}
	s.jobs[id] = info
}

func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	s.cron.Start()
	s.running = true
	s.logger.WithField("jobs", len(s.jobs)).Info("Scheduler started")
	return nil
}

// Stop cancels running jobs and waits for them to return or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out with jobs still running")
	}
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// Jobs returns job status sorted by id.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
