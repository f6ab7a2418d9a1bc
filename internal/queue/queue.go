// Package queue runs asynchronous background jobs, currently price refreshes.
// Enqueueing is always non-blocking: when the buffer is full the job is
// dropped and logged, never allowed to stall a request path.
package queue

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dmelo/carteira/internal/modules/assets"
)

// JobType identifies the work a job carries.
type JobType string

const (
	JobRefreshPrice JobType = "refresh_price"
	JobRefreshAll   JobType = "refresh_all"
)

// Job is one unit of background work.
type Job struct {
	ID        uuid.UUID
	Type      JobType
	Ticker    string
	CreatedAt time.Time
}

// Manager owns the job buffer and the single worker goroutine.
type Manager struct {
	jobs   chan Job
	assets *assets.Service
	log    zerolog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewManager creates a queue manager with the given buffer size.
func NewManager(assetsSvc *assets.Service, size int, log zerolog.Logger) *Manager {
	return &Manager{
		jobs:   make(chan Job, size),
		assets: assetsSvc,
		log:    log.With().Str("component", "queue").Logger(),
	}
}

// Start launches the worker goroutine.
func (m *Manager) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for job := range m.jobs {
			m.process(job)
		}
	}()
	m.log.Info().Msg("Queue worker started")
}

// Stop rejects further jobs, drains the buffer and waits for the worker.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.jobs)
	m.mu.Unlock()

	m.wg.Wait()
	m.log.Info().Msg("Queue worker stopped")
}

// EnqueueRefresh schedules a price refresh for one ticker.
func (m *Manager) EnqueueRefresh(ticker string) {
	m.enqueue(Job{
		ID:        uuid.New(),
		Type:      JobRefreshPrice,
		Ticker:    ticker,
		CreatedAt: time.Now(),
	})
}

// EnqueueRefreshAll schedules a refresh of every asset with an open position.
func (m *Manager) EnqueueRefreshAll() {
	m.enqueue(Job{
		ID:        uuid.New(),
		Type:      JobRefreshAll,
		CreatedAt: time.Now(),
	})
}

func (m *Manager) enqueue(job Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		m.log.Warn().Str("job_id", job.ID.String()).Str("type", string(job.Type)).Msg("Queue stopped, job dropped")
		return
	}
	select {
	case m.jobs <- job:
		m.log.Debug().
			Str("job_id", job.ID.String()).
			Str("type", string(job.Type)).
			Str("ticker", job.Ticker).
			Msg("Job enqueued")
	default:
		m.log.Warn().
			Str("job_id", job.ID.String()).
			Str("type", string(job.Type)).
			Str("ticker", job.Ticker).
			Msg("Queue full, job dropped")
	}
}

func (m *Manager) process(job Job) {
	start := time.Now()
	switch job.Type {
	case JobRefreshPrice:
		m.assets.RefreshPrice(job.Ticker)
	case JobRefreshAll:
		m.assets.RefreshAllPrices()
	default:
		m.log.Error().Str("type", string(job.Type)).Msg("Unknown job type")
		return
	}
	m.log.Debug().
		Str("job_id", job.ID.String()).
		Str("type", string(job.Type)).
		Dur("elapsed", time.Since(start)).
		Msg("Job processed")
}
