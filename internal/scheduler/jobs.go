package scheduler

import (
	"github.com/rs/zerolog"

	"github.com/dmelo/carteira/internal/clientdata"
	"github.com/dmelo/carteira/internal/queue"
)

// RefreshPricesJob enqueues a full price refresh. The queue worker does the
// actual fetching, so the job itself returns immediately.
type RefreshPricesJob struct {
	queue *queue.Manager
}

// NewRefreshPricesJob creates the periodic price refresh job.
func NewRefreshPricesJob(q *queue.Manager) *RefreshPricesJob {
	return &RefreshPricesJob{queue: q}
}

func (j *RefreshPricesJob) Name() string { return "refresh_prices" }

func (j *RefreshPricesJob) Run() error {
	j.queue.EnqueueRefreshAll()
	return nil
}

// PurgeCacheJob drops expired rows from the price cache.
type PurgeCacheJob struct {
	cache *clientdata.Repository
	log   zerolog.Logger
}

// NewPurgeCacheJob creates the cache cleanup job.
func NewPurgeCacheJob(cache *clientdata.Repository, log zerolog.Logger) *PurgeCacheJob {
	return &PurgeCacheJob{
		cache: cache,
		log:   log.With().Str("job", "purge_cache").Logger(),
	}
}

func (j *PurgeCacheJob) Name() string { return "purge_cache" }

func (j *PurgeCacheJob) Run() error {
	n, err := j.cache.Purge()
	if err != nil {
		return err
	}
	if n > 0 {
		j.log.Debug().Int64("purged", n).Msg("Expired cache entries removed")
	}
	return nil
}
