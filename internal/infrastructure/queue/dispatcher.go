// Package queue delivers status change notifications off the request path.
package queue

import (
	"context"
	"hash/fnv"
	"strconv"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/mobistudy/mobistudy-api/internal/api/metrics"
	"github.com/mobistudy/mobistudy-api/internal/core/ports"
)

const (
	defaultWorkers = 4
	channelBuffer  = 256
)

// NotificationDispatcher routes notices to a fixed set of workers using
// consistent hashing on the user key, so notices for one participant are sent
// in order. Deliveries are rate limited across all workers.
type NotificationDispatcher struct {
	workers []chan ports.StatusChangeNotice
	service ports.NotificationService
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewNotificationDispatcher creates a dispatcher with numWorkers sharded
// workers sending at most perSecond emails per second. If numWorkers <= 0,
// defaultWorkers is used; perSecond <= 0 disables the limit.
func NewNotificationDispatcher(numWorkers int, perSecond float64, service ports.NotificationService, log zerolog.Logger) *NotificationDispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	limit := rate.Inf
	burst := 0
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
		burst = int(perSecond) + 1
	}
	d := &NotificationDispatcher{
		workers: make([]chan ports.StatusChangeNotice, numWorkers),
		service: service,
		limiter: rate.NewLimiter(limit, burst),
		log:     log.With().Str("component", "notifications").Logger(),
	}
	for i := range d.workers {
		d.workers[i] = make(chan ports.StatusChangeNotice, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *NotificationDispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		go d.runWorker(ctx, i, ch)
	}
}

// NotifyStatusChange enqueues a notice without blocking. When the worker's
// buffer is full the notice is dropped and logged.
func (d *NotificationDispatcher) NotifyStatusChange(_ context.Context, notice ports.StatusChangeNotice) {
	idx := d.shardIndex(notice.UserKey)
	select {
	case d.workers[idx] <- notice:
		metrics.NotificationQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
	default:
		metrics.NotificationsTotal.WithLabelValues("dropped").Inc()
		d.log.Warn().
			Str("user_key", notice.UserKey).
			Str("study_key", notice.StudyKey).
			Int("worker_id", idx).
			Msg("notification queue full, notice dropped")
	}
}

// shardIndex maps a user key deterministically to a worker index.
func (d *NotificationDispatcher) shardIndex(userKey string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userKey))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *NotificationDispatcher) runWorker(ctx context.Context, id int, ch <-chan ports.StatusChangeNotice) {
	workerID := strconv.Itoa(id)
	for {
		select {
		case <-ctx.Done():
			return
		case notice, ok := <-ch:
			if !ok {
				return
			}
			metrics.NotificationQueueDepth.WithLabelValues(workerID).Set(float64(len(ch)))
			if err := d.limiter.Wait(ctx); err != nil {
				return
			}
			if err := d.service.Deliver(ctx, notice); err != nil {
				metrics.NotificationsTotal.WithLabelValues("failed").Inc()
				d.log.Error().Err(err).
					Str("user_key", notice.UserKey).
					Str("study_key", notice.StudyKey).
					Int("worker_id", id).
					Msg("status notification failed")
				continue
			}
			metrics.NotificationsTotal.WithLabelValues("sent").Inc()
		}
	}
}
