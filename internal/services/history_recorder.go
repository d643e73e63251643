package services

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"

	"github.com/temcen/tripwise/internal/config"
	"github.com/temcen/tripwise/pkg/models"
)

// History record outcomes used as metrics labels.
const (
	HistoryWritten = "written"
	HistoryDropped = "dropped"
	HistoryFailed  = "failed"
)

// HistoryRecorder persists emitted recommendations off the request path.
// Users are hashed onto shards and every shard has a single writer, so one
// user's records reach the sink in emission order.
type HistoryRecorder struct {
	sink    HistorySink
	cfg     config.HistoryConfig
	breaker *gobreaker.CircuitBreaker[struct{}]
	metrics *MetricsCollector
	logger  *logrus.Logger

	shards []chan []models.HistoryRecord
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHistoryRecorder(sink HistorySink, cfg config.HistoryConfig, metrics *MetricsCollector, logger *logrus.Logger) *HistoryRecorder {
	if cfg.Shards < 1 {
		cfg.Shards = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	threshold := cfg.Breaker.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &HistoryRecorder{
		sink:    sink,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
		shards:  make([]chan []models.HistoryRecord, cfg.Shards),
		ctx:     ctx,
		cancel:  cancel,
	}

	r.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "history-" + sink.Name(),
		MaxRequests: cfg.Breaker.MaxRequests,
		Interval:    cfg.Breaker.Interval,
		Timeout:     cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsExcluded: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("History sink circuit breaker changed state")
		},
	})

	for i := range r.shards {
		r.shards[i] = make(chan []models.HistoryRecord, cfg.QueueSize)
		r.wg.Add(1)
		go r.worker(r.shards[i])
	}

	return r
}

// Record enqueues one history record per recommendation and returns at once.
// It reports false when the batch was dropped because the user's queue is
// full or the recorder is stopped.
func (r *HistoryRecorder) Record(requestID uuid.UUID, userID string, recs []models.Recommendation) bool {
	if len(recs) == 0 {
		return true
	}

	now := time.Now().UTC()
	batch := make([]models.HistoryRecord, len(recs))
	for i, rec := range recs {
		batch[i] = models.HistoryRecord{
			ID:          uuid.New(),
			RequestID:   requestID,
			Timestamp:   now,
			UserID:      userID,
			ItemID:      rec.ItemID,
			Destination: rec.Destination,
			Score:       rec.Score,
			Rank:        rec.Rank,
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.metrics.RecordHistory(HistoryDropped, len(batch))
		return false
	}

	select {
	case r.shards[r.shardFor(userID)] <- batch:
		return true
	default:
		r.metrics.RecordHistory(HistoryDropped, len(batch))
		r.logger.WithFields(logrus.Fields{
			"user_id":    userID,
			"request_id": requestID,
			"records":    len(batch),
		}).Warn("History queue full, dropping records")
		return false
	}
}

// Stop refuses new records and waits for queued ones to be written. When ctx
// expires first, in-flight retries are abandoned.
func (r *HistoryRecorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	for _, ch := range r.shards {
		close(ch)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return fmt.Errorf("history recorder stopped before draining: %w", ctx.Err())
	}
}

func (r *HistoryRecorder) shardFor(userID string) int {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return int(h.Sum32() % uint32(len(r.shards)))
}

func (r *HistoryRecorder) worker(ch <-chan []models.HistoryRecord) {
	defer r.wg.Done()
	for batch := range ch {
		if err := r.writeWithRetry(batch); err != nil {
			r.metrics.RecordHistory(HistoryFailed, len(batch))
			r.logger.WithError(err).WithFields(logrus.Fields{
				"sink":       r.sink.Name(),
				"user_id":    batch[0].UserID,
				"request_id": batch[0].RequestID,
				"records":    len(batch),
			}).Error("Failed to persist recommendation history")
			continue
		}
		r.metrics.RecordHistory(HistoryWritten, len(batch))
	}
}

// writeWithRetry retries with exponential backoff. An open breaker fails the
// batch immediately.
func (r *HistoryRecorder) writeWithRetry(batch []models.HistoryRecord) error {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.cfg.RetryBackoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-r.ctx.Done():
				return r.ctx.Err()
			case <-time.After(delay):
			}
		}

		_, err := r.breaker.Execute(func() (struct{}, error) {
			ctx, cancel := context.WithTimeout(r.ctx, r.cfg.WriteTimeout)
			defer cancel()
			return struct{}{}, r.sink.Append(ctx, batch)
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("history sink %s unavailable: %w", r.sink.Name(), err)
		}

		lastErr = err
		r.logger.WithError(err).WithFields(logrus.Fields{
			"sink":    r.sink.Name(),
			"attempt": attempt + 1,
		}).Warn("History write failed")
	}
	return fmt.Errorf("history write failed after %d attempts: %w", r.cfg.MaxRetries+1, lastErr)
}
