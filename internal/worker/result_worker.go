package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/tara/internal/config"
	"github.com/stemsi/tara/internal/model"
	"github.com/stemsi/tara/internal/service"
)

// ResultSubmitter delivers a result to the Results API.
type ResultSubmitter interface {
	Submit(ctx context.Context, payload *model.ResultPayload) (*model.ResultReceipt, error)
}

// ResultWorker consumes pending_results_queue and retries each result
// against the Results API until it is accepted or rejected for good.
type ResultWorker struct {
	rdb        *redis.Client
	submitter  ResultSubmitter
	retryDelay time.Duration
	log        zerolog.Logger
}

// NewResultWorker creates a new ResultWorker.
func NewResultWorker(rdb *redis.Client, submitter ResultSubmitter, retryDelay time.Duration, log zerolog.Logger) *ResultWorker {
	return &ResultWorker{
		rdb:        rdb,
		submitter:  submitter,
		retryDelay: retryDelay,
		log:        log.With().Str("component", "result_worker").Logger(),
	}
}

// outcome is what happens to a queued result after one delivery attempt.
type outcome int

const (
	delivered outcome = iota
	retryLater
	rejected
)

// Start begins the infinite worker loop. Call in a goroutine.
func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *ResultWorker) processNext(ctx context.Context) {
	// BLPop blocks until an item is available or timeout.
	result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PendingResultsQueue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
			sleepCtx(ctx, 3*time.Second)
		}
		return
	}
	if len(result) < 2 {
		return
	}

	raw := result[1]
	switch w.deliver(ctx, raw) {
	case retryLater:
		// Push back to the tail so other results are not held up.
		if err := w.rdb.RPush(context.WithoutCancel(ctx), config.WorkerKey.PendingResultsQueue, raw).Err(); err != nil {
			w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue pending result. Data loss occurred.")
		}
		sleepCtx(ctx, w.retryDelay)
	case rejected:
		if err := w.rdb.RPush(context.WithoutCancel(ctx), config.WorkerKey.FailedResultsQueue, raw).Err(); err != nil {
			w.log.Error().Err(err).Msg("Failed to park rejected result")
		}
	}
}

// deliver makes one delivery attempt for a queued payload.
func (w *ResultWorker) deliver(ctx context.Context, raw string) outcome {
	var payload model.ResultPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		w.log.Error().Err(err).Msg("Malformed pending result")
		return rejected
	}

	log := w.log.With().Str("session_id", payload.SessionID).Str("user_id", payload.UserID).Logger()

	receipt, err := w.submitter.Submit(ctx, &payload)
	if err == nil {
		log.Info().Str("result_id", receipt.ID).Msg("Queued result delivered")
		return delivered
	}

	var apiErr *service.APIError
	if errors.As(err, &apiErr) && !apiErr.Retryable() {
		log.Error().Err(err).Msg("Results API rejected queued result")
		return rejected
	}
	log.Warn().Err(err).Msg("Delivery failed, will retry")
	return retryLater
}
