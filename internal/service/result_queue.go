package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/tara/internal/config"
	"github.com/stemsi/tara/internal/model"
)

// ResultQueue is the outbox for results the Results API could not take.
// worker.ResultWorker drains it.
type ResultQueue struct {
	rdb *redis.Client
}

// NewResultQueue creates a new ResultQueue.
func NewResultQueue(rdb *redis.Client) *ResultQueue {
	return &ResultQueue{rdb: rdb}
}

// Enqueue appends payload to the pending results queue.
func (q *ResultQueue) Enqueue(ctx context.Context, payload *model.ResultPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal pending result: %w", err)
	}
	if err := q.rdb.RPush(ctx, config.WorkerKey.PendingResultsQueue, data).Err(); err != nil {
		return fmt.Errorf("queue pending result: %w", err)
	}
	return nil
}
