package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/tara/internal/config"
	"github.com/stemsi/tara/internal/model"
)

// ViolationRecorder queues violation records for worker.ViolationWorker.
type ViolationRecorder struct {
	rdb *redis.Client
}

// NewViolationRecorder creates a new ViolationRecorder.
func NewViolationRecorder(rdb *redis.Client) *ViolationRecorder {
	return &ViolationRecorder{rdb: rdb}
}

// Record pushes rec onto the violations queue.
func (r *ViolationRecorder) Record(ctx context.Context, rec model.ViolationRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal violation: %w", err)
	}
	if err := r.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, data).Err(); err != nil {
		return fmt.Errorf("queue violation: %w", err)
	}
	return nil
}
