package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/tara/internal/config"
	"github.com/stemsi/tara/internal/model"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

var violationColumns = []string{"session_id", "user_id", "event_id", "mode", "kind", "reason", "lives_left", "recorded_at"}

// ViolationDB is the part of *pgxpool.Pool the violation worker writes through.
type ViolationDB interface {
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ViolationWorker drains persist_violations_queue into proctor_violations.
type ViolationWorker struct {
	db  ViolationDB
	rdb *redis.Client
	log zerolog.Logger
}

func NewViolationWorker(db ViolationDB, rdb *redis.Client, log zerolog.Logger) *ViolationWorker {
	return &ViolationWorker{
		db:  db,
		rdb: rdb,
		log: log.With().Str("component", "violation_worker").Logger(),
	}
}

func (w *ViolationWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ViolationWorker started")

	buffer := make([]*model.ViolationRecord, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Flush on size or age
		if len(buffer) > 0 && (len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout) {
			w.requeue(ctx, w.flushSafe(ctx, buffer))
			buffer = buffer[:0]
			lastFlushTime = time.Now()
		}

		// 2. Graceful shutdown
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch from Redis. BLPop returns immediately if data exists.
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistViolationsQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // Queue empty, loop back to check the flush timer
			}
			if ctx.Err() != nil {
				continue // Shutdown is handled at the top of the loop
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			sleepCtx(ctx, 3*time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var rec model.ViolationRecord
		if err := json.Unmarshal([]byte(result[1]), &rec); err != nil {
			// Malformed JSON can never succeed. Log and discard.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed violation")
			continue
		}
		buffer = append(buffer, &rec)
	}
}

// flushSafe bulk-inserts batch, falling back to row-by-row inserts. It
// returns the records that could not be written.
func (w *ViolationWorker) flushSafe(ctx context.Context, batch []*model.ViolationRecord) []*model.ViolationRecord {
	err := w.bulkInsert(ctx, batch)
	if err == nil {
		w.log.Debug().Int("count", len(batch)).Msg("Violations persisted")
		return nil
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
	return w.fallbackInsert(ctx, batch)
}

func (w *ViolationWorker) bulkInsert(ctx context.Context, batch []*model.ViolationRecord) error {
	rows := make([][]any, 0, len(batch))
	for _, r := range batch {
		rows = append(rows, violationRow(r))
	}

	_, err := w.db.CopyFrom(ctx, pgx.Identifier{"proctor_violations"}, violationColumns, pgx.CopyFromRows(rows))
	return err
}

func (w *ViolationWorker) fallbackInsert(ctx context.Context, batch []*model.ViolationRecord) []*model.ViolationRecord {
	var failed []*model.ViolationRecord
	for _, r := range batch {
		if r.SessionID == "" || r.Kind == "" {
			w.log.Error().Str("session_id", r.SessionID).Msg("Dropping violation without session or kind")
			continue
		}

		_, err := w.db.Exec(ctx,
			`INSERT INTO proctor_violations (session_id, user_id, event_id, mode, kind, reason, lives_left, recorded_at)
             VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			violationRow(r)...,
		)
		if err != nil {
			w.log.Error().Err(err).Str("session_id", r.SessionID).Msg("Insert failed, requeueing")
			failed = append(failed, r)
		}
	}
	return failed
}

func (w *ViolationWorker) requeue(ctx context.Context, items []*model.ViolationRecord) {
	if len(items) == 0 {
		return
	}

	pipe := w.rdb.Pipeline()
	for _, r := range items {
		data, _ := json.Marshal(r)
		pipe.RPush(ctx, config.WorkerKey.PersistViolationsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue violations. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed violations")
	// Back off so a database outage does not spin the loop.
	sleepCtx(ctx, 2*time.Second)
}

func (w *ViolationWorker) shutdown(buffer []*model.ViolationRecord) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")
	if len(buffer) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	w.requeue(ctx, w.flushSafe(ctx, buffer))
}

func violationRow(r *model.ViolationRecord) []any {
	recordedAt := time.Unix(r.RecordedAt, 0).UTC()
	if r.RecordedAt == 0 {
		recordedAt = time.Now().UTC()
	}
	return []any{r.SessionID, r.UserID, r.EventID, r.Mode, r.Kind, r.Reason, r.LivesLeft, recordedAt}
}

// sleepCtx sleeps for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
