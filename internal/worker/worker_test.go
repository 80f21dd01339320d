package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stemsi/tara/internal/model"
	"github.com/stemsi/tara/internal/service"
	"github.com/stretchr/testify/require"
)

type fakeViolationDB struct {
	copyErr  error
	copied   [][]any
	execErrs map[string]error
	inserted []string
}

func (f *fakeViolationDB) CopyFrom(_ context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error) {
	if f.copyErr != nil {
		return 0, f.copyErr
	}
	var n int64
	for src.Next() {
		values, err := src.Values()
		if err != nil {
			return n, err
		}
		f.copied = append(f.copied, values)
		n++
	}
	return n, nil
}

func (f *fakeViolationDB) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	session := args[0].(string)
	if err := f.execErrs[session]; err != nil {
		return pgconn.CommandTag{}, err
	}
	f.inserted = append(f.inserted, session)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func records(ids ...string) []*model.ViolationRecord {
	out := make([]*model.ViolationRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, &model.ViolationRecord{
			SessionID:  id,
			UserID:     "u-1",
			Mode:       "mcq",
			Kind:       "TAB_HIDDEN",
			Reason:     "you switched tabs",
			LivesLeft:  4,
			RecordedAt: 1700000000,
		})
	}
	return out
}

func TestFlushBulkInsert(t *testing.T) {
	db := &fakeViolationDB{}
	w := NewViolationWorker(db, nil, zerolog.Nop())

	failed := w.flushSafe(context.Background(), records("s-1", "s-2"))
	require.Empty(t, failed)
	require.Len(t, db.copied, 2)
	require.Equal(t, "s-1", db.copied[0][0])
	require.Equal(t, time.Unix(1700000000, 0).UTC(), db.copied[0][7])
}

func TestFlushFallsBackRowByRow(t *testing.T) {
	db := &fakeViolationDB{
		copyErr:  errors.New("copy failed"),
		execErrs: map[string]error{"s-2": errors.New("connection reset")},
	}
	w := NewViolationWorker(db, nil, zerolog.Nop())

	batch := records("s-1", "s-2", "s-3")
	batch = append(batch, &model.ViolationRecord{Kind: "TAB_HIDDEN"}) // no session: dropped

	failed := w.flushSafe(context.Background(), batch)
	require.Equal(t, []string{"s-1", "s-3"}, db.inserted)
	require.Len(t, failed, 1)
	require.Equal(t, "s-2", failed[0].SessionID)
}

func TestViolationRowDefaultsTimestamp(t *testing.T) {
	row := violationRow(&model.ViolationRecord{SessionID: "s"})
	require.WithinDuration(t, time.Now(), row[7].(time.Time), time.Minute)
}

type fakeResultSubmitter struct {
	err error
	got *model.ResultPayload
}

func (f *fakeResultSubmitter) Submit(_ context.Context, p *model.ResultPayload) (*model.ResultReceipt, error) {
	f.got = p
	if f.err != nil {
		return nil, f.err
	}
	return &model.ResultReceipt{ID: "res-1"}, nil
}

func TestDeliverOutcomes(t *testing.T) {
	raw, err := json.Marshal(&model.ResultPayload{SessionID: "s-1", AutoSubmitted: true, SubmitReason: "timer"})
	require.NoError(t, err)

	cases := []struct {
		name string
		err  error
		raw  string
		want outcome
	}{
		{"accepted", nil, string(raw), delivered},
		{"server error", &service.APIError{Status: 503, Message: "down"}, string(raw), retryLater},
		{"rate limited", &service.APIError{Status: 429, Message: "slow down"}, string(raw), retryLater},
		{"network", errors.New("dial tcp: refused"), string(raw), retryLater},
		{"rejected", &service.APIError{Status: 422, Message: "bad payload"}, string(raw), rejected},
		{"malformed", nil, "{not json", rejected},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sub := &fakeResultSubmitter{err: tc.err}
			w := NewResultWorker(nil, sub, time.Millisecond, zerolog.Nop())
			require.Equal(t, tc.want, w.deliver(context.Background(), tc.raw))
			if tc.name != "malformed" {
				require.Equal(t, "s-1", sub.got.SessionID)
				require.True(t, sub.got.AutoSubmitted)
			}
		})
	}
}
