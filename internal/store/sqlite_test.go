package store

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/redmozaic77-design/Dashboard-IOT/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	st, err := NewSQLiteStore(slog.Default(), filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestAppendAndBucketedHistory(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// Two samples 10s apart, on a 20s-aligned base so both bucket widths
	// are predictable.
	base := (time.Now().Unix()/20)*20 - 100

	if err := st.Append(ctx, base, model.Snapshot{"FLOW_WTP3": 5.0}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := st.Append(ctx, base+10, model.Snapshot{"FLOW_WTP3": 7.0}); err != nil {
		t.Fatalf("append: %v", err)
	}

	points, err := st.History(ctx, "FLOW_WTP3", time.Hour, 10*time.Second, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 distinct buckets, got %d", len(points))
	}
	if points[0].Ts != base || points[0].Value != 5.0 {
		t.Fatalf("unexpected first bucket: %+v", points[0])
	}
	if points[1].Ts != base+10 || points[1].Value != 7.0 {
		t.Fatalf("unexpected second bucket: %+v", points[1])
	}

	points, err = st.History(ctx, "FLOW_WTP3", time.Hour, 20*time.Second, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("expected 1 averaged bucket, got %d", len(points))
	}
	if points[0].Ts != base || points[0].Value != 6.0 {
		t.Fatalf("expected averaged bucket {%d 6.0}, got %+v", base, points[0])
	}
}

func TestHistoryAscendingAndIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	base := (time.Now().Unix()/60)*60 - 600
	for i := int64(0); i < 5; i++ {
		if err := st.Append(ctx, base+i*60, model.Snapshot{"PRESSURE_DST": float64(i)}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	first, err := st.History(ctx, "PRESSURE_DST", time.Hour, time.Minute, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	second, err := st.History(ctx, "PRESSURE_DST", time.Hour, time.Minute, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}

	if len(first) != 5 || len(second) != 5 {
		t.Fatalf("expected 5 buckets both times, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("history not idempotent at %d: %+v vs %+v", i, first[i], second[i])
		}
		if i > 0 && first[i].Ts <= first[i-1].Ts {
			t.Fatalf("buckets not strictly ascending at %d", i)
		}
	}
}

func TestHistoryLimitKeepsNewest(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	base := (time.Now().Unix()/60)*60 - 600
	for i := int64(0); i < 5; i++ {
		if err := st.Append(ctx, base+i*60, model.Snapshot{"FLOW_CIJERUK": float64(i)}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	points, err := st.History(ctx, "FLOW_CIJERUK", time.Hour, time.Minute, 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected limit of 2 buckets, got %d", len(points))
	}
	if points[0].Value != 3 || points[1].Value != 4 {
		t.Fatalf("limit must keep the most recent buckets, got %+v", points)
	}
}

func TestHistoryUnknownKeyIsEmpty(t *testing.T) {
	st := newTestStore(t)

	points, err := st.History(context.Background(), "NO_SUCH_KEY", time.Hour, time.Minute, 0)
	if err != nil {
		t.Fatalf("unknown key must not error: %v", err)
	}
	if len(points) != 0 {
		t.Fatalf("expected empty result, got %d points", len(points))
	}
}

func TestAppendWritesOneRowPerKey(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	snap := model.DefaultSnapshot()
	if err := st.Append(ctx, time.Now().Unix(), snap); err != nil {
		t.Fatalf("append: %v", err)
	}

	count, err := st.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != int64(len(snap)) {
		t.Fatalf("expected %d rows, got %d", len(snap), count)
	}
}
