package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordSweepCountsRemovedSessions(t *testing.T) {
	beforeRuns := testutil.ToFloat64(SweepRuns.WithLabelValues("ok"))
	beforeSwept := testutil.ToFloat64(SessionsSwept)

	RecordSweep("ok", 3)
	RecordSweep("ok", 0)

	if got := testutil.ToFloat64(SweepRuns.WithLabelValues("ok")) - beforeRuns; got != 2 {
		t.Fatalf("expected 2 sweep runs, got %v", got)
	}
	if got := testutil.ToFloat64(SessionsSwept) - beforeSwept; got != 3 {
		t.Fatalf("expected 3 swept sessions, got %v", got)
	}
}

func TestRecordRestoreIncrementsState(t *testing.T) {
	before := testutil.ToFloat64(Restores.WithLabelValues("rolled_back"))
	RecordRestore("rolled_back", 20*time.Millisecond)
	if testutil.ToFloat64(Restores.WithLabelValues("rolled_back")) <= before {
		t.Fatalf("expected restore counter to increment")
	}
}
