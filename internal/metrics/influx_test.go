package metrics_test

import (
	"context"
	"testing"
	"time"

	"github.com/aniket1251/opd-token-allocation-engine/internal/metrics"
)

func TestNoopSinkSatisfiesSinkAndDoesNotPanic(t *testing.T) {
	var s metrics.Sink = metrics.NoopSink{}
	s.RecordOperation(context.Background(), "createToken", time.Millisecond, "ok")
	s.RecordOccupancy(context.Background(), "doctor-1", "05-03-2026", 2, 5)
	s.Close()
}
