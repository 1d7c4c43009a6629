// Package metrics records operation latency and slot occupancy to InfluxDB.
// This is a newly wired teacher dependency: influxdb-client-go/v2 was
// required in the teacher's go.mod but never imported anywhere in its
// source tree. Shaped after internal/audit's one-write-per-event pattern,
// adapted to time-series points instead of append-only business events.
package metrics

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// Sink writes operational time-series points. NoopSink is the Sink used
// when metrics collection is disabled.
type Sink interface {
	RecordOperation(ctx context.Context, operation string, duration time.Duration, outcome string)
	RecordOccupancy(ctx context.Context, doctorID string, date string, allocated, capacity int)
	Close()
}

// InfluxSink writes points via the non-blocking write API, matching the
// teacher's "publish and move on" treatment of side-channel telemetry.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	org      string
	bucket   string
}

func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	client := influxdb2.NewClient(url, token)
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPI(org, bucket),
		org:      org,
		bucket:   bucket,
	}
}

func (s *InfluxSink) RecordOperation(ctx context.Context, operation string, duration time.Duration, outcome string) {
	p := influxdb2.NewPoint(
		"opd_operation",
		map[string]string{"operation": operation, "outcome": outcome},
		map[string]interface{}{"duration_ms": duration.Milliseconds()},
		time.Now(),
	)
	s.writeAPI.WritePoint(p)
}

func (s *InfluxSink) RecordOccupancy(ctx context.Context, doctorID string, date string, allocated, capacity int) {
	p := influxdb2.NewPoint(
		"opd_slot_occupancy",
		map[string]string{"doctor_id": doctorID, "date": date},
		map[string]interface{}{"allocated": allocated, "capacity": capacity},
		time.Now(),
	)
	s.writeAPI.WritePoint(p)
}

func (s *InfluxSink) Close() {
	s.writeAPI.Flush()
	s.client.Close()
}

// NoopSink discards every recording, used in tests and when metrics are
// disabled via configuration.
type NoopSink struct{}

func (NoopSink) RecordOperation(ctx context.Context, operation string, duration time.Duration, outcome string) {
}
func (NoopSink) RecordOccupancy(ctx context.Context, doctorID string, date string, allocated, capacity int) {
}
func (NoopSink) Close() {}
