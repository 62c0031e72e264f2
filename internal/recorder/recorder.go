// Package recorder mirrors every telemetry update into InfluxDB.
package recorder

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/san-kum/simbridge/internal/cache"
)

const (
	DefaultMeasurement = "plane_state"
	DefaultBatchSize   = 20
)

// PointWriter is the subset of api.WriteAPIBlocking the recorder needs.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Source is the cache side the recorder follows.
type Source interface {
	Wait(ctx context.Context, since uint64) (uint64, error)
	Snapshot() (cache.Snapshot, bool)
}

type Option func(*Recorder)

func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.log = l
		}
	}
}

func WithMeasurement(name string) Option {
	return func(r *Recorder) {
		if name != "" {
			r.measurement = name
		}
	}
}

// WithTags adds constant tags, e.g. the run ID, to every point.
func WithTags(tags map[string]string) Option {
	return func(r *Recorder) { r.tags = tags }
}

func WithBatchSize(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

type Recorder struct {
	src         Source
	w           PointWriter
	log         *slog.Logger
	measurement string
	tags        map[string]string
	batchSize   int

	written atomic.Uint64
	skipped atomic.Uint64
	failed  atomic.Uint64
}

func New(src Source, w PointWriter, opts ...Option) *Recorder {
	r := &Recorder{
		src:         src,
		w:           w,
		log:         slog.Default(),
		measurement: DefaultMeasurement,
		batchSize:   DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewInfluxWriter opens a blocking write API. The returned func closes the
// client.
func NewInfluxWriter(url, token, org, bucket string) (PointWriter, func()) {
	client := influxdb2.NewClient(url, token)
	return client.WriteAPIBlocking(org, bucket), client.Close
}

// Run records updates until ctx is done. Updates that arrive faster than
// the recorder wakes are coalesced; only the latest document is written and
// the rest are counted as skipped.
func (r *Recorder) Run(ctx context.Context) error {
	// Starting from zero writes the current document straight away.
	var since uint64

	batch := make([]*write.Point, 0, r.batchSize)
	defer func() {
		if len(batch) > 0 {
			r.flush(context.WithoutCancel(ctx), batch)
		}
	}()

	for {
		gen, err := r.src.Wait(ctx, since)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}

		snap, ok := r.src.Snapshot()
		if !ok {
			since = gen
			continue
		}
		if snap.Generation > since+1 {
			r.skipped.Add(snap.Generation - since - 1)
		}
		since = snap.Generation

		if p := r.point(snap); p != nil {
			batch = append(batch, p)
		}
		if len(batch) >= r.batchSize {
			r.flush(ctx, batch)
			batch = batch[:0]
		}
	}
}

func (r *Recorder) point(snap cache.Snapshot) *write.Point {
	flat := snap.Doc.Flatten()
	if len(flat) == 0 {
		return nil
	}
	fields := make(map[string]interface{}, len(flat)+1)
	for k, v := range flat {
		fields[k] = v
	}
	fields["generation"] = int64(snap.Generation)
	return influxdb2.NewPoint(r.measurement, r.tags, fields, snap.UpdatedAt)
}

func (r *Recorder) flush(ctx context.Context, batch []*write.Point) {
	if err := r.w.WritePoint(ctx, batch...); err != nil {
		r.failed.Add(uint64(len(batch)))
		r.log.Warn("influx write failed", "points", len(batch), "error", err)
		return
	}
	r.written.Add(uint64(len(batch)))
}

type Stats struct {
	Written uint64
	Skipped uint64
	Failed  uint64
}

func (r *Recorder) Stats() Stats {
	return Stats{Written: r.written.Load(), Skipped: r.skipped.Load(), Failed: r.failed.Load()}
}
