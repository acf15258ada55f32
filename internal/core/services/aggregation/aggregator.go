package aggregation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/lcalzada-xor/meshmon/internal/core/domain"
	"github.com/lcalzada-xor/meshmon/internal/core/ports"
	"github.com/lcalzada-xor/meshmon/internal/telemetry"
)

// Aggregator rolls metric records up into the next coarser granularity.
//
// Only buckets whose window has fully elapsed by wall clock are touched, so
// a device that stops reporting mid-bucket still gets that bucket closed on
// the next run after it ends.
type Aggregator struct {
	store  ports.MetricStore
	locker ports.Locker
	now    func() time.Time
	logger *slog.Logger
}

// NewAggregator creates an aggregator. A nil clock uses time.Now and a nil
// logger uses slog.Default.
func NewAggregator(store ports.MetricStore, locker ports.Locker, now func() time.Time, logger *slog.Logger) *Aggregator {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{store: store, locker: locker, now: now, logger: logger}
}

// Report summarizes one Aggregate run.
type Report struct {
	Kind    domain.MetricKind
	Target  domain.Granularity
	Buckets int
	Merged  int
	Failed  int
	Elapsed time.Duration
}

// bucket is the set of source records of one device falling in [start, start+width).
type bucket struct {
	start   time.Time
	records []domain.MetricRecord
}

// Aggregate merges every completed bucket of kind at target's source
// granularity. Each bucket is committed on its own; a failing bucket is
// logged and skipped.
func (a *Aggregator) Aggregate(ctx context.Context, kind domain.MetricKind, target domain.Granularity) (Report, error) {
	report := Report{Kind: kind, Target: target}
	if !kind.IsValid() {
		return report, fmt.Errorf("%w: %q", domain.ErrInvalidMetricKind, kind)
	}
	source, ok := target.Prev()
	if !ok {
		return report, fmt.Errorf("%w: %s has no finer granularity", domain.ErrInvalidGranularityKey, target)
	}

	ctx, span := otel.Tracer("aggregation-service").Start(ctx, "Aggregate")
	defer span.End()
	span.SetAttributes(attribute.String("metric.kind", string(kind)))
	span.SetAttributes(attribute.String("metric.granularity", target.String()))

	started := time.Now()
	unlock, err := a.lockPartitions(ctx, kind, source, target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lock")
		return report, err
	}
	defer unlock()

	records, err := a.store.Partition(ctx, kind, source)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load partition")
		return report, fmt.Errorf("load %s %s records: %w", kind, source, err)
	}

	horizon := target.RoundDown(a.now())
	labels := []string{string(kind), target.String()}

	for _, device := range groupByDevice(records) {
		for _, b := range bucketize(target, device) {
			if !b.start.Before(horizon) {
				continue
			}
			if err := ctx.Err(); err != nil {
				return report, err
			}

			merged, err := a.commitBucket(ctx, kind, target, b)
			if err != nil {
				report.Failed++
				reason := "storage"
				if errors.Is(err, domain.ErrAggregationConsistency) {
					reason = "consistency"
				}
				telemetry.AggregationErrors.WithLabelValues(string(kind), target.String(), reason).Inc()
				a.logger.Error("Bucket aggregation failed",
					"kind", kind,
					"granularity", target.String(),
					"bucket_start", b.start,
					"bucket_end", b.start.Add(target.Width()),
					"device", b.records[0].DeviceID,
					"error", err,
				)
				continue
			}

			report.Buckets++
			report.Merged += merged
			telemetry.BucketsAggregated.WithLabelValues(labels...).Inc()
			telemetry.RecordsMerged.WithLabelValues(labels...).Add(float64(merged))
		}
	}

	report.Elapsed = time.Since(started)
	span.SetAttributes(attribute.Int("aggregation.buckets", report.Buckets))
	if report.Failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d buckets failed", report.Failed))
	}
	return report, nil
}

// AggregateAll runs Aggregate for every metric kind.
func (a *Aggregator) AggregateAll(ctx context.Context, target domain.Granularity) ([]Report, error) {
	reports := make([]Report, 0, len(domain.MetricKinds))
	var errs []error
	for _, kind := range domain.MetricKinds {
		report, err := a.Aggregate(ctx, kind, target)
		if err != nil {
			if ctx.Err() != nil {
				return reports, err
			}
			errs = append(errs, err)
			continue
		}
		reports = append(reports, report)
		a.logger.Info("Aggregated metrics",
			"kind", kind,
			"granularity", target.String(),
			"buckets", report.Buckets,
			"merged", report.Merged,
			"failed", report.Failed,
			"elapsed", report.Elapsed,
		)
	}
	return reports, errors.Join(errs...)
}

// commitBucket merges one bucket, folding in an aggregate already stored for
// it by an earlier run. It returns the number of source records consumed.
func (a *Aggregator) commitBucket(ctx context.Context, kind domain.MetricKind, target domain.Granularity, b bucket) (int, error) {
	device := b.records[0].DeviceID
	created := b.start.Add(target.Width() / 2)

	inputs := b.records
	commit := ports.BucketCommit{SourceIDs: make([]int64, len(b.records))}
	for i, r := range b.records {
		commit.SourceIDs[i] = r.ID
	}

	existing, err := a.store.FindBucketRecord(ctx, kind, device, target, created)
	switch {
	case err == nil:
		inputs = append(append([]domain.MetricRecord(nil), b.records...), *existing)
		commit.ReplaceID = existing.ID
	case !errors.Is(err, domain.ErrNotFound):
		return 0, err
	}

	commit.Merged = domain.MergeRecords(kind, device, target, created, inputs)
	if err := a.store.CommitBucket(ctx, commit); err != nil {
		return 0, err
	}
	return len(b.records), nil
}

func (a *Aggregator) lockPartitions(ctx context.Context, kind domain.MetricKind, source, target domain.Granularity) (func(), error) {
	if a.locker == nil {
		return func() {}, nil
	}
	// Always source before target so overlapping runs (RAW->HOURLY and
	// HOURLY->DAILY) cannot deadlock.
	unlockSource, err := a.locker.Lock(ctx, partitionKey(kind, source))
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", partitionKey(kind, source), err)
	}
	unlockTarget, err := a.locker.Lock(ctx, partitionKey(kind, target))
	if err != nil {
		unlockSource()
		return nil, fmt.Errorf("lock %s: %w", partitionKey(kind, target), err)
	}
	return func() {
		unlockTarget()
		unlockSource()
	}, nil
}

func partitionKey(kind domain.MetricKind, g domain.Granularity) string {
	return "metrics:" + string(kind) + ":" + g.String()
}

// groupByDevice splits records ordered by device into one slice per device.
func groupByDevice(records []domain.MetricRecord) [][]domain.MetricRecord {
	var groups [][]domain.MetricRecord
	for i := 0; i < len(records); {
		j := i + 1
		for j < len(records) && records[j].DeviceID == records[i].DeviceID {
			j++
		}
		groups = append(groups, records[i:j])
		i = j
	}
	return groups
}

// bucketize groups one device's records by target bucket in ascending order.
func bucketize(target domain.Granularity, records []domain.MetricRecord) []bucket {
	index := make(map[int64]int)
	var buckets []bucket
	for _, r := range records {
		start := target.RoundDown(r.Created)
		i, ok := index[start.Unix()]
		if !ok {
			i = len(buckets)
			index[start.Unix()] = i
			buckets = append(buckets, bucket{start: start})
		}
		buckets[i].records = append(buckets[i].records, r)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].start.Before(buckets[j].start) })
	return buckets
}
