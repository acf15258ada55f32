package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// MetricKind identifies a metric time series family.
type MetricKind string

const (
	KindResources MetricKind = "resources"
	KindUptime    MetricKind = "uptime"
	KindRTT       MetricKind = "rtt"
	KindDataUsage MetricKind = "data_usage"
	KindFailures  MetricKind = "failures"
	KindDataRate  MetricKind = "data_rate"
)

// MetricKinds lists every metric kind in a stable order.
var MetricKinds = []MetricKind{
	KindResources,
	KindUptime,
	KindRTT,
	KindDataUsage,
	KindFailures,
	KindDataRate,
}

// Metric payload fields.
const (
	FieldCPU       = "cpu"
	FieldMemory    = "memory"
	FieldReachable = "reachable"
	FieldLoss      = "loss"
	FieldRTTMin    = "rtt_min"
	FieldRTTAvg    = "rtt_avg"
	FieldRTTMax    = "rtt_max"
	FieldTxBytes   = "tx_bytes"
	FieldRxBytes   = "rx_bytes"
	FieldTxPackets = "tx_packets"
	FieldRxPackets = "rx_packets"
	FieldTxDropped = "tx_dropped"
	FieldRxDropped = "rx_dropped"
	FieldTxRetries = "tx_retries"
	FieldTxErrors  = "tx_errors"
	FieldRxErrors  = "rx_errors"
	FieldTxRate    = "tx_rate"
	FieldRxRate    = "rx_rate"
)

// Reducer selects how a field is combined when records are merged into a
// coarser bucket.
type Reducer int

const (
	// ReduceSum adds values. Used for counters (bytes, packets, failures).
	ReduceSum Reducer = iota
	// ReduceMean is the sample-weighted mean. Used for point samples
	// (cpu %, memory %, bit rates, reachability ratio).
	ReduceMean
	// ReduceMin keeps the smallest value.
	ReduceMin
	// ReduceMax keeps the largest value.
	ReduceMax
)

// kindSchemas declares the payload of each kind and its per-field reducer.
//
//	resources  cpu, memory                       mean
//	uptime     reachable (0/1 -> ratio), loss    mean
//	rtt        rtt_min min, rtt_avg mean, rtt_max max
//	data_usage tx_bytes, rx_bytes                sum
//	failures   packet/drop/retry/error counters  sum
//	data_rate  tx_rate, rx_rate                  mean
var kindSchemas = map[MetricKind]map[string]Reducer{
	KindResources: {
		FieldCPU:    ReduceMean,
		FieldMemory: ReduceMean,
	},
	KindUptime: {
		FieldReachable: ReduceMean,
		FieldLoss:      ReduceMean,
	},
	KindRTT: {
		FieldRTTMin: ReduceMin,
		FieldRTTAvg: ReduceMean,
		FieldRTTMax: ReduceMax,
	},
	KindDataUsage: {
		FieldTxBytes: ReduceSum,
		FieldRxBytes: ReduceSum,
	},
	KindFailures: {
		FieldTxPackets: ReduceSum,
		FieldRxPackets: ReduceSum,
		FieldTxDropped: ReduceSum,
		FieldRxDropped: ReduceSum,
		FieldTxRetries: ReduceSum,
		FieldTxErrors:  ReduceSum,
		FieldRxErrors:  ReduceSum,
	},
	KindDataRate: {
		FieldTxRate: ReduceMean,
		FieldRxRate: ReduceMean,
	},
}

// IsValid reports whether k is a known kind.
func (k MetricKind) IsValid() bool {
	_, ok := kindSchemas[k]
	return ok
}

// Fields returns the payload field names of k in sorted order.
func (k MetricKind) Fields() []string {
	schema := kindSchemas[k]
	fields := make([]string, 0, len(schema))
	for f := range schema {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// HasField reports whether field belongs to k's payload.
func (k MetricKind) HasField(field string) bool {
	_, ok := kindSchemas[k][field]
	return ok
}

// ReducerFor returns the merge reducer of a field.
func (k MetricKind) ReducerFor(field string) Reducer {
	return kindSchemas[k][field]
}

// ParseMetricKind resolves a kind by name.
func ParseMetricKind(name string) (MetricKind, error) {
	k := MetricKind(name)
	if !k.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidMetricKind, name)
	}
	return k, nil
}

// MetricRecord is one sample (Raw) or one aggregated bucket of a metric series.
// For aggregated records Created is the bucket midpoint.
type MetricRecord struct {
	ID          int64
	Kind        MetricKind
	DeviceID    string
	Granularity Granularity
	Created     time.Time
	// Samples is the number of raw observations folded into this record.
	Samples int64
	Fields  map[string]*float64
	// Counts is the number of non-null observations behind each field.
	// Means are weighted by it, since a field may be null in some samples.
	Counts map[string]int64
}

// Float returns a pointer to v, for building nullable payloads.
func Float(v float64) *float64 {
	return &v
}

// NewMetricRecord builds a raw record after validating kind, device and payload.
// A zero created time is replaced by now.
func NewMetricRecord(kind MetricKind, deviceID string, created time.Time, fields map[string]*float64) (*MetricRecord, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMetricKind, kind)
	}
	if deviceID == "" {
		return nil, ErrMissingDeviceID
	}
	payload := make(map[string]*float64, len(fields))
	counts := make(map[string]int64, len(fields))
	for name, v := range fields {
		if !kind.HasField(name) {
			return nil, fmt.Errorf("%w: %s has no field %q", ErrUnknownMetricField, kind, name)
		}
		payload[name] = v
		if v != nil {
			counts[name] = 1
		}
	}
	if created.IsZero() {
		created = time.Now()
	}
	return &MetricRecord{
		Kind:        kind,
		DeviceID:    deviceID,
		Granularity: Raw,
		Created:     created,
		Samples:     1,
		Fields:      payload,
		Counts:      counts,
	}, nil
}

// Value returns a field value and whether it is set.
func (r MetricRecord) Value(field string) (float64, bool) {
	v, ok := r.Fields[field]
	if !ok || v == nil {
		return 0, false
	}
	return *v, true
}

func (r MetricRecord) weight() float64 {
	if r.Samples < 1 {
		return 1
	}
	return float64(r.Samples)
}

// FieldCount returns how many observations back the value of field. Records
// without per-field counts fall back to Samples.
func (r MetricRecord) FieldCount(field string) int64 {
	if _, ok := r.Value(field); !ok {
		return 0
	}
	if c, ok := r.Counts[field]; ok && c > 0 {
		return c
	}
	return int64(r.weight())
}

// MergeRecords folds records of one device and kind into a single record at
// the target granularity using the per-field reducers of kind. Nulls are
// skipped; a field that is null in every input stays null. Means are weighted
// by FieldCount, so merging in several steps gives the same result as
// merging all records at once.
func MergeRecords(kind MetricKind, deviceID string, target Granularity, created time.Time, records []MetricRecord) MetricRecord {
	merged := MetricRecord{
		Kind:        kind,
		DeviceID:    deviceID,
		Granularity: target,
		Created:     created,
		Fields:      make(map[string]*float64, len(kindSchemas[kind])),
		Counts:      make(map[string]int64, len(kindSchemas[kind])),
	}
	for _, r := range records {
		merged.Samples += int64(r.weight())
	}

	for _, field := range kind.Fields() {
		var (
			acc   float64
			count int64
		)
		reducer := kind.ReducerFor(field)
		switch reducer {
		case ReduceMin:
			acc = math.Inf(1)
		case ReduceMax:
			acc = math.Inf(-1)
		}
		for _, r := range records {
			v, ok := r.Value(field)
			if !ok {
				continue
			}
			n := r.FieldCount(field)
			count += n
			switch reducer {
			case ReduceSum:
				acc += v
			case ReduceMean:
				acc += v * float64(n)
			case ReduceMin:
				acc = math.Min(acc, v)
			case ReduceMax:
				acc = math.Max(acc, v)
			}
		}
		if count == 0 {
			merged.Fields[field] = nil
			continue
		}
		if reducer == ReduceMean {
			acc /= float64(count)
		}
		merged.Fields[field] = Float(acc)
		merged.Counts[field] = count
	}
	return merged
}

// MetricQuery filters metric records. Zero values mean "no filter".
type MetricQuery struct {
	Kind        MetricKind
	DeviceIDs   []string
	Granularity *Granularity
	From        time.Time // inclusive
	To          time.Time // exclusive
}

// WithGranularityName applies a granularity filter by name. Unknown names
// are ignored and the query is returned unfiltered along with the error.
func (q MetricQuery) WithGranularityName(name string) (MetricQuery, error) {
	g, err := ParseGranularity(name)
	if err != nil {
		return q, err
	}
	q.Granularity = &g
	return q, nil
}
