package domain

import "errors"

// Domain errors shared by the aggregation and alerting services.
var (
	ErrNotFound                = errors.New("record not found")
	ErrInvalidGranularityKey   = errors.New("invalid granularity key")
	ErrInvalidMetricKind       = errors.New("invalid metric kind")
	ErrAggregationConsistency  = errors.New("bucket was partially aggregated")
	ErrScopeResolution         = errors.New("alert has neither node nor mesh scope")
	ErrInvalidAlertLevel       = errors.New("invalid alert level")
	ErrMissingDeviceID         = errors.New("metric device id is required")
	ErrUnknownMetricField      = errors.New("unknown metric field")
	ErrResolvedAlertIsTerminal = errors.New("resolved alerts cannot transition")
	ErrInvalidCheckSpec        = errors.New("invalid health check")
	ErrInvalidMAC              = errors.New("invalid mac address")
	ErrInvalidReport           = errors.New("invalid node report")
)
