package ports

import (
	"context"
	"time"

	"github.com/lcalzada-xor/meshmon/internal/core/domain"
)

// Locker serializes work on a named resource across jobs.
type Locker interface {
	// Lock blocks until key is held or ctx is done. The returned function
	// releases the lock.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// AlertEvent is emitted on every alert transition.
type AlertEvent struct {
	Alert   domain.Alert
	Message string
	At      time.Time
}

// AlertNotifier fans alert transitions out to downstream consumers.
type AlertNotifier interface {
	Notify(ctx context.Context, events []AlertEvent) error
	Close() error
}

// PingResult is the outcome of one liveness probe.
type PingResult struct {
	Reachable bool
	// Loss is the packet loss in percent.
	Loss int
	// RTT statistics in milliseconds, nil when no reply arrived.
	RTTMin *float64
	RTTAvg *float64
	RTTMax *float64
}

// Pinger probes a node by IP.
type Pinger interface {
	Ping(ctx context.Context, ip string) (PingResult, error)
}
