package health

import (
	"fmt"
	"time"

	"github.com/lcalzada-xor/meshmon/internal/core/domain"
)

// Node check keys.
const (
	KeyCPU           = "cpu"
	KeyMem           = "mem"
	KeyRTT           = "rtt"
	KeyLastPing      = "last_ping"
	KeyLastContact   = "last_contact"
	KeyReachable     = "reachable"
	KeyDownloadSpeed = "download_speed"
	KeyUploadSpeed   = "upload_speed"
)

// Mesh check keys.
const (
	KeyDailyDataUsage  = "daily_data_usage"
	KeyHourlyDataUsage = "hourly_data_usage"
	KeyDailyUptime     = "daily_uptime"
	KeyHourlyUptime    = "hourly_uptime"
)

func threshold(v float64) *float64 { return &v }

// DefaultCheckConfig returns the built-in check lists.
func DefaultCheckConfig() domain.CheckConfig {
	return domain.CheckConfig{
		Node: []domain.CheckSpec{
			{
				Title: "CPU Usage", Key: KeyCPU, Op: domain.OpLessThan,
				Setting: "check_cpu", Threshold: threshold(80),
				Feedback: domain.Feedback{
					Unknown: "No CPU usage recorded",
					Fail:    "CPU usage is high",
					Pass:    "CPU usage falls in an acceptable range",
				},
			},
			{
				Title: "Memory Usage", Key: KeyMem, Op: domain.OpLessThan,
				Setting: "check_mem", Threshold: threshold(70),
				Feedback: domain.Feedback{
					Unknown: "No memory usage recorded",
					Fail:    "Memory usage is high",
					Pass:    "Memory usage falls in an acceptable range",
				},
			},
			{
				Title: "Recently Contacted", Key: KeyLastPing, Op: domain.OpWithin,
				Setting: "check_ping", Threshold: threshold((20 * time.Minute).Seconds()),
				Feedback: domain.Feedback{
					Unknown: "Device has never been pinged",
					Fail:    "Device has not been pinged recently",
					Pass:    "Device has been pinged recently",
				},
			},
			{
				Title: "Active", Key: KeyLastContact, Op: domain.OpWithin,
				Setting: "check_active", Threshold: threshold((5 * time.Minute).Seconds()),
				Feedback: domain.Feedback{
					Unknown: "Device has not contacted the server",
					Fail:    "Device has not contacted the server recently",
					Pass:    "Device is active",
				},
			},
			{
				Title: "Reachable", Key: KeyReachable, Op: domain.OpTruthy,
				Feedback: domain.Feedback{
					Unknown: "Device has not been contacted yet",
					Fail:    "Device is unreachable",
					Pass:    "Device is reachable",
				},
			},
			{
				Title: "RTT", Key: KeyRTT, Op: domain.OpLessThan,
				Setting: "check_rtt", Threshold: threshold(40),
				Feedback: domain.Feedback{
					Unknown: "No RTT data",
					Fail:    "Took too long to return a response",
					Pass:    "Response time is acceptable",
				},
			},
		},
		Mesh: []domain.CheckSpec{
			{
				Title: "Daily Data Usage", Key: KeyDailyDataUsage, Op: domain.OpLessEqual,
				Setting: "check_daily_data_usage",
				Feedback: domain.Feedback{
					Unknown: "No daily data usage limit configured",
					Fail:    "Daily data usage exceeded the limit",
					Pass:    "Daily data usage is within the limit",
				},
			},
			{
				Title: "Hourly Data Usage", Key: KeyHourlyDataUsage, Op: domain.OpLessEqual,
				Setting: "check_hourly_data_usage",
				Feedback: domain.Feedback{
					Unknown: "No hourly data usage limit configured",
					Fail:    "Hourly data usage exceeded the limit",
					Pass:    "Hourly data usage is within the limit",
				},
			},
			{
				Title: "Daily Uptime", Key: KeyDailyUptime, Op: domain.OpGreaterEqual,
				Setting: "check_daily_uptime",
				Feedback: domain.Feedback{
					Unknown: "No uptime data for today",
					Fail:    "Nodes were unreachable for too long today",
					Pass:    "Daily uptime is acceptable",
				},
			},
			{
				Title: "Hourly Uptime", Key: KeyHourlyUptime, Op: domain.OpGreaterEqual,
				Setting: "check_hourly_uptime",
				Feedback: domain.Feedback{
					Unknown: "No uptime data for this hour",
					Fail:    "Nodes were unreachable for too long this hour",
					Pass:    "Hourly uptime is acceptable",
				},
			},
		},
	}
}

// Compile turns declarative specs into check definitions, preserving order.
func Compile(specs []domain.CheckSpec) ([]domain.CheckDefinition, error) {
	defs := make([]domain.CheckDefinition, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	for i, spec := range specs {
		if spec.Key == "" || spec.Title == "" {
			return nil, fmt.Errorf("%w: check %d needs a title and a key", domain.ErrInvalidCheckSpec, i)
		}
		if seen[spec.Key] {
			return nil, fmt.Errorf("%w: duplicate key %q", domain.ErrInvalidCheckSpec, spec.Key)
		}
		seen[spec.Key] = true

		pred, err := predicateFor(spec)
		if err != nil {
			return nil, err
		}
		defs = append(defs, domain.CheckDefinition{
			Title:     spec.Title,
			Key:       spec.Key,
			Predicate: pred,
			Feedback:  spec.Feedback,
		})
	}
	return defs, nil
}

func predicateFor(spec domain.CheckSpec) (domain.Predicate, error) {
	limit := func(env domain.CheckEnv) (float64, bool) {
		if spec.Setting != "" {
			if v, ok := env.Settings.Threshold(spec.Setting); ok {
				return v, true
			}
		}
		if spec.Threshold != nil {
			return *spec.Threshold, true
		}
		return 0, false
	}

	compare := func(cmp func(v, t float64) bool) domain.Predicate {
		return func(v domain.CheckValue, env domain.CheckEnv) (bool, bool) {
			t, ok := limit(env)
			if !ok || v.Type != domain.ValueNumber {
				return false, false
			}
			return cmp(v.Number, t), true
		}
	}

	switch spec.Op {
	case domain.OpLessThan:
		return compare(func(v, t float64) bool { return v < t }), nil
	case domain.OpLessEqual:
		return compare(func(v, t float64) bool { return v <= t }), nil
	case domain.OpGreaterThan:
		return compare(func(v, t float64) bool { return v > t }), nil
	case domain.OpGreaterEqual:
		return compare(func(v, t float64) bool { return v >= t }), nil
	case domain.OpWithin:
		return func(v domain.CheckValue, env domain.CheckEnv) (bool, bool) {
			t, ok := limit(env)
			if !ok || v.Type != domain.ValueTime {
				return false, false
			}
			age := env.Now.Sub(v.Time)
			return age < time.Duration(t*float64(time.Second)), true
		}, nil
	case domain.OpTruthy, "":
		return func(v domain.CheckValue, _ domain.CheckEnv) (bool, bool) {
			switch v.Type {
			case domain.ValueBool:
				return v.Bool, true
			case domain.ValueNumber:
				return v.Number != 0, true
			}
			return !v.Time.IsZero(), true
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown op %q for %q", domain.ErrInvalidCheckSpec, spec.Op, spec.Key)
}
