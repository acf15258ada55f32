package domain

import (
	"fmt"
	"strings"
	"time"
)

// HealthStatus is the ordinal health of a node or mesh.
// Unknown means no check could run; it is not a severity.
type HealthStatus string

const (
	HealthUnknown  HealthStatus = "unknown"
	HealthOK       HealthStatus = "ok"
	HealthWarning  HealthStatus = "warning"
	HealthError    HealthStatus = "error"
	HealthCritical HealthStatus = "critical"
)

var healthRank = map[HealthStatus]int{
	HealthUnknown:  0,
	HealthOK:       1,
	HealthWarning:  2,
	HealthError:    3,
	HealthCritical: 4,
}

// Rank orders statuses: unknown < ok < warning < error < critical.
func (s HealthStatus) Rank() int {
	return healthRank[s]
}

// IsValid reports whether s is a known status.
func (s HealthStatus) IsValid() bool {
	_, ok := healthRank[s]
	return ok
}

// ValueType tags the dynamic type carried by a CheckValue.
type ValueType int

const (
	ValueNumber ValueType = iota
	ValueBool
	ValueTime
)

// CheckValue is the input of a health check predicate.
type CheckValue struct {
	Type   ValueType
	Number float64
	Bool   bool
	Time   time.Time
}

func NumberValue(v float64) CheckValue { return CheckValue{Type: ValueNumber, Number: v} }
func BoolValue(v bool) CheckValue      { return CheckValue{Type: ValueBool, Bool: v} }
func TimeValue(v time.Time) CheckValue { return CheckValue{Type: ValueTime, Time: v} }

func (v CheckValue) String() string {
	switch v.Type {
	case ValueBool:
		return fmt.Sprintf("%t", v.Bool)
	case ValueTime:
		return v.Time.Format(time.RFC3339)
	}
	return fmt.Sprintf("%g", v.Number)
}

// CheckEnv is what a predicate may consult besides the value itself.
type CheckEnv struct {
	Settings *MeshSettings
	Now      time.Time
}

// Predicate evaluates a value. known=false means the check could not decide
// (for instance its threshold is not configured).
type Predicate func(v CheckValue, env CheckEnv) (passed bool, known bool)

// Feedback holds the human readable outcome texts of a check.
type Feedback struct {
	Pass    string `yaml:"pass" json:"pass"`
	Fail    string `yaml:"fail" json:"fail"`
	Unknown string `yaml:"unknown" json:"unknown"`
}

// For picks the text matching a result.
func (f Feedback) For(passed *bool) string {
	switch {
	case passed == nil:
		return f.Unknown
	case *passed:
		return f.Pass
	}
	return f.Fail
}

// CheckDefinition is one configured health check.
type CheckDefinition struct {
	Title     string
	Key       string
	Predicate Predicate
	Feedback  Feedback
}

// CheckResult is the outcome of one check at one evaluation instant.
type CheckResult struct {
	Title    string `json:"title"`
	Key      string `json:"key"`
	Passed   *bool  `json:"passed"`
	Feedback string `json:"feedback"`
}

// CheckResults is an ordered result set for one entity.
type CheckResults []CheckResult

// NumFailed counts checks that ran and failed.
func (rs CheckResults) NumFailed() int {
	n := 0
	for _, r := range rs {
		if r.Passed != nil && !*r.Passed {
			n++
		}
	}
	return n
}

// NumPassed counts checks that ran and passed.
func (rs CheckResults) NumPassed() int {
	n := 0
	for _, r := range rs {
		if r.Passed != nil && *r.Passed {
			n++
		}
	}
	return n
}

// NumRun counts checks that produced a verdict.
func (rs CheckResults) NumRun() int {
	return rs.NumFailed() + rs.NumPassed()
}

// FailedKeys returns the keys of failed checks in declaration order.
func (rs CheckResults) FailedKeys() []string {
	var keys []string
	for _, r := range rs {
		if r.Passed != nil && !*r.Passed {
			keys = append(keys, r.Key)
		}
	}
	return keys
}

// Summary renders failed checks as "Title: feedback" lines.
func (rs CheckResults) Summary() string {
	var lines []string
	for _, r := range rs {
		if r.Passed != nil && !*r.Passed {
			lines = append(lines, r.Title+": "+r.Feedback)
		}
	}
	return strings.Join(lines, "\n")
}
