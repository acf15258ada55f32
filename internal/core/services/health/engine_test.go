package health

import (
	"testing"
	"time"

	"github.com/lcalzada-xor/meshmon/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubject struct {
	settings *domain.MeshSettings
	values   map[string]domain.CheckValue
}

func (f *fakeSubject) Scope() domain.AlertScope       { return domain.MeshScope("meshA") }
func (f *fakeSubject) Name() string                   { return "meshA" }
func (f *fakeSubject) Settings() *domain.MeshSettings { return f.settings }
func (f *fakeSubject) Offline() bool                  { return false }
func (f *fakeSubject) ValueFor(key string) (domain.CheckValue, bool) {
	v, ok := f.values[key]
	return v, ok
}

func results(passed ...*bool) domain.CheckResults {
	rs := make(domain.CheckResults, len(passed))
	for i, p := range passed {
		rs[i] = domain.CheckResult{Key: string(rune('a' + i)), Passed: p}
	}
	return rs
}

func TestClassify(t *testing.T) {
	yes, no := new(bool), new(bool)
	*yes = true

	tests := []struct {
		name    string
		results domain.CheckResults
		want    domain.HealthStatus
	}{
		{"empty", nil, domain.HealthUnknown},
		{"nothing ran", results(nil, nil, nil, nil, nil, nil), domain.HealthUnknown},
		{"all passed", results(yes, yes, yes, yes, yes, yes), domain.HealthOK},
		{"two of six failed", results(no, no, yes, yes, yes, yes), domain.HealthWarning},
		{"three of six failed", results(no, no, no, yes, yes, yes), domain.HealthWarning},
		{"four of six failed", results(no, no, no, no, yes, yes), domain.HealthError},
		{"all failed", results(no, no, no, no, no, no), domain.HealthCritical},
		{"nulls are not counted", results(no, nil, nil, nil, nil, nil), domain.HealthCritical},
		{"one of three failed", results(no, yes, yes), domain.HealthWarning},
		{"two of three failed", results(no, no, yes), domain.HealthError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.results))
		})
	}
}

func TestRunChecks_NodeDefaults(t *testing.T) {
	defs, err := Compile(DefaultCheckConfig().Node)
	require.NoError(t, err)

	now := time.Date(2024, 8, 22, 16, 0, 0, 0, time.UTC)
	engine := NewEngine(defs, func() time.Time { return now })

	subject := &fakeSubject{values: map[string]domain.CheckValue{
		KeyCPU:         domain.NumberValue(95),
		KeyMem:         domain.NumberValue(20),
		KeyLastPing:    domain.TimeValue(now.Add(-30 * time.Minute)),
		KeyLastContact: domain.TimeValue(now.Add(-time.Minute)),
	}}

	rs := engine.RunChecks(subject)
	require.Len(t, rs, 6)

	assert.Equal(t, KeyCPU, rs[0].Key)
	require.NotNil(t, rs[0].Passed)
	assert.False(t, *rs[0].Passed)
	assert.Equal(t, "CPU usage is high", rs[0].Feedback)

	require.NotNil(t, rs[1].Passed)
	assert.True(t, *rs[1].Passed)

	require.NotNil(t, rs[2].Passed)
	assert.False(t, *rs[2].Passed, "pinged 30m ago exceeds 20m")

	require.NotNil(t, rs[3].Passed)
	assert.True(t, *rs[3].Passed)

	assert.Nil(t, rs[4].Passed)
	assert.Equal(t, "Device has not been contacted yet", rs[4].Feedback)
	assert.Nil(t, rs[5].Passed)

	assert.Equal(t, []string{KeyCPU, KeyLastPing}, rs.FailedKeys())
	assert.Equal(t, domain.HealthWarning, Classify(rs))
}

func TestRunChecks_SettingsOverrideThreshold(t *testing.T) {
	defs, err := Compile(DefaultCheckConfig().Node)
	require.NoError(t, err)
	engine := NewEngine(defs, nil)

	subject := &fakeSubject{
		settings: &domain.MeshSettings{CheckCPU: domain.Float(99)},
		values:   map[string]domain.CheckValue{KeyCPU: domain.NumberValue(95)},
	}
	rs := engine.RunChecks(subject)
	require.NotNil(t, rs[0].Passed)
	assert.True(t, *rs[0].Passed)
}

func TestRunChecks_UnsetThresholdIsUnknown(t *testing.T) {
	defs, err := Compile(DefaultCheckConfig().Mesh)
	require.NoError(t, err)
	engine := NewEngine(defs, nil)

	subject := &fakeSubject{
		settings: &domain.MeshSettings{},
		values:   map[string]domain.CheckValue{KeyDailyDataUsage: domain.NumberValue(1e9)},
	}
	rs := engine.RunChecks(subject)
	assert.Nil(t, rs[0].Passed)
	assert.Equal(t, domain.HealthUnknown, Classify(rs))

	subject.settings.CheckDailyDataUsage = domain.Float(650)
	rs = engine.RunChecks(subject)
	require.NotNil(t, rs[0].Passed)
	assert.False(t, *rs[0].Passed)
	assert.Equal(t, domain.HealthCritical, Classify(rs))
}

func TestCompile_Errors(t *testing.T) {
	_, err := Compile([]domain.CheckSpec{{Title: "x", Key: "cpu", Op: "approx"}})
	assert.ErrorIs(t, err, domain.ErrInvalidCheckSpec)

	_, err = Compile([]domain.CheckSpec{{Title: "x"}})
	assert.ErrorIs(t, err, domain.ErrInvalidCheckSpec)

	_, err = Compile([]domain.CheckSpec{{Title: "a", Key: "cpu"}, {Title: "b", Key: "cpu"}})
	assert.ErrorIs(t, err, domain.ErrInvalidCheckSpec)
}

func TestEvaluate(t *testing.T) {
	defs, err := Compile([]domain.CheckSpec{{Title: "Reachable", Key: KeyReachable, Op: domain.OpTruthy}})
	require.NoError(t, err)
	engine := NewEngine(defs, nil)

	eval := engine.Evaluate(&fakeSubject{values: map[string]domain.CheckValue{KeyReachable: domain.BoolValue(false)}})
	assert.Equal(t, domain.HealthCritical, eval.Status)
	assert.Len(t, eval.Results, 1)
	assert.Equal(t, []string{KeyReachable}, engine.Keys())
}
