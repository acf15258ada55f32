package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricRecord(t *testing.T) {
	created := time.Date(2024, 8, 22, 16, 0, 0, 0, time.UTC)

	rec, err := NewMetricRecord(KindRTT, "aa:bb:cc:dd:ee:ff", created, map[string]*float64{
		FieldRTTAvg: Float(12),
		FieldRTTMin: nil,
	})
	require.NoError(t, err)
	assert.Equal(t, Raw, rec.Granularity)
	assert.Equal(t, int64(1), rec.Samples)

	v, ok := rec.Value(FieldRTTAvg)
	require.True(t, ok)
	assert.Equal(t, 12.0, v)
	_, ok = rec.Value(FieldRTTMin)
	assert.False(t, ok)

	_, err = NewMetricRecord("bogus", "x", created, nil)
	assert.ErrorIs(t, err, ErrInvalidMetricKind)

	_, err = NewMetricRecord(KindRTT, "", created, nil)
	assert.ErrorIs(t, err, ErrMissingDeviceID)

	_, err = NewMetricRecord(KindRTT, "x", created, map[string]*float64{FieldCPU: Float(1)})
	assert.ErrorIs(t, err, ErrUnknownMetricField)

	rec, err = NewMetricRecord(KindUptime, "x", time.Time{}, nil)
	require.NoError(t, err)
	assert.False(t, rec.Created.IsZero())
}

func TestMergeRecords(t *testing.T) {
	mid := time.Date(2024, 8, 22, 16, 30, 0, 0, time.UTC)

	t.Run("reducers", func(t *testing.T) {
		merged := MergeRecords(KindRTT, "dev", Hourly, mid, []MetricRecord{
			{Samples: 1, Fields: map[string]*float64{FieldRTTMin: Float(4), FieldRTTAvg: Float(10), FieldRTTMax: Float(20)}},
			{Samples: 3, Fields: map[string]*float64{FieldRTTMin: Float(2), FieldRTTAvg: Float(30), FieldRTTMax: Float(25)}},
		})

		assert.Equal(t, Hourly, merged.Granularity)
		assert.Equal(t, int64(4), merged.Samples)
		assert.True(t, merged.Created.Equal(mid))

		lo, _ := merged.Value(FieldRTTMin)
		avg, _ := merged.Value(FieldRTTAvg)
		hi, _ := merged.Value(FieldRTTMax)
		assert.Equal(t, 2.0, lo)
		assert.Equal(t, 25.0, avg)
		assert.Equal(t, 25.0, hi)
	})

	t.Run("sums counters", func(t *testing.T) {
		merged := MergeRecords(KindDataUsage, "dev", Daily, mid, []MetricRecord{
			{Samples: 1, Fields: map[string]*float64{FieldTxBytes: Float(100), FieldRxBytes: Float(1)}},
			{Samples: 1, Fields: map[string]*float64{FieldTxBytes: Float(50), FieldRxBytes: nil}},
		})
		tx, _ := merged.Value(FieldTxBytes)
		rx, _ := merged.Value(FieldRxBytes)
		assert.Equal(t, 150.0, tx)
		assert.Equal(t, 1.0, rx)
	})

	t.Run("all null stays null", func(t *testing.T) {
		merged := MergeRecords(KindResources, "dev", Hourly, mid, []MetricRecord{
			{Samples: 1, Fields: map[string]*float64{FieldCPU: Float(40)}},
			{Samples: 1, Fields: map[string]*float64{FieldCPU: Float(20), FieldMemory: nil}},
		})
		cpu, ok := merged.Value(FieldCPU)
		require.True(t, ok)
		assert.Equal(t, 30.0, cpu)

		v, present := merged.Fields[FieldMemory]
		assert.True(t, present)
		assert.Nil(t, v)
	})
}

func TestMergeRecords_SparseFieldsAreOrderIndependent(t *testing.T) {
	mid := time.Date(2024, 8, 22, 16, 30, 0, 0, time.UTC)
	day := time.Date(2024, 8, 22, 12, 0, 0, 0, time.UTC)

	raw := func(cpu, mem *float64) MetricRecord {
		rec, err := NewMetricRecord(KindResources, "dev", mid, map[string]*float64{FieldCPU: cpu, FieldMemory: mem})
		require.NoError(t, err)
		return *rec
	}
	a := raw(Float(10), nil)
	b := raw(nil, Float(50))
	c := raw(Float(40), Float(40))

	once := MergeRecords(KindResources, "dev", Daily, day, []MetricRecord{a, b, c})

	hourly := MergeRecords(KindResources, "dev", Hourly, mid, []MetricRecord{a, b})
	twoStep := MergeRecords(KindResources, "dev", Daily, day, []MetricRecord{hourly, c})

	for _, merged := range []MetricRecord{once, twoStep} {
		cpu, _ := merged.Value(FieldCPU)
		mem, _ := merged.Value(FieldMemory)
		assert.InDelta(t, 25.0, cpu, 1e-9)
		assert.InDelta(t, 45.0, mem, 1e-9)
		assert.Equal(t, int64(3), merged.Samples)
		assert.Equal(t, map[string]int64{FieldCPU: 2, FieldMemory: 2}, merged.Counts)
	}

	assert.Equal(t, int64(1), hourly.FieldCount(FieldCPU))
	assert.Equal(t, int64(0), b.FieldCount(FieldCPU))
}

func TestMetricRecordFieldCountFallsBackToSamples(t *testing.T) {
	legacy := MetricRecord{Samples: 4, Fields: map[string]*float64{FieldCPU: Float(1)}}
	assert.Equal(t, int64(4), legacy.FieldCount(FieldCPU))
	assert.Equal(t, int64(0), legacy.FieldCount(FieldMemory))
}

func TestMetricKindFields(t *testing.T) {
	assert.Equal(t, []string{FieldCPU, FieldMemory}, KindResources.Fields())
	assert.Equal(t, ReduceMin, KindRTT.ReducerFor(FieldRTTMin))
	assert.Len(t, MetricKinds, 6)

	_, err := ParseMetricKind("data_rate")
	assert.NoError(t, err)
	_, err = ParseMetricKind("load")
	assert.ErrorIs(t, err, ErrInvalidMetricKind)
}
