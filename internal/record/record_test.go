package record

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricCategory(t *testing.T) {
	tests := []struct {
		metric Metric
		want   Category
	}{
		{Running, Activity},
		{Workout, Activity},
		{Weight, Body},
		{MenstrualCycle, Body},
		{OxygenSaturation, Breathing},
		{BloodPressure, HeartBlood},
		{PerfusionIndex, HeartBlood},
		{Sleep, Mindfulness},
	}
	for _, tt := range tests {
		t.Run(tt.metric.String(), func(t *testing.T) {
			got, ok := tt.metric.Category()
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
			assert.True(t, tt.want.Contains(tt.metric))
		})
	}
}

func TestMetricUnknown(t *testing.T) {
	for _, m := range []Metric{Unknown, 0, 5, 1000, 1009, 4004, 9999} {
		_, ok := m.Category()
		assert.False(t, ok, "metric %d", int(m))
		assert.False(t, m.Valid())
	}
}

func TestEveryMetricHasOneCategory(t *testing.T) {
	seen := map[Metric]Category{}
	for _, c := range Categories() {
		for _, m := range c.Metrics() {
			prev, dup := seen[m]
			require.False(t, dup, "metric %s in %s and %s", m, prev, c)
			seen[m] = c
		}
	}
	assert.Len(t, seen, len(metricNames))
	assert.Len(t, Metrics(), len(metricNames))
}

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric("2")
	require.NoError(t, err)
	assert.Equal(t, Running, m)

	m, err = ParseMetric("Heart_Rate")
	require.NoError(t, err)
	assert.Equal(t, HeartRate, m)

	_, err = ParseMetric("7")
	assert.Error(t, err)

	_, err = ParseMetric("jogging")
	assert.Error(t, err)
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory("blood")
	require.NoError(t, err)
	assert.Equal(t, HeartBlood, c)
	assert.Equal(t, "heart_blood", c.Table())

	_, err = ParseCategory("heart_blood")
	assert.Error(t, err)
}

func TestCategoryColumns(t *testing.T) {
	for _, c := range Categories() {
		cols := c.Columns()
		assert.Equal(t, []string{ColID, ColMetric, ColTime}, cols[:3], c.String())
		assert.True(t, c.HasColumn(ColNotes), c.String())
		assert.False(t, c.HasColumn(ColVersion), c.String())
	}
	assert.True(t, Activity.HasColumn(ColSteps))
	assert.False(t, Breathing.HasColumn(ColSteps))
}

func TestValuesInt(t *testing.T) {
	v := Values{
		"int":     3,
		"int64":   int64(-4),
		"float":   float64(7),
		"frac":    1.5,
		"number":  json.Number("12"),
		"string":  "42",
		"text":    "abc",
		"missing": nil,
	}

	n, ok, err := v.Int("int")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(3), n)

	n, _, err = v.Int("int64")
	require.NoError(t, err)
	assert.Equal(t, int64(-4), n)

	n, _, err = v.Int("float")
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	n, _, err = v.Int("number")
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)

	n, _, err = v.Int("string")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	_, ok, err = v.Int("frac")
	assert.True(t, ok)
	assert.Error(t, err)

	_, _, err = v.Int("text")
	assert.Error(t, err)

	_, ok, err = v.Int("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = v.Int("absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValuesFloat(t *testing.T) {
	v := Values{"a": 2, "b": 0.25, "c": "1e3", "d": true}

	f, ok, err := v.Float("a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2.0, f)

	f, _, err = v.Float("b")
	require.NoError(t, err)
	assert.Equal(t, 0.25, f)

	f, _, err = v.Float("c")
	require.NoError(t, err)
	assert.Equal(t, 1000.0, f)

	f, _, err = v.Float("d")
	require.NoError(t, err)
	assert.Equal(t, 1.0, f)
}

func TestValuesCloneAndKeys(t *testing.T) {
	v := Values{"b": 1, "a": 2}
	c := v.Clone()
	c["c"] = 3

	assert.Equal(t, []string{"a", "b"}, v.Keys())
	assert.Equal(t, []string{"a", "b", "c"}, c.Keys())
	assert.Nil(t, Values(nil).Clone())
}

func TestDefaultProfile(t *testing.T) {
	p := DefaultProfile()
	for _, col := range ProfileColumns() {
		if col == ColID {
			continue
		}
		assert.True(t, p.Has(col), col)
	}
}
