package toolplane

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsCollector_SnapshotBasic(t *testing.T) {
	m := NewMetricsCollector(time.Hour, 100)

	m.Record("bash", `{"cmd":"ls"}`, true, 10, "")
	m.Record("bash", `{"cmd":"ls"}`, true, 20, "")
	m.Record("bash", `{"cmd":"ls"}`, false, 30, "boom")

	agg := m.Snapshot("bash")
	assert.Equal(t, 3, agg.Total)
	assert.Equal(t, 2, agg.Success)
	assert.Equal(t, 1, agg.Failure)
	assert.InDelta(t, 2.0/3.0, agg.SuccessRate, 0.0001)
	assert.Equal(t, int64(10), agg.MinMs)
	assert.Equal(t, int64(30), agg.MaxMs)
	assert.Equal(t, 1, agg.RecentFailures60)
}

// percentile must implement sorted[ceil(p/100 * n) - 1].
func TestMetricsCollector_Percentile(t *testing.T) {
	sorted := []int64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}

	assert.Equal(t, int64(50), percentile(sorted, 50))
	assert.Equal(t, int64(100), percentile(sorted, 99))
	assert.Equal(t, int64(10), percentile(sorted, 1))
}

func TestMetricsCollector_EvictsOldRecords(t *testing.T) {
	now := time.Now()
	m := NewMetricsCollector(100*time.Millisecond, 100)
	m.now = func() time.Time { return now }

	m.Record("bash", "{}", true, 5, "")

	m.now = func() time.Time { return now.Add(200 * time.Millisecond) }
	m.Record("bash", "{}", true, 5, "")

	assert.Len(t, m.History("bash"), 1)
}

func TestMetricsCollector_CapsAtMaxRecords(t *testing.T) {
	m := NewMetricsCollector(time.Hour, 3)
	for i := 0; i < 10; i++ {
		m.Record("bash", "{}", true, int64(i), "")
	}
	assert.Len(t, m.History("bash"), 3)
}

func TestMetricsCollector_HistoryTracksArgsForDoomLoop(t *testing.T) {
	m := NewMetricsCollector(time.Hour, 100)
	m.Record("bash", `{"cmd":"a"}`, true, 1, "")
	m.Record("bash", `{"cmd":"b"}`, true, 1, "")

	hist := m.History("bash")
	assert.Equal(t, `{"cmd":"a"}`, hist[0].Args)
	assert.Equal(t, `{"cmd":"b"}`, hist[1].Args)
}
