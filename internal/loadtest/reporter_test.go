package loadtest

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReporter_WriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results", "metrics.csv")
	r := NewReporter(path)

	r.AddEntry(Entry{
		StartTimestamp: "2025-06-01T10:00:00Z",
		EndTimestamp:   "2025-06-01T10:00:01Z",
		MessageType:    "TEXT",
		Latency:        42,
		StatusCode:     200,
		RoomID:         3,
	})
	r.AddEntry(Entry{
		StartTimestamp: "2025-06-01T10:00:02Z",
		EndTimestamp:   "2025-06-01T10:00:03Z",
		MessageType:    "TEXT",
		Latency:        -1,
		StatusCode:     500,
		RoomID:         7,
	})

	require.NoError(t, r.WriteCSV())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, []string{"No.", "StartTimestamp", "EndTimestamp", "MessageType", "Latency", "StatusCode", "RoomId"}, records[0])
	assert.Equal(t, []string{"1", "2025-06-01T10:00:00Z", "2025-06-01T10:00:01Z", "TEXT", "42", "200", "3"}, records[1])
	assert.Equal(t, []string{"2", "2025-06-01T10:00:02Z", "2025-06-01T10:00:03Z", "TEXT", "-1", "500", "7"}, records[2])
}

func TestReporter_NoPathIsSink(t *testing.T) {
	r := NewReporter("")
	r.AddEntry(Entry{MessageType: "TEXT", Latency: 1, StatusCode: 200, RoomID: 1})
	assert.NoError(t, r.WriteCSV())
	assert.Equal(t, 1, r.Len())
}

func TestComputeStats(t *testing.T) {
	latencies := []time.Duration{
		5 * time.Millisecond,
		1 * time.Millisecond,
		3 * time.Millisecond,
		2 * time.Millisecond,
		4 * time.Millisecond,
	}

	stats := ComputeStats(latencies)
	assert.Equal(t, 5, stats.Count)
	assert.Equal(t, 3*time.Millisecond, stats.Mean)
	assert.Equal(t, 1*time.Millisecond, stats.Min)
	assert.Equal(t, 5*time.Millisecond, stats.Max)
	assert.Equal(t, 3*time.Millisecond, stats.Median)
	assert.Equal(t, 5*time.Millisecond, stats.P99)
}

func TestComputeStats_Empty(t *testing.T) {
	stats := ComputeStats(nil)
	assert.Equal(t, 0, stats.Count)
	assert.Equal(t, time.Duration(0), stats.Mean)
}
