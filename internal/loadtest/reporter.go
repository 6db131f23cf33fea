package loadtest

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Alkatripathi-004/chat-fanout/pkg/log"
)

// Entry is one resolved message, success or failure. Failures carry
// latency -1 and status 500.
type Entry struct {
	StartTimestamp string
	EndTimestamp   string
	MessageType    string
	Latency        int64
	StatusCode     int
	RoomID         int
}

var csvHeader = []string{"No.", "StartTimestamp", "EndTimestamp", "MessageType", "Latency", "StatusCode", "RoomId"}

// Reporter collects per-message outcomes from all workers and writes
// them out as CSV at the end of a run.
type Reporter struct {
	mu      sync.Mutex
	entries []Entry
	path    string
}

func NewReporter(path string) *Reporter {
	return &Reporter{path: path}
}

func (r *Reporter) AddEntry(e Entry) {
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

// Len reports the number of collected entries.
func (r *Reporter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// WriteCSV writes all collected entries to the configured path,
// creating parent directories as needed. A reporter with no path is a
// sink; WriteCSV is a no-op.
func (r *Reporter) WriteCSV() error {
	if r.path == "" {
		return nil
	}

	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create results directory: %w", err)
		}
	}

	f, err := os.Create(r.path)
	if err != nil {
		return fmt.Errorf("failed to create csv file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	r.mu.Lock()
	entries := make([]Entry, len(r.entries))
	copy(entries, r.entries)
	r.mu.Unlock()

	for i, e := range entries {
		record := []string{
			strconv.Itoa(i + 1),
			e.StartTimestamp,
			e.EndTimestamp,
			e.MessageType,
			strconv.FormatInt(e.Latency, 10),
			strconv.Itoa(e.StatusCode),
			strconv.Itoa(e.RoomID),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write csv record: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}

	l := log.L()
	l.Info().Str("path", r.path).Int("entries", len(entries)).Msg("wrote performance csv")
	return nil
}

// LatencyStats summarises a latency sample set.
type LatencyStats struct {
	Count  int
	Mean   time.Duration
	Median time.Duration
	P95    time.Duration
	P99    time.Duration
	Min    time.Duration
	Max    time.Duration
}

// ComputeStats derives latency statistics from the samples.
func ComputeStats(latencies []time.Duration) LatencyStats {
	if len(latencies) == 0 {
		return LatencyStats{}
	}

	sorted := make([]time.Duration, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	return LatencyStats{
		Count:  len(sorted),
		Mean:   sum / time.Duration(len(sorted)),
		Median: percentile(sorted, 50),
		P95:    percentile(sorted, 95),
		P99:    percentile(sorted, 99),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
	}
}

func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
