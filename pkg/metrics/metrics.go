package metrics

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Metrics collects counters for archive operations
type Metrics struct {
	mu sync.RWMutex

	// Pack metrics
	PacksTotal       int64
	PackedBytesTotal int64 // bytes written to .edz files, header included
	PackedEntries    int64
	PackDurationNs   int64

	// Unpack metrics
	UnpacksTotal        int64
	ExtractedBytesTotal int64
	ExtractedEntries    int64
	UnpackDurationNs    int64

	PeeksTotal    int64
	VerifiesTotal int64

	// Failures by operation name
	FailuresTotal map[string]int64
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		FailuresTotal: make(map[string]int64),
	}
}

// RecordPack records a completed pack
func (m *Metrics) RecordPack(bytes int64, entries int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PacksTotal++
	m.PackedBytesTotal += bytes
	m.PackedEntries += int64(entries)
	m.PackDurationNs += duration.Nanoseconds()

	log.Debug().
		Int64("bytes", bytes).
		Int("entries", entries).
		Dur("duration", duration).
		Msg("pack completed")
}

// RecordUnpack records a completed unpack
func (m *Metrics) RecordUnpack(bytes int64, entries int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UnpacksTotal++
	m.ExtractedBytesTotal += bytes
	m.ExtractedEntries += int64(entries)
	m.UnpackDurationNs += duration.Nanoseconds()

	log.Debug().
		Int64("bytes", bytes).
		Int("entries", entries).
		Dur("duration", duration).
		Msg("unpack completed")
}

func (m *Metrics) RecordPeek() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PeeksTotal++
}

func (m *Metrics) RecordVerify() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.VerifiesTotal++
}

// RecordFailure records a failed operation
func (m *Metrics) RecordFailure(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailuresTotal[op]++
}

// Snapshot returns the current counters keyed by metric name
func (m *Metrics) Snapshot() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := map[string]int64{
		"edz_packs_total":             m.PacksTotal,
		"edz_packed_bytes_total":      m.PackedBytesTotal,
		"edz_packed_entries_total":    m.PackedEntries,
		"edz_unpacks_total":           m.UnpacksTotal,
		"edz_extracted_bytes_total":   m.ExtractedBytesTotal,
		"edz_extracted_entries_total": m.ExtractedEntries,
		"edz_peeks_total":             m.PeeksTotal,
		"edz_verifies_total":          m.VerifiesTotal,
	}
	for op, count := range m.FailuresTotal {
		snapshot["edz_failures_total{op=\""+op+"\"}"] = count
	}
	return snapshot
}

// Reset zeroes every counter
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PacksTotal, m.PackedBytesTotal, m.PackedEntries, m.PackDurationNs = 0, 0, 0, 0
	m.UnpacksTotal, m.ExtractedBytesTotal, m.ExtractedEntries, m.UnpackDurationNs = 0, 0, 0, 0
	m.PeeksTotal, m.VerifiesTotal = 0, 0
	m.FailuresTotal = make(map[string]int64)
}

// LogSummary logs a summary of current metrics
func (m *Metrics) LogSummary() {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var failures int64
	for _, count := range m.FailuresTotal {
		failures += count
	}

	log.Info().
		Int64("packs", m.PacksTotal).
		Int64("packed_bytes", m.PackedBytesTotal).
		Dur("pack_time", time.Duration(m.PackDurationNs)).
		Int64("unpacks", m.UnpacksTotal).
		Int64("extracted_bytes", m.ExtractedBytesTotal).
		Dur("unpack_time", time.Duration(m.UnpackDurationNs)).
		Int64("peeks", m.PeeksTotal).
		Int64("verifies", m.VerifiesTotal).
		Int64("failures", failures).
		Msg("metrics summary")
}

// Global metrics instance
var GlobalMetrics = NewMetrics()

func LogMetricsSummary() {
	GlobalMetrics.LogSummary()
}
