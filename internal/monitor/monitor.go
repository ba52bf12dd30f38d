// Package monitor collects per-page capture statistics: the mean and
// spread of each beam's 8-bit power samples. A flat-lined or saturated
// beam shows up here long before anyone inspects the filterbank files.
package monitor

import (
	"fmt"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/AA-ALERT/dadafilterbank/internal/logging"
)

// BeamStats summarizes one beam's samples within a page.
type BeamStats struct {
	Mean   float64
	StdDev float64
}

// PageStats summarizes one page.
type PageStats struct {
	Page      int
	Timestamp time.Time
	Beams     []BeamStats
}

// Reporter consumes page statistics.
type Reporter interface {
	Report(PageStats)
}

// MultiReporter fans a sample out to several reporters.
type MultiReporter []Reporter

func (m MultiReporter) Report(s PageStats) {
	for _, r := range m {
		if r != nil {
			r.Report(s)
		}
	}
}

// sampleStride thins the statistics input: a beam buffer holds tens of
// millions of samples per page and an estimate over every 64th sample is
// plenty for a health signal.
const sampleStride = 64

// Analyzer computes page statistics, reusing its scratch buffer across
// pages.
type Analyzer struct {
	scratch []float64
}

// NewAnalyzer returns an Analyzer.
func NewAnalyzer() *Analyzer { return &Analyzer{} }

// Analyze summarizes the transposed beam buffers of one page.
func (a *Analyzer) Analyze(page int, beams [][]byte) PageStats {
	s := PageStats{
		Page:      page,
		Timestamp: time.Now(),
		Beams:     make([]BeamStats, len(beams)),
	}
	for i, buf := range beams {
		s.Beams[i] = a.AnalyzeBeam(buf)
	}
	return s
}

// AnalyzeBeam summarizes a single transposed beam buffer.
func (a *Analyzer) AnalyzeBeam(buf []byte) BeamStats {
	n := (len(buf) + sampleStride - 1) / sampleStride
	if n == 0 {
		return BeamStats{}
	}
	if cap(a.scratch) < n {
		a.scratch = make([]float64, n)
	}
	vals := a.scratch[:0]
	for i := 0; i < len(buf); i += sampleStride {
		vals = append(vals, float64(buf[i]))
	}
	mean, std := stat.MeanStdDev(vals, nil)
	if len(vals) < 2 {
		std = 0
	}
	return BeamStats{Mean: mean, StdDev: std}
}

// Hub keeps a bounded history of page statistics and implements
// Reporter.
type Hub struct {
	mu      sync.RWMutex
	history []PageStats
	limit   int
}

// NewHub builds a hub keeping at most limit samples.
func NewHub(limit int) *Hub {
	if limit <= 0 {
		limit = 100
	}
	return &Hub{limit: limit}
}

// Report records a sample, evicting the oldest past the history limit.
func (h *Hub) Report(s PageStats) {
	h.mu.Lock()
	h.history = append(h.history, s)
	if len(h.history) > h.limit {
		h.history = h.history[len(h.history)-h.limit:]
	}
	h.mu.Unlock()
}

// History returns a copy of the recorded samples.
func (h *Hub) History() []PageStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]PageStats, len(h.history))
	copy(out, h.history)
	return out
}

// LogReporter writes page statistics to the run log.
type LogReporter struct {
	logger logging.Logger
}

// NewLogReporter builds a reporter logging through the given logger.
func NewLogReporter(logger logging.Logger) LogReporter {
	if logger == nil {
		logger = logging.Default()
	}
	return LogReporter{logger: logger}
}

func (r LogReporter) Report(s PageStats) {
	fields := make([]logging.Field, 0, 2+len(s.Beams))
	fields = append(fields, logging.F("subsystem", "monitor"), logging.F("page", s.Page))
	for i, b := range s.Beams {
		fields = append(fields, logging.F(
			fmt.Sprintf("beam_%02d", i+1),
			fmt.Sprintf("mean=%.2f std=%.2f", b.Mean, b.StdDev)))
	}
	r.logger.Info("page statistics", fields...)
}
