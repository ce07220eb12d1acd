// Package monitor accumulates sampling diagnostics over a run of dataset
// draws: per-video selection counts, label-position density, and the share
// of clips containing an event. It is used to sanity-check that the
// length-weighted sampler actually tracks its target distribution.
package monitor

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/clipset/internal/dataset"
)

// SamplingMonitor records draw statistics. It is not safe for concurrent
// use; each sampling loop owns its monitor.
type SamplingMonitor struct {
	videoNames []string
	videoIndex map[string]int
	expected   []float64
	classNames []string
	clipLen    int

	draws          []int
	classCounts    []int
	positionCounts []int
	containsEvent  int
	total          int
}

// New creates a monitor for a run. expected holds the target per-video draw
// probability (length-proportional weights from the dataset); classNames is
// the class list in index order; clipLen sizes the label-position histogram.
func New(videoNames []string, expected []float64, classNames []string, clipLen int) (*SamplingMonitor, error) {
	if len(videoNames) != len(expected) {
		return nil, fmt.Errorf("monitor: %d video names but %d expected weights", len(videoNames), len(expected))
	}
	if clipLen <= 0 {
		return nil, fmt.Errorf("monitor: clip length must be positive, got %d", clipLen)
	}

	m := &SamplingMonitor{
		videoNames:     videoNames,
		videoIndex:     make(map[string]int, len(videoNames)),
		expected:       expected,
		classNames:     classNames,
		clipLen:        clipLen,
		draws:          make([]int, len(videoNames)),
		classCounts:    make([]int, len(classNames)),
		positionCounts: make([]int, clipLen),
	}
	for i, n := range videoNames {
		m.videoIndex[n] = i
	}
	return m, nil
}

// Record accumulates one drawn example.
func (m *SamplingMonitor) Record(ex *dataset.Example) error {
	idx, ok := m.videoIndex[ex.Video]
	if !ok {
		return fmt.Errorf("monitor: unknown video %q", ex.Video)
	}
	m.draws[idx]++
	m.total++
	m.containsEvent += ex.ContainsEvent

	for pos, l := range ex.Labels {
		if l == 0 {
			continue
		}
		if pos < m.clipLen {
			m.positionCounts[pos]++
		}
		if l < len(m.classCounts) {
			m.classCounts[l]++
		}
	}
	return nil
}

// Total returns the number of recorded draws.
func (m *SamplingMonitor) Total() int {
	return m.total
}

// Frequencies returns the empirical per-video draw frequency.
func (m *SamplingMonitor) Frequencies() []float64 {
	freqs := make([]float64, len(m.draws))
	if m.total == 0 {
		return freqs
	}
	for i, d := range m.draws {
		freqs[i] = float64(d) / float64(m.total)
	}
	return freqs
}

// EventRatio returns the fraction of recorded clips containing an event.
func (m *SamplingMonitor) EventRatio() float64 {
	if m.total == 0 {
		return 0
	}
	return float64(m.containsEvent) / float64(m.total)
}

// ChiSquare returns the chi-square distance between observed draw counts
// and the expected length-proportional counts. Videos with zero expected
// weight are excluded.
func (m *SamplingMonitor) ChiSquare() float64 {
	if m.total == 0 {
		return 0
	}
	var obs, exp []float64
	for i, e := range m.expected {
		if e == 0 {
			continue
		}
		obs = append(obs, float64(m.draws[i]))
		exp = append(exp, e*float64(m.total))
	}
	return stat.ChiSquare(obs, exp)
}

// ClassCounts returns the number of labelled positions seen per class.
func (m *SamplingMonitor) ClassCounts() []int {
	out := make([]int, len(m.classCounts))
	copy(out, m.classCounts)
	return out
}

// PositionDensity returns, per clip position, the fraction of recorded
// clips with a non-background label at that position.
func (m *SamplingMonitor) PositionDensity() []float64 {
	density := make([]float64, m.clipLen)
	if m.total == 0 {
		return density
	}
	for i, c := range m.positionCounts {
		density[i] = float64(c) / float64(m.total)
	}
	return density
}

// Report is a flat summary of a sampling run.
type Report struct {
	Draws       int       `json:"draws"`
	EventRatio  float64   `json:"event_ratio"`
	ChiSquare   float64   `json:"chi_square"`
	VideoNames  []string  `json:"video_names"`
	Empirical   []float64 `json:"empirical"`
	Expected    []float64 `json:"expected"`
	ClassNames  []string  `json:"class_names"`
	ClassCounts []int     `json:"class_counts"`
}

// Summary builds a Report from the recorded draws.
func (m *SamplingMonitor) Summary() Report {
	return Report{
		Draws:       m.total,
		EventRatio:  m.EventRatio(),
		ChiSquare:   m.ChiSquare(),
		VideoNames:  m.videoNames,
		Empirical:   m.Frequencies(),
		Expected:    m.expected,
		ClassNames:  m.classNames,
		ClassCounts: m.ClassCounts(),
	}
}
