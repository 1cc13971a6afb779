// Package metrics aggregates pipeline timing and counters, snapshotted to
// disk on exit.
package metrics

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// StageTiming accumulates duration observations for one pipeline stage.
type StageTiming struct {
	Count   int64   `json:"count"`
	TotalMs float64 `json:"total_ms"`
	MinMs   float64 `json:"min_ms"`
	MaxMs   float64 `json:"max_ms"`
	AvgMs   float64 `json:"avg_ms"`
}

func (s *StageTiming) observe(d time.Duration) {
	ms := float64(d.Milliseconds())
	s.Count++
	s.TotalMs += ms
	if s.Count == 1 || ms < s.MinMs {
		s.MinMs = ms
	}
	if ms > s.MaxMs {
		s.MaxMs = ms
	}
	s.AvgMs = s.TotalMs / float64(s.Count)
}

// Snapshot is the on-disk shape of collected metrics.
type Snapshot struct {
	StartedAt      time.Time               `json:"started_at"`
	SnapshotAt     time.Time               `json:"snapshot_at"`
	Turns          int64                   `json:"turns"`
	DirectCommands int64                   `json:"direct_commands"`
	Cancellations  int64                   `json:"cancellations"`
	Failures       int64                   `json:"failures"`
	WakeWords      int64                   `json:"wake_words"`
	Stages         map[string]*StageTiming `json:"stages"`
}

// Collector gathers counters and stage timings from the pipeline.
type Collector struct {
	mu        sync.Mutex
	startedAt time.Time

	turns          int64
	directCommands int64
	cancellations  int64
	failures       int64
	wakeWords      int64
	stages         map[string]*StageTiming
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		startedAt: time.Now(),
		stages:    make(map[string]*StageTiming),
	}
}

// ObserveStage records one duration for a named stage (the pipeline uses
// asr_finalize, llm, llm_first_sentence, pipeline and vision).
func (c *Collector) ObserveStage(stage string, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.stages[stage]
	if !ok {
		s = &StageTiming{}
		c.stages[stage] = s
	}
	s.observe(d)
}

// CountTurn records a completed conversational turn.
func (c *Collector) CountTurn() { c.add(&c.turns) }

// CountDirectCommand records a command handled without the LLM.
func (c *Collector) CountDirectCommand() { c.add(&c.directCommands) }

// CountCancellation records an interrupted LLM request.
func (c *Collector) CountCancellation() { c.add(&c.cancellations) }

// CountFailure records a failed LLM request.
func (c *Collector) CountFailure() { c.add(&c.failures) }

// CountWakeWord records a detected wake word.
func (c *Collector) CountWakeWord() { c.add(&c.wakeWords) }

func (c *Collector) add(field *int64) {
	c.mu.Lock()
	*field++
	c.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	stages := make(map[string]*StageTiming, len(c.stages))
	for k, v := range c.stages {
		cp := *v
		stages[k] = &cp
	}
	return Snapshot{
		StartedAt:      c.startedAt,
		SnapshotAt:     time.Now(),
		Turns:          c.turns,
		DirectCommands: c.directCommands,
		Cancellations:  c.cancellations,
		Failures:       c.failures,
		WakeWords:      c.wakeWords,
		Stages:         stages,
	}
}

// Save writes the snapshot to dawn_stats_YYYYMMDD_HHMMSS.json in dir.
func (c *Collector) Save(dir string) error {
	snap := c.Snapshot()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}

	path := fmt.Sprintf("%s/dawn_stats_%s.json", dir, time.Now().Format("20060102_150405"))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	log.Printf("📊 Metrics saved to %s", path)
	return nil
}
