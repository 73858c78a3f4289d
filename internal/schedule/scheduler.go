// Package schedule triggers unattended runs of a spec on a cron
// schedule, for teams that want nightly pipeline executions to show up
// in the dashboard without an operator pressing start.
package schedule

import (
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler manages scheduled spec runs
type Scheduler struct {
	entries  map[string]Entry
	parser   cron.Parser
	lastRun  map[string]time.Time
	running  map[string]bool
	mu       sync.RWMutex
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewScheduler creates a scheduler from validated entries
func NewScheduler(entries []Entry) (*Scheduler, error) {
	s := &Scheduler{
		entries:  make(map[string]Entry),
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		lastRun:  make(map[string]time.Time),
		running:  make(map[string]bool),
		stopChan: make(chan struct{}),
	}

	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		s.entries[e.Spec] = e
	}

	return s, nil
}

// ParseCron parses a cron expression
func ParseCron(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser.Parse(expr)
}

// NextRun returns the next scheduled run time for a spec
func (s *Scheduler) NextRun(spec string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[spec]
	if !ok {
		return time.Time{}
	}

	sched, err := s.parser.Parse(e.Cron)
	if err != nil {
		return time.Time{}
	}

	return sched.Next(time.Now())
}

// ShouldRun returns true if a spec's scheduled run is due
func (s *Scheduler) ShouldRun(spec string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[spec]
	if !ok {
		return false
	}

	if s.running[spec] {
		return false
	}

	sched, err := s.parser.Parse(e.Cron)
	if err != nil {
		return false
	}

	lastRun := s.lastRun[spec]
	if lastRun.IsZero() {
		lastRun = time.Now().Add(-24 * time.Hour)
	}

	nextRun := sched.Next(lastRun)
	return time.Now().After(nextRun)
}

// MarkRunning marks a spec's scheduled run as in flight
func (s *Scheduler) MarkRunning(spec string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[spec] = true
}

// MarkComplete marks a spec's scheduled run as finished
func (s *Scheduler) MarkComplete(spec string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[spec] = false
	s.lastRun[spec] = time.Now()
}

// GetEntry returns the entry for a spec
func (s *Scheduler) GetEntry(spec string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[spec]
	return e, ok
}

// ListSpecs returns all scheduled spec names
func (s *Scheduler) ListSpecs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	specs := make([]string, 0, len(s.entries))
	for spec := range s.entries {
		specs = append(specs, spec)
	}
	return specs
}

// Start begins the scheduler loop. runFunc is invoked once per due
// entry; overlapping runs of the same spec are suppressed.
func (s *Scheduler) Start(runFunc func(Entry) error) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			for spec := range s.entries {
				if s.ShouldRun(spec) {
					e, _ := s.GetEntry(spec)
					s.MarkRunning(spec)
					go func(entry Entry) {
						if err := runFunc(entry); err != nil {
							log.Printf("scheduled run of %s failed: %v", entry.Spec, err)
						}
						s.MarkComplete(entry.Spec)
					}(e)
				}
			}
		}
	}
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}
