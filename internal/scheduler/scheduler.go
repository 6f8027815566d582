// Package scheduler runs named housekeeping jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/FeelPulse/skyoracle/internal/logger"
)

const stopTimeout = 5 * time.Second

// JobFunc performs one run of a job and returns a short summary
type JobFunc func(ctx context.Context) (string, error)

// JobInfo describes a registered job
type JobInfo struct {
	Name       string
	Spec       string
	Next       time.Time
	LastRun    time.Time
	LastStatus string // "", ok, error
	LastResult string
	Runs       int
}

// String returns a human-readable representation of the job
func (j JobInfo) String() string {
	if j.LastRun.IsZero() {
		return fmt.Sprintf("⏰ %s (%s) never run", j.Name, j.Spec)
	}
	return fmt.Sprintf("⏰ %s (%s) %s %s ago: %s", j.Name, j.Spec, j.LastStatus, FormatDuration(time.Since(j.LastRun)), j.LastResult)
}

type job struct {
	info  JobInfo
	fn    JobFunc
	entry rcron.EntryID
}

// Scheduler runs jobs on six-field (seconds first) cron specs
type Scheduler struct {
	cron   *rcron.Cron
	log    *logger.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	jobs    map[string]*job
	running bool
}

// New creates a scheduler. log may be nil.
func New(log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.GetDefaultLogger().WithComponent("scheduler")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   rcron.New(rcron.WithSeconds()),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*job),
	}
}

// Add registers fn under name. An empty spec disables the job.
func (s *Scheduler) Add(name, spec string, fn JobFunc) error {
	if spec == "" {
		s.log.Debug("Job %s disabled", name)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q already registered", name)
	}

	j := &job{info: JobInfo{Name: name, Spec: spec}, fn: fn}
	id, err := s.cron.AddFunc(spec, func() { s.execute(name) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", spec, name, err)
	}
	j.entry = id
	s.jobs[name] = j
	return nil
}

// Start begins firing jobs
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	n := len(s.jobs)
	s.mu.Unlock()

	s.cron.Start()
	s.log.Info("⏰ Scheduler started with %d jobs", n)
}

// Stop halts the schedule and waits briefly for running jobs
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.cancel()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	select {
	case <-s.cron.Stop().Done():
	case <-time.After(stopTimeout):
		s.log.Warn("⚠️ Scheduler stop timed out waiting for running jobs")
	}
	s.log.Info("⏰ Scheduler stopped")
}

// RunNow runs a job immediately, outside its schedule
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	_, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("job %q not found", name)
	}
	s.execute(name)
	return nil
}

func (s *Scheduler) execute(name string) {
	s.mu.RLock()
	j, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return
	}

	result, err := j.fn(s.ctx)

	s.mu.Lock()
	j.info.LastRun = time.Now()
	j.info.Runs++
	if err != nil {
		j.info.LastStatus = "error"
		j.info.LastResult = err.Error()
	} else {
		j.info.LastStatus = "ok"
		j.info.LastResult = result
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("⚠️ Job %s failed: %v", name, err)
		return
	}
	s.log.Info("⏰ %s: %s", name, result)
}

// Jobs lists registered jobs sorted by name
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		info := j.info
		info.Next = s.cron.Entry(j.entry).Next
		out = append(out, info)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out
}

// FormatDuration formats a duration in a human-friendly way
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm%ds", m, s)
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m == 0 {
			return fmt.Sprintf("%dh", h)
		}
		return fmt.Sprintf("%dh%dm", h, m)
	}
	days := int(d.Hours()) / 24
	h := int(d.Hours()) % 24
	if h == 0 {
		return fmt.Sprintf("%dd", days)
	}
	return fmt.Sprintf("%dd%dh", days, h)
}
