// Package monitor samples host CPU and memory usage while the agent runs
// and keeps a bounded history for diagnostics. Sustained load on the host
// is a leading indicator of stuck automation, so threshold breaches are
// logged as warnings.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"go.uber.org/zap"

	"github.com/kestrelhq/kestrel/internal/config"
)

// Sample is one resource reading.
type Sample struct {
	Timestamp  time.Time `json:"timestamp"`
	CPUPercent float64   `json:"cpu_percent"`
	MemPercent float64   `json:"mem_percent"`
}

// Sampler reads the current resource usage.
type Sampler interface {
	Sample(ctx context.Context) (Sample, error)
}

// HostSampler reads from the local machine via gopsutil.
type HostSampler struct{}

func (HostSampler) Sample(ctx context.Context) (Sample, error) {
	s := Sample{Timestamp: time.Now().UTC()}

	// Interval 0 measures since the previous call instead of blocking.
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return s, err
	}
	if len(percents) > 0 {
		s.CPUPercent = percents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return s, err
	}
	s.MemPercent = vm.UsedPercent
	return s, nil
}

// Monitor runs a sampling loop and retains the most recent readings.
type Monitor struct {
	sampler Sampler
	cfg     config.MonitorConfig
	logger  *zap.Logger

	mu      sync.Mutex
	history []Sample

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a monitor with the host sampler.
func New(cfg config.MonitorConfig, logger *zap.Logger) *Monitor {
	return NewWithSampler(HostSampler{}, cfg, logger)
}

// NewWithSampler builds a monitor over an arbitrary sampler.
func NewWithSampler(sampler Sampler, cfg config.MonitorConfig, logger *zap.Logger) *Monitor {
	return &Monitor{
		sampler: sampler,
		cfg:     cfg,
		logger:  logger.Named("monitor"),
	}
}

// Start launches the sampling loop. It is a no-op when monitoring is
// disabled in the config.
func (m *Monitor) Start(ctx context.Context) {
	if !m.cfg.Enabled || m.done != nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go m.loop(ctx)
}

// Stop cancels the loop and waits for it to exit.
func (m *Monitor) Stop() {
	if m.done == nil {
		return
	}
	m.cancel()
	<-m.done
	m.done = nil
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.cfg.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample, err := m.sampler.Sample(ctx)
			if err != nil {
				if ctx.Err() == nil {
					m.logger.Warn("Resource sample failed", zap.Error(err))
				}
				continue
			}
			m.record(sample)
		}
	}
}

func (m *Monitor) record(s Sample) {
	m.mu.Lock()
	m.history = append(m.history, s)
	if size := m.cfg.HistorySize; size > 0 && len(m.history) > size {
		m.history = m.history[len(m.history)-size:]
	}
	m.mu.Unlock()

	if m.cfg.CPUWarnPercent > 0 && s.CPUPercent >= m.cfg.CPUWarnPercent {
		m.logger.Warn("CPU usage above threshold",
			zap.Float64("cpu_percent", s.CPUPercent),
			zap.Float64("threshold", m.cfg.CPUWarnPercent))
	}
	if m.cfg.MemWarnPercent > 0 && s.MemPercent >= m.cfg.MemWarnPercent {
		m.logger.Warn("Memory usage above threshold",
			zap.Float64("mem_percent", s.MemPercent),
			zap.Float64("threshold", m.cfg.MemWarnPercent))
	}
}

// History returns a copy of the retained samples, oldest first.
func (m *Monitor) History() []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Sample, len(m.history))
	copy(out, m.history)
	return out
}

// Latest returns the most recent sample, if any.
func (m *Monitor) Latest() (Sample, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.history) == 0 {
		return Sample{}, false
	}
	return m.history[len(m.history)-1], true
}
