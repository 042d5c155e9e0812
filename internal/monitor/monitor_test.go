package monitor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/kestrelhq/kestrel/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubSampler struct {
	cpu   float64
	mem   float64
	count atomic.Int64
}

func (s *stubSampler) Sample(context.Context) (Sample, error) {
	s.count.Add(1)
	return Sample{Timestamp: time.Now().UTC(), CPUPercent: s.cpu, MemPercent: s.mem}, nil
}

func TestMonitorCollectsSamples(t *testing.T) {
	sampler := &stubSampler{cpu: 12.5, mem: 40}
	cfg := config.MonitorConfig{
		Enabled:        true,
		SampleInterval: 5 * time.Millisecond,
		HistorySize:    100,
	}
	m := NewWithSampler(sampler, cfg, zap.NewNop())

	m.Start(context.Background())
	require.Eventually(t, func() bool {
		return sampler.count.Load() >= 3
	}, time.Second, time.Millisecond)
	m.Stop()

	history := m.History()
	require.NotEmpty(t, history)
	latest, ok := m.Latest()
	require.True(t, ok)
	assert.InDelta(t, 12.5, latest.CPUPercent, 0.001)
	assert.InDelta(t, 40, latest.MemPercent, 0.001)
}

func TestMonitorHistoryIsBounded(t *testing.T) {
	cfg := config.MonitorConfig{HistorySize: 3}
	m := NewWithSampler(&stubSampler{}, cfg, zap.NewNop())

	for i := 0; i < 10; i++ {
		m.record(Sample{CPUPercent: float64(i)})
	}

	history := m.History()
	require.Len(t, history, 3)
	assert.InDelta(t, 7, history[0].CPUPercent, 0.001)
	assert.InDelta(t, 9, history[2].CPUPercent, 0.001)
}

func TestMonitorDisabledDoesNotStart(t *testing.T) {
	sampler := &stubSampler{}
	cfg := config.MonitorConfig{Enabled: false, SampleInterval: time.Millisecond}
	m := NewWithSampler(sampler, cfg, zap.NewNop())

	m.Start(context.Background())
	time.Sleep(10 * time.Millisecond)
	m.Stop()

	assert.Zero(t, sampler.count.Load())
	assert.Empty(t, m.History())
}

func TestMonitorStopIsIdempotent(t *testing.T) {
	cfg := config.MonitorConfig{Enabled: true, SampleInterval: time.Millisecond, HistorySize: 5}
	m := NewWithSampler(&stubSampler{}, cfg, zap.NewNop())

	m.Start(context.Background())
	m.Stop()
	m.Stop()
}

func TestHostSampler(t *testing.T) {
	sample, err := HostSampler{}.Sample(context.Background())
	require.NoError(t, err)
	assert.False(t, sample.Timestamp.IsZero())
	assert.GreaterOrEqual(t, sample.MemPercent, 0.0)
	assert.LessOrEqual(t, sample.MemPercent, 100.0)
}
