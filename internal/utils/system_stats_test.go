package utils

import (
	"errors"
	"testing"
	"time"

	"presence-gate/internal/core/processor"

	"github.com/stretchr/testify/assert"
)

type staticSource struct{ st processor.Status }

func (s staticSource) Status() processor.Status { return s.st }

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 Bytes", FormatBytes(512))
	assert.Equal(t, "1.50 KB", FormatBytes(1536))
	assert.Equal(t, "2.00 MB", FormatBytes(2*1024*1024))
	assert.Equal(t, "1.00 GB", FormatBytes(1<<30))
}

func TestGetSystemStats_IncludesPipeline(t *testing.T) {
	stats := GetSystemStats(staticSource{processor.Status{FPS: 12.5, Cycles: 40, Dropped: 3, Paused: true}})

	assert.Greater(t, stats.NumCPU, 0)
	assert.Greater(t, stats.GoRoutines, 0)
	assert.InDelta(t, 12.5, stats.PipelineFPS, 1e-9)
	assert.Equal(t, uint64(40), stats.FramesAnalysed)
	assert.Equal(t, uint64(3), stats.FramesDropped)
	assert.True(t, stats.Paused)
	assert.NotEmpty(t, stats.MemoryHuman)

	bare := GetSystemStats(nil)
	assert.Zero(t, bare.FramesAnalysed)
}

func TestCPUSampler_CachesWithinInterval(t *testing.T) {
	calls := 0
	s := &cpuSampler{interval: time.Hour, measure: func() (float64, error) {
		calls++
		return float64(calls * 10), nil
	}}

	assert.InDelta(t, 10, s.get(), 1e-9)
	assert.InDelta(t, 10, s.get(), 1e-9)
	assert.Equal(t, 1, calls)

	s.interval = 0
	assert.InDelta(t, 20, s.get(), 1e-9)
}

func TestCPUSampler_KeepsLastValueOnError(t *testing.T) {
	fail := false
	s := &cpuSampler{measure: func() (float64, error) {
		if fail {
			return 0, errors.New("no /proc")
		}
		return 42, nil
	}}

	assert.InDelta(t, 42, s.get(), 1e-9)
	fail = true
	assert.InDelta(t, 42, s.get(), 1e-9)
}
