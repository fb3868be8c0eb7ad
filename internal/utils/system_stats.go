package utils

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"presence-gate/internal/core/processor"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	log "github.com/sirupsen/logrus"
)

// cpuSampler cached die CPU-Auslastung, gopsutil blockiert pro Messung
type cpuSampler struct {
	mu       sync.Mutex
	sampled  time.Time
	usage    float64
	interval time.Duration
	measure  func() (float64, error)
}

var hostCPU = &cpuSampler{interval: 500 * time.Millisecond, measure: measureCPU}

// SystemStats enthält aktuelle System- und Anwendungsstatistiken
type SystemStats struct {
	// Host
	NumCPU            int     `json:"num_cpu"`
	CPUUsage          float64 `json:"cpu_usage"`
	HostMemoryPercent float64 `json:"host_memory_percent"`

	// Prozess
	GoRoutines  int    `json:"go_routines"`
	MemoryAlloc uint64 `json:"memory_alloc"`
	MemorySys   uint64 `json:"memory_sys"`
	MemoryHuman string `json:"memory_human"`

	// Pipeline
	PipelineFPS       float64 `json:"pipeline_fps"`
	PipelineLatencyMs int64   `json:"pipeline_latency_ms"`
	FramesReceived    uint64  `json:"frames_received"`
	FramesAnalysed    uint64  `json:"frames_analysed"`
	FramesAdmitted    uint64  `json:"frames_admitted"`
	FramesDropped     uint64  `json:"frames_dropped"`
	Paused            bool    `json:"paused"`

	Timestamp time.Time `json:"timestamp"`
}

// FormatBytes formatiert Bytes in lesbare Einheiten (KB, MB, GB)
func FormatBytes(bytes uint64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d Bytes", bytes)
	}
}

// GetCPUUsage liefert die Gesamtauslastung aller Kerne in Prozent
func GetCPUUsage() float64 { return hostCPU.get() }

func (s *cpuSampler) get() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.sampled.IsZero() && time.Since(s.sampled) < s.interval {
		return s.usage
	}
	usage, err := s.measure()
	if err != nil {
		log.Warnf("CPU usage sampling failed: %v", err)
		return s.usage
	}
	s.sampled = time.Now()
	s.usage = usage
	return usage
}

func measureCPU() (float64, error) {
	percentages, err := cpu.Percent(200*time.Millisecond, false)
	if err != nil {
		return 0, err
	}
	if len(percentages) == 0 {
		return 0, nil
	}
	return percentages[0], nil
}

// hostMemoryPercent liefert den belegten Hauptspeicher in Prozent, 0 bei Fehler
func hostMemoryPercent() float64 {
	vm, err := mem.VirtualMemory()
	if err != nil {
		log.Debugf("Host memory unavailable: %v", err)
		return 0
	}
	return vm.UsedPercent
}

// StatusSource liefert den aktuellen Pipeline-Status
type StatusSource interface {
	Status() processor.Status
}

// GetSystemStats erfasst aktuelle System- und Anwendungsstatistiken
func GetSystemStats(source StatusSource) *SystemStats {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	stats := &SystemStats{
		NumCPU:            runtime.NumCPU(),
		CPUUsage:          GetCPUUsage(),
		HostMemoryPercent: hostMemoryPercent(),
		GoRoutines:        runtime.NumGoroutine(),
		MemoryAlloc:       memStats.Alloc,
		MemorySys:         memStats.Sys,
		MemoryHuman:       FormatBytes(memStats.Alloc),
		Timestamp:         time.Now(),
	}

	if source != nil {
		st := source.Status()
		stats.PipelineFPS = st.FPS
		stats.PipelineLatencyMs = st.LastLatencyMs
		stats.FramesReceived = st.Arrivals
		stats.FramesAnalysed = st.Cycles
		stats.FramesAdmitted = st.Admitted
		stats.FramesDropped = st.Dropped
		stats.Paused = st.Paused
	}
	return stats
}
