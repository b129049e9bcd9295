package observability

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/process"
)

// MonitoringStats aggregates every metric exposed on /debug/stats.
type MonitoringStats struct {
	// --- HTTP ---
	Requests        uint64  `json:"requests"`
	ClientErrors    uint64  `json:"client_errors"`
	ServerErrors    uint64  `json:"server_errors"`
	RejectedContent uint64  `json:"rejected_content"`
	RequestsPerSec  float64 `json:"requests_per_sec"`

	// --- QUEUES ---
	NotificationQueueSize     int `json:"notification_queue_size"`
	NotificationQueueCapacity int `json:"notification_queue_capacity"`

	// --- PROCESS ---
	CPUPercent float64 `json:"cpu_percent"`
	RSSMb      uint64  `json:"rss_mb"`
	AllocMemMb uint64  `json:"alloc_mem_mb"`
	NumGC      uint32  `json:"num_gc"`
	Goroutines int     `json:"goroutines"`
	UpdatedAt  string  `json:"updated_at"`
}

// QueueProvider returns the current length and capacity of a queue.
type QueueProvider func() (length, capacity int)

// MonitoringManager keeps request counters and samples the process every interval.
type MonitoringManager struct {
	log         *slog.Logger
	interval    time.Duration
	queue       QueueProvider
	proc        *process.Process
	mu          sync.RWMutex
	latestStats MonitoringStats

	requests        atomic.Uint64
	clientErrors    atomic.Uint64
	serverErrors    atomic.Uint64
	rejectedContent atomic.Uint64
	lastRequests    uint64
	lastCheck       time.Time
}

func NewMonitoringManager(log *slog.Logger, interval time.Duration, queue QueueProvider) *MonitoringManager {
	mm := &MonitoringManager{log: log, interval: interval, queue: queue, lastCheck: time.Now()}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn("Process metrics unavailable", "error", err)
	} else {
		mm.proc = proc
	}
	return mm
}

// RecordRequest counts a finished HTTP request by status code.
func (mm *MonitoringManager) RecordRequest(status int) {
	mm.requests.Add(1)
	switch {
	case status == 422:
		mm.rejectedContent.Add(1)
		mm.clientErrors.Add(1)
	case status >= 500:
		mm.serverErrors.Add(1)
	case status >= 400:
		mm.clientErrors.Add(1)
	}
}

// Run samples the stats until ctx is done.
func (mm *MonitoringManager) Run(ctx context.Context) error {
	ticker := time.NewTicker(mm.interval)
	defer ticker.Stop()
	mm.updateStats()
	for {
		select {
		case <-ctx.Done():
			mm.log.Debug("Stopping monitoring")
			return nil
		case <-ticker.C:
			mm.updateStats()
		}
	}
}

func (mm *MonitoringManager) updateStats() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	stats := MonitoringStats{
		Requests:        mm.requests.Load(),
		ClientErrors:    mm.clientErrors.Load(),
		ServerErrors:    mm.serverErrors.Load(),
		RejectedContent: mm.rejectedContent.Load(),
		AllocMemMb:      mem.Alloc / 1024 / 1024,
		NumGC:           mem.NumGC,
		Goroutines:      runtime.NumGoroutine(),
	}
	if mm.queue != nil {
		stats.NotificationQueueSize, stats.NotificationQueueCapacity = mm.queue()
	}
	if mm.proc != nil {
		if cpu, err := mm.proc.CPUPercent(); err == nil {
			stats.CPUPercent = cpu
		}
		if info, err := mm.proc.MemoryInfo(); err == nil {
			stats.RSSMb = info.RSS / 1024 / 1024
		}
	}

	mm.mu.Lock()
	defer mm.mu.Unlock()
	now := time.Now()
	if elapsed := now.Sub(mm.lastCheck).Seconds(); elapsed > 0 {
		stats.RequestsPerSec = float64(stats.Requests-mm.lastRequests) / elapsed
	}
	mm.lastRequests = stats.Requests
	mm.lastCheck = now
	stats.UpdatedAt = now.UTC().Format(time.RFC3339)
	mm.latestStats = stats

	mm.log.Debug("Stats updated", "requests", stats.Requests, "goroutines", stats.Goroutines, "rss_mb", stats.RSSMb)
}

func (mm *MonitoringManager) GetLatest() MonitoringStats {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.latestStats
}
