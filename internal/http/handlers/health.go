package handlers

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/jmylchreest/scvv/pkg/httpclient"
)

const mb = 1024 * 1024

// HealthHandler serves GET /health.
type HealthHandler struct {
	version   string
	startTime time.Time
	registry  *httpclient.Registry
	session   SessionSource
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{version: version, startTime: time.Now()}
}

// WithRegistry reports the circuit breakers of registered clients.
func (h *HealthHandler) WithRegistry(registry *httpclient.Registry) *HealthHandler {
	h.registry = registry
	return h
}

// WithSession includes a session summary.
func (h *HealthHandler) WithSession(s SessionSource) *HealthHandler {
	h.session = s
	return h
}

// HealthInput is the input for the health check endpoint.
type HealthInput struct{}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// Register registers the health routes with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns player health, host load and memory, and circuit breaker states",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// GetHealth returns the health of the player. It reports "degraded" when any
// circuit breaker is open.
func (h *HealthHandler) GetHealth(_ context.Context, _ *HealthInput) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	resp := HealthResponse{
		Status:          "healthy",
		Timestamp:       now.UTC().Format(time.RFC3339),
		Version:         h.version,
		Uptime:          uptime.Round(time.Second).String(),
		UptimeSeconds:   uptime.Seconds(),
		CPUInfo:         cpuInfo(),
		Memory:          memoryInfo(),
		CircuitBreakers: []httpclient.CircuitBreakerStatus{},
	}

	if h.registry != nil {
		resp.CircuitBreakers = h.registry.CircuitBreakerStatuses()
		for _, cb := range resp.CircuitBreakers {
			if cb.State == httpclient.CircuitOpen.String() {
				resp.Status = "degraded"
			}
		}
	}

	if h.session != nil {
		snap := h.session.Snapshot()
		state := "idle"
		if snap.Playback != nil {
			state = snap.Playback.State
		}
		if snap.Closed {
			state = "closed"
		}
		resp.Session = &SessionHealth{
			ID:       snap.ID,
			Source:   snap.Source,
			State:    state,
			Buffered: snap.Buffered,
			Ready:    snap.Ready,
		}
		resp.Memory.FrameBufferMB = float64(snap.BufferBytes) / mb
	}

	return &HealthOutput{Body: resp}, nil
}

func cpuInfo() CPUInfo {
	info := CPUInfo{Cores: runtime.NumCPU()}
	avg, err := load.Avg()
	if err != nil || avg == nil {
		return info
	}
	info.Load1Min = avg.Load1
	info.Load5Min = avg.Load5
	info.Load15Min = avg.Load15
	if info.Cores > 0 {
		info.LoadPercentage1Min = avg.Load1 / float64(info.Cores) * 100
	}
	return info
}

func memoryInfo() MemoryInfo {
	var info MemoryInfo
	if vm, err := mem.VirtualMemory(); err == nil && vm != nil {
		info.TotalMemoryMB = float64(vm.Total) / mb
		info.UsedMemoryMB = float64(vm.Used) / mb
		info.AvailableMemoryMB = float64(vm.Available) / mb
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return info
	}
	if rss, err := proc.MemoryInfo(); err == nil && rss != nil {
		info.ProcessRSSMB = float64(rss.RSS) / mb
		if info.TotalMemoryMB > 0 {
			info.ProcessPercentage = info.ProcessRSSMB / info.TotalMemoryMB * 100
		}
	}
	return info
}
