// Package handlers provides the status API operations.
package handlers

import (
	"github.com/jmylchreest/scvv/internal/session"
	"github.com/jmylchreest/scvv/pkg/httpclient"
)

// CPUInfo reports host load.
type CPUInfo struct {
	Cores              int     `json:"cores"`
	Load1Min           float64 `json:"load_1min"`
	Load5Min           float64 `json:"load_5min"`
	Load15Min          float64 `json:"load_15min"`
	LoadPercentage1Min float64 `json:"load_percentage_1min"`
}

// MemoryInfo reports host and player memory.
type MemoryInfo struct {
	TotalMemoryMB     float64 `json:"total_memory_mb"`
	UsedMemoryMB      float64 `json:"used_memory_mb"`
	AvailableMemoryMB float64 `json:"available_memory_mb"`
	ProcessRSSMB      float64 `json:"process_rss_mb"`
	ProcessPercentage float64 `json:"process_percentage"`
	FrameBufferMB     float64 `json:"frame_buffer_mb"`
}

// SessionHealth summarises the session for health checks.
type SessionHealth struct {
	ID       string `json:"id"`
	Source   string `json:"source,omitempty"`
	State    string `json:"state"`
	Buffered int    `json:"buffered"`
	Ready    bool   `json:"ready"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status          string                            `json:"status"`
	Timestamp       string                            `json:"timestamp"`
	Version         string                            `json:"version"`
	Uptime          string                            `json:"uptime"`
	UptimeSeconds   float64                           `json:"uptime_seconds"`
	CPUInfo         CPUInfo                           `json:"cpu_info"`
	Memory          MemoryInfo                        `json:"memory"`
	Session         *SessionHealth                    `json:"session,omitempty"`
	CircuitBreakers []httpclient.CircuitBreakerStatus `json:"circuit_breakers"`
}

// SessionSource is the read side of a session.
type SessionSource interface {
	Snapshot() session.Snapshot
}

// SessionControl is a session that also accepts posted commands.
type SessionControl interface {
	SessionSource
	Post(cmd session.Command) error
}
