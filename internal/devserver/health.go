package devserver

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

var startTime = time.Now()

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Timestamp time.Time              `json:"timestamp"`
	Services  map[string]ServiceInfo `json:"services"`
	System    SystemInfo             `json:"system"`
}

// ServiceInfo 依赖服务信息
type ServiceInfo struct {
	Status  string      `json:"status"`
	Latency string      `json:"latency,omitempty"`
	Error   string      `json:"error,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

type SystemInfo struct {
	Uptime    string `json:"uptime"`
	GoVersion string `json:"go_version"`
}

// HealthHandler 健康检查
type HealthHandler struct {
	version string
	store   Store
	hub     *Hub
	ai      Responder
}

func NewHealthHandler(version string, store Store, hub *Hub, ai Responder) *HealthHandler {
	return &HealthHandler{version: version, store: store, hub: hub, ai: ai}
}

// Health reports "degraded" with 200 when the store is unreachable.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Timestamp: time.Now(),
		Services:  make(map[string]ServiceInfo),
		System: SystemInfo{
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			GoVersion: runtime.Version(),
		},
	}

	start := time.Now()
	if err := h.store.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Services["store"] = ServiceInfo{Status: "unhealthy", Error: err.Error()}
	} else {
		resp.Services["store"] = ServiceInfo{Status: "healthy", Latency: time.Since(start).String()}
	}
	resp.Services["realtime"] = ServiceInfo{Status: "healthy", Details: gin.H{"clients": h.hub.ClientCount()}}
	resp.Services["ai"] = ServiceInfo{Status: "healthy", Details: h.ai.Status()}

	c.JSON(http.StatusOK, resp)
}

// Ready 就绪检查，只检查存储
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true})
}
