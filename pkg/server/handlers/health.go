package handlers

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/kgroute"
)

// Set with -ldflags "-X github.com/soundprediction/kgroute/pkg/server/handlers.Version=..."
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

const (
	serviceName    = "kgroute"
	readyTimeout   = 5 * time.Second
	detailsTimeout = 10 * time.Second
)

var startedAt = time.Now()

// HealthHandler serves the liveness, readiness and diagnostics probes.
type HealthHandler struct {
	graph kgroute.GraphInspector
}

func NewHealthHandler(g kgroute.GraphInspector) *HealthHandler {
	return &HealthHandler{graph: g}
}

func now() string { return time.Now().UTC().Format(time.RFC3339) }

func uptime() string { return time.Since(startedAt).Round(time.Second).String() }

// respond writes body with 200, or 503 and status set to failStatus.
func respond(c *gin.Context, ok bool, failStatus string, body gin.H) {
	if ok {
		c.JSON(http.StatusOK, body)
		return
	}
	body["status"] = failStatus
	c.JSON(http.StatusServiceUnavailable, body)
}

// HealthCheck handles GET /health.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": serviceName, "timestamp": now(), "version": Version})
}

// LivenessCheck handles GET /live.
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive", "service": serviceName, "timestamp": now()})
}

// ping times a graph round trip.
func (h *HealthHandler) ping(ctx context.Context) (gin.H, bool) {
	if h.graph == nil {
		return gin.H{"status": "unhealthy", "error": "kgroute client not initialized"}, false
	}
	start := time.Now()
	err := h.graph.Ping(ctx)
	check := gin.H{"status": "healthy", "duration_ms": time.Since(start).Milliseconds()}
	switch {
	case err == nil:
		return check, true
	case ctx.Err() != nil:
		check["error"] = "graph connection timeout"
	default:
		check["error"] = err.Error()
	}
	check["status"] = "unhealthy"
	return check, false
}

// schema counts the entity types of a reachable graph.
func (h *HealthHandler) schema(ctx context.Context) (gin.H, bool) {
	start := time.Now()
	names, err := h.graph.EntityTypes(ctx)
	check := gin.H{"operation": "EntityTypes", "duration_ms": time.Since(start).Milliseconds()}
	if err != nil {
		check["status"] = "unhealthy"
		check["error"] = err.Error()
		return check, false
	}
	check["status"] = "healthy"
	check["entity_types"] = len(names)
	if len(names) == 0 {
		check["note"] = "graph is empty"
	}
	return check, true
}

// ReadinessCheck handles GET /ready.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
	defer cancel()

	graph, ok := h.ping(ctx)
	respond(c, ok, "not_ready", gin.H{
		"status":    "ready",
		"service":   serviceName,
		"timestamp": now(),
		"checks": gin.H{
			"graph":  graph,
			"system": gin.H{"status": "healthy", "uptime": uptime()},
		},
	})
}

// DetailedHealthCheck handles GET /health/detailed.
func (h *HealthHandler) DetailedHealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), detailsTimeout)
	defer cancel()
	start := time.Now()

	checks := gin.H{"system": runtimeStats()}
	graph, ok := h.ping(ctx)
	checks["graph_connectivity"] = graph
	if ok {
		checks["graph_schema"], ok = h.schema(ctx)
	}

	respond(c, ok, "unhealthy", gin.H{
		"status":      "healthy",
		"service":     serviceName,
		"version":     Version,
		"build_info":  gin.H{"git_commit": GitCommit, "build_time": BuildTime},
		"environment": gin.H{"go_version": runtime.Version()},
		"timestamp":   now(),
		"checks":      checks,
		"metrics":     gin.H{"response_time_ms": time.Since(start).Milliseconds()},
	})
}

func megabytes(n uint64) string { return fmt.Sprintf("%.2f MB", float64(n)/(1<<20)) }

func runtimeStats() gin.H {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return gin.H{
		"status":       "healthy",
		"memory_usage": megabytes(m.Alloc),
		"stack_usage":  megabytes(m.StackSys),
		"heap_objects": m.HeapObjects,
		"gc_cycles":    m.NumGC,
		"goroutines":   runtime.NumGoroutine(),
		"uptime":       uptime(),
	}
}
