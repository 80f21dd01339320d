package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/tara/internal/config"
)

const (
	metricsInterval = 5 * time.Second
	pingTimeout     = 2 * time.Second
)

// SessionCounter reports how many sessions are connected.
type SessionCounter interface {
	ActiveCount() int
}

// SystemHandler serves health checks and streams runtime metrics via SSE.
type SystemHandler struct {
	db        *pgxpool.Pool
	rdb       *redis.Client
	sessions  SessionCounter
	startTime time.Time
	log       zerolog.Logger
}

func NewSystemHandler(db *pgxpool.Pool, rdb *redis.Client, sessions SessionCounter, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		db:        db,
		rdb:       rdb,
		sessions:  sessions,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

// Health godoc
// GET /health
// Pings Postgres and Redis. 503 when either is down.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
	defer cancel()

	checks := gin.H{"postgres": "ok", "redis": "ok"}
	status := http.StatusOK
	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			checks["postgres"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	if h.rdb != nil {
		if err := h.rdb.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	c.JSON(status, gin.H{"status": http.StatusText(status), "checks": checks})
}

// ---------- SSE Endpoint ----------

type systemMetrics struct {
	Timestamp int64  `json:"timestamp"`
	Uptime    string `json:"uptime"`

	// Go Application
	Goroutines  int    `json:"goroutines"`
	HeapAlloc   uint64 `json:"heap_alloc"`
	HeapSys     uint64 `json:"heap_sys"`
	NumGC       uint32 `json:"num_gc"`
	AppRSSBytes uint64 `json:"app_rss_bytes"`
	GoVersion   string `json:"go_version"`

	// Proctoring
	ActiveSessions  int   `json:"active_sessions"`
	QueueViolations int64 `json:"queue_violations"`
	QueueResults    int64 `json:"queue_pending_results"`
}

// SystemMetricsSSE godoc
// GET /api/v1/system/metrics
func (h *SystemHandler) SystemMetricsSSE(c *gin.Context) {
	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.log.Info().Msg("Client connected to system metrics SSE")

	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	// Send immediately on connect, then every tick
	h.writeMetrics(c)

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Msg("Client disconnected from system metrics SSE")
			return
		case <-ticker.C:
			h.writeMetrics(c)
		}
	}
}

func (h *SystemHandler) writeMetrics(c *gin.Context) {
	data, err := json.Marshal(h.collect(c.Request.Context()))
	if err != nil {
		return
	}
	fmt.Fprintf(c.Writer, "data: %s\n\n", data)
	c.Writer.Flush()
}

func (h *SystemHandler) collect(ctx context.Context) systemMetrics {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	m := systemMetrics{
		Timestamp:  time.Now().Unix(),
		Uptime:     formatDuration(time.Since(h.startTime)),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  ms.HeapAlloc,
		HeapSys:    ms.Sys,
		NumGC:      ms.NumGC,
		GoVersion:  runtime.Version(),
	}
	m.AppRSSBytes, _ = readProcessRSS()
	if h.sessions != nil {
		m.ActiveSessions = h.sessions.ActiveCount()
	}

	if h.rdb != nil {
		pipe := h.rdb.Pipeline()
		violations := pipe.LLen(ctx, config.WorkerKey.PersistViolationsQueue)
		results := pipe.LLen(ctx, config.WorkerKey.PendingResultsQueue)
		if _, err := pipe.Exec(ctx); err == nil {
			m.QueueViolations, _ = violations.Result()
			m.QueueResults, _ = results.Result()
		}
	}

	return m
}

// readProcessRSS reads VmRSS from /proc/self/status. Linux only.
func readProcessRSS() (uint64, error) {
	f, err := os.Open("/proc/self/status")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "VmRSS:") {
			continue
		}
		// Format: "VmRSS:     123456 kB"
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, err
		}
		return kb * 1024, nil
	}
	return 0, fmt.Errorf("VmRSS not found")
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
