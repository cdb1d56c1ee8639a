package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-backend/internal/config"
	"github.com/stemsi/cbt-backend/internal/response"
	"github.com/stemsi/cbt-backend/internal/service"
)

const metricsInterval = 7 * time.Second

// SystemHandler serves health, public school info and a metrics stream
// for the exam room operator.
type SystemHandler struct {
	rdb          *redis.Client
	catalog      *service.CatalogService
	examSessions *service.ExamSessionService
	storeDriver  string
	startTime    time.Time
	log          zerolog.Logger
}

func NewSystemHandler(
	rdb *redis.Client,
	catalog *service.CatalogService,
	examSessions *service.ExamSessionService,
	storeDriver string,
	log zerolog.Logger,
) *SystemHandler {
	return &SystemHandler{
		rdb:          rdb,
		catalog:      catalog,
		examSessions: examSessions,
		storeDriver:  storeDriver,
		startTime:    time.Now(),
		log:          log.With().Str("component", "system_handler").Logger(),
	}
}

// Health godoc
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{
		"status":   "ok",
		"store":    h.storeDriver,
		"loadedAt": h.catalog.LoadedAt(),
	})
}

// GetSchool godoc
// GET /api/v1/public/school
// School identity for the login screen.
func (h *SystemHandler) GetSchool(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"school": h.catalog.SchoolData().Public()})
}

// ---------- SSE Endpoint ----------

type systemMetrics struct {
	Timestamp int64  `json:"timestamp"`
	Uptime    string `json:"uptime"`

	// Go Application
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	HeapSys    uint64 `json:"heap_sys"`
	NumGC      uint32 `json:"num_gc"`
	GoVersion  string `json:"go_version"`
	NumCPU     int    `json:"num_cpu"`

	// Exam
	LiveSessions int    `json:"live_sessions"`
	Store        string `json:"store"`
	CatalogAge   string `json:"catalog_age"`

	// Worker Queues
	QueueStatuses int64 `json:"queue_statuses"`
	QueueResults  int64 `json:"queue_results"`
	QueueDraws    int64 `json:"queue_draws"`
}

// SystemMetricsSSE godoc
// GET /api/v1/admin/system/metrics
func (h *SystemHandler) SystemMetricsSSE(c *gin.Context) {
	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.log.Info().Msg("Admin connected to system metrics SSE")

	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	// Send immediately on connect, then every tick
	h.writeMetrics(reqCtx, c)

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Msg("Admin disconnected from system metrics SSE")
			return
		case <-ticker.C:
			h.writeMetrics(reqCtx, c)
		}
	}
}

func (h *SystemHandler) writeMetrics(ctx context.Context, c *gin.Context) {
	data, err := json.Marshal(h.collect(ctx))
	if err != nil {
		return
	}
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(data)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}

func (h *SystemHandler) collect(ctx context.Context) systemMetrics {
	m := systemMetrics{
		Timestamp:    time.Now().Unix(),
		Uptime:       formatDuration(time.Since(h.startTime)),
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		LiveSessions: h.examSessions.Active(),
		Store:        h.storeDriver,
	}
	if loaded := h.catalog.LoadedAt(); !loaded.IsZero() {
		m.CatalogAge = formatDuration(time.Since(loaded))
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.Goroutines = runtime.NumGoroutine()
	m.HeapAlloc = ms.HeapAlloc
	m.HeapSys = ms.Sys
	m.NumGC = ms.NumGC

	if h.rdb == nil {
		return m
	}

	// ── Worker Queues (pipelined LLEN) ──
	pipe := h.rdb.Pipeline()
	statusCmd := pipe.LLen(ctx, config.WorkerKey.PersistStatusQueue)
	resultCmd := pipe.LLen(ctx, config.WorkerKey.PersistResultQueue)
	drawCmd := pipe.LLen(ctx, config.WorkerKey.PersistDrawQueue)
	if _, err := pipe.Exec(ctx); err == nil {
		m.QueueStatuses, _ = statusCmd.Result()
		m.QueueResults, _ = resultCmd.Result()
		m.QueueDraws, _ = drawCmd.Result()
	}

	return m
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
