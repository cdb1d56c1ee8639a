package handler

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-backend/internal/model"
	"github.com/stemsi/cbt-backend/internal/service"
)

const keepAliveInterval = 30 * time.Second

// MonitorHandler streams the live roster of the active exam over SSE.
type MonitorHandler struct {
	monitorService *service.MonitorService
	interval       time.Duration
	log            zerolog.Logger
}

func NewMonitorHandler(monitorService *service.MonitorService, interval time.Duration, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		monitorService: monitorService,
		interval:       interval,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorSSE godoc
// GET /api/v1/admin/exam/monitor
// Sends a "snapshot" event on connect and on every refresh, plus a ping
// to keep proxies from closing an idle stream.
func (h *MonitorHandler) MonitorSSE(c *gin.Context) {
	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	snapshots := make(chan *model.MonitorSnapshot, 1)
	go h.monitorService.Poll(reqCtx, h.interval, func(snap *model.MonitorSnapshot) {
		// Only the latest snapshot matters to a slow client.
		select {
		case <-snapshots:
		default:
		}
		select {
		case snapshots <- snap:
		case <-reqCtx.Done():
		}
	})

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	h.log.Info().Str("ip", c.ClientIP()).Msg("Admin attached to live monitor SSE")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Msg("Admin disconnected from live monitor SSE")
			return

		case snap := <-snapshots:
			c.SSEvent("message", map[string]interface{}{
				"type": "snapshot",
				"data": snap,
			})
			c.Writer.Flush()

		case <-keepAliveTicker.C:
			c.Writer.Write([]byte("data: "))
			c.Writer.Write(pingPayload)
			c.Writer.Write([]byte("\n\n"))
			c.Writer.Flush()
		}
	}
}
