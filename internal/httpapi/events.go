package httpapi

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"wrapdesk/internal/realtime"
	"wrapdesk/pkg/logger"
)

const defaultHeartbeat = 25 * time.Second

// Events streams realtime events as server-sent events. Each event's name
// is its kind and its data is the Event envelope. A client whose buffer
// overflows is disconnected. With ?replay=1 the latest event of each
// recently changed record follows "ready", so a reconnect can skip the
// full reload.
func (h Handlers) Events(c *gin.Context) {
	if h.Hub == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "realtime not configured"})
		return
	}
	var (
		sub    *realtime.Subscription
		replay []realtime.Event
	)
	if queryFlag(c, "replay") {
		sub, replay = h.Hub.SubscribeWithSnapshot()
	} else {
		sub = h.Hub.Subscribe()
	}
	defer sub.Close()

	heartbeat := h.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	log := logger.FromGin(c)
	filter := realtime.NewSeqFilter()
	ctx := c.Request.Context()

	c.SSEvent("ready", gin.H{"at": time.Now().UTC(), "replay": len(replay)})
	for _, ev := range replay {
		if filter.Accept(ev) {
			c.SSEvent(string(ev.Kind), ev)
		}
	}
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-sub.C:
			if !ok {
				log.Info("realtime subscriber dropped")
				return false
			}
			if !filter.Accept(ev) {
				return true
			}
			c.SSEvent(string(ev.Kind), ev)
			return true
		case t := <-ticker.C:
			c.SSEvent("ping", gin.H{"at": t.UTC()})
			return true
		}
	})
}
