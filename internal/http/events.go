package http

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
)

// streamEvents keeps a server-sent event stream open for the caller. Every
// change produces a tasks_changed event; notification events are added when
// the change concerns the caller.
func (h *Handler) streamEvents(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	sub := h.hub.Subscribe(principal.UserID)
	defer h.hub.Unsubscribe(sub)

	if h.focus != nil {
		h.focus.Focus()
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := c.Request.Context()
	c.SSEvent("ready", gin.H{"user_id": principal.UserID})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case msg, open := <-sub.C():
			if !open {
				return false
			}
			c.SSEvent(msg.Event, msg.Data)
			return true
		case <-ticker.C:
			c.SSEvent("ping", time.Now().UTC().Unix())
			return true
		}
	})
}
