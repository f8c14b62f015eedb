package handlers

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Larvizub/arvidev-presupuestos/internal/services"
)

// keepAliveInterval keeps idle proxies from closing event streams.
const keepAliveInterval = 25 * time.Second

// streamSubscription forwards every update of sub to the client as a
// server-sent event named event, until the client goes away or the
// subscription ends. The subscription is always cancelled on return.
func streamSubscription[T any](c *gin.Context, event string, sub *services.Subscription[T]) {
	defer sub.Cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	ctx := c.Request.Context()
	c.Stream(func(_ io.Writer) bool {
		select {
		case v, ok := <-sub.Updates():
			if !ok {
				return false
			}
			c.SSEvent(event, v)
			return true
		case <-ticker.C:
			c.SSEvent("ping", time.Now().UTC().Unix())
			return true
		case <-ctx.Done():
			return false
		}
	})
}
