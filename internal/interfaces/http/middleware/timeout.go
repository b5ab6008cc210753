// internal/interfaces/http/middleware/timeout.go
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Timeout caps how long a request may run. The handler chain continues on
// its own goroutine; when the deadline passes first the client gets a 408
// and the handler's late writes are discarded by gin.
func Timeout(limit time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), limit)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)

		done := make(chan struct{})
		panicked := make(chan interface{}, 1)
		go func() {
			defer func() {
				// Recovery only guards its own goroutine; a panic here
				// must be carried back or it kills the process.
				if r := recover(); r != nil {
					panicked <- r
				}
				close(done)
			}()
			c.Next()
		}()

		select {
		case <-done:
			select {
			case r := <-panicked:
				panic(r)
			default:
			}
		case <-ctx.Done():
			c.AbortWithStatusJSON(http.StatusRequestTimeout, gin.H{
				"error": "Request timeout",
			})
		}
	}
}
