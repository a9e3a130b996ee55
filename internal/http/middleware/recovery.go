// README: Recovery middleware: turns handler panics into a logged 500.
package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func Recovery(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				log.WithFields(logrus.Fields{
					"panic":      rec,
					"path":       c.Request.URL.Path,
					"request_id": RequestID(c),
					"stack":      string(debug.Stack()),
				}).Error("panic recovered")
				abort(c, http.StatusInternalServerError, "internal_error", "internal error")
			}
		}()
		c.Next()
	}
}
