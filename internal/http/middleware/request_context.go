package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/loresmith/internal/platform/ctxutil"
)

// AttachRequestContext gives every request an empty ctxutil.RequestData and caps the
// request body at maxBytes when positive.
func AttachRequestContext(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Request = c.Request.WithContext(ctxutil.WithRequestData(c.Request.Context()))
		c.Next()
	}
}
