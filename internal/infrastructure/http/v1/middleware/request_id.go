package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"tindahan/internal/core/appctx"
)

// HeaderRequestID is the request correlation header.
const HeaderRequestID = "X-Request-ID"

// RequestID extracts or generates a request id and carries it through
// context and the response headers.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := appctx.WithRequestID(c.Request.Context(), requestID)
		c.Request = c.Request.WithContext(ctx)

		c.Set("request_id", requestID)
		c.Header(HeaderRequestID, requestID)

		c.Next()
	}
}
