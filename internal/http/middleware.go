package http

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quantumauth-io/quantum-go-utils/log"
)

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}

func loopbackOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isLoopbackRequest(c.Request) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{JSONKeyError: HTTPErrorForbiddenText})
			return
		}
		c.Next()
	}
}

// agentGuards is loopbackOnly plus a safe Host header and the session token.
func agentGuards(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isLoopbackRequest(c.Request) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{JSONKeyError: HTTPErrorForbiddenText})
			return
		}
		if !isSafeLocalHost(c.Request.Host) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{JSONKeyError: HTTPErrorForbiddenHostText})
			return
		}
		got := c.GetHeader(AgentSessionHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{JSONKeyError: HTTPErrorUnauthorizedText})
			return
		}
		c.Next()
	}
}
