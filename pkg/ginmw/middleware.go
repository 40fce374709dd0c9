// Package ginmw provides the gin middleware shared by the payment server
// binaries.
package ginmw

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// LoggerOptions is the options for the RequestLogger.
type LoggerOptions struct {
	SkipPaths map[string]bool
}

// LoggerOption configures the RequestLogger.
type LoggerOption func(*LoggerOptions)

// WithSkipPaths is an option for the RequestLogger to silence noisy routes
// such as health and metrics probes.
func WithSkipPaths(paths ...string) LoggerOption {
	return func(options *LoggerOptions) {
		for _, p := range paths {
			options.SkipPaths[p] = true
		}
	}
}

// RequestLogger logs one structured line per handled request.
func RequestLogger(log *logrus.Logger, opts ...LoggerOption) gin.HandlerFunc {
	options := LoggerOptions{
		SkipPaths: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(&options)
	}

	return func(c *gin.Context) {
		started := time.Now()
		path := c.Request.URL.Path

		c.Next()

		if options.SkipPaths[path] {
			return
		}

		fields := logrus.Fields{
			"method":   c.Request.Method,
			"path":     path,
			"status":   c.Writer.Status(),
			"duration": time.Since(started).String(),
			"clientIp": c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		entry := log.WithFields(fields)
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			entry.Error("request handled")
		case c.Writer.Status() >= http.StatusBadRequest:
			entry.Warn("request handled")
		default:
			entry.Info("request handled")
		}
	}
}

// Recovery turns panics into 500 responses and logs them instead of letting
// the process die on a single bad request.
func Recovery(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.WithFields(logrus.Fields{
					"method": c.Request.Method,
					"path":   c.Request.URL.Path,
					"panic":  r,
				}).Error("request panicked")
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}
