package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lithammer/shortuuid/v3"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/bus-ticket-reservation/internal/logging"
)

// RequestIDHeader carries the correlation id in and out.
const RequestIDHeader = "X-Request-ID"

// RequestLogger attaches a correlation id and a request-scoped logger to
// the request context and logs one line per request.
func RequestLogger(base *logrus.Entry) echo.MiddlewareFunc {
	if base == nil {
		base = logrus.NewEntry(logrus.StandardLogger())
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := req.Header.Get(RequestIDHeader)
			if id == "" || len(id) > 64 {
				id = shortuuid.New()
			}
			c.Response().Header().Set(RequestIDHeader, id)

			logger := base.WithFields(logrus.Fields{
				"correlation_id": id,
				"method":         req.Method,
				"path":           req.URL.Path,
			})
			ctx := logging.ContextWithCorrelationID(req.Context(), id)
			c.SetRequest(req.WithContext(logging.ToContext(ctx, logger)))

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			entry := logging.FromContext(c.Request().Context()).WithFields(logrus.Fields{
				"status":     c.Response().Status,
				"latency_ms": time.Since(start).Milliseconds(),
				"remote_ip":  c.RealIP(),
			})
			switch status := c.Response().Status; {
			case status >= 500:
				entry.Error("request failed")
			case status >= 400:
				entry.Info("request rejected")
			default:
				entry.Debug("request served")
			}
			return nil
		}
	}
}
