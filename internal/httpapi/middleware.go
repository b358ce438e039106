package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/cory-johannsen/chatrelay/internal/observability"
)

// metricsMiddleware counts requests by route template and status code.
func metricsMiddleware(m *observability.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := "unmatched"
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			snoop := httpsnoop.CaptureMetrics(next, w, r)
			m.HTTPRequest(route, strconv.Itoa(snoop.Code))
		})
	}
}

// accessLogFormatter writes one structured entry per request.
func accessLogFormatter(logger *zap.Logger) handlers.LogFormatter {
	return func(_ io.Writer, p handlers.LogFormatterParams) {
		logger.Info("http request",
			zap.String("method", p.Request.Method),
			zap.String("path", p.URL.Path),
			zap.Int("status", p.StatusCode),
			zap.Int("size", p.Size),
			zap.String("remote_addr", p.Request.RemoteAddr),
			zap.Time("started", p.TimeStamp),
		)
	}
}

type recoveryLogger struct {
	logger *zap.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error("handler panic", zap.String("panic", fmt.Sprint(v...)))
}
