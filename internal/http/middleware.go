package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_fashionary/internal/logger"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

type ctxKey int

const operatorKey ctxKey = 0

const defaultOperator = "warehouse"

// MockAuthMiddleware tags the request with the operator named in X-Operator.
// Nothing is verified.
func MockAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		operator := strings.TrimSpace(r.Header.Get("X-Operator"))
		if operator == "" {
			operator = defaultOperator
		}
		ctx := context.WithValue(r.Context(), operatorKey, operator)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDMiddleware echoes the request id and attaches a request scoped log
// entry to the context. It expects chi's middleware.RequestID to run first.
func RequestIDMiddleware(base *logrus.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := middleware.GetReqID(r.Context())
			if requestID == "" {
				requestID = r.Header.Get(middleware.RequestIDHeader)
			}

			ctx := logger.WithEntry(r.Context(), base.WithField("request_id", requestID))
			w.Header().Set(middleware.RequestIDHeader, requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestLogger logs one line per request.
func RequestLogger(base *logrus.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			entry := logger.FromContext(r.Context(), base).WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   status,
				"bytes":    ww.BytesWritten(),
				"duration": time.Since(start).String(),
				"operator": getOperator(r.Context()),
			})
			switch {
			case status >= 500:
				entry.Error("request failed")
			case status >= 400:
				entry.Warn("request rejected")
			default:
				entry.Info("request served")
			}
		})
	}
}

func getOperator(ctx context.Context) string {
	if operator, ok := ctx.Value(operatorKey).(string); ok {
		return operator
	}
	return ""
}
