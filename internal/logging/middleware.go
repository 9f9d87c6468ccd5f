package logging

import (
	"log/slog"
	"net/http"
	"time"

	"pitchcam/internal/services"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

// RequestLogger returns chi-compatible middleware that logs each request with
// method, path, status, duration and response size. Successful reads are
// logged at debug so status polling does not flood the log.
func RequestLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			attrs := []Attr{
				String("method", r.Method),
				String("path", r.URL.Path),
				Int("status", rec.status),
				Int64("duration_ms", time.Since(start).Milliseconds()),
				Int("size", rec.size),
			}
			if rid, ok := services.RequestIDFromContext(r.Context()); ok {
				attrs = append(attrs, String(FieldCorrelationID, rid))
			}
			level := slog.LevelInfo
			switch {
			case rec.status >= http.StatusInternalServerError:
				level = slog.LevelWarn
			case r.Method == http.MethodGet && rec.status < http.StatusBadRequest:
				level = slog.LevelDebug
			}
			logger.LogAttrs(r.Context(), level, "http request", attrs...)
		})
	}
}
