package audit

import (
	"net/http"
	"time"
)

// Middleware makes logger available to handlers through FromContext and
// records mutating requests that fail with a server error. Client errors
// are left to the handlers, which know whether a denial is worth an event.
func Middleware(logger Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := WithLogger(r.Context(), logger)

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r.WithContext(ctx))

			if !isMutation(r.Method) || wrapped.statusCode < http.StatusInternalServerError {
				return
			}
			event := NewEvent(ctx, EventTypeRequestFailed, ResourceTypeRequest, r.URL.Path)
			event.Status = EventStatusFailure
			event.Metadata["method"] = r.Method
			event.Metadata["status_code"] = wrapped.statusCode
			event.Metadata["duration_ms"] = time.Since(start).Milliseconds()
			Record(ctx, logger, event)
		})
	}
}

func isMutation(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// responseWriter captures the status code written by the handler
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}
