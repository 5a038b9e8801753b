package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	webcontext "github.com/conduit-lang/hyperapi/internal/web/context"
)

// RequestIDHeader is the header read and written by RequestID
const RequestIDHeader = "X-Request-ID"

// RequestIDConfig holds configuration for the request ID middleware
type RequestIDConfig struct {
	// HeaderName is the name of the header to read/write the request ID
	HeaderName string

	// Generator creates ids for requests that carry none
	Generator func() string

	// Logger is the base of the request logger, which gets a request_id
	// field
	Logger *zap.Logger
}

// RequestID creates a middleware that adds a unique request ID to each
// request and a request logger carrying it
func RequestID(logger *zap.Logger) Middleware {
	return RequestIDWithConfig(RequestIDConfig{Logger: logger})
}

// RequestIDWithConfig creates a request ID middleware with custom configuration
func RequestIDWithConfig(config RequestIDConfig) Middleware {
	if config.HeaderName == "" {
		config.HeaderName = RequestIDHeader
	}
	if config.Generator == nil {
		config.Generator = func() string { return uuid.New().String() }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(config.HeaderName)
			if requestID == "" {
				requestID = config.Generator()
			}

			ctx := webcontext.SetRequestID(r.Context(), requestID)
			if config.Logger != nil {
				ctx = webcontext.SetLogger(ctx, config.Logger.With(zap.String("request_id", requestID)))
			}
			w.Header().Set(config.HeaderName, requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
