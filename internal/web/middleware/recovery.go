package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	webcontext "github.com/conduit-lang/hyperapi/internal/web/context"
)

// RecoveryConfig holds configuration for the recovery middleware
type RecoveryConfig struct {
	// EnableStackTrace logs the stack of the panicking goroutine
	EnableStackTrace bool

	Logger *zap.Logger

	// ResponseHandler writes the response; the error wraps the panic value
	ResponseHandler func(http.ResponseWriter, *http.Request, error)
}

// Recovery creates a middleware that recovers from panics, logs them and
// hands an error to respond
func Recovery(logger *zap.Logger, respond func(http.ResponseWriter, *http.Request, error)) Middleware {
	return RecoveryWithConfig(RecoveryConfig{EnableStackTrace: true, Logger: logger, ResponseHandler: respond})
}

// RecoveryWithConfig creates a recovery middleware with custom configuration
func RecoveryWithConfig(config RecoveryConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				err, ok := rec.(error)
				if !ok {
					err = fmt.Errorf("panic: %v", rec)
				}
				fields := []zap.Field{zap.Error(err), zap.String("method", r.Method), zap.String("path", r.URL.Path)}
				if config.EnableStackTrace {
					fields = append(fields, zap.ByteString("stack", debug.Stack()))
				}
				webcontext.Logger(r.Context(), config.Logger).Error("panic recovered", fields...)

				if config.ResponseHandler != nil {
					config.ResponseHandler(w, r, err)
					return
				}
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
