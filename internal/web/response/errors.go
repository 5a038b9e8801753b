package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/conduit-lang/hyperapi/internal/apierr"
	"github.com/conduit-lang/hyperapi/internal/metadata"
)

// ProblemMediaType is the media type of error documents in plain formats
const ProblemMediaType = "application/problem+json"

const errorTitle = "An error occurred"

// ErrorDocument builds the error document of err in format. Messages of
// server errors are replaced by the status text unless debug is set.
func ErrorDocument(format string, status int, err error, debug bool) map[string]interface{} {
	detail := err.Error()
	if status >= http.StatusInternalServerError && !debug {
		detail = http.StatusText(status)
	}

	switch format {
	case metadata.FormatJSONLD:
		return map[string]interface{}{
			"@context":          "/contexts/Error",
			"@type":             "hydra:Error",
			"hydra:title":       errorTitle,
			"hydra:description": detail,
		}

	case metadata.FormatJSONAPI:
		entry := map[string]interface{}{
			"status": strconv.Itoa(status),
			"code":   errorCodeFromStatus(status),
			"title":  http.StatusText(status),
			"detail": detail,
		}
		if attr := attributeOf(err); attr != "" {
			entry["source"] = map[string]interface{}{"pointer": "/data/attributes/" + attr}
		}
		return map[string]interface{}{"errors": []interface{}{entry}}
	}

	doc := map[string]interface{}{
		"type":   "/errors/" + strconv.Itoa(status),
		"title":  errorTitle,
		"status": status,
		"detail": detail,
	}
	if attr := attributeOf(err); attr != "" {
		doc["attribute"] = attr
	}
	return doc
}

// ErrorContentType returns the content type of error documents in format
func ErrorContentType(format string) string {
	switch format {
	case metadata.FormatJSONLD, metadata.FormatJSONAPI:
		return ContentType(format)
	}
	return ProblemMediaType
}

// RenderError writes err as an error document of format. The status comes
// from the error; unknown errors are server errors.
func RenderError(w http.ResponseWriter, format string, err error, debug bool) {
	status := apierr.StatusCode(err)
	body, encErr := json.Marshal(ErrorDocument(format, status, err, debug))
	if encErr != nil {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(http.StatusText(http.StatusInternalServerError)))
		return
	}
	w.Header().Set("Content-Type", ErrorContentType(format))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// RenderMethodNotAllowed writes a 405 listing the allowed methods
func RenderMethodNotAllowed(w http.ResponseWriter, format string, allowedMethods []string) {
	w.Header().Set("Allow", strings.Join(allowedMethods, ", "))
	RenderError(w, format, &statusError{status: http.StatusMethodNotAllowed, message: "method not allowed"}, false)
}

// RenderNotAcceptable writes a 406 naming the formats the route serves
func RenderNotAcceptable(w http.ResponseWriter, accept string, available []string) {
	err := &statusError{
		status:  http.StatusNotAcceptable,
		message: "requested format \"" + accept + "\" is not supported, supported MIME types are \"" + strings.Join(available, "\", \"") + "\"",
	}
	RenderError(w, metadata.FormatJSON, err, false)
}

// UnsupportedMediaType is the error of a request body in a format the
// operation does not accept
func UnsupportedMediaType(contentType string, available []string) error {
	return &statusError{
		status:  http.StatusUnsupportedMediaType,
		message: "the content-type \"" + contentType + "\" is not supported, supported MIME types are \"" + strings.Join(available, "\", \"") + "\"",
	}
}

// statusError is an error with a fixed HTTP status
type statusError struct {
	status  int
	message string
}

func (e *statusError) Error() string { return e.message }

// StatusCode implements apierr.StatusCoder
func (e *statusError) StatusCode() int { return e.status }

func attributeOf(err error) string {
	var invalid *apierr.InvalidArgumentError
	if errors.As(err, &invalid) {
		return invalid.Attribute
	}
	var notNormalizable *apierr.NotNormalizableValueError
	if errors.As(err, &notNormalizable) {
		return notNormalizable.Attribute
	}
	return ""
}

// errorCodeFromStatus maps HTTP status codes to error codes
func errorCodeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusNotAcceptable:
		return "not_acceptable"
	case http.StatusConflict:
		return "conflict"
	case http.StatusRequestEntityTooLarge:
		return "request_too_large"
	case http.StatusUnsupportedMediaType:
		return "unsupported_media_type"
	case http.StatusUnprocessableEntity:
		return "unprocessable_entity"
	case http.StatusInternalServerError:
		return "internal_error"
	case http.StatusServiceUnavailable:
		return "service_unavailable"
	default:
		return "error"
	}
}
