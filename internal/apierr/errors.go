// Package apierr defines the error taxonomy shared by the metadata pipeline,
// the filter engine, the serializer and the HTTP layer.
//
// Configuration errors (unknown resource class, unknown filter, malformed
// declarations) fail fast while metadata is built. Request-input errors that
// are structurally invalid surface as InvalidArgument and map to a 400
// response. Denormalization errors carry the offending attribute and resource
// class so clients can tell what went wrong.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors usable with errors.Is
var (
	// ErrResourceClassNotFound is matched by every ResourceClassNotFoundError
	ErrResourceClassNotFound = errors.New("resource class not found")

	// ErrOperationNotFound is matched by every OperationNotFoundError
	ErrOperationNotFound = errors.New("operation not found")

	// ErrInvalidArgument is matched by every InvalidArgumentError
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotNormalizable is matched by every NotNormalizableValueError
	ErrNotNormalizable = errors.New("not normalizable value")

	// ErrItemNotFound is matched by every ItemNotFoundError
	ErrItemNotFound = errors.New("item not found")

	// ErrConfiguration is matched by every ConfigurationError
	ErrConfiguration = errors.New("configuration error")
)

// StatusCoder is implemented by errors that know their HTTP status
type StatusCoder interface {
	StatusCode() int
}

// ResourceClassNotFoundError is returned when a class is not a registered resource
type ResourceClassNotFoundError struct {
	Class string
}

func (e *ResourceClassNotFoundError) Error() string {
	return fmt.Sprintf("resource class %q not found", e.Class)
}

func (e *ResourceClassNotFoundError) Is(target error) bool { return target == ErrResourceClassNotFound }

// StatusCode implements StatusCoder
func (e *ResourceClassNotFoundError) StatusCode() int { return http.StatusInternalServerError }

// ResourceClassNotFound builds a ResourceClassNotFoundError
func ResourceClassNotFound(class string) error {
	return &ResourceClassNotFoundError{Class: class}
}

// OperationNotFoundError is returned when an operation name does not exist on a resource
type OperationNotFoundError struct {
	Class     string
	Operation string
}

func (e *OperationNotFoundError) Error() string {
	if e.Class == "" {
		return fmt.Sprintf("operation %q not found", e.Operation)
	}
	return fmt.Sprintf("operation %q not found for resource %q", e.Operation, e.Class)
}

func (e *OperationNotFoundError) Is(target error) bool { return target == ErrOperationNotFound }

// StatusCode implements StatusCoder
func (e *OperationNotFoundError) StatusCode() int { return http.StatusNotFound }

// OperationNotFound builds an OperationNotFoundError
func OperationNotFound(class, operation string) error {
	return &OperationNotFoundError{Class: class, Operation: operation}
}

// InvalidArgumentError reports structurally invalid input such as a malformed
// between range or an unknown search strategy
type InvalidArgumentError struct {
	Message   string
	Attribute string
	Class     string
}

func (e *InvalidArgumentError) Error() string {
	return e.Message
}

func (e *InvalidArgumentError) Is(target error) bool { return target == ErrInvalidArgument }

// StatusCode implements StatusCoder
func (e *InvalidArgumentError) StatusCode() int { return http.StatusBadRequest }

// InvalidArgument builds an InvalidArgumentError from a format string
func InvalidArgument(format string, args ...interface{}) error {
	return &InvalidArgumentError{Message: fmt.Sprintf(format, args...)}
}

// InvalidAttribute builds an InvalidArgumentError bound to an attribute of a resource class
func InvalidAttribute(class, attribute, format string, args ...interface{}) error {
	return &InvalidArgumentError{
		Message:   fmt.Sprintf(format, args...),
		Attribute: attribute,
		Class:     class,
	}
}

// NotNormalizableValueError is returned when a payload cannot be turned into an object
type NotNormalizableValueError struct {
	Message   string
	Attribute string
	Class     string
}

func (e *NotNormalizableValueError) Error() string {
	return e.Message
}

func (e *NotNormalizableValueError) Is(target error) bool { return target == ErrNotNormalizable }

// StatusCode implements StatusCoder
func (e *NotNormalizableValueError) StatusCode() int { return http.StatusBadRequest }

// NotNormalizableValue builds a NotNormalizableValueError
func NotNormalizableValue(class, attribute, format string, args ...interface{}) error {
	return &NotNormalizableValueError{
		Message:   fmt.Sprintf(format, args...),
		Attribute: attribute,
		Class:     class,
	}
}

// ItemNotFoundError is returned when an item or an IRI cannot be resolved
type ItemNotFoundError struct {
	Class string
	IRI   string
}

func (e *ItemNotFoundError) Error() string {
	if e.IRI != "" {
		return fmt.Sprintf("item not found for %q", e.IRI)
	}
	return fmt.Sprintf("%s not found", e.Class)
}

func (e *ItemNotFoundError) Is(target error) bool { return target == ErrItemNotFound }

// StatusCode implements StatusCoder
func (e *ItemNotFoundError) StatusCode() int { return http.StatusNotFound }

// ItemNotFound builds an ItemNotFoundError for a resource class
func ItemNotFound(class string) error {
	return &ItemNotFoundError{Class: class}
}

// IRINotFound builds an ItemNotFoundError for an IRI
func IRINotFound(iri string) error {
	return &ItemNotFoundError{IRI: iri}
}

// ConfigurationError reports a developer or deployment mistake detected while
// building metadata
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// StatusCode implements StatusCoder
func (e *ConfigurationError) StatusCode() int { return http.StatusInternalServerError }

// Configuration builds a ConfigurationError
func Configuration(format string, args ...interface{}) error {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

// StatusCode returns the HTTP status carried by err, or 500
func StatusCode(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return http.StatusInternalServerError
}

// IsInvalidArgument returns true if err is an InvalidArgumentError
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsResourceClassNotFound returns true if err is a ResourceClassNotFoundError
func IsResourceClassNotFound(err error) bool {
	return errors.Is(err, ErrResourceClassNotFound)
}

// IsItemNotFound returns true if err is an ItemNotFoundError
func IsItemNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound)
}
