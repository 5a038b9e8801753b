// Package serializer turns resources into format-specific documents and
// request payloads back into resources. Normalizers are chained: the first
// one supporting a value handles it and calls back into the Serializer for
// nested values.
package serializer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/conduit-lang/hyperapi/internal/apierr"
	"github.com/conduit-lang/hyperapi/internal/logging"
)

// ErrUnsupported is returned when no normalizer handles a value
var ErrUnsupported = errors.New("no normalizer supports the value")

// Normalizer converts a value into a document tree of maps, slices and
// scalars
type Normalizer interface {
	SupportsNormalization(data interface{}, format string, sctx *Context) bool
	Normalize(ctx context.Context, data interface{}, format string, sctx *Context) (interface{}, error)
}

// Denormalizer builds a value of class from a decoded payload
type Denormalizer interface {
	SupportsDenormalization(data interface{}, class, format string) bool
	Denormalize(ctx context.Context, data interface{}, class, format string, sctx *Context) (interface{}, error)
}

// Aware is implemented by normalizers that delegate nested values
type Aware interface {
	SetSerializer(s *Serializer)
}

// Serializer runs the normalizer chain
type Serializer struct {
	normalizers   []Normalizer
	denormalizers []Denormalizer
	logger        *zap.Logger
}

// Option configures a Serializer
type Option func(*Serializer)

// WithLogger sets the serializer logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Serializer) {
		s.logger = l
	}
}

// New creates a serializer. Normalizers are tried in order.
func New(normalizers []Normalizer, denormalizers []Denormalizer, opts ...Option) *Serializer {
	s := &Serializer{normalizers: normalizers, denormalizers: denormalizers}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger).Named("serializer")
	for _, n := range normalizers {
		if a, ok := n.(Aware); ok {
			a.SetSerializer(s)
		}
	}
	for _, d := range denormalizers {
		if a, ok := d.(Aware); ok {
			a.SetSerializer(s)
		}
	}
	return s
}

// Normalize hands data to the first normalizer supporting it
func (s *Serializer) Normalize(ctx context.Context, data interface{}, format string, sctx *Context) (interface{}, error) {
	if sctx == nil {
		sctx = &Context{Format: format}
	}
	for _, n := range s.normalizers {
		if n.SupportsNormalization(data, format, sctx) {
			return n.Normalize(ctx, data, format, sctx)
		}
	}
	return nil, fmt.Errorf("%w: %T in format %s", ErrUnsupported, data, format)
}

// Denormalize hands data to the first denormalizer supporting class
func (s *Serializer) Denormalize(ctx context.Context, data interface{}, class, format string, sctx *Context) (interface{}, error) {
	if sctx == nil {
		sctx = &Context{Format: format, ResourceClass: class}
	}
	for _, d := range s.denormalizers {
		if d.SupportsDenormalization(data, class, format) {
			return d.Denormalize(ctx, data, class, format, sctx)
		}
	}
	return nil, fmt.Errorf("%w: %s from format %s", ErrUnsupported, class, format)
}

// Serialize normalizes data and encodes the document as JSON
func (s *Serializer) Serialize(ctx context.Context, data interface{}, format string, sctx *Context) ([]byte, error) {
	doc, err := s.Normalize(ctx, data, format, sctx)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding %s document: %w", format, err)
	}
	return out, nil
}

// Deserialize decodes a JSON body and denormalizes it into class. Numbers
// are kept as json.Number so integers survive decoding.
func (s *Serializer) Deserialize(ctx context.Context, body []byte, class, format string, sctx *Context) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var data interface{}
	if err := dec.Decode(&data); err != nil {
		return nil, apierr.InvalidArgument("syntax error in the request body: %v", err)
	}
	s.logger.Debug("deserialize", zap.String("class", class), zap.String("format", format))
	return s.Denormalize(ctx, data, class, format, sctx)
}

// delegate is embedded by normalizers that need the Serializer
type delegate struct {
	serializer *Serializer
}

// SetSerializer implements Aware
func (d *delegate) SetSerializer(s *Serializer) {
	d.serializer = s
}
