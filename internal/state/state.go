// Package state loads and persists the data of operations.
//
// Providers read: the collection provider runs the filters of an operation
// over a query builder, paginates and hydrates rows into registered Go
// values; the item provider loads one value by the uri variables of the
// request. Processors write values back. Both are looked up by the names
// operations declare (provider and processor default to "orm").
package state

import (
	"context"
	"sync"

	"github.com/conduit-lang/hyperapi/internal/apierr"
	"github.com/conduit-lang/hyperapi/internal/filter"
	"github.com/conduit-lang/hyperapi/internal/metadata"
)

// DefaultName is the provider and processor name operations use by default
const DefaultName = "orm"

// Request carries the request data a provider or processor reads
type Request struct {
	UriVariables map[string]string
	Filters      filter.Context
	// Previous is the item loaded before a write, if any
	Previous interface{}
}

// Provider loads the data of an operation: a *Paginator for collection
// operations and a pointer to a registered struct otherwise
type Provider interface {
	Provide(ctx context.Context, ref *metadata.OperationRef, req Request) (interface{}, error)
}

// Processor persists or removes data. It returns the data to serialize,
// nil for a removal.
type Processor interface {
	Process(ctx context.Context, ref *metadata.OperationRef, data interface{}, req Request) (interface{}, error)
}

// ProviderFunc adapts a function to Provider
type ProviderFunc func(ctx context.Context, ref *metadata.OperationRef, req Request) (interface{}, error)

// Provide implements Provider
func (f ProviderFunc) Provide(ctx context.Context, ref *metadata.OperationRef, req Request) (interface{}, error) {
	return f(ctx, ref, req)
}

// Registry finds providers and processors by name
type Registry struct {
	mu         sync.RWMutex
	providers  map[string]Provider
	processors map[string]Processor
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		providers:  make(map[string]Provider),
		processors: make(map[string]Processor),
	}
}

// RegisterProvider adds a provider under name
func (r *Registry) RegisterProvider(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// RegisterProcessor adds a processor under name
func (r *Registry) RegisterProcessor(name string, p Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[name] = p
}

// Provide dispatches to the provider the operation names
func (r *Registry) Provide(ctx context.Context, ref *metadata.OperationRef, req Request) (interface{}, error) {
	name := nameOr(ref.Operation.Provider)
	r.mu.RLock()
	p, ok := r.providers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, apierr.Configuration("operation %s uses unknown provider %q", ref.Operation.Name, name)
	}
	return p.Provide(ctx, ref, req)
}

// Process dispatches to the processor the operation names
func (r *Registry) Process(ctx context.Context, ref *metadata.OperationRef, data interface{}, req Request) (interface{}, error) {
	name := nameOr(ref.Operation.Processor)
	r.mu.RLock()
	p, ok := r.processors[name]
	r.mu.RUnlock()
	if !ok {
		return nil, apierr.Configuration("operation %s uses unknown processor %q", ref.Operation.Name, name)
	}
	return p.Process(ctx, ref, data, req)
}

func nameOr(name string) string {
	if name == "" {
		return DefaultName
	}
	return name
}

// ORMProvider serves collection operations with a CollectionProvider and
// every other operation with an ItemProvider
type ORMProvider struct {
	Collection *CollectionProvider
	Item       *ItemProvider
}

// Provide implements Provider
func (p ORMProvider) Provide(ctx context.Context, ref *metadata.OperationRef, req Request) (interface{}, error) {
	if ref.Operation.IsCollection() {
		return p.Collection.Provide(ctx, ref, req)
	}
	return p.Item.Provide(ctx, ref, req)
}
