package metadata

import (
	"context"
	"fmt"
	"strings"

	"github.com/conduit-lang/hyperapi/internal/apierr"
)

// OperationRef points at an operation and the resource owning it
type OperationRef struct {
	Class     string
	Resource  *Resource
	Operation *Operation
}

// Index gives fast access to every collection of an application. It is
// built once at startup and never changes.
type Index struct {
	collections []*ResourceMetadataCollection

	// Pre-computed indexes
	byClass     map[string]*ResourceMetadataCollection
	byShortName map[string]*OperationRef
	byName      map[string]*OperationRef
	byRoute     map[string]*OperationRef
	byMethod    map[string][]*OperationRef
	byClassKind map[string]*OperationRef
	operations  []*OperationRef
}

// BuildIndex creates the collection of every resource class and indexes them
func BuildIndex(ctx context.Context, names *ResourceNameCollectionFactory, factory ResourceMetadataCollectionFactory) (*Index, error) {
	classes, err := names.Create(ctx)
	if err != nil {
		return nil, err
	}
	collections := make([]*ResourceMetadataCollection, 0, len(classes))
	for _, class := range classes {
		coll, err := factory.Create(ctx, class)
		if err != nil {
			return nil, err
		}
		collections = append(collections, coll)
	}
	return NewIndex(collections...)
}

// NewIndex indexes collections. Two operations sharing a name, or a method
// and uri template, are a configuration error.
func NewIndex(collections ...*ResourceMetadataCollection) (*Index, error) {
	idx := &Index{
		collections: collections,
		byClass:     make(map[string]*ResourceMetadataCollection, len(collections)),
		byShortName: make(map[string]*OperationRef),
		byName:      make(map[string]*OperationRef),
		byRoute:     make(map[string]*OperationRef),
		byMethod:    make(map[string][]*OperationRef),
		byClassKind: make(map[string]*OperationRef),
	}

	for _, coll := range collections {
		idx.byClass[coll.Class] = coll
		for i := range coll.Resources {
			r := &coll.Resources[i]
			for j := range r.Operations {
				op := &r.Operations[j]
				ref := &OperationRef{Class: coll.Class, Resource: r, Operation: op}

				if existing, dup := idx.byName[op.Name]; dup {
					return nil, apierr.Configuration("operation %q is declared by %s and %s", op.Name, existing.Class, coll.Class)
				}
				idx.byName[op.Name] = ref

				route := routeKey(op.Method, op.UriTemplate)
				if existing, dup := idx.byRoute[route]; dup {
					return nil, apierr.Configuration("route %s is declared by %s and %s", route, existing.Operation.Name, op.Name)
				}
				idx.byRoute[route] = ref
				idx.byMethod[op.Method] = append(idx.byMethod[op.Method], ref)

				kindKey := classKindKey(coll.Class, op.Kind)
				if _, ok := idx.byClassKind[kindKey]; !ok {
					idx.byClassKind[kindKey] = ref
				}
				if _, ok := idx.byShortName[r.ShortName]; !ok {
					idx.byShortName[r.ShortName] = ref
				}
				idx.operations = append(idx.operations, ref)
			}
		}
	}
	return idx, nil
}

func routeKey(method, template string) string {
	return strings.ToUpper(method) + " " + template
}

func classKindKey(class string, kind OperationKind) string {
	return fmt.Sprintf("%s#%d", class, kind)
}

// Collections returns the indexed collections in class order
func (idx *Index) Collections() []*ResourceMetadataCollection {
	out := make([]*ResourceMetadataCollection, len(idx.collections))
	copy(out, idx.collections)
	return out
}

// Collection returns the collection of class
func (idx *Index) Collection(class string) (*ResourceMetadataCollection, error) {
	coll, ok := idx.byClass[class]
	if !ok {
		return nil, apierr.ResourceClassNotFound(class)
	}
	return coll, nil
}

// IsResource reports whether class has an indexed collection
func (idx *Index) IsResource(class string) bool {
	_, ok := idx.byClass[class]
	return ok
}

// Operation finds an operation by name
func (idx *Index) Operation(name string) (*OperationRef, error) {
	ref, ok := idx.byName[name]
	if !ok {
		return nil, apierr.OperationNotFound("", name)
	}
	return ref, nil
}

// Route finds the operation bound to a method and uri template
func (idx *Index) Route(method, template string) (*OperationRef, bool) {
	ref, ok := idx.byRoute[routeKey(method, template)]
	return ref, ok
}

// OperationsByMethod returns the operations bound to an HTTP method
func (idx *Index) OperationsByMethod(method string) []*OperationRef {
	refs := idx.byMethod[strings.ToUpper(method)]
	out := make([]*OperationRef, len(refs))
	copy(out, refs)
	return out
}

// Operations returns every operation in declaration order
func (idx *Index) Operations() []*OperationRef {
	out := make([]*OperationRef, len(idx.operations))
	copy(out, idx.operations)
	return out
}

// ByShortName returns the first operation of the resource with a short name
func (idx *Index) ByShortName(shortName string) (*OperationRef, bool) {
	ref, ok := idx.byShortName[shortName]
	return ref, ok
}

// ItemOperation returns the first item GET operation of class
func (idx *Index) ItemOperation(class string) (*OperationRef, bool) {
	ref, ok := idx.byClassKind[classKindKey(class, KindGet)]
	return ref, ok
}

// CollectionOperation returns the first collection GET operation of class
func (idx *Index) CollectionOperation(class string) (*OperationRef, bool) {
	ref, ok := idx.byClassKind[classKindKey(class, KindGetCollection)]
	return ref, ok
}
