package metadata

import (
	"context"
	"encoding/json"
	"fmt"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/conduit-lang/hyperapi/internal/cache"
	"github.com/conduit-lang/hyperapi/internal/logging"
)

// Fingerprinter identifies the content of the declaration source
type Fingerprinter interface {
	Fingerprint() string
}

// CachedResourceFactory memoizes collections in two tiers: a process-local
// store and an optional shared cache backend. Keys embed the source
// fingerprint, so registering a class or reloading YAML invalidates every
// entry. Concurrent first accesses to a class build it once.
//
// Returned collections are shared and must be treated as read-only.
type CachedResourceFactory struct {
	inner  ResourceMetadataCollectionFactory
	source Fingerprinter
	local  *gocache.Cache
	shared cache.Cache
	group  singleflight.Group
	logger *zap.Logger
}

// CachedResourceFactoryOption configures a CachedResourceFactory
type CachedResourceFactoryOption func(*CachedResourceFactory)

// WithSharedCache adds a shared cache tier
func WithSharedCache(c cache.Cache) CachedResourceFactoryOption {
	return func(f *CachedResourceFactory) { f.shared = c }
}

// WithCacheLogger sets the logger reporting shared tier failures
func WithCacheLogger(l *zap.Logger) CachedResourceFactoryOption {
	return func(f *CachedResourceFactory) { f.logger = logging.OrNop(l) }
}

// NewCachedResourceFactory wraps inner
func NewCachedResourceFactory(inner ResourceMetadataCollectionFactory, source Fingerprinter, opts ...CachedResourceFactoryOption) *CachedResourceFactory {
	f := &CachedResourceFactory{
		inner:  inner,
		source: source,
		local:  gocache.New(gocache.NoExpiration, 0),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *CachedResourceFactory) key(class string) string {
	return "resource_metadata:" + f.source.Fingerprint() + ":" + class
}

// Create implements ResourceMetadataCollectionFactory
func (f *CachedResourceFactory) Create(ctx context.Context, class string) (*ResourceMetadataCollection, error) {
	key := f.key(class)
	if v, ok := f.local.Get(key); ok {
		return v.(*ResourceMetadataCollection), nil
	}

	v, err, _ := f.group.Do(key, func() (interface{}, error) {
		if v, ok := f.local.Get(key); ok {
			return v, nil
		}
		if coll, ok := f.fromShared(ctx, key); ok {
			f.local.Set(key, coll, gocache.NoExpiration)
			return coll, nil
		}

		coll, err := f.inner.Create(ctx, class)
		if err != nil {
			return nil, err
		}
		f.toShared(ctx, key, coll)
		f.local.Set(key, coll, gocache.NoExpiration)
		return coll, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ResourceMetadataCollection), nil
}

// Invalidate drops every locally cached collection
func (f *CachedResourceFactory) Invalidate() {
	f.local.Flush()
}

func (f *CachedResourceFactory) fromShared(ctx context.Context, key string) (*ResourceMetadataCollection, bool) {
	if f.shared == nil {
		return nil, false
	}
	data, err := f.shared.Get(ctx, key)
	if err != nil {
		if !cache.IsCacheMiss(err) {
			f.logger.Warn("shared metadata cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var coll ResourceMetadataCollection
	if err := json.Unmarshal(data, &coll); err != nil {
		f.logger.Warn("discarding corrupt metadata cache entry", zap.String("key", key), zap.Error(err))
		_ = f.shared.Delete(ctx, key)
		return nil, false
	}
	return &coll, true
}

func (f *CachedResourceFactory) toShared(ctx context.Context, key string, coll *ResourceMetadataCollection) {
	if f.shared == nil {
		return
	}
	data, err := json.Marshal(coll)
	if err != nil {
		f.logger.Warn("metadata collection is not cacheable", zap.String("class", coll.Class), zap.Error(err))
		return
	}
	if err := f.shared.Set(ctx, key, data, cache.NoExpiration); err != nil {
		f.logger.Warn("shared metadata cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// CachedPropertyFactory memoizes property names and property metadata in
// process. Keys embed the source fingerprint.
type CachedPropertyFactory struct {
	names    PropertyNameCollectionFactory
	metadata PropertyMetadataFactory
	source   Fingerprinter
	store    *gocache.Cache
}

// NewCachedPropertyFactory wraps both property factories
func NewCachedPropertyFactory(names PropertyNameCollectionFactory, metadata PropertyMetadataFactory, source Fingerprinter) *CachedPropertyFactory {
	return &CachedPropertyFactory{
		names:    names,
		metadata: metadata,
		source:   source,
		store:    gocache.New(gocache.NoExpiration, 0),
	}
}

// Names returns the name factory view of the cache
func (c *CachedPropertyFactory) Names() PropertyNameCollectionFactory {
	return cachedNames{c}
}

// Create implements PropertyMetadataFactory
func (c *CachedPropertyFactory) Create(ctx context.Context, class, property string, opts PropertyOptions) (*Property, error) {
	key := fmt.Sprintf("property:%s:%s:%s:%s", c.source.Fingerprint(), class, property, opts.key())
	if v, ok := c.store.Get(key); ok {
		p := *v.(*Property)
		return &p, nil
	}
	p, err := c.metadata.Create(ctx, class, property, opts)
	if err != nil {
		return nil, err
	}
	c.store.Set(key, p, gocache.NoExpiration)
	cp := *p
	return &cp, nil
}

// Identifiers implements IdentifiersResolver
func (c *CachedPropertyFactory) Identifiers(ctx context.Context, class string) ([]string, error) {
	names, err := c.Names().Create(ctx, class, PropertyOptions{})
	if err != nil {
		return nil, err
	}
	var out []string
	for _, name := range names {
		p, err := c.Create(ctx, class, name, PropertyOptions{})
		if err != nil {
			return nil, err
		}
		if p.IsIdentifier() {
			out = append(out, name)
		}
	}
	return out, nil
}

type cachedNames struct {
	c *CachedPropertyFactory
}

func (n cachedNames) Create(ctx context.Context, class string, opts PropertyOptions) ([]string, error) {
	key := fmt.Sprintf("names:%s:%s:%s", n.c.source.Fingerprint(), class, opts.key())
	if v, ok := n.c.store.Get(key); ok {
		return append([]string(nil), v.([]string)...), nil
	}
	names, err := n.c.names.Create(ctx, class, opts)
	if err != nil {
		return nil, err
	}
	n.c.store.Set(key, append([]string(nil), names...), gocache.NoExpiration)
	return names, nil
}
