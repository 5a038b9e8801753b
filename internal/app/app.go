// Package app assembles an API from its registered classes and the loaded
// configuration: resource metadata, the serializer, the ORM state
// providers and the HTTP router.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/conduit-lang/hyperapi/internal/cache"
	"github.com/conduit-lang/hyperapi/internal/cli/config"
	"github.com/conduit-lang/hyperapi/internal/filter"
	"github.com/conduit-lang/hyperapi/internal/iri"
	"github.com/conduit-lang/hyperapi/internal/logging"
	"github.com/conduit-lang/hyperapi/internal/metadata"
	"github.com/conduit-lang/hyperapi/internal/orm/database"
	"github.com/conduit-lang/hyperapi/internal/orm/schema"
	"github.com/conduit-lang/hyperapi/internal/orm/transaction"
	"github.com/conduit-lang/hyperapi/internal/serializer"
	"github.com/conduit-lang/hyperapi/internal/state"
	"github.com/conduit-lang/hyperapi/internal/web/handler"
	"github.com/conduit-lang/hyperapi/internal/web/middleware"
	"github.com/conduit-lang/hyperapi/internal/web/router"
)

// Definition is what a program declares: its resource classes, their
// persistence schemas and the filters operations may reference
type Definition struct {
	Classes *metadata.ClassRegistry
	Schemas *schema.Registry
	Filters *filter.Locator
}

// Options configures New
type Options struct {
	Definition
	Config *config.Config
	Logger *zap.Logger

	// DB is used instead of opening Config.Database. The caller keeps
	// ownership.
	DB *sql.DB

	// Cache is used instead of building Config.Cache. The caller keeps
	// ownership.
	Cache cache.Cache
}

// App is an assembled API
type App struct {
	Config     *config.Config
	Classes    *metadata.ClassRegistry
	Schemas    *schema.Registry
	Names      metadata.PropertyNameCollectionFactory
	Properties *metadata.PropertyFactory
	Index      *metadata.Index
	Filters    *filter.Locator
	Serializer *serializer.Serializer
	Router     *router.Router

	db      *sql.DB
	cache   cache.Cache
	closers []func() error
	logger  *zap.Logger
}

// New builds the metadata index and wires every operation to a route
func New(ctx context.Context, opts Options) (*App, error) {
	a, err := LoadMetadata(ctx, opts)
	if err != nil {
		return nil, err
	}

	if a.db == nil {
		db, err := database.Open(ctx, a.Config.Database)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.db = db
		a.closers = append(a.closers, db.Close)
	}

	a.wire()
	a.logger.Info("api assembled",
		zap.Int("resources", len(a.Index.Collections())),
		zap.Int("operations", len(a.Index.Operations())),
		zap.Strings("formats", a.Config.API.Formats),
	)
	return a, nil
}

// LoadMetadata builds the metadata index only. The returned App has no
// database and no router.
func LoadMetadata(ctx context.Context, opts Options) (_ *App, err error) {
	if opts.Config == nil {
		return nil, errors.New("app: configuration is required")
	}
	if opts.Classes == nil {
		return nil, errors.New("app: class registry is required")
	}
	if opts.Schemas == nil {
		opts.Schemas = schema.NewRegistry()
	}
	if opts.Filters == nil {
		opts.Filters = filter.NewLocator()
	}
	cfg := opts.Config
	logger := logging.OrNop(opts.Logger)

	a := &App{
		Config:  cfg,
		Classes: opts.Classes,
		Schemas: opts.Schemas,
		Filters: opts.Filters,
		db:      opts.DB,
		cache:   opts.Cache,
		logger:  logger,
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if len(cfg.API.ResourcePaths) > 0 {
		if err := metadata.NewYAMLExtractor(cfg.API.ResourcePaths, logger.Named("metadata")).Load(opts.Classes); err != nil {
			return nil, fmt.Errorf("failed to load resource declarations: %w", err)
		}
	}

	if a.cache == nil {
		c, err := cache.New(cfg.Cache)
		if err != nil {
			return nil, fmt.Errorf("failed to create metadata cache: %w", err)
		}
		a.cache = c
		a.closers = append(a.closers, c.Close)
	}

	if err := a.buildMetadata(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) buildMetadata(ctx context.Context) error {
	defaults, err := a.Config.Defaults()
	if err != nil {
		return err
	}
	log := a.logger.Named("metadata")

	names := metadata.NewReflectionNameFactory(a.Classes, log)
	a.Properties = metadata.NewDefaultPropertyFactory(metadata.PropertyFactoryConfig{
		Classes: a.Classes,
		Names:   names,
		Schema:  a.Schemas,
		Logger:  log,
	})
	pipeline := metadata.NewResourcePipeline(metadata.PipelineConfig{
		Classes:      a.Classes,
		Identifiers:  a.Properties,
		Defaults:     &defaults,
		FilterExists: a.Filters.Has,
	})
	cached := metadata.NewCachedResourceFactory(pipeline, a.Classes,
		metadata.WithSharedCache(a.cache),
		metadata.WithCacheLogger(log),
	)

	idx, err := metadata.BuildIndex(ctx, metadata.NewResourceNameCollectionFactory(a.Classes), cached)
	if err != nil {
		return fmt.Errorf("failed to build resource metadata: %w", err)
	}
	a.Index = idx
	a.Names = names
	return nil
}

func (a *App) wire() {
	cfg := a.Config
	stateOpts := []state.Option{
		state.WithLogger(a.logger.Named("state")),
		state.WithPaginationOptions(cfg.Pagination.Options()),
	}

	hydrator := state.NewHydrator(a.Classes, a.Properties, a.Schemas)
	items := state.NewItemProvider(a.Schemas, a.db, hydrator, stateOpts...)
	collections := state.NewCollectionProvider(a.Schemas, a.db, a.Filters, hydrator, stateOpts...)
	tx := transaction.NewManager(a.db, transaction.WithLogger(a.logger.Named("transaction")))

	states := state.NewRegistry()
	states.RegisterProvider(state.DefaultName, state.ORMProvider{Collection: collections, Item: items})
	states.RegisterProcessor(state.DefaultName, state.NewSQLProcessor(a.Schemas, tx, hydrator, stateOpts...))

	iris := iri.NewConverter(a.Index, a.Classes, a.Properties,
		iri.WithItemLoader(items),
		iri.WithLogger(a.logger.Named("iri")),
	)
	serCfg := serializer.Config{
		Index:         a.Index,
		Classes:       a.Classes,
		Names:         a.Names,
		Properties:    a.Properties,
		IRIs:          iris,
		Filters:       a.Filters,
		PageParameter: cfg.Pagination.Options().PageParameter,
		Logger:        a.logger.Named("serializer"),
	}
	a.Serializer = serializer.NewDefault(serCfg, serializer.WithLogger(a.logger.Named("serializer")))

	errs := router.NewErrorHandler(cfg.Server.Debug)
	r := router.NewRouter()
	r.Use(
		middleware.RequestID(a.logger),
		middleware.Logging(a.logger.Named("http")),
		middleware.Recovery(a.logger, errs.Render),
		middleware.CORSWithConfig(cfg.CORS),
	)
	r.NotFound(errs.NotFoundHandler())
	r.MethodNotAllowed(errs.MethodNotAllowedHandler(r))
	r.RegisterContexts(a.Index, serializer.NewJSONLDItemNormalizer(serCfg), cfg.Server.Debug)
	r.RegisterOperations(a.Index, handler.Config{
		Serializer:   a.Serializer,
		States:       states,
		IRIs:         iris,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Debug:        cfg.Server.Debug,
		Logger:       a.logger.Named("handler"),
	})
	a.Router = r
}

// Handler returns the HTTP handler serving the API
func (a *App) Handler() http.Handler {
	return a.Router
}

// DB returns the connection pool the providers query
func (a *App) DB() *sql.DB {
	return a.db
}

// Close releases the resources New opened, in reverse order
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
