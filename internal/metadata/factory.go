// Package metadata builds the resource metadata collections that drive
// routing, filtering and serialization.
//
// A ResourceMetadataCollection is produced by a Pipeline: a source stage
// reads the Resource declarations registered for a class (in code or YAML),
// then an ordered list of stages each fill one concern. A stage only fills
// gaps, it never overwrites a value set by a declaration or an earlier stage.
//
//	classes := metadata.NewClassRegistry()
//	classes.MustRegister(Book{}, metadata.Resource{Filters: []string{"book.search"}})
//
//	factory := metadata.NewResourcePipeline(metadata.PipelineConfig{Classes: classes})
//	coll, err := factory.Create(ctx, "Book")
//
// Property metadata comes from a second staged factory reading struct
// fields, `api` and `groups` tags, YAML overrides and the persistence schema.
package metadata

import (
	"context"
	"fmt"

	"github.com/conduit-lang/hyperapi/internal/apierr"
)

// ResourceMetadataCollectionFactory creates the metadata collection of a class
type ResourceMetadataCollectionFactory interface {
	Create(ctx context.Context, class string) (*ResourceMetadataCollection, error)
}

// ResourceSource produces the initial collection of a class
type ResourceSource interface {
	Create(ctx context.Context, class string) (*ResourceMetadataCollection, error)
}

// ResourceStage enriches a collection with one concern
type ResourceStage interface {
	Name() string
	Apply(ctx context.Context, coll *ResourceMetadataCollection) error
}

// Pipeline applies ordered stages to the value produced by a source
type Pipeline struct {
	source ResourceSource
	stages []ResourceStage
}

// NewPipeline creates a pipeline; stages run in the given order
func NewPipeline(source ResourceSource, stages ...ResourceStage) *Pipeline {
	return &Pipeline{source: source, stages: stages}
}

// Create builds the collection of class
func (p *Pipeline) Create(ctx context.Context, class string) (*ResourceMetadataCollection, error) {
	coll, err := p.source.Create(ctx, class)
	if err != nil {
		return nil, err
	}
	for _, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := stage.Apply(ctx, coll); err != nil {
			return nil, fmt.Errorf("%s stage failed for %s: %w", stage.Name(), class, err)
		}
	}
	return coll, nil
}

// Stages returns the stage names in application order
func (p *Pipeline) Stages() []string {
	out := make([]string, len(p.stages))
	for i, s := range p.stages {
		out[i] = s.Name()
	}
	return out
}

// PipelineConfig wires the default pipeline
type PipelineConfig struct {
	Classes *ClassRegistry
	// Identifiers resolves identifier properties; defaults to "id"
	Identifiers IdentifiersResolver
	// Defaults are the global values; nil means DefaultDefaults()
	Defaults *Defaults
	// Formats lists the formats that can be referenced by name; defaults to KnownFormats
	Formats Formats
	// FilterExists validates filter ids; nil accepts every id
	FilterExists func(id string) bool
}

// NewResourcePipeline builds the default pipeline:
// attributes → short name → default operations → uri templates → links →
// operation names → filters → formats → input/output → defaults
func NewResourcePipeline(cfg PipelineConfig) *Pipeline {
	defaults := DefaultDefaults()
	if cfg.Defaults != nil {
		defaults = *cfg.Defaults
	}
	formats := cfg.Formats
	if len(formats) == 0 {
		formats = KnownFormats
	}
	identifiers := cfg.Identifiers
	if identifiers == nil {
		identifiers = StaticIdentifiers{"id"}
	}

	return NewPipeline(
		NewAttributeSource(cfg.Classes),
		ShortNameStage{},
		OperationDefaultsStage{},
		UriTemplateStage{Identifiers: identifiers, RoutePrefix: defaults.RoutePrefix},
		LinkStage{},
		OperationNameStage{},
		FiltersStage{Exists: cfg.FilterExists},
		FormatsStage{Registry: formats, Defaults: defaults.Formats, PatchDefaults: defaults.PatchFormats},
		InputOutputStage{},
		DefaultsStage{Defaults: defaults},
	)
}

// AttributeSource reads the declarations registered for a class. Code
// declarations are paired by position with YAML declarations and win over
// them on conflicting values; extra YAML declarations are appended.
type AttributeSource struct {
	classes *ClassRegistry
}

// NewAttributeSource creates a source over classes
func NewAttributeSource(classes *ClassRegistry) *AttributeSource {
	return &AttributeSource{classes: classes}
}

// Create implements ResourceSource
func (s *AttributeSource) Create(_ context.Context, class string) (*ResourceMetadataCollection, error) {
	if s.classes == nil {
		return nil, apierr.ResourceClassNotFound(class)
	}
	if _, ok := s.classes.Type(class); !ok {
		return nil, apierr.ResourceClassNotFound(class)
	}
	code, yaml := s.classes.Declarations(class)
	if len(code) == 0 && len(yaml) == 0 {
		return nil, apierr.ResourceClassNotFound(class)
	}

	resources := code
	for i, y := range yaml {
		if i < len(resources) {
			mergeResource(&resources[i], y)
			continue
		}
		resources = append(resources, y)
	}
	for i := range resources {
		resources[i].Class = class
	}
	return &ResourceMetadataCollection{Class: class, Resources: resources}, nil
}

// mergeResource fills the gaps of dst from src
func mergeResource(dst *Resource, src Resource) {
	if dst.ShortName == "" {
		dst.ShortName = src.ShortName
	}
	if dst.Description == "" {
		dst.Description = src.Description
	}
	if dst.RoutePrefix == "" {
		dst.RoutePrefix = src.RoutePrefix
	}
	dst.NormalizationContext = dst.NormalizationContext.Merge(src.NormalizationContext)
	dst.DenormalizationContext = dst.DenormalizationContext.Merge(src.DenormalizationContext)
	if dst.ValidationGroups == nil {
		dst.ValidationGroups = src.ValidationGroups
	}
	if dst.Filters == nil {
		dst.Filters = src.Filters
	}
	if dst.Formats == nil {
		dst.Formats = src.Formats
	}
	if dst.InputFormats == nil {
		dst.InputFormats = src.InputFormats
	}
	dst.Pagination.fill(src.Pagination)
	if dst.Order == nil {
		dst.Order = src.Order
	}
	if dst.Input == nil {
		dst.Input = src.Input
	}
	if dst.Output == nil {
		dst.Output = src.Output
	}
	if dst.Provider == "" {
		dst.Provider = src.Provider
	}
	if dst.Processor == "" {
		dst.Processor = src.Processor
	}

	for _, op := range src.Operations {
		if i := findOperation(dst.Operations, op); i >= 0 {
			mergeOperation(&dst.Operations[i], op)
			continue
		}
		dst.Operations = append(dst.Operations, op)
	}
}

// findOperation matches by name, or by kind and uri template when unnamed
func findOperation(ops []Operation, op Operation) int {
	for i, candidate := range ops {
		if op.Name != "" || candidate.Name != "" {
			if op.Name == candidate.Name {
				return i
			}
			continue
		}
		if candidate.Kind == op.Kind && candidate.UriTemplate == op.UriTemplate {
			return i
		}
	}
	return -1
}

func mergeOperation(dst *Operation, src Operation) {
	if dst.Method == "" {
		dst.Method = src.Method
	}
	if dst.UriTemplate == "" {
		dst.UriTemplate = src.UriTemplate
	}
	if dst.ShortName == "" {
		dst.ShortName = src.ShortName
	}
	if dst.Description == "" {
		dst.Description = src.Description
	}
	if dst.Filters == nil {
		dst.Filters = src.Filters
	}
	if dst.Formats == nil {
		dst.Formats = src.Formats
	}
	if dst.InputFormats == nil {
		dst.InputFormats = src.InputFormats
	}
	dst.NormalizationContext = dst.NormalizationContext.Merge(src.NormalizationContext)
	dst.DenormalizationContext = dst.DenormalizationContext.Merge(src.DenormalizationContext)
	if dst.ValidationGroups == nil {
		dst.ValidationGroups = src.ValidationGroups
	}
	if dst.Input == nil {
		dst.Input = src.Input
	}
	if dst.Output == nil {
		dst.Output = src.Output
	}
	if dst.UriVariables == nil {
		dst.UriVariables = src.UriVariables
	}
	dst.Pagination.fill(src.Pagination)
	if dst.Order == nil {
		dst.Order = src.Order
	}
	if dst.Provider == "" {
		dst.Provider = src.Provider
	}
	if dst.Processor == "" {
		dst.Processor = src.Processor
	}
	if dst.Status == 0 {
		dst.Status = src.Status
	}
}

// ResourceNameCollectionFactory lists the classes exposed as resources
type ResourceNameCollectionFactory struct {
	classes *ClassRegistry
}

// NewResourceNameCollectionFactory creates a name factory over classes
func NewResourceNameCollectionFactory(classes *ClassRegistry) *ResourceNameCollectionFactory {
	return &ResourceNameCollectionFactory{classes: classes}
}

// Create returns resource class names in registration order
func (f *ResourceNameCollectionFactory) Create(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []string
	for _, class := range f.classes.Classes() {
		if f.classes.IsResource(class) {
			out = append(out, class)
		}
	}
	return out, nil
}
