package metadata

import (
	"context"
	"net/http"
	"strings"

	"github.com/conduit-lang/hyperapi/internal/orm/schema"
)

// IdentifiersResolver returns the identifier properties of a class
type IdentifiersResolver interface {
	Identifiers(ctx context.Context, class string) ([]string, error)
}

// StaticIdentifiers resolves every class to the same identifier names
type StaticIdentifiers []string

// Identifiers implements IdentifiersResolver
func (s StaticIdentifiers) Identifiers(context.Context, string) ([]string, error) {
	return append([]string(nil), s...), nil
}

// ShortNameStage fills short names from the class name
type ShortNameStage struct{}

// Name implements ResourceStage
func (ShortNameStage) Name() string { return "short_name" }

// Apply implements ResourceStage
func (ShortNameStage) Apply(_ context.Context, coll *ResourceMetadataCollection) error {
	for i := range coll.Resources {
		r := &coll.Resources[i]
		if r.ShortName == "" {
			r.ShortName = coll.Class
		}
		for j := range r.Operations {
			op := &r.Operations[j]
			if op.ShortName == "" {
				op.ShortName = r.ShortName
			}
			if op.Class == "" {
				op.Class = coll.Class
			}
		}
	}
	return nil
}

// DefaultOperationKinds is the operation set of a resource declaring none
var DefaultOperationKinds = []OperationKind{KindGetCollection, KindPost, KindGet, KindPut, KindPatch, KindDelete}

// OperationDefaultsStage adds the default operations to resources declaring
// none and fills HTTP methods from operation kinds
type OperationDefaultsStage struct{}

// Name implements ResourceStage
func (OperationDefaultsStage) Name() string { return "operation_defaults" }

// Apply implements ResourceStage
func (OperationDefaultsStage) Apply(_ context.Context, coll *ResourceMetadataCollection) error {
	for i := range coll.Resources {
		r := &coll.Resources[i]
		if len(r.Operations) == 0 {
			r.Operations = make([]Operation, 0, len(DefaultOperationKinds))
			for _, kind := range DefaultOperationKinds {
				r.Operations = append(r.Operations, Operation{
					Kind:      kind,
					Class:     coll.Class,
					ShortName: r.ShortName,
				})
			}
		}
		for j := range r.Operations {
			op := &r.Operations[j]
			if op.Method == "" {
				op.Method = op.Kind.Method()
			}
			op.Method = strings.ToUpper(op.Method)
		}
	}
	return nil
}

// PathSegment returns the collection path segment of a short name
func PathSegment(shortName string) string {
	return schema.Pluralize(schema.ToSnakeCase(shortName))
}

// UriTemplateStage fills uri templates: /books for collection operations and
// /books/{id} for item operations
type UriTemplateStage struct {
	Identifiers IdentifiersResolver
	RoutePrefix string
}

// Name implements ResourceStage
func (UriTemplateStage) Name() string { return "uri_template" }

// Apply implements ResourceStage
func (s UriTemplateStage) Apply(ctx context.Context, coll *ResourceMetadataCollection) error {
	var identifiers []string
	for i := range coll.Resources {
		r := &coll.Resources[i]
		if r.RoutePrefix == "" {
			r.RoutePrefix = s.RoutePrefix
		}
		base := normalizePrefix(r.RoutePrefix) + "/" + PathSegment(r.ShortName)

		for j := range r.Operations {
			op := &r.Operations[j]
			if op.UriTemplate != "" {
				continue
			}
			if op.Kind.IsCollection() {
				op.UriTemplate = base
				continue
			}
			if identifiers == nil {
				ids, err := s.identifiers(ctx, coll.Class)
				if err != nil {
					return err
				}
				identifiers = ids
			}
			var b strings.Builder
			b.WriteString(base)
			for _, id := range identifiers {
				b.WriteString("/{" + id + "}")
			}
			op.UriTemplate = b.String()
		}
	}
	return nil
}

func (s UriTemplateStage) identifiers(ctx context.Context, class string) ([]string, error) {
	if s.Identifiers == nil {
		return []string{"id"}, nil
	}
	ids, err := s.Identifiers.Identifiers(ctx, class)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []string{"id"}, nil
	}
	return ids, nil
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return "/" + prefix
}

// LinkStage fills uri variables from the variables of the uri template
type LinkStage struct{}

// Name implements ResourceStage
func (LinkStage) Name() string { return "link" }

// Apply implements ResourceStage
func (LinkStage) Apply(_ context.Context, coll *ResourceMetadataCollection) error {
	for i := range coll.Resources {
		r := &coll.Resources[i]
		for j := range r.Operations {
			op := &r.Operations[j]
			if op.UriVariables != nil {
				continue
			}
			for _, variable := range TemplateVariables(op.UriTemplate) {
				op.UriVariables = append(op.UriVariables, Link{
					Parameter:   variable,
					FromClass:   coll.Class,
					Identifiers: []string{variable},
				})
			}
		}
	}
	return nil
}

// TemplateVariables returns the {variable} names of a uri template; regular
// expression suffixes ({id:[0-9]+}) are stripped
func TemplateVariables(template string) []string {
	var out []string
	for {
		start := strings.IndexByte(template, '{')
		if start < 0 {
			return out
		}
		end := strings.IndexByte(template[start:], '}')
		if end < 0 {
			return out
		}
		name := template[start+1 : start+end]
		if colon := strings.IndexByte(name, ':'); colon >= 0 {
			name = name[:colon]
		}
		if name != "" && !strings.HasPrefix(name, ".") {
			out = append(out, name)
		}
		template = template[start+end+1:]
	}
}

// OperationNameStage fills operation names (_api_/books/{id}_get) and
// rejects duplicate names
type OperationNameStage struct{}

// Name implements ResourceStage
func (OperationNameStage) Name() string { return "operation_name" }

// Apply implements ResourceStage
func (OperationNameStage) Apply(_ context.Context, coll *ResourceMetadataCollection) error {
	seen := make(map[string]struct{})
	for i := range coll.Resources {
		r := &coll.Resources[i]
		for j := range r.Operations {
			op := &r.Operations[j]
			if op.Name == "" {
				op.Name = "_api_" + op.UriTemplate + "_" + op.Kind.String()
			}
			if _, dup := seen[op.Name]; dup {
				return errDuplicateOperation(coll.Class, op.Name)
			}
			seen[op.Name] = struct{}{}
		}
	}
	return nil
}

// FiltersStage copies resource filters into collection operations declaring
// none and validates every referenced filter id
type FiltersStage struct {
	Exists func(id string) bool
}

// Name implements ResourceStage
func (FiltersStage) Name() string { return "filters" }

// Apply implements ResourceStage
func (s FiltersStage) Apply(_ context.Context, coll *ResourceMetadataCollection) error {
	for i := range coll.Resources {
		r := &coll.Resources[i]
		for j := range r.Operations {
			op := &r.Operations[j]
			if op.Filters == nil && op.Kind == KindGetCollection && len(r.Filters) > 0 {
				op.Filters = append([]string(nil), r.Filters...)
			}
			if s.Exists == nil {
				continue
			}
			for _, id := range op.Filters {
				if !s.Exists(id) {
					return errUnknownFilter(coll.Class, id)
				}
			}
		}
	}
	return nil
}

// FormatsStage resolves format names to mime types. Global formats are the
// defaults, resource formats override them and operation formats override
// resource formats.
type FormatsStage struct {
	Registry      Formats
	Defaults      Formats
	PatchDefaults Formats
}

// Name implements ResourceStage
func (FormatsStage) Name() string { return "formats" }

// Apply implements ResourceStage
func (s FormatsStage) Apply(_ context.Context, coll *ResourceMetadataCollection) error {
	var err error
	for i := range coll.Resources {
		r := &coll.Resources[i]
		if len(r.Formats) == 0 {
			r.Formats = s.Defaults.clone()
		} else if r.Formats, err = s.resolve(r.Formats); err != nil {
			return err
		}
		if len(r.InputFormats) > 0 {
			if r.InputFormats, err = s.resolve(r.InputFormats); err != nil {
				return err
			}
		}

		for j := range r.Operations {
			op := &r.Operations[j]
			if len(op.Formats) == 0 {
				op.Formats = r.Formats.clone()
			} else if op.Formats, err = s.resolve(op.Formats); err != nil {
				return err
			}

			switch {
			case len(op.InputFormats) > 0:
				if op.InputFormats, err = s.resolve(op.InputFormats); err != nil {
					return err
				}
			case len(r.InputFormats) > 0:
				op.InputFormats = r.InputFormats.clone()
			case op.Kind == KindPatch && len(s.PatchDefaults) > 0:
				op.InputFormats = s.PatchDefaults.clone()
			default:
				op.InputFormats = op.Formats.clone()
			}
		}
	}
	return nil
}

// resolve fills mime types of formats declared by name only
func (s FormatsStage) resolve(formats Formats) (Formats, error) {
	out := make(Formats, 0, len(formats))
	for _, f := range formats {
		if len(f.MimeTypes) > 0 {
			out = append(out, Format{Name: f.Name, MimeTypes: append([]string(nil), f.MimeTypes...)})
			continue
		}
		known, ok := s.Registry.Lookup(f.Name)
		if !ok {
			return nil, errUnknownFormat(f.Name)
		}
		out = append(out, Format{Name: known.Name, MimeTypes: append([]string(nil), known.MimeTypes...)})
	}
	return out, nil
}

// InputOutputStage normalizes input and output declarations. Read and
// delete operations take no body; delete operations return none.
type InputOutputStage struct{}

// Name implements ResourceStage
func (InputOutputStage) Name() string { return "input_output" }

// Apply implements ResourceStage
func (InputOutputStage) Apply(_ context.Context, coll *ResourceMetadataCollection) error {
	for i := range coll.Resources {
		r := &coll.Resources[i]
		for j := range r.Operations {
			op := &r.Operations[j]
			if op.Input == nil {
				switch op.Kind {
				case KindGetCollection, KindGet, KindDelete:
					op.Input = &IOClass{Disabled: true}
				default:
					op.Input = ioFrom(r.Input, coll.Class)
				}
			}
			if op.Output == nil {
				if op.Kind == KindDelete {
					op.Output = &IOClass{Disabled: true}
				} else {
					op.Output = ioFrom(r.Output, coll.Class)
				}
			}
			if !op.Input.Disabled && op.Input.Class == "" {
				op.Input.Class = coll.Class
			}
			if !op.Output.Disabled && op.Output.Class == "" {
				op.Output.Class = coll.Class
			}
		}
	}
	return nil
}

func ioFrom(declared *IOClass, class string) *IOClass {
	if declared != nil {
		cp := *declared
		return &cp
	}
	return &IOClass{Class: class}
}

// DefaultsStage fills the remaining gaps from the global defaults
type DefaultsStage struct {
	Defaults Defaults
}

// Name implements ResourceStage
func (DefaultsStage) Name() string { return "defaults" }

// Apply implements ResourceStage
func (s DefaultsStage) Apply(_ context.Context, coll *ResourceMetadataCollection) error {
	d := s.Defaults
	for i := range coll.Resources {
		r := &coll.Resources[i]
		r.Pagination.fill(d.Pagination)
		r.NormalizationContext = r.NormalizationContext.Merge(d.NormalizationContext)
		if r.Provider == "" {
			r.Provider = d.Provider
		}
		if r.Processor == "" {
			r.Processor = d.Processor
		}
		if r.Order == nil && d.Order != nil {
			r.Order = append([]OrderClause(nil), d.Order...)
		}

		for j := range r.Operations {
			op := &r.Operations[j]
			op.Pagination.fill(r.Pagination)
			op.NormalizationContext = op.NormalizationContext.Merge(r.NormalizationContext)
			op.DenormalizationContext = op.DenormalizationContext.Merge(r.DenormalizationContext)
			if op.ValidationGroups == nil && r.ValidationGroups != nil {
				op.ValidationGroups = append([]string(nil), r.ValidationGroups...)
			}
			if op.Provider == "" {
				op.Provider = r.Provider
			}
			if op.Processor == "" {
				op.Processor = r.Processor
			}
			if op.Order == nil && r.Order != nil {
				op.Order = append([]OrderClause(nil), r.Order...)
			}
			if op.Description == "" {
				op.Description = r.Description
			}
			if op.Status == 0 {
				op.Status = defaultStatus(op.Kind)
			}
		}
	}
	return nil
}

func defaultStatus(kind OperationKind) int {
	switch kind {
	case KindPost:
		return http.StatusCreated
	case KindDelete:
		return http.StatusNoContent
	default:
		return http.StatusOK
	}
}
