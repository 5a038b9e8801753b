package metadata

import (
	"net/http"
	"sort"
	"strings"

	"github.com/conduit-lang/hyperapi/internal/apierr"
)

// OperationKind identifies the HTTP action an operation performs
type OperationKind int

const (
	KindGetCollection OperationKind = iota
	KindGet
	KindPost
	KindPut
	KindPatch
	KindDelete
)

// String returns the suffix used in generated operation names
func (k OperationKind) String() string {
	switch k {
	case KindGetCollection:
		return "get_collection"
	case KindGet:
		return "get"
	case KindPost:
		return "post"
	case KindPut:
		return "put"
	case KindPatch:
		return "patch"
	case KindDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Method returns the HTTP method bound to the kind
func (k OperationKind) Method() string {
	switch k {
	case KindPost:
		return http.MethodPost
	case KindPut:
		return http.MethodPut
	case KindPatch:
		return http.MethodPatch
	case KindDelete:
		return http.MethodDelete
	default:
		return http.MethodGet
	}
}

// IsCollection reports whether the operation addresses the collection URI
func (k OperationKind) IsCollection() bool {
	return k == KindGetCollection || k == KindPost
}

// ParseOperationKind parses the names accepted in declarations
func ParseOperationKind(s string) (OperationKind, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "_", "")) {
	case "getcollection":
		return KindGetCollection, nil
	case "get":
		return KindGet, nil
	case "post":
		return KindPost, nil
	case "put":
		return KindPut, nil
	case "patch":
		return KindPatch, nil
	case "delete":
		return KindDelete, nil
	}
	return 0, apierr.Configuration("unknown operation kind %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (k OperationKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *OperationKind) UnmarshalText(b []byte) error {
	parsed, err := ParseOperationKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Context is a serializer context declaration (groups and format options)
type Context map[string]interface{}

// GroupsKey is the context key holding serializer groups
const GroupsKey = "groups"

// Groups returns the serializer groups held by the context
func (c Context) Groups() []string {
	switch v := c[GroupsKey].(type) {
	case []string:
		return v
	case string:
		return []string{v}
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, g := range v {
			if s, ok := g.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Clone returns a shallow copy with copied group slices
func (c Context) Clone() Context {
	if c == nil {
		return nil
	}
	out := make(Context, len(c))
	for k, v := range c {
		if k == GroupsKey {
			out[k] = cloneStrings(c.Groups())
			continue
		}
		out[k] = v
	}
	return out
}

// Merge fills keys missing from c with the values of defaults
func (c Context) Merge(defaults Context) Context {
	if len(defaults) == 0 {
		return c
	}
	if c == nil {
		return defaults.Clone()
	}
	for k, v := range defaults.Clone() {
		if _, ok := c[k]; !ok {
			c[k] = v
		}
	}
	return c
}

// Format is a named serialization format and its mime types
type Format struct {
	Name      string   `json:"name" yaml:"name"`
	MimeTypes []string `json:"mime_types,omitempty" yaml:"mime_types,omitempty"`
}

// Formats is an ordered list of formats; the first one is the default
type Formats []Format

// Names returns the format names in order
func (f Formats) Names() []string {
	out := make([]string, len(f))
	for i, format := range f {
		out[i] = format.Name
	}
	return out
}

// Lookup finds a format by name
func (f Formats) Lookup(name string) (Format, bool) {
	for _, format := range f {
		if format.Name == name {
			return format, true
		}
	}
	return Format{}, false
}

// ByMimeType finds the format serving a mime type
func (f Formats) ByMimeType(mime string) (Format, bool) {
	mime = strings.ToLower(strings.TrimSpace(mime))
	for _, format := range f {
		for _, m := range format.MimeTypes {
			if m == mime {
				return format, true
			}
		}
	}
	return Format{}, false
}

func (f Formats) clone() Formats {
	if f == nil {
		return nil
	}
	out := make(Formats, len(f))
	for i, format := range f {
		out[i] = Format{Name: format.Name, MimeTypes: cloneStrings(format.MimeTypes)}
	}
	return out
}

// Pagination holds pagination settings; nil and zero values are unset
type Pagination struct {
	Enabled             *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	ClientEnabled       *bool `json:"client_enabled,omitempty" yaml:"client_enabled,omitempty"`
	ClientItemsPerPage  *bool `json:"client_items_per_page,omitempty" yaml:"client_items_per_page,omitempty"`
	ItemsPerPage        int   `json:"items_per_page,omitempty" yaml:"items_per_page,omitempty"`
	MaximumItemsPerPage int   `json:"maximum_items_per_page,omitempty" yaml:"maximum_items_per_page,omitempty"`
}

// fill sets every unset value from defaults
func (p *Pagination) fill(defaults Pagination) {
	if p.Enabled == nil && defaults.Enabled != nil {
		p.Enabled = Bool(*defaults.Enabled)
	}
	if p.ClientEnabled == nil && defaults.ClientEnabled != nil {
		p.ClientEnabled = Bool(*defaults.ClientEnabled)
	}
	if p.ClientItemsPerPage == nil && defaults.ClientItemsPerPage != nil {
		p.ClientItemsPerPage = Bool(*defaults.ClientItemsPerPage)
	}
	if p.ItemsPerPage == 0 {
		p.ItemsPerPage = defaults.ItemsPerPage
	}
	if p.MaximumItemsPerPage == 0 {
		p.MaximumItemsPerPage = defaults.MaximumItemsPerPage
	}
}

func (p Pagination) clone() Pagination {
	out := Pagination{ItemsPerPage: p.ItemsPerPage, MaximumItemsPerPage: p.MaximumItemsPerPage}
	if p.Enabled != nil {
		out.Enabled = Bool(*p.Enabled)
	}
	if p.ClientEnabled != nil {
		out.ClientEnabled = Bool(*p.ClientEnabled)
	}
	if p.ClientItemsPerPage != nil {
		out.ClientItemsPerPage = Bool(*p.ClientItemsPerPage)
	}
	return out
}

// IsEnabled reports the effective enabled flag
func (p Pagination) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// Bool returns a pointer to b
func Bool(b bool) *bool {
	return &b
}

// IOClass declares the class read from or written to a request body. A
// disabled declaration means the operation takes or returns no body.
type IOClass struct {
	Class    string `json:"class,omitempty" yaml:"class,omitempty"`
	Disabled bool   `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// Link binds a uri variable to identifiers of a class
type Link struct {
	Parameter    string   `json:"parameter" yaml:"parameter"`
	FromClass    string   `json:"from_class,omitempty" yaml:"from_class,omitempty"`
	Identifiers  []string `json:"identifiers,omitempty" yaml:"identifiers,omitempty"`
	FromProperty string   `json:"from_property,omitempty" yaml:"from_property,omitempty"`
	ToProperty   string   `json:"to_property,omitempty" yaml:"to_property,omitempty"`
}

// Operation is one HTTP-bound action on a resource
type Operation struct {
	Name                   string        `json:"name,omitempty" yaml:"name,omitempty"`
	Kind                   OperationKind `json:"kind" yaml:"kind"`
	Method                 string        `json:"method,omitempty" yaml:"method,omitempty"`
	UriTemplate            string        `json:"uri_template,omitempty" yaml:"uri_template,omitempty"`
	Class                  string        `json:"class,omitempty" yaml:"-"`
	ShortName              string        `json:"short_name,omitempty" yaml:"short_name,omitempty"`
	Description            string        `json:"description,omitempty" yaml:"description,omitempty"`
	Filters                []string      `json:"filters,omitempty" yaml:"filters,omitempty"`
	Formats                Formats       `json:"formats,omitempty" yaml:"formats,omitempty"`
	InputFormats           Formats       `json:"input_formats,omitempty" yaml:"input_formats,omitempty"`
	NormalizationContext   Context       `json:"normalization_context,omitempty" yaml:"normalization_context,omitempty"`
	DenormalizationContext Context       `json:"denormalization_context,omitempty" yaml:"denormalization_context,omitempty"`
	ValidationGroups       []string      `json:"validation_groups,omitempty" yaml:"validation_groups,omitempty"`
	Input                  *IOClass      `json:"input,omitempty" yaml:"input,omitempty"`
	Output                 *IOClass      `json:"output,omitempty" yaml:"output,omitempty"`
	UriVariables           []Link        `json:"uri_variables,omitempty" yaml:"uri_variables,omitempty"`
	Pagination             Pagination    `json:"pagination" yaml:"pagination,omitempty"`
	Order                  []OrderClause `json:"order,omitempty" yaml:"order,omitempty"`
	Provider               string        `json:"provider,omitempty" yaml:"provider,omitempty"`
	Processor              string        `json:"processor,omitempty" yaml:"processor,omitempty"`
	Status                 int           `json:"status,omitempty" yaml:"status,omitempty"`
}

// OrderClause is a default sort applied when the client sends none
type OrderClause struct {
	Property  string `json:"property" yaml:"property"`
	Direction string `json:"direction,omitempty" yaml:"direction,omitempty"`
}

// IsCollection reports whether the operation returns a collection
func (o *Operation) IsCollection() bool {
	return o.Kind == KindGetCollection
}

// Variables returns the uri variable names in declaration order
func (o *Operation) Variables() []string {
	out := make([]string, len(o.UriVariables))
	for i, l := range o.UriVariables {
		out[i] = l.Parameter
	}
	return out
}

// Clone returns a deep copy
func (o Operation) Clone() Operation {
	out := o
	out.Filters = cloneStrings(o.Filters)
	out.Formats = o.Formats.clone()
	out.InputFormats = o.InputFormats.clone()
	out.NormalizationContext = o.NormalizationContext.Clone()
	out.DenormalizationContext = o.DenormalizationContext.Clone()
	out.ValidationGroups = cloneStrings(o.ValidationGroups)
	if o.Input != nil {
		in := *o.Input
		out.Input = &in
	}
	if o.Output != nil {
		output := *o.Output
		out.Output = &output
	}
	if o.UriVariables != nil {
		out.UriVariables = make([]Link, len(o.UriVariables))
		for i, l := range o.UriVariables {
			l.Identifiers = cloneStrings(l.Identifiers)
			out.UriVariables[i] = l
		}
	}
	out.Pagination = o.Pagination.clone()
	out.Order = cloneOrder(o.Order)
	return out
}

// Resource is an API-exposed class and its declared operations
type Resource struct {
	Class                  string        `json:"class" yaml:"-"`
	ShortName              string        `json:"short_name,omitempty" yaml:"short_name,omitempty"`
	Description            string        `json:"description,omitempty" yaml:"description,omitempty"`
	RoutePrefix            string        `json:"route_prefix,omitempty" yaml:"route_prefix,omitempty"`
	Operations             []Operation   `json:"operations,omitempty" yaml:"operations,omitempty"`
	NormalizationContext   Context       `json:"normalization_context,omitempty" yaml:"normalization_context,omitempty"`
	DenormalizationContext Context       `json:"denormalization_context,omitempty" yaml:"denormalization_context,omitempty"`
	ValidationGroups       []string      `json:"validation_groups,omitempty" yaml:"validation_groups,omitempty"`
	Filters                []string      `json:"filters,omitempty" yaml:"filters,omitempty"`
	Formats                Formats       `json:"formats,omitempty" yaml:"formats,omitempty"`
	InputFormats           Formats       `json:"input_formats,omitempty" yaml:"input_formats,omitempty"`
	Pagination             Pagination    `json:"pagination" yaml:"pagination,omitempty"`
	Order                  []OrderClause `json:"order,omitempty" yaml:"order,omitempty"`
	Input                  *IOClass      `json:"input,omitempty" yaml:"input,omitempty"`
	Output                 *IOClass      `json:"output,omitempty" yaml:"output,omitempty"`
	Provider               string        `json:"provider,omitempty" yaml:"provider,omitempty"`
	Processor              string        `json:"processor,omitempty" yaml:"processor,omitempty"`
}

// Clone returns a deep copy
func (r Resource) Clone() Resource {
	out := r
	if r.Operations != nil {
		out.Operations = make([]Operation, len(r.Operations))
		for i, op := range r.Operations {
			out.Operations[i] = op.Clone()
		}
	}
	out.NormalizationContext = r.NormalizationContext.Clone()
	out.DenormalizationContext = r.DenormalizationContext.Clone()
	out.ValidationGroups = cloneStrings(r.ValidationGroups)
	out.Filters = cloneStrings(r.Filters)
	out.Formats = r.Formats.clone()
	out.InputFormats = r.InputFormats.clone()
	out.Pagination = r.Pagination.clone()
	out.Order = cloneOrder(r.Order)
	if r.Input != nil {
		in := *r.Input
		out.Input = &in
	}
	if r.Output != nil {
		output := *r.Output
		out.Output = &output
	}
	return out
}

// ResourceMetadataCollection holds every Resource declared on one class
type ResourceMetadataCollection struct {
	Class     string     `json:"class"`
	Resources []Resource `json:"resources"`
}

// Clone returns a deep copy
func (c *ResourceMetadataCollection) Clone() *ResourceMetadataCollection {
	out := &ResourceMetadataCollection{Class: c.Class, Resources: make([]Resource, len(c.Resources))}
	for i, r := range c.Resources {
		out.Resources[i] = r.Clone()
	}
	return out
}

// Operation finds an operation by name. An empty name returns the first
// collection GET operation, or the first GET otherwise.
func (c *ResourceMetadataCollection) Operation(name string) (*Operation, *Resource, error) {
	if name == "" {
		if op, r, ok := c.FirstOperation(KindGetCollection); ok {
			return op, r, nil
		}
		if op, r, ok := c.FirstOperation(KindGet); ok {
			return op, r, nil
		}
		return nil, nil, apierr.OperationNotFound(c.Class, name)
	}
	for i := range c.Resources {
		r := &c.Resources[i]
		for j := range r.Operations {
			if r.Operations[j].Name == name {
				return &r.Operations[j], r, nil
			}
		}
	}
	return nil, nil, apierr.OperationNotFound(c.Class, name)
}

// FirstOperation returns the first operation of the given kind
func (c *ResourceMetadataCollection) FirstOperation(kind OperationKind) (*Operation, *Resource, bool) {
	for i := range c.Resources {
		r := &c.Resources[i]
		for j := range r.Operations {
			if r.Operations[j].Kind == kind {
				return &r.Operations[j], r, true
			}
		}
	}
	return nil, nil, false
}

// Operations returns every operation of the collection in declaration order
func (c *ResourceMetadataCollection) Operations() []*Operation {
	var out []*Operation
	for i := range c.Resources {
		for j := range c.Resources[i].Operations {
			out = append(out, &c.Resources[i].Operations[j])
		}
	}
	return out
}

// FilterIDs returns the sorted union of filter ids referenced by operations
func (c *ResourceMetadataCollection) FilterIDs() []string {
	seen := make(map[string]struct{})
	for _, op := range c.Operations() {
		for _, id := range op.Filters {
			seen[id] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append(make([]string, 0, len(s)), s...)
}

func cloneOrder(o []OrderClause) []OrderClause {
	if o == nil {
		return nil
	}
	return append(make([]OrderClause, 0, len(o)), o...)
}
