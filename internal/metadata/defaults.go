package metadata

// Well-known format names
const (
	FormatJSONLD         = "jsonld"
	FormatHAL            = "jsonhal"
	FormatJSONAPI        = "jsonapi"
	FormatJSON           = "json"
	FormatJSONMergePatch = "jsonmergepatch"
)

// KnownFormats maps every supported format name to its mime types
var KnownFormats = Formats{
	{Name: FormatJSONLD, MimeTypes: []string{"application/ld+json"}},
	{Name: FormatHAL, MimeTypes: []string{"application/hal+json"}},
	{Name: FormatJSONAPI, MimeTypes: []string{"application/vnd.api+json"}},
	{Name: FormatJSON, MimeTypes: []string{"application/json"}},
	{Name: FormatJSONMergePatch, MimeTypes: []string{"application/merge-patch+json"}},
}

// Defaults holds the global values the last stages fill gaps with
type Defaults struct {
	// Formats are the output formats of every operation that declares none
	Formats Formats
	// PatchFormats are the input formats of PATCH operations that declare none
	PatchFormats         Formats
	Pagination           Pagination
	NormalizationContext Context
	Provider             string
	Processor            string
	RoutePrefix          string
	Order                []OrderClause
}

// DefaultDefaults returns the built-in global defaults
func DefaultDefaults() Defaults {
	formats, _ := KnownFormats.Resolve([]string{FormatJSONLD, FormatJSON, FormatHAL, FormatJSONAPI})
	patch, _ := KnownFormats.Resolve([]string{FormatJSONMergePatch, FormatJSON})
	return Defaults{
		Formats:      formats,
		PatchFormats: patch,
		Pagination: Pagination{
			Enabled:             Bool(true),
			ClientEnabled:       Bool(false),
			ClientItemsPerPage:  Bool(false),
			ItemsPerPage:        30,
			MaximumItemsPerPage: 0,
		},
		Provider:  "orm",
		Processor: "orm",
	}
}

// Resolve returns the formats matching names, in the order of names
func (f Formats) Resolve(names []string) (Formats, error) {
	out := make(Formats, 0, len(names))
	for _, name := range names {
		format, ok := f.Lookup(name)
		if !ok {
			return nil, errUnknownFormat(name)
		}
		out = append(out, Format{Name: format.Name, MimeTypes: append([]string(nil), format.MimeTypes...)})
	}
	return out, nil
}
