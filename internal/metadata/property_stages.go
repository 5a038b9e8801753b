package metadata

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/conduit-lang/hyperapi/internal/apierr"
	"github.com/conduit-lang/hyperapi/internal/orm/schema"
)

// SchemaRegistry is the persistence metadata consulted for identifiers and
// nullability
type SchemaRegistry interface {
	Get(name string) (*schema.ResourceSchema, bool)
}

// ReflectionPropertyStage fills types from the Go field type
type ReflectionPropertyStage struct {
	Classes *ClassRegistry
}

// Name implements PropertyStage
func (ReflectionPropertyStage) Name() string { return "reflection" }

// Apply implements PropertyStage
func (s ReflectionPropertyStage) Apply(_ context.Context, in PropertyInput, p *Property) error {
	if len(p.Types) == 0 {
		p.Types = []Type{typeOf(in.Field.Type, s.Classes)}
	}
	return nil
}

// AttributePropertyStage applies the api and groups struct tags, then fills
// remaining gaps from YAML property declarations
//
//	Title string `json:"title" api:"required,description=The title" groups:"book:read,book:write"`
type AttributePropertyStage struct {
	Classes *ClassRegistry
}

// Name implements PropertyStage
func (AttributePropertyStage) Name() string { return "attributes" }

// Apply implements PropertyStage
func (s AttributePropertyStage) Apply(_ context.Context, in PropertyInput, p *Property) error {
	tag, err := parseAPITag(in.Field.Tag.Get("api"))
	if err != nil {
		return apierr.Configuration("invalid api tag on %s.%s: %v", in.Class, in.Property, err)
	}
	applyOverride(p, tag)
	p.Groups = unionStrings(p.Groups, tagGroups(in.Field))

	if s.Classes != nil {
		if yaml, ok := s.Classes.PropertyOverride(in.Class, in.Property); ok {
			applyOverride(p, yaml)
			p.Groups = unionStrings(p.Groups, yaml.Groups)
		}
	}
	return nil
}

// applyOverride fills unset flags of p from o
func applyOverride(p *Property, o PropertyOverride) {
	if p.Readable == nil {
		p.Readable = o.Readable
	}
	if p.Writable == nil {
		p.Writable = o.Writable
	}
	if p.ReadableLink == nil {
		p.ReadableLink = o.ReadableLink
	}
	if p.WritableLink == nil {
		p.WritableLink = o.WritableLink
	}
	if p.Identifier == nil {
		p.Identifier = o.Identifier
	}
	if p.Required == nil {
		p.Required = o.Required
	}
	if p.Description == "" {
		p.Description = o.Description
	}
}

// parseAPITag parses `api:"identifier,readable=false,description=..."`.
// A description consumes the rest of the tag.
func parseAPITag(tag string) (PropertyOverride, error) {
	var o PropertyOverride
	for tag != "" {
		var token string
		if strings.HasPrefix(strings.TrimSpace(tag), "description=") {
			token, tag = strings.TrimSpace(tag), ""
		} else {
			token, tag, _ = strings.Cut(tag, ",")
			token = strings.TrimSpace(token)
		}
		if token == "" {
			continue
		}

		key, value, hasValue := strings.Cut(token, "=")
		if key == "description" {
			o.Description = value
			continue
		}
		flag := true
		if hasValue {
			b, err := strconv.ParseBool(value)
			if err != nil {
				return o, err
			}
			flag = b
		}
		switch key {
		case "readable":
			o.Readable = Bool(flag)
		case "writable":
			o.Writable = Bool(flag)
		case "readableLink":
			o.ReadableLink = Bool(flag)
		case "writableLink":
			o.WritableLink = Bool(flag)
		case "identifier":
			o.Identifier = Bool(flag)
		case "required":
			o.Required = Bool(flag)
		default:
			return o, fmt.Errorf("unknown option %q", key)
		}
	}
	return o, nil
}

// SerializerPropertyStage decides readability and writability from the
// serializer groups of the options. Links default to true when the related
// class exposes properties in the same groups.
type SerializerPropertyStage struct {
	Names PropertyNameCollectionFactory
}

// Name implements PropertyStage
func (SerializerPropertyStage) Name() string { return "serializer" }

// Apply implements PropertyStage
func (s SerializerPropertyStage) Apply(ctx context.Context, in PropertyInput, p *Property) error {
	norm := in.Options.NormalizationGroups
	denorm := in.Options.DenormalizationGroups

	if len(norm) > 0 && p.Readable == nil {
		p.Readable = Bool(intersects(p.Groups, norm))
	}
	if len(denorm) > 0 && p.Writable == nil {
		p.Writable = Bool(intersects(p.Groups, denorm))
	}

	related, ok := p.RelatedClass()
	if !ok || s.Names == nil {
		return nil
	}
	if len(norm) > 0 && p.ReadableLink == nil {
		names, err := s.Names.Create(ctx, related, PropertyOptions{SerializerGroups: norm})
		if err != nil {
			return err
		}
		p.ReadableLink = Bool(len(names) > 0)
	}
	if len(denorm) > 0 && p.WritableLink == nil {
		names, err := s.Names.Create(ctx, related, PropertyOptions{SerializerGroups: denorm})
		if err != nil {
			return err
		}
		p.WritableLink = Bool(len(names) > 0)
	}
	return nil
}

// SchemaPropertyStage fills identifier and nullability from the persistence
// schema of the class
type SchemaPropertyStage struct {
	Schema SchemaRegistry
}

// Name implements PropertyStage
func (SchemaPropertyStage) Name() string { return "schema" }

// Apply implements PropertyStage
func (s SchemaPropertyStage) Apply(_ context.Context, in PropertyInput, p *Property) error {
	rs, ok := s.Schema.Get(in.Class)
	if !ok {
		return nil
	}
	if field, ok := rs.Fields[in.Property]; ok {
		if p.Identifier == nil && field.IsPrimary() {
			p.Identifier = Bool(true)
		}
		if field.Type != nil && field.Type.Nullable && len(p.Types) > 0 {
			p.Types[0].Nullable = true
		}
	}
	if rel, ok := rs.Relationships[in.Property]; ok && len(p.Types) > 0 {
		if rel.Nullable || rel.IsToMany() {
			p.Types[0].Nullable = true
		}
		if p.Types[0].Class == "" {
			p.Types[0].Class = rel.TargetResource
			p.Types[0].Collection = rel.IsToMany()
		}
	}
	return nil
}

// DefaultPropertyStage fills every flag still unset
type DefaultPropertyStage struct{}

// Name implements PropertyStage
func (DefaultPropertyStage) Name() string { return "defaults" }

// Apply implements PropertyStage
func (DefaultPropertyStage) Apply(_ context.Context, in PropertyInput, p *Property) error {
	if p.Readable == nil {
		p.Readable = Bool(true)
	}
	if p.Writable == nil {
		p.Writable = Bool(true)
	}
	if p.Identifier == nil {
		p.Identifier = Bool(in.Property == "id")
	}
	if p.Required == nil {
		p.Required = Bool(false)
	}
	if p.ReadableLink == nil {
		p.ReadableLink = Bool(false)
	}
	if p.WritableLink == nil {
		p.WritableLink = Bool(false)
	}
	return nil
}
