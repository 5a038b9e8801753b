// Package schematest provides a shared resource graph for tests of packages
// that consume schema metadata.
package schematest

import "github.com/conduit-lang/hyperapi/internal/orm/schema"

func field(name string, base schema.PrimitiveType, nullable bool, annotations ...string) *schema.Field {
	f := &schema.Field{
		Name: name,
		Type: &schema.TypeSpec{BaseType: base, Nullable: nullable},
	}
	for _, a := range annotations {
		f.Annotations = append(f.Annotations, schema.Annotation{Name: a})
	}
	return f
}

// Dummy returns the root resource of the fixture graph
func Dummy() *schema.ResourceSchema {
	s := schema.NewResourceSchema("Dummy")
	s.AddField(field("id", schema.TypeInt, false, "primary"))
	s.AddField(field("name", schema.TypeString, false))
	s.AddField(field("alias", schema.TypeString, true))
	s.AddField(field("description", schema.TypeText, true))
	s.AddField(field("dummy", schema.TypeString, true))
	s.AddField(field("dummyDate", schema.TypeTimestamp, true))
	s.AddField(field("dummyBoolean", schema.TypeBool, true))
	s.AddField(field("dummyPrice", schema.TypeDecimal, true))
	s.AddField(field("dummyFloat", schema.TypeFloat, true))
	s.AddField(field("nameConverted", schema.TypeString, true))
	s.AddRelationship(&schema.Relationship{
		Type:           schema.RelationshipBelongsTo,
		TargetResource: "RelatedDummy",
		FieldName:      "relatedDummy",
		Nullable:       true,
	})
	s.AddRelationship(&schema.Relationship{
		Type:           schema.RelationshipHasManyThrough,
		TargetResource: "RelatedDummy",
		FieldName:      "relatedDummies",
		JoinTable:      "dummy_related_dummies",
		AssociationKey: "dummy_id",
		InverseKey:     "related_dummy_id",
	})
	s.AddRelationship(&schema.Relationship{
		Type:           schema.RelationshipHasOne,
		TargetResource: "RelatedOwnedDummy",
		FieldName:      "relatedOwnedDummy",
		Nullable:       true,
	})
	s.AddRelationship(&schema.Relationship{
		Type:           schema.RelationshipBelongsTo,
		TargetResource: "Brand",
		FieldName:      "brand",
		Nullable:       true,
	})
	return s
}

// Brand returns a to-one target of Dummy with a single column
func Brand() *schema.ResourceSchema {
	s := schema.NewResourceSchema("Brand")
	s.AddField(field("id", schema.TypeInt, false, "primary"))
	s.AddField(field("name", schema.TypeString, false))
	return s
}

// RelatedDummy returns the first-level association target
func RelatedDummy() *schema.ResourceSchema {
	s := schema.NewResourceSchema("RelatedDummy")
	s.AddField(field("id", schema.TypeInt, false, "primary"))
	s.AddField(field("name", schema.TypeString, true))
	s.AddField(field("symfony", schema.TypeString, true))
	s.AddField(field("dummyDate", schema.TypeTimestamp, true))
	s.AddField(field("dummyBoolean", schema.TypeBool, true))
	s.AddField(field("age", schema.TypeInt, true))
	s.AddRelationship(&schema.Relationship{
		Type:           schema.RelationshipBelongsTo,
		TargetResource: "ThirdLevel",
		FieldName:      "thirdLevel",
		Nullable:       true,
	})
	return s
}

// RelatedOwnedDummy returns the has_one target of Dummy
func RelatedOwnedDummy() *schema.ResourceSchema {
	s := schema.NewResourceSchema("RelatedOwnedDummy")
	s.AddField(field("id", schema.TypeInt, false, "primary"))
	s.AddField(field("name", schema.TypeString, true))
	return s
}

// ThirdLevel returns the second-level association target
func ThirdLevel() *schema.ResourceSchema {
	s := schema.NewResourceSchema("ThirdLevel")
	s.AddField(field("id", schema.TypeInt, false, "primary"))
	s.AddField(field("level", schema.TypeInt, false))
	s.AddField(field("test", schema.TypeBool, false))
	s.AddRelationship(&schema.Relationship{
		Type:           schema.RelationshipBelongsTo,
		TargetResource: "FourthLevel",
		FieldName:      "fourthLevel",
		Nullable:       true,
	})
	return s
}

// FourthLevel returns the deepest resource of the graph
func FourthLevel() *schema.ResourceSchema {
	s := schema.NewResourceSchema("FourthLevel")
	s.AddField(field("id", schema.TypeInt, false, "primary"))
	s.AddField(field("level", schema.TypeInt, false))
	return s
}

// Registry returns a registry holding the whole fixture graph
func Registry() *schema.Registry {
	return schema.NewRegistry().MustRegister(
		Dummy(),
		RelatedDummy(),
		RelatedOwnedDummy(),
		ThirdLevel(),
		FourthLevel(),
		Brand(),
	)
}
