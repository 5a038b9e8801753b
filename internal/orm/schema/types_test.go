package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrimitiveTypeRoundTrip(t *testing.T) {
	for _, name := range []string{"string", "text", "int", "bigint", "float", "decimal", "bool", "timestamp", "date", "time", "uuid", "json", "enum"} {
		t.Run(name, func(t *testing.T) {
			typ, err := ParsePrimitiveType(name)
			require.NoError(t, err)
			assert.Equal(t, name, typ.String())
		})
	}

	_, err := ParsePrimitiveType("blob")
	assert.Error(t, err)

	typ, err := ParsePrimitiveType("DateTime")
	require.NoError(t, err)
	assert.Equal(t, TypeTimestamp, typ)
}

func TestTypeSpecCategories(t *testing.T) {
	tests := []struct {
		base     PrimitiveType
		numeric  bool
		integer  bool
		text     bool
		temporal bool
		boolean  bool
	}{
		{TypeInt, true, true, false, false, false},
		{TypeDecimal, true, false, false, false, false},
		{TypeString, false, false, true, false, false},
		{TypeEnum, false, false, true, false, false},
		{TypeDate, false, false, false, true, false},
		{TypeBool, false, false, false, false, true},
		{TypeUUID, false, false, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.base.String(), func(t *testing.T) {
			spec := &TypeSpec{BaseType: tt.base}
			assert.Equal(t, tt.numeric, spec.IsNumeric())
			assert.Equal(t, tt.integer, spec.IsInteger())
			assert.Equal(t, tt.text, spec.IsText())
			assert.Equal(t, tt.temporal, spec.IsTemporal())
			assert.Equal(t, tt.boolean, spec.IsBool())
		})
	}

	assert.Equal(t, "string?", (&TypeSpec{BaseType: TypeString, Nullable: true}).String())
	assert.Equal(t, "int!", (&TypeSpec{BaseType: TypeInt}).String())
}

func TestNamingConventions(t *testing.T) {
	tests := []struct {
		in     string
		snake  string
		plural string
	}{
		{"Dummy", "dummy", "dummies"},
		{"RelatedDummy", "related_dummy", "related_dummies"},
		{"dummyDate", "dummy_date", "dummy_dates"},
		{"HTTPServer", "http_server", "http_servers"},
		{"Box", "box", "boxes"},
		{"Key", "key", "keys"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.snake, ToSnakeCase(tt.in))
			assert.Equal(t, tt.plural, Pluralize(ToSnakeCase(tt.in)))
		})
	}
}

func TestResourceSchemaOrdering(t *testing.T) {
	s := NewResourceSchema("Book")
	assert.Equal(t, "books", s.TableName)

	s.AddField(&Field{Name: "title", Type: &TypeSpec{BaseType: TypeString}})
	s.AddField(&Field{Name: "id", Type: &TypeSpec{BaseType: TypeInt}})
	s.Fields["isbn"] = &Field{Name: "isbn", Type: &TypeSpec{BaseType: TypeString}}
	s.Fields["author"] = &Field{Name: "author", Type: &TypeSpec{BaseType: TypeString}}

	assert.Equal(t, []string{"title", "id", "author", "isbn"}, s.FieldNames())

	pk, err := s.GetPrimaryKey()
	require.NoError(t, err)
	assert.Equal(t, "id", pk.Name)

	s.AddField(&Field{Name: "isbn", Type: &TypeSpec{BaseType: TypeString}, Annotations: []Annotation{{Name: "primary"}}})
	pk, err = s.GetPrimaryKey()
	require.NoError(t, err)
	assert.Equal(t, "isbn", pk.Name)
}

func TestRelationshipForeignKeyColumn(t *testing.T) {
	belongs := &Relationship{Type: RelationshipBelongsTo, FieldName: "relatedDummy", TargetResource: "RelatedDummy"}
	assert.Equal(t, "related_dummy_id", belongs.ForeignKeyColumn("Dummy"))
	assert.False(t, belongs.IsToMany())

	hasMany := &Relationship{Type: RelationshipHasMany, FieldName: "reviews", TargetResource: "Review"}
	assert.Equal(t, "book_id", hasMany.ForeignKeyColumn("Book"))
	assert.True(t, hasMany.IsToMany())

	explicit := &Relationship{Type: RelationshipHasOne, FieldName: "cover", ForeignKey: "owner_id"}
	assert.Equal(t, "owner_id", explicit.ForeignKeyColumn("Book"))
}
