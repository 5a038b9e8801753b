package metadata_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/conduit-lang/hyperapi/internal/apierr"
	"github.com/conduit-lang/hyperapi/internal/metadata"
	"github.com/conduit-lang/hyperapi/internal/orm/schema"
)

func TestReflectionNameFactory(t *testing.T) {
	ctx := context.Background()
	names := metadata.NewReflectionNameFactory(newClasses(), nil)

	t.Run("all exported fields", func(t *testing.T) {
		got, err := names.Create(ctx, "Book", metadata.PropertyOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{
			"id", "isbn", "title", "price", "available", "tags", "author", "reviews",
			"publishedAt", "createdAt", "updatedAt",
		}, got)
	})

	t.Run("serializer groups", func(t *testing.T) {
		got, err := names.Create(ctx, "Book", metadata.PropertyOptions{SerializerGroups: []string{"book:read"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"id", "isbn", "title", "price", "author", "reviews"}, got)

		got, err = names.Create(ctx, "Book", metadata.PropertyOptions{SerializerGroups: []string{"nobody"}})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("unknown class", func(t *testing.T) {
		_, err := names.Create(ctx, "Missing", metadata.PropertyOptions{})
		assert.True(t, apierr.IsResourceClassNotFound(err))
	})
}

func TestReflectionNameFactory_DropsUnknownDeclaredProperties(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	classes := newClasses()
	classes.SetYAML(nil, map[string]map[string]metadata.PropertyOverride{
		"Book": {
			"ghost": {Groups: []string{"extra"}},
			"title": {Groups: []string{"extra"}},
		},
	})

	names := metadata.NewReflectionNameFactory(classes, zap.New(core))
	got, err := names.Create(context.Background(), "Book", metadata.PropertyOptions{SerializerGroups: []string{"extra"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"title"}, got)

	entries := logs.FilterMessage("dropping declared properties missing from class").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Book", entries[0].ContextMap()["class"])
}

func newPropertyFactory(classes *metadata.ClassRegistry, registry metadata.SchemaRegistry) *metadata.PropertyFactory {
	return metadata.NewDefaultPropertyFactory(metadata.PropertyFactoryConfig{Classes: classes, Schema: registry})
}

func TestPropertyFactory_Types(t *testing.T) {
	ctx := context.Background()
	factory := newPropertyFactory(newClasses(), nil)

	tests := []struct {
		property string
		want     metadata.Type
	}{
		{"id", metadata.Type{Builtin: metadata.BuiltinInt}},
		{"title", metadata.Type{Builtin: metadata.BuiltinString}},
		{"price", metadata.Type{Builtin: metadata.BuiltinFloat}},
		{"available", metadata.Type{Builtin: metadata.BuiltinBool}},
		{"tags", metadata.Type{Builtin: metadata.BuiltinArray, Collection: true, Nullable: true}},
		{"author", metadata.Type{Builtin: metadata.BuiltinObject, Nullable: true, Class: "Author"}},
		{"reviews", metadata.Type{Builtin: metadata.BuiltinObject, Nullable: true, Collection: true, Class: "Review"}},
		{"publishedAt", metadata.Type{Builtin: metadata.BuiltinTime, Nullable: true}},
		{"createdAt", metadata.Type{Builtin: metadata.BuiltinTime}},
	}

	for _, tt := range tests {
		t.Run(tt.property, func(t *testing.T) {
			p, err := factory.Create(ctx, "Book", tt.property, metadata.PropertyOptions{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Type())
		})
	}
}

func TestPropertyFactory_Tags(t *testing.T) {
	ctx := context.Background()
	factory := newPropertyFactory(newClasses(), nil)

	isbn, err := factory.Create(ctx, "Book", "isbn", metadata.PropertyOptions{})
	require.NoError(t, err)
	assert.True(t, isbn.IsRequired())
	assert.Equal(t, "The ISBN, 13 digits", isbn.Description)
	assert.Equal(t, []string{"book:read", "book:write"}, isbn.Groups)
	assert.Equal(t, "ISBN", isbn.GoName)
	assert.Equal(t, []int{1}, isbn.FieldIndex)

	available, err := factory.Create(ctx, "Book", "available", metadata.PropertyOptions{})
	require.NoError(t, err)
	assert.False(t, available.IsWritable())
	assert.True(t, available.IsReadable())

	id, err := factory.Create(ctx, "Book", "id", metadata.PropertyOptions{})
	require.NoError(t, err)
	assert.True(t, id.IsIdentifier())

	createdAt, err := factory.Create(ctx, "Book", "createdAt", metadata.PropertyOptions{})
	require.NoError(t, err)
	assert.Equal(t, []int{10, 0}, createdAt.FieldIndex)
}

func TestPropertyFactory_SerializerGroups(t *testing.T) {
	ctx := context.Background()
	factory := newPropertyFactory(newClasses(), nil)
	read := metadata.PropertyOptions{NormalizationGroups: []string{"book:read"}, DenormalizationGroups: []string{"book:write"}}

	author, err := factory.Create(ctx, "Book", "author", read)
	require.NoError(t, err)
	assert.True(t, author.IsReadable())
	assert.True(t, author.IsWritable())
	assert.True(t, author.IsReadableLink(), "Author exposes id and name in book:read")
	assert.False(t, author.IsWritableLink(), "Author exposes nothing in book:write")

	reviews, err := factory.Create(ctx, "Book", "reviews", read)
	require.NoError(t, err)
	assert.True(t, reviews.IsReadable())
	assert.False(t, reviews.IsWritable())
	assert.False(t, reviews.IsReadableLink())

	price, err := factory.Create(ctx, "Book", "price", read)
	require.NoError(t, err)
	assert.False(t, price.IsWritable())

	tags, err := factory.Create(ctx, "Book", "tags", read)
	require.NoError(t, err)
	assert.False(t, tags.IsReadable())
}

func TestPropertyFactory_Schema(t *testing.T) {
	registry := schema.NewRegistry()
	chapter := schema.NewResourceSchema("Chapter")
	chapter.AddField(&schema.Field{
		Name:        "slug",
		Type:        &schema.TypeSpec{BaseType: schema.TypeString},
		Annotations: []schema.Annotation{{Name: "primary"}},
	})
	chapter.AddField(&schema.Field{Name: "title", Type: &schema.TypeSpec{BaseType: schema.TypeString, Nullable: true}})
	require.NoError(t, registry.Register(chapter))

	classes := metadata.NewClassRegistry()
	classes.MustRegister(Chapter{}, metadata.Resource{})
	factory := newPropertyFactory(classes, registry)

	title, err := factory.Create(context.Background(), "Chapter", "title", metadata.PropertyOptions{})
	require.NoError(t, err)
	assert.True(t, title.IsNullable())
	assert.False(t, title.IsIdentifier())

	ids, err := factory.Identifiers(context.Background(), "Chapter")
	require.NoError(t, err)
	assert.Equal(t, []string{"slug"}, ids)
}

func TestPropertyFactory_YAMLOverrides(t *testing.T) {
	classes := newClasses()
	classes.SetYAML(nil, map[string]map[string]metadata.PropertyOverride{
		"Book": {
			"title":     {Description: "yaml title", Groups: []string{"extra"}, Required: metadata.Bool(true)},
			"available": {Writable: metadata.Bool(true)},
		},
	})
	factory := newPropertyFactory(classes, nil)

	title, err := factory.Create(context.Background(), "Book", "title", metadata.PropertyOptions{})
	require.NoError(t, err)
	assert.Equal(t, "yaml title", title.Description)
	assert.True(t, title.IsRequired())
	assert.Equal(t, []string{"book:read", "book:write", "extra"}, title.Groups)

	available, err := factory.Create(context.Background(), "Book", "available", metadata.PropertyOptions{})
	require.NoError(t, err)
	assert.False(t, available.IsWritable(), "struct tag wins over yaml")
}

func TestPropertyFactory_Errors(t *testing.T) {
	type Broken struct {
		Name string `json:"name" api:"bogus"`
	}
	classes := metadata.NewClassRegistry()
	classes.MustRegister(Broken{})
	factory := newPropertyFactory(classes, nil)

	_, err := factory.Create(context.Background(), "Broken", "name", metadata.PropertyOptions{})
	assert.ErrorIs(t, err, apierr.ErrConfiguration)

	_, err = factory.Create(context.Background(), "Broken", "missing", metadata.PropertyOptions{})
	assert.ErrorIs(t, err, apierr.ErrConfiguration)

	_, err = factory.Create(context.Background(), "Nope", "name", metadata.PropertyOptions{})
	assert.True(t, apierr.IsResourceClassNotFound(err))
}
