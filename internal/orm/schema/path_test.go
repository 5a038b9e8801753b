package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/hyperapi/internal/orm/schema"
	"github.com/conduit-lang/hyperapi/internal/orm/schema/schematest"
)

func TestSplitPropertyPath(t *testing.T) {
	assocs, leaf := schema.SplitPropertyPath("relatedDummy.thirdLevel.level")
	assert.Equal(t, []string{"relatedDummy", "thirdLevel"}, assocs)
	assert.Equal(t, "level", leaf)

	assocs, leaf = schema.SplitPropertyPath("name")
	assert.Empty(t, assocs)
	assert.Equal(t, "name", leaf)

	assert.True(t, schema.IsNestedProperty("a.b"))
	assert.False(t, schema.IsNestedProperty("a"))
}

func TestResolvePath(t *testing.T) {
	registry := schematest.Registry()

	t.Run("plain field", func(t *testing.T) {
		path, err := registry.ResolvePath("Dummy", "dummyDate")
		require.NoError(t, err)
		assert.False(t, path.IsNested())
		assert.True(t, path.IsField())
		assert.Equal(t, "Dummy", path.LeafResource)
		assert.True(t, path.Field.Type.IsTemporal())
	})

	t.Run("nested field", func(t *testing.T) {
		path, err := registry.ResolvePath("Dummy", "relatedDummy.thirdLevel.level")
		require.NoError(t, err)
		assert.True(t, path.IsNested())
		assert.Equal(t, []string{"relatedDummy", "thirdLevel"}, path.AssociationNames())
		assert.Equal(t, "ThirdLevel", path.LeafResource)
		assert.Equal(t, "level", path.Leaf)
		assert.Equal(t, "Dummy", path.Associations[0].Source)
		assert.Equal(t, "RelatedDummy", path.Associations[0].Target)
	})

	t.Run("association leaf", func(t *testing.T) {
		path, err := registry.ResolvePath("Dummy", "relatedDummies")
		require.NoError(t, err)
		assert.True(t, path.IsAssociation())
		assert.True(t, path.Association.IsToMany())
	})

	t.Run("unmapped segments", func(t *testing.T) {
		for _, property := range []string{"", "unknown", "name.length", "relatedDummy.nope", "relatedDummy..name", "relatedDummy.thirdLevel.nope"} {
			_, err := registry.ResolvePath("Dummy", property)
			assert.Error(t, err, property)
		}
		_, err := registry.ResolvePath("Missing", "name")
		assert.Error(t, err)
	})

	t.Run("is property mapped", func(t *testing.T) {
		assert.True(t, registry.IsPropertyMapped("Dummy", "relatedDummy.name", false))
		assert.False(t, registry.IsPropertyMapped("Dummy", "relatedDummy", false))
		assert.True(t, registry.IsPropertyMapped("Dummy", "relatedDummy", true))
		assert.False(t, registry.IsPropertyMapped("Dummy", "ghost", true))
	})
}
