package serializer_test

import (
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/conduit-lang/hyperapi/internal/metadata"
	"github.com/conduit-lang/hyperapi/internal/serializer"
)

func TestContextBuilder(t *testing.T) {
	ref := &metadata.OperationRef{
		Class: "Book",
		Resource: &metadata.Resource{
			NormalizationContext: metadata.Context{"groups": []string{"book:read"}, "skip_null_values": true},
		},
		Operation: &metadata.Operation{
			Kind:                   metadata.KindGet,
			NormalizationContext:   metadata.Context{"groups": []string{"book:item"}},
			DenormalizationContext: metadata.Context{"allow_extra_attributes": false},
		},
	}
	r := httptest.NewRequest("GET", "/books/1?x=1", nil)
	r = r.WithContext(serializer.WithFormat(r.Context(), metadata.FormatHAL))

	b := serializer.NewContextBuilder()
	sctx := b.CreateFromRequest(r, true, ref)
	assert.Equal(t, []string{"book:item"}, sctx.Groups)
	assert.True(t, sctx.SkipNullValues)
	assert.False(t, sctx.RejectExtraAttributes)
	assert.Equal(t, metadata.FormatHAL, sctx.Format)
	assert.Equal(t, "/books/1?x=1", sctx.RequestURI)
	assert.Equal(t, "Book", sctx.ResourceClass)
	assert.True(t, sctx.IsRoot())

	denorm := b.CreateFromRequest(r, false, ref)
	assert.Empty(t, denorm.Groups)
	assert.True(t, denorm.RejectExtraAttributes)

	// the declared contexts are left untouched
	assert.Equal(t, []string{"book:read"}, ref.Resource.NormalizationContext["groups"])
}

func TestUnion(t *testing.T) {
	a := map[string]interface{}{
		"member": []interface{}{map[string]interface{}{"id": 1}},
		"total":  1,
	}
	b := map[string]interface{}{
		"member": []interface{}{map[string]interface{}{"id": 2, "name": "x"}, "extra"},
		"total":  2,
		"view":   "v",
	}
	assert.Equal(t, map[string]interface{}{
		"member": []interface{}{map[string]interface{}{"id": 1, "name": "x"}, "extra"},
		"total":  1,
		"view":   "v",
	}, serializer.Union(a, b))
	assert.Equal(t, "b", serializer.Union(nil, "b"))
}

func TestUnionProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1234)
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	toDoc := func(m map[string]int) map[string]interface{} {
		out := make(map[string]interface{}, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out
	}

	properties.Property("keys of both sides are kept and the first side wins", prop.ForAll(
		func(a, b map[string]int) bool {
			got := serializer.Union(toDoc(a), toDoc(b)).(map[string]interface{})
			for k, v := range b {
				if _, shadowed := a[k]; !shadowed && got[k] != v {
					return false
				}
			}
			for k, v := range a {
				if got[k] != v {
					return false
				}
			}
			return len(got) <= len(a)+len(b)
		},
		gen.MapOf(gen.AlphaString(), gen.Int()),
		gen.MapOf(gen.AlphaString(), gen.Int()),
	))

	properties.Property("union with itself is the identity", prop.ForAll(
		func(a map[string]int) bool {
			doc := toDoc(a)
			return reflect.DeepEqual(serializer.Union(doc, doc), doc)
		},
		gen.MapOf(gen.AlphaString(), gen.Int()),
	))

	properties.TestingRun(t)
}
