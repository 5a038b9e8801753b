package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeIsolation(t *testing.T) {
	qb := newDummyBuilder(t)
	qb.AndWhere(IsNotNull(Field("o", "name")))

	scope := NewScope(qb)
	b := scope.Builder()
	alias, err := b.JoinPath(LeftJoin, []string{"relatedDummy"}, NewNameGenerator())
	require.NoError(t, err)
	b.AndWhere(Eq(Field(alias, "name"), "rd")).SetParameter("rd", "foo")

	assert.Empty(t, qb.Joins())
	_, ok := qb.Parameter("rd")
	assert.False(t, ok)
	assert.Equal(t, "SELECT o FROM Dummy o WHERE o.name IS NOT NULL", qb.DQL())

	result := scope.Result()
	assert.Len(t, result.Joins, 1)
	assert.Equal(t, map[string]interface{}{"rd": "foo"}, result.Parameters)
	assert.False(t, result.Empty())
}

func TestScopeSeesExistingJoins(t *testing.T) {
	qb := newDummyBuilder(t)
	names := NewNameGenerator()
	alias, err := qb.JoinOnce(LeftJoin, "o", "relatedDummy", names)
	require.NoError(t, err)

	scope := NewScope(qb)
	reused, err := scope.Builder().JoinOnce(LeftJoin, "o", "relatedDummy", names)
	require.NoError(t, err)
	assert.Equal(t, alias, reused)
	assert.Empty(t, scope.Result().Joins)
}

func TestMergeOrDeduplicatesJoins(t *testing.T) {
	qb := newDummyBuilder(t)
	names := NewNameGenerator()

	branch := func(property, field string) ScopeResult {
		scope := NewScope(qb)
		b := scope.Builder()
		alias := b.RootAlias()
		if property != "" {
			var err error
			alias, err = b.JoinPath(LeftJoin, []string{property, "thirdLevel"}, names)
			require.NoError(t, err)
		}
		param := names.Parameter(field)
		b.AndWhere(Eq(Field(alias, field), param)).SetParameter(param, field+"-value")
		return scope.Result()
	}

	r1 := branch("relatedDummy", "level")
	r2 := branch("relatedDummy", "test")
	r3 := branch("", "name")
	empty := NewScope(qb).Result()

	require.NoError(t, qb.MergeOr(r1, empty, r2, r3))

	assert.Len(t, qb.Joins(), 2)
	assert.Equal(t,
		"SELECT o FROM Dummy o LEFT JOIN o.relatedDummy relatedDummy_a1 LEFT JOIN relatedDummy_a1.thirdLevel thirdLevel_a2"+
			" WHERE (thirdLevel_a2.level = :level OR thirdLevel_a2.test = :test OR o.name = :name)",
		qb.DQL())

	sqlStr, args, err := qb.ToSQL()
	require.NoError(t, err)
	assert.Contains(t, sqlStr, "WHERE (thirdLevel_a2.level = $1 OR thirdLevel_a2.test = $2 OR o.name = $3)")
	assert.Equal(t, []interface{}{"level-value", "test-value", "name-value"}, args)
}

func TestMergeEdgeCases(t *testing.T) {
	qb := newDummyBuilder(t)
	require.NoError(t, qb.MergeOr())
	require.NoError(t, qb.MergeOr(NewScope(qb).Result()))
	assert.Equal(t, "SELECT o FROM Dummy o", qb.DQL())

	qb.SetParameter("name", "a")
	scope := NewScope(qb)
	scope.Builder().AndWhere(Eq(Field("o", "name"), "name")).SetParameter("name", "b")
	assert.Error(t, qb.MergeOr(scope.Result()))

	qb = newDummyBuilder(t)
	s1 := NewScope(qb)
	s1.Builder().AndWhere(IsNull(Field("o", "alias")), IsNull(Field("o", "name")))
	require.NoError(t, qb.MergeAnd(s1.Result()))
	assert.Equal(t, "SELECT o FROM Dummy o WHERE o.alias IS NULL AND o.name IS NULL", qb.DQL())
}
