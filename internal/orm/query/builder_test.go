package query

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/hyperapi/internal/orm/schema/schematest"
)

func newDummyBuilder(t *testing.T) *QueryBuilder {
	t.Helper()
	qb, err := NewQueryBuilder(schematest.Registry(), "Dummy", nil)
	require.NoError(t, err)
	return qb
}

func TestNewQueryBuilder(t *testing.T) {
	qb := newDummyBuilder(t)
	assert.Equal(t, "o", qb.RootAlias())
	assert.Equal(t, "Dummy", qb.Resource().Name)
	assert.Equal(t, "SELECT o FROM Dummy o", qb.DQL())

	_, err := NewQueryBuilder(schematest.Registry(), "Ghost", nil)
	assert.Error(t, err)
}

func TestDatePredicateRendering(t *testing.T) {
	qb := newDummyBuilder(t)
	after := time.Date(2015, 4, 5, 0, 0, 0, 0, time.UTC)

	qb.AndWhere(Cond(Field("o", "dummyDate"), OpGreaterThanOrEqual, Param("dummyDate_after"))).
		SetParameter("dummyDate_after", after)

	assert.Equal(t, "SELECT o FROM Dummy o WHERE o.dummyDate >= :dummyDate_after", qb.DQL())

	sqlStr, args, err := qb.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT o.* FROM dummies o WHERE o.dummy_date >= $1", sqlStr)
	assert.Equal(t, []interface{}{after}, args)

	bound, ok := qb.Parameter("dummyDate_after")
	require.True(t, ok)
	assert.Equal(t, "2015-04-05T00:00:00", bound.(time.Time).Format("2006-01-02T15:04:05"))
}

func TestJoinPathReusesAliases(t *testing.T) {
	qb := newDummyBuilder(t)
	names := NewNameGenerator()

	alias, err := qb.JoinPath(LeftJoin, []string{"relatedDummy", "thirdLevel"}, names)
	require.NoError(t, err)
	assert.Equal(t, "thirdLevel_a2", alias)

	again, err := qb.JoinPath(LeftJoin, []string{"relatedDummy", "thirdLevel"}, names)
	require.NoError(t, err)
	assert.Equal(t, alias, again)

	prefix, err := qb.JoinPath(LeftJoin, []string{"relatedDummy"}, names)
	require.NoError(t, err)
	assert.Equal(t, "relatedDummy_a1", prefix)
	assert.Len(t, qb.Joins(), 2)

	qb.AndWhere(Eq(Field(alias, "level"), "level")).SetParameter("level", 3)

	assert.Equal(t,
		"SELECT o FROM Dummy o LEFT JOIN o.relatedDummy relatedDummy_a1 LEFT JOIN relatedDummy_a1.thirdLevel thirdLevel_a2 WHERE thirdLevel_a2.level = :level",
		qb.DQL())

	sqlStr, args, err := qb.ToSQL()
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT o.* FROM dummies o LEFT JOIN related_dummies relatedDummy_a1 ON relatedDummy_a1.id = o.related_dummy_id LEFT JOIN third_levels thirdLevel_a2 ON thirdLevel_a2.id = relatedDummy_a1.third_level_id WHERE thirdLevel_a2.level = $1",
		sqlStr)
	assert.Equal(t, []interface{}{3}, args)
}

func TestJoinErrors(t *testing.T) {
	qb := newDummyBuilder(t)

	assert.Error(t, qb.LeftJoin("o", "name", "name_a1"))
	assert.Error(t, qb.LeftJoin("x", "relatedDummy", "rd"))
	assert.Error(t, qb.LeftJoin("o", "relatedDummy", "bad alias"))
	require.NoError(t, qb.InnerJoin("o", "relatedDummy", "rd"))
	assert.Error(t, qb.LeftJoin("o", "relatedOwnedDummy", "rd"))
}

func TestToManyJoinRendersDistinct(t *testing.T) {
	qb := newDummyBuilder(t)
	names := NewNameGenerator()

	alias, err := qb.JoinOnce(LeftJoin, "o", "relatedDummies", names)
	require.NoError(t, err)
	assert.Equal(t, "relatedDummies_a1", alias)
	assert.True(t, qb.HasToManyJoin())

	qb.AndWhere(Eq(Field(alias, "id"), "relatedDummies")).SetParameter("relatedDummies", 1)

	joins := "LEFT JOIN dummy_related_dummies relatedDummies_a1_jt ON relatedDummies_a1_jt.dummy_id = o.id " +
		"LEFT JOIN related_dummies relatedDummies_a1 ON relatedDummies_a1.id = relatedDummies_a1_jt.related_dummy_id"

	sqlStr, _, err := qb.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT DISTINCT o.* FROM dummies o "+joins+" WHERE relatedDummies_a1.id = $1", sqlStr)

	countSQL, args, err := qb.CountSQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(DISTINCT o.id) FROM dummies o "+joins+" WHERE relatedDummies_a1.id = $1", countSQL)
	assert.Equal(t, []interface{}{1}, args)
}

func TestHasOneJoin(t *testing.T) {
	qb := newDummyBuilder(t)
	alias, err := qb.JoinOnce(InnerJoin, "o", "relatedOwnedDummy", NewNameGenerator())
	require.NoError(t, err)

	sqlStr, _, err := qb.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT o.* FROM dummies o INNER JOIN related_owned_dummies "+alias+" ON "+alias+".dummy_id = o.id", sqlStr)
}

func TestOrWhere(t *testing.T) {
	qb := newDummyBuilder(t)
	qb.AndWhere(Eq(Field("o", "name"), "name")).
		OrWhere(Eq(Field("o", "alias"), "alias")).
		SetParameter("name", "foo").
		SetParameter("alias", "bar")

	assert.Equal(t, "SELECT o FROM Dummy o WHERE (o.name = :name OR o.alias = :alias)", qb.DQL())

	qb.AndWhere(IsNotNull(Field("o", "dummyDate")))
	sqlStr, args, err := qb.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT o.* FROM dummies o WHERE (o.name = $1 OR o.alias = $2) AND o.dummy_date IS NOT NULL", sqlStr)
	assert.Equal(t, []interface{}{"foo", "bar"}, args)

	empty := newDummyBuilder(t)
	empty.OrWhere(Eq(Field("o", "name"), "name"))
	assert.Equal(t, "SELECT o FROM Dummy o WHERE o.name = :name", empty.DQL())
}

func TestOrderLimitOffset(t *testing.T) {
	qb := newDummyBuilder(t)
	qb.AndWhere(Eq(Field("o", "name"), "name")).
		SetParameter("name", "foo").
		AddOrderBy(Field("o", "dummyDate"), "desc", NullsLast).
		AddOrderBy(Field("o", "id"), "sideways").
		Limit(30).
		Offset(60)

	assert.Equal(t, "SELECT o FROM Dummy o WHERE o.name = :name ORDER BY o.dummyDate DESC NULLS LAST, o.id ASC", qb.DQL())

	sqlStr, args, err := qb.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT o.* FROM dummies o WHERE o.name = $1 ORDER BY o.dummy_date DESC NULLS LAST, o.id ASC LIMIT $2 OFFSET $3", sqlStr)
	assert.Equal(t, []interface{}{"foo", 30, 60}, args)

	countSQL, countArgs, err := qb.CountSQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(*) FROM dummies o WHERE o.name = $1", countSQL)
	assert.Equal(t, []interface{}{"foo"}, countArgs)
}

func TestToSQLErrors(t *testing.T) {
	qb := newDummyBuilder(t)
	qb.AndWhere(Eq(Field("o", "name"), "missing"))
	_, _, err := qb.ToSQL()
	assert.Error(t, err)

	qb = newDummyBuilder(t)
	qb.AndWhere(Eq(Field("o", "ghost"), "ghost")).SetParameter("ghost", 1)
	_, _, err = qb.ToSQL()
	assert.Error(t, err)

	qb = newDummyBuilder(t)
	qb.AddOrderBy(Field("o", "ghost"), "ASC")
	_, _, err = qb.ToSQL()
	assert.Error(t, err)
}

func TestClone(t *testing.T) {
	qb := newDummyBuilder(t)
	qb.AndWhere(Eq(Field("o", "name"), "name")).SetParameter("name", "foo").Limit(5)

	clone := qb.Clone()
	clone.AndWhere(IsNull(Field("o", "alias")))
	clone.SetParameter("other", 1)
	_, err := clone.JoinOnce(LeftJoin, "o", "relatedDummy", NewNameGenerator())
	require.NoError(t, err)

	assert.Equal(t, "SELECT o FROM Dummy o WHERE o.name = :name", qb.DQL())
	assert.Empty(t, qb.Joins())
	_, ok := qb.Parameter("other")
	assert.False(t, ok)
	assert.Contains(t, clone.DQL(), "o.alias IS NULL")
}

func TestAllAndCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	qb, err := NewQueryBuilder(schematest.Registry(), "Dummy", db)
	require.NoError(t, err)
	qb.AndWhere(Eq(Field("o", "name"), "name")).SetParameter("name", "foo")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM dummies o WHERE o.name = $1")).
		WithArgs("foo").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	mock.ExpectQuery(regexp.QuoteMeta("SELECT o.* FROM dummies o WHERE o.name = $1 LIMIT $2")).
		WithArgs("foo", 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(1, "foo").
			AddRow(2, []byte("foo")))

	ctx := context.Background()
	count, err := qb.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	rows, err := qb.Limit(10).All(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.EqualValues(t, 1, rows[0]["id"])
	assert.Equal(t, "foo", rows[1]["name"])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAllWithoutDatabase(t *testing.T) {
	qb := newDummyBuilder(t)
	_, err := qb.All(context.Background())
	assert.Error(t, err)
	_, err = qb.Count(context.Background())
	assert.Error(t, err)
}
