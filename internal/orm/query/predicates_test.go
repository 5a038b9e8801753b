package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperatorString(t *testing.T) {
	tests := []struct {
		op       Operator
		expected string
	}{
		{OpEqual, "="},
		{OpNotEqual, "!="},
		{OpGreaterThan, ">"},
		{OpGreaterThanOrEqual, ">="},
		{OpLessThan, "<"},
		{OpLessThanOrEqual, "<="},
		{OpIn, "IN"},
		{OpNotIn, "NOT IN"},
		{OpLike, "LIKE"},
		{OpILike, "ILIKE"},
		{OpIsNull, "IS NULL"},
		{OpIsNotNull, "IS NOT NULL"},
		{OpBetween, "BETWEEN"},
		{OpIsEmpty, "IS EMPTY"},
		{OpIsNotEmpty, "IS NOT EMPTY"},
		{Operator(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.op.String())
		})
	}
}

func TestConditionSQL(t *testing.T) {
	tests := []struct {
		name   string
		pred   Predicate
		params map[string]interface{}
		dql    string
		sql    string
		args   []interface{}
	}{
		{
			name:   "in expands slices",
			pred:   Cond(Field("o", "id"), OpIn, Param("id")),
			params: map[string]interface{}{"id": []int{1, 2, 3}},
			dql:    "o.id IN (:id)",
			sql:    "o.id IN ($1, $2, $3)",
			args:   []interface{}{1, 2, 3},
		},
		{
			name:   "empty in is false",
			pred:   Cond(Field("o", "id"), OpIn, Param("id")),
			params: map[string]interface{}{"id": []string{}},
			dql:    "o.id IN (:id)",
			sql:    "FALSE",
			args:   []interface{}{},
		},
		{
			name:   "empty not in is true",
			pred:   Cond(Field("o", "id"), OpNotIn, Param("id")),
			params: map[string]interface{}{"id": []string{}},
			dql:    "o.id NOT IN (:id)",
			sql:    "TRUE",
			args:   []interface{}{},
		},
		{
			name:   "between",
			pred:   Cond(Field("o", "dummyPrice"), OpBetween, Param("low"), Param("high")),
			params: map[string]interface{}{"low": 12.99, "high": 15.99},
			dql:    "o.dummyPrice BETWEEN :low AND :high",
			sql:    "o.dummy_price BETWEEN $1 AND $2",
			args:   []interface{}{12.99, 15.99},
		},
		{
			name:   "case insensitive like",
			pred:   Cond(Lower(Field("o", "name")), OpLike, Lower(Param("name"))),
			params: map[string]interface{}{"name": "%foo%"},
			dql:    "LOWER(o.name) LIKE LOWER(:name)",
			sql:    "LOWER(o.name) LIKE LOWER($1)",
			args:   []interface{}{"%foo%"},
		},
		{
			name:   "reused parameter binds once",
			pred:   Or(Eq(Field("o", "name"), "v"), Eq(Field("o", "alias"), "v")),
			params: map[string]interface{}{"v": "x"},
			dql:    "o.name = :v OR o.alias = :v",
			sql:    "o.name = $1 OR o.alias = $1",
			args:   []interface{}{"x"},
		},
		{
			name: "to-one association is null",
			pred: IsNull(Field("o", "relatedDummy")),
			dql:  "o.relatedDummy IS NULL",
			sql:  "o.related_dummy_id IS NULL",
			args: []interface{}{},
		},
		{
			name: "has-one association is not null",
			pred: IsNotNull(Field("o", "relatedOwnedDummy")),
			dql:  "o.relatedOwnedDummy IS NOT NULL",
			sql:  "EXISTS (SELECT 1 FROM related_owned_dummies WHERE related_owned_dummies.dummy_id = o.id)",
			args: []interface{}{},
		},
		{
			name: "to-many association is empty",
			pred: Cond(Field("o", "relatedDummies"), OpIsEmpty),
			dql:  "o.relatedDummies IS EMPTY",
			sql:  "NOT EXISTS (SELECT 1 FROM dummy_related_dummies WHERE dummy_related_dummies.dummy_id = o.id)",
			args: []interface{}{},
		},
		{
			name: "to-many association is not empty",
			pred: Cond(Field("o", "relatedDummies"), OpIsNotEmpty),
			dql:  "o.relatedDummies IS NOT EMPTY",
			sql:  "EXISTS (SELECT 1 FROM dummy_related_dummies WHERE dummy_related_dummies.dummy_id = o.id)",
			args: []interface{}{},
		},
		{
			name: "nested groups are parenthesized",
			pred: And(
				Or(IsNull(Field("o", "dummyDate")), Cond(Field("o", "dummyDate"), OpLessThanOrEqual, Param("d"))),
				IsNotNull(Field("o", "name")),
			),
			params: map[string]interface{}{"d": "2015-04-05"},
			dql:    "(o.dummyDate IS NULL OR o.dummyDate <= :d) AND o.name IS NOT NULL",
			sql:    "(o.dummy_date IS NULL OR o.dummy_date <= $1) AND o.name IS NOT NULL",
			args:   []interface{}{"2015-04-05"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qb := newDummyBuilder(t)
			for k, v := range tt.params {
				qb.SetParameter(k, v)
			}

			assert.Equal(t, tt.dql, tt.pred.dql())

			r := newRenderer(qb)
			s, err := tt.pred.sql(r)
			require.NoError(t, err)
			assert.Equal(t, tt.sql, s)
			assert.Equal(t, tt.args, r.args)
		})
	}
}

func TestConditionValidation(t *testing.T) {
	qb := newDummyBuilder(t)
	r := newRenderer(qb)

	_, err := Cond(Field("o", "dummyPrice"), OpBetween, Param("low")).sql(r)
	assert.Error(t, err)

	_, err = Cond(Field("o", "name"), OpIsNull, Param("x")).sql(r)
	assert.Error(t, err)

	_, err = Cond(Field("o", "name"), OpIsEmpty).sql(r)
	assert.Error(t, err)

	_, err = Cond(Field("o", "relatedDummies"), OpEqual, Param("x")).sql(newRenderer(qb.SetParameter("x", 1)))
	assert.Error(t, err)
}

func TestPredicateGroupCompaction(t *testing.T) {
	group := And(nil, And(), IsNull(Field("o", "name")))
	assert.Len(t, group.Parts, 1)
	assert.False(t, group.Empty())
	assert.True(t, Or().Empty())
}

func TestRename(t *testing.T) {
	pred := Or(
		Eq(Field("relatedDummy_a2", "name"), "n"),
		Cond(Lower(Field("o", "name")), OpLike, Lower(Param("p"))),
	)
	renamed := pred.rename(map[string]string{"relatedDummy_a2": "relatedDummy_a1"})
	assert.Equal(t, "relatedDummy_a1.name = :n OR LOWER(o.name) LIKE LOWER(:p)", renamed.dql())
	assert.Equal(t, "relatedDummy_a2.name = :n OR LOWER(o.name) LIKE LOWER(:p)", pred.dql())
}

func TestValidateOperator(t *testing.T) {
	assert.NoError(t, ValidateOperator(OpLike, "string"))
	assert.Error(t, ValidateOperator(OpLike, "int"))
	assert.NoError(t, ValidateOperator(OpBetween, "decimal"))
	assert.Error(t, ValidateOperator(OpBetween, "bool"))
	assert.NoError(t, ValidateOperator(OpEqual, "bool"))
}
