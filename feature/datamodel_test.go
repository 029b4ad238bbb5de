package feature

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/dedupekit/core"
)

func TestDataModel_Distances(t *testing.T) {
	dm, err := NewDataModel([]Variable{
		{Field: "name", Type: TypeString},
		{Field: "city", Type: TypeExact, HasMissing: true},
		{Field: "price", Type: TypePrice},
		{Field: "tags", Type: TypeSet},
	})
	require.NoError(t, err)
	assert.Equal(t, 5, dm.NumFeatures())

	pairs := []core.Example{
		{
			A: core.Record{"name": "Acme", "city": "Rome", "price": 10.0, "tags": []any{"a", "b"}},
			B: core.Record{"name": "acme", "city": "rome", "price": 100.0, "tags": []any{"b", "c"}},
		},
		{
			A: core.Record{"name": "kitten", "city": nil, "price": 5.0, "tags": []any{"x"}},
			B: core.Record{"name": "sitting", "city": "Oslo", "price": 5.0, "tags": []any{"x"}},
		},
	}
	rows, err := dm.Distances(pairs)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.InDelta(t, 0, rows[0][0], 1e-9)
	assert.InDelta(t, 0, rows[0][1], 1e-9)
	assert.InDelta(t, 1, rows[0][2], 1e-9)
	assert.InDelta(t, 1-1.0/3, rows[0][3], 1e-9)
	assert.Equal(t, 0.0, rows[0][4])

	assert.InDelta(t, 3.0/7, rows[1][0], 1e-9)
	assert.Equal(t, 0.0, rows[1][1])
	assert.Equal(t, 1.0, rows[1][4])
	for _, v := range rows[1] {
		assert.False(t, math.IsNaN(v))
	}
}

func TestDataModel_Check(t *testing.T) {
	dm, err := NewDataModel([]Variable{
		{Field: "name", Type: TypeString},
		{Field: "zip", Type: TypeExact, HasMissing: true},
		{Field: "price", Type: TypePrice},
	})
	require.NoError(t, err)

	assert.NoError(t, dm.Check("1", core.Record{"name": "a", "price": 1.0}))

	err = dm.Check("2", core.Record{"price": 1.0})
	require.Error(t, err)
	assert.True(t, core.IsSchemaError(err))
	assert.Contains(t, err.Error(), "name")

	err = dm.Check("3", core.Record{"name": "a", "price": "cheap"})
	assert.True(t, core.IsSchemaError(err))

	err = CheckStore(dm, core.Dataset{})
	assert.True(t, core.IsEmptyInput(err))

	err = CheckStore(dm, core.Dataset{"1": {"name": "a", "price": 1.0}, "2": {"price": 2.0}})
	assert.True(t, core.IsSchemaError(err))
	assert.Contains(t, err.Error(), `"2"`)
}

func TestNewDataModel_Errors(t *testing.T) {
	_, err := NewDataModel(nil)
	assert.Error(t, err)

	_, err = NewDataModel([]Variable{{Field: "x", Type: "Soundex"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "String")

	dm, err := NewDataModel([]Variable{{Field: "a", Type: TypeString}, {Field: "a", Type: TypeText}, {Field: "b", Type: TypeSet}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, dm.Fields())
	assert.Equal(t, map[string]string{"a": TypeString, "b": TypeSet}, dm.FieldKinds())
}
