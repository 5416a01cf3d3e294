package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func characters() Table {
	return Table{
		Name: "characters",
		Columns: []Column{
			{Name: "name", Type: StringType, Length: 16},
			{Name: "adjective", Type: StringType, Length: 32},
			{Name: "id", Type: IntType, PrimaryKey: true},
			{Name: "date_of_death", Type: TimestampType},
		},
	}
}

func TestTablePrimaryKey(t *testing.T) {
	table := characters()
	assert.Equal(t, []int{2}, table.PrimaryKey())
	assert.Equal(t, 3, table.ColumnIndex("DATE_OF_DEATH"))
	assert.Equal(t, -1, table.ColumnIndex("missing"))
	assert.False(t, table.Columns[2].Nullable())
	assert.True(t, table.Columns[3].Nullable())
}

func TestTableValidate(t *testing.T) {
	require.NoError(t, characters().Validate())

	noPK := Table{Name: "t", Columns: []Column{{Name: "a", Type: IntType}}}
	assert.ErrorIs(t, noPK.Validate(), ErrSchemaViolation)

	dup := Table{Name: "t", Columns: []Column{{Name: "a", Type: IntType, PrimaryKey: true}, {Name: "A", Type: IntType}}}
	assert.ErrorIs(t, dup.Validate(), ErrSchemaViolation)
}

func TestTableMarshalRoundTrip(t *testing.T) {
	data, err := characters().Marshal()
	require.NoError(t, err)

	table, err := UnmarshalTable(data)
	require.NoError(t, err)
	assert.Equal(t, characters(), table)

	_, err = UnmarshalTable([]byte("{"))
	assert.ErrorIs(t, err, ErrCorruption)
}

func TestParseColumnType(t *testing.T) {
	ct, err := ParseColumnType("varchar")
	require.NoError(t, err)
	assert.Equal(t, StringType, ct)

	ct, err = ParseColumnType("DATETIME")
	require.NoError(t, err)
	assert.Equal(t, TimestampType, ct)
	assert.True(t, ct.IsTemporal())

	_, err = ParseColumnType("BLOB")
	assert.ErrorIs(t, err, ErrSchemaViolation)
}
