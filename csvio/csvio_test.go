package csvio

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/val"
)

func characters() core.Table {
	return core.Table{
		Name: "characters",
		Columns: []core.Column{
			{Name: "name", Type: core.StringType},
			{Name: "adjective", Type: core.StringType},
			{Name: "id", Type: core.IntType, PrimaryKey: true},
			{Name: "date_of_death", Type: core.TimestampType},
		},
	}
}

func TestIsDateLike(t *testing.T) {
	assert.True(t, IsDateLike(core.Column{Name: "born", Type: core.DateType}))
	assert.True(t, IsDateLike(core.Column{Name: "DateAdded", Type: core.StringType}))
	assert.False(t, IsDateLike(core.Column{Name: "name", Type: core.StringType}))
	assert.False(t, IsDateLike(core.Column{Name: "updated", Type: core.IntType}))
}

func TestCodecNulls(t *testing.T) {
	table := characters()
	death := CodecFor(table.Columns[3])
	assert.Equal(t, "", death.Encode(nil))
	v, err := death.Decode("")
	require.NoError(t, err)
	assert.Nil(t, v)

	id := CodecFor(table.Columns[2])
	v, err = id.Decode(" ")
	require.NoError(t, err)
	assert.Nil(t, v)

	name := CodecFor(table.Columns[0])
	assert.Equal(t, "", name.Encode(nil))
	v, err = name.Decode("")
	require.NoError(t, err)
	assert.Equal(t, "", v)
}

func TestCodecDates(t *testing.T) {
	ts := time.Date(2020, 11, 2, 13, 4, 5, 0, time.UTC)
	death := CodecFor(core.Column{Name: "date_of_death", Type: core.TimestampType})
	assert.Equal(t, "2020-11-02 13:04:05", death.Encode(ts))

	v, err := death.Decode("2020-11-02 13:04:05")
	require.NoError(t, err)
	assert.Equal(t, ts, v)

	day := CodecFor(core.Column{Name: "born", Type: core.DateType})
	assert.Equal(t, "2020-11-02", day.Encode(time.Date(2020, 11, 2, 0, 0, 0, 0, time.UTC)))

	text := CodecFor(core.Column{Name: "date_added", Type: core.StringType})
	v, err = text.Decode("2020-11-02T13:04:05Z")
	require.NoError(t, err)
	assert.Equal(t, "2020-11-02 13:04:05", v)
	v, err = text.Decode("soon")
	require.NoError(t, err)
	assert.Equal(t, "soon", v)

	_, err = death.Decode("yesterday")
	assert.ErrorIs(t, err, core.ErrSchemaViolation)
}

func TestWriteThenRead(t *testing.T) {
	table := characters()
	death := time.Date(2021, 3, 1, 9, 30, 0, 0, time.UTC)
	rows := []val.Row{
		{"Anna", "tragic", int64(1), nil},
		{"Vronsky", "doomed, \"dashing\"", int64(2), death},
		{nil, "", int64(3), nil},
	}

	var buf bytes.Buffer
	w := NewWriter(&buf, table)
	require.NoError(t, w.WriteHeader())
	for _, row := range rows {
		require.NoError(t, w.Write(row))
	}
	require.NoError(t, w.Flush())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, "name,adjective,id,date_of_death", lines[0])
	assert.Equal(t, "Anna,tragic,1,", lines[1])

	r, err := NewReader(&buf, table)
	require.NoError(t, err)
	var got []val.Row
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, row.Copy())
	}

	require.Len(t, got, 3)
	assert.Equal(t, rows[0], got[0])
	assert.Equal(t, rows[1], got[1])
	// NULL strings come back as empty strings.
	assert.Equal(t, val.Row{"", "", int64(3), nil}, got[2])
}

func TestReaderHeaderMapping(t *testing.T) {
	table := characters()

	r, err := NewReader(strings.NewReader("ID,Name\n7,Kitty\n"), table)
	require.NoError(t, err)
	row, err := r.Read()
	require.NoError(t, err)
	assert.Equal(t, val.Row{"Kitty", nil, int64(7), nil}, row)
	_, err = r.Read()
	assert.Equal(t, io.EOF, err)

	_, err = NewReader(strings.NewReader("id,species\n"), table)
	assert.ErrorIs(t, err, core.ErrNoSuchColumn)

	_, err = NewReader(strings.NewReader("name,adjective\n"), table)
	assert.ErrorIs(t, err, core.ErrConstraintViolation)

	_, err = NewReader(strings.NewReader(""), table)
	assert.ErrorIs(t, err, core.ErrSchemaViolation)
}

func TestReaderBadValue(t *testing.T) {
	r, err := NewReader(strings.NewReader("id\nseven\n"), characters())
	require.NoError(t, err)
	_, err = r.Read()
	assert.ErrorIs(t, err, core.ErrSchemaViolation)
	assert.Contains(t, err.Error(), "column id")
}
