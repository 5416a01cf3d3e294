package hash

import (
	"encoding/json"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfIsDeterministic(t *testing.T) {
	a := Of([]byte("hello"))
	b := Of([]byte("hello"))
	c := Of([]byte("hello!"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.False(t, a.IsEmpty())
	assert.True(t, Hash{}.IsEmpty())
}

func TestParseRoundTrip(t *testing.T) {
	h := Of([]byte("chunk"))
	s := h.String()
	require.Len(t, s, StringLen)

	parsed, err := Parse(s)
	require.NoError(t, err)
	assert.Equal(t, h, parsed)

	_, err = Parse("not-a-hash")
	assert.Error(t, err)
	_, ok := MaybeParse("zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz")
	assert.False(t, ok)
}

func TestStringOrderMatchesByteOrder(t *testing.T) {
	var hashes []Hash
	for _, s := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		hashes = append(hashes, Of([]byte(s)))
	}

	byBytes := append([]Hash(nil), hashes...)
	sort.Slice(byBytes, func(i, j int) bool { return byBytes[i].Less(byBytes[j]) })

	byText := append([]Hash(nil), hashes...)
	sort.Slice(byText, func(i, j int) bool { return byText[i].String() < byText[j].String() })

	assert.Equal(t, byBytes, byText)
}

func TestJSON(t *testing.T) {
	type doc struct {
		Root  Hash `json:"root"`
		Empty Hash `json:"empty"`
	}
	in := doc{Root: Of([]byte("x"))}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out doc
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestHashSet(t *testing.T) {
	s := NewHashSet(Of([]byte("a")))
	assert.True(t, s.Has(Of([]byte("a"))))
	assert.False(t, s.Has(Of([]byte("b"))))
}
