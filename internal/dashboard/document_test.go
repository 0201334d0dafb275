package dashboard

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_KeepsKeyOrder(t *testing.T) {
	d, err := Parse([]byte(`{"z": 1, "a": {"y": true, "b": null}, "m": [1.50, "x"]}`))
	require.NoError(t, err)

	out, err := d.MarshalIndent()
	require.NoError(t, err)

	assert.Equal(t, `{
  "z": 1,
  "a": {
    "y": true,
    "b": null
  },
  "m": [
    1.50,
    "x"
  ]
}
`, string(out))
}

func TestEncode_Compact(t *testing.T) {
	v, err := Decode([]byte(`{"a":[1,2],"b":{},"c":[]}`))
	require.NoError(t, err)

	out, err := Encode(v, "")
	require.NoError(t, err)
	assert.Equal(t, `{"a": [1, 2], "b": {}, "c": []}`, string(out))
}

func TestEncode_LiteralUnicodeAndHTML(t *testing.T) {
	d, err := Parse([]byte(`{"title": "Übersicht <b>&</b>", "q": "up{job=\"a\"}"}`))
	require.NoError(t, err)

	out, err := d.MarshalIndent()
	require.NoError(t, err)
	assert.Contains(t, string(out), `"title": "Übersicht <b>&</b>"`)
	assert.Contains(t, string(out), `"q": "up{job=\"a\"}"`)
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte(`[1, 2]`))
	assert.True(t, errors.Is(err, ErrNotObject))

	_, err = Parse([]byte(`{"a": `))
	assert.ErrorContains(t, err, "decoding JSON")

	_, err = Parse([]byte(`{} {}`))
	assert.ErrorContains(t, err, "unexpected data")
}

func TestParse_DuplicateKeyLastWins(t *testing.T) {
	d, err := Parse([]byte(`{"a": 1, "b": 2, "a": 3}`))
	require.NoError(t, err)

	out, err := Encode(d.Root, "")
	require.NoError(t, err)
	assert.Equal(t, `{"a": 3, "b": 2}`, string(out))
}
