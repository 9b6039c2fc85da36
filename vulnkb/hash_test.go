package vulnkb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentHashIsStable(t *testing.T) {
	require := require.New(t)

	first := ContentHash("SELECT * FROM users WHERE id = ?")
	second := ContentHash("SELECT * FROM users WHERE id = ?")

	require.Equal(first, second)
	require.Len(first, 64)
}

func TestContentHashNormalizesLineEndingsAndWhitespace(t *testing.T) {
	assert := assert.New(t)

	unix := ContentHash("line one\nline two")
	windows := ContentHash("line one\r\nline two")
	padded := ContentHash("\n  line one\nline two  \n")

	assert.Equal(unix, windows)
	assert.Equal(unix, padded)
}

func TestContentHashDiffersForDifferentCode(t *testing.T) {
	assert := assert.New(t)

	assert.NotEqual(ContentHash("a := 1"), ContentHash("a := 2"))
}

func TestEncodeVector(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("[]", EncodeVector(nil))
	assert.Equal("[0.5]", EncodeVector([]float64{0.5}))
	assert.Equal("[0.1,-2,3.25]", EncodeVector([]float64{0.1, -2, 3.25}))
}
