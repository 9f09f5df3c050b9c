package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCheckinCode(t *testing.T) {
	code, err := GenerateCheckinCode(6)
	require.NoError(t, err)
	assert.Len(t, code, 6)
	assert.Regexp(t, `^[0-9]{6}$`, code)

	// Non-positive lengths fall back to the default
	code, err = GenerateCheckinCode(0)
	require.NoError(t, err)
	assert.Len(t, code, 6)
}

func TestHashCheckinCode(t *testing.T) {
	h1 := HashCheckinCode("654321")
	h2 := HashCheckinCode("654321")
	assert.Equal(t, h1, h2, "hashing is deterministic")
	assert.Len(t, h1, 64, "hex sha256")
	assert.NotEqual(t, h1, HashCheckinCode("654322"))
	assert.NotContains(t, h1, "654321")
}
