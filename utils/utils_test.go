package utils

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWeights(t *testing.T) {
	w, err := ParseWeights("1_000_000, 10000,100,1")
	require.NoError(t, err)
	assert.Equal(t, []int64{1_000_000, 10_000, 100, 1}, w)

	w, err = ParseWeights("5,")
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, w)

	_, err = ParseWeights("1,two")
	assert.Error(t, err)

	_, err = ParseWeights(" , ")
	assert.Error(t, err)
}

func TestAbsPaths(t *testing.T) {
	paths, err := AbsPaths([]string{"photos", "/already/abs"})
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(paths[0]))
	assert.Equal(t, "/already/abs", paths[1])
}
