package utils

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFloats_JSONNullForNonFinite(t *testing.T) {
	data, err := json.Marshal(Floats{1.5, math.NaN(), math.Inf(1)})
	require.NoError(t, err)
	assert.JSONEq(t, `[1.5, null, null]`, string(data))

	var back Floats
	require.NoError(t, json.Unmarshal(data, &back))
	require.Len(t, back, 3)
	assert.Equal(t, 1.5, back[0])
	assert.True(t, math.IsNaN(back[1]))
}

func TestFinite(t *testing.T) {
	assert.Equal(t, 2.0, Finite(2))
	assert.Zero(t, Finite(math.NaN()))
	assert.Zero(t, Finite(math.Inf(-1)))
}
