package services

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgsDecoding(t *testing.T) {
	a := Args{"s", float64(3), 2.5, true, []any{"x", "y"}, []any{float64(1), 2}, json.Number("7"), 9}

	s, err := a.String(0)
	require.NoError(t, err)
	assert.Equal(t, "s", s)

	n, err := a.Int(1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	f, err := a.Float(2)
	require.NoError(t, err)
	assert.Equal(t, 2.5, f)

	b, err := a.Bool(3)
	require.NoError(t, err)
	assert.True(t, b)

	strs, err := a.Strings(4)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, strs)

	ints, err := a.Ints(5)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, ints)

	n, err = a.Int(6)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)

	f, err = a.Float(7)
	require.NoError(t, err)
	assert.Equal(t, 9.0, f)
}

func TestArgsErrors(t *testing.T) {
	a := Args{"s", 1.5, []any{1}}

	_, err := a.Int(0)
	assert.ErrorIs(t, err, ErrBadArgument)
	_, err = a.Int(1)
	assert.ErrorIs(t, err, ErrBadArgument)
	_, err = a.String(1)
	assert.ErrorIs(t, err, ErrBadArgument)
	_, err = a.Strings(2)
	assert.ErrorIs(t, err, ErrBadArgument)
	_, err = a.Bool(9)
	assert.ErrorIs(t, err, ErrBadArgument)
}

func TestArgsNilLists(t *testing.T) {
	a := Args{nil}
	strs, err := a.Strings(0)
	require.NoError(t, err)
	assert.Empty(t, strs)
}
