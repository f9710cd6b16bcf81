package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunIDSortable(t *testing.T) {
	a, err := NewRunID()
	require.NoError(t, err)
	b, err := NewRunID()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.True(t, a < b, "run ids must be time-ordered: %s then %s", a, b)
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"a_1", "a_1"},
		{"scene_3_12", "scene_3_12"},
		{"Scene 3, Line 12", "scene_3_12"},
		{"ROUTE-7", "route_7"},
		{"  line 04 ", "line_4"},
	}
	for _, tc := range cases {
		got, err := Normalize(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
		assert.True(t, ValidLineID(got), got)
	}
}

func TestNormalizeRejects(t *testing.T) {
	for _, in := range []string{"", "   ", "12345", "no numbers here"} {
		_, err := Normalize(in)
		assert.Error(t, err, in)
	}
}

func TestOrdinal(t *testing.T) {
	assert.True(t, Ordinal("scene_2") < Ordinal("scene_10"))
	assert.True(t, Ordinal("a_1_2") < Ordinal("a_1_11"))
	assert.True(t, Ordinal("a_9") < Ordinal("b_1"))
}
