package pbixcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetRoundTrip(t *testing.T) {
	c, err := New(8)
	require.NoError(t, err)

	src := []byte{1, 2, 3}
	c.Put("a.idf", src)
	src[0] = 0xFF // mutate the caller's slice after Put

	got, ok := c.Get("a.idf")
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, got, "cache must own an independent copy")
}

func TestGetMissingReturnsFalse(t *testing.T) {
	c, err := New(8)
	require.NoError(t, err)
	_, ok := c.Get("nope")
	assert.False(t, ok)
}

func TestDefaultCapacityIsPositive(t *testing.T) {
	assert.Greater(t, DefaultCapacity(), 0)
}
