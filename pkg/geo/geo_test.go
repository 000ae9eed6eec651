package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceZeroForIdenticalPoints(t *testing.T) {
	assert.Zero(t, Distance(0, 0, 0, 0))
	assert.Zero(t, Distance(-6.2, 106.8, -6.2, 106.8))
}

func TestDistanceKnownValues(t *testing.T) {
	// One degree of latitude is ~111.2 km.
	d := Distance(0, 0, 1, 0)
	require.InDelta(t, 111195, d, 200)

	// 0.0001 degrees of longitude on the equator is ~11 m.
	d = Distance(0, 0, 0, 0.0001)
	require.InDelta(t, 11.1, d, 0.5)
}

func TestDistanceSymmetry(t *testing.T) {
	a := Distance(-6.2, 106.8, -6.9, 107.6)
	b := Distance(-6.9, 107.6, -6.2, 106.8)
	assert.InDelta(t, a, b, 1e-9)
}

func TestVerifyBoundaryCountsAsWithin(t *testing.T) {
	d := Distance(0, 0, 0, 0.0001)
	res := Verify(0, 0.0001, 0, 0, d)
	assert.True(t, res.WithinRadius)
	assert.InDelta(t, d, res.DistanceMeters, 1e-9)
}

func TestVerifyOutsideRadius(t *testing.T) {
	res := Verify(0, 0.01, 0, 0, 50)
	assert.False(t, res.WithinRadius)
	assert.Greater(t, res.DistanceMeters, 1000.0)
}
