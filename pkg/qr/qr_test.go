package qr

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func TestEncodePNG(t *testing.T) {
	enc := NewEncoder(0)
	png, err := enc.EncodePNG("http://192.168.1.10:8080/api/v1/attendance/mark/abc-123")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, pngMagic))
}

func TestEncodePNGRejectsEmptyPayload(t *testing.T) {
	enc := NewEncoder(128)
	_, err := enc.EncodePNG("")
	assert.Error(t, err)
}
