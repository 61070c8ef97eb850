package compress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecsRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 64)

	codecs := []Compress{NewNop(), NewGZip(), NewBrotli(), NewLZ4()}
	for _, codec := range codecs {
		t.Run(codec.Name(), func(t *testing.T) {
			encoded, err := codec.Encode(payload)
			require.NoError(t, err)

			decoded, err := codec.Decode(encoded)
			require.NoError(t, err)
			assert.Equal(t, payload, decoded)
		})
	}
}

func TestFromName(t *testing.T) {
	for _, name := range []string{"", "nop", "gzip", "brotli", "lz4"} {
		codec, err := FromName(name)
		assert.NoError(t, err)
		assert.NotNil(t, codec)
	}

	_, err := FromName("zstd")
	assert.Error(t, err)
}
