package transform

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/reclaim/internal/common"
	"github.com/ternarybob/reclaim/internal/interfaces"
)

func noisyJPEG(t *testing.T, size, quality int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 13), B: uint8((x ^ y) * 3), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}))
	return buf.Bytes()
}

func newRecompressor(quality, maxDimension int) *Recompressor {
	config := common.NewDefaultConfig()
	config.Batch.Quality = quality
	config.Batch.MaxDimension = maxDimension
	return NewRecompressor(config, arbor.NewLogger())
}

func TestRecompressShrinksJPEG(t *testing.T) {
	input := noisyJPEG(t, 256, 100)

	result, err := newRecompressor(40, 64).Process(context.Background(), interfaces.TransformRequest{
		Data:      input,
		Filename:  "photo.jpg",
		MediaType: MediaTypeJPEG,
	})
	require.NoError(t, err)
	require.Equal(t, interfaces.TransformSucceeded, result.Status, result.Message)
	assert.Less(t, len(result.Data), len(input))
	assert.Equal(t, "photo.jpg", result.Filename)

	img, err := jpeg.Decode(bytes.NewReader(result.Data))
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
}

func TestNoReductionIsSkipped(t *testing.T) {
	input := noisyJPEG(t, 32, 10)

	result, err := newRecompressor(100, 0).Process(context.Background(), interfaces.TransformRequest{
		Data:      input,
		MediaType: MediaTypeJPEG,
	})
	require.NoError(t, err)
	assert.Equal(t, interfaces.TransformSkipped, result.Status)
	assert.Equal(t, "no size reduction", result.Message)
}

func TestUndecodableInputFails(t *testing.T) {
	result, err := newRecompressor(80, 0).Process(context.Background(), interfaces.TransformRequest{
		Data:      []byte("not an image"),
		MediaType: MediaTypePNG,
	})
	require.NoError(t, err)
	assert.Equal(t, interfaces.TransformFailed, result.Status)
}

func TestUnsupportedTypeIsSkipped(t *testing.T) {
	result, err := newRecompressor(80, 0).Process(context.Background(), interfaces.TransformRequest{
		Data:      []byte("<svg/>"),
		MediaType: "image/svg+xml",
	})
	require.NoError(t, err)
	assert.Equal(t, interfaces.TransformSkipped, result.Status)
}
