package transform

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	"github.com/ternarybob/arbor"
	"golang.org/x/image/draw"

	"github.com/ternarybob/reclaim/internal/common"
	"github.com/ternarybob/reclaim/internal/interfaces"
)

// Supported media types
const (
	MediaTypeJPEG = "image/jpeg"
	MediaTypePNG  = "image/png"
	MediaTypeGIF  = "image/gif"
)

// Recompressor re-encodes raster images, optionally downscaling them first.
// It implements interfaces.TransformInvoker.
type Recompressor struct {
	quality      int
	maxDimension int
	logger       arbor.ILogger
}

// NewRecompressor creates a recompressor from the batch settings
func NewRecompressor(config *common.Config, logger arbor.ILogger) *Recompressor {
	return &Recompressor{
		quality:      config.Batch.Quality,
		maxDimension: config.Batch.MaxDimension,
		logger:       logger,
	}
}

// Process recompresses req.Data. A result that is not smaller than the input is
// reported as skipped.
func (r *Recompressor) Process(ctx context.Context, req interfaces.TransformRequest) (*interfaces.TransformResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(req.Data) == 0 {
		return &interfaces.TransformResult{Status: interfaces.TransformFailed, Message: "empty input"}, nil
	}

	var (
		out []byte
		err error
	)
	switch req.MediaType {
	case MediaTypeJPEG:
		out, err = r.jpeg(req.Data)
	case MediaTypePNG:
		out, err = r.png(req.Data)
	case MediaTypeGIF:
		var animated bool
		out, animated, err = r.gif(req.Data)
		if err == nil && animated {
			return &interfaces.TransformResult{Status: interfaces.TransformSkipped, Message: "animated gif"}, nil
		}
	default:
		return &interfaces.TransformResult{
			Status:  interfaces.TransformSkipped,
			Message: "unsupported media type: " + req.MediaType,
		}, nil
	}
	if err != nil {
		return &interfaces.TransformResult{Status: interfaces.TransformFailed, Message: err.Error()}, nil
	}

	if len(out) >= len(req.Data) {
		return &interfaces.TransformResult{Status: interfaces.TransformSkipped, Message: "no size reduction"}, nil
	}

	r.logger.Debug().
		Str("filename", req.Filename).
		Int("original_size", len(req.Data)).
		Int("result_size", len(out)).
		Msg("Image recompressed")

	return &interfaces.TransformResult{
		Status:    interfaces.TransformSucceeded,
		Data:      out,
		Filename:  req.Filename,
		MediaType: req.MediaType,
	}, nil
}

func (r *Recompressor) jpeg(data []byte) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode jpeg: %w", err)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, r.downscale(img), &jpeg.Options{Quality: r.quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Recompressor) png(data []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode png: %w", err)
	}
	var buf bytes.Buffer
	encoder := png.Encoder{CompressionLevel: png.BestCompression}
	if err := encoder.Encode(&buf, r.downscale(img)); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Recompressor) gif(data []byte) ([]byte, bool, error) {
	all, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode gif: %w", err)
	}
	if len(all.Image) != 1 {
		return nil, true, nil
	}
	var buf bytes.Buffer
	if err := gif.Encode(&buf, r.downscale(all.Image[0]), nil); err != nil {
		return nil, false, fmt.Errorf("failed to encode gif: %w", err)
	}
	return buf.Bytes(), false, nil
}

// downscale fits img inside maxDimension on its longest edge; 0 disables it
func (r *Recompressor) downscale(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if r.maxDimension <= 0 || (w <= r.maxDimension && h <= r.maxDimension) {
		return img
	}

	nw, nh := r.maxDimension, r.maxDimension
	if w >= h {
		nh = max(1, h*r.maxDimension/w)
	} else {
		nw = max(1, w*r.maxDimension/h)
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
