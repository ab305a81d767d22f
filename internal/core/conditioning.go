package core

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	"image/png"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/segment"
	"github.com/anthonynsimon/bild/transform"
)

const (
	edgeBlurRadius     = 1.0
	edgeThresholdLevel = 100

	// Decoded size cap for reference images; the body limit only bounds compressed bytes.
	maxReferencePixels = 4096 * 4096
)

// BuildEdgeMap turns a reference image into a binary edge map of the requested
// size, suitable as a ControlNet structural conditioning image. The result is
// PNG-encoded: white edges on black.
func BuildEdgeMap(reference []byte, width, height int) ([]byte, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(reference))
	if err != nil {
		return nil, invalid("Reference image could not be decoded (use PNG, JPEG or GIF)")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, invalid("Reference image is empty")
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxReferencePixels {
		return nil, invalid(fmt.Sprintf("Reference image is too large (%dx%d), use at most %d pixels", cfg.Width, cfg.Height, maxReferencePixels))
	}

	src, format, err := image.Decode(bytes.NewReader(reference))
	if err != nil {
		return nil, invalid("Reference image could not be decoded (use PNG, JPEG or GIF)")
	}

	resized := transform.Resize(src, width, height, transform.Linear)
	smoothed := blur.Gaussian(resized, edgeBlurRadius)
	edges := effect.Sobel(effect.Grayscale(smoothed))
	edgeMap := segment.Threshold(edges, edgeThresholdLevel)

	var buf bytes.Buffer
	if err := png.Encode(&buf, edgeMap); err != nil {
		return nil, fmt.Errorf("failed to encode edge map from %s reference: %w", format, err)
	}
	return buf.Bytes(), nil
}
