// Package preprocess normalizes uploaded raster images for the vision-model
// path: decode, downscale, re-encode as PNG.
package preprocess

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

// Images larger than this on the longest side are downscaled to stay within
// the model backend's input limits.
const maxSide = 768

// LoadImage decodes PNG/JPEG/GIF/TIFF/BMP bytes, scales the image down to at
// most maxSide on the longest side, and returns PNG bytes ready for a data
// URL. Returns an error for bytes that are not a supported raster image
// (SVG included — those either go through the structural engine or fail).
func LoadImage(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w > maxSide || h > maxSide {
		img = imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
