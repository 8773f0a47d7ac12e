package render

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
)

// EncodeRasterTile encodes a rectangular 8-bit grid as a grayscale PNG. The
// encoder writes no ancillary chunks, so equal grids give equal bytes.
func EncodeRasterTile(a [][]uint8) ([]byte, error) {
	h := len(a)
	if h == 0 || len(a[0]) == 0 {
		return nil, fmt.Errorf("%w: empty raster grid", ErrEncodingFailure)
	}
	w := len(a[0])

	img := image.NewGray(image.Rect(0, 0, w, h))
	for y, row := range a {
		if len(row) != w {
			return nil, fmt.Errorf("%w: row %d has %d pixels, want %d", ErrEncodingFailure, y, len(row), w)
		}
		copy(img.Pix[y*img.Stride:y*img.Stride+w], row)
	}

	var buf bytes.Buffer
	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := encoder.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodingFailure, err)
	}
	return buf.Bytes(), nil
}
