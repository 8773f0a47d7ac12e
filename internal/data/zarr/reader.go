// Package zarr reads single-band lighting rasters stored as Zarr v3 arrays.
package zarr

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/coord"
	"github.com/maryam-source/hamburg-safety-lighting-analysis-app/internal/raster"
)

// ArrayMeta represents Zarr v3 array metadata (zarr.json).
type ArrayMeta struct {
	Shape     []int  `json:"shape"`
	DataType  string `json:"data_type"`
	ChunkGrid struct {
		Name          string `json:"name"`
		Configuration struct {
			ChunkShape []int `json:"chunk_shape"`
		} `json:"configuration"`
	} `json:"chunk_grid"`
	ChunkKeyEncoding struct {
		Name          string `json:"name"`
		Configuration struct {
			Separator string `json:"separator"`
		} `json:"configuration"`
	} `json:"chunk_key_encoding"`
	FillValue  interface{}      `json:"fill_value"`
	Codecs     []Codec          `json:"codecs"`
	Attributes RasterAttributes `json:"attributes"`
	ZarrFormat int              `json:"zarr_format"`
	NodeType   string           `json:"node_type"`
}

// Codec is one entry of the codec pipeline.
type Codec struct {
	Name          string                 `json:"name"`
	Configuration map[string]interface{} `json:"configuration,omitempty"`
}

// RasterAttributes georeference the array. Transform is in rasterio order
// [a, b, c, d, e, f].
type RasterAttributes struct {
	CRS       string    `json:"crs"`
	Transform []float64 `json:"transform"`
	NoData    *float64  `json:"nodata"`
}

// Reader reads one 2-D Zarr v3 array.
type Reader struct {
	basePath string
	meta     *ArrayMeta
	decoder  *zstd.Decoder

	order     binary.ByteOrder
	compress  []string
	dtypeSize int
	fill      float64
}

// NewReader opens the array at basePath and validates its metadata.
func NewReader(basePath string) (*Reader, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	r := &Reader{
		basePath: basePath,
		decoder:  decoder,
	}
	if err := r.loadMetadata(); err != nil {
		decoder.Close()
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}
	return r, nil
}

// Meta returns the array metadata.
func (r *Reader) Meta() *ArrayMeta {
	return r.meta
}

func (r *Reader) loadMetadata() error {
	data, err := os.ReadFile(filepath.Join(r.basePath, "zarr.json"))
	if err != nil {
		return fmt.Errorf("failed to read zarr.json: %w", err)
	}
	var meta ArrayMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("failed to parse zarr.json: %w", err)
	}

	if meta.ZarrFormat != 0 && meta.ZarrFormat != 3 {
		return fmt.Errorf("unsupported zarr_format %d", meta.ZarrFormat)
	}
	if meta.NodeType != "" && meta.NodeType != "array" {
		return fmt.Errorf("node_type %q is not an array", meta.NodeType)
	}
	if len(meta.Shape) != 2 {
		return fmt.Errorf("raster must be 2-D, got shape %v", meta.Shape)
	}
	chunks := meta.ChunkGrid.Configuration.ChunkShape
	if len(chunks) != 2 || chunks[0] <= 0 || chunks[1] <= 0 {
		return fmt.Errorf("invalid chunk_shape %v", chunks)
	}
	if len(meta.Attributes.Transform) != 6 {
		return fmt.Errorf("attributes.transform must have 6 elements, got %d", len(meta.Attributes.Transform))
	}

	size, err := dtypeSize(meta.DataType)
	if err != nil {
		return err
	}
	fill, err := fillValue(meta.FillValue)
	if err != nil {
		return err
	}

	r.order = binary.LittleEndian
	for _, c := range meta.Codecs {
		switch c.Name {
		case "bytes":
			if endian, _ := c.Configuration["endian"].(string); endian == "big" {
				r.order = binary.BigEndian
			}
		case "zstd", "gzip":
			r.compress = append(r.compress, c.Name)
		default:
			return fmt.Errorf("unsupported codec %q", c.Name)
		}
	}

	r.meta = &meta
	r.dtypeSize = size
	r.fill = fill
	return nil
}

// ReadGrid reads every chunk into a raster grid. Missing chunks hold the
// fill value.
func (r *Reader) ReadGrid(ctx context.Context) (*raster.Grid, error) {
	height, width := r.meta.Shape[0], r.meta.Shape[1]
	chunkRows := r.meta.ChunkGrid.Configuration.ChunkShape[0]
	chunkCols := r.meta.ChunkGrid.Configuration.ChunkShape[1]

	data := make([]float32, height*width)
	for rc := 0; rc < ceilDiv(height, chunkRows); rc++ {
		for cc := 0; cc < ceilDiv(width, chunkCols); cc++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := r.readChunkInto(data, rc, cc); err != nil {
				return nil, fmt.Errorf("failed to load chunk %d/%d: %w", rc, cc, err)
			}
		}
	}

	t := r.meta.Attributes.Transform
	crs := r.meta.Attributes.CRS
	if crs == "" {
		crs = coord.WGS84
	}
	return raster.NewGrid(width, height, data,
		raster.Affine{A: t[0], B: t[1], C: t[2], D: t[3], E: t[4], F: t[5]},
		crs, r.meta.Attributes.NoData)
}

func (r *Reader) readChunkInto(dst []float32, rc, cc int) error {
	height, width := r.meta.Shape[0], r.meta.Shape[1]
	chunkRows := r.meta.ChunkGrid.Configuration.ChunkShape[0]
	chunkCols := r.meta.ChunkGrid.Configuration.ChunkShape[1]
	row0, col0 := rc*chunkRows, cc*chunkCols
	rows := min(chunkRows, height-row0)
	cols := min(chunkCols, width-col0)

	raw, err := r.readChunk(r.encodeChunkKey([]int{rc, cc}))
	if os.IsNotExist(err) {
		fill := float32(r.fill)
		for i := 0; i < rows; i++ {
			off := (row0+i)*width + col0
			for j := 0; j < cols; j++ {
				dst[off+j] = fill
			}
		}
		return nil
	}
	if err != nil {
		return err
	}

	// regular grids store full chunks; some writers trim edge chunks
	stride := chunkCols
	switch len(raw) {
	case chunkRows * chunkCols * r.dtypeSize:
	case rows * cols * r.dtypeSize:
		stride = cols
	default:
		return fmt.Errorf("chunk has %d bytes, want %d", len(raw), chunkRows*chunkCols*r.dtypeSize)
	}

	for i := 0; i < rows; i++ {
		off := (row0+i)*width + col0
		for j := 0; j < cols; j++ {
			p := (i*stride + j) * r.dtypeSize
			dst[off+j] = r.decodeElement(raw[p : p+r.dtypeSize])
		}
	}
	return nil
}

// readChunk reads a chunk file and undoes its bytes-to-bytes codecs.
func (r *Reader) readChunk(chunkKey string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(r.basePath, filepath.FromSlash(chunkKey)))
	if err != nil {
		return nil, err
	}
	for i := len(r.compress) - 1; i >= 0; i-- {
		switch r.compress[i] {
		case "zstd":
			data, err = r.decoder.DecodeAll(data, nil)
			if err != nil {
				return nil, fmt.Errorf("zstd decompress failed: %w", err)
			}
		case "gzip":
			zr, err := gzip.NewReader(bytes.NewReader(data))
			if err != nil {
				return nil, fmt.Errorf("gzip decompress failed: %w", err)
			}
			data, err = io.ReadAll(zr)
			zr.Close()
			if err != nil {
				return nil, fmt.Errorf("gzip decompress failed: %w", err)
			}
		}
	}
	return data, nil
}

func (r *Reader) encodeChunkKey(chunkIndices []int) string {
	enc := r.meta.ChunkKeyEncoding
	sep := enc.Configuration.Separator
	parts := make([]string, len(chunkIndices))
	for i, idx := range chunkIndices {
		parts[i] = strconv.Itoa(idx)
	}
	if enc.Name == "v2" {
		if sep == "" {
			sep = "."
		}
		return strings.Join(parts, sep)
	}
	if sep == "" {
		sep = "/"
	}
	return "c" + sep + strings.Join(parts, sep)
}

func (r *Reader) decodeElement(b []byte) float32 {
	switch r.meta.DataType {
	case "float32":
		return math.Float32frombits(r.order.Uint32(b))
	case "float64":
		return float32(math.Float64frombits(r.order.Uint64(b)))
	case "int8":
		return float32(int8(b[0]))
	case "uint8":
		return float32(b[0])
	case "int16":
		return float32(int16(r.order.Uint16(b)))
	case "uint16":
		return float32(r.order.Uint16(b))
	case "int32":
		return float32(int32(r.order.Uint32(b)))
	case "uint32":
		return float32(r.order.Uint32(b))
	}
	return 0
}

func dtypeSize(dataType string) (int, error) {
	switch dataType {
	case "int8", "uint8":
		return 1, nil
	case "int16", "uint16":
		return 2, nil
	case "float32", "int32", "uint32":
		return 4, nil
	case "float64":
		return 8, nil
	default:
		return 0, fmt.Errorf("unsupported zarr data_type: %s", dataType)
	}
}

// fillValue decodes fill_value, which is a JSON number or one of the special
// strings "NaN", "Infinity" and "-Infinity". Unset means 0.
func fillValue(v interface{}) (float64, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return t, nil
	case string:
		switch t {
		case "NaN":
			return math.NaN(), nil
		case "Infinity":
			return math.Inf(1), nil
		case "-Infinity":
			return math.Inf(-1), nil
		}
	}
	return 0, fmt.Errorf("unsupported fill_value %v (%T)", v, v)
}

// Close releases resources.
func (r *Reader) Close() {
	if r.decoder != nil {
		r.decoder.Close()
	}
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
