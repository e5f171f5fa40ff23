package encoding

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// MaxFrameSize caps the decompressed size of a frame or payload.
const MaxFrameSize = 4 << 20

var ErrFrameTooLarge = errors.New("decompressed frame too large")

// Encoder and decoder are safe for concurrent EncodeAll/DecodeAll.
var (
	zenc, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	zdec, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0), zstd.WithDecoderMaxMemory(MaxFrameSize))
)

// RegionPayload is the wire form of one region: RLE'd block ids and
// attribute layers, each zstd-compressed and base64'd.
type RegionPayload struct {
	Pos    [3]int   `json:"pos"`
	Size   [3]int   `json:"size"`
	Blocks string   `json:"blocks"`
	Layers []string `json:"layers,omitempty"`
}

func EncodeRegion(pos, size [3]int, blocks []uint16, layers [][]uint8) (RegionPayload, error) {
	cells := size[0] * size[1] * size[2]
	if len(blocks) != cells {
		return RegionPayload{}, fmt.Errorf("region %v: %d blocks want %d", pos, len(blocks), cells)
	}
	p := RegionPayload{
		Pos:    pos,
		Size:   size,
		Blocks: compress(AppendRLE(nil, blocks)),
	}
	for i, l := range layers {
		if len(l) != cells {
			return RegionPayload{}, fmt.Errorf("region %v layer %d: %d cells want %d", pos, i, len(l), cells)
		}
		ids := make([]uint16, len(l))
		for j, v := range l {
			ids[j] = uint16(v)
		}
		p.Layers = append(p.Layers, compress(AppendRLE(nil, ids)))
	}
	return p, nil
}

func DecodeRegion(p RegionPayload) (blocks []uint16, layers [][]uint8, err error) {
	cells := p.Size[0] * p.Size[1] * p.Size[2]
	if cells <= 0 {
		return nil, nil, fmt.Errorf("region %v: bad size %v", p.Pos, p.Size)
	}
	blocks, err = decompressRLE(p.Blocks, cells)
	if err != nil {
		return nil, nil, fmt.Errorf("region %v blocks: %w", p.Pos, err)
	}
	for i, s := range p.Layers {
		ids, err := decompressRLE(s, cells)
		if err != nil {
			return nil, nil, fmt.Errorf("region %v layer %d: %w", p.Pos, i, err)
		}
		l := make([]uint8, len(ids))
		for j, v := range ids {
			if v > 0xFF {
				return nil, nil, fmt.Errorf("region %v layer %d: value %d out of range", p.Pos, i, v)
			}
			l[j] = uint8(v)
		}
		layers = append(layers, l)
	}
	return blocks, layers, nil
}

// Compress returns base64(zstd(b)).
func Compress(b []byte) string { return compress(b) }

func Decompress(s string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return decodeAll(raw)
}

// CompressFrame and DecompressFrame are the raw zstd forms used for binary
// websocket frames.
func CompressFrame(b []byte) []byte { return zenc.EncodeAll(b, nil) }

func DecompressFrame(b []byte) ([]byte, error) { return decodeAll(b) }

func decodeAll(b []byte) ([]byte, error) {
	out, err := zdec.DecodeAll(b, nil)
	if errors.Is(err, zstd.ErrDecoderSizeExceeded) || errors.Is(err, zstd.ErrWindowSizeExceeded) || len(out) > MaxFrameSize {
		return nil, fmt.Errorf("%w (limit %d bytes)", ErrFrameTooLarge, MaxFrameSize)
	}
	return out, err
}

func compress(b []byte) string {
	return base64.StdEncoding.EncodeToString(zenc.EncodeAll(b, nil))
}

func decompressRLE(s string, cells int) ([]uint16, error) {
	raw, err := Decompress(s)
	if err != nil {
		return nil, err
	}
	ids, err := ParseRLE(raw, cells)
	if err != nil {
		return nil, err
	}
	if len(ids) != cells {
		return nil, fmt.Errorf("decoded %d cells want %d", len(ids), cells)
	}
	return ids, nil
}
