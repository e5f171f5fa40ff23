package encoding

import (
	"bytes"
	"errors"
	"testing"
)

func TestRegion_RoundTrip(t *testing.T) {
	size := [3]int{4, 4, 4}
	blocks := make([]uint16, 64)
	layer := make([]uint8, 64)
	for i := range blocks {
		if i < 16 {
			blocks[i] = 3
		}
		layer[i] = uint8(i % 5)
	}
	p, err := EncodeRegion([3]int{1, -2, 3}, size, blocks, [][]uint8{layer})
	if err != nil {
		t.Fatalf("EncodeRegion: %v", err)
	}
	gotBlocks, gotLayers, err := DecodeRegion(p)
	if err != nil {
		t.Fatalf("DecodeRegion: %v", err)
	}
	for i := range blocks {
		if gotBlocks[i] != blocks[i] {
			t.Fatalf("block[%d]=%d want %d", i, gotBlocks[i], blocks[i])
		}
	}
	if len(gotLayers) != 1 || !bytes.Equal(gotLayers[0], layer) {
		t.Fatalf("layers=%v want %v", gotLayers, layer)
	}
}

func TestRegion_RejectsWrongCellCount(t *testing.T) {
	if _, err := EncodeRegion([3]int{}, [3]int{2, 2, 2}, make([]uint16, 7), nil); err == nil {
		t.Fatalf("expected error for short block slice")
	}
	p, _ := EncodeRegion([3]int{}, [3]int{2, 2, 2}, make([]uint16, 8), nil)
	p.Size = [3]int{2, 2, 1}
	if _, _, err := DecodeRegion(p); err == nil {
		t.Fatalf("expected error when runs overflow the region")
	}
}

func TestFrame_RoundTrip(t *testing.T) {
	in := bytes.Repeat([]byte(`{"type":"NET"}`), 20)
	out, err := DecompressFrame(CompressFrame(in))
	if err != nil {
		t.Fatalf("DecompressFrame: %v", err)
	}
	if !bytes.Equal(out, in) {
		t.Fatalf("frame mismatch")
	}
}

func TestDecompressFrame_Limit(t *testing.T) {
	ok := make([]byte, 1<<20)
	if out, err := DecompressFrame(CompressFrame(ok)); err != nil || len(out) != len(ok) {
		t.Fatalf("frame under the limit: len=%d err=%v", len(out), err)
	}
	bomb := CompressFrame(make([]byte, 64<<20))
	if _, err := DecompressFrame(bomb); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("err=%v want ErrFrameTooLarge", err)
	}
	if _, err := Decompress(Compress(make([]byte, MaxFrameSize+1))); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("payload err=%v want ErrFrameTooLarge", err)
	}
}
