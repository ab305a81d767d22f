package core

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
)

func squarePNG(t *testing.T, size int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := color.RGBA{A: 255}
			if x >= size/4 && x < 3*size/4 && y >= size/4 && y < 3*size/4 {
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestBuildEdgeMapIsBinaryAtRequestedSize(t *testing.T) {
	out, err := BuildEdgeMap(squarePNG(t, 64), 32, 48)
	if err != nil {
		t.Fatalf("BuildEdgeMap: %v", err)
	}

	edgeMap, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("edge map is not a PNG: %v", err)
	}
	if b := edgeMap.Bounds(); b.Dx() != 32 || b.Dy() != 48 {
		t.Fatalf("edge map is %dx%d, want 32x48", b.Dx(), b.Dy())
	}

	var edges, background int
	b := edgeMap.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			switch v := color.GrayModel.Convert(edgeMap.At(x, y)).(color.Gray).Y; v {
			case 255:
				edges++
			case 0:
				background++
			default:
				t.Fatalf("pixel (%d,%d) = %d, edge map must be binary", x, y, v)
			}
		}
	}
	if edges == 0 || background == 0 {
		t.Errorf("expected both edge and background pixels, got %d edges and %d background", edges, background)
	}

	// Flat regions away from the square's border carry no edges.
	if v := color.GrayModel.Convert(edgeMap.At(0, 0)).(color.Gray).Y; v != 0 {
		t.Errorf("corner pixel = %d, want 0", v)
	}
	if v := color.GrayModel.Convert(edgeMap.At(16, 24)).(color.Gray).Y; v != 0 {
		t.Errorf("centre pixel = %d, want 0", v)
	}
}

func TestBuildEdgeMapRejectsGarbage(t *testing.T) {
	_, err := BuildEdgeMap([]byte("definitely not an image"), 64, 64)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

// pngHeaderOnly returns a PNG signature and IHDR chunk declaring a grayscale
// canvas of the given size, with no pixel data behind it.
func pngHeaderOnly(width, height uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], width)
	binary.BigEndian.PutUint32(ihdr[4:8], height)
	ihdr[8] = 8 // bit depth; colour type, compression, filter and interlace stay 0

	chunk := append([]byte("IHDR"), ihdr...)
	binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	buf.Write(chunk)
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestBuildEdgeMapRejectsHugeCanvas(t *testing.T) {
	tests := []struct {
		name          string
		width, height uint32
	}{
		{"square", 8000, 8000},
		{"wide strip", 100000, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildEdgeMap(pngHeaderOnly(tt.width, tt.height), 64, 64)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if !strings.Contains(vErr.Message, "too large") {
				t.Errorf("unexpected message: %q", vErr.Message)
			}
		})
	}
}
