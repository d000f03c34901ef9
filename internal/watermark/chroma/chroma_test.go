package chroma_test

import (
	"bytes"
	"image"
	"math"
	"math/rand"
	"testing"

	"github.com/YannKr/fingerprint/internal/watermark/chroma"
)

func randomBuffer(w, h int, seed int64) []byte {
	buf := make([]byte, w*h*chroma.BytesPerPixel)
	rand.New(rand.NewSource(seed)).Read(buf)
	return buf
}

func TestExtractKnownValues(t *testing.T) {
	tests := []struct {
		name    string
		b, g, r byte
		want    float64
	}{
		{"black", 0, 0, 0, 128},
		{"white", 255, 255, 255, 128},
		{"gray", 77, 77, 77, 128},
		{"blue", 255, 0, 0, 255.5},
		{"red", 0, 0, 255, 128 - 0.168736*255},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := []byte{tt.b, tt.g, tt.r, 255}
			p := chroma.Extract[float64](buf, 1, image.Rect(0, 0, 1, 1))
			if math.Abs(p[0][0]-tt.want) > 1e-9 {
				t.Errorf("Cb = %v, want %v", p[0][0], tt.want)
			}
		})
	}
}

func TestExtractRespectsRegion(t *testing.T) {
	const w, h = 8, 6
	buf := randomBuffer(w, h, 1)
	r := image.Rect(2, 1, 6, 5)
	full := chroma.Extract[float64](buf, w, image.Rect(0, 0, w, h))
	sub := chroma.Extract[float64](buf, w, r)
	if len(sub) != r.Dy() || len(sub[0]) != r.Dx() {
		t.Fatalf("plane is %dx%d, want %dx%d", len(sub[0]), len(sub), r.Dx(), r.Dy())
	}
	for y := range sub {
		for x := range sub[y] {
			if sub[y][x] != full[y+r.Min.Y][x+r.Min.X] {
				t.Fatalf("sub[%d][%d] = %v, want %v", y, x, sub[y][x], full[y+r.Min.Y][x+r.Min.X])
			}
		}
	}

	single := chroma.Extract[float32](buf, w, r)
	for y := range sub {
		for x := range sub[y] {
			if math.Abs(float64(single[y][x])-sub[y][x]) > 1e-4 {
				t.Fatalf("float32 plane differs at [%d][%d]", y, x)
			}
		}
	}
}

func TestInsertUnchangedPlaneIsIdentity(t *testing.T) {
	const w, h = 16, 16
	buf := randomBuffer(w, h, 2)
	orig := bytes.Clone(buf)
	r := image.Rect(0, 0, w, h)
	chroma.Insert(buf, chroma.Extract[float64](buf, w, r), w, r)
	if !bytes.Equal(buf, orig) {
		t.Error("reinserting the extracted plane changed the buffer")
	}
}

func TestInsertTouchesOnlyBlueAndGreenInRegion(t *testing.T) {
	const w, h = 10, 10
	buf := randomBuffer(w, h, 3)
	orig := bytes.Clone(buf)
	r := image.Rect(3, 2, 7, 8)
	plane := chroma.Extract[float64](buf, w, r)
	for y := range plane {
		for x := range plane[y] {
			plane[y][x] += 9
		}
	}
	chroma.Insert(buf, plane, w, r)

	for y := range h {
		for x := range w {
			off := (y*w + x) * chroma.BytesPerPixel
			inside := image.Pt(x, y).In(r)
			if buf[off+2] != orig[off+2] || buf[off+3] != orig[off+3] {
				t.Fatalf("red/alpha changed at (%d,%d)", x, y)
			}
			if !inside && !bytes.Equal(buf[off:off+4], orig[off:off+4]) {
				t.Fatalf("pixel outside region changed at (%d,%d)", x, y)
			}
		}
	}
}

func TestInsertClamps(t *testing.T) {
	buf := []byte{250, 10, 128, 255, 5, 240, 128, 255}
	plane := [][]float64{{1000, -1000}}
	chroma.Insert(buf, plane, 2, image.Rect(0, 0, 2, 1))
	if buf[0] != 255 {
		t.Errorf("blue = %d, want 255", buf[0])
	}
	if buf[4] != 0 {
		t.Errorf("blue = %d, want 0", buf[4])
	}
	if buf[2] != 128 || buf[6] != 128 {
		t.Error("red changed")
	}
}
