package clip_test

import (
	"errors"
	"testing"

	"github.com/YannKr/fingerprint/internal/watermark/clip"
)

func TestLevel(t *testing.T) {
	tests := []struct {
		length, width, height int
		w, h, level           int
	}{
		{12, 240, 240, 60, 60, 2},
		{12, 242, 243, 60, 60, 2},
		{1, 16, 16, 16, 16, 0},
		{1, 64, 64, 16, 16, 2},
		{1000, 15, 15, 12, 12, 0},
	}
	for _, tt := range tests {
		w, h, level := clip.Level(tt.length, tt.width, tt.height)
		if w != tt.w || h != tt.h || level != tt.level {
			t.Errorf("Level(%d, %d, %d) = (%d, %d, %d), want (%d, %d, %d)",
				tt.length, tt.width, tt.height, w, h, level, tt.w, tt.h, tt.level)
		}
	}
}

func TestBest256(t *testing.T) {
	c, err := clip.Best(12, 256, 256)
	if err != nil {
		t.Fatal(err)
	}
	want := clip.Clip{X: 8, Y: 8, Width: 240, Height: 240, Level: 2}
	if c != want {
		t.Errorf("Best = %+v, want %+v", c, want)
	}
}

func TestBestInvariants(t *testing.T) {
	for _, size := range [][2]int{{256, 256}, {640, 480}, {1920, 1080}, {333, 517}, {4000, 100}} {
		for _, length := range []int{1, 6, 12, 48, 300} {
			c, err := clip.Best(length, size[0], size[1])
			if errors.Is(err, clip.ErrCapacity) {
				continue
			}
			if err != nil {
				t.Fatal(err)
			}
			unit := 4 << c.Level
			if c.Width%unit != 0 || c.Height%unit != 0 {
				t.Errorf("%v/%d: clip %+v not divisible by %d", size, length, c, unit)
			}
			if c.X < 0 || c.Y < 0 || c.X+c.Width > size[0] || c.Y+c.Height > size[1] {
				t.Errorf("%v/%d: clip %+v outside image", size, length, c)
			}
			if blocks := (c.Width >> c.Level >> 2) * (c.Height >> c.Level >> 2); blocks < length*8 {
				t.Errorf("%v/%d: %d blocks cannot carry %d bits", size, length, blocks, length*8)
			}
			again, _ := clip.Best(length, size[0], size[1])
			if again != c {
				t.Errorf("Best is not deterministic: %+v then %+v", c, again)
			}
		}
	}
}

func TestBestRejectsLevelZero(t *testing.T) {
	for _, tt := range []struct{ length, w, h int }{
		{1000, 16, 16},
		{1, 16, 16},
		{0, 1024, 1024},
	} {
		if _, err := clip.Best(tt.length, tt.w, tt.h); !errors.Is(err, clip.ErrCapacity) {
			t.Errorf("Best(%d, %d, %d) err = %v, want ErrCapacity", tt.length, tt.w, tt.h, err)
		}
	}
}
