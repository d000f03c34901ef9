package watermark

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Distortion summarises how far a fingerprinted bitmap is from its source.
// Alpha is ignored.
type Distortion struct {
	PSNR          float64 `json:"psnr"`
	MSE           float64 `json:"mse"`
	MaxDeviation  float64 `json:"max_deviation"`
	ChangedPixels int     `json:"changed_pixels"`
}

// MaxPSNR is reported for identical bitmaps.
const MaxPSNR = 100.0

// Measure compares original and marked, which must have equal dimensions.
func Measure(original, marked *Bitmap) (Distortion, error) {
	if err := original.validate(); err != nil {
		return Distortion{}, err
	}
	if err := marked.validate(); err != nil {
		return Distortion{}, err
	}
	if original.Width != marked.Width || original.Height != marked.Height {
		return Distortion{}, fmt.Errorf("%w: %dx%d vs %dx%d", ErrInvalidBitmap,
			original.Width, original.Height, marked.Width, marked.Height)
	}

	n := original.Width * original.Height * 3
	a := make([]float64, 0, n)
	b := make([]float64, 0, n)
	var d Distortion
	for i := 0; i < len(original.Pix); i += 4 {
		changed := false
		for c := range 3 {
			a = append(a, float64(original.Pix[i+c]))
			b = append(b, float64(marked.Pix[i+c]))
			if original.Pix[i+c] != marked.Pix[i+c] {
				changed = true
			}
		}
		if changed {
			d.ChangedPixels++
		}
	}

	d.MaxDeviation = floats.Distance(a, b, math.Inf(1))
	floats.Sub(a, b)
	floats.Mul(a, a)
	d.MSE = stat.Mean(a, nil)
	if d.MSE == 0 {
		d.PSNR = MaxPSNR
	} else {
		d.PSNR = math.Min(10*math.Log10(255*255/d.MSE), MaxPSNR)
	}
	return d, nil
}
