package watermark

import (
	"image"
	"image/draw"

	"github.com/YannKr/fingerprint/internal/watermark/dwtdct"
)

// FromImage copies img into a new bitmap. Images that are not NRGBA or
// opaque RGBA are converted through NRGBA first, since the bitmap holds
// straight alpha and RGBA is premultiplied.
func FromImage(img image.Image) *Bitmap {
	b := img.Bounds()
	var pix []byte
	var stride int
	switch m := img.(type) {
	case *image.NRGBA:
		pix, stride = m.Pix[m.PixOffset(b.Min.X, b.Min.Y):], m.Stride
	case *image.RGBA:
		if m.Opaque() {
			pix, stride = m.Pix[m.PixOffset(b.Min.X, b.Min.Y):], m.Stride
		}
	}
	if pix == nil {
		n := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(n, n.Bounds(), img, b.Min, draw.Src)
		pix, stride = n.Pix, n.Stride
	}

	bm := NewBitmap(b.Dx(), b.Dy())
	for y := range bm.Height {
		src := pix[y*stride : y*stride+bm.Width*4]
		dst := bm.Pix[y*bm.Width*4 : (y+1)*bm.Width*4]
		for i := 0; i < len(src); i += 4 {
			dst[i], dst[i+1], dst[i+2], dst[i+3] = src[i+2], src[i+1], src[i], src[i+3]
		}
	}
	return bm
}

// ToImage converts bm back to an image with the bounds of like. Opaque
// RGBA inputs stay RGBA. Every other model becomes NRGBA, since a lossy
// model such as YCbCr would discard the fingerprint and premultiplied
// translucent pixels cannot hold arbitrary blue and green values.
func ToImage(bm *Bitmap, like image.Image) image.Image {
	r := image.Rect(0, 0, bm.Width, bm.Height)
	if like != nil {
		r = like.Bounds()
	}
	var pix []byte
	var stride int
	var out image.Image
	if m, ok := like.(*image.RGBA); ok && m.Opaque() {
		m := image.NewRGBA(r)
		pix, stride, out = m.Pix, m.Stride, m
	} else {
		m := image.NewNRGBA(r)
		pix, stride, out = m.Pix, m.Stride, m
	}
	for y := range bm.Height {
		src := bm.Pix[y*bm.Width*4 : (y+1)*bm.Width*4]
		dst := pix[y*stride : y*stride+bm.Width*4]
		for i := 0; i < len(src); i += 4 {
			dst[i], dst[i+1], dst[i+2], dst[i+3] = src[i+2], src[i+1], src[i], src[i+3]
		}
	}
	return out
}

// InsertImage returns a copy of img carrying payload. img is not modified.
func InsertImage(img image.Image, payload []byte, band dwtdct.Subband) (image.Image, error) {
	bm := FromImage(img)
	if err := Insert(bm, payload, band); err != nil {
		return nil, err
	}
	return ToImage(bm, img), nil
}

// ExtractImage recovers a payload of payloadLength bytes from img. fast
// selects the single precision path.
func ExtractImage(img image.Image, payloadLength int, band dwtdct.Subband, fast bool) ([]byte, error) {
	bm := FromImage(img)
	if fast {
		return FastExtract(bm, payloadLength, band)
	}
	return Extract(bm, payloadLength, band)
}
