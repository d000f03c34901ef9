// Package imageio decodes and encodes the raster formats fingerprints are
// read from and written to. Lossless formats preserve a fingerprint exactly;
// JPEG output relies on the Reed-Solomon parity to repair the damage done by
// quantisation.
package imageio

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/jpegn"
	jpeg2000 "github.com/mrjoshuak/go-jpeg2000"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

// ErrUnsupported is returned for a format that cannot be read or written.
var ErrUnsupported = errors.New("imageio: unsupported format")

// Format identifies an image container.
type Format string

const (
	PNG      Format = "png"
	JPEG     Format = "jpeg"
	BMP      Format = "bmp"
	TIFF     Format = "tiff"
	WebP     Format = "webp"
	JPEG2000 Format = "jp2"
)

// DefaultJPEGQuality is used when Options.Quality is zero.
const DefaultJPEGQuality = 100

// Options control encoding.
type Options struct {
	// Quality applies to JPEG output, 1-100.
	Quality int
}

var extensions = map[string]Format{
	".png":  PNG,
	".jpg":  JPEG,
	".jpeg": JPEG,
	".bmp":  BMP,
	".tif":  TIFF,
	".tiff": TIFF,
	".webp": WebP,
	".jp2":  JPEG2000,
	".j2k":  JPEG2000,
}

var mimeTypes = map[Format]string{
	PNG:      "image/png",
	JPEG:     "image/jpeg",
	BMP:      "image/bmp",
	TIFF:     "image/tiff",
	WebP:     "image/webp",
	JPEG2000: "image/jp2",
}

// FormatFromPath returns the format implied by the file extension.
func FormatFromPath(path string) (Format, error) {
	f, ok := extensions[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupported, filepath.Ext(path))
	}
	return f, nil
}

// ParseFormat accepts a format name or a file extension.
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(s, ".") {
		s = "." + s
	}
	return FormatFromPath(s)
}

// Ext returns the canonical file extension.
func (f Format) Ext() string {
	switch f {
	case JPEG:
		return ".jpg"
	case TIFF:
		return ".tiff"
	}
	return "." + string(f)
}

// MIMEType returns the media type of the format.
func (f Format) MIMEType() string {
	if m, ok := mimeTypes[f]; ok {
		return m
	}
	return "application/octet-stream"
}

// CanEncode reports whether Encode supports f.
func (f Format) CanEncode() bool {
	switch f {
	case PNG, JPEG, BMP, TIFF, JPEG2000:
		return true
	}
	return false
}

// Decode reads an image of the given format. An empty format sniffs the
// stream through the registered decoders.
func Decode(r io.Reader, format Format) (image.Image, error) {
	var (
		img image.Image
		err error
	)
	switch format {
	case PNG:
		img, err = png.Decode(r)
	case JPEG:
		img, err = jpegn.Decode(r, &jpegn.Options{ToRGBA: true})
	case BMP:
		img, err = bmp.Decode(r)
	case TIFF:
		img, err = tiff.Decode(r)
	case WebP:
		img, err = webp.Decode(r)
	case JPEG2000:
		img, err = jpeg2000.Decode(r)
	case "":
		img, _, err = image.Decode(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, format)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", format, err)
	}
	return img, nil
}

// Encode writes img in the given format.
func Encode(w io.Writer, img image.Image, format Format, opts Options) error {
	var err error
	switch format {
	case PNG:
		err = png.Encode(w, img)
	case JPEG:
		q := opts.Quality
		if q <= 0 {
			q = DefaultJPEGQuality
		}
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: q})
	case BMP:
		err = bmp.Encode(w, img)
	case TIFF:
		err = tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	case JPEG2000:
		o := jpeg2000.DefaultOptions()
		o.Lossless = true
		err = jpeg2000.Encode(w, img, o)
	default:
		return fmt.Errorf("%w for encoding: %s", ErrUnsupported, format)
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", format, err)
	}
	return nil
}

// Load opens and decodes the image at path, choosing the decoder by
// extension and falling back to sniffing.
func Load(path string) (image.Image, Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	format, ferr := FormatFromPath(path)
	if ferr != nil {
		img, name, err := image.Decode(bufio.NewReader(f))
		if err != nil {
			return nil, "", fmt.Errorf("decode %s: %w", path, err)
		}
		return img, Format(name), nil
	}
	img, err := Decode(bufio.NewReader(f), format)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", path, err)
	}
	return img, format, nil
}

// Save encodes img to path in the format implied by its extension.
func Save(path string, img image.Image, opts Options) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := Encode(w, img, format, opts); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// FingerprintedPath returns "<dir>/<name>_fingerprinted<ext>" for path.
func FingerprintedPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_fingerprinted" + ext
}

// SHA256File returns the hex SHA-256 digest of the file at path.
func SHA256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FileSize returns the size of the file at path in bytes.
func FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
