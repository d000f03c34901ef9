// Command fingerprint embeds a text fingerprint into an image file and
// verifies it can be read back, or detects a fingerprint in an image.
//
//	fingerprint [flags] <image> <text>
//	fingerprint detect [flags] <image> <payload-length>
package main

import (
	"errors"
	"flag"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/YannKr/fingerprint/internal/config"
	"github.com/YannKr/fingerprint/internal/imageio"
	"github.com/YannKr/fingerprint/internal/watermark"
	"github.com/YannKr/fingerprint/internal/watermark/dwtdct"
	"github.com/YannKr/fingerprint/internal/watermark/reedsolomon"
)

func main() {
	args := os.Args[1:]
	var err error
	if len(args) > 0 && args[0] == "detect" {
		err = runDetect(args[1:])
	} else {
		err = runEmbed(args)
	}
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			slog.Error("fatal", "error", err)
		}
		os.Exit(1)
	}
}

func setupLogging(level string) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: config.ParseLogLevel(level)})))
}

func runEmbed(args []string) error {
	fs := flag.NewFlagSet("fingerprint", flag.ContinueOnError)
	subband := fs.String("subband", "HL", "wavelet subband carrying the payload: LH, HL or HH")
	fast := fs.Bool("fast", false, "verify with single precision extraction")
	quality := fs.Int("quality", imageio.DefaultJPEGQuality, "JPEG output quality")
	out := fs.String("out", "", "output path (default <name>_fingerprinted<ext>)")
	logLevel := fs.String("log-level", "info", "debug, info, warn or error")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: fingerprint [flags] <image> <text>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	setupLogging(*logLevel)
	if fs.NArg() != 2 {
		fs.Usage()
		return flag.ErrHelp
	}
	path, text := fs.Arg(0), fs.Arg(1)

	band, err := dwtdct.ParseSubband(*subband)
	if err != nil {
		return err
	}
	img, format, err := imageio.Load(path)
	if err != nil {
		return err
	}
	b := img.Bounds()
	slog.Info("loaded image", "path", path, "format", format, "width", b.Dx(), "height", b.Dy())

	payload, sevenBit := watermark.EncodeText(text)
	if _, err := watermark.Capacity(len(payload), b.Dx(), b.Dy()); err != nil {
		return fmt.Errorf("%q (%d bytes) in %s: %w", text, len(payload), path, err)
	}

	start := time.Now()
	bm := watermark.FromImage(img)
	orig := bm.Clone()
	if err := watermark.Insert(bm, payload, band); err != nil {
		return err
	}
	slog.Debug("inserted", "elapsed", time.Since(start), "bytes", len(payload), "seven_bit", sevenBit)

	if d, err := watermark.Measure(orig, bm); err == nil {
		slog.Info("distortion", "psnr_db", fmt.Sprintf("%.2f", d.PSNR), "max_deviation", d.MaxDeviation, "changed_pixels", d.ChangedPixels)
	}

	outPath := *out
	if outPath == "" {
		outPath = imageio.FingerprintedPath(path)
		if !format.CanEncode() {
			outPath = strings.TrimSuffix(outPath, filepath.Ext(outPath)) + imageio.PNG.Ext()
		}
	}
	if err := imageio.Save(outPath, watermark.ToImage(bm, img), imageio.Options{Quality: *quality}); err != nil {
		return err
	}
	slog.Info("saved", "path", outPath)

	reloaded, _, err := imageio.Load(outPath)
	if err != nil {
		return err
	}
	got, err := extract(reloaded, len(payload), band, *fast)
	if err != nil {
		fmt.Printf("failure: %v\n", err)
		return err
	}
	if decoded := watermark.DecodeText(got, sevenBit); decoded != text {
		fmt.Printf("failure: read back %q, want %q\n", decoded, text)
		return errors.New("fingerprint mismatch")
	}
	fmt.Printf("success: %q embedded in %s\n", text, outPath)
	return nil
}

func runDetect(args []string) error {
	fs := flag.NewFlagSet("fingerprint detect", flag.ContinueOnError)
	subband := fs.String("subband", "HL", "wavelet subband carrying the payload: LH, HL or HH")
	fast := fs.Bool("fast", false, "single precision extraction")
	encoding := fs.String("encoding", "7bit", "payload encoding for display: 7bit, utf8 or hex")
	logLevel := fs.String("log-level", "info", "debug, info, warn or error")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: fingerprint detect [flags] <image> <payload-length>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	setupLogging(*logLevel)
	if fs.NArg() != 2 {
		fs.Usage()
		return flag.ErrHelp
	}
	n, err := strconv.Atoi(fs.Arg(1))
	if err != nil || n <= 0 {
		return fmt.Errorf("invalid payload length %q", fs.Arg(1))
	}
	band, err := dwtdct.ParseSubband(*subband)
	if err != nil {
		return err
	}

	img, _, err := imageio.Load(fs.Arg(0))
	if err != nil {
		return err
	}
	got, err := extract(img, n, band, *fast)
	if errors.Is(err, reedsolomon.ErrDecode) {
		fmt.Println("no fingerprint found")
		return err
	}
	if err != nil {
		return err
	}
	fmt.Printf("hex:  %x\n", got)
	fmt.Printf("text: %s\n", watermark.DecodePayload(watermark.Encoding(*encoding), got))
	return nil
}

func extract(img image.Image, n int, band dwtdct.Subband, fast bool) ([]byte, error) {
	start := time.Now()
	got, err := watermark.ExtractImage(img, n, band, fast)
	slog.Debug("extracted", "elapsed", time.Since(start), "fast", fast, "error", err)
	return got, err
}
