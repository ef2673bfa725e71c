package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"time"

	"github.com/HugoSmits86/nativewebp"
	"github.com/gen2brain/avif"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Sentinel errors for conversion failures. Both are recovered by the
// orchestrator, which serves the original bytes instead.
var (
	// ErrDecode indicates the input bytes are not a recognized image container.
	ErrDecode = errors.New("decode image")

	// ErrEncode indicates the target codec rejected the pixel buffer.
	ErrEncode = errors.New("encode image")
)

// Converter decodes, resizes, and re-encodes images into a target format.
// It is stateless apart from configuration and safe for concurrent use.
type Converter struct {
	quality      int
	maxDimension int
	enableAvif   bool
	enableWebP   bool
}

// NewConverter creates a Converter. quality must be in [1,100]; validation
// happens in the config layer.
func NewConverter(quality, maxDimension int, enableAvif, enableWebP bool) *Converter {
	return &Converter{
		quality:      quality,
		maxDimension: maxDimension,
		enableAvif:   enableAvif,
		enableWebP:   enableWebP,
	}
}

// Convert decodes data by sniffing its actual encoded format, scales it down
// if either dimension exceeds the configured maximum, and re-encodes it to
// target. It returns the encoded bytes and their mime type.
//
// Disabled targets fall through to JPEG. FormatOriginal returns the input
// unchanged with a generic binary mime type; the orchestrator normally
// filters that case out before calling Convert.
func (c *Converter) Convert(data []byte, target OutputFormat) ([]byte, string, error) {
	if target == FormatOriginal {
		return data, "application/octet-stream", nil
	}

	start := time.Now()

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		conversionsTotal.WithLabelValues(target.String(), "decode_error").Inc()
		return nil, "", fmt.Errorf("%w: %v", ErrDecode, err)
	}

	img = c.scaleDown(img)

	var buf bytes.Buffer
	var mimeType string

	switch {
	case target == FormatAvif && c.enableAvif:
		// Speed 10 is the fastest AVIF encoder setting.
		err = avif.Encode(&buf, img, avif.Options{Quality: c.quality, Speed: 10})
		mimeType = "image/avif"
	case target == FormatWebP && c.enableWebP:
		// Lossless regardless of the configured quality.
		err = nativewebp.Encode(&buf, img, nil)
		mimeType = "image/webp"
	case target == FormatPng:
		err = png.Encode(&buf, img)
		mimeType = "image/png"
	default:
		// FormatJpeg, or a disabled AVIF/WebP target.
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: c.quality})
		mimeType = "image/jpeg"
	}

	if err != nil {
		conversionsTotal.WithLabelValues(target.String(), "encode_error").Inc()
		return nil, "", fmt.Errorf("%w (%s): %v", ErrEncode, mimeType, err)
	}

	conversionsTotal.WithLabelValues(target.String(), "ok").Inc()
	conversionDuration.WithLabelValues(target.String()).Observe(time.Since(start).Seconds())
	conversionBytesIn.Add(float64(len(data)))
	conversionBytesOut.Add(float64(buf.Len()))

	return buf.Bytes(), mimeType, nil
}

// scaleDown shrinks img so its longer side equals the configured maximum
// dimension, preserving aspect ratio. Images within bounds are returned
// untouched. Never upscales.
func (c *Converter) scaleDown(img image.Image) image.Image {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width <= c.maxDimension && height <= c.maxDimension {
		return img
	}

	var scale float64
	if width > height {
		scale = float64(c.maxDimension) / float64(width)
	} else {
		scale = float64(c.maxDimension) / float64(height)
	}

	newWidth := int(float64(width) * scale)
	newHeight := int(float64(height) * scale)

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
