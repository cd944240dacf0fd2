package recognition

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register the PNG decoder

	"golang.org/x/image/draw"
)

// ErrInvalidImage is returned when the input cannot be decoded as JPEG or PNG.
var ErrInvalidImage = errors.New("invalid image")

// ErrEmptyCrop is returned when a crop rectangle lies outside the image.
var ErrEmptyCrop = errors.New("crop region is empty")

const jpegQuality = 92

// DefaultMaxImagePixels bounds width*height before a full decode.
const DefaultMaxImagePixels = 40_000_000

// Image is a decoded request image plus the JPEG bytes handed to the detector.
// Bounding boxes reported by the detector refer to Pixels.
type Image struct {
	Pixels image.Image
	Format string
	JPEG   []byte
}

// DecodeImage decodes JPEG or PNG bytes. PNG input and images larger than
// maxDim on either side are re-encoded as JPEG, since the dlib runtime only
// reads JPEG. A maxDim of zero disables downscaling. Images with more than
// maxPixels pixels are rejected from their header alone; zero or less means
// DefaultMaxImagePixels.
func DecodeImage(data []byte, maxDim, maxPixels int) (*Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidImage)
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxImagePixels
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: zero-sized image", ErrInvalidImage)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrInvalidImage, cfg.Width, cfg.Height, maxPixels)
	}

	pixels, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if format != "jpeg" && format != "png" {
		return nil, fmt.Errorf("%w: unsupported format %q", ErrInvalidImage, format)
	}
	if pixels.Bounds().Empty() {
		return nil, fmt.Errorf("%w: zero-sized image", ErrInvalidImage)
	}

	img := &Image{Pixels: pixels, Format: format}
	if format == "jpeg" {
		img.JPEG = data
	}

	b := pixels.Bounds()
	if maxDim > 0 && (b.Dx() > maxDim || b.Dy() > maxDim) {
		img.Pixels = downscale(pixels, maxDim)
		img.JPEG = nil
	}

	if img.JPEG == nil {
		encoded, err := EncodeJPEG(img.Pixels)
		if err != nil {
			return nil, fmt.Errorf("%w: re-encode: %v", ErrInvalidImage, err)
		}
		img.JPEG = encoded
	}

	return img, nil
}

// downscale shrinks src so that its longer side equals maxDim.
func downscale(src image.Image, maxDim int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	longest := w
	if h > longest {
		longest = h
	}
	scale := float64(maxDim) / float64(longest)

	dw := int(float64(w) * scale)
	dh := int(float64(h) * scale)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// CropFace returns the face box grown by padding pixels on each side and
// clamped to the image bounds.
func CropFace(src image.Image, box image.Rectangle, padding int) (image.Image, error) {
	region := image.Rect(
		box.Min.X-padding,
		box.Min.Y-padding,
		box.Max.X+padding,
		box.Max.Y+padding,
	).Intersect(src.Bounds())
	if region.Empty() {
		return nil, ErrEmptyCrop
	}

	dst := image.NewRGBA(image.Rect(0, 0, region.Dx(), region.Dy()))
	draw.Draw(dst, dst.Bounds(), src, region.Min, draw.Src)
	return dst, nil
}

// EncodeJPEG encodes an image as JPEG.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
