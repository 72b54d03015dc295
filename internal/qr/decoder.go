// Package qr decodes registration QR codes embedded in event photographs.
//
// Most photos in a batch carry no code at all, so the default fast path pays
// the decode cost exactly once, on a downscaled copy. The enhanced path runs
// a sequence of preprocessing strategies and is opted into per batch; it is
// never escalated to automatically, because a clear code that is scannable at
// all is scannable in fast mode.
package qr

import (
	"image"
	"image/draw"

	"github.com/disintegration/imaging"
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/rs/zerolog"

	"github.com/kozaktomas/photo-batcher/internal/constants"
)

// Mode selects the decode strategy for a whole batch.
type Mode int

const (
	// ModeFast downscales the image and attempts a single decode.
	ModeFast Mode = iota

	// ModeEnhanced additionally tries full resolution, grayscale, contrast
	// stretch and adaptive thresholding, stopping at the first hit.
	ModeEnhanced
)

func (m Mode) String() string {
	if m == ModeEnhanced {
		return "enhanced"
	}
	return "fast"
}

// Decoder extracts registration payloads from photo files. It never returns
// an error to the caller: unreadable or corrupt images are logged as warnings
// and reported as not-found, so one bad file cannot stop a batch.
type Decoder struct {
	mode Mode
	log  zerolog.Logger
}

func NewDecoder(mode Mode, log zerolog.Logger) *Decoder {
	return &Decoder{mode: mode, log: log}
}

// Mode returns the decode strategy this decoder was created with.
func (d *Decoder) Mode() Mode {
	return d.mode
}

// Decode attempts to extract a valid registration payload from the image at
// path. The second return value is false when no code was found, the image
// could not be read, or the payload did not parse.
func (d *Decoder) Decode(path string) (*Payload, bool) {
	raw, ok := d.DecodeRaw(path)
	if !ok {
		return nil, false
	}

	payload, err := ParsePayload(raw)
	if err != nil {
		d.log.Warn().Str("file", path).Err(err).Msg("qr payload did not parse, treating as no code")
		return nil, false
	}
	return payload, true
}

// DecodeRaw returns the raw decoded QR string without payload validation.
// Used by the qr debug command.
func (d *Decoder) DecodeRaw(path string) (string, bool) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		d.log.Warn().Str("file", path).Err(err).Msg("could not read image, treating as no code")
		return "", false
	}

	// Fast path: one decode attempt on a bounded-size copy.
	small := fitToDecodeSize(img)
	if text, ok := tryDecode(small, false); ok {
		return text, true
	}

	if d.mode != ModeEnhanced {
		return "", false
	}

	// Enhanced strategies, cheapest first. Each stops the chain on a hit.
	if !sameSize(img, small) {
		if text, ok := tryDecode(img, true); ok {
			return text, true
		}
	}

	gray := imaging.Grayscale(small)
	if text, ok := tryDecode(gray, true); ok {
		return text, true
	}

	stretched := imaging.AdjustContrast(gray, constants.EnhancedContrastPct)
	if text, ok := tryDecode(stretched, true); ok {
		return text, true
	}

	thresholded := adaptiveThreshold(gray, constants.AdaptiveWindow, constants.AdaptiveBias)
	if text, ok := tryDecode(thresholded, true); ok {
		return text, true
	}

	return "", false
}

// fitToDecodeSize downscales an image so its longest side does not exceed
// MaxDecodeDimension, preserving aspect ratio. Smaller images pass through.
func fitToDecodeSize(img image.Image) image.Image {
	b := img.Bounds()
	if b.Dx() <= constants.MaxDecodeDimension && b.Dy() <= constants.MaxDecodeDimension {
		return img
	}
	return imaging.Fit(img, constants.MaxDecodeDimension, constants.MaxDecodeDimension, imaging.Box)
}

func sameSize(a, b image.Image) bool {
	return a.Bounds().Dx() == b.Bounds().Dx() && a.Bounds().Dy() == b.Bounds().Dy()
}

// tryDecode runs a single gozxing decode pass over the image.
func tryDecode(img image.Image, tryHarder bool) (string, bool) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", false
	}

	var hints map[gozxing.DecodeHintType]interface{}
	if tryHarder {
		hints = map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		}
	}

	result, err := qrcode.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		return "", false
	}
	return result.GetText(), true
}

// toGray converts any image to 8-bit grayscale.
func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// adaptiveThreshold binarizes an image against the mean of its local window,
// which recovers codes photographed under uneven lighting. An integral image
// keeps the window sums O(1) per pixel.
func adaptiveThreshold(img image.Image, window, bias int) *image.Gray {
	gray := toGray(img)
	w, h := gray.Rect.Dx(), gray.Rect.Dy()

	// integral[y][x] holds the sum of all pixels above and left of (x, y).
	integral := make([][]int64, h+1)
	for y := range integral {
		integral[y] = make([]int64, w+1)
	}
	for y := 0; y < h; y++ {
		var rowSum int64
		for x := 0; x < w; x++ {
			rowSum += int64(gray.Pix[y*gray.Stride+x])
			integral[y+1][x+1] = integral[y][x+1] + rowSum
		}
	}

	out := image.NewGray(image.Rect(0, 0, w, h))
	half := window / 2
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			x0, y0 := max(x-half, 0), max(y-half, 0)
			x1, y1 := min(x+half+1, w), min(y+half+1, h)
			area := int64((x1 - x0) * (y1 - y0))
			sum := integral[y1][x1] - integral[y0][x1] - integral[y1][x0] + integral[y0][x0]
			mean := sum / area

			if int64(gray.Pix[y*gray.Stride+x]) > mean-int64(bias) {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}
