package sampler

import (
	"errors"
	"image"
)

// ErrDimensionMismatch is returned when two compared frames do not share
// the same pixel dimensions. Frames drawn from a single video stream always
// match, so hitting this indicates a caller bug and aborts the run.
var ErrDimensionMismatch = errors.New("frame dimensions do not match")

// Frame is one decoded video frame in packed RGB24 layout, paired with its
// presentation timestamp in seconds.
type Frame struct {
	Width     int
	Height    int
	Pix       []byte // RGB triplets, row-major, len = Width*Height*3
	Timestamp float64
}

// RGBA copies the frame into an *image.RGBA for encoding.
func (f *Frame) RGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	si, di := 0, 0
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			img.Pix[di] = f.Pix[si]
			img.Pix[di+1] = f.Pix[si+1]
			img.Pix[di+2] = f.Pix[si+2]
			img.Pix[di+3] = 0xff
			si += 3
			di += 4
		}
	}
	return img
}

// pixelCutoff is the per-pixel luminance delta (0-255 scale) a pixel must
// exceed to count as changed. Gates out compression and encoding noise.
const pixelCutoff = 30

// luma converts one RGB sample to BT.601 luminance using integer
// arithmetic so results are identical across platforms.
func luma(r, g, b byte) int {
	return (299*int(r) + 587*int(g) + 114*int(b)) / 1000
}

// Difference reports the fraction of pixels whose luminance differs by
// more than pixelCutoff between the two frames.
func Difference(a, b *Frame) (float64, error) {
	if a.Width != b.Width || a.Height != b.Height {
		return 0, ErrDimensionMismatch
	}
	total := a.Width * a.Height
	if total == 0 {
		return 0, nil
	}

	changed := 0
	for i := 0; i < len(a.Pix); i += 3 {
		d := luma(a.Pix[i], a.Pix[i+1], a.Pix[i+2]) - luma(b.Pix[i], b.Pix[i+1], b.Pix[i+2])
		if d < 0 {
			d = -d
		}
		if d > pixelCutoff {
			changed++
		}
	}
	return float64(changed) / float64(total), nil
}
