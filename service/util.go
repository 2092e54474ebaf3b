package service

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"

	_ "github.com/gen2brain/avif"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/disintegration/imaging"
)

func Sigmoid(x float32) float32 {
	if x > 50 {
		x = 50
	} else if x < -50 {
		x = -50
	}
	return 1 / (1 + float32(math.Exp(float64(-x))))
}

func DecodeFile(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecode, path, err)
	}
	return img, nil
}

// SquareOffset returns the side of the square canvas for a w x h image and
// where its top-left corner lands. Odd padding rounds toward the origin.
func SquareOffset(w, h int) (side int, at image.Point) {
	side = max(w, h)
	return side, image.Pt((side-w)/2, (side-h)/2)
}

// Decode reads an image from r and applies its EXIF orientation.
func Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return img, nil
}

// PadSquare drops the alpha channel of img and centers it on a white square
// canvas. Transparent pixels keep their stored color.
func PadSquare(img image.Image) *image.NRGBA {
	src := imaging.Clone(img)
	for i := 3; i < len(src.Pix); i += 4 {
		src.Pix[i] = 0xff
	}
	b := src.Bounds()
	side, at := SquareOffset(b.Dx(), b.Dy())
	canvas := imaging.New(side, side, color.White)
	return imaging.Paste(canvas, src, at)
}

// Preprocess pads img to a white square, resizes it to size x size and
// converts it to an HWC float tensor.
func Preprocess(img image.Image, size int, opts PreprocessOptions) (ImageTensor, error) {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return ImageTensor{}, fmt.Errorf("%w: empty image", ErrDecode)
	}

	// white padding
	canvas := PadSquare(img)
	if canvas.Bounds().Dx() != size {
		canvas = imaging.Resize(canvas, size, size, imaging.Lanczos)
	}

	out := make([]float32, 3*size*size)
	r, g, bl := 0, 1, 2
	if opts.ChannelOrder == BGR {
		r, bl = 2, 0
	}
	for y := range size {
		row := canvas.Pix[y*canvas.Stride:]
		for x := range size {
			px := row[x*4 : x*4+3]
			o := (y*size + x) * 3
			out[o+r] = normalize(px[0], 0, opts.Normalize)
			out[o+g] = normalize(px[1], 1, opts.Normalize)
			out[o+bl] = normalize(px[2], 2, opts.Normalize)
		}
	}
	return ImageTensor{Size: size, Data: out}, nil
}

func normalize(v uint8, ch int, n Normalization) float32 {
	if n == NormCLIP {
		return (float32(v)/255.0 - ClipMean[ch]) / ClipStd[ch]
	}
	return float32(v)
}
