// Package images prepares user photos for img2img diffusion: decoding,
// model-compatible sizing, resampling and PNG persistence.
package images

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	ErrNotFound     = errors.New("images: file not found")
	ErrInvalidImage = errors.New("images: invalid image data")
)

// PreparedImage is an opaque RGB buffer whose dimensions satisfy the model
// tiling constraint.
type PreparedImage struct {
	Image        *image.RGBA
	Width        int
	Height       int
	SourceWidth  int
	SourceHeight int
}

// Validate checks that path exists and carries a decodable image header.
// It reads only the header, so it is cheap enough to run before any model
// is loaded.
func Validate(path string) (int, int, error) {
	f, err := open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %s: %v", ErrInvalidImage, path, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, fmt.Errorf("%w: %s: empty image", ErrInvalidImage, path)
	}
	return cfg.Width, cfg.Height, nil
}

// Prepare decodes path and resamples it to TargetSize(w, h, ceiling).
func Prepare(path string, ceiling int) (*PreparedImage, error) {
	f, err := open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidImage, path, err)
	}

	return Resize(src, ceiling), nil
}

// Resize is Prepare for an already decoded image.
func Resize(src image.Image, ceiling int) *PreparedImage {
	b := src.Bounds()
	w, h := TargetSize(b.Dx(), b.Dy(), ceiling)

	scaled := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), src, b, draw.Src, nil)

	return &PreparedImage{
		Image:        flatten(scaled),
		Width:        w,
		Height:       h,
		SourceWidth:  b.Dx(),
		SourceHeight: b.Dy(),
	}
}

// flatten composites img over opaque white so every pixel has alpha 255.
func flatten(img *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(img.Bounds())
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Over)
	return dst
}

func open(path string) (*os.File, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("images: cannot open %s: %w", path, err)
	}
	return f, nil
}
