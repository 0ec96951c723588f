// Package convert packs a captured board image into the 1bpp black and red
// planes that tri-color e-paper panels consume.
package convert

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"strings"
)

// Planes are MSB-first, row-major 1bpp bitmaps; a cleared bit means ink.
type Planes struct {
	Width  int
	Height int
	Stride int // bytes per row
	Black  []byte
	Red    []byte
}

type ink int

const (
	inkWhite ink = iota
	inkBlack
	inkRed
)

// Pack converts img into black/red planes. Rows are padded to whole bytes.
func Pack(img image.Image) Planes {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	stride := (w + 7) / 8

	p := Planes{
		Width:  w,
		Height: h,
		Stride: stride,
		Black:  make([]byte, stride*h),
		Red:    make([]byte, stride*h),
	}
	for i := range p.Black {
		p.Black[i] = 0xFF
		p.Red[i] = 0xFF
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			k := classify(c)
			if k == inkWhite {
				continue
			}
			idx := y*stride + x>>3
			mask := byte(0x80 >> (x & 7))
			if k == inkBlack {
				p.Black[idx] &^= mask
			} else {
				p.Red[idx] &^= mask
			}
		}
	}
	return p
}

// classify maps a pixel to an ink by luma and red dominance. Mostly
// transparent pixels are paper.
func classify(c color.NRGBA) ink {
	if c.A < 128 {
		return inkWhite
	}
	r, g, b := float64(c.R), float64(c.G), float64(c.B)
	luma := 0.299*r + 0.587*g + 0.114*b
	if luma < 64 {
		return inkBlack
	}
	if r > 128 && r-max(g, b) > 32 {
		return inkRed
	}
	return inkWhite
}

// WritePNGPlanes decodes the PNG at pngPath and writes <base>.black.bin and
// <base>.red.bin next to it, returning both paths.
func WritePNGPlanes(pngPath string) (blackPath, redPath string, err error) {
	f, err := os.Open(pngPath)
	if err != nil {
		return "", "", err
	}
	img, err := png.Decode(f)
	f.Close()
	if err != nil {
		return "", "", fmt.Errorf("convert: decode %s: %w", pngPath, err)
	}

	p := Pack(img)
	base := strings.TrimSuffix(pngPath, ".png")
	blackPath, redPath = base+".black.bin", base+".red.bin"
	if err := os.WriteFile(blackPath, p.Black, 0o644); err != nil {
		return "", "", err
	}
	if err := os.WriteFile(redPath, p.Red, 0o644); err != nil {
		return "", "", err
	}
	return blackPath, redPath, nil
}
