package display

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	ink   = 0
	paper = 255

	lineHeight = 16
	charWidth  = 7
)

// Rasterize draws layout in black on white as a landscape image of size
// w x h. Only ASCII renders with the 7x13 face.
func Rasterize(layout Layout, w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.Gray{Y: paper}}, image.Point{}, draw.Src)

	// header
	text(img, 4, 13, layout.Region)
	hline(img, 0, w-1, 17)

	footerY := h - lineHeight - 2
	hline(img, 0, w-1, footerY)
	text(img, 4, h-4, layout.StatusLine)

	if layout.Error != nil {
		centered(img, 0, w, footerY/2+4, layout.Error.Title)
		centered(img, 0, w, footerY/2+4+lineHeight, clip(layout.Error.Detail, w/charWidth))
		return img
	}

	n := len(layout.Blocks)
	if n == 0 {
		return img
	}
	colWidth := w / n
	maxChars := (colWidth - 6) / charWidth
	for i, b := range layout.Blocks {
		x0 := i * colWidth
		if i > 0 {
			vline(img, x0, 18, footerY-1)
		}
		y := 32
		title := clip(b.StationID, maxChars)
		if b.Highlight {
			fillRect(img, x0+1, y-12, x0+colWidth-2, y+3, ink)
			textColor(img, x0+4, y, title, paper)
		} else {
			text(img, x0+4, y, title)
		}
		for _, s := range []string{b.Wind, b.Direction, b.Temperature, b.Observed} {
			y += lineHeight
			if y > footerY-2 {
				break
			}
			text(img, x0+4, y, clip(s, maxChars))
		}
	}
	return img
}

// Portrait rotates a landscape frame 90 degrees clockwise for panels whose
// native orientation is portrait.
func Portrait(src *image.Gray) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, h, w))
	for y := 0; y < w; y++ {
		for x := 0; x < h; x++ {
			dst.SetGray(x, y, src.GrayAt(b.Min.X+y, b.Min.Y+h-1-x))
		}
	}
	return dst
}

func clip(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) > n {
		return s[:n]
	}
	return s
}

func text(img *image.Gray, x, y int, s string) {
	textColor(img, x, y, s, ink)
}

func textColor(img *image.Gray, x, y int, s string, c uint8) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Gray{Y: c}),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func centered(img *image.Gray, x0, x1, y int, s string) {
	width := len(s) * charWidth
	x := x0 + (x1-x0-width)/2
	text(img, max(x, x0), y, s)
}

func hline(img *image.Gray, x0, x1, y int) {
	fillRect(img, x0, y, x1, y, ink)
}

func vline(img *image.Gray, x, y0, y1 int) {
	fillRect(img, x, y0, x, y1, ink)
}

func fillRect(img *image.Gray, x0, y0, x1, y1 int, c uint8) {
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			if image.Pt(x, y).In(img.Rect) {
				img.SetGray(x, y, color.Gray{Y: c})
			}
		}
	}
}
