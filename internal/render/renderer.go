// Package render draws a platformer.World to a terminal using plain ANSI
// escape codes, adapted from the stub left in this repository's original
// render package (ascii.go's SetCell/Flush TODOs, and the never-implemented
// Color type every backend in this package referenced). The other backends
// that stub sat alongside — tcell, gio, braille half-block, atlas sprite
// loading — pulled in a rendering-backend-specific dependency each
// (gdamore/tcell, gioui.org, lucasb-eyer/go-colorful, rivo/uniseg,
// golang.org/x/term) that no netcode example needs; this package keeps only
// the zero-dependency ASCII path, generalized to actually run.
package render

import (
	"fmt"
	"io"
	"strings"
)

// Color is a 24-bit RGB color rendered via an ANSI true-color escape.
type Color struct {
	R, G, B uint8
}

var (
	ColorBlack  = Color{0, 0, 0}
	ColorWhite  = Color{230, 230, 230}
	ColorYellow = Color{220, 200, 40}
	ColorGreen  = Color{60, 200, 80}
	ColorRed    = Color{220, 60, 60}
	ColorBlue   = Color{60, 120, 220}
	ColorGray   = Color{90, 90, 90}
)

// Camera is the viewport into the game world.
type Camera struct {
	X, Y          float64
	Width, Height float64
}

type cell struct {
	ch     rune
	fg, bg Color
}

// ASCIIRenderer is a double-buffered terminal renderer: SetCell writes into
// an off-screen buffer, and Flush diffs it against what was last drawn
// before emitting ANSI sequences, so a static scene costs no output.
type ASCIIRenderer struct {
	width, height int
	buf, prev     []cell
	out           io.Writer
}

// NewASCIIRenderer creates a renderer of the given terminal dimensions,
// writing to out.
func NewASCIIRenderer(width, height int, out io.Writer) *ASCIIRenderer {
	r := &ASCIIRenderer{width: width, height: height, out: out}
	r.buf = make([]cell, width*height)
	r.prev = make([]cell, width*height)
	for i := range r.prev {
		r.prev[i] = cell{ch: 0}
	}
	return r
}

// Init clears the screen and hides the cursor.
func (r *ASCIIRenderer) Init() error {
	fmt.Fprint(r.out, "\x1b[2J\x1b[?25l")
	return nil
}

// Close restores the cursor.
func (r *ASCIIRenderer) Close() {
	fmt.Fprint(r.out, "\x1b[?25h\x1b[0m\n")
}

// Clear resets the off-screen buffer to blank space on a black background.
func (r *ASCIIRenderer) Clear() {
	for i := range r.buf {
		r.buf[i] = cell{ch: ' ', fg: ColorWhite, bg: ColorBlack}
	}
}

// SetCell writes one glyph into the off-screen buffer. Out-of-bounds
// coordinates are ignored.
func (r *ASCIIRenderer) SetCell(x, y int, ch rune, fg, bg Color) {
	if x < 0 || x >= r.width || y < 0 || y >= r.height {
		return
	}
	r.buf[y*r.width+x] = cell{ch: ch, fg: fg, bg: bg}
}

// Flush writes every buffer cell that changed since the last Flush to out
// as a cursor-positioned, true-color ANSI sequence, then swaps buffers.
func (r *ASCIIRenderer) Flush() {
	var b strings.Builder
	for y := 0; y < r.height; y++ {
		for x := 0; x < r.width; x++ {
			idx := y*r.width + x
			c := r.buf[idx]
			if c == r.prev[idx] {
				continue
			}
			fmt.Fprintf(&b, "\x1b[%d;%dH\x1b[38;2;%d;%d;%dm\x1b[48;2;%d;%d;%dm%c",
				y+1, x+1, c.fg.R, c.fg.G, c.fg.B, c.bg.R, c.bg.G, c.bg.B, c.ch)
		}
	}
	if b.Len() > 0 {
		fmt.Fprint(r.out, b.String())
	}
	copy(r.prev, r.buf)
}

// RenderText draws a left-to-right string starting at (x, y).
func (r *ASCIIRenderer) RenderText(x, y int, text string, fg Color) {
	for i, ch := range text {
		r.SetCell(x+i, y, ch, fg, ColorBlack)
	}
}

// Size returns the renderer's terminal dimensions in cells.
func (r *ASCIIRenderer) Size() (int, int) {
	return r.width, r.height
}
