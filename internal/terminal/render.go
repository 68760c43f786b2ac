package terminal

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/ladder-terminal/ladder/internal/book"
	"github.com/ladder-terminal/ladder/internal/publish"
)

const (
	clearScreen = "\033[H\033[2J"
	green       = "\033[92m"
	red         = "\033[91m"
	reset       = "\033[0m"

	// Raw mode disables output post-processing, so every line ends in CRLF.
	eol = "\r\n"

	columnWidth = 32
)

// Renderer draws a projection as two columns: bids on the left, best
// (last in ladder order) first, and asks on the right in ladder order.
type Renderer struct {
	w     io.Writer
	pair  string
	color bool
	buf   bytes.Buffer
}

// NewRenderer creates a Renderer writing whole frames to w.
func NewRenderer(w io.Writer, pair string, color bool) *Renderer {
	return &Renderer{w: w, pair: pair, color: color}
}

// Render clears the screen and draws p in a single write.
func (r *Renderer) Render(p publish.Projection) error {
	r.buf.Reset()
	r.buf.WriteString(clearScreen)
	fmt.Fprintf(&r.buf, "%s  seq %d  (q to quit)%s", r.pair, p.Seq, eol)
	fmt.Fprintf(&r.buf, "%-*s  %s%s", columnWidth, "Bids", "Asks", eol)

	n := p.Len()
	for i := 0; i < n; i++ {
		bid := p.Bids[n-1-i]
		ask := p.Asks[i]
		r.cell(green, bid, true)
		r.buf.WriteString("  ")
		r.cell(red, ask, false)
		r.buf.WriteString(eol)
	}

	_, err := r.w.Write(r.buf.Bytes())
	return err
}

func (r *Renderer) cell(color string, lv book.Level, pad bool) {
	text := FormatLevel(lv)
	if pad {
		text = fmt.Sprintf("%-*s", columnWidth, text)
	}
	if r.color {
		r.buf.WriteString(color)
		r.buf.WriteString(text)
		r.buf.WriteString(reset)
		return
	}
	r.buf.WriteString(text)
}

// FormatLevel renders one level as "price: qty".
func FormatLevel(lv book.Level) string {
	return lv.Price + ": " + strconv.FormatFloat(lv.Qty, 'f', -1, 64)
}
