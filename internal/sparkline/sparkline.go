// Package sparkline turns a price series into a small axis-less line drawing.
package sparkline

import (
	"fmt"
	"html"
	"math"
	"strings"
)

const (
	DefaultWidth  = 120
	DefaultHeight = 28
)

// Trend is the direction of a series, last point against first.
type Trend string

const (
	Up   Trend = "up"
	Down Trend = "down"
	Flat Trend = "flat"
)

// Palette maps trends to stroke colors.
type Palette struct {
	Up   string
	Down string
	Flat string
}

// DefaultPalette is green for up, red for down and grey otherwise.
var DefaultPalette = Palette{Up: "#1ca01c", Down: "#e53935", Flat: "#888"}

// Color returns the stroke for t, falling back to the default palette for
// unset entries.
func (p Palette) Color(t Trend) string {
	var c, d string
	switch t {
	case Up:
		c, d = p.Up, DefaultPalette.Up
	case Down:
		c, d = p.Down, DefaultPalette.Down
	default:
		c, d = p.Flat, DefaultPalette.Flat
	}
	if c == "" {
		return d
	}
	return c
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Path is a rendered sparkline. An empty Points slice is the placeholder
// drawn for a series with no usable values.
type Path struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Points []Point `json:"points"`
	Stroke string  `json:"stroke"`
	Trend  Trend   `json:"trend"`
}

func (p Path) Empty() bool { return len(p.Points) == 0 }

// Renderer renders with a fixed palette.
type Renderer struct {
	Palette Palette
}

// Render draws series with the default palette.
func Render(series []float64, width, height int, defaultStroke string) Path {
	return Renderer{Palette: DefaultPalette}.Render(series, width, height, defaultStroke)
}

// Render scales series into a width×height box, y growing downwards so that
// higher prices sit nearer the top. Non-finite values are ignored. With no
// values left the result is a placeholder stroked with defaultStroke.
func (r Renderer) Render(series []float64, width, height int, defaultStroke string) Path {
	path := Path{Width: width, Height: height, Points: []Point{}, Stroke: defaultStroke, Trend: Flat}

	pts := make([]float64, 0, len(series))
	for _, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		pts = append(pts, v)
	}
	if len(pts) == 0 {
		return path
	}
	if len(pts) == 1 {
		pts = append(pts, pts[0])
	}

	lo, hi := pts[0], pts[0]
	for _, v := range pts[1:] {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	span := hi - lo
	if span == 0 {
		span = 1
	}

	n := len(pts)
	w, h := float64(width), float64(height)
	path.Points = make([]Point, n)
	for i, v := range pts {
		path.Points[i] = Point{
			X: float64(i) * w / float64(n-1),
			Y: h - ((v-lo)/span)*h,
		}
	}

	path.Trend = trend(pts[0], pts[n-1])
	path.Stroke = r.Palette.Color(path.Trend)
	return path
}

func trend(first, last float64) Trend {
	if first == 0 {
		return Flat
	}
	switch {
	case last > first:
		return Up
	case last < first:
		return Down
	}
	return Flat
}

// SVG renders the path as an inline <svg> element.
func (p Path) SVG() string {
	var b strings.Builder
	fmt.Fprintf(&b, `<svg width="%d" height="%d" viewBox="0 0 %d %d" xmlns="http://www.w3.org/2000/svg"`, p.Width, p.Height, p.Width, p.Height)
	if p.Empty() {
		b.WriteString(`><rect width="100%" height="100%" fill="none"/></svg>`)
		return b.String()
	}
	b.WriteString(` preserveAspectRatio="none"><polyline fill="none" stroke="`)
	b.WriteString(html.EscapeString(p.Stroke))
	b.WriteString(`" stroke-width="1.5" points="`)
	for i, pt := range p.Points {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%.2f,%.2f", pt.X, pt.Y)
	}
	b.WriteString(`" stroke-linecap="round" stroke-linejoin="round" /></svg>`)
	return b.String()
}
