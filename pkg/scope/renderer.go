package scope

import (
	"image/color"
	"math"
	"strconv"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
)

var (
	gridColor  = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	labelColor = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	titleColor = color.RGBA{R: 220, G: 220, B: 220, A: 255}
)

// plotRenderer renders the plot widget.
type plotRenderer struct {
	plot *Plot

	bg      *canvas.Rectangle
	objects []fyne.CanvasObject

	// Track last size to detect changes
	lastSize fyne.Size
}

// MinSize returns the minimum size of the widget.
func (r *plotRenderer) MinSize() fyne.Size {
	return fyne.NewSize(400, 200)
}

// Layout arranges the widget components.
func (r *plotRenderer) Layout(size fyne.Size) {
	r.bg.Resize(size)

	if r.lastSize != size {
		r.lastSize = size
		r.plot.BaseWidget.Refresh()
	}
}

// Refresh rebuilds the line segments, grid and labels.
func (r *plotRenderer) Refresh() {
	r.plot.mu.RLock()
	points := r.plot.display
	info := r.plot.info
	xMin, xMax := r.plot.xMin, r.plot.xMax
	yMin, yMax := r.plot.yMin, r.plot.yMax
	r.plot.mu.RUnlock()

	size := r.plot.Size()
	if size.Width == 0 || size.Height == 0 {
		return
	}

	r.objects = []fyne.CanvasObject{r.bg}

	marginLeft := float32(60.0)
	marginRight := float32(20.0)
	marginTop := float32(24.0)
	marginBottom := float32(40.0)

	area := plotArea{
		x:    marginLeft,
		y:    marginTop,
		w:    size.Width - marginLeft - marginRight,
		h:    size.Height - marginTop - marginBottom,
		xMin: xMin, xMax: xMax,
		yMin: yMin, yMax: yMax,
	}
	if area.w <= 0 || area.h <= 0 {
		return
	}

	r.drawGrid(area)
	r.drawLabels(area, info)
	r.drawSeries(area, points)
}

// plotArea maps data coordinates onto the widget.
type plotArea struct {
	x, y, w, h float32
	xMin, xMax float64
	yMin, yMax float64
}

func (a plotArea) pos(p Point) fyne.Position {
	x := a.x + float32((p.X-a.xMin)/(a.xMax-a.xMin))*a.w
	y := a.y + a.h - float32((p.Y-a.yMin)/(a.yMax-a.yMin))*a.h
	return fyne.NewPos(x, y)
}

// drawGrid draws the oscilloscope-style grid with axis values.
func (r *plotRenderer) drawGrid(a plotArea) {
	numHLines := 8
	for i := range numHLines + 1 {
		y := a.y + float32(i)*a.h/float32(numHLines)
		r.addLine(fyne.NewPos(a.x, y), fyne.NewPos(a.x+a.w, y), gridColor, 1)

		value := a.yMax - float64(i)*(a.yMax-a.yMin)/float64(numHLines)
		text := canvas.NewText(formatValue(value), labelColor)
		text.TextSize = 10
		text.Alignment = fyne.TextAlignTrailing
		text.Move(fyne.NewPos(a.x-5, y-6))
		r.objects = append(r.objects, text)
	}

	numVLines := 10
	for i := range numVLines + 1 {
		x := a.x + float32(i)*a.w/float32(numVLines)
		r.addLine(fyne.NewPos(x, a.y), fyne.NewPos(x, a.y+a.h), gridColor, 1)

		value := a.xMin + float64(i)*(a.xMax-a.xMin)/float64(numVLines)
		text := canvas.NewText(formatValue(value), labelColor)
		text.TextSize = 10
		text.Alignment = fyne.TextAlignCenter
		text.Move(fyne.NewPos(x-20, a.y+a.h+5))
		r.objects = append(r.objects, text)
	}
}

// drawLabels draws the title, axis names and the info annotation.
func (r *plotRenderer) drawLabels(a plotArea, info string) {
	title := canvas.NewText(r.plot.title, titleColor)
	title.TextSize = 12
	title.TextStyle = fyne.TextStyle{Bold: true}
	title.Move(fyne.NewPos(a.x, 4))
	r.objects = append(r.objects, title)

	if r.plot.xLabel != "" {
		text := canvas.NewText(r.plot.xLabel, labelColor)
		text.TextSize = 10
		text.Alignment = fyne.TextAlignTrailing
		text.Move(fyne.NewPos(a.x+a.w-40, a.y+a.h+20))
		r.objects = append(r.objects, text)
	}
	if r.plot.yLabel != "" {
		text := canvas.NewText(r.plot.yLabel, labelColor)
		text.TextSize = 10
		text.Move(fyne.NewPos(4, 4))
		r.objects = append(r.objects, text)
	}
	if info != "" {
		text := canvas.NewText(info, titleColor)
		text.TextSize = 11
		text.Move(fyne.NewPos(a.x+10, a.y+6))
		r.objects = append(r.objects, text)
	}
}

// drawSeries draws the data as connected line segments. Points outside the
// x range are skipped.
func (r *plotRenderer) drawSeries(a plotArea, points []Point) {
	var prev fyne.Position
	havePrev := false
	for _, p := range points {
		if p.X < a.xMin || p.X > a.xMax {
			havePrev = false
			continue
		}
		pos := a.pos(p)
		if havePrev {
			r.addLine(prev, pos, r.plot.color, 1.5)
		}
		prev, havePrev = pos, true
	}

	// A single point is drawn as a short tick.
	if len(points) == 1 && havePrev {
		r.addLine(fyne.NewPos(prev.X-2, prev.Y), fyne.NewPos(prev.X+2, prev.Y), r.plot.color, 2)
	}
}

func (r *plotRenderer) addLine(p1, p2 fyne.Position, c color.Color, width float32) {
	line := canvas.NewLine(c)
	line.Position1 = p1
	line.Position2 = p2
	line.StrokeWidth = width
	r.objects = append(r.objects, line)
}

// Objects returns all canvas objects for rendering.
func (r *plotRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

// Destroy cleans up resources.
func (r *plotRenderer) Destroy() {}

// formatValue prints axis values with a precision matching their magnitude.
func formatValue(v float64) string {
	abs := math.Abs(v)
	switch {
	case abs == 0:
		return "0"
	case abs >= 1000 || abs < 0.001:
		return strconv.FormatFloat(v, 'g', 3, 64)
	case abs >= 100:
		return strconv.FormatFloat(v, 'f', 0, 64)
	case abs >= 1:
		return strconv.FormatFloat(v, 'f', 2, 64)
	default:
		return strconv.FormatFloat(v, 'f', 3, 64)
	}
}
