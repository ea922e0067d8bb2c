package scope

import (
	"image/color"
	"math"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"
)

// DefaultMaxPoints limits the number of points drawn per series.
const DefaultMaxPoints = 2000

// Point is one plotted x/y pair.
type Point struct {
	X, Y float64
}

// Plot is a custom Fyne widget that draws one series as an oscilloscope
// style line graph with a grid and axis labels.
type Plot struct {
	widget.BaseWidget

	title  string
	xLabel string
	yLabel string
	color  color.Color

	// Data (protected by mu)
	mu      sync.RWMutex
	points  []Point
	display []Point // Decimated copy of points, reused between updates
	info    string  // Free text shown in the upper left corner

	// Axes
	xMin, xMax float64
	yMin, yMax float64
	xFixed     bool

	maxPoints int
}

// New creates an empty plot. maxPoints <= 0 selects DefaultMaxPoints.
func New(title, xLabel, yLabel string, lineColor color.Color, maxPoints int) *Plot {
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	p := &Plot{
		title:     title,
		xLabel:    xLabel,
		yLabel:    yLabel,
		color:     lineColor,
		display:   make([]Point, 0, maxPoints),
		maxPoints: maxPoints,
	}
	p.updateAutoScale()
	p.ExtendBaseWidget(p)
	return p
}

// SetSeries replaces the plotted data. Must be called on the Fyne thread.
func (p *Plot) SetSeries(points []Point) {
	p.mu.Lock()
	p.points = points
	p.display = Decimate(p.display, points, p.maxPoints)
	p.updateAutoScale()
	p.mu.Unlock()

	p.Refresh()
}

// SetValues plots values against their position in the slice.
func (p *Plot) SetValues(values []float64) {
	points := make([]Point, len(values))
	for i, v := range values {
		points[i] = Point{X: float64(i), Y: v}
	}
	p.SetSeries(points)
}

// SetXRange pins the x axis to [lo, hi]. An empty range restores autoscaling.
func (p *Plot) SetXRange(lo, hi float64) {
	p.mu.Lock()
	p.xFixed = hi > lo
	if p.xFixed {
		p.xMin, p.xMax = lo, hi
	}
	p.updateAutoScale()
	p.mu.Unlock()

	p.Refresh()
}

// SetInfo sets the annotation text drawn inside the plot area.
func (p *Plot) SetInfo(info string) {
	p.mu.Lock()
	p.info = info
	p.mu.Unlock()

	p.Refresh()
}

// Clear removes all data.
func (p *Plot) Clear() {
	p.mu.Lock()
	p.points = nil
	p.display = p.display[:0]
	p.info = ""
	p.updateAutoScale()
	p.mu.Unlock()

	p.Refresh()
}

// Len returns the number of points in the series before decimation.
func (p *Plot) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.points)
}

// XRange returns the current x axis range.
func (p *Plot) XRange() (lo, hi float64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.xMin, p.xMax
}

// YRange returns the current y axis range.
func (p *Plot) YRange() (lo, hi float64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.yMin, p.yMax
}

// updateAutoScale calculates the axis ranges from the displayed data.
func (p *Plot) updateAutoScale() {
	xMin, xMax, yMin, yMax := autoScale(p.display)
	if !p.xFixed {
		p.xMin, p.xMax = xMin, xMax
	}
	p.yMin, p.yMax = yMin, yMax
}

// autoScale returns the data bounds with a 10% vertical margin. Degenerate
// ranges are widened so that the plot never divides by zero.
func autoScale(points []Point) (xMin, xMax, yMin, yMax float64) {
	if len(points) == 0 {
		return 0, 1, 0, 1
	}

	xMin, xMax = points[0].X, points[0].X
	yMin, yMax = points[0].Y, points[0].Y
	for _, pt := range points[1:] {
		xMin = math.Min(xMin, pt.X)
		xMax = math.Max(xMax, pt.X)
		yMin = math.Min(yMin, pt.Y)
		yMax = math.Max(yMax, pt.Y)
	}

	if xMax == xMin {
		xMax = xMin + 1
	}

	span := yMax - yMin
	if span == 0 {
		span = 1.0
	}
	margin := span * 0.1
	return xMin, xMax, yMin - margin, yMax + margin
}

// CreateRenderer creates the widget renderer.
func (p *Plot) CreateRenderer() fyne.WidgetRenderer {
	bg := canvas.NewRectangle(color.RGBA{R: 20, G: 20, B: 20, A: 255})
	return &plotRenderer{
		plot:    p,
		bg:      bg,
		objects: []fyne.CanvasObject{bg},
	}
}
