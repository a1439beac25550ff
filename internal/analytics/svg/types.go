package svg

// Bar is one column of a bar chart.
type Bar struct {
	Label string
	Value float64
	// Color overrides BarOpts.Color for this bar.
	Color string
}

// BarOpts customises the bar chart renderer.
type BarOpts struct {
	Title       string
	Description string
	Color       string
	AxisColor   string
	GridColor   string
	Padding     float64
	TickCount   int
}

// Defaults for the dashboard charts.
const (
	DefaultWidth   = 720
	DefaultHeight  = 260
	DefaultPadding = 32.0
	DefaultTicks   = 5
)
