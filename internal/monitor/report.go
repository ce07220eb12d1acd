package monitor

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// WriteHTMLReport renders the sampling diagnostics as a standalone HTML
// page: empirical vs expected per-video draw frequency plus the per-class
// label histogram.
func (m *SamplingMonitor) WriteHTMLReport(w io.Writer) error {
	freqBar := charts.NewBar()
	freqBar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Video draw frequency",
			Subtitle: fmt.Sprintf("%d draws, chi-square %.4f", m.total, m.ChiSquare()),
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	freqBar.SetXAxis(m.videoNames).
		AddSeries("empirical", barData(m.Frequencies())).
		AddSeries("expected", barData(m.expected))

	classBar := charts.NewBar()
	classBar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Labelled positions per class",
			Subtitle: fmt.Sprintf("event ratio %.3f", m.EventRatio()),
		}),
	)
	classCounts := make([]float64, len(m.classCounts))
	for i, c := range m.classCounts {
		classCounts[i] = float64(c)
	}
	classBar.SetXAxis(m.classNames).
		AddSeries("positions", barData(classCounts))

	page := components.NewPage()
	page.AddCharts(freqBar, classBar)
	return page.Render(w)
}

func barData(values []float64) []opts.BarData {
	data := make([]opts.BarData, len(values))
	for i, v := range values {
		data[i] = opts.BarData{Value: v}
	}
	return data
}

// SaveLabelDensityPlot writes a PNG of the non-background label fraction by
// clip position. A flat line near zero means dilation and event-centred
// sampling are effectively disabled; spikes at the window edges usually
// point at a padding bug.
func (m *SamplingMonitor) SaveLabelDensityPlot(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create plot dir: %w", err)
	}

	p := plot.New()
	p.Title.Text = "Label density by clip position"
	p.X.Label.Text = "clip position"
	p.Y.Label.Text = "non-background fraction"

	density := m.PositionDensity()
	xys := make(plotter.XYs, len(density))
	for i, d := range density {
		xys[i].X = float64(i)
		xys[i].Y = d
	}
	line, err := plotter.NewLine(xys)
	if err != nil {
		return "", fmt.Errorf("build density line: %w", err)
	}
	p.Add(plotter.NewGrid(), line)

	path := filepath.Join(dir, "label_density.png")
	if err := p.Save(8*vg.Inch, 4*vg.Inch, path); err != nil {
		return "", fmt.Errorf("save density plot: %w", err)
	}
	return path, nil
}
