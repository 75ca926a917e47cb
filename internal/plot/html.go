package plot

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// SetpointsHTML renders one line chart per axis on a single page.
func SetpointsHTML(title string, series []AxisSeries) ([]byte, error) {
	page := components.NewPage()
	page.PageTitle = title
	for _, s := range series {
		page.AddCharts(axisChart(s))
	}
	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, fmt.Errorf("failed to render setpoint charts: %w", err)
	}
	return buf.Bytes(), nil
}

func axisChart(s AxisSeries) *charts.Line {
	n := 0
	for _, ps := range s.Params {
		n = max(n, len(ps.Values))
	}
	x := make([]string, n)
	for i := range x {
		x[i] = strconv.Itoa(i)
	}

	subtitle := s.Strategy.String()
	if s.Progression != nil {
		subtitle = fmt.Sprintf("%s start=%g step=%g stop=%g", subtitle,
			s.Progression.Start, s.Progression.Step, s.Progression.Stop)
	}
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("Axis %d", s.Index), Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Iteration", NameLocation: "middle", NameGap: 25}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10"}),
	)
	line.SetXAxis(x)
	for _, ps := range s.Params {
		line.AddSeries(ps.Name, lineData(ps.Values),
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)}))
	}
	if s.Progression != nil && len(s.Params) > 0 {
		line.AddSeries("progression", lineData(progressionValues(*s.Progression, n)),
			charts.WithLineStyleOpts(opts.LineStyle{Type: "dashed"}))
	}
	return line
}

func lineData(values []float64) []opts.LineData {
	out := make([]opts.LineData, len(values))
	for i, v := range values {
		out[i] = opts.LineData{Value: v}
	}
	return out
}
