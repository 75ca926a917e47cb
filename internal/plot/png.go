package plot

import (
	"bytes"
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/seqsweep/internal/fsutil"
	"github.com/banshee-data/seqsweep/internal/monitoring"
)

// Plot dimensions.
const (
	plotWidth  = 8 * vg.Inch
	plotHeight = 4 * vg.Inch
)

// SetpointsPNG draws the setpoints of one axis against iteration index. A
// parametrized axis also gets the dashed progression it is emitted as, so the
// deviation from the requested values is visible.
func SetpointsPNG(s AxisSeries) ([]byte, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Axis %d (%s)", s.Index, s.Strategy)
	p.X.Label.Text = "Iteration"
	p.Y.Label.Text = "Setpoint"
	if len(s.Params) == 1 && s.Params[0].Unit != "" {
		p.Y.Label.Text = fmt.Sprintf("%s (%s)", s.Params[0].Name, s.Params[0].Unit)
	}

	for i, ps := range s.Params {
		if len(ps.Values) == 0 {
			continue
		}
		line, points, err := plotter.NewLinePoints(xys(ps.Values))
		if err != nil {
			return nil, fmt.Errorf("axis %d %s: %w", s.Index, ps.Name, err)
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1)
		points.Color = plotutil.Color(i)
		points.Shape = plotutil.Shape(i)
		p.Add(line, points)
		p.Legend.Add(ps.Name, line, points)
	}

	if s.Progression != nil && len(s.Params) > 0 {
		n := len(s.Params[0].Values)
		line, err := plotter.NewLine(xys(progressionValues(*s.Progression, n)))
		if err != nil {
			return nil, err
		}
		line.Color = plotutil.Color(len(s.Params))
		line.Width = vg.Points(1)
		line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("start=%g step=%g", s.Progression.Start, s.Progression.Step), line)
	}

	p.Legend.Top = true
	p.Legend.Left = true
	p.Legend.XOffs = 10
	p.Legend.YOffs = -10

	w, err := p.WriterTo(plotWidth, plotHeight, "png")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteSetpointPlots writes axis_<n>_setpoints.png for every axis into dir
// and returns the paths written.
func WriteSetpointPlots(fsys fsutil.FileSystem, dir string, series []AxisSeries) ([]string, error) {
	var paths []string
	for _, s := range series {
		data, err := SetpointsPNG(s)
		if err != nil {
			return paths, err
		}
		path, err := fsutil.WriteArtifact(fsys, dir, fmt.Sprintf("axis_%d_setpoints.png", s.Index), data)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	monitoring.Logf("wrote %d setpoint plots to %s", len(paths), dir)
	return paths, nil
}

func xys(values []float64) plotter.XYs {
	pts := make(plotter.XYs, len(values))
	for i, v := range values {
		pts[i] = plotter.XY{X: float64(i), Y: v}
	}
	return pts
}
