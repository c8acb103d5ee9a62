package monitor

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"net/http"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/sensormap/internal/httputil"
	"github.com/banshee-data/sensormap/internal/security"
	"github.com/banshee-data/sensormap/internal/stream"
)

// WriteSnapshotPNG plots the values of f against vertex index and writes a
// PNG of the given size.
func WriteSnapshotPNG(w io.Writer, f stream.RawFrame, width, height vg.Length) error {
	noData := make(map[int]bool, len(f.NoData))
	for _, v := range f.NoData {
		noData[v] = true
	}
	pts := make(plotter.XYs, 0, len(f.Values))
	missing := make(plotter.XYs, 0, len(f.NoData))
	for i, v := range f.Values {
		if noData[i] {
			missing = append(missing, plotter.XY{X: float64(i), Y: 0})
			continue
		}
		pts = append(pts, plotter.XY{X: float64(i), Y: v})
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Surface frame %d", f.Seq)
	p.X.Label.Text = "Vertex"
	p.Y.Label.Text = "Value"
	p.Add(plotter.NewGrid())

	if len(pts) > 0 {
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("failed to create line: %w", err)
		}
		line.Width = vg.Points(1)
		line.Color = color.RGBA{R: 200, G: 60, B: 20, A: 255}
		p.Add(line)
		p.Legend.Add("value", line)
	}
	if len(missing) > 0 {
		sc, err := plotter.NewScatter(missing)
		if err != nil {
			return fmt.Errorf("failed to create scatter: %w", err)
		}
		sc.Color = color.Gray{Y: 128}
		p.Add(sc)
		p.Legend.Add("no data", sc)
	}

	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return fmt.Errorf("failed to render plot: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write png: %w", err)
	}
	return nil
}

// ErrNoFrame is returned by SaveSnapshot before any frame has arrived.
var ErrNoFrame = errors.New("no frame received yet")

// SaveSnapshot writes the latest raw frame as dir/<name>.png and returns the
// path written. name is sanitized and the result must stay inside dir.
func (m *Monitor) SaveSnapshot(dir, name string) (string, error) {
	f, ok := m.LatestRaw()
	if !ok {
		return "", ErrNoFrame
	}
	path, err := security.ExportPath(dir, name, ".png")
	if err != nil {
		return "", err
	}
	out, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := WriteSnapshotPNG(out, f, 10*vg.Inch, 4*vg.Inch); err != nil {
		out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	logf("wrote snapshot of frame %d to %s", f.Seq, path)
	return path, nil
}

// handleSnapshotPNG serves the latest raw frame as a PNG.
// Query params:
//   - w, h (optional; inches, default 10 x 4)
func (ws *WebServer) handleSnapshotPNG(w http.ResponseWriter, r *http.Request) {
	f, ok := ws.monitor.LatestRaw()
	if !ok {
		httputil.WriteJSONError(w, http.StatusNotFound, "no frame received yet")
		return
	}
	width, err := httputil.FloatParam(r, "w", 10, 2, 40)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	height, err := httputil.FloatParam(r, "h", 4, 2, 40)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if err := WriteSnapshotPNG(w, f, vg.Length(width)*vg.Inch, vg.Length(height)*vg.Inch); err != nil {
		logf("snapshot failed: %v", err)
	}
}
