package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/sensormap/internal/colormap"
	"github.com/banshee-data/sensormap/internal/httputil"
)

const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// handleFrameChart renders the latest raw frame as a line over vertex index.
// Vertices without data are shown as gaps.
func (ws *WebServer) handleFrameChart(w http.ResponseWriter, r *http.Request) {
	f, ok := ws.monitor.LatestRaw()
	if !ok {
		httputil.WriteJSONError(w, http.StatusNotFound, "no frame received yet")
		return
	}

	noData := make(map[int]bool, len(f.NoData))
	for _, v := range f.NoData {
		noData[v] = true
	}
	xs := make([]int, len(f.Values))
	data := make([]opts.LineData, len(f.Values))
	for i, v := range f.Values {
		xs[i] = i
		if noData[i] {
			data[i] = opts.LineData{Value: "-"}
			continue
		}
		data[i] = opts.LineData{Value: v}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Surface frame", Width: "1200px", Height: "500px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Latest surface frame", Subtitle: fmt.Sprintf("seq=%d vertices=%d no_data=%d", f.Seq, len(f.Values), len(f.NoData))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "vertex", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "value"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(xs).AddSeries("values", data, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleColormapChart renders a colormap as a bar strip.
// Query params:
//   - name (optional; defaults to the active colormap, then Hot)
//   - steps (optional; default 64, 2..512)
func (ws *WebServer) handleColormapChart(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" && ws.pipeline != nil {
		name = ws.pipeline.Status().Playback.Colormap
	}
	cmap := colormap.DefaultMap
	if name != "" {
		m, err := colormap.Parse(name)
		if err != nil {
			httputil.WriteJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		cmap = m
	}

	steps, err := httputil.IntParam(r, "steps", 64, 2, 512)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	colors := colorStrip(cmap, steps)
	labels := make([]string, steps)
	data := make([]opts.BarData, steps)
	for i, c := range colors {
		labels[i] = strconv.FormatFloat(float64(i)/float64(steps-1), 'f', 2, 64)
		data[i] = opts.BarData{Value: 1, ItemStyle: &opts.ItemStyle{Color: c.Hex()}}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Colormap", Width: "900px", Height: "240px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: cmap.String()}),
		charts.WithYAxisOpts(opts.YAxis{Show: opts.Bool(false)}),
	)
	bar.SetXAxis(labels).AddSeries(cmap.String(), data, charts.WithBarChartOpts(opts.BarChart{BarCategoryGap: "0%"}))

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
