// Package report renders an HTML chart of one journaled run: every
// accepted sample as a scatter point per source kind, with the fused
// speed overlaid as a line.
package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/skyward-data/groundtrack.report/internal/db"
	"github.com/skyward-data/groundtrack.report/internal/estimate"
	"github.com/skyward-data/groundtrack.report/internal/units"
)

// RenderRun writes the run chart as a standalone HTML document. Speeds are
// converted to displayUnits; the journal stores m/s.
func RenderRun(w io.Writer, run db.RunRecord, samples []db.SampleRecord, displayUnits string) error {
	if !units.IsValid(displayUnits) {
		displayUnits = units.MPS
	}

	featurePts := make([]opts.ScatterData, 0, len(samples))
	geotagPts := make([]opts.ScatterData, 0, len(samples))
	for _, s := range samples {
		pt := opts.ScatterData{Value: []interface{}{s.Seq, units.Convert(s.SpeedMPS, displayUnits)}}
		switch s.Source {
		case estimate.SourceFeature:
			featurePts = append(featurePts, pt)
		case estimate.SourceGeotag:
			geotagPts = append(geotagPts, pt)
		}
	}

	subtitle := fmt.Sprintf("run=%s samples=%d rejections=%d status=%s",
		run.RunID, len(samples), run.RejectionCount, run.Status)
	if run.FinalSpeedMPS != nil {
		subtitle += " fused=" + units.Format(*run.FinalSpeedMPS, displayUnits)
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Ground Track Speed", Theme: "dark", Width: "1200px", Height: "700px"}),
		charts.WithTitleOpts(opts.Title{Title: "Ground Track Speed Samples", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "sample", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: fmt.Sprintf("speed (%s)", displayUnits), NameLocation: "middle", NameGap: 45, Scale: opts.Bool(true)}),
	)

	scatter.AddSeries("geotag", geotagPts,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#35b779"}))
	scatter.AddSeries("feature", featurePts,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#31688e"}))

	if run.FinalSpeedMPS != nil && len(samples) > 0 {
		fused := units.Convert(*run.FinalSpeedMPS, displayUnits)
		line := charts.NewLine()
		lineData := []opts.LineData{
			{Value: []interface{}{samples[0].Seq, fused}},
			{Value: []interface{}{samples[len(samples)-1].Seq, fused}},
		}
		line.AddSeries("fused", lineData,
			charts.WithItemStyleOpts(opts.ItemStyle{Color: "#fde725"}))
		scatter.Overlap(line)
	}

	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("rendering run chart: %w", err)
	}
	return nil
}
