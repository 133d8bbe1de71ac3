package clinical

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/google/uuid"

	"github.com/mdhs/ehr/internal/platform/apperr"
	"github.com/mdhs/ehr/internal/platform/auth"
)

// parseReading splits a vitals value into its numeric components: "72" gives
// one, "120/80" gives two.
func parseReading(value string) ([]float64, bool) {
	parts := strings.Split(value, "/")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}

func seriesNames(vitalType string, n int) []string {
	if n == 2 {
		return []string{"systolic", "diastolic"}
	}
	names := make([]string, n)
	for i := range names {
		names[i] = vitalType
		if n > 1 {
			names[i] = fmt.Sprintf("%s %d", vitalType, i+1)
		}
	}
	return names
}

// buildVitalsChart plots readings of one vitals type over time. Readings that
// are not numeric, or whose shape differs from the first reading, are skipped.
func buildVitalsChart(vitalType string, vitals []*Vitals) (*charts.Line, error) {
	var (
		xAxis  []string
		series [][]opts.LineData
		unit   string
	)
	for _, v := range vitals {
		values, ok := parseReading(v.Value)
		if !ok {
			continue
		}
		if series == nil {
			series = make([][]opts.LineData, len(values))
			unit = v.Unit
		}
		if len(values) != len(series) {
			continue
		}
		xAxis = append(xAxis, v.DateRecorded.Format("Jan 2, 2006 15:04"))
		for i, f := range values {
			series[i] = append(series[i], opts.LineData{Value: f})
		}
	}
	if len(xAxis) == 0 {
		return nil, apperr.NotFound("numeric " + vitalType + " readings")
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: vitalType}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(len(series) > 1)}),
		charts.WithYAxisOpts(opts.YAxis{Name: unit}),
	)
	line.SetXAxis(xAxis)
	for i, name := range seriesNames(vitalType, len(series)) {
		line.AddSeries(name, series[i])
	}
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{
		Smooth:     opts.Bool(true),
		ShowSymbol: opts.Bool(true),
	}))
	return line, nil
}

// RenderVitalsChart writes an HTML line chart of the patient's vitals of
// vitalType to w.
func (s *Service) RenderVitalsChart(ctx context.Context, actor auth.Actor, patientID uuid.UUID, vitalType string, w io.Writer) error {
	vitalType = strings.TrimSpace(vitalType)
	if vitalType == "" {
		return apperr.Validation("type", "this field is required")
	}
	if err := s.guard.AuthorizePatient(ctx, actor, patientID); err != nil {
		return err
	}
	vitals, err := s.repos.Vitals.ListByPatientType(ctx, patientID, vitalType)
	if err != nil {
		return fmt.Errorf("list vitals: %w", err)
	}
	line, err := buildVitalsChart(vitalType, vitals)
	if err != nil {
		return err
	}
	return line.Render(w)
}
