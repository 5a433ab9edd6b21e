package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"flood-alerts/internal/status"
	"flood-alerts/internal/storage"
)

// defaultExportWindow is used when --from is omitted.
const defaultExportWindow = 7 * 24 * time.Hour

// Export renders reading history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}
	from := to.Add(-defaultExportWindow)
	if opts.From != nil {
		from = opts.From.UTC()
	}
	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	repo, err := a.openRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	readings, err := repo.ListReadingsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(readings) == 0 {
		a.Logger.Info().Time("from", from).Time("to", to).Msg("no readings found for export window")
		return nil
	}

	downsampled := downsampleReadings(readings, opts.MaxPoints)
	a.Logger.Info().Int("total", len(readings)).Int("exported", len(downsampled)).Msg("exporting readings")

	if opts.CSVPath != "" {
		if err := writeReadingsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	// go-chart cannot scale a time axis from a single point.
	if opts.PNGPath != "" && len(downsampled) < 2 {
		a.Logger.Warn().Msg("need at least two readings to draw a chart; skipping png")
	} else if opts.PNGPath != "" {
		if err := writeReadingsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleReadings(readings []storage.ReadingRecord, max int) []storage.ReadingRecord {
	if max <= 0 || len(readings) <= max {
		return readings
	}
	if max == 1 {
		return readings[len(readings)-1:]
	}

	result := make([]storage.ReadingRecord, 0, max)
	step := float64(len(readings)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(readings) {
			idx = len(readings) - 1
		}
		result = append(result, readings[idx])
	}
	return result
}

func writeReadingsCSV(path string, readings []storage.ReadingRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"created_at", "sensor_id", "jarak", "ketinggian_air", "sentuh_air", "status", "cuaca_desc", "suhu", "kelembapan", "kecepatan_angin", "tutupan_awan", "waktu_prakiraan", "hujan_lebat"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, r := range readings {
		distance := ""
		if r.Distance != nil {
			distance = strconv.Itoa(*r.Distance)
		}
		record := []string{
			r.CreatedAt.UTC().Format(time.RFC3339),
			r.SensorID,
			distance,
			strconv.Itoa(r.Depth),
			strconv.FormatBool(r.Contact),
			r.Status.String(),
			valueOr(r.WeatherDesc, ""),
			nullDecimalString(r.Temperature),
			nullDecimalString(r.Humidity),
			nullDecimalString(r.WindSpeed),
			nullDecimalString(r.CloudCover),
			valueOr(r.ForecastTime, ""),
			strconv.FormatBool(r.HeavyRain),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeReadingsPNG(path string, readings []storage.ReadingRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(readings))
	depth := make([]float64, len(readings))
	for i, r := range readings {
		x[i] = r.CreatedAt
		depth[i] = float64(r.Depth)
	}

	cmFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Ketinggian air (cm)",
			ValueFormatter: cmFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Ketinggian air",
				XValues: x,
				YValues: depth,
			},
			thresholdSeries("Batas WASPADA", x, status.WaspadaMin),
			thresholdSeries("Batas BAHAYA", x, status.BahayaMin),
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

// thresholdSeries draws a flat line across the export window.
func thresholdSeries(name string, x []time.Time, level int) chart.TimeSeries {
	y := make([]float64, len(x))
	for i := range y {
		y[i] = float64(level)
	}
	return chart.TimeSeries{
		Name:    name,
		XValues: x,
		YValues: y,
		Style: chart.Style{
			StrokeDashArray: []float64{5, 5},
		},
	}
}

func nullDecimalString(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
