package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"vapi/internal/feed"
	"vapi/internal/storage"
)

// Export renders the history of one feed as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	def, err := a.Registry.Lookup(opts.Feed)
	if err != nil {
		return err
	}
	group := def.NormalizeGroup(opts.Group)
	if def.Grouped() && group == "" && opts.PNGPath != "" {
		return errors.New("--group is required to chart a grouped feed")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	be, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer be.close()

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}
	from := to.Add(-a.Config.Snapshots.DefaultWindow)
	if opts.From != nil {
		from = opts.From.UTC()
	}
	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	snaps, err := be.history.ListBetween(ctx, def.Key(), from, to)
	if err != nil {
		return err
	}
	if group != "" {
		snaps = filterGroup(snaps, group)
	}
	if len(snaps) == 0 {
		a.Logger.Info().Str("feed", def.Key()).Msg("no snapshots found for export window")
		return nil
	}

	downsampled := downsampleSnapshots(snaps, opts.MaxPoints)
	a.Logger.Info().Str("feed", def.Key()).Int("total", len(snaps)).Int("exported", len(downsampled)).Msg("exporting snapshots")

	if opts.CSVPath != "" {
		if err := writeSnapshotsCSV(opts.CSVPath, def, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeSnapshotsPNG(opts.PNGPath, def, group, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func filterGroup(snaps []storage.Snapshot, group string) []storage.Snapshot {
	out := snaps[:0:0]
	for _, s := range snaps {
		if s.Group == group {
			out = append(out, s)
		}
	}
	return out
}

func downsampleSnapshots(snaps []storage.Snapshot, max int) []storage.Snapshot {
	if max <= 0 || len(snaps) <= max {
		return snaps
	}
	if max == 1 {
		return snaps[len(snaps)-1:]
	}

	result := make([]storage.Snapshot, 0, max)
	step := float64(len(snaps)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(snaps) {
			idx = len(snaps) - 1
		}
		result = append(result, snaps[idx])
	}
	return result
}

func writeSnapshotsCSV(path string, def feed.Definition, snaps []storage.Snapshot) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	header := []string{"captured_at"}
	if def.Grouped() {
		header = append(header, def.GroupField)
	}
	header = append(header, def.Fields...)
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, snap := range snaps {
		record := []string{snap.CapturedAt.UTC().Format(time.RFC3339)}
		if def.Grouped() {
			record = append(record, snap.Group)
		}
		for _, field := range def.Fields {
			v, ok := snap.Fields[field]
			if !ok {
				record = append(record, "")
				continue
			}
			record = append(record, v.String())
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeSnapshotsPNG(path string, def feed.Definition, group string, snaps []storage.Snapshot) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(snaps))
	for i, snap := range snaps {
		x[i] = snap.CapturedAt
	}

	series := make([]chart.Series, 0, len(def.Fields))
	for _, field := range def.Fields {
		y := make([]float64, len(snaps))
		seen := false
		for i, snap := range snaps {
			if v, ok := snap.Fields[field]; ok {
				y[i] = v.InexactFloat64()
				seen = true
			}
		}
		if !seen {
			continue
		}
		series = append(series, chart.TimeSeries{Name: field, XValues: x, YValues: y})
	}
	if len(series) == 0 {
		return errors.New("no numeric fields to chart")
	}

	title := def.Template.Title
	if group != "" {
		title += " " + group
	}
	valueFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Title:  title,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           def.Key(),
			ValueFormatter: valueFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
