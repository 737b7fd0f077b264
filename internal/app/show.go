package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"
)

// Show prints the most recent snapshots of one feed.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	def, err := a.Registry.Lookup(opts.Feed)
	if err != nil {
		return err
	}
	if opts.Limit <= 0 {
		return errors.New("limit must be greater than zero")
	}

	be, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer be.close()

	snaps, err := be.history.ListRecent(ctx, def.Key(), opts.Limit)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		fmt.Fprintln(a.Out, "no snapshots found")
		return nil
	}

	loc, err := a.location()
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	header := []string{"Time"}
	if def.Grouped() {
		header = append(header, def.GroupField)
	}
	header = append(header, def.Fields...)
	fmt.Fprintln(writer, strings.Join(header, "\t"))

	for _, snap := range snaps {
		row := []string{snap.CapturedAt.In(loc).Format(time.RFC3339)}
		if def.Grouped() {
			row = append(row, sanitizeInline(snap.Group))
		}
		for _, field := range def.Fields {
			v, ok := snap.Fields[field]
			if !ok {
				row = append(row, "-")
				continue
			}
			row = append(row, v.String())
		}
		fmt.Fprintln(writer, strings.Join(row, "\t"))
	}

	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	cleaned = strings.ReplaceAll(cleaned, "\t", " ")
	return cleaned
}
