package status

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/oshokin/pyfreeze/internal/config"
	"github.com/oshokin/pyfreeze/internal/domain/build"
	"github.com/oshokin/pyfreeze/internal/repository/record"
)

// Options contains inputs for the status entry point.
type Options struct {
	// ConfigPath is the settings file path.
	ConfigPath string
}

// Run prints the last build record for the configured build directory to w.
func Run(ctx context.Context, opts *Options, w io.Writer) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	rec, err := record.NewInDir(cfg.BuildDir()).Load(ctx)
	if errors.Is(err, record.ErrNotFound) {
		_, err = fmt.Fprintln(w, "No builds recorded yet.")

		return err
	}

	if err != nil {
		return err
	}

	return Print(w, rec, time.Now())
}

// Print renders rec as aligned key/value lines. now anchors the relative build time.
func Print(w io.Writer, rec *build.Record, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	//nolint:gosec // Sizes come from os.Stat and are never negative.
	rows := [][2]string{
		{"Build", rec.ID},
		{"Name", rec.Name},
		{"Artifact", rec.Artifact},
		{"Size", humanize.Bytes(uint64(rec.Size))},
		{"SHA-512", rec.Checksum},
		{"Built", fmt.Sprintf("%s (%s)", rec.StartedAt.Local().Format(time.RFC3339), humanize.RelTime(rec.StartedAt, now, "ago", "from now"))},
		{"Duration", rec.Duration.Round(time.Millisecond).String()},
	}

	if rec.ToolVersion != "" {
		rows = append(rows, [2]string{"Tool", rec.ToolVersion})
	}

	if rec.Actor != nil {
		rows = append(rows, [2]string{"By", rec.Actor.Username + "@" + rec.Actor.Hostname})
	}

	if _, err := os.Stat(rec.Artifact); err != nil {
		rows = append(rows, [2]string{"Warning", "artifact no longer exists"})
	}

	for _, row := range rows {
		if _, err := fmt.Fprintf(tw, "%s:\t%s\n", row[0], row[1]); err != nil {
			return err
		}
	}

	return tw.Flush()
}
