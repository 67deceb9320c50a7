package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/formcheck/formcheck/internal/config"
	"github.com/formcheck/formcheck/internal/correlate"
	"github.com/formcheck/formcheck/internal/fsutil"
	"github.com/formcheck/formcheck/internal/monitoring"
	"github.com/formcheck/formcheck/internal/pipeline"
	"github.com/formcheck/formcheck/internal/sensor"
	"github.com/formcheck/formcheck/internal/telemetry"
)

type analysisFlags struct {
	telemetryDir string
	captureDir   string
	outputDir    string
	noDB         bool
}

func (f *analysisFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.telemetryDir, "telemetry-dir", "", "telemetry CSV folder (default garmin_data_folder)")
	cmd.Flags().StringVar(&f.captureDir, "capture-dir", "", "capture sessions folder (default s3_data_folder)")
	cmd.Flags().StringVar(&f.outputDir, "out", "", "output folder (default analysis_data_folder)")
}

func (f analysisFlags) inputs(cfg *config.Config) pipeline.Inputs {
	return pipeline.Inputs{
		TelemetryDir: stringOr(f.telemetryDir, cfg.GetGarminDataFolder()),
		CaptureDir:   stringOr(f.captureDir, cfg.GetS3DataFolder()),
		OutputDir:    stringOr(f.outputDir, cfg.GetAnalysisDataFolder()),
	}
}

func runAnalysis(cmd *cobra.Command, cfg *config.Config, flags analysisFlags) error {
	a, closeDB, err := analyzer(cfg, flags.noDB)
	if err != nil {
		return err
	}
	defer closeDB()

	sum, err := a.Analyze(cmd.Context(), flags.inputs(cfg))
	out := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TELEMETRY\tSESSION\tFRAMES\tROWS\tDROPS\tSTATUS")
	for _, f := range sum.Files {
		for _, r := range f.Sessions {
			status := "ok"
			switch {
			case r.Err != nil:
				status = "failed: " + r.Err.Error()
			case r.Result.NoOverlap:
				status = "no overlap"
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n", f.File.Name, r.Session.Name,
				r.Frames, len(r.Result.Rows), len(r.Audit.Drops()), status)
		}
	}
	tw.Flush()
	if sum.RunID != "" {
		fmt.Fprintf(out, "run %s: %d sessions, %d failed\n", sum.RunID, sum.Sessions(), sum.Failed())
	}
	return err
}

func newAnalyzeCmd(root *rootOptions) *cobra.Command {
	var flags analysisFlags
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "correlate every telemetry file with its overlapping capture sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig(cmd)
			if err != nil {
				return err
			}
			return runAnalysis(cmd, cfg, flags)
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&flags.noDB, "no-db", false, "do not record the run in the catalogue")
	return cmd
}

func newMatchCmd(root *rootOptions) *cobra.Command {
	var flags analysisFlags
	cmd := &cobra.Command{
		Use:   "match",
		Short: "list which capture sessions overlap which telemetry files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig(cmd)
			if err != nil {
				return err
			}
			settings, err := pipeline.SettingsFromConfig(cfg)
			if err != nil {
				return err
			}
			in := flags.inputs(cfg)
			fsys := fsutil.OSFileSystem{}

			paths, err := telemetry.DiscoverFiles(fsys, in.TelemetryDir)
			if err != nil {
				return err
			}
			var files []telemetry.File
			for _, p := range paths {
				f, _, err := telemetry.LoadFile(fsys, p, settings.Source)
				if err != nil {
					monitoring.Warnf("skipping telemetry %s: %v", p, err)
					continue
				}
				files = append(files, f)
			}
			sessions, err := sensor.DiscoverSessions(fsys, in.CaptureDir, settings.Capture)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TELEMETRY\tSESSION\tSTART\tEND\tOVERLAP")
			for _, m := range correlate.MatchSessions(files, sessions) {
				w := m.Window.In(settings.Target)
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", m.Telemetry.Name, m.Session.Name,
					w.Start.Format(time.DateTime), w.End.Format(time.DateTime), w.Duration().Round(time.Second))
			}
			return tw.Flush()
		},
	}
	flags.register(cmd)
	return cmd
}

func newMergeCmd(root *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "merge <session-dir>",
		Short: "write the merged accelerometer/gyroscope/magnetometer table of one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig(cmd)
			if err != nil {
				return err
			}
			a, closeDB, err := analyzer(cfg, true)
			if err != nil {
				return err
			}
			defer closeDB()

			dir := args[0]
			path := stringOr(output, filepath.Join(dir, pipeline.MergedCSV))
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			n, err := a.MergeSession(dir, f)
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				_ = os.Remove(path)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d frames written to %s\n", n, path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output CSV (default <session-dir>/merged.csv)")
	return cmd
}

func newAuditCmd(root *rootOptions) *cobra.Command {
	var flags analysisFlags
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "count samples per second in every capture session and flag drops",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig(cmd)
			if err != nil {
				return err
			}
			a, closeDB, err := analyzer(cfg, flags.noDB)
			if err != nil {
				return err
			}
			defer closeDB()

			in := flags.inputs(cfg)
			audits, err := a.AuditSessions(cmd.Context(), in.CaptureDir, in.OutputDir)
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SESSION\tSECONDS\tSAMPLES\tMEAN HZ\tDROPS")
			for _, au := range audits {
				r := au.Report
				fmt.Fprintf(tw, "%s\t%d\t%d\t%.1f\t%d\n", au.Title, len(r.Buckets), r.Total(), r.Mean(), len(r.Drops()))
			}
			tw.Flush()
			return err
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&flags.noDB, "no-db", false, "do not record audits in the catalogue")
	return cmd
}
