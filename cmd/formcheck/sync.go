package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/formcheck/formcheck/internal/fsutil"
	"github.com/formcheck/formcheck/internal/monitoring"
	"github.com/formcheck/formcheck/internal/pipeline"
	"github.com/formcheck/formcheck/internal/storage"
	"github.com/formcheck/formcheck/internal/telemetry"
)

func newSyncCmd(root *rootOptions) *cobra.Command {
	var analyze, noDB bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "download new rides and captures, then analyse if anything arrived",
		Long: `sync fetches recent ride activities from the fitness platform (FIT files,
converted to CSV) and any capture files missing locally from the bucket.
When either source brought new data, or perform_analysis is set, or
--analyze is given, the analysis runs afterwards.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			syncer := &pipeline.Syncer{
				FS:           fsutil.OSFileSystem{},
				TelemetryDir: cfg.GetGarminDataFolder(),
				CaptureDir:   cfg.GetS3DataFolder(),
				LookbackDays: cfg.GetLookbackDays(),
			}
			if ic, err := cfg.ResolveIntervals(); err != nil {
				monitoring.Warnf("telemetry sync disabled: %v", err)
			} else {
				syncer.Intervals = telemetry.NewClient(ic.BaseURL, ic.AthleteID, ic.APIKey, nil, nil)
			}
			if sc, creds, err := cfg.ResolveS3(); err != nil {
				monitoring.Warnf("capture sync disabled: %v", err)
			} else {
				store, err := storage.NewS3Store(ctx, storage.S3Settings{
					Bucket:    sc.Bucket,
					Region:    sc.Region,
					Endpoint:  sc.Endpoint,
					AccessKey: creds.AccessKey,
					SecretKey: creds.SecretKey,
				})
				if err != nil {
					return err
				}
				syncer.Store, syncer.Prefix = store, sc.Prefix
			}

			res, err := syncer.Sync(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "telemetry: %d new, %d present, %d failed\n",
				len(res.Telemetry.Downloaded), res.Telemetry.Skipped, res.Telemetry.Failed)
			fmt.Fprintf(out, "captures:  %d new, %d present, %d failed\n",
				len(res.Captures.Downloaded), res.Captures.Skipped, res.Captures.Failed)

			if !res.NewData() && !cfg.GetPerformAnalysis() && !analyze {
				fmt.Fprintln(out, "no new data, skipping analysis")
				return nil
			}
			return runAnalysis(cmd, cfg, analysisFlags{noDB: noDB})
		},
	}
	cmd.Flags().BoolVar(&analyze, "analyze", false, "run the analysis even without new data")
	cmd.Flags().BoolVar(&noDB, "no-db", false, "do not record the run in the catalogue")
	return cmd
}
