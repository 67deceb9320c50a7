package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/formcheck/formcheck/internal/config"
	"github.com/formcheck/formcheck/internal/db"
	"github.com/formcheck/formcheck/internal/fsutil"
	"github.com/formcheck/formcheck/internal/monitoring"
	"github.com/formcheck/formcheck/internal/pipeline"
)

type rootOptions struct {
	configPath string
	debug      bool
	logJSON    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "formcheck",
		Short:         "correlate IMU rider stability with cycling telemetry",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			monitoring.Configure(opts.debug, opts.logJSON)
		},
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", config.DefaultConfigPath, "configuration file (yaml or json)")
	pf.BoolVar(&opts.debug, "debug", false, "toggle debug logging")
	pf.BoolVar(&opts.logJSON, "log-json", false, "log as JSON")

	cmd.AddCommand(
		newSyncCmd(opts),
		newMatchCmd(opts),
		newAnalyzeCmd(opts),
		newMergeCmd(opts),
		newAuditCmd(opts),
		newViewCmd(opts),
		newMigrateCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// loadConfig reads the configuration file. A missing file at the default
// location means "all defaults"; an explicitly named file must exist.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		monitoring.Debugf("no configuration at %s, using defaults", o.configPath)
		return config.Empty(), nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// analyzer builds the pipeline from cfg. The catalogue is opened unless
// noDB is set; the returned close func is always safe to call.
func analyzer(cfg *config.Config, noDB bool) (*pipeline.Analyzer, func(), error) {
	settings, err := pipeline.SettingsFromConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	if noDB {
		return pipeline.NewAnalyzer(fsutil.OSFileSystem{}, settings, nil), func() {}, nil
	}
	d, err := db.NewDB(cfg.GetDatabasePath())
	if err != nil {
		return nil, nil, fmt.Errorf("open catalogue: %w", err)
	}
	closeDB := func() {
		if err := d.Close(); err != nil {
			monitoring.Warnf("close catalogue: %v", err)
		}
	}
	return pipeline.NewAnalyzer(fsutil.OSFileSystem{}, settings, d), closeDB, nil
}

func stringOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
