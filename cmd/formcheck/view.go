package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/formcheck/formcheck/internal/httputil"
	"github.com/formcheck/formcheck/internal/report"
	"github.com/formcheck/formcheck/internal/viewer"
)

func newViewCmd(root *rootOptions) *cobra.Command {
	var (
		listen string
		speed  float64
		window int
	)
	cmd := &cobra.Command{
		Use:   "view <orientation.csv>",
		Short: "replay an orientation track in the browser",
		Long: `view serves a page drawing the rider's orientation as a wireframe box,
driven over a websocket at capture pace, with the rolling roll/pitch IQR.
The input is an orientation.csv written by analyze.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			est, err := report.ReadOrientation(f)
			f.Close()
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			cfg, err := root.loadConfig(cmd)
			if err != nil {
				return err
			}
			name := filepath.Base(filepath.Dir(args[0]))
			s, err := viewer.New(name, est, viewer.Options{
				Speed:    speed,
				Window:   window,
				Timezone: cfg.GetTargetTimezone(),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "replaying %d frames of %s on http://%s/\n", len(est), name, displayAddr(listen))
			return viewer.Serve(cmd.Context(), listen, httputil.LoggingMiddleware(s.ServeMux()))
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "localhost:8080", "listen address")
	cmd.Flags().Float64Var(&speed, "speed", 1, "playback speed multiplier")
	cmd.Flags().IntVar(&window, "window", viewer.DefaultWindow, "rolling IQR window in frames")
	return cmd
}

func displayAddr(listen string) string {
	if strings.HasPrefix(listen, ":") {
		return "localhost" + listen
	}
	return listen
}
