// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/digitech/bril/cmd/bril/directory"
	"github.com/digitech/bril/cmd/bril/scanner"
)

func ScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a threshold calibration sweep",
		Long: "Step the DAC thresholds of the board from --min to --max millivolts and\n" +
			"record the counters the board reports at every step in a tab separated\n" +
			"file. The board is reset first, and its clock is set to the host clock.\n\n" +
			"A step that fails three times aborts the sweep; the rows recorded so far\n" +
			"are kept.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := getEnv(cmd)
			if err != nil {
				return err
			}
			sweep, err := parseSweep(cmd, e.settings.Scan.Step)
			if err != nil {
				return err
			}
			if err := sweep.Validate(); err != nil {
				return err
			}
			out, err := cmd.Flags().GetString("out")
			if err != nil {
				return err
			}
			if out == "" {
				out = fmt.Sprintf("threshold_scan_%s.txt", time.Now().Format("2006-01-02_15-04-05"))
			}

			arb, err := openLink(e)
			if err != nil {
				return err
			}
			defer arb.Close(context.Background())

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			cfg := scanConfig(e.settings, e.log)
			var bar *pb.ProgressBar
			if isTerminal() {
				restore := quietLogger(e.log)
				defer restore()
				bar = pb.New(len(sweep.Points()))
				cfg.Progress = barProgress(bar)
				bar.Start()
			}

			res, err := scanner.RunCalibrationSweep(ctx, arb, sweep, e.settings.BoardID, out, cfg)
			if bar != nil {
				bar.Finish()
			}
			if err != nil {
				return fmt.Errorf("sweep %s stopped after %d of %d thresholds: %w", res.RunID, res.Rows, res.Points, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sweep %s complete: %d thresholds written to '%s'\n", res.RunID, res.Rows, out)
			return nil
		},
	}
	cmd.Flags().Int("min", 125, "lowest threshold in millivolts")
	cmd.Flags().Int("max", 525, "highest threshold in millivolts")
	cmd.Flags().Int("step", 0, "threshold step in millivolts (defaults to the configured scan.step)")
	cmd.Flags().StringP("out", "o", "", "output file (defaults to threshold_scan_<time>.txt)")
	return cmd
}

func parseSweep(cmd *cobra.Command, defaultStep int) (scanner.Sweep, error) {
	lo, err := cmd.Flags().GetInt("min")
	if err != nil {
		return scanner.Sweep{}, err
	}
	hi, err := cmd.Flags().GetInt("max")
	if err != nil {
		return scanner.Sweep{}, err
	}
	step := defaultStep
	if cmd.Flags().Changed("step") {
		if step, err = cmd.Flags().GetInt("step"); err != nil {
			return scanner.Sweep{}, err
		}
	}
	return scanner.Sweep{Min: lo, Max: hi, Step: step}, nil
}

func scanConfig(s directory.Settings, log logrus.FieldLogger) scanner.Config {
	cfg := scanner.DefaultConfig()
	cfg.ConnectWait = s.Scan.ConnectWait
	cfg.Settle = s.Scan.Settle
	cfg.ReadTimeout = s.ReadTimeout
	cfg.ResetWait = s.Scan.ResetWait
	cfg.Window = s.Scan.Window
	cfg.Attempts = s.Scan.Attempts
	cfg.Log = log.WithField("component", "scanner")
	return cfg
}

// barProgress shows the current step in the bar prefix and advances the
// bar once per recorded threshold.
func barProgress(bar *pb.ProgressBar) func(scanner.State, int, int) {
	return func(state scanner.State, point, total int) {
		bar.Set("prefix", state.String()+" ")
		switch {
		case state == scanner.RecordRow:
			bar.SetCurrent(int64(point))
		case state.Terminal():
			// A failed sweep keeps the count of recorded rows.
			if state == scanner.Complete {
				bar.SetCurrent(int64(total))
			}
		}
	}
}

// quietLogger raises log to error level while a progress bar owns stderr,
// and returns the func that restores the previous level.
func quietLogger(log *logrus.Logger) func() {
	level := log.GetLevel()
	if level > logrus.ErrorLevel {
		log.SetLevel(logrus.ErrorLevel)
	}
	return func() {
		log.SetLevel(level)
	}
}
