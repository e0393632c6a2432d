// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/digitech/bril/cmd/bril/board"
	"github.com/digitech/bril/cmd/bril/demux"
	"github.com/digitech/bril/cmd/bril/metrics"
	"github.com/digitech/bril/cmd/bril/poller"
)

func ListenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Log everything the board sends and poll it for data",
		Long: "Open the board's serial port and keep it open.\n\n" +
			"Every line the board sends is written to a daily log file: control\n" +
			"replies go to the control log, counter data to the data log. The board is\n" +
			"asked for its counters at a fixed interval. Unless --no-console is given,\n" +
			"an interactive shell accepts commands for the board at the same time.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			noConsole, err := cmd.Flags().GetBool("no-console")
			if err != nil {
				return err
			}
			e, err := getEnv(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("metrics") {
				if e.settings.Metrics.Addr, err = cmd.Flags().GetString("metrics"); err != nil {
					return err
				}
			}
			addr, err := board.NewAddress(e.settings.BoardID)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(e.settings.LogDir, 0755); err != nil {
				return err
			}

			arb, err := openLink(e)
			if err != nil {
				return err
			}
			defer arb.Close(context.Background())

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			control := demux.NewDailyLog(e.settings.LogDir, e.settings.ControlPrefix)
			defer control.Close()
			data := demux.NewDailyLog(e.settings.LogDir, e.settings.DataPrefix)
			defer data.Close()

			p, err := poller.New(poller.Config{
				Board:    addr,
				Interval: e.settings.Poll.Interval,
				Warmup:   e.settings.Poll.Warmup,
			}, arb, e.log.WithField("component", "poller"))
			if err != nil {
				return err
			}
			d := demux.New(arb, control, data, e.settings.Handshake, e.log.WithField("component", "reader"))

			e.log.WithFields(logrus.Fields{
				"board":   addr.ID(),
				"control": control.Path(time.Now()),
				"data":    data.Path(time.Now()),
			}).Info("listening")

			var wg sync.WaitGroup
			run := func(fn func(ctx context.Context)) {
				wg.Add(1)
				go func() {
					defer wg.Done()
					fn(ctx)
				}()
			}
			run(d.Run)
			run(p.Run)
			if e.settings.Metrics.Addr != "" {
				run(func(ctx context.Context) {
					if err := metrics.Serve(ctx, e.settings.Metrics.Addr, e.log); err != nil {
						e.log.WithError(err).Error("metrics server stopped")
					}
				})
			}

			if noConsole {
				<-ctx.Done()
			} else {
				sh := newConsole(arb, addr, 0, e.log).shell(ctx)
				go func() {
					<-ctx.Done()
					sh.Close()
				}()
				sh.Run()
				cancel()
			}

			wg.Wait()
			return nil
		},
	}
	cmd.Flags().Bool("no-console", false, "only log and poll; do not start the interactive shell")
	cmd.Flags().String("metrics", "", "serve prometheus metrics on this address, for example ':9090'")
	return cmd
}
