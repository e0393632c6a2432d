// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/digitech/bril/cmd/bril/directory"
)

type ctxKey string

const (
	ctxKeyInfo ctxKey = "info"
	ctxKeyEnv  ctxKey = "env"
)

// annotationRawConfig marks commands that run even if the config is invalid.
const annotationRawConfig = "raw-config"

type Info struct {
	Version string `mapstructure:"version" yaml:"version" json:"version"`
	Date    string `mapstructure:"date" yaml:"date" json:"date"`
}

func SetInfo(ctx context.Context, info Info) context.Context {
	return context.WithValue(ctx, ctxKeyInfo, info)
}

// GetInfo returns the build info stored by SetInfo, or the zero Info.
func GetInfo(ctx context.Context) Info {
	info, _ := ctx.Value(ctxKeyInfo).(Info)
	return info
}

// env is what every subcommand needs once the config has been loaded.
type env struct {
	cfg      *viper.Viper
	settings directory.Settings
	log      *logrus.Logger
}

func getEnv(cmd *cobra.Command) (*env, error) {
	e, ok := cmd.Context().Value(ctxKeyEnv).(*env)
	if !ok {
		return nil, fmt.Errorf("configuration was not loaded")
	}
	return e, nil
}

func BrilCmd(info Info, isReleaseBuild bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bril",
		Short: "Control a Bril data-acquisition board",
		Long: "bril talks to a Bril data-acquisition board over a serial port.\n\n" +
			"It sends commands to the board, logs everything the board answers into daily\n" +
			"control and data files, polls the board for its counters, and runs threshold\n" +
			"calibration sweeps.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := directory.GetUserConfig()
			if err != nil {
				return err
			}
			if err := bindFlags(cfg, cmd.Flags()); err != nil {
				return err
			}
			settings, err := directory.Load(cfg)
			if err != nil {
				// The config commands must still run so a broken config
				// can be repaired.
				if cmd.Annotations[annotationRawConfig] != "true" {
					return err
				}
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
				settings.Log = directory.LogSettings{Level: "info", Format: "text"}
			}
			log, err := setupLogger(settings.Log)
			if err != nil {
				return err
			}
			log.WithFields(logrus.Fields{
				"version": GetInfo(cmd.Context()).Version,
				"config":  cfg.ConfigFileUsed(),
			}).Debug("starting bril")
			ctx := context.WithValue(cmd.Context(), ctxKeyEnv, &env{
				cfg:      cfg,
				settings: settings,
				log:      log,
			})
			cmd.SetContext(ctx)
			return nil
		},
	}

	addGlobalFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		ListenCmd(),
		SendCmd(),
		ConsoleCmd(),
		ScanCmd(),
		CommandsCmd(),
		PortCmd(),
		SetPortCmd(),
		ConfigCmd(),
		TailCmd(),
		VersionCmd(info, isReleaseBuild),
	)
	return cmd
}
