// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"

	"github.com/digitech/bril/cmd/bril/directory"
)

func ConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configure bril",
		Long: "Show or change the bril configuration.\n\n" +
			"Every key can also be overridden with an environment variable, for\n" +
			"example BRIL_PORT or BRIL_SCAN_WINDOW.",
	}

	cmd.AddCommand(
		ConfigShowCmd(),
		ConfigSetCmd(),
	)
	return cmd
}

func ConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "show",
		Short:       "Print the effective configuration",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationRawConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := getEnv(cmd)
			if err != nil {
				return err
			}
			b, err := yaml.Marshal(e.cfg.AllSettings())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# %s\n", e.cfg.ConfigFileUsed())
			_, err = out.Write(b)
			return err
		},
	}
}

func ConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change a configuration value",
		Long: "Change a configuration value and write it to the config file.\n\n" +
			"Known keys:\n  " + strings.Join(directory.Keys(), "\n  "),
		Args:        cobra.ExactArgs(2),
		Annotations: map[string]string{annotationRawConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := getEnv(cmd)
			if err != nil {
				return err
			}
			if err := setConfigValue(e, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set '%s' to '%s' in '%s'\n", args[0], args[1], e.cfg.ConfigFileUsed())
			return nil
		},
	}
}

// setConfigValue validates the new value against the full config before
// anything is written.
func setConfigValue(e *env, key, raw string) error {
	if !directory.IsKey(key) {
		return fmt.Errorf("unknown config key '%s'. Known keys: %s", key, strings.Join(directory.Keys(), ", "))
	}
	v, err := directory.ParseValue(key, raw)
	if err != nil {
		return err
	}
	e.cfg.Set(key, v)
	settings, err := directory.Load(e.cfg)
	if err != nil {
		return err
	}
	if err := directory.WriteConfig(e.cfg); err != nil {
		return err
	}
	e.settings = settings
	return nil
}
