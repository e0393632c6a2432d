// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/digitech/bril/cmd/bril/directory"
	"github.com/digitech/bril/cmd/bril/link"
)

type portList []string

func (l portList) Elements() []Short {
	res := make([]Short, len(l))
	for i, p := range l {
		res[i] = shortString(p)
	}
	return res
}

func PortCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ports",
		Short: "List the serial ports the board may be attached to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := cmd.Flags().GetBool("all")
			if err != nil {
				return err
			}
			enc, err := parseOutputFlag(cmd)
			if err != nil {
				return err
			}
			ports, err := link.Ports(all)
			if err != nil {
				return err
			}
			if len(ports) == 0 && enc == nil {
				fmt.Println("No serial ports detected.")
				return nil
			}
			if enc == nil {
				enc = newShortEncoder(cmd.OutOrStdout())
			}
			return enc.Encode(portList(ports))
		},
	}
	cmd.Flags().Bool("all", false, "if set, will show all available ports")
	cmd.Flags().StringP("output", "o", "short", "output format: short, json or yaml")
	return cmd
}

func SetPortCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-port",
		Short: "Select the serial port you want to use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := cmd.Flags().GetBool("all")
			if err != nil {
				return err
			}
			e, err := getEnv(cmd)
			if err != nil {
				return err
			}
			port, err := pickPort(all)
			if err != nil {
				return err
			}
			return savePort(e, port)
		},
	}

	cmd.Flags().Bool("all", false, "if set, will show all available ports")
	return cmd
}

func savePort(e *env, port string) error {
	e.cfg.Set(directory.PortKey, port)
	e.settings.Port = port
	if err := directory.WriteConfig(e.cfg); err != nil {
		return err
	}
	fmt.Printf("Port '%s' saved to '%s'\n", port, e.cfg.ConfigFileUsed())
	return nil
}

// checkPort returns the configured port if it is attached and otherwise
// asks the operator to pick one.
func checkPort(e *env) (string, error) {
	if e.settings.Port != "" {
		exists, err := link.PortExists(e.settings.Port)
		if err != nil {
			return "", err
		}
		if exists {
			return e.settings.Port, nil
		}
		fmt.Printf("The port '%s' is not attached.\n", e.settings.Port)
	}

	port, err := pickPort(false)
	if err != nil {
		return "", err
	}
	if err := savePort(e, port); err != nil {
		return "", err
	}
	return port, nil
}

func pickPort(all bool) (string, error) {
	ports, err := link.Ports(all)
	if err != nil {
		return "", err
	}
	if len(ports) == 0 {
		return "", fmt.Errorf("no serial ports detected. Is the board plugged in? Use --all to list every port")
	}

	prompt := promptui.Select{
		Label:     "Choose the serial port of the board",
		Items:     ports,
		Templates: &promptui.SelectTemplates{},
	}

	i, _, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("you didn't select anything")
	}

	return ports[i], nil
}
