// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"bytes"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/digitech/bril/cmd/bril/board"
)

type commandInfo struct {
	Name   string `yaml:"name" json:"name"`
	Opcode string `yaml:"opcode" json:"opcode"`
	Usage  string `yaml:"usage,omitempty" json:"usage,omitempty"`
	Help   string `yaml:"help" json:"help"`
}

func catalogInfo() []commandInfo {
	var res []commandInfo
	for _, c := range board.Catalog() {
		res = append(res, commandInfo{
			Name:   c.String(),
			Opcode: string(c.Opcode()),
			Usage:  c.Usage(),
			Help:   c.Help(),
		})
	}
	return res
}

// catalogTable renders the command list the console prints for help.
func catalogTable() string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COMMAND\tOPCODE\tDESCRIPTION\tARGUMENTS")
	for _, info := range catalogInfo() {
		usage := info.Usage
		if usage == "" {
			usage = "--"
		}
		fmt.Fprintf(w, "%s\t%s (0x%x)\t%s\t%s\n", info.Name, info.Opcode, info.Opcode[0], info.Help, usage)
	}
	w.Flush()
	return buf.String()
}

func CommandsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commands",
		Short: "List the commands the board understands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			enc, err := parseOutputFlag(cmd)
			if err != nil {
				return err
			}
			if enc != nil {
				return enc.Encode(catalogInfo())
			}
			fmt.Fprint(cmd.OutOrStdout(), catalogTable())
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "short", "output format: short, json or yaml")
	return cmd
}
