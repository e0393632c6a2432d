// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
)

func VersionCmd(info Info, isReleaseBuild bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version of bril",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			version := info.Version
			if !isReleaseBuild {
				version = getGitVersion()
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Version:\t%s\n", version)
			fmt.Fprintf(out, "Build date:\t%s\n", info.Date)
			if !isReleaseBuild {
				fmt.Fprintln(out, "Build type:\tdevelopment")
			}
		},
	}
	return cmd
}

// getGitVersion describes the checkout a development build was made from.
func getGitVersion() string {
	if tag, err := exec.Command("git", "describe", "--tags", "--exact-match").Output(); err == nil {
		return strings.TrimSpace(string(tag))
	}
	if desc, err := exec.Command("git", "describe", "--tags", "--dirty").Output(); err == nil {
		return strings.TrimSpace(string(desc))
	}
	if rev, err := exec.Command("git", "rev-parse", "--short", "HEAD").Output(); err == nil {
		return "dev-" + strings.TrimSpace(string(rev))
	}
	return "dev-unknown"
}
