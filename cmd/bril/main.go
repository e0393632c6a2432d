// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"os"

	"github.com/digitech/bril/cmd/bril/commands"
)

var version = "v0.1.0"

var buildDate = "unknown"
var buildMode = "development"

func main() {
	info := commands.Info{
		Date:    buildDate,
		Version: version,
	}
	ctx := commands.SetInfo(context.Background(), info)
	cmd := commands.BrilCmd(info, buildMode == "release")
	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
