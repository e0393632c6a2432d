// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/digitech/bril/cmd/bril/directory"
)

// flagKeys maps persistent flags onto config keys.
var flagKeys = map[string]string{
	"port":       directory.PortKey,
	"baud":       directory.BaudKey,
	"board":      directory.BoardIDKey,
	"log-level":  directory.LogLevelKey,
	"log-format": directory.LogFormatKey,
}

func addGlobalFlags(flags *pflag.FlagSet) {
	flags.StringP("port", "p", "", "serial port of the board (overrides the configured port)")
	flags.Int("baud", 115200, "baud rate of the serial port")
	flags.IntP("board", "b", 0, "id of the board to address (67 addresses every board)")
	flags.String("log-level", "info", "log level: trace, debug, info, warn or error")
	flags.String("log-format", "text", "log format: text or json")
}

// bindFlags lets flags that were set on the command line override the
// config.
func bindFlags(cfg *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := cfg.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}
