// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/digitech/bril/cmd/bril/demux"
)

func TailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow today's log file",
		Long: "Print today's control log and keep printing lines as 'bril listen' appends\n" +
			"them. Switches to the next file at midnight.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := cmd.Flags().GetBool("data")
			if err != nil {
				return err
			}
			e, err := getEnv(cmd)
			if err != nil {
				return err
			}
			prefix := e.settings.ControlPrefix
			if data {
				prefix = e.settings.DataPrefix
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			f := newFollower(e.settings.LogDir, prefix, cmd.OutOrStdout())
			return f.Run(ctx)
		},
	}
	cmd.Flags().Bool("data", false, "follow the data log instead of the control log")
	return cmd
}

// follower copies what is appended to the daily log files of one prefix.
type follower struct {
	dir    string
	prefix string
	out    io.Writer
	now    func() time.Time

	path   string
	offset int64
}

func newFollower(dir, prefix string, out io.Writer) *follower {
	return &follower{
		dir:    dir,
		prefix: prefix,
		out:    out,
		now:    time.Now,
	}
}

// catchUp prints everything written to the current file since the last
// call.
func (f *follower) catchUp() error {
	path := demux.FilePath(f.dir, f.prefix, f.now())
	if path != f.path {
		f.path = path
		f.offset = 0
	}

	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return err
	}
	if stat.Size() < f.offset {
		// Truncated.
		f.offset = 0
	}
	if _, err := file.Seek(f.offset, io.SeekStart); err != nil {
		return err
	}
	n, err := io.Copy(f.out, file)
	f.offset += n
	return err
}

func (f *follower) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(f.dir); err != nil {
		return fmt.Errorf("can't watch '%s': %w", f.dir, err)
	}
	if err := f.catchUp(); err != nil {
		return err
	}

	// Catches the day rolling over while nothing is written.
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasPrefix(filepath.Base(event.Name), f.prefix+"_") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := f.catchUp(); err != nil {
				return err
			}
		case <-ticker.C:
			if err := f.catchUp(); err != nil {
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}
