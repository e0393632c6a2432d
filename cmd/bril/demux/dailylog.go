// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package demux

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Sink receives classified lines.
type Sink interface {
	Append(text string) error
}

// DailyLog appends lines to one file per calendar day, named
// <dir>/<prefix>_YYYY-MM-DD.txt. The file is created on the first line of
// the day.
type DailyLog struct {
	dir    string
	prefix string
	now    func() time.Time

	mu   sync.Mutex
	day  string
	file *os.File
}

// NewDailyLog returns a log writing below dir. Nothing is created until the
// first Append.
func NewDailyLog(dir, prefix string) *DailyLog {
	return &DailyLog{
		dir:    dir,
		prefix: prefix,
		now:    time.Now,
	}
}

// Path returns the file that holds the lines of the day of t.
func (l *DailyLog) Path(t time.Time) string {
	return FilePath(l.dir, l.prefix, t)
}

// FilePath is the name of the log file of the day of t.
func FilePath(dir, prefix string, t time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.txt", prefix, t.Format("2006-01-02")))
}

// Append writes text with a timestamp.
func (l *DailyLog) Append(text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	day := now.Format("2006-01-02")
	var closeErr error
	if l.file == nil || l.day != day {
		if l.file != nil {
			if err := l.file.Close(); err != nil {
				closeErr = fmt.Errorf("closing log of %s: %w", l.day, err)
			}
			l.file = nil
		}
		if err := os.MkdirAll(l.dir, 0755); err != nil {
			return err
		}
		f, err := os.OpenFile(l.Path(now), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return err
		}
		l.file = f
		l.day = day
	}

	// The line is still written to the new day's file when closing the
	// previous one failed.
	_, err := fmt.Fprintf(l.file, "%s\t%s\n", now.Format("02/01/2006 15:04:05"), text)
	return errors.Join(closeErr, err)
}

// Close closes the file of the current day.
func (l *DailyLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
