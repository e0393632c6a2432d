// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package scanner

import (
	"encoding/csv"
	"fmt"
	"io"
)

// Channels is the number of counters in a data row.
const Channels = 48

// rowFields is date, time and one field per channel.
const rowFields = 2 + Channels

// Output writes the tab-separated calibration table. Every call flushes, so
// rows survive an aborted sweep.
type Output struct {
	w *csv.Writer
}

func NewOutput(w io.Writer) *Output {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	return &Output{w: cw}
}

// Header returns the column names.
func Header() []string {
	res := make([]string, 0, rowFields+1)
	res = append(res, "DATE", "TIME")
	for ch := 1; ch <= Channels; ch++ {
		res = append(res, fmt.Sprintf("CH_%02d", ch))
	}
	return append(res, "THRESHOLD")
}

func (o *Output) WriteHeader() error {
	return o.write(Header())
}

// WriteRow writes a data row followed by the threshold in volts.
func (o *Output) WriteRow(fields []string, mV int) error {
	if len(fields) != rowFields {
		return fmt.Errorf("data row has %d fields, want %d", len(fields), rowFields)
	}
	record := make([]string, 0, rowFields+1)
	record = append(record, fields...)
	record = append(record, fmt.Sprintf("%.3f", float64(mV)/1000))
	return o.write(record)
}

func (o *Output) write(record []string) error {
	if err := o.w.Write(record); err != nil {
		return err
	}
	o.w.Flush()
	return o.w.Error()
}
