// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package link

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"go.bug.st/serial"
)

// Port is the part of a serial port the link uses. A serial.Port
// satisfies it.
type Port interface {
	io.ReadWriteCloser
	// SetReadTimeout bounds Read. A Read that times out returns 0, nil.
	SetReadTimeout(t time.Duration) error
	ResetInputBuffer() error
	ResetOutputBuffer() error
}

// Open opens the named port in 8N1 mode.
func Open(name string, baud int, readTimeout time.Duration) (Port, error) {
	dev, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("the port '%s' was not found", name)
	}
	if err != nil {
		return nil, err
	}
	if readTimeout > 0 {
		if err := dev.SetReadTimeout(readTimeout); err != nil {
			dev.Close()
			return nil, err
		}
	}
	return dev, nil
}

// Ports lists the serial ports of the machine. Unless all is set, ports
// that are unlikely to be a USB serial adapter are hidden.
func Ports(all bool) ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, err
	}
	if !all {
		ports = filterPorts(ports)
	}
	sort.Strings(ports)
	return ports, nil
}

// PortExists reports whether port is currently attached.
func PortExists(port string) (bool, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return false, err
	}
	for _, p := range ports {
		if p == port {
			return true, nil
		}
	}
	return false, nil
}

func filterPorts(ports []string) []string {
	switch runtime.GOOS {
	case "darwin":
		return darwinFilterPaths(ports)
	case "linux":
		return linuxFilterPaths(ports)
	default:
		return ports
	}
}

func darwinFilterPaths(paths []string) []string {
	existing := map[string]struct{}{}
	for _, p := range paths {
		existing[p] = struct{}{}
	}
	var res []string
	for _, path := range paths {
		if strings.Contains(path, "Bluetooth") {
			continue
		}
		if strings.HasPrefix(path, "/dev/cu") {
			res = append(res, path)
		} else if strings.HasPrefix(path, "/dev/tty") {
			candidate := "/dev/cu" + strings.TrimPrefix(path, "/dev/tty")
			if _, exists := existing[candidate]; !exists {
				res = append(res, path)
			}
		}
	}
	return res
}

// The board enumerates as an FTDI or CDC-ACM adapter.
func linuxFilterPaths(paths []string) []string {
	var res []string
	for _, path := range paths {
		if strings.Contains(path, "ttyUSB") || strings.Contains(path, "ttyACM") {
			res = append(res, path)
		}
	}
	return res
}
