// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package directory

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Setenv(UserConfigPathEnv, filepath.Join(t.TempDir(), "missing", "config.yaml"))

	cfg, err := GetUserConfig()
	require.NoError(t, err)
	s, err := Load(cfg)
	require.NoError(t, err)

	assert.Equal(t, "", s.Port)
	assert.Equal(t, 115200, s.Baud)
	assert.Equal(t, 0, s.BoardID)
	assert.Equal(t, time.Second, s.ReadTimeout)
	assert.Equal(t, 100*time.Millisecond, s.Handshake)
	assert.Equal(t, "command_log", s.ControlPrefix)
	assert.Equal(t, "received_data", s.DataPrefix)
	assert.Equal(t, 20*time.Second, s.Poll.Interval)
	assert.Equal(t, 10*time.Second, s.Poll.Warmup)
	assert.Equal(t, 10*time.Second, s.Scan.Window)
	assert.Equal(t, 5*time.Second, s.Scan.ResetWait)
	assert.Equal(t, 3, s.Scan.Attempts)
	assert.Equal(t, 50, s.Scan.Step)
	assert.Equal(t, "info", s.Log.Level)
	assert.Equal(t, "text", s.Log.Format)
}

func TestReadAndWriteConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bril", "config.yaml")
	t.Setenv(UserConfigPathEnv, path)

	cfg, err := GetUserConfig()
	require.NoError(t, err)
	cfg.Set(PortKey, "/dev/ttyUSB0")
	cfg.Set(BoardIDKey, 12)
	cfg.Set(ScanWindowKey, "250ms")
	require.NoError(t, WriteConfig(cfg))

	_, err = os.Stat(path)
	require.NoError(t, err)

	cfg, err = GetUserConfig()
	require.NoError(t, err)
	s, err := Load(cfg)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", s.Port)
	assert.Equal(t, 12, s.BoardID)
	assert.Equal(t, 250*time.Millisecond, s.Scan.Window)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv(UserConfigPathEnv, filepath.Join(t.TempDir(), "config.yaml"))
	t.Setenv("BRIL_POLL_INTERVAL", "5s")

	cfg, err := GetUserConfig()
	require.NoError(t, err)
	s, err := Load(cfg)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, s.Poll.Interval)
}

func TestValidate(t *testing.T) {
	t.Setenv(UserConfigPathEnv, filepath.Join(t.TempDir(), "config.yaml"))

	tests := []struct {
		key   string
		value interface{}
	}{
		{BoardIDKey, 62},
		{BaudKey, 0},
		{PollIntervalKey, "0s"},
		{ScanAttemptsKey, 0},
		{LogFormatKey, "xml"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			cfg, err := GetUserConfig()
			require.NoError(t, err)
			cfg.Set(tt.key, tt.value)
			_, err = Load(cfg)
			assert.Error(t, err)
		})
	}
}

func TestKeys(t *testing.T) {
	assert.True(t, IsKey(ScanWindowKey))
	assert.False(t, IsKey("wifi"))
	assert.Contains(t, Keys(), MetricsAddrKey)
}

func TestParseValue(t *testing.T) {
	v, err := ParseValue(BaudKey, "9600")
	require.NoError(t, err)
	assert.Equal(t, 9600, v)

	v, err = ParseValue(ScanWindowKey, "15s")
	require.NoError(t, err)
	assert.Equal(t, "15s", v)

	_, err = ParseValue(BaudKey, "fast")
	assert.Error(t, err)
	_, err = ParseValue("wifi", "x")
	assert.Error(t, err)
}
