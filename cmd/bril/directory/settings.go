// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package directory

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/digitech/bril/cmd/bril/board"
)

// Config keys.
const (
	PortKey          = "port"
	BaudKey          = "baud"
	BoardIDKey       = "board_id"
	ReadTimeoutKey   = "read_timeout"
	HandshakeKey     = "handshake"
	LogDirKey        = "log_dir"
	ControlPrefixKey = "control_prefix"
	DataPrefixKey    = "data_prefix"
	PollIntervalKey  = "poll.interval"
	PollWarmupKey    = "poll.warmup"
	ScanSettleKey    = "scan.settle"
	ScanWindowKey    = "scan.window"
	ScanResetKey     = "scan.reset_wait"
	ScanConnectKey   = "scan.connect_wait"
	ScanAttemptsKey  = "scan.attempts"
	ScanStepKey      = "scan.step"
	LogLevelKey      = "log.level"
	LogFormatKey     = "log.format"
	MetricsAddrKey   = "metrics.addr"
)

// Durations are kept as strings so a written config stays readable.
var defaults = map[string]interface{}{
	PortKey:          "",
	BaudKey:          115200,
	BoardIDKey:       board.DefaultID,
	ReadTimeoutKey:   "1s",
	HandshakeKey:     "100ms",
	LogDirKey:        ".",
	ControlPrefixKey: "command_log",
	DataPrefixKey:    "received_data",
	PollIntervalKey:  "20s",
	PollWarmupKey:    "10s",
	ScanSettleKey:    "1s",
	ScanWindowKey:    "10s",
	ScanResetKey:     "5s",
	ScanConnectKey:   "1s",
	ScanAttemptsKey:  3,
	ScanStepKey:      50,
	LogLevelKey:      "info",
	LogFormatKey:     "text",
	MetricsAddrKey:   "",
}

// Keys lists every known config key.
func Keys() []string {
	res := make([]string, 0, len(defaults))
	for k := range defaults {
		res = append(res, k)
	}
	sort.Strings(res)
	return res
}

// IsKey reports whether key is a known config key.
func IsKey(key string) bool {
	_, ok := defaults[key]
	return ok
}

// ParseValue converts raw to the type of key's default, so a value written
// from the command line keeps the type of the default in the config file.
func ParseValue(key, raw string) (interface{}, error) {
	def, ok := defaults[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key '%s'", key)
	}
	if _, ok := def.(int); ok {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%s must be an integer, got '%s'", key, raw)
		}
		return v, nil
	}
	return raw, nil
}

func SetDefaults(cfg *viper.Viper) {
	for k, v := range defaults {
		cfg.SetDefault(k, v)
	}
}

type PollSettings struct {
	Interval time.Duration `mapstructure:"interval"`
	Warmup   time.Duration `mapstructure:"warmup"`
}

type ScanSettings struct {
	Settle      time.Duration `mapstructure:"settle"`
	Window      time.Duration `mapstructure:"window"`
	ResetWait   time.Duration `mapstructure:"reset_wait"`
	ConnectWait time.Duration `mapstructure:"connect_wait"`
	Attempts    int           `mapstructure:"attempts"`
	Step        int           `mapstructure:"step"`
}

type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsSettings struct {
	Addr string `mapstructure:"addr"`
}

// Settings is the decoded user config.
type Settings struct {
	Port          string          `mapstructure:"port"`
	Baud          int             `mapstructure:"baud"`
	BoardID       int             `mapstructure:"board_id"`
	ReadTimeout   time.Duration   `mapstructure:"read_timeout"`
	Handshake     time.Duration   `mapstructure:"handshake"`
	LogDir        string          `mapstructure:"log_dir"`
	ControlPrefix string          `mapstructure:"control_prefix"`
	DataPrefix    string          `mapstructure:"data_prefix"`
	Poll          PollSettings    `mapstructure:"poll"`
	Scan          ScanSettings    `mapstructure:"scan"`
	Log           LogSettings     `mapstructure:"log"`
	Metrics       MetricsSettings `mapstructure:"metrics"`
}

// Load decodes and validates cfg.
func Load(cfg *viper.Viper) (Settings, error) {
	var s Settings
	err := cfg.Unmarshal(&s, viper.DecodeHook(mapstructure.StringToTimeDurationHookFunc()))
	if err != nil {
		return Settings{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s Settings) Validate() error {
	var errs []error
	if s.Baud <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %d", BaudKey, s.Baud))
	}
	if !board.ValidTarget(s.BoardID) {
		errs = append(errs, fmt.Errorf("%s must be 0..%d or %d, got %d", BoardIDKey, board.MaxID, board.MagicID, s.BoardID))
	}
	positive := map[string]time.Duration{
		ReadTimeoutKey:  s.ReadTimeout,
		HandshakeKey:    s.Handshake,
		PollIntervalKey: s.Poll.Interval,
		ScanSettleKey:   s.Scan.Settle,
		ScanWindowKey:   s.Scan.Window,
	}
	for _, k := range []string{ReadTimeoutKey, HandshakeKey, PollIntervalKey, ScanSettleKey, ScanWindowKey} {
		if positive[k] <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", k, positive[k]))
		}
	}
	if s.Poll.Warmup < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", PollWarmupKey))
	}
	if s.Scan.Attempts <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %d", ScanAttemptsKey, s.Scan.Attempts))
	}
	if s.Scan.Step <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %d", ScanStepKey, s.Scan.Step))
	}
	if s.Log.Format != "text" && s.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("%s must be text or json, got '%s'", LogFormatKey, s.Log.Format))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
