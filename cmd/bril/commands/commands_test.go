// Copyright (C) 2024 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digitech/bril/cmd/bril/board"
	"github.com/digitech/bril/cmd/bril/demux"
	"github.com/digitech/bril/cmd/bril/directory"
	"github.com/digitech/bril/cmd/bril/link"
	"github.com/digitech/bril/cmd/bril/link/linktest"
	"github.com/digitech/bril/cmd/bril/scanner"
)

func newTestConsole(t *testing.T, reply time.Duration) (*console, *linktest.Port) {
	t.Helper()
	port := linktest.New()
	arb := link.NewArbiter(link.NewConn(port))
	addr, err := board.NewAddress(5)
	require.NoError(t, err)
	log, _ := test.NewNullLogger()
	c := newConsole(arb, addr, reply, log)
	c.now = func() time.Time { return time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC) }
	return c, port
}

func TestCatalogTable(t *testing.T) {
	table := catalogTable()
	for _, c := range board.Catalog() {
		assert.Contains(t, table, c.String())
	}
	assert.Contains(t, table, "a (0x61)")
	assert.Contains(t, table, "r (0x72)")
}

func TestCommandsCmdJSON(t *testing.T) {
	var buf bytes.Buffer
	cmd := CommandsCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"-o", "json"})
	require.NoError(t, cmd.Execute())

	var infos []commandInfo
	require.NoError(t, json.Unmarshal(buf.Bytes(), &infos))
	require.Len(t, infos, len(board.Catalog()))
	assert.Equal(t, "getstatus", infos[0].Name)
	assert.Equal(t, "a", infos[0].Opcode)
}

func TestConsoleRunWithReply(t *testing.T) {
	c, port := newTestConsole(t, time.Second)
	port.Respond(func(frame []byte) string { return ">OK\r\n" })

	out, err := c.run(context.Background(), "getid", nil)
	require.NoError(t, err)
	assert.Equal(t, "[Sent] 26 6b 0a\n>OK", out)
	assert.Equal(t, []board.Command{board.GetID}, port.Commands())
}

func TestConsoleRunWriteOnly(t *testing.T) {
	c, port := newTestConsole(t, 0)
	port.Respond(func(frame []byte) string { return ">OK\n" })

	out, err := c.run(context.Background(), "setid", []string{"7"})
	require.NoError(t, err)
	assert.Equal(t, "[Sent] 26 6a 28 0a", out)
	// The reply stays buffered for the reader.
	assert.Equal(t, []board.Command{board.SetID}, port.Commands())
}

func TestConsoleRunRejectsBadInput(t *testing.T) {
	c, port := newTestConsole(t, 0)

	_, err := c.run(context.Background(), "blink", nil)
	assert.ErrorIs(t, err, board.ErrUnknownCommand)
	_, err = c.run(context.Background(), "setid", nil)
	assert.ErrorIs(t, err, board.ErrInvalidArgument)
	_, err = c.run(context.Background(), "getid", []string{"3"})
	assert.ErrorIs(t, err, board.ErrInvalidArgument)
	assert.Empty(t, port.Written())
}

func TestConsoleSelectBoard(t *testing.T) {
	c, _ := newTestConsole(t, 0)

	out, err := c.selectBoard(nil)
	require.NoError(t, err)
	assert.Equal(t, "Addressing board 5", out)

	out, err = c.selectBoard([]string{"67"})
	require.NoError(t, err)
	assert.Equal(t, "Addressing board 67 (broadcast)", out)
	assert.Equal(t, board.MagicID, c.addr.ID())

	_, err = c.selectBoard([]string{"62"})
	assert.ErrorIs(t, err, board.ErrInvalidArgument)
	_, err = c.selectBoard([]string{"x"})
	assert.ErrorIs(t, err, board.ErrInvalidArgument)
	assert.Equal(t, board.MagicID, c.addr.ID())
}

func TestSendRequestTimeout(t *testing.T) {
	port := linktest.New()
	arb := link.NewArbiter(link.NewConn(port))
	req, err := board.ParseRequest("getstatus", nil, time.Now())
	require.NoError(t, err)

	_, _, err = sendRequest(context.Background(), arb, board.Broadcast, req, 20*time.Millisecond)
	assert.ErrorIs(t, err, link.ErrTimeout)
	assert.Equal(t, []board.Command{board.GetStatus}, port.Commands())
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func appendFile(t *testing.T, path, s string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString(s)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestFollowerCatchUp(t *testing.T) {
	dir := t.TempDir()
	day1 := time.Date(2024, 3, 1, 23, 59, 0, 0, time.Local)
	day2 := day1.Add(2 * time.Minute)

	var out bytes.Buffer
	f := newFollower(dir, "command_log", &out)
	f.now = func() time.Time { return day1 }

	// Nothing logged yet.
	require.NoError(t, f.catchUp())
	assert.Empty(t, out.String())

	appendFile(t, demux.FilePath(dir, "command_log", day1), "one\n")
	require.NoError(t, f.catchUp())
	appendFile(t, demux.FilePath(dir, "command_log", day1), "two\n")
	require.NoError(t, f.catchUp())
	assert.Equal(t, "one\ntwo\n", out.String())

	f.now = func() time.Time { return day2 }
	appendFile(t, demux.FilePath(dir, "command_log", day2), "three\n")
	require.NoError(t, f.catchUp())
	assert.Equal(t, "one\ntwo\nthree\n", out.String())
}

func TestFollowerRun(t *testing.T) {
	dir := t.TempDir()
	path := demux.FilePath(dir, "received_data", time.Now())
	appendFile(t, path, "before\n")

	var out syncBuffer
	f := newFollower(dir, "received_data", &out)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	require.Eventually(t, func() bool { return out.String() == "before\n" }, 2*time.Second, 10*time.Millisecond)
	appendFile(t, path, "after\n")
	require.Eventually(t, func() bool { return out.String() == "before\nafter\n" }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("follower did not stop")
	}
}

func TestSetConfigValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv(directory.UserConfigPathEnv, path)

	cfg, err := directory.GetUserConfig()
	require.NoError(t, err)
	e := &env{cfg: cfg}

	require.NoError(t, setConfigValue(e, directory.BaudKey, "9600"))
	assert.Equal(t, 9600, e.settings.Baud)

	assert.Error(t, setConfigValue(e, "wifi", "on"))
	assert.Error(t, setConfigValue(e, directory.ScanWindowKey, "0s"))

	reread, err := directory.GetUserConfig()
	require.NoError(t, err)
	assert.Equal(t, 9600, reread.GetInt(directory.BaudKey))
	assert.Equal(t, "10s", reread.GetString(directory.ScanWindowKey))
}

func TestSetupLogger(t *testing.T) {
	log, err := setupLogger(directory.LogSettings{Level: "debug", Format: "json"})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)

	log, err = setupLogger(directory.LogSettings{Level: "info", Format: "text"})
	require.NoError(t, err)
	assert.IsType(t, &logrus.TextFormatter{}, log.Formatter)

	_, err = setupLogger(directory.LogSettings{Level: "loud", Format: "text"})
	assert.Error(t, err)
}

func TestBindFlags(t *testing.T) {
	flags := pflag.NewFlagSet("bril", pflag.ContinueOnError)
	addGlobalFlags(flags)
	require.NoError(t, flags.Parse([]string{"--port", "/dev/ttyUSB1", "-b", "7"}))

	cfg := viper.New()
	directory.SetDefaults(cfg)
	cfg.Set(directory.LogLevelKey, "warn")
	require.NoError(t, bindFlags(cfg, flags))

	assert.Equal(t, "/dev/ttyUSB1", cfg.GetString(directory.PortKey))
	assert.Equal(t, 7, cfg.GetInt(directory.BoardIDKey))
	// Flags that were not given leave the config alone.
	assert.Equal(t, "warn", cfg.GetString(directory.LogLevelKey))
}

func TestParseSweep(t *testing.T) {
	cmd := ScanCmd()
	require.NoError(t, cmd.Flags().Parse([]string{"--min", "100", "--max", "300"}))
	sweep, err := parseSweep(cmd, 50)
	require.NoError(t, err)
	assert.Equal(t, scanner.Sweep{Min: 100, Max: 300, Step: 50}, sweep)

	cmd = ScanCmd()
	require.NoError(t, cmd.Flags().Parse([]string{"--step", "25"}))
	sweep, err = parseSweep(cmd, 50)
	require.NoError(t, err)
	assert.Equal(t, scanner.Sweep{Min: 125, Max: 525, Step: 25}, sweep)
}

func TestScanConfig(t *testing.T) {
	var s directory.Settings
	s.ReadTimeout = 2 * time.Second
	s.Scan = directory.ScanSettings{
		Settle:      500 * time.Millisecond,
		Window:      30 * time.Second,
		ResetWait:   3 * time.Second,
		ConnectWait: 4 * time.Second,
		Attempts:    5,
	}
	log, _ := test.NewNullLogger()
	cfg := scanConfig(s, log)
	assert.Equal(t, 2*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Settle)
	assert.Equal(t, 30*time.Second, cfg.Window)
	assert.Equal(t, 3*time.Second, cfg.ResetWait)
	assert.Equal(t, 4*time.Second, cfg.ConnectWait)
	assert.Equal(t, 5, cfg.Attempts)
	assert.NotNil(t, cfg.Sleep)
}

func TestBarProgress(t *testing.T) {
	bar := pb.New(3)
	progress := barProgress(bar)

	progress(scanner.RecordRow, 2, 3)
	assert.Equal(t, int64(2), bar.Current())
	assert.Equal(t, "record-row ", bar.Get("prefix"))

	progress(scanner.Failed, 3, 3)
	assert.Equal(t, int64(2), bar.Current())

	progress(scanner.Complete, 3, 3)
	assert.Equal(t, int64(3), bar.Current())
}

func TestQuietLogger(t *testing.T) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.InfoLevel)

	restore := quietLogger(log)
	log.Warn("exchange failed")
	log.Error("port gone")
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, "port gone", hook.LastEntry().Message)

	restore()
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())

	log.SetLevel(logrus.FatalLevel)
	restore = quietLogger(log)
	assert.Equal(t, logrus.FatalLevel, log.GetLevel())
	restore()
}

func TestInfoContext(t *testing.T) {
	assert.Equal(t, Info{}, GetInfo(context.Background()))
	ctx := SetInfo(context.Background(), Info{Version: "v1.2.3", Date: "2024-03-01"})
	assert.Equal(t, "v1.2.3", GetInfo(ctx).Version)
}

func TestVersionCmd(t *testing.T) {
	var buf bytes.Buffer
	cmd := VersionCmd(Info{Version: "v1.2.3", Date: "2024-03-01"}, true)
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "Version:\tv1.2.3\nBuild date:\t2024-03-01\n", buf.String())
}
