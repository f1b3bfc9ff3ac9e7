package cmd

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/kiosk/internal/config"
)

func TestApplyRunFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    map[string]string
		check   func(t *testing.T, c *config.Config)
		wantErr bool
	}{
		{
			name: "No flags keeps config",
			check: func(t *testing.T, c *config.Config) {
				if c.Recognition.Interval != time.Second {
					t.Errorf("interval = %v, want 1s", c.Recognition.Interval)
				}
				if c.Camera.Device != "/dev/video0" {
					t.Errorf("device = %q", c.Camera.Device)
				}
			},
		},
		{
			name: "Changed flags override",
			args: map[string]string{
				"device":        "rtsp://cam/1",
				"codec":         config.CodecMJPEG,
				"interval":      "500ms",
				"max-in-flight": "1",
				"preview-addr":  "",
				"export-dir":    "/tmp/out",
			},
			check: func(t *testing.T, c *config.Config) {
				if c.Camera.Device != "rtsp://cam/1" {
					t.Errorf("device = %q", c.Camera.Device)
				}
				if c.Camera.Codec != config.CodecMJPEG {
					t.Errorf("codec = %q", c.Camera.Codec)
				}
				if c.Recognition.Interval != 500*time.Millisecond {
					t.Errorf("interval = %v", c.Recognition.Interval)
				}
				if c.Recognition.MaxInFlight != 1 {
					t.Errorf("max in flight = %d", c.Recognition.MaxInFlight)
				}
				if c.Preview.Addr != "" {
					t.Errorf("preview addr = %q, want disabled", c.Preview.Addr)
				}
				if c.Export.Dir != "/tmp/out" {
					t.Errorf("export dir = %q", c.Export.Dir)
				}
			},
		},
		{
			name:    "Invalid codec",
			args:    map[string]string{"codec": "h264"},
			wantErr: true,
		},
		{
			name:    "Zero interval",
			args:    map[string]string{"interval": "0s"},
			wantErr: true,
		},
		{
			name:    "Negative max in flight",
			args:    map[string]string{"max-in-flight": "-1"},
			wantErr: true,
		},
		{
			name:    "Empty export dir",
			args:    map[string]string{"export-dir": ""},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts Options
			cmd := &cobra.Command{Use: "run"}
			bindRunFlags(cmd, &opts)
			for k, v := range tt.args {
				if err := cmd.Flags().Set(k, v); err != nil {
					t.Fatalf("set %s: %v", k, err)
				}
			}

			c := config.Default()
			err := applyRunFlags(cmd, c, opts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("applyRunFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, c)
			}
		})
	}
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		line string
		want keyAction
	}{
		{"e\n", actionExport},
		{"  E  \n", actionExport},
		{"export\n", actionExport},
		{"r\n", actionRefresh},
		{"q\n", actionQuit},
		{"exit\n", actionQuit},
		{"\n", actionNone},
		{"x\n", actionNone},
	}
	for _, tt := range tests {
		if got := parseKey(tt.line); got != tt.want {
			t.Errorf("parseKey(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestWatchKeys(t *testing.T) {
	input := "r\nnope\ne\nq"
	var got []keyAction
	watchKeys(context.Background(), strings.NewReader(input), func(a keyAction) {
		got = append(got, a)
	})

	want := []keyAction{actionRefresh, actionExport, actionQuit}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("action %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestWatchKeysStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	watchKeys(ctx, strings.NewReader("e\n"), func(keyAction) { called = true })
	if called {
		t.Error("handler ran after cancel")
	}
}

func TestDisplayAddr(t *testing.T) {
	if got := displayAddr(":8090"); got != "localhost:8090" {
		t.Errorf("displayAddr(:8090) = %q", got)
	}
	if got := displayAddr("0.0.0.0:80"); got != "0.0.0.0:80" {
		t.Errorf("displayAddr(0.0.0.0:80) = %q", got)
	}
}
