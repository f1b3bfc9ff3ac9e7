package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/andresmejia3/kiosk/internal/config"
	"github.com/andresmejia3/kiosk/internal/pipeline"
	"github.com/andresmejia3/kiosk/internal/utils"
)

// Options holds the flag overrides of the run command
type Options struct {
	Device      string
	InputFormat string
	Codec       string
	Interval    time.Duration
	Timeout     time.Duration
	MaxInFlight int
	NotifyTTL   time.Duration
	PreviewAddr string
	ExportDir   string
	MQTTBroker  string
}

var runOpts Options

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the kiosk: camera, recognition overlay, attendance log",
	Long: `Captures the camera, sends a snapshot to the backend every interval, draws the
recognized faces, pops a notification for every new attendance and keeps the
attendance table in sync.

Keys (followed by Enter): e = export attendance.csv, r = refresh table, q = quit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyRunFlags(cmd, cfg, runOpts); err != nil {
			utils.ShowError("Invalid flags", err, nil)
			return err
		}
		return runKiosk(cmd.Context(), cfg)
	},
}

func init() {
	bindRunFlags(runCmd, &runOpts)
	rootCmd.AddCommand(runCmd)
}

func bindRunFlags(cmd *cobra.Command, opts *Options) {
	d := config.Default()
	f := cmd.Flags()
	f.StringVar(&opts.Device, "device", d.Camera.Device, "Camera device, file or stream URL passed to ffmpeg -i")
	f.StringVar(&opts.InputFormat, "input-format", d.Camera.InputFormat, "ffmpeg input format (v4l2, avfoundation, dshow; empty to probe)")
	f.StringVar(&opts.Codec, "codec", d.Camera.Codec, "Camera pipe codec: raw or mjpeg")
	f.DurationVar(&opts.Interval, "interval", d.Recognition.Interval, "Recognition request interval")
	f.DurationVar(&opts.Timeout, "timeout", d.Recognition.Timeout, "Recognition request timeout")
	f.IntVar(&opts.MaxInFlight, "max-in-flight", d.Recognition.MaxInFlight, "Skip ticks while this many requests are pending (0 = never skip)")
	f.DurationVar(&opts.NotifyTTL, "notify-ttl", d.Notify.TTL, "How long a notification stays visible")
	f.StringVar(&opts.PreviewAddr, "preview-addr", d.Preview.Addr, "Preview page listen address (empty disables it)")
	f.StringVar(&opts.ExportDir, "export-dir", d.Export.Dir, "Directory attendance.csv is saved to")
	f.StringVar(&opts.MQTTBroker, "mqtt-broker", d.Notify.MQTTBroker, "Publish notifications to this MQTT broker (host:port)")
}

// applyRunFlags copies every flag the user set onto c and revalidates it.
func applyRunFlags(cmd *cobra.Command, c *config.Config, opts Options) error {
	f := cmd.Flags()
	if f.Changed("device") {
		c.Camera.Device = opts.Device
	}
	if f.Changed("input-format") {
		c.Camera.InputFormat = opts.InputFormat
	}
	if f.Changed("codec") {
		c.Camera.Codec = opts.Codec
	}
	if f.Changed("interval") {
		c.Recognition.Interval = opts.Interval
	}
	if f.Changed("timeout") {
		c.Recognition.Timeout = opts.Timeout
	}
	if f.Changed("max-in-flight") {
		c.Recognition.MaxInFlight = opts.MaxInFlight
	}
	if f.Changed("notify-ttl") {
		c.Notify.TTL = opts.NotifyTTL
	}
	if f.Changed("preview-addr") {
		c.Preview.Addr = opts.PreviewAddr
	}
	if f.Changed("export-dir") {
		c.Export.Dir = opts.ExportDir
	}
	if f.Changed("mqtt-broker") {
		c.Notify.MQTTBroker = opts.MQTTBroker
	}
	return c.Validate()
}

func runKiosk(ctx context.Context, c *config.Config) error {
	p, err := pipeline.New(c, logger,
		pipeline.WithTerminal(os.Stdout),
		pipeline.WithExportProgress(os.Stderr),
	)
	if err != nil {
		utils.ShowError("Failed to build pipeline", err, nil)
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fmt.Fprintf(os.Stderr, "📷 Camera %s -> backend %s (every %s)\n", c.Camera.Device, c.BackendURL, c.Recognition.Interval)
	if c.Preview.Addr != "" {
		fmt.Fprintf(os.Stderr, "🖥️  Preview on http://%s\n", displayAddr(c.Preview.Addr))
	}
	fmt.Fprintln(os.Stderr, "⌨️  e = export, r = refresh, q = quit")

	go watchKeys(ctx, os.Stdin, func(a keyAction) {
		switch a {
		case actionExport:
			go func() {
				if path, err := p.Export(ctx); err == nil {
					fmt.Fprintf(os.Stderr, "💾 Saved %s\n", path)
				}
			}()
		case actionRefresh:
			go p.Refresh(ctx)
		case actionQuit:
			cancel()
		}
	})

	if err := p.Run(ctx); err != nil {
		logger.Error("pipeline failed", zap.Error(err))
		return err
	}
	fmt.Fprintln(os.Stderr, "👋 Kiosk stopped.")
	return nil
}

func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
