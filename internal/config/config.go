package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Capture codecs understood by the camera source.
const (
	CodecRaw   = "raw"
	CodecMJPEG = "mjpeg"
)

type Config struct {
	BackendURL  string            `yaml:"backend_url"`
	Camera      CameraConfig      `yaml:"camera"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Notify      NotifyConfig      `yaml:"notify"`
	Export      ExportConfig      `yaml:"export"`
	Preview     PreviewConfig     `yaml:"preview"`
	Log         LogConfig         `yaml:"log"`
}

type CameraConfig struct {
	Device      string `yaml:"device"`       // e.g. /dev/video0, "0" for avfoundation, a file or rtsp URL
	InputFormat string `yaml:"input_format"` // ffmpeg -f value, empty lets ffmpeg probe
	Codec       string `yaml:"codec"`        // raw or mjpeg
	Width       int    `yaml:"width"`
	Height      int    `yaml:"height"`
}

type RecognitionConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxInFlight int           `yaml:"max_in_flight"` // 0 = unbounded
}

type NotifyConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	MQTTBroker string        `yaml:"mqtt_broker"` // host:port, empty disables the MQTT sink
	MQTTTopic  string        `yaml:"mqtt_topic"`
}

type ExportConfig struct {
	Dir string `yaml:"dir"`
}

type PreviewConfig struct {
	Addr string `yaml:"addr"` // empty disables the preview host
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the configuration used when nothing else is provided.
func Default() *Config {
	return &Config{
		BackendURL: "http://localhost:5000",
		Camera: CameraConfig{
			Device:      "/dev/video0",
			InputFormat: "v4l2",
			Codec:       CodecRaw,
			Width:       640,
			Height:      480,
		},
		Recognition: RecognitionConfig{
			Interval: time.Second,
			Timeout:  10 * time.Second,
		},
		Notify: NotifyConfig{
			TTL:       3 * time.Second,
			MQTTTopic: "kiosk/attendance",
		},
		Export:  ExportConfig{Dir: "."},
		Preview: PreviewConfig{Addr: ":8090"},
		Log:     LogConfig{Level: "info"},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// KIOSK_* environment variables, in that order of precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("could not read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("could not parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.BackendURL = envString("KIOSK_BACKEND_URL", c.BackendURL)

	c.Camera.Device = envString("KIOSK_CAMERA_DEVICE", c.Camera.Device)
	c.Camera.InputFormat = envString("KIOSK_CAMERA_FORMAT", c.Camera.InputFormat)
	c.Camera.Codec = envString("KIOSK_CAMERA_CODEC", c.Camera.Codec)
	c.Camera.Width = envInt("KIOSK_FRAME_WIDTH", c.Camera.Width)
	c.Camera.Height = envInt("KIOSK_FRAME_HEIGHT", c.Camera.Height)

	c.Recognition.Interval = envDuration("KIOSK_RECOGNITION_INTERVAL", c.Recognition.Interval)
	c.Recognition.Timeout = envDuration("KIOSK_REQUEST_TIMEOUT", c.Recognition.Timeout)
	c.Recognition.MaxInFlight = envInt("KIOSK_MAX_IN_FLIGHT", c.Recognition.MaxInFlight)

	c.Notify.TTL = envDuration("KIOSK_NOTIFY_TTL", c.Notify.TTL)
	c.Notify.MQTTBroker = envString("KIOSK_MQTT_BROKER", c.Notify.MQTTBroker)
	c.Notify.MQTTTopic = envString("KIOSK_MQTT_TOPIC", c.Notify.MQTTTopic)

	c.Export.Dir = envString("KIOSK_EXPORT_DIR", c.Export.Dir)

	// An explicitly empty KIOSK_PREVIEW_ADDR disables the preview host.
	if v, ok := os.LookupEnv("KIOSK_PREVIEW_ADDR"); ok {
		c.Preview.Addr = v
	}

	c.Log.Level = envString("KIOSK_LOG_LEVEL", c.Log.Level)
	c.Log.File = envString("KIOSK_LOG_FILE", c.Log.File)
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid backend url %q", c.BackendURL)
	}
	if c.Camera.Codec != CodecRaw && c.Camera.Codec != CodecMJPEG {
		return fmt.Errorf("invalid camera codec %q (want %s or %s)", c.Camera.Codec, CodecRaw, CodecMJPEG)
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", c.Camera.Width, c.Camera.Height)
	}
	if c.Recognition.Interval <= 0 {
		return errors.New("recognition interval must be positive")
	}
	if c.Recognition.Timeout <= 0 {
		return errors.New("request timeout must be positive")
	}
	if c.Recognition.MaxInFlight < 0 {
		return errors.New("max in flight cannot be negative")
	}
	if c.Notify.TTL <= 0 {
		return errors.New("notification ttl must be positive")
	}
	if c.Export.Dir == "" {
		return errors.New("export dir cannot be empty")
	}
	return nil
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envInt reads an environment variable and parses it as a non-negative integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

// envDuration accepts Go duration strings ("1s", "1500ms") or plain milliseconds.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return time.Duration(n) * time.Millisecond
	}
	return defaultVal
}
