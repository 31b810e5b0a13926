package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/multishot/internal/hw/camera"
	"github.com/cjeanneret/multishot/internal/store"
)

// MaxConfigFileBytes is the largest configuration file Load accepts.
const MaxConfigFileBytes = 64 * 1024

// Camera types understood by the application.
const (
	CameraSimulated   = "simulated"
	CameraGPIOTrigger = "gpio_trigger"
)

// CameraConfig describes the capture device.
// Type selects a concrete implementation ("simulated" or "gpio_trigger").
type CameraConfig struct {
	Type           string   `yaml:"type"`
	FocusPin       int      `yaml:"focus_pin"`        // GPIO pin for FOCUS line (gpio_trigger)
	ShutterPin     int      `yaml:"shutter_pin"`      // GPIO pin for SHUTTER line (gpio_trigger)
	FocusDelayMs   int      `yaml:"focus_delay_ms"`   // autofocus delay (ms)
	ShutterDelayMs int      `yaml:"shutter_delay_ms"` // shutter hold time (ms)
	LatencyMs      int      `yaml:"latency_ms"`       // simulated processing time per exposure
	PixelFormats   []string `yaml:"pixel_formats"`    // uncompressed layouts offered, e.g. BGRA
	RawFormats     []string `yaml:"raw_formats"`      // RAW layouts offered: bayer, proraw
	// Note: GND is physically connected to Raspberry Pi ground
}

// CaptureConfig holds the defaults of one multi-format capture.
type CaptureConfig struct {
	Formats        []string `yaml:"formats"`    // empty = all five
	OutputDir      string   `yaml:"output_dir"` // where artifacts are written
	FilePrefix     string   `yaml:"file_prefix"`
	TimeoutMs      int      `yaml:"timeout_ms"` // whole-aggregate deadline
	Quality        string   `yaml:"quality"`    // quality | balanced | speed
	HighResolution *bool    `yaml:"high_resolution,omitempty"`
	Manifest       *bool    `yaml:"manifest,omitempty"` // write a CBOR manifest next to the artifacts
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio"`   // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Camera   CameraConfig   `yaml:"camera"`
	Capture  CaptureConfig  `yaml:"capture"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// ValidateConfigPath accepts only .yaml files located directly inside a
// directory named "configs". Paths containing ".." are refused.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Ext(abs) != ".yaml" {
		return fmt.Errorf("config file %q must have a .yaml extension", path)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config file %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	if err := ValidateConfigPath(path); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", MaxConfigFileBytes)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Camera.Type {
	case "":
		return fmt.Errorf("camera.type is required")
	case CameraSimulated:
	case CameraGPIOTrigger:
		if c.Camera.FocusPin <= 0 || c.Camera.ShutterPin <= 0 {
			return fmt.Errorf("camera.focus_pin and camera.shutter_pin are required for %s", CameraGPIOTrigger)
		}
		if c.Camera.FocusPin == c.Camera.ShutterPin {
			return fmt.Errorf("camera.focus_pin and camera.shutter_pin must differ, both are %d", c.Camera.FocusPin)
		}
	default:
		return fmt.Errorf("unknown camera.type %q", c.Camera.Type)
	}

	if _, err := camera.ParseFormats(c.Capture.Formats); err != nil {
		return fmt.Errorf("capture.formats: %w", err)
	}
	if _, err := parseCapabilities(c.Camera.PixelFormats, c.Camera.RawFormats); err != nil {
		return err
	}
	if _, err := parseQuality(c.Capture.Quality); err != nil {
		return err
	}
	if c.Capture.TimeoutMs < 0 {
		return fmt.Errorf("capture.timeout_ms must be >= 0, got %d", c.Capture.TimeoutMs)
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}

	// Default values for camera delays
	if c.Camera.FocusDelayMs <= 0 {
		c.Camera.FocusDelayMs = 500 // 500ms for autofocus
	}
	if c.Camera.ShutterDelayMs <= 0 {
		c.Camera.ShutterDelayMs = 200 // 200ms shutter hold
	}
	if c.Camera.LatencyMs < 0 {
		c.Camera.LatencyMs = 0
	}

	if c.Capture.OutputDir == "" {
		c.Capture.OutputDir = filepath.Join(os.TempDir(), "multishot")
	}
	if c.Capture.FilePrefix == "" {
		c.Capture.FilePrefix = store.DefaultPrefix
	}
	if c.Capture.TimeoutMs == 0 {
		c.Capture.TimeoutMs = 10000 // 10s for the whole aggregate
	}
	if c.Capture.Quality == "" {
		c.Capture.Quality = "quality"
	}
	return nil
}

// Timeout returns the deadline of one aggregate capture.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Capture.TimeoutMs) * time.Millisecond
}

// FocusDelay returns the autofocus delay duration.
func (c *Config) FocusDelay() time.Duration {
	return time.Duration(c.Camera.FocusDelayMs) * time.Millisecond
}

// ShutterDelay returns the shutter hold duration.
func (c *Config) ShutterDelay() time.Duration {
	return time.Duration(c.Camera.ShutterDelayMs) * time.Millisecond
}

// Latency returns the simulated processing time per exposure.
func (c *Config) Latency() time.Duration {
	return time.Duration(c.Camera.LatencyMs) * time.Millisecond
}

// Formats returns the default format selection. Empty means all five.
func (c *Config) Formats() []camera.Format {
	formats, _ := camera.ParseFormats(c.Capture.Formats)
	return formats
}

// Quality returns the processed-format quality prioritization.
func (c *Config) Quality() camera.Quality {
	q, _ := parseQuality(c.Capture.Quality)
	return q
}

// HighResolution reports whether captures use the full sensor resolution (default true).
func (c *Config) HighResolution() bool {
	return c.Capture.HighResolution == nil || *c.Capture.HighResolution
}

// ManifestEnabled reports whether a manifest is written after each capture (default true).
func (c *Config) ManifestEnabled() bool {
	return c.Capture.Manifest == nil || *c.Capture.Manifest
}

// Capabilities returns the pixel layouts the simulated device offers.
// Omitted lists mean every layout; an explicit empty list means none.
func (c *Config) Capabilities() camera.Capabilities {
	caps, _ := parseCapabilities(c.Camera.PixelFormats, c.Camera.RawFormats)
	return caps
}

func parseQuality(s string) (camera.Quality, error) {
	switch strings.ToLower(s) {
	case "", "quality":
		return camera.QualityQuality, nil
	case "balanced":
		return camera.QualityBalanced, nil
	case "speed":
		return camera.QualitySpeed, nil
	default:
		return camera.QualityUnspecified, fmt.Errorf("capture.quality must be quality, balanced or speed, got %q", s)
	}
}

func parseCapabilities(pixel, raw []string) (camera.Capabilities, error) {
	full := camera.FullCapabilities()
	var caps camera.Capabilities

	if pixel == nil {
		caps.PixelFormats = full.PixelFormats
	}
	for _, p := range pixel {
		if len(p) != 4 {
			return camera.Capabilities{}, fmt.Errorf("camera.pixel_formats: %q is not a four-character code", p)
		}
		caps.PixelFormats = append(caps.PixelFormats, camera.FourCC(p))
	}

	if raw == nil {
		caps.RawPixelFormats = full.RawPixelFormats
	}
	for _, r := range raw {
		switch strings.ToLower(r) {
		case "bayer":
			caps.RawPixelFormats = append(caps.RawPixelFormats,
				camera.RawPixelFormat{Code: camera.RawFormatBayer14, Kind: camera.RawBayer})
		case "proraw":
			caps.RawPixelFormats = append(caps.RawPixelFormats,
				camera.RawPixelFormat{Code: camera.RawFormatProRAW64, Kind: camera.RawProRAW})
		default:
			return camera.Capabilities{}, fmt.Errorf("camera.raw_formats: unknown layout %q (want bayer or proraw)", r)
		}
	}
	return caps, nil
}
