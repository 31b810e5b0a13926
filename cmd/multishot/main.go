package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/cjeanneret/multishot/internal/config"
	"github.com/cjeanneret/multishot/internal/debug"
	"github.com/cjeanneret/multishot/internal/hw/camera"
	"github.com/cjeanneret/multishot/internal/hw/gpio"
	"github.com/cjeanneret/multishot/internal/logic/capture"
	"github.com/cjeanneret/multishot/internal/manifest"
	"github.com/cjeanneret/multishot/internal/store"
	"github.com/cjeanneret/multishot/internal/web"
)

// options holds the parsed command line.
type options struct {
	configPath string
	formats    []string
	outputDir  string
	timeout    time.Duration
	web        webPortFlag
}

func parseFlags(args []string) (*options, error) {
	opts := &options{web: webPortFlag{defaultPort: 8080}}

	flagSet := pflag.NewFlagSet("multishot", pflag.ContinueOnError)
	flagSet.StringVar(&opts.configPath, "config", filepath.Join("configs", "default.yaml"), "path to config file")
	flagSet.StringSliceVar(&opts.formats, "formats", nil, "formats to capture, e.g. jpeg,hevc,bayerRAW (default: from config)")
	flagSet.StringVar(&opts.outputDir, "output-dir", "", "override capture.output_dir")
	flagSet.DurationVar(&opts.timeout, "timeout", 0, "override capture.timeout_ms, e.g. 5s")
	flagSet.Var(&opts.web, "web", "start web server; --web for default 8080, --web=8980 for custom port")
	flagSet.Lookup("web").NoOptDefVal = strconv.Itoa(opts.web.defaultPort)

	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatalf("invalid command line: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if err := applyOverrides(cfg, opts); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", opts.configPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		log.Fatalf("init GPIO failed: %v", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	debug.Step(2, "Initializing camera")
	dev, err := newDeviceFromConfig(gpioDriver, cfg)
	if err != nil {
		log.Fatalf("init camera failed: %v", err)
	}
	debug.Value("Camera type", cfg.Camera.Type)
	debug.PrintStruct("Capabilities", dev.Capabilities())

	debug.Step(3, "Preparing output directory")
	st, err := store.New(store.Config{Dir: cfg.Capture.OutputDir, Prefix: cfg.Capture.FilePrefix})
	if err != nil {
		log.Fatalf("init store failed: %v", err)
	}
	debug.Value("Output dir", st.Dir())

	runCapture := func(ctx context.Context, formats []camera.Format) ([]capture.Artifact, error) {
		if len(formats) == 0 {
			formats = cfg.Formats()
		}
		return executeCapture(ctx, cfg, dev, st, formats)
	}

	if port := opts.web.port(); port > 0 {
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

		formDefaults := web.FormConfig{
			Formats:   cfg.Capture.Formats,
			OutputDir: cfg.Capture.OutputDir,
			TimeoutMs: cfg.Capture.TimeoutMs,
		}
		srv, err := web.NewServer(fmt.Sprintf(":%d", port), broadcaster, runCapture, formDefaults)
		if err != nil {
			log.Fatalf("web server: %v", err)
		}
		if err := srv.Run(ctx); err != nil {
			log.Fatalf("web server: %v", err)
		}
		return
	}

	if _, err := runCapture(ctx, nil); err != nil {
		log.Fatalf("capture failed: %v", err)
	}
}

// executeCapture takes one multi-format photo and waits for its outcome,
// bounded by the configured timeout. The manifest is written on success.
func executeCapture(ctx context.Context, cfg *config.Config, dev camera.Device, st *store.Store, formats []camera.Format) ([]capture.Artifact, error) {
	ctx, cancel := context.WithTimeoutCause(ctx, cfg.Timeout(), fmt.Errorf("capture timed out after %v", cfg.Timeout()))
	defer cancel()

	debug.Section("Multi-format capture")
	opts := capture.PlanOptions{Quality: cfg.Quality(), HighResolution: cfg.HighResolution()}
	promise := capture.NewPromise()
	coord := capture.TakeMultiFormatPhoto(ctx, dev, st, promise, formats, opts)

	// The coordinator rejects on ctx cancellation, so Wait only returns
	// early if the sink is never settled.
	artifacts, err := promise.Wait(context.WithoutCancel(ctx))
	if err != nil {
		return nil, err
	}

	debug.Summary("Capture Summary")
	for _, a := range artifacts {
		debug.Info("%-16s %s (%d bytes, blake3 %s)", a.Format, a.Path, a.Size, a.Digest)
	}

	if cfg.ManifestEnabled() {
		m := manifest.FromArtifacts(cfg.Camera.Type, artifacts, coord.Skipped())
		path, err := manifest.Write(st.Dir(), m)
		if err != nil {
			return artifacts, fmt.Errorf("write manifest: %w", err)
		}
		debug.Value("Manifest", path)
	}
	return artifacts, nil
}

// applyOverrides mutates cfg with the command-line overrides. Zero
// values mean "use config".
func applyOverrides(cfg *config.Config, opts *options) error {
	if len(opts.formats) > 0 {
		if _, err := camera.ParseFormats(opts.formats); err != nil {
			return fmt.Errorf("--formats: %w", err)
		}
		cfg.Capture.Formats = opts.formats
	}
	if opts.outputDir != "" {
		cfg.Capture.OutputDir = opts.outputDir
	}
	if opts.timeout < 0 {
		return fmt.Errorf("--timeout must be positive, got %v", opts.timeout)
	}
	if opts.timeout > 0 {
		cfg.Capture.TimeoutMs = int(opts.timeout / time.Millisecond)
	}
	return nil
}

// webPortFlag implements pflag.Value for --web: 0 = disabled, --web → 8080, --web=8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) Type() string { return "port" }

func (w *webPortFlag) port() int { return w.val }

// newDeviceFromConfig selects a capture device based on configuration.
func newDeviceFromConfig(g gpio.Driver, cfg *config.Config) (camera.Device, error) {
	sim := camera.NewSimulated(camera.SimulatedConfig{
		Capabilities: cfg.Capabilities(),
		Latency:      cfg.Latency(),
	})
	switch cfg.Camera.Type {
	case config.CameraSimulated:
		return sim, nil
	case config.CameraGPIOTrigger:
		debug.Value("Focus pin", cfg.Camera.FocusPin)
		debug.Value("Shutter pin", cfg.Camera.ShutterPin)
		return camera.NewGPIOTrigger(
			sim,
			g,
			cfg.Camera.FocusPin,
			cfg.Camera.ShutterPin,
			cfg.FocusDelay(),
			cfg.ShutterDelay(),
		), nil
	default:
		return nil, fmt.Errorf("unsupported camera type: %s", cfg.Camera.Type)
	}
}
