// markercam - live ArUco marker detection from a camera
//
// Opens a camera, detects 4x4/50 ArUco markers in every frame, outlines
// them in a window and prints their IDs. Press the quit key ('q') in the
// window, or Ctrl+C, to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/google/uuid"
	"github.com/teslashibe/markercam/internal/config"
	"github.com/teslashibe/markercam/internal/log"
	"github.com/teslashibe/markercam/pkg/camera"
	"github.com/teslashibe/markercam/pkg/emitter"
	"github.com/teslashibe/markercam/pkg/marker"
	"github.com/teslashibe/markercam/pkg/scanner"
	"github.com/teslashibe/markercam/pkg/vision"
	"github.com/teslashibe/markercam/pkg/web"
)

// HighGUI needs every window call on the main OS thread.
func init() {
	runtime.LockOSThread()
}

func main() {
	cfg, err := loadConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		cancel()
		os.Exit(1)
	}
}

// loadConfig applies defaults, then the TOML file, then the environment,
// then explicitly set flags.
func loadConfig(args []string, getenv func(string) string) (config.Config, error) {
	cfg := config.Default()
	fs := flag.NewFlagSet("markercam", flag.ContinueOnError)

	path := fs.String("config", "", "TOML config file (or "+config.EnvConfigPath+")")
	preset := fs.String("preset", "", "camera preset: default, external, builtin, vga, 720p")
	device := fs.Int("device", cfg.Camera.Device, "camera index (0 = built-in webcam)")
	width := fs.Int("width", cfg.Camera.Width, "requested frame width")
	height := fs.Int("height", cfg.Camera.Height, "requested frame height")
	window := fs.String("window", cfg.Display.Window, "window title")
	quitKey := fs.String("quit-key", cfg.Display.QuitKey, "key that stops the program")
	keyPoll := fs.Duration("key-poll", cfg.Display.KeyPoll, "key poll timeout per frame")
	headless := fs.Bool("headless", false, "run without a window (stop with Ctrl+C)")
	dictionary := fs.String("dictionary", cfg.Dictionary, "marker dictionary (only 4x4_50)")
	httpAddr := fs.String("http", "", "serve the status dashboard on this address, e.g. :8080")
	mqttBroker := fs.String("mqtt", "", "publish detections to this MQTT broker, e.g. localhost:1883")
	mqttQoS := fs.Int("mqtt-qos", cfg.MQTT.QoS, "QoS for marker events")
	logLevel := fs.String("log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	debug := fs.Bool("debug", false, "shorthand for -log-level debug")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	changed := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { changed[f.Name] = true })

	if *path == "" {
		*path = getenv(config.EnvConfigPath)
	}
	if *path != "" {
		file, err := config.LoadFile(*path)
		if err != nil {
			return cfg, err
		}
		if err := config.ApplyFile(&cfg, file, changed); err != nil {
			return cfg, err
		}
	}

	if err := config.FromEnv(&cfg, getenv); err != nil {
		return cfg, err
	}

	if changed["preset"] {
		p, err := camera.GetPreset(*preset)
		if err != nil {
			return cfg, err
		}
		cfg.Camera = p
	}
	if changed["device"] {
		cfg.Camera.Device = *device
	}
	if changed["width"] {
		cfg.Camera.Width = *width
	}
	if changed["height"] {
		cfg.Camera.Height = *height
	}
	if changed["window"] {
		cfg.Display.Window = *window
	}
	if changed["quit-key"] {
		cfg.Display.QuitKey = *quitKey
	}
	if changed["key-poll"] {
		cfg.Display.KeyPoll = *keyPoll
	}
	if changed["headless"] {
		cfg.Display.Headless = *headless
	}
	if changed["dictionary"] {
		cfg.Dictionary = *dictionary
	}
	if changed["http"] {
		cfg.HTTPAddr = *httpAddr
	}
	if changed["mqtt"] {
		cfg.MQTT.Broker = *mqttBroker
	}
	if changed["mqtt-qos"] {
		cfg.MQTT.QoS = *mqttQoS
	}
	if changed["log-level"] {
		cfg.LogLevel = *logLevel
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	return cfg, cfg.Validate()
}

// run opens the devices, wires the dashboard if enabled and blocks in the
// scanner loop. A camera read failure or the quit key is a clean exit.
func run(ctx context.Context, cfg config.Config) error {
	log.Init(cfg.LogLevel)
	session := uuid.NewString()
	logger := log.Component("markercam").With("session", session)

	dict, err := cfg.MarkerDictionary()
	if err != nil {
		return err
	}

	var em *emitter.Emitter
	if cfg.MQTT.Broker != "" {
		em, err = emitter.Dial(mqttConfig(cfg, session, dict))
		if err != nil {
			return err
		}
		defer em.Close()
		go em.Run(ctx)
	}

	cam, err := vision.OpenCapture(cfg.Camera)
	if err != nil {
		return err
	}
	det, err := vision.NewArucoDetector(dict)
	if err != nil {
		cam.Close()
		return err
	}

	var disp scanner.Display
	if cfg.Display.Headless {
		disp = vision.NewHeadless()
	} else {
		disp = vision.NewWindow(cfg.Display.Window)
	}

	var srv *web.Server
	opts := []scanner.Option{
		scanner.WithLogger(log.Component("scanner").With("session", session)),
	}
	if cfg.HTTPAddr != "" {
		opts = append(opts, scanner.WithObserver(func(ev scanner.Event) { srv.Publish(ev) }))
	}
	if em != nil {
		opts = append(opts, scanner.WithObserver(em.Publish))
	}

	sc := scanner.New(scanner.Config{
		QuitKey:    cfg.QuitKey(),
		KeyPoll:    cfg.Display.KeyPoll,
		Dictionary: dict,
		Session:    session,
	}, cam, det, disp, opts...)

	if cfg.HTTPAddr != "" {
		srv = web.NewServer(cfg.HTTPAddr, session, sc, cfg)
		srv.StartAsync(ctx)
	}

	logger.Info("starting", "camera", cam.Config().String(), "dictionary", dict.String(), "headless", cfg.Display.Headless)
	if err := sc.Run(ctx); err != nil {
		logger.Warn("resources not fully released", "error", err)
	}
	if err := sc.Err(); err != nil {
		logger.Info("stopped", "reason", sc.StopReason().String(), "error", err)
	}
	if em != nil {
		st := em.Stats()
		logger.Info("mqtt summary", "published", st.Published, "dropped", st.Dropped, "errors", st.Errors)
	}
	return nil
}

// mqttConfig maps the broker section onto the emitter. The device id
// defaults to the run session.
func mqttConfig(cfg config.Config, session string, dict marker.Dictionary) emitter.Config {
	id := cfg.MQTT.DeviceID
	if id == "" {
		id = session
	}
	ec := emitter.DefaultConfig(cfg.MQTT.Broker, id)
	ec.DeviceType = cfg.MQTT.DeviceType
	ec.QoS = byte(cfg.MQTT.QoS)
	ec.Dictionary = dict.String()
	return ec
}
