package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"ahrsmon/pkg/ahrs"
	"ahrsmon/pkg/bridge/foxglove"
	"ahrsmon/pkg/config"
	"ahrsmon/pkg/engine"
	"ahrsmon/pkg/integrity"
	"ahrsmon/pkg/logger"
	"ahrsmon/pkg/pipeline"
	"ahrsmon/pkg/replay"
	"ahrsmon/pkg/timing"
	"ahrsmon/pkg/transport"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) == 0 {
		return runServer([]string{}, stdout, stderr)
	}

	switch args[0] {
	case "server":
		return runServer(args[1:], stdout, stderr)
	case "-h", "--help", "help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintln(stderr, "unknown command:", args[0])
		printUsage(stderr)
		return 2
	}
}

func runServer(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", config.DefaultConfigPath, "config file path")
	addr := fs.String("addr", "", "UDP listen address (overrides config)")
	logPath := fs.String("log", "", "JSONL output path (default: stdout)")
	wsAddr := fs.String("ws", "", "Foxglove WebSocket address (\"off\" disables)")
	tui := fs.Bool("tui", false, "interactive terminal inspector")
	bufSize := fs.Int("buf", 0, "datagram queue size (overrides config)")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(*configPath, fs)
	if err != nil {
		fmt.Fprintln(stderr, "config:", err)
		return 1
	}
	if *addr != "" {
		cfg.Net.ListenAddr = *addr
	}
	if *bufSize > 0 {
		cfg.Net.QueueSize = *bufSize
	}

	authKey, err := config.LoadKey(cfg.Keys.AuthKeyPath, integrity.AuthKeySize)
	if err != nil {
		fmt.Fprintln(stderr, "auth key:", err)
		return 1
	}
	var envelopeKey []byte
	if cfg.Net.Encrypted {
		envelopeKey, err = config.LoadKey(cfg.Keys.EnvelopeKeyPath, integrity.EnvelopeKeySize)
		if err != nil {
			fmt.Fprintln(stderr, "envelope key:", err)
			return 1
		}
	}

	sec, err := integrity.NewSecurityContext(authKey, envelopeKey)
	if err != nil {
		fmt.Fprintln(stderr, "security context:", err)
		return 1
	}

	var out io.Writer = stdout
	if *logPath != "" {
		file, err := os.Create(*logPath)
		if err != nil {
			fmt.Fprintln(stderr, "failed to open log file:", err)
			return 1
		}
		defer file.Close()
		out = file
	} else if *tui {
		// The TUI owns stdout; samples go nowhere unless --log is given.
		out = io.Discard
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	hub := engine.NewHub()
	go hub.Run(ctx)

	guard := replay.New(replay.WithWindow(cfg.Replay.Window))
	clock := timing.New(
		timing.WithTicksPerSecond(cfg.Timing.TicksPerSecond),
		timing.WithRolloverThreshold(cfg.Timing.RolloverThreshold),
		timing.WithCeiling(cfg.Timing.DtCeiling),
	)

	ingester, err := pipeline.New(sec, guard, clock, hub,
		pipeline.WithDefaultDt(1/cfg.Imu.SampleRate),
	)
	if err != nil {
		fmt.Fprintln(stderr, "pipeline:", err)
		return 1
	}

	datagrams := make(chan transport.Datagram, cfg.Net.QueueSize)
	listener, err := transport.StartListener(ctx, cfg.Net.ListenAddr, datagrams)
	if err != nil {
		fmt.Fprintln(stderr, "listen:", err)
		return 1
	}
	go ingester.Run(ctx, datagrams)

	logWriter := logger.NewJSONLWriter(out)
	go logWriter.Consume(ctx, hub.Subscribe())

	estimator := ahrs.New()
	go estimator.Consume(ctx, hub.Subscribe())

	if *wsAddr != "off" {
		bridge := foxglove.NewServer(foxglove.Config{WSAddr: *wsAddr}, hub,
			foxglove.WithStats(ingester.Stats),
			foxglove.WithAttitude(estimator),
		)
		go func() {
			if err := bridge.Run(ctx); err != nil {
				fmt.Fprintln(stderr, "foxglove:", err)
			}
		}()
	}

	fmt.Fprintf(stderr, "ahrsmond listening on %s (encrypted=%v)\n",
		listener.LocalAddr(), sec.Encrypted())

	if *tui {
		return runInspector(ctx, stderr, ingester, estimator, hub)
	}

	<-ctx.Done()
	return 0
}

// loadConfig reads the config file, falling back to defaults when the
// default path is absent and the user did not ask for a specific file.
func loadConfig(path string, fs *flag.FlagSet) (config.Config, error) {
	explicit := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicit = true
		}
	})

	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !explicit && errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return config.Config{}, err
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  ahrsmond server [--config configs/ahrsmon.json] [--addr host:port] [--log file.jsonl] [--ws host:port|off] [--tui] [--buf 256]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  server   receive, validate and publish IMU frames")
}
