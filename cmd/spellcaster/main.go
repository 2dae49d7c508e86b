// Command spellcaster runs the keyword-spotting voice pipeline from a YAML
// config: microphone capture, streaming whisper inference, and trigger
// events polled to the log. It stands in for a game host embedding the
// pipeline.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pedrosoares/godot-whisper/internal/config"
	"github.com/pedrosoares/godot-whisper/internal/observe"
	"github.com/pedrosoares/godot-whisper/internal/pipeline"
	"github.com/pedrosoares/godot-whisper/pkg/audio"
	"github.com/pedrosoares/godot-whisper/pkg/keyword"
	"github.com/pedrosoares/godot-whisper/pkg/stt"
	"github.com/pedrosoares/godot-whisper/pkg/stt/mock"
	"github.com/pedrosoares/godot-whisper/pkg/stt/whisper"
)

// pollInterval is the host-frame cadence at which events and transcripts are
// drained, standing in for a game engine's per-frame poll.
const pollInterval = 50 * time.Millisecond

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	listDevices := flag.Bool("list-devices", false, "list input audio devices and exit")
	flag.Parse()

	if *listDevices {
		return runListDevices()
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "spellcaster: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "spellcaster: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel.Slog(),
	}))
	slog.SetDefault(logger)

	slog.Info("spellcaster starting",
		"config", *configPath,
		"engine", cfg.STT.Engine,
		"log_level", cfg.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Metrics provider ──────────────────────────────────────────────────────
	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "spellcaster",
	})
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	// ── Engine registry ───────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinEngines(reg)

	engine, err := reg.CreateEngine(cfg.STT)
	if err != nil {
		slog.Error("failed to create engine", "name", cfg.STT.Engine, "err", err)
		return 1
	}
	defer func() {
		if err := engine.Close(); err != nil {
			slog.Warn("engine close error", "err", err)
		}
	}()

	// ── Capture source ────────────────────────────────────────────────────────
	source, err := audio.NewPortAudioSource(audio.SourceConfig{
		Device:          cfg.Audio.Device,
		SampleRate:      cfg.Audio.SampleRate,
		FramesPerBuffer: cfg.Audio.FramesPerBuffer,
	})
	if err != nil {
		slog.Error("failed to open capture device", "device", cfg.Audio.Device, "err", err)
		return 1
	}

	// ── Matcher + pipeline ────────────────────────────────────────────────────
	var matcherOpts []keyword.Option
	if cfg.Keywords.Phonetic {
		matcherOpts = append(matcherOpts, keyword.WithPhonetic(keyword.NewPhonetic()))
	}
	matcher := keyword.NewMatcher(matcherOpts...)
	for _, tr := range cfg.Keywords.Triggers {
		if err := matcher.Register(tr.Phrase, tr.Alias); err != nil {
			slog.Error("failed to register trigger", "phrase", tr.Phrase, "err", err)
			return 1
		}
		slog.Info("trigger registered", "phrase", tr.Phrase, "alias", tr.Alias)
	}

	p, err := pipeline.New(pipeline.Config{
		Source:           source,
		Engine:           engine,
		Matcher:          matcher,
		Window:           cfg.Window.Window(),
		Hop:              cfg.Window.Hop(),
		Buffer:           time.Duration(cfg.Audio.BufferMs) * time.Millisecond,
		SilenceThreshold: cfg.Window.SilenceThreshold,
	})
	if err != nil {
		slog.Error("failed to assemble pipeline", "err", err)
		return 1
	}

	if err := p.Start(ctx); err != nil {
		slog.Error("failed to start pipeline", "err", err)
		return 1
	}

	slog.Info("listening — press Ctrl+C to shut down")

	// ── Host frame loop ───────────────────────────────────────────────────────
	exit := pollLoop(ctx, p)

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("stopping pipeline…")
	if err := p.Stop(); err != nil {
		slog.Warn("pipeline stop error", "err", err)
	}

	snap := p.Stats()
	slog.Info("session summary",
		"windows", snap.Windows,
		"matches", snap.Matches,
		"failures", snap.Failures,
		"p50", snap.Inference.P50,
		"p95", snap.Inference.P95,
	)
	slog.Info("goodbye")
	return exit
}

// pollLoop drains pipeline queues on the host-frame cadence until the signal
// context ends or the pipeline reports a terminal status. Returns the process
// exit code.
func pollLoop(ctx context.Context, p *pipeline.Pipeline) int {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return 0
		case <-ticker.C:
			for _, ev := range p.PollEvents() {
				slog.Info("cast!", "alias", ev.Alias, "phrase", ev.Phrase, "offset", ev.Offset)
			}
			for _, seg := range p.PollTranscripts() {
				slog.Debug("transcript",
					"text", seg.Text,
					"final", seg.Final,
					"confidence", fmt.Sprintf("%.2f", seg.Confidence),
				)
			}
			for _, st := range p.PollStatus() {
				if st.Terminal {
					slog.Error("pipeline terminated", "err", st.Err)
					return 1
				}
			}
		}
	}
}

// registerBuiltinEngines wires the engine factories that ship with the
// pipeline.
func registerBuiltinEngines(reg *config.Registry) {
	reg.RegisterEngine("whisper", func(cfg config.STTConfig) (stt.Engine, error) {
		var opts []whisper.Option
		if cfg.Language != "" {
			opts = append(opts, whisper.WithLanguage(cfg.Language))
		}
		if cfg.Threads > 0 {
			opts = append(opts, whisper.WithThreads(uint(cfg.Threads)))
		}
		return whisper.New(cfg.ModelPath, opts...)
	})

	// The mock engine keeps the full pipeline runnable without a model file.
	reg.RegisterEngine("mock", func(config.STTConfig) (stt.Engine, error) {
		return &mock.Engine{}, nil
	})
}

// serveMetrics exposes the Prometheus scrape endpoint. Errors are logged,
// not fatal: losing metrics must not take down the pipeline.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	slog.Info("metrics endpoint up", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Warn("metrics endpoint failed", "addr", addr, "err", err)
	}
}

func runListDevices() int {
	names, err := audio.ListInputDevices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "spellcaster: %v\n", err)
		return 1
	}
	if len(names) == 0 {
		fmt.Println("no input devices found")
		return 0
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return 0
}
