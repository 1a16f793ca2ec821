package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/quillaudio/quill/capture"
	"github.com/quillaudio/quill/scribe"
	"github.com/quillaudio/quill/server"
	"github.com/quillaudio/quill/session"
	"github.com/quillaudio/quill/transport"
)

func main() {
	connectURL := flag.String("connect", "", "Backend websocket URL (client mode when set)")
	addr := flag.String("addr", ":8443", "Listen address (server mode)")
	spoolDir := flag.String("spool", "spool", "Segment spool directory (server mode)")
	whisperPath := flag.String("whisper", "", "Path to whisper executable (server mode)")
	whisperModel := flag.String("model", "", "Path to whisper model file (server mode)")
	workers := flag.Int("workers", 2, "Transcription worker count (server mode)")

	device := flag.String("device", "", "Audio input device name (default: system default)")
	chunkInterval := flag.Duration("interval", 5*time.Second, "Chunk interval")
	overlap := flag.Duration("overlap", 0, "Chunk overlap (reserved, no splicing yet)")
	narrowband := flag.Bool("narrowband", false, "Capture 8kHz mono G.711 instead of PCM")
	synthetic := flag.Bool("synthetic", false, "Use a synthetic tone source instead of a microphone")
	reconnect := flag.Bool("reconnect", false, "Redial with backoff after abnormal disconnects")

	listDevices := flag.Bool("list-devices", false, "List available audio input devices")
	playFile := flag.String("play", "", "Play a WAV file and exit")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err == nil {
		slog.Debug("Loaded environment from .env")
	}

	if *playFile != "" {
		if err := capture.PlayFile(*playFile); err != nil {
			slog.Error("Failed to play audio file", "error", err)
			os.Exit(1)
		}
		return
	}

	if *listDevices {
		devices, err := capture.ListDevices()
		if err != nil {
			slog.Error("Failed to list audio devices", "error", err)
			os.Exit(1)
		}
		fmt.Println("Available audio input devices:")
		for i, d := range devices {
			fmt.Printf("[%d] %s\n", i, d.Name)
			fmt.Printf("    Max Input Channels: %d\n", d.MaxInputChannels)
			fmt.Printf("    Default Sample Rate: %f\n\n", d.DefaultSampleRate)
		}
		return
	}

	token := os.Getenv("QUILL_TOKEN")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Debug("Received shutdown signal")
		cancel()
	}()

	if *connectURL != "" {
		runClient(ctx, clientOptions{
			url:           *connectURL,
			token:         token,
			device:        *device,
			chunkInterval: *chunkInterval,
			overlap:       *overlap,
			narrowband:    *narrowband,
			synthetic:     *synthetic,
			reconnect:     *reconnect,
		})
		return
	}

	runServer(ctx, serverOptions{
		addr:         *addr,
		token:        token,
		spoolDir:     *spoolDir,
		whisperPath:  *whisperPath,
		whisperModel: *whisperModel,
		workers:      *workers,
	})
}

type clientOptions struct {
	url           string
	token         string
	device        string
	chunkInterval time.Duration
	overlap       time.Duration
	narrowband    bool
	synthetic     bool
	reconnect     bool
}

// engineAdapter freezes the capture config chosen at session start so
// the coordinator drives a no-argument Initialize.
type engineAdapter struct {
	*capture.Engine
	cfg capture.Config
}

func (a engineAdapter) Initialize() error {
	return a.Engine.Initialize(a.cfg)
}

func runClient(ctx context.Context, opts clientOptions) {
	var src capture.Source
	if opts.synthetic {
		src = &capture.SyntheticSource{Freq: 440}
	} else {
		src = capture.NewMicSource()
	}

	cfg := capture.Config{Device: opts.device}
	if opts.narrowband {
		cfg.SampleRate = 8000
		cfg.Channels = 1
		cfg.Narrowband = true
	}

	var coord *session.Coordinator

	engine := capture.NewEngine(src, capture.Callbacks{
		OnSegment: func(seg capture.Segment) { coord.HandleSegment(seg) },
		OnLevel: func(l capture.Level) {
			slog.Debug("Audio level", "value", l.Value, "speaking", l.Speaking)
		},
		OnError: func(err error) {
			slog.Error("Capture error", "error", err)
		},
	})

	clientOpts := []transport.Option{transport.WithToken(opts.token)}
	if opts.reconnect {
		clientOpts = append(clientOpts, transport.WithReconnect(transport.ReconnectPolicy{Enabled: true}))
	}

	client := transport.NewClient(opts.url, transport.Callbacks{
		OnState: func(s transport.State) {
			slog.Info("Connection state", "state", string(s))
		},
		OnTranscript: func(t transport.Transcript) { coord.HandleTranscript(t) },
		OnError: func(err error) {
			slog.Error("Transport error", "error", err)
		},
	}, clientOpts...)

	coord = session.New(
		engineAdapter{Engine: engine, cfg: cfg},
		client,
		session.Config{ChunkInterval: opts.chunkInterval, Overlap: opts.overlap},
		session.Callbacks{
			OnState: func(s session.State) {
				slog.Info("Session state", "state", string(s))
			},
			OnTranscript: func(t transport.Transcript) {
				fmt.Printf("[%s] %s\n", t.Timestamp.Format("15:04:05"), t.Text)
			},
		},
	)

	if err := coord.Start(ctx); err != nil {
		slog.Error("Failed to start session", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	slog.Debug("Client shutting down")
	coord.Stop()
}

type serverOptions struct {
	addr         string
	token        string
	spoolDir     string
	whisperPath  string
	whisperModel string
	workers      int
}

func runServer(ctx context.Context, opts serverOptions) {
	registry := server.NewRegistry()

	var sc *scribe.Scribe
	if opts.whisperPath != "" {
		if opts.whisperModel == "" {
			slog.Error("Whisper model path must be provided with -whisper")
			flag.Usage()
			os.Exit(1)
		}

		var err error
		sc, err = scribe.New(scribe.Config{
			SpoolDir:     opts.spoolDir,
			WhisperPath:  opts.whisperPath,
			WhisperModel: opts.whisperModel,
			Workers:      opts.workers,
		}, registry)
		if err != nil {
			slog.Error("Failed to initialize scribe", "error", err)
			os.Exit(1)
		}

		if err := sc.Start(ctx); err != nil {
			slog.Error("Failed to start scribe", "error", err)
			os.Exit(1)
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			if err := sc.Stop(stopCtx); err != nil {
				slog.Error("Failed to stop scribe", "error", err)
			}
		}()
	} else {
		slog.Warn("No whisper executable configured, running ingest-only")
	}

	srv := server.New(server.Config{
		Addr:     opts.addr,
		Token:    opts.token,
		SpoolDir: opts.spoolDir,
	}, registry, sc)

	if err := srv.Start(ctx); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}

	slog.Debug("Program exiting")
}
