package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/himanishpuri/acousticdna-live/pkg/acousticdna"
	"github.com/himanishpuri/acousticdna-live/pkg/acousticdna/audio"
	"github.com/himanishpuri/acousticdna-live/pkg/acousticdna/realtime"
	"github.com/himanishpuri/acousticdna-live/pkg/logger"
)

type listenFlags struct {
	configPath  string
	stride      int
	window      int
	votes       int
	seconds     float64
	wait        time.Duration
	queue       int
	noFlush     bool
	chunk       time.Duration
	decoder     string
	realtime    bool
	metricsAddr string
}

func parseListenFlags(args []string) (string, listenFlags, []realtime.Option, error) {
	input, flagArgs := splitArgs(args)

	var f listenFlags
	fs := flag.NewFlagSet("listen", flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "", "YAML session file")
	fs.IntVar(&f.stride, "stride", realtime.DefaultStride, "Overlap carried between windows, in samples")
	fs.IntVar(&f.window, "window", realtime.DefaultWindowSize, "Nominal analysis window size, in samples")
	fs.IntVar(&f.votes, "votes", realtime.DefaultThresholdVotes, "Minimum aligned hashes for a raw match")
	fs.Float64Var(&f.seconds, "seconds", realtime.DefaultSecondsThreshold, "Matched audio needed before a track is reported")
	fs.DurationVar(&f.wait, "wait", realtime.DefaultChunkWait, "Chunk wait before re-checking for shutdown")
	fs.IntVar(&f.queue, "queue", realtime.DefaultQueueCapacity, "Capacity of the chunk queue")
	fs.BoolVar(&f.noFlush, "no-flush", false, "Drop tracks still matching when the stream ends")
	fs.DurationVar(&f.chunk, "chunk", 500*time.Millisecond, "Capture chunk duration")
	fs.StringVar(&f.decoder, "decoder", "ffmpeg", "ffmpeg or wav")
	fs.BoolVar(&f.realtime, "realtime", false, "Pace file input at playback speed")
	fs.StringVar(&f.metricsAddr, "metrics", "", "Serve Prometheus metrics on this address")
	if err := fs.Parse(flagArgs); err != nil {
		return "", f, nil, err
	}

	if input == "" {
		input = fs.Arg(0)
	}
	if input == "" {
		return "", f, nil, errors.New("an input file, URL or device is required")
	}
	if f.decoder != "ffmpeg" && f.decoder != "wav" {
		return "", f, nil, fmt.Errorf("unknown decoder %q", f.decoder)
	}

	// Only flags given on the command line override the config file.
	var opts []realtime.Option
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "stride":
			opts = append(opts, realtime.WithStride(f.stride))
		case "window":
			opts = append(opts, realtime.WithWindowSize(f.window))
		case "votes":
			opts = append(opts, realtime.WithThresholdVotes(f.votes))
		case "seconds":
			opts = append(opts, realtime.WithSecondsThreshold(f.seconds))
		case "wait":
			opts = append(opts, realtime.WithChunkWait(f.wait))
		case "queue":
			opts = append(opts, realtime.WithQueueCapacity(f.queue))
		case "no-flush":
			opts = append(opts, realtime.WithFlushOnStop(!f.noFlush))
		}
	})
	return input, f, opts, nil
}

func loadSessionConfig(f listenFlags, opts []realtime.Option) (realtime.Config, error) {
	if f.configPath != "" {
		return realtime.LoadConfig(f.configPath, opts...)
	}
	return realtime.NewConfig(opts...)
}

// serveMetrics exposes reg on addr until ctx ends.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, log *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Infof("Serving metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Metrics server failed: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
}

// produce feeds decoded audio into the queue and completes it when the input
// ends, fails, or ctx is cancelled. Only a capture failure is returned;
// stopping because the session ended is not an error.
func produce(ctx context.Context, input string, f listenFlags, queue *realtime.ChunkQueue, log *logger.Logger) error {
	defer queue.CompleteAdding()

	cfg := audio.StreamConfig{SampleRate: sampleRate, ChunkDuration: f.chunk, Realtime: f.realtime}
	emit := func(samples []float64, rate int) error {
		return queue.Add(ctx, realtime.NewAudioChunk(samples, rate))
	}

	var err error
	if f.decoder == "wav" {
		err = audio.StreamWAV(ctx, input, cfg, emit)
	} else {
		err = audio.StreamPCM(ctx, input, cfg, emit)
	}
	switch {
	case err == nil:
		log.Infof("Input %s ended", input)
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, realtime.ErrQueueClosed):
		return nil
	default:
		log.Errorf("Capture of %s failed: %v", input, err)
		return fmt.Errorf("capture of %s: %w", input, err)
	}
}

func printEvent(ev realtime.FinalizedMatchEvent) {
	tag := ""
	if ev.Flushed {
		tag = " (still playing at stop)"
	}
	fmt.Printf("🎵 [%s - %s] \"%s\" by %s%s\n",
		ev.StreamStart.Truncate(time.Second), ev.StreamEnd.Truncate(time.Second), ev.Title, ev.Artist, tag)
	fmt.Printf("   Matched: %.1fs over %d windows | Confidence: %.1f%% | Track offset: %s\n",
		ev.MatchedSeconds, ev.Windows, ev.Confidence, ev.TrackOffset.Truncate(time.Millisecond))
}

// handleListen runs one realtime session and returns the process exit code.
func handleListen(args []string) int {
	log := logger.GetLogger()

	input, f, opts, err := parseListenFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Printf("❌ %v\n", err)
		fmt.Println("Usage: acousticdna listen <input> [listen-options]")
		return 2
	}

	cfg, err := loadSessionConfig(f, opts)
	if err != nil {
		fmt.Printf("❌ Invalid session configuration: %v\n", err)
		return 2
	}

	svc := mustService()
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var queryOpts []realtime.QueryOption
	queryOpts = append(queryOpts, realtime.WithLogger(log.Named("realtime")))
	if f.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		queryOpts = append(queryOpts, realtime.WithMetrics(realtime.NewMetrics(reg)))
		serveMetrics(ctx, f.metricsAddr, reg, log)
	}

	queue := realtime.NewChunkQueue(cfg.QueueCapacity)
	q, err := realtime.NewQuery(queue, acousticdna.NewMatchSource(svc), printEvent, cfg, queryOpts...)
	if err != nil {
		fmt.Printf("❌ Failed to start session: %v\n", err)
		return 1
	}

	fmt.Printf("👂 Listening to %s (session %s, Ctrl+C to stop)\n", input, q.ID())

	produced := make(chan error, 1)
	go func() {
		produced <- produce(ctx, input, f, queue, log)
	}()

	runErr := q.Run(ctx)
	cancel()
	captureErr := <-produced

	s := q.Stats()
	fmt.Printf("\n📊 %d chunks, %d windows, %d raw matches, %d recognitions\n", s.Chunks, s.Windows, s.RawMatches, s.Events)

	if runErr != nil {
		fmt.Printf("❌ Session failed: %v\n", runErr)
		return 1
	}
	if captureErr != nil {
		fmt.Printf("❌ Input failed: %v\n", captureErr)
		return 1
	}
	return 0
}
