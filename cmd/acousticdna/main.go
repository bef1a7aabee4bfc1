package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/himanishpuri/acousticdna-live/pkg/acousticdna"
	"github.com/himanishpuri/acousticdna-live/pkg/acousticdna/audio"
	"github.com/himanishpuri/acousticdna-live/pkg/acousticdna/storage"
	"github.com/himanishpuri/acousticdna-live/pkg/logger"
)

// Global flags
var (
	dbPath     string
	tempDir    string
	sampleRate int
	logLevel   string
)

func init() {
	// A missing .env is fine; real environment variables take precedence.
	_ = godotenv.Load()

	flag.StringVar(&dbPath, "db", getEnvOrDefault("ACOUSTIC_DB_PATH", storage.DefaultDBFile), "Path to the SQLite database file")
	flag.StringVar(&tempDir, "temp", getEnvOrDefault("ACOUSTIC_TEMP_DIR", os.TempDir()), "Directory for temporary audio conversion files")
	flag.IntVar(&sampleRate, "rate", audio.DefaultSampleRate, "Audio sample rate for processing")
	flag.StringVar(&logLevel, "log-level", getEnvOrDefault("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	flag.Usage = printUsage
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func createService() (acousticdna.Service, error) {
	return acousticdna.NewService(
		acousticdna.WithDBPath(dbPath),
		acousticdna.WithTempDir(tempDir),
		acousticdna.WithSampleRate(sampleRate),
		acousticdna.WithLogger(logger.GetLogger()),
	)
}

// mustService opens the index or exits.
func mustService() acousticdna.Service {
	svc, err := createService()
	if err != nil {
		fmt.Printf("❌ Failed to create service: %v\n", err)
		logger.Fatalf("Service initialization failed: %v", err)
	}
	return svc
}

// splitArgs separates the leading positional argument from the flags that
// follow it, so both "add song.mp3 -title x" and "add -title x" work.
func splitArgs(args []string) (string, []string) {
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		return args[0], args[1:]
	}
	return "", args
}

func main() {
	flag.Parse()

	log := logger.GetLogger()
	if lvl, ok := logger.ParseLevel(logLevel); ok {
		log.SetLevel(lvl)
	} else {
		log.Warnf("Unknown log level %q, keeping %s", logLevel, log.Level())
	}

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command, args := flag.Arg(0), flag.Args()[1:]
	log.Debugf("Executing command: %s", command)

	switch command {
	case "add":
		handleAdd(args)
	case "match":
		handleMatch(args)
	case "listen":
		os.Exit(handleListen(args))
	case "list":
		handleList()
	case "delete":
		handleDelete(args)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func handleAdd(args []string) {
	log := logger.GetLogger()

	audioPath, flagArgs := splitArgs(args)

	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	title := addCmd.String("title", "", "Track title (default: file tag or name)")
	artist := addCmd.String("artist", "", "Artist name (default: file tag)")
	timeout := addCmd.Duration("timeout", 5*time.Minute, "Processing timeout")
	addCmd.Parse(flagArgs)

	if audioPath == "" {
		audioPath = addCmd.Arg(0)
	}
	if audioPath == "" {
		fmt.Println("Usage: acousticdna add <audio_file> [-title <title>] [-artist <artist>]")
		os.Exit(1)
	}

	svc := mustService()
	defer svc.Close()

	fmt.Println("🎵 Processing audio file...")

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	trackID, err := svc.AddTrack(ctx, audioPath, *title, *artist)
	if err != nil {
		fmt.Printf("\n❌ Failed to add track: %v\n", err)
		log.Errorf("AddTrack failed: %v", err)
		os.Exit(1)
	}

	track, err := svc.GetTrack(trackID)
	if err != nil {
		log.Warnf("Added track %s but could not read it back: %v", trackID, err)
		return
	}

	fmt.Println("\n✅ Successfully added track to the index!")
	fmt.Printf("   ID:      %s\n", track.ID)
	fmt.Printf("   Title:   %s\n", track.Title)
	fmt.Printf("   Artist:  %s\n", track.Artist)
}

func handleMatch(args []string) {
	log := logger.GetLogger()

	if len(args) < 1 {
		fmt.Println("Usage: acousticdna match <audio_file>")
		os.Exit(1)
	}
	audioPath := args[0]

	svc := mustService()
	defer svc.Close()

	fmt.Println("🔍 Analyzing audio file...")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	results, err := svc.MatchFile(ctx, audioPath)
	if err != nil {
		fmt.Printf("\n❌ Failed to match: %v\n", err)
		log.Errorf("MatchFile failed: %v", err)
		os.Exit(1)
	}

	if len(results) == 0 {
		fmt.Println("\n❌ No matches found in the index")
		return
	}

	fmt.Printf("\n✅ Found %d match(es)!\n\n", len(results))

	maxDisplay := min(10, len(results))
	for i, result := range results[:maxDisplay] {
		fmt.Printf("%d. \"%s\" by %s\n", i+1, result.Title, result.Artist)
		fmt.Printf("   Score: %d | Confidence: %.1f%% | Offset: %dms\n\n",
			result.Score, result.Confidence, result.OffsetMs)
	}
	if len(results) > maxDisplay {
		fmt.Printf("... and %d more matches\n", len(results)-maxDisplay)
	}
}

func handleList() {
	log := logger.GetLogger()

	svc := mustService()
	defer svc.Close()

	tracks, err := svc.ListTracks()
	if err != nil {
		fmt.Printf("❌ Failed to list tracks: %v\n", err)
		log.Errorf("ListTracks failed: %v", err)
		os.Exit(1)
	}

	if len(tracks) == 0 {
		fmt.Println("\n📭 No tracks in the index")
		return
	}

	fmt.Printf("\n📚 Found %d track(s):\n\n", len(tracks))
	for i, track := range tracks {
		fmt.Printf("%d. \"%s\" by %s (ID: %s)\n", i+1, track.Title, track.Artist, track.ID)
		if track.DurationMs > 0 {
			duration := track.DurationMs / 1000
			fmt.Printf("   Duration: %d:%02d\n", duration/60, duration%60)
		}
		fmt.Println()
	}
}

func handleDelete(args []string) {
	log := logger.GetLogger()

	if len(args) < 1 {
		fmt.Println("Usage: acousticdna delete <track_id | title>")
		os.Exit(1)
	}
	query := strings.Join(args, " ")

	svc := mustService()
	defer svc.Close()

	tracks, err := svc.ListTracks()
	if err != nil {
		fmt.Printf("❌ Failed to list tracks: %v\n", err)
		log.Errorf("ListTracks failed: %v", err)
		os.Exit(1)
	}

	track, err := resolveTrack(tracks, query)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		log.Warnf("Track %q not resolved: %v", query, err)
		os.Exit(1)
	}

	if err := svc.DeleteTrack(track.ID); err != nil {
		fmt.Printf("❌ Failed to delete track: %v\n", err)
		log.Errorf("DeleteTrack failed: %v", err)
		os.Exit(1)
	}

	fmt.Printf("\n✅ Successfully deleted track:\n")
	fmt.Printf("   ID:     %s\n", track.ID)
	fmt.Printf("   Title:  %s\n", track.Title)
	fmt.Printf("   Artist: %s\n", track.Artist)
}

func printUsage() {
	fmt.Println("acousticdna - audio fingerprinting and live stream recognition")
	fmt.Println("\nGlobal Options:")
	fmt.Println("  -db <path>         Path to SQLite database (env: ACOUSTIC_DB_PATH)")
	fmt.Println("  -temp <dir>        Temporary directory for audio conversion (env: ACOUSTIC_TEMP_DIR)")
	fmt.Println("  -rate <hz>         Index sample rate (default: 11025)")
	fmt.Println("  -log-level <lvl>   debug, info, warn or error (env: LOG_LEVEL)")
	fmt.Println("\nUsage:")
	fmt.Println("  acousticdna [global-options] add <audio_file> [-title <title>] [-artist <artist>]")
	fmt.Println("  acousticdna [global-options] match <audio_file>")
	fmt.Println("  acousticdna [global-options] listen <input> [listen-options]")
	fmt.Println("  acousticdna [global-options] list")
	fmt.Println("  acousticdna [global-options] delete <track_id | title>")
	fmt.Println("\nListen Options:")
	fmt.Println("  -config <file>     YAML session file; flags below override it")
	fmt.Println("  -stride <n>        Overlap carried between windows, in samples")
	fmt.Println("  -window <n>        Nominal analysis window size, in samples")
	fmt.Println("  -votes <n>         Minimum aligned hashes for a raw match")
	fmt.Println("  -seconds <s>       Matched audio needed before a track is reported")
	fmt.Println("  -wait <d>          Chunk wait before re-checking for shutdown")
	fmt.Println("  -queue <n>         Capacity of the chunk queue")
	fmt.Println("  -no-flush          Drop tracks still matching when the stream ends")
	fmt.Println("  -chunk <d>         Capture chunk duration (default: 500ms)")
	fmt.Println("  -decoder <name>    ffmpeg (any input) or wav (PCM WAV at the index rate)")
	fmt.Println("  -realtime          Pace file input at playback speed")
	fmt.Println("  -metrics <addr>    Serve Prometheus metrics on addr, e.g. :9090")
	fmt.Println("\nExamples:")
	fmt.Println("  acousticdna add song.mp3 -title \"Song\" -artist \"Artist\"")
	fmt.Println("  acousticdna listen -realtime -seconds 5 radio-dump.mp3")
	fmt.Println("  acousticdna listen http://stream.example.com/live -metrics :9090")
}
