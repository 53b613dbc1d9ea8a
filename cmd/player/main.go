// Package main provides the player entry point.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/yusa21/tunedeck/internal/app/advisor"
	"github.com/yusa21/tunedeck/internal/app/graph"
	"github.com/yusa21/tunedeck/internal/app/loader"
	"github.com/yusa21/tunedeck/internal/app/player"
	"github.com/yusa21/tunedeck/internal/app/queue"
	appsync "github.com/yusa21/tunedeck/internal/app/sync"
	"github.com/yusa21/tunedeck/internal/domain/track"
	"github.com/yusa21/tunedeck/internal/infra/audio"
	"github.com/yusa21/tunedeck/internal/infra/catalog"
	"github.com/yusa21/tunedeck/internal/infra/config"
	"github.com/yusa21/tunedeck/internal/infra/logger"
	"github.com/yusa21/tunedeck/internal/infra/spotify"
	"github.com/yusa21/tunedeck/internal/infra/store"
	"github.com/yusa21/tunedeck/internal/platform/media"
)

var (
	app        = kingpin.New("tunedeck", "tunedeck music player")
	configPath = app.Flag("config", "Path to config file").Default("config/player.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()
	headless   = app.Flag("headless", "Run without a sound device").Bool()

	// check-config command
	checkConfigCmd = app.Command("check-config", "Validate the config file and exit")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the player (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	if command == checkConfigCmd.FullCommand() {
		fmt.Println("Config OK")
		return
	}

	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Player error: %v", err)
		os.Exit(1)
	}
}

// run executes the main player logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	catalogClient, err := catalog.New(catalog.Config{
		BaseURL:   cfg.Catalog.BaseURL,
		Timeout:   time.Duration(cfg.Catalog.TimeoutSec) * time.Second,
		RateLimit: cfg.Catalog.RateLimit,
	})
	if err != nil {
		return fmt.Errorf("failed to create catalog client: %w", err)
	}

	element, newContext, err := buildPlatform(cfg)
	if err != nil {
		return err
	}

	engine := queue.NewEngine(queue.Config{
		DepletionThreshold: cfg.Queue.DepletionThreshold,
		CleanInterval:      time.Duration(cfg.Queue.CleanIntervalSec) * time.Second,
		EventBuffer:        cfg.Queue.EventBuffer,
	})

	ld := loader.New(element, catalogClient, player.CatalogClassifier(), loader.Config{
		MaxAttempts:  cfg.Loader.MaxAttempts,
		BaseDelay:    time.Duration(cfg.Loader.BaseDelayMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Loader.MaxDelayMs) * time.Millisecond,
		ReadyTimeout: time.Duration(cfg.Loader.ReadyTimeoutSec) * time.Second,
	})

	registry := graph.NewRegistry(newContext)

	adv, err := buildAdvisor(ctx, cfg, engine, catalogClient)
	if err != nil {
		return err
	}

	snapStore, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	syncer := appsync.NewSyncer(engine, snapStore, time.Duration(cfg.Session.DebounceMs)*time.Millisecond)
	go syncer.Run(ctx)

	p, err := player.New(player.Deps{
		Engine:   engine,
		Loader:   ld,
		Registry: registry,
		Element:  element,
		Advisor:  adv,
		Syncer:   syncer,
		Messages: cfg.Messages,
		Notify: func(message string) {
			fmt.Println(message)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create player: %w", err)
	}
	defer p.Close()

	go p.Run(ctx)

	if err := p.Restore(ctx); err != nil {
		zlog.Warn().Msgf("Failed to restore session: %v", err)
	}

	// Command loop on stdin
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	zlog.Info().Msg("Player ready, type 'help' for commands")

	for {
		select {
		case <-sigCh:
			zlog.Info().Msg("Received shutdown signal...")
			return shutdown(p)

		case line, ok := <-lines:
			if !ok {
				return shutdown(p)
			}
			if quit := handleCommand(ctx, p, engine, catalogClient, line); quit {
				return shutdown(p)
			}
		}
	}
}

// shutdown persists the final state before exit.
func shutdown(p *player.Player) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Flush(ctx); err != nil {
		zlog.Error().Msgf("Failed to persist final state: %v", err)
	}
	zlog.Info().Msg("Player stopped")
	return nil
}

// buildPlatform selects the audio backend.
func buildPlatform(cfg *config.Config) (media.Element, func() media.Context, error) {
	if *headless {
		element := media.NewMemoryElement("headless")
		return element, func() media.Context { return media.NewMemoryContext() }, nil
	}

	element, err := audio.NewElement(audio.Config{
		SampleRate: cfg.Audio.SampleRate,
		BufferSize: time.Duration(cfg.Audio.BufferSizeMs) * time.Millisecond,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open audio device: %w", err)
	}
	return element, func() media.Context { return audio.NewContext(element) }, nil
}

// buildAdvisor wires the auto-queue provider chain, or returns nil
// when the advisor is disabled.
func buildAdvisor(ctx context.Context, cfg *config.Config, engine *queue.Engine, catalogClient *catalog.Client) (*advisor.Advisor, error) {
	if !cfg.Advisor.Enabled {
		return nil, nil
	}

	var recommender advisor.Recommender
	if cfg.Spotify.Configured() {
		client, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			RefreshToken: cfg.Spotify.RefreshToken,
			Market:       cfg.Spotify.Market,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Spotify client: %w", err)
		}
		recommender = client
	}

	chain, err := advisor.NewChainFromConfig(cfg, catalogClient, recommender)
	if err != nil {
		return nil, fmt.Errorf("failed to create advisor providers: %w", err)
	}

	supplement := func(tracks []track.Track) int {
		return engine.AddSupplemental(tracks).Added
	}
	return advisor.New(engine, supplement, chain, advisor.Config{
		Enabled:   true,
		BatchSize: cfg.Advisor.BatchSize,
	}), nil
}

// buildStore selects the session snapshot backend.
func buildStore(ctx context.Context, cfg *config.Config) (appsync.Store, error) {
	switch cfg.Session.Store {
	case "redis":
		s, err := store.NewRedisStore(ctx, store.RedisConfig{
			Addr:     cfg.Session.Redis.Addr,
			Password: cfg.Session.Redis.Password,
			DB:       cfg.Session.Redis.DB,
			Key:      cfg.Session.Redis.Key,
			TTL:      time.Duration(cfg.Session.Redis.TTLSec) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect session store: %w", err)
		}
		return s, nil
	default:
		s, err := store.NewFileStore(cfg.Session.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open session store: %w", err)
		}
		return s, nil
	}
}

// handleCommand executes one REPL command. Returns true to quit.
func handleCommand(ctx context.Context, p *player.Player, engine *queue.Engine, catalogClient *catalog.Client, line string) bool {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "help":
		printHelp()

	case "play":
		if len(fields) < 2 {
			p.Play()
			break
		}
		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			fmt.Println("usage: play [track-id]")
			break
		}
		t, err := catalogClient.GetTrack(ctx, id)
		if err != nil {
			fmt.Printf("lookup failed: %v\n", err)
			break
		}
		if err := p.PlayTrack(*t); err != nil {
			fmt.Printf("cannot play: %v\n", err)
		}

	case "pause":
		p.Pause()

	case "next":
		p.Next()

	case "prev":
		p.Previous()

	case "add":
		if len(fields) < 2 {
			fmt.Println("usage: add <track-id>...")
			break
		}
		var tracks []track.Track
		for _, raw := range fields[1:] {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				fmt.Printf("skipping %q: not a track ID\n", raw)
				continue
			}
			t, err := catalogClient.GetTrack(ctx, id)
			if err != nil {
				fmt.Printf("skipping %d: %v\n", id, err)
				continue
			}
			tracks = append(tracks, *t)
		}
		report := p.AddToQueue(tracks)
		fmt.Printf("added %d (duplicates %d, invalid %d)\n", len(report.Added), len(report.Duplicates), len(report.Invalid))

	case "queue":
		printQueue(engine)

	case "shuffle":
		fmt.Printf("shuffle: %v\n", p.ToggleShuffle())

	case "repeat":
		fmt.Printf("repeat: %s\n", p.CycleRepeatMode())

	case "volume":
		if len(fields) < 2 {
			fmt.Printf("volume: %.0f%%\n", engine.Volume()*100)
			break
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			fmt.Println("usage: volume [0-100]")
			break
		}
		p.SetVolume(v / 100)

	case "seek":
		if len(fields) < 2 {
			fmt.Println("usage: seek <seconds>")
			break
		}
		sec, err := strconv.Atoi(fields[1])
		if err != nil {
			fmt.Println("usage: seek <seconds>")
			break
		}
		p.Seek(time.Duration(sec) * time.Second)

	case "clear":
		p.ClearQueue()

	case "quit", "exit":
		return true

	default:
		fmt.Printf("unknown command %q, type 'help'\n", fields[0])
	}

	return false
}

func printQueue(engine *queue.Engine) {
	entries := engine.Queue()
	if len(entries) == 0 {
		fmt.Println("queue is empty")
		return
	}
	for i, entry := range entries {
		marker := "  "
		if i == 0 {
			marker = "> "
		}
		fmt.Printf("%s%2d. %s - %s [%s]\n", marker, i, entry.Track.Artist.Name, entry.Track.Title, entry.Source)
	}
}

func printHelp() {
	fmt.Println(`Commands:
  play [track-id]   resume, or play a track immediately
  pause             pause playback
  next / prev       move through the queue
  add <id>...       append tracks to the queue
  queue             show the queue
  shuffle           toggle shuffle
  repeat            cycle repeat mode
  volume [0-100]    show or set volume
  seek <seconds>    jump within the current track
  clear             clear upcoming tracks
  quit              save and exit`)
}
