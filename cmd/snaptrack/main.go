package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/snaptrack/internal/config"
	"github.com/snaptrack/internal/infrastructure/geoapify"
	"github.com/snaptrack/internal/pkg/logger"
	"github.com/snaptrack/internal/repository/cache"
	"github.com/snaptrack/internal/repository/file"
	"github.com/snaptrack/internal/usecase"
	"github.com/snaptrack/internal/usecase/dto"
)

func main() {
	inputPath := flag.String("input", "", "path to the input GeoJSON track")
	outputDir := flag.String("output", "", "output directory (default: next to the input file)")
	flag.Parse()

	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "usage: snaptrack -input track.geojson [-output dir]")
		os.Exit(2)
	}

	// 1. Load configuration (fails before any network call)
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting track snapping",
		zap.String("input", *inputPath),
		zap.String("mode", cfg.Snap.Mode),
		zap.Int("max_batch_points", cfg.Snap.MaxBatchPoints),
		zap.Int("rate_limit_per_min", cfg.Snap.RateLimitPerMin))

	// 3. Optional snap-result cache
	cacheRepo := cache.NewNoopSnapCache()
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(&cfg.Redis, log)
		if err != nil {
			// The cache only saves API credits, it never gates the run
			log.Warn("Redis unavailable, continuing without cache", zap.Error(err))
		} else {
			defer func() {
				if err := redisClient.Close(); err != nil {
					log.Error("Failed to close Redis connection", zap.Error(err))
				}
			}()
			cacheRepo = cache.NewSnapCacheRepository(redisClient.Client(), cfg.Cache.SnapTTL, log)
		}
	}

	// 4. Initialize repositories and pipeline stages
	trackRepo := file.NewTrackRepository(cfg.Output.Suffix, log)
	snapRepo := geoapify.NewClient(&cfg.Geoapify, &cfg.Snap, log)
	batcher := usecase.NewBatcher(cfg.Snap.MaxBatchPoints)
	reassembler := usecase.NewReassembler(log)

	uc := usecase.NewSnapTrackUseCase(
		trackRepo,
		snapRepo,
		cacheRepo,
		batcher,
		reassembler,
		cfg.Snap.Mode,
		log,
	)

	// 5. Cancel the run on SIGINT/SIGTERM; the pipeline checks between batches
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Warn("Received shutdown signal, cancelling run")
		cancel()
	}()

	// 6. Run the pipeline
	resp, err := uc.Run(ctx, dto.SnapRunRequest{
		InputPath: *inputPath,
		OutputDir: *outputDir,
	})
	if err != nil {
		log.Error("Run failed", zap.Error(err))
		os.Exit(1)
	}

	// Output path on stdout so shells and launchers can pick it up
	fmt.Println(resp.OutputPath)
}
