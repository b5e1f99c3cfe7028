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

	"github.com/rvhout/shrync/internal/api"
	"github.com/rvhout/shrync/internal/config"
	"github.com/rvhout/shrync/internal/ffmpeg"
	"github.com/rvhout/shrync/internal/jobs"
	"github.com/rvhout/shrync/internal/logger"
	"github.com/rvhout/shrync/internal/scan"
	"github.com/rvhout/shrync/internal/store"
	"github.com/rvhout/shrync/internal/supervisor"
	"github.com/rvhout/shrync/internal/watch"
)

func main() {
	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "/config/shrync.yml"
	}
	configPath := flag.String("config", defaultConfig, "pad naar configuratiebestand")
	port := flag.Int("port", 0, "HTTP poort (overschrijft config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuratie laden mislukt: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Port = *port
	}

	logger.Init(cfg.LogLevel)
	logger.Info("shrync start", "version", cfg.Version, "gpu_mode", cfg.GPUMode, "watch_mode", cfg.WatchMode)

	if cfg.CacheDir != "" {
		if err := os.MkdirAll(cfg.CacheDir, 0755); err != nil {
			logger.Error("cache map aanmaken mislukt", "path", cfg.CacheDir, "error", err)
			os.Exit(1)
		}
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Error("database openen mislukt", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	prober := ffmpeg.NewProber(cfg.FFprobePath)
	transcoder := ffmpeg.NewTranscoder(cfg.FFmpegPath)

	active := jobs.NewActiveJobs()
	flags := jobs.NewFlags()
	runner := jobs.NewRunner(st, cfg, prober, jobs.NewFFmpegStarter(transcoder), active)
	pool := jobs.NewPool(st, runner, active, flags)

	scanner := scan.NewScanner(st, cfg, prober, scan.NewStatusBoard())
	watchers := watch.NewManager(st, cfg, prober)

	sup := supervisor.New(st, cfg, scanner, watchers, pool)
	if err := sup.Recover(); err != nil {
		logger.Error("herstel mislukt", "error", err)
		os.Exit(1)
	}

	handler := api.NewHandler(st, cfg, scanner, active, flags, sup)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handler.Router(),
	}

	sup.Start()

	go func() {
		logger.Info("http server luistert", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server gestopt", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("afsluiten")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("http server afsluiten mislukt", "error", err)
	}
	sup.Stop()
}
