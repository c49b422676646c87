// ABOUTME: Entry point for the Play development backend
// ABOUTME: Parses CLI flags and serves the directory, lobby and game endpoints in memory
package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/play-go/internal/devserver"
	"github.com/Resonate-Protocol/play-go/internal/logging"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

var (
	port        = flag.Int("port", 8927, "HTTP and websocket port")
	name        = flag.String("name", "", "Server friendly name (default: hostname-play-devserver)")
	appID       = flag.String("app-id", "", "Only accept this application id (default: any)")
	gameVersion = flag.String("game-version", "", "Only accept clients of this game version (default: any)")
	tokenTTL    = flag.Duration("token-ttl", time.Hour, "Session token lifetime")
	logFile     = flag.String("log-file", "play-devserver.log", "Log file path")
	debug       = flag.Bool("debug", false, "Enable debug logging")
	noMDNS      = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
)

func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("error loading .env: %v", err)
	}

	profile := logging.ProfileRuntime
	if *debug {
		profile = logging.ProfileTest
	}
	logger, err := logging.New(profile, logging.Options{File: *logFile, Console: true})
	if err != nil {
		log.Fatalf("error creating logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	serverName := *name
	if serverName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		serverName = fmt.Sprintf("%s-play-devserver", hostname)
	}

	logger.Info("starting play devserver",
		zap.String("name", serverName),
		zap.Int("port", *port),
		zap.String("log_file", *logFile))
	logger.Info("press Ctrl-C to stop")

	srv := devserver.New(devserver.Config{
		Port:        *port,
		Name:        serverName,
		AppID:       *appID,
		GameVersion: *gameVersion,
		TokenTTL:    *tokenTTL,
		EnableMDNS:  !*noMDNS,
		Logger:      logger,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		srv.Stop()
	}()

	if err := srv.Start(); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
