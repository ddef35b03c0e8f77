package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"gopkg.in/natefinch/lumberjack.v2"

	"scenestream/api"
	"scenestream/config"
	"scenestream/handlers"
	"scenestream/services/history"
	"scenestream/services/library"
	"scenestream/services/transcode"
)

func main() {

	portOverride := flag.Int("port", 0, "override server port from config")
	skipScan := flag.Bool("no-scan", false, "skip the media directory scan at startup")
	flag.Parse()

	fmt.Println("scenestream starting...")

	// Determine config path (env or default)
	configPath := os.Getenv("SCENESTREAM_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("cache", "settings.json")
	}

	// Init config manager and load settings (creates defaults if missing)
	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	// Set up file logging with rotation
	if settings.Log.File != "" {
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   settings.Log.File,
				MaxSize:    settings.Log.MaxSize,
				MaxBackups: settings.Log.MaxBackups,
				MaxAge:     settings.Log.MaxAge,
				Compress:   settings.Log.Compress,
			}
			// Standard log goes to both console and file
			multiWriter := io.MultiWriter(os.Stdout, fileWriter)
			log.SetOutput(multiWriter)
			log.SetFlags(log.LstdFlags | log.Lshortfile)
			log.Printf("Logging to file: %s", settings.Log.File)
		}
	}

	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}

	// Scene catalog
	librarySvc, err := library.NewService(settings.Library.DatabasePath, settings.Library.MediaDirectory, settings.Transcode.FFprobePath)
	if err != nil {
		log.Fatalf("failed to open scene catalog: %v", err)
	}
	defer librarySvc.Close()

	if !*skipScan {
		scanCtx, scanCancel := context.WithTimeout(context.Background(), 10*time.Minute)
		added, err := librarySvc.Scan(scanCtx)
		scanCancel()
		if err != nil {
			log.Printf("Warning: startup scan failed: %v", err)
		} else if added > 0 {
			fmt.Printf("Indexed %d new scene(s)\n", added)
		}
	}

	// Transcoding session manager
	transcoder, err := transcode.NewManager(transcode.Config{
		BaseDir:        settings.Transcode.SegmentDirectory,
		FFmpegPath:     settings.Transcode.FFmpegPath,
		SegmentSeconds: settings.Transcode.SegmentSeconds,
		IdleTimeout:    time.Duration(settings.Transcode.IdleTimeoutSeconds) * time.Second,
		ReapInterval:   time.Duration(settings.Transcode.ReapIntervalSeconds) * time.Second,
	})
	if err != nil {
		log.Fatalf("failed to start transcoding manager: %v", err)
	}

	// Watch progress lives next to the catalog database
	historySvc, err := history.NewService(filepath.Dir(settings.Library.DatabasePath))
	if err != nil {
		log.Fatalf("failed to open watch history: %v", err)
	}

	playbackHandler := handlers.NewPlaybackHandler(librarySvc, transcoder)
	progressHandler := handlers.NewProgressHandler(historySvc)

	r := mux.NewRouter()
	api.Register(r, playbackHandler, progressHandler)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	fmt.Printf("Server starting on %s\n", addr)

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // No write timeout for streaming
		IdleTimeout:  120 * time.Second,
	}

	// Setup graceful shutdown
	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdownChan
	log.Println("Shutdown signal received, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Kill encoder sessions before the listener closes so no ffmpeg
	// processes outlive the server.
	transcoder.Shutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Shutdown complete")
}
