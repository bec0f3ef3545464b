package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/camden-git/foscambackend/config"
	"github.com/camden-git/foscambackend/database"
	"github.com/camden-git/foscambackend/describer"
	"github.com/camden-git/foscambackend/handlers"
	"github.com/camden-git/foscambackend/media"
	"github.com/camden-git/foscambackend/repository"
	"github.com/camden-git/foscambackend/workers"
)

const thumbnailApiPrefix = "/api/thumbnails/"

func main() {
	crawlMode := flag.Bool("crawl", false, "run the bulk backfill crawler")
	watchMode := flag.Bool("watch", false, "run the live filesystem watcher")
	serveMode := flag.Bool("serve", false, "serve the HTTP query API")
	crawlLimit := flag.Int("crawl-limit", 0, "cap the number of files offered by the crawler (0 = no cap)")
	verifyCounters := flag.Bool("verify-counters", false, "recount camera counters, repair drift, then continue")
	rebuildStats := flag.Bool("rebuild-stats", false, "rebuild the processing_stats roll-up, then continue")
	flag.Parse()

	// with no explicit mode, run everything
	if !*crawlMode && !*watchMode && !*serveMode {
		*crawlMode, *watchMode, *serveMode = true, true, true
	}

	err := godotenv.Load()
	if err != nil {
		log.Printf("Info: No .env file found or error loading: %v", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	storagePaths := []string{cfg.ThumbnailRoot, filepath.Dir(cfg.DatabasePath)}
	for _, p := range storagePaths {
		log.Printf("Ensuring storage directory exists: %s", p)
		if err := os.MkdirAll(p, 0755); err != nil {
			log.Fatalf("FATAL: Failed to create storage directory %s: %v", p, err)
		}
	}

	gormDB, err := database.InitGormDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database: %v", err)
	}
	if err := database.AutoMigrateModels(gormDB); err != nil {
		log.Fatalf("FATAL: Failed to migrate database: %v", err)
	}
	if err := database.SeedAlertTypes(gormDB); err != nil {
		log.Fatalf("FATAL: Failed to seed alert types: %v", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatalf("FATAL: Failed to get underlying sql.DB: %v", err)
	}
	defer sqlDB.Close()

	thumbs, err := media.NewThumbnailStore(cfg.ThumbnailRoot)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize thumbnail store: %v", err)
	}

	detectionRepo := repository.NewDetectionRepository(gormDB)
	cameraRepo := repository.NewCameraRepository(gormDB)

	if *verifyCounters {
		drifts, err := cameraRepo.VerifyCounters()
		if err != nil {
			log.Fatalf("FATAL: Counter verification failed: %v", err)
		}
		for _, drift := range drifts {
			log.Printf("Warning: camera %d counters drifted (detections %d->%d, alerts %d->%d), repaired",
				drift.CameraID, drift.StoredDetects, drift.ActualDetects, drift.StoredAlerts, drift.ActualAlerts)
		}
		log.Printf("Counter verification complete: %d cameras repaired", len(drifts))
	}
	if *rebuildStats {
		rows, err := detectionRepo.RebuildProcessingStats()
		if err != nil {
			log.Fatalf("FATAL: Stats rebuild failed: %v", err)
		}
		log.Printf("Processing stats rebuilt: %d rows", rows)
	}

	log.Printf("Loading describer (image timeout %s, video timeout %s)...", cfg.DescriberImageTimeout, cfg.DescriberVideoTimeout)
	desc := describer.NewSerialized(describer.NewDNNDescriber(cfg.DescriberNetConfigPath, cfg.DescriberNetModelPath))
	defer func() {
		if err := desc.Close(); err != nil {
			log.Printf("Warning: failed to close describer: %v", err)
		}
	}()

	log.Printf("Initializing artifact processor (Workers: %d, Queue Size: %d)...", cfg.WorkerCount, cfg.QueueCapacity)
	processor := workers.NewProcessor(cfg, detectionRepo, desc, thumbs)

	log.Printf("Watching camera tree at: %s", cfg.FoscamRoot)
	log.Printf("Using database: %s", cfg.DatabasePath)
	log.Printf("Storing video thumbnails in: %s", cfg.ThumbnailRoot)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	crawlDone := make(chan struct{})
	if *crawlMode {
		go func() {
			defer close(crawlDone)
			crawler := workers.NewCrawler(cfg.FoscamRoot, processor)
			report, err := crawler.Crawl(ctx, workers.CrawlOptions{Limit: *crawlLimit})
			if err != nil {
				log.Printf("ERROR crawl failed: %v", err)
				return
			}
			log.Printf("Crawl report: seen=%d ok=%d known=%d unrecognized=%d failed=%d",
				report.Seen, report.ProcessedOK, report.SkippedKnown, report.SkippedUnrecognized, report.Failed)
			for _, failure := range report.Failures {
				log.Printf("Crawl failure: %s", failure)
			}
		}()
	} else {
		close(crawlDone)
	}

	if *watchMode {
		watcher := workers.NewWatcher(cfg.FoscamRoot, processor, cfg.WatcherRediscovery)
		go func() {
			if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("ERROR watcher stopped: %v", err)
			}
		}()
	}

	var server *http.Server
	if *serveMode {
		server = &http.Server{
			Addr:    cfg.ListenAddr,
			Handler: buildRouter(cfg, sqlDB, detectionRepo, cameraRepo, processor),
		}
		go func() {
			log.Printf("Query API listening on %s", cfg.ListenAddr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("FATAL: HTTP server failed: %v", err)
			}
		}()
	}

	if *crawlMode && !*watchMode && !*serveMode {
		// one-shot backfill: exit once the crawl drains
		select {
		case <-crawlDone:
		case <-ctx.Done():
			<-crawlDone
		}
	} else {
		<-ctx.Done()
		log.Println("Shutdown signal received")
	}

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Warning: HTTP shutdown error: %v", err)
		}
		shutdownCancel()
	}

	processor.Stop()
	log.Println("Shutdown complete")
}

func buildRouter(cfg config.Config, sqlDB *sql.DB, detectionRepo *repository.DetectionRepository, cameraRepo *repository.CameraRepository, processor *workers.Processor) http.Handler {
	r := chi.NewRouter()

	corsOptions := cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"}, //TODO: configurable
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	corsHandler := cors.New(corsOptions)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.DebugEnabled() {
		r.Use(middleware.Logger)
	}
	r.Use(corsHandler.Handler)

	detectionHandler := &handlers.DetectionHandler{Detections: detectionRepo, Processor: processor}
	cameraHandler := &handlers.CameraHandler{Cameras: cameraRepo}
	statsHandler := &handlers.StatsHandler{DB: sqlDB}
	thumbnailHandler := &handlers.ThumbnailHandler{Detections: detectionRepo, ThumbnailDir: cfg.ThumbnailRoot}

	r.Route("/api", func(r chi.Router) {
		r.Get("/detections", detectionHandler.List)
		r.Get("/detections/stats", statsHandler.Stats)
		r.Get("/detections/heatmap", statsHandler.HeatmapDaily)
		r.Get("/detections/heatmap-hourly", statsHandler.HeatmapHourly)
		r.Get("/detections/{id}", detectionHandler.Get)
		r.Get("/detections/{id}/thumbnail", thumbnailHandler.ForDetection)
		r.Post("/detections/{id}/reprocess", detectionHandler.Reprocess)
		r.Get("/cameras", cameraHandler.List)
	})

	r.Get(thumbnailApiPrefix+"*", handlers.ThumbnailServer(cfg.ThumbnailRoot, thumbnailApiPrefix))

	return r
}
