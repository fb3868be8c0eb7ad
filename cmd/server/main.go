package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"presence-gate/config"
	"presence-gate/internal/api"
	"presence-gate/internal/api/handlers"
	"presence-gate/internal/api/middleware"
	"presence-gate/internal/cleanup"
	"presence-gate/internal/core/gate"
	"presence-gate/internal/core/processor"
	"presence-gate/internal/db"
	"presence-gate/internal/db/repository"
	"presence-gate/internal/integrations/homeassistant"
	"presence-gate/internal/integrations/mqtt"
	"presence-gate/internal/integrations/opencv"
	"presence-gate/internal/integrations/opencv/debug"
	"presence-gate/internal/logger"
	"presence-gate/internal/server/sse"
	"presence-gate/internal/services"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

const defaultConfigPath = "/config/config.yaml"

// version wird beim Build per -ldflags gesetzt
var version = "dev"

func main() {
	configPath := os.Getenv("PRESENCE_GATE_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logCloser, err := logger.Init(cfg.Log)
	if err != nil {
		log.Errorf("Failed to initialize logger completely: %v", err)
	}
	defer logCloser.Close()

	log.Infof("Starting presence-gate %s", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Datenbank und Commit-Journal
	log.Info("Initializing database...")
	gdb, err := db.Initialize(cfg.DB)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close(gdb)
	repo := repository.NewSQLiteRepository(gdb)

	journal := services.NewJournalService(repo)
	journal.Start(ctx)

	cleanupService := cleanup.NewService(repo, cfg.Cleanup.RetentionDays, time.Duration(cfg.Cleanup.IntervalHours)*time.Hour)
	cleanupService.StartBackgroundCleanup(ctx)

	hub := sse.NewHub()
	go hub.Run(ctx)

	// OpenCV-Modelle
	cv, err := opencv.NewService(cfg.OpenCV)
	if err != nil {
		log.Fatalf("Failed to initialize OpenCV: %v", err)
	}
	defer cv.Close()

	// Pipeline
	similarityGate := gate.New(cv.Embedder(), cfg.Pipeline.SimilarityThreshold)
	coordinator := processor.NewCoordinator(cv.FaceDetector(), cv.PoseDetector(), nil, processor.CoordinatorOptions{
		FaceValidThreshold:   cfg.Pipeline.FaceValidThreshold,
		FaceInvalidThreshold: cfg.Pipeline.FaceInvalidThreshold,
		PoseValidThreshold:   cfg.Pipeline.PoseValidThreshold,
		PoseInvalidThreshold: cfg.Pipeline.PoseInvalidThreshold,
	})
	dispatcher := processor.NewDispatcher(coordinator, similarityGate, processor.DispatcherOptions{
		MaxAdmittedAge: cfg.Pipeline.MaxAdmittedAge,
	})
	dispatcher.AddObserver(hub)
	dispatcher.AddObserver(journal)
	if cfg.Pipeline.StartPaused {
		dispatcher.Pause()
	}

	var extraRoutes []api.RouteRegistrar
	if cfg.OpenCV.Debug.Enabled {
		debugSvc := debug.NewDebugService(cfg.OpenCV.Debug.MaxImages, opencv.JPEGEncoder(cfg.OpenCV.Debug.Quality))
		dispatcher.AddObserver(debugSvc)
		extraRoutes = append(extraRoutes, debugSvc)
	}

	// MQTT und Home Assistant
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient = mqtt.NewClient(cfg.MQTT)
		publisher := homeassistant.NewPublisher(mqttClient, cfg.MQTT)
		go publisher.Run(ctx)
		publisher.StartStatsTicker(ctx, 30*time.Second, dispatcher.Status)
		dispatcher.AddObserver(publisher)

		if cfg.MQTT.HomeAssistant.Enabled {
			discovery := homeassistant.NewDiscoveryManager(mqttClient, cfg.MQTT, version)
			mqttClient.OnConnect(func() {
				if err := discovery.Register(); err != nil {
					log.Errorf("Home Assistant discovery failed: %v", err)
				}
			})
		}
		if err := mqttClient.Start(); err != nil {
			log.Errorf("Failed to start MQTT client: %v", err)
		}
	}

	dispatcher.Start(ctx)

	// Kamera
	var camera *opencv.CameraSource
	cameraDone := make(chan struct{})
	if cfg.Camera.Enabled && cfg.OpenCV.Enabled {
		camera, err = opencv.OpenCamera(cfg.Camera)
		if err != nil {
			log.Errorf("Camera unavailable, waiting for API use only: %v", err)
			close(cameraDone)
		} else {
			go func() {
				defer close(cameraDone)
				if err := camera.Run(ctx, dispatcher); err != nil {
					log.Errorf("Camera stopped: %v", err)
				}
			}()
		}
	} else {
		close(cameraDone)
	}

	// HTTP-Server
	translator, err := middleware.NewTranslator(middleware.I18nConfig{DefaultLanguage: cfg.I18n.DefaultLanguage})
	if err != nil {
		log.Fatalf("Failed to load translations: %v", err)
	}
	if log.GetLevel() < log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(cfg.Server, translator,
		handlers.NewAPIHandler(dispatcher, repo, cfg.Pipeline.CommitRequiresPresence),
		handlers.NewEventHandler(hub),
		extraRoutes...,
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infof("HTTP server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("HTTP server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnf("HTTP server shutdown: %v", err)
	}

	<-cameraDone
	if camera != nil {
		camera.Close()
	}
	dispatcher.Stop()
	journal.Wait()
	cleanupService.StopBackgroundCleanup()
	if mqttClient != nil {
		mqttClient.Stop()
	}
	log.Info("Shutdown complete")
}
