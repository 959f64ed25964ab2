package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/medigo-health/platform/pkg/common/config"
	"github.com/medigo-health/platform/pkg/common/database"
	"github.com/medigo-health/platform/pkg/common/kafka"
	"github.com/medigo-health/platform/pkg/common/logger"
	"github.com/medigo-health/platform/pkg/common/middleware"
	"github.com/medigo-health/platform/pkg/notifications"
	"github.com/medigo-health/platform/pkg/patients"
	"github.com/medigo-health/platform/pkg/recordstore"
	"github.com/medigo-health/platform/pkg/risk"
)

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to database")
	}

	store := recordstore.NewStore(db)
	if err := store.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("Failed to migrate clinical document tables")
	}

	patientRepo := patients.NewRepository(db)
	if err := patientRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("Failed to migrate patient tables")
	}

	producer := kafka.NewProducer(cfg.AdminAlertTopic)
	defer producer.Close()

	notifier := notifications.NewNotifier(db, producer)
	if err := notifier.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("Failed to migrate notification tables")
	}

	// Model artifacts load once; the registry is immutable shared state.
	registry, err := risk.LoadRegistry(cfg.ModelManifest)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to load model artifacts")
	}

	redisClient := database.GetRedis()

	patientService := patients.NewService(patientRepo, notifier)
	assembler := risk.NewAssembler(risk.NewStoreReader(patientRepo, store))
	explainer := risk.NewExplainer(cfg.TopFeatureCount)
	riskService := risk.NewService(assembler, registry, explainer, store, redisClient, cfg.PredictionCacheTTL)

	router := mux.NewRouter()
	router.Use(middleware.Recovery, middleware.Logging)
	router.HandleFunc("/health", healthCheck).Methods(http.MethodGet)
	patients.NewHTTPHandler(patientService, cfg.MaxRequestBody).Register(router)
	recordstore.NewHTTPHandler(store, cfg.MaxRequestBody).Register(router)
	risk.NewHTTPHandler(riskService).Register(router)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Risk Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Risk Service...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	if err := database.CloseRedis(); err != nil {
		logger.Log.WithError(err).Error("Failed to close Redis client")
	}
	if err := database.ClosePostgres(); err != nil {
		logger.Log.WithError(err).Error("Failed to close PostgreSQL connection")
	}

	logger.Log.Info("Risk Service stopped")
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}
