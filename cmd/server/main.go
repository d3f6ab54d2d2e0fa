package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mumehta/MeetScribe/cmd"
	"github.com/mumehta/MeetScribe/internal/api"
	"github.com/mumehta/MeetScribe/internal/audio"
	"github.com/mumehta/MeetScribe/internal/config"
	"github.com/mumehta/MeetScribe/internal/dispatch"
	"github.com/mumehta/MeetScribe/internal/notes"
	"github.com/mumehta/MeetScribe/internal/pipeline"
	"github.com/mumehta/MeetScribe/internal/storage"
	"github.com/mumehta/MeetScribe/internal/tasks"
	"github.com/mumehta/MeetScribe/internal/transcribe"
)

type ServerConfig struct {
	APIPort           string `env:"API_PORT" envDefault:"8001"`
	UploadDir         string `env:"UPLOAD_DIR" envDefault:"uploads"`
	FinalOutputDir    string `env:"FINAL_OUTPUT_DIR" envDefault:"finaloutput"`
	TranscriberURL    string `env:"TRANSCRIBER_URL" envDefault:"http://localhost:8501"`
	ConfigDefaults    string `env:"CONFIG_DEFAULTS_FILE" envDefault:""`
	WorkerConcurrency int    `env:"CONCURRENCY" envDefault:"2"`
	QueueCapacity     int    `env:"QUEUE_CAPACITY" envDefault:"100"`
	MaxUploadBytes    int64  `env:"MAX_UPLOAD_BYTES" envDefault:"2147483648"`

	// When set, finished notes documents go to S3 instead of FinalOutputDir.
	OutputS3Bucket    string `env:"OUTPUT_S3_BUCKET" envDefault:""`
	OutputS3Prefix    string `env:"OUTPUT_S3_PREFIX" envDefault:"notes"`
	S3EndpointURL     string `env:"S3_ENDPOINT_URL" envDefault:""`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID" envDefault:""`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" envDefault:""`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`
}

func main() {
	log.Println("Starting API Server...")

	cmd.LoadEnvFile()

	var cfg ServerConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	resolver, err := config.NewResolver(cfg.ConfigDefaults)
	if err != nil {
		log.Fatalf("Failed to load config defaults: %v", err)
	}

	var documents storage.DocumentStore
	if cfg.OutputS3Bucket != "" {
		documents, err = storage.NewS3Store(&storage.S3Config{
			S3EndpointURL:     cfg.S3EndpointURL,
			S3AccessKeyID:     cfg.S3AccessKeyID,
			S3SecretAccessKey: cfg.S3SecretAccessKey,
			S3Region:          cfg.S3Region,
			Bucket:            cfg.OutputS3Bucket,
			Prefix:            cfg.OutputS3Prefix,
		})
		if err != nil {
			log.Fatalf("Failed to create S3 store: %v", err)
		}
	} else {
		documents = storage.NewLocalStore(cfg.FinalOutputDir)
	}

	registry := tasks.NewRegistry()
	queue := dispatch.NewInMemoryQueue(cfg.QueueCapacity)
	defer queue.Close()

	executor := pipeline.NewExecutor(registry, pipeline.Collaborators{
		Preparer:    audio.NewFFmpegPreparer(audio.NewExecRunner()),
		Transcriber: transcribe.NewHTTPTranscriber(cfg.TranscriberURL),
		Notes:       notes.NewLLMGenerator(notes.DefaultLLMFactory),
		Documents:   documents,
	})

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	worker := dispatch.NewWorker(queue, executor, cfg.WorkerConcurrency)
	worker.Start(workerCtx)

	orchestrator := pipeline.NewOrchestrator(registry, resolver, queue)

	// --- Chi Router Setup ---
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	apiHandler := api.NewBackendService(orchestrator, registry, cfg.UploadDir, cfg.MaxUploadBytes)
	apiHandler.AddRoutes(r)

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: r,
	}

	// Goroutine for graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	log.Printf("API server listening on port %s", cfg.APIPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %s: %v\n", cfg.APIPort, err)
	}

	log.Println("Server stopped.")
}
