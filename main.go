package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sublate/backend/internal/api"
	"github.com/sublate/backend/internal/auth"
	"github.com/sublate/backend/internal/config"
	"github.com/sublate/backend/internal/db"
	"github.com/sublate/backend/internal/job"
	"github.com/sublate/backend/internal/pipeline"
	"github.com/sublate/backend/internal/retry"
	"github.com/sublate/backend/internal/subtitle"
	"github.com/sublate/backend/internal/subtitle/transcribe"
	"github.com/sublate/backend/internal/subtitle/translate"
	"github.com/sublate/backend/internal/vad"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ensure data directories exist
	os.MkdirAll(cfg.DataPath, 0755)
	os.MkdirAll(cfg.SubtitlePath, 0755)

	// Initialize database
	database, err := db.NewSQLite(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	// Ensure admin user exists
	if err := database.EnsureAdmin(cfg.AdminUsername, cfg.AdminPassword); err != nil {
		log.Fatalf("Failed to create admin user: %v", err)
	}
	log.Printf("Admin user ensured: %s", cfg.AdminUsername)

	// Initialize JWT service
	jwtService := auth.NewJWTService(cfg.JWTSecret, 24*time.Hour)

	// Build the subtitle pipeline and register whichever engines have
	// credentials, from settings or the environment.
	svc := pipeline.NewService(pipeline.Config{
		MediaPath:              cfg.MediaPath,
		SubtitlePath:           cfg.SubtitlePath,
		DefaultSpeechEngine:    cfg.SpeechEngine,
		DefaultTranslateEngine: cfg.TranslateEngine,
		DefaultTargetLang:      cfg.TargetLanguage,
		VAD:                    vad.DefaultConfig(),
		Assemble:               subtitle.DefaultAssembleConfig(),
		Transcribe: transcribe.Config{
			Policy: retry.Policy{Attempts: 3, Base: 2 * time.Second, Max: 30 * time.Second, Jitter: 0.3, CallTimeout: 5 * time.Minute},
		},
		Translate: translate.Batcher{
			Policy: retry.Policy{Attempts: 3, Base: 2 * time.Second, Max: 30 * time.Second, Jitter: 0.3, CallTimeout: 2 * time.Minute},
		},
	})
	closeEngines := registerEngines(svc, database, cfg)

	// Job queue: handlers first, then resume interrupted runs
	queue := job.NewJobQueue(database.DB())
	queue.RegisterHandler(job.JobGenerate, svc.HandleGenerate)
	queue.RegisterHandler(job.JobTranslate, svc.HandleTranslate)
	queue.Resume()

	// Create router
	router := api.NewRouter(database, jwtService, cfg, queue, svc)

	// Start server
	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("Starting server on %s", addr)
	log.Printf("Media path: %s", cfg.MediaPath)
	log.Printf("Subtitle path: %s", cfg.SubtitlePath)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down...")
		queue.Stop()
		closeEngines()
		database.Close()
		os.Exit(0)
	}()

	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// registerEngines wires every speech and translation backend whose
// credentials are present. A stored setting wins over its environment
// variable; engines configured after boot need a restart.
func registerEngines(svc *pipeline.Service, database *db.Database, cfg *config.Config) (cleanup func()) {
	var closers []func() error

	if url := database.GetSetting("whisper_url", cfg.WhisperURL); url != "" {
		svc.RegisterSpeechEngine("whispercpp", transcribe.NewWhisperCppClient(url))
	}

	if key := database.GetSetting("openai_api_key", cfg.OpenAIAPIKey); key != "" {
		svc.RegisterSpeechEngine("openai", transcribe.NewOpenAIWhisperClient(key, cfg.OpenAIBaseURL))
		svc.RegisterTranslator("openai", translate.NewOpenAITranslator(key, cfg.OpenAIBaseURL))
	}

	if cfg.GoogleCloudProject != "" {
		rec, err := transcribe.NewGoogleRecognizer(context.Background(), transcribe.GoogleRecognizerConfig{
			ProjectID:       cfg.GoogleCloudProject,
			Location:        cfg.GoogleCloudLocation,
			Model:           cfg.GoogleSpeechModel,
			CredentialsJSON: cfg.GoogleCloudCredentialsJSON,
		})
		if err != nil {
			log.Printf("[main] Google speech engine unavailable: %v", err)
		} else {
			svc.RegisterSpeechEngine("google", rec)
			closers = append(closers, rec.Close)
		}
	}

	if key := database.GetSetting("gemini_api_key", cfg.GeminiAPIKey); key != "" {
		svc.RegisterTranslator("gemini", translate.NewGeminiTranslator(key, func() string {
			return database.GetSetting("translate_model", "")
		}))
	}

	if key := database.GetSetting("deepl_api_key", cfg.DeepLAPIKey); key != "" {
		svc.RegisterTranslator("deepl", translate.NewDeepLTranslator(key))
	}

	return func() {
		for _, c := range closers {
			c()
		}
	}
}
