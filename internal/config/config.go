package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config is the process configuration, parsed from the environment. API
// keys set here take precedence over the ones stored in the settings table.
type Config struct {
	Port      int    `env:"PORT" envDefault:"8080"`
	MediaPath string `env:"MEDIA_PATH" envDefault:"/media"`
	DataPath  string `env:"DATA_PATH" envDefault:"/data"`

	// DBPath and SubtitlePath default under DataPath when unset.
	DBPath       string `env:"DB_PATH"`
	SubtitlePath string `env:"SUBTITLE_PATH"`

	JWTSecret     string `env:"JWT_SECRET"`
	AdminUsername string `env:"ADMIN_USERNAME" envDefault:"admin"`
	AdminPassword string `env:"ADMIN_PASSWORD" envDefault:"admin"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`

	// Speech engines.
	WhisperURL                 string `env:"WHISPER_URL"`
	GoogleCloudProject         string `env:"GOOGLE_CLOUD_PROJECT"`
	GoogleCloudLocation        string `env:"GOOGLE_CLOUD_LOCATION" envDefault:"global"`
	GoogleCloudCredentialsJSON string `env:"GOOGLE_CLOUD_CREDENTIALS_JSON"`
	GoogleSpeechModel          string `env:"GOOGLE_CLOUD_SPEECH_MODEL"`

	// OpenAI serves both transcription and translation.
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`

	// Translation engines.
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	DeepLAPIKey  string `env:"DEEPL_API_KEY"`

	// Pipeline defaults, each overridable per job.
	SpeechEngine    string `env:"SPEECH_ENGINE"`
	TranslateEngine string `env:"TRANSLATE_ENGINE"`
	TargetLanguage  string `env:"TARGET_LANGUAGE" envDefault:"Simplified Chinese"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.DBPath == "" {
		cfg.DBPath = cfg.DataPath + "/sublate.db"
	}
	if cfg.SubtitlePath == "" {
		cfg.SubtitlePath = cfg.DataPath + "/subtitles"
	}

	if cfg.JWTSecret == "" {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("generate JWT secret: %w", err)
		}
		cfg.JWTSecret = hex.EncodeToString(b)
		log.Println("WARNING: JWT_SECRET not set, using random secret. Sessions will not survive restarts. Set JWT_SECRET env var for persistent sessions.")
	}

	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	} else {
		origins := cfg.CORSOrigins[:0]
		for _, o := range cfg.CORSOrigins {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.CORSOrigins = origins
	}

	return &cfg, nil
}
