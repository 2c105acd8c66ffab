package config

import (
	"log"

	"github.com/caarlos0/env/v6"
)

type StorageBackend string

const (
	StorageFile   StorageBackend = "file"
	StoragePebble StorageBackend = "pebble"
	StorageSQLite StorageBackend = "sqlite"
	StorageMemory StorageBackend = "memory"
)

type ReplyProvider string

const (
	ReplyScripted ReplyProvider = "scripted"
	ReplyOpenAI   ReplyProvider = "openai"
	ReplyYandex   ReplyProvider = "yandex"
)

type Config struct {
	// Storage
	StorageBackend StorageBackend `env:"STORAGE_BACKEND" envDefault:"file"`
	StoragePath    string         `env:"STORAGE_PATH" envDefault:"data/widget.json"`
	ChatKey        string         `env:"CHAT_STORAGE_KEY" envDefault:"pidima-chat"`
	ThemeKey       string         `env:"THEME_STORAGE_KEY" envDefault:"pidima-theme"`

	// Logs
	LogFilePath        string `env:"LOG_FILE_PATH" envDefault:"logs/widget.log"`
	TranscriptFilePath string `env:"TRANSCRIPT_FILE_PATH" envDefault:"logs/transcript.jsonl"`

	// HTML rendition of the chat log, rewritten on every change. Empty disables it.
	HTMLSnapshotPath string `env:"HTML_SNAPSHOT_PATH" envDefault:"data/chat.html"`

	// Replies
	ReplyProvider    ReplyProvider `env:"REPLY_PROVIDER" envDefault:"scripted"`
	OpenAIAPIKey     string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string        `env:"OPENAI_BASE_URL"`
	OpenAIModel      string        `env:"OPENAI_MODEL" envDefault:"gpt-3.5-turbo"`
	YandexOAuthToken string        `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID   string        `env:"YANDEX_FOLDER_ID"`
	SystemPromptPath string        `env:"SYSTEM_PROMPT_PATH" envDefault:"prompts/system_prompt.txt"`

	// OpenRouter (optional)
	OpenRouterReferrer string `env:"OPENROUTER_REFERRER"`
	OpenRouterTitle    string `env:"OPENROUTER_TITLE"`

	// Reports and metrics
	ReportCron  string `env:"REPORT_CRON" envDefault:"0 21 * * *"`
	MetricsAddr string `env:"METRICS_ADDR"`

	// Appearance: "light" or "dark" forces the default theme used when none is stored.
	PreferredScheme string `env:"CHAT_PREFERRED_SCHEME"`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func New() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}
