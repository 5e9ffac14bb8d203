package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v6"
)

type LLMProvider string

const (
	ProviderOpenAI    LLMProvider = "openai"
	ProviderAnthropic LLMProvider = "anthropic"
)

type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":3000"`

	// Storage
	SQLitePath string `env:"SQLITE_PATH" envDefault:"data/concierge.db"`
	KBPath     string `env:"KB_PATH" envDefault:"data/kb"`

	// LLM settings
	LLMProvider     LLMProvider `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey    string      `env:"OPENAI_API_KEY"`
	OpenAIBaseURL   string      `env:"OPENAI_BASE_URL"`
	ReplyModel      string      `env:"REPLY_MODEL" envDefault:"gpt-5.1-chat-latest"`
	AuxModel        string      `env:"AUX_MODEL" envDefault:"gpt-4.1-mini"`
	EmbeddingModel  string      `env:"EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	AnthropicAPIKey string      `env:"ANTHROPIC_API_KEY"`
	AnthropicModel  string      `env:"ANTHROPIC_MODEL" envDefault:"claude-sonnet-4-20250514"`

	// Prompts
	SystemPromptPath string `env:"SYSTEM_PROMPT_PATH" envDefault:"prompts/system_prompt.txt"`

	// Session & memory policy
	SessionWindow time.Duration `env:"SESSION_WINDOW" envDefault:"0"`
	MemoryEveryN  int           `env:"MEMORY_EVERY_N" envDefault:"1"`
	HistoryLimit  int           `env:"HISTORY_LIMIT" envDefault:"12"`

	// Promotions
	PromoPitchCap     int    `env:"PROMO_PITCH_CAP" envDefault:"3"`
	PromoRefreshEvery string `env:"PROMO_REFRESH_EVERY" envDefault:"@every 10m"`

	// Messaging provider (outbound SMS)
	TwilioAccountSID  string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken   string `env:"TWILIO_AUTH_TOKEN"`
	TwilioPhoneNumber string `env:"TWILIO_PHONE_NUMBER"`
	IntroMessage      string `env:"INTRO_MESSAGE"`

	// Outbound notification webhook
	NotifyWebhookURL string        `env:"NOTIFY_WEBHOOK_URL"`
	FollowupDelay    time.Duration `env:"FOLLOWUP_DELAY" envDefault:"2m"`
}

func New() *Config {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}
