package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
)

// ErrConfiguration means a setting is missing or invalid and the process
// must not start serving.
var ErrConfiguration = errors.New("configuration error")

// Supported model backends.
const (
	ProviderGemini = "gemini"
	ProviderArk    = "ark"
	ProviderOpenAI = "openai"
)

// DefaultSystemPrompt is used when SYSTEM_PROMPT is unset.
const DefaultSystemPrompt = "You are a helpful AI assistant. Respond concisely and naturally."

// Config aggregates every setting of the service.
type Config struct {
	Server ServerConfig
	Log    LogConfig
	AI     AIConfig
	Chat   ChatConfig
	Relay  RelayConfig
	Speech SpeechConfig
}

// Load reads the configuration from the environment. Every failure wraps
// ErrConfiguration.
func Load() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, oops.
			In("config").
			Code("configuration").
			Wrap(fmt.Errorf("%w: %w", ErrConfiguration, err))
	}
	return cfg, nil
}

// LoadSpeech reads only the speech settings, for tools that never talk to
// the language model.
func LoadSpeech() (SpeechConfig, error) {
	cfg, err := loadSpeechConfig()
	if err != nil {
		return SpeechConfig{}, oops.
			In("config").
			Code("configuration").
			Wrap(fmt.Errorf("%w: %w", ErrConfiguration, err))
	}
	return cfg, nil
}

func load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	logCfg := loadLogConfig()

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	chat, err := loadChatConfig()
	if err != nil {
		return nil, err
	}

	relay, err := loadRelayConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{Server: server, Log: logCfg, AI: ai, Chat: chat, Relay: relay, Speech: speech}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if missing := cfg.AI.MissingCredentials(); len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr            string        `validate:"required"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
}

// loadServerConfig resolves the listen address.
func loadServerConfig() (ServerConfig, error) {
	shutdown, err := parseDurationEnv("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return ServerConfig{}, err
	}

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8000"
	}

	if strings.Contains(port, ":") {
		// ":8000" and "127.0.0.1:8000" are accepted as is.
		return ServerConfig{Addr: port, ShutdownTimeout: shutdown}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, ShutdownTimeout: shutdown}, nil
}

// LogConfig controls the global logger.
type LogConfig struct {
	Level string `validate:"oneof=debug info warn error"`
	File  string
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level: strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		File:  strings.TrimSpace(os.Getenv("LOG_FILE")),
	}
}

// AIConfig selects and parameterizes the language model backend.
type AIConfig struct {
	Provider     string `validate:"oneof=gemini ark openai"`
	SystemPrompt string `validate:"required"`
	Temperature  *float64
	TopP         *float64
	MaxTokens    *int
	HistoryLimit int `validate:"gte=0"`

	// Gemini (langchaingo googleai)
	GoogleAPIKey string
	GeminiModel  string

	// Ark (eino-ext)
	APIKey    string
	AccessKey string
	SecretKey string
	Model     string
	BaseURL   string
	Region    string

	// OpenAI compatible endpoint
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
}

// MissingCredentials lists the environment variables the selected backend
// still needs.
func (c AIConfig) MissingCredentials() []string {
	var missing []string
	switch c.Provider {
	case ProviderGemini:
		if c.GoogleAPIKey == "" {
			missing = append(missing, "GOOGLE_API_KEY")
		}
	case ProviderArk:
		if c.Model == "" {
			missing = append(missing, "ARK_MODEL")
		}
		if c.APIKey == "" && (c.AccessKey == "" || c.SecretKey == "") {
			missing = append(missing, "ARK_API_KEY")
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
		if c.OpenAIModel == "" {
			missing = append(missing, "OPENAI_MODEL")
		}
	}
	return missing
}

// Enabled reports whether the selected backend has its credentials.
func (c AIConfig) Enabled() bool {
	return len(c.MissingCredentials()) == 0
}

// NewChatModel builds an Ark chat model.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if c.Provider != ProviderArk || !c.Enabled() {
		return nil, errors.New("ark credentials missing: set ARK_API_KEY and ARK_MODEL, or ARK_ACCESS_KEY and ARK_SECRET_KEY")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("LLM_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}
	if temperature == nil {
		defaultTemperature := 0.7
		temperature = &defaultTemperature
	}

	topP, err := parseOptionalFloatEnv("LLM_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("LLM_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	historyLimit := 0
	if limit, err := parseOptionalIntEnv("HISTORY_LIMIT"); err != nil {
		return AIConfig{}, err
	} else if limit != nil {
		historyLimit = *limit
	}

	return AIConfig{
		Provider:      strings.ToLower(getEnvOrDefault("LLM_PROVIDER", ProviderGemini)),
		SystemPrompt:  getEnvOrDefault("SYSTEM_PROMPT", DefaultSystemPrompt),
		Temperature:   temperature,
		TopP:          topP,
		MaxTokens:     maxTokens,
		HistoryLimit:  historyLimit,
		GoogleAPIKey:  strings.TrimSpace(os.Getenv("GOOGLE_API_KEY")),
		GeminiModel:   getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		APIKey:        strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:     strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:     strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:         strings.TrimSpace(os.Getenv("ARK_MODEL")),
		BaseURL:       getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:        getEnvOrDefault("ARK_REGION", "cn-beijing"),
		OpenAIAPIKey:  strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL: strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		OpenAIModel:   getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
	}, nil
}

// ChatConfig tunes the conversation orchestrator.
type ChatConfig struct {
	ModelTimeout time.Duration `validate:"gt=0"`
}

func loadChatConfig() (ChatConfig, error) {
	timeout, err := parseDurationEnv("MODEL_TIMEOUT", 60*time.Second)
	if err != nil {
		return ChatConfig{}, err
	}
	return ChatConfig{ModelTimeout: timeout}, nil
}

// RelayConfig tunes the response relay and its consumer.
type RelayConfig struct {
	Capacity        int           `validate:"gt=0"`
	PollInterval    time.Duration `validate:"gt=0"`
	ConsumerEnabled bool
	AudioDir        string
}

func loadRelayConfig() (RelayConfig, error) {
	capacity := 64
	if override, err := parseOptionalIntEnv("RELAY_CAPACITY"); err != nil {
		return RelayConfig{}, err
	} else if override != nil {
		capacity = *override
	}

	interval, err := parseDurationEnv("RELAY_POLL_INTERVAL", 100*time.Millisecond)
	if err != nil {
		return RelayConfig{}, err
	}

	consumer, err := parseBoolEnv("RELAY_CONSUMER", true)
	if err != nil {
		return RelayConfig{}, err
	}

	return RelayConfig{
		Capacity:        capacity,
		PollInterval:    interval,
		ConsumerEnabled: consumer,
		AudioDir:        strings.TrimSpace(os.Getenv("RELAY_AUDIO_DIR")),
	}, nil
}

// SpeechConfig holds the speech provider credentials and defaults.
type SpeechConfig struct {
	AppID          string
	AccessToken    string
	APIKey         string
	AccessKey      string
	SecretKey      string
	Region         string
	BaseURL        string
	ConcurrentMode bool
	ASRModel       string
	ASRLanguage    string
	TTSVoice       string
	TTSSpeed       float32
	TTSVolume      float32
	TTSLanguage    string
	Timeout        int `validate:"gt=0"`
	Enabled        bool
}

func loadSpeechConfig() (SpeechConfig, error) {
	timeout, err := parseOptionalIntEnv("SPEECH_TIMEOUT")
	if err != nil {
		return SpeechConfig{}, err
	}
	timeoutSeconds := 30
	if timeout != nil {
		timeoutSeconds = *timeout
	}

	speed, err := parseOptionalFloat32Env("SPEECH_TTS_SPEED")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsSpeed := float32(1.0)
	if speed != nil {
		ttsSpeed = *speed
	}

	volume, err := parseOptionalFloat32Env("SPEECH_TTS_VOLUME")
	if err != nil {
		return SpeechConfig{}, err
	}
	ttsVolume := float32(1.0)
	if volume != nil {
		ttsVolume = *volume
	}

	concurrent, err := parseBoolEnv("SPEECH_ASR_CONCURRENT", false)
	if err != nil {
		return SpeechConfig{}, err
	}

	appID := strings.TrimSpace(os.Getenv("SPEECH_APP_ID"))

	accessToken := strings.TrimSpace(os.Getenv("SPEECH_ACCESS_TOKEN"))
	apiKey := strings.TrimSpace(os.Getenv("SPEECH_API_KEY"))
	if accessToken == "" {
		accessToken = apiKey
	}

	// Without speech credentials only the voice features are off.
	enabled := appID != "" && accessToken != ""

	return SpeechConfig{
		AppID:          appID,
		AccessToken:    accessToken,
		APIKey:         apiKey,
		AccessKey:      strings.TrimSpace(os.Getenv("SPEECH_ACCESS_KEY")),
		SecretKey:      strings.TrimSpace(os.Getenv("SPEECH_SECRET_KEY")),
		Region:         getEnvOrDefault("SPEECH_REGION", "cn-beijing"),
		BaseURL:        getEnvOrDefault("SPEECH_BASE_URL", ""),
		ConcurrentMode: concurrent,
		ASRModel:       getEnvOrDefault("SPEECH_ASR_MODEL", "bigmodel"),
		ASRLanguage:    getEnvOrDefault("SPEECH_ASR_LANGUAGE", "en-US"),
		TTSVoice:       getEnvOrDefault("SPEECH_TTS_VOICE", ""),
		TTSSpeed:       ttsSpeed,
		TTSVolume:      ttsVolume,
		TTSLanguage:    getEnvOrDefault("SPEECH_TTS_LANGUAGE", "en-US"),
		Timeout:        timeoutSeconds,
		Enabled:        enabled,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalFloat32Env(key string) (*float32, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	result := float32(val)
	return &result, nil
}
