package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
	MetricsPath  string `yaml:"metrics_path"`
}

type HTTPConfig struct {
	Bind           string `yaml:"bind"`
	Port           int    `yaml:"port"`
	RequestTimeout int    `yaml:"request_timeout_ms"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Store       StoreConfig     `yaml:"store"`
	LLM         LLMConfig       `yaml:"llm"`
	TTS         TTSConfig       `yaml:"tts"`
	Overview    OverviewConfig  `yaml:"overview"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type StoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxOverviews  int    `yaml:"max_overviews"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type LLMConfig struct {
	Mode        string  `yaml:"mode"` // gateway, ollama, exec, mock
	Endpoint    string  `yaml:"endpoint"`
	APIKey      string  `yaml:"api_key"`
	Command     string  `yaml:"command"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	TimeoutMS   int     `yaml:"timeout_ms"`
}

type TTSConfig struct {
	Mode              string  `yaml:"mode"` // elevenlabs, exec, mock
	Endpoint          string  `yaml:"endpoint"`
	APIKey            string  `yaml:"api_key"`
	Command           string  `yaml:"command"`
	ModelID           string  `yaml:"model_id"`
	OutputFormat      string  `yaml:"output_format"`
	Stability         float64 `yaml:"stability"`
	SimilarityBoost   float64 `yaml:"similarity_boost"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	TimeoutMS         int     `yaml:"timeout_ms"`
}

// SpeakerConfig binds a dialogue label to a synthesis voice.
type SpeakerConfig struct {
	Label   string `yaml:"label"`
	VoiceID string `yaml:"voice_id"`
}

type OverviewConfig struct {
	SpeakerA SpeakerConfig `yaml:"speaker_a"`
	SpeakerB SpeakerConfig `yaml:"speaker_b"`
}

func Default() Config {
	return Config{
		RuntimeName: "synapse-audio",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind:           "0.0.0.0",
			Port:           8080,
			RequestTimeout: 150000,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
			MetricsPath:  "/metrics",
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Store: StoreConfig{
			Path:          "./data/synapse-overviews.db",
			RetentionMode: "persistent",
			RetentionDays: 30,
			MaxOverviews:  1000,
		},
		LLM: LLMConfig{
			Mode:        "gateway",
			Endpoint:    "https://ai.gateway.lovable.dev/v1",
			Model:       "google/gemini-2.5-flash",
			MaxTokens:   2048,
			Temperature: 0.7,
			TimeoutMS:   60000,
		},
		TTS: TTSConfig{
			Mode:            "elevenlabs",
			Endpoint:        "https://api.elevenlabs.io",
			ModelID:         "eleven_turbo_v2_5",
			OutputFormat:    "mp3_44100_128",
			Stability:       0.5,
			SimilarityBoost: 0.75,
			Burst:           1,
			TimeoutMS:       45000,
		},
		Overview: OverviewConfig{
			SpeakerA: SpeakerConfig{Label: "AURA", VoiceID: "EXAVITQu4vr4xnSDxMaL"},
			SpeakerB: SpeakerConfig{Label: "NEO", VoiceID: "TX3LPaxmHKxFdv7VOQHJ"},
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "SYNAPSE_RUNTIME_NAME")
	overrideString(&cfg.Environment, "SYNAPSE_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "SYNAPSE_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "SYNAPSE_HTTP_PORT")
	overrideInt(&cfg.HTTP.RequestTimeout, "SYNAPSE_HTTP_REQUEST_TIMEOUT_MS")
	overrideString(&cfg.Telemetry.LogLevel, "SYNAPSE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "SYNAPSE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "SYNAPSE_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.MetricsPath, "SYNAPSE_TELEMETRY_METRICS_PATH")
	overrideBool(&cfg.Bus.Enabled, "SYNAPSE_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "SYNAPSE_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "SYNAPSE_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "SYNAPSE_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "SYNAPSE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "SYNAPSE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "SYNAPSE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "SYNAPSE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "SYNAPSE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "SYNAPSE_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Store.Path, "SYNAPSE_STORE_PATH")
	overrideString(&cfg.Store.RetentionMode, "SYNAPSE_STORE_RETENTION_MODE")
	overrideInt(&cfg.Store.RetentionDays, "SYNAPSE_STORE_RETENTION_DAYS")
	overrideInt(&cfg.Store.MaxOverviews, "SYNAPSE_STORE_MAX_OVERVIEWS")
	overrideBool(&cfg.Store.VacuumOnStart, "SYNAPSE_STORE_VACUUM_ON_START")
	overrideString(&cfg.LLM.Mode, "SYNAPSE_LLM_MODE")
	overrideString(&cfg.LLM.Endpoint, "SYNAPSE_LLM_ENDPOINT")
	overrideString(&cfg.LLM.APIKey, "LOVABLE_API_KEY")
	overrideString(&cfg.LLM.APIKey, "SYNAPSE_LLM_API_KEY")
	overrideString(&cfg.LLM.Command, "SYNAPSE_LLM_COMMAND")
	overrideString(&cfg.LLM.Model, "SYNAPSE_LLM_MODEL")
	overrideInt(&cfg.LLM.MaxTokens, "SYNAPSE_LLM_MAX_TOKENS")
	overrideFloat(&cfg.LLM.Temperature, "SYNAPSE_LLM_TEMPERATURE")
	overrideInt(&cfg.LLM.TimeoutMS, "SYNAPSE_LLM_TIMEOUT_MS")
	overrideString(&cfg.TTS.Mode, "SYNAPSE_TTS_MODE")
	overrideString(&cfg.TTS.Endpoint, "SYNAPSE_TTS_ENDPOINT")
	overrideString(&cfg.TTS.APIKey, "ELEVENLABS_API_KEY")
	overrideString(&cfg.TTS.APIKey, "SYNAPSE_TTS_API_KEY")
	overrideString(&cfg.TTS.Command, "SYNAPSE_TTS_COMMAND")
	overrideString(&cfg.TTS.ModelID, "SYNAPSE_TTS_MODEL_ID")
	overrideString(&cfg.TTS.OutputFormat, "SYNAPSE_TTS_OUTPUT_FORMAT")
	overrideFloat(&cfg.TTS.Stability, "SYNAPSE_TTS_STABILITY")
	overrideFloat(&cfg.TTS.SimilarityBoost, "SYNAPSE_TTS_SIMILARITY_BOOST")
	overrideFloat(&cfg.TTS.RequestsPerSecond, "SYNAPSE_TTS_REQUESTS_PER_SECOND")
	overrideInt(&cfg.TTS.Burst, "SYNAPSE_TTS_BURST")
	overrideInt(&cfg.TTS.TimeoutMS, "SYNAPSE_TTS_TIMEOUT_MS")
	overrideString(&cfg.Overview.SpeakerA.Label, "SYNAPSE_OVERVIEW_SPEAKER_A_LABEL")
	overrideString(&cfg.Overview.SpeakerA.VoiceID, "SYNAPSE_OVERVIEW_SPEAKER_A_VOICE")
	overrideString(&cfg.Overview.SpeakerB.Label, "SYNAPSE_OVERVIEW_SPEAKER_B_LABEL")
	overrideString(&cfg.Overview.SpeakerB.VoiceID, "SYNAPSE_OVERVIEW_SPEAKER_B_VOICE")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.HTTP.RequestTimeout < 0 {
		return errors.New("http.request_timeout_ms must be >= 0")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.Store.RetentionMode {
	case "ephemeral", "persistent":
	default:
		return errors.New("store.retention_mode must be one of ephemeral|persistent")
	}
	if cfg.Store.RetentionMode == "persistent" && cfg.Store.Path == "" {
		return errors.New("store.path must not be empty when retention_mode=persistent")
	}
	if cfg.Store.RetentionDays < 0 {
		return errors.New("store.retention_days must be >= 0")
	}
	if cfg.Telemetry.MetricsPath != "" && !strings.HasPrefix(cfg.Telemetry.MetricsPath, "/") {
		return errors.New("telemetry.metrics_path must start with /")
	}
	switch cfg.LLM.Mode {
	case "gateway", "ollama", "exec", "mock":
	default:
		return errors.New("llm.mode must be one of gateway|ollama|exec|mock")
	}
	if (cfg.LLM.Mode == "gateway" || cfg.LLM.Mode == "ollama") && cfg.LLM.Endpoint == "" {
		return fmt.Errorf("llm.endpoint must be set when mode=%s", cfg.LLM.Mode)
	}
	if cfg.LLM.Mode == "exec" && cfg.LLM.Command == "" {
		return errors.New("llm.command must be set when mode=exec")
	}
	if cfg.LLM.MaxTokens < 0 {
		return errors.New("llm.max_tokens must be >= 0")
	}
	switch cfg.TTS.Mode {
	case "elevenlabs", "exec", "mock":
	default:
		return errors.New("tts.mode must be one of elevenlabs|exec|mock")
	}
	if cfg.TTS.Mode == "elevenlabs" && cfg.TTS.Endpoint == "" {
		return errors.New("tts.endpoint must be set when mode=elevenlabs")
	}
	if cfg.TTS.Mode == "exec" && cfg.TTS.Command == "" {
		return errors.New("tts.command must be set when mode=exec")
	}
	if cfg.TTS.RequestsPerSecond < 0 {
		return errors.New("tts.requests_per_second must be >= 0")
	}
	if cfg.Overview.SpeakerA.Label == "" || cfg.Overview.SpeakerB.Label == "" {
		return errors.New("overview speaker labels must not be empty")
	}
	if strings.EqualFold(cfg.Overview.SpeakerA.Label, cfg.Overview.SpeakerB.Label) {
		return errors.New("overview speaker labels must differ")
	}
	if cfg.Overview.SpeakerA.VoiceID == "" || cfg.Overview.SpeakerB.VoiceID == "" {
		return errors.New("overview speaker voice ids must not be empty")
	}
	return nil
}
