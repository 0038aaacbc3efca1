package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Overview.SpeakerA.Label != "AURA" || cfg.Overview.SpeakerB.Label != "NEO" {
		t.Fatalf("expected default speaker labels, got %+v", cfg.Overview)
	}
	if cfg.TTS.Mode != "elevenlabs" {
		t.Fatalf("expected elevenlabs default, got %s", cfg.TTS.Mode)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "synapse.yaml")
	data := []byte(`runtime_name: test-runtime
http:
  port: 9090
llm:
  mode: mock
tts:
  mode: mock
overview:
  speaker_a:
    label: HOST
    voice_id: voice-host
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RuntimeName != "test-runtime" || cfg.HTTP.Port != 9090 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Overview.SpeakerA.Label != "HOST" || cfg.Overview.SpeakerA.VoiceID != "voice-host" {
		t.Fatalf("expected speaker a override, got %+v", cfg.Overview.SpeakerA)
	}
	if cfg.Overview.SpeakerB.Label != "NEO" {
		t.Fatalf("expected speaker b default to survive partial yaml, got %+v", cfg.Overview.SpeakerB)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SYNAPSE_BUS_ENABLED", "true")
	t.Setenv("SYNAPSE_BUS_EMBEDDED", "false")
	t.Setenv("SYNAPSE_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("SYNAPSE_BUS_USERNAME", "alice")
	t.Setenv("SYNAPSE_BUS_PASSWORD", "secret")
	t.Setenv("SYNAPSE_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("SYNAPSE_STORE_PATH", "./tmp.db")
	t.Setenv("SYNAPSE_STORE_RETENTION_DAYS", "7")
	t.Setenv("SYNAPSE_STORE_MAX_OVERVIEWS", "123")
	t.Setenv("SYNAPSE_LLM_API_KEY", "llm-key")
	t.Setenv("SYNAPSE_LLM_TEMPERATURE", "0.2")
	t.Setenv("SYNAPSE_TTS_API_KEY", "tts-key")
	t.Setenv("SYNAPSE_TTS_REQUESTS_PER_SECOND", "2.5")
	t.Setenv("SYNAPSE_OVERVIEW_SPEAKER_B_VOICE", "voice-b")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !cfg.Bus.Enabled || cfg.Bus.Embedded {
		t.Fatalf("expected external bus, got %+v", cfg.Bus)
	}
	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.Store.Path != "./tmp.db" || cfg.Store.RetentionDays != 7 || cfg.Store.MaxOverviews != 123 {
		t.Fatalf("expected store overrides, got %+v", cfg.Store)
	}
	if cfg.LLM.APIKey != "llm-key" || cfg.LLM.Temperature != 0.2 {
		t.Fatalf("expected llm overrides, got %+v", cfg.LLM)
	}
	if cfg.TTS.APIKey != "tts-key" || cfg.TTS.RequestsPerSecond != 2.5 {
		t.Fatalf("expected tts overrides, got %+v", cfg.TTS)
	}
	if cfg.Overview.SpeakerB.VoiceID != "voice-b" {
		t.Fatalf("expected speaker voice override")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"bad port":          func(c *Config) { c.HTTP.Port = 0 },
		"unknown llm mode":  func(c *Config) { c.LLM.Mode = "bard" },
		"exec without cmd":  func(c *Config) { c.TTS.Mode = "exec" },
		"same labels":       func(c *Config) { c.Overview.SpeakerB.Label = "aura" },
		"missing voice":     func(c *Config) { c.Overview.SpeakerA.VoiceID = "" },
		"bad retention":     func(c *Config) { c.Store.RetentionMode = "session" },
		"relative metrics":  func(c *Config) { c.Telemetry.MetricsPath = "metrics" },
		"negative rate":     func(c *Config) { c.TTS.RequestsPerSecond = -1 },
		"external bus none": func(c *Config) { c.Bus.Enabled = true; c.Bus.Embedded = false; c.Bus.Servers = nil },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			if err := validate(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestProviderKeyAliases(t *testing.T) {
	t.Setenv("LOVABLE_API_KEY", "gateway-key")
	t.Setenv("ELEVENLABS_API_KEY", "eleven-key")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.APIKey != "gateway-key" || cfg.TTS.APIKey != "eleven-key" {
		t.Fatalf("expected provider keys from aliases, got %q / %q", cfg.LLM.APIKey, cfg.TTS.APIKey)
	}

	t.Setenv("SYNAPSE_TTS_API_KEY", "explicit")
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TTS.APIKey != "explicit" {
		t.Fatalf("expected SYNAPSE_ variable to win, got %q", cfg.TTS.APIKey)
	}
}
