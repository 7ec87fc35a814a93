package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/user/stream-transcriber/internal/audio"
	"github.com/user/stream-transcriber/internal/segmenter"
	"github.com/user/stream-transcriber/internal/vad"
)

// VADConfig holds the detection parameters. Defaults preserve the observed
// segmentation behavior; change them only deliberately.
type VADConfig struct {
	Backend          string  `yaml:"backend"` // "webrtc" or "energy"
	Threshold        float32 `yaml:"threshold"`
	MinSpeechSeconds float64 `yaml:"min_speech_seconds"`
	MaxSpeechSeconds float64 `yaml:"max_speech_seconds"`
}

// STTConfig selects and configures the transcription backend.
type STTConfig struct {
	Backend          string `yaml:"backend"` // "whisper", "deepgram" or "vosk"
	WhisperServerURL string `yaml:"whisper_server_url"`
	DeepgramAPIKey   string `yaml:"-"` // env only, never in the file
	DeepgramModel    string `yaml:"deepgram_model"`
	VoskModelPath    string `yaml:"vosk_model_path"`
	Workers          int    `yaml:"workers"`
}

// DBConfig describes the optional Postgres transcript store. The password is
// never configured directly; PasswordKey names an entry in the secrets file.
type DBConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Name        string `yaml:"name"`
	User        string `yaml:"user"`
	PasswordKey string `yaml:"password_key"`
	RequireSSL  bool   `yaml:"require_ssl"`
}

// WebConfig configures the HTTP ingestion server.
type WebConfig struct {
	Port      int    `yaml:"port"`
	StaticDir string `yaml:"static_dir"`
}

// Config is the full process configuration, loaded from an optional YAML
// file with environment-variable overrides on top.
type Config struct {
	Input    string `yaml:"input"`
	ShowName string `yaml:"show_name"`
	Language string `yaml:"language"`

	SampleRate   int `yaml:"sample_rate"`
	ChunkSamples int `yaml:"chunk_samples"`

	VAD VADConfig `yaml:"vad"`
	STT STTConfig `yaml:"stt"`
	DB  *DBConfig `yaml:"db"`
	Web WebConfig `yaml:"web"`

	OutputDir string `yaml:"output_dir"`
	Mirror    bool   `yaml:"mirror"`

	LogLevel string `yaml:"log_level"`
}

// Load reads path (when non-empty), then applies environment overrides and
// defaults. A .env file in the working directory is honored.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file found, using environment variables only")
	}

	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	return cfg, cfg.validate()
}

func (c *Config) applyEnv() {
	if v := os.Getenv("INPUT_URL"); v != "" {
		c.Input = v
	}
	if v := os.Getenv("SHOW_NAME"); v != "" {
		c.ShowName = v
	}
	if v := os.Getenv("LANGUAGE"); v != "" {
		c.Language = v
	}
	if v := os.Getenv("STT_BACKEND"); v != "" {
		c.STT.Backend = v
	}
	if v := os.Getenv("WHISPER_SERVER_URL"); v != "" {
		c.STT.WhisperServerURL = v
	}
	if v := os.Getenv("VOSK_MODEL_PATH"); v != "" {
		c.STT.VoskModelPath = v
	}
	c.STT.DeepgramAPIKey = os.Getenv("DEEPGRAM_API_KEY")
	if v := os.Getenv("VAD_BACKEND"); v != "" {
		c.VAD.Backend = v
	}
	if v := os.Getenv("OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v, err := strconv.Atoi(os.Getenv("WEB_PORT")); err == nil {
		c.Web.Port = v
	}
	if v, err := strconv.Atoi(os.Getenv("STT_WORKERS")); err == nil {
		c.STT.Workers = v
	}
}

func (c *Config) applyDefaults() {
	if c.Language == "" {
		c.Language = "en"
	}
	if c.SampleRate == 0 {
		c.SampleRate = audio.DefaultSampleRate
	}
	if c.ChunkSamples == 0 {
		c.ChunkSamples = audio.DefaultChunkSamples
	}
	if c.VAD.Backend == "" {
		c.VAD.Backend = "webrtc"
	}
	if c.VAD.Threshold == 0 {
		c.VAD.Threshold = segmenter.DefaultThreshold
	}
	if c.VAD.MinSpeechSeconds == 0 {
		c.VAD.MinSpeechSeconds = segmenter.DefaultMinSpeechSeconds
	}
	if c.VAD.MaxSpeechSeconds == 0 {
		c.VAD.MaxSpeechSeconds = segmenter.DefaultMaxSpeechSeconds
	}
	if c.STT.Backend == "" {
		c.STT.Backend = "whisper"
	}
	if c.STT.WhisperServerURL == "" {
		c.STT.WhisperServerURL = "http://localhost:8080"
	}
	if c.STT.DeepgramModel == "" {
		c.STT.DeepgramModel = "nova-2"
	}
	if c.STT.Workers == 0 {
		c.STT.Workers = 1
	}
	if c.DB != nil && c.DB.Port == 0 {
		c.DB.Port = 5432
	}
	if c.Web.Port == 0 {
		c.Web.Port = 3000
	}
	if c.OutputDir == "" {
		c.OutputDir = "out"
	}
	if c.ShowName == "" {
		c.ShowName = "default"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	switch c.VAD.Backend {
	case "webrtc", "energy":
	default:
		return fmt.Errorf("vad backend must be 'webrtc' or 'energy'")
	}

	switch c.STT.Backend {
	case "whisper", "vosk":
	case "deepgram":
		if c.STT.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required when using the deepgram backend")
		}
	default:
		return fmt.Errorf("stt backend must be 'whisper', 'deepgram' or 'vosk'")
	}

	if c.VAD.MinSpeechSeconds > c.VAD.MaxSpeechSeconds {
		return fmt.Errorf("vad min_speech_seconds (%v) exceeds max_speech_seconds (%v)",
			c.VAD.MinSpeechSeconds, c.VAD.MaxSpeechSeconds)
	}

	if c.DB != nil {
		if c.DB.Host == "" || c.DB.Name == "" || c.DB.User == "" || c.DB.PasswordKey == "" {
			return fmt.Errorf("db config requires host, name, user and password_key")
		}
	}

	return nil
}

// Classifier builds the configured voice-activity classifier.
func (c *Config) Classifier() (audio.Classifier, error) {
	switch c.VAD.Backend {
	case "energy":
		return vad.NewEnergy(), nil
	default:
		return vad.NewWebRTC(c.SampleRate)
	}
}

// DSN renders the Postgres connection string, resolving the password through
// lookupPassword (normally secrets.Get).
func (d *DBConfig) DSN(lookupPassword func(key string) (string, error)) (string, error) {
	password, err := lookupPassword(d.PasswordKey)
	if err != nil {
		return "", fmt.Errorf("failed to resolve db password: %w", err)
	}
	sslMode := "prefer"
	if d.RequireSSL {
		sslMode = "require"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, password, d.Host, d.Port, d.Name, sslMode), nil
}
