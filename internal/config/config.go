package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	NATS       NATSConfig       `yaml:"nats"`
	MinIO      MinIOConfig      `yaml:"minio"`
	Badger     BadgerConfig     `yaml:"badger"`
	Registry   RegistryConfig   `yaml:"registry"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Vision     VisionConfig     `yaml:"vision"`
	LLM        LLMConfig        `yaml:"llm"`
	Search     SearchConfig     `yaml:"search"`
	Highlights HighlightsConfig `yaml:"highlights"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	MetricsPort int    `yaml:"metrics_port"`
	APIKey      string `yaml:"api_key"`
	// PublicURL prefixes profile and image links returned by search.
	PublicURL   string `yaml:"public_url"`
	UploadDir   string `yaml:"upload_dir"`
	MaxUploadMB int64  `yaml:"max_upload_mb"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type BadgerConfig struct {
	Dir      string `yaml:"dir"`
	InMemory bool   `yaml:"in_memory"`
}

const (
	RegistryBackendPostgres = "postgres"
	RegistryBackendBadger   = "badger"
)

// RegistryConfig holds the face registry settings. The two thresholds serve
// different callers and have no built-in default: live matching inside the
// video pipeline tolerates looser matches than the explicit identify call.
type RegistryConfig struct {
	Backend            string  `yaml:"backend"`
	EmbeddingDim       int     `yaml:"embedding_dim"`
	LiveMatchThreshold float64 `yaml:"live_match_threshold"`
	IdentifyThreshold  float64 `yaml:"identify_threshold"`
}

type PipelineConfig struct {
	RendezvousTimeout time.Duration `yaml:"rendezvous_timeout"`
	WorkerCount       int           `yaml:"worker_count"`
	TempDir           string        `yaml:"temp_dir"`
}

type VisionConfig struct {
	ModelsDir          string        `yaml:"models_dir"`
	DetectionThreshold float64       `yaml:"detection_threshold"`
	FrameInterval      time.Duration `yaml:"frame_interval"`
	FrameWidth         int           `yaml:"frame_width"`
	MaxFrames          int           `yaml:"max_frames"`
	CropMargin         float64       `yaml:"crop_margin"`
	MinFaceSize        int           `yaml:"min_face_size"`
}

type LLMConfig struct {
	GeminiAPIKey    string `yaml:"gemini_api_key"`
	StructureModel  string `yaml:"structure_model"`
	SummaryModel    string `yaml:"summary_model"`
	HighlightModel  string `yaml:"highlight_model"`
	EnrichModel     string `yaml:"enrich_model"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	OpenAIBaseURL   string `yaml:"openai_base_url"`
	TranscribeModel string `yaml:"transcribe_model"`
}

type SearchConfig struct {
	SummaryTail   int `yaml:"summary_tail"`
	ExcerptWindow int `yaml:"excerpt_window"`
}

type HighlightsConfig struct {
	MaxTranscriptLines int           `yaml:"max_transcript_lines"`
	MaxReturned        int           `yaml:"max_returned"`
	ExpiryGrace        time.Duration `yaml:"expiry_grace"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Config from raw YAML, then applies env overrides and defaults.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MetricsPort == 0 {
		cfg.Server.MetricsPort = 8082
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 512
	}
	if cfg.Server.UploadDir == "" {
		cfg.Server.UploadDir = os.TempDir()
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Badger.Dir == "" {
		cfg.Badger.Dir = "data/badger"
	}
	if cfg.Registry.Backend == "" {
		cfg.Registry.Backend = RegistryBackendPostgres
	}
	if cfg.Pipeline.RendezvousTimeout == 0 {
		cfg.Pipeline.RendezvousTimeout = 180 * time.Second
	}
	if cfg.Pipeline.WorkerCount == 0 {
		cfg.Pipeline.WorkerCount = 2
	}
	if cfg.Pipeline.TempDir == "" {
		cfg.Pipeline.TempDir = os.TempDir()
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Vision.FrameInterval == 0 {
		cfg.Vision.FrameInterval = time.Second
	}
	if cfg.Vision.FrameWidth == 0 {
		cfg.Vision.FrameWidth = 640
	}
	if cfg.Vision.MaxFrames == 0 {
		cfg.Vision.MaxFrames = 120
	}
	if cfg.Vision.CropMargin == 0 {
		cfg.Vision.CropMargin = 0.30
	}
	if cfg.Vision.MinFaceSize == 0 {
		cfg.Vision.MinFaceSize = 40
	}
	if cfg.LLM.StructureModel == "" {
		cfg.LLM.StructureModel = "gemini-2.5-flash"
	}
	if cfg.LLM.SummaryModel == "" {
		cfg.LLM.SummaryModel = cfg.LLM.StructureModel
	}
	if cfg.LLM.HighlightModel == "" {
		cfg.LLM.HighlightModel = cfg.LLM.StructureModel
	}
	if cfg.LLM.EnrichModel == "" {
		cfg.LLM.EnrichModel = cfg.LLM.StructureModel
	}
	if cfg.LLM.TranscribeModel == "" {
		cfg.LLM.TranscribeModel = "whisper-1"
	}
	if cfg.Search.SummaryTail == 0 {
		cfg.Search.SummaryTail = 24
	}
	if cfg.Search.ExcerptWindow == 0 {
		cfg.Search.ExcerptWindow = 1
	}
	if cfg.Highlights.MaxTranscriptLines == 0 {
		cfg.Highlights.MaxTranscriptLines = 40
	}
	if cfg.Highlights.MaxReturned == 0 {
		cfg.Highlights.MaxReturned = 50
	}
	if cfg.Highlights.ExpiryGrace == 0 {
		cfg.Highlights.ExpiryGrace = 24 * time.Hour
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func (c *Config) validate() error {
	switch c.Registry.Backend {
	case RegistryBackendPostgres, RegistryBackendBadger:
	default:
		return fmt.Errorf("registry.backend must be %q or %q, got %q",
			RegistryBackendPostgres, RegistryBackendBadger, c.Registry.Backend)
	}
	if c.Registry.LiveMatchThreshold <= 0 {
		return fmt.Errorf("registry.live_match_threshold must be set")
	}
	if c.Registry.IdentifyThreshold <= 0 {
		return fmt.Errorf("registry.identify_threshold must be set")
	}
	if c.Registry.EmbeddingDim < 0 {
		return fmt.Errorf("registry.embedding_dim must not be negative")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	setInt := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setFloat := func(name string, dst *float64) {
		if v := os.Getenv(name); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}
	setString := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	setInt("RECALL_SERVER_PORT", &cfg.Server.Port)
	setString("RECALL_API_KEY", &cfg.Server.APIKey)
	setString("RECALL_PUBLIC_URL", &cfg.Server.PublicURL)
	setString("RECALL_DB_HOST", &cfg.Database.Host)
	setInt("RECALL_DB_PORT", &cfg.Database.Port)
	setString("RECALL_DB_NAME", &cfg.Database.Name)
	setString("RECALL_DB_USER", &cfg.Database.User)
	setString("RECALL_DB_PASSWORD", &cfg.Database.Password)
	setString("RECALL_NATS_URL", &cfg.NATS.URL)
	setString("RECALL_MINIO_ENDPOINT", &cfg.MinIO.Endpoint)
	setString("RECALL_MINIO_ACCESS_KEY", &cfg.MinIO.AccessKey)
	setString("RECALL_MINIO_SECRET_KEY", &cfg.MinIO.SecretKey)
	setString("RECALL_MINIO_BUCKET", &cfg.MinIO.Bucket)
	setString("RECALL_BADGER_DIR", &cfg.Badger.Dir)
	setString("RECALL_REGISTRY_BACKEND", &cfg.Registry.Backend)
	setFloat("RECALL_LIVE_MATCH_THRESHOLD", &cfg.Registry.LiveMatchThreshold)
	setFloat("RECALL_IDENTIFY_THRESHOLD", &cfg.Registry.IdentifyThreshold)
	setString("RECALL_MODELS_DIR", &cfg.Vision.ModelsDir)
	setString("RECALL_GEMINI_API_KEY", &cfg.LLM.GeminiAPIKey)
	setString("RECALL_OPENAI_API_KEY", &cfg.LLM.OpenAIAPIKey)
	setString("RECALL_OPENAI_BASE_URL", &cfg.LLM.OpenAIBaseURL)
	setInt("RECALL_WORKER_COUNT", &cfg.Pipeline.WorkerCount)

	if v := os.Getenv("RECALL_RENDEZVOUS_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pipeline.RendezvousTimeout = d
		}
	}
	if v := os.Getenv("RECALL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
}
