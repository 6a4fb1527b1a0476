package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration of the service.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Content   ContentConfig   `mapstructure:"content"`
	Wikipedia WikipediaConfig `mapstructure:"wikipedia"`
	Runs      RunsConfig      `mapstructure:"runs"`
	Storage   StorageConfig   `mapstructure:"storage"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address        string        `mapstructure:"address"`
	AllowOrigins   []string      `mapstructure:"allow_origins"`
	StreamInterval time.Duration `mapstructure:"stream_interval"`
}

// Normalize trims origins and accepts a JSON array passed as a single value.
func (s ServerConfig) Normalize() ServerConfig {
	if strings.TrimSpace(s.Address) == "" {
		s.Address = ":8000"
	}
	// A JSON array from the environment arrives split on commas.
	if len(s.AllowOrigins) > 0 && strings.HasPrefix(strings.TrimSpace(s.AllowOrigins[0]), "[") {
		var list []string
		if err := json.Unmarshal([]byte(strings.Join(s.AllowOrigins, ",")), &list); err == nil {
			s.AllowOrigins = list
		}
	}
	var origins []string
	for _, o := range s.AllowOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	s.AllowOrigins = origins
	if s.StreamInterval <= 0 {
		s.StreamInterval = time.Second
	}
	return s
}

// LLMConfig selects the language model used by the generation stages.
type LLMConfig struct {
	ModelID     string        `mapstructure:"model_id"`
	BaseURL     string        `mapstructure:"base_url"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// Normalize applies defaults and adds a scheme to bare host:port base URLs.
func (l LLMConfig) Normalize() LLMConfig {
	l.ModelID = strings.TrimSpace(l.ModelID)
	if l.ModelID == "" {
		l.ModelID = "ollama/mistral"
	}
	l.BaseURL = strings.TrimSpace(l.BaseURL)
	if l.BaseURL == "" {
		l.BaseURL = "http://127.0.0.1:11434"
	}
	if !strings.Contains(l.BaseURL, "://") {
		l.BaseURL = "http://" + l.BaseURL
	}
	l.BaseURL = strings.TrimRight(l.BaseURL, "/")
	if l.Timeout <= 0 {
		l.Timeout = 10 * time.Minute
	}
	return l
}

func (l LLMConfig) Validate() error {
	u, err := url.Parse(l.BaseURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("llm.base_url is not a valid url: %q", l.BaseURL)
	}
	if l.Temperature < 0 || l.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be within [0, 2]")
	}
	return nil
}

// ContentConfig holds the article acceptance rules.
type ContentConfig struct {
	MinWords           int      `mapstructure:"min_words"`
	AllowedDomains     []string `mapstructure:"allowed_domains"`
	TolerantExtraction bool     `mapstructure:"tolerant_extraction"`
}

func (c ContentConfig) Normalize() ContentConfig {
	if c.MinWords == 0 {
		c.MinWords = 300
	}
	var domains []string
	for _, d := range c.AllowedDomains {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), ".")
		if d != "" {
			domains = append(domains, d)
		}
	}
	if len(domains) == 0 {
		domains = []string{"wikipedia.org"}
	}
	c.AllowedDomains = domains
	return c
}

func (c ContentConfig) Validate() error {
	if c.MinWords < 1 {
		return fmt.Errorf("content.min_words must be >= 1")
	}
	return nil
}

// WikipediaConfig configures the research lookups.
type WikipediaConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	BaseURL   string        `mapstructure:"base_url"`
	MaxChars  int           `mapstructure:"max_chars"`
	UserAgent string        `mapstructure:"user_agent"`
	CacheSize int           `mapstructure:"cache_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

func (w WikipediaConfig) Normalize() WikipediaConfig {
	if w.MaxChars <= 0 {
		w.MaxChars = 1800
	}
	if w.CacheSize <= 0 {
		w.CacheSize = 128
	}
	if w.Timeout <= 0 {
		w.Timeout = 20 * time.Second
	}
	return w
}

// RunsConfig sizes the background executor.
type RunsConfig struct {
	Workers      int           `mapstructure:"workers"`
	QueueSize    int           `mapstructure:"queue_size"`
	Timeout      time.Duration `mapstructure:"timeout"`
	ArtifactsDir string        `mapstructure:"artifacts_dir"`
}

func (r RunsConfig) Normalize() RunsConfig {
	if r.Workers == 0 {
		r.Workers = 2
	}
	if r.QueueSize == 0 {
		r.QueueSize = 64
	}
	if r.Timeout <= 0 {
		r.Timeout = 15 * time.Minute
	}
	return r
}

func (r RunsConfig) Validate() error {
	if r.Workers < 1 {
		return fmt.Errorf("runs.workers must be >= 1")
	}
	if r.QueueSize < 1 {
		return fmt.Errorf("runs.queue_size must be >= 1")
	}
	return nil
}

// StorageConfig selects where run records live.
type StorageConfig struct {
	Backend string      `mapstructure:"backend"`
	Redis   RedisConfig `mapstructure:"redis"`
}

func (s StorageConfig) Validate() error {
	switch s.Backend {
	case "memory":
		return nil
	case "redis":
		return s.Redis.Validate()
	default:
		return fmt.Errorf("storage.backend must be memory or redis, got %q", s.Backend)
	}
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
	TTL      time.Duration `mapstructure:"ttl"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// envAliases are environment variables accepted besides WIKIWRITER_<KEY>.
var envAliases = map[string][]string{
	"llm.model_id":         {"MODEL_ID", "model"},
	"llm.base_url":         {"OLLAMA_BASE_URL", "api_base", "OLLAMA_HOST"},
	"server.allow_origins": {"ALLOW_ORIGINS"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.debug", false)
	v.SetDefault("general.log_level", "info")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.allow_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.stream_interval", time.Second)
	v.SetDefault("llm.model_id", "ollama/mistral")
	v.SetDefault("llm.base_url", "http://127.0.0.1:11434")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.timeout", 10*time.Minute)
	v.SetDefault("content.min_words", 300)
	v.SetDefault("content.allowed_domains", []string{"wikipedia.org"})
	v.SetDefault("content.tolerant_extraction", false)
	v.SetDefault("wikipedia.enabled", true)
	v.SetDefault("wikipedia.base_url", "")
	v.SetDefault("wikipedia.user_agent", "")
	v.SetDefault("wikipedia.timeout", 20*time.Second)
	v.SetDefault("wikipedia.max_chars", 1800)
	v.SetDefault("wikipedia.cache_size", 128)
	v.SetDefault("runs.workers", 2)
	v.SetDefault("runs.queue_size", 64)
	v.SetDefault("runs.timeout", 15*time.Minute)
	v.SetDefault("runs.artifacts_dir", "")
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.timeout", 5*time.Second)
	v.SetDefault("storage.redis.ttl", 24*time.Hour)
}

// LoadConfig reads configuration from path, or from config.{json,yaml} in the
// usual locations when path is empty, then applies WIKIWRITER_* environment
// overrides. A missing file is only an error when path was given explicitly.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		v.SetConfigName("config")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			exeDir := filepath.Dir(exe)
			v.AddConfigPath(exeDir)
			v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("WIKIWRITER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, aliases := range envAliases {
		names := append([]string{"WIKIWRITER_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, aliases...)
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Server = cfg.Server.Normalize()
	cfg.LLM = cfg.LLM.Normalize()
	cfg.Content = cfg.Content.Normalize()
	cfg.Wikipedia = cfg.Wikipedia.Normalize()
	cfg.Runs = cfg.Runs.Normalize()
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))

	for _, validate := range []func() error{
		cfg.LLM.Validate,
		cfg.Content.Validate,
		cfg.Runs.Validate,
		cfg.Storage.Validate,
	} {
		if err := validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}
