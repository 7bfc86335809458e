package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/bryanwahyu/automaton-review/internal/domain/analysis"
)

// EnvPrefix is the prefix for environment overrides, e.g. REVIEWD_DATABASE_PASSWORD.
const EnvPrefix = "REVIEWD"

type Config struct {
	Server struct {
		Port            int           `yaml:"port"`
		CORSOrigins     []string      `yaml:"corsOrigins"`
		ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
		RateLimit       struct {
			Capacity   int `yaml:"capacity"`
			RefillRate int `yaml:"refillRate"`
		} `yaml:"rateLimit"`
	} `yaml:"server"`

	// Auth maps client id -> API key
	Auth struct {
		APIKeys map[string]string `yaml:"apiKeys"`
	} `yaml:"auth"`

	Database struct {
		Driver   string `yaml:"driver"` // postgres | mysql | sqlite
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
		Path     string `yaml:"path"` // sqlite only
	} `yaml:"database"`

	GitHub struct {
		APIURL  string        `yaml:"apiURL"`
		Token   string        `yaml:"token"`
		Timeout time.Duration `yaml:"timeout"`
		// MaxContentBytes: file di atas ukuran ini di-skip, tidak dianalisis
		MaxContentBytes int64 `yaml:"maxContentBytes"`
	} `yaml:"github"`

	Inference struct {
		Provider    string  `yaml:"provider"` // openai | gemini | ollama
		Model       string  `yaml:"model"`
		Temperature float32 `yaml:"temperature"`
		MaxTokens   int     `yaml:"maxTokens"`
	} `yaml:"inference"`

	OpenAI struct {
		APIKey  string `yaml:"apiKey"`
		BaseURL string `yaml:"baseURL"`
	} `yaml:"openai"`

	Gemini struct {
		APIKey string `yaml:"apiKey"`
	} `yaml:"gemini"`

	Ollama struct {
		Host string `yaml:"host"`
	} `yaml:"ollama"`

	// Minio is optional; empty endpoint disables the response archive
	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	Analysis struct {
		MaxChangedLines     int      `yaml:"maxChangedLines"`
		IgnoreSuffixes      []string `yaml:"ignoreSuffixes"`
		MaxConcurrentRuns   int      `yaml:"maxConcurrentRuns"`
		ContinueOnFileError bool     `yaml:"continueOnFileError"`
	} `yaml:"analysis"`

	WebSocket struct {
		HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
		SendBuffer        int           `yaml:"sendBuffer"`
	} `yaml:"websocket"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"logging"`
}

// Default returns the configuration used when a key is absent from the file.
func Default() *Config {
	var c Config
	c.Server.Port = 8080
	c.Server.ShutdownTimeout = 30 * time.Second
	c.Server.RateLimit.Capacity = 60
	c.Server.RateLimit.RefillRate = 1
	c.Server.CORSOrigins = []string{"http://localhost:3000", "http://localhost:8000"}

	c.Database.Driver = "postgres"
	c.Database.Host = "localhost"
	c.Database.Port = 5432
	c.Database.SSLMode = "disable"
	c.Database.Path = "reviewd.sqlite"

	c.GitHub.APIURL = "https://api.github.com"
	c.GitHub.Timeout = 60 * time.Second
	c.GitHub.MaxContentBytes = 1 << 20

	c.Inference.Provider = "openai"
	c.Inference.Model = "gpt-4"
	c.Inference.Temperature = 0.7
	c.Inference.MaxTokens = 2000

	c.Ollama.Host = "http://localhost:11434"

	c.Minio.BucketName = "review-responses"

	c.Analysis.MaxChangedLines = analysis.DefaultMaxChangedLines
	c.Analysis.IgnoreSuffixes = append([]string(nil), analysis.DefaultIgnoreSuffixes...)
	c.Analysis.MaxConcurrentRuns = 4

	c.WebSocket.HeartbeatInterval = 30 * time.Second
	c.WebSocket.SendBuffer = 1000

	c.Logging.Level = "info"
	c.Logging.Format = "text"
	c.Logging.Output = "stdout"
	return &c
}

// Load baca file config.yaml, lalu timpa dengan environment variable
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides secrets and endpoints from REVIEWD_* variables.
func applyEnv(c *Config) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	str := func(key string, dst *string) {
		if s := v.GetString(key); s != "" {
			*dst = s
		}
	}
	str("database.driver", &c.Database.Driver)
	str("database.host", &c.Database.Host)
	str("database.user", &c.Database.User)
	str("database.password", &c.Database.Password)
	str("database.name", &c.Database.Name)
	str("database.path", &c.Database.Path)
	str("github.token", &c.GitHub.Token)
	str("github.api_url", &c.GitHub.APIURL)
	str("inference.provider", &c.Inference.Provider)
	str("inference.model", &c.Inference.Model)
	str("openai.api_key", &c.OpenAI.APIKey)
	str("gemini.api_key", &c.Gemini.APIKey)
	str("ollama.host", &c.Ollama.Host)
	str("minio.access_key", &c.Minio.AccessKey)
	str("minio.secret_key", &c.Minio.SecretKey)
	str("logging.level", &c.Logging.Level)

	if p := v.GetInt("server.port"); p > 0 {
		c.Server.Port = p
	}
	if p := v.GetInt("database.port"); p > 0 {
		c.Database.Port = p
	}
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q (allowed: postgres, mysql, sqlite)", c.Database.Driver)
	}
	switch c.Inference.Provider {
	case "openai", "gemini", "ollama":
	default:
		return fmt.Errorf("unsupported inference provider %q (allowed: openai, gemini, ollama)", c.Inference.Provider)
	}
	if c.Analysis.MaxChangedLines <= 0 {
		return fmt.Errorf("analysis.maxChangedLines must be positive")
	}
	if c.Analysis.MaxConcurrentRuns <= 0 {
		return fmt.Errorf("analysis.maxConcurrentRuns must be positive")
	}
	if c.GitHub.MaxContentBytes <= 0 {
		return fmt.Errorf("github.maxContentBytes must be positive")
	}
	if c.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("websocket.sendBuffer must be positive")
	}
	if c.WebSocket.HeartbeatInterval <= 0 {
		return fmt.Errorf("websocket.heartbeatInterval must be positive")
	}
	return nil
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// Helper untuk build DSN Postgres
func (c *Config) PostgresDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port),
		Path:     "/" + c.Database.Name,
		RawQuery: url.Values{"sslmode": {c.Database.SSLMode}}.Encode(),
	}
	return u.String()
}

// Redacted returns a copy with secrets masked, for printing.
func (c *Config) Redacted() *Config {
	cp := *c
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "******"
	}
	cp.Database.Password = mask(c.Database.Password)
	cp.GitHub.Token = mask(c.GitHub.Token)
	cp.OpenAI.APIKey = mask(c.OpenAI.APIKey)
	cp.Gemini.APIKey = mask(c.Gemini.APIKey)
	cp.Minio.SecretKey = mask(c.Minio.SecretKey)
	cp.Auth.APIKeys = make(map[string]string, len(c.Auth.APIKeys))
	for client, key := range c.Auth.APIKeys {
		cp.Auth.APIKeys[client] = mask(key)
	}
	return &cp
}

// YAML renders the config the same way it is read.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
