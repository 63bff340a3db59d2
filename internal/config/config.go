package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	JWT        JWTConfig        `yaml:"jwt"`
	LDAP       LDAPConfig       `yaml:"ldap"`
	AI         AIConfig         `yaml:"ai"`
	Credential CredentialConfig `yaml:"credential"`
	Mail       MailConfig       `yaml:"mail"`
	Redis      RedisConfig      `yaml:"redis"`
	Storage    StorageConfig    `yaml:"storage"`
	Admin      AdminConfig      `yaml:"admin"`
	Log        LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	Host                string   `yaml:"host"`
	Port                string   `yaml:"port"`
	Mode                string   `yaml:"mode"` // debug, release, test
	AllowedOrigins      []string `yaml:"allowed_origins"`
	SSEHeartbeatSeconds int      `yaml:"sse_heartbeat_seconds"`
	ProxyRatePerMinute  int      `yaml:"proxy_rate_per_minute"`
	AuthRatePerMinute   int      `yaml:"auth_rate_per_minute"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, mysql, postgres
	DSN    string `yaml:"dsn"`
}

type JWTConfig struct {
	Secret            string `yaml:"secret"`
	ExpireHour        int    `yaml:"expire_hour"`
	RefreshExpireDays int    `yaml:"refresh_expire_days"`
}

type LDAPConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	BaseDN       string `yaml:"base_dn"`
	BindDN       string `yaml:"bind_dn"`
	BindPassword string `yaml:"bind_password"`
	UserFilter   string `yaml:"user_filter"`
	UseSSL       bool   `yaml:"use_ssl"`
}

// AIConfig describes the upstream chat-completion provider.
// APIKey is only a fallback; the credential stored in the database wins.
type AIConfig struct {
	BaseURL          string `yaml:"base_url"` // OpenAI-compatible endpoint
	APIKey           string `yaml:"api_key"`
	TimeoutSeconds   int    `yaml:"timeout_seconds"` // 0 = no override
	AnthropicBaseURL string `yaml:"anthropic_base_url"`
	OllamaURL        string `yaml:"ollama_url"`
}

// CredentialConfig holds the secret that seals stored provider keys.
type CredentialConfig struct {
	Secret string `yaml:"secret"`
}

type MailConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	UseTLS   bool   `yaml:"use_tls"`
}

// RedisConfig for optional async mail queue
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type StorageConfig struct {
	Dir       string `yaml:"dir"`
	Bucket    string `yaml:"bucket"`
	PublicURL string `yaml:"public_url"`
	MaxSizeMB int    `yaml:"max_size_mb"`
}

// AdminConfig seeds the first administrator account.
type AdminConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

type LogConfig struct {
	Level         string `yaml:"level"`
	RetentionDays int    `yaml:"retention_days"`
}

var GlobalConfig *Config

// Load reads configPath (default config.yaml), then applies .env and
// environment variable overrides.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	// .env is optional
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	cfg.overrideFromEnv()
	GlobalConfig = cfg
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                "0.0.0.0",
			Port:                "8080",
			Mode:                "debug",
			AllowedOrigins:      []string{"http://localhost:5173", "http://localhost:3000"},
			SSEHeartbeatSeconds: 25,
			ProxyRatePerMinute:  30,
			AuthRatePerMinute:   20,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "deedox.db",
		},
		JWT: JWTConfig{
			Secret:            "deedox-secret-key-change-in-production",
			ExpireHour:        24,
			RefreshExpireDays: 7,
		},
		LDAP: LDAPConfig{
			Enabled:    false,
			Port:       389,
			UserFilter: "(mail=%s)",
		},
		AI: AIConfig{
			BaseURL:   "https://api.openai.com/v1",
			OllamaURL: "http://localhost:11434",
		},
		Credential: CredentialConfig{
			Secret: "deedox-credential-secret-change-in-production",
		},
		Mail: MailConfig{
			Port: 587,
			From: "no-reply@deedox.local",
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			DB:      0,
		},
		Storage: StorageConfig{
			Dir:       "uploads",
			Bucket:    "public",
			PublicURL: "/uploads",
			MaxSizeMB: 10,
		},
		Admin: AdminConfig{
			Email:    "admin@deedox.local",
			Password: "admin123",
		},
		Log: LogConfig{
			Level:         "info",
			RetentionDays: 30,
		},
	}
}

func (c *Config) overrideFromEnv() {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Server.Port = port
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		c.Server.Mode = mode
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = splitList(origins)
	}
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		c.JWT.Secret = secret
	}
	if baseURL := os.Getenv("AI_BASE_URL"); baseURL != "" {
		c.AI.BaseURL = baseURL
	}
	if apiKey := os.Getenv("AI_API_KEY"); apiKey != "" {
		c.AI.APIKey = apiKey
	}
	if u := os.Getenv("OLLAMA_URL"); u != "" {
		c.AI.OllamaURL = u
	}
	if timeout := os.Getenv("AI_TIMEOUT_SECONDS"); timeout != "" {
		if n, err := strconv.Atoi(timeout); err == nil {
			c.AI.TimeoutSeconds = n
		}
	}
	if secret := os.Getenv("CREDENTIAL_SECRET"); secret != "" {
		c.Credential.Secret = secret
	}
	if host := os.Getenv("SMTP_HOST"); host != "" {
		c.Mail.Enabled = true
		c.Mail.Host = host
	}
	if port := os.Getenv("SMTP_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			c.Mail.Port = n
		}
	}
	if user := os.Getenv("SMTP_USERNAME"); user != "" {
		c.Mail.Username = user
	}
	if pass := os.Getenv("SMTP_PASSWORD"); pass != "" {
		c.Mail.Password = pass
	}
	if from := os.Getenv("SMTP_FROM"); from != "" {
		c.Mail.From = from
	}
	if dir := os.Getenv("STORAGE_DIR"); dir != "" {
		c.Storage.Dir = dir
	}
	if email := os.Getenv("ADMIN_EMAIL"); email != "" {
		c.Admin.Email = email
	}
	if pass := os.Getenv("ADMIN_PASSWORD"); pass != "" {
		c.Admin.Password = pass
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	// Redis URL override (format: redis://:password@host:port/db)
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.Redis.Enabled = true
		c.parseRedisURL(redisURL)
	}
}

// parseRedisURL parses a Redis URL and sets config values
// Format: redis://:password@host:port/db
func (c *Config) parseRedisURL(redisURL string) {
	url := strings.TrimPrefix(redisURL, "redis://")

	if atIdx := strings.Index(url, "@"); atIdx != -1 {
		authPart := url[:atIdx]
		url = url[atIdx+1:]
		// :password or user:password
		if colonIdx := strings.Index(authPart, ":"); colonIdx != -1 {
			c.Redis.Password = authPart[colonIdx+1:]
		}
	}

	if slashIdx := strings.LastIndex(url, "/"); slashIdx != -1 {
		dbStr := url[slashIdx+1:]
		url = url[:slashIdx]
		if db, err := strconv.Atoi(dbStr); err == nil {
			c.Redis.DB = db
		}
	}

	c.Redis.Addr = url
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) Save(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}
