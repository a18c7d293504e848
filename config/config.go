package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// AppConfig holds environment driven configuration values.
// Sensitive data should never have defaults inside code and must be provided via env files or the environment.
type AppConfig struct {
	AppPort            string   `env:"APP_PORT"`
	AppEnv             string   `env:"APP_ENV"`
	SessionSecret      string   `env:"SESSION_SECRET"`
	CookieName         string   `env:"COOKIE_NAME"`
	FrontendURL        string   `env:"FRONTEND_URL"`
	RateLimitPerMinute int      `env:"RATE_LIMIT_PER_MINUTE"`
	AllowedOrigins     []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	// Gin framework configuration
	GinMode string `env:"GIN_MODE"`
	GinPath string `env:"GIN_PATH"`
	// Database
	DBDriver    string `env:"DB_DRIVER"`
	DatabaseURI string `env:"DATABASE_URI"`
	DBHost      string `env:"DB_HOST"`
	DBPort      string `env:"DB_PORT"`
	DBUser      string `env:"DB_USER"`
	DBPassword  string `env:"DB_PASSWORD"`
	DBName      string `env:"DB_NAME"`
	DBSSLMode   string `env:"DB_SSLMODE"`
	// OAuth login
	GitHubClientID     string `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `env:"GITHUB_CLIENT_SECRET"`
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	OAuthRedirectBase  string `env:"OAUTH_REDIRECT_BASE_URL"`
	// SMTP for password reset mail
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPFromName string `env:"SMTP_FROM_NAME"`
	SMTPTLS      bool   `env:"SMTP_TLS"`
	// Redis for sessions, reset tokens and caching
	RedisHost     string `env:"REDIS_HOST"`
	RedisPort     int    `env:"REDIS_PORT"`
	RedisDB       int    `env:"REDIS_DB"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	// RabbitMQ mail queue; empty URL sends mail inline
	RabbitMQURL   string `env:"RABBITMQ_URL"`
	MailQueueName string `env:"MAIL_QUEUE_NAME"`
	// Logging configuration
	LogLevel      string `env:"LOG_LEVEL"`
	LogPath       string `env:"LOG_PATH"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS"`
	LogMaxAgeDays int    `env:"LOG_MAX_AGE_DAYS"`
	LogCompress   bool   `env:"LOG_COMPRESS"`
}

// IsProd reports whether cookies must be marked secure.
func (c AppConfig) IsProd() bool {
	return c.AppEnv == "production"
}

var cfg AppConfig
var loaded bool

// Load loads the application configuration. It should be called once during boot.
func Load() AppConfig {
	if loaded {
		return cfg
	}
	c, err := Read(filepath.Join("config", "config.json"))
	if err != nil {
		log.Fatal(err)
	}
	cfg = c
	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// Read builds a configuration from config.json overridden by .env and the environment.
// Defaults fill whatever is still unset, so driver dependent defaults follow DB_DRIVER.
func Read(jsonPath string) (AppConfig, error) {
	var c AppConfig
	if err := loadJSONConfig(jsonPath, &c); err != nil {
		return c, fmt.Errorf("parse %s: %w", jsonPath, err)
	}
	if err := applyEnvOverrides(&c); err != nil {
		return c, err
	}
	applyDefaults(&c)
	if c.SessionSecret == "" {
		return c, errors.New("SESSION_SECRET must be set in environment variables")
	}
	if c.DBDriver != "postgres" && c.DBDriver != "mysql" {
		return c, fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	return c, nil
}

type fileConfig struct {
	App struct {
		AppPort            string
		AppEnv             string
		SessionSecret      string
		CookieName         string
		FrontendURL        string
		RateLimitPerMinute int
		AllowedOrigins     []string
	} `json:"app"`
	Gin struct {
		Mode string
		Path string
	} `json:"gin"`
	Database struct {
		Driver   string
		URI      string
		Host     string
		Port     string
		User     string
		Password string
		Name     string
		SSLMode  string
	} `json:"database"`
	OAuth struct {
		GitHubClientID     string
		GitHubClientSecret string
		GoogleClientID     string
		GoogleClientSecret string
		RedirectBase       string
	} `json:"oauth"`
	SMTP struct {
		Host     string
		Port     int
		Username string
		Password string
		From     string
		FromName string
		TLS      bool
	} `json:"smtp"`
	Redis struct {
		Host     string
		Port     int
		DB       int
		Password string
	} `json:"redis"`
	RabbitMQ struct {
		URL   string
		Queue string
	} `json:"rabbitmq"`
	Log struct {
		Level      string
		Path       string
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
		Compress   bool
	} `json:"log"`
}

// loadJSONConfig reads the grouped JSON file into out if present. Returns error only for invalid JSON.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil // silently ignore missing file
	}
	defer f.Close()

	var fc fileConfig
	if err := json.NewDecoder(f).Decode(&fc); err != nil {
		return err
	}

	out.AppPort = fc.App.AppPort
	out.AppEnv = fc.App.AppEnv
	out.SessionSecret = fc.App.SessionSecret
	out.CookieName = fc.App.CookieName
	out.FrontendURL = fc.App.FrontendURL
	out.RateLimitPerMinute = fc.App.RateLimitPerMinute
	out.AllowedOrigins = fc.App.AllowedOrigins

	out.GinMode = fc.Gin.Mode
	out.GinPath = fc.Gin.Path

	out.DBDriver = fc.Database.Driver
	out.DatabaseURI = fc.Database.URI
	out.DBHost = fc.Database.Host
	out.DBPort = fc.Database.Port
	out.DBUser = fc.Database.User
	out.DBPassword = fc.Database.Password
	out.DBName = fc.Database.Name
	out.DBSSLMode = fc.Database.SSLMode

	out.GitHubClientID = fc.OAuth.GitHubClientID
	out.GitHubClientSecret = fc.OAuth.GitHubClientSecret
	out.GoogleClientID = fc.OAuth.GoogleClientID
	out.GoogleClientSecret = fc.OAuth.GoogleClientSecret
	out.OAuthRedirectBase = fc.OAuth.RedirectBase

	out.SMTPHost = fc.SMTP.Host
	out.SMTPPort = fc.SMTP.Port
	out.SMTPUsername = fc.SMTP.Username
	out.SMTPPassword = fc.SMTP.Password
	out.SMTPFrom = fc.SMTP.From
	out.SMTPFromName = fc.SMTP.FromName
	out.SMTPTLS = fc.SMTP.TLS

	out.RedisHost = fc.Redis.Host
	out.RedisPort = fc.Redis.Port
	out.RedisDB = fc.Redis.DB
	out.RedisPassword = fc.Redis.Password

	out.RabbitMQURL = fc.RabbitMQ.URL
	out.MailQueueName = fc.RabbitMQ.Queue

	out.LogLevel = fc.Log.Level
	out.LogPath = fc.Log.Path
	out.LogMaxSizeMB = fc.Log.MaxSizeMB
	out.LogMaxBackups = fc.Log.MaxBackups
	out.LogMaxAgeDays = fc.Log.MaxAgeDays
	out.LogCompress = fc.Log.Compress
	return nil
}

// applyDefaults fills zero values.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "4000"
	}
	if c.AppEnv == "" {
		c.AppEnv = "development"
	}
	if c.CookieName == "" {
		c.CookieName = "qid"
	}
	if c.FrontendURL == "" {
		c.FrontendURL = "http://localhost:3000"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 120
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{c.FrontendURL}
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/gin.log"
	}
	if c.DBDriver == "" {
		c.DBDriver = "postgres"
	}
	if c.DBHost == "" {
		c.DBHost = "127.0.0.1"
	}
	if c.DBPort == "" {
		if c.DBDriver == "mysql" {
			c.DBPort = "3306"
		} else {
			c.DBPort = "5432"
		}
	}
	if c.DBUser == "" {
		if c.DBDriver == "mysql" {
			c.DBUser = "root"
		} else {
			c.DBUser = "postgres"
		}
	}
	if c.DBName == "" {
		c.DBName = "gqlbbs"
	}
	if c.DBSSLMode == "" {
		c.DBSSLMode = "disable"
	}
	if c.OAuthRedirectBase == "" {
		c.OAuthRedirectBase = "http://localhost:4000"
	}
	if c.SMTPPort == 0 {
		c.SMTPPort = 587
	}
	if c.RedisHost == "" {
		c.RedisHost = "127.0.0.1"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.MailQueueName == "" {
		c.MailQueueName = "gqlbbs_mail"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
}

// applyEnvOverrides loads an optional .env file then maps set environment variables onto c.
// Unset variables leave the existing value untouched.
func applyEnvOverrides(c *AppConfig) error {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}
