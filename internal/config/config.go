// Package config loads Atlas settings from the environment, optionally seeded
// from a .env file.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the server and atlasctl need at startup.
type Config struct {
	Addr          string
	DataDir       string
	DatabasePath  string
	UploadDir     string
	SecretKey     []byte
	PublicBaseURL string
	AllowedHosts  []string

	EnforceHTTPS bool
	CookieSecure bool
	HSTSMaxAge   int

	MaxRequestBytes      int64
	MaxMultipartParts    int
	HousekeepingInterval time.Duration
	ResetRetention       time.Duration
	LoginMaxAttempts     int
	LoginLockout         time.Duration
	InviteExpiry         time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	PostmarkToken string
	MailFrom      string

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string

	Backup    BackupConfig
	Bootstrap BootstrapAdmin

	LogLevel       string
	LogFormat      string
	OTELEndpoint   string
	OTELInsecure   bool
	OTELSampler    string
	OTELSamplerArg string
}

// BackupConfig drives atlasctl backup and restore-test.
type BackupConfig struct {
	Dir        string
	Passphrase string
	Gzip       bool
	KeepCount  int
	KeepDays   int

	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Prefix    string
}

// S3Enabled reports whether off-site upload is configured.
func (b BackupConfig) S3Enabled() bool {
	return b.S3Bucket != "" && b.S3AccessKey != "" && b.S3SecretKey != ""
}

// BootstrapAdmin describes the admin account created when none exists.
type BootstrapAdmin struct {
	Username string
	Email    string
	Password string
	FullName string
}

// Enabled reports whether enough fields are set to create the account.
func (b BootstrapAdmin) Enabled() bool {
	return b.Username != "" && b.Password != ""
}

const mb = 1024 * 1024

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	dataDir := envStr("DATA_DIR", "data")
	cfg := &Config{
		Addr:          envStr("ATLAS_ADDR", ":8080"),
		DataDir:       dataDir,
		DatabasePath:  envStr("DATABASE_PATH", filepath.Join(dataDir, "atlas.db")),
		UploadDir:     envStr("UPLOAD_DIR", filepath.Join(dataDir, "uploads")),
		PublicBaseURL: strings.TrimRight(envStr("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		AllowedHosts:  envList("ALLOWED_HOSTS"),

		EnforceHTTPS: envBool("ENFORCE_HTTPS", false),
		CookieSecure: envBool("COOKIE_SECURE", false),
		HSTSMaxAge:   atLeast(envInt("HSTS_MAX_AGE", 31536000), 0),

		MaxRequestBytes:      atLeast(int64(envInt("MAX_REQUEST_BYTES", 40*mb)), mb),
		MaxMultipartParts:    atLeast(envInt("MAX_MULTIPART_PARTS", 200), 10),
		HousekeepingInterval: atLeast(envDur("HOUSEKEEPING_INTERVAL_SECONDS", time.Hour), time.Minute),
		ResetRetention:       time.Duration(atLeast(envInt("PASSWORD_RESET_RETENTION_DAYS", 30), 1)) * 24 * time.Hour,
		LoginMaxAttempts:     atLeast(envInt("LOGIN_MAX_ATTEMPTS", 5), 1),
		LoginLockout:         atLeast(envDur("LOGIN_LOCK_SECONDS", 900*time.Second), time.Minute),
		InviteExpiry:         time.Duration(atLeast(envInt("INVITE_EXPIRY_HOURS", 72), 1)) * time.Hour,

		RedisAddr:     envStr("REDIS_ADDR", ""),
		RedisPassword: envStr("REDIS_PASSWORD", ""),
		RedisDB:       envInt("REDIS_DB", 0),

		PostmarkToken: envStr("POSTMARK_TOKEN", ""),
		MailFrom:      envStr("MAIL_FROM", "Atlas <no-reply@atlasbahamas.com>"),

		VAPIDPublicKey:  envStr("VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey: envStr("VAPID_PRIVATE_KEY", ""),
		VAPIDSubject:    envStr("VAPID_SUBJECT", "mailto:admin@atlasbahamas.com"),

		Backup: BackupConfig{
			Dir:         envStr("BACKUP_DIR", filepath.Join(dataDir, "backups")),
			Passphrase:  envStr("BACKUP_PASSPHRASE", ""),
			Gzip:        envBool("BACKUP_GZIP", true),
			KeepCount:   atLeast(envInt("BACKUP_KEEP_COUNT", 14), 1),
			KeepDays:    atLeast(envInt("BACKUP_KEEP_DAYS", 30), 1),
			S3Endpoint:  envStr("BACKUP_S3_ENDPOINT", ""),
			S3Region:    envStr("BACKUP_S3_REGION", "us-east-1"),
			S3Bucket:    envStr("BACKUP_S3_BUCKET", ""),
			S3AccessKey: envStr("BACKUP_S3_ACCESS_KEY", ""),
			S3SecretKey: envStr("BACKUP_S3_SECRET_KEY", ""),
			S3Prefix:    envStr("BACKUP_S3_PREFIX", "atlas"),
		},
		Bootstrap: BootstrapAdmin{
			Username: envStr("BOOTSTRAP_ADMIN_USERNAME", ""),
			Email:    envStr("BOOTSTRAP_ADMIN_EMAIL", ""),
			Password: os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"),
			FullName: envStr("BOOTSTRAP_ADMIN_FULL_NAME", "Atlas Administrator"),
		},

		LogLevel:       envStr("LOG_LEVEL", "info"),
		LogFormat:      envStr("LOG_FORMAT", "text"),
		OTELEndpoint:   envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:   envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		OTELSampler:    envStr("OTEL_TRACES_SAMPLER", ""),
		OTELSamplerArg: envStr("OTEL_TRACES_SAMPLER_ARG", ""),
	}

	if u, err := url.Parse(cfg.PublicBaseURL); err == nil && u.Scheme == "https" {
		cfg.CookieSecure = envBool("COOKIE_SECURE", true)
	}

	key, err := loadSecretKey(os.Getenv("SECRET_KEY"), filepath.Join(dataDir, "secret.key"))
	if err != nil {
		return nil, err
	}
	cfg.SecretKey = key

	return cfg, nil
}

// loadSecretKey returns the configured key, or reads (creating if needed) a
// random key stored at path.
func loadSecretKey(fromEnv, path string) ([]byte, error) {
	if v := strings.TrimSpace(fromEnv); v != "" {
		if len(v) < 32 {
			return nil, errors.New("SECRET_KEY must be at least 32 characters")
		}
		return []byte(v), nil
	}

	if data, err := os.ReadFile(path); err == nil {
		if key := strings.TrimSpace(string(data)); len(key) >= 32 {
			return []byte(key), nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read secret key: %w", err)
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate secret key: %w", err)
	}
	key := hex.EncodeToString(buf)

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(key+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("write secret key: %w", err)
	}
	return []byte(key), nil
}

// HostAllowed reports whether host (without port) may be used to build
// absolute URLs. An empty allow list accepts the public base URL host and
// loopback names.
func (c *Config) HostAllowed(host string) bool {
	host = strings.ToLower(host)
	if len(c.AllowedHosts) == 0 {
		if u, err := url.Parse(c.PublicBaseURL); err == nil && strings.EqualFold(u.Hostname(), host) {
			return true
		}
		return host == "localhost" || host == "127.0.0.1" || host == "::1"
	}
	for _, h := range c.AllowedHosts {
		if h == host || (strings.HasPrefix(h, ".") && strings.HasSuffix(host, h)) {
			return true
		}
	}
	return false
}
