package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// CloudflareConfig holds the DNS registrar settings.
type CloudflareConfig struct {
	Enabled  bool          `yaml:"enabled"`
	APIToken string        `yaml:"api_token"`
	ZoneID   string        `yaml:"zone_id"`
	Domain   string        `yaml:"domain"`
	PublicIP string        `yaml:"public_ip"`
	Timeout  time.Duration `yaml:"-"`
}

// IsConfigured reports whether the service is enabled with all required fields.
func (c CloudflareConfig) IsConfigured() bool {
	return c.Enabled && c.APIToken != "" && c.ZoneID != "" && c.Domain != ""
}

// UniFiConfig holds the router/firewall controller settings.
type UniFiConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BaseURL       string        `yaml:"base_url"`
	Site          string        `yaml:"site"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	IsUDM         bool          `yaml:"is_udm"`
	SkipTLSVerify bool          `yaml:"skip_tls_verify"`
	Timeout       time.Duration `yaml:"-"`
}

func (c UniFiConfig) IsConfigured() bool {
	return c.Enabled && c.BaseURL != "" && c.Username != "" && c.Password != ""
}

// NPMConfig holds the Nginx Proxy Manager settings.
type NPMConfig struct {
	Enabled  bool          `yaml:"enabled"`
	BaseURL  string        `yaml:"base_url"`
	Email    string        `yaml:"email"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"-"`
}

func (c NPMConfig) IsConfigured() bool {
	return c.Enabled && c.BaseURL != "" && c.Email != "" && c.Password != ""
}

// PterodactylConfig holds the game-hosting panel settings.
type PterodactylConfig struct {
	Enabled bool          `yaml:"enabled"`
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"-"`
}

func (c PterodactylConfig) IsConfigured() bool {
	return c.Enabled && c.BaseURL != "" && c.APIKey != ""
}

// UserCredential is one provisioned login, parsed from WINGMAN_USERS
// ("username:role:bcrypt-hash", comma separated).
type UserCredential struct {
	Username     string
	Role         string
	PasswordHash string
}

// Config holds all application configuration
type Config struct {
	// Server configuration
	Port     string
	LogLevel string
	LogFile  string

	// Storage configuration
	StorageMode      string // "dynamo" or "memory"
	AWSRegion        string
	DynamoDBEndpoint string
	DeploymentsTable string
	AuditTable       string

	// Auth configuration
	JWTSecret string
	JWTTTL    time.Duration
	Users     []UserCredential

	// Template storage
	TemplatesDir string

	// Rate limiting (requests per minute per client IP)
	RateLimitPerMinute      int
	LoginRateLimitPerMinute int

	// CORS allow-list; empty allows every origin
	AllowedOrigins []string

	// Audit streaming (disabled when no brokers are set)
	KafkaBrokers    []string
	KafkaAuditTopic string

	// Per-service adapter configuration
	Cloudflare  CloudflareConfig
	UniFi       UniFiConfig
	NPM         NPMConfig
	Pterodactyl PterodactylConfig
}

// fileConfig is the optional YAML overlay (WINGMAN_CONFIG). Environment
// variables override anything read from it.
type fileConfig struct {
	Cloudflare  CloudflareConfig  `yaml:"cloudflare"`
	UniFi       UniFiConfig       `yaml:"unifi"`
	NPM         NPMConfig         `yaml:"npm"`
	Pterodactyl PterodactylConfig `yaml:"pterodactyl"`
}

// New creates a new Config instance by loading environment variables
// from .env file (if present) and OS environment.
// OS environment variables take precedence over .env file values, which
// take precedence over the optional YAML config file.
// Panics if required configuration values are missing or invalid.
func New() *Config {
	// Load .env file from project root (silently ignore if not found)
	envPath := filepath.Join(".", ".env")
	_ = godotenv.Load(envPath)

	cfg := &Config{
		Port:     getEnvOrDefault("PORT", "10000"),
		LogLevel: getEnvOrDefault("LOG_LEVEL", "INFO"),
		LogFile:  os.Getenv("LOG_FILE"),

		StorageMode:      getEnvOrDefault("STORAGE_MODE", "dynamo"),
		AWSRegion:        getEnvOrDefault("AWS_REGION", "us-east-1"),
		DynamoDBEndpoint: os.Getenv("DYNAMODB_ENDPOINT"),
		DeploymentsTable: getEnvOrDefault("DEPLOYMENTS_TABLE", "WingmanDeployments"),
		AuditTable:       getEnvOrDefault("AUDIT_TABLE", "WingmanAuditEvents"),

		JWTSecret: os.Getenv("JWT_SECRET"),
		JWTTTL:    getEnvDuration("JWT_TTL", 8*time.Hour),
		Users:     parseUsers(os.Getenv("WINGMAN_USERS")),

		TemplatesDir: getEnvOrDefault("TEMPLATES_DIR", "templates/saved"),

		RateLimitPerMinute:      getEnvInt("RATE_LIMIT_PER_MINUTE", 200),
		LoginRateLimitPerMinute: getEnvInt("LOGIN_RATE_LIMIT_PER_MINUTE", 10),

		AllowedOrigins: splitNonEmpty(os.Getenv("ALLOWED_ORIGINS")),

		KafkaBrokers:    splitNonEmpty(os.Getenv("KAFKA_BROKERS")),
		KafkaAuditTopic: getEnvOrDefault("KAFKA_AUDIT_TOPIC", "wingman.audit"),
	}

	// Service blocks: YAML file first, then environment overrides.
	// Services default to enabled; deployment stages still skip any service
	// whose required fields are absent.
	if path := os.Getenv("WINGMAN_CONFIG"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			panic(fmt.Sprintf("Failed to load config file %s: %v", path, err))
		}
	} else {
		cfg.Cloudflare.Enabled = true
		cfg.UniFi.Enabled = true
		cfg.NPM.Enabled = true
		cfg.Pterodactyl.Enabled = true
		cfg.applyServiceDefaults()
	}
	cfg.applyServiceEnv()

	cfg.validate()

	return cfg
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	fc := fileConfig{}
	fc.Cloudflare.Enabled = true
	fc.UniFi.Enabled = true
	fc.NPM.Enabled = true
	fc.Pterodactyl.Enabled = true
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return err
	}
	cfg.Cloudflare = fc.Cloudflare
	cfg.UniFi = fc.UniFi
	cfg.NPM = fc.NPM
	cfg.Pterodactyl = fc.Pterodactyl
	cfg.applyServiceDefaults()
	return nil
}

// applyServiceDefaults fills defaults that hold regardless of source.
func (c *Config) applyServiceDefaults() {
	if c.Cloudflare.Timeout == 0 {
		c.Cloudflare.Timeout = 10 * time.Second
	}
	if c.UniFi.Timeout == 0 {
		c.UniFi.Timeout = 15 * time.Second
	}
	if c.UniFi.Site == "" {
		c.UniFi.Site = "default"
	}
	if c.NPM.Timeout == 0 {
		c.NPM.Timeout = 10 * time.Second
	}
	if c.Pterodactyl.Timeout == 0 {
		c.Pterodactyl.Timeout = 15 * time.Second
	}
}

// applyServiceEnv overlays per-service environment variables.
func (c *Config) applyServiceEnv() {
	overrideBool(&c.Cloudflare.Enabled, "CLOUDFLARE_ENABLED")
	overrideString(&c.Cloudflare.APIToken, "CLOUDFLARE_API_TOKEN")
	overrideString(&c.Cloudflare.ZoneID, "CLOUDFLARE_ZONE_ID")
	overrideString(&c.Cloudflare.Domain, "CLOUDFLARE_DOMAIN")
	overrideString(&c.Cloudflare.PublicIP, "CLOUDFLARE_PUBLIC_IP")
	overrideDuration(&c.Cloudflare.Timeout, "CLOUDFLARE_TIMEOUT")

	overrideBool(&c.UniFi.Enabled, "UNIFI_ENABLED")
	overrideString(&c.UniFi.BaseURL, "UNIFI_BASE_URL")
	overrideString(&c.UniFi.Site, "UNIFI_SITE")
	overrideString(&c.UniFi.Username, "UNIFI_USERNAME")
	overrideString(&c.UniFi.Password, "UNIFI_PASSWORD")
	overrideBool(&c.UniFi.IsUDM, "UNIFI_IS_UDM")
	overrideBool(&c.UniFi.SkipTLSVerify, "UNIFI_SKIP_TLS_VERIFY")
	overrideDuration(&c.UniFi.Timeout, "UNIFI_TIMEOUT")

	overrideBool(&c.NPM.Enabled, "NPM_ENABLED")
	overrideString(&c.NPM.BaseURL, "NPM_BASE_URL")
	overrideString(&c.NPM.Email, "NPM_EMAIL")
	overrideString(&c.NPM.Password, "NPM_PASSWORD")
	overrideDuration(&c.NPM.Timeout, "NPM_TIMEOUT")

	overrideBool(&c.Pterodactyl.Enabled, "PTERODACTYL_ENABLED")
	overrideString(&c.Pterodactyl.BaseURL, "PTERODACTYL_BASE_URL")
	overrideString(&c.Pterodactyl.APIKey, "PTERODACTYL_API_KEY")
	overrideDuration(&c.Pterodactyl.Timeout, "PTERODACTYL_TIMEOUT")
}

// validate checks that all required configuration values are present and valid
func (c *Config) validate() {
	var missing []string

	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(c.Users) == 0 {
		missing = append(missing, "WINGMAN_USERS")
	}

	if len(missing) > 0 {
		panic(fmt.Sprintf("Missing required configuration values: %v", missing))
	}

	if c.StorageMode != "dynamo" && c.StorageMode != "memory" {
		panic(fmt.Sprintf("STORAGE_MODE must be 'dynamo' or 'memory' (got '%s')", c.StorageMode))
	}

	for _, u := range c.Users {
		if u.Role != "admin" && u.Role != "operator" && u.Role != "viewer" {
			panic(fmt.Sprintf("WINGMAN_USERS: unknown role '%s' for user '%s'", u.Role, u.Username))
		}
	}
}

// ValidateService returns the missing required fields for one service, or
// nil when it is fully configured. Disabled services report a single
// "disabled" marker so the diagnostics endpoint can distinguish the cases.
func (c *Config) ValidateService(service string) []string {
	var missing []string
	appendIf := func(cond bool, field string) {
		if cond {
			missing = append(missing, field)
		}
	}

	switch service {
	case "cloudflare":
		if !c.Cloudflare.Enabled {
			return []string{"disabled"}
		}
		appendIf(c.Cloudflare.APIToken == "", "api_token")
		appendIf(c.Cloudflare.ZoneID == "", "zone_id")
		appendIf(c.Cloudflare.Domain == "", "domain")
	case "unifi":
		if !c.UniFi.Enabled {
			return []string{"disabled"}
		}
		appendIf(c.UniFi.BaseURL == "", "base_url")
		appendIf(c.UniFi.Username == "", "username")
		appendIf(c.UniFi.Password == "", "password")
	case "npm":
		if !c.NPM.Enabled {
			return []string{"disabled"}
		}
		appendIf(c.NPM.BaseURL == "", "base_url")
		appendIf(c.NPM.Email == "", "email")
		appendIf(c.NPM.Password == "", "password")
	case "pterodactyl":
		if !c.Pterodactyl.Enabled {
			return []string{"disabled"}
		}
		appendIf(c.Pterodactyl.BaseURL == "", "base_url")
		appendIf(c.Pterodactyl.APIKey == "", "api_key")
	default:
		missing = append(missing, "unknown service")
	}
	return missing
}

// ServiceNames lists the external services in stage order.
func ServiceNames() []string {
	return []string{"cloudflare", "unifi", "npm", "pterodactyl"}
}

// Masked returns the per-service configuration with secrets reduced to a
// masked form, safe to return from the API.
func (c *Config) Masked() map[string]map[string]interface{} {
	return map[string]map[string]interface{}{
		"cloudflare": {
			"enabled":   c.Cloudflare.Enabled,
			"api_token": maskSecret(c.Cloudflare.APIToken),
			"zone_id":   c.Cloudflare.ZoneID,
			"domain":    c.Cloudflare.Domain,
			"public_ip": c.Cloudflare.PublicIP,
		},
		"unifi": {
			"enabled":         c.UniFi.Enabled,
			"base_url":        c.UniFi.BaseURL,
			"site":            c.UniFi.Site,
			"username":        c.UniFi.Username,
			"password":        maskSecret(c.UniFi.Password),
			"is_udm":          c.UniFi.IsUDM,
			"skip_tls_verify": c.UniFi.SkipTLSVerify,
		},
		"npm": {
			"enabled":  c.NPM.Enabled,
			"base_url": c.NPM.BaseURL,
			"email":    c.NPM.Email,
			"password": maskSecret(c.NPM.Password),
		},
		"pterodactyl": {
			"enabled":  c.Pterodactyl.Enabled,
			"base_url": c.Pterodactyl.BaseURL,
			"api_key":  maskSecret(c.Pterodactyl.APIKey),
		},
	}
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

func parseUsers(raw string) []UserCredential {
	var users []UserCredential
	for _, entry := range splitNonEmpty(raw) {
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 {
			continue
		}
		users = append(users, UserCredential{
			Username:     strings.TrimSpace(parts[0]),
			Role:         strings.TrimSpace(parts[1]),
			PasswordHash: parts[2],
		})
	}
	return users
}

func splitNonEmpty(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// getEnvOrDefault returns the value of an environment variable or a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func overrideString(target *string, key string) {
	if value := os.Getenv(key); value != "" {
		*target = value
	}
}

func overrideBool(target *bool, key string) {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			*target = b
		}
	}
}

func overrideDuration(target *time.Duration, key string) {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			*target = d
		}
	}
}

// Helper methods for accessing configuration values

// GetPort returns the server port
func (c *Config) GetPort() string {
	return c.Port
}

// GetLogLevel returns the logging level
func (c *Config) GetLogLevel() string {
	return c.LogLevel
}

// GetAWSRegion returns the AWS region
func (c *Config) GetAWSRegion() string {
	return c.AWSRegion
}

// GetDeploymentsTable returns the deployments table name
func (c *Config) GetDeploymentsTable() string {
	return c.DeploymentsTable
}

// GetAuditTable returns the audit events table name
func (c *Config) GetAuditTable() string {
	return c.AuditTable
}

// AuditStreamingEnabled reports whether audit events are mirrored to Kafka.
func (c *Config) AuditStreamingEnabled() bool {
	return len(c.KafkaBrokers) > 0
}
