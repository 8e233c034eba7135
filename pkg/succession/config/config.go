package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment variable overrides
const EnvPrefix = "SUCCESSION"

// Database drivers understood by database.Open
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrMissingJWTSecret is returned when no signing secret is configured
// outside of debug mode
var ErrMissingJWTSecret = errors.New("jwt secret must be set (SUCCESSION_JWT_SECRET)")

// Access holds the role lists consulted by the permission policy. Role names
// are free-form strings so these lists are data, not code.
type Access struct {
	HRRoles                []string `yaml:"hrRoles"                envconfig:"HR_ROLES"`
	RoleManagerRoles       []string `yaml:"roleManagerRoles"       envconfig:"ROLE_MANAGER_ROLES"`
	AdminRoles             []string `yaml:"adminRoles"             envconfig:"ADMIN_ROLES"`
	GlobalScopeDepartments []string `yaml:"globalScopeDepartments" envconfig:"GLOBAL_SCOPE_DEPARTMENTS"`
}

// Import holds bulk import defaults
type Import struct {
	DefaultEmailDomain string `yaml:"defaultEmailDomain" envconfig:"DEFAULT_EMAIL_DOMAIN"`
}

// RateLimit configures the per-client token bucket on credential endpoints.
// A zero PerSecond disables limiting.
type RateLimit struct {
	PerSecond float64 `yaml:"perSecond" split_words:"true"`
	Burst     int     `yaml:"burst"`
}

type Config struct {
	BindAddr         string        `yaml:"bindAddr"         split_words:"true"`
	Port             uint          `yaml:"port"`
	DatabaseDriver   string        `yaml:"databaseDriver"   split_words:"true"`
	DatabaseURL      string        `yaml:"databaseUrl"      envconfig:"DATABASE_URL"`
	JWTSecret        string        `yaml:"jwtSecret"        envconfig:"JWT_SECRET"`
	TokenTTL         time.Duration `yaml:"tokenTtl"         envconfig:"TOKEN_TTL"`
	ResetTokenTTL    time.Duration `yaml:"resetTokenTtl"    envconfig:"RESET_TOKEN_TTL"`
	FrontendURL      string        `yaml:"frontendUrl"      envconfig:"FRONTEND_URL"`
	LogLevel         string        `yaml:"logLevel"         split_words:"true"`
	Debug            bool          `yaml:"debug"`
	ExposeResetToken bool          `yaml:"exposeResetToken" split_words:"true"`
	AuditQueueSize   int           `yaml:"auditQueueSize"   split_words:"true"`
	AuthRateLimit    RateLimit     `yaml:"authRateLimit"    split_words:"true"`
	AllowedOrigins   []string      `yaml:"allowedOrigins"   split_words:"true"`
	MaxUploadBytes   int64         `yaml:"maxUploadBytes"   split_words:"true"`
	SeedDemoData     bool          `yaml:"seedDemoData"     split_words:"true"`
	AdminName        string        `yaml:"adminName"        split_words:"true"`
	AdminEmail       string        `yaml:"adminEmail"       split_words:"true"`
	AdminPassword    string        `yaml:"adminPassword"    split_words:"true"`
	AdminDepartment  string        `yaml:"adminDepartment"  split_words:"true"`
	Access           Access        `yaml:"access"`
	Import           Import        `yaml:"import"`
}

// Default returns the built-in configuration before any file or
// environment overrides are applied
func Default() *Config {
	return &Config{
		BindAddr:       "0.0.0.0",
		Port:           5000,
		DatabaseDriver: DriverSQLite,
		DatabaseURL:    "hr_succession.db",
		TokenTTL:       24 * time.Hour,
		ResetTokenTTL:  time.Hour,
		FrontendURL:    "http://localhost:3000",
		LogLevel:       "info",
		AuditQueueSize: 256,
		AuthRateLimit: RateLimit{
			PerSecond: 1,
			Burst:     10,
		},
		AllowedOrigins:  []string{"http://localhost:3000"},
		MaxUploadBytes:  10 << 20,
		AdminName:       "Admin User",
		AdminEmail:      "admin@company.com",
		AdminPassword:   "Admin123!",
		AdminDepartment: "HR",
		Access: Access{
			HRRoles: []string{
				"admin",
				"hr_manager",
				"HR Manager",
				"HR Business Partner",
				"Recruitment Specialist",
				"Talent Acquisition Manager",
				"Learning & Development Specialist",
				"Compensation & Benefits Analyst",
				"Employee Relations Specialist",
				"HR Operations Specialist",
			},
			RoleManagerRoles:       []string{"hr_manager"},
			AdminRoles:             []string{"admin"},
			GlobalScopeDepartments: []string{"CCR"},
		},
		Import: Import{
			DefaultEmailDomain: "company.com",
		},
	}
}

// LoadConfig builds the configuration from defaults, an optional YAML file
// and SUCCESSION_* environment variables, in that order of precedence
func LoadConfig(configFile string) (*Config, error) {
	cfg := Default()
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that cannot be defaulted
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		if !c.Debug {
			return ErrMissingJWTSecret
		}
		c.JWTSecret = "dev-secret-change-me"
	}
	switch c.DatabaseDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported database driver %q", c.DatabaseDriver)
	}
	if c.TokenTTL <= 0 {
		return errors.New("tokenTtl must be positive")
	}
	if c.ResetTokenTTL <= 0 {
		return errors.New("resetTokenTtl must be positive")
	}
	return nil
}

// ListenAddr returns the host:port the HTTP server binds to
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.BindAddr, c.Port)
}
