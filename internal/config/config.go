// Package config loads service settings from an optional YAML file, .env files and the
// environment, in that order of precedence (environment wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"sitegate.io/internal/auth"
	"sitegate.io/internal/ratelimit"
)

const (
	PortalClient        = "client"
	PortalSubcontractor = "subcontractor"

	// Development-only secrets. Validate rejects them in production.
	devClientSecret        = "dev-client-portal-secret-change-me-0000"
	devSubcontractorSecret = "dev-subcontractor-portal-secret-change-me"
)

// RatePolicy is the YAML form of ratelimit.Policy.
type RatePolicy struct {
	Max                 int           `yaml:"max"`
	Window              time.Duration `yaml:"window"`
	BlockDuration       time.Duration `yaml:"block_duration"`
	SuspiciousThreshold int           `yaml:"suspicious_threshold"`
}

// Policy converts to the limiter's type.
func (p RatePolicy) Policy() ratelimit.Policy {
	return ratelimit.Policy{
		Max:                 p.Max,
		Window:              p.Window,
		BlockDuration:       p.BlockDuration,
		SuspiciousThreshold: p.SuspiciousThreshold,
	}
}

// PortalConfig describes one portal: its routes, cookie, token audience and limits.
type PortalConfig struct {
	Name             string        `yaml:"name"`
	PagePrefix       string        `yaml:"page_prefix"`
	APIPrefix        string        `yaml:"api_prefix"`
	LoginPath        string        `yaml:"login_path"`
	CookieName       string        `yaml:"cookie_name"`
	Audience         string        `yaml:"audience"`
	Issuer           string        `yaml:"issuer"`
	Secret           string        `yaml:"secret"`
	Lifetime         time.Duration `yaml:"lifetime"`
	RefreshThreshold time.Duration `yaml:"refresh_threshold"`
	PublicRoutes     []string      `yaml:"public_routes"`
	ExcludeFromLog   []string      `yaml:"exclude_from_log"`
	API              RatePolicy    `yaml:"api_rate"`
	Login            RatePolicy    `yaml:"login_rate"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	// SecureCookie defaults to true outside development when unset.
	SecureCookie     *bool         `yaml:"secure_cookie"`
}

// TokenAudience builds the codec audience for this portal.
func (p PortalConfig) TokenAudience() auth.Audience {
	return auth.Audience{
		Name:     p.Audience,
		Issuer:   p.Issuer,
		Secret:   []byte(p.Secret),
		Lifetime: p.Lifetime,
	}
}

// CookieSecure reports whether the session cookie carries the Secure attribute.
func (p PortalConfig) CookieSecure() bool {
	return p.SecureCookie != nil && *p.SecureCookie
}

// Role is the account role served by the portal.
func (p PortalConfig) Role() auth.Role {
	if p.Name == PortalClient {
		return auth.RoleClient
	}
	return auth.RoleSubcontractor
}

// SessionPolicy returns the portal's lifetime and refresh threshold.
func (p PortalConfig) SessionPolicy() auth.SessionPolicy {
	return auth.SessionPolicy{Lifetime: p.Lifetime, RefreshThreshold: p.RefreshThreshold}
}

type Config struct {
	Env        string `yaml:"env"`
	TrustProxy bool   `yaml:"trust_proxy"`

	HTTP struct {
		Addr            string        `yaml:"addr"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		IdleTimeout     time.Duration `yaml:"idle_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		MaxBodyBytes    int64         `yaml:"max_body_bytes"`
		CORSOrigins     []string      `yaml:"cors_origins"`
		// Anonymous flood guard, token bucket per client fingerprint.
		AnonRPS   float64 `yaml:"anon_rps"`
		AnonBurst int     `yaml:"anon_burst"`
	} `yaml:"http"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Postgres struct {
		DSN string `yaml:"dsn"`
	} `yaml:"postgres"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Kafka struct {
		Brokers    []string `yaml:"brokers"`
		AlertTopic string   `yaml:"alert_topic"`
	} `yaml:"kafka"`

	Audit struct {
		QueueSize int `yaml:"queue_size"`
	} `yaml:"audit"`

	Client        PortalConfig `yaml:"client"`
	Subcontractor PortalConfig `yaml:"subcontractor"`
}

// Portals returns both portal configs, client first.
func (c *Config) Portals() []PortalConfig {
	return []PortalConfig{c.Client, c.Subcontractor}
}

// IsProduction reports whether strict validation applies.
func (c *Config) IsProduction() bool {
	switch strings.ToLower(strings.TrimSpace(c.Env)) {
	case "prod", "production", "staging":
		return true
	}
	return false
}

// Default returns the development configuration without reading files or the environment.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads path (optional, may be empty), then .env files, then environment overrides, and
// fills defaults. It does not validate; call Validate.
func Load(path string) (*Config, error) {
	// .env is optional; values already in the environment are not overwritten.
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv("SITEGATE_CONFIG")
	}
	c := &Config{}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	c.applyDefaults()
	return c, nil
}

func (c *Config) applyEnv() error {
	setStr(&c.Env, "SITEGATE_ENV")
	setStr(&c.HTTP.Addr, "SITEGATE_HTTP_ADDR")
	setStr(&c.Log.Level, "SITEGATE_LOG_LEVEL")
	setStr(&c.Postgres.DSN, "SITEGATE_PG_DSN")
	setStr(&c.Redis.Addr, "SITEGATE_REDIS_ADDR")
	setStr(&c.Redis.Password, "SITEGATE_REDIS_PASSWORD")
	setStr(&c.Kafka.AlertTopic, "SITEGATE_ALERT_TOPIC")
	setStr(&c.Client.Secret, "CLIENT_PORTAL_JWT_SECRET")
	setStr(&c.Subcontractor.Secret, "SUBCONTRACTOR_PORTAL_JWT_SECRET")
	if v := strings.TrimSpace(os.Getenv("SITEGATE_KAFKA_BROKERS")); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := strings.TrimSpace(os.Getenv("SITEGATE_CORS_ORIGINS")); v != "" {
		c.HTTP.CORSOrigins = splitList(v)
	}
	if v := strings.TrimSpace(os.Getenv("SITEGATE_TRUST_PROXY")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SITEGATE_TRUST_PROXY: %w", err)
		}
		c.TrustProxy = b
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Env == "" {
		c.Env = "development"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 15 * time.Second
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = 15 * time.Second
	}
	if c.HTTP.IdleTimeout == 0 {
		c.HTTP.IdleTimeout = 60 * time.Second
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.HTTP.MaxBodyBytes == 0 {
		c.HTTP.MaxBodyBytes = 1 << 20
	}
	if c.HTTP.AnonRPS == 0 {
		c.HTTP.AnonRPS = 20
	}
	if c.HTTP.AnonBurst == 0 {
		c.HTTP.AnonBurst = 40
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Kafka.AlertTopic == "" {
		c.Kafka.AlertTopic = "sitegate.security-alerts"
	}
	if c.Audit.QueueSize == 0 {
		c.Audit.QueueSize = 1024
	}
	dev := !c.IsProduction()
	c.Client = withPortalDefaults(c.Client, clientDefaults(dev))
	c.Subcontractor = withPortalDefaults(c.Subcontractor, subcontractorDefaults(dev))
}

func clientDefaults(dev bool) PortalConfig {
	session := auth.DefaultSessionPolicy()
	p := PortalConfig{
		Name:             PortalClient,
		PagePrefix:       "/client-portal",
		APIPrefix:        "/client-portal/api",
		LoginPath:        "/client-portal/login",
		CookieName:       "client-portal-token",
		Audience:         "client-portal",
		Issuer:           "sitegate-client-portal",
		Lifetime:         session.Lifetime,
		RefreshThreshold: session.RefreshThreshold,
		PublicRoutes: []string{
			"/client-portal/login",
			"/client-portal/api/auth/login",
			"/client-portal/api/auth/logout",
		},
		ExcludeFromLog: []string{"/client-portal/static/", "/client-portal/favicon.ico"},
		API:            RatePolicy{Max: 100, Window: 15 * time.Minute},
		Login:          RatePolicy{Max: 10, Window: 15 * time.Minute, BlockDuration: time.Hour, SuspiciousThreshold: 30},
		RequestTimeout: 5 * time.Second,
		SecureCookie:   boolPtr(!dev),
	}
	if dev {
		p.Secret = devClientSecret
	}
	return p
}

func subcontractorDefaults(dev bool) PortalConfig {
	session := auth.DefaultSessionPolicy()
	p := PortalConfig{
		Name:             PortalSubcontractor,
		PagePrefix:       "/subcontractor",
		APIPrefix:        "/subcontractor/api",
		LoginPath:        "/subcontractor/login",
		CookieName:       "subcontractor-portal-token",
		Audience:         "subcontractor-portal",
		Issuer:           "sitegate-subcontractor-portal",
		Lifetime:         session.Lifetime,
		RefreshThreshold: session.RefreshThreshold,
		PublicRoutes: []string{
			"/subcontractor/login",
			"/subcontractor/api/auth/login",
			"/subcontractor/api/auth/logout",
		},
		ExcludeFromLog: []string{"/subcontractor/static/", "/subcontractor/favicon.ico"},
		API:            RatePolicy{Max: 50, Window: 15 * time.Minute},
		Login:          RatePolicy{Max: 10, Window: 15 * time.Minute, BlockDuration: time.Hour, SuspiciousThreshold: 30},
		RequestTimeout: 5 * time.Second,
		SecureCookie:   boolPtr(!dev),
	}
	if dev {
		p.Secret = devSubcontractorSecret
	}
	return p
}

// withPortalDefaults fills zero fields of p from d. Slices are replaced only when empty.
func withPortalDefaults(p, d PortalConfig) PortalConfig {
	if p.Name == "" {
		p.Name = d.Name
	}
	if p.PagePrefix == "" {
		p.PagePrefix = d.PagePrefix
	}
	if p.APIPrefix == "" {
		p.APIPrefix = d.APIPrefix
	}
	if p.LoginPath == "" {
		p.LoginPath = d.LoginPath
	}
	if p.CookieName == "" {
		p.CookieName = d.CookieName
	}
	if p.Audience == "" {
		p.Audience = d.Audience
	}
	if p.Issuer == "" {
		p.Issuer = d.Issuer
	}
	if p.Secret == "" {
		p.Secret = d.Secret
	}
	if p.Lifetime == 0 {
		p.Lifetime = d.Lifetime
	}
	if p.RefreshThreshold == 0 {
		p.RefreshThreshold = d.RefreshThreshold
	}
	if len(p.PublicRoutes) == 0 {
		p.PublicRoutes = d.PublicRoutes
	}
	if len(p.ExcludeFromLog) == 0 {
		p.ExcludeFromLog = d.ExcludeFromLog
	}
	if p.API.Max == 0 {
		p.API = d.API
	}
	if p.Login.Max == 0 {
		p.Login = d.Login
	}
	if p.RequestTimeout == 0 {
		p.RequestTimeout = d.RequestTimeout
	}
	if p.SecureCookie == nil {
		p.SecureCookie = d.SecureCookie
	}
	return p
}

func boolPtr(v bool) *bool { return &v }

// Validate checks structural consistency always, and secret hygiene in production. Any error
// must stop the process: a portal with a weak or shared secret cannot be served.
func (c *Config) Validate() error {
	var errs []error
	for _, p := range c.Portals() {
		if err := p.validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Client.Audience == c.Subcontractor.Audience {
		errs = append(errs, errors.New("config: portals must use distinct audiences"))
	}
	if c.Client.CookieName == c.Subcontractor.CookieName {
		errs = append(errs, errors.New("config: portals must use distinct cookie names"))
	}
	if c.IsProduction() {
		errs = append(errs, c.validateProduction()...)
	}
	return errors.Join(errs...)
}

func (p PortalConfig) validate() error {
	switch {
	case p.Secret == "":
		return fmt.Errorf("config: %s portal secret is not set", p.Name)
	case len(p.Secret) < auth.MinSecretLength:
		return fmt.Errorf("config: %s portal secret must be at least %d bytes", p.Name, auth.MinSecretLength)
	case p.Lifetime <= 0:
		return fmt.Errorf("config: %s portal lifetime must be positive", p.Name)
	case p.RefreshThreshold < 0 || p.RefreshThreshold >= p.Lifetime:
		return fmt.Errorf("config: %s portal refresh threshold must be below the lifetime", p.Name)
	case !strings.HasPrefix(p.APIPrefix, p.PagePrefix):
		return fmt.Errorf("config: %s portal api prefix must sit under %s", p.Name, p.PagePrefix)
	case p.API.Max <= 0 || p.API.Window <= 0:
		return fmt.Errorf("config: %s portal api rate policy needs max and window", p.Name)
	}
	return nil
}

func (c *Config) validateProduction() []error {
	var errs []error
	for _, p := range c.Portals() {
		if p.Secret == devClientSecret || p.Secret == devSubcontractorSecret {
			errs = append(errs, fmt.Errorf("%s: strict production hardening forbids the development secret", p.Name))
		}
		if !p.CookieSecure() {
			errs = append(errs, fmt.Errorf("%s: strict production hardening requires secure_cookie=true", p.Name))
		}
	}
	if c.Client.Secret != "" && c.Client.Secret == c.Subcontractor.Secret {
		errs = append(errs, errors.New("strict production hardening requires distinct portal secrets"))
	}
	if c.Postgres.DSN == "" {
		errs = append(errs, errors.New("strict production hardening requires SITEGATE_PG_DSN"))
	}
	for _, o := range c.HTTP.CORSOrigins {
		if strings.TrimSpace(o) == "*" {
			errs = append(errs, errors.New("strict production hardening forbids CORS wildcard origin"))
		}
	}
	return errs
}

func setStr(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
