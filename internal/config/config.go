// Package config loads gateway configuration from environment variables and
// an optional gateway.yaml file. Environment variables override file values.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigFile is the optional YAML config file looked up in the
// working directory.
const DefaultConfigFile = "gateway.yaml"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Env       string          `koanf:"env"`
	Auth      AuthConfig      `koanf:"auth"`
	CORS      CORSConfig      `koanf:"cors"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Proxy     ProxyConfig     `koanf:"proxy"`
	Registry  RegistryConfig  `koanf:"registry"`

	// Services maps a service name to its base URL. An empty URL means the
	// service is not deployed in this environment and its routes serve stubs.
	Services map[string]string `koanf:"services"`

	// Routes is the ordered route table. When empty, DefaultRoutes is used.
	// Order is significant: prefix ties resolve to the earlier entry.
	Routes []RouteConfig `koanf:"routes"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

type AuthConfig struct {
	// JWTSecret is the shared HS256 signing secret.
	JWTSecret string `koanf:"jwt_secret"`
	// ServiceURL is the base URL of the external token-revocation service.
	// Empty disables the advisory revocation check.
	ServiceURL string `koanf:"service_url"`
	// RevocationTimeout bounds the advisory revocation call.
	RevocationTimeout time.Duration `koanf:"revocation_timeout"`
}

type CORSConfig struct {
	Origins []string `koanf:"origins"`
}

type RateLimitConfig struct {
	// Window is the fixed-window length.
	Window time.Duration `koanf:"window"`
	// Max is the request budget per client per window.
	Max int `koanf:"max"`
	// TTL is how long an idle client entry survives before eviction.
	TTL time.Duration `koanf:"ttl"`
}

type ProxyConfig struct {
	// Timeout bounds a single proxied backend call.
	Timeout time.Duration `koanf:"timeout"`
}

type RegistryConfig struct {
	// Path is the SQLite file backing the dynamic service registry.
	// Empty disables persistence.
	Path string `koanf:"path"`
}

type RouteConfig struct {
	Name         string   `koanf:"name"`
	Prefix       string   `koanf:"prefix"`
	Target       string   `koanf:"target"`
	RequiresAuth bool     `koanf:"requires_auth"`
	Roles        []string `koanf:"roles"`
}

// envKeys maps the flat environment variable names the gateway consumes to
// dotted config keys. Unknown variables are ignored.
var envKeys = map[string]string{
	"PORT":                 "server.port",
	"NODE_ENV":             "env",
	"JWT_SECRET":           "auth.jwt_secret",
	"AUTH_SERVICE_URL":     "auth.service_url",
	"CORS_ORIGINS":         "cors.origins",
	"RATE_LIMIT_WINDOW":    "rate_limit.window",
	"RATE_LIMIT_MAX":       "rate_limit.max",
	"REGISTRY_DB_PATH":     "registry.path",
	"SURVEY_SERVICE_URL":   "services.surveys",
	"RESPONSE_SERVICE_URL": "services.responses",
	"TEMPLATE_SERVICE_URL": "services.templates",
	"AI_SERVICE_URL":       "services.ai",
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads gateway.yaml (if present) and the environment, applies defaults,
// and returns the effective configuration.
func Load() (*Config, error) {
	return LoadFile(DefaultConfigFile)
}

// LoadFile is Load with an explicit config file path. A missing file is not
// an error; env vars alone are a complete configuration.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
		}
	}

	// Environment variables override file config.
	if err := k.Load(env.Provider("", ".", func(s string) string {
		return envKeys[s]
	}), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	// Default values
	if !k.Exists("server.port") {
		k.Set("server.port", 8080)
	}
	if !k.Exists("env") {
		k.Set("env", "development")
	}
	if !k.Exists("auth.revocation_timeout") {
		k.Set("auth.revocation_timeout", "2s")
	}
	if !k.Exists("rate_limit.window") {
		k.Set("rate_limit.window", "15m")
	}
	if !k.Exists("rate_limit.max") {
		k.Set("rate_limit.max", 100)
	}
	if !k.Exists("rate_limit.ttl") {
		k.Set("rate_limit.ttl", "1h")
	}
	if !k.Exists("proxy.timeout") {
		k.Set("proxy.timeout", "30s")
	}

	// The default decoder has no string-to-slice hook, and CORS_ORIGINS is a
	// comma-separated list.
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
				mapstructure.TextUnmarshallerHookFunc(),
			),
			Result:           &cfg,
			WeaklyTypedInput: true,
		},
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Substitute environment variables in service and route targets.
	for name, url := range cfg.Services {
		cfg.Services[name] = substituteEnvVars(url)
	}
	for i := range cfg.Routes {
		cfg.Routes[i].Target = substituteEnvVars(cfg.Routes[i].Target)
	}

	if len(cfg.Routes) == 0 {
		cfg.Routes = DefaultRoutes(cfg.Services)
	}

	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return &cfg, nil
}

// DefaultRoutes returns the built-in route table. Registration order is the
// declaration order here; Resolve breaks prefix-length ties by this order.
func DefaultRoutes(services map[string]string) []RouteConfig {
	return []RouteConfig{
		{Name: "surveys", Prefix: "/api/surveys", Target: services["surveys"], RequiresAuth: true},
		{Name: "responses", Prefix: "/api/responses", Target: services["responses"], RequiresAuth: true},
		{Name: "templates", Prefix: "/api/templates", Target: services["templates"], RequiresAuth: true},
		{Name: "ai", Prefix: "/api/ai", Target: services["ai"], RequiresAuth: true},
		{Name: "public-survey", Prefix: "/public/survey", Target: services["surveys"]},
	}
}

// IsProduction reports whether error details should be withheld from
// response bodies.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
