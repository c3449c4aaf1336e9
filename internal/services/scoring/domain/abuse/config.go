package abuse

import (
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/questline/internal/platform/config"
)

// Scope is one independent rate-limiting axis.
type Scope string

const (
	ScopeAPIKey       Scope = "api_key"
	ScopeIP           Scope = "ip"
	ScopeExternalUser Scope = "external_user"
)

// Limit holds a scope's thresholds. Values of zero or less disable that
// window.
type Limit struct {
	PerWindow int64
	PerDay    int64
}

// Config configures the gate.
type Config struct {
	Window        time.Duration `env:"RATE_LIMIT_WINDOW"         envDefault:"60s"`
	MaxWindow     time.Duration `env:"RATE_LIMIT_MAX_WINDOW"     envDefault:"1h"`
	WindowEnabled bool          `env:"RATE_LIMIT_WINDOW_ENABLED" envDefault:"true"`
	DailyEnabled  bool          `env:"RATE_LIMIT_DAILY_ENABLED"  envDefault:"true"`
	// Timezone decides where calendar days start for the daily quota.
	Timezone string `env:"RATE_LIMIT_TIMEZONE" envDefault:"UTC"`

	APIKeyPerWindow int64 `env:"RATE_LIMIT_API_KEY_PER_WINDOW" envDefault:"120"`
	APIKeyPerDay    int64 `env:"RATE_LIMIT_API_KEY_PER_DAY"    envDefault:"10000"`
	IPPerWindow     int64 `env:"RATE_LIMIT_IP_PER_WINDOW"      envDefault:"60"`
	IPPerDay        int64 `env:"RATE_LIMIT_IP_PER_DAY"         envDefault:"5000"`
	UserPerWindow   int64 `env:"RATE_LIMIT_USER_PER_WINDOW"    envDefault:"30"`
	UserPerDay      int64 `env:"RATE_LIMIT_USER_PER_DAY"       envDefault:"1000"`
}

// DefaultConfig returns the built-in limits.
func DefaultConfig() Config {
	return Config{
		Window:          time.Minute,
		MaxWindow:       time.Hour,
		WindowEnabled:   true,
		DailyEnabled:    true,
		Timezone:        "UTC",
		APIKeyPerWindow: 120,
		APIKeyPerDay:    10000,
		IPPerWindow:     60,
		IPPerDay:        5000,
		UserPerWindow:   30,
		UserPerDay:      1000,
	}
}

// LoadConfig reads the gate configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Limit returns the thresholds for scope.
func (c Config) Limit(scope Scope) Limit {
	switch scope {
	case ScopeAPIKey:
		return Limit{PerWindow: c.APIKeyPerWindow, PerDay: c.APIKeyPerDay}
	case ScopeIP:
		return Limit{PerWindow: c.IPPerWindow, PerDay: c.IPPerDay}
	case ScopeExternalUser:
		return Limit{PerWindow: c.UserPerWindow, PerDay: c.UserPerDay}
	default:
		return Limit{}
	}
}

// effectiveWindow caps the short window at MaxWindow.
func (c Config) effectiveWindow() (time.Duration, error) {
	window := c.Window
	if window < time.Second {
		return 0, fmt.Errorf("rate limit window must be at least 1s, got %s", window)
	}
	if c.MaxWindow > 0 && window > c.MaxWindow {
		window = c.MaxWindow
	}
	return window.Truncate(time.Second), nil
}

func (c Config) location() (*time.Location, error) {
	name := strings.TrimSpace(c.Timezone)
	if name == "" || strings.EqualFold(name, "UTC") {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load rate limit timezone: %w", err)
	}
	return loc, nil
}
