package config

import (
	"sync/atomic"
	"time"
)

var configValue atomic.Value

func GetConfig() *Config {
	cfg, ok := configValue.Load().(*Config)
	if !ok {
		return NewDefaultConfig()
	}
	return cfg
}

func SetConfig(cfg *Config) {
	configValue.Store(cfg)
}

type Config struct {
	Version     string          `mapstructure:"version"`
	Environment string          `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"`
	Providers   ProvidersConfig `mapstructure:"providers"`
	Geo         GeoConfig       `mapstructure:"geo"`
	Cache       CacheConfig     `mapstructure:"cache"`
	Store       StoreConfig     `mapstructure:"store"`
	Notify      NotifyConfig    `mapstructure:"notify"`
	Logging     LoggingConfig   `mapstructure:"logging"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Host         string `mapstructure:"host"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"`
	// CallTimeout bounds each downstream operation, in seconds.
	CallTimeout int `mapstructure:"call_timeout"`
}

type ProvidersConfig struct {
	Postcode        ProviderConfig `mapstructure:"postcode"`
	PrimaryWeather  ProviderConfig `mapstructure:"primary_weather"`
	FallbackWeather ProviderConfig `mapstructure:"fallback_weather"`
	Incidents       ProviderConfig `mapstructure:"incidents"`
	Routing         ProviderConfig `mapstructure:"routing"`
}

type ProviderConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout int           `mapstructure:"timeout"`
	Breaker BreakerConfig `mapstructure:"breaker"`
}

func (p ProviderConfig) TimeoutDuration() time.Duration {
	if p.Timeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(p.Timeout) * time.Second
}

// BreakerConfig maps onto gobreaker settings. Interval and OpenTimeout are seconds.
type BreakerConfig struct {
	MaxRequests         uint32 `mapstructure:"max_requests"`
	Interval            int    `mapstructure:"interval"`
	OpenTimeout         int    `mapstructure:"open_timeout"`
	ConsecutiveFailures uint32 `mapstructure:"consecutive_failures"`
}

type GeoConfig struct {
	RadiusMiles float64 `mapstructure:"radius_miles"`
}

type CacheConfig struct {
	RefreshEnabled bool   `mapstructure:"refresh_enabled"`
	RefreshAt      string `mapstructure:"refresh_at"`
	Workers        int    `mapstructure:"workers"`
	// Timezone names the calendar used to decide "today". Empty means host local time.
	Timezone string `mapstructure:"timezone"`
}

type StoreConfig struct {
	Driver   string `mapstructure:"driver"`
	DSN      string `mapstructure:"dsn"`
	SeedFile string `mapstructure:"seed_file"`
	MaxConns int32  `mapstructure:"max_conns"`
}

type NotifyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

func defaultBreaker() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         1,
		Interval:            60,
		OpenTimeout:         30,
		ConsecutiveFailures: 5,
	}
}

func NewDefaultConfig() *Config {
	return &Config{
		Version:     "1.0.0",
		Environment: "development",
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  60,
			CallTimeout:  20,
		},
		Providers: ProvidersConfig{
			Postcode: ProviderConfig{
				BaseURL: "https://api.getthedata.com/postcode",
				Timeout: 10,
				Breaker: defaultBreaker(),
			},
			PrimaryWeather: ProviderConfig{
				BaseURL: "https://www.7timer.info/bin/civillight.php",
				Timeout: 10,
				Breaker: defaultBreaker(),
			},
			FallbackWeather: ProviderConfig{
				BaseURL: "https://api.open-meteo.com/v1/forecast",
				Timeout: 10,
				Breaker: defaultBreaker(),
			},
			Incidents: ProviderConfig{
				BaseURL: "https://data.police.uk/api/crimes-street",
				Timeout: 15,
				Breaker: defaultBreaker(),
			},
			Routing: ProviderConfig{
				BaseURL: "https://router.project-osrm.org/route/v1",
				Timeout: 10,
				Breaker: defaultBreaker(),
			},
		},
		Geo: GeoConfig{
			RadiusMiles: 0.5,
		},
		Cache: CacheConfig{
			RefreshEnabled: false,
			RefreshAt:      "00:05",
			Workers:        4,
		},
		Store: StoreConfig{
			Driver:   "memory",
			SeedFile: "",
			MaxConns: 10,
		},
		Notify: NotifyConfig{
			Enabled: false,
			Brokers: "localhost:9092",
			Topic:   "forecast-refreshed",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			OutputPath: "",
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			Endpoint:    "tempo:4317",
			ServiceName: "area-insight",
		},
	}
}
