package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Room     RoomConfig     `mapstructure:"room"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
}

type ServerConfig struct {
	HTTPAddress    string `mapstructure:"http_address"`
	MetricsAddress string `mapstructure:"metrics_address"`
	RPCAddress     string `mapstructure:"rpc_address"`
	HealthAddress  string `mapstructure:"health_address"`
	// PublicURL is the base used in join links and QR codes.
	PublicURL         string        `mapstructure:"public_url"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

type RoomConfig struct {
	ChallengeWindow time.Duration `mapstructure:"challenge_window"`
	BlockWindow     time.Duration `mapstructure:"block_window"`
	ChoiceWindow    time.Duration `mapstructure:"choice_window"`
	DisconnectGrace time.Duration `mapstructure:"disconnect_grace"`
	TeardownGrace   time.Duration `mapstructure:"teardown_grace"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	TimerResolution time.Duration `mapstructure:"timer_resolution"`
	InboxSize       int           `mapstructure:"inbox_size"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type DatabaseConfig struct {
	// Without Enabled finished matches are kept in memory only.
	Enabled bool `mapstructure:"enabled"`
	// Driver is gorm or sql.
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN returns the libpq connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.metrics_address", ":9090")
	v.SetDefault("server.rpc_address", ":8081")
	v.SetDefault("server.health_address", ":8082")
	v.SetDefault("server.public_url", "http://localhost:8080")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.heartbeat_interval", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("room.challenge_window", 15*time.Second)
	v.SetDefault("room.block_window", 15*time.Second)
	v.SetDefault("room.choice_window", 30*time.Second)
	v.SetDefault("room.disconnect_grace", 60*time.Second)
	v.SetDefault("room.teardown_grace", 60*time.Second)
	v.SetDefault("room.idle_timeout", time.Hour)
	v.SetDefault("room.sweep_interval", 15*time.Minute)
	v.SetDefault("room.timer_resolution", 100*time.Millisecond)
	v.SetDefault("room.inbox_size", 64)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.driver", "gorm")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "coup")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.dbname", "coup")
	v.SetDefault("database.postgres.sslmode", "disable")
}

// LoadConfig reads config.yaml from path if present. Every key can be
// overridden from the environment as COUP_SECTION_KEY.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("coup")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "gorm", "sql":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Room.InboxSize <= 0 {
		return errors.New("room.inbox_size must be positive")
	}
	g := c.Room
	for name, d := range map[string]time.Duration{
		"challenge_window": g.ChallengeWindow,
		"block_window":     g.BlockWindow,
		"choice_window":    g.ChoiceWindow,
		"timer_resolution": g.TimerResolution,
		"sweep_interval":   g.SweepInterval,
		"disconnect_grace": g.DisconnectGrace,
		"teardown_grace":   g.TeardownGrace,
		"idle_timeout":     g.IdleTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("room.%s must be positive", name)
		}
	}
	return nil
}
