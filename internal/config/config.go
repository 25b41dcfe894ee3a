package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Session  SessionConfig  `mapstructure:"session"`
	Database DatabaseConfig `mapstructure:"database"`
	Google   GoogleConfig   `mapstructure:"google"`
	Trello   TrelloConfig   `mapstructure:"trello"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Worker   WorkerConfig   `mapstructure:"worker"`
}

type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	PublicURL      string   `mapstructure:"public_url"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	StaticDir      string   `mapstructure:"static_dir"`
}

type SessionConfig struct {
	Secret     string `mapstructure:"secret"`
	CookieName string `mapstructure:"cookie_name"`
	Secure     bool   `mapstructure:"secure"`
	MaxAge     int    `mapstructure:"max_age"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type GoogleConfig struct {
	ClientID string `mapstructure:"client_id"`
}

type TrelloConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	AppSecret         string        `mapstructure:"app_secret"`
	RequestsPerWindow int           `mapstructure:"requests_per_window"`
	Window            time.Duration `mapstructure:"window"`
	RetryAttempts     uint          `mapstructure:"retry_attempts"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	EnquiryList       string        `mapstructure:"enquiry_list"`
	BoardLists        []string      `mapstructure:"board_lists"`
}

type RedisConfig struct {
	URL       string `mapstructure:"url"`
	Stream    string `mapstructure:"stream"`
	Group     string `mapstructure:"group"`
	DLQStream string `mapstructure:"dlq_stream"`
	Consumer  string `mapstructure:"consumer"`
}

type WorkerConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	BatchSize   int64         `mapstructure:"batch_size"`
	Block       time.Duration `mapstructure:"block"`
	BufferSize  int           `mapstructure:"buffer_size"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
}

// CallbackURL is where Trello delivers webhook events for this deployment.
func (c Config) CallbackURL() string {
	return strings.TrimRight(c.Server.PublicURL, "/") + "/api/trello-webhook"
}

func (c RedisConfig) Enabled() bool {
	return c.URL != ""
}

func (c GoogleConfig) Enabled() bool {
	return c.ClientID != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "5000")
	v.SetDefault("server.public_url", "http://localhost:5000")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000", "http://localhost:5000"})
	v.SetDefault("server.static_dir", "")

	v.SetDefault("session.secret", "")
	v.SetDefault("session.cookie_name", "trello_panel_session")
	v.SetDefault("session.max_age", 7*24*60*60)

	v.SetDefault("database.path", "users.db")

	v.SetDefault("google.client_id", "")

	v.SetDefault("trello.base_url", "https://api.trello.com/1")
	v.SetDefault("trello.app_secret", "")
	v.SetDefault("trello.requests_per_window", 100)
	v.SetDefault("trello.window", 10*time.Second)
	v.SetDefault("trello.retry_attempts", 3)
	v.SetDefault("trello.retry_delay", time.Second)
	v.SetDefault("trello.enquiry_list", "Enquiry In")
	v.SetDefault("trello.board_lists", []string{"Enquiry In", "Todo", "Doing", "Done"})

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.stream", "trello-events")
	v.SetDefault("redis.group", "trello-workers")
	v.SetDefault("redis.dlq_stream", "trello-events-dlq")
	v.SetDefault("redis.consumer", "")

	v.SetDefault("worker.enabled", true)
	v.SetDefault("worker.max_attempts", 3)
	v.SetDefault("worker.batch_size", 10)
	v.SetDefault("worker.block", 5*time.Second)
	v.SetDefault("worker.buffer_size", 256)
	v.SetDefault("worker.retry_delay", 2*time.Second)
}

// Load reads config.toml from dir (the working directory when empty). A missing file is not an
// error: defaults and environment variables such as SESSION_SECRET or REDIS_URL still apply.
// Variables in a .env file are loaded into the environment first.
func Load(dir string) (Config, error) {
	_ = godotenv.Load()

	if dir == "" {
		dir = "."
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(dir)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	_ = v.BindEnv("session.secure")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	// Unless configured, the session cookie is Secure only when the panel is served over https.
	if !v.IsSet("session.secure") {
		v.Set("session.secure", strings.HasPrefix(v.GetString("server.public_url"), "https://"))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}

	return cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c Config) Validate() error {
	if c.Session.Secret == "" {
		return errors.New("session.secret (SESSION_SECRET) must be set")
	}
	if c.Server.PublicURL == "" {
		return errors.New("server.public_url must be set")
	}
	if c.Worker.MaxAttempts <= 0 {
		return errors.New("worker.max_attempts must be positive")
	}
	return nil
}
