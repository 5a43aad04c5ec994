package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Session  SessionConfig  `mapstructure:"session"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
	Journal  JournalConfig  `mapstructure:"journal"`
	Cron     CronConfig     `mapstructure:"cron"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type EngineConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	WSURL   string        `mapstructure:"ws_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SessionConfig struct {
	// Backend selects the durable store for the session record: "file" or "redis".
	Backend       string `mapstructure:"backend"`
	Dir           string `mapstructure:"dir"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

type CacheConfig struct {
	MarketsWindow   time.Duration `mapstructure:"markets_window"`
	OrderbookWindow time.Duration `mapstructure:"orderbook_window"`
	OrdersWindow    time.Duration `mapstructure:"orders_window"`
	PositionsWindow time.Duration `mapstructure:"positions_window"`
	AccountWindow   time.Duration `mapstructure:"account_window"`
	PartiesWindow   time.Duration `mapstructure:"parties_window"`
	MaxIdle         time.Duration `mapstructure:"max_idle"`
}

type RealtimeConfig struct {
	PingInterval time.Duration `mapstructure:"ping_interval"`
	PongTimeout  time.Duration `mapstructure:"pong_timeout"`
	BackoffMin   time.Duration `mapstructure:"backoff_min"`
	BackoffMax   time.Duration `mapstructure:"backoff_max"`
}

type JournalConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Retention       time.Duration `mapstructure:"retention"`
}

type CronConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	CacheJanitor string `mapstructure:"cache_janitor"`
	JournalPrune string `mapstructure:"journal_prune"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8090")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("engine.base_url", "http://localhost:9000")
	v.SetDefault("engine.ws_url", "")
	v.SetDefault("engine.timeout", "15s")
	v.SetDefault("session.backend", "file")
	v.SetDefault("session.dir", ".marketsync")
	v.SetDefault("session.redis_addr", "localhost:6379")
	v.SetDefault("session.redis_db", 0)
	v.SetDefault("cache.markets_window", "60s")
	v.SetDefault("cache.orderbook_window", "15s")
	v.SetDefault("cache.orders_window", "30s")
	v.SetDefault("cache.positions_window", "30s")
	v.SetDefault("cache.account_window", "30s")
	v.SetDefault("cache.parties_window", "5m")
	v.SetDefault("cache.max_idle", "30m")
	v.SetDefault("realtime.ping_interval", "30s")
	v.SetDefault("realtime.pong_timeout", "10s")
	v.SetDefault("realtime.backoff_min", "3s")
	v.SetDefault("realtime.backoff_max", "30s")
	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.max_open_conns", 10)
	v.SetDefault("journal.max_idle_conns", 5)
	v.SetDefault("journal.conn_max_lifetime", "30m")
	v.SetDefault("journal.conn_max_idle_time", "5m")
	v.SetDefault("journal.retention", "72h")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.cache_janitor", "@every 5m")
	v.SetDefault("cron.journal_prune", "@every 1h")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
