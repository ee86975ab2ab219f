package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Bank       BankConfig       `mapstructure:"bank"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Quotes     QuotesConfig     `mapstructure:"quotes"`
	MarketData MarketDataConfig `mapstructure:"market_data"`
	Interbank  InterbankConfig  `mapstructure:"interbank"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

type BankConfig struct {
	// Code is the three-digit prefix carried by every account number this
	// instance owns. Anything else routes through the interbank gateway.
	Code string `mapstructure:"code"`
	// SettlementCurrency is the ISO code of the currency the bank nets tax
	// and its own position in.
	SettlementCurrency string `mapstructure:"settlement_currency"`
}

type DatabaseConfig struct {
	// ConnString, when set, wins over the individual fields.
	ConnString string `mapstructure:"conn_string"`
	Host       string `mapstructure:"host"`
	Port       string `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	Name       string `mapstructure:"name"`
	SSLMode    string `mapstructure:"ssl_mode"`
}

type SettlementConfig struct {
	// Drain intervals in seconds, one per queue.
	InternalInterval int `mapstructure:"internal_interval"`
	ExternalInterval int `mapstructure:"external_interval"`
}

type QuotesConfig struct {
	// Poll intervals in seconds, one per asset class.
	StockInterval int `mapstructure:"stock_interval"`
	ForexInterval int `mapstructure:"forex_interval"`
}

type MarketDataConfig struct {
	URL      string `mapstructure:"url"`
	Timeout  int    `mapstructure:"timeout"`   // seconds
	CacheTTL int    `mapstructure:"cache_ttl"` // seconds
}

type InterbankConfig struct {
	// Endpoints maps a counterparty bank code to its API base URL.
	Endpoints map[string]string `mapstructure:"endpoints"`
	Timeout   int               `mapstructure:"timeout"` // seconds
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

// Load reads configuration from the given file (or ./config.yaml when
// empty), layered under BANKCORE_-prefixed environment variables. A .env
// file in the working directory is folded into the environment first.
func Load(configPath string) (*Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/bankcore")
	}

	v.SetEnvPrefix("BANKCORE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&config)

	return &config, nil
}

// ConnectionString returns the lib/pq DSN, assembled from the individual
// fields unless an explicit conn_string was configured.
func (d DatabaseConfig) ConnectionString() string {
	if d.ConnString != "" {
		return d.ConnString
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

func setDefaults(v *viper.Viper) {
	// Bank defaults
	v.SetDefault("bank.code", "111")
	v.SetDefault("bank.settlement_currency", "RSD")

	// Database defaults
	v.SetDefault("database.conn_string", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "bankcore")
	v.SetDefault("database.ssl_mode", "disable")

	// Settlement defaults
	v.SetDefault("settlement.internal_interval", 5)
	v.SetDefault("settlement.external_interval", 15)

	// Quote defaults
	v.SetDefault("quotes.stock_interval", 10)
	v.SetDefault("quotes.forex_interval", 30)

	// Market data defaults
	v.SetDefault("market_data.url", "http://localhost:9100")
	v.SetDefault("market_data.timeout", 10)
	v.SetDefault("market_data.cache_ttl", 5)

	// Interbank defaults
	v.SetDefault("interbank.endpoints", map[string]string{})
	v.SetDefault("interbank.timeout", 15)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 7)
	v.SetDefault("logging.max_age", 30)
}

func overrideFromEnv(config *Config) {
	// Credentials commonly arrive through the environment in containers.
	if connStr := os.Getenv("DB_CONN_STR"); connStr != "" {
		config.Database.ConnString = connStr
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		config.Database.Password = password
	}
	if code := os.Getenv("BANK_CODE"); code != "" {
		config.Bank.Code = code
	}
}
