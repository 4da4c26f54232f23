package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const (
	RewardCurrencyPoints         = "points"
	RewardCurrencySameAsPurchase = "same_as_purchase"
)

type Config struct {
	TelegramBotToken string  `mapstructure:"TELEGRAM_BOT_TOKEN"`
	AdminChatID      int64   `mapstructure:"ADMIN_CHAT_ID"`
	AdminIDs         []int64 `mapstructure:"ADMIN_IDS"`
	BotUsername      string  `mapstructure:"BOT_USERNAME"`
	MiniAppURL       string  `mapstructure:"MINI_APP_URL"`

	DB_URL  string `mapstructure:"DB_URL"`
	Migrate bool   `mapstructure:"MIGRATE"`

	HTTPAddr       string `mapstructure:"HTTP_ADDR"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`

	RedisAddr       string        `mapstructure:"REDIS_ADDR"`
	RedisPassword   string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB         int           `mapstructure:"REDIS_DB"`
	CatalogCacheTTL time.Duration `mapstructure:"CATALOG_CACHE_TTL"`

	ReferralRewardCurrency string        `mapstructure:"REFERRAL_REWARD_CURRENCY"`
	SBPPaymentURL          string        `mapstructure:"SBP_PAYMENT_URL"`
	DevUserID              int64         `mapstructure:"DEV_USER_ID"`
	InitDataMaxAge         time.Duration `mapstructure:"INIT_DATA_MAX_AGE"`

	TracingEnabled  bool   `mapstructure:"TRACING_ENABLED"`
	TracingEndpoint string `mapstructure:"TRACING_ENDPOINT"`

	LogLevel string `mapstructure:"LOG_LEVEL"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("TELEGRAM_BOT_TOKEN", "")
	v.SetDefault("ADMIN_CHAT_ID", 0)
	v.SetDefault("ADMIN_IDS", "")
	v.SetDefault("BOT_USERNAME", "TonTripBonanza_bot")
	v.SetDefault("MINI_APP_URL", "")
	v.SetDefault("DB_URL", "./bonanza.db")
	v.SetDefault("MIGRATE", true)
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("ALLOWED_ORIGINS", "*")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CATALOG_CACHE_TTL", "30s")
	v.SetDefault("REFERRAL_REWARD_CURRENCY", RewardCurrencyPoints)
	v.SetDefault("SBP_PAYMENT_URL", "https://qr.nspk.ru/AD100004BAI2M8CM4IA1QTT4HG09D4QO6K0?type=02&bank=100000000111&cur=RUB&crc=AB75")
	v.SetDefault("DEV_USER_ID", 0)
	v.SetDefault("INIT_DATA_MAX_AGE", "24h")
	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("TRACING_ENDPOINT", "http://localhost:14268/api/traces")
	v.SetDefault("LOG_LEVEL", "debug")
}

// LoadConfig reads an env-format file and overlays the process environment.
// A missing file is not an error.
func LoadConfig(path string) (config Config, err error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return config, fmt.Errorf("failed to resolve config path: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.AddConfigPath(filepath.Dir(absPath))
	v.SetConfigName(filepath.Base(absPath))
	v.SetConfigType("env")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("failed to decode config: %w", err)
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.DB_URL == "" {
		return errors.New("DB_URL is required")
	}
	switch c.ReferralRewardCurrency {
	case RewardCurrencyPoints, RewardCurrencySameAsPurchase:
	default:
		return fmt.Errorf("unknown REFERRAL_REWARD_CURRENCY %q", c.ReferralRewardCurrency)
	}
	return nil
}

func (c *Config) IsAdmin(userID int64) bool {
	if userID == 0 {
		return false
	}
	if userID == c.AdminChatID {
		return true
	}
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}
