package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"invite_mall/internal/service"

	"github.com/spf13/viper"
)

const (
	serviceName  = "invite_mall"
	configPath   = "./"
	configName   = "config"
	configFormat = "yaml"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Promotion service.Config  `mapstructure:"promotion"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Admin     AdminConfig     `mapstructure:"admin"`

	TelegramAuth TelegramAuthConfig `mapstructure:"telegramAuth"`

	LogLevel string `mapstructure:"logLevel"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

type SchedulerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

type AdminConfig struct {
	Key string `mapstructure:"key"`
}

type TelegramAuthConfig struct {
	TelegramBotToken string `mapstructure:"telegramBotToken"`
	DebugMode        bool   `mapstructure:"debugMode"`
	// Notify sends task updates to inviters through the bot.
	Notify bool `mapstructure:"notify"`
}

func setDefaults(v *viper.Viper) {
	def := service.DefaultConfig()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("logLevel", "info")

	v.SetDefault("promotion.requiredHelpers", def.RequiredHelpers)
	v.SetDefault("promotion.payoutDelayDays", def.PayoutDelayDays)
	v.SetDefault("promotion.payoutDelayRiskMediumDays", def.PayoutDelayRiskMediumDays)
	v.SetDefault("promotion.autoReceiveDays", def.AutoReceiveDays)
	v.SetDefault("promotion.orderPayExpireMinutes", def.OrderPayExpireMinutes)
	v.SetDefault("promotion.dailyStartQuota", def.DailyStartQuota)
	v.SetDefault("promotion.dailyBonusMax", def.DailyBonusMax)
	v.SetDefault("promotion.allowDuplicateHelper", def.AllowDuplicateHelper)
	v.SetDefault("promotion.features.autoReceive", def.Features.AutoReceive)
	v.SetDefault("promotion.features.orderExpireClose", def.Features.OrderExpireClose)
	v.SetDefault("promotion.features.riskBlocking", def.Features.RiskBlocking)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", 30*time.Second)

	v.SetDefault("telegramAuth.debugMode", false)
	v.SetDefault("telegramAuth.notify", false)
}

// LoadConfig reads config.yaml when present; APP_ prefixed environment
// variables override it, e.g. APP_PROMOTION_REQUIREDHELPERS.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName(configName)
	v.AddConfigPath(configPath)
	v.SetConfigType(configFormat)

	v.AutomaticEnv()
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Promotion.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
