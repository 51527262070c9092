package service

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Config holds the promotion rules. Field names double as viper keys.
type Config struct {
	RequiredHelpers           int      `mapstructure:"requiredHelpers" validate:"min=1"`
	PayoutDelayDays           int      `mapstructure:"payoutDelayDays" validate:"min=0"`
	PayoutDelayRiskMediumDays int      `mapstructure:"payoutDelayRiskMediumDays" validate:"min=0"`
	AutoReceiveDays           int      `mapstructure:"autoReceiveDays" validate:"min=0"`
	OrderPayExpireMinutes     float64  `mapstructure:"orderPayExpireMinutes" validate:"gte=0"`
	DailyStartQuota           int      `mapstructure:"dailyStartQuota"`
	DailyBonusMax             int      `mapstructure:"dailyBonusMax" validate:"min=0"`
	AllowDuplicateHelper      bool     `mapstructure:"allowDuplicateHelper"`
	Features                  Features `mapstructure:"features"`
}

type Features struct {
	AutoReceive      bool `mapstructure:"autoReceive"`
	OrderExpireClose bool `mapstructure:"orderExpireClose"`
	RiskBlocking     bool `mapstructure:"riskBlocking"`
}

func DefaultConfig() Config {
	return Config{
		RequiredHelpers:           2,
		PayoutDelayDays:           3,
		PayoutDelayRiskMediumDays: 3,
		AutoReceiveDays:           10,
		OrderPayExpireMinutes:     30,
		DailyStartQuota:           1,
		DailyBonusMax:             1,
		Features: Features{
			AutoReceive:      true,
			OrderExpireClose: true,
			RiskBlocking:     true,
		},
	}
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid promotion config: %w", err)
	}
	return nil
}
