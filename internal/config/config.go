package config

import (
	"fmt"
	"regexp"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	AsOfDate         string        `mapstructure:"AS_OF_DATE"`
	ReferralsPath    string        `mapstructure:"REFERRALS_PATH"`
	DSMPath          string        `mapstructure:"DSM_PATH"`
	RoutineTargetPct float64       `mapstructure:"ROUTINE_TARGET_PCT"`
	UrgentTargetPct  float64       `mapstructure:"URGENT_TARGET_PCT"`
	Months           int           `mapstructure:"MONTHS"`
	BuildTimeout     time.Duration `mapstructure:"BUILD_TIMEOUT"`
	Port             string        `mapstructure:"PORT"`
	Env              string        `mapstructure:"ENV"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBSchema         string        `mapstructure:"DB_SCHEMA"`
}

var schemaPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("REFERRALS_PATH", "referrals.csv")
	v.SetDefault("DSM_PATH", "DirectSecureMessages.csv")
	v.SetDefault("ROUTINE_TARGET_PCT", 50.0)
	v.SetDefault("URGENT_TARGET_PCT", 50.0)
	v.SetDefault("MONTHS", 12)
	v.SetDefault("BUILD_TIMEOUT", "2m")
	v.SetDefault("PORT", "5005")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_SCHEMA", "referral_measures")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"AS_OF_DATE", "REFERRALS_PATH", "DSM_PATH", "ROUTINE_TARGET_PCT", "URGENT_TARGET_PCT",
		"MONTHS", "BUILD_TIMEOUT", "PORT", "ENV", "DATABASE_URL", "DB_SCHEMA",
	} {
		_ = v.BindEnv(key)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.AsOfDate == "" {
		return nil, fmt.Errorf("AS_OF_DATE is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// AsOf parses AS_OF_DATE.
func (c *Config) AsOf() (time.Time, error) {
	asOf, err := time.Parse("2006-01-02", c.AsOfDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("AS_OF_DATE must be YYYY-MM-DD: %w", err)
	}
	return asOf, nil
}

// Validate checks the values Load cannot check by type alone.
func (c *Config) Validate() error {
	if _, err := c.AsOf(); err != nil {
		return err
	}
	if c.Months <= 0 {
		return fmt.Errorf("MONTHS must be positive, got %d", c.Months)
	}
	for name, pct := range map[string]float64{"ROUTINE_TARGET_PCT": c.RoutineTargetPct, "URGENT_TARGET_PCT": c.UrgentTargetPct} {
		if pct < 0 || pct > 100 {
			return fmt.Errorf("%s must be between 0 and 100, got %v", name, pct)
		}
	}
	if c.BuildTimeout <= 0 {
		return fmt.Errorf("BUILD_TIMEOUT must be positive, got %s", c.BuildTimeout)
	}
	if !schemaPattern.MatchString(c.DBSchema) {
		return fmt.Errorf("DB_SCHEMA is not a valid schema name: %q", c.DBSchema)
	}
	return nil
}
