package config

import (
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	App struct {
		Env      string
		Timezone string
	} `mapstructure:"app"`

	HTTP struct {
		Addr string
	} `mapstructure:"http"`

	Postgres struct {
		DSN string
	} `mapstructure:"postgres"`

	Auth struct {
		JWTSecret string `mapstructure:"jwt_secret"`
		TokenTTL  int    `mapstructure:"token_ttl_minutes"`
	} `mapstructure:"auth"`

	Meals struct {
		// monthly | weekly | both; both is the strictest and the default.
		LimitPolicy       string `mapstructure:"limit_policy"`
		DefaultMenuItemID int64  `mapstructure:"default_menu_item_id"`
	} `mapstructure:"meals"`

	Payments struct {
		BaseURL       string `mapstructure:"base_url"`
		KeyID         string `mapstructure:"key_id"`
		KeySecret     string `mapstructure:"key_secret"`
		WebhookSecret string `mapstructure:"webhook_secret"`
	} `mapstructure:"payments"`

	Telegram struct {
		Token       string
		AdminChatID int64 `mapstructure:"admin_chat_id"`
	} `mapstructure:"telegram"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`

	Jobs struct {
		TokenWorkerIntervalSec int  `mapstructure:"token_worker_interval_sec"`
		DefaultMenuEnabled     bool `mapstructure:"default_menu_enabled"`
	} `mapstructure:"jobs"`
}

func Load(path string) (Config, error) {
	_ = gotenv.Load() // optional .env; same keys reachable via APP_* overrides

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()

	v.SetDefault("auth.token_ttl_minutes", 60)
	v.SetDefault("meals.limit_policy", "both")
	v.SetDefault("jobs.token_worker_interval_sec", 15)

	var c Config
	if err := v.ReadInConfig(); err != nil {
		return c, err
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, nil
}
