package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load reads the configuration file and environment. When path is empty the
// usual locations are searched; environment variables with the SCHEDULER
// prefix override file values.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("tag_name", DefaultTagName)
	v.SetDefault("state_tag_name", DefaultStateTagName)
	v.SetDefault("default_timezone", DefaultTimezone)
	v.SetDefault("interval_minutes", DefaultIntervalMinutes)
	v.SetDefault("services", []string{"ec2"})

	v.SetEnvPrefix("SCHEDULER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("instance-scheduler")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/instance-scheduler")
		v.AddConfigPath("/etc/instance-scheduler")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}
