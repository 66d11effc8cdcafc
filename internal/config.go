package internal

import (
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	NodeID         uint64   `mapstructure:"node-id"`
	HTTPServerPort uint16   `mapstructure:"http-server-port"`
	ReadTimeout    int64    `mapstructure:"read-timeout"`
	WriteTimeout   int64    `mapstructure:"write-timeout"`
	DBPath         string   `mapstructure:"db-path"`
	RedisURL       string   `mapstructure:"redis-url"`
	BridgeBind     string   `mapstructure:"bridge-bind"`
	BridgePeers    []string `mapstructure:"bridge-peers"`
	LogFile        string   `mapstructure:"log-file"`
	LogMaxSizeMB   int      `mapstructure:"log-max-size-mb"`
	EnableLogging  bool     `mapstructure:"enable-logging"`
}

// LoadConfig reads chatserver.yaml from the given folder, with every key
// overridable through CHAT_* environment variables (CHAT_DB_PATH and so on).
// An empty redis-url selects the in-process presence tracker; an empty
// bridge-bind runs the instance standalone.
func LoadConfig(folderPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("chatserver")
	v.SetConfigType("yaml")
	v.AddConfigPath(folderPath)

	v.SetEnvPrefix("CHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("http-server-port", 8080)
	v.SetDefault("read-timeout", 15)
	v.SetDefault("write-timeout", 15)
	v.SetDefault("db-path", "chatserver.db")
	v.SetDefault("log-file", "chatserver.log")
	v.SetDefault("log-max-size-mb", 64)
	v.SetDefault("enable-logging", true)

	if err := v.ReadInConfig(); err != nil {
		// Running purely on defaults and environment is fine.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	return &config, nil
}
