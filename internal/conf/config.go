package conf

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Completion CompletionConfig `mapstructure:"completion"`
	Search     SearchConfig     `mapstructure:"search"`
	Memory     MemoryConfig     `mapstructure:"memory"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type CompletionConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	Model          string        `mapstructure:"model"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
}

type SearchConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	APIHost    string        `mapstructure:"api_host"`
	MaxResults int           `mapstructure:"max_results"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type MemoryConfig struct {
	Backend       string `mapstructure:"backend"` // file, redis
	Path          string `mapstructure:"path"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisKey      string `mapstructure:"redis_key"`
	MaxWords      int    `mapstructure:"max_words"`
	SummaryTarget int    `mapstructure:"summary_target"`
}

type LogConfig struct {
	Level            string        `mapstructure:"level"`
	Format           string        `mapstructure:"format"`
	Output           string        `mapstructure:"output"`
	File             FileLogConfig `mapstructure:"file"`
	EnableCaller     bool          `mapstructure:"enablecaller"`
	EnableStacktrace bool          `mapstructure:"enablestacktrace"`
}

type FileLogConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"maxsize"`
	MaxAge     int    `mapstructure:"maxage"`
	MaxBackups int    `mapstructure:"maxbackups"`
	Compress   bool   `mapstructure:"compress"`
}

func LoadConfig(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.SetEnvPrefix("SOLAR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// A missing config file is fine: defaults plus SOLAR_* env vars are a
	// complete configuration on their own.
	if err := viper.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)

	viper.SetDefault("completion.base_url", "https://api.upstage.ai/v1/chat/completions")
	viper.SetDefault("completion.model", "solar-pro")
	viper.SetDefault("completion.connect_timeout", 5*time.Second)
	viper.SetDefault("completion.read_timeout", 60*time.Second)

	viper.SetDefault("search.api_host", "https://api.tavily.com")
	viper.SetDefault("search.max_results", 8)
	viper.SetDefault("search.timeout", 15*time.Second)

	viper.SetDefault("memory.backend", "file")
	viper.SetDefault("memory.path", "memory.json")
	viper.SetDefault("memory.redis_key", "solar:memory")
	viper.SetDefault("memory.max_words", 5000)
	viper.SetDefault("memory.summary_target", 1000)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("log.output", "console")
}
