package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig  `mapstructure:"server"`
	Site      SiteConfig    `mapstructure:"site"`
	Data      DataConfig    `mapstructure:"data"`
	Contact   ContactConfig `mapstructure:"contact"`
	SMTP      SMTPConfig    `mapstructure:"smtp"`
	DB        DBConfig      `mapstructure:"db"`
	Admin     AdminConfig   `mapstructure:"admin"`
	Log       LogConfig     `mapstructure:"log"`
	Templates string        `mapstructure:"templates"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type SiteConfig struct {
	Title        string `mapstructure:"title"`
	ContactEmail string `mapstructure:"contact_email"`
}

type DataConfig struct {
	Source string `mapstructure:"source"`
	Watch  bool   `mapstructure:"watch"`
}

type ContactConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type SMTPConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	User string `mapstructure:"user"`
	Pass string `mapstructure:"pass"`
	To   string `mapstructure:"to"`
}

type DBConfig struct {
	Path string `mapstructure:"path"`
}

type AdminConfig struct {
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	PasswordHash string `mapstructure:"password_hash"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// LoadConfig reads defaults, an optional YAML config file and the
// environment, in increasing order of precedence. Keys map to env vars with
// dots replaced by underscores (data.source -> DATA_SOURCE).
func LoadConfig(cfgFile string) (Config, error) {
	v := viper.New()

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("site.title", "Portfolio")
	v.SetDefault("site.contact_email", "hello@example.com")
	v.SetDefault("data.source", "data/portfolio.json")
	v.SetDefault("data.watch", true)
	v.SetDefault("contact.endpoint", "https://formspree.io/f/your-form-id")
	v.SetDefault("contact.timeout", 10*time.Second)
	v.SetDefault("smtp.host", "smtp.gmail.com")
	v.SetDefault("smtp.port", "587")
	v.SetDefault("smtp.user", "")
	v.SetDefault("smtp.pass", "")
	v.SetDefault("smtp.to", "")
	v.SetDefault("db.path", "portfolio.db")
	v.SetDefault("admin.username", "admin")
	v.SetDefault("admin.password", "")
	v.SetDefault("admin.password_hash", "")
	v.SetDefault("log.level", "INFO")
	v.SetDefault("log.filename", "logs/portfolio.log")
	v.SetDefault("log.max_size", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", true)
	v.SetDefault("templates", "templates")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	// Names the site has always used.
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("server.mode", "GIN_MODE")
	_ = v.BindEnv("smtp.to", "TO_EMAIL")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || cfgFile != "" {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// SMTPEnabled reports whether owner notification mail can be sent.
func (c Config) SMTPEnabled() bool {
	return c.SMTP.User != "" && c.SMTP.Pass != ""
}
