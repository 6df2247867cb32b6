package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Catalog struct {
		TTL string `yaml:"ttl"`
	} `yaml:"catalog"`
	Game struct {
		QuestionSeconds   int `yaml:"questionSeconds"`
		ScoreboardSeconds int `yaml:"scoreboardSeconds"`
	} `yaml:"game"`
	Admin struct {
		Key string `yaml:"key"`
	} `yaml:"admin"`
	CORS struct {
		Origins []string `yaml:"origins"`
	} `yaml:"cors"`
	Media struct {
		Dir     string `yaml:"dir"`
		BaseURL string `yaml:"baseUrl"`
	} `yaml:"media"`
}

// Load reads YAML config from path. ADMIN_KEY in the environment overrides
// the file so the secret can stay out of checked-in configs.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if key := os.Getenv("ADMIN_KEY"); key != "" {
		cfg.Admin.Key = key
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// SecondsDuration converts a positive seconds count or falls back.
func SecondsDuration(secs int, fallback time.Duration) time.Duration {
	if secs <= 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}
