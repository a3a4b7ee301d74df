package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Clip struct {
	StartSec    int `json:"start_sec"    yaml:"start_sec"`
	DurationSec int `json:"duration_sec" yaml:"duration_sec"`
}

func (c Clip) Start() time.Duration {
	return time.Duration(c.StartSec) * time.Second
}

func (c Clip) Duration() time.Duration {
	return time.Duration(c.DurationSec) * time.Second
}

type Retry struct {
	MaxAttempts     int `json:"max_attempts"      yaml:"max_attempts"`
	InitialDelaySec int `json:"initial_delay_sec" yaml:"initial_delay_sec"`
}

type Storage struct {
	Bucket       string `json:"bucket"             yaml:"bucket"`
	Prefix       string `json:"prefix"             yaml:"prefix"`
	Endpoint     string `json:"endpoint"           yaml:"endpoint"`
	Region       string `json:"region"             yaml:"region"`
	SignedURLTTL int    `json:"signed_url_ttl_sec" yaml:"signed_url_ttl_sec"`
}

func (s Storage) URLTTL() time.Duration {
	return time.Duration(s.SignedURLTTL) * time.Second
}

type Publish struct {
	ContainerTimeoutSec int `json:"container_timeout_sec" yaml:"container_timeout_sec"`
	PollIntervalSec     int `json:"poll_interval_sec"     yaml:"poll_interval_sec"`
	MaxCarouselItems    int `json:"max_carousel_items"    yaml:"max_carousel_items"`
}

func (p Publish) ContainerTimeout() time.Duration {
	return time.Duration(p.ContainerTimeoutSec) * time.Second
}

func (p Publish) PollInterval() time.Duration {
	return time.Duration(p.PollIntervalSec) * time.Second
}

type Config struct {
	OutputDir string  `json:"output_dir" yaml:"output_dir"`
	Clip      Clip    `json:"clip"       yaml:"clip"`
	Retry     Retry   `json:"retry"      yaml:"retry"`
	Storage   Storage `json:"storage"    yaml:"storage"`
	Publish   Publish `json:"publish"    yaml:"publish"`
}

func (cfg *Config) applyDefaults() {
	if cfg.Clip.StartSec == 0 {
		cfg.Clip.StartSec = 90
	}
	if cfg.Clip.DurationSec == 0 {
		cfg.Clip.DurationSec = 30
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.InitialDelaySec == 0 {
		cfg.Retry.InitialDelaySec = 3
	}
	if cfg.Storage.Prefix == "" {
		cfg.Storage.Prefix = "discogs-posts"
	}
	if cfg.Storage.SignedURLTTL == 0 {
		cfg.Storage.SignedURLTTL = 7200
	}
	if cfg.Publish.ContainerTimeoutSec == 0 {
		cfg.Publish.ContainerTimeoutSec = 420
	}
	if cfg.Publish.PollIntervalSec == 0 {
		cfg.Publish.PollIntervalSec = 5
	}
	if cfg.Publish.MaxCarouselItems == 0 {
		cfg.Publish.MaxCarouselItems = 10
	}
}

func (cfg *Config) validate() error {
	if cfg.OutputDir == "" {
		return errors.New("output dir is empty")
	}

	if cfg.Clip.StartSec < 0 || cfg.Clip.DurationSec <= 0 {
		return errors.New("clip window is invalid")
	}

	if cfg.Publish.MaxCarouselItems < 2 || cfg.Publish.MaxCarouselItems > 10 {
		return errors.New("max carousel items must be between 2 and 10")
	}

	return nil
}

func FromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if nil != err {
		return nil, fmt.Errorf("failed to read config file %q: %v", filePath, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); nil != err {
		return nil, fmt.Errorf("failed to unmarshal config file %q: %v", filePath, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); nil != err {
		return nil, fmt.Errorf("validation failed: %v", err)
	}

	return &cfg, nil
}

func FromString(data string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(data), &cfg); nil != err {
		return nil, fmt.Errorf("failed to unmarshal config: %v", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); nil != err {
		return nil, fmt.Errorf("validation failed: %v", err)
	}

	return &cfg, nil
}
