package config

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Token string `toml:"token" mapstructure:"token"`
	Host  string `toml:"host" mapstructure:"host"`
	Port  string `toml:"port" mapstructure:"port"`

	Libonnx string `toml:"libonnx" mapstructure:"libonnx"`

	// Model is a catalogue name, an owner/name repository id or a local directory.
	Model         string `toml:"model" mapstructure:"model"`
	ModelBaseUrl  string `toml:"model_base_url" mapstructure:"model_base_url"`
	ModelDir      string `toml:"model_dir" mapstructure:"model_dir"`
	ModelTagsName string `toml:"model_tags_name" mapstructure:"model_tags_name"`
	ModelFileName string `toml:"model_file_name" mapstructure:"model_file_name"`

	DeviceID  int `toml:"device_id" mapstructure:"device_id"`
	BatchSize int `toml:"batch_size" mapstructure:"batch_size"`

	GeneralThreshold   float32 `toml:"general_threshold" mapstructure:"general_threshold"`
	GeneralMCut        bool    `toml:"general_mcut_enabled" mapstructure:"general_mcut_enabled"`
	CharacterThreshold float32 `toml:"character_threshold" mapstructure:"character_threshold"`
	CharacterMCut      bool    `toml:"character_mcut_enabled" mapstructure:"character_mcut_enabled"`

	ChannelOrder   string `toml:"channel_order" mapstructure:"channel_order"`
	Normalize      string `toml:"normalize" mapstructure:"normalize"`
	Sigmoid        bool   `toml:"sigmoid" mapstructure:"sigmoid"`
	IncludeRatings bool   `toml:"include_ratings" mapstructure:"include_ratings"`

	LogLevel string `toml:"log_level" mapstructure:"log_level"`
	LogJSON  bool   `toml:"log_json" mapstructure:"log_json"`
}

func Default() Config {
	return Config{
		Token:              "",
		Host:               "0.0.0.0",
		Port:               "8000",
		Model:              "wd-swinv2-tagger-v3",
		ModelBaseUrl:       "https://huggingface.co",
		ModelDir:           "models",
		ModelTagsName:      "selected_tags.csv",
		ModelFileName:      "model.onnx",
		DeviceID:           0,
		BatchSize:          1,
		GeneralThreshold:   0.35,
		CharacterThreshold: 0.85,
		ChannelOrder:       "bgr",
		Normalize:          "none",
		LogLevel:           "info",
	}
}

var (
	cfg      = Default()
	cfgPath  = "config.toml"
	loadErr  error
	loadOnce sync.Once
)

// Init loads the process configuration from path. Only the first call of
// Init or C has any effect.
func Init(path string) error {
	loadOnce.Do(func() {
		cfgPath = path
		cfg, loadErr = Load(path)
	})
	return loadErr
}

// C returns the process configuration, loading config.toml on first use.
func C() *Config {
	loadOnce.Do(func() {
		cfg, loadErr = Load(cfgPath)
		if loadErr != nil {
			panic(loadErr)
		}
	})
	return &cfg
}

// Load reads a TOML file over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return c, err
	}
	if err := toml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("parse %s: %w", path, err)
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("batch_size must be at least 1, got %d", c.BatchSize))
	}
	if c.GeneralThreshold < 0 || c.GeneralThreshold > 1 {
		errs = append(errs, fmt.Errorf("general_threshold must be in [0,1], got %v", c.GeneralThreshold))
	}
	if c.CharacterThreshold < 0 || c.CharacterThreshold > 1 {
		errs = append(errs, fmt.Errorf("character_threshold must be in [0,1], got %v", c.CharacterThreshold))
	}
	switch c.ChannelOrder {
	case "rgb", "bgr":
	default:
		errs = append(errs, fmt.Errorf("channel_order must be rgb or bgr, got %q", c.ChannelOrder))
	}
	switch c.Normalize {
	case "none", "clip":
	default:
		errs = append(errs, fmt.Errorf("normalize must be none or clip, got %q", c.Normalize))
	}
	if c.Model == "" {
		errs = append(errs, errors.New("model is required"))
	}
	return errors.Join(errs...)
}
