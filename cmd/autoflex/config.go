package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the autoflex configuration file
// (~/.config/autoflex/config.yaml). Pointer fields distinguish "not set"
// from zero values.
type Config struct {
	// Numerics
	StorageDType    string   `yaml:"storage_dtype"`
	FixedPoint      *bool    `yaml:"fixed_point"`
	PreAdjustWrites *bool    `yaml:"pre_adjust_writes"`
	InitialScale    *float64 `yaml:"initial_scale"`
	HistoryLen      *int64   `yaml:"history_len"`
	DiagnosticEvery *int64   `yaml:"diagnostic_every"`
	RTol            *float64 `yaml:"rtol"`
	ATol            *float64 `yaml:"atol"`

	// Training
	Iterations *int64   `yaml:"iterations"`
	Alpha      *float64 `yaml:"alpha"`

	// Output
	DiagnosticPath string `yaml:"diagnostic_path"`
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "autoflex", "config.yaml")
}

// LoadConfig reads the config file at path. A missing file yields a zero
// Config and no error.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func applyLoggingConfig(isSet func(string) bool, cfg Config) {
	if cfg.LogLevel != "" && !isSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !isSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyFlexConfig applies config file defaults to flex options when the
// corresponding flag was not set explicitly.
func applyFlexConfig(isSet func(string) bool, cfg Config, o *flexOptions) {
	if cfg.StorageDType != "" && !isSet("dtype") {
		o.dtype = cfg.StorageDType
	}
	if cfg.FixedPoint != nil && !isSet("fixed-point") {
		o.fixedPoint = *cfg.FixedPoint
	}
	if cfg.PreAdjustWrites != nil && !isSet("pre-adjust") {
		o.preAdjust = *cfg.PreAdjustWrites
	}
	if cfg.InitialScale != nil && !isSet("initial-scale") {
		o.initialScale = *cfg.InitialScale
	}
	if cfg.HistoryLen != nil && !isSet("history") {
		o.historyLen = *cfg.HistoryLen
	}
	if cfg.DiagnosticEvery != nil && !isSet("diag-every") {
		o.diagEvery = *cfg.DiagnosticEvery
	}
	if cfg.RTol != nil && !isSet("rtol") {
		o.rtol = *cfg.RTol
	}
	if cfg.ATol != nil && !isSet("atol") {
		o.atol = *cfg.ATol
	}
}

func applyTrainConfig(isSet func(string) bool, cfg Config, iterations *int64, alpha *float64, diagPath, addr *string) {
	if cfg.Iterations != nil && !isSet("iterations") {
		*iterations = *cfg.Iterations
	}
	if cfg.Alpha != nil && !isSet("alpha") {
		*alpha = *cfg.Alpha
	}
	if cfg.DiagnosticPath != "" && !isSet("diag") {
		*diagPath = cfg.DiagnosticPath
	}
	if cfg.ServerAddress != "" && !isSet("addr") {
		*addr = cfg.ServerAddress
	}
}
