// Copyright (C) 2020 Storj Labs, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the settings of a smoke test run. Values are layered:
// built-in defaults, then a YAML file, then a dotenv file, then the process
// environment. Command line flags are applied on top by the caller.
package config

import (
	"errors"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/zeebo/errs"
	"gopkg.in/yaml.v2"

	"github.com/wmde/dump-smoketest/common"
	"github.com/wmde/dump-smoketest/validator"
)

// Error is an error class for configuration problems.
var Error = errs.Class("config")

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "DUMP_SMOKETEST_"

// DefaultBaseURL is the listing checked when nothing else is configured.
const DefaultBaseURL = "https://dumps.wikimedia.org/wikidatawiki/entities/"

// LogConfig controls the zap logger.
type LogConfig struct {
	Debug bool   `yaml:"debug"`
	JSON  bool   `yaml:"json"`
	Color bool   `yaml:"color"`
	File  string `yaml:"file"`
}

// Config is the complete configuration of a run.
type Config struct {
	BaseURL              string    `yaml:"base_url"`
	MaxLatestAgeDays     int       `yaml:"max_latest_age_days"`
	ExpectedGrowthFactor float64   `yaml:"expected_growth_factor"`
	Concurrency          int64     `yaml:"concurrency"`
	TimeoutSeconds       int       `yaml:"timeout_seconds"`
	UserAgent            string    `yaml:"user_agent"`
	Log                  LogConfig `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		BaseURL:              DefaultBaseURL,
		MaxLatestAgeDays:     validator.DefaultMaxLatestAgeDays,
		ExpectedGrowthFactor: validator.DefaultExpectedGrowthFactor,
		Concurrency:          4,
		TimeoutSeconds:       60,
	}
}

// Load builds a Config from the defaults, the YAML file at path and the dotenv
// file at envFile (both read from fs and both optional when empty), and the
// process environment, in that order.
func Load(fs afero.Fs, path, envFile string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.readYAML(fs, path); err != nil {
			return nil, err
		}
	}

	env := make(map[string]string)
	if envFile != "" {
		var err error
		env, err = readDotenv(fs, envFile)
		if err != nil {
			return nil, err
		}
	}
	for _, key := range envKeys {
		if value, ok := os.LookupEnv(EnvPrefix + key); ok {
			env[EnvPrefix+key] = value
		}
	}
	if err := cfg.applyEnv(env); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) readYAML(fs afero.Fs, path string) (err error) {
	f, err := fs.Open(path)
	if err != nil {
		return Error.Wrap(err)
	}
	defer common.DeferClose(f, &err)

	if err := yaml.NewDecoder(f).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return Error.New("invalid config file %q: %v", path, err)
	}
	return nil
}

func readDotenv(fs afero.Fs, path string) (_ map[string]string, err error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer common.DeferClose(f, &err)

	env, err := godotenv.Parse(f)
	if err != nil {
		return nil, Error.New("invalid env file %q: %v", path, err)
	}
	return env, nil
}

var envKeys = []string{
	"BASE_URL",
	"MAX_LATEST_AGE_DAYS",
	"EXPECTED_GROWTH_FACTOR",
	"CONCURRENCY",
	"TIMEOUT_SECONDS",
	"USER_AGENT",
	"LOG_DEBUG",
	"LOG_JSON",
	"LOG_COLOR",
	"LOG_FILE",
}

func (cfg *Config) applyEnv(env map[string]string) (err error) {
	for _, key := range envKeys {
		value, ok := env[EnvPrefix+key]
		if !ok {
			continue
		}
		switch key {
		case "BASE_URL":
			cfg.BaseURL = value
		case "MAX_LATEST_AGE_DAYS":
			cfg.MaxLatestAgeDays, err = strconv.Atoi(value)
		case "EXPECTED_GROWTH_FACTOR":
			cfg.ExpectedGrowthFactor, err = strconv.ParseFloat(value, 64)
		case "CONCURRENCY":
			cfg.Concurrency, err = strconv.ParseInt(value, 10, 64)
		case "TIMEOUT_SECONDS":
			cfg.TimeoutSeconds, err = strconv.Atoi(value)
		case "USER_AGENT":
			cfg.UserAgent = value
		case "LOG_DEBUG":
			cfg.Log.Debug, err = strconv.ParseBool(value)
		case "LOG_JSON":
			cfg.Log.JSON, err = strconv.ParseBool(value)
		case "LOG_COLOR":
			cfg.Log.Color, err = strconv.ParseBool(value)
		case "LOG_FILE":
			cfg.Log.File = value
		}
		if err != nil {
			return Error.New("invalid value %q for %s%s: %v", value, EnvPrefix, key, err)
		}
	}
	return nil
}

// Validate checks that the configuration can be used for a run.
func (cfg *Config) Validate() error {
	switch {
	case cfg.BaseURL == "":
		return Error.New("base_url must be set")
	case cfg.MaxLatestAgeDays < 0:
		return Error.New("max_latest_age_days must not be negative (is %d)", cfg.MaxLatestAgeDays)
	case cfg.ExpectedGrowthFactor <= 0:
		return Error.New("expected_growth_factor must be positive (is %v)", cfg.ExpectedGrowthFactor)
	case cfg.Concurrency < 1:
		return Error.New("concurrency must be at least 1 (is %d)", cfg.Concurrency)
	case cfg.TimeoutSeconds <= 0:
		return Error.New("timeout_seconds must be positive (is %d)", cfg.TimeoutSeconds)
	}
	return nil
}

// Timeout returns the per-request fetch timeout.
func (cfg *Config) Timeout() time.Duration {
	return time.Duration(cfg.TimeoutSeconds) * time.Second
}

// ValidatorConfig returns the validator settings of this configuration.
func (cfg *Config) ValidatorConfig() validator.Config {
	return validator.Config{
		MaxLatestAgeDays:     cfg.MaxLatestAgeDays,
		ExpectedGrowthFactor: cfg.ExpectedGrowthFactor,
		Now:                  time.Now,
	}
}
