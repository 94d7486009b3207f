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

package config

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const configYAML = `base_url: https://dumps.example.org/commonswiki/entities/
max_latest_age_days: 7
expected_growth_factor: 1.001
concurrency: 8
log:
  json: true
  file: /var/log/dump-smoketest.log
`

func writeFile(t *testing.T, fs afero.Fs, name, contents string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, name, []byte(contents), 0644))
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(afero.NewMemMapFs(), "", "")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, time.Minute, cfg.Timeout())
}

func TestLoadYAML(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/etc/dump-smoketest.yml", configYAML)

	cfg, err := Load(fs, "/etc/dump-smoketest.yml", "")
	require.NoError(t, err)

	assert.Equal(t, &Config{
		BaseURL:              "https://dumps.example.org/commonswiki/entities/",
		MaxLatestAgeDays:     7,
		ExpectedGrowthFactor: 1.001,
		Concurrency:          8,
		TimeoutSeconds:       60,
		Log: LogConfig{
			JSON: true,
			File: "/var/log/dump-smoketest.log",
		},
	}, cfg)
}

func TestLoadEmptyYAML(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "empty.yml", "")

	cfg, err := Load(fs, "empty.yml", "")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "config.yml", configYAML)
	writeFile(t, fs, ".env", "DUMP_SMOKETEST_MAX_LATEST_AGE_DAYS=3\nDUMP_SMOKETEST_LOG_DEBUG=true\nDUMP_SMOKETEST_CONCURRENCY=2\n")
	t.Setenv("DUMP_SMOKETEST_CONCURRENCY", "5")
	t.Setenv("DUMP_SMOKETEST_USER_AGENT", "smoketest-cron/1.0")

	cfg, err := Load(fs, "config.yml", ".env")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.MaxLatestAgeDays)
	assert.True(t, cfg.Log.Debug)
	assert.Equal(t, int64(5), cfg.Concurrency)
	assert.Equal(t, "smoketest-cron/1.0", cfg.UserAgent)
	assert.Equal(t, 1.001, cfg.ExpectedGrowthFactor)
}

func TestLoadErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "broken.yml", "base_url: [unterminated\n")
	writeFile(t, fs, "bad.env", "DUMP_SMOKETEST_EXPECTED_GROWTH_FACTOR=lots\n")

	tests := []struct {
		name    string
		path    string
		envFile string
	}{
		{"missing-config", "missing.yml", ""},
		{"broken-config", "broken.yml", ""},
		{"missing-env", "", "missing.env"},
		{"bad-env-value", "", "bad.env"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(fs, tt.path, tt.envFile)
			require.Error(t, err)
			assert.True(t, Error.Has(err))
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(cfg *Config)
	}{
		{"empty-base-url", func(cfg *Config) { cfg.BaseURL = "" }},
		{"negative-age", func(cfg *Config) { cfg.MaxLatestAgeDays = -1 }},
		{"zero-growth-factor", func(cfg *Config) { cfg.ExpectedGrowthFactor = 0 }},
		{"zero-concurrency", func(cfg *Config) { cfg.Concurrency = 0 }},
		{"zero-timeout", func(cfg *Config) { cfg.TimeoutSeconds = 0 }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, Error.Has(err))
		})
	}
}

func TestValidatorConfig(t *testing.T) {
	cfg := Default()
	cfg.MaxLatestAgeDays = 3
	cfg.ExpectedGrowthFactor = 1.01

	vc := cfg.ValidatorConfig()
	assert.Equal(t, 3, vc.MaxLatestAgeDays)
	assert.Equal(t, 1.01, vc.ExpectedGrowthFactor)
	assert.NotNil(t, vc.Now)
}
