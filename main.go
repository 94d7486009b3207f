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

// Binary dump-smoketest checks a Wikimedia entity dump listing for signs of a
// broken dump run and prints every problem it finds, one per line.
//
// Exit status is 0 when the listing is valid, 1 when problems were found and
// 2 when the listing could not be checked at all.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wmde/dump-smoketest/common"
	"github.com/wmde/dump-smoketest/config"
	"github.com/wmde/dump-smoketest/fetch"
	"github.com/wmde/dump-smoketest/reader"
	"github.com/wmde/dump-smoketest/validator"
)

const (
	exitValid   = 0
	exitInvalid = 1
	exitError   = 2
)

var (
	configPath  string
	envFile     string
	showVersion bool

	flagConfig = config.Default()
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitError)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dump-smoketest",
		Short: "Smoke test a Wikimedia entity dump listing",
		Long: "Fetches the HTTP directory listing of the Wikidata/Commons entity dumps and checks " +
			"for missing hash sum files, stale latest links and dumps that shrank.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(runCommand(cmd, cmd.OutOrStdout()))
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&configPath, "config", "", "YAML config file")
	flags.StringVar(&envFile, "env-file", "", "dotenv file with "+config.EnvPrefix+"* settings")
	flags.BoolVar(&showVersion, "version", false, "Print version and exit")
	flags.StringVar(&flagConfig.BaseURL, "base-url", flagConfig.BaseURL,
		"URL of the dump listing to check")
	flags.IntVar(&flagConfig.MaxLatestAgeDays, "max-latest-age", flagConfig.MaxLatestAgeDays,
		"Maximum age in days of a latest link (one day of grace is added)")
	flags.Float64Var(&flagConfig.ExpectedGrowthFactor, "growth-factor", flagConfig.ExpectedGrowthFactor,
		"Minimum size ratio between a dump and its predecessor")
	flags.Int64Var(&flagConfig.Concurrency, "concurrency", flagConfig.Concurrency,
		"Maximum number of directory pages fetched at once")
	flags.IntVar(&flagConfig.TimeoutSeconds, "timeout", flagConfig.TimeoutSeconds,
		"Timeout in seconds for a single page fetch")
	flags.StringVar(&flagConfig.UserAgent, "user-agent", flagConfig.UserAgent,
		"User-Agent header sent with every request")
	flags.BoolVar(&flagConfig.Log.Debug, "debug", false, "Enable debug logging")
	flags.BoolVar(&flagConfig.Log.JSON, "log-json", false, "Encode log fields as JSON")
	flags.BoolVar(&flagConfig.Log.Color, "color", false, "Enable color highlighting in logs")
	flags.StringVar(&flagConfig.Log.File, "log-file", "", "Send logs to the named file instead of stderr")
	return rootCmd
}

func runCommand(cmd *cobra.Command, stdout io.Writer) int {
	if showVersion {
		fmt.Fprintf(stdout, "dump-smoketest %s (Go version: %s)\n", common.Version, runtime.Version())
		return exitValid
	}

	cfg, err := config.Load(afero.NewOsFs(), configPath, envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitError
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitError
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		_, _ = os.Stderr.Write([]byte("Could not initialize logging: " + err.Error() + "\n"))
		return exitError
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, cfg, logger, stdout)
}

// applyFlags copies every explicitly given flag over the loaded configuration.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("base-url") {
		cfg.BaseURL = flagConfig.BaseURL
	}
	if changed("max-latest-age") {
		cfg.MaxLatestAgeDays = flagConfig.MaxLatestAgeDays
	}
	if changed("growth-factor") {
		cfg.ExpectedGrowthFactor = flagConfig.ExpectedGrowthFactor
	}
	if changed("concurrency") {
		cfg.Concurrency = flagConfig.Concurrency
	}
	if changed("timeout") {
		cfg.TimeoutSeconds = flagConfig.TimeoutSeconds
	}
	if changed("user-agent") {
		cfg.UserAgent = flagConfig.UserAgent
	}
	if changed("debug") {
		cfg.Log.Debug = flagConfig.Log.Debug
	}
	if changed("log-json") {
		cfg.Log.JSON = flagConfig.Log.JSON
	}
	if changed("color") {
		cfg.Log.Color = flagConfig.Log.Color
	}
	if changed("log-file") {
		cfg.Log.File = flagConfig.Log.File
	}
}

func newLogger(logCfg config.LogConfig) (*zap.Logger, error) {
	logConfig := zap.NewDevelopmentConfig()
	if logCfg.Color {
		logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	if logCfg.File != "" {
		logConfig.OutputPaths = []string{logCfg.File}
	}
	if logCfg.JSON {
		logConfig.Encoding = "json"
	} else {
		logConfig.Encoding = "console"
	}
	if logCfg.Debug {
		logConfig.Level.SetLevel(zap.DebugLevel)
	} else {
		logConfig.Level.SetLevel(zap.InfoLevel)
		logConfig.DisableStacktrace = true
	}
	logger, err := logConfig.Build(zap.AddCaller())
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("run-id", uuid.New().String())), nil
}

// run checks the listing at cfg.BaseURL, writes the problems found to stdout and
// returns the exit status.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, stdout io.Writer) int {
	startTime := time.Now()
	logger.Info("Checking dump listing", zap.String("base-url", cfg.BaseURL))

	fetcher := fetch.NewHTTPFetcher(logger.Named("fetch"), cfg.Timeout(), cfg.UserAgent)
	snapshot, err := reader.New(fetcher, cfg.BaseURL, logger.Named("reader"), cfg.Concurrency).Collect(ctx)
	if err != nil {
		logger.Error("Could not read dump listing", zap.Error(err))
		return exitError
	}

	outcome, err := validator.New(cfg.ValidatorConfig()).Validate(snapshot)
	if err != nil {
		logger.Error("Could not validate dump listing", zap.Error(err))
		return exitError
	}
	if _, err := outcome.WriteTo(stdout); err != nil {
		logger.Error("Could not write results", zap.Error(err))
		return exitError
	}

	logger.Info("Check completed",
		zap.Bool("valid", outcome.Valid),
		zap.Int("num-problems", len(outcome.Messages)),
		zap.Duration("duration", time.Since(startTime)))
	if !outcome.Valid {
		return exitInvalid
	}
	return exitValid
}
