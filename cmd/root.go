// Copyright 2022
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"fmt"
	"os"

	"github.com/capweight/capsim/common"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.toml)")

	bindPersistentEnv("secret_key", "CAPSIM_SECRET")
	rootCmd.PersistentFlags().String("secret-key", "", "api key encryption secret (hex encoded)")
	bindPersistentFlag("secret_key", "secret-key")

	bindPersistentEnv("database.url", "DATABASE_URL")
	rootCmd.PersistentFlags().String("database-url", "", "PostgreSQL connection string")
	bindPersistentFlag("database.url", "database-url")

	bindPersistentEnv("redis.url", "REDIS_URL")
	rootCmd.PersistentFlags().String("redis-url", "", "Redis connection string; blank disables the shared cache")
	bindPersistentFlag("redis.url", "redis-url")

	bindPersistentEnv("nats.server", "NATS_URL")

	bindPersistentEnv("log.level", "CAPSIM_LOG_LEVEL")
	rootCmd.PersistentFlags().String("log-level", "warning", "logging level: one of trace, debug, info, warning, error, fatal, panic")
	bindPersistentFlag("log.level", "log-level")

	bindPersistentEnv("log.report_caller", "CAPSIM_LOG_REPORT_CALLER")
	rootCmd.PersistentFlags().Bool("log-report-caller", false, "log function name that called log statement")
	bindPersistentFlag("log.report_caller", "log-report-caller")

	bindPersistentEnv("log.output", "CAPSIM_LOG_OUTPUT")
	rootCmd.PersistentFlags().String("log-output", "stdout", "write logs to specified output one of: file path, `stdout`, or `stderr`")
	bindPersistentFlag("log.output", "log-output")

	bindPersistentEnv("log.pretty", "CAPSIM_LOG_PRETTY")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "print logs in a human readable console format")
	bindPersistentFlag("log.pretty", "log-pretty")

	bindPersistentEnv("otel.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func bindPersistentFlag(key, flag string) {
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		log.Panic().Err(err).Str("Flag", flag).Msg("could not bind flag")
	}
}

func bindPersistentEnv(key, env string) {
	if err := viper.BindEnv(key, env); err != nil {
		log.Panic().Err(err).Str("Env", env).Msg("could not bind environment variable")
	}
}

var rootCmd = &cobra.Command{
	Use:     "capsim",
	Version: common.CurrentVersion.String(),
	Short:   "capsim computes market-cap weighted index backtests",
	Long: `capsim simulates a quarterly rebalanced portfolio of the N largest
securities by market capitalization and tracks its value over time with
and without an annual management fee.`,
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("toml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.capsim")
		viper.AddConfigPath("/etc/capsim/")
	}

	if err := viper.ReadInConfig(); err == nil {
		log.Debug().Str("ConfigFile", viper.ConfigFileUsed()).Msg("loaded config file")
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
