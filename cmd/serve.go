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
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/capweight/capsim/common"
	"github.com/capweight/capsim/data"
	"github.com/capweight/capsim/data/database"
	"github.com/capweight/capsim/handler"
	"github.com/capweight/capsim/jwks"
	"github.com/capweight/capsim/messenger"
	"github.com/capweight/capsim/middleware"
	"github.com/capweight/capsim/observability/opentelemetry"
	"github.com/capweight/capsim/router"
	"github.com/capweight/capsim/strategies"
	"github.com/go-co-op/gocron"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/lestrrat-go/jwx/jwk"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	if err := viper.BindEnv("server.port", "PORT"); err != nil {
		log.Panic().Err(err).Msg("could not bind server.port")
	}
	serveCmd.Flags().IntP("port", "p", 3000, "port to run the api server on")
	if err := viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port")); err != nil {
		log.Panic().Err(err).Msg("could not bind server.port")
	}

	serveCmd.Flags().String("refresh-daily-at", "22:30", "time of day (exchange timezone) to refresh the dataset")
	if err := viper.BindPFlag("refresh.daily_at", serveCmd.Flags().Lookup("refresh-daily-at")); err != nil {
		log.Panic().Err(err).Msg("could not bind refresh.daily_at")
	}

	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the capsim api server",
	Long:  `Run the HTTP server that exposes backtests, strategies and datasets`,
	Run: func(cmd *cobra.Command, args []string) {
		common.SetupLogging()
		common.SetupCache()
		ctx := context.Background()

		shutdownTracing, err := opentelemetry.Setup()
		if err != nil {
			log.Error().Err(err).Msg("could not setup tracing")
		} else {
			defer func() {
				if err := shutdownTracing(ctx); err != nil {
					log.Error().Err(err).Msg("could not shutdown tracing")
				}
			}()
		}

		if data.SourceRequiresDatabase() || viper.GetString("database.url") != "" {
			if viper.GetString("database.url") == "" {
				log.Fatal().Msg("configured data source requires database.url to be set")
			}
			if err := database.Connect(ctx); err != nil {
				log.Fatal().Err(err).Msg("could not connect to database")
			}
		}

		manager, err := data.NewManagerFromConfig()
		if err != nil {
			log.Fatal().Err(err).Msg("could not create data manager")
		}
		handler.SetManager(manager)

		strategies.InitializeStrategyMap()

		if err := messenger.Initialize(); err != nil {
			log.Error().Err(err).Msg("could not initialize messaging; results will not be published")
		}

		app := fiber.New(fiber.Config{
			JSONEncoder: json.Marshal,
			JSONDecoder: json.Unmarshal,
		})

		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt)
		go func() {
			sig := <-c
			log.Info().Str("Signal", sig.String()).Msg("shutting down")
			if err := app.Shutdown(); err != nil {
				log.Fatal().Err(err).Msg("could not shutdown server")
			}
		}()

		app.Use(cors.New(cors.Config{
			AllowHeaders: "*",
			AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH",
		}))
		app.Use(middleware.NewLogger())

		var jwksAutoRefresh *jwk.AutoRefresh
		var jwksURL string
		if viper.GetBool("auth.enabled") {
			jwksAutoRefresh, jwksURL = jwks.SetupJWKS()
		}

		router.SetupRoutes(app, jwksAutoRefresh, jwksURL)

		scheduler := gocron.NewScheduler(common.GetTimezone())
		if _, err := scheduler.Every(1).Day().At(viper.GetString("refresh.daily_at")).Do(refreshDataset, ctx, manager); err != nil {
			log.Error().Err(err).Msg("could not schedule dataset refresh")
		}
		scheduler.StartAsync()

		if err := app.Listen(":" + viper.GetString("server.port")); err != nil {
			log.Fatal().Err(err).Msg("server stopped")
		}
	},
}

// refreshDataset pulls the last few trading days for every security in the
// database store from yahoo so the api always serves current data. Only
// meaningful for the database source; xlsx datasets are static snapshots.
func refreshDataset(ctx context.Context, manager *data.Manager) {
	if manager.ProviderName() != "database" {
		log.Debug().Str("Provider", manager.ProviderName()).Msg("dataset refresh only supported for the database source")
		return
	}

	securities, err := manager.Securities(ctx)
	if err != nil {
		log.Error().Err(err).Msg("could not list securities for refresh")
		return
	}

	nyc := common.GetTimezone()
	now := time.Now().In(nyc)
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, nyc)
	begin := end.AddDate(0, 0, -7)

	yahoo := data.NewYahoo()
	pgdb := data.NewPgDb()
	for _, security := range securities {
		eod, err := yahoo.FetchEOD(ctx, security.Ticker, begin, end)
		if err != nil {
			log.Warn().Err(err).Str("Ticker", security.Ticker).Msg("could not refresh ticker")
			continue
		}
		if err := pgdb.SaveEOD(ctx, security.Ticker, eod); err != nil {
			log.Warn().Err(err).Str("Ticker", security.Ticker).Msg("could not save refreshed eod data")
		}
	}

	manager.ClearCache()
	log.Info().Int("NumSecurities", len(securities)).Msg("dataset refresh complete")
}
